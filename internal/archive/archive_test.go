package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// makeZip builds a zip in memory from name -> content pairs.
func makeZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %q: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %q: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReverse_Twice(t *testing.T) {
	for _, in := range [][]byte{{1}, {1, 2}, {1, 2, 3}, []byte("PK\x03\x04 mod payload")} {
		b := append([]byte(nil), in...)
		Reverse(b)
		Reverse(b)
		if !bytes.Equal(b, in) {
			t.Fatalf("double reverse = %v, want %v", b, in)
		}
	}
	b := []byte{1, 2, 3, 4}
	Reverse(b)
	if !bytes.Equal(b, []byte{4, 3, 2, 1}) {
		t.Fatalf("Reverse = %v", b)
	}
}

func TestReverseFile(t *testing.T) {
	p := writeTempFile(t, "a.tmod", []byte("abc"))
	if err := ReverseFile(p); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(p)
	if string(got) != "cba" {
		t.Fatalf("got %q", got)
	}

	empty := writeTempFile(t, "e.tmod", nil)
	if err := ReverseFile(empty); !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}

func TestPackExtractRoundTrip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "mod1")
	files := map[string]string{
		"Scripts/Spinner.cs":             "class Spinner {}",
		"Scripts/script_data.json":       `{"scripts":[]}`,
		"Lightmaps/lightmap_0_color.png": "png",
		"Arena.bundle":                   "bundle",
	}
	writeTree(t, src, files)
	if err := os.MkdirAll(filepath.Join(src, "Shaders"), 0o755); err != nil {
		t.Fatal(err)
	}

	zipPath := filepath.Join(t.TempDir(), "mod1.readable")
	if err := Pack(src, zipPath); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range zr.File {
		if strings.Contains(f.Name, `\`) || strings.HasPrefix(f.Name, "/") {
			t.Errorf("entry name not relative slash form: %q", f.Name)
		}
	}
	zr.Close()

	dst := filepath.Join(t.TempDir(), "out")
	if err := Extract(zipPath, dst, DefaultLimits); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		if err != nil || string(got) != want {
			t.Errorf("%s = %q, %v", name, got, err)
		}
	}
	if fi, err := os.Stat(filepath.Join(dst, "Shaders")); err != nil || !fi.IsDir() {
		t.Fatal("empty directory lost")
	}
}

func TestExtract_RejectsTraversal(t *testing.T) {
	for _, name := range []string{"../evil.cs", "Scripts/../../evil.cs", "/abs.cs"} {
		p := writeTempFile(t, "bad.zip", makeZip(t, map[string]string{name: "x"}))
		parent := t.TempDir()
		dst := filepath.Join(parent, "out")
		if err := Extract(p, dst, DefaultLimits); err == nil {
			t.Errorf("Extract(%q) succeeded", name)
		}
		if _, err := os.Stat(filepath.Join(parent, "evil.cs")); !os.IsNotExist(err) {
			t.Errorf("Extract(%q) wrote outside the destination", name)
		}
	}
}

func TestExtract_Limits(t *testing.T) {
	big := strings.Repeat("a", 100)
	p := writeTempFile(t, "big.zip", makeZip(t, map[string]string{"a": big, "b": big}))

	err := Extract(p, filepath.Join(t.TempDir(), "o1"), Limits{MaxFile: 50})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("per-file limit err = %v", err)
	}
	err = Extract(p, filepath.Join(t.TempDir(), "o2"), Limits{MaxFile: 150, MaxTotal: 150})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("total limit err = %v", err)
	}
	err = Extract(p, filepath.Join(t.TempDir(), "o3"), Limits{MaxFiles: 1})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("entry count limit err = %v", err)
	}
	if err := Extract(p, filepath.Join(t.TempDir(), "o4"), DefaultLimits); err != nil {
		t.Fatalf("within limits: %v", err)
	}
}

func TestExtract_Empty(t *testing.T) {
	p := writeTempFile(t, "empty.zip", makeZip(t, nil))
	if err := Extract(p, filepath.Join(t.TempDir(), "o"), DefaultLimits); !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}

func TestDecode(t *testing.T) {
	data := makeZip(t, map[string]string{"Scripts/script_data.json": `{"scripts":[]}`})
	Reverse(data)
	modPath := writeTempFile(t, "mod1.tmod", data)
	temp := t.TempDir()

	// stale extraction from a previous run is replaced
	writeTree(t, filepath.Join(temp, "mod1"), map[string]string{"stale.txt": "old"})

	dir, clean, err := Decode(modPath, temp, DefaultLimits)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dir != filepath.Join(temp, "mod1") || clean != filepath.Join(temp, "mod1_clean.tmod") {
		t.Fatalf("dir=%q clean=%q", dir, clean)
	}
	if _, err := os.Stat(filepath.Join(dir, "Scripts", "script_data.json")); err != nil {
		t.Fatalf("manifest not extracted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "stale.txt")); !os.IsNotExist(err) {
		t.Fatal("stale extraction should be removed")
	}
	orig, _ := os.ReadFile(modPath)
	if !bytes.Equal(orig, data) {
		t.Fatal("Decode must not modify the source container")
	}
}

func TestDecode_NotReversed(t *testing.T) {
	// a plain zip under the .tmod extension fails to open once reversed
	modPath := writeTempFile(t, "plain.tmod", makeZip(t, map[string]string{"a": "b"}))
	if _, _, err := Decode(modPath, t.TempDir(), DefaultLimits); err == nil {
		t.Fatal("expected extraction error")
	}
}

func TestOutputPathsAndName(t *testing.T) {
	o := OutputPaths("out", "Arena")
	if o.Mod != filepath.Join("out", "Arena.tmod") || o.Readable != filepath.Join("out", "Arena.readable") {
		t.Fatalf("outputs = %+v", o)
	}
	if Name("/x/Mods/Arena.tmod") != "Arena" {
		t.Fatal("Name")
	}
}

func TestDigest(t *testing.T) {
	p := writeTempFile(t, "a", []byte("hello"))
	got, err := Digest(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("Digest = %s", got)
	}
}
