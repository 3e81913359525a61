package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScriptsRoundTripOnDisk(t *testing.T) {
	dir := t.TempDir()
	want := ScriptManifest{Scripts: []ScriptDescriptor{
		{ScriptName: "Spinner.cs", ClassName: "Mods.Spinner"},
	}}
	if err := WriteScripts(dir, want); err != nil {
		t.Fatalf("WriteScripts: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "Scripts", "script_data.json"))
	if err != nil {
		t.Fatalf("manifest not at expected path: %v", err)
	}
	for _, field := range []string{`"scripts"`, `"scriptName"`, `"className"`} {
		if !strings.Contains(string(raw), field) {
			t.Errorf("manifest missing field %s: %s", field, raw)
		}
	}

	got, err := ReadScripts(dir)
	if err != nil {
		t.Fatalf("ReadScripts: %v", err)
	}
	if len(got.Scripts) != 1 || got.Scripts[0] != want.Scripts[0] {
		t.Fatalf("got %+v", got)
	}
}

func TestReadMissingManifestIsAssetMissing(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadShaders(dir); !errors.Is(err, ErrAssetMissing) {
		t.Fatalf("ReadShaders err = %v, want ErrAssetMissing", err)
	}
	if _, err := ReadLightmaps(dir); !errors.Is(err, ErrAssetMissing) {
		t.Fatalf("ReadLightmaps err = %v, want ErrAssetMissing", err)
	}
	if _, err := ReadProperties(dir, "X.shadergraph"); !errors.Is(err, ErrAssetMissing) {
		t.Fatalf("ReadProperties err = %v, want ErrAssetMissing", err)
	}
}

func TestReadCorruptManifest(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "Scripts", "script_data.json")
	os.MkdirAll(filepath.Dir(p), 0o755)
	os.WriteFile(p, []byte("{not json"), 0o644)

	_, err := ReadScripts(dir)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if errors.Is(err, ErrAssetMissing) {
		t.Fatal("corrupt manifest should not be classified as missing")
	}
}

func TestPropertiesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	snap := MaterialPropertySnapshot{
		MaterialName: "Glow",
		ShaderName:   "Custom/Foo",
		Properties: []PropertyValue{
			ColorValue("_BaseColor", [4]float32{1, 0.5, 0.25, 1}),
			VectorValue("_Wind", [4]float32{0, 1, 0, 0}),
			FloatValue("_Smoothness", 0.8),
			RangeValue("_Cutoff", 0.3),
			TextureValue("_MainTex", "noise", [2]float32{0.1, 0.2}, [2]float32{2, 2}),
		},
	}
	if err := WriteProperties(dir, "Custom_Foo.shadergraph", snap); err != nil {
		t.Fatalf("WriteProperties: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Shaders", "Custom_Foo_properties.json")); err != nil {
		t.Fatalf("properties file name: %v", err)
	}

	got, err := ReadProperties(dir, "Custom_Foo.shadergraph")
	if err != nil {
		t.Fatalf("ReadProperties: %v", err)
	}
	if len(got.Properties) != 5 {
		t.Fatalf("properties = %d, want 5", len(got.Properties))
	}
	if c, ok := Vec4(got.Properties[0].ColorValue); !ok || c != [4]float32{1, 0.5, 0.25, 1} {
		t.Fatalf("color = %v", got.Properties[0].ColorValue)
	}
	tex := got.Properties[4]
	if tex.Type != PropertyTexture || tex.TextureName != "noise" {
		t.Fatalf("texture = %+v", tex)
	}
	if s, ok := Vec2(tex.TextureScale); !ok || s != [2]float32{2, 2} {
		t.Fatalf("scale = %v", tex.TextureScale)
	}
}

func TestVecLengthChecks(t *testing.T) {
	if _, ok := Vec4([]float32{1, 2, 3}); ok {
		t.Fatal("Vec4 should reject 3 values")
	}
	if _, ok := Vec4(nil); ok {
		t.Fatal("Vec4 should reject nil")
	}
	if _, ok := Vec2([]float32{1, 2, 3}); ok {
		t.Fatal("Vec2 should reject 3 values")
	}
}

func TestPropertiesFileName(t *testing.T) {
	tests := map[string]string{
		"Custom_Foo.shadergraph": "Custom_Foo_properties.json",
		"Toon.shader":            "Toon_properties.json",
		"bare":                   "bare_properties.json",
	}
	for in, want := range tests {
		if got := PropertiesFileName(in); got != want {
			t.Errorf("PropertiesFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLightmapImageNames(t *testing.T) {
	c, d := LightmapImageNames(3)
	if c != "lightmap_3_color.png" || d != "lightmap_3_dir.png" {
		t.Fatalf("got %q %q", c, d)
	}
}

func TestValidateDuplicates(t *testing.T) {
	p := PackageManifest{
		Scripts: ScriptManifest{Scripts: []ScriptDescriptor{
			{ScriptName: "A.cs", ClassName: "Mods.A"},
			{ScriptName: "A.cs", ClassName: "Mods.A"},
		}},
		Shaders: ShaderManifest{Shaders: []ShaderDescriptor{
			{ShaderName: "X.shader", OriginalName: "X"},
			{ShaderName: "Y.shader", OriginalName: "Y"},
		}},
	}
	err := p.Validate()
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}
	if !strings.Contains(err.Error(), "Mods.A") {
		t.Fatalf("error should name the class: %v", err)
	}

	p.Scripts.Scripts = p.Scripts.Scripts[:1]
	if err := p.Validate(); err != nil {
		t.Fatalf("unique manifest should validate: %v", err)
	}
}

func TestPathHelpers(t *testing.T) {
	if got := StripRoot("OldRoot/Child/Leaf"); got != "Child/Leaf" {
		t.Fatalf("StripRoot = %q", got)
	}
	if got := StripRoot("Solo"); got != "Solo" {
		t.Fatalf("StripRoot single = %q", got)
	}
	if got := Leaf("OldRoot/Child/Leaf"); got != "Leaf" {
		t.Fatalf("Leaf = %q", got)
	}
	if Leaf("") != "" || SplitPath("") != nil {
		t.Fatal("empty path should have no names")
	}
	if JoinPath("a", "b") != "a/b" {
		t.Fatal("JoinPath")
	}
}
