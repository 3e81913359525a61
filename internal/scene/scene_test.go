package scene

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

type countingBehavior struct{ calls *int }

func (b countingBehavior) Awake(*Component) { *b.calls++ }

func TestNodePathAndFind(t *testing.T) {
	root := NewNode("Arena")
	child := NewNode("Child")
	leaf := NewNode("Leaf")
	root.AddChild(child)
	child.AddChild(leaf)

	if got := leaf.Path(); got != "Arena/Child/Leaf" {
		t.Fatalf("Path = %q", got)
	}
	if root.FindPath("Child/Leaf") != leaf {
		t.Fatal("FindPath should reach the leaf")
	}
	if root.FindPath("Child/Nope") != nil || root.FindPath("") != nil {
		t.Fatal("FindPath should miss")
	}
}

func TestComponentsWakeOnlyWhenAttachedAndActive(t *testing.T) {
	calls := 0
	b := countingBehavior{&calls}

	n := NewNode("Spinner")
	c := n.AddComponent("Mods.Spinner", b)
	if calls != 0 {
		t.Fatal("detached node must not wake components")
	}

	container := NewNode("mod1")
	container.SetActive(false)
	s := New("host")
	s.AddRoot(container)
	container.AddChild(n)
	if calls != 0 {
		t.Fatal("inactive container must not wake components")
	}

	container.SetActive(true)
	if calls != 1 || !c.Awakened() {
		t.Fatalf("calls = %d, want 1", calls)
	}
	container.SetActive(false)
	container.SetActive(true)
	if calls != 1 {
		t.Fatal("Awake must fire once")
	}
}

func TestDestroyedComponentNeverWakes(t *testing.T) {
	calls := 0
	n := NewNode("Bad")
	c := n.AddComponent("System.IO.Evil", countingBehavior{&calls})
	keep := n.AddComponent("Mods.Ok", countingBehavior{&calls})
	c.Destroy()

	if len(n.Components()) != 1 || n.Components()[0] != keep {
		t.Fatalf("components = %v", n.Components())
	}
	New("host").AddRoot(n)
	if calls != 1 || c.Awakened() {
		t.Fatalf("destroyed component woke, calls = %d", calls)
	}
}

func TestCloneIsDetachedDeepCopy(t *testing.T) {
	root := NewNode("Arena")
	root.AddComponent("Mods.Spinner", Inert{})
	child := NewNode("Floor")
	child.Renderer = NewRenderer(true, NewMaterial("Stone", &Shader{Name: "Standard"}))
	root.AddChild(child)

	cp := root.Clone()
	cp.Components()[0].Destroy()
	cp.Child("Floor").Name = "Changed"

	if len(root.Components()) != 1 || root.Child("Floor") == nil {
		t.Fatal("clone mutation leaked into source")
	}
	if cp.Parent() != nil || cp.Child("Changed").Parent() != cp {
		t.Fatal("clone parent links wrong")
	}
	if cp.Child("Changed").Renderer.Materials[0] != child.Renderer.Materials[0] {
		t.Fatal("materials should be shared")
	}
}

func TestSplitTypeName(t *testing.T) {
	ns, name := SplitTypeName("System.IO.FileStream")
	if ns != "System.IO" || name != "FileStream" {
		t.Fatalf("got %q %q", ns, name)
	}
	if ns, _ := SplitTypeName("Spinner"); ns != "" {
		t.Fatalf("global type namespace = %q", ns)
	}
}

func TestShaderClassification(t *testing.T) {
	tests := []struct {
		sh      Shader
		graph   bool
		builtin bool
	}{
		{Shader{Name: "Custom/Foo", AssetPath: "Assets/Foo.shadergraph"}, true, false},
		{Shader{Name: "Toon", AssetPath: "Assets/Toon.shader"}, false, false},
		{Shader{Name: "Standard", AssetPath: "Resources/unity_builtin_extra"}, false, true},
		{Shader{Name: "Unlit"}, false, true},
	}
	for _, tt := range tests {
		if tt.sh.IsGraph() != tt.graph || tt.sh.Builtin() != tt.builtin {
			t.Errorf("%s: graph=%v builtin=%v", tt.sh.Name, tt.sh.IsGraph(), tt.sh.Builtin())
		}
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

const testDoc = `
name: Arena
types:
  - name: Mods.Spinner
    script: Spinner.cs
shaders:
  - name: Custom/Foo
    assetPath: Shaders/Foo.shadergraph
    properties:
      - {name: _BaseColor, kind: Color}
lightmaps:
  - color: lm0.png
roots:
  - name: Descriptor
    descriptor: true
  - name: Arena
    components: [Mods.Spinner]
    children:
      - name: Floor
        inactive: true
        renderer:
          mesh: true
          lightmapIndex: 0
          scaleOffset: [0.5, 0.5, 0, 0]
          materials:
            - name: Glow
              shader: Custom/Foo
              colors: {_BaseColor: [1, 0, 0, 1]}
              textures:
                _MainTex: {texture: noise, scale: [2, 2]}
            - name: Plain
              shader: Standard
`

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "lm0.png"))
	path := filepath.Join(dir, "arena.yaml")
	if err := os.WriteFile(path, []byte(testDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if got := doc.Resolve(doc.Types[0].Script); got != filepath.Join(dir, "Spinner.cs") {
		t.Fatalf("Resolve = %q", got)
	}

	calls := 0
	s, err := doc.Scene(func(name string) Behavior {
		if name == "Mods.Spinner" {
			return countingBehavior{&calls}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scene: %v", err)
	}
	if len(s.Roots()) != 2 || !s.Roots()[0].Descriptor {
		t.Fatalf("roots = %v", s.Roots())
	}
	if calls != 1 {
		t.Fatalf("active root component should wake, calls = %d", calls)
	}
	if len(s.Lightmaps) != 1 || s.Lightmaps[0].Color == nil || s.Lightmaps[0].Dir != nil {
		t.Fatalf("lightmaps = %+v", s.Lightmaps)
	}

	floor := s.Roots()[1].Child("Floor")
	if floor == nil || floor.Active() {
		t.Fatal("Floor should exist and be inactive")
	}
	r := floor.Renderer
	if r.LightmapIndex != 0 || r.LightmapScaleOffset != [4]float32{0.5, 0.5, 0, 0} {
		t.Fatalf("renderer = %+v", r)
	}
	glow := r.Materials[0]
	if !glow.Shader.IsGraph() || glow.Colors["_BaseColor"] != [4]float32{1, 0, 0, 1} {
		t.Fatalf("glow = %+v", glow)
	}
	if glow.Textures["_MainTex"].Scale != [2]float32{2, 2} || glow.Textures["_MainTex"].Texture != "noise" {
		t.Fatalf("texture = %+v", glow.Textures["_MainTex"])
	}
	if plain := r.Materials[1]; plain.Shader == nil || !plain.Shader.Builtin() {
		t.Fatal("undeclared shader should become a source-less program")
	}
}

func TestParseDocumentRejectsUnknownFields(t *testing.T) {
	if _, err := ParseDocument([]byte("name: x\nbogus: 1\n")); err == nil {
		t.Fatal("expected strict decode error")
	}
	if _, err := ParseDocument([]byte("roots:\n  - renderer: {scaleOffset: [1]}\n")); err != nil {
		t.Fatalf("parse should defer validation: %v", err)
	}
}

func TestSceneRejectsBadVectors(t *testing.T) {
	doc, err := ParseDocument([]byte("roots:\n  - name: A\n    renderer: {scaleOffset: [1]}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := doc.Scene(nil); err == nil {
		t.Fatal("expected scaleOffset length error")
	}
}

func TestMarshalNodeRoundTrip(t *testing.T) {
	root := NewNode("Arena")
	root.AddComponent("Mods.Spinner", nil)
	floor := NewNode("Floor")
	m := NewMaterial("Glow", &Shader{Name: "Custom/Foo"})
	m.SetColor("_BaseColor", [4]float32{1, 0, 0, 1})
	floor.Renderer = NewRenderer(true, m)
	floor.SetActive(false)
	root.AddChild(floor)

	raw, err := MarshalNode(root)
	if err != nil {
		t.Fatalf("MarshalNode: %v", err)
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("ParseDocument: %v\n%s", err, raw)
	}
	s, err := doc.Scene(nil)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Roots()[0]
	if got.Name != "Arena" || len(got.Components()) != 1 {
		t.Fatalf("root = %+v", got)
	}
	f := got.Child("Floor")
	if f == nil || f.Active() || f.Renderer.LightmapIndex != NoLightmap {
		t.Fatalf("floor = %+v", f)
	}
	if f.Renderer.Materials[0].Colors["_BaseColor"] != [4]float32{1, 0, 0, 1} {
		t.Fatal("material color lost")
	}
}

func TestRemoveRootDetaches(t *testing.T) {
	calls := 0
	s := New("host")
	old := NewNode("mod1")
	old.SetActive(false)
	s.AddRoot(old)
	old.AddChild(NewNode("Child"))

	if !s.RemoveRoot(old) || len(s.Roots()) != 0 {
		t.Fatalf("roots = %v", s.Roots())
	}
	if s.RemoveRoot(old) {
		t.Fatal("second RemoveRoot should report false")
	}
	old.AddComponent("Mods.Spinner", countingBehavior{&calls})
	old.SetActive(true)
	if calls != 0 {
		t.Fatal("a removed root must not wake components")
	}
}
