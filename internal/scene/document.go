package scene

import (
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// Document is the YAML description of a scene together with the behavior
// types and shading programs it relies on. Relative paths resolve against
// the directory holding the document.
type Document struct {
	Name      string         `json:"name"`
	Types     []TypeSpec     `json:"types,omitempty"`
	Shaders   []*Shader      `json:"shaders,omitempty"`
	Lightmaps []LightmapSpec `json:"lightmaps,omitempty"`
	Roots     []NodeSpec     `json:"roots,omitempty"`

	dir string
}

// TypeSpec registers one behavior type. Script is the source file the type
// was compiled from.
type TypeSpec struct {
	Name            string      `json:"name"`
	Script          string      `json:"script,omitempty"`
	SandboxExcluded bool        `json:"sandboxExcluded,omitempty"`
	Fields          []FieldSpec `json:"fields,omitempty"`
}

// FieldSpec declares a field and its fully-qualified type.
type FieldSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type LightmapSpec struct {
	Color string `json:"color,omitempty"`
	Dir   string `json:"dir,omitempty"`
}

type NodeSpec struct {
	Name       string        `json:"name"`
	Descriptor bool          `json:"descriptor,omitempty"`
	Inactive   bool          `json:"inactive,omitempty"`
	Components []string      `json:"components,omitempty"`
	Renderer   *RendererSpec `json:"renderer,omitempty"`
	Children   []NodeSpec    `json:"children,omitempty"`
}

type RendererSpec struct {
	Mesh          bool           `json:"mesh,omitempty"`
	LightmapIndex *int           `json:"lightmapIndex,omitempty"`
	ScaleOffset   []float32      `json:"scaleOffset,omitempty"`
	Materials     []MaterialSpec `json:"materials,omitempty"`
}

type MaterialSpec struct {
	Name     string                 `json:"name"`
	Shader   string                 `json:"shader,omitempty"`
	Colors   map[string][]float32   `json:"colors,omitempty"`
	Vectors  map[string][]float32   `json:"vectors,omitempty"`
	Floats   map[string]float32     `json:"floats,omitempty"`
	Textures map[string]TextureSpec `json:"textures,omitempty"`
}

type TextureSpec struct {
	Texture string    `json:"texture,omitempty"`
	Offset  []float32 `json:"offset,omitempty"`
	Scale   []float32 `json:"scale,omitempty"`
}

// LoadDocument reads and parses a YAML scene document.
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read scene document %s", path)
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse scene document %s", path)
	}
	doc.dir = filepath.Dir(path)
	return doc, nil
}

// ParseDocument parses YAML without a base directory; relative paths
// resolve against the working directory.
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.UnmarshalStrict(raw, &doc); err != nil {
		return nil, xerrors.WithStack(err)
	}
	return &doc, nil
}

// Resolve returns p relative to the document directory.
func (d *Document) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || d.dir == "" {
		return p
	}
	return filepath.Join(d.dir, p)
}

// Library returns the document's shading programs keyed by name.
func (d *Document) Library() Shaders {
	lib := Shaders{}
	for _, sh := range d.Shaders {
		cp := *sh
		cp.AssetPath = d.resolveAsset(sh.AssetPath)
		lib.Add(&cp)
	}
	return lib
}

// built-in paths are identifiers, not files
func (d *Document) resolveAsset(p string) string {
	if p == "" || strings.HasPrefix(p, BuiltinShaderPrefix) {
		return p
	}
	return d.Resolve(p)
}

// Binder supplies the behavior for a component type, or nil when the type
// has no implementation.
type Binder func(typeName string) Behavior

// Scene materializes the document. Materials naming a program that the
// document does not declare get a source-less program of that name.
func (d *Document) Scene(bind Binder) (*Scene, error) {
	lib := d.Library()
	s := New(d.Name)
	for i, lm := range d.Lightmaps {
		var out Lightmap
		var err error
		if out.Color, err = decodeImage(d.Resolve(lm.Color)); err != nil {
			return nil, xerrors.Wrapf(err, "lightmap %d color", i)
		}
		if out.Dir, err = decodeImage(d.Resolve(lm.Dir)); err != nil {
			return nil, xerrors.Wrapf(err, "lightmap %d dir", i)
		}
		s.Lightmaps = append(s.Lightmaps, out)
	}
	for _, spec := range d.Roots {
		n, err := buildNode(spec, lib, bind)
		if err != nil {
			return nil, err
		}
		s.AddRoot(n)
	}
	return s, nil
}

func buildNode(spec NodeSpec, lib Shaders, bind Binder) (*Node, error) {
	if spec.Name == "" {
		return nil, xerrors.New("node without a name")
	}
	n := NewNode(spec.Name)
	n.Descriptor = spec.Descriptor
	n.active = !spec.Inactive
	for _, t := range spec.Components {
		var b Behavior
		if bind != nil {
			b = bind(t)
		}
		n.components = append(n.components, &Component{TypeName: t, Behavior: b, node: n})
	}
	if rs := spec.Renderer; rs != nil {
		r := NewRenderer(rs.Mesh)
		if rs.LightmapIndex != nil {
			r.LightmapIndex = *rs.LightmapIndex
		}
		if rs.ScaleOffset != nil {
			so, ok := manifest.Vec4(rs.ScaleOffset)
			if !ok {
				return nil, xerrors.Newf("node %s: scaleOffset needs 4 values", spec.Name)
			}
			r.LightmapScaleOffset = so
		}
		for _, ms := range rs.Materials {
			m, err := buildMaterial(ms, lib)
			if err != nil {
				return nil, xerrors.Wrapf(err, "node %s", spec.Name)
			}
			r.Materials = append(r.Materials, m)
		}
		n.Renderer = r
	}
	for _, cs := range spec.Children {
		c, err := buildNode(cs, lib, bind)
		if err != nil {
			return nil, err
		}
		c.parent = n
		n.children = append(n.children, c)
	}
	return n, nil
}

func buildMaterial(ms MaterialSpec, lib Shaders) (*Material, error) {
	var sh *Shader
	if ms.Shader != "" {
		if sh = lib.Find(ms.Shader); sh == nil {
			sh = &Shader{Name: ms.Shader}
			lib.Add(sh)
		}
	}
	m := NewMaterial(ms.Name, sh)
	for k, v := range ms.Colors {
		c, ok := manifest.Vec4(v)
		if !ok {
			return nil, xerrors.Newf("material %s: color %s needs 4 values", ms.Name, k)
		}
		m.SetColor(k, c)
	}
	for k, v := range ms.Vectors {
		c, ok := manifest.Vec4(v)
		if !ok {
			return nil, xerrors.Newf("material %s: vector %s needs 4 values", ms.Name, k)
		}
		m.SetVector(k, c)
	}
	for k, v := range ms.Floats {
		m.SetFloat(k, v)
	}
	for k, ts := range ms.Textures {
		m.SetTexture(k, ts.Texture)
		if off, ok := manifest.Vec2(ts.Offset); ok {
			m.SetTextureOffset(k, off)
		}
		if sc, ok := manifest.Vec2(ts.Scale); ok {
			m.SetTextureScale(k, sc)
		}
	}
	return m, nil
}

func decodeImage(path string) (image.Image, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.WithStack(err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, xerrors.Wrapf(err, "decode %s", path)
	}
	return img, nil
}

// SpecOf converts a live subtree back into its document form. Component
// behaviors and program sources are not part of the result.
func SpecOf(n *Node) NodeSpec {
	spec := NodeSpec{Name: n.Name, Descriptor: n.Descriptor, Inactive: !n.active}
	for _, c := range n.components {
		spec.Components = append(spec.Components, c.TypeName)
	}
	if r := n.Renderer; r != nil {
		idx := r.LightmapIndex
		rs := &RendererSpec{Mesh: r.Mesh, LightmapIndex: &idx, ScaleOffset: r.LightmapScaleOffset[:]}
		for _, m := range r.Materials {
			if m == nil {
				continue
			}
			rs.Materials = append(rs.Materials, materialSpecOf(m))
		}
		spec.Renderer = rs
	}
	for _, c := range n.children {
		spec.Children = append(spec.Children, SpecOf(c))
	}
	return spec
}

func materialSpecOf(m *Material) MaterialSpec {
	ms := MaterialSpec{Name: m.Name, Shader: m.ShaderName(), Floats: m.Floats}
	if len(m.Colors) > 0 {
		ms.Colors = map[string][]float32{}
		for k, v := range m.Colors {
			ms.Colors[k] = append([]float32(nil), v[:]...)
		}
	}
	if len(m.Vectors) > 0 {
		ms.Vectors = map[string][]float32{}
		for k, v := range m.Vectors {
			ms.Vectors[k] = append([]float32(nil), v[:]...)
		}
	}
	if len(m.Textures) > 0 {
		ms.Textures = map[string]TextureSpec{}
		for k, s := range m.Textures {
			ms.Textures[k] = TextureSpec{Texture: s.Texture, Offset: s.Offset[:], Scale: s.Scale[:]}
		}
	}
	return ms
}

// MarshalNode renders a subtree as a single-root YAML document.
func MarshalNode(n *Node) ([]byte, error) {
	out, err := yaml.Marshal(Document{Name: n.Name, Roots: []NodeSpec{SpecOf(n)}})
	if err != nil {
		return nil, xerrors.Wrapf(err, "marshal %s", n.Name)
	}
	return out, nil
}
