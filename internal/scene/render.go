package scene

import "strings"

// BuiltinShaderPrefix is the asset path prefix of engine-provided shaders.
// They are never packaged.
const BuiltinShaderPrefix = "Resources/unity_builtin_extra"

const graphSuffix = ".shadergraph"

// PropertyKind classifies a declared shader property.
type PropertyKind string

const (
	KindColor   PropertyKind = "Color"
	KindVector  PropertyKind = "Vector"
	KindFloat   PropertyKind = "Float"
	KindRange   PropertyKind = "Range"
	KindTexture PropertyKind = "TexEnv"
)

type ShaderProperty struct {
	Name string       `json:"name"`
	Kind PropertyKind `json:"kind"`
}

// Shader is a named shading program. AssetPath is the source file the
// program was authored in; it is empty for programs with no source.
type Shader struct {
	Name       string           `json:"name"`
	AssetPath  string           `json:"assetPath,omitempty"`
	Properties []ShaderProperty `json:"properties,omitempty"`
}

// IsGraph reports whether the program is a graph variant, which is packaged
// with a material property snapshot instead of relying on its source alone.
func (s *Shader) IsGraph() bool { return strings.HasSuffix(s.AssetPath, graphSuffix) }

// Builtin reports whether the program ships with the engine.
func (s *Shader) Builtin() bool {
	return s.AssetPath == "" || strings.HasPrefix(s.AssetPath, BuiltinShaderPrefix)
}

// TextureSlot is a texture binding on a material.
type TextureSlot struct {
	Texture string
	Offset  [2]float32
	Scale   [2]float32
}

// Material holds a shader reference and its parameter values. A nil Shader
// means the reference was lost, typically after deserialization into a host
// that lacks the program.
type Material struct {
	Name     string
	Shader   *Shader
	Colors   map[string][4]float32
	Vectors  map[string][4]float32
	Floats   map[string]float32
	Textures map[string]TextureSlot
}

func NewMaterial(name string, sh *Shader) *Material {
	return &Material{
		Name:     name,
		Shader:   sh,
		Colors:   map[string][4]float32{},
		Vectors:  map[string][4]float32{},
		Floats:   map[string]float32{},
		Textures: map[string]TextureSlot{},
	}
}

// ShaderName is the name of the current program, or "" when unset.
func (m *Material) ShaderName() string {
	if m.Shader == nil {
		return ""
	}
	return m.Shader.Name
}

func (m *Material) SetColor(name string, c [4]float32)  { m.Colors[name] = c }
func (m *Material) SetVector(name string, v [4]float32) { m.Vectors[name] = v }
func (m *Material) SetFloat(name string, f float32)     { m.Floats[name] = f }
func (m *Material) SetTexture(name, texture string) {
	s := m.slot(name)
	s.Texture = texture
	m.Textures[name] = s
}

func (m *Material) SetTextureOffset(name string, off [2]float32) {
	s := m.slot(name)
	s.Offset = off
	m.Textures[name] = s
}

func (m *Material) SetTextureScale(name string, scale [2]float32) {
	s := m.slot(name)
	s.Scale = scale
	m.Textures[name] = s
}

func (m *Material) slot(name string) TextureSlot {
	s, ok := m.Textures[name]
	if !ok {
		s.Scale = [2]float32{1, 1}
	}
	return s
}

func (m *Material) Clone() *Material {
	cp := NewMaterial(m.Name, m.Shader)
	for k, v := range m.Colors {
		cp.Colors[k] = v
	}
	for k, v := range m.Vectors {
		cp.Vectors[k] = v
	}
	for k, v := range m.Floats {
		cp.Floats[k] = v
	}
	for k, v := range m.Textures {
		cp.Textures[k] = v
	}
	return cp
}

// NoLightmap is the lightmap index of renderers outside any baked lightmap.
const NoLightmap = -1

// Renderer draws a node with a list of materials. Mesh renderers are the
// only ones that take part in lightmap binding.
type Renderer struct {
	Mesh                bool
	Materials           []*Material
	LightmapIndex       int
	LightmapScaleOffset [4]float32
}

func NewRenderer(mesh bool, mats ...*Material) *Renderer {
	return &Renderer{
		Mesh:                mesh,
		Materials:           mats,
		LightmapIndex:       NoLightmap,
		LightmapScaleOffset: [4]float32{1, 1, 0, 0},
	}
}

// Clone copies the renderer. Materials are shared, as they are in the
// engine when a prefab is instantiated.
func (r *Renderer) Clone() *Renderer {
	cp := *r
	cp.Materials = append([]*Material(nil), r.Materials...)
	return &cp
}
