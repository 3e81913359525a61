package assetbundle

import (
	"github.com/keithlinneman/tmodkit/internal/scene"
)

type archiveRecord struct {
	Target string        `json:"target"`
	Assets []assetRecord `json:"assets"`
}

type assetRecord struct {
	Name string     `json:"name"`
	Root nodeRecord `json:"root"`
}

type nodeRecord struct {
	Name       string          `json:"name"`
	Active     bool            `json:"active"`
	Components []string        `json:"components,omitempty"`
	Renderer   *rendererRecord `json:"renderer,omitempty"`
	Children   []nodeRecord    `json:"children,omitempty"`
}

type rendererRecord struct {
	Mesh          bool             `json:"mesh"`
	LightmapIndex int              `json:"lightmapIndex"`
	ScaleOffset   [4]float32       `json:"scaleOffset"`
	Materials     []materialRecord `json:"materials"`
}

// materialRecord keeps the program by name only; the host resolves it
// again at load time.
type materialRecord struct {
	Name     string                   `json:"name"`
	Shader   string                   `json:"shader,omitempty"`
	Colors   map[string][4]float32    `json:"colors,omitempty"`
	Vectors  map[string][4]float32    `json:"vectors,omitempty"`
	Floats   map[string]float32       `json:"floats,omitempty"`
	Textures map[string]textureRecord `json:"textures,omitempty"`
}

type textureRecord struct {
	Texture string     `json:"texture,omitempty"`
	Offset  [2]float32 `json:"offset"`
	Scale   [2]float32 `json:"scale"`
}

func snapshotNode(n *scene.Node) nodeRecord {
	rec := nodeRecord{Name: n.Name, Active: n.Active()}
	for _, c := range n.Components() {
		rec.Components = append(rec.Components, c.TypeName)
	}
	if r := n.Renderer; r != nil {
		rr := &rendererRecord{Mesh: r.Mesh, LightmapIndex: r.LightmapIndex, ScaleOffset: r.LightmapScaleOffset}
		for _, m := range r.Materials {
			if m == nil {
				continue
			}
			rr.Materials = append(rr.Materials, snapshotMaterial(m))
		}
		rec.Renderer = rr
	}
	for _, c := range n.Children() {
		rec.Children = append(rec.Children, snapshotNode(c))
	}
	return rec
}

func snapshotMaterial(m *scene.Material) materialRecord {
	mr := materialRecord{
		Name:    m.Name,
		Shader:  m.ShaderName(),
		Colors:  m.Colors,
		Vectors: m.Vectors,
		Floats:  m.Floats,
	}
	if len(m.Textures) > 0 {
		mr.Textures = make(map[string]textureRecord, len(m.Textures))
		for k, s := range m.Textures {
			mr.Textures[k] = textureRecord{Texture: s.Texture, Offset: s.Offset, Scale: s.Scale}
		}
	}
	return mr
}

// materializer rebuilds nodes from records. Materials and programs are
// shared across one Load so renderers that shared a material still do.
type materializer struct {
	bind    scene.Binder
	shaders map[string]*scene.Shader
}

func (mz *materializer) node(rec nodeRecord) *scene.Node {
	n := scene.NewNode(rec.Name)
	for _, t := range rec.Components {
		var b scene.Behavior
		if mz.bind != nil {
			b = mz.bind(t)
		}
		n.AddComponent(t, b)
	}
	if rr := rec.Renderer; rr != nil {
		r := scene.NewRenderer(rr.Mesh)
		r.LightmapIndex = rr.LightmapIndex
		r.LightmapScaleOffset = rr.ScaleOffset
		for _, mr := range rr.Materials {
			r.Materials = append(r.Materials, mz.material(mr))
		}
		n.Renderer = r
	}
	for _, c := range rec.Children {
		n.AddChild(mz.node(c))
	}
	n.SetActive(rec.Active)
	return n
}

func (mz *materializer) material(mr materialRecord) *scene.Material {
	m := scene.NewMaterial(mr.Name, mz.shader(mr.Shader))
	for k, v := range mr.Colors {
		m.SetColor(k, v)
	}
	for k, v := range mr.Vectors {
		m.SetVector(k, v)
	}
	for k, v := range mr.Floats {
		m.SetFloat(k, v)
	}
	for k, t := range mr.Textures {
		m.Textures[k] = scene.TextureSlot{Texture: t.Texture, Offset: t.Offset, Scale: t.Scale}
	}
	return m
}

// a material stored without a program comes back with a nil one
func (mz *materializer) shader(name string) *scene.Shader {
	if name == "" {
		return nil
	}
	if sh, ok := mz.shaders[name]; ok {
		return sh
	}
	sh := &scene.Shader{Name: name}
	mz.shaders[name] = sh
	return sh
}
