package scene

import "image"

// Lightmap is one baked lighting texture pair. Either image may be nil.
type Lightmap struct {
	Color image.Image
	Dir   image.Image
}

// Scene is a set of root nodes plus the global lightmap array.
type Scene struct {
	Name      string
	Lightmaps []Lightmap

	roots []*Node
}

func New(name string) *Scene { return &Scene{Name: name} }

// AddRoot attaches n as a root. Active components under it wake.
func (s *Scene) AddRoot(n *Node) {
	if n.parent != nil {
		n.parent.removeChild(n)
	}
	n.inScene = true
	s.roots = append(s.roots, n)
	if n.active {
		n.wakeTree()
	}
}

// RemoveRoot detaches n from the scene. It reports whether n was a root.
func (s *Scene) RemoveRoot(n *Node) bool {
	for i, r := range s.roots {
		if r == n {
			s.roots = append(s.roots[:i], s.roots[i+1:]...)
			n.inScene = false
			return true
		}
	}
	return false
}

func (s *Scene) Roots() []*Node {
	out := make([]*Node, len(s.roots))
	copy(out, s.roots)
	return out
}

// ContentRoots are the roots that make up a mod: every root except the
// package descriptor.
func (s *Scene) ContentRoots() []*Node {
	var out []*Node
	for _, r := range s.roots {
		if !r.Descriptor {
			out = append(out, r)
		}
	}
	return out
}

// SetLightmaps replaces the global lightmap array.
func (s *Scene) SetLightmaps(lms []Lightmap) { s.Lightmaps = lms }

// Renderers returns every renderer under n, including inactive nodes.
func Renderers(n *Node) []*Node {
	var out []*Node
	n.Walk(func(x *Node) {
		if x.Renderer != nil {
			out = append(out, x)
		}
	})
	return out
}

// ShaderLibrary resolves shading programs available in the host by name.
type ShaderLibrary interface {
	Find(name string) *Shader
}

// Shaders is a map-backed ShaderLibrary.
type Shaders map[string]*Shader

func (s Shaders) Find(name string) *Shader { return s[name] }

// Add registers sh under its own name.
func (s Shaders) Add(sh *Shader) { s[sh.Name] = sh }
