package scene

import (
	"strings"

	"github.com/keithlinneman/tmodkit/internal/manifest"
)

// Behavior is the user logic bound to a component. Awake is the first
// lifecycle callback and fires once, when the component's node becomes
// active in the hierarchy.
type Behavior interface {
	Awake(c *Component)
}

// Inert is a Behavior that does nothing.
type Inert struct{}

func (Inert) Awake(*Component) {}

// Component is one behavior instance on a node. TypeName is the declared
// fully-qualified type; Behavior is nil when the host has no implementation
// for it, and such a component never runs.
type Component struct {
	TypeName string
	Behavior Behavior

	node      *Node
	destroyed bool
	awake     bool
}

// Namespace is everything before the last dot of TypeName.
func (c *Component) Namespace() string {
	ns, _ := SplitTypeName(c.TypeName)
	return ns
}

func (c *Component) Node() *Node     { return c.node }
func (c *Component) Destroyed() bool { return c.destroyed }
func (c *Component) Awakened() bool  { return c.awake }

// Destroy detaches the component from its node. A destroyed component
// never receives lifecycle callbacks.
func (c *Component) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	if c.node == nil {
		return
	}
	comps := c.node.components[:0]
	for _, x := range c.node.components {
		if x != c {
			comps = append(comps, x)
		}
	}
	c.node.components = comps
}

func (c *Component) wake() {
	if c.destroyed || c.awake || c.Behavior == nil {
		return
	}
	c.awake = true
	c.Behavior.Awake(c)
}

// SplitTypeName splits "A.B.Type" into "A.B" and "Type".
func SplitTypeName(full string) (namespace, name string) {
	i := strings.LastIndex(full, ".")
	if i < 0 {
		return "", full
	}
	return full[:i], full[i+1:]
}

// Node is one element of the scene hierarchy.
type Node struct {
	Name string
	// Descriptor marks the node that describes the package itself; it is
	// never packaged.
	Descriptor bool
	Renderer   *Renderer

	active     bool
	inScene    bool
	parent     *Node
	children   []*Node
	components []*Component
}

// NewNode returns an active, parentless node.
func NewNode(name string) *Node { return &Node{Name: name, active: true} }

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

func (n *Node) Components() []*Component {
	out := make([]*Component, len(n.components))
	copy(out, n.components)
	return out
}

// AddComponent attaches a new component of the given type.
func (n *Node) AddComponent(typeName string, b Behavior) *Component {
	c := &Component{TypeName: typeName, Behavior: b, node: n}
	n.components = append(n.components, c)
	if n.ActiveInHierarchy() && n.attached() {
		c.wake()
	}
	return c
}

// AddChild reparents child under n.
func (n *Node) AddChild(child *Node) {
	if child.parent != nil {
		child.parent.removeChild(child)
	}
	child.parent = n
	n.children = append(n.children, child)
	if child.ActiveInHierarchy() && child.attached() {
		child.wakeTree()
	}
}

func (n *Node) removeChild(child *Node) {
	kids := n.children[:0]
	for _, c := range n.children {
		if c != child {
			kids = append(kids, c)
		}
	}
	n.children = kids
	child.parent = nil
}

// Child returns the first direct child with the given name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindPath follows a "/"-separated chain of child names from n.
func (n *Node) FindPath(p string) *Node {
	cur := n
	for _, name := range manifest.SplitPath(p) {
		if cur = cur.Child(name); cur == nil {
			return nil
		}
	}
	if cur == n {
		return nil
	}
	return cur
}

// Path is the root-to-node name chain.
func (n *Node) Path() string {
	var names []string
	for cur := n; cur != nil; cur = cur.parent {
		names = append(names, cur.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return manifest.JoinPath(names...)
}

// Walk visits n and every descendant depth first, including inactive ones.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Active reports the node's own flag.
func (n *Node) Active() bool { return n.active }

// ActiveInHierarchy is true when n and all its ancestors are active.
func (n *Node) ActiveInHierarchy() bool {
	for cur := n; cur != nil; cur = cur.parent {
		if !cur.active {
			return false
		}
	}
	return true
}

// SetActive toggles the node. Activating a subtree wakes its components.
func (n *Node) SetActive(active bool) {
	n.active = active
	if active && n.ActiveInHierarchy() && n.attached() {
		n.wakeTree()
	}
}

// attached nodes live under a root that belongs to a scene. Detached trees
// (fresh instantiations) never run behavior.
func (n *Node) attached() bool {
	root := n
	for root.parent != nil {
		root = root.parent
	}
	return root.inScene
}

func (n *Node) wakeTree() {
	if !n.active {
		return
	}
	for _, c := range n.Components() {
		c.wake()
	}
	for _, c := range n.children {
		c.wakeTree()
	}
}

// Clone deep-copies the subtree. Clones are parentless and detached and
// share Behavior values with the source.
func (n *Node) Clone() *Node {
	cp := &Node{Name: n.Name, Descriptor: n.Descriptor, active: n.active}
	if n.Renderer != nil {
		cp.Renderer = n.Renderer.Clone()
	}
	for _, c := range n.components {
		cp.components = append(cp.components, &Component{TypeName: c.TypeName, Behavior: c.Behavior, node: cp})
	}
	for _, c := range n.children {
		cc := c.Clone()
		cc.parent = cp
		cp.children = append(cp.children, cc)
	}
	return cp
}

// CloneSuffix is appended to the name of an instantiated copy.
const CloneSuffix = "(Clone)"

// Instantiate clones a prefab tree the way the engine does, suffixing the
// root name.
func Instantiate(prefab *Node) *Node {
	n := prefab.Clone()
	n.Name += CloneSuffix
	return n
}
