package loader

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/tmodkit/internal/sandbox"
	"github.com/keithlinneman/tmodkit/internal/scene"
)

// ShaderResolution records how one shader descriptor was resolved.
type ShaderResolution struct {
	Original string `json:"original"`
	Resolved string `json:"resolved,omitempty"`
	Via      string `json:"via"`
}

// Binding records the outcome of one lightmap node binding.
type Binding struct {
	ObjectPath string `json:"objectPath"`
	Node       string `json:"node,omitempty"`
	Result     string `json:"result"`
}

// Mod is a package that finished loading.
type Mod struct {
	Name     string             `json:"name"`
	Source   string             `json:"source"`
	Roots    []string           `json:"roots"`
	Scripts  []string           `json:"scripts"`
	Shaders  []ShaderResolution `json:"shaders"`
	Removed  []sandbox.Removal  `json:"removed"`
	Bindings []Binding          `json:"lightmapBindings"`
	LoadedAt time.Time          `json:"loadedAt"`

	container *scene.Node
	active    bool
}

// Container is the node every root of the mod is attached under.
func (m Mod) Container() *scene.Node { return m.container }

// Active reports whether the mod was switched on. It reads the snapshot,
// not the scene, so it is safe from any goroutine.
func (m Mod) Active() bool { return m.active }

// Snapshot is an immutable view of the loaded mods.
type Snapshot struct {
	Mods  []Mod
	Ready bool
}

// Collection is the running list of loaded mods. Readers get lock-free
// snapshots; writers copy on write.
type Collection struct {
	mu     sync.Mutex
	active atomic.Pointer[Snapshot]
}

func NewCollection() *Collection {
	c := &Collection{}
	c.active.Store(&Snapshot{})
	return c
}

// Add appends m, or replaces the entry with the same name and returns it.
func (c *Collection) Add(m Mod) (prev Mod, replaced bool) {
	if m.LoadedAt.IsZero() {
		m.LoadedAt = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.active.Load()
	next := &Snapshot{Ready: cur.Ready, Mods: make([]Mod, 0, len(cur.Mods)+1)}
	for _, x := range cur.Mods {
		if x.Name == m.Name && !replaced {
			prev, replaced = x, true
			next.Mods = append(next.Mods, m)
			continue
		}
		next.Mods = append(next.Mods, x)
	}
	if !replaced {
		next.Mods = append(next.Mods, m)
	}
	c.active.Store(next)
	return prev, replaced
}

// MarkReady flags the end of the initial load sequence.
func (c *Collection) MarkReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.active.Load()
	next := *cur
	next.Ready = true
	c.active.Store(&next)
}

func (c *Collection) setActive(name string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.active.Load()
	next := &Snapshot{Ready: cur.Ready, Mods: make([]Mod, len(cur.Mods))}
	copy(next.Mods, cur.Mods)
	for i := range next.Mods {
		if next.Mods[i].Name == name {
			next.Mods[i].active = on
		}
	}
	c.active.Store(next)
}

func (c *Collection) Get() Snapshot { return *c.active.Load() }

func (c *Collection) Ready() bool { return c.active.Load().Ready }

func (c *Collection) Find(name string) (Mod, bool) {
	for _, m := range c.active.Load().Mods {
		if m.Name == name {
			return m, true
		}
	}
	return Mod{}, false
}
