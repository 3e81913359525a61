// Package sandbox re-validates behavior components after a package has been
// instantiated and before anything in it runs. It is a heuristic filter
// over declared type metadata, not a verified sandbox.
package sandbox

import (
	"errors"
	"sync"

	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// ErrUnknownType is returned when a component type has no registration.
var ErrUnknownType = errors.New("unknown component type")

// FieldInfo declares one field of a behavior type, regardless of
// visibility. TypeName is fully qualified.
type FieldInfo struct {
	Name     string
	TypeName string
}

func (f FieldInfo) Namespace() string {
	ns, _ := scene.SplitTypeName(f.TypeName)
	return ns
}

// TypeInfo is the registration record of a behavior type. Everything the
// filter and the harvester need is declared here up front.
type TypeInfo struct {
	FullName string
	// SandboxExcluded types are never packaged and never run inside a mod.
	SandboxExcluded bool
	// ScriptPath is the source file the type is compiled from.
	ScriptPath string
	Fields     []FieldInfo
	// New constructs the behavior; nil registers a type with no logic.
	New func() scene.Behavior
}

func (t TypeInfo) Namespace() string {
	ns, _ := scene.SplitTypeName(t.FullName)
	return ns
}

// Registry maps fully-qualified type names to their registrations.
type Registry struct {
	mu    sync.RWMutex
	types map[string]TypeInfo
	order []string
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]TypeInfo)}
}

func (r *Registry) Register(t TypeInfo) error {
	if t.FullName == "" {
		return xerrors.New("register: empty type name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.FullName]; ok {
		return xerrors.Newf("register %s: already registered", t.FullName)
	}
	r.types[t.FullName] = t
	r.order = append(r.order, t.FullName)
	return nil
}

func (r *Registry) Lookup(name string) (TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Types lists registrations in registration order.
func (r *Registry) Types() []TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeInfo, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.types[n])
	}
	return out
}

// Bind returns a fresh behavior for a registered type and nil otherwise.
// It satisfies scene.Binder.
func (r *Registry) Bind(name string) scene.Behavior {
	t, ok := r.Lookup(name)
	if !ok {
		return nil
	}
	if t.New == nil {
		return scene.Inert{}
	}
	return t.New()
}

// FromDocument registers every type a scene document declares.
func FromDocument(doc *scene.Document) (*Registry, error) {
	r := NewRegistry()
	for _, ts := range doc.Types {
		t := TypeInfo{
			FullName:        ts.Name,
			SandboxExcluded: ts.SandboxExcluded,
			ScriptPath:      doc.Resolve(ts.Script),
		}
		for _, f := range ts.Fields {
			t.Fields = append(t.Fields, FieldInfo{Name: f.Name, TypeName: f.Type})
		}
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
