// Package assetbundle is the compiled asset archive collaborator: the
// builder turns prefab snapshots into one loadable file per prefab, and the
// reader gives back node trees by asset name. Callers treat the files as
// opaque.
package assetbundle

import (
	"context"
	"errors"

	"github.com/keithlinneman/tmodkit/internal/scene"
)

// Ext is the file extension of a compiled asset archive.
const Ext = ".bundle"

// ErrCompilation marks a failure of the host compile step. The build that
// hit it must be rolled back.
var ErrCompilation = errors.New("host compilation failed")

// Prefab is a detached snapshot of one scene root.
type Prefab struct {
	Name string
	Root *scene.Node
}

type Builder interface {
	// Build writes the archives for prefabs into outDir and returns their
	// paths.
	Build(ctx context.Context, outDir, target string, prefabs []Prefab) ([]string, error)
}

type Reader interface {
	Open(path string) (Bundle, error)
}

type Bundle interface {
	AssetNames() []string
	// Load returns the stored tree for name, detached and with components
	// bound through bind. Each call returns a new tree.
	Load(name string, bind scene.Binder) (*scene.Node, error)
	Close() error
}
