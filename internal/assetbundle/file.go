package assetbundle

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"

	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// CompileFunc checks the prefabs before anything is written. An error
// fails the build as a host compilation failure.
type CompileFunc func(ctx context.Context, prefabs []Prefab) error

// FileBuilder writes each prefab as <name>.bundle: a gzip stream holding a
// JSON snapshot of the tree.
type FileBuilder struct {
	Compile CompileFunc
}

func (b FileBuilder) Build(ctx context.Context, outDir, target string, prefabs []Prefab) ([]string, error) {
	if b.Compile != nil {
		if err := b.Compile(ctx, prefabs); err != nil {
			return nil, xerrors.Mark(xerrors.Wrap(err, "compile"), ErrCompilation)
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", outDir)
	}
	var out []string
	for _, p := range prefabs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		path := filepath.Join(outDir, p.Name+Ext)
		rec := archiveRecord{Target: target, Assets: []assetRecord{{Name: p.Name, Root: snapshotNode(p.Root)}}}
		if err := writeArchive(path, rec); err != nil {
			return out, err
		}
		out = append(out, path)
	}
	return out, nil
}

func writeArchive(path string, rec archiveRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Wrapf(err, "create %s", path)
	}
	gw := gzip.NewWriter(f)
	if err := json.NewEncoder(gw).Encode(rec); err != nil {
		gw.Close()
		f.Close()
		return xerrors.Wrapf(err, "encode %s", path)
	}
	if err := gw.Close(); err != nil {
		f.Close()
		return xerrors.Wrapf(err, "compress %s", path)
	}
	return xerrors.WithStack(f.Close())
}

// RequireRegistered is a CompileFunc that fails when a prefab references a
// component type the host cannot compile.
func RequireRegistered(known func(typeName string) bool) CompileFunc {
	return func(_ context.Context, prefabs []Prefab) error {
		missing := map[string]bool{}
		for _, p := range prefabs {
			p.Root.Walk(func(n *scene.Node) {
				for _, c := range n.Components() {
					if !known(c.TypeName) {
						missing[c.TypeName] = true
					}
				}
			})
		}
		if len(missing) == 0 {
			return nil
		}
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return xerrors.Newf("unresolved component types: %v", names)
	}
}

// FileReader opens archives written by FileBuilder.
type FileReader struct{}

func (FileReader) Open(path string) (Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.WithStack(err)
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open %s", path)
	}
	defer gr.Close()

	var rec archiveRecord
	if err := json.NewDecoder(gr).Decode(&rec); err != nil {
		return nil, xerrors.Wrapf(err, "decode %s", path)
	}
	return &fileBundle{rec: rec}, nil
}

type fileBundle struct {
	rec    archiveRecord
	closed bool
}

func (b *fileBundle) AssetNames() []string {
	names := make([]string, 0, len(b.rec.Assets))
	for _, a := range b.rec.Assets {
		names = append(names, a.Name)
	}
	return names
}

func (b *fileBundle) Load(name string, bind scene.Binder) (*scene.Node, error) {
	if b.closed {
		return nil, xerrors.New("bundle closed")
	}
	for _, a := range b.rec.Assets {
		if a.Name == name {
			mz := &materializer{bind: bind, shaders: map[string]*scene.Shader{}}
			return mz.node(a.Root), nil
		}
	}
	return nil, xerrors.Newf("asset %s not in bundle", name)
}

func (b *fileBundle) Close() error {
	b.closed = true
	return nil
}
