package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keithlinneman/tmodkit/internal/archive"
	"github.com/keithlinneman/tmodkit/internal/assetbundle"
	"github.com/keithlinneman/tmodkit/internal/harvest"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/pipeline"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

type buildState struct {
	b           *Builder
	h           *harvest.Harvester
	outputs     archive.Outputs
	prefabs     []assetbundle.Prefab
	prefabNames []string
	bundles     []string
	manifest    manifest.PackageManifest
}

func cont(err error) (pipeline.Status, error) { return pipeline.Continue, err }

func (s *buildState) steps() []pipeline.Step {
	return []pipeline.Step{
		{Name: "prepare", Run: s.prepare},
		{Name: "prefabs", Run: s.snapshotPrefabs},
		{Name: "assets", Run: s.buildAssets},
		{Name: "remove-stale", Run: s.removeStale},
		{Name: "lightmaps", Run: s.lightmaps},
		{Name: "scripts", Run: s.scripts},
		{Name: "shaders", Run: s.shaders},
		{Name: "zip", Run: s.zip},
		{Name: "remove-mod-dir", Run: s.removeModDir},
		{Name: "reverse", Run: s.reverse},
		{Name: "notify", Run: s.notifyComplete},
		{Name: "cleanup", Always: true, Run: s.cleanup},
	}
}

func (s *buildState) prepare(context.Context) (pipeline.Status, error) {
	if err := os.MkdirAll(s.b.modDir(), 0o755); err != nil {
		return cont(xerrors.Wrapf(err, "create %s", s.b.modDir()))
	}
	if err := os.RemoveAll(s.b.opts.ScratchDir); err != nil {
		return cont(xerrors.Wrapf(err, "clear %s", s.b.opts.ScratchDir))
	}
	return cont(xerrors.WithStack(os.MkdirAll(s.b.opts.ScratchDir, 0o755)))
}

// snapshotPrefabs copies each content root, strips sandbox-excluded
// components from the copy and saves it to the scratch directory.
func (s *buildState) snapshotPrefabs(ctx context.Context) (pipeline.Status, error) {
	roots := s.b.scene.ContentRoots()
	s.b.logger.Info(ctx, "snapshotting roots", log.ModKey, s.b.opts.Name, "roots", len(roots))
	for _, r := range roots {
		cp := r.Clone()
		cp.Walk(func(n *scene.Node) {
			for _, c := range n.Components() {
				if t, ok := s.b.types.Lookup(c.TypeName); ok && t.SandboxExcluded {
					c.Destroy()
				}
			}
		})
		raw, err := scene.MarshalNode(cp)
		if err != nil {
			return cont(err)
		}
		path := filepath.Join(s.b.opts.ScratchDir, PrefabFile(r.Name))
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return cont(xerrors.Wrapf(err, "write prefab %s", path))
		}
		s.prefabs = append(s.prefabs, assetbundle.Prefab{Name: r.Name, Root: cp})
		s.prefabNames = append(s.prefabNames, r.Name)
	}
	return cont(nil)
}

// buildAssets rolls the mod directory back when the host fails to compile.
func (s *buildState) buildAssets(ctx context.Context) (pipeline.Status, error) {
	paths, err := s.b.assets.Build(ctx, s.b.modDir(), s.b.opts.Target, s.prefabs)
	if err == nil {
		s.bundles = paths
		return cont(nil)
	}
	if errors.Is(err, ErrHostCompilation) {
		s.b.notifier.Notify(ctx, TitleCompileFailed,
			"Map failed to compile because there were compilation errors. Fix the issues and try again.")
	}
	if rmErr := os.RemoveAll(s.b.modDir()); rmErr != nil {
		err = errors.Join(err, xerrors.Wrapf(rmErr, "roll back %s", s.b.modDir()))
	}
	return cont(err)
}

func (s *buildState) removeStale(context.Context) (pipeline.Status, error) {
	return cont(errors.Join(removeIfExists(s.outputs.Readable), removeIfExists(s.outputs.Mod)))
}

func (s *buildState) lightmaps(ctx context.Context) (pipeline.Status, error) {
	m, err := s.h.Lightmaps(ctx, s.b.modDir())
	s.manifest.Lightmaps = m
	return cont(err)
}

func (s *buildState) scripts(ctx context.Context) (pipeline.Status, error) {
	m, err := s.h.Scripts(ctx, s.b.modDir())
	s.manifest.Scripts = m
	return cont(err)
}

func (s *buildState) shaders(ctx context.Context) (pipeline.Status, error) {
	m, err := s.h.Shaders(ctx, s.b.modDir())
	s.manifest.Shaders = m
	return cont(err)
}

func (s *buildState) zip(context.Context) (pipeline.Status, error) {
	if err := archive.Pack(s.b.modDir(), s.outputs.Mod); err != nil {
		return cont(err)
	}
	return cont(archive.Pack(s.b.modDir(), s.outputs.Readable))
}

func (s *buildState) removeModDir(context.Context) (pipeline.Status, error) {
	return cont(xerrors.WithStack(os.RemoveAll(s.b.modDir())))
}

func (s *buildState) reverse(context.Context) (pipeline.Status, error) {
	return cont(archive.ReverseFile(s.outputs.Mod))
}

func (s *buildState) notifyComplete(ctx context.Context) (pipeline.Status, error) {
	s.b.notifier.Notify(ctx, TitleComplete,
		fmt.Sprintf("Bundle finished, exported as %s", filepath.Base(s.outputs.Mod)))
	return cont(nil)
}

func (s *buildState) cleanup(context.Context) (pipeline.Status, error) {
	return cont(xerrors.WithStack(os.RemoveAll(s.b.opts.ScratchDir)))
}
