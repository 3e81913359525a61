package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/keithlinneman/tmodkit/internal/archive"
	"github.com/keithlinneman/tmodkit/internal/assetbundle"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/pathutil"
	"github.com/keithlinneman/tmodkit/internal/pipeline"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// pkg carries one package through its stages.
type pkg struct {
	s      *Session
	path   string
	name   string
	logger log.Logger

	dir       string
	clean     string
	container *scene.Node
	roots     []*scene.Node
	mod       Mod
}

func (s *Session) newPackage(path string) *pkg {
	name := archive.Name(path)
	return &pkg{
		s:         s,
		path:      path,
		name:      name,
		logger:    log.ForMod(s.logger, name),
		container: scene.NewNode(name),
		mod:       Mod{Name: name, Source: path},
	}
}

func (p *pkg) steps() []pipeline.Step {
	return []pipeline.Step{
		{Name: "extract", Run: p.extract},
		{Name: "shaders", Run: p.loadShaders},
		{Name: "scripts", Run: p.inventoryScripts},
		{Name: "instantiate", Run: p.instantiate},
		{Name: "lightmaps", Run: p.loadLightmaps},
		{Name: "apply-shaders", Run: p.applyShaders},
		{Name: "cleanup", Always: true, Run: p.cleanup},
		{Name: "register", Run: p.register},
	}
}

func (p *pkg) extract(ctx context.Context) (pipeline.Status, error) {
	dir, clean, err := archive.Decode(p.path, p.s.TempDir(), p.s.opts.Limits)
	p.dir, p.clean = dir, clean
	if err != nil {
		return pipeline.Continue, xerrors.Mark(err, ErrExtraction)
	}
	p.logger.Debug(ctx, "package extracted", "dir", dir)
	return pipeline.Yield, nil
}

func (p *pkg) loadShaders(ctx context.Context) (pipeline.Status, error) {
	m, err := manifest.ReadShaders(p.dir)
	if err != nil {
		p.skipManifest(ctx, "shader", err)
		return pipeline.Continue, nil
	}
	shadersDir := filepath.Join(p.dir, manifest.ShadersDir)
	for _, d := range m.Shaders {
		file, err := pathutil.SafeJoin(shadersDir, d.ShaderName)
		if err != nil {
			p.logger.Warn(ctx, "shader entry rejected", "shader", d.ShaderName, "err", err)
			continue
		}
		if _, err := os.Stat(file); err != nil {
			p.logger.Warn(ctx, "shader file not found", "shader", d.ShaderName, "err", manifest.ErrAssetMissing)
			continue
		}
		r := p.s.resolveShader(ctx, p.logger, d)
		p.mod.Shaders = append(p.mod.Shaders, r)
		if r.Via == ViaUnresolved || !d.IsShaderGraph {
			continue
		}
		p.s.cacheProperties(ctx, p.logger, p.dir, d)
	}
	return pipeline.Yield, nil
}

// inventoryScripts lists the shipped scripts. Behavior comes from the type
// registry; the sources are only checked for presence.
func (p *pkg) inventoryScripts(ctx context.Context) (pipeline.Status, error) {
	m, err := manifest.ReadScripts(p.dir)
	if err != nil {
		p.skipManifest(ctx, "script", err)
		return pipeline.Continue, nil
	}
	scriptsDir := filepath.Join(p.dir, manifest.ScriptsDir)
	for _, d := range m.Scripts {
		file, err := pathutil.SafeJoin(scriptsDir, d.ScriptName)
		if err == nil {
			_, err = os.Stat(file)
		}
		if err != nil {
			p.logger.Warn(ctx, "script file not found", "script", d.ScriptName, "err", manifest.ErrAssetMissing)
			continue
		}
		p.logger.Debug(ctx, "found script", "script", d.ScriptName, "class", d.ClassName)
		p.mod.Scripts = append(p.mod.Scripts, d.ClassName)
	}
	return pipeline.Continue, nil
}

// instantiate loads every node tree from the package's asset archives and
// filters it while still detached. Any archive that cannot be read fails
// the package.
func (p *pkg) instantiate(ctx context.Context) (pipeline.Status, error) {
	files, err := filepath.Glob(filepath.Join(p.dir, "*"+assetbundle.Ext))
	if err != nil {
		return pipeline.Continue, xerrors.Mark(xerrors.WithStack(err), ErrInstantiate)
	}
	sort.Strings(files)
	if len(files) == 0 {
		p.logger.Warn(ctx, "package has no asset archives")
	}
	for _, f := range files {
		roots, err := p.loadArchive(ctx, f)
		if err != nil {
			return pipeline.Continue, xerrors.Mark(err, ErrInstantiate)
		}
		p.roots = append(p.roots, roots...)
	}

	for _, r := range p.roots {
		p.container.AddChild(r)
		p.mod.Roots = append(p.mod.Roots, r.Name)
	}
	p.assignDefaultShader(ctx)
	return pipeline.Yield, nil
}

func (p *pkg) loadArchive(ctx context.Context, path string) ([]*scene.Node, error) {
	b, err := p.s.reader.Open(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open %s", filepath.Base(path))
	}
	defer b.Close()

	var out []*scene.Node
	for _, name := range b.AssetNames() {
		prefab, err := b.Load(name, p.s.types.Bind)
		if err != nil {
			return nil, xerrors.Wrapf(err, "load %s from %s", name, filepath.Base(path))
		}
		n := scene.Instantiate(prefab)
		n.Name = strings.ReplaceAll(n.Name, scene.CloneSuffix, "")

		rep := p.s.filter.Apply(ctx, n)
		p.mod.Removed = append(p.mod.Removed, rep.Removed...)
		p.logger.Info(ctx, "instantiated", "root", n.Name,
			"components", rep.Inspected, "removed", len(rep.Removed), "filter_errors", rep.Errors)
		out = append(out, n)
	}
	p.logger.Debug(ctx, "loaded asset archive", "archive", filepath.Base(path), "assets", len(out))
	return out, nil
}

func (p *pkg) assignDefaultShader(ctx context.Context) {
	if p.s.defaultShader == nil {
		return
	}
	for _, n := range scene.Renderers(p.container) {
		for _, m := range n.Renderer.Materials {
			if m != nil && m.Shader == nil {
				m.Shader = p.s.defaultShader
				p.logger.Debug(ctx, "default shader assigned", "material", m.Name, "node", n.Path())
			}
		}
	}
}

func (p *pkg) loadLightmaps(ctx context.Context) (pipeline.Status, error) {
	m, err := manifest.ReadLightmaps(p.dir)
	if err != nil {
		p.skipManifest(ctx, "lightmap", err)
		return pipeline.Continue, nil
	}
	lms := p.s.decodeLightmaps(ctx, p.logger, filepath.Join(p.dir, manifest.LightmapsDir), m.Lightmaps)
	p.s.host.SetLightmaps(lms)

	for _, b := range m.Renderers {
		node, result := resolveBinding(p.container, b.ObjectPath)
		rec := Binding{ObjectPath: b.ObjectPath, Result: result}
		switch {
		case node == nil:
			p.logger.Warn(ctx, "lightmap target not found", "object", b.ObjectPath,
				"searched", manifest.StripRoot(b.ObjectPath), "err", errResolutionMiss)
		case node.Renderer == nil || !node.Renderer.Mesh:
			p.logger.Debug(ctx, "lightmap target has no mesh renderer", "object", b.ObjectPath)
		default:
			node.Renderer.LightmapIndex = b.LightmapIndex
			node.Renderer.LightmapScaleOffset = b.LightmapScaleOffset
			rec.Node = node.Path()
			p.logger.Info(ctx, "applied lightmap", "object", b.ObjectPath, "node", rec.Node, "via", result)
		}
		p.mod.Bindings = append(p.mod.Bindings, rec)
		if p.s.metrics != nil {
			p.s.metrics.LightmapBinding(result)
		}
	}
	return pipeline.Yield, nil
}

func (p *pkg) applyShaders(ctx context.Context) (pipeline.Status, error) {
	p.s.applyShaders(ctx, p.logger, p.container)
	return pipeline.Continue, nil
}

// cleanup never fails the package; leftovers are replaced next run.
func (p *pkg) cleanup(ctx context.Context) (pipeline.Status, error) {
	var errs []error
	if p.dir != "" {
		errs = append(errs, os.RemoveAll(p.dir))
	}
	if p.clean != "" {
		if err := os.Remove(p.clean); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.Warn(ctx, "scratch cleanup failed", "err", err)
	}
	return pipeline.Continue, nil
}

// register parks the container in the host scene switched off so nothing
// runs until the mod is activated.
func (p *pkg) register(ctx context.Context) (pipeline.Status, error) {
	p.container.SetActive(false)
	p.s.host.AddRoot(p.container)
	p.mod.container = p.container
	if prev, ok := p.s.mods.Add(p.mod); ok && prev.container != nil {
		// a newer release of the same mod retires the old container
		prev.container.SetActive(false)
		p.s.host.RemoveRoot(prev.container)
		p.logger.Info(ctx, "replaced previously loaded mod", "loaded_at", prev.LoadedAt)
	}
	p.logger.Info(ctx, "package loaded", "roots", len(p.mod.Roots),
		"removed", len(p.mod.Removed), "shaders", len(p.mod.Shaders), "bindings", len(p.mod.Bindings))
	return pipeline.Continue, nil
}

// skipManifest demotes a missing or unreadable manifest to a log line.
func (p *pkg) skipManifest(ctx context.Context, kind string, err error) {
	if errors.Is(err, manifest.ErrAssetMissing) {
		p.logger.Debug(ctx, "no manifest", "kind", kind)
		return
	}
	p.logger.Warn(ctx, "manifest unreadable", "kind", kind, "err", err)
}
