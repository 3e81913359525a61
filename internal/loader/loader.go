// Package loader reads .tmod packages from the mods directory and rebuilds
// them inside a host scene, one package at a time. Every component is
// vetted by the sandbox filter before its node is attached anywhere, and a
// package that fails to extract or instantiate is skipped without
// stopping the others.
package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/tmodkit/internal/archive"
	"github.com/keithlinneman/tmodkit/internal/assetbundle"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/pipeline"
	"github.com/keithlinneman/tmodkit/internal/sandbox"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

var (
	ErrExtraction  = errors.New("package extraction failed")
	ErrInstantiate = errors.New("package instantiation failed")
	ErrNotLoaded   = errors.New("mod not loaded")
)

const (
	ModsDirName = "Mods"
	TempDirName = "Temp"
)

// Metrics receives load outcomes. Nil disables recording.
type Metrics interface {
	pipeline.Metrics
	sandbox.Metrics
	ShaderResolved(via string)
	LightmapBinding(result string)
	PackageLoaded(result string)
}

type Options struct {
	// WorkDir contains Mods/ and Temp/.
	WorkDir string
	Limits  archive.Limits
}

// Outcome is the result of one package.
type Outcome struct {
	Name      string
	Err       error
	Abandoned bool
}

// Session is one run of the loader. Shader and property caches live here
// and are shared by every package of the run.
type Session struct {
	opts   Options
	host   *scene.Scene
	lib    scene.ShaderLibrary
	types  *sandbox.Registry
	filter *sandbox.Filter
	reader assetbundle.Reader
	mods   *Collection

	defaultShader *scene.Shader
	frames        pipeline.Frames
	progress      pipeline.Progress
	tp            trace.TracerProvider
	failClosed    bool
	logger        log.Logger
	metrics       Metrics

	shaders    map[string]*scene.Shader
	properties map[string]manifest.MaterialPropertySnapshot
}

type Option func(*Session)

func WithDefaultShader(sh *scene.Shader) Option         { return func(s *Session) { s.defaultShader = sh } }
func WithReader(r assetbundle.Reader) Option            { return func(s *Session) { s.reader = r } }
func WithFrames(f pipeline.Frames) Option               { return func(s *Session) { s.frames = f } }
func WithProgress(p pipeline.Progress) Option           { return func(s *Session) { s.progress = p } }
func WithCollection(c *Collection) Option               { return func(s *Session) { s.mods = c } }
func WithLogger(l log.Logger) Option                    { return func(s *Session) { s.logger = log.OrNop(l) } }
func WithMetrics(m Metrics) Option                      { return func(s *Session) { s.metrics = m } }
func FailClosed(on bool) Option                         { return func(s *Session) { s.failClosed = on } }
func WithTracerProvider(tp trace.TracerProvider) Option { return func(s *Session) { s.tp = tp } }

func NewSession(host *scene.Scene, lib scene.ShaderLibrary, types *sandbox.Registry, o Options, opts ...Option) (*Session, error) {
	if host == nil {
		return nil, xerrors.New("loader: host scene is required")
	}
	if o.WorkDir == "" {
		return nil, xerrors.New("loader: work dir is required")
	}
	if o.Limits == (archive.Limits{}) {
		o.Limits = archive.DefaultLimits
	}
	if lib == nil {
		lib = scene.Shaders{}
	}
	if types == nil {
		types = sandbox.NewRegistry()
	}
	s := &Session{
		opts:       o,
		host:       host,
		lib:        lib,
		types:      types,
		reader:     assetbundle.FileReader{},
		frames:     pipeline.Immediate{},
		logger:     log.Nop(),
		shaders:    map[string]*scene.Shader{},
		properties: map[string]manifest.MaterialPropertySnapshot{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mods == nil {
		s.mods = NewCollection()
	}
	fopts := []sandbox.Option{sandbox.WithLogger(s.logger), sandbox.FailClosed(s.failClosed)}
	if s.metrics != nil {
		fopts = append(fopts, sandbox.WithMetrics(s.metrics))
	}
	s.filter = sandbox.New(types, fopts...)
	return s, nil
}

func (s *Session) Mods() *Collection { return s.mods }

func (s *Session) ModsDir() string { return filepath.Join(s.opts.WorkDir, ModsDirName) }

func (s *Session) TempDir() string { return filepath.Join(s.opts.WorkDir, TempDirName) }

// LoadAll loads every .tmod in the mods directory in name order. Package
// failures are reported in the outcomes; the error is reserved for
// problems with the directories themselves. A missing mods directory is
// created and the run ends with nothing loaded.
func (s *Session) LoadAll(ctx context.Context) ([]Outcome, error) {
	defer s.mods.MarkReady()

	if _, err := os.Stat(s.ModsDir()); os.IsNotExist(err) {
		s.logger.Info(ctx, "mods directory created, nothing to load", "dir", s.ModsDir())
		return nil, xerrors.Wrapf(os.MkdirAll(s.ModsDir(), 0o755), "create %s", s.ModsDir())
	} else if err != nil {
		return nil, xerrors.Wrapf(err, "stat %s", s.ModsDir())
	}
	if err := os.MkdirAll(s.TempDir(), 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", s.TempDir())
	}

	files, err := filepath.Glob(filepath.Join(s.ModsDir(), "*"+archive.Ext))
	if err != nil {
		return nil, xerrors.WithStack(err)
	}
	if len(files) == 0 {
		s.logger.Warn(ctx, "no mods found", "dir", s.ModsDir())
		return nil, nil
	}

	return s.run(ctx, files)
}

// Load loads a single container, for example a release fetched after the
// initial sequence. A mod already loaded under the same name is replaced.
func (s *Session) Load(ctx context.Context, path string) (Outcome, error) {
	if err := os.MkdirAll(s.TempDir(), 0o755); err != nil {
		return Outcome{}, xerrors.Wrapf(err, "create %s", s.TempDir())
	}
	out, err := s.run(ctx, []string{path})
	if len(out) == 0 {
		return Outcome{Name: archive.Name(path)}, err
	}
	return out[0], err
}

func (s *Session) run(ctx context.Context, files []string) ([]Outcome, error) {
	// shader and property caches live for one run so a reload sees the new files
	s.shaders = map[string]*scene.Shader{}
	s.properties = map[string]manifest.MaterialPropertySnapshot{}

	jobs := make([]pipeline.Job, 0, len(files))
	for _, f := range files {
		p := s.newPackage(f)
		jobs = append(jobs, pipeline.Job{Name: p.name, Steps: p.steps()})
	}

	popts := []pipeline.Option{pipeline.WithFrames(s.frames), pipeline.WithLogger(s.logger), pipeline.WithProgress(s.progress)}
	if s.metrics != nil {
		popts = append(popts, pipeline.WithMetrics(s.metrics))
	}
	if s.tp != nil {
		popts = append(popts, pipeline.WithTracerProvider(s.tp))
	}
	results := pipeline.New("load", popts...).Run(ctx, jobs...)

	out := make([]Outcome, 0, len(results))
	for _, r := range results {
		o := Outcome{Name: r.Name, Err: r.Err, Abandoned: r.Abandoned}
		switch {
		case r.OK():
			s.record("ok")
		case r.Abandoned:
			s.logger.Warn(ctx, "package abandoned, scratch files left for the next run", "package", r.Name)
			s.record("abandoned")
		default:
			s.logger.Error(ctx, r.Err, "package skipped", "package", r.Name)
			s.record("skipped")
		}
		out = append(out, o)
	}
	// jobs never started after cancellation have no result
	if len(results) < len(jobs) || (len(results) > 0 && results[len(results)-1].Abandoned) {
		if err := ctx.Err(); err != nil {
			return out, xerrors.Wrap(err, "load interrupted")
		}
		return out, xerrors.New("load interrupted")
	}
	return out, nil
}

func (s *Session) record(result string) {
	if s.metrics != nil {
		s.metrics.PackageLoaded(result)
	}
}

// Activate switches a loaded mod on. Its surviving components wake.
func (s *Session) Activate(name string) error {
	m, ok := s.mods.Find(name)
	if !ok {
		return xerrors.Mark(xerrors.Newf("activate %s", name), ErrNotLoaded)
	}
	m.container.SetActive(true)
	s.mods.setActive(name, true)
	return nil
}
