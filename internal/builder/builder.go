// Package builder turns the content of a scene into a distributable mod:
// prefab snapshots go through the asset archive builder, scripts, shaders
// and lightmaps are harvested next to them, and the whole directory is
// zipped, reversed and removed.
package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/tmodkit/internal/archive"
	"github.com/keithlinneman/tmodkit/internal/assetbundle"
	"github.com/keithlinneman/tmodkit/internal/harvest"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/pipeline"
	"github.com/keithlinneman/tmodkit/internal/sandbox"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// ErrHostCompilation is the build failure that triggers a rollback.
var ErrHostCompilation = assetbundle.ErrCompilation

// Notification titles shown at the end of a build.
const (
	TitleComplete      = "Bundle Complete"
	TitleCompileFailed = "Compilation Failed"
)

// Notifier is told how a build ended. It stands in for a modal dialog in
// an interactive host.
type Notifier interface {
	Notify(ctx context.Context, title, message string)
}

type NotifierFunc func(ctx context.Context, title, message string)

func (f NotifierFunc) Notify(ctx context.Context, title, message string) { f(ctx, title, message) }

type Metrics interface {
	harvest.Metrics
	pipeline.Metrics
	BuildFinished(result string)
}

type Options struct {
	// Name of the mod; it names the output files.
	Name string
	// OutputDir receives <Name>.tmod and <Name>.readable. The mod
	// directory is staged at <OutputDir>/<Name> and removed afterwards.
	OutputDir string
	// ScratchDir holds prefab snapshots during the build and is removed
	// at the end, whatever the outcome.
	ScratchDir string
	// Target is the platform label handed to the asset archive builder.
	Target string
}

type Result struct {
	Outputs  archive.Outputs
	Manifest manifest.PackageManifest
	Harvest  harvest.Report
	Bundles  []string
	Prefabs  []string
}

type Builder struct {
	opts     Options
	scene    *scene.Scene
	types    *sandbox.Registry
	assets   assetbundle.Builder
	notifier Notifier
	logger   log.Logger
	metrics  Metrics
	progress pipeline.Progress
	tp       trace.TracerProvider
}

type Option func(*Builder)

func WithNotifier(n Notifier) Option                    { return func(b *Builder) { b.notifier = n } }
func WithLogger(l log.Logger) Option                    { return func(b *Builder) { b.logger = log.OrNop(l) } }
func WithMetrics(m Metrics) Option                      { return func(b *Builder) { b.metrics = m } }
func WithProgress(p pipeline.Progress) Option           { return func(b *Builder) { b.progress = p } }
func WithTracerProvider(tp trace.TracerProvider) Option { return func(b *Builder) { b.tp = tp } }

func New(s *scene.Scene, types *sandbox.Registry, assets assetbundle.Builder, o Options, opts ...Option) (*Builder, error) {
	var errs []error
	if s == nil {
		errs = append(errs, errors.New("scene is required"))
	}
	if assets == nil {
		errs = append(errs, errors.New("asset archive builder is required"))
	}
	if o.Name == "" {
		errs = append(errs, errors.New("mod name is required"))
	}
	if o.OutputDir == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, xerrors.Wrap(err, "builder")
	}
	if o.ScratchDir == "" {
		o.ScratchDir = filepath.Join(o.OutputDir, "."+o.Name+"-prefabs")
	}
	if types == nil {
		types = sandbox.NewRegistry()
	}
	b := &Builder{
		opts:     o,
		scene:    s,
		types:    types,
		assets:   assets,
		notifier: NotifierFunc(func(context.Context, string, string) {}),
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Builder) modDir() string { return filepath.Join(b.opts.OutputDir, b.opts.Name) }

// Build runs every stage once. A host compilation failure removes the mod
// directory and is reported through the Notifier; any failure skips the
// remaining stages except scratch cleanup.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	st := &buildState{b: b, outputs: archive.OutputPaths(b.opts.OutputDir, b.opts.Name)}
	h := harvest.New(b.scene, b.types, harvest.WithLogger(b.logger), harvest.WithMetrics(metricsOrNil(b.metrics)))
	st.h = h

	popts := []pipeline.Option{pipeline.WithLogger(b.logger), pipeline.WithProgress(b.progress)}
	if b.metrics != nil {
		popts = append(popts, pipeline.WithMetrics(b.metrics))
	}
	if b.tp != nil {
		popts = append(popts, pipeline.WithTracerProvider(b.tp))
	}
	res := pipeline.New("build", popts...).Run(ctx, pipeline.Job{Name: b.opts.Name, Steps: st.steps()})[0]

	out := Result{
		Outputs:  st.outputs,
		Manifest: st.manifest,
		Harvest:  h.Report(),
		Bundles:  st.bundles,
		Prefabs:  st.prefabNames,
	}
	result := "ok"
	switch {
	case errors.Is(res.Err, ErrHostCompilation):
		result = "compile_failed"
	case !res.OK():
		result = "error"
	}
	if b.metrics != nil {
		b.metrics.BuildFinished(result)
	}
	if !res.OK() {
		err := res.Err
		if err == nil {
			err = xerrors.Newf("build %s abandoned", b.opts.Name)
		}
		b.logger.Error(ctx, err, "build failed", log.ModKey, b.opts.Name)
		return out, err
	}
	b.logger.Info(ctx, "build complete", log.ModKey, b.opts.Name, "output", st.outputs.Mod,
		"scripts", len(out.Manifest.Scripts.Scripts), "shaders", len(out.Manifest.Shaders.Shaders),
		"bindings", len(out.Manifest.Lightmaps.Renderers))
	return out, nil
}

// a typed nil Metrics must not reach the harvester as a non-nil interface
func metricsOrNil(m Metrics) harvest.Metrics {
	if m == nil {
		return nil
	}
	return m
}

// PrefabFile is the scratch file name of a prefab snapshot.
func PrefabFile(name string) string { return name + ".prefab.yaml" }

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return xerrors.Wrapf(err, "remove %s", path)
	}
	return nil
}
