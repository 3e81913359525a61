// Package harvest collects what a mod needs from the source scene: script
// sources that pass the scanner, custom shading programs with property
// snapshots for graph variants, and baked lightmaps with their node
// bindings. Each category is written to its own directory under the mod
// directory together with its manifest.
package harvest

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/sandbox"
	"github.com/keithlinneman/tmodkit/internal/scanner"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

type Metrics interface {
	ScriptRejected()
}

// Rejection is a script left out of the package by the scanner.
type Rejection struct {
	Type       string
	Script     string
	Violations []string
}

// Report accumulates what the harvest kept and dropped.
type Report struct {
	Scripts   []manifest.ScriptDescriptor
	Rejected  []Rejection
	Excluded  []string
	Shaders   []manifest.ShaderDescriptor
	Snapshots []string
	Lightmaps []manifest.LightmapEntry
	Bindings  []manifest.LightmapNodeBinding
	// Missing lists source files that were referenced but not on disk.
	Missing []string
}

type Harvester struct {
	scene   *scene.Scene
	types   *sandbox.Registry
	checker *scanner.Checker
	logger  log.Logger
	metrics Metrics
	report  Report
}

type Option func(*Harvester)

func WithLogger(l log.Logger) Option        { return func(h *Harvester) { h.logger = log.OrNop(l) } }
func WithMetrics(m Metrics) Option          { return func(h *Harvester) { h.metrics = m } }
func WithChecker(c *scanner.Checker) Option { return func(h *Harvester) { h.checker = c } }

func New(s *scene.Scene, types *sandbox.Registry, opts ...Option) *Harvester {
	if types == nil {
		types = sandbox.NewRegistry()
	}
	h := &Harvester{scene: s, types: types, checker: scanner.New(), logger: log.Nop()}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Harvester) Report() Report { return h.report }

// each visits every node under the content roots, inactive ones included
func (h *Harvester) each(fn func(*scene.Node)) {
	for _, r := range h.scene.ContentRoots() {
		r.Walk(fn)
	}
}

func (h *Harvester) missing(ctx context.Context, kind, name, path string) {
	h.report.Missing = append(h.report.Missing, path)
	h.logger.Warn(ctx, "referenced file not found", "kind", kind, "name", name, "path", path)
}

func exists(path string) (bool, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.WithStack(err)
	}
	return fi.Mode().IsRegular(), nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return xerrors.Wrapf(err, "read %s", src)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return xerrors.Wrapf(err, "write %s", dst)
	}
	return nil
}
