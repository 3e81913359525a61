// Package prof pushes continuous profiles to Pyroscope. Long builds and
// serve processes are where profiles pay off; short commands stop the
// agent on exit.
package prof

import (
	"context"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/tmodkit/internal/cfg"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/version"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

type Options struct {
	Enabled              bool
	AppName              string
	ServerAddress        string
	TenantID             string
	Tags                 map[string]string
	ProfileMutexFraction int
	BlockProfileRate     int
}

// FromConfig tags profiles with the subcommand so build and serve can be
// told apart in the UI.
func FromConfig(c cfg.App, component string) Options {
	vi := version.Get()
	return Options{
		Enabled:       c.EnablePyroscope,
		AppName:       version.AppName,
		ServerAddress: c.PyroServer,
		TenantID:      c.PyroTenantID,
		Tags: map[string]string{
			"app":       version.AppName,
			"component": component,
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
		},
	}
}

// profileTypes covers CPU, heap, goroutines and contention.
var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// Start returns a stop func that is always non-nil and safe to call twice.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	noop := func() {}

	if !opts.Enabled {
		L.Debug(ctx, "pyroscope disabled")
		return noop, nil
	}
	if opts.ServerAddress == "" {
		return noop, xerrors.Newf("invalid server address (%q)", opts.ServerAddress)
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		ProfileTypes:    profileTypes,
	})
	if err != nil {
		return noop, xerrors.Wrapf(err, "start pyroscope for %s", opts.ServerAddress)
	}
	L.Info(ctx, "pyroscope started", "server_address", opts.ServerAddress, "app_name", opts.AppName)

	stopped := false
	return func() {
		if stopped {
			return
		}
		stopped = true
		if err := profiler.Stop(); err != nil {
			L.Error(context.WithoutCancel(ctx), err, "pyroscope stop")
		}
	}, nil
}
