package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/keithlinneman/tmodkit/internal/cfg"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/metrics"
	"github.com/keithlinneman/tmodkit/internal/otelx"
	"github.com/keithlinneman/tmodkit/internal/prof"
	v "github.com/keithlinneman/tmodkit/internal/version"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	conf    cfg.App
	gofs    *flag.FlagSet
	L       log.Logger
	metrics *metrics.Recorder

	shutdownOTEL func(context.Context) error
	stopProf     func()
}

func newRootCmd() *cobra.Command {
	a := &app{L: log.Nop(), gofs: flag.NewFlagSet(v.AppName, flag.ContinueOnError)}
	cfg.Register(a.gofs, &a.conf)

	root := &cobra.Command{
		Use:           v.AppName,
		Short:         "Package, load and publish sandboxed scene mods",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}
	root.PersistentFlags().AddGoFlagSet(a.gofs)

	root.AddCommand(
		newBuildCmd(a),
		newLoadCmd(a),
		newServeCmd(a),
		newScanCmd(a),
		newPublishCmd(a),
		newFetchCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup applies env overrides, validates config and brings up logging,
// tracing and metrics for the subcommand.
func (a *app) setup(cmd *cobra.Command) error {
	// pflag parsed the command line, so the go FlagSet has no record of
	// which flags were explicit; replay them so env cannot override
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if a.gofs.Lookup(f.Name) != nil {
			_ = a.gofs.Set(f.Name, f.Value.String())
		}
	})
	cfg.FillFromEnv(a.gofs, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if a.conf.ConfigFile != "" {
		if err := cfg.FillFromFile(a.gofs, a.conf.ConfigFile); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
	}
	if err := cfg.Validate(a.conf); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	lvl, err := log.ParseLevel(a.conf.LogLevel)
	if err != nil {
		return err
	}
	stackLvl, err := log.ParseLevel(a.conf.StacktraceLevel)
	if err != nil {
		return err
	}
	vi := v.Get()
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Component:         cmd.Name(),
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        a.conf.LogJSON,
		MaxErrorLinks:     a.conf.MaxErrorLinks,
		IncludeErrorLinks: a.conf.IncludeErrorLinks,
	})
	if err != nil {
		return fmt.Errorf("logger init error: %w", err)
	}
	a.L = lg
	ctx := a.context(cmd)

	a.stopProf, err = prof.Start(ctx, prof.FromConfig(a.conf, cmd.Name()))
	if err != nil {
		a.L.Error(ctx, err, "pyroscope start failed", "pyro_server", a.conf.PyroServer)
	}

	a.shutdownOTEL, err = otelx.Init(ctx, otelx.FromConfig(a.conf, cmd.Name()))
	if err != nil {
		// tracing is optional; run without it
		a.L.Error(ctx, err, "otel init failed")
		a.shutdownOTEL = nil
	}

	a.metrics = metrics.New()
	a.metrics.SetBuildInfoFromVersion(v.AppName, cmd.Name(), vi)

	a.L.Debug(ctx, "config loaded",
		"work_dir", a.conf.WorkDir,
		"output_dir", a.conf.Output(),
		"mod_name", a.conf.ModName,
		"frame_rate", a.conf.FrameRate,
		"build_target", a.conf.BuildTarget,
		"fail_closed_filter", a.conf.FailClosedFilter,
		"enable_tracing", a.conf.EnableTracing,
		"otlp_endpoint", a.conf.OTLPEndpoint,
		"enable_pyroscope", a.conf.EnablePyroscope,
		"kms_key_id", a.conf.KMSKeyID,
	)
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.stopProf != nil {
		a.stopProf()
	}
	if a.shutdownOTEL != nil {
		if err := a.shutdownOTEL(context.WithoutCancel(ctx)); err != nil {
			a.L.Error(ctx, err, "otel shutdown")
		}
	}
	return a.L.Sync()
}

// context is the command context carrying the configured logger.
func (a *app) context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return log.WithContext(ctx, a.L)
}

// progress logs each pipeline step at debug level.
func (a *app) progress(ctx context.Context) func(job, step string, index, total int) {
	return func(job, step string, index, total int) {
		a.L.Debug(ctx, "stage done", "job", job, "stage", step, "index", index+1, "total", total)
	}
}
