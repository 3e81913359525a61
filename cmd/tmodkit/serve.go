package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/tmodkit/internal/loader"
	"github.com/keithlinneman/tmodkit/internal/opshttp"
	"github.com/keithlinneman/tmodkit/internal/probe"
	"github.com/keithlinneman/tmodkit/internal/remote"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		h        hostFlags
		activate bool
		drain    time.Duration
		watch    string
		poll     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load mods and keep serving health, metrics and the mod listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.context(cmd)
			mods := loader.NewCollection()
			s, _, err := a.session(h, mods)
			if err != nil {
				return err
			}

			var gate probe.ShutdownGate
			stopOps, err := opshttp.Start(ctx, a.L, opshttp.Options{
				Port:        a.conf.AdminPort,
				EnablePprof: a.conf.EnablePprof,
				Health:      probe.Static(true, ""),
				Readiness:   probe.All(gate.Probe(), probe.Cond(mods.Ready, "mods loading")),
				Mods:        mods,
				Metrics:     a.metrics.Handler(),
				Middleware:  a.metrics.Middleware,
			})
			if err != nil {
				return err
			}

			// a failed load sequence still leaves the listener up so the
			// mod listing can be inspected
			if _, err := a.loadAndActivate(ctx, s, activate); err != nil {
				a.L.Error(ctx, err, "load sequence did not complete")
			}
			a.L.Info(ctx, "mods ready", "loaded", len(mods.Get().Mods))

			if watch != "" {
				w, err := a.watcher(ctx, s, watch, poll, activate)
				if err != nil {
					stopOps(context.WithoutCancel(ctx))
					return err
				}
				go w.Run(ctx)
			}

			if err := notifySystemd(); err != nil {
				a.L.Debug(ctx, "systemd notify skipped", "reason", err)
			}

			<-ctx.Done()
			bg := context.WithoutCancel(ctx)
			a.L.Info(bg, "shutdown signal received")
			gate.Set("draining")
			if drain > 0 {
				a.L.Info(bg, "draining before shutdown", "duration", drain)
				time.Sleep(drain)
			}

			sctx, cancel := context.WithTimeout(bg, 10*time.Second)
			defer cancel()
			if err := stopOps(sctx); err != nil {
				a.L.Error(bg, err, "ops http server shutdown")
			}
			a.L.Info(bg, "shutdown complete")
			return nil
		},
	}
	h.register(cmd)
	cmd.Flags().BoolVar(&activate, "activate", true, "activate loaded mods so their components wake")
	cmd.Flags().DurationVar(&drain, "drain", 0, "time to report not-ready before stopping the listener")
	cmd.Flags().StringVar(&watch, "watch", "", "poll the release parameter and hot-load new releases of this mod")
	cmd.Flags().DurationVar(&poll, "poll-interval", remote.DefaultPollInterval, "release poll interval for --watch")
	return cmd
}

// watcher hot-loads each new release into the running session. Only the
// watcher goroutine touches the scene once the initial load has finished.
func (a *app) watcher(ctx context.Context, s *loader.Session, name string, every time.Duration, activate bool) (*remote.Watcher, error) {
	ch, err := a.channel(ctx)
	if err != nil {
		return nil, err
	}
	return remote.NewWatcher(remote.WatcherOptions{
		Logger:       a.L,
		Channel:      ch,
		ModsDir:      s.ModsDir(),
		Name:         name,
		PollInterval: every,
		Metrics:      a.metrics,
		OnUpdate: func(ctx context.Context, path, _ string) error {
			o, err := s.Load(ctx, path)
			if err != nil {
				return err
			}
			if o.Err != nil {
				return o.Err
			}
			if activate {
				return s.Activate(o.Name)
			}
			return nil
		},
	})
}

// notifySystemd signals readiness when running under a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
