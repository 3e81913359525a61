// Package opshttp is the ops listener for `tmodkit serve`: health and
// readiness probes, prometheus metrics and a JSON view of loaded mods.
package opshttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

const defaultPort = 9000

// NewRouter builds the ops handler tree. The result is wrapped with
// otelhttp so every request gets a server span named after its route.
func NewRouter(L log.Logger, opts Options) http.Handler {
	L = log.OrNop(L)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(withLogger(L))
	r.Use(recoverer(opts.OnPanic))
	if opts.Middleware != nil {
		r.Use(opts.Middleware)
	}
	r.Use(accessLog)

	r.Get("/-/healthy", HealthzHandler(opts.Health))
	r.Get("/-/ready", ReadyzHandler(opts.Readiness))

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Mods != nil {
		r.Get("/mods", ModsHandler(opts.Mods))
		r.Get("/mods/{name}", ModHandler(opts.Mods))
	}
	if opts.EnablePprof {
		r.Mount("/debug", middleware.Profiler())
	}

	return otelhttp.NewHandler(r, "opshttp",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Start serves NewRouter on opts.Port and returns stop(ctx) for graceful
// shutdown.
func Start(ctx context.Context, L log.Logger, opts Options) (func(context.Context) error, error) {
	L = log.OrNop(L)
	port := opts.Port
	if port == 0 {
		port = defaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(L, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not listen for ops port on addr=%v", addr)
	}

	go func() {
		L.Info(ctx, "ops http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "ops http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "ops http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
