package opshttp

import (
	"net/http"

	"github.com/keithlinneman/tmodkit/internal/loader"
	"github.com/keithlinneman/tmodkit/internal/probe"
)

// ModSource supplies the /mods listing.
type ModSource interface {
	Get() loader.Snapshot
}

type Options struct {
	Port        int
	EnablePprof bool
	Health      probe.Probe
	Readiness   probe.Probe
	Mods        ModSource

	// Metrics serves /metrics; Middleware, when set, wraps every route.
	Metrics    http.Handler
	Middleware func(http.Handler) http.Handler

	// OnPanic runs after a handler panic is recovered.
	OnPanic func()
}
