package probe

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	if err := Static(true, "").Check(ctx); err != nil {
		t.Fatalf("ok static: %v", err)
	}
	err := Static(false, "").Check(ctx)
	if err == nil || err.Error() != "unhealthy" {
		t.Fatalf("failing static = %v, want unhealthy", err)
	}
}

func TestCond(t *testing.T) {
	var ready atomic.Bool
	p := Cond(ready.Load, "mods loading")

	err := p.Check(context.Background())
	if err == nil || err.Error() != "mods loading" {
		t.Fatalf("before ready = %v, want mods loading", err)
	}
	ready.Store(true)
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("after ready: %v", err)
	}
	if err := Cond(nil, "").Check(context.Background()); err == nil || err.Error() != "not ready" {
		t.Fatalf("nil cond = %v, want not ready", err)
	}
}

func TestAll(t *testing.T) {
	tests := []struct {
		name    string
		probes  []Probe
		wantErr string
	}{
		{"empty", nil, ""},
		{"nil skipped", []Probe{nil, Static(true, "")}, ""},
		{"first failure wins", []Probe{Static(true, ""), Static(false, "a"), Static(false, "b")}, "a"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := All(tc.probes...).Check(context.Background())
			switch {
			case tc.wantErr == "" && err != nil:
				t.Fatalf("unexpected error: %v", err)
			case tc.wantErr != "" && (err == nil || err.Error() != tc.wantErr):
				t.Fatalf("err = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("fresh gate: %v", err)
	}
	g.Set("")
	if err := p.Check(context.Background()); err == nil || err.Error() != "draining" {
		t.Fatalf("draining gate = %v", err)
	}
	g.Set("shutting down")
	if err := p.Check(context.Background()); err == nil || err.Error() != "shutting down" {
		t.Fatalf("reason = %v", err)
	}
	g.Clear()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("cleared gate: %v", err)
	}
}
