package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type pollCounter map[string]int

func (p pollCounter) ReleasePoll(result string) { p[result]++ }

func release(t *testing.T, c *Channel, s3c *fakeS3, ssmc *fakeSSM, body []byte) string {
	t.Helper()
	h := sum(body)
	s3c.objects["mods/"+c.key(h)] = body
	ssmc.params["/tmodkit/release"] = h
	return h
}

func TestWatcher_InstallsNewRelease(t *testing.T) {
	c, s3c, ssmc := newChannel(t, "releases")
	modsDir := t.TempDir()
	polls := pollCounter{}

	var got []string
	w, err := NewWatcher(WatcherOptions{
		Channel: c, ModsDir: modsDir, Name: "Forest", Metrics: polls,
		OnUpdate: func(_ context.Context, path, hash string) error {
			got = append(got, hash)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	h1 := release(t, c, s3c, ssmc, []byte("v1"))
	if r := w.checkOnce(context.Background()); r != pollUpdated {
		t.Fatalf("first poll = %v", r)
	}
	data, err := os.ReadFile(filepath.Join(modsDir, "Forest.tmod"))
	if err != nil || string(data) != "v1" {
		t.Fatalf("installed = %q, %v", data, err)
	}
	if r := w.checkOnce(context.Background()); r != pollNoChange {
		t.Fatalf("unchanged poll = %v", r)
	}

	h2 := release(t, c, s3c, ssmc, []byte("v2"))
	if r := w.checkOnce(context.Background()); r != pollUpdated {
		t.Fatalf("second release poll = %v", r)
	}
	if len(got) != 2 || got[0] != h1 || got[1] != h2 {
		t.Fatalf("updates = %v", got)
	}
	if polls["updated"] != 2 || polls["unchanged"] != 1 {
		t.Fatalf("polls = %v", polls)
	}
}

func TestWatcher_SeedsFromInstalledFile(t *testing.T) {
	c, s3c, ssmc := newChannel(t, "releases")
	modsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(modsDir, "Forest.tmod"), []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	release(t, c, s3c, ssmc, []byte("v1"))

	called := false
	w, err := NewWatcher(WatcherOptions{
		Channel: c, ModsDir: modsDir, Name: "Forest",
		OnUpdate: func(context.Context, string, string) error { called = true; return nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	if r := w.checkOnce(context.Background()); r != pollNoChange || called {
		t.Fatalf("poll = %v, called = %v", r, called)
	}
}

func TestWatcher_FailuresKeepCurrentHash(t *testing.T) {
	c, s3c, ssmc := newChannel(t, "releases")
	modsDir := t.TempDir()

	fail := true
	w, err := NewWatcher(WatcherOptions{
		Channel: c, ModsDir: modsDir, Name: "Forest",
		OnUpdate: func(context.Context, string, string) error {
			if fail {
				return errors.New("load failed")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if r := w.checkOnce(context.Background()); r != pollSSMError {
		t.Fatalf("missing param poll = %v", r)
	}

	ssmc.params["/tmodkit/release"] = sum([]byte("ghost"))
	if r := w.checkOnce(context.Background()); r != pollFetchError {
		t.Fatalf("missing object poll = %v", r)
	}

	release(t, c, s3c, ssmc, []byte("v1"))
	if r := w.checkOnce(context.Background()); r != pollApplyError {
		t.Fatalf("rejected update poll = %v", r)
	}
	fail = false
	if r := w.checkOnce(context.Background()); r != pollUpdated {
		t.Fatalf("retry poll = %v", r)
	}
}

func TestWatcher_PanickingCallbackIsAnError(t *testing.T) {
	c, s3c, ssmc := newChannel(t, "releases")
	w, err := NewWatcher(WatcherOptions{
		Channel: c, ModsDir: t.TempDir(), Name: "Forest",
		OnUpdate: func(context.Context, string, string) error { panic("boom") },
	})
	if err != nil {
		t.Fatal(err)
	}
	release(t, c, s3c, ssmc, []byte("v1"))
	if r := w.checkOnce(context.Background()); r != pollApplyError {
		t.Fatalf("poll = %v", r)
	}
}

func TestWatcher_Backoff(t *testing.T) {
	w := &Watcher{interval: 30 * time.Second}
	tests := []struct {
		errs int
		want time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{10, maxBackoff},
	}
	for _, tc := range tests {
		w.consecutiveErrs = tc.errs
		if got := w.backoffDuration(); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.errs, got, tc.want)
		}
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	c, s3c, ssmc := newChannel(t, "releases")
	release(t, c, s3c, ssmc, []byte("v1"))

	updated := make(chan string, 1)
	w, err := NewWatcher(WatcherOptions{
		Channel: c, ModsDir: t.TempDir(), Name: "Forest", PollInterval: 5 * time.Millisecond,
		OnUpdate: func(_ context.Context, path, _ string) error {
			select {
			case updated <- path:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-updated:
	case <-time.After(5 * time.Second):
		t.Fatal("no update within 5s")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
}

func TestNewWatcher_Validation(t *testing.T) {
	c, _, _ := newChannel(t, "releases")
	if _, err := NewWatcher(WatcherOptions{ModsDir: "x", Name: "y"}); err == nil {
		t.Error("missing channel should fail")
	}
	if _, err := NewWatcher(WatcherOptions{Channel: c, Name: "y"}); err == nil {
		t.Error("missing mods dir should fail")
	}
}
