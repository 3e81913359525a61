package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"time"

	"github.com/keithlinneman/tmodkit/internal/archive"
	"github.com/keithlinneman/tmodkit/internal/cryptoutil"
	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

const (
	// DefaultPollInterval is how often the watcher checks SSM for a new hash.
	DefaultPollInterval = 30 * time.Second

	// maxBackoff caps exponential backoff on consecutive SSM errors.
	maxBackoff = 5 * time.Minute
)

type pollResult int

const (
	pollNoChange pollResult = iota
	pollUpdated
	pollSSMError
	pollFetchError
	pollApplyError
)

func (r pollResult) String() string {
	switch r {
	case pollNoChange:
		return "unchanged"
	case pollUpdated:
		return "updated"
	case pollSSMError:
		return "ssm_error"
	case pollFetchError:
		return "fetch_error"
	default:
		return "apply_error"
	}
}

// WatcherMetrics observes poll outcomes.
type WatcherMetrics interface {
	ReleasePoll(result string)
}

// UpdateFunc receives the installed path of a new release. An error keeps
// the watcher on the previous hash so the next poll tries again.
type UpdateFunc func(ctx context.Context, path, hash string) error

type WatcherOptions struct {
	Logger  log.Logger
	Channel *Channel
	ModsDir string
	// Name is the mod the release installs as: <ModsDir>/<Name>.tmod.
	Name         string
	PollInterval time.Duration
	OnUpdate     UpdateFunc
	Metrics      WatcherMetrics
}

// Watcher polls the release pointer and installs new releases of one mod.
type Watcher struct {
	ch       *Channel
	modsDir  string
	name     string
	logger   log.Logger
	interval time.Duration
	onUpdate UpdateFunc
	metrics  WatcherMetrics

	currentHash     string
	consecutiveErrs int
}

// NewWatcher seeds the current hash from the installed container, if any,
// so the first poll does not download what is already on disk.
func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Channel == nil {
		return nil, xerrors.New("watcher: channel is required")
	}
	if opts.Name == "" || opts.ModsDir == "" {
		return nil, xerrors.New("watcher: mod name and mods dir are required")
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w := &Watcher{
		ch:       opts.Channel,
		modsDir:  opts.ModsDir,
		name:     opts.Name,
		logger:   log.OrNop(opts.Logger),
		interval: interval,
		onUpdate: opts.OnUpdate,
		metrics:  opts.Metrics,
	}
	installed := filepath.Join(opts.ModsDir, opts.Name+archive.Ext)
	if h, err := archive.Digest(installed); err == nil {
		w.currentHash = h
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, xerrors.Wrapf(err, "hash installed release %s", installed)
	}
	return w, nil
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "release watcher starting",
		log.ModKey, w.name,
		"poll_interval", w.interval.String(),
		"current_hash", truncHash(w.currentHash),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "release watcher stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			result := w.checkOnce(ctx)
			if result == pollSSMError {
				w.consecutiveErrs++
				backoff := w.backoffDuration()
				w.logger.Warn(ctx, "release watcher backing off",
					"consecutive_errors", w.consecutiveErrs,
					"next_poll_in", backoff.String(),
				)
				ticker.Reset(backoff)
			} else if w.consecutiveErrs > 0 {
				w.logger.Info(ctx, "release watcher recovered", "had_consecutive_errors", w.consecutiveErrs)
				w.consecutiveErrs = 0
				ticker.Reset(w.interval)
			}
		}
	}
}

func (w *Watcher) checkOnce(ctx context.Context) (result pollResult) {
	defer func() {
		if w.metrics != nil {
			w.metrics.ReleasePoll(result.String())
		}
	}()

	hash, err := w.ch.CurrentHash(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "release watcher: SSM poll failed")
		return pollSSMError
	}
	if cryptoutil.HashEqual(hash, w.currentHash) {
		return pollNoChange
	}

	w.logger.Info(ctx, "release watcher: new release detected",
		"old_hash", truncHash(w.currentHash),
		"new_hash", truncHash(hash),
	)
	path, err := w.ch.FetchHash(ctx, w.modsDir, w.name, hash)
	if err != nil {
		w.logger.Error(ctx, err, "release watcher: download failed", "hash", truncHash(hash))
		return pollFetchError
	}

	if w.onUpdate != nil {
		if err := w.apply(ctx, path, hash); err != nil {
			w.logger.Error(ctx, err, "release watcher: update rejected", "hash", truncHash(hash))
			return pollApplyError
		}
	}
	w.currentHash = hash
	w.logger.Info(ctx, "release watcher: release installed", "path", path, "hash", truncHash(hash))
	return pollUpdated
}

// apply runs the update callback; a panic counts as a failed update.
func (w *Watcher) apply(ctx context.Context, path, hash string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update callback panic: %v", r)
		}
	}()
	return w.onUpdate(ctx, path, hash)
}

// backoffDuration doubles the interval per consecutive error up to maxBackoff.
func (w *Watcher) backoffDuration() time.Duration {
	mult := math.Pow(2, float64(w.consecutiveErrs))
	d := time.Duration(float64(w.interval) * mult)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
