package pipeline

import (
	"context"

	"golang.org/x/time/rate"
)

// Frames paces a runner. Next blocks until the next frame and returns the
// context error if it is cancelled first.
type Frames interface {
	Next(ctx context.Context) error
}

// Immediate never waits.
type Immediate struct{}

func (Immediate) Next(ctx context.Context) error { return ctx.Err() }

type rateFrames struct{ l *rate.Limiter }

// RateFrames ticks at most fps times per second. Zero or less is Immediate.
func RateFrames(fps float64) Frames {
	if fps <= 0 {
		return Immediate{}
	}
	return rateFrames{l: rate.NewLimiter(rate.Limit(fps), 1)}
}

func (f rateFrames) Next(ctx context.Context) error { return f.l.Wait(ctx) }

// ChanFrames waits for a receive on ch, letting a host loop drive the
// runner. A closed channel never blocks.
type ChanFrames <-chan struct{}

func (c ChanFrames) Next(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c:
		return nil
	}
}
