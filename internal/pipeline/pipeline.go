// Package pipeline runs staged jobs one at a time on a single goroutine.
// Steps hand control back to a frame source between stages, which is how
// the loader spreads package work across host frames.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

type Status int

const (
	// Continue runs the next step right away.
	Continue Status = iota
	// Yield waits for the next frame before the next step.
	Yield
)

// Step is one stage of a job. Always steps run even after an earlier step
// of the same job failed.
type Step struct {
	Name   string
	Always bool
	Run    func(ctx context.Context) (Status, error)
}

// Job is an ordered list of steps. A failing job never affects the jobs
// after it.
type Job struct {
	Name  string
	Steps []Step
}

type StepResult struct {
	Name     string
	Err      error
	Skipped  bool
	Duration time.Duration
}

type JobResult struct {
	Name string
	// Err is the first step failure.
	Err   error
	Steps []StepResult
	// Abandoned jobs were cut short by cancellation; their Always steps
	// did not run.
	Abandoned bool
}

func (r JobResult) OK() bool { return r.Err == nil && !r.Abandoned }

// Progress is called after every step that ran or was skipped.
type Progress func(job, step string, index, total int)

type Metrics interface {
	StageDuration(pipeline, stage string, d time.Duration)
}

type Runner struct {
	name     string
	frames   Frames
	progress Progress
	metrics  Metrics
	logger   log.Logger
	tracer   trace.Tracer
}

type Option func(*Runner)

func WithFrames(f Frames) Option     { return func(r *Runner) { r.frames = f } }
func WithProgress(p Progress) Option { return func(r *Runner) { r.progress = p } }
func WithMetrics(m Metrics) Option   { return func(r *Runner) { r.metrics = m } }
func WithLogger(l log.Logger) Option { return func(r *Runner) { r.logger = log.OrNop(l) } }

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) { r.tracer = tp.Tracer("tmodkit/pipeline") }
}

// New returns a runner labelled name in logs, spans and metrics. Without
// WithFrames it never waits.
func New(name string, opts ...Option) *Runner {
	r := &Runner{
		name:   name,
		frames: Immediate{},
		logger: log.Nop(),
		tracer: otel.Tracer("tmodkit/pipeline"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes jobs strictly in order and waits for a frame between jobs.
// Cancellation is only observed while waiting for a frame; the job in
// progress is then abandoned and no further jobs start.
func (r *Runner) Run(ctx context.Context, jobs ...Job) []JobResult {
	results := make([]JobResult, 0, len(jobs))
	for i, job := range jobs {
		res := r.runJob(ctx, job)
		results = append(results, res)
		if res.Abandoned {
			return results
		}
		if i < len(jobs)-1 {
			if err := r.frames.Next(ctx); err != nil {
				r.logger.Warn(ctx, "run cancelled between jobs", "pipeline", r.name, "next", jobs[i+1].Name, "err", err)
				return results
			}
		}
	}
	return results
}

func (r *Runner) runJob(ctx context.Context, job Job) JobResult {
	ctx, span := r.tracer.Start(ctx, r.name+" "+job.Name, trace.WithAttributes(
		attribute.String("tmodkit.pipeline", r.name),
		attribute.String("tmodkit.job", job.Name),
	))
	defer span.End()

	res := JobResult{Name: job.Name, Steps: make([]StepResult, 0, len(job.Steps))}
	total := len(job.Steps)
	for i, st := range job.Steps {
		if res.Err != nil && !st.Always {
			res.Steps = append(res.Steps, StepResult{Name: st.Name, Skipped: true})
			r.report(job.Name, st.Name, i+1, total)
			continue
		}

		sr, status := r.runStep(ctx, job.Name, st)
		res.Steps = append(res.Steps, sr)
		r.report(job.Name, st.Name, i+1, total)
		if sr.Err != nil {
			if res.Err == nil {
				res.Err = xerrors.Wrapf(sr.Err, "%s: %s", job.Name, st.Name)
			}
			r.logger.Warn(ctx, "stage failed", "pipeline", r.name, "job", job.Name, "stage", st.Name, "err", sr.Err)
			continue
		}
		if status == Yield {
			if err := r.frames.Next(ctx); err != nil {
				res.Abandoned = true
				span.SetStatus(codes.Error, "abandoned")
				r.logger.Warn(ctx, "job abandoned", "pipeline", r.name, "job", job.Name, "after", st.Name, "err", err)
				return res
			}
		}
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func (r *Runner) runStep(ctx context.Context, job string, st Step) (sr StepResult, status Status) {
	ctx, span := r.tracer.Start(ctx, st.Name, trace.WithAttributes(
		attribute.String("tmodkit.stage", st.Name),
		attribute.Bool("tmodkit.always", st.Always),
	))
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			sr.Err = xerrors.New(fmt.Sprintf("panic in stage %s: %v", st.Name, p))
			status = Continue
		}
		sr.Name = st.Name
		sr.Duration = time.Since(start)
		if sr.Err != nil {
			span.RecordError(sr.Err)
			span.SetStatus(codes.Error, sr.Err.Error())
		}
		span.End()
		if r.metrics != nil {
			r.metrics.StageDuration(r.name, st.Name, sr.Duration)
		}
	}()
	status, sr.Err = st.Run(ctx)
	return sr, status
}

func (r *Runner) report(job, step string, i, total int) {
	if r.progress != nil {
		r.progress(job, step, i, total)
	}
}
