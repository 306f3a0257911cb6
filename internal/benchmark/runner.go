package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

const (
	// DefaultConcurrency caps how many benchmark jobs run at once
	DefaultConcurrency = 4
	// DefaultJobTimeout bounds a single job
	DefaultJobTimeout = 3600 * time.Second
)

// Func runs the benchmark for one repository
type Func func(ctx context.Context, repo string) (types.TbenchResult, error)

// Runner executes benchmark jobs on a bounded pool with a per-job timeout.
// A failing job is logged and dropped; it never cancels its siblings.
// A job body that outlives its deadline keeps its slot until it returns, so
// at most concurrency bodies ever run at once.
type Runner struct {
	fn          Func
	concurrency int
	timeout     time.Duration
	logger      *monitoring.Logger
	metrics     *monitoring.Metrics
}

// Option configures a Runner
type Option func(*Runner)

// WithConcurrency sets the worker cap
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithJobTimeout sets the per-job timeout
func WithJobTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *monitoring.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a runner around fn
func NewRunner(fn Func, opts ...Option) *Runner {
	r := &Runner{
		fn:          fn,
		concurrency: DefaultConcurrency,
		timeout:     DefaultJobTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = &monitoring.Logger{Logger: slog.Default()}
	}
	return r
}

type outcome struct {
	result types.TbenchResult
	err    error
}

// RunBatch runs one job per repository and returns the successful results
// in the order the jobs completed. Cancelling ctx stops jobs that have not
// started yet and interrupts the running ones.
func (r *Runner) RunBatch(ctx context.Context, repos []string) []types.TbenchResult {
	var (
		mu      sync.Mutex
		results = make([]types.TbenchResult, 0, len(repos))
	)

	// errgroup only bounds the waiting goroutines; job errors are never
	// returned to it, so one failure does not cancel the others. The
	// semaphore bounds running job bodies.
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	slots := semaphore.NewWeighted(int64(r.concurrency))

	for _, repo := range repos {
		if ctx.Err() != nil {
			r.cancelled(repo, ctx.Err())
			continue
		}
		g.Go(func() error {
			// the batch may have been cancelled while this job waited for
			// the pool
			if ctx.Err() != nil {
				r.cancelled(repo, ctx.Err())
				return nil
			}
			if err := slots.Acquire(ctx, 1); err != nil {
				r.cancelled(repo, err)
				return nil
			}

			start := time.Now()
			res, err := r.runJob(ctx, repo, func() { slots.Release(1) })
			elapsed := time.Since(start)

			if err != nil {
				kind := "failed"
				switch {
				case ctx.Err() != nil:
					kind = "cancelled"
				case isTimeout(err):
					kind = "timeout"
				}
				r.logger.BatchJobLogger(repo, kind, elapsed, err)
				r.metrics.RecordBatchJob(kind, elapsed)
				return nil
			}

			r.logger.BatchJobLogger(repo, "succeeded", elapsed, nil)
			r.metrics.RecordBatchJob("succeeded", elapsed)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) cancelled(repo string, err error) {
	r.logger.BatchJobLogger(repo, "cancelled", 0, err)
	r.metrics.RecordBatchJob("cancelled", 0)
}

// runJob runs fn under its own deadline and calls release once fn has
// returned. If fn ignores its context the job is still abandoned when the
// deadline passes; its result is discarded but release waits for fn.
func (r *Runner) runJob(ctx context.Context, repo string, release func()) (types.TbenchResult, error) {
	jobCtx, cancel := context.WithTimeout(ctx, r.timeout)

	done := make(chan outcome, 1)
	go func() {
		defer release()
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("benchmark panicked: %v", p)}
			}
		}()
		res, err := r.fn(jobCtx, repo)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return finish(out, repo)
	case <-jobCtx.Done():
		// fn may have returned just before the body goroutine cancelled
		// jobCtx
		select {
		case out := <-done:
			return finish(out, repo)
		default:
		}
		return types.TbenchResult{}, fmt.Errorf("job %s: %w", repo, jobCtx.Err())
	}
}

func finish(out outcome, repo string) (types.TbenchResult, error) {
	if out.err != nil {
		return types.TbenchResult{}, out.err
	}
	if out.result.Repository == "" {
		out.result.Repository = repo
	}
	if out.result.CompletedAt.IsZero() {
		out.result.CompletedAt = time.Now().UTC()
	}
	return out.result, nil
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
