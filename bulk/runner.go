package bulk

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mlindgren/outreach/resilience"
)

// Config configures a Runner.
type Config struct {
	// MaxConcurrent is the maximum number of items in flight.
	// Default: 3
	MaxConcurrent int

	// ItemDelay is a courtesy pause after each item completes, so bulk
	// runs do not hammer the downstream resource. Zero means the
	// default; negative disables the delay.
	// Default: 100ms
	ItemDelay time.Duration

	// OnProgress is called after each item completes.
	OnProgress ProgressFunc
}

// DefaultItemDelay is the pause applied after each completed item unless
// overridden.
const DefaultItemDelay = 100 * time.Millisecond

// Runner drives one resilient operation over a list of items with
// bounded concurrency. Each item is attempted exactly once at this
// level; retries and fallbacks happen inside the operation and are
// invisible here. A single item's failure never aborts the run.
type Runner[I, O any] struct {
	config  Config
	op      *resilience.Resilient[I, O]
	limiter *resilience.Bulkhead
	label   func(I) string
	clock   resilience.Clock
}

// Option configures a Runner beyond its Config.
type Option[I any] func(*runnerOptions[I])

type runnerOptions[I any] struct {
	label func(I) string
	clock resilience.Clock
}

// WithLabel sets how items are rendered in progress events and failure
// lists.
func WithLabel[I any](label func(I) string) Option[I] {
	return func(o *runnerOptions[I]) {
		o.label = label
	}
}

// WithRunnerClock sets the clock used for the inter-item delay.
func WithRunnerClock[I any](clock resilience.Clock) Option[I] {
	return func(o *runnerOptions[I]) {
		o.clock = clock
	}
}

// NewRunner creates a bulk runner for the given operation.
func NewRunner[I, O any](config Config, op *resilience.Resilient[I, O], opts ...Option[I]) *Runner[I, O] {
	// Apply defaults
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 3
	}
	if config.ItemDelay == 0 {
		config.ItemDelay = DefaultItemDelay
	}

	var o runnerOptions[I]
	for _, opt := range opts {
		opt(&o)
	}
	if o.label == nil {
		o.label = func(I) string { return op.Name() }
	}
	if o.clock == nil {
		o.clock = resilience.NewRealClock()
	}

	return &Runner[I, O]{
		config: config,
		op:     op,
		limiter: resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: config.MaxConcurrent,
			MaxWait:       -1,
		}),
		label: o.label,
		clock: o.clock,
	}
}

// LimiterMetrics exposes the concurrency limiter's counters, mainly so
// callers can observe peak in-flight operations.
func (r *Runner[I, O]) LimiterMetrics() resilience.BulkheadMetrics {
	return r.limiter.Metrics()
}

// Run executes all items and returns the successful outputs (in
// completion order), the accounting summary, and a run-level error only
// when the run itself was cut short (cancellation).
//
// Cancellation is cooperative: once ctx is done no new items start, but
// items already in flight are allowed to finish and are counted in the
// partial Result.
func (r *Runner[I, O]) Run(ctx context.Context, items []I) ([]O, Result, error) {
	result := Result{
		RunID: uuid.NewString(),
		Total: len(items),
	}
	if len(items) == 0 {
		return nil, result, nil
	}

	// In-flight items are allowed to finish; cancellation is only
	// checked at item boundaries.
	itemCtx := context.WithoutCancel(ctx)

	var (
		g         errgroup.Group
		mu        sync.Mutex
		outputs   []O
		completed int
		started   int
	)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err := r.limiter.Acquire(ctx); err != nil {
			break
		}
		started++

		g.Go(func() error {
			defer r.limiter.Release()

			outcome := r.op.Do(itemCtx, item)
			label := r.label(item)

			mu.Lock()
			if outcome.Success() {
				result.Succeeded++
				outputs = append(outputs, outcome.Value)
			} else {
				result.Failed++
				result.FailedItems = append(result.FailedItems, ItemError{
					Item:   label,
					Reason: outcome.Err.Error(),
				})
			}
			completed++
			if r.config.OnProgress != nil {
				r.config.OnProgress(ProgressEvent{
					Completed: completed,
					Total:     result.Total,
					Label:     label,
				})
			}
			mu.Unlock()

			if r.config.ItemDelay > 0 {
				select {
				case <-r.clock.After(r.config.ItemDelay):
				case <-ctx.Done():
					// Skip the courtesy delay once cancelled
				}
			}
			return nil
		})
	}

	_ = g.Wait()

	if started < len(items) {
		// Partial run: account only for what was attempted.
		result.Total = started
		return outputs, result, ctx.Err()
	}
	return outputs, result, nil
}
