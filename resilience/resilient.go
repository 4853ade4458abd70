package resilience

import (
	"context"
	"errors"
)

// Operation is a single domain action exposed to the resilience layer.
type Operation[I, O any] func(ctx context.Context, item I) (O, error)

// Outcome is the result of one resilient call. Err is nil on success;
// Exhausted reports that retries ran out before any fallback was tried.
type Outcome[O any] struct {
	Value     O
	Err       error
	Exhausted bool
}

// Success reports whether the call produced a value.
func (o Outcome[O]) Success() bool {
	return o.Err == nil
}

type resilientSettings struct {
	retry     *Retry
	fallbacks *FallbackRegistry
	breaker   *CircuitBreaker
	timeout   *Timeout
}

// ResilientOption configures a Resilient operation.
type ResilientOption func(*resilientSettings)

// WithRetry adds retry with backoff.
func WithRetry(r *Retry) ResilientOption {
	return func(s *resilientSettings) {
		s.retry = r
	}
}

// WithFallbacks consults the registry after retries are exhausted.
func WithFallbacks(f *FallbackRegistry) ResilientOption {
	return func(s *resilientSettings) {
		s.fallbacks = f
	}
}

// WithCircuitBreaker guards each attempt with the breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ResilientOption {
	return func(s *resilientSettings) {
		s.breaker = cb
	}
}

// WithTimeout bounds each individual attempt.
func WithTimeout(t *Timeout) ResilientOption {
	return func(s *resilientSettings) {
		s.timeout = t
	}
}

// Resilient composes retry, fallback and an optional circuit breaker
// around one operation in a fixed order: each attempt runs through the
// breaker, attempts are driven by the retry policy, and only once
// retries are exhausted does control pass to the fallback chain.
type Resilient[I, O any] struct {
	name string
	op   Operation[I, O]
	resilientSettings
}

// NewResilient creates a resilient operation. The name keys fallback
// lookup and stats.
func NewResilient[I, O any](name string, op Operation[I, O], opts ...ResilientOption) *Resilient[I, O] {
	r := &Resilient[I, O]{name: name, op: op}
	for _, opt := range opts {
		opt(&r.resilientSettings)
	}
	return r
}

// Name returns the operation name.
func (r *Resilient[I, O]) Name() string {
	return r.name
}

// Do runs the operation for one item. Failures are always converted into
// an Outcome; nothing escapes as a panic, so bulk callers can keep
// processing remaining items.
func (r *Resilient[I, O]) Do(ctx context.Context, item I) (out Outcome[O]) {
	defer func() {
		if p := recover(); p != nil {
			out = Outcome[O]{Err: NewError(KindUnknown, r.name, "operation panicked: %v", p)}
		}
	}()

	var value O
	attempt := func(ctx context.Context) error {
		v, err := r.invoke(ctx, item)
		if err != nil {
			return err
		}
		value = v
		return nil
	}

	guarded := attempt
	if r.breaker != nil {
		guarded = func(ctx context.Context) error {
			return r.breaker.Execute(ctx, attempt)
		}
	}

	var err error
	if r.retry != nil {
		err = r.retry.ExecuteNamed(ctx, r.name, guarded)
	} else {
		err = guarded(ctx)
	}
	if err == nil {
		return Outcome[O]{Value: value}
	}

	exhausted := errors.Is(err, ErrRetriesExhausted)

	if r.fallbacks != nil && r.fallbacks.Handlers(r.name) > 0 && Retryable(err) {
		primary := func(ctx context.Context, input any) (any, error) {
			return r.invoke(ctx, input.(I))
		}
		res, ferr := r.fallbacks.Execute(ctx, r.name, primary, item)
		if ferr == nil {
			v, ok := res.(O)
			if !ok {
				return Outcome[O]{
					Err:       NewError(KindUnknown, r.name, "fallback returned %T", res),
					Exhausted: exhausted,
				}
			}
			return Outcome[O]{Value: v}
		}
		// All fallbacks failed: surface the richer retry error, which
		// wraps the original cause.
	}

	return Outcome[O]{Err: err, Exhausted: exhausted}
}

// invoke runs one attempt, bounded by the per-attempt timeout when one is
// configured. The value travels through the completion channel so a
// timed-out attempt can never race a later one.
func (r *Resilient[I, O]) invoke(ctx context.Context, item I) (O, error) {
	var zero O

	if r.timeout == nil {
		return r.op(ctx, item)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout.Config().Timeout)
	defer cancel()

	type result struct {
		value O
		err   error
	}
	done := make(chan result, 1)

	go func() {
		v, err := r.op(ctx, item)
		done <- result{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
