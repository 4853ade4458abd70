package resilience

import (
	"context"
	"testing"
	"time"
)

// BenchmarkCircuitBreaker_Execute_Closed measures happy path execution.
func BenchmarkCircuitBreaker_Execute_Closed(b *testing.B) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 100,
		RecoveryTimeout:  time.Minute,
	})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
	}
}

// BenchmarkRetry_Execute_FirstAttempt measures the no-failure path.
func BenchmarkRetry_Execute_FirstAttempt(b *testing.B) {
	r := NewRetry(RetryConfig{MaxAttempts: 3})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
	}
}

// BenchmarkResilient_Do measures the composed wrapper overhead.
func BenchmarkResilient_Do(b *testing.B) {
	op := NewResilient("bench",
		func(ctx context.Context, n int) (int, error) { return n, nil },
		WithRetry(NewRetry(RetryConfig{MaxAttempts: 3})),
	)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = op.Do(ctx, i)
	}
}

// BenchmarkBulkhead_AcquireRelease measures semaphore throughput.
func BenchmarkBulkhead_AcquireRelease(b *testing.B) {
	bh := NewBulkhead(BulkheadConfig{MaxConcurrent: 10})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bh.Acquire(ctx)
		bh.Release()
	}
}
