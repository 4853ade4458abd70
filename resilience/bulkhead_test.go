package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewBulkhead(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{})

	if b.config.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", b.config.MaxConcurrent)
	}
}

func TestBulkhead_AcquireRelease(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 2})
	ctx := context.Background()

	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Full, MaxWait 0 fails fast
	if err := b.Acquire(ctx); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Acquire() error = %v, want ErrBulkheadFull", err)
	}

	b.Release()
	if err := b.Acquire(ctx); err != nil {
		t.Errorf("Acquire() after Release error = %v", err)
	}
}

func TestBulkhead_UnboundedWaitBlocksUntilSlot(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: -1})
	ctx := context.Background()

	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- b.Acquire(ctx)
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire() returned while bulkhead was full")
	case <-time.After(20 * time.Millisecond):
	}

	b.Release()
	select {
	case err := <-acquired:
		if err != nil {
			t.Errorf("Acquire() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire() did not return after Release")
	}
}

func TestBulkhead_UnboundedWaitHonorsContext(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: -1})
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := b.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestBulkhead_TimedWait(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: 20 * time.Millisecond})
	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := b.Acquire(context.Background()); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Acquire() error = %v, want ErrBulkheadFull", err)
	}
}

func TestBulkhead_ExecuteLimitsConcurrency(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 3, MaxWait: -1})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(ctx, func(ctx context.Context) error {
				time.Sleep(5 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	m := b.Metrics()
	if m.MaxActive > 3 {
		t.Errorf("MaxActive = %d, want <= 3", m.MaxActive)
	}
	if m.Active != 0 {
		t.Errorf("Active = %d, want 0 after Wait", m.Active)
	}
}

func TestBulkhead_Metrics(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 2})
	ctx := context.Background()

	_ = b.Acquire(ctx)
	_ = b.Acquire(ctx)
	_ = b.Acquire(ctx) // rejected

	m := b.Metrics()
	if m.Active != 2 {
		t.Errorf("Active = %d, want 2", m.Active)
	}
	if m.Available != 0 {
		t.Errorf("Available = %d, want 0", m.Available)
	}
	if m.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", m.Rejected)
	}
}
