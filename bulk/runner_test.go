package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mlindgren/outreach/resilience"
)

func newOp(fn func(ctx context.Context, item string) (string, error)) *resilience.Resilient[string, string] {
	return resilience.NewResilient("process", fn)
}

func TestRunner_AccountsSuccessesAndFailures(t *testing.T) {
	op := newOp(func(ctx context.Context, item string) (string, error) {
		if strings.HasPrefix(item, "bad") {
			return "", errors.New("item rejected")
		}
		return "done:" + item, nil
	})

	items := []string{"a", "bad1", "b", "c", "bad2", "d", "e", "bad3", "f", "g"}
	runner := NewRunner(Config{MaxConcurrent: 3, ItemDelay: -1}, op,
		WithLabel[string](func(s string) string { return s }),
	)

	outputs, result, err := runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Total != 10 {
		t.Errorf("Total = %d, want 10", result.Total)
	}
	if result.Succeeded != 7 {
		t.Errorf("Succeeded = %d, want 7", result.Succeeded)
	}
	if result.Failed != 3 {
		t.Errorf("Failed = %d, want 3", result.Failed)
	}
	if result.Succeeded+result.Failed != result.Total {
		t.Error("Succeeded + Failed != Total")
	}
	if len(outputs) != 7 {
		t.Errorf("outputs = %d, want 7", len(outputs))
	}
	if len(result.FailedItems) != 3 {
		t.Fatalf("FailedItems = %d, want 3", len(result.FailedItems))
	}
	for _, fi := range result.FailedItems {
		if !strings.HasPrefix(fi.Item, "bad") {
			t.Errorf("unexpected failed item %q", fi.Item)
		}
		if fi.Reason == "" {
			t.Errorf("failed item %q has empty reason", fi.Item)
		}
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	var active, peak int64
	op := newOp(func(ctx context.Context, item string) (string, error) {
		n := atomic.AddInt64(&active, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return item, nil
	})

	items := make([]string, 12)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", i)
	}

	runner := NewRunner(Config{MaxConcurrent: 3, ItemDelay: -1}, op)
	_, result, err := runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Succeeded != 12 {
		t.Errorf("Succeeded = %d, want 12", result.Succeeded)
	}
	if got := atomic.LoadInt64(&peak); got > 3 {
		t.Errorf("peak in-flight = %d, want <= 3", got)
	}
	if got := runner.LimiterMetrics().MaxActive; got > 3 {
		t.Errorf("limiter MaxActive = %d, want <= 3", got)
	}
}

func TestRunner_ProgressIsMonotonic(t *testing.T) {
	op := newOp(func(ctx context.Context, item string) (string, error) {
		if item == "bad" {
			return "", errors.New("item rejected")
		}
		return item, nil
	})

	var events []ProgressEvent
	runner := NewRunner(Config{
		MaxConcurrent: 4,
		ItemDelay:     -1,
		OnProgress: func(ev ProgressEvent) {
			events = append(events, ev)
		},
	}, op)

	items := []string{"a", "b", "bad", "c", "d", "e"}
	_, _, err := runner.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(events) != len(items) {
		t.Fatalf("progress events = %d, want %d", len(events), len(items))
	}
	for i, ev := range events {
		if ev.Completed != i+1 {
			t.Errorf("events[%d].Completed = %d, want %d", i, ev.Completed, i+1)
		}
		if ev.Total != len(items) {
			t.Errorf("events[%d].Total = %d, want %d", i, ev.Total, len(items))
		}
	}
}

func TestRunner_CancellationStopsNewItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	op := newOp(func(opCtx context.Context, item string) (string, error) {
		// The in-flight item still completes after cancellation. Holding
		// the slot briefly lets the run loop observe the cancellation
		// before another slot frees up.
		cancel()
		time.Sleep(50 * time.Millisecond)
		return "done:" + item, nil
	})

	runner := NewRunner(Config{MaxConcurrent: 1, ItemDelay: -1}, op)
	outputs, result, err := runner.Run(ctx, []string{"a", "b", "c"})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if result.Total != 1 {
		t.Errorf("Total = %d, want 1 (only started items counted)", result.Total)
	}
	if result.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", result.Succeeded)
	}
	if len(outputs) != 1 {
		t.Errorf("outputs = %d, want 1", len(outputs))
	}
}

func TestRunner_InFlightSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	op := newOp(func(opCtx context.Context, item string) (string, error) {
		cancel()
		time.Sleep(50 * time.Millisecond)
		// The per-item context must not be cut off mid-operation.
		if opCtx.Err() != nil {
			return "", opCtx.Err()
		}
		return "done", nil
	})

	runner := NewRunner(Config{MaxConcurrent: 1, ItemDelay: -1}, op)
	_, result, _ := runner.Run(ctx, []string{"a", "b"})

	if result.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", result.Succeeded)
	}
	if result.Failed != 0 {
		t.Errorf("Failed = %d, want 0", result.Failed)
	}
}

func TestRunner_EmptyItems(t *testing.T) {
	runner := NewRunner(Config{}, newOp(func(ctx context.Context, item string) (string, error) {
		return item, nil
	}))

	outputs, result, err := runner.Run(context.Background(), nil)
	if err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if outputs != nil {
		t.Errorf("outputs = %v, want nil", outputs)
	}
	if result.Total != 0 || result.Succeeded != 0 || result.Failed != 0 {
		t.Errorf("result = %+v, want zero counts", result)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestRunner_ItemDelayPacesRun(t *testing.T) {
	op := newOp(func(ctx context.Context, item string) (string, error) {
		return item, nil
	})

	runner := NewRunner(Config{MaxConcurrent: 1, ItemDelay: 25 * time.Millisecond}, op)

	start := time.Now()
	_, result, err := runner.Run(context.Background(), []string{"a", "b", "c"})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Succeeded != 3 {
		t.Errorf("Succeeded = %d, want 3", result.Succeeded)
	}
	// Each of the three items pays the courtesy delay.
	if elapsed < 60*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 60ms with 25ms item delay", elapsed)
	}
}

func TestRunner_DefaultItemDelay(t *testing.T) {
	runner := NewRunner(Config{}, newOp(func(ctx context.Context, item string) (string, error) {
		return item, nil
	}))

	if runner.config.ItemDelay != DefaultItemDelay {
		t.Errorf("ItemDelay = %v, want %v", runner.config.ItemDelay, DefaultItemDelay)
	}
}
