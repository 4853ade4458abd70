package resilience

import (
	"context"
	"sort"
	"sync"
)

// Handler is an alternative implementation of a named operation. Handlers
// receive the same input as the primary and must return a value of the
// same shape.
type Handler func(ctx context.Context, input any) (any, error)

type fallbackEntry struct {
	priority int
	handler  Handler
}

// FallbackRegistryConfig configures a FallbackRegistry.
type FallbackRegistryConfig struct {
	// OnFallback is called before each fallback handler is tried, with
	// the error that caused the fallthrough.
	OnFallback func(name string, priority int, cause error)

	// Stats records per-tier attempt counters when set.
	Stats *Stats
}

// FallbackRegistry holds prioritized alternative implementations per
// named operation. Lower priority numbers are tried first. Registration
// happens at startup; execution may be concurrent.
type FallbackRegistry struct {
	config FallbackRegistryConfig

	mu       sync.RWMutex
	handlers map[string][]fallbackEntry
}

// NewFallbackRegistry creates an empty registry.
func NewFallbackRegistry(config FallbackRegistryConfig) *FallbackRegistry {
	return &FallbackRegistry{
		config:   config,
		handlers: make(map[string][]fallbackEntry),
	}
}

// Register adds a fallback handler for an operation. Handlers are kept
// sorted ascending by priority regardless of registration order.
func (f *FallbackRegistry) Register(name string, handler Handler, priority int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := append(f.handlers[name], fallbackEntry{priority: priority, handler: handler})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	f.handlers[name] = entries
}

// Handlers returns the number of fallback handlers registered for name.
func (f *FallbackRegistry) Handlers(name string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.handlers[name])
}

// Execute calls primary and, if it fails with an error eligible for
// degradation, tries each registered handler in priority order. The first
// success wins. When every handler fails, or none is registered, the
// primary's error is returned so the root cause is never masked.
func (f *FallbackRegistry) Execute(ctx context.Context, name string, primary Handler, input any) (any, error) {
	result, err := primary(ctx, input)
	if err == nil {
		f.record(name, TierPrimary, true)
		return result, nil
	}
	f.record(name, TierPrimary, false)

	// Caller/config errors are surfaced immediately; no handler can fix
	// bad input or rejected credentials.
	switch KindOf(err) {
	case KindValidation, KindAuth:
		return nil, err
	}

	primaryErr := err

	f.mu.RLock()
	entries := f.handlers[name]
	f.mu.RUnlock()

	for _, e := range entries {
		if f.config.OnFallback != nil {
			f.config.OnFallback(name, e.priority, err)
		}

		result, err = e.handler(ctx, input)
		if err == nil {
			f.record(name, TierFor(e.priority), true)
			return result, nil
		}
		f.record(name, TierFor(e.priority), false)
	}

	return nil, primaryErr
}

func (f *FallbackRegistry) record(name, tier string, success bool) {
	if f.config.Stats != nil {
		f.config.Stats.RecordFallback(name, tier, success)
	}
}
