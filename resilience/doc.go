// Package resilience provides resilience patterns for outreach operations.
//
// This package implements the patterns that let scraping and mail
// delivery degrade gracefully under partial failure. The patterns can
// be composed around any operation.
//
// # Patterns
//
//   - Retry: Automatically retries failed operations with configurable
//     backoff strategies (exponential, linear, fixed, immediate).
//
//   - Fallback: Tries prioritized alternative implementations of a named
//     operation after its retries are exhausted.
//
//   - Circuit Breaker: Stops calling a persistently failing operation
//     for a cooling-off period.
//
//   - Bulkhead: Limits concurrent operations to prevent resource
//     exhaustion.
//
//   - Timeout: Ensures individual attempts complete within a time limit.
//
// # Error classification
//
// Operations report failures with a Kind (network, validation, auth,
// quota, service_unavailable, unknown) assigned at the boundary.
// Validation and auth errors are never retried and never fall back;
// everything else is retried per RetryConfig and then handed to the
// fallback chain. Message-substring sniffing exists only as a last
// resort for untyped errors from library code.
//
// # Usage
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts: 3,
//	    BaseDelay:   time.Second,
//	    Strategy:    resilience.BackoffExponential,
//	    Jitter:      true,
//	})
//
//	fallbacks := resilience.NewFallbackRegistry(resilience.FallbackRegistryConfig{})
//	fallbacks.Register("scrape", basicScrape, 10)
//
//	op := resilience.NewResilient("scrape", scrapeSite,
//	    resilience.WithRetry(retry),
//	    resilience.WithFallbacks(fallbacks),
//	)
//
//	outcome := op.Do(ctx, "https://example.com")
package resilience
