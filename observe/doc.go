// Package observe provides structured logging and metrics for the
// outreach core.
//
// The Observer bundles a leveled JSON logger and OpenTelemetry metric
// instruments behind small interfaces so callers can inject noop
// implementations in tests. Credential-bearing log fields are redacted
// automatically.
package observe
