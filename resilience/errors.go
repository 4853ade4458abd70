package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRetriesExhausted is returned when max retry attempts are exhausted.
	ErrRetriesExhausted = errors.New("resilience: retries exhausted")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// Kind classifies an operation error. Operations assign kinds at the
// boundary; classification drives retry and fallback decisions.
type Kind string

const (
	// KindNetwork covers connectivity failures and timeouts.
	KindNetwork Kind = "network"
	// KindValidation covers bad input. Never retried, never falls back.
	KindValidation Kind = "validation"
	// KindAuth covers rejected credentials. Never retried.
	KindAuth Kind = "auth"
	// KindQuota covers rate limiting. Retried with backoff.
	KindQuota Kind = "quota"
	// KindUnavailable covers transient outages. Retried, then falls back.
	KindUnavailable Kind = "service_unavailable"
	// KindUnknown is the default for unclassified errors. Retried
	// conservatively, then falls back.
	KindUnknown Kind = "unknown"
)

// Error is an operation error carrying a Kind.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given kind.
func NewError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps err with a kind so downstream classification does not
// have to fall back to message sniffing.
func WrapError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// transientPatterns are message substrings treated as retryable when an
// error carries no explicit kind. Last-resort classifier for errors from
// library code that cannot be typed directly.
var transientPatterns = []string{
	"timeout",
	"connection",
	"network",
	"temporary",
	"rate limit",
	"service unavailable",
	"internal server error",
	"bad gateway",
}

// KindOf returns the Kind of err. Typed kinds win; context deadline and
// circuit/timeout sentinels map to their natural kinds; otherwise the
// message is matched against known transient patterns.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return KindNetwork
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrBulkheadFull):
		return KindUnavailable
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return KindNetwork
		}
	}

	return KindUnknown
}

// Retryable reports whether re-attempting the operation has a reasonable
// chance of succeeding. Validation and auth errors indicate a caller or
// configuration problem that retrying cannot fix.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	switch KindOf(err) {
	case KindValidation, KindAuth:
		return false
	default:
		return true
	}
}
