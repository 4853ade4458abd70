package bulk

// ItemError records one failed item in completion order.
type ItemError struct {
	// Item is the caller-facing label for the item (URL, recipient).
	Item string
	// Reason is a human-readable failure message.
	Reason string
}

// Result summarizes one bulk run. Succeeded+Failed always equals Total,
// and len(FailedItems) always equals Failed. On a cancelled run Total
// reflects the items actually attempted.
type Result struct {
	// RunID correlates log entries and persisted summaries for one run.
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	// FailedItems preserves the order failures were observed, which is
	// completion order, not input order.
	FailedItems []ItemError
}

// ProgressEvent is emitted after each item completes.
type ProgressEvent struct {
	// Completed increases monotonically from 1 to Total.
	Completed int
	Total     int
	// Label identifies the item that just finished.
	Label string
}

// ProgressFunc receives progress events. It is called synchronously from
// worker goroutines and should return quickly.
type ProgressFunc func(ProgressEvent)
