// Package bulk runs one resilient operation over many items with
// bounded concurrency.
//
// Items are dispatched in input order but may complete out of order;
// progress events and the failed-item list reflect completion order.
// Per-item failures are folded into the Result and never abort the run.
//
//	runner := bulk.NewRunner(bulk.Config{MaxConcurrent: 3}, op,
//	    bulk.WithLabel(func(u string) string { return u }),
//	)
//	outputs, result, err := runner.Run(ctx, urls)
package bulk
