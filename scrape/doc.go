// Package scrape finds email addresses on websites.
//
// A Scraper fetches one page at a time; ScrapeAll drives many sites
// through the bulk runner with bounded concurrency, delegating retries,
// fallbacks and circuit breaking to the resilience wrappers it is
// configured with. Per-site failures land in the bulk result's failure
// list without aborting the run.
package scrape
