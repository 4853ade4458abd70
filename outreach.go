// Package outreach assembles the scraping and mailing workflows from
// their parts: resilience wrappers, bulk execution, persistence, and
// telemetry. Callers construct one App from settings and drive whole
// runs through it; nothing in here maintains process-global state.
package outreach

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mlindgren/outreach/bulk"
	"github.com/mlindgren/outreach/config"
	"github.com/mlindgren/outreach/mailer"
	"github.com/mlindgren/outreach/observe"
	"github.com/mlindgren/outreach/resilience"
	"github.com/mlindgren/outreach/scrape"
	"github.com/mlindgren/outreach/store"
)

// Version is stamped into telemetry resources.
const Version = "1.0.0"

// App holds every wired component for one process. Construct it with
// New and release it with Close.
type App struct {
	settings  *config.Settings
	obs       observe.Observer
	stats     *resilience.Stats
	fallbacks *resilience.FallbackRegistry
	scraper   *scrape.Scraper
	mailer    *mailer.Mailer
	store     *store.Store
}

type appOptions struct {
	httpClient *http.Client
	transport  mailer.Transport
	storePath  string
}

// AppOption configures optional App dependencies.
type AppOption func(*appOptions)

// WithHTTPClient replaces the scraper's HTTP client.
func WithHTTPClient(client *http.Client) AppOption {
	return func(o *appOptions) {
		o.httpClient = client
	}
}

// WithMailTransport replaces the SMTP transport, for tests.
func WithMailTransport(t mailer.Transport) AppOption {
	return func(o *appOptions) {
		o.transport = t
	}
}

// WithStorePath overrides the configured database path.
func WithStorePath(path string) AppOption {
	return func(o *appOptions) {
		o.storePath = path
	}
}

// New builds an App from settings. The mailer is only constructed when
// an SMTP host is configured; scraping works without one.
func New(ctx context.Context, settings *config.Settings, opts ...AppOption) (*App, error) {
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	var options appOptions
	for _, opt := range opts {
		opt(&options)
	}

	obs, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: "outreach",
		Version:     Version,
		Metrics: observe.MetricsConfig{
			Enabled:  settings.Metrics.Enabled,
			Exporter: settings.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   settings.Logging.Level,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup observability: %w", err)
	}

	app := &App{
		settings: settings,
		obs:      obs,
		stats:    resilience.NewStats(),
	}
	app.fallbacks = resilience.NewFallbackRegistry(resilience.FallbackRegistryConfig{
		Stats: app.stats,
		OnFallback: func(name string, priority int, cause error) {
			obs.Logger().Warn(context.Background(), "trying fallback",
				observe.F("op", name),
				observe.F("priority", priority),
				observe.F("error", cause.Error()))
		},
	})

	app.scraper = scrape.New(scrape.Config{
		Timeout:   settings.Fetch.Timeout,
		UserAgent: settings.Fetch.UserAgent,
	}, app.scrapeOptions(ctx, options)...)

	if settings.SMTP.Host != "" {
		m, err := mailer.New(mailer.Config{
			Host:     settings.SMTP.Host,
			Port:     settings.SMTP.Port,
			Username: settings.SMTP.Username,
			Password: settings.SMTP.Password,
			From:     settings.SMTP.From,
			FromName: settings.SMTP.FromName,
			Timeout:  settings.SMTP.Timeout,
		}, app.mailerOptions(ctx, options)...)
		if err != nil {
			return nil, err
		}
		app.mailer = m
	}

	path := settings.Storage.Path
	if options.storePath != "" {
		path = options.storePath
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	app.store = st

	return app, nil
}

func (a *App) scrapeOptions(ctx context.Context, options appOptions) []scrape.ScraperOption {
	opts := []scrape.ScraperOption{
		scrape.WithResilience(a.resilienceFor(ctx, scrape.OpName)...),
	}
	if options.httpClient != nil {
		opts = append(opts, scrape.WithHTTPClient(options.httpClient))
	}
	return opts
}

func (a *App) mailerOptions(ctx context.Context, options appOptions) []mailer.Option {
	opts := []mailer.Option{
		mailer.WithResilience(a.resilienceFor(ctx, mailer.OpName)...),
	}
	if options.transport != nil {
		opts = append(opts, mailer.WithTransport(options.transport))
	}
	return opts
}

// resilienceFor builds the per-operation wrapper chain from settings,
// with hooks feeding the logger and metric counters.
func (a *App) resilienceFor(ctx context.Context, op string) []resilience.ResilientOption {
	logger := a.obs.Logger().With(observe.F("op", op))
	metrics := a.obs.Metrics()

	retryConfig := a.settings.RetryConfig()
	retryConfig.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.RecordRetry(ctx, op, attempt)
		logger.Warn(ctx, "retrying after failure",
			observe.F("attempt", attempt),
			observe.F("delay", delay.String()),
			observe.F("error", err.Error()))
	}
	retryConfig.OnRecovered = func(attempts int) {
		logger.Info(ctx, "recovered after retries", observe.F("attempts", attempts))
	}

	opts := []resilience.ResilientOption{
		resilience.WithRetry(resilience.NewRetry(retryConfig, resilience.WithStats(a.stats))),
		resilience.WithFallbacks(a.fallbacks),
	}

	if a.settings.Breaker.Enabled {
		breakerConfig := a.settings.BreakerConfig()
		breakerConfig.OnStateChange = func(from, to resilience.State) {
			metrics.RecordCircuitTransition(ctx, op, from.String(), to.String())
			logger.Warn(ctx, "circuit state changed",
				observe.F("from", from.String()),
				observe.F("to", to.String()))
		}
		opts = append(opts, resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(breakerConfig)))
	}

	return opts
}

// RegisterScrapeFallback adds an alternate scrape source tried when the
// primary scrape is exhausted. Lower priority runs first.
func (a *App) RegisterScrapeFallback(handler resilience.Handler, priority int) {
	a.fallbacks.Register(scrape.OpName, handler, priority)
}

// RegisterSendFallback adds an alternate delivery channel tried when the
// primary send is exhausted. Lower priority runs first.
func (a *App) RegisterSendFallback(handler resilience.Handler, priority int) {
	a.fallbacks.Register(mailer.OpName, handler, priority)
}

func (a *App) bulkConfig(ctx context.Context, progress bulk.ProgressFunc) bulk.Config {
	logger := a.obs.Logger()
	return bulk.Config{
		MaxConcurrent: a.settings.Bulk.MaxConcurrent,
		ItemDelay:     a.settings.Bulk.ItemDelay,
		OnProgress: func(ev bulk.ProgressEvent) {
			logger.Debug(ctx, "bulk item finished",
				observe.F("completed", ev.Completed),
				observe.F("total", ev.Total),
				observe.F("item", ev.Label))
			if progress != nil {
				progress(ev)
			}
		},
	}
}

// ScrapeSites scrapes every URL concurrently, persists the addresses it
// finds, and records the run. The returned error is non-nil only when
// the run itself was cut short; per-site failures live in the Result.
func (a *App) ScrapeSites(ctx context.Context, urls []string, progress bulk.ProgressFunc) ([]scrape.Record, bulk.Result, error) {
	logger := a.obs.Logger().With(observe.F("workflow", "scrape"))
	started := time.Now().UTC()
	logger.Info(ctx, "starting scrape run", observe.F("sites", len(urls)))

	records, result, runErr := a.scraper.ScrapeAll(ctx, urls, a.bulkConfig(ctx, progress))
	finished := time.Now().UTC()
	a.obs.Metrics().RecordBulkRun(ctx, "scrape", result.Succeeded, result.Failed, finished.Sub(started))

	if len(records) > 0 {
		if err := a.store.SaveEmails(ctx, emailRecords(records)); err != nil {
			logger.Error(ctx, "failed to persist scraped emails", observe.F("error", err.Error()))
		}
	}
	if err := a.store.SaveRun(ctx, store.RunSummary{
		ID:         result.RunID,
		Kind:       "scrape",
		Total:      result.Total,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		StartedAt:  started,
		FinishedAt: finished,
	}); err != nil {
		logger.Error(ctx, "failed to persist run summary", observe.F("error", err.Error()))
	}

	logger.Info(ctx, "scrape run finished",
		observe.F("run_id", result.RunID),
		observe.F("succeeded", result.Succeeded),
		observe.F("failed", result.Failed),
		observe.F("emails", len(records)))
	return records, result, runErr
}

// SendEmails sends every message concurrently, updates each recipient's
// stored status, and records the run. Requires a configured SMTP host.
func (a *App) SendEmails(ctx context.Context, msgs []mailer.Message, progress bulk.ProgressFunc) ([]mailer.Delivery, bulk.Result, error) {
	if a.mailer == nil {
		return nil, bulk.Result{}, resilience.NewError(resilience.KindValidation, mailer.OpName,
			"no SMTP host configured")
	}

	logger := a.obs.Logger().With(observe.F("workflow", "send"))
	started := time.Now().UTC()
	logger.Info(ctx, "starting send run", observe.F("messages", len(msgs)))

	deliveries, result, runErr := a.mailer.SendAll(ctx, msgs, a.bulkConfig(ctx, progress))
	finished := time.Now().UTC()
	a.obs.Metrics().RecordBulkRun(ctx, "send", result.Succeeded, result.Failed, finished.Sub(started))

	for _, d := range deliveries {
		if err := a.store.MarkSent(ctx, d.To, d.SentAt, d.Error); err != nil {
			logger.Error(ctx, "failed to update delivery status",
				observe.F("to", d.To), observe.F("error", err.Error()))
		}
	}
	if err := a.store.SaveRun(ctx, store.RunSummary{
		ID:         result.RunID,
		Kind:       "send",
		Total:      result.Total,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		StartedAt:  started,
		FinishedAt: finished,
	}); err != nil {
		logger.Error(ctx, "failed to persist run summary", observe.F("error", err.Error()))
	}

	logger.Info(ctx, "send run finished",
		observe.F("run_id", result.RunID),
		observe.F("succeeded", result.Succeeded),
		observe.F("failed", result.Failed))
	return deliveries, result, runErr
}

// Stats exposes the retry and fallback counters shared by both
// workflows.
func (a *App) Stats() *resilience.Stats {
	return a.stats
}

// Store exposes the persistence layer for queries.
func (a *App) Store() *store.Store {
	return a.store
}

// Logger exposes the application logger.
func (a *App) Logger() observe.Logger {
	return a.obs.Logger()
}

// Close releases the database and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.obs.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func emailRecords(records []scrape.Record) []store.EmailRecord {
	out := make([]store.EmailRecord, 0, len(records))
	for _, r := range records {
		out = append(out, store.EmailRecord{
			ID:        r.ID,
			Address:   r.Email,
			SourceURL: r.SourceURL,
			Status:    store.StatusFound,
			FoundAt:   r.FoundAt,
		})
	}
	return out
}
