package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mlindgren/outreach/bulk"
	"github.com/mlindgren/outreach/resilience"
)

// OpName keys the scrape operation in fallback registries and stats.
const OpName = "scrape"

// Record is one email address found on a site.
type Record struct {
	ID        string
	Email     string
	SourceURL string
	FoundAt   time.Time
}

// Config configures the scraper.
type Config struct {
	// Timeout bounds one page fetch.
	// Default: 15s
	Timeout time.Duration

	// UserAgent is sent with every request.
	// Default: "outreach/1.0"
	UserAgent string

	// MaxBodyBytes caps how much of a page is read.
	// Default: 2MB
	MaxBodyBytes int64
}

// Scraper fetches pages and extracts email addresses.
type Scraper struct {
	config  Config
	client  *http.Client
	resOpts []resilience.ResilientOption
}

// ScraperOption configures a Scraper.
type ScraperOption func(*Scraper)

// WithHTTPClient replaces the HTTP client, for tests or custom transports.
func WithHTTPClient(client *http.Client) ScraperOption {
	return func(s *Scraper) {
		s.client = client
	}
}

// WithResilience sets the resilience wrappers applied around each
// per-site scrape during a bulk run.
func WithResilience(opts ...resilience.ResilientOption) ScraperOption {
	return func(s *Scraper) {
		s.resOpts = opts
	}
}

// New creates a Scraper.
func New(config Config, opts ...ScraperOption) *Scraper {
	// Apply defaults
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "outreach/1.0"
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 2 << 20
	}

	s := &Scraper{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeURL validates a raw URL and fills in a missing scheme,
// defaulting to https like a browser address bar.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", resilience.NewError(resilience.KindValidation, OpName, "URL cannot be empty")
	}

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", resilience.NewError(resilience.KindValidation, OpName, "invalid URL %q: %v", raw, err)
	}
	if u.Host == "" {
		return "", resilience.NewError(resilience.KindValidation, OpName, "invalid URL format: %q", raw)
	}
	if !strings.Contains(u.Hostname(), ".") {
		return "", resilience.NewError(resilience.KindValidation, OpName, "invalid domain format: %q", u.Host)
	}

	return u.String(), nil
}

// Scrape fetches one site and returns the email addresses found on it.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) ([]Record, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, resilience.NewError(resilience.KindValidation, OpName, "building request for %s: %v", target, err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, resilience.WrapError(resilience.KindNetwork, OpName, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, target); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBodyBytes))
	if err != nil {
		return nil, resilience.WrapError(resilience.KindNetwork, OpName, fmt.Errorf("reading %s: %w", target, err))
	}

	emails := ExtractEmails(body)
	now := time.Now().UTC()
	records := make([]Record, 0, len(emails))
	for _, email := range emails {
		records = append(records, Record{
			ID:        uuid.NewString(),
			Email:     email,
			SourceURL: target,
			FoundAt:   now,
		})
	}
	return records, nil
}

func classifyStatus(code int, target string) error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusTooManyRequests:
		return resilience.NewError(resilience.KindQuota, OpName, "rate limited by %s", target)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return resilience.NewError(resilience.KindAuth, OpName, "access denied by %s (status %d)", target, code)
	case code >= 500:
		return resilience.NewError(resilience.KindUnavailable, OpName, "%s returned status %d", target, code)
	default:
		return resilience.NewError(resilience.KindNetwork, OpName, "%s returned status %d", target, code)
	}
}

// ScrapeAll scrapes every URL under the given bulk configuration. It
// returns all extracted records, the per-site accounting summary, and a
// run-level error only when the run was cancelled. All resilience
// behavior lives in the wrappers configured via WithResilience.
func (s *Scraper) ScrapeAll(ctx context.Context, urls []string, bulkConfig bulk.Config) ([]Record, bulk.Result, error) {
	op := resilience.NewResilient(OpName, s.Scrape, s.resOpts...)
	runner := bulk.NewRunner(bulkConfig, op,
		bulk.WithLabel[string](func(u string) string { return u }),
	)

	lists, result, err := runner.Run(ctx, urls)

	var records []Record
	for _, list := range lists {
		records = append(records, list...)
	}
	return records, result, err
}
