// Package config loads and validates application settings from YAML.
// The core never reads configuration itself; values flow in from here at
// startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mlindgren/outreach/resilience"
)

// Settings is the root configuration document.
type Settings struct {
	Retry   RetrySettings   `yaml:"retry"`
	Breaker BreakerSettings `yaml:"breaker"`
	Bulk    BulkSettings    `yaml:"bulk"`
	Fetch   FetchSettings   `yaml:"fetch"`
	SMTP    SMTPSettings    `yaml:"smtp"`
	Storage StorageSettings `yaml:"storage"`
	Logging LoggingSettings `yaml:"logging"`
	Metrics MetricsSettings `yaml:"metrics"`
}

// RetrySettings maps onto resilience.RetryConfig.
type RetrySettings struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	Strategy    string        `yaml:"strategy"` // exponential|linear|fixed|immediate
	Jitter      bool          `yaml:"jitter"`
}

// BreakerSettings maps onto resilience.CircuitBreakerConfig.
type BreakerSettings struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// BulkSettings configures bulk runs.
type BulkSettings struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	ItemDelay     time.Duration `yaml:"item_delay"`
}

// FetchSettings configures site fetching.
type FetchSettings struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// SMTPSettings configures outgoing mail.
type SMTPSettings struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	FromName string        `yaml:"from_name"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageSettings configures local persistence.
type StorageSettings struct {
	Path string `yaml:"path"`
}

// LoggingSettings configures the structured logger.
type LoggingSettings struct {
	Level string `yaml:"level"`
}

// MetricsSettings configures metric export.
type MetricsSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout|none
}

// Load reads, defaults and validates settings from a YAML file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default returns settings with all defaults applied and no SMTP
// credentials.
func Default() *Settings {
	var s Settings
	s.ApplyDefaults()
	return &s
}

// ApplyDefaults fills zero values with usable defaults.
func (s *Settings) ApplyDefaults() {
	if s.Retry.MaxAttempts <= 0 {
		s.Retry.MaxAttempts = 3
	}
	if s.Retry.BaseDelay <= 0 {
		s.Retry.BaseDelay = time.Second
	}
	if s.Retry.MaxDelay <= 0 {
		s.Retry.MaxDelay = 60 * time.Second
	}
	if s.Retry.Multiplier <= 0 {
		s.Retry.Multiplier = 2.0
	}
	if s.Retry.Strategy == "" {
		s.Retry.Strategy = "exponential"
	}
	if s.Breaker.FailureThreshold <= 0 {
		s.Breaker.FailureThreshold = 5
	}
	if s.Breaker.RecoveryTimeout <= 0 {
		s.Breaker.RecoveryTimeout = 60 * time.Second
	}
	if s.Bulk.MaxConcurrent <= 0 {
		s.Bulk.MaxConcurrent = 3
	}
	if s.Bulk.ItemDelay == 0 {
		s.Bulk.ItemDelay = 100 * time.Millisecond
	}
	if s.Fetch.Timeout <= 0 {
		s.Fetch.Timeout = 15 * time.Second
	}
	if s.Fetch.UserAgent == "" {
		s.Fetch.UserAgent = "outreach/1.0"
	}
	if s.SMTP.Port <= 0 {
		s.SMTP.Port = 587
	}
	if s.SMTP.Timeout <= 0 {
		s.SMTP.Timeout = 30 * time.Second
	}
	if s.Storage.Path == "" {
		s.Storage.Path = "data/outreach.db"
	}
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
	if s.Metrics.Exporter == "" {
		s.Metrics.Exporter = "none"
	}
}

// Validate checks the settings for values no component could run with.
func (s *Settings) Validate() error {
	if _, err := parseStrategy(s.Retry.Strategy); err != nil {
		return err
	}
	if s.Retry.MaxDelay < s.Retry.BaseDelay {
		return fmt.Errorf("config: retry max_delay (%s) must not be below base_delay (%s)",
			s.Retry.MaxDelay, s.Retry.BaseDelay)
	}
	switch s.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", s.Logging.Level)
	}
	switch s.Metrics.Exporter {
	case "stdout", "none":
	default:
		return fmt.Errorf("config: unknown metrics exporter %q", s.Metrics.Exporter)
	}
	return nil
}

func parseStrategy(s string) (resilience.BackoffStrategy, error) {
	switch s {
	case "exponential":
		return resilience.BackoffExponential, nil
	case "linear":
		return resilience.BackoffLinear, nil
	case "fixed":
		return resilience.BackoffFixed, nil
	case "immediate":
		return resilience.BackoffImmediate, nil
	default:
		return 0, fmt.Errorf("config: unknown retry strategy %q", s)
	}
}

// RetryConfig converts the retry settings into a resilience.RetryConfig.
func (s *Settings) RetryConfig() resilience.RetryConfig {
	strategy, _ := parseStrategy(s.Retry.Strategy)
	return resilience.RetryConfig{
		MaxAttempts: s.Retry.MaxAttempts,
		BaseDelay:   s.Retry.BaseDelay,
		MaxDelay:    s.Retry.MaxDelay,
		Multiplier:  s.Retry.Multiplier,
		Strategy:    strategy,
		Jitter:      s.Retry.Jitter,
	}
}

// BreakerConfig converts the breaker settings into a
// resilience.CircuitBreakerConfig.
func (s *Settings) BreakerConfig() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold: s.Breaker.FailureThreshold,
		RecoveryTimeout:  s.Breaker.RecoveryTimeout,
	}
}
