package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Queue       QueueConfig     `toml:"queue"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Fetch       FetchConfig     `toml:"fetch"`
	Poll        PollConfig      `toml:"poll"`
	Publish     PublishConfig   `toml:"publish"`
	Auth        AuthConfig      `toml:"auth"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// RetryConfig holds retry settings for a single job kind.
type RetryConfig struct {
	MaxAttempts int    `toml:"max_attempts"`
	BackoffBase string `toml:"backoff_base"` // e.g., "2s"
}

// QueueConfig configures the worker pool and per-kind retry behavior.
type QueueConfig struct {
	PollInterval string                 `toml:"poll_interval"` // e.g., "1s" - how often workers poll for jobs
	Concurrency  int                    `toml:"concurrency"`   // Number of concurrent workers
	MaxAttempts  int                    `toml:"max_attempts"`  // Global fallback before dead-letter
	BackoffBase  string                 `toml:"backoff_base"`  // Global fallback backoff base, e.g., "30s"
	Retry        map[string]RetryConfig `toml:"retry"`         // Per job-kind overrides, keyed by kind
}

type SchedulerConfig struct {
	ScanInterval string `toml:"scan_interval"` // e.g., "10s" - how often due schedules are scanned
}

// FetchConfig configures the authenticated fetcher.
type FetchConfig struct {
	Timeout           string   `toml:"timeout"`            // Per-request timeout for feed/article fetches, e.g., "30s"
	LoginTimeout      string   `toml:"login_timeout"`      // Timeout for login attempts, e.g., "10s"
	UserAgent         string   `toml:"user_agent"`         // User agent for outbound requests
	LoginPathTokens   []string `toml:"login_path_tokens"`  // URL substrings that classify a redirect as a login page
	PaywallIndicators []string `toml:"paywall_indicators"` // Body substrings that classify a response as paywalled
	BrowserHeadless   bool     `toml:"browser_headless"`   // Run chromedp headless (default true)
}

type PollConfig struct {
	DefaultLookback string `toml:"default_lookback"` // First-poll lookback window, e.g., "168h"
}

// PublishConfig configures the remote bookmarking client and dedup window.
type PublishConfig struct {
	BaseURL     string `toml:"base_url"`     // Remote bookmarking service base URL
	MinInterval string `toml:"min_interval"` // Minimum spacing between remote calls, e.g., "2s"
	DedupWindow string `toml:"dedup_window"` // Idempotency window for repeat URLs, e.g., "24h"
	Timeout     string `toml:"timeout"`      // HTTP timeout for remote calls
}

// AuthConfig contains configuration for recipe and credential file loading
type AuthConfig struct {
	RecipesDir     string `toml:"recipes_dir"`     // Directory containing login recipe files (TOML)
	CredentialsDir string `toml:"credentials_dir"` // Directory containing credential files (TOML)
}

// DefaultConfig returns the configuration defaults applied before any file is read.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/feedclip"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Queue: QueueConfig{
			PollInterval: "1s",
			Concurrency:  4,
			MaxAttempts:  3,
			BackoffBase:  "30s",
		},
		Scheduler: SchedulerConfig{
			ScanInterval: "10s",
		},
		Fetch: FetchConfig{
			Timeout:      "30s",
			LoginTimeout: "10s",
			UserAgent:    "feedclip/" + Version,
			LoginPathTokens: []string{
				"/login", "/signin", "/sign-in", "/account/login",
			},
			PaywallIndicators: []string{
				"subscribe to read",
				"subscribe now to continue",
				"subscription required",
				"this content is for subscribers",
				"already a subscriber?",
				"register to continue reading",
			},
			BrowserHeadless: true,
		},
		Poll: PollConfig{
			DefaultLookback: "168h", // 7 days
		},
		Publish: PublishConfig{
			BaseURL:     "https://www.instapaper.com",
			MinInterval: "2s",
			DedupWindow: "24h",
			Timeout:     "30s",
		},
		Auth: AuthConfig{
			RecipesDir:     "./recipes",
			CredentialsDir: "./credentials",
		},
	}
}

// LoadFromFiles loads configuration in order: defaults -> files (later override
// earlier) -> environment overrides. Missing files are an error; an empty path
// list returns defaults plus env overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies a small set of environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FEEDCLIP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FEEDCLIP_DATA_DIR"); v != "" {
		cfg.Storage.Badger.Path = v
	}
	if v := os.Getenv("FEEDCLIP_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
}

// Validate checks structural validity and that all duration strings parse.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"queue.poll_interval":     c.Queue.PollInterval,
		"queue.backoff_base":      c.Queue.BackoffBase,
		"scheduler.scan_interval": c.Scheduler.ScanInterval,
		"fetch.timeout":           c.Fetch.Timeout,
		"fetch.login_timeout":     c.Fetch.LoginTimeout,
		"poll.default_lookback":   c.Poll.DefaultLookback,
		"publish.min_interval":    c.Publish.MinInterval,
		"publish.dedup_window":    c.Publish.DedupWindow,
		"publish.timeout":         c.Publish.Timeout,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", key, value)
		}
	}
	for kind, rc := range c.Queue.Retry {
		if rc.BackoffBase != "" {
			if _, err := time.ParseDuration(rc.BackoffBase); err != nil {
				return fmt.Errorf("invalid duration for queue.retry.%s.backoff_base: %q", kind, rc.BackoffBase)
			}
		}
	}
	return nil
}

// Duration parses a duration string, falling back to the given default when
// the string is empty or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
