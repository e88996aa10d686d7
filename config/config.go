package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Feedsync   FeedsyncConfig   `yaml:"feedsync"`
	Sync       SyncConfig       `yaml:"sync"`
	Feeds      FeedsConfig      `yaml:"feeds"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	State      StateConfig      `yaml:"state"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type FeedsyncConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type SyncConfig struct {
	// Interval between runs; zero means a single run.
	Interval        time.Duration `yaml:"interval"`
	DryRun          bool          `yaml:"dry_run"`
	RequireAllFeeds bool          `yaml:"require_all_feeds"`
}

type FeedsConfig struct {
	File          string        `yaml:"file"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	UserAgent     string        `yaml:"user_agent"`
}

type CatalogConfig struct {
	BaseURL        string          `yaml:"base_url"`
	UpdateEndpoint string          `yaml:"update_endpoint"`
	ListEndpoint   string          `yaml:"list_endpoint"`
	AuthHeader     string          `yaml:"auth_header"`
	AuthScheme     string          `yaml:"auth_scheme"`
	Token          string          `yaml:"token"`
	Timeout        time.Duration   `yaml:"timeout"`
	ResolveIDs     bool            `yaml:"resolve_ids"`
	PageSize       int             `yaml:"page_size"`
	MaxPages       int             `yaml:"max_pages"`
	IDMapCSV       string          `yaml:"id_map_csv"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type DispatcherConfig struct {
	BatchSize     int         `yaml:"batch_size"`
	MaxConcurrent int         `yaml:"max_concurrent"`
	Retry         RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
	Jitter            float64       `yaml:"jitter"`
}

type StateConfig struct {
	Dir          string `yaml:"dir"`
	FeedsFile    string `yaml:"feeds_file"`
	ProductsFile string `yaml:"products_file"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch bool   `yaml:"cloudwatch"`
	Region     string `yaml:"region"`
	Namespace  string `yaml:"namespace"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Feeds: FeedsConfig{
			Timeout:       120 * time.Second,
			MaxConcurrent: 8,
		},
		Catalog: CatalogConfig{
			UpdateEndpoint: "/api/v1/products/edit_by_external_id",
			ListEndpoint:   "/api/v1/products/list",
			AuthHeader:     "Authorization",
			AuthScheme:     "Bearer",
			Timeout:        120 * time.Second,
			PageSize:       100,
			MaxPages:       500,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				BurstSize:         1,
			},
		},
		Dispatcher: DispatcherConfig{
			BatchSize:     500,
			MaxConcurrent: 4,
			Retry: RetryConfig{
				MaxAttempts:       5,
				BaseDelay:         500 * time.Millisecond,
				MaxDelay:          30 * time.Second,
				BackoffMultiplier: 2,
				Jitter:            0.2,
			},
		},
		State: StateConfig{
			Dir:          ".state",
			FeedsFile:    "feeds_state.json",
			ProductsFile: "products_state.json",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Secrets and deploy-specific settings come from the environment.
	if v := os.Getenv("CATALOG_API_TOKEN"); v != "" {
		config.Catalog.Token = strings.TrimSpace(v)
	}
	if v := os.Getenv("CATALOG_BASE_URL"); v != "" {
		config.Catalog.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("FEEDS_FILE"); v != "" {
		config.Feeds.File = strings.TrimSpace(v)
	}
	if v := os.Getenv("CATALOG_ID_CSV"); v != "" {
		config.Catalog.IDMapCSV = strings.TrimSpace(v)
	}
	if os.Getenv("DRY_RUN") == "1" {
		config.Sync.DryRun = true
	}

	config.Catalog.BaseURL = strings.TrimSuffix(strings.TrimSpace(config.Catalog.BaseURL), "/")

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Feedsync.Name == "" {
		return fmt.Errorf("feedsync.name is required")
	}

	if cfg.Feedsync.Version == "" {
		return fmt.Errorf("feedsync.version is required")
	}

	if cfg.Feeds.File == "" {
		return fmt.Errorf("feeds.file is required")
	}

	if cfg.Feeds.MaxConcurrent <= 0 {
		return fmt.Errorf("feeds.max_concurrent must be greater than 0")
	}

	if cfg.Feeds.Timeout <= 0 {
		return fmt.Errorf("feeds.timeout must be greater than 0")
	}

	if cfg.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if !isValidBaseURL(cfg.Catalog.BaseURL) {
		return fmt.Errorf("catalog.base_url '%s' is invalid", cfg.Catalog.BaseURL)
	}

	if cfg.Dispatcher.BatchSize <= 0 {
		return fmt.Errorf("dispatcher.batch_size must be greater than 0")
	}
	if cfg.Dispatcher.MaxConcurrent <= 0 {
		return fmt.Errorf("dispatcher.max_concurrent must be greater than 0")
	}
	if cfg.Dispatcher.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("dispatcher.retry.max_attempts must be greater than 0")
	}
	if cfg.Dispatcher.Retry.BaseDelay <= 0 {
		return fmt.Errorf("dispatcher.retry.base_delay must be greater than 0")
	}
	if cfg.Dispatcher.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("dispatcher.retry.backoff_multiplier must be at least 1")
	}

	if cfg.State.Dir == "" {
		return fmt.Errorf("state.dir is required")
	}

	return nil
}

func isValidBaseURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
