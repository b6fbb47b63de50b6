package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	Output    OutputConfig    `yaml:"output"`
	DNS       DNSConfig       `yaml:"dns"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Webhook   WebhookConfig   `yaml:"webhook"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "127.0.0.1"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser sessions.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless. A visible window
	// is needed to solve a CAPTCHA by hand.
	Headless bool `yaml:"headless"` // default: false

	// Proxy is the default proxy URL for sessions and outbound HTTP.
	Proxy string `yaml:"proxy"`

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`

	// BlockedResourceTypes lists resource types to block while listing.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`

	// BlockAds drops requests to known ad and tracking hosts.
	BlockAds bool `yaml:"block_ads"` // default: true
}

// ScraperConfig controls per-target scraping behaviour.
type ScraperConfig struct {
	// NavigationTimeout is the max time for one page.Navigate.
	NavigationTimeout time.Duration `yaml:"navigation_timeout"` // default: 30s

	// SelectorTimeout bounds waits for a single element.
	SelectorTimeout time.Duration `yaml:"selector_timeout"` // default: 10s

	// Settle is the pause after every interaction.
	Settle time.Duration `yaml:"settle"` // default: 1.5s

	// MaxRecords caps records per target. 0 = unbounded.
	MaxRecords int `yaml:"max_records"` // default: 0

	// MaxIterations is the hard cap on pagination rounds.
	MaxIterations int `yaml:"max_iterations"` // default: 500
}

// CaptchaConfig controls challenge detection.
type CaptchaConfig struct {
	Markers      []string      `yaml:"markers"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`  // default: 3s
	PollInterval time.Duration `yaml:"poll_interval"` // default: 250ms
}

// OutputConfig controls where batch results are written.
type OutputConfig struct {
	BaseDir string `yaml:"base_dir"` // default: "output"
	Format  string `yaml:"format"`   // "csv", "xlsx", "sqlite"; default: "csv"
}

// DNSConfig controls the dns mode.
type DNSConfig struct {
	// Resolver is the upstream nameserver (host:port).
	Resolver string `yaml:"resolver"` // default: "1.1.1.1:53"

	// Concurrency bounds in-flight domains.
	Concurrency int `yaml:"concurrency"` // default: 8

	// Timeout bounds a single DNS exchange.
	Timeout time.Duration `yaml:"timeout"` // default: 5s
}

// EnrichConfig controls third-party lookups.
type EnrichConfig struct {
	// PageSpeedKey is required when performance audits are requested.
	PageSpeedKey string `yaml:"pagespeed_key"`

	// VATRegistry toggles VIES validation of discovered VAT ids.
	VATRegistry bool `yaml:"vat_registry"` // default: true

	// CacheTTL is how long a per-domain enrichment result is reused.
	CacheTTL time.Duration `yaml:"cache_ttl"` // default: 24h

	// CacheMaxEntries bounds the enrichment cache.
	CacheMaxEntries int `yaml:"cache_max_entries"` // default: 1000

	// RatePerSecond throttles outbound enrichment HTTP.
	RatePerSecond float64 `yaml:"rate_per_second"` // default: 4
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: false

	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 5

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "text"

	// File, when set, additionally writes logs to a rotated file.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"` // default: 50
	MaxBackups int    `yaml:"max_backups"` // default: 3
}

// WebhookConfig controls the batch-completed notification.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HARVEST_HOST", "127.0.0.1"),
			Port: envIntOr("HARVEST_PORT", 8080),
			Mode: envOr("HARVEST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("HARVEST_HEADLESS", false),
			Proxy:                os.Getenv("HARVEST_PROXY"),
			NoSandbox:            envBoolOr("HARVEST_NO_SANDBOX", false),
			BrowserBin:           os.Getenv("HARVEST_BROWSER_BIN"),
			BlockedResourceTypes: envSliceOr("HARVEST_BLOCKED_RESOURCES", []string{"Font", "Media"}),
			BlockAds:             envBoolOr("HARVEST_BLOCK_ADS", true),
		},
		Scraper: ScraperConfig{
			NavigationTimeout: envDurationOr("HARVEST_NAV_TIMEOUT", 30*time.Second),
			SelectorTimeout:   envDurationOr("HARVEST_SELECTOR_TIMEOUT", 10*time.Second),
			Settle:            envDurationOr("HARVEST_SETTLE", 1500*time.Millisecond),
			MaxRecords:        envIntOr("HARVEST_MAX_RECORDS", 0),
			MaxIterations:     envIntOr("HARVEST_MAX_ITERATIONS", 500),
		},
		Captcha: CaptchaConfig{
			Markers:      envSliceOr("HARVEST_CAPTCHA_MARKERS", nil),
			PollTimeout:  envDurationOr("HARVEST_CAPTCHA_POLL_TIMEOUT", 3*time.Second),
			PollInterval: envDurationOr("HARVEST_CAPTCHA_POLL_INTERVAL", 250*time.Millisecond),
		},
		Output: OutputConfig{
			BaseDir: envOr("HARVEST_OUTPUT_DIR", "output"),
			Format:  envOr("HARVEST_OUTPUT_FORMAT", "csv"),
		},
		DNS: DNSConfig{
			Resolver:    envOr("HARVEST_DNS_RESOLVER", "1.1.1.1:53"),
			Concurrency: envIntOr("HARVEST_DNS_CONCURRENCY", 8),
			Timeout:     envDurationOr("HARVEST_DNS_TIMEOUT", 5*time.Second),
		},
		Enrich: EnrichConfig{
			PageSpeedKey:    os.Getenv("HARVEST_PAGESPEED_KEY"),
			VATRegistry:     envBoolOr("HARVEST_VAT_REGISTRY", true),
			CacheTTL:        envDurationOr("HARVEST_ENRICH_CACHE_TTL", 24*time.Hour),
			CacheMaxEntries: envIntOr("HARVEST_ENRICH_CACHE_MAX", 1000),
			RatePerSecond:   envFloatOr("HARVEST_ENRICH_RPS", 4.0),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVEST_AUTH_ENABLED", false),
			APIKeys: envSliceOr("HARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVEST_RATE_RPS", 5.0),
			Burst:             envIntOr("HARVEST_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:      envOr("HARVEST_LOG_LEVEL", "info"),
			Format:     envOr("HARVEST_LOG_FORMAT", "text"),
			File:       os.Getenv("HARVEST_LOG_FILE"),
			MaxSizeMB:  envIntOr("HARVEST_LOG_MAX_SIZE_MB", 50),
			MaxBackups: envIntOr("HARVEST_LOG_MAX_BACKUPS", 3),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("HARVEST_WEBHOOK_URL"),
			Secret: os.Getenv("HARVEST_WEBHOOK_SECRET"),
		},
	}
}

// LoadFile overlays a YAML file on top of the environment configuration.
// Keys absent from the file keep their Load value.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
