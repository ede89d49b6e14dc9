package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration for one image health scan.
type Config struct {
	Crawl     CrawlConfig     `yaml:"crawl"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Rendering RenderingConfig `yaml:"rendering"`
	Check     CheckConfig     `yaml:"check"`
	Export    ExportConfig    `yaml:"export"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CrawlConfig is the primary input surface: what site to scan and how much of it.
type CrawlConfig struct {
	BaseURL         string `yaml:"base_url"`
	MaxPages        int    `yaml:"max_pages"`
	IncludeExternal bool   `yaml:"include_external"`
	UserAgent       string `yaml:"user_agent"`
	// InternalMatch selects how image hosts are classified against the base
	// domain: "contains" (substring, the historical behaviour) or "suffix"
	// (exact host or dot-boundary suffix).
	InternalMatch string `yaml:"internal_match"`
}

// DiscoveryConfig bounds the page-graph traversal.
type DiscoveryConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	MaxLoadMoreClicks int      `yaml:"max_load_more_clicks"`
	ContentKeywords   []string `yaml:"content_keywords"`
	LoadMoreWait      Duration `yaml:"load_more_wait"`
}

// RenderingConfig tunes the in-page lazy-load reveal sequence.
type RenderingConfig struct {
	NavigationTimeout Duration `yaml:"navigation_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	SettleDelay       Duration `yaml:"settle_delay"`
	ScrollStep        int      `yaml:"scroll_step"`
	ScrollOvershoot   float64  `yaml:"scroll_overshoot"`
	DisableHeadless   bool     `yaml:"disable_headless"`
}

// CheckConfig controls the image status checker.
type CheckConfig struct {
	Timeout       Duration        `yaml:"timeout"`
	RateLimit     RateLimitConfig `yaml:"rate_limit_per_host"`
	MaxSniffBytes int64           `yaml:"max_sniff_bytes"`
}

// RateLimitConfig applies a token bucket per host.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether per-host rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// ExportConfig names the destinations results are written to. Empty values
// disable the corresponding sink.
type ExportConfig struct {
	CSVPath   string `yaml:"csv_path"`
	XLSXPath  string `yaml:"xlsx_path"`
	SQLiteDSN string `yaml:"sqlite_dsn"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxPages:      100,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			InternalMatch: "contains",
		},
		Discovery: DiscoveryConfig{
			MaxDepth:          10,
			MaxLoadMoreClicks: 20,
			ContentKeywords:   []string{"article", "post", "blog"},
			LoadMoreWait:      DurationFrom(2 * time.Second),
		},
		Rendering: RenderingConfig{
			NavigationTimeout: DurationFrom(30 * time.Second),
			IdleTimeout:       DurationFrom(30 * time.Second),
			SettleDelay:       DurationFrom(2 * time.Second),
			ScrollStep:        100,
			ScrollOvershoot:   1.5,
		},
		Check: CheckConfig{
			Timeout:       DurationFrom(12 * time.Second),
			MaxSniffBytes: 512,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces required invariants for the scan configuration.
func (c Config) Validate() error {
	if c.Crawl.BaseURL == "" {
		return errors.New("crawl.base_url must be set")
	}
	parsed, err := url.Parse(c.Crawl.BaseURL)
	if err != nil {
		return fmt.Errorf("crawl.base_url invalid: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("crawl.base_url must be absolute http(s) (got %q)", c.Crawl.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("crawl.base_url %q missing host", c.Crawl.BaseURL)
	}
	if c.Crawl.MaxPages < 1 || c.Crawl.MaxPages > 1000 {
		return fmt.Errorf("crawl.max_pages must be between 1 and 1000 (got %d)", c.Crawl.MaxPages)
	}
	switch c.Crawl.InternalMatch {
	case "contains", "suffix":
	default:
		return fmt.Errorf("crawl.internal_match must be \"contains\" or \"suffix\" (got %q)", c.Crawl.InternalMatch)
	}
	if strings.TrimSpace(c.Crawl.UserAgent) == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if c.Discovery.MaxDepth <= 0 {
		return fmt.Errorf("discovery.max_depth must be > 0 (got %d)", c.Discovery.MaxDepth)
	}
	if c.Discovery.MaxLoadMoreClicks < 0 {
		return fmt.Errorf("discovery.max_load_more_clicks must be >= 0 (got %d)", c.Discovery.MaxLoadMoreClicks)
	}
	if c.Rendering.ScrollStep <= 0 {
		return fmt.Errorf("rendering.scroll_step must be > 0 (got %d)", c.Rendering.ScrollStep)
	}
	if c.Rendering.ScrollOvershoot < 1 {
		return fmt.Errorf("rendering.scroll_overshoot must be >= 1 (got %g)", c.Rendering.ScrollOvershoot)
	}
	if c.Check.Timeout.IsZero() {
		return errors.New("check.timeout must be > 0")
	}
	if c.Check.MaxSniffBytes <= 0 {
		return fmt.Errorf("check.max_sniff_bytes must be > 0 (got %d)", c.Check.MaxSniffBytes)
	}
	if rl := c.Check.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("check.rate_limit_per_host.requests must be >= 0 (got %d)", rl.Requests)
	}
	return nil
}

func (c *Config) normalise() {
	c.Crawl.BaseURL = strings.TrimSpace(c.Crawl.BaseURL)
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	c.Crawl.InternalMatch = strings.ToLower(strings.TrimSpace(c.Crawl.InternalMatch))
	if c.Crawl.InternalMatch == "" {
		c.Crawl.InternalMatch = "contains"
	}

	if len(c.Discovery.ContentKeywords) > 0 {
		unique := make(map[string]struct{}, len(c.Discovery.ContentKeywords))
		cleaned := make([]string, 0, len(c.Discovery.ContentKeywords))
		for _, raw := range c.Discovery.ContentKeywords {
			kw := strings.ToLower(strings.TrimSpace(raw))
			if kw == "" {
				continue
			}
			if _, exists := unique[kw]; exists {
				continue
			}
			unique[kw] = struct{}{}
			cleaned = append(cleaned, kw)
		}
		c.Discovery.ContentKeywords = cleaned
	}

	c.Export.CSVPath = strings.TrimSpace(c.Export.CSVPath)
	c.Export.XLSXPath = strings.TrimSpace(c.Export.XLSXPath)
	c.Export.SQLiteDSN = strings.TrimSpace(c.Export.SQLiteDSN)
}
