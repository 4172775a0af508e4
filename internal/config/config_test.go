package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  base_origin: https://staging.rbauction.com
  backend: rendered
  user_agents: ["agent-a", "agent-b"]
  concurrency: 3
  request_timeout: 20s
  jitter_min: 1s
  jitter_max: 3s
  settle_delay: 500ms
  host_rps: 2.5
  seed: 42
selectors:
  image_prefixes: ["https://img.example.com"]
discovery:
  max_links: 1
  strip_query: true
  link_contains: /pdp/
  cache_ttl: 10m
report:
  sinks: [console, file]
  format: markdown
  output_dir: out
server:
  port: 9090
logging:
  development: false
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Crawler.BaseOrigin != "https://staging.rbauction.com" || cfg.Crawler.Backend != "rendered" {
		t.Fatalf("expected crawler overrides, got %+v", cfg.Crawler)
	}
	if len(cfg.Crawler.UserAgents) != 2 || cfg.Crawler.Concurrency != 3 {
		t.Fatalf("expected user agents and concurrency overrides, got %+v", cfg.Crawler)
	}
	if cfg.Crawler.RequestTimeout != 20*time.Second || cfg.Crawler.JitterMax != 3*time.Second {
		t.Fatalf("expected duration overrides, got %+v", cfg.Crawler)
	}
	if cfg.Crawler.SettleDelay != 500*time.Millisecond || cfg.Crawler.HostRPS != 2.5 || cfg.Crawler.Seed != 42 {
		t.Fatalf("expected rendered tuning overrides, got %+v", cfg.Crawler)
	}
	if cfg.Selectors.ImagePrefixes[0] != "https://img.example.com" {
		t.Fatalf("expected image prefixes override, got %v", cfg.Selectors.ImagePrefixes)
	}
	if cfg.Selectors.TitleClass != "MuiTypography-h4" {
		t.Fatalf("expected untouched selector defaults, got %q", cfg.Selectors.TitleClass)
	}
	if cfg.Discovery.MaxLinks != 1 || !cfg.Discovery.StripQuery || cfg.Discovery.CacheTTL != 10*time.Minute {
		t.Fatalf("expected discovery overrides, got %+v", cfg.Discovery)
	}
	if len(cfg.Report.Sinks) != 2 || cfg.Report.Format != "markdown" {
		t.Fatalf("expected report overrides, got %+v", cfg.Report)
	}
	if cfg.Server.Port != 9090 || cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected server/logging overrides")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.BaseOrigin != "https://www.rbauction.com" {
		t.Fatalf("unexpected base origin %q", cfg.Crawler.BaseOrigin)
	}
	if cfg.Crawler.Concurrency != 5 || cfg.Crawler.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected crawler defaults %+v", cfg.Crawler)
	}
	if cfg.Crawler.JitterMin != time.Second || cfg.Crawler.JitterMax != 2*time.Second {
		t.Fatalf("unexpected jitter defaults %v-%v", cfg.Crawler.JitterMin, cfg.Crawler.JitterMax)
	}
	if len(cfg.Crawler.UserAgents) != len(DefaultUserAgents) {
		t.Fatalf("expected %d default user agents, got %d", len(DefaultUserAgents), len(cfg.Crawler.UserAgents))
	}
	if len(cfg.Selectors.ImagePrefixes) != 2 {
		t.Fatalf("expected default image prefixes, got %v", cfg.Selectors.ImagePrefixes)
	}
	if len(cfg.Report.Sinks) != 1 || cfg.Report.Sinks[0] != SinkConsole {
		t.Fatalf("expected console sink by default, got %v", cfg.Report.Sinks)
	}
	if cfg.Server.Port != 8080 || !cfg.Logging.Development {
		t.Fatalf("unexpected server/logging defaults")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CRAWLER_CRAWLER_CONCURRENCY", "9")
	t.Setenv("CRAWLER_CRAWLER_BACKEND", "rendered")
	t.Setenv("CRAWLER_SERVER_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Concurrency != 9 || cfg.Crawler.Backend != "rendered" || cfg.Server.Port != 7070 {
		t.Fatalf("expected env overrides, got %+v %+v", cfg.Crawler, cfg.Server)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func validConfig(t *testing.T) Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestValidate(t *testing.T) {
	base := validConfig(t)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative origin", func(c *Config) { c.Crawler.BaseOrigin = "rbauction.com" }},
		{"unknown backend", func(c *Config) { c.Crawler.Backend = "selenium" }},
		{"no user agents", func(c *Config) { c.Crawler.UserAgents = nil }},
		{"zero concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }},
		{"zero timeout", func(c *Config) { c.Crawler.RequestTimeout = 0 }},
		{"inverted jitter", func(c *Config) { c.Crawler.JitterMin, c.Crawler.JitterMax = 3*time.Second, time.Second }},
		{"negative rps", func(c *Config) { c.Crawler.HostRPS = -1 }},
		{"pattern without placeholder", func(c *Config) { c.Selectors.FeatureScopePattern = "item-details" }},
		{"no image prefixes", func(c *Config) { c.Selectors.ImagePrefixes = nil }},
		{"negative max links", func(c *Config) { c.Discovery.MaxLinks = -1 }},
		{"cache without size", func(c *Config) { c.Discovery.CacheTTL, c.Discovery.CacheSize = time.Minute, 0 }},
		{"unknown sink", func(c *Config) { c.Report.Sinks = []string{"s3"} }},
		{"unknown format", func(c *Config) { c.Report.Format = "xml" }},
		{"gcs without bucket", func(c *Config) { c.Report.Sinks = []string{SinkGCS} }},
		{"pubsub without topic", func(c *Config) { c.Report.Sinks = []string{SinkPubSub}; c.Report.PubSubProject = "p" }},
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			cfg.Crawler.UserAgents = append([]string(nil), base.Crawler.UserAgents...)
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
