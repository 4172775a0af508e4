// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
)

// DefaultUserAgents is the browser User-Agent pool rotated per request.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0 Mobile/15E148 Safari/604.1",
}

// Report sink names accepted in report.sinks.
const (
	SinkConsole = "console"
	SinkFile    = "file"
	SinkGCS     = "gcs"
	SinkPubSub  = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Selectors extract.Markers `mapstructure:"selectors"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Report    ReportConfig    `mapstructure:"report"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

// CrawlerConfig governs fetching, the worker pool and politeness.
type CrawlerConfig struct {
	BaseOrigin        string        `mapstructure:"base_origin"`
	Backend           string        `mapstructure:"backend"`
	UserAgents        []string      `mapstructure:"user_agents"`
	Concurrency       int           `mapstructure:"concurrency"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout"`
	JitterMin         time.Duration `mapstructure:"jitter_min"`
	JitterMax         time.Duration `mapstructure:"jitter_max"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	HostRPS           float64       `mapstructure:"host_rps"`
	HostBurst         int           `mapstructure:"host_burst"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	Seed              uint64        `mapstructure:"seed"`
	ChromePath        string        `mapstructure:"chrome_path"`
	Headful           bool          `mapstructure:"headful"`
}

// DiscoveryConfig controls how listing pages turn into detail links.
type DiscoveryConfig struct {
	MaxLinks     int           `mapstructure:"max_links"`
	StripQuery   bool          `mapstructure:"strip_query"`
	LinkContains string        `mapstructure:"link_contains"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheSize    int           `mapstructure:"cache_size"`
}

// ReportConfig selects where results go.
type ReportConfig struct {
	Sinks         []string `mapstructure:"sinks"`
	Format        string   `mapstructure:"format"`
	OutputDir     string   `mapstructure:"output_dir"`
	Prefix        string   `mapstructure:"prefix"`
	GCSBucket     string   `mapstructure:"gcs_bucket"`
	PubSubProject string   `mapstructure:"pubsub_project"`
	PubSubTopic   string   `mapstructure:"pubsub_topic"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogEvents      bool          `mapstructure:"log_events"`
}

// Load builds a Config from an optional file plus CRAWLER_* environment
// variables. With an empty path, config.{yaml,json,toml} is looked up in the
// working directory and $HOME/.catalog-crawler; a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.catalog-crawler")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.base_origin", "https://www.rbauction.com")
	v.SetDefault("crawler.backend", string(crawler.BackendLightweight))
	v.SetDefault("crawler.user_agents", DefaultUserAgents)
	v.SetDefault("crawler.concurrency", 5)
	v.SetDefault("crawler.request_timeout", "10s")
	v.SetDefault("crawler.task_timeout", "90s")
	v.SetDefault("crawler.jitter_min", "1s")
	v.SetDefault("crawler.jitter_max", "2s")
	v.SetDefault("crawler.settle_delay", "2s")
	v.SetDefault("crawler.navigation_timeout", "45s")
	v.SetDefault("crawler.host_rps", 0)
	v.SetDefault("crawler.host_burst", 1)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.seed", 0)
	v.SetDefault("crawler.chrome_path", "")
	v.SetDefault("crawler.headful", false)

	m := extract.DefaultMarkers()
	v.SetDefault("selectors.title_tag", m.TitleTag)
	v.SetDefault("selectors.title_class", m.TitleClass)
	v.SetDefault("selectors.feature_scope_tag", m.FeatureScopeTag)
	v.SetDefault("selectors.feature_scope_attr", m.FeatureScopeAttr)
	v.SetDefault("selectors.feature_scope_pattern", m.FeatureScopePattern)
	v.SetDefault("selectors.feature_tag", m.FeatureTag)
	v.SetDefault("selectors.feature_class", m.FeatureClass)
	v.SetDefault("selectors.image_tag", m.ImageTag)
	v.SetDefault("selectors.image_attr", m.ImageAttr)
	v.SetDefault("selectors.image_prefixes", m.ImagePrefixes)

	v.SetDefault("discovery.max_links", 0)
	v.SetDefault("discovery.strip_query", false)
	v.SetDefault("discovery.link_contains", "")
	v.SetDefault("discovery.cache_ttl", "0s")
	v.SetDefault("discovery.cache_size", 128)

	v.SetDefault("report.sinks", []string{SinkConsole})
	v.SetDefault("report.format", "json")
	v.SetDefault("report.output_dir", "data/reports")
	v.SetDefault("report.prefix", "crawls")
	v.SetDefault("report.gcs_bucket", "")
	v.SetDefault("report.pubsub_project", "")
	v.SetDefault("report.pubsub_topic", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "5s")
	v.SetDefault("progress.log_events", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Crawler.validate(); err != nil {
		return err
	}
	if !strings.Contains(c.Selectors.FeatureScopePattern, extract.ItemPlaceholder) {
		return fmt.Errorf("selectors.feature_scope_pattern must contain %s", extract.ItemPlaceholder)
	}
	if len(c.Selectors.ImagePrefixes) == 0 {
		return fmt.Errorf("selectors.image_prefixes must not be empty")
	}
	if c.Discovery.MaxLinks < 0 {
		return fmt.Errorf("discovery.max_links must be >= 0")
	}
	if c.Discovery.CacheTTL > 0 && c.Discovery.CacheSize <= 0 {
		return fmt.Errorf("discovery.cache_size must be > 0 when discovery.cache_ttl is set")
	}
	if err := c.Report.validate(); err != nil {
		return err
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}
	return nil
}

func (c CrawlerConfig) validate() error {
	u, err := url.Parse(c.BaseOrigin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("crawler.base_origin must be an absolute URL, got %q", c.BaseOrigin)
	}
	if !crawler.Backend(c.Backend).Valid() {
		return fmt.Errorf("crawler.backend must be %q or %q, got %q",
			crawler.BackendLightweight, crawler.BackendRendered, c.Backend)
	}
	if len(c.UserAgents) == 0 {
		return fmt.Errorf("crawler.user_agents must not be empty")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("crawler.task_timeout must be >= 0")
	}
	if c.JitterMin < 0 || c.JitterMax < c.JitterMin {
		return fmt.Errorf("crawler.jitter_min must be >= 0 and <= crawler.jitter_max")
	}
	if c.HostRPS < 0 {
		return fmt.Errorf("crawler.host_rps must be >= 0")
	}
	return nil
}

func (r ReportConfig) validate() error {
	known := []string{SinkConsole, SinkFile, SinkGCS, SinkPubSub}
	for _, s := range r.Sinks {
		if !slices.Contains(known, s) {
			return fmt.Errorf("report.sinks: unknown sink %q", s)
		}
	}
	switch strings.ToLower(r.Format) {
	case "", "json", "yaml", "yml", "markdown", "md":
	default:
		return fmt.Errorf("report.format: unknown format %q", r.Format)
	}
	if slices.Contains(r.Sinks, SinkFile) && r.OutputDir == "" {
		return fmt.Errorf("report.output_dir must be set when the file sink is enabled")
	}
	if slices.Contains(r.Sinks, SinkGCS) && r.GCSBucket == "" {
		return fmt.Errorf("report.gcs_bucket must be set when the gcs sink is enabled")
	}
	if slices.Contains(r.Sinks, SinkPubSub) && (r.PubSubProject == "" || r.PubSubTopic == "") {
		return fmt.Errorf("report.pubsub_project and report.pubsub_topic must be set when the pubsub sink is enabled")
	}
	return nil
}
