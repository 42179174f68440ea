package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Discover  DiscoverConfig  `yaml:"discover" mapstructure:"discover"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FirecrawlConfig holds extraction service settings.
type FirecrawlConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ExtractConfig configures detail-page extraction requests.
type ExtractConfig struct {
	IncludeTags  []string `yaml:"include_tags" mapstructure:"include_tags"`
	ExcludeTags  []string `yaml:"exclude_tags" mapstructure:"exclude_tags"`
	WaitForMs    int      `yaml:"wait_for_ms" mapstructure:"wait_for_ms"`
	TimeoutMs    int      `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	ExcludePaths []string `yaml:"exclude_paths" mapstructure:"exclude_paths"`
}

// DiscoverConfig configures listing-page discovery.
type DiscoverConfig struct {
	ListingURLs []string `yaml:"listing_urls" mapstructure:"listing_urls"`
	MaxURLs     int      `yaml:"max_urls" mapstructure:"max_urls"`
	ProfilePath string   `yaml:"profile_path" mapstructure:"profile_path"`
}

// PricingConfig holds the price sanity band and defaults for observations.
type PricingConfig struct {
	MinPrice         float64 `yaml:"min_price" mapstructure:"min_price"`
	MaxPrice         float64 `yaml:"max_price" mapstructure:"max_price"`
	Currency         string  `yaml:"currency" mapstructure:"currency"`
	DefaultCondition string  `yaml:"default_condition" mapstructure:"default_condition"`
}

// BatchConfig configures the batch job controller.
type BatchConfig struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxItems       int `yaml:"max_items" mapstructure:"max_items"`
	StartFrom      int `yaml:"start_from" mapstructure:"start_from"`
	BatchPauseMs   int `yaml:"batch_pause_ms" mapstructure:"batch_pause_ms"`
	ItemPauseMs    int `yaml:"item_pause_ms" mapstructure:"item_pause_ms"`
	LeaseStaleSecs int `yaml:"lease_stale_secs" mapstructure:"lease_stale_secs"`
}

// BatchPause returns the pause between batches.
func (b BatchConfig) BatchPause() time.Duration {
	return time.Duration(b.BatchPauseMs) * time.Millisecond
}

// ItemPause returns the pause between items inside a batch.
func (b BatchConfig) ItemPause() time.Duration {
	return time.Duration(b.ItemPauseMs) * time.Millisecond
}

// LeaseStale returns how long a lease may go without heartbeat before it
// counts as abandoned.
func (b BatchConfig) LeaseStale() time.Duration {
	return time.Duration(b.LeaseStaleSecs) * time.Second
}

// ScheduleConfig configures the cron-driven one-shot sync.
type ScheduleConfig struct {
	Cron  string `yaml:"cron" mapstructure:"cron"`
	Limit int    `yaml:"limit" mapstructure:"limit"`
}

// ServerConfig configures the job-control server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// NotifyConfig configures job boundary notifications.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NotionConfig holds the Notion job-log settings.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	JobLogDB string `yaml:"job_log_db" mapstructure:"job_log_db"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("firecrawl.rate_limit", 2.0)
	v.SetDefault("firecrawl.timeout_secs", 60)
	v.SetDefault("firecrawl.max_attempts", 2)
	v.SetDefault("extract.include_tags", []string{"main", "article", "script", "meta", "title", "h1", "nav"})
	v.SetDefault("extract.exclude_tags", []string{"footer", "iframe", "noscript"})
	v.SetDefault("extract.wait_for_ms", 2000)
	v.SetDefault("extract.timeout_ms", 30000)
	v.SetDefault("extract.exclude_paths", []string{"/blogs/*", "/pages/*", "/cart/*", "/account/*"})
	v.SetDefault("discover.max_urls", 50)
	v.SetDefault("pricing.min_price", 5.0)
	v.SetDefault("pricing.max_price", 100.0)
	v.SetDefault("pricing.currency", "GBP")
	v.SetDefault("pricing.default_condition", "new")
	v.SetDefault("batch.batch_size", 10)
	v.SetDefault("batch.max_items", 500)
	v.SetDefault("batch.start_from", 0)
	v.SetDefault("batch.batch_pause_ms", 5000)
	v.SetDefault("batch.item_pause_ms", 1000)
	v.SetDefault("batch.lease_stale_secs", 300)
	v.SetDefault("schedule.cron", "0 3 * * *")
	v.SetDefault("schedule.limit", 10)
	v.SetDefault("notify.timeout_secs", 10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by a command mode. Modes:
// "pipeline" (batch runs), "serve" (pipeline plus server), "store"
// (database only) and "scrape" (one-off extract/discover calls).
// The Firecrawl key is only required by "scrape": batch runs check it in
// their preflight, so a missing key ends the run in error instead of
// refusing to start the process.
func (c *Config) Validate(mode string) error {
	var errs []string

	requireStore := func() {
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
	}
	requirePipeline := func() {
		requireStore()
		if c.Pricing.MinPrice <= 0 {
			errs = append(errs, "pricing.min_price must be > 0")
		}
		if c.Pricing.MaxPrice < c.Pricing.MinPrice {
			errs = append(errs, "pricing.max_price must be >= pricing.min_price")
		}
		if c.Batch.BatchSize < 1 {
			errs = append(errs, "batch.batch_size must be >= 1")
		}
	}

	switch mode {
	case "store":
		requireStore()
	case "scrape":
		if c.Firecrawl.Key == "" {
			errs = append(errs, "firecrawl.key is required")
		}
	case "pipeline":
		requirePipeline()
	case "serve":
		requirePipeline()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
