// Package config loads and validates application configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// ServerConfig controls the dashboard API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DatabaseConfig controls access to the Postgres store.
type DatabaseConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime string `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool   `mapstructure:"ensure_schema"`
}

// PipelineConfig governs the ETL core.
type PipelineConfig struct {
	Name           string  `mapstructure:"name"`
	InputFile      string  `mapstructure:"input_file"`
	SpikeThreshold float64 `mapstructure:"spike_threshold"`
	PriceCeiling   float64 `mapstructure:"price_ceiling"`
	TitleMinLength int     `mapstructure:"title_min_length"`
}

// ScrapeConfig governs the live product page fetcher.
type ScrapeConfig struct {
	TimeoutSeconds       int  `mapstructure:"timeout_seconds"`
	DelayMs              int  `mapstructure:"delay_ms"`
	MaxRetries           int  `mapstructure:"max_retries"`
	RenderFallback       bool `mapstructure:"render_fallback"`
	RenderTimeoutSeconds int  `mapstructure:"render_timeout_seconds"`
	ArchivePages         bool `mapstructure:"archive_pages"`
}

// ArchiveConfig selects the raw page archive backend.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"` // gcs | local | noop
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig selects the alert publisher backend.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"` // pubsub | noop
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// Load builds a Config from disk/environment. An empty path loads defaults
// and environment variables only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICETRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.ensure_schema", true)
	v.SetDefault("pipeline.name", "amazon_price_tracker")
	v.SetDefault("pipeline.input_file", "data/scraper_output.json")
	v.SetDefault("pipeline.spike_threshold", 0.5)
	v.SetDefault("pipeline.price_ceiling", 10_000_000)
	v.SetDefault("pipeline.title_min_length", 3)
	v.SetDefault("scrape.timeout_seconds", 15)
	v.SetDefault("scrape.delay_ms", 1500)
	v.SetDefault("scrape.max_retries", 2)
	v.SetDefault("scrape.render_fallback", false)
	v.SetDefault("scrape.render_timeout_seconds", 25)
	v.SetDefault("scrape.archive_pages", false)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.local_dir", "data/pages")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("notify.provider", "noop")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.SpikeThreshold <= 0 {
		return fmt.Errorf("pipeline.spike_threshold must be > 0")
	}
	if c.Pipeline.PriceCeiling <= 0 {
		return fmt.Errorf("pipeline.price_ceiling must be > 0")
	}
	if c.Scrape.TimeoutSeconds <= 0 {
		return fmt.Errorf("scrape.timeout_seconds must be > 0")
	}
	switch c.Archive.Provider {
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	case "local", "noop", "":
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	switch c.Notify.Provider {
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.TopicID == "" {
			return fmt.Errorf("notify.project_id and notify.topic_id must be set when notify.provider is pubsub")
		}
	case "noop", "":
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	return nil
}

// ConnLifetime parses the pool lifetime setting, defaulting on error.
func (c DatabaseConfig) ConnLifetime() time.Duration {
	d, err := time.ParseDuration(c.MaxConnLifetime)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// ScrapeTimeout returns the fetch timeout as a duration.
func (c ScrapeConfig) ScrapeTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Delay returns the per-request politeness delay.
func (c ScrapeConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// RenderTimeout returns the headless browser deadline as a duration.
func (c ScrapeConfig) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutSeconds) * time.Second
}
