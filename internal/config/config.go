// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bilimath/crawler/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig       `mapstructure:"server"`
	Logging    LoggingConfig      `mapstructure:"logging"`
	Auth       AuthConfig         `mapstructure:"auth"`
	Crawler    CrawlerConfig      `mapstructure:"crawler"`
	HTTP       HTTPConfig         `mapstructure:"http"`
	DB         DBConfig           `mapstructure:"db"`
	Archive    ArchiveConfig      `mapstructure:"archive"`
	PubSub     PubSubConfig       `mapstructure:"pubsub"`
	Classifier ClassifierConfig   `mapstructure:"classifier"`
	Jobs       []crawler.CrawlJob `mapstructure:"jobs"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// AuthConfig carries the externally provisioned upstream credentials. The
// cookie is an opaque secret; the service never generates one.
type AuthConfig struct {
	Cookie    string `mapstructure:"cookie"`
	UserAgent string `mapstructure:"user_agent"`
	Referer   string `mapstructure:"referer"`
}

// CrawlerConfig governs pagination depth and pacing. The retry/backoff and
// delay constants are tunables, not contracts: different deployments run
// different values.
type CrawlerConfig struct {
	MaxPages            int `mapstructure:"max_pages"`
	DelayMinMs          int `mapstructure:"delay_min_ms"`
	DelayMaxMs          int `mapstructure:"delay_max_ms"`
	FailurePauseSeconds int `mapstructure:"failure_pause_seconds"`
}

// DelayMin returns the lower bound of the courtesy-sleep window.
func (c CrawlerConfig) DelayMin() time.Duration {
	return time.Duration(c.DelayMinMs) * time.Millisecond
}

// DelayMax returns the upper bound of the courtesy-sleep window.
func (c CrawlerConfig) DelayMax() time.Duration {
	return time.Duration(c.DelayMaxMs) * time.Millisecond
}

// FailurePause returns the extra pause after a skipped page.
func (c CrawlerConfig) FailurePause() time.Duration {
	return time.Duration(c.FailurePauseSeconds) * time.Second
}

// HTTPConfig configures transport-layer retry behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
	BackoffSeconds int `mapstructure:"backoff_seconds"`
}

// Timeout returns the per-request timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Backoff returns the fixed pause between retry attempts.
func (c HTTPConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ArchiveConfig controls the optional raw-response archive.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"` // "local" | "gcs"
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for batch-commit notifications. An empty
// topic disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ClassifierConfig locates the optional model artifact and tunes the
// model-tier confidence gate.
type ClassifierConfig struct {
	ModelPath           string  `mapstructure:"model_path"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// Load builds a Config from disk/environment.
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
	v.SetDefault("auth.referer", "https://www.bilibili.com/")
	v.SetDefault("crawler.max_pages", 15)
	v.SetDefault("crawler.delay_min_ms", 2000)
	v.SetDefault("crawler.delay_max_ms", 4000)
	v.SetDefault("crawler.failure_pause_seconds", 5)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_seconds", 1)
	v.SetDefault("db.table", "videos")
	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("classifier.confidence_threshold", 0.6)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.DelayMinMs < 0 {
		return fmt.Errorf("crawler.delay_min_ms must be >= 0")
	}
	if c.Crawler.DelayMaxMs < c.Crawler.DelayMinMs {
		return fmt.Errorf("crawler.delay_max_ms must be >= crawler.delay_min_ms")
	}
	if c.Crawler.FailurePauseSeconds < 0 {
		return fmt.Errorf("crawler.failure_pause_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.BackoffSeconds < 0 {
		return fmt.Errorf("http.backoff_seconds must be >= 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set")
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case "local":
			if c.Archive.BaseDir == "" {
				return fmt.Errorf("archive.base_dir must be set for the local backend")
			}
		case "gcs":
			if c.Archive.Bucket == "" {
				return fmt.Errorf("archive.bucket must be set for the gcs backend")
			}
		default:
			return fmt.Errorf("archive.backend must be \"local\" or \"gcs\"")
		}
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if t := c.Classifier.ConfidenceThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("classifier.confidence_threshold must be within (0, 1)")
	}
	if len(c.Jobs) == 0 {
		return fmt.Errorf("jobs must include at least one crawl entry")
	}
	for i, job := range c.Jobs {
		if job.Keyword == "" {
			return fmt.Errorf("jobs[%d].keyword must be set", i)
		}
		if job.Phase == "" || job.Subject == "" {
			return fmt.Errorf("jobs[%d] must set phase and subject", i)
		}
	}
	return nil
}
