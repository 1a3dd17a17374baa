// Package config loads and validates brokenlinks configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Report   ReportConfig   `mapstructure:"report"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs crawl sessions and the HTTP fetcher.
type CrawlerConfig struct {
	Concurrency           int    `mapstructure:"concurrency"`
	PageLimit             int    `mapstructure:"page_limit"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	UserAgent             string `mapstructure:"user_agent"`
	MaxBodyBytes          int    `mapstructure:"max_body_bytes"`
	ReportBrokenPages     bool   `mapstructure:"report_broken_pages"`
	DequeueWaitMs         int    `mapstructure:"dequeue_wait_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ReportConfig selects where finished session reports are written.
type ReportConfig struct {
	File     FileReportConfig     `mapstructure:"file"`
	GCS      GCSReportConfig      `mapstructure:"gcs"`
	Postgres PostgresReportConfig `mapstructure:"postgres"`
	PubSub   PubSubReportConfig   `mapstructure:"pubsub"`
}

// FileReportConfig controls local CSV reports. Enabled writes every session
// to Path, which suits one-shot crawls; Dir, when set, writes each session to
// <dir>/<session-id>.csv.
type FileReportConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Dir     string `mapstructure:"dir"`
}

// GCSReportConfig uploads CSV reports to a bucket when Bucket is set.
type GCSReportConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PostgresReportConfig stores report rows when DSN is set.
type PostgresReportConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	CreateSchema bool   `mapstructure:"create_schema"`
}

// PubSubReportConfig publishes a session summary when both fields are set.
type PubSubReportConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize  int `mapstructure:"buffer_size"`
	BatchSize   int `mapstructure:"batch_size"`
	BatchWaitMs int `mapstructure:"batch_wait_ms"`
}

// Load builds a Config from disk/environment. Environment variables use the
// BROKENLINKS_ prefix with dots replaced by underscores.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BROKENLINKS")
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
	v.SetDefault("crawler.concurrency", crawler.DefaultConcurrency)
	v.SetDefault("crawler.page_limit", crawler.DefaultPageLimit)
	v.SetDefault("crawler.request_timeout_seconds", 15)
	v.SetDefault("crawler.user_agent", "brokenlinks/1.0")
	v.SetDefault("crawler.max_body_bytes", 10<<20)
	v.SetDefault("crawler.report_broken_pages", false)
	v.SetDefault("crawler.dequeue_wait_ms", int(crawler.DefaultDequeueWait/time.Millisecond))
	v.SetDefault("logging.development", true)
	v.SetDefault("report.file.enabled", true)
	v.SetDefault("report.file.path", "error_details.csv")
	v.SetDefault("report.file.dir", "")
	v.SetDefault("report.gcs.prefix", "reports")
	v.SetDefault("report.postgres.table", "broken_resources")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_size", 256)
	v.SetDefault("progress.batch_wait_ms", 250)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if err := c.CrawlSettings().Validate(); err != nil {
		return fmt.Errorf("invalid crawler config: %w", err)
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Crawler.MaxBodyBytes < 0 {
		return fmt.Errorf("crawler.max_body_bytes must be >= 0")
	}
	if (c.Report.PubSub.ProjectID == "") != (c.Report.PubSub.TopicID == "") {
		return fmt.Errorf("report.pubsub.project_id and report.pubsub.topic_id must be set together")
	}
	if c.Progress.BufferSize < 0 || c.Progress.BatchSize < 0 || c.Progress.BatchWaitMs < 0 {
		return fmt.Errorf("progress settings must be >= 0")
	}
	return nil
}

// CrawlSettings converts the crawler section into session settings.
func (c Config) CrawlSettings() crawler.Config {
	return crawler.Config{
		PageLimit:         c.Crawler.PageLimit,
		Concurrency:       c.Crawler.Concurrency,
		DequeueWait:       time.Duration(c.Crawler.DequeueWaitMs) * time.Millisecond,
		ReportBrokenPages: c.Crawler.ReportBrokenPages,
	}
}

// RequestTimeout converts the per-request timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutSeconds) * time.Second
}
