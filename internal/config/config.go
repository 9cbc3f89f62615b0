// Package config loads and validates newsbot configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultSubreddits is the channel set harvested when none is configured.
var DefaultSubreddits = []string{
	"datascience",
	"MachineLearning",
	"LanguageTechnology",
	"deeplearning",
	"datasets",
	"visualization",
	"dataisbeautiful",
	"learnpython",
}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Source    SourceConfig    `mapstructure:"source"`
	Reddit    RedditConfig    `mapstructure:"reddit"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Viewer    ViewerConfig    `mapstructure:"viewer"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int      `mapstructure:"port"`
	RequestTimeoutSec  int      `mapstructure:"request_timeout_seconds"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SourceConfig picks the listing backend.
type SourceConfig struct {
	// Kind is "api" (authenticated OAuth listing) or "rss" (public feed).
	Kind       string `mapstructure:"kind"`
	RSSBaseURL string `mapstructure:"rss_base_url"`
}

// RedditConfig carries the script-app credentials and endpoints.
type RedditConfig struct {
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	UserAgent      string `mapstructure:"user_agent"`
	TokenURL       string `mapstructure:"token_url"`
	APIBaseURL     string `mapstructure:"api_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ScrapeConfig lists the harvested channels and the worker pool shape.
type ScrapeConfig struct {
	Subreddits  []string `mapstructure:"subreddits"`
	Limit       int      `mapstructure:"limit"`
	Concurrency int      `mapstructure:"concurrency"`
	QueueDepth  int      `mapstructure:"queue_depth"`
}

// ScheduleConfig mirrors the daily job definition.
type ScheduleConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Cron           string `mapstructure:"cron"`
	Retries        int    `mapstructure:"retries"`
	RetryDelaySec  int    `mapstructure:"retry_delay_seconds"`
	TaskTimeoutSec int    `mapstructure:"task_timeout_seconds"`
	RunOnStart     bool   `mapstructure:"run_on_start"`
}

// DatabaseConfig controls access to the post store.
type DatabaseConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	SQLitePath         string `mapstructure:"sqlite_path"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSec int    `mapstructure:"max_conn_lifetime_seconds"`
}

// ArchiveConfig selects where raw listing payloads are kept.
type ArchiveConfig struct {
	// Backend is none, memory, local, gcs or s3.
	Backend   string   `mapstructure:"backend"`
	Prefix    string   `mapstructure:"prefix"`
	LocalDir  string   `mapstructure:"local_dir"`
	GCSBucket string   `mapstructure:"gcs_bucket"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config addresses an S3 compatible bucket.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the run event hub.
type ProgressConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	LogEnabled    bool `mapstructure:"log_enabled"`
	BufferSize    int  `mapstructure:"buffer_size"`
	MaxBatch      int  `mapstructure:"max_batch_events"`
	MaxBatchWait  int  `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs int  `mapstructure:"sink_timeout_ms"`
}

// GeminiConfig addresses the generative-text endpoint.
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	PromptTemplate string `mapstructure:"prompt_template"`
}

// ViewerConfig drives the terminal viewer controls.
type ViewerConfig struct {
	PageSize     int    `mapstructure:"page_size"`
	DefaultLimit int    `mapstructure:"default_limit"`
	MinLimit     int    `mapstructure:"min_limit"`
	MaxLimit     int    `mapstructure:"max_limit"`
	LogFile      string `mapstructure:"log_file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls the tracer provider.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
}

// envAliases binds the variable names used by existing deployments.
var envAliases = map[string]string{
	"reddit.client_id":     "REDDIT_CLIENT_ID",
	"reddit.client_secret": "REDDIT_SECRET",
	"reddit.username":      "REDDIT_USERNAME",
	"reddit.password":      "REDDIT_PASSWORD",
	"database.dsn":         "DATABASE_URL",
	"gemini.api_key":       "GEM_API",
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	return LoadWithEnvFile(path, ".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path; a missing file is ignored.
func LoadWithEnvFile(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("NEWSBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := "NEWSBOT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

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
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	// empty defaults make these keys visible to Unmarshal when only set via env
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.s3.endpoint", "")
	v.SetDefault("archive.s3.access_key_id", "")
	v.SetDefault("archive.s3.secret_access_key", "")
	v.SetDefault("archive.s3.bucket", "")
	v.SetDefault("archive.s3.use_ssl", true)
	v.SetDefault("source.kind", "api")
	v.SetDefault("source.rss_base_url", "https://www.reddit.com")
	v.SetDefault("reddit.user_agent", "newsbot/1.0")
	v.SetDefault("reddit.token_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("reddit.api_base_url", "https://oauth.reddit.com")
	v.SetDefault("reddit.timeout_seconds", 30)
	v.SetDefault("scrape.subreddits", DefaultSubreddits)
	v.SetDefault("scrape.limit", 20)
	v.SetDefault("scrape.concurrency", 4)
	v.SetDefault("scrape.queue_depth", 64)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.cron", "@daily")
	v.SetDefault("schedule.retries", 1)
	v.SetDefault("schedule.retry_delay_seconds", 300)
	v.SetDefault("schedule.task_timeout_seconds", 300)
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite_path", "newsbot.db")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime_seconds", 1800)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "listings")
	v.SetDefault("archive.local_dir", "data/listings")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.max_batch_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_ms", 2000)
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.timeout_seconds", 30)
	v.SetDefault("gemini.prompt_template", "Explain '%s' simply for someone interested in tech.")
	v.SetDefault("viewer.page_size", 5)
	v.SetDefault("viewer.default_limit", 10)
	v.SetDefault("viewer.min_limit", 5)
	v.SetDefault("viewer.max_limit", 50)
	v.SetDefault("viewer.log_file", "newsbot-view.log")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.service_name", "reddit-newsbot")
	v.SetDefault("telemetry.tracing_enabled", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Source.Kind {
	case "api", "rss":
	default:
		return fmt.Errorf("source.kind must be api or rss, got %q", c.Source.Kind)
	}
	if len(c.Scrape.Subreddits) == 0 {
		return fmt.Errorf("scrape.subreddits must not be empty")
	}
	seen := make(map[string]bool, len(c.Scrape.Subreddits))
	for _, sub := range c.Scrape.Subreddits {
		if strings.TrimSpace(sub) == "" {
			return fmt.Errorf("scrape.subreddits must not contain blank names")
		}
		// subreddit names are case-insensitive
		key := strings.ToLower(sub)
		if seen[key] {
			return fmt.Errorf("scrape.subreddits lists %q more than once", sub)
		}
		seen[key] = true
	}
	if c.Scrape.Limit <= 0 {
		return fmt.Errorf("scrape.limit must be > 0")
	}
	if c.Scrape.Concurrency <= 0 {
		return fmt.Errorf("scrape.concurrency must be > 0")
	}
	if c.Schedule.Retries < 0 {
		return fmt.Errorf("schedule.retries must be >= 0")
	}
	if c.Schedule.Enabled && strings.TrimSpace(c.Schedule.Cron) == "" {
		return fmt.Errorf("schedule.cron must be set when the schedule is enabled")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres driver")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path must be set for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be postgres, sqlite or memory, got %q", c.Database.Driver)
	}
	switch c.Archive.Backend {
	case "", "none", "memory":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	case "s3":
		if c.Archive.S3.Endpoint == "" || c.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.endpoint and archive.s3.bucket must be set for the s3 backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		return fmt.Errorf("gemini.timeout_seconds must be > 0")
	}
	if !strings.Contains(c.Gemini.PromptTemplate, "%s") {
		return fmt.Errorf("gemini.prompt_template must contain %%s")
	}
	if c.Viewer.PageSize <= 0 {
		return fmt.Errorf("viewer.page_size must be > 0")
	}
	if c.Viewer.MinLimit <= 0 || c.Viewer.MaxLimit < c.Viewer.MinLimit {
		return fmt.Errorf("viewer.min_limit/max_limit must satisfy 0 < min <= max")
	}
	if c.Viewer.DefaultLimit < c.Viewer.MinLimit || c.Viewer.DefaultLimit > c.Viewer.MaxLimit {
		return fmt.Errorf("viewer.default_limit must lie within [min_limit, max_limit]")
	}
	return nil
}

// ValidateRedditCredentials reports whether the authenticated source can run.
func (c Config) ValidateRedditCredentials() error {
	if c.Source.Kind != "api" {
		return nil
	}
	var missing []string
	if c.Reddit.ClientID == "" {
		missing = append(missing, "reddit.client_id")
	}
	if c.Reddit.ClientSecret == "" {
		missing = append(missing, "reddit.client_secret")
	}
	if c.Reddit.Username == "" {
		missing = append(missing, "reddit.username")
	}
	if c.Reddit.Password == "" {
		missing = append(missing, "reddit.password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing reddit credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RetryDelay returns the fixed pause between task attempts.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Schedule.RetryDelaySec) * time.Second
}

// TaskTimeout bounds a single task attempt.
func (c Config) TaskTimeout() time.Duration {
	return time.Duration(c.Schedule.TaskTimeoutSec) * time.Second
}

// RequestTimeout bounds a single API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}
