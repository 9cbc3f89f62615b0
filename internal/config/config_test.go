package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
source:
  kind: rss
scrape:
  subreddits: ["golang", "rust"]
  limit: 15
  concurrency: 2
schedule:
  cron: "@hourly"
  retries: 3
  retry_delay_seconds: 10
database:
  driver: sqlite
  sqlite_path: /tmp/posts.db
archive:
  backend: local
  local_dir: /tmp/archive
gemini:
  model: gemini-2.0-flash
viewer:
  default_limit: 20
logging:
  development: false
`)

	cfg, err := LoadWithEnvFile(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Source.Kind != "rss" {
		t.Fatalf("expected rss source, got %q", cfg.Source.Kind)
	}
	if len(cfg.Scrape.Subreddits) != 2 || cfg.Scrape.Subreddits[1] != "rust" || cfg.Scrape.Limit != 15 {
		t.Fatalf("expected scrape overrides to apply: %+v", cfg.Scrape)
	}
	if cfg.Schedule.Cron != "@hourly" || cfg.Schedule.Retries != 3 {
		t.Fatalf("expected schedule overrides: %+v", cfg.Schedule)
	}
	if got := cfg.RetryDelay(); got != 10*time.Second {
		t.Fatalf("expected retry delay 10s, got %v", got)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Archive.Backend != "local" {
		t.Fatalf("expected storage overrides: %+v %+v", cfg.Database, cfg.Archive)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" || cfg.Gemini.TimeoutSeconds != 30 {
		t.Fatalf("expected gemini model override with default timeout: %+v", cfg.Gemini)
	}
	if cfg.Viewer.DefaultLimit != 20 || cfg.Viewer.PageSize != 5 {
		t.Fatalf("unexpected viewer config: %+v", cfg.Viewer)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
}

func TestLoadDefaultsMatchDailyJob(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: memory\n")

	cfg, err := LoadWithEnvFile(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Schedule.Cron != "@daily" || cfg.Schedule.Retries != 1 {
		t.Fatalf("unexpected schedule defaults: %+v", cfg.Schedule)
	}
	if cfg.Scrape.Limit != 20 || len(cfg.Scrape.Subreddits) != len(DefaultSubreddits) {
		t.Fatalf("unexpected scrape defaults: %+v", cfg.Scrape)
	}
	if cfg.RetryDelay() != 5*time.Minute {
		t.Fatalf("expected 5m retry delay, got %v", cfg.RetryDelay())
	}
}

func TestLoadBindsLegacyEnvNames(t *testing.T) {
	t.Setenv("REDDIT_CLIENT_ID", "client")
	t.Setenv("REDDIT_SECRET", "shh")
	t.Setenv("REDDIT_USERNAME", "bot")
	t.Setenv("REDDIT_PASSWORD", "pw")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/news")
	t.Setenv("GEM_API", "gem-key")
	t.Setenv("NEWSBOT_SCRAPE_LIMIT", "7")

	cfg, err := LoadWithEnvFile("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Reddit.ClientID != "client" || cfg.Reddit.ClientSecret != "shh" {
		t.Fatalf("expected reddit app credentials from env: %+v", cfg.Reddit)
	}
	if cfg.Database.DSN != "postgres://u:p@localhost:5432/news" {
		t.Fatalf("expected DATABASE_URL binding, got %q", cfg.Database.DSN)
	}
	if cfg.Gemini.APIKey != "gem-key" {
		t.Fatalf("expected GEM_API binding, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Scrape.Limit != 7 {
		t.Fatalf("expected prefixed env override, got %d", cfg.Scrape.Limit)
	}
	if err := cfg.ValidateRedditCredentials(); err != nil {
		t.Fatalf("expected complete credentials, got %v", err)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("NEWSBOT_DATABASE_DRIVER=memory\nNEWSBOT_GEMINI_MODEL=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Unsetenv("NEWSBOT_DATABASE_DRIVER")
		_ = os.Unsetenv("NEWSBOT_GEMINI_MODEL")
	})

	cfg, err := LoadWithEnvFile("", envFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gemini.Model != "from-dotenv" {
		t.Fatalf("expected dotenv value, got %q", cfg.Gemini.Model)
	}
}

func TestValidateRedditCredentialsListsMissing(t *testing.T) {
	t.Parallel()

	cfg := Config{Source: SourceConfig{Kind: "api"}, Reddit: RedditConfig{ClientID: "id"}}
	err := cfg.ValidateRedditCredentials()
	if err == nil || !strings.Contains(err.Error(), "reddit.password") || strings.Contains(err.Error(), "client_id") {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Source.Kind = "rss"
	if err := cfg.ValidateRedditCredentials(); err != nil {
		t.Fatalf("rss source needs no credentials, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Source:   SourceConfig{Kind: "api"},
		Scrape:   ScrapeConfig{Subreddits: []string{"golang"}, Limit: 20, Concurrency: 1},
		Schedule: ScheduleConfig{Enabled: true, Cron: "@daily", Retries: 1},
		Database: DatabaseConfig{Driver: "memory"},
		Gemini:   GeminiConfig{TimeoutSeconds: 30, PromptTemplate: "Explain '%s'"},
		Viewer:   ViewerConfig{PageSize: 5, DefaultLimit: 10, MinLimit: 5, MaxLimit: 50},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"unknown source", func(c *Config) { c.Source.Kind = "scrape" }, "source.kind"},
		{"no subreddits", func(c *Config) { c.Scrape.Subreddits = nil }, "scrape.subreddits"},
		{"blank subreddit", func(c *Config) { c.Scrape.Subreddits = []string{" "} }, "blank"},
		{"repeated subreddit", func(c *Config) { c.Scrape.Subreddits = []string{"golang", "GoLang"} }, "more than once"},
		{"zero limit", func(c *Config) { c.Scrape.Limit = 0 }, "scrape.limit"},
		{"zero concurrency", func(c *Config) { c.Scrape.Concurrency = 0 }, "scrape.concurrency"},
		{"negative retries", func(c *Config) { c.Schedule.Retries = -1 }, "schedule.retries"},
		{"missing cron", func(c *Config) { c.Schedule.Cron = "" }, "schedule.cron"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"gcs without bucket", func(c *Config) { c.Archive.Backend = "gcs" }, "archive.gcs_bucket"},
		{"s3 without endpoint", func(c *Config) { c.Archive.Backend = "s3" }, "archive.s3"},
		{"unknown archive", func(c *Config) { c.Archive.Backend = "ftp" }, "archive.backend"},
		{"template without verb", func(c *Config) { c.Gemini.PromptTemplate = "Explain" }, "prompt_template"},
		{"default limit out of range", func(c *Config) { c.Viewer.DefaultLimit = 99 }, "viewer.default_limit"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Scrape.Subreddits = append([]string(nil), base.Scrape.Subreddits...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.want)
			}
		})
	}
}
