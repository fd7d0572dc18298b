package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  max_pages: 20
  retry_delay: 2s
browser:
  max_tabs: 2
  headless: false
  cookies: "user_acc=abc"
library:
  backend: postgres
storage:
  backend: gcs
  gcs_bucket: youread-bucket
db:
  dsn: postgres://localhost/youread
pubsub:
  backend: pubsub
  project_id: proj
  topic_name: imports
  subscription: imports-sub
imports:
  workers: 2
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawler.MaxPages != 20 || cfg.Crawler.RetryDelay != 2*time.Second {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Crawler.ExtractAttempts != 10 || cfg.Crawler.ReadyPollInterval != 250*time.Millisecond {
		t.Fatalf("expected crawler defaults to survive: %+v", cfg.Crawler)
	}
	if cfg.Browser.MaxTabs != 2 || cfg.Browser.Headless || cfg.Browser.Cookies != "user_acc=abc" {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if cfg.Library.Backend != "postgres" || cfg.Storage.GCSBucket != "youread-bucket" {
		t.Fatalf("expected backend overrides to apply")
	}
	if cfg.PubSub.Subscription != "imports-sub" || cfg.Imports.Workers != 2 {
		t.Fatalf("expected pubsub and imports overrides to apply")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.MaxPages != 50 || cfg.Crawler.EnsureAttempts != 5 || cfg.Crawler.NavigateAttempts != 3 {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.Crawler.RetryDelay != 1500*time.Millisecond || cfg.Crawler.ReadyTimeout != 15*time.Second {
		t.Fatalf("unexpected crawler timing defaults: %+v", cfg.Crawler)
	}
	if cfg.Library.DocumentKey != "library/tracked_manga.json" || cfg.Storage.Backend != "local" {
		t.Fatalf("unexpected library defaults: %+v %+v", cfg.Library, cfg.Storage)
	}
	if cfg.Imports.Workers != 1 || cfg.PubSub.Backend != "memory" {
		t.Fatalf("unexpected pipeline defaults")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{MaxPages: 50},
		Library: LibraryConfig{Backend: "blob"},
		Storage: StorageConfig{Backend: "memory"},
		PubSub:  PubSubConfig{Backend: "memory"},
		Imports: ImportsConfig{Workers: 1, QueueDepth: 4},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "invalid max pages", mutate: func(c *Config) { c.Crawler.MaxPages = 0 }, want: "crawler.max_pages"},
		{name: "invalid workers", mutate: func(c *Config) { c.Imports.Workers = 0 }, want: "imports.workers"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Library.Backend = "postgres" }, want: "db.dsn"},
		{name: "unknown library backend", mutate: func(c *Config) { c.Library.Backend = "sqlite" }, want: "library.backend"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = "gcs" }, want: "storage.gcs_bucket"},
		{name: "pubsub without topic", mutate: func(c *Config) { c.PubSub.Backend = "pubsub" }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
