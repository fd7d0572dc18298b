// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Library   LibraryConfig   `mapstructure:"library"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Imports   ImportsConfig   `mapstructure:"imports"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlerConfig bounds bulk import runs.
type CrawlerConfig struct {
	MaxPages          int           `mapstructure:"max_pages"`
	EnsureAttempts    int           `mapstructure:"ensure_attempts"`
	ExtractAttempts   int           `mapstructure:"extract_attempts"`
	NextPageAttempts  int           `mapstructure:"next_page_attempts"`
	NavigateAttempts  int           `mapstructure:"navigate_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout"`
	ReadyPollInterval time.Duration `mapstructure:"ready_poll_interval"`
}

// BrowserConfig configures the headless Chrome driver.
type BrowserConfig struct {
	MaxTabs       int           `mapstructure:"max_tabs"`
	UserAgent     string        `mapstructure:"user_agent"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
	NavigateQPS   float64       `mapstructure:"navigate_qps"`
	Headless      bool          `mapstructure:"headless"`
	NoSandbox     bool          `mapstructure:"no_sandbox"`
	ExecPath      string        `mapstructure:"exec_path"`
	RemoteURL     string        `mapstructure:"remote_url"`
	Cookies       string        `mapstructure:"cookies"`
	CookieURL     string        `mapstructure:"cookie_url"`
}

// CatalogConfig points the catalog clients at their upstreams.
type CatalogConfig struct {
	MangaDexBaseURL  string        `mapstructure:"mangadex_base_url"`
	MangaNatoBaseURL string        `mapstructure:"manganato_base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	// RenderFallback renders MangaNato pages in the browser when the static
	// fetch looks like a script challenge.
	RenderFallback bool `mapstructure:"render_fallback"`
}

// LibraryConfig selects where tracked manga live.
type LibraryConfig struct {
	// Backend is "blob" (one JSON document) or "postgres".
	Backend     string `mapstructure:"backend"`
	DocumentKey string `mapstructure:"document_key"`
	Table       string `mapstructure:"table"`
}

// StorageConfig selects the blob store.
type StorageConfig struct {
	// Backend is "local", "memory" or "gcs".
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig selects how import batches reach the library.
type PubSubConfig struct {
	// Backend is "memory" (in-process) or "pubsub".
	Backend      string `mapstructure:"backend"`
	ProjectID    string `mapstructure:"project_id"`
	TopicName    string `mapstructure:"topic_name"`
	Subscription string `mapstructure:"subscription"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogEvents      bool          `mapstructure:"log_events"`
}

// RateLimitConfig throttles outbound requests per host.
type RateLimitConfig struct {
	PerHostQPS float64 `mapstructure:"per_host_qps"`
	Burst      int     `mapstructure:"burst"`
}

// ProxyConfig tunes the pass-through proxies.
type ProxyConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
	CacheImage bool          `mapstructure:"cache_images"`
	MaxBytes   int64         `mapstructure:"max_bytes"`
}

// ImportsConfig sizes the import job pipeline.
type ImportsConfig struct {
	Workers    int           `mapstructure:"workers"`
	QueueDepth int           `mapstructure:"queue_depth"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	// StartURL is the default listing page for `youread import`.
	StartURL string `mapstructure:"start_url"`
}

// Load builds a Config from disk/environment. With an empty path it looks
// for config.yaml in the working directory and $HOME/.youread.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("YOUREAD")
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
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".youread"))
		}
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

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	v.SetDefault("crawler.max_pages", 50)
	v.SetDefault("crawler.ensure_attempts", 5)
	v.SetDefault("crawler.extract_attempts", 10)
	v.SetDefault("crawler.next_page_attempts", 5)
	v.SetDefault("crawler.navigate_attempts", 3)
	v.SetDefault("crawler.retry_delay", "1500ms")
	v.SetDefault("crawler.ready_timeout", "15s")
	v.SetDefault("crawler.ready_poll_interval", "250ms")

	v.SetDefault("browser.max_tabs", 1)
	v.SetDefault("browser.user_agent", defaultUserAgent)
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.navigate_qps", 1.0)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.cookie_url", "https://www.manganato.gg")

	v.SetDefault("catalog.mangadex_base_url", "https://api.mangadex.org")
	v.SetDefault("catalog.manganato_base_url", "https://www.manganato.gg")
	v.SetDefault("catalog.timeout", "15s")
	v.SetDefault("catalog.user_agent", defaultUserAgent)
	v.SetDefault("catalog.render_fallback", false)

	v.SetDefault("library.backend", "blob")
	v.SetDefault("library.document_key", "library/tracked_manga.json")
	v.SetDefault("library.table", "tracked_manga")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "data")

	v.SetDefault("pubsub.backend", "memory")

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait", "250ms")
	v.SetDefault("progress.sink_timeout", "5s")
	v.SetDefault("progress.log_events", true)

	v.SetDefault("rate_limit.per_host_qps", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("proxy.timeout", "20s")
	v.SetDefault("proxy.user_agent", defaultUserAgent)
	v.SetDefault("proxy.cache_images", true)
	v.SetDefault("proxy.max_bytes", 10<<20)

	v.SetDefault("imports.workers", 1)
	v.SetDefault("imports.queue_depth", 16)
	v.SetDefault("imports.job_timeout", "30m")
	v.SetDefault("imports.start_url", "https://www.manganato.gg/bookmark")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Browser.MaxTabs < 0 {
		return fmt.Errorf("browser.max_tabs must be >= 0")
	}
	if c.Imports.Workers <= 0 {
		return fmt.Errorf("imports.workers must be > 0")
	}
	if c.Imports.QueueDepth <= 0 {
		return fmt.Errorf("imports.queue_depth must be > 0")
	}
	switch c.Library.Backend {
	case "blob":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when library.backend is postgres")
		}
	default:
		return fmt.Errorf("library.backend must be blob or postgres, got %q", c.Library.Backend)
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local, memory or gcs, got %q", c.Storage.Backend)
	}
	switch c.PubSub.Backend {
	case "memory":
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" || c.PubSub.Subscription == "" {
			return fmt.Errorf("pubsub.project_id, pubsub.topic_name and pubsub.subscription are required for the pubsub backend")
		}
	default:
		return fmt.Errorf("pubsub.backend must be memory or pubsub, got %q", c.PubSub.Backend)
	}
	return nil
}
