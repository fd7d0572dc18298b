// Package proxy serves the pass-through endpoints the web client uses to
// reach MangaDex and MangaNato without CORS trouble.
package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/youread/internal/fetcher/colly"
	"github.com/JakeFAU/youread/internal/storage"
)

const (
	// DefaultUserAgent is sent to upstreams that reject non-browser clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	defaultMangaDexBaseURL = "https://api.mangadex.org"
	defaultReferer         = "https://www.manganato.gg/"
	defaultTimeout         = 20 * time.Second
	defaultMaxBytes        = 10 << 20
	imageCachePrefix       = "images"
)

// Limiter rejects requests over the per-host budget.
type Limiter interface {
	Allow(rawURL string) bool
}

// PageFetcher retrieves HTML pages.
type PageFetcher interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Hasher derives cache keys.
type Hasher interface {
	Key(prefix, rawURL string) string
}

// Config configures the proxies.
type Config struct {
	MangaDexBaseURL string
	Referer         string
	UserAgent       string
	Timeout         time.Duration
	MaxBytes        int64
}

// Deps are the collaborators. Cache and Limiter are optional.
type Deps struct {
	HTTPClient *http.Client
	Pages      PageFetcher
	Limiter    Limiter
	Cache      storage.BlobStore
	Hasher     Hasher
}

// Handler serves the proxy endpoints.
type Handler struct {
	cfg     Config
	client  *http.Client
	pages   PageFetcher
	limiter Limiter
	cache   storage.BlobStore
	hasher  Hasher
	logger  *zap.Logger
}

// New builds a Handler.
func New(cfg Config, deps Deps, logger *zap.Logger) *Handler {
	if cfg.MangaDexBaseURL == "" {
		cfg.MangaDexBaseURL = defaultMangaDexBaseURL
	}
	cfg.MangaDexBaseURL = strings.TrimRight(cfg.MangaDexBaseURL, "/")
	if cfg.Referer == "" {
		cfg.Referer = defaultReferer
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Cache != nil && deps.Hasher == nil {
		deps.Cache = nil
	}
	return &Handler{
		cfg:     cfg,
		client:  client,
		pages:   deps.Pages,
		limiter: deps.Limiter,
		cache:   deps.Cache,
		hasher:  deps.Hasher,
		logger:  logger.Named("proxy"),
	}
}

// CORS sets permissive CORS headers and answers preflight requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) allow(w http.ResponseWriter, target string) bool {
	if h.limiter == nil || h.limiter.Allow(target) {
		return true
	}
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
