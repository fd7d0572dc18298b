package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/catalog"
	"github.com/JakeFAU/youread/internal/config"
	"github.com/JakeFAU/youread/internal/crawler"
	"github.com/JakeFAU/youread/internal/imports"
	"github.com/JakeFAU/youread/internal/library"
	"github.com/JakeFAU/youread/internal/manga"
	"github.com/JakeFAU/youread/internal/metrics"
	"github.com/JakeFAU/youread/internal/proxy"
	"github.com/JakeFAU/youread/internal/store"
)

// Library is the tracked manga service.
type Library interface {
	List(ctx context.Context, f library.Filter) ([]manga.Tracked, error)
	Get(ctx context.Context, id string) (manga.Tracked, error)
	Add(ctx context.Context, entry manga.Tracked) (manga.Tracked, error)
	Update(ctx context.Context, id string, u library.Update) (manga.Tracked, error)
	Remove(ctx context.Context, id string) error
	Stats(ctx context.Context) (library.Stats, error)
	ImportAll(ctx context.Context, records []manga.Record) (library.ImportSummary, error)
}

// Imports starts and reports bulk import jobs.
type Imports interface {
	Start(ctx context.Context, req imports.Request) (string, error)
	Status(ctx context.Context, id string) (imports.Job, error)
}

// Recommender suggests titles from the library.
type Recommender interface {
	Recommend(ctx context.Context, tracked []manga.Tracked) ([]manga.SearchResult, error)
}

// Deps are the services behind the routes. Nil optional members disable
// their routes (proxy) or answer 503 (progress, imports).
type Deps struct {
	Library     Library
	MangaDex    catalog.Catalog
	MangaNato   catalog.Catalog
	Imports     Imports
	Recommender Recommender
	Progress    store.ProgressRepository
	Proxy       *proxy.Handler
	// Ready reports downstream readiness for /readyz.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the tracker services.
type Server struct {
	router   chi.Router
	deps     Deps
	progress *ProgressHandler
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	s := &Server{
		deps:     deps,
		progress: NewProgressHandler(deps.Progress, logger),
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.Server.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	if deps.Proxy != nil {
		r.Route("/proxy", func(r chi.Router) {
			r.Use(proxy.CORS)
			r.Get("/mangadex", deps.Proxy.MangaDex)
			r.Get("/manganato", deps.Proxy.MangaNato)
			r.Get("/image", deps.Proxy.Image)
		})
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/search", s.search)
		r.Get("/manga/{id}", s.details)
		r.Get("/recommendations", s.recommendations)
		r.Route("/library", func(r chi.Router) {
			r.Get("/", s.listLibrary)
			r.Post("/", s.addLibrary)
			r.Get("/stats", s.libraryStats)
			r.Post("/import", s.importBatch)
			r.Get("/{id}", s.getLibrary)
			r.Patch("/{id}", s.updateLibrary)
			r.Delete("/{id}", s.removeLibrary)
		})
		r.Route("/imports", func(r chi.Router) {
			r.Post("/", s.startImport)
			r.Get("/{job_id}", s.importStatus)
			r.Get("/{job_id}/events", s.progress.ListEvents)
			r.Get("/{job_id}/run", s.progress.GetRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, library.ErrNotFound), errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, imports.ErrJobNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, library.ErrExists):
		return http.StatusConflict
	case errors.Is(err, crawler.ErrInvalidTabState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, manga.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged and
// their text withheld.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	writeError(w, status, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
