package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/youread/internal/catalog"
	"github.com/JakeFAU/youread/internal/imports"
	"github.com/JakeFAU/youread/internal/library"
	"github.com/JakeFAU/youread/internal/manga"
	"github.com/JakeFAU/youread/internal/recommend"
)

var errUnknownSource = errors.New("source must be mangadex or manganato")

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	source, err := s.source(r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := source.Search(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": nonNil(results)})
}

func (s *Server) details(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	source := s.deps.MangaDex
	if strings.HasPrefix(id, manga.IDPrefix) {
		source = s.deps.MangaNato
	}
	if source == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	d, err := source.Details(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) source(name string) (catalog.Catalog, error) {
	var c catalog.Catalog
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mangadex":
		c = s.deps.MangaDex
	case "manganato":
		c = s.deps.MangaNato
	default:
		return nil, errUnknownSource
	}
	if c == nil {
		return nil, errUnknownSource
	}
	return c, nil
}

func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recommender == nil {
		writeError(w, http.StatusServiceUnavailable, "recommendations unavailable")
		return
	}
	tracked, err := s.deps.Library.List(r.Context(), library.Filter{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	results, err := s.deps.Recommender.Recommend(r.Context(), tracked)
	if err != nil {
		if errors.Is(err, recommend.ErrNoHistory) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": nonNil(results)})
}

func (s *Server) listLibrary(w http.ResponseWriter, r *http.Request) {
	var f library.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := manga.ParseReadingStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = status
	}
	entries, err := s.deps.Library.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"manga": nonNil(entries)})
}

func (s *Server) libraryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Library.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getLibrary(w http.ResponseWriter, r *http.Request) {
	entry, err := s.deps.Library.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) addLibrary(w http.ResponseWriter, r *http.Request) {
	var entry manga.Tracked
	if err := decodeJSON(w, r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if entry.ReadingStatus != "" {
		status, err := manga.ParseReadingStatus(string(entry.ReadingStatus))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		entry.ReadingStatus = status
	}
	added, err := s.deps.Library.Add(r.Context(), entry)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) updateLibrary(w http.ResponseWriter, r *http.Request) {
	var u library.Update
	if err := decodeJSON(w, r, &u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if u.ReadingStatus != nil {
		status, err := manga.ParseReadingStatus(string(*u.ReadingStatus))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		u.ReadingStatus = &status
	}
	updated, err := s.deps.Library.Update(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) removeLibrary(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Library.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importBatchRequest struct {
	Records []manga.Record `json:"records"`
}

func (s *Server) importBatch(w http.ResponseWriter, r *http.Request) {
	var req importBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.deps.Library.ImportAll(r.Context(), req.Records)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) startImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Imports == nil {
		writeError(w, http.StatusServiceUnavailable, "imports unavailable")
		return
	}
	var req imports.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.StartURL) == "" {
		writeError(w, http.StatusBadRequest, "start_url is required")
		return
	}
	if req.MaxPages < 0 {
		writeError(w, http.StatusBadRequest, "max_pages must be >= 0")
		return
	}
	id, err := s.deps.Imports.Start(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/imports/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) importStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Imports == nil {
		writeError(w, http.StatusServiceUnavailable, "imports unavailable")
		return
	}
	job, err := s.deps.Imports.Status(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
