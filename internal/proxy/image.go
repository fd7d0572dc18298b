package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/metrics"
	"github.com/JakeFAU/youread/internal/storage"
)

var (
	imageExtensions = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".avif": {},
	}
	imagePathMarkers = []string{"/cover/", "/thumb/", "/image/", "/img/"}
)

const immutableCache = "public, max-age=31536000, immutable"

// Image relays GET /proxy/image?url=... for MangaNato hosted images and
// keeps a copy in the blob cache.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	target, ok := targetURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "url parameter is required")
		return
	}
	if !isMangaNato(target) {
		writeError(w, http.StatusForbidden, "invalid url: only MangaNato images are allowed")
		return
	}
	if !looksLikeImage(target) && strings.Contains(target, "/manga/") {
		writeError(w, http.StatusBadRequest, "invalid url: expected an image url, got a manga page url")
		return
	}

	var key string
	if h.cache != nil {
		key = h.hasher.Key(imageCachePrefix, target)
		obj, err := h.cache.GetObject(r.Context(), key)
		switch {
		case err == nil:
			metrics.ObserveImageCache(true)
			writeImage(w, obj.ContentType, obj.Data)
			return
		case !errors.Is(err, storage.ErrNotFound):
			h.logger.Warn("image cache read failed", zap.String("key", key), zap.Error(err))
		}
		metrics.ObserveImageCache(false)
	}

	if !h.allow(w, target) {
		return
	}
	data, contentType, status, err := h.fetchImage(r, target)
	if err != nil {
		h.logger.Warn("image proxy failed", zap.String("url", target), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to fetch image")
		return
	}
	if status < 200 || status >= 300 {
		writeError(w, status, fmt.Sprintf("failed to fetch image: %s", http.StatusText(status)))
		return
	}

	if h.cache != nil {
		if _, err := h.cache.PutObject(r.Context(), key, contentType, bytes.NewReader(data)); err != nil {
			h.logger.Warn("image cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	writeImage(w, contentType, data)
}

func (h *Handler) fetchImage(r *http.Request, target string) ([]byte, string, int, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	req.Header.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Referer", h.cfg.Referer)

	res, err := h.client.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("fetch image: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, h.cfg.MaxBytes+1))
	metrics.ObserveUpstream(target, res.StatusCode, len(data))
	if err != nil {
		return nil, "", 0, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > h.cfg.MaxBytes {
		return nil, "", 0, fmt.Errorf("image exceeds %d bytes", h.cfg.MaxBytes)
	}
	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, res.StatusCode, nil
}

func writeImage(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", immutableCache)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func looksLikeImage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if _, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
		return true
	}
	for _, marker := range imagePathMarkers {
		if strings.Contains(u.Path, marker) {
			return true
		}
	}
	return false
}
