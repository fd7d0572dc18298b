package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://Api.MangaDex.org/manga", "api.mangadex.org"},
		{"no scheme", "www.manganato.gg/bookmark", "www.manganato.gg"},
		{"host with port", "localhost:8080", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("covers.example", "200"))
	ObserveUpstream("https://covers.example/a.jpg", 200, 512)
	if got := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("covers.example", "200")); got != before+1 {
		t.Errorf("expected upstream counter to grow by 1, got %f -> %f", before, got)
	}

	hits := testutil.ToFloat64(imageCacheTotal.WithLabelValues("hit"))
	ObserveImageCache(true)
	if got := testutil.ToFloat64(imageCacheTotal.WithLabelValues("hit")); got != hits+1 {
		t.Errorf("expected cache hit counter to grow by 1, got %f", got)
	}

	added := testutil.ToFloat64(libraryImportRecordsTotal.WithLabelValues("added"))
	ObserveLibraryImport(3, 1, 0)
	if got := testutil.ToFloat64(libraryImportRecordsTotal.WithLabelValues("added")); got != added+3 {
		t.Errorf("expected added counter to grow by 3, got %f", got)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"https://api.mangadex.org", "https://www.manganato.gg", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
