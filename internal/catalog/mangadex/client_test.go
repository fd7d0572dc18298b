package mangadex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/catalog"
)

const mangaID = "123e4567-e89b-12d3-a456-426614174000"

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL, CoverBaseURL: "https://covers.test", UserAgent: "youread-test"}, zap.NewNop())
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestSearch(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/manga", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "solo leveling", q.Get("title"))
		assert.Equal(t, "20", q.Get("limit"))
		assert.Equal(t, []string{"cover_art"}, q["includes[]"])
		assert.Equal(t, []string{"safe", "suggestive", "erotica"}, q["contentRating[]"])
		assert.Equal(t, "desc", q.Get("order[relevance]"))
		assert.Equal(t, "youread-test", r.UserAgent())
		writeJSON(t, w, map[string]any{
			"data": []map[string]any{
				{
					"id": mangaID,
					"attributes": map[string]any{
						"title":       map[string]string{"ko": "나 혼자만 레벨업"},
						"altTitles":   []map[string]string{{"en": "Solo Leveling"}, {"ja": "俺だけレベルアップな件"}},
						"description": map[string]string{"en": "Hunters."},
					},
					"relationships": []map[string]any{
						{"type": "author", "attributes": map[string]string{"name": "Chugong"}},
						{"type": "cover_art", "attributes": map[string]string{"fileName": "cover.png"}},
					},
				},
				{
					"id":         "untitled",
					"attributes": map[string]any{"title": map[string]string{}},
				},
			},
		})
	})

	results, err := newTestClient(t, mux).Search(context.Background(), "  solo leveling ")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, mangaID, results[0].ID)
	assert.Equal(t, "나 혼자만 레벨업", results[0].Title)
	assert.Equal(t, "https://covers.test/"+mangaID+"/cover.png.512.jpg", results[0].CoverImageURL)
	assert.Equal(t, "Hunters.", results[0].Description)
	assert.Equal(t, []string{"나 혼자만 레벨업", "Solo Leveling", "俺だけレベルアップな件"}, results[0].AltTitles)

	assert.Equal(t, "Unknown Title", results[1].Title)
	assert.Empty(t, results[1].CoverImageURL)
}

func TestSearchRequiresQuery(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil).Search(context.Background(), " ")
	require.Error(t, err)
}

func TestSearchUpstreamError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/manga", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	_, err := newTestClient(t, mux).Search(context.Background(), "x")
	require.ErrorIs(t, err, catalog.ErrUpstream)
}

func TestSearchByTag(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/manga/tag", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"data": []map[string]any{
				{"id": "tag-romance", "attributes": map[string]any{"name": map[string]string{"en": "Romance"}, "group": "genre"}},
				{"id": "tag-action", "attributes": map[string]any{"name": map[string]string{"en": "Action"}, "group": "genre"}},
			},
		})
	})
	mux.HandleFunc("/manga", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"tag-action"}, r.URL.Query()["includedTags[]"])
		assert.Equal(t, "desc", r.URL.Query().Get("order[rating]"))
		writeJSON(t, w, map[string]any{
			"data": []map[string]any{
				{"id": "a1", "attributes": map[string]any{"title": map[string]string{"en": "Action One"}}},
			},
		})
	})

	client := newTestClient(t, mux)
	results, err := client.SearchByTag(context.Background(), "ACTION")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Action One", results[0].Title)

	results, err = client.SearchByTag(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDetails(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/manga/"+mangaID, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"cover_art", "author", "artist"}, r.URL.Query()["includes[]"])
		writeJSON(t, w, map[string]any{
			"data": map[string]any{
				"id": mangaID,
				"attributes": map[string]any{
					"title":       map[string]string{"en": "Solo Leveling"},
					"description": map[string]string{"ja": "説明"},
					"status":      "completed",
					"tags": []map[string]any{
						{"attributes": map[string]any{"name": map[string]string{"en": "Action"}, "group": "genre"}},
						{"attributes": map[string]any{"name": map[string]string{"en": "Long Strip"}, "group": "format"}},
						{"attributes": map[string]any{"name": map[string]string{"en": "Fantasy"}, "group": "genre"}},
					},
				},
				"relationships": []map[string]any{
					{"type": "artist", "attributes": map[string]string{"name": "Dubu"}},
					{"type": "author", "attributes": map[string]string{"name": "Chugong"}},
				},
			},
		})
	})
	mux.HandleFunc("/manga/"+mangaID+"/aggregate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"en"}, r.URL.Query()["translatedLanguage[]"])
		writeJSON(t, w, map[string]any{
			"volumes": map[string]any{
				"1":    map[string]any{"chapters": map[string]any{"1": map[string]any{}, "2": map[string]any{}}},
				"none": map[string]any{"chapters": map[string]any{"3": map[string]any{}}},
			},
		})
	})

	details, err := newTestClient(t, mux).Details(context.Background(), mangaID)
	require.NoError(t, err)
	assert.Equal(t, "Solo Leveling", details.Title)
	assert.Equal(t, "説明", details.Description)
	assert.Equal(t, "completed", details.Status)
	assert.Equal(t, "Chugong", details.Author)
	assert.Equal(t, []string{"Action", "Fantasy"}, details.Genres)
	require.NotNil(t, details.Chapters)
	assert.Equal(t, 3, *details.Chapters)
	assert.Empty(t, details.CoverImageURL)
}

func TestDetailsNotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/manga/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"result":"error"}`, http.StatusNotFound)
	})
	client := newTestClient(t, mux)

	_, err := client.Details(context.Background(), "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = client.Details(context.Background(), "../etc")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDetailsWithoutAggregate(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/manga/m1", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"data": map[string]any{"id": "m1", "attributes": map[string]any{}}})
	})
	mux.HandleFunc("/manga/m1/aggregate", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	details, err := newTestClient(t, mux).Details(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "Unknown Title", details.Title)
	assert.Nil(t, details.Chapters)
}

func TestAggregateEmptyVolumesArray(t *testing.T) {
	t.Parallel()

	var agg aggregateResponse
	require.NoError(t, json.Unmarshal([]byte(`{"result":"ok","volumes":[]}`), &agg))
	count, err := agg.chapterCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPickLocalized(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "B", pickLocalized(map[string]string{"zh": "B", "ja": " "}, "en", "ja"))
	assert.Equal(t, "A", pickLocalized(map[string]string{"zh": "B", "de": "A"}))
	assert.Empty(t, pickLocalized(nil, "en"))
}
