// Package recommend suggests manga from the genres of what the user reads.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/catalog"
	"github.com/JakeFAU/youread/internal/manga"
)

// ErrNoHistory means nothing is being read or has been completed yet.
var ErrNoHistory = errors.New("read some manga first")

const (
	maxGenres  = 5
	maxResults = 20
)

// fallbackQueries seed recommendations when tracked manga carry no genres.
var fallbackQueries = []string{"action", "fantasy", "romance", "comedy", "drama"}

// Recommender builds recommendations from a catalog search.
type Recommender struct {
	searcher catalog.Searcher
	pick     func(n int) int
	logger   *zap.Logger
}

// Option customizes a Recommender.
type Option func(*Recommender)

// WithPicker replaces the random choice of fallback query.
func WithPicker(pick func(n int) int) Option {
	return func(r *Recommender) {
		r.pick = pick
	}
}

// New builds a Recommender over searcher.
func New(searcher catalog.Searcher, logger *zap.Logger, opts ...Option) *Recommender {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recommender{searcher: searcher, pick: rand.IntN, logger: logger.Named("recommend")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recommend searches by the genres of reading and completed entries and
// drops anything already tracked.
func (r *Recommender) Recommend(ctx context.Context, tracked []manga.Tracked) ([]manga.SearchResult, error) {
	var seeds []manga.Tracked
	for _, t := range tracked {
		if t.ReadingStatus == manga.StatusReading || t.ReadingStatus == manga.StatusCompleted {
			seeds = append(seeds, t)
		}
	}
	if len(seeds) == 0 {
		return nil, ErrNoHistory
	}

	query := genreQuery(seeds)
	if query == "" {
		query = fallbackQueries[r.pick(len(fallbackQueries))]
	}
	r.logger.Debug("recommendation query", zap.String("query", query), zap.Int("seeds", len(seeds)))

	results, err := r.searcher.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search recommendations: %w", err)
	}

	known := make(map[string]struct{}, len(tracked))
	for _, t := range tracked {
		known[t.ID] = struct{}{}
	}
	out := make([]manga.SearchResult, 0, maxResults)
	for _, res := range results {
		if _, ok := known[res.ID]; ok {
			continue
		}
		known[res.ID] = struct{}{}
		out = append(out, res)
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}

// genreQuery joins up to maxGenres distinct genres in first-seen order.
func genreQuery(seeds []manga.Tracked) string {
	seen := make(map[string]struct{})
	genres := make([]string, 0, maxGenres)
	for _, s := range seeds {
		for _, g := range s.Genres {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			genres = append(genres, g)
			if len(genres) == maxGenres {
				return strings.Join(genres, " ")
			}
		}
	}
	return strings.Join(genres, " ")
}
