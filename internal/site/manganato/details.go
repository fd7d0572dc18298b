package manganato

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/youread/internal/crawler"
	"github.com/JakeFAU/youread/internal/manga"
)

const (
	detailTitleSelector    = `h1, .story-info-right h1, .story-info-right h2, [class*="story-title"]`
	detailCoverSelector    = `.story-info-left img, .info-image img, [class*="cover"] img`
	detailCoverFallback    = `img[src*="cover"], img[src*="thumb"], img[src*="manga"], .item-img img, .story-img img`
	detailDescSelector     = `.panel-story-info-description, .story-description, [class*="description"]`
	detailAuthorSelector   = `a[href*="/author/"]`
	detailGenreSelector    = `a[href*="/genre/"]`
	detailStatusSelector   = `.story-info-right, .info-status`
	detailChapterSelector  = `.row-content-chapter a, .chapter-name, [class*="chapter"] a`
	searchItemSelector     = `.search-story-item, .item-story, .story-item, [class*="story-item"], .panel-content-genre .content-genres-item`
	searchTitleSelector    = `h3 a, .item-title a, a.story-name, a[title], h3, .story-name`
	searchDescSelector     = `.item-story-desc, .story-desc, .text-gray`
	searchFallbackSelector = `a[href*="/manga/"], a[href*="/story/"]`
	maxSearchResults       = 20
)

var backgroundURLPattern = regexp.MustCompile(`url\(['"]?([^'")]+)['"]?\)`)

// ExtractDetails reads a single manga page.
func (s *Site) ExtractDetails(page crawler.Page) (manga.Details, error) {
	id := idFromLastSegment(page.URL)
	if id == "" {
		return manga.Details{}, fmt.Errorf("no manga id in %s", page.URL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return manga.Details{}, fmt.Errorf("parse details %s: %w", page.URL, err)
	}

	d := manga.Details{
		ID:          id,
		Title:       clean(doc.Find(detailTitleSelector).First().Text()),
		Description: clean(doc.Find(detailDescSelector).First().Text()),
		Author:      clean(doc.Find(detailAuthorSelector).First().Text()),
		SourceURL:   page.URL,
	}
	if d.Title == "" {
		d.Title = "Unknown Title"
	}

	cover := doc.Find(detailCoverSelector).First()
	if cover.Length() == 0 {
		cover = doc.Find(detailCoverFallback).First()
	}
	src := imageSource(cover)
	if src == "" {
		if m := backgroundURLPattern.FindStringSubmatch(cover.AttrOr("style", "")); len(m) == 2 {
			src = m[1]
		}
	}
	d.CoverImageURL = manga.AbsoluteURL(s.base, src)

	doc.Find(detailGenreSelector).Each(func(_ int, el *goquery.Selection) {
		if g := clean(el.Text()); g != "" {
			d.Genres = append(d.Genres, g)
		}
	})

	status := strings.ToLower(doc.Find(detailStatusSelector).First().Text())
	switch {
	case strings.Contains(status, "completed"):
		d.Status = "completed"
	case strings.Contains(status, "ongoing"):
		d.Status = "ongoing"
	}

	if n := doc.Find(detailChapterSelector).Length(); n > 0 {
		d.Chapters = manga.IntPtr(n)
	}
	return d, nil
}

// ParseSearch reads a search results page, falling back to any manga links
// when no result cards match. At most 20 results are returned.
func (s *Site) ParseSearch(html string) ([]manga.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search: %w", err)
	}
	results := []manga.SearchResult{}
	seen := make(map[string]struct{})
	add := func(r manga.SearchResult) {
		if r.Title == "" || r.ID == "" || len(results) >= maxSearchResults {
			return
		}
		if _, ok := seen[r.ID]; ok {
			return
		}
		seen[r.ID] = struct{}{}
		results = append(results, r)
	}

	doc.Find(searchItemSelector).Each(func(_ int, item *goquery.Selection) {
		titleEl := item.Find(searchTitleSelector).First()
		linkEl := item.Find("a").First()
		if linkEl.Length() == 0 {
			linkEl = titleEl
		}
		if linkEl.Length() == 0 {
			return
		}
		title := clean(titleEl.Text())
		if title == "" {
			title = clean(linkEl.Text())
		}
		if title == "" {
			title = clean(linkEl.AttrOr("title", ""))
		}
		add(manga.SearchResult{
			ID:            idFromLastSegment(manga.AbsoluteURL(s.base, linkEl.AttrOr("href", ""))),
			Title:         title,
			CoverImageURL: manga.AbsoluteURL(s.base, imageSource(item.Find("img").First())),
			Description:   clean(item.Find(searchDescSelector).First().Text()),
		})
	})

	if len(results) == 0 {
		doc.Find(searchFallbackSelector).Each(func(_ int, link *goquery.Selection) {
			title := clean(link.Text())
			if title == "" {
				title = clean(link.AttrOr("title", ""))
			}
			add(manga.SearchResult{
				ID:    idFromLastSegment(manga.AbsoluteURL(s.base, link.AttrOr("href", ""))),
				Title: title,
			})
		})
	}
	return results, nil
}

// idFromLastSegment mints an id from the final path segment, the way search
// and detail URLs are keyed.
func idFromLastSegment(raw string) string {
	if id := manga.IDFromURL(raw); id != "" {
		return id
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return manga.IDPrefix + seg
}
