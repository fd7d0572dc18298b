package manganato

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/youread/internal/crawler"
	"github.com/JakeFAU/youread/internal/manga"
)

const (
	itemSelector = `.panel-bookmark .bookmark-item, .bookmark-item, .item-story, .story-item, .history-item, ` +
		`[class*="bookmark"], [class*="story-item"], .panel-content-history .item-story, table tbody tr, .list-story .item-story`
	itemLinkSelector  = `a[href*="/manga/"], .item-title a, h3 a, .story-name a, .bookmark-title a, a[title]`
	itemTitleSelector = `.item-title, h3, .story-name`
)

var (
	viewedPattern  = regexp.MustCompile(`(?i)Viewed\s*:\s*ch(?:apter)?\.?\s*(\d+)`)
	currentPattern = regexp.MustCompile(`(?i)Current\s*:\s*ch(?:apter)?\.?\s*(\d+)`)
	digitsPattern  = regexp.MustCompile(`\d+`)
)

// Extract returns the records on a bookmark or history page. Non-listing
// pages yield an empty slice.
func (s *Site) Extract(page crawler.Page) ([]manga.Record, error) {
	out := []manga.Record{}
	if !s.IsListing(page.URL) {
		return out, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", page.URL, err)
	}
	seen := make(map[string]struct{})
	doc.Find(itemSelector).Each(func(_ int, item *goquery.Selection) {
		if s.isContainer(item) {
			return
		}
		rec, ok := s.recordFrom(item)
		if !ok {
			return
		}
		if _, dup := seen[rec.ID]; dup {
			return
		}
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	})
	return out, nil
}

// isContainer reports whether item wraps links to more than one title, as a
// listing panel matched by the broad class selectors does.
func (s *Site) isContainer(item *goquery.Selection) bool {
	first := ""
	container := false
	item.Find(`a[href*="/manga/"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		id := manga.IDFromURL(manga.AbsoluteURL(s.base, a.AttrOr("href", "")))
		if id == "" {
			return true
		}
		if first == "" {
			first = id
			return true
		}
		if id != first {
			container = true
			return false
		}
		return true
	})
	return container
}

func (s *Site) recordFrom(item *goquery.Selection) (manga.Record, bool) {
	link := item.Find(itemLinkSelector).First()
	href, _ := link.Attr("href")
	if !strings.Contains(href, "/manga/") {
		return manga.Record{}, false
	}
	source := manga.AbsoluteURL(s.base, href)
	id := manga.IDFromURL(source)
	if id == "" {
		return manga.Record{}, false
	}

	title := clean(link.Text())
	if title == "" {
		title = clean(link.AttrOr("title", ""))
	}
	if title == "" {
		title = clean(item.Find(itemTitleSelector).First().Text())
	}
	if title == "" {
		return manga.Record{}, false
	}

	rec := manga.Record{
		ID:            id,
		Title:         title,
		SourceURL:     source,
		CoverImageURL: manga.AbsoluteURL(s.base, imageSource(item.Find("img").First())),
	}
	text := item.Text()
	if n, ok := matchInt(viewedPattern, text); ok {
		rec.LastReadChapter = &n
	} else if n, ok := viewedFallback(item); ok {
		rec.LastReadChapter = &n
	}
	if n, ok := matchInt(currentPattern, text); ok {
		rec.TotalChapters = &n
	}
	return rec, true
}

// viewedFallback reads the number following "Viewed" in the deepest element
// that carries both the label and a number.
func viewedFallback(item *goquery.Selection) (int, bool) {
	var text string
	item.Find("*").Each(func(_ int, el *goquery.Selection) {
		if t := el.Text(); strings.Contains(t, "Viewed") && digitsPattern.MatchString(t) {
			text = t
		}
	})
	if text == "" {
		return 0, false
	}
	m := digitsPattern.FindString(text[strings.Index(text, "Viewed"):])
	if m == "" {
		m = digitsPattern.FindString(text)
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

func imageSource(img *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-original", "data-lazy-src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

func matchInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
