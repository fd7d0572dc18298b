package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/youread/internal/manga"
	"github.com/JakeFAU/youread/internal/progress"
)

const listingURL = "https://example.test/bookmark"

func pageURL(n int) string {
	if n <= 1 {
		return listingURL
	}
	return fmt.Sprintf("%s?page=%d", listingURL, n)
}

func pageNumber(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 1
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func rec(id string) manga.Record {
	return manga.Record{ID: id, Title: strings.ToUpper(id)}
}

func ids(records []manga.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

type fakeSite struct {
	mu           sync.Mutex
	pages        map[int][]manga.Record
	productive   bool
	lastPage     int
	extractErr   map[int]error
	extractCalls map[int]int
	panicOn      int
	onExtract    func(page int)
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:        map[int][]manga.Record{},
		extractErr:   map[int]error{},
		extractCalls: map[int]int{},
	}
}

func (s *fakeSite) IsListing(raw string) bool {
	return strings.Contains(raw, "/bookmark")
}

func (s *fakeSite) PageNumber(raw string) int {
	return pageNumber(raw)
}

func (s *fakeSite) Extract(page Page) ([]manga.Record, error) {
	n := pageNumber(page.URL)
	s.mu.Lock()
	s.extractCalls[n]++
	hook := s.onExtract
	err := s.extractErr[n]
	records, ok := s.pages[n]
	productive := s.productive
	panicOn := s.panicOn
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if panicOn == n {
		panic("extractor blew up")
	}
	if err != nil {
		return nil, err
	}
	if !ok && productive {
		return []manga.Record{rec(fmt.Sprintf("p%d", n))}, nil
	}
	return records, nil
}

func (s *fakeSite) NextPageURL(page Page) (string, bool) {
	n := pageNumber(page.URL)
	if s.lastPage > 0 && n >= s.lastPage {
		return "", false
	}
	return pageURL(n + 1), true
}

func (s *fakeSite) calls(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extractCalls[page]
}

type fakeTab struct {
	mu           sync.Mutex
	url          string
	injected     bool
	injects      int
	navigations  []string
	closeOn      int
	dropEndpoint map[int]int
	neverReady   map[int]bool
	locationErr  error
}

func newFakeTab(start string) *fakeTab {
	return &fakeTab{url: start, dropEndpoint: map[int]int{}, neverReady: map[int]bool{}}
}

func (t *fakeTab) Location(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locationErr != nil {
		return "", t.locationErr
	}
	return t.url, nil
}

func (t *fakeTab) Navigate(_ context.Context, raw string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closeOn > 0 && pageNumber(raw) == t.closeOn {
		return ErrTabClosed
	}
	t.navigations = append(t.navigations, raw)
	t.url = raw
	t.injected = false
	return nil
}

func (t *fakeTab) Loaded(context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.neverReady[pageNumber(t.url)], nil
}

func (t *fakeTab) Inject(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.injects++
	t.injected = true
	return nil
}

func (t *fakeTab) Snapshot(context.Context) (Page, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.injected {
		return Page{}, ErrEndpointMissing
	}
	n := pageNumber(t.url)
	if t.dropEndpoint[n] > 0 {
		t.dropEndpoint[n]--
		t.injected = false
		return Page{}, ErrEndpointMissing
	}
	return Page{URL: t.url}, nil
}

func (t *fakeTab) Navigations() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.navigations...)
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Stage(stage progress.Stage) []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []progress.Event
	for _, evt := range e.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		MaxPages:          50,
		EnsureAttempts:    2,
		ExtractAttempts:   4,
		NextPageAttempts:  2,
		NavigateAttempts:  2,
		RetryDelay:        0,
		ReadyTimeout:      10 * time.Millisecond,
		ReadyPollInterval: time.Millisecond,
	}
}
