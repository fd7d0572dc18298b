package manganato

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/youread/internal/crawler"
)

const detailsHTML = `<html><body>
<div class="story-info-left"><span class="info-image"><img src="/thumb/solo.jpg"></span></div>
<div class="story-info-right">
  <h1>Solo Leveling</h1>
  <table>
    <tr><td>Author(s) :</td><td><a href="/author/chugong">Chugong</a></td></tr>
    <tr><td>Status :</td><td>Completed</td></tr>
    <tr><td>Genres :</td><td><a href="/genre/action">Action</a> - <a href="/genre/fantasy">Fantasy</a></td></tr>
  </table>
</div>
<div class="panel-story-info-description">Description : Ten years ago, the Gate appeared.</div>
<div class="panel-story-chapter-list">
  <ul class="row-content-chapter">
    <li><a href="/manga/solo-leveling/chapter-2">Chapter 2</a></li>
    <li><a href="/manga/solo-leveling/chapter-1">Chapter 1</a></li>
  </ul>
</div>
</body></html>`

func TestExtractDetails(t *testing.T) {
	t.Parallel()

	d, err := New("", nil).ExtractDetails(crawler.Page{URL: "https://www.manganato.gg/manga/solo-leveling", HTML: detailsHTML})
	require.NoError(t, err)
	require.Equal(t, "manganato_solo-leveling", d.ID)
	require.Equal(t, "Solo Leveling", d.Title)
	require.Equal(t, "https://www.manganato.gg/thumb/solo.jpg", d.CoverImageURL)
	require.Equal(t, "Chugong", d.Author)
	require.Equal(t, []string{"Action", "Fantasy"}, d.Genres)
	require.Equal(t, "completed", d.Status)
	require.NotNil(t, d.Chapters)
	require.Equal(t, 2, *d.Chapters)
	require.Contains(t, d.Description, "Ten years ago")
}

func TestExtractDetailsDefaults(t *testing.T) {
	t.Parallel()

	html := `<div class="cover-box" style="x"><div class="info-image"><img style="background-image:url('/img/bg.jpg')"></div></div>`
	d, err := New("", nil).ExtractDetails(crawler.Page{URL: "https://www.manganato.gg/manga/bare", HTML: html})
	require.NoError(t, err)
	require.Equal(t, "Unknown Title", d.Title)
	require.Equal(t, "https://www.manganato.gg/img/bg.jpg", d.CoverImageURL)
	require.Nil(t, d.Chapters)
	require.Empty(t, d.Status)

	_, err = New("", nil).ExtractDetails(crawler.Page{URL: "https://www.manganato.gg/", HTML: html})
	require.Error(t, err)
}

func TestParseSearch(t *testing.T) {
	t.Parallel()

	html := `<div class="panel-search-story">
<div class="search-story-item">
  <a class="item-img" href="https://www.manganato.gg/manga/solo-leveling" title="Solo Leveling"><img src="/thumb/solo.jpg"></a>
  <div class="item-right"><h3><a class="item-title" href="https://www.manganato.gg/manga/solo-leveling">Solo Leveling</a></h3>
  <div class="item-story-desc">Hunters and gates.</div></div>
</div>
<div class="search-story-item">
  <a class="item-img" href="/manga/tower-of-god"><img data-src="//cdn.example.com/tog.jpg"></a>
  <h3><a href="/manga/tower-of-god">Tower of God</a></h3>
</div>
</div>`
	got, err := New("", nil).ParseSearch(html)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "manganato_solo-leveling", got[0].ID)
	require.Equal(t, "Solo Leveling", got[0].Title)
	require.Equal(t, "https://www.manganato.gg/thumb/solo.jpg", got[0].CoverImageURL)
	require.Equal(t, "Hunters and gates.", got[0].Description)
	require.Equal(t, "manganato_tower-of-god", got[1].ID)
	require.Equal(t, "Tower of God", got[1].Title)
	require.Equal(t, "https://cdn.example.com/tog.jpg", got[1].CoverImageURL)
}

func TestParseSearchFallsBackToLinks(t *testing.T) {
	t.Parallel()

	html := `<ul><li><a href="/manga/x-one">X One</a></li><li><a href="/story/y-two">Y Two</a></li><li><a href="/manga/x-one">dup</a></li></ul>`
	got, err := New("", nil).ParseSearch(html)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "manganato_x-one", got[0].ID)
	require.Equal(t, "manganato_y-two", got[1].ID)
}
