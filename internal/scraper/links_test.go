package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func matchRow(href, text string) string {
	return `<div class="event__match"><a class="eventRowLink" href="` + href + `"></a>` + text + `</div>`
}

func TestCollectLinks_MainDrawOnly(t *testing.T) {
	html := `<div class="sportName tennis">
		<div class="event__header">ATP - Madrid (clay)</div>` +
		matchRow("https://x/match/1", "Nadal R. - Smith J.") +
		matchRow("https://x/match/2", "Alcaraz C. - Doe B.") +
		`</div>`

	links := CollectLinks(docFromHTML(t, html))
	assert.Equal(t, []string{"https://x/match/1", "https://x/match/2"}, links)
}

func TestCollectLinks_QualificationExcluded(t *testing.T) {
	html := `<div class="sportName tennis">
		<div class="event__header">ATP - Madrid, Selejtező</div>` +
		matchRow("https://x/match/q1", "Qualifier A - Qualifier B") +
		`<div class="event__header">ATP - Madrid</div>` +
		matchRow("https://x/match/1", "Nadal R. - Smith J.") +
		`</div>`

	links := CollectLinks(docFromHTML(t, html))
	assert.Equal(t, []string{"https://x/match/1"}, links)
}

func TestCollectLinks_EnglishQualifyingMarker(t *testing.T) {
	html := `<div class="sportName tennis">
		<div class="event__header">ATP - Madrid</div>` +
		matchRow("https://x/match/1", "Nadal R. - Smith J.") +
		`<div class="event__header">ATP - Madrid, Qualifying</div>` +
		matchRow("https://x/match/q1", "Qualifier A - Qualifier B") +
		`</div>`

	links := CollectLinks(docFromHTML(t, html))
	assert.Equal(t, []string{"https://x/match/1"}, links)
}

func TestCollectLinks_SecondaryHeaderEntersQualificationOnly(t *testing.T) {
	// A secondary header can flip into qualification but a non-qualifying
	// secondary header must not flip back out.
	html := `<div class="sportName tennis">
		<div class="event__header">ATP - Madrid, Selejtező</div>
		<div class="wclLeagueHeader--title">Round of 16</div>` +
		matchRow("https://x/match/q1", "Qualifier A - Qualifier B") +
		`</div>`

	links := CollectLinks(docFromHTML(t, html))
	assert.Empty(t, links)
}

func TestCollectLinks_CancelledExcluded(t *testing.T) {
	html := `<div class="sportName tennis">
		<div class="event__header">ATP - Madrid</div>` +
		matchRow("https://x/match/1", "Nadal R. - Smith J. törölt") +
		matchRow("https://x/match/2", "Alcaraz C. - Doe B.") +
		matchRow("https://x/match/3", "Late A. - Rain B. elmaradt") +
		`</div>`

	links := CollectLinks(docFromHTML(t, html))
	assert.Equal(t, []string{"https://x/match/2"}, links)
}

func TestCollectLinks_Dedupes(t *testing.T) {
	html := `<div class="sportName tennis">
		<div class="event__header">ATP - Madrid</div>` +
		matchRow("https://x/match/1", "Nadal R. - Smith J.") +
		matchRow("https://x/match/1", "Nadal R. - Smith J.") +
		`</div>`

	links := CollectLinks(docFromHTML(t, html))
	assert.Equal(t, []string{"https://x/match/1"}, links)
}

func TestCollectLinks_NoContainer(t *testing.T) {
	assert.Empty(t, CollectLinks(docFromHTML(t, `<div class="somethingElse"></div>`)))
}

func TestFilterNew(t *testing.T) {
	existing := map[string]struct{}{
		"https://x/match/1": {},
		"https://x/match/3": {},
	}
	fresh, already := FilterNew([]string{
		"https://x/match/1",
		"https://x/match/2",
		"https://x/match/3",
		"https://x/match/4",
	}, existing)

	assert.Equal(t, []string{"https://x/match/2", "https://x/match/4"}, fresh)
	assert.Equal(t, 2, already)
}

func TestFilterNew_EmptyExisting(t *testing.T) {
	fresh, already := FilterNew([]string{"a", "b"}, map[string]struct{}{})
	assert.Equal(t, []string{"a", "b"}, fresh)
	assert.Zero(t, already)
}

func TestClassifyRow(t *testing.T) {
	cases := []struct {
		html string
		want rowKind
	}{
		{`<div class="event__header">x</div>`, rowHeader},
		{`<div class="wclLeagueHeader--title">x</div>`, rowSecondaryHeader},
		{`<div class="event__match event__match--last">x</div>`, rowMatch},
		{`<div class="event__more">x</div>`, rowOther},
	}
	for _, c := range cases {
		sel := docFromHTML(t, c.html).Find("div").First()
		assert.Equal(t, c.want, classifyRow(sel), c.html)
	}
}
