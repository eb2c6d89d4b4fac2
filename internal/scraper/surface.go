package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/matchpoint-analytics/matchpoint/internal/model"
)

const (
	headerTitleSel   = ".headerLeague__title"
	sectionHeaderSel = ".event__header"
)

// surfaceKeywords maps header text fragments to surfaces. Matching is
// case-insensitive across the Hungarian and English renderings of the
// source site. Order matters: it reproduces the classifier the stored
// data was built with, so "indoor hard" keeps resolving to Hard.
var surfaceKeywords = []struct {
	marker  string
	surface model.Surface
}{
	{"kemény", model.SurfaceHard},
	{"hard", model.SurfaceHard},
	{"salak", model.SurfaceClay},
	{"clay", model.SurfaceClay},
	{"fű", model.SurfaceGrass},
	{"grass", model.SurfaceGrass},
	{"fedett", model.SurfaceIndoorHard},
	{"indoor", model.SurfaceIndoorHard},
}

// DetectSurface classifies the playing surface from the tournament page
// header. The designated header title is preferred (its title attribute
// often carries the full name when the visible text is truncated); the
// first section header is the fallback. Unknown when neither yields a
// keyword — this is advisory metadata and never blocks discovery.
func DetectSurface(doc *goquery.Document) model.Surface {
	var text string

	if title := doc.Find(headerTitleSel).First(); title.Length() > 0 {
		attr, _ := title.Attr("title")
		text = attr + " " + title.Text()
	} else if header := doc.Find(sectionHeaderSel).First(); header.Length() > 0 {
		text = header.Text()
	} else {
		return model.SurfaceUnknown
	}

	text = strings.ToLower(text)
	for _, kw := range surfaceKeywords {
		if strings.Contains(text, kw.marker) {
			return kw.surface
		}
	}
	return model.SurfaceUnknown
}
