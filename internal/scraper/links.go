package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/matchpoint-analytics/matchpoint/internal/browser"
	"github.com/matchpoint-analytics/matchpoint/internal/config"
	"github.com/matchpoint-analytics/matchpoint/internal/model"
)

const (
	matchListSel    = ".sportName.tennis"
	rowLinkSel      = "a.eventRowLink"
	showMoreSel     = ".event__more"
	cookieAcceptSel = "#onetrust-accept-btn-handler"

	// showMoreText is the source site's "show more matches" control.
	showMoreText = "További meccsek"
)

// qualificationMarkers flag a draw stage as pre-main-draw.
var qualificationMarkers = []string{"Selejtező", "Qualifying"}

// cancelledMarkers flag a tie that was called off entirely. Retirements
// and walkovers are not cancelled: they have a winner and are kept.
var cancelledMarkers = []string{"törölt", "elmaradt"}

// rowKind tags one direct child of the match-list container.
type rowKind int

const (
	rowOther rowKind = iota
	rowHeader
	rowSecondaryHeader
	rowMatch
)

// classifyRow buckets a list element by its class attribute. The primary
// header class wins over the looser header/title heuristic, which in turn
// wins over the match-row class.
func classifyRow(sel *goquery.Selection) rowKind {
	class, _ := sel.Attr("class")
	switch {
	case strings.Contains(class, "event__header"):
		return rowHeader
	case strings.Contains(class, "header") || strings.Contains(strings.ToLower(class), "title"):
		return rowSecondaryHeader
	case strings.Contains(class, "event__match"):
		return rowMatch
	}
	return rowOther
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// isQualificationText reports whether a header's text names a
// qualification stage.
func isQualificationText(text string) bool {
	return containsAny(text, qualificationMarkers)
}

// Discoverer enumerates the main-draw match URLs of a tournament page.
type Discoverer struct {
	cfg config.ScraperConfig
}

// NewDiscoverer creates a Discoverer with the given scraper settings.
func NewDiscoverer(cfg config.ScraperConfig) *Discoverer {
	return &Discoverer{cfg: cfg}
}

// Discover loads the tournament page and returns its ordered, unique
// main-draw match URLs plus the detected surface. Any failure degrades to
// an empty list and Unknown surface; the caller treats that as "no
// matches found", never as a crash.
func (d *Discoverer) Discover(ctx context.Context, s browser.Session, pageURL string) ([]string, model.Surface) {
	log := zap.L().With(zap.String("url", pageURL))

	if err := s.Navigate(ctx, pageURL); err != nil {
		log.Warn("discover: navigation failed", zap.Error(err))
		return nil, model.SurfaceUnknown
	}

	d.dismissCookieConsent(ctx, s)

	if err := s.WaitReady(ctx, matchListSel, d.waitTimeout()); err != nil {
		log.Warn("discover: match list never appeared", zap.Error(err))
		return nil, model.SurfaceUnknown
	}

	d.loadAllMatches(ctx, s, log)

	doc, err := s.Document(ctx)
	if err != nil {
		log.Warn("discover: snapshot failed", zap.Error(err))
		return nil, model.SurfaceUnknown
	}

	surface := DetectSurface(doc)
	links := CollectLinks(doc)

	log.Info("discover: complete",
		zap.Int("links", len(links)),
		zap.String("surface", string(surface)),
	)
	return links, surface
}

// dismissCookieConsent accepts the consent overlay if present. Best
// effort on a short budget; absence or timeout is not an error.
func (d *Discoverer) dismissCookieConsent(ctx context.Context, s browser.Session) {
	budget := time.Duration(d.cfg.CookieTimeoutSecs) * time.Second
	if err := s.WaitReady(ctx, cookieAcceptSel, budget); err != nil {
		return
	}
	if err := s.Click(ctx, cookieAcceptSel); err != nil {
		zap.L().Debug("discover: cookie consent click failed", zap.Error(err))
	}
}

// loadAllMatches scrolls to the bottom and invokes the "show more
// matches" control so lazy-loaded rows are present before the snapshot.
// The control is probed by fuzzy text first, then by CSS class; if
// neither exists the page is simply complete already.
func (d *Discoverer) loadAllMatches(ctx context.Context, s browser.Session, log *zap.Logger) {
	if err := s.ScrollBottom(ctx); err != nil {
		log.Debug("discover: scroll failed", zap.Error(err))
		return
	}
	d.settle(ctx)

	// The control renders with the lazy batch; give it its own budget.
	budget := time.Duration(d.cfg.ShowMoreTimeoutSecs) * time.Second
	_ = s.WaitReady(ctx, showMoreSel, budget)

	clicked, err := s.ClickText(ctx, showMoreText)
	if err != nil {
		log.Debug("discover: show-more text probe failed", zap.Error(err))
	}
	if !clicked {
		if err := s.Click(ctx, showMoreSel); err != nil {
			log.Debug("discover: no show-more control, continuing with loaded rows")
			return
		}
	}
	// Give the newly requested rows time to render.
	d.settle(ctx)
	d.settle(ctx)
}

func (d *Discoverer) settle(ctx context.Context) {
	delay := time.Duration(d.cfg.SettleMillis) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (d *Discoverer) waitTimeout() time.Duration {
	return time.Duration(d.cfg.WaitTimeoutSecs) * time.Second
}

// CollectLinks folds the match-list container's direct children through
// the row classifier, carrying a single piece of state: whether the walk
// is currently inside a qualification stage. Headers partition the list;
// a header's effect persists until the next header. Secondary headers can
// only enter qualification, never leave it — they are a catch-all for
// markup variants the primary class misses.
func CollectLinks(doc *goquery.Document) []string {
	var links []string
	inQualification := false

	doc.Find(matchListSel).First().Children().Each(func(_ int, row *goquery.Selection) {
		text := normalizeRowText(row)

		switch classifyRow(row) {
		case rowHeader:
			inQualification = isQualificationText(text)

		case rowSecondaryHeader:
			if isQualificationText(text) {
				inQualification = true
			}

		case rowMatch:
			if containsAny(strings.ToLower(text), cancelledMarkers) {
				return
			}
			if inQualification {
				return
			}
			href, ok := row.Find(rowLinkSel).First().Attr("href")
			if ok && href != "" {
				links = append(links, href)
			}
		}
	})

	return dedupe(links)
}

func normalizeRowText(sel *goquery.Selection) string {
	return strings.TrimSpace(strings.ReplaceAll(sel.Text(), "\n", " "))
}

// dedupe drops repeats while preserving first-seen order.
func dedupe(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := links[:0]
	for _, l := range links {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
