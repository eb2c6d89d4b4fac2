package scraper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matchpoint-analytics/matchpoint/internal/browser"
	"github.com/matchpoint-analytics/matchpoint/internal/config"
	"github.com/matchpoint-analytics/matchpoint/internal/model"
	"github.com/matchpoint-analytics/matchpoint/internal/resilience"
)

const (
	participantSel = ".participant__participantNameWrapper"
	breadcrumbSel  = `[class*="breadcrumbItemLabel"]`
	startTimeSel   = ".duelParticipant__startTime"
	prematchSel    = "a.prematchLink"
	oddsCellSel    = `button[class*="oddsCell"]`
	homeSel        = ".duelParticipant__home"
	awaySel        = ".duelParticipant__away"

	// winCellClass marks the winning side's odds cell.
	winCellClass = "wcl-win"
	// winnerWrapperClass marks the winning participant wrapper; the
	// second, independent winner signal.
	winnerWrapperClass = "duelParticipant--winner"

	// walkoverMarker is appended to the advancing player's name when the
	// opponent withdrew.
	walkoverMarker = "Továbbjutó"

	// roundSeparator splits a breadcrumb label into tournament and round.
	roundSeparator = " - "

	// startTimeLayout is the local tournament time as rendered on the
	// match page. No timezone normalization is performed.
	startTimeLayout = "02.01.2006 15:04"
)

// Extraction outcomes that are decisions, not failures. The retry wrapper
// never reattempts these.
var (
	// ErrQualifyingRound means the match belongs to a qualification
	// stage and must never be persisted, however it was discovered.
	ErrQualifyingRound = errors.New("scraper: qualifying round")

	// ErrNoResultSignal means the page yielded neither usable odds nor
	// any winner marker. The match is unsettled or unextractable; a
	// speculative placeholder row is never persisted.
	ErrNoResultSignal = errors.New("scraper: no odds and no winner signal")
)

// Extractor turns one match page into a classified MatchRecord.
type Extractor struct {
	cfg   config.ScraperConfig
	retry resilience.RetryConfig
}

// NewExtractor creates an Extractor with the extraction retry budget:
// two attempts total, reattempting on staleness or unclassified page
// errors but not on timeouts, missing elements, or semantic exclusions.
func NewExtractor(cfg config.ScraperConfig) *Extractor {
	return &Extractor{
		cfg: cfg,
		retry: resilience.RetryConfig{
			MaxAttempts: 2,
			Backoff:     250 * time.Millisecond,
			ShouldRetry: func(err error) bool {
				if errors.Is(err, ErrQualifyingRound) || errors.Is(err, ErrNoResultSignal) {
					return false
				}
				return resilience.IsRecoverable(err)
			},
			OnRetry: resilience.RetryLogger("scraper", "extract"),
		},
	}
}

// Extract navigates to matchURL and produces its record. It returns an
// error naming why the match is unusable; the orchestrator degrades every
// error to a skip, so a malformed page can never abort the batch.
func (e *Extractor) Extract(ctx context.Context, s browser.Session, matchURL string) (*model.MatchRecord, error) {
	return resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*model.MatchRecord, error) {
		return e.extractOnce(ctx, s, matchURL)
	})
}

func (e *Extractor) extractOnce(ctx context.Context, s browser.Session, matchURL string) (*model.MatchRecord, error) {
	if err := s.Navigate(ctx, matchURL); err != nil {
		return nil, err
	}
	// Very dynamic pages keep mutating right after load; give them a
	// moment before the first wait.
	e.settle(ctx)

	if err := s.WaitReady(ctx, participantSel, e.waitTimeout()); err != nil {
		return nil, err
	}

	doc, err := s.Document(ctx)
	if err != nil {
		return nil, err
	}

	players := doc.Find(participantSel)
	if players.Length() < 2 {
		// Present a moment ago, gone from the snapshot: the page
		// mutated under us.
		return nil, eris.Wrapf(browser.ErrStale, "scraper: %d participants in snapshot", players.Length())
	}

	playerA := strings.TrimSpace(players.Eq(0).Text())
	playerB := strings.TrimSpace(players.Eq(1).Text())

	playerA, playerB, walkover := detectWalkover(playerA, playerB)

	round := extractRound(doc)
	if isQualificationText(round) {
		return nil, eris.Wrapf(ErrQualifyingRound, "%s vs %s (%s)", playerA, playerB, round)
	}

	record := &model.MatchRecord{
		PlayerA:    playerA,
		PlayerB:    playerB,
		OddsA:      model.SentinelOdds,
		OddsB:      model.SentinelOdds,
		Round:      round,
		MatchTime:  extractStartTime(doc),
		ExternalID: matchURL,
	}

	var aWon, bWon bool
	if walkover.happened {
		// Walkovers have no market: odds stay at the sentinel and the
		// surviving side wins.
		aWon = walkover.winnerIsA
		bWon = !walkover.winnerIsA
		zap.L().Info("extract: walkover",
			zap.String("playerA", playerA),
			zap.String("playerB", playerB),
		)
	} else {
		doc = e.awaitOddsRendered(ctx, s, doc)
		record.OddsA, record.OddsB, aWon, bWon = e.extractOddsAndWinner(doc)

		if !aWon && !bWon {
			aWon, bWon = extractWinnerByWrapper(doc)
		}

		if !record.HasOdds() && !aWon && !bWon {
			return nil, eris.Wrap(ErrNoResultSignal, matchURL)
		}
	}

	record.Frame(aWon, bWon)
	return record, nil
}

type walkoverResult struct {
	happened  bool
	winnerIsA bool
}

// detectWalkover strips the walkover marker from whichever name carries
// it and reports the advancing side.
func detectWalkover(playerA, playerB string) (string, string, walkoverResult) {
	const cutset = " -()"
	switch {
	case strings.Contains(playerA, walkoverMarker):
		playerA = strings.Trim(strings.ReplaceAll(playerA, walkoverMarker, ""), cutset)
		return playerA, playerB, walkoverResult{happened: true, winnerIsA: true}
	case strings.Contains(playerB, walkoverMarker):
		playerB = strings.Trim(strings.ReplaceAll(playerB, walkoverMarker, ""), cutset)
		return playerA, playerB, walkoverResult{happened: true, winnerIsA: false}
	}
	return playerA, playerB, walkoverResult{}
}

// extractRound reads the last breadcrumb label. Labels render as
// "Tournament - Round"; the text after the separator is the round name.
// A missing breadcrumb stores as Unknown rather than dropping the match.
func extractRound(doc *goquery.Document) string {
	crumbs := doc.Find(breadcrumbSel)
	if crumbs.Length() == 0 {
		return model.RoundUnknown
	}

	label := strings.TrimSpace(crumbs.Last().Text())
	if label == "" {
		return model.RoundUnknown
	}
	if _, after, found := strings.Cut(label, roundSeparator); found {
		return strings.TrimSpace(after)
	}
	return label
}

// extractStartTime parses the scheduled local start time. Absent or
// unparsable is nil, non-fatal.
func extractStartTime(doc *goquery.Document) *time.Time {
	text := strings.TrimSpace(doc.Find(startTimeSel).First().Text())
	if text == "" {
		return nil
	}
	t, err := time.ParseInLocation(startTimeLayout, text, time.Local)
	if err != nil {
		return nil
	}
	return &t
}

// oddsWaitTimeout bounds the extra wait for the odds block, which
// renders after the participants on slow pages.
const oddsWaitTimeout = 3 * time.Second

// awaitOddsRendered gives the pre-match odds block a short extra window
// when the first snapshot caught the page before it rendered, then
// re-snapshots. Best effort: on timeout the original snapshot stands and
// the match is judged on whatever it shows.
func (e *Extractor) awaitOddsRendered(ctx context.Context, s browser.Session, doc *goquery.Document) *goquery.Document {
	if doc.Find(prematchSel).Length() > 0 {
		return doc
	}
	if err := s.WaitReady(ctx, prematchSel, oddsWaitTimeout); err != nil {
		return doc
	}
	fresh, err := s.Document(ctx)
	if err != nil {
		return doc
	}
	return fresh
}

// extractOddsAndWinner locates the designated bookmaker's odds row and
// reads its first two cells. Returns sentinel odds and no winner when the
// bookmaker is absent or either cell fails to parse — a half-parsed odds
// pair is worse than none.
func (e *Extractor) extractOddsAndWinner(doc *goquery.Document) (oddsA, oddsB float64, aWon, bWon bool) {
	oddsA, oddsB = model.SentinelOdds, model.SentinelOdds

	anchor := doc.Find(fmt.Sprintf(`a[title=%q]`, e.cfg.BookmakerTitle)).First()
	if anchor.Length() == 0 {
		return
	}

	row := probeFirst(anchor,
		func(a *goquery.Selection) *goquery.Selection { return a.Closest(`div[class*="odds"]`) },
		func(a *goquery.Selection) *goquery.Selection { return a.Closest(`div[class*="row"]`) },
		func(a *goquery.Selection) *goquery.Selection { return a.Parent().Parent() },
	)
	if row == nil {
		return
	}

	cells := row.Find(oddsCellSel)
	if cells.Length() < 2 {
		return
	}

	cellA, cellB := cells.Eq(0), cells.Eq(1)
	parsedA, errA := parseOdds(cellA.Text())
	parsedB, errB := parseOdds(cellB.Text())
	if errA != nil || errB != nil {
		// A parse failure on either cell voids both back to the
		// sentinel; partial odds never escape.
		return
	}

	oddsA, oddsB = parsedA, parsedB
	aWon = cellHasClass(cellA, winCellClass)
	bWon = cellHasClass(cellB, winCellClass)
	return
}

// parseOdds normalizes the comma decimal separator and parses a decimal
// odds value.
func parseOdds(text string) (float64, error) {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	if text == "" {
		return 0, eris.New("scraper: empty odds cell")
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "scraper: parse odds %q", text)
	}
	return v, nil
}

func cellHasClass(sel *goquery.Selection, class string) bool {
	attr, _ := sel.Attr("class")
	return strings.Contains(attr, class)
}

// extractWinnerByWrapper is the second, independent winner signal: the
// home/away participant wrapper carrying the winner style class.
func extractWinnerByWrapper(doc *goquery.Document) (aWon, bWon bool) {
	aWon = cellHasClass(doc.Find(homeSel).First(), winnerWrapperClass)
	bWon = cellHasClass(doc.Find(awaySel).First(), winnerWrapperClass)
	return
}

func (e *Extractor) settle(ctx context.Context) {
	delay := time.Duration(e.cfg.SettleMillis) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (e *Extractor) waitTimeout() time.Duration {
	return time.Duration(e.cfg.WaitTimeoutSecs) * time.Second
}
