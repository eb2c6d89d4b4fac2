// Package model defines the domain types shared across the scraper,
// persistence layer, and read API.
package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Surface is the playing surface of a tournament.
type Surface string

const (
	SurfaceHard       Surface = "Hard"
	SurfaceClay       Surface = "Clay"
	SurfaceGrass      Surface = "Grass"
	SurfaceIndoorHard Surface = "Indoor Hard"
	SurfaceUnknown    Surface = "Unknown"
)

// Division is the tour a tournament belongs to.
type Division string

const (
	DivisionATP Division = "ATP"
	DivisionWTA Division = "WTA"
)

// DivisionFromKey derives the division from a tournament key.
// Keys carrying a "_wta" marker are WTA; everything else is ATP.
func DivisionFromKey(key string) Division {
	if strings.Contains(strings.ToLower(key), "_wta") {
		return DivisionWTA
	}
	return DivisionATP
}

// TournamentName derives the display name from a tournament key:
// underscores become spaces, words are title-cased.
func TournamentName(key string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(key, "_", " "))
}

// SentinelOdds is the placeholder meaning "odds unknown", not even money.
const SentinelOdds = 1.0

// StatusFinished is the only status ever persisted; in-progress matches
// never make it past the extractor.
const StatusFinished = "finished"

// RoundUnknown is stored when the breadcrumb yields no usable round name.
const RoundUnknown = "Unknown"

// Tournament is the top-level parent record, keyed by its external key.
type Tournament struct {
	ID         int64    `json:"id,omitempty"`
	ExternalID string   `json:"external_id"`
	Name       string   `json:"name"`
	Year       int      `json:"year"`
	Division   Division `json:"division"`
	Surface    Surface  `json:"surface"`
}

// Round groups matches within a tournament. Unique per (tournament, name),
// immutable after creation.
type Round struct {
	ID           int64  `json:"id,omitempty"`
	TournamentID int64  `json:"tournament_id"`
	Name         string `json:"name"`
}

// MatchRecord is one fully classified match as produced by the extractor.
// ExternalID is the source match URL and doubles as the upsert key.
type MatchRecord struct {
	PlayerA string `json:"playerA"`
	PlayerB string `json:"playerB"`

	OddsA float64 `json:"oddsA"`
	OddsB float64 `json:"oddsB"`

	Underdog     string  `json:"underdog"`
	UnderdogOdds float64 `json:"underdogOdds"`
	UnderdogWon  bool    `json:"underdogWon"`
	Favorite     string  `json:"favorite"`
	FavoriteOdds float64 `json:"favoriteOdds"`
	FavoriteWon  bool    `json:"favoriteWon"`

	Round     string     `json:"round"`
	MatchTime *time.Time `json:"matchTime"`

	ExternalID string `json:"id"`
}

// Frame fills the underdog/favorite fields from players, odds and win
// flags. The strictly higher odds value designates the underdog; on a
// tie player A is the underdog. The tie-break is deliberate so repeated
// runs classify identically (see DESIGN.md).
func (r *MatchRecord) Frame(aWon, bWon bool) {
	switch {
	case r.OddsA > r.OddsB:
		r.Underdog, r.UnderdogOdds, r.UnderdogWon = r.PlayerA, r.OddsA, aWon
		r.Favorite, r.FavoriteOdds, r.FavoriteWon = r.PlayerB, r.OddsB, bWon
	case r.OddsB > r.OddsA:
		r.Underdog, r.UnderdogOdds, r.UnderdogWon = r.PlayerB, r.OddsB, bWon
		r.Favorite, r.FavoriteOdds, r.FavoriteWon = r.PlayerA, r.OddsA, aWon
	default:
		r.Underdog, r.UnderdogOdds, r.UnderdogWon = r.PlayerA, r.OddsA, aWon
		r.Favorite, r.FavoriteOdds, r.FavoriteWon = r.PlayerB, r.OddsB, bWon
	}
}

// Winner returns the winning player's name, or nil when no side or both
// sides carry a win flag. Both-set cannot happen through the extractor's
// gating, but persistence must not blow up if it ever does.
func (r *MatchRecord) Winner() *string {
	underdogWon := r.UnderdogWon && !r.FavoriteWon
	favoriteWon := r.FavoriteWon && !r.UnderdogWon
	switch {
	case underdogWon:
		name := r.Underdog
		return &name
	case favoriteWon:
		name := r.Favorite
		return &name
	}
	return nil
}

// HasOdds reports whether both odds differ from the sentinel.
func (r *MatchRecord) HasOdds() bool {
	return r.OddsA != SentinelOdds && r.OddsB != SentinelOdds
}

// Snapshot is the per-run JSON artifact written before database
// persistence, usable for replay.
type Snapshot struct {
	TournamentKey string        `json:"tournament_key"`
	Tournament    string        `json:"tournament"`
	Surface       Surface       `json:"surface"`
	Matches       []MatchRecord `json:"matches"`
}

// RunSummary is emitted by the orchestrator at the end of every run,
// including partially failed ones.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	TournamentKey string    `json:"tournament_key"`
	Surface       Surface   `json:"surface"`
	Processed     int       `json:"processed"`
	AlreadySaved  int       `json:"already_present"`
	NewlySaved    int       `json:"newly_saved"`
	Skipped       int       `json:"skipped"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Success       bool      `json:"success"`
}
