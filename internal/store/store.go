// Package store persists tournaments, rounds and matches behind a
// backend-agnostic interface with Postgres and SQLite implementations.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/matchpoint-analytics/matchpoint/internal/config"
	"github.com/matchpoint-analytics/matchpoint/internal/model"
)

// MatchFilter narrows ListMatches. Zero values mean "no filter".
type MatchFilter struct {
	Year     int    `json:"year,omitempty"`
	Division string `json:"division,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// MatchRow is a denormalized stored match as served by the read API.
type MatchRow struct {
	ID        int64      `json:"id"`
	RoundName string     `json:"round_name"`
	PlayerA   string     `json:"player_a"`
	PlayerB   string     `json:"player_b"`
	OddsA     *float64   `json:"odds_a"`
	OddsB     *float64   `json:"odds_b"`
	Winner    *string    `json:"winner"`
	Status    string     `json:"status"`
	MatchTime *time.Time `json:"match_time"`
	UpdatedAt *time.Time `json:"updated_at"`
	Surface   string     `json:"surface"`
}

// MatchUpsert is one match payload keyed by its external identifier.
// On conflict the odds, winner, status, time and URL are overwritten;
// the round linkage is immutable.
type MatchUpsert struct {
	RoundID    int64
	PlayerA    string
	PlayerB    string
	OddsA      float64
	OddsB      float64
	Winner     *string
	Status     string
	MatchTime  *time.Time
	MatchURL   string
	ExternalID string
}

// Store is the persistence capability consumed by the scraper and the
// read API.
type Store interface {
	// FetchExistingIDs bulk-reads every stored external match ID.
	FetchExistingIDs(ctx context.Context) (map[string]struct{}, error)

	// UpsertTournament inserts or updates a tournament keyed by its
	// external key. On conflict only the surface is overwritten; name,
	// year and division are stable. Returns the row ID.
	UpsertTournament(ctx context.Context, t model.Tournament) (int64, error)

	// UpsertRound inserts a round keyed by (tournament, name); a
	// conflict is a no-op since round metadata never changes after
	// creation. Returns the row ID either way.
	UpsertRound(ctx context.Context, tournamentID int64, name string) (int64, error)

	// UpsertMatches bulk-upserts match payloads keyed by external ID.
	UpsertMatches(ctx context.Context, rows []MatchUpsert) (int64, error)

	// Read API queries.
	ListMatches(ctx context.Context, f MatchFilter) ([]MatchRow, error)
	ListYears(ctx context.Context) ([]int, error)
	ListDivisions(ctx context.Context, year int) ([]string, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs the configured backend. The driver is an explicit
// configuration value, never a global switch.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "matchpoint.db"
		}
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
