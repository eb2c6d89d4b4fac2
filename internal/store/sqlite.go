package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/matchpoint-analytics/matchpoint/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and replay of JSON snapshots without a Postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps writes serialized and makes :memory: behave.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tournaments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	year        INTEGER NOT NULL,
	division    TEXT NOT NULL,
	surface     TEXT NOT NULL DEFAULT 'Unknown',
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS rounds (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	tournament_id INTEGER NOT NULL REFERENCES tournaments(id),
	name          TEXT NOT NULL,
	UNIQUE (tournament_id, name)
);

CREATE TABLE IF NOT EXISTS matches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	round_id    INTEGER NOT NULL REFERENCES rounds(id),
	player_a    TEXT NOT NULL,
	player_b    TEXT NOT NULL,
	odds_a      REAL,
	odds_b      REAL,
	winner      TEXT,
	status      TEXT NOT NULL DEFAULT 'finished',
	match_time  DATETIME,
	match_url   TEXT NOT NULL,
	external_id TEXT NOT NULL UNIQUE,
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_rounds_tournament_id ON rounds(tournament_id);
CREATE INDEX IF NOT EXISTS idx_matches_round_id ON matches(round_id);
CREATE INDEX IF NOT EXISTS idx_tournaments_year_division ON tournaments(year, division);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FetchExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT external_id FROM matches`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch existing ids")
	}
	defer rows.Close()

	ids := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan existing id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate existing ids")
}

func (s *SQLiteStore) UpsertTournament(ctx context.Context, t model.Tournament) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tournaments (external_id, name, year, division, surface)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (external_id)
		 DO UPDATE SET surface = excluded.surface, updated_at = datetime('now')
		 RETURNING id`,
		t.ExternalID, t.Name, t.Year, string(t.Division), string(t.Surface),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert tournament %s", t.ExternalID)
	}
	return id, nil
}

func (s *SQLiteStore) UpsertRound(ctx context.Context, tournamentID int64, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO rounds (tournament_id, name)
		 VALUES (?, ?)
		 ON CONFLICT (tournament_id, name)
		 DO UPDATE SET name = excluded.name
		 RETURNING id`,
		tournamentID, name,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert round %q", name)
	}
	return id, nil
}

func (s *SQLiteStore) UpsertMatches(ctx context.Context, upserts []MatchUpsert) (int64, error) {
	if len(upserts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert matches: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matches (round_id, player_a, player_b, odds_a, odds_b,
			winner, status, match_time, match_url, external_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET
			player_a = excluded.player_a,
			player_b = excluded.player_b,
			odds_a = excluded.odds_a,
			odds_b = excluded.odds_b,
			winner = excluded.winner,
			status = excluded.status,
			match_time = excluded.match_time,
			match_url = excluded.match_url,
			updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert matches: prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var affected int64
	for _, m := range upserts {
		res, err := stmt.ExecContext(ctx,
			m.RoundID, m.PlayerA, m.PlayerB, m.OddsA, m.OddsB,
			m.Winner, m.Status, m.MatchTime, m.MatchURL, m.ExternalID, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert match %s", m.ExternalID)
		}
		n, _ := res.RowsAffected()
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert matches: commit tx")
	}
	return affected, nil
}

func (s *SQLiteStore) ListMatches(ctx context.Context, f MatchFilter) ([]MatchRow, error) {
	query := `SELECT m.id, r.name, m.player_a, m.player_b, m.odds_a, m.odds_b,
		m.winner, m.status, m.match_time, m.updated_at, t.surface
		FROM matches m
		JOIN rounds r ON r.id = m.round_id
		JOIN tournaments t ON t.id = r.tournament_id`

	var conds []string
	var args []any
	if f.Year != 0 {
		conds = append(conds, "t.year = ?")
		args = append(args, f.Year)
	}
	if f.Division != "" {
		conds = append(conds, "t.division = ?")
		args = append(args, f.Division)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY m.id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list matches")
	}
	defer rows.Close()

	var out []MatchRow
	for rows.Next() {
		var m MatchRow
		if err := rows.Scan(&m.ID, &m.RoundName, &m.PlayerA, &m.PlayerB, &m.OddsA, &m.OddsB,
			&m.Winner, &m.Status, &m.MatchTime, &m.UpdatedAt, &m.Surface); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match row")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate matches")
}

func (s *SQLiteStore) ListYears(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT year FROM tournaments ORDER BY year DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list years")
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan year")
		}
		years = append(years, y)
	}
	return years, eris.Wrap(rows.Err(), "sqlite: iterate years")
}

func (s *SQLiteStore) ListDivisions(ctx context.Context, year int) ([]string, error) {
	query := `SELECT DISTINCT division FROM tournaments`
	var args []any
	if year != 0 {
		query += ` WHERE year = ?`
		args = append(args, year)
	}
	query += ` ORDER BY division`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list divisions")
	}
	defer rows.Close()

	var divisions []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan division")
		}
		divisions = append(divisions, d)
	}
	return divisions, eris.Wrap(rows.Err(), "sqlite: iterate divisions")
}
