package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/matchpoint-analytics/matchpoint/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tournaments (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	year        INT NOT NULL,
	division    TEXT NOT NULL,
	surface     TEXT NOT NULL DEFAULT 'Unknown',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rounds (
	id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	tournament_id BIGINT NOT NULL REFERENCES tournaments(id),
	name          TEXT NOT NULL,
	UNIQUE (tournament_id, name)
);

CREATE TABLE IF NOT EXISTS matches (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	round_id    BIGINT NOT NULL REFERENCES rounds(id),
	player_a    TEXT NOT NULL,
	player_b    TEXT NOT NULL,
	odds_a      DOUBLE PRECISION,
	odds_b      DOUBLE PRECISION,
	winner      TEXT,
	status      TEXT NOT NULL DEFAULT 'finished',
	match_time  TIMESTAMP,
	match_url   TEXT NOT NULL,
	external_id TEXT NOT NULL UNIQUE,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_rounds_tournament_id ON rounds(tournament_id);
CREATE INDEX IF NOT EXISTS idx_matches_round_id ON matches(round_id);
CREATE INDEX IF NOT EXISTS idx_tournaments_year_division ON tournaments(year, division);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) FetchExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT external_id FROM matches`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch existing ids")
	}
	defer rows.Close()

	ids := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan existing id")
		}
		ids[id] = struct{}{}
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate existing ids")
}

func (s *PostgresStore) UpsertTournament(ctx context.Context, t model.Tournament) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tournaments (external_id, name, year, division, surface)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (external_id)
		 DO UPDATE SET surface = EXCLUDED.surface, updated_at = now()
		 RETURNING id`,
		t.ExternalID, t.Name, t.Year, string(t.Division), string(t.Surface),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert tournament %s", t.ExternalID)
	}
	return id, nil
}

func (s *PostgresStore) UpsertRound(ctx context.Context, tournamentID int64, name string) (int64, error) {
	// The self-assignment on conflict is only there so RETURNING yields
	// the existing row; round metadata itself never changes.
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO rounds (tournament_id, name)
		 VALUES ($1, $2)
		 ON CONFLICT (tournament_id, name)
		 DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		tournamentID, name,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert round %q", name)
	}
	return id, nil
}

// matchColumns are the insertable columns of the matches table, in the
// order bulk rows are built.
var matchColumns = []string{
	"round_id", "player_a", "player_b", "odds_a", "odds_b",
	"winner", "status", "match_time", "match_url", "external_id", "updated_at",
}

// matchUpdateColumns are overwritten on conflict. round_id is absent:
// parent linkage is immutable once a match is stored.
var matchUpdateColumns = []string{
	"player_a", "player_b", "odds_a", "odds_b",
	"winner", "status", "match_time", "match_url", "updated_at",
}

// UpsertMatches bulk-upserts through a temp table: COPY the payloads in,
// then INSERT ... ON CONFLICT (external_id) DO UPDATE from it.
func (s *PostgresStore) UpsertMatches(ctx context.Context, upserts []MatchUpsert) (int64, error) {
	if len(upserts) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(upserts))
	for _, m := range upserts {
		rows = append(rows, []any{
			m.RoundID, m.PlayerA, m.PlayerB, m.OddsA, m.OddsB,
			m.Winner, m.Status, m.MatchTime, m.MatchURL, m.ExternalID, now,
		})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert matches: begin tx")
	}
	defer tx.Rollback(ctx)

	const tempTable = "_tmp_upsert_matches"
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE matches INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert matches: create temp table")
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, matchColumns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert matches: COPY into temp table")
	}

	var setClauses []string
	for _, col := range matchUpdateColumns {
		quoted := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
	}
	colList := quoteAndJoin(matchColumns)

	upsertSQL := fmt.Sprintf(
		"INSERT INTO matches (%s) SELECT %s FROM %s ON CONFLICT (external_id) DO UPDATE SET %s",
		colList, colList,
		pgx.Identifier{tempTable}.Sanitize(),
		strings.Join(setClauses, ", "),
	)
	tag, err := tx.Exec(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert matches: INSERT ON CONFLICT")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert matches: commit tx")
	}
	return tag.RowsAffected(), nil
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

func (s *PostgresStore) ListMatches(ctx context.Context, f MatchFilter) ([]MatchRow, error) {
	query := `SELECT m.id, r.name, m.player_a, m.player_b, m.odds_a, m.odds_b,
		m.winner, m.status, m.match_time, m.updated_at, t.surface
		FROM matches m
		JOIN rounds r ON r.id = m.round_id
		JOIN tournaments t ON t.id = r.tournament_id`

	var conds []string
	var args []any
	if f.Year != 0 {
		args = append(args, f.Year)
		conds = append(conds, fmt.Sprintf("t.year = $%d", len(args)))
	}
	if f.Division != "" {
		args = append(args, f.Division)
		conds = append(conds, fmt.Sprintf("t.division = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY m.id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list matches")
	}
	defer rows.Close()

	var out []MatchRow
	for rows.Next() {
		var m MatchRow
		if err := rows.Scan(&m.ID, &m.RoundName, &m.PlayerA, &m.PlayerB, &m.OddsA, &m.OddsB,
			&m.Winner, &m.Status, &m.MatchTime, &m.UpdatedAt, &m.Surface); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match row")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate matches")
}

func (s *PostgresStore) ListYears(ctx context.Context) ([]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT year FROM tournaments ORDER BY year DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list years")
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, eris.Wrap(err, "postgres: scan year")
		}
		years = append(years, y)
	}
	return years, eris.Wrap(rows.Err(), "postgres: iterate years")
}

func (s *PostgresStore) ListDivisions(ctx context.Context, year int) ([]string, error) {
	query := `SELECT DISTINCT division FROM tournaments`
	var args []any
	if year != 0 {
		query += ` WHERE year = $1`
		args = append(args, year)
	}
	query += ` ORDER BY division`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list divisions")
	}
	defer rows.Close()

	var divisions []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan division")
		}
		divisions = append(divisions, d)
	}
	return divisions, eris.Wrap(rows.Err(), "postgres: iterate divisions")
}
