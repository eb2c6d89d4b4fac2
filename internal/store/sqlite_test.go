package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpoint-analytics/matchpoint/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedRound(t *testing.T, s *SQLiteStore, key, round string) int64 {
	t.Helper()
	ctx := context.Background()
	tournamentID, err := s.UpsertTournament(ctx, model.Tournament{
		ExternalID: key,
		Name:       model.TournamentName(key),
		Year:       2026,
		Division:   model.DivisionFromKey(key),
		Surface:    model.SurfaceClay,
	})
	require.NoError(t, err)
	roundID, err := s.UpsertRound(ctx, tournamentID, round)
	require.NoError(t, err)
	return roundID
}

func TestSQLiteStore_UpsertTournament_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tournament := model.Tournament{
		ExternalID: "madrid",
		Name:       "Madrid",
		Year:       2026,
		Division:   model.DivisionATP,
		Surface:    model.SurfaceUnknown,
	}
	first, err := s.UpsertTournament(ctx, tournament)
	require.NoError(t, err)

	// A rerun that learned the surface updates in place.
	tournament.Surface = model.SurfaceClay
	second, err := s.UpsertTournament(ctx, tournament)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSQLiteStore_UpsertRound_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tournamentID, err := s.UpsertTournament(ctx, model.Tournament{
		ExternalID: "madrid", Name: "Madrid", Year: 2026,
		Division: model.DivisionATP, Surface: model.SurfaceClay,
	})
	require.NoError(t, err)

	first, err := s.UpsertRound(ctx, tournamentID, "Döntő")
	require.NoError(t, err)
	second, err := s.UpsertRound(ctx, tournamentID, "Döntő")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := s.UpsertRound(ctx, tournamentID, "Elődöntő")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestSQLiteStore_UpsertMatches_RoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	roundID := seedRound(t, s, "madrid", "Döntő")

	winner := "Nadal R."
	matchTime := time.Date(2026, 5, 24, 14, 30, 0, 0, time.UTC)
	n, err := s.UpsertMatches(ctx, []MatchUpsert{{
		RoundID:    roundID,
		PlayerA:    "Nadal R.",
		PlayerB:    "Smith J.",
		OddsA:      1.5,
		OddsB:      2.75,
		Winner:     &winner,
		Status:     model.StatusFinished,
		MatchTime:  &matchTime,
		MatchURL:   "https://x/match/1",
		ExternalID: "https://x/match/1",
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := s.ListMatches(ctx, MatchFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Nadal R.", rows[0].PlayerA)
	assert.Equal(t, "Döntő", rows[0].RoundName)
	assert.Equal(t, "Clay", rows[0].Surface)
	require.NotNil(t, rows[0].OddsA)
	assert.Equal(t, 1.5, *rows[0].OddsA)
	require.NotNil(t, rows[0].Winner)
	assert.Equal(t, "Nadal R.", *rows[0].Winner)

	ids, err := s.FetchExistingIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "https://x/match/1")
}

func TestSQLiteStore_UpsertMatches_ConflictOverwrites(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	roundID := seedRound(t, s, "madrid", "Döntő")

	base := MatchUpsert{
		RoundID:    roundID,
		PlayerA:    "Nadal R.",
		PlayerB:    "Smith J.",
		OddsA:      model.SentinelOdds,
		OddsB:      model.SentinelOdds,
		Status:     model.StatusFinished,
		MatchURL:   "https://x/match/1",
		ExternalID: "https://x/match/1",
	}
	_, err := s.UpsertMatches(ctx, []MatchUpsert{base})
	require.NoError(t, err)

	// Rerun with the odds now known.
	winner := "Smith J."
	base.OddsA, base.OddsB = 1.9, 1.95
	base.Winner = &winner
	_, err = s.UpsertMatches(ctx, []MatchUpsert{base})
	require.NoError(t, err)

	rows, err := s.ListMatches(ctx, MatchFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].OddsA)
	assert.Equal(t, 1.9, *rows[0].OddsA)
	require.NotNil(t, rows[0].Winner)
	assert.Equal(t, "Smith J.", *rows[0].Winner)
}

func TestSQLiteStore_ListMatches_Filters(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	atpRound := seedRound(t, s, "madrid", "Döntő")
	wtaRound := seedRound(t, s, "madrid_wta", "Döntő")

	for i, roundID := range []int64{atpRound, wtaRound} {
		url := []string{"https://x/match/atp", "https://x/match/wta"}[i]
		_, err := s.UpsertMatches(ctx, []MatchUpsert{{
			RoundID: roundID, PlayerA: "A", PlayerB: "B",
			OddsA: 1.5, OddsB: 2.5,
			Status: model.StatusFinished, MatchURL: url, ExternalID: url,
		}})
		require.NoError(t, err)
	}

	all, err := s.ListMatches(ctx, MatchFilter{Year: 2026})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	wta, err := s.ListMatches(ctx, MatchFilter{Division: "WTA"})
	require.NoError(t, err)
	require.Len(t, wta, 1)
	assert.Equal(t, "A", wta[0].PlayerA)
	assert.Equal(t, "Döntő", wta[0].RoundName)

	limited, err := s.ListMatches(ctx, MatchFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.ListMatches(ctx, MatchFilter{Year: 1999})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_ListYearsAndDivisions(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	seedRound(t, s, "madrid", "Döntő")
	seedRound(t, s, "madrid_wta", "Döntő")

	years, err := s.ListYears(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2026}, years)

	divisions, err := s.ListDivisions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ATP", "WTA"}, divisions)

	divisions, err = s.ListDivisions(ctx, 1999)
	require.NoError(t, err)
	assert.Empty(t, divisions)
}

func TestSQLiteStore_UpsertMatches_Empty(t *testing.T) {
	s := newTestSQLiteStore(t)
	n, err := s.UpsertMatches(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
