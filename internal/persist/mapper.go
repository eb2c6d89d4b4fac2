// Package persist maps extracted match records onto the relational
// store: it resolves the tournament and round parents, then hands the
// flattened match payloads to the bulk upsert.
package persist

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matchpoint-analytics/matchpoint/internal/model"
	"github.com/matchpoint-analytics/matchpoint/internal/store"
)

// Mapper persists a run's records under a single tournament. A fresh
// Mapper is built per run; it carries no state between runs.
type Mapper struct {
	store  store.Store
	season int
	log    *zap.Logger
}

func NewMapper(st store.Store, seasonYear int) *Mapper {
	return &Mapper{
		store:  st,
		season: seasonYear,
		log:    zap.L().Named("persist"),
	}
}

// roundGroup keeps the records of one round, in extraction order.
type roundGroup struct {
	name    string
	records []model.MatchRecord
}

// groupByRound buckets records by round name, preserving the order in
// which rounds were first seen.
func groupByRound(records []model.MatchRecord) []roundGroup {
	index := map[string]int{}
	var groups []roundGroup
	for _, rec := range records {
		name := rec.Round
		if name == "" {
			name = model.RoundUnknown
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, roundGroup{name: name})
		}
		groups[i].records = append(groups[i].records, rec)
	}
	return groups
}

// Persist writes all records for one tournament. Tournament resolution
// failure aborts the whole call; a failed round only forfeits its own
// matches and the remaining rounds still persist.
func (m *Mapper) Persist(ctx context.Context, key string, surface model.Surface, records []model.MatchRecord) error {
	if len(records) == 0 {
		return nil
	}

	tournament := model.Tournament{
		ExternalID: key,
		Name:       model.TournamentName(key),
		Year:       m.season,
		Division:   model.DivisionFromKey(key),
		Surface:    surface,
	}
	tournamentID, err := m.store.UpsertTournament(ctx, tournament)
	if err != nil {
		return eris.Wrapf(err, "persist: tournament %s", key)
	}

	var written int64
	var failedRounds int
	for _, group := range groupByRound(records) {
		roundID, err := m.store.UpsertRound(ctx, tournamentID, group.name)
		if err != nil {
			failedRounds++
			m.log.Warn("round upsert failed, skipping its matches",
				zap.String("tournament", key),
				zap.String("round", group.name),
				zap.Int("matches", len(group.records)),
				zap.Error(err))
			continue
		}

		upserts := make([]store.MatchUpsert, 0, len(group.records))
		for _, rec := range group.records {
			upserts = append(upserts, toUpsert(roundID, rec))
		}
		n, err := m.store.UpsertMatches(ctx, upserts)
		if err != nil {
			failedRounds++
			m.log.Warn("match upsert failed for round",
				zap.String("tournament", key),
				zap.String("round", group.name),
				zap.Error(err))
			continue
		}
		written += n
	}

	if failedRounds > 0 {
		m.log.Warn("tournament persisted with losses",
			zap.String("tournament", key),
			zap.Int("failed_rounds", failedRounds),
			zap.Int64("written", written))
	} else {
		m.log.Info("tournament persisted",
			zap.String("tournament", key),
			zap.Int64("written", written))
	}
	return nil
}

// toUpsert flattens a framed record back into per-player columns. The
// sentinel odds value is stored as-is so replayed snapshots round-trip.
func toUpsert(roundID int64, rec model.MatchRecord) store.MatchUpsert {
	var matchTime *time.Time
	if rec.MatchTime != nil {
		t := *rec.MatchTime
		matchTime = &t
	}
	return store.MatchUpsert{
		RoundID:    roundID,
		PlayerA:    rec.PlayerA,
		PlayerB:    rec.PlayerB,
		OddsA:      rec.OddsA,
		OddsB:      rec.OddsB,
		Winner:     rec.Winner(),
		Status:     model.StatusFinished,
		MatchTime:  matchTime,
		MatchURL:   rec.ExternalID,
		ExternalID: rec.ExternalID,
	}
}
