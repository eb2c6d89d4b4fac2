package scraper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matchpoint-analytics/matchpoint/internal/browser"
	"github.com/matchpoint-analytics/matchpoint/internal/config"
	"github.com/matchpoint-analytics/matchpoint/internal/model"
)

// RunState names the orchestrator's strictly sequential phases.
type RunState string

const (
	StateIdle            RunState = "idle"
	StateSessionStarting RunState = "session_starting"
	StateDiscovering     RunState = "discovering"
	StateExtracting      RunState = "extracting"
	StatePersisting      RunState = "persisting"
	StateDone            RunState = "done"
)

// SessionFactory opens a fresh browser session for one run. Each run owns
// its session exclusively for its whole lifetime.
type SessionFactory func(ctx context.Context) (browser.Session, error)

// ExistingIDSource is the bulk read of already-stored external match IDs.
type ExistingIDSource interface {
	FetchExistingIDs(ctx context.Context) (map[string]struct{}, error)
}

// Persister maps a run's records into tournament/round/match upserts.
type Persister interface {
	Persist(ctx context.Context, tournamentKey string, surface model.Surface, records []model.MatchRecord) error
}

// SnapshotWriter writes the per-run JSON artifact.
type SnapshotWriter interface {
	Write(snap model.Snapshot) (string, error)
}

// Orchestrator sequences one tournament scrape end to end.
type Orchestrator struct {
	cfg       config.ScraperConfig
	sessions  SessionFactory
	existing  ExistingIDSource
	persister Persister
	snapshots SnapshotWriter

	discoverer *Discoverer
	extractor  *Extractor
}

// NewOrchestrator wires the run pipeline.
func NewOrchestrator(
	cfg config.ScraperConfig,
	sessions SessionFactory,
	existing ExistingIDSource,
	persister Persister,
	snapshots SnapshotWriter,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		sessions:   sessions,
		existing:   existing,
		persister:  persister,
		snapshots:  snapshots,
		discoverer: NewDiscoverer(cfg),
		extractor:  NewExtractor(cfg),
	}
}

// Run scrapes one tournament key. The summary is returned on every path,
// including failed ones; err is non-nil when the run as a whole failed
// (unknown key, session startup, no links discovered, tournament upsert).
func (o *Orchestrator) Run(ctx context.Context, tournamentKey string) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		RunID:         uuid.New().String(),
		TournamentKey: tournamentKey,
		Surface:       model.SurfaceUnknown,
		StartedAt:     time.Now().UTC(),
	}
	log := zap.L().With(
		zap.String("run_id", summary.RunID),
		zap.String("tournament", tournamentKey),
	)
	defer func() {
		summary.FinishedAt = time.Now().UTC()
		o.logState(log, StateDone)
		log.Info("run: summary",
			zap.Int("processed", summary.Processed),
			zap.Int("already_present", summary.AlreadySaved),
			zap.Int("newly_saved", summary.NewlySaved),
			zap.Int("skipped", summary.Skipped),
			zap.Bool("success", summary.Success),
		)
	}()

	pageURL, ok := o.cfg.TournamentURLs[tournamentKey]
	if !ok {
		return summary, eris.Errorf("run: unknown tournament key %q", tournamentKey)
	}

	o.logState(log, StateSessionStarting)
	session, err := o.sessions(ctx)
	if err != nil {
		return summary, eris.Wrap(err, "run: start session")
	}
	defer func() {
		// Teardown is unconditional on every exit path.
		if cerr := session.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn("run: session close failed", zap.Error(cerr))
		}
	}()

	o.logState(log, StateDiscovering)
	links, surface := o.discoverer.Discover(ctx, session, pageURL)
	summary.Surface = surface
	if len(links) == 0 {
		return summary, eris.New("run: no matches discovered")
	}
	if o.cfg.MaxMatches > 0 && len(links) > o.cfg.MaxMatches {
		links = links[:o.cfg.MaxMatches]
	}
	summary.Processed = len(links)

	existing, err := o.existing.FetchExistingIDs(ctx)
	if err != nil {
		// Degrade to a full re-extract; the upserts are idempotent.
		log.Warn("run: existing-ID fetch failed, extracting everything", zap.Error(err))
		existing = map[string]struct{}{}
	}
	fresh, alreadyPresent := FilterNew(links, existing)
	summary.AlreadySaved = alreadyPresent

	o.logState(log, StateExtracting)
	records := o.extractAll(ctx, log, session, fresh, summary)

	o.logState(log, StatePersisting)
	o.writeSnapshot(log, tournamentKey, surface, records)

	if len(records) > 0 {
		if err := o.persister.Persist(ctx, tournamentKey, surface, records); err != nil {
			return summary, eris.Wrap(err, "run: persist")
		}
	}
	summary.NewlySaved = len(records)
	summary.Success = true
	return summary, nil
}

// extractAll walks the fresh links strictly sequentially — the session
// has one document context, so a match page is fully processed or
// abandoned before the next navigation.
func (o *Orchestrator) extractAll(ctx context.Context, log *zap.Logger, session browser.Session, fresh []string, summary *model.RunSummary) []model.MatchRecord {
	var records []model.MatchRecord
	for i, matchURL := range fresh {
		if ctx.Err() != nil {
			log.Warn("run: context cancelled mid-extraction", zap.Int("remaining", len(fresh)-i))
			summary.Skipped += len(fresh) - i
			break
		}

		log.Info("run: extracting match",
			zap.Int("index", i+1),
			zap.Int("total", len(fresh)),
		)
		record, err := o.extractor.Extract(ctx, session, matchURL)
		if err != nil {
			summary.Skipped++
			logSkip(log, matchURL, err)
			continue
		}

		records = append(records, *record)
		log.Info("run: match extracted",
			zap.String("playerA", record.PlayerA),
			zap.Float64("oddsA", record.OddsA),
			zap.String("playerB", record.PlayerB),
			zap.Float64("oddsB", record.OddsB),
			zap.String("round", record.Round),
		)
	}
	return records
}

func (o *Orchestrator) writeSnapshot(log *zap.Logger, tournamentKey string, surface model.Surface, records []model.MatchRecord) {
	if o.snapshots == nil {
		return
	}
	path, err := o.snapshots.Write(model.Snapshot{
		TournamentKey: tournamentKey,
		Tournament:    model.TournamentName(tournamentKey),
		Surface:       surface,
		Matches:       records,
	})
	if err != nil {
		// The snapshot is a replay aid, not the system of record.
		log.Warn("run: snapshot write failed", zap.Error(err))
		return
	}
	log.Info("run: snapshot written", zap.String("path", path))
}

func (o *Orchestrator) logState(log *zap.Logger, state RunState) {
	log.Debug("run: state", zap.String("state", string(state)))
}

// logSkip distinguishes intentional exclusions from extraction failures
// in the log stream; both degrade to a skip.
func logSkip(log *zap.Logger, matchURL string, err error) {
	fields := []zap.Field{zap.String("url", matchURL), zap.Error(err)}
	switch {
	case eris.Is(err, ErrQualifyingRound):
		log.Info("run: qualifying match excluded", fields...)
	case eris.Is(err, ErrNoResultSignal):
		log.Info("run: match not settled, skipped", fields...)
	default:
		log.Warn("run: extraction failed, skipped", fields...)
	}
}
