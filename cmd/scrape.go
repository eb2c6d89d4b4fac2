package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matchpoint-analytics/matchpoint/internal/browser"
	"github.com/matchpoint-analytics/matchpoint/internal/model"
	"github.com/matchpoint-analytics/matchpoint/internal/persist"
	"github.com/matchpoint-analytics/matchpoint/internal/scraper"
	"github.com/matchpoint-analytics/matchpoint/internal/snapshot"
)

var scrapeAll bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape [tournament-key...]",
	Short: "Scrape finished matches and odds for configured tournaments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(cfg.Scraper.TournamentURLs) == 0 {
			return eris.New("no tournament URLs configured")
		}

		keys := args
		if scrapeAll {
			keys = keys[:0]
			for k := range cfg.Scraper.TournamentURLs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
		}
		if len(keys) == 0 {
			return eris.New("no tournament keys given; pass keys or --all")
		}
		for _, k := range keys {
			if _, ok := cfg.Scraper.TournamentURLs[k]; !ok {
				return eris.Errorf("unknown tournament key %q", k)
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		opts := browser.DefaultOptions()
		opts.Headless = cfg.Scraper.Headless
		if cfg.Scraper.UserAgent != "" {
			opts.UserAgent = cfg.Scraper.UserAgent
		}
		if cfg.Scraper.NavTimeoutSecs > 0 {
			opts.NavTimeout = time.Duration(cfg.Scraper.NavTimeoutSecs) * time.Second
		}
		if cfg.Scraper.SettleMillis > 0 {
			opts.SettleDelay = time.Duration(cfg.Scraper.SettleMillis) * time.Millisecond
		}

		orch := scraper.NewOrchestrator(
			cfg.Scraper,
			func(ctx context.Context) (browser.Session, error) { return browser.NewChrome(ctx, opts) },
			st,
			persist.NewMapper(st, cfg.Scraper.SeasonYear),
			snapshot.NewWriter(cfg.Scraper.SnapshotDir),
		)

		concurrency := cfg.Scraper.Concurrency
		if concurrency <= 0 {
			concurrency = 1
		}

		summaries := make([]*model.RunSummary, len(keys))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i, key := range keys {
			g.Go(func() error {
				summary, err := orch.Run(gctx, key)
				summaries[i] = summary
				if err != nil {
					// One failed tournament must not kill the batch.
					zap.L().Error("tournament run failed",
						zap.String("tournament", key),
						zap.Error(err))
				}
				return nil
			})
		}
		_ = g.Wait()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			return eris.Wrap(err, "encode summaries")
		}

		for _, s := range summaries {
			if s == nil || !s.Success {
				return eris.New("one or more tournament runs failed")
			}
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeAll, "all", false, "scrape every configured tournament")
	rootCmd.AddCommand(scrapeCmd)
}
