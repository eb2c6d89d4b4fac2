package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matchpoint-analytics/matchpoint/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "matchpoint",
	Short: "Tennis match result and odds harvester",
	Long:  "Scrapes finished tennis matches with pre-match odds from configured tournament pages, persists them idempotently, and serves the stored data over a read-only API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
