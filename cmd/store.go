package main

import (
	"context"

	"github.com/matchpoint-analytics/matchpoint/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store)
}
