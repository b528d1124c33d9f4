package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meinzeug/autodevai-sub008/internal/config"
	"github.com/meinzeug/autodevai-sub008/internal/database"
	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

// errStoreUnavailable marks a configured baseline store that could not be
// reached. A run degrades to "no baseline"; commands that need the store fail.
var errStoreUnavailable = errors.New("baseline store unavailable")

// baselineBackend is the configured store plus, for Postgres, the handle
// needed for history queries.
type baselineBackend struct {
	store loadtest.BaselineStore
	pg    *database.BaselineStore
	close func() error
}

func openBaselineStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*baselineBackend, error) {
	switch cfg.Baseline.Driver {
	case config.DriverPostgres:
		pg, err := database.NewPostgres(cfg.Baseline.DSN, logger)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := pg.Ping(pingCtx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("%w: connect baseline database: %v", errStoreUnavailable, err)
		}
		if err := pg.CreateTables(pingCtx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("%w: %v", errStoreUnavailable, err)
		}
		store := database.NewBaselineStore(pg)
		return &baselineBackend{store: store, pg: store, close: pg.Close}, nil
	default:
		return &baselineBackend{
			store: loadtest.NewFileBaselineStore(cfg.Baseline.Dir),
			close: func() error { return nil },
		}, nil
	}
}
