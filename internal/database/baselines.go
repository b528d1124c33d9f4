package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

// BaselineStore keeps one baseline row per test suite in perf_baselines and
// appends every saved baseline to perf_baseline_history.
type BaselineStore struct {
	pg *Postgres
}

var _ loadtest.BaselineStore = (*BaselineStore)(nil)

func NewBaselineStore(pg *Postgres) *BaselineStore {
	return &BaselineStore{pg: pg}
}

// Load returns the current baseline for testSuite, or nil when none exists.
func (s *BaselineStore) Load(ctx context.Context, testSuite string) (*loadtest.Baseline, error) {
	query := `SELECT test_suite, statistics, resources, environment, created_at
		FROM perf_baselines WHERE test_suite = $1`

	b, err := scanBaseline(s.pg.db.QueryRowContext(ctx, query, testSuite))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query baseline %s: %w", testSuite, err)
	}
	return b, nil
}

// Save replaces the suite's baseline and records it in the history table,
// both in one transaction.
func (s *BaselineStore) Save(ctx context.Context, testSuite string, stats loadtest.Statistics, resources *loadtest.ResourceSummary, environment map[string]string) (*loadtest.Baseline, error) {
	b := &loadtest.Baseline{
		TestSuite:   testSuite,
		Statistics:  stats,
		Environment: environment,
	}
	if b.Environment == nil {
		b.Environment = map[string]string{}
	}
	if resources != nil {
		r := *resources
		b.Resources = &r
	}

	statsJSON, err := json.Marshal(b.Statistics)
	if err != nil {
		return nil, fmt.Errorf("encode statistics: %w", err)
	}
	var resJSON []byte
	if b.Resources != nil {
		if resJSON, err = json.Marshal(b.Resources); err != nil {
			return nil, fmt.Errorf("encode resources: %w", err)
		}
	}
	envJSON, err := json.Marshal(b.Environment)
	if err != nil {
		return nil, fmt.Errorf("encode environment: %w", err)
	}

	tx, err := s.pg.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := `INSERT INTO perf_baselines (test_suite, statistics, resources, environment, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (test_suite) DO UPDATE SET
			statistics = EXCLUDED.statistics,
			resources = EXCLUDED.resources,
			environment = EXCLUDED.environment,
			created_at = EXCLUDED.created_at
		RETURNING created_at`
	if err := tx.QueryRowContext(ctx, upsert, testSuite, statsJSON, nullJSON(resJSON), envJSON).Scan(&b.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert baseline: %w", err)
	}

	history := `INSERT INTO perf_baseline_history (test_suite, statistics, resources, environment, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, history, testSuite, statsJSON, nullJSON(resJSON), envJSON, b.CreatedAt); err != nil {
		return nil, fmt.Errorf("record baseline history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit baseline: %w", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()

	s.pg.logger.Info("baseline saved",
		zap.String("test_suite", testSuite),
		zap.Int("count", stats.Count))
	return b, nil
}

func nullJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBaseline(row rowScanner) (*loadtest.Baseline, error) {
	var b loadtest.Baseline
	var statsJSON, resJSON, envJSON []byte
	if err := row.Scan(&b.TestSuite, &statsJSON, &resJSON, &envJSON, &b.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(statsJSON, &b.Statistics); err != nil {
		return nil, fmt.Errorf("%w: %s: statistics: %v", loadtest.ErrBaselineCorrupt, b.TestSuite, err)
	}
	if resJSON != nil {
		b.Resources = &loadtest.ResourceSummary{}
		if err := json.Unmarshal(resJSON, b.Resources); err != nil {
			return nil, fmt.Errorf("%w: %s: resources: %v", loadtest.ErrBaselineCorrupt, b.TestSuite, err)
		}
	}
	if len(envJSON) > 0 {
		if err := json.Unmarshal(envJSON, &b.Environment); err != nil {
			return nil, fmt.Errorf("%w: %s: environment: %v", loadtest.ErrBaselineCorrupt, b.TestSuite, err)
		}
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}
