package database

import (
	"context"
	"fmt"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

// DefaultHistoryLimit caps History when limit <= 0.
const DefaultHistoryLimit = 20

// History returns previously saved baselines for testSuite, newest first.
func (s *BaselineStore) History(ctx context.Context, testSuite string, limit int) ([]*loadtest.Baseline, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query := `
        SELECT test_suite, statistics, resources, environment, created_at
        FROM perf_baseline_history
        WHERE test_suite = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := s.pg.db.QueryContext(ctx, query, testSuite, limit)
	if err != nil {
		return nil, fmt.Errorf("query baseline history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*loadtest.Baseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, b)
	}
	return records, rows.Err()
}
