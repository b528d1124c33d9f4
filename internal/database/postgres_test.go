package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

func newMockStore(t *testing.T) (*BaselineStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBaselineStore(NewPostgresFromDB(db, zaptest.NewLogger(t))), mock
}

var baselineColumns = []string{"test_suite", "statistics", "resources", "environment", "created_at"}

func TestBaselineStore_LoadMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM perf_baselines WHERE test_suite = $1")).
		WithArgs("checkout").
		WillReturnRows(sqlmock.NewRows(baselineColumns))

	b, err := store.Load(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaselineStore_Load(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM perf_baselines WHERE test_suite = $1")).
		WithArgs("checkout").
		WillReturnRows(sqlmock.NewRows(baselineColumns).AddRow(
			"checkout",
			[]byte(`{"count":100,"success_rate":0.99,"response_time":{"avg":120,"p95":300},"throughput_per_sec":50,"error_rate":0.01}`),
			[]byte(`{"peak_memory_bytes":1048576,"avg_cpu_percent":40}`),
			[]byte(`{"go_version":"go1.25.0"}`),
			created,
		))

	b, err := store.Load(context.Background(), "checkout")
	require.NoError(t, err)
	require.NotNil(t, b)

	assert.Equal(t, "checkout", b.TestSuite)
	assert.Equal(t, 100, b.Statistics.Count)
	assert.Equal(t, 120.0, b.Statistics.ResponseTime.Avg)
	assert.Equal(t, 300.0, b.Statistics.ResponseTime.P95)
	require.NotNil(t, b.Resources)
	assert.Equal(t, uint64(1048576), b.Resources.PeakMemoryBytes)
	assert.Equal(t, "go1.25.0", b.Environment["go_version"])
	assert.True(t, created.Equal(b.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaselineStore_LoadWithoutResources(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM perf_baselines").
		WillReturnRows(sqlmock.NewRows(baselineColumns).AddRow(
			"api", []byte(`{"count":1}`), nil, []byte(`{}`), time.Now(),
		))

	b, err := store.Load(context.Background(), "api")
	require.NoError(t, err)
	assert.Nil(t, b.Resources)
}

func TestBaselineStore_LoadCorrupt(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM perf_baselines").
		WillReturnRows(sqlmock.NewRows(baselineColumns).AddRow(
			"api", []byte(`{"count":`), nil, []byte(`{}`), time.Now(),
		))

	_, err := store.Load(context.Background(), "api")
	require.Error(t, err)
	assert.True(t, errors.Is(err, loadtest.ErrBaselineCorrupt))
}

func TestBaselineStore_LoadQueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM perf_baselines").WillReturnError(sql.ErrConnDone)

	_, err := store.Load(context.Background(), "api")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrConnDone))
}

func TestBaselineStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (test_suite) DO UPDATE")).
		WithArgs("checkout", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec("INSERT INTO perf_baseline_history").
		WithArgs("checkout", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), created).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	stats := loadtest.Statistics{Count: 42, SuccessRate: 1}
	res := &loadtest.ResourceSummary{PeakMemoryBytes: 2048}
	b, err := store.Save(context.Background(), "checkout", stats, res, map[string]string{"os": "linux"})
	require.NoError(t, err)

	assert.Equal(t, "checkout", b.TestSuite)
	assert.Equal(t, 42, b.Statistics.Count)
	assert.True(t, created.Equal(b.CreatedAt))
	require.NotNil(t, b.Resources)
	assert.NotSame(t, res, b.Resources)
	assert.Equal(t, "linux", b.Environment["os"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaselineStore_SaveRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO perf_baselines").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO perf_baseline_history").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.Save(context.Background(), "checkout", loadtest.Statistics{}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaselineStore_History(t *testing.T) {
	store, mock := newMockStore(t)
	newer := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)

	mock.ExpectQuery("FROM perf_baseline_history").
		WithArgs("checkout", DefaultHistoryLimit).
		WillReturnRows(sqlmock.NewRows(baselineColumns).
			AddRow("checkout", []byte(`{"count":2}`), nil, []byte(`{}`), newer).
			AddRow("checkout", []byte(`{"count":1}`), nil, []byte(`{}`), older))

	records, err := store.History(context.Background(), "checkout", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].Statistics.Count)
	assert.Equal(t, 1, records[1].Statistics.Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS perf_baselines").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS perf_baseline_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))

	pg := NewPostgresFromDB(db, nil)
	require.NoError(t, pg.CreateTables(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// testDSN returns the database used by the live tests, or "" to skip them.
func testDSN() string {
	return os.Getenv("PERF_TEST_DATABASE_URL")
}

func TestPostgres_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}
	dsn := testDSN()
	if dsn == "" {
		t.Skip("PERF_TEST_DATABASE_URL not set")
	}

	pg, err := NewPostgres(dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = pg.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, pg.Ping(ctx))
	require.NoError(t, pg.CreateTables(ctx))

	store := NewBaselineStore(pg)
	suite := "roundtrip-" + time.Now().Format("150405.000000")
	_, err = store.Save(ctx, suite, loadtest.Statistics{Count: 7}, nil, map[string]string{"k": "v"})
	require.NoError(t, err)

	b, err := store.Load(ctx, suite)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, 7, b.Statistics.Count)
	assert.Equal(t, "v", b.Environment["k"])
}
