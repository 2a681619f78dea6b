package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/internal/backtest"
	btengine "github.com/ajitpratap0/stockfunk/pkg/backtest"
)

func newMockStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRunStore(mock), mock
}

func sampleRecord() *backtest.Record {
	return &backtest.Record{
		ID:        uuid.New(),
		Name:      "sample",
		Status:    backtest.JobStatusCompleted,
		CreatedAt: time.Now().UTC(),
		Config: btengine.Config{
			Universe:       []string{"AAPL"},
			StartDate:      time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
			InitialCapital: 100_000,
		},
		Result: &btengine.Result{
			Metrics: &btengine.Metrics{TotalReturnPct: 8.2, SharpeRatio: 0.9, TotalTrades: 12},
		},
	}
}

func TestRunStoreSave(t *testing.T) {
	store, mock := newMockStore(t)
	rec := sampleRecord()

	mock.ExpectExec("INSERT INTO backtest_runs").
		WithArgs(rec.ID, backtest.SchemaVersion, rec.Name, rec.Status,
			pgxmock.AnyArg(), pgxmock.AnyArg(), rec.ErrorMessage,
			rec.CreatedAt, rec.StartedAt, rec.CompletedAt, pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.False(t, rec.LastAccessAt.IsZero(), "save stamps access time")
}

func TestRunStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, schema_version").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), id)
	assert.ErrorIs(t, err, backtest.ErrNotFound)
}

func TestRunStoreGetRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	rec := sampleRecord()
	created := rec.CreatedAt

	configJSON := []byte(`{"universe":["AAPL"],"start_date":"2023-01-01T00:00:00Z",` +
		`"end_date":"2023-06-01T00:00:00Z","frequency":"monthly","top_n":10,` +
		`"min_composite":0,"max_per_sector":0,"initial_capital":100000,"cost_bps":10,` +
		`"risk":{"MaxDrawdown":0.15,"DefensiveCashBuffer":0.5,"VolCeiling":0.28,` +
		`"VolScaleFactor":0.75,"MaxPositionSize":0.1,"MaxSectorConcentration":0.4}}`)
	resultJSON := []byte(`{"config":{},"metadata":{"engine_version":"2.1.0","provider":"x",` +
		`"note":"n","completed_at":"2024-01-01T00:00:00Z"},"equity_curve":null,` +
		`"rebalances":null,"trades":null,"closed_positions":null,"risk_events":null,` +
		`"metrics":{"total_return_pct":8.2,"sharpe_ratio":0.9,"total_trades":12,` +
		`"initial_capital":100000,"final_equity":108200,"start_date":"2023-01-01T00:00:00Z",` +
		`"end_date":"2023-06-01T00:00:00Z","cagr":0,"volatility":0,"max_drawdown_pct":0,` +
		`"sortino_ratio":0,"calmar_ratio":0,"winning_trades":0,"losing_trades":0,` +
		`"win_rate":0,"profit_factor":0,"benchmark_return_pct":0,"alpha":0,"beta":0}}`)

	rows := pgxmock.NewRows([]string{
		"id", "schema_version", "name", "status", "config", "result",
		"error_message", "created_at", "started_at", "completed_at", "last_access_at",
	}).AddRow(rec.ID, backtest.SchemaVersion, rec.Name, rec.Status, configJSON, resultJSON,
		"", created, (*time.Time)(nil), (*time.Time)(nil), created)

	mock.ExpectQuery("SELECT id, schema_version").WithArgs(rec.ID).WillReturnRows(rows)
	mock.ExpectExec("UPDATE backtest_runs SET last_access_at").
		WithArgs(pgxmock.AnyArg(), rec.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	got, err := store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, []string{"AAPL"}, got.Config.Universe)
	require.NotNil(t, got.Result)
	assert.Equal(t, 8.2, got.Result.Metrics.TotalReturnPct)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreList(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	created := time.Now().UTC()
	totalReturn, sharpe, maxDD := 8.2, 0.9, 4.5
	trades := 12

	rows := pgxmock.NewRows([]string{
		"id", "name", "status", "created_at",
		"total_return_pct", "sharpe_ratio", "max_drawdown_pct", "total_trades",
	}).
		AddRow(id, "first", backtest.JobStatusCompleted, created, &totalReturn, &sharpe, &maxDD, &trades).
		AddRow(uuid.New(), "pending", backtest.JobStatusPending, created.Add(-time.Hour),
			(*float64)(nil), (*float64)(nil), (*float64)(nil), (*int)(nil))

	mock.ExpectQuery("SELECT id, name, status, created_at").WillReturnRows(rows)

	summaries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 8.2, summaries[0].TotalReturnPct)
	assert.Zero(t, summaries[1].TotalReturnPct, "pending runs have no metrics")
}

func TestRunStoreDelete(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM backtest_runs").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.Delete(context.Background(), id))

	mock.ExpectExec("DELETE FROM backtest_runs").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, store.Delete(context.Background(), id), backtest.ErrNotFound)
}
