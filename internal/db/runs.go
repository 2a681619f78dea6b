package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ajitpratap0/stockfunk/internal/backtest"
	btengine "github.com/ajitpratap0/stockfunk/pkg/backtest"
)

// querier is the pgx surface the run store needs. *pgxpool.Pool and
// pgxmock both satisfy it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunStore persists backtest runs in the backtest_runs table. It is
// the Postgres counterpart of the file store and implements the same
// Store interface.
type RunStore struct {
	q querier
}

// NewRunStore builds a store over a pool (or mock).
func NewRunStore(q querier) *RunStore {
	return &RunStore{q: q}
}

// Save upserts the record, denormalizing headline metrics for listing.
func (s *RunStore) Save(ctx context.Context, rec *backtest.Record) error {
	rec.SchemaVersion = backtest.SchemaVersion
	if rec.LastAccessAt.IsZero() {
		rec.LastAccessAt = time.Now().UTC()
	}

	configJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("encoding run config: %w", err)
	}
	var resultJSON []byte
	var totalReturn, sharpe, maxDD *float64
	var totalTrades *int
	if rec.Result != nil {
		if resultJSON, err = json.Marshal(rec.Result); err != nil {
			return fmt.Errorf("encoding run result: %w", err)
		}
		if m := rec.Result.Metrics; m != nil {
			totalReturn, sharpe, maxDD = &m.TotalReturnPct, &m.SharpeRatio, &m.MaxDrawdownPct
			totalTrades = &m.TotalTrades
		}
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO backtest_runs (
			id, schema_version, name, status, config, result, error_message,
			created_at, started_at, completed_at, last_access_at,
			total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			last_access_at = EXCLUDED.last_access_at,
			total_return_pct = EXCLUDED.total_return_pct,
			sharpe_ratio = EXCLUDED.sharpe_ratio,
			max_drawdown_pct = EXCLUDED.max_drawdown_pct,
			total_trades = EXCLUDED.total_trades`,
		rec.ID, rec.SchemaVersion, rec.Name, rec.Status, configJSON, resultJSON, rec.ErrorMessage,
		rec.CreatedAt, rec.StartedAt, rec.CompletedAt, rec.LastAccessAt,
		totalReturn, sharpe, maxDD, totalTrades,
	)
	if err != nil {
		return fmt.Errorf("saving backtest run: %w", err)
	}
	return nil
}

// Get loads a full record and refreshes its access time.
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*backtest.Record, error) {
	var rec backtest.Record
	var configJSON, resultJSON []byte
	err := s.q.QueryRow(ctx, `
		SELECT id, schema_version, name, status, config, result, error_message,
		       created_at, started_at, completed_at, last_access_at
		FROM backtest_runs WHERE id = $1`, id).Scan(
		&rec.ID, &rec.SchemaVersion, &rec.Name, &rec.Status, &configJSON, &resultJSON,
		&rec.ErrorMessage, &rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt, &rec.LastAccessAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, backtest.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading backtest run: %w", err)
	}

	if err := json.Unmarshal(configJSON, &rec.Config); err != nil {
		return nil, fmt.Errorf("decoding run config: %w", err)
	}
	if len(resultJSON) > 0 {
		var result btengine.Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("decoding run result: %w", err)
		}
		rec.Result = &result
	}

	rec.LastAccessAt = time.Now().UTC()
	if _, err := s.q.Exec(ctx,
		"UPDATE backtest_runs SET last_access_at = $1 WHERE id = $2",
		rec.LastAccessAt, id); err != nil {
		return nil, fmt.Errorf("touching backtest run: %w", err)
	}
	return &rec, nil
}

// List returns summaries newest first, from the denormalized columns.
func (s *RunStore) List(ctx context.Context) ([]backtest.Summary, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, name, status, created_at,
		       total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades
		FROM backtest_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing backtest runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]backtest.Summary, 0)
	for rows.Next() {
		var s backtest.Summary
		var totalReturn, sharpe, maxDD *float64
		var totalTrades *int
		if err := rows.Scan(&s.ID, &s.Name, &s.Status, &s.CreatedAt,
			&totalReturn, &sharpe, &maxDD, &totalTrades); err != nil {
			return nil, fmt.Errorf("scanning backtest run: %w", err)
		}
		if totalReturn != nil {
			s.TotalReturnPct = *totalReturn
		}
		if sharpe != nil {
			s.SharpeRatio = *sharpe
		}
		if maxDD != nil {
			s.MaxDrawdownPct = *maxDD
		}
		if totalTrades != nil {
			s.TotalTrades = *totalTrades
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Delete removes a record.
func (s *RunStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM backtest_runs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting backtest run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return backtest.ErrNotFound
	}
	return nil
}
