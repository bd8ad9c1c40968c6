// Package persistence offers an optional Postgres sink for backtest and
// sweep results. The simulation core never touches it; the CLI wires it
// in when a database DSN is configured.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/quantlab/stratrun/internal/harness"
	"github.com/quantlab/stratrun/internal/sim"
)

// Schema creates the result tables. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
    id          BIGSERIAL PRIMARY KEY,
    run_id      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    parameters  JSONB NOT NULL,
    metrics     JSONB NOT NULL,
    trade_count INTEGER NOT NULL,
    final_equity DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS sweep_rows (
    id         BIGSERIAL PRIMARY KEY,
    sweep_id   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    params     JSONB NOT NULL,
    metrics    JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sweep_rows_sweep_id ON sweep_rows (sweep_id);
`

// Store persists results to Postgres
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and ensures the schema exists
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to results database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure results schema: %w", err)
	}

	log.Info().Msg("Results database connected")
	return &Store{db: db}, nil
}

// Close releases the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResult persists one backtest result
func (s *Store) SaveResult(ctx context.Context, runID string, result *sim.Result) error {
	params, err := json.Marshal(result.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	finalEquity := 0.0
	if len(result.EquityCurve) > 0 {
		finalEquity = result.EquityCurve[len(result.EquityCurve)-1]
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_results (run_id, parameters, metrics, trade_count, final_equity)
		VALUES ($1, $2, $3, $4, $5)`,
		runID, params, metrics, len(result.Trades), finalEquity)
	if err != nil {
		return fmt.Errorf("failed to save backtest result: %w", err)
	}
	return nil
}

// SaveSweepRows persists every row of a completed sweep under one sweep ID
func (s *Store) SaveSweepRows(ctx context.Context, sweepID string, rows []harness.Row) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sweep save: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		params, err := json.Marshal(row.Params)
		if err != nil {
			return fmt.Errorf("failed to encode sweep params: %w", err)
		}
		metrics, err := json.Marshal(row.Metrics)
		if err != nil {
			return fmt.Errorf("failed to encode sweep metrics: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sweep_rows (sweep_id, params, metrics) VALUES ($1, $2, $3)`,
			sweepID, params, metrics); err != nil {
			return fmt.Errorf("failed to save sweep row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sweep save: %w", err)
	}
	return nil
}
