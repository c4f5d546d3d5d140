//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-retail-etl/internal/logging"
)

// Run statuses recorded in etl_runs.
const (
	RunStatusRunning   = "running"
	RunStatusCommitted = "committed"
	RunStatusFailed    = "failed"
)

// RunRecord is one row of the etl_runs table.
type RunRecord struct {
	RunID         uuid.UUID  `db:"run_id"`
	Source        string     `db:"source"`
	StartedAt     time.Time  `db:"started_at"`
	FinishedAt    *time.Time `db:"finished_at"`
	Status        string     `db:"status"`
	RowsRead      int        `db:"rows_read"`
	RowsCleaned   int        `db:"rows_cleaned"`
	RowsSkipped   int        `db:"rows_skipped"`
	FactsInserted int        `db:"facts_inserted"`
	Error         *string    `db:"error"`
}

// RunCounts are the counters written when a run finishes.
type RunCounts struct {
	RowsRead      int
	RowsCleaned   int
	RowsSkipped   int
	FactsInserted int
}

// StartRun records a new run in the running state and returns its ID.
// It must be called outside the load transaction so that failed runs
// remain visible after rollback.
func StartRun(ctx context.Context, q Querier, source string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := q.Exec(ctx, `
        INSERT INTO etl_runs (run_id, source, started_at, status)
        VALUES ($1, $2, $3, $4)
    `, id, source, time.Now().UTC(), RunStatusRunning)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record run start: %w", err)
	}

	logging.Debug().
		Str("run_id", id.String()).
		Str("source", source).
		Msg("Recorded run start")

	return id, nil
}

// FinishRun stores the outcome of a run. A nil runErr marks it committed.
func FinishRun(ctx context.Context, q Querier, id uuid.UUID, counts RunCounts, runErr error) error {
	status := RunStatusCommitted
	var errText *string
	if runErr != nil {
		status = RunStatusFailed
		msg := runErr.Error()
		errText = &msg
	}

	_, err := q.Exec(ctx, `
        UPDATE etl_runs
        SET finished_at = $2, status = $3, rows_read = $4, rows_cleaned = $5,
            rows_skipped = $6, facts_inserted = $7, error = $8
        WHERE run_id = $1
    `, id, time.Now().UTC(), status, counts.RowsRead, counts.RowsCleaned,
		counts.RowsSkipped, counts.FactsInserted, errText)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(ctx context.Context, q Querier, limit int) ([]RunRecord, error) {
	rows, err := q.Query(ctx, `
        SELECT run_id, source, started_at, finished_at, status, rows_read,
               rows_cleaned, rows_skipped, facts_inserted, error
        FROM etl_runs
        ORDER BY started_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, pgx.RowToStructByName[RunRecord])
	if err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}
