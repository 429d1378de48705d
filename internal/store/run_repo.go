package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// RunRepo handles persistence for RunRecord rows.
type RunRepo struct{}

// CreateTx inserts a new run within an existing transaction.
func (r *RunRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec domain.RunRecord) error {
	const q = `INSERT INTO runs (run_id, problem, provider, status, phase, iteration, state_version, summary_json, created_at_unix, updated_at_unix)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		rec.RunID,
		rec.Problem,
		string(rec.Provider),
		string(rec.Status),
		string(rec.Phase),
		rec.Iteration,
		rec.StateVersion,
		rec.SummaryJSON,
		rec.CreatedAtUnix,
		rec.UpdatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateStateTx advances a run within a transaction using optimistic locking.
// The update only succeeds if the current state_version matches the expected
// version.
func (r *RunRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, rec domain.RunRecord) error {
	const q = `UPDATE runs SET
		status = ?,
		phase = ?,
		iteration = ?,
		state_version = state_version + 1,
		summary_json = ?,
		updated_at_unix = ?
	WHERE run_id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q,
		string(rec.Status),
		string(rec.Phase),
		rec.Iteration,
		rec.SummaryJSON,
		rec.UpdatedAtUnix,
		rec.RunID,
		rec.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepo) GetByID(ctx context.Context, db *sql.DB, runID string) (*domain.RunRecord, error) {
	const q = `SELECT run_id, problem, provider, status, phase, iteration, state_version, summary_json, created_at_unix, updated_at_unix
FROM runs WHERE run_id = ?`

	row := db.QueryRowContext(ctx, q, runID)

	var rec domain.RunRecord
	var provider, status, phase string
	err := row.Scan(&rec.RunID, &rec.Problem, &provider, &status, &phase,
		&rec.Iteration, &rec.StateVersion, &rec.SummaryJSON, &rec.CreatedAtUnix, &rec.UpdatedAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	rec.Provider = domain.Provider(provider)
	rec.Status = domain.RunStatus(status)
	rec.Phase = domain.Phase(phase)
	return &rec, nil
}
