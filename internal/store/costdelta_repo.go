package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// CostDeltaRepo handles persistence for CostDelta records.
type CostDeltaRepo struct{}

// Create inserts a new cost delta record.
func (r *CostDeltaRepo) Create(ctx context.Context, db *sql.DB, delta domain.CostDelta) error {
	const q = `INSERT INTO cost_deltas (run_id, caller, phase, input_tokens, output_tokens, amount_usd, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		delta.RunID,
		delta.Caller,
		string(delta.Phase),
		delta.InputTokens,
		delta.OutputTokens,
		delta.AmountUSD,
		delta.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create cost delta: %w", err)
	}
	return nil
}

// ListByRun returns all cost deltas for a run in insertion order.
func (r *CostDeltaRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]domain.CostDelta, error) {
	const q = `SELECT run_id, caller, phase, input_tokens, output_tokens, amount_usd, created_at
FROM cost_deltas
WHERE run_id = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list cost deltas: %w", err)
	}
	defer rows.Close()

	var deltas []domain.CostDelta
	for rows.Next() {
		var d domain.CostDelta
		var phase string
		if err := rows.Scan(&d.RunID, &d.Caller, &phase, &d.InputTokens, &d.OutputTokens, &d.AmountUSD, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cost delta: %w", err)
		}
		d.Phase = domain.Phase(phase)
		deltas = append(deltas, d)
	}
	return deltas, rows.Err()
}

// CostTotals aggregates recorded spend for one run.
type CostTotals struct {
	Calls        int64
	InputTokens  int64
	OutputTokens int64
	AmountUSD    float64
}

// SumByRun returns aggregate call count, token usage, and spend for a run.
func (r *CostDeltaRepo) SumByRun(ctx context.Context, db *sql.DB, runID string) (CostTotals, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(amount_usd), 0)
FROM cost_deltas WHERE run_id = ?`

	var t CostTotals
	err := db.QueryRowContext(ctx, q, runID).Scan(&t.Calls, &t.InputTokens, &t.OutputTokens, &t.AmountUSD)
	if err != nil {
		return CostTotals{}, fmt.Errorf("sum cost deltas: %w", err)
	}
	return t, nil
}
