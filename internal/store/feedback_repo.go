package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// FeedbackRepo handles persistence for FeedbackItem records.
type FeedbackRepo struct{}

// CreateTx inserts a feedback item within an existing transaction.
func (r *FeedbackRepo) CreateTx(ctx context.Context, tx *sql.Tx, runID string, item domain.FeedbackItem, createdAt int64) error {
	const q = `INSERT INTO feedback_items (run_id, domain, severity, detail, source, phase, iteration, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		runID,
		string(item.Domain),
		string(item.Severity),
		item.Detail,
		item.Source,
		string(item.Phase),
		item.Iteration,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("create feedback item: %w", err)
	}
	return nil
}

// ListByRun returns all feedback items for a run in insertion order.
func (r *FeedbackRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]domain.FeedbackItem, error) {
	const q = `SELECT domain, severity, detail, source, phase, iteration
FROM feedback_items
WHERE run_id = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list feedback items: %w", err)
	}
	defer rows.Close()

	var items []domain.FeedbackItem
	for rows.Next() {
		var it domain.FeedbackItem
		var tag, severity, phase string
		if err := rows.Scan(&tag, &severity, &it.Detail, &it.Source, &phase, &it.Iteration); err != nil {
			return nil, fmt.Errorf("scan feedback item: %w", err)
		}
		it.Domain = domain.DomainTag(tag)
		it.Severity = domain.Severity(severity)
		it.Phase = domain.Phase(phase)
		items = append(items, it)
	}
	return items, rows.Err()
}
