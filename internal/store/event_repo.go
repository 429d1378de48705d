package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// EventRepo handles persistence for WorkflowEvent records.
type EventRepo struct{}

// AppendTx inserts a workflow event within an existing transaction.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, event domain.WorkflowEvent) error {
	const q = `INSERT INTO run_events (run_id, seq_no, phase, event_type, payload_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		event.RunID,
		event.SeqNo,
		string(event.Phase),
		event.EventType,
		event.PayloadJSON,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListByRun returns events for a run with sequence numbers greater than
// sinceSeq, ordered by sequence number ascending.
func (r *EventRepo) ListByRun(ctx context.Context, db *sql.DB, runID string, sinceSeq int64) ([]domain.WorkflowEvent, error) {
	const q = `SELECT id, run_id, seq_no, phase, event_type, payload_json, created_at
FROM run_events
WHERE run_id = ? AND seq_no > ?
ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, runID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.WorkflowEvent
	for rows.Next() {
		var e domain.WorkflowEvent
		var phase string
		if err := rows.Scan(&e.ID, &e.RunID, &e.SeqNo, &phase, &e.EventType, &e.PayloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Phase = domain.Phase(phase)
		events = append(events, e)
	}
	return events, rows.Err()
}
