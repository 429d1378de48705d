package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// Recorder bundles the repositories behind the persistence paths the engine
// uses. A nil Recorder (or one without a DB) turns every write into a no-op,
// so the engine can run without a database attached.
type Recorder struct {
	DB        *sql.DB
	Runs      *RunRepo
	Events    *EventRepo
	Snapshots *SnapshotRepo
	Feedback  *FeedbackRepo
	Costs     *CostDeltaRepo
}

// NewRecorder creates a Recorder over an open database.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{
		DB:        db,
		Runs:      &RunRepo{},
		Events:    &EventRepo{},
		Snapshots: &SnapshotRepo{},
		Feedback:  &FeedbackRepo{},
		Costs:     &CostDeltaRepo{},
	}
}

func (r *Recorder) disabled() bool {
	return r == nil || r.DB == nil
}

// CreateRun inserts the run row and its first event in one transaction.
func (r *Recorder) CreateRun(ctx context.Context, rec domain.RunRecord, ev domain.WorkflowEvent) error {
	if r.disabled() {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.Runs.CreateTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := r.Events.AppendTx(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

// Transition appends the event, saves the phase snapshot, and advances the
// run row under optimistic locking, all in one transaction.
func (r *Recorder) Transition(ctx context.Context, rec domain.RunRecord, ev domain.WorkflowEvent, snap domain.PhaseSnapshot) error {
	if r.disabled() {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.Events.AppendTx(ctx, tx, ev); err != nil {
		return err
	}
	if err := r.Snapshots.SaveTx(ctx, tx, snap); err != nil {
		return err
	}
	if err := r.Runs.UpdateStateTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordEvent appends a single event outside a phase transition.
func (r *Recorder) RecordEvent(ctx context.Context, ev domain.WorkflowEvent) error {
	if r.disabled() {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.Events.AppendTx(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordFeedback persists a batch of findings in one transaction.
func (r *Recorder) RecordFeedback(ctx context.Context, runID string, items []domain.FeedbackItem) error {
	if r.disabled() || len(items) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, it := range items {
		if err := r.Feedback.CreateTx(ctx, tx, runID, it, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordCost persists one reasoning call's spend.
func (r *Recorder) RecordCost(ctx context.Context, delta domain.CostDelta) error {
	if r.disabled() {
		return nil
	}
	return r.Costs.Create(ctx, r.DB, delta)
}

// GetRun returns the persisted run row, or ErrRunNotFound when persistence
// is disabled or the run is unknown.
func (r *Recorder) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	if r.disabled() {
		return nil, domain.ErrRunNotFound
	}
	return r.Runs.GetByID(ctx, r.DB, runID)
}

// ListEvents returns the run's events after sinceSeq.
func (r *Recorder) ListEvents(ctx context.Context, runID string, sinceSeq int64) ([]domain.WorkflowEvent, error) {
	if r.disabled() {
		return nil, nil
	}
	return r.Events.ListByRun(ctx, r.DB, runID, sinceSeq)
}

// ListFeedback returns every persisted finding for the run.
func (r *Recorder) ListFeedback(ctx context.Context, runID string) ([]domain.FeedbackItem, error) {
	if r.disabled() {
		return nil, nil
	}
	return r.Feedback.ListByRun(ctx, r.DB, runID)
}

// CostSummary returns aggregate spend for the run.
func (r *Recorder) CostSummary(ctx context.Context, runID string) (CostTotals, error) {
	if r.disabled() {
		return CostTotals{}, nil
	}
	return r.Costs.SumByRun(ctx, r.DB, runID)
}
