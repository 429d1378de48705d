package store

import (
	"context"
	"testing"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

func TestFeedbackRepo_CreateAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &FeedbackRepo{}

	items := []domain.FeedbackItem{
		{
			Domain:    domain.DomainStorage,
			Severity:  domain.SeverityBlocking,
			Detail:    "wrong durability class",
			Source:    "storage-validator",
			Phase:     domain.PhaseValidation,
			Iteration: 0,
		},
		{
			Domain:    domain.PillarSecurity,
			Severity:  domain.SeverityAdvisory,
			Detail:    "enable access logging",
			Source:    "security-auditor",
			Phase:     domain.PhaseAudit,
			Iteration: 1,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	for _, it := range items {
		if err := repo.CreateTx(ctx, tx, "run-001", it, 1700000000); err != nil {
			t.Fatalf("CreateTx: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := repo.ListByRun(ctx, db, "run-001")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	if got[0].Domain != domain.DomainStorage || got[0].Severity != domain.SeverityBlocking {
		t.Errorf("first item = %+v", got[0])
	}
	if got[0].Phase != domain.PhaseValidation {
		t.Errorf("Phase = %q", got[0].Phase)
	}
	if got[1].Source != "security-auditor" || got[1].Iteration != 1 {
		t.Errorf("second item = %+v", got[1])
	}
}

func TestFeedbackRepo_ListByRun_Empty(t *testing.T) {
	db := newTestDB(t)

	got, err := (&FeedbackRepo{}).ListByRun(context.Background(), db, "run-001")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no items, got %v", got)
	}
}
