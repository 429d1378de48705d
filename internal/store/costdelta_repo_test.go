package store

import (
	"context"
	"testing"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

func TestCostDeltaRepo_CreateAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &CostDeltaRepo{}

	deltas := []domain.CostDelta{
		{RunID: "run-001", Caller: "storage-architect", Phase: domain.PhaseGeneration, InputTokens: 100, OutputTokens: 200, AmountUSD: 0.003, CreatedAt: 1700000000},
		{RunID: "run-001", Caller: "storage-validator", Phase: domain.PhaseValidation, InputTokens: 50, OutputTokens: 80, AmountUSD: 0.001, CreatedAt: 1700000100},
	}
	for _, d := range deltas {
		if err := repo.Create(ctx, db, d); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := repo.ListByRun(ctx, db, "run-001")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d deltas, want 2", len(got))
	}
	if got[0].Caller != "storage-architect" || got[0].Phase != domain.PhaseGeneration {
		t.Errorf("first delta = %+v", got[0])
	}
	if got[1].InputTokens != 50 || got[1].OutputTokens != 80 {
		t.Errorf("second delta = %+v", got[1])
	}
}

func TestCostDeltaRepo_SumByRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := &CostDeltaRepo{}

	for _, d := range []domain.CostDelta{
		{RunID: "run-001", Caller: "a", InputTokens: 100, OutputTokens: 200, AmountUSD: 0.25, CreatedAt: 1},
		{RunID: "run-001", Caller: "b", InputTokens: 300, OutputTokens: 400, AmountUSD: 0.5, CreatedAt: 2},
		{RunID: "run-999", Caller: "c", InputTokens: 999, OutputTokens: 999, AmountUSD: 9.9, CreatedAt: 3},
	} {
		if err := repo.Create(ctx, db, d); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	totals, err := repo.SumByRun(ctx, db, "run-001")
	if err != nil {
		t.Fatalf("SumByRun: %v", err)
	}
	if totals.Calls != 2 {
		t.Errorf("Calls = %d, want 2", totals.Calls)
	}
	if totals.InputTokens != 400 || totals.OutputTokens != 600 {
		t.Errorf("tokens = %d/%d, want 400/600", totals.InputTokens, totals.OutputTokens)
	}
	if totals.AmountUSD != 0.75 {
		t.Errorf("AmountUSD = %v, want 0.75", totals.AmountUSD)
	}
}

func TestCostDeltaRepo_SumByRun_Empty(t *testing.T) {
	db := newTestDB(t)

	totals, err := (&CostDeltaRepo{}).SumByRun(context.Background(), db, "run-001")
	if err != nil {
		t.Fatalf("SumByRun: %v", err)
	}
	if totals.Calls != 0 || totals.AmountUSD != 0 {
		t.Errorf("expected zero totals, got %+v", totals)
	}
}
