package workflow

import (
	"testing"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to domain.Phase
		want     bool
	}{
		{domain.PhaseGeneration, domain.PhaseValidation, true},
		{domain.PhaseValidation, domain.PhaseFactualCheck, true},
		{domain.PhaseFactualCheck, domain.PhaseAudit, true},
		{domain.PhaseFactualCheck, domain.PhaseGeneration, true},
		{domain.PhaseAudit, domain.PhaseArchitecturalCheck, true},
		{domain.PhaseArchitecturalCheck, domain.PhaseCompleted, true},
		{domain.PhaseArchitecturalCheck, domain.PhaseGeneration, true},

		// Forward edges cannot be skipped and most phases cannot loop back.
		{domain.PhaseGeneration, domain.PhaseAudit, false},
		{domain.PhaseGeneration, domain.PhaseGeneration, false},
		{domain.PhaseGeneration, domain.PhaseCompleted, false},
		{domain.PhaseValidation, domain.PhaseGeneration, false},
		{domain.PhaseAudit, domain.PhaseGeneration, false},
		{domain.PhaseAudit, domain.PhaseCompleted, false},
		{domain.PhaseCompleted, domain.PhaseGeneration, false},
		{domain.PhaseCompleted, domain.PhaseValidation, false},
		{domain.Phase("limbo"), domain.PhaseValidation, false},
	}
	for _, tc := range cases {
		if got := IsValidTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEveryPhaseExceptCompletedHasExit(t *testing.T) {
	phases := []domain.Phase{
		domain.PhaseGeneration,
		domain.PhaseValidation,
		domain.PhaseFactualCheck,
		domain.PhaseAudit,
		domain.PhaseArchitecturalCheck,
	}
	for _, p := range phases {
		if len(validTransitions[p]) == 0 {
			t.Errorf("phase %s has no exit", p)
		}
	}
	if len(validTransitions[domain.PhaseCompleted]) != 0 {
		t.Error("completed must be terminal")
	}
}
