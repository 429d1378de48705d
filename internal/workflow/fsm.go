package workflow

import "github.com/anthropics/blueprint-engine/internal/domain"

// validTransitions defines the legal phase transitions.
// Each key is a source phase, and the value is the set of valid target phases.
var validTransitions = map[domain.Phase]map[domain.Phase]bool{
	domain.PhaseGeneration:         {domain.PhaseValidation: true},
	domain.PhaseValidation:         {domain.PhaseFactualCheck: true},
	domain.PhaseFactualCheck:       {domain.PhaseAudit: true, domain.PhaseGeneration: true}, // back edge reworks factual errors
	domain.PhaseAudit:              {domain.PhaseArchitecturalCheck: true},
	domain.PhaseArchitecturalCheck: {domain.PhaseCompleted: true, domain.PhaseGeneration: true}, // back edge reworks design flaws
}

// IsValidTransition checks if a phase transition is legal.
func IsValidTransition(from, to domain.Phase) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}
