package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/blueprint-engine/internal/domain"
	"github.com/anthropics/blueprint-engine/internal/review"
)

// BuildSummary assembles the terminal view of a run. The notice, when not
// empty, closes the overview of a forced completion.
func BuildSummary(st *domain.WorkflowState, result domain.Result, notice string) *domain.RunSummary {
	var gaps []domain.DomainTag
	for _, tag := range st.ActiveDomains {
		if _, ok := st.DesignComponents[tag]; !ok {
			gaps = append(gaps, tag)
		}
	}

	s := &domain.RunSummary{
		RunID:           st.RunID,
		Result:          result,
		BudgetExhausted: st.BudgetExhausted,
		Iterations:      st.Iteration,
		Provider:        st.Provider,
		Components:      componentsInOrder(st),
		CoverageGaps:    gaps,
		Feedback:        append([]domain.FeedbackItem(nil), st.FeedbackLog...),
		Tallies:         review.Tally(st.FeedbackLog),
		CreatedAtUnix:   time.Now().Unix(),
	}
	s.Overview = buildOverview(st, s, notice)
	return s
}

// componentsInOrder returns the accepted components in canonical taxonomy
// order.
func componentsInOrder(st *domain.WorkflowState) []domain.DesignComponent {
	var out []domain.DesignComponent
	for _, tag := range domain.AllDomains() {
		if comp, ok := st.DesignComponents[tag]; ok {
			out = append(out, comp)
		}
	}
	return out
}

func buildOverview(st *domain.WorkflowState, s *domain.RunSummary, notice string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s architecture covering %s.", st.Provider, joinTags(st.ActiveDomains))
	fmt.Fprintf(&b, " Outcome: %s after %d refinement iterations.", s.Result, s.Iterations)
	if len(s.CoverageGaps) > 0 {
		fmt.Fprintf(&b, " No accepted component for %s.", joinTags(s.CoverageGaps))
	}
	blocking := 0
	for _, t := range s.Tallies {
		blocking += t.Blocking
	}
	if blocking > 0 {
		fmt.Fprintf(&b, " Blocking findings across the run: %d.", blocking)
	}
	if notice != "" {
		b.WriteString(" " + notice)
	}
	return b.String()
}

func joinTags(tags []domain.DomainTag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
