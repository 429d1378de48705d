package review

import "github.com/anthropics/blueprint-engine/internal/domain"

// Tally aggregates feedback items into per-tag severity counts for the
// terminal summary. Tags appear in canonical order (design domains, then
// auditor pillars, then anything else by first occurrence); tags with no
// feedback are omitted.
func Tally(items []domain.FeedbackItem) []domain.FeedbackTally {
	if len(items) == 0 {
		return nil
	}

	counts := make(map[domain.DomainTag]*domain.FeedbackTally)
	var extra []domain.DomainTag

	order := append(domain.AllDomains(), domain.AllPillars()...)
	known := make(map[domain.DomainTag]bool, len(order))
	for _, tag := range order {
		known[tag] = true
	}

	for _, item := range items {
		t, ok := counts[item.Domain]
		if !ok {
			t = &domain.FeedbackTally{Domain: item.Domain}
			counts[item.Domain] = t
			if !known[item.Domain] {
				extra = append(extra, item.Domain)
			}
		}
		switch item.Severity {
		case domain.SeverityBlocking:
			t.Blocking++
		default:
			t.Advisory++
		}
	}

	var out []domain.FeedbackTally
	for _, tag := range append(order, extra...) {
		if t, ok := counts[tag]; ok {
			out = append(out, *t)
		}
	}
	return out
}
