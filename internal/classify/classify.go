// Package classify selects the design domains a problem statement concerns.
package classify

import (
	"strings"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// Classifier matches problem text against a trigger vocabulary.
// It is pure and deterministic; the zero-cost safe default is the full
// domain set.
type Classifier struct {
	vocab Vocabulary
}

// NewClassifier creates a Classifier over the given vocabulary.
// A nil vocabulary falls back to the built-in defaults.
func NewClassifier(vocab Vocabulary) *Classifier {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Classifier{vocab: vocab}
}

// Classify maps a problem statement to the subset of design domains it
// concerns. A domain is selected when any of its trigger terms appears as a
// case-insensitive substring of the problem text. An empty match set selects
// every domain so that coverage is never silently dropped. The result is
// ordered by the canonical taxonomy order.
func (c *Classifier) Classify(problem string) []domain.DomainTag {
	text := strings.ToLower(problem)

	var selected []domain.DomainTag
	for _, d := range domain.AllDomains() {
		for _, term := range c.vocab[d] {
			if strings.Contains(text, term) {
				selected = append(selected, d)
				break
			}
		}
	}
	if len(selected) == 0 {
		return domain.AllDomains()
	}
	return selected
}

// Matches reports whether the problem text triggers the given domain.
func (c *Classifier) Matches(problem string, d domain.DomainTag) bool {
	text := strings.ToLower(problem)
	for _, term := range c.vocab[d] {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
