// Package review validates and aggregates participant feedback.
package review

import (
	"fmt"
	"strings"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// SchemaValidator validates FeedbackItem fields against the feedback schema.
type SchemaValidator struct{}

var validSeverities = map[domain.Severity]bool{
	domain.SeverityBlocking: true,
	domain.SeverityAdvisory: true,
}

// Validate checks all fields of the given FeedbackItem and returns an error
// listing all violations if any are found.
func (v *SchemaValidator) Validate(item domain.FeedbackItem) error {
	var violations []string

	if item.Domain == "" {
		violations = append(violations, "Domain must be non-empty")
	}
	if !validSeverities[item.Severity] {
		violations = append(violations, fmt.Sprintf("Severity %q is not valid; must be blocking or advisory", item.Severity))
	}
	if strings.TrimSpace(item.Detail) == "" {
		violations = append(violations, "Detail must be non-empty")
	}
	if item.Source == "" {
		violations = append(violations, "Source must be non-empty")
	}

	if len(violations) > 0 {
		msg := strings.Join(violations, "; ")
		return domain.NewEngineError(domain.ErrFeedbackInvalid.Code, msg)
	}
	return nil
}
