package review

import (
	"fmt"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// BlockerChecker inspects feedback for blocking findings that must be
// resolved before the workflow can leave a review loop.
type BlockerChecker struct{}

// Check examines all items for blocking severity.
// It returns whether any blocking finding was found and the list of reasons.
func (c *BlockerChecker) Check(items []domain.FeedbackItem) (blocking bool, reasons []string) {
	for _, item := range items {
		if item.Severity == domain.SeverityBlocking {
			reasons = append(reasons, fmt.Sprintf(
				"%s: %s: %s", item.Source, item.Domain, item.Detail))
		}
	}
	return len(reasons) > 0, reasons
}
