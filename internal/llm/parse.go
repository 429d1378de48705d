package llm

import (
	"strings"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// ExtractJSON returns the outermost JSON object in a model response,
// tolerating surrounding prose. Returns ErrReasoningResponse when the
// response contains no object at all.
func ExtractJSON(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", domain.NewEngineError(domain.ErrReasoningResponse.Code, "response contains no JSON object")
	}
	return content[start : end+1], nil
}
