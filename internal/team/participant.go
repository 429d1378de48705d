package team

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/blueprint-engine/internal/domain"
	"github.com/anthropics/blueprint-engine/internal/llm"
	"github.com/anthropics/blueprint-engine/internal/retrieval"
)

// Participant binds a roster entry to the reasoning client and retrieval
// index it consults when invoked.
type Participant struct {
	Ref      domain.ParticipantRef
	Client   llm.Client
	Searcher retrieval.Searcher
	SnippetK int
}

// Result is the outcome of one participant invocation. Exactly one of
// Component (producers) or Feedback (validators and auditors) is populated
// on success; Err is set on failure.
type Result struct {
	Ref          domain.ParticipantRef
	Component    *domain.DesignComponent
	Feedback     []domain.FeedbackItem
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Err          error
}

// Invoke runs one reasoning call against the snapshot. Retrieval failures
// degrade to an uninformed call; reasoning and parse failures surface
// through Result.Err. Token counts are reported even when parsing fails, so
// spend is accounted for either way.
func (p *Participant) Invoke(ctx context.Context, snap Snapshot) Result {
	res := Result{Ref: p.Ref}

	var snippets []retrieval.Snippet
	if p.Searcher != nil {
		found, err := p.Searcher.Search(ctx, retrievalQuery(p.Ref, snap), p.SnippetK)
		if err == nil {
			snippets = found
		}
	}

	resp, err := p.Client.Invoke(ctx, p.buildRequest(snap, snippets))
	if err != nil {
		res.Err = domain.WrapEngineError(
			domain.ErrReasoningCall.Code,
			fmt.Sprintf("%s: reasoning call failed", p.Ref.Name),
			err,
		)
		return res
	}
	res.InputTokens = resp.InputTokens
	res.OutputTokens = resp.OutputTokens
	res.CostUSD = resp.CostUSD

	switch p.Ref.Kind {
	case domain.KindProducer:
		res.Component, res.Err = parseComponent(p.Ref, snap, resp.Content)
	default:
		res.Feedback, res.Err = parseFindings(p.Ref, resp.Content)
	}
	return res
}

func (p *Participant) buildRequest(snap Snapshot, snippets []retrieval.Snippet) llm.Request {
	switch p.Ref.Kind {
	case domain.KindProducer:
		return producerRequest(p.Ref, snap, snippets)
	case domain.KindValidator:
		return validatorRequest(p.Ref, snap, snippets)
	default:
		return auditorRequest(p.Ref, snap, snippets)
	}
}

type componentPayload struct {
	Domain    string   `json:"domain"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Decisions []string `json:"decisions"`
}

type findingsPayload struct {
	Findings []struct {
		Domain   string `json:"domain"`
		Severity string `json:"severity"`
		Detail   string `json:"detail"`
	} `json:"findings"`
}

// parseComponent decodes a producer payload. A payload may claim a domain;
// when absent it inherits the producer's own. Ownership is checked later at
// merge time.
func parseComponent(ref domain.ParticipantRef, snap Snapshot, content string) (*domain.DesignComponent, error) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, domain.WrapEngineError(
			domain.ErrParticipantResponse.Code,
			fmt.Sprintf("%s: response contains no JSON object", ref.Name),
			err,
		)
	}

	var payload componentPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, domain.WrapEngineError(
			domain.ErrParticipantResponse.Code,
			fmt.Sprintf("%s: malformed component payload", ref.Name),
			err,
		)
	}
	if strings.TrimSpace(payload.Title) == "" || strings.TrimSpace(payload.Summary) == "" {
		return nil, domain.WrapEngineError(
			domain.ErrParticipantResponse.Code,
			fmt.Sprintf("%s: component payload missing title or summary", ref.Name),
			nil,
		)
	}

	tag := ref.Domain
	if claimed := strings.ToLower(strings.TrimSpace(payload.Domain)); claimed != "" {
		tag = domain.DomainTag(claimed)
	}
	return &domain.DesignComponent{
		Domain:    tag,
		Title:     strings.TrimSpace(payload.Title),
		Summary:   strings.TrimSpace(payload.Summary),
		Decisions: payload.Decisions,
		Producer:  ref.Name,
		Iteration: snap.Iteration,
	}, nil
}

// parseFindings decodes a validator or auditor payload. Findings without a
// domain inherit the validator's own; auditors must attribute each finding
// themselves. An empty findings array is a clean review, not an error.
func parseFindings(ref domain.ParticipantRef, content string) ([]domain.FeedbackItem, error) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, domain.WrapEngineError(
			domain.ErrParticipantResponse.Code,
			fmt.Sprintf("%s: response contains no JSON object", ref.Name),
			err,
		)
	}

	var payload findingsPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, domain.WrapEngineError(
			domain.ErrParticipantResponse.Code,
			fmt.Sprintf("%s: malformed findings payload", ref.Name),
			err,
		)
	}

	items := make([]domain.FeedbackItem, 0, len(payload.Findings))
	for _, f := range payload.Findings {
		tag := domain.DomainTag(strings.ToLower(strings.TrimSpace(f.Domain)))
		if tag == "" && ref.Kind == domain.KindValidator {
			tag = ref.Domain
		}
		items = append(items, domain.FeedbackItem{
			Domain:   tag,
			Severity: domain.Severity(strings.ToLower(strings.TrimSpace(f.Severity))),
			Detail:   strings.TrimSpace(f.Detail),
			Source:   ref.Name,
		})
	}
	return items, nil
}
