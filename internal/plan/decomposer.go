// Package plan decomposes a problem statement into per-domain task
// specifications for the Generation phase.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/blueprint-engine/internal/domain"
	"github.com/anthropics/blueprint-engine/internal/llm"
)

// Decomposer turns one problem statement into one TaskSpec per selected
// domain with a single reasoning call per decomposition event. It never
// fails: any reasoning or parsing problem degrades to generic fallback
// specs so the workflow is never blocked by planning.
type Decomposer struct {
	client llm.Client
	logger *slog.Logger
}

// NewDecomposer creates a Decomposer over the given reasoning client.
func NewDecomposer(client llm.Client, logger *slog.Logger) *Decomposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decomposer{client: client, logger: logger}
}

// Input carries everything one decomposition event depends on. Prior
// feedback and current components are included only when Iteration > 0.
type Input struct {
	Problem            string
	Provider           domain.Provider
	Domains            []domain.DomainTag
	Iteration          int
	ValidationFeedback []domain.FeedbackItem
	AuditFeedback      []domain.FeedbackItem
	Components         map[domain.DomainTag]domain.DesignComponent
}

// Decompose produces one TaskSpec per requested domain. The returned slice
// lists the domains that received a generic fallback spec because the
// reasoning call failed, was unparseable, or did not cover them; it is empty
// on a clean decomposition. The raw response is returned whenever the call
// itself succeeded, so callers can account for its usage even when the
// content was unusable; it is nil when the call failed.
func (d *Decomposer) Decompose(ctx context.Context, in Input) (map[domain.DomainTag]domain.TaskSpec, []domain.DomainTag, *llm.Response) {
	specs := make(map[domain.DomainTag]domain.TaskSpec, len(in.Domains))

	resp, err := d.client.Invoke(ctx, d.buildRequest(in))
	if err != nil {
		d.logger.Warn("decomposition call failed, using fallback tasks", "error", err)
		return d.fillFallback(specs, in), in.Domains, nil
	}

	parsed, err := parseTasks(resp.Content, in.Domains)
	if err != nil {
		d.logger.Warn("decomposition response unparseable, using fallback tasks", "error", err)
		return d.fillFallback(specs, in), in.Domains, resp
	}
	for tag, spec := range parsed {
		specs[tag] = spec
	}

	var fellBack []domain.DomainTag
	for _, tag := range in.Domains {
		if _, ok := specs[tag]; !ok {
			specs[tag] = FallbackSpec(in.Problem, tag)
			fellBack = append(fellBack, tag)
		}
	}
	if len(fellBack) > 0 {
		d.logger.Warn("decomposition response missed domains, using fallback tasks", "domains", fellBack)
	}
	return specs, fellBack, resp
}

// FallbackSpec is the minimal generic task used when decomposition cannot
// produce a real one: the problem statement verbatim, no constraints.
func FallbackSpec(problem string, tag domain.DomainTag) domain.TaskSpec {
	return domain.TaskSpec{
		Domain:      tag,
		Description: problem,
	}
}

func (d *Decomposer) fillFallback(specs map[domain.DomainTag]domain.TaskSpec, in Input) map[domain.DomainTag]domain.TaskSpec {
	for _, tag := range in.Domains {
		if _, ok := specs[tag]; !ok {
			specs[tag] = FallbackSpec(in.Problem, tag)
		}
	}
	return specs
}

const decomposerSystem = "You plan work for a team of cloud architects. " +
	"Break the problem into one task per design domain. Respond with JSON only."

func (d *Decomposer) buildRequest(in Input) llm.Request {
	var b strings.Builder

	b.WriteString("Problem:\n")
	b.WriteString(in.Problem)
	b.WriteString("\n\nCloud provider: ")
	b.WriteString(string(in.Provider))
	b.WriteString("\nDesign domains: ")
	for i, tag := range in.Domains {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(tag))
	}
	b.WriteString("\n")

	if in.Iteration > 0 {
		fmt.Fprintf(&b, "\nIteration %d. The previous attempt received the feedback below; every new task must address it.\n", in.Iteration)
		writeFeedback(&b, "Validation feedback", in.ValidationFeedback)
		writeFeedback(&b, "Audit feedback", in.AuditFeedback)
		if len(in.Components) > 0 {
			b.WriteString("\nCurrent components:\n")
			for _, tag := range in.Domains {
				if comp, ok := in.Components[tag]; ok {
					fmt.Fprintf(&b, "- %s: %s - %s\n", comp.Domain, comp.Title, comp.Summary)
				}
			}
		}
	}

	b.WriteString("\nRespond with a JSON object of the form\n")
	b.WriteString(`{"tasks":[{"domain":"...","description":"...","constraints":["..."],"deliverables":["..."]}]}`)
	b.WriteString("\ncovering every listed domain exactly once.\n")

	return llm.Request{
		System:   decomposerSystem,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	}
}

func writeFeedback(b *strings.Builder, heading string, items []domain.FeedbackItem) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n" + heading + ":\n")
	for _, item := range items {
		fmt.Fprintf(b, "- [%s] %s: %s (from %s)\n", item.Severity, item.Domain, item.Detail, item.Source)
	}
}

type taskList struct {
	Tasks []taskEntry `json:"tasks"`
}

type taskEntry struct {
	Domain       string   `json:"domain"`
	Description  string   `json:"description"`
	Constraints  []string `json:"constraints"`
	Deliverables []string `json:"deliverables"`
}

// parseTasks extracts the JSON task list from a reasoning response and keeps
// the first valid entry per requested domain. Entries for unknown or
// unrequested domains are ignored.
func parseTasks(content string, requested []domain.DomainTag) (map[domain.DomainTag]domain.TaskSpec, error) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, err
	}

	var list taskList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, domain.WrapEngineError(domain.ErrDecomposeParse.Code, "decode tasks", err)
	}

	want := make(map[domain.DomainTag]bool, len(requested))
	for _, tag := range requested {
		want[tag] = true
	}

	specs := make(map[domain.DomainTag]domain.TaskSpec)
	for _, entry := range list.Tasks {
		tag := domain.DomainTag(strings.ToLower(strings.TrimSpace(entry.Domain)))
		if !want[tag] {
			continue
		}
		if _, dup := specs[tag]; dup {
			continue
		}
		if strings.TrimSpace(entry.Description) == "" {
			continue
		}
		specs[tag] = domain.TaskSpec{
			Domain:       tag,
			Description:  entry.Description,
			Constraints:  entry.Constraints,
			Deliverables: entry.Deliverables,
		}
	}
	return specs, nil
}
