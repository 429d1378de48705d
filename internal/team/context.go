package team

import (
	"fmt"
	"strings"

	"github.com/anthropics/blueprint-engine/internal/domain"
	"github.com/anthropics/blueprint-engine/internal/llm"
	"github.com/anthropics/blueprint-engine/internal/retrieval"
)

// Snapshot is the read-only slice of workflow state handed to one
// participant invocation. Each invocation receives its own copy, so
// concurrent participants never observe each other's writes.
type Snapshot struct {
	RunID     string
	Problem   string
	Provider  domain.Provider
	Iteration int

	// Task is set for producers only.
	Task *domain.TaskSpec
	// Component is the unit under review, set for validators only.
	Component *domain.DesignComponent
	// Components is the full design under review, set for auditors only.
	Components []domain.DesignComponent
	// PriorFeedback holds unresolved findings addressed to this participant's
	// domain.
	PriorFeedback []domain.FeedbackItem
}

const producerSystem = "You are a cloud architect responsible for one domain of a larger design. " +
	"Respond with a single JSON object: {\"title\": string, \"summary\": string, \"decisions\": [string, ...]}. " +
	"Keep the title short and make every decision concrete enough to act on. " +
	"Do not include any text outside the JSON object."

const validatorSystem = "You are a technical validator checking one component of a cloud design for factual errors. " +
	"Respond with a single JSON object: {\"findings\": [{\"domain\": string, \"severity\": \"blocking\"|\"advisory\", \"detail\": string}, ...]}. " +
	"Report only real problems; an empty findings array means the component is sound. " +
	"Do not include any text outside the JSON object."

const auditorSystem = "You are an auditor reviewing a complete cloud design through the lens of a single quality pillar. " +
	"Respond with a single JSON object: {\"findings\": [{\"domain\": string, \"severity\": \"blocking\"|\"advisory\", \"detail\": string}, ...]}. " +
	"Attribute every finding to the design domain it concerns; an empty findings array means the design passes. " +
	"Do not include any text outside the JSON object."

func producerRequest(ref domain.ParticipantRef, snap Snapshot, snippets []retrieval.Snippet) llm.Request {
	var b strings.Builder
	writeHeader(&b, ref, snap)
	if snap.Task != nil {
		fmt.Fprintf(&b, "\nTask: %s\n", snap.Task.Description)
		for _, c := range snap.Task.Constraints {
			fmt.Fprintf(&b, "Constraint: %s\n", c)
		}
		for _, d := range snap.Task.Deliverables {
			fmt.Fprintf(&b, "Deliverable: %s\n", d)
		}
	}
	writePriorFeedback(&b, snap.PriorFeedback)
	writeSnippets(&b, snippets)
	return llm.Request{
		System:   producerSystem,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	}
}

func validatorRequest(ref domain.ParticipantRef, snap Snapshot, snippets []retrieval.Snippet) llm.Request {
	var b strings.Builder
	writeHeader(&b, ref, snap)
	if snap.Component != nil {
		b.WriteString("\nComponent under review:\n")
		writeComponent(&b, *snap.Component)
	}
	writePriorFeedback(&b, snap.PriorFeedback)
	writeSnippets(&b, snippets)
	return llm.Request{
		System:   validatorSystem,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	}
}

func auditorRequest(ref domain.ParticipantRef, snap Snapshot, snippets []retrieval.Snippet) llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n", snap.Problem)
	fmt.Fprintf(&b, "Target provider: %s\n", snap.Provider)
	fmt.Fprintf(&b, "Your pillar: %s\n", ref.Domain)
	if len(snap.Components) > 0 {
		b.WriteString("\nDesign under review:\n")
		for _, comp := range snap.Components {
			b.WriteString("\n")
			writeComponent(&b, comp)
		}
	}
	writeSnippets(&b, snippets)
	return llm.Request{
		System:   auditorSystem,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	}
}

func writeHeader(b *strings.Builder, ref domain.ParticipantRef, snap Snapshot) {
	fmt.Fprintf(b, "Problem: %s\n", snap.Problem)
	fmt.Fprintf(b, "Target provider: %s\n", snap.Provider)
	fmt.Fprintf(b, "Your domain: %s\n", ref.Domain)
}

func writeComponent(b *strings.Builder, comp domain.DesignComponent) {
	fmt.Fprintf(b, "[%s] %s\n", comp.Domain, comp.Title)
	fmt.Fprintf(b, "%s\n", comp.Summary)
	for _, d := range comp.Decisions {
		fmt.Fprintf(b, "- %s\n", d)
	}
}

func writePriorFeedback(b *strings.Builder, items []domain.FeedbackItem) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\nFeedback to address:\n")
	for _, it := range items {
		fmt.Fprintf(b, "- [%s] %s: %s\n", it.Severity, it.Source, it.Detail)
	}
}

func writeSnippets(b *strings.Builder, snippets []retrieval.Snippet) {
	if len(snippets) == 0 {
		return
	}
	b.WriteString("\nReference notes:\n")
	for _, s := range snippets {
		fmt.Fprintf(b, "- (%s) %s\n", s.Source, s.Text)
	}
}

// retrievalQuery assembles the search text for a participant invocation from
// its domain, the problem statement, and the assigned task if any.
func retrievalQuery(ref domain.ParticipantRef, snap Snapshot) string {
	parts := []string{string(ref.Domain), snap.Problem}
	if snap.Task != nil {
		parts = append(parts, snap.Task.Description)
	}
	return strings.Join(parts, " ")
}
