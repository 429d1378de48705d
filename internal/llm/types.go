// Package llm provides the reasoning-capability boundary and its Anthropic
// backend.
package llm

import "context"

// Client is the reasoning capability the workflow depends on. One call per
// decomposition event and per participant invocation; the orchestration
// layer never retries a failed call, it records the failure and moves on.
type Client interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Role identifies the message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents one turn in a reasoning request.
type Message struct {
	Role    Role
	Content string
}

// Request is a single reasoning invocation.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
}

// StopReason indicates why generation stopped.
type StopReason string

const (
	StopEnd    StopReason = "end_turn"
	StopLength StopReason = "max_tokens"
	StopStop   StopReason = "stop_sequence"
)

// Response is the structured result of one reasoning call.
type Response struct {
	RequestID    string
	Content      string
	StopReason   StopReason
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	LatencyMs    int64
}

// Model pricing for cost calculation (USD per 1M tokens).
var modelPricing = map[string]struct {
	InputPer1M  float64
	OutputPer1M float64
}{
	"claude-sonnet-4-20250514":   {3.00, 15.00},
	"claude-opus-4-20250514":     {15.00, 75.00},
	"claude-3-5-sonnet-20241022": {3.00, 15.00},
	"claude-3-haiku-20240307":    {0.25, 1.25},
}

// CalculateCost calculates the USD cost of a request.
// Unknown models fall back to sonnet pricing.
func CalculateCost(model string, inputTokens, outputTokens int64) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		pricing = modelPricing["claude-sonnet-4-20250514"]
	}
	inputCost := float64(inputTokens) / 1_000_000 * pricing.InputPer1M
	outputCost := float64(outputTokens) / 1_000_000 * pricing.OutputPer1M
	return inputCost + outputCost
}
