package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Default Anthropic configuration values.
const (
	DefaultTimeout   = 5 * time.Minute
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultMaxTokens = 4096
	defaultRetries   = 5
)

// Anthropic is a Client backed by the Anthropic Messages API.
type Anthropic struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	maxTokens  int
	maxRetries int
	logger     *slog.Logger
}

// Option configures the Anthropic client.
type Option func(*Anthropic)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(a *Anthropic) {
		a.apiKey = key
	}
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(a *Anthropic) {
		a.model = model
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(a *Anthropic) {
		a.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Anthropic) {
		a.httpClient = client
	}
}

// WithMaxTokens sets the token ceiling used when a request does not name one.
func WithMaxTokens(n int) Option {
	return func(a *Anthropic) {
		a.maxTokens = n
	}
}

// WithMaxRetries sets the retry budget for rate-limited requests.
func WithMaxRetries(n int) Option {
	return func(a *Anthropic) {
		a.maxRetries = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Anthropic) {
		a.logger = logger
	}
}

// NewAnthropic creates an Anthropic client. The API key defaults to the
// ANTHROPIC_API_KEY environment variable.
func NewAnthropic(opts ...Option) *Anthropic {
	a := &Anthropic{
		apiKey:  os.Getenv("ANTHROPIC_API_KEY"),
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		model:      DefaultModel,
		maxTokens:  DefaultMaxTokens,
		maxRetries: defaultRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Model returns the configured model name.
func (a *Anthropic) Model() string {
	return a.model
}

// anthropicRequest is the API request format.
type anthropicRequest struct {
	Model     string         `json:"model"`
	Messages  []anthropicMsg `json:"messages"`
	System    string         `json:"system,omitempty"`
	MaxTokens int            `json:"max_tokens"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// anthropicResponse is the API response format.
type anthropicResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// Invoke sends one reasoning request and returns the structured response.
func (a *Anthropic) Invoke(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	apiReq := &anthropicRequest{
		Model:     a.model,
		System:    req.System,
		MaxTokens: maxTokens,
	}
	for _, m := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, anthropicMsg{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	reqID := uuid.New().String()
	start := time.Now()
	resp, err := a.doRequest(ctx, reqID, apiReq)
	if err != nil {
		return nil, err
	}
	return a.parseResponse(resp, time.Since(start)), nil
}

func (a *Anthropic) createHTTPRequest(ctx context.Context, req *anthropicRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	return httpReq, nil
}

func (a *Anthropic) doRequest(ctx context.Context, reqID string, req *anthropicRequest) (*anthropicResponse, error) {
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		httpReq, err := a.createHTTPRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		httpResp, err := a.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}

		body, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if httpResp.StatusCode == http.StatusOK {
			var resp anthropicResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, fmt.Errorf("unmarshal response: %w", err)
			}
			return &resp, nil
		}

		// Retry on 429 (rate limit) and 529 (overloaded).
		if (httpResp.StatusCode == 429 || httpResp.StatusCode == 529) && attempt < a.maxRetries {
			wait := retryAfterDelay(httpResp, attempt)
			a.logger.Warn("API rate limited, retrying",
				"request_id", reqID, "status", httpResp.StatusCode, "attempt", attempt+1, "wait", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		return nil, fmt.Errorf("API error %d: %s", httpResp.StatusCode, string(body))
	}

	return nil, fmt.Errorf("max retries exceeded")
}

// retryAfterDelay returns how long to wait before retrying a rate-limited
// request. It respects the retry-after header if present, otherwise uses
// exponential backoff capped at one minute.
func retryAfterDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("retry-after"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	wait := time.Duration(5<<uint(attempt)) * time.Second
	if wait > 60*time.Second {
		wait = 60 * time.Second
	}
	return wait
}

func (a *Anthropic) parseResponse(resp *anthropicResponse, latency time.Duration) *Response {
	result := &Response{
		RequestID:    resp.ID,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		LatencyMs:    latency.Milliseconds(),
	}
	result.CostUSD = CalculateCost(resp.Model, result.InputTokens, result.OutputTokens)

	switch resp.StopReason {
	case "end_turn":
		result.StopReason = StopEnd
	case "max_tokens":
		result.StopReason = StopLength
	case "stop_sequence":
		result.StopReason = StopStop
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			result.Content += block.Text
		}
	}
	return result
}
