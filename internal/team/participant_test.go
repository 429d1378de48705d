package team

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/blueprint-engine/internal/domain"
	"github.com/anthropics/blueprint-engine/internal/llm"
	"github.com/anthropics/blueprint-engine/internal/retrieval"
)

type stubClient struct {
	mu      sync.Mutex
	content string
	err     error
	cost    float64
	inTok   int64
	outTok  int64
	calls   int
	lastReq llm.Request
}

func (s *stubClient) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.calls++
	s.lastReq = req
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{
		Content:      s.content,
		StopReason:   llm.StopEnd,
		InputTokens:  s.inTok,
		OutputTokens: s.outTok,
		CostUSD:      s.cost,
	}, nil
}

func producerRef(tag domain.DomainTag) domain.ParticipantRef {
	return domain.ParticipantRef{Name: string(tag) + "-architect", Kind: domain.KindProducer, Domain: tag}
}

func validatorRef(tag domain.DomainTag) domain.ParticipantRef {
	return domain.ParticipantRef{Name: string(tag) + "-validator", Kind: domain.KindValidator, Domain: tag}
}

func auditorRef(pillar domain.DomainTag) domain.ParticipantRef {
	return domain.ParticipantRef{Name: string(pillar) + "-auditor", Kind: domain.KindAuditor, Domain: pillar}
}

func TestInvoke_Producer(t *testing.T) {
	stub := &stubClient{
		content: `{"title":"Object storage","summary":"S3 with lifecycle rules","decisions":["versioning on","IA after 30 days"]}`,
		cost:    0.02,
		inTok:   120,
		outTok:  300,
	}
	p := &Participant{Ref: producerRef(domain.DomainStorage), Client: stub}
	snap := Snapshot{RunID: "run-1", Problem: "store files", Provider: domain.ProviderAWS, Iteration: 2,
		Task: &domain.TaskSpec{Domain: domain.DomainStorage, Description: "design storage"}}

	res := p.Invoke(context.Background(), snap)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	comp := res.Component
	if comp == nil {
		t.Fatal("expected a component")
	}
	if comp.Domain != domain.DomainStorage {
		t.Errorf("Domain = %q, want storage", comp.Domain)
	}
	if comp.Title != "Object storage" {
		t.Errorf("Title = %q", comp.Title)
	}
	if comp.Producer != "storage-architect" {
		t.Errorf("Producer = %q", comp.Producer)
	}
	if comp.Iteration != 2 {
		t.Errorf("Iteration = %d, want 2", comp.Iteration)
	}
	if len(comp.Decisions) != 2 {
		t.Errorf("Decisions = %v", comp.Decisions)
	}
	if res.CostUSD != 0.02 || res.InputTokens != 120 || res.OutputTokens != 300 {
		t.Errorf("usage not copied: %+v", res)
	}
}

func TestInvoke_ProducerClaimedDomain(t *testing.T) {
	stub := &stubClient{content: `{"domain":"network","title":"T","summary":"S"}`}
	p := &Participant{Ref: producerRef(domain.DomainStorage), Client: stub}

	res := p.Invoke(context.Background(), Snapshot{})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Component.Domain != domain.DomainNetwork {
		t.Errorf("claimed domain should be kept, got %q", res.Component.Domain)
	}
}

func TestInvoke_Validator(t *testing.T) {
	stub := &stubClient{
		content: `{"findings":[{"severity":"blocking","detail":"wrong durability class"},{"domain":"storage","severity":"advisory","detail":"consider IA tier"}]}`,
	}
	p := &Participant{Ref: validatorRef(domain.DomainStorage), Client: stub}

	res := p.Invoke(context.Background(), Snapshot{})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Feedback) != 2 {
		t.Fatalf("got %d findings, want 2", len(res.Feedback))
	}
	first := res.Feedback[0]
	if first.Domain != domain.DomainStorage {
		t.Errorf("empty finding domain should inherit the validator's, got %q", first.Domain)
	}
	if first.Severity != domain.SeverityBlocking {
		t.Errorf("Severity = %q", first.Severity)
	}
	if first.Source != "storage-validator" {
		t.Errorf("Source = %q", first.Source)
	}
}

func TestInvoke_AuditorKeepsEmptyDomain(t *testing.T) {
	stub := &stubClient{content: `{"findings":[{"severity":"advisory","detail":"no tagging policy"}]}`}
	p := &Participant{Ref: auditorRef(domain.PillarCost), Client: stub}

	res := p.Invoke(context.Background(), Snapshot{})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Feedback[0].Domain != "" {
		t.Errorf("auditor findings must attribute their own domain, got %q", res.Feedback[0].Domain)
	}
}

func TestInvoke_EmptyFindingsIsClean(t *testing.T) {
	stub := &stubClient{content: `{"findings":[]}`}
	p := &Participant{Ref: validatorRef(domain.DomainCompute), Client: stub}

	res := p.Invoke(context.Background(), Snapshot{})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(res.Feedback) != 0 {
		t.Errorf("expected no findings, got %v", res.Feedback)
	}
}

func TestInvoke_ClientError(t *testing.T) {
	stub := &stubClient{err: context.DeadlineExceeded}
	p := &Participant{Ref: producerRef(domain.DomainCompute), Client: stub}

	res := p.Invoke(context.Background(), Snapshot{})
	if res.Err == nil {
		t.Fatal("expected an error")
	}
	engErr, ok := res.Err.(*domain.EngineError)
	if !ok {
		t.Fatalf("expected *domain.EngineError, got %T", res.Err)
	}
	if engErr.Code != domain.ErrReasoningCall.Code {
		t.Errorf("code = %d, want %d", engErr.Code, domain.ErrReasoningCall.Code)
	}
}

func TestInvoke_UnparseableResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		ref     domain.ParticipantRef
	}{
		{name: "producer prose", content: "here is my design", ref: producerRef(domain.DomainCompute)},
		{name: "producer missing title", content: `{"summary":"only a summary"}`, ref: producerRef(domain.DomainCompute)},
		{name: "validator prose", content: "looks good to me", ref: validatorRef(domain.DomainCompute)},
		{name: "validator wrong shape", content: `{"findings":"none"}`, ref: validatorRef(domain.DomainCompute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubClient{content: tt.content, outTok: 50}
			p := &Participant{Ref: tt.ref, Client: stub}
			res := p.Invoke(context.Background(), Snapshot{})
			if res.Err == nil {
				t.Fatal("expected an error")
			}
			engErr, ok := res.Err.(*domain.EngineError)
			if !ok {
				t.Fatalf("expected *domain.EngineError, got %T", res.Err)
			}
			if engErr.Code != domain.ErrParticipantResponse.Code {
				t.Errorf("code = %d, want %d", engErr.Code, domain.ErrParticipantResponse.Code)
			}
			if res.OutputTokens != 50 {
				t.Errorf("usage should be reported even on parse failure, got %d", res.OutputTokens)
			}
		})
	}
}

type failingSearcher struct{}

func (failingSearcher) Search(ctx context.Context, query string, k int) ([]retrieval.Snippet, error) {
	return nil, context.DeadlineExceeded
}

func TestInvoke_RetrievalFailureDegrades(t *testing.T) {
	stub := &stubClient{content: `{"title":"T","summary":"S"}`}
	p := &Participant{Ref: producerRef(domain.DomainCompute), Client: stub, Searcher: failingSearcher{}}

	res := p.Invoke(context.Background(), Snapshot{Problem: "p"})
	if res.Err != nil {
		t.Fatalf("retrieval failure must not fail the call: %v", res.Err)
	}
	if strings.Contains(stub.lastReq.Messages[0].Content, "Reference notes") {
		t.Error("payload should carry no reference notes when retrieval fails")
	}
}

func TestInvoke_SnippetsInPayload(t *testing.T) {
	index := retrieval.NewMemoryIndex([]retrieval.Document{
		{Source: "s3", Text: "S3 offers eleven nines of durability for object storage"},
	})
	stub := &stubClient{content: `{"title":"T","summary":"S"}`}
	p := &Participant{Ref: producerRef(domain.DomainStorage), Client: stub, Searcher: index, SnippetK: 3}

	res := p.Invoke(context.Background(), Snapshot{Problem: "durable object storage"})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	payload := stub.lastReq.Messages[0].Content
	if !strings.Contains(payload, "Reference notes:") || !strings.Contains(payload, "(s3)") {
		t.Errorf("payload missing retrieval snippets:\n%s", payload)
	}
}

func TestProducerRequest_Content(t *testing.T) {
	snap := Snapshot{
		Problem:   "store files",
		Provider:  domain.ProviderAWS,
		Iteration: 1,
		Task: &domain.TaskSpec{
			Domain:       domain.DomainStorage,
			Description:  "design the storage layer",
			Constraints:  []string{"encrypt at rest"},
			Deliverables: []string{"bucket layout"},
		},
		PriorFeedback: []domain.FeedbackItem{
			{Domain: domain.DomainStorage, Severity: domain.SeverityBlocking, Detail: "wrong storage class", Source: "storage-validator"},
		},
	}
	req := producerRequest(producerRef(domain.DomainStorage), snap, nil)

	if req.System != producerSystem {
		t.Error("wrong system prompt")
	}
	body := req.Messages[0].Content
	for _, want := range []string{
		"Problem: store files",
		"Target provider: aws",
		"Your domain: storage",
		"Task: design the storage layer",
		"Constraint: encrypt at rest",
		"Deliverable: bucket layout",
		"Feedback to address:",
		"wrong storage class",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("payload missing %q:\n%s", want, body)
		}
	}
}

func TestValidatorRequest_Content(t *testing.T) {
	snap := Snapshot{
		Problem:  "store files",
		Provider: domain.ProviderAWS,
		Component: &domain.DesignComponent{
			Domain:    domain.DomainStorage,
			Title:     "Object storage",
			Summary:   "S3 with lifecycle rules",
			Decisions: []string{"versioning on"},
		},
	}
	req := validatorRequest(validatorRef(domain.DomainStorage), snap, nil)

	if req.System != validatorSystem {
		t.Error("wrong system prompt")
	}
	body := req.Messages[0].Content
	for _, want := range []string{"Component under review:", "[storage] Object storage", "versioning on"} {
		if !strings.Contains(body, want) {
			t.Errorf("payload missing %q:\n%s", want, body)
		}
	}
}

func TestAuditorRequest_Content(t *testing.T) {
	snap := Snapshot{
		Problem:  "store files",
		Provider: domain.ProviderAzure,
		Components: []domain.DesignComponent{
			{Domain: domain.DomainStorage, Title: "Blob storage", Summary: "hot and cool tiers"},
			{Domain: domain.DomainCompute, Title: "App service", Summary: "two instances"},
		},
	}
	req := auditorRequest(auditorRef(domain.PillarSecurity), snap, nil)

	if req.System != auditorSystem {
		t.Error("wrong system prompt")
	}
	body := req.Messages[0].Content
	for _, want := range []string{
		"Your pillar: security",
		"Design under review:",
		"[storage] Blob storage",
		"[compute] App service",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("payload missing %q:\n%s", want, body)
		}
	}
}
