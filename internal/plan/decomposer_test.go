package plan

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/anthropics/blueprint-engine/internal/domain"
	"github.com/anthropics/blueprint-engine/internal/llm"
)

type stubClient struct {
	content string
	err     error
	calls   int
	lastReq llm.Request
}

func (s *stubClient) Invoke(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content, StopReason: llm.StopEnd}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDecompose_ParsesTasks(t *testing.T) {
	stub := &stubClient{content: `Here is the plan:
{"tasks":[
  {"domain":"compute","description":"Size the web tier","constraints":["autoscaling"],"deliverables":["instance plan"]},
  {"domain":"storage","description":"Design the object store","constraints":[],"deliverables":["bucket layout"]}
]}`}
	d := NewDecomposer(stub, testLogger())

	specs, fellBack, resp := d.Decompose(context.Background(), Input{
		Problem:  "host a photo sharing site",
		Provider: domain.ProviderAWS,
		Domains:  []domain.DomainTag{domain.DomainCompute, domain.DomainStorage},
	})

	if len(fellBack) != 0 {
		t.Errorf("expected no fallback domains, got %v", fellBack)
	}
	if resp == nil {
		t.Error("expected the raw response for usage accounting")
	}
	if stub.calls != 1 {
		t.Errorf("expected exactly one reasoning call, got %d", stub.calls)
	}
	compute, ok := specs[domain.DomainCompute]
	if !ok {
		t.Fatal("missing compute spec")
	}
	if compute.Description != "Size the web tier" {
		t.Errorf("compute description = %q", compute.Description)
	}
	if !reflect.DeepEqual(compute.Constraints, []string{"autoscaling"}) {
		t.Errorf("compute constraints = %v", compute.Constraints)
	}
	if _, ok := specs[domain.DomainStorage]; !ok {
		t.Error("missing storage spec")
	}
}

func TestDecompose_FallbackOnError(t *testing.T) {
	stub := &stubClient{err: errors.New("api down")}
	d := NewDecomposer(stub, testLogger())

	domains := []domain.DomainTag{domain.DomainCompute, domain.DomainNetwork}
	specs, fellBack, resp := d.Decompose(context.Background(), Input{
		Problem:  "host a blog",
		Provider: domain.ProviderAzure,
		Domains:  domains,
	})

	if !reflect.DeepEqual(fellBack, domains) {
		t.Errorf("fallback domains = %v, want %v", fellBack, domains)
	}
	if resp != nil {
		t.Error("failed call should return no response")
	}
	for _, tag := range domains {
		spec, ok := specs[tag]
		if !ok {
			t.Fatalf("missing fallback spec for %s", tag)
		}
		if spec.Description != "host a blog" {
			t.Errorf("fallback description = %q, want problem verbatim", spec.Description)
		}
		if len(spec.Constraints) != 0 {
			t.Errorf("fallback spec for %s has constraints %v", tag, spec.Constraints)
		}
	}
}

func TestDecompose_FallbackOnUnparseable(t *testing.T) {
	stub := &stubClient{content: "I would rather talk about something else."}
	d := NewDecomposer(stub, testLogger())

	specs, fellBack, resp := d.Decompose(context.Background(), Input{
		Problem: "store 5 TB of data",
		Domains: []domain.DomainTag{domain.DomainStorage},
	})

	if len(fellBack) != 1 || fellBack[0] != domain.DomainStorage {
		t.Errorf("fallback domains = %v", fellBack)
	}
	if resp == nil {
		t.Error("unparseable content still consumed tokens, want the response back")
	}
	if specs[domain.DomainStorage].Description != "store 5 TB of data" {
		t.Errorf("fallback description = %q", specs[domain.DomainStorage].Description)
	}
}

func TestDecompose_PartialCoverage(t *testing.T) {
	stub := &stubClient{content: `{"tasks":[{"domain":"compute","description":"Plan the servers"}]}`}
	d := NewDecomposer(stub, testLogger())

	specs, fellBack, _ := d.Decompose(context.Background(), Input{
		Problem: "run a service",
		Domains: []domain.DomainTag{domain.DomainCompute, domain.DomainNetwork},
	})

	if specs[domain.DomainCompute].Description != "Plan the servers" {
		t.Errorf("compute description = %q", specs[domain.DomainCompute].Description)
	}
	if len(fellBack) != 1 || fellBack[0] != domain.DomainNetwork {
		t.Errorf("fallback domains = %v, want [network]", fellBack)
	}
	if specs[domain.DomainNetwork].Description != "run a service" {
		t.Errorf("network fallback description = %q", specs[domain.DomainNetwork].Description)
	}
}

func TestDecompose_IgnoresUnknownAndDuplicate(t *testing.T) {
	stub := &stubClient{content: `{"tasks":[
  {"domain":"mainframe","description":"not a real domain"},
  {"domain":"compute","description":"first"},
  {"domain":"compute","description":"second"},
  {"domain":"network","description":""}
]}`}
	d := NewDecomposer(stub, testLogger())

	specs, fellBack, _ := d.Decompose(context.Background(), Input{
		Problem: "p",
		Domains: []domain.DomainTag{domain.DomainCompute, domain.DomainNetwork},
	})

	if specs[domain.DomainCompute].Description != "first" {
		t.Errorf("compute description = %q, want first entry to win", specs[domain.DomainCompute].Description)
	}
	// Empty description is invalid, so network falls back.
	if len(fellBack) != 1 || fellBack[0] != domain.DomainNetwork {
		t.Errorf("fallback domains = %v, want [network]", fellBack)
	}
}

func TestDecompose_Idempotent(t *testing.T) {
	const content = `{"tasks":[{"domain":"database","description":"Pick an engine","constraints":["managed"],"deliverables":["schema"]}]}`
	in := Input{
		Problem:  "need a database",
		Provider: domain.ProviderAWS,
		Domains:  []domain.DomainTag{domain.DomainDatabase},
	}

	d1 := NewDecomposer(&stubClient{content: content}, testLogger())
	d2 := NewDecomposer(&stubClient{content: content}, testLogger())

	first, _, _ := d1.Decompose(context.Background(), in)
	second, _, _ := d2.Decompose(context.Background(), in)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("decomposition not idempotent:\n%v\n%v", first, second)
	}
}

func TestDecompose_ContextPayload(t *testing.T) {
	stub := &stubClient{content: `{"tasks":[{"domain":"storage","description":"d"}]}`}
	d := NewDecomposer(stub, testLogger())

	d.Decompose(context.Background(), Input{
		Problem:   "store files",
		Provider:  domain.ProviderAWS,
		Domains:   []domain.DomainTag{domain.DomainStorage},
		Iteration: 1,
		ValidationFeedback: []domain.FeedbackItem{
			{Domain: domain.DomainStorage, Severity: domain.SeverityBlocking, Detail: "wrong durability class", Source: "storage-validator"},
		},
		Components: map[domain.DomainTag]domain.DesignComponent{
			domain.DomainStorage: {Domain: domain.DomainStorage, Title: "Object store", Summary: "single bucket"},
		},
	})

	payload := stub.lastReq.Messages[0].Content
	for _, want := range []string{"store files", "aws", "wrong durability class", "Object store", "Iteration 1"} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload missing %q:\n%s", want, payload)
		}
	}

	// Iteration 0 payloads carry no feedback section.
	stub2 := &stubClient{content: `{"tasks":[{"domain":"storage","description":"d"}]}`}
	d2 := NewDecomposer(stub2, testLogger())
	d2.Decompose(context.Background(), Input{
		Problem: "store files",
		Domains: []domain.DomainTag{domain.DomainStorage},
	})
	if strings.Contains(stub2.lastReq.Messages[0].Content, "feedback") {
		t.Error("iteration 0 payload should not mention feedback")
	}
}
