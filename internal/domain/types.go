// Package domain defines the core types for the Blueprint Engine workflow.
package domain

// Phase represents a state of the design workflow state machine.
type Phase string

const (
	PhaseGeneration         Phase = "generation"
	PhaseValidation         Phase = "validation"
	PhaseFactualCheck       Phase = "factual_check"
	PhaseAudit              Phase = "audit"
	PhaseArchitecturalCheck Phase = "architectural_check"
	PhaseCompleted          Phase = "completed"
)

// RunStatus represents the lifecycle status of a run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "completed"
	RunFailed  RunStatus = "failed"
)

// Result classifies the terminal outcome of a run.
type Result string

const (
	ResultApproved        Result = "approved"
	ResultBudgetExhausted Result = "budget_exhausted"
	ResultInputRejected   Result = "input_rejected"
)

// DomainTag identifies one architectural concern area, or the pillar an
// auditor reports under.
type DomainTag string

const (
	DomainCompute  DomainTag = "compute"
	DomainNetwork  DomainTag = "network"
	DomainStorage  DomainTag = "storage"
	DomainDatabase DomainTag = "database"
)

const (
	PillarSecurity              DomainTag = "security"
	PillarCost                  DomainTag = "cost"
	PillarReliability           DomainTag = "reliability"
	PillarPerformance           DomainTag = "performance"
	PillarOperationalExcellence DomainTag = "operational_excellence"
)

// AllDomains returns the design-domain taxonomy in canonical order.
func AllDomains() []DomainTag {
	return []DomainTag{DomainCompute, DomainNetwork, DomainStorage, DomainDatabase}
}

// AllPillars returns the auditor pillars in canonical order.
func AllPillars() []DomainTag {
	return []DomainTag{PillarSecurity, PillarCost, PillarReliability, PillarPerformance, PillarOperationalExcellence}
}

// Provider selects the cloud vocabulary used by decomposition and participants.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
)

// KnownProvider reports whether p is a recognized provider value.
func KnownProvider(p Provider) bool {
	return p == ProviderAWS || p == ProviderAzure
}

// Severity classifies how strongly a feedback item gates progress.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityAdvisory Severity = "advisory"
)

// LoopCause records why the workflow looped back to Generation.
type LoopCause string

const (
	LoopNone         LoopCause = "none"
	LoopFactualError LoopCause = "factual_error"
	LoopDesignFlaw   LoopCause = "design_flaw"
)

// ParticipantKind distinguishes the three participant roles.
type ParticipantKind string

const (
	KindProducer  ParticipantKind = "producer"
	KindValidator ParticipantKind = "validator"
	KindAuditor   ParticipantKind = "auditor"
)

// ParticipantRef identifies one registered participant.
// Domain is the design domain for producers and validators, and the pillar
// for auditors.
type ParticipantRef struct {
	Name   string
	Kind   ParticipantKind
	Domain DomainTag
}

// TaskSpec describes what one domain's producer must deliver in a Generation
// phase. Immutable once created; fully replaced on the next decomposition.
type TaskSpec struct {
	Domain       DomainTag
	Description  string
	Constraints  []string
	Deliverables []string
}

// DesignComponent is the latest accepted output for one domain. Entries are
// only ever replaced by a later Generation phase, never deleted.
type DesignComponent struct {
	Domain    DomainTag
	Title     string
	Summary   string
	Decisions []string
	Producer  string
	Iteration int
}

// FeedbackItem is one finding from a validator or auditor. Never mutated
// after creation.
type FeedbackItem struct {
	Domain    DomainTag
	Severity  Severity
	Detail    string
	Source    string
	Phase     Phase
	Iteration int
}

// WorkflowState is the single mutable record threaded through one run.
// It is owned by the phase controller and written only by the aggregator
// between fan-out barriers; in-flight participants see value snapshots.
type WorkflowState struct {
	RunID          string
	Problem        string
	Provider       Provider
	Iteration      int
	IterationLimit int

	// ActiveDomains is selected once at iteration 0 and reused by every
	// later iteration.
	ActiveDomains []DomainTag

	// TaskAssignments is fully replaced at the start of each Generation.
	TaskAssignments map[DomainTag]TaskSpec

	// DesignComponents persists across iterations; replace-only per domain.
	DesignComponents map[DomainTag]DesignComponent

	// ValidationFeedback and AuditFeedback hold only the current phase's
	// findings; FeedbackLog accumulates every finding across the run.
	ValidationFeedback []FeedbackItem
	AuditFeedback      []FeedbackItem
	FeedbackLog        []FeedbackItem

	// Failed records domains (and auditor pillars) whose participant errored
	// or timed out in the most recent batch that covered them.
	Failed map[DomainTag]bool

	LoopCause       LoopCause
	Phase           Phase
	BudgetExhausted bool

	// StateVersion and LastEventSeq mirror the persisted run row for
	// optimistic updates and event ordering.
	StateVersion int64
	LastEventSeq int64

	Summary *RunSummary
}

// FeedbackTally counts feedback items by severity for one domain or pillar.
type FeedbackTally struct {
	Domain   DomainTag
	Blocking int
	Advisory int
}

// RunSummary is the terminal view assembled when a run completes.
type RunSummary struct {
	RunID           string
	Result          Result
	BudgetExhausted bool
	Iterations      int
	Provider        Provider
	Components      []DesignComponent
	CoverageGaps    []DomainTag
	Feedback        []FeedbackItem
	Tallies         []FeedbackTally
	Overview        string
	CreatedAtUnix   int64
}

// RunRecord is the persisted row for one run.
type RunRecord struct {
	RunID         string
	Problem       string
	Provider      Provider
	Status        RunStatus
	Phase         Phase
	Iteration     int
	StateVersion  int64
	SummaryJSON   string
	CreatedAtUnix int64
	UpdatedAtUnix int64
}

// WorkflowEvent represents an event in a run's append-only event log.
type WorkflowEvent struct {
	ID          int64
	RunID       string
	SeqNo       int64
	Phase       Phase
	EventType   string
	PayloadJSON string
	CreatedAt   int64
}

// PhaseSnapshot captures the workflow state at a phase boundary.
type PhaseSnapshot struct {
	ID           int64
	RunID        string
	Phase        Phase
	Iteration    int
	SnapshotJSON string
	Checksum     string
	CreatedAt    int64
}

// CostDelta records the spend of one reasoning call.
type CostDelta struct {
	RunID        string
	Caller       string
	Phase        Phase
	InputTokens  int64
	OutputTokens int64
	AmountUSD    float64
	CreatedAt    int64
}

// CostAction is the decision from the spend governor.
type CostAction string

const (
	CostContinue CostAction = "continue"
	CostWarn     CostAction = "warn"
	CostHalt     CostAction = "halt"
)
