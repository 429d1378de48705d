// Package workflow drives design runs through the phase machine: generation,
// validation, factual check, audit, and architectural check, with bounded
// refinement loops back to generation before a run completes.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anthropics/blueprint-engine/internal/classify"
	"github.com/anthropics/blueprint-engine/internal/domain"
	"github.com/anthropics/blueprint-engine/internal/guard"
	"github.com/anthropics/blueprint-engine/internal/llm"
	"github.com/anthropics/blueprint-engine/internal/plan"
	"github.com/anthropics/blueprint-engine/internal/retrieval"
	"github.com/anthropics/blueprint-engine/internal/review"
	"github.com/anthropics/blueprint-engine/internal/store"
	"github.com/anthropics/blueprint-engine/internal/team"
)

const (
	// DefaultIterationLimit bounds refinement loops per run.
	DefaultIterationLimit = 5

	// DefaultParticipantTimeout bounds one reasoning call.
	DefaultParticipantTimeout = 60 * time.Second
)

// Notices recorded when a run must proceed with unresolved blocking feedback.
const (
	noticeIterationsExhausted = "Maximum iterations reached. Forcing completion with current architecture."
	noticeSpendExhausted      = "Spend budget exhausted. Forcing completion with current architecture."
)

// Engine drives design runs through the phase machine. One engine serves many
// runs; each run's state is confined to the goroutine executing it.
type Engine struct {
	Classifier *classify.Classifier
	Decomposer *plan.Decomposer
	Registry   *team.Registry
	Executor   *team.Executor
	Blocker    *review.BlockerChecker

	Client   llm.Client
	Searcher retrieval.Searcher
	SnippetK int

	Guard    *guard.Guard
	Recorder *store.Recorder

	IterationLimit int
	Logger         *slog.Logger
}

// NewEngine wires an engine with the default roster, vocabulary, and review
// tooling. The guard may be nil to run without rate or spend limits; the
// recorder and searcher are optional and attached by the caller.
func NewEngine(client llm.Client, g *guard.Guard, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Classifier: classify.NewClassifier(nil),
		Decomposer: plan.NewDecomposer(client, logger),
		Registry:   team.DefaultRegistry(),
		Executor: &team.Executor{
			Timeout: DefaultParticipantTimeout,
			Schema:  &review.SchemaValidator{},
			Guard:   g,
			Logger:  logger,
		},
		Blocker:        &review.BlockerChecker{},
		Client:         client,
		Guard:          g,
		IterationLimit: DefaultIterationLimit,
		Logger:         logger,
	}
}

// RunRequest describes one design run. IterationLimit values of zero or
// below take the engine default.
type RunRequest struct {
	Problem        string
	Provider       domain.Provider
	IterationLimit int
}

// Run executes one design run from problem statement to terminal summary.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*domain.RunSummary, error) {
	st, err := e.StartRun(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, st)
}

// StartRun validates the input, selects the active domains, and creates the
// run record. The returned state is ready for Execute.
func (e *Engine) StartRun(ctx context.Context, req RunRequest) (*domain.WorkflowState, error) {
	problem := strings.TrimSpace(req.Problem)
	provider := req.Provider
	if problem == "" {
		return nil, domain.ErrProblemEmpty
	}
	if !domain.KnownProvider(provider) {
		return nil, domain.NewEngineError(
			domain.ErrProviderUnknown.Code,
			fmt.Sprintf("unknown cloud provider %q", provider),
		)
	}

	limit := req.IterationLimit
	if limit <= 0 {
		limit = e.IterationLimit
	}
	if limit <= 0 {
		limit = DefaultIterationLimit
	}
	st := &domain.WorkflowState{
		RunID:            uuid.New().String(),
		Problem:          problem,
		Provider:         provider,
		IterationLimit:   limit,
		ActiveDomains:    e.Classifier.Classify(problem),
		TaskAssignments:  make(map[domain.DomainTag]domain.TaskSpec),
		DesignComponents: make(map[domain.DomainTag]domain.DesignComponent),
		Failed:           make(map[domain.DomainTag]bool),
		LoopCause:        domain.LoopNone,
		Phase:            domain.PhaseGeneration,
		StateVersion:     1,
		LastEventSeq:     1, // the run_started event takes seq 1
	}

	now := time.Now().Unix()
	payload, _ := json.Marshal(struct {
		Provider domain.Provider    `json:"provider"`
		Domains  []domain.DomainTag `json:"domains"`
	}{provider, st.ActiveDomains})

	rec := domain.RunRecord{
		RunID:         st.RunID,
		Problem:       problem,
		Provider:      provider,
		Status:        domain.RunRunning,
		Phase:         domain.PhaseGeneration,
		StateVersion:  1,
		CreatedAtUnix: now,
		UpdatedAtUnix: now,
	}
	event := domain.WorkflowEvent{
		RunID:       st.RunID,
		SeqNo:       1,
		Phase:       domain.PhaseGeneration,
		EventType:   "run_started",
		PayloadJSON: string(payload),
		CreatedAt:   now,
	}
	if err := e.Recorder.CreateRun(ctx, rec, event); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	e.logger().Info("run started",
		"run_id", st.RunID,
		"provider", string(provider),
		"domains", st.ActiveDomains,
	)
	return st, nil
}

// Execute advances the run phase by phase until it completes. Any error marks
// the run failed and is returned to the caller.
func (e *Engine) Execute(ctx context.Context, st *domain.WorkflowState) (*domain.RunSummary, error) {
	for st.Phase != domain.PhaseCompleted {
		if err := ctx.Err(); err != nil {
			e.failRun(ctx, st, err)
			return nil, err
		}

		next, err := e.step(ctx, st)
		if err != nil {
			e.failRun(ctx, st, err)
			return nil, err
		}
		if err := e.transition(ctx, st, next); err != nil {
			e.failRun(ctx, st, err)
			return nil, err
		}
	}

	payload, _ := json.Marshal(struct {
		Result     domain.Result `json:"result"`
		Iterations int           `json:"iterations"`
	}{st.Summary.Result, st.Summary.Iterations})
	e.recordEvent(ctx, st, "run_completed", string(payload))

	if e.Guard != nil {
		e.Guard.Release(st.RunID)
	}
	e.logger().Info("run completed",
		"run_id", st.RunID,
		"result", string(st.Summary.Result),
		"iterations", st.Iteration,
	)
	return st.Summary, nil
}

// step executes the work of the current phase and names the next one.
func (e *Engine) step(ctx context.Context, st *domain.WorkflowState) (domain.Phase, error) {
	switch st.Phase {
	case domain.PhaseGeneration:
		return e.runGeneration(ctx, st)
	case domain.PhaseValidation:
		return e.runValidation(ctx, st)
	case domain.PhaseFactualCheck:
		return e.runFactualCheck(ctx, st), nil
	case domain.PhaseAudit:
		return e.runAudit(ctx, st), nil
	case domain.PhaseArchitecturalCheck:
		return e.runArchitecturalCheck(ctx, st), nil
	default:
		return "", domain.NewEngineError(
			domain.ErrInvalidPhase.Code,
			fmt.Sprintf("run %s is in unknown phase %q", st.RunID, st.Phase),
		)
	}
}

// runGeneration decomposes the problem into per-domain tasks and fans the
// producers out over the active domains.
func (e *Engine) runGeneration(ctx context.Context, st *domain.WorkflowState) (domain.Phase, error) {
	st.LoopCause = domain.LoopNone
	st.TaskAssignments = e.assignTasks(ctx, st)

	batch, err := e.producerBatch(st)
	if err != nil {
		return "", err
	}
	results, failed := e.Executor.RunAndMerge(ctx, st, batch)
	e.recordCosts(ctx, st, results)
	e.recordFailures(ctx, st, failed)
	return domain.PhaseValidation, nil
}

// runValidation fans the validators out over every domain that currently has
// a component. The validation feedback set holds only this pass's findings.
func (e *Engine) runValidation(ctx context.Context, st *domain.WorkflowState) (domain.Phase, error) {
	st.ValidationFeedback = nil

	batch, err := e.validatorBatch(st)
	if err != nil {
		return "", err
	}
	results, failed := e.Executor.RunAndMerge(ctx, st, batch)
	e.recordCosts(ctx, st, results)
	e.recordFailures(ctx, st, failed)
	e.persistFeedback(ctx, st, st.ValidationFeedback)
	return domain.PhaseFactualCheck, nil
}

// runFactualCheck routes on the validation findings: blocking feedback loops
// the run back to generation unless refinement is exhausted, in which case
// the run proceeds to audit with what it has.
func (e *Engine) runFactualCheck(ctx context.Context, st *domain.WorkflowState) domain.Phase {
	blocking, reasons := e.Blocker.Check(st.ValidationFeedback)
	if !blocking {
		return domain.PhaseAudit
	}
	if exhausted, notice := e.refinementExhausted(st); exhausted {
		st.BudgetExhausted = true
		e.recordEvent(ctx, st, "refinement_exhausted", noticePayload(notice))
		e.logger().Warn("blocking feedback unresolved, continuing to audit",
			"run_id", st.RunID,
			"iteration", st.Iteration,
			"blockers", len(reasons),
		)
		return domain.PhaseAudit
	}
	st.LoopCause = domain.LoopFactualError
	st.Iteration++
	e.logger().Info("factual errors found, regenerating",
		"run_id", st.RunID,
		"iteration", st.Iteration,
		"blockers", len(reasons),
	)
	return domain.PhaseGeneration
}

// runAudit fans every auditor out over the full design. The audit feedback
// set holds only this pass's findings.
func (e *Engine) runAudit(ctx context.Context, st *domain.WorkflowState) domain.Phase {
	st.AuditFeedback = nil

	results, failed := e.Executor.RunAndMerge(ctx, st, e.auditorBatch(st))
	e.recordCosts(ctx, st, results)
	e.recordFailures(ctx, st, failed)
	e.persistFeedback(ctx, st, st.AuditFeedback)
	return domain.PhaseArchitecturalCheck
}

// runArchitecturalCheck routes on the audit findings. Blocking feedback loops
// the run back to generation while refinement is allowed; otherwise the run
// completes, forced when blockers remain.
func (e *Engine) runArchitecturalCheck(ctx context.Context, st *domain.WorkflowState) domain.Phase {
	blocking, reasons := e.Blocker.Check(st.AuditFeedback)
	if blocking {
		if exhausted, notice := e.refinementExhausted(st); exhausted {
			st.BudgetExhausted = true
			e.recordEvent(ctx, st, "forced_completion", noticePayload(notice))
			e.logger().Warn("forcing completion with unresolved blockers",
				"run_id", st.RunID,
				"iteration", st.Iteration,
				"blockers", len(reasons),
			)
			st.Summary = BuildSummary(st, domain.ResultBudgetExhausted, notice)
			return domain.PhaseCompleted
		}
		st.LoopCause = domain.LoopDesignFlaw
		st.Iteration++
		e.logger().Info("design flaws found, regenerating",
			"run_id", st.RunID,
			"iteration", st.Iteration,
			"blockers", len(reasons),
		)
		return domain.PhaseGeneration
	}
	st.Summary = BuildSummary(st, domain.ResultApproved, "")
	return domain.PhaseCompleted
}

// refinementExhausted reports whether another loop back to generation is
// ruled out, and the notice explaining why.
func (e *Engine) refinementExhausted(st *domain.WorkflowState) (bool, string) {
	if st.Iteration >= st.IterationLimit {
		return true, noticeIterationsExhausted
	}
	if e.Guard != nil && e.Guard.CheckSpend(st.RunID) == domain.CostHalt {
		return true, noticeSpendExhausted
	}
	return false, ""
}

// assignTasks runs one decomposition call and falls back to generic tasks
// when the guard refuses the call. Decomposition itself never fails.
func (e *Engine) assignTasks(ctx context.Context, st *domain.WorkflowState) map[domain.DomainTag]domain.TaskSpec {
	if e.Guard != nil {
		if err := e.Guard.AllowCall(st.RunID); err != nil {
			e.logger().Warn("decomposition refused, using fallback tasks",
				"run_id", st.RunID,
				"error", err,
			)
			specs := make(map[domain.DomainTag]domain.TaskSpec, len(st.ActiveDomains))
			for _, tag := range st.ActiveDomains {
				specs[tag] = plan.FallbackSpec(st.Problem, tag)
			}
			e.recordEvent(ctx, st, "decompose_fallback", tagsPayload(st.ActiveDomains))
			return specs
		}
	}

	specs, fellBack, resp := e.Decomposer.Decompose(ctx, plan.Input{
		Problem:            st.Problem,
		Provider:           st.Provider,
		Domains:            st.ActiveDomains,
		Iteration:          st.Iteration,
		ValidationFeedback: st.ValidationFeedback,
		AuditFeedback:      st.AuditFeedback,
		Components:         st.DesignComponents,
	})
	if resp != nil {
		e.recordDecomposerSpend(ctx, st, resp)
	}
	if len(fellBack) > 0 {
		e.recordEvent(ctx, st, "decompose_fallback", tagsPayload(fellBack))
	}
	return specs
}

func (e *Engine) producerBatch(st *domain.WorkflowState) ([]team.Invocation, error) {
	batch := make([]team.Invocation, 0, len(st.ActiveDomains))
	for _, tag := range st.ActiveDomains {
		ref, err := e.Registry.Producer(tag)
		if err != nil {
			return nil, err
		}
		snap := e.baseSnapshot(st)
		if spec, ok := st.TaskAssignments[tag]; ok {
			snap.Task = &spec
		}
		snap.PriorFeedback = feedbackFor(st, tag)
		batch = append(batch, team.Invocation{Participant: e.participant(ref), Snapshot: snap})
	}
	return batch, nil
}

func (e *Engine) validatorBatch(st *domain.WorkflowState) ([]team.Invocation, error) {
	batch := make([]team.Invocation, 0, len(st.ActiveDomains))
	for _, tag := range st.ActiveDomains {
		comp, ok := st.DesignComponents[tag]
		if !ok {
			continue
		}
		ref, err := e.Registry.Validator(tag)
		if err != nil {
			return nil, err
		}
		snap := e.baseSnapshot(st)
		snap.Component = &comp
		batch = append(batch, team.Invocation{Participant: e.participant(ref), Snapshot: snap})
	}
	return batch, nil
}

func (e *Engine) auditorBatch(st *domain.WorkflowState) []team.Invocation {
	components := componentsInOrder(st)
	refs := e.Registry.Auditors()
	batch := make([]team.Invocation, 0, len(refs))
	for _, ref := range refs {
		snap := e.baseSnapshot(st)
		snap.Components = components
		batch = append(batch, team.Invocation{Participant: e.participant(ref), Snapshot: snap})
	}
	return batch
}

func (e *Engine) participant(ref domain.ParticipantRef) *team.Participant {
	return &team.Participant{
		Ref:      ref,
		Client:   e.Client,
		Searcher: e.Searcher,
		SnippetK: e.SnippetK,
	}
}

func (e *Engine) baseSnapshot(st *domain.WorkflowState) team.Snapshot {
	return team.Snapshot{
		RunID:     st.RunID,
		Problem:   st.Problem,
		Provider:  st.Provider,
		Iteration: st.Iteration,
	}
}

// feedbackFor collects the current loop's findings addressed to one domain,
// validator findings before auditor findings.
func feedbackFor(st *domain.WorkflowState, tag domain.DomainTag) []domain.FeedbackItem {
	var items []domain.FeedbackItem
	for _, it := range st.ValidationFeedback {
		if it.Domain == tag {
			items = append(items, it)
		}
	}
	for _, it := range st.AuditFeedback {
		if it.Domain == tag {
			items = append(items, it)
		}
	}
	return items
}

type transitionPayload struct {
	From      domain.Phase     `json:"from"`
	To        domain.Phase     `json:"to"`
	Iteration int              `json:"iteration"`
	Cause     domain.LoopCause `json:"cause,omitempty"`
}

// transition validates the phase change and persists the event, the snapshot,
// and the run row update in one transaction before mutating state.
func (e *Engine) transition(ctx context.Context, st *domain.WorkflowState, next domain.Phase) error {
	if !IsValidTransition(st.Phase, next) {
		return domain.NewEngineError(
			domain.ErrInvalidTransition.Code,
			fmt.Sprintf("illegal transition %s -> %s", st.Phase, next),
		)
	}

	now := time.Now().Unix()
	seq := st.LastEventSeq + 1

	payload := transitionPayload{From: st.Phase, To: next, Iteration: st.Iteration}
	if next == domain.PhaseGeneration {
		payload.Cause = st.LoopCause
	}
	rawPayload, _ := json.Marshal(payload)

	event := domain.WorkflowEvent{
		RunID:       st.RunID,
		SeqNo:       seq,
		Phase:       next,
		EventType:   "phase_transition",
		PayloadJSON: string(rawPayload),
		CreatedAt:   now,
	}

	snapState := *st
	snapState.Phase = next
	snapState.LastEventSeq = seq
	rawSnap, err := json.Marshal(snapState)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	snap := domain.PhaseSnapshot{
		RunID:        st.RunID,
		Phase:        next,
		Iteration:    st.Iteration,
		SnapshotJSON: string(rawSnap),
		Checksum:     store.Checksum(string(rawSnap)),
		CreatedAt:    now,
	}

	rec := domain.RunRecord{
		RunID:         st.RunID,
		Problem:       st.Problem,
		Provider:      st.Provider,
		Status:        domain.RunRunning,
		Phase:         next,
		Iteration:     st.Iteration,
		StateVersion:  st.StateVersion,
		UpdatedAtUnix: now,
	}
	if next == domain.PhaseCompleted {
		rec.Status = domain.RunDone
		rawSummary, err := json.Marshal(st.Summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		rec.SummaryJSON = string(rawSummary)
	}

	if err := e.Recorder.Transition(ctx, rec, event, snap); err != nil {
		return fmt.Errorf("record transition %s -> %s: %w", st.Phase, next, err)
	}

	st.Phase = next
	st.StateVersion++
	st.LastEventSeq = seq
	e.logger().Info("phase transition",
		"run_id", st.RunID,
		"from", string(payload.From),
		"to", string(next),
		"iteration", st.Iteration,
	)
	return nil
}

// failRun makes a best-effort attempt to mark the run failed; the causing
// error is already on its way to the caller.
func (e *Engine) failRun(ctx context.Context, st *domain.WorkflowState, cause error) {
	e.logger().Error("run failed",
		"run_id", st.RunID,
		"phase", string(st.Phase),
		"error", cause,
	)
	if e.Guard != nil {
		e.Guard.Release(st.RunID)
	}

	// The cause may be the context itself, so record on a detached one.
	ctx = context.WithoutCancel(ctx)
	now := time.Now().Unix()
	seq := st.LastEventSeq + 1

	rawPayload, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{cause.Error()})
	event := domain.WorkflowEvent{
		RunID:       st.RunID,
		SeqNo:       seq,
		Phase:       st.Phase,
		EventType:   "run_failed",
		PayloadJSON: string(rawPayload),
		CreatedAt:   now,
	}

	rawSnap, err := json.Marshal(st)
	if err != nil {
		e.logger().Warn("could not record failure", "run_id", st.RunID, "error", err)
		return
	}
	snap := domain.PhaseSnapshot{
		RunID:        st.RunID,
		Phase:        st.Phase,
		Iteration:    st.Iteration,
		SnapshotJSON: string(rawSnap),
		Checksum:     store.Checksum(string(rawSnap)),
		CreatedAt:    now,
	}
	rec := domain.RunRecord{
		RunID:         st.RunID,
		Problem:       st.Problem,
		Provider:      st.Provider,
		Status:        domain.RunFailed,
		Phase:         st.Phase,
		Iteration:     st.Iteration,
		StateVersion:  st.StateVersion,
		UpdatedAtUnix: now,
	}
	if err := e.Recorder.Transition(ctx, rec, event, snap); err != nil {
		e.logger().Warn("could not record failure", "run_id", st.RunID, "error", err)
		return
	}
	st.StateVersion++
	st.LastEventSeq = seq
}

// recordEvent appends one informational event. Event log failures are logged
// and never interrupt the run.
func (e *Engine) recordEvent(ctx context.Context, st *domain.WorkflowState, eventType, payload string) {
	seq := st.LastEventSeq + 1
	event := domain.WorkflowEvent{
		RunID:       st.RunID,
		SeqNo:       seq,
		Phase:       st.Phase,
		EventType:   eventType,
		PayloadJSON: payload,
		CreatedAt:   time.Now().Unix(),
	}
	if err := e.Recorder.RecordEvent(ctx, event); err != nil {
		e.logger().Warn("record event",
			"run_id", st.RunID,
			"event_type", eventType,
			"error", err,
		)
		return
	}
	st.LastEventSeq = seq
}

// recordCosts persists one cost row per reasoning call in the batch. The
// executor has already fed the guard, so only the durable record is written.
func (e *Engine) recordCosts(ctx context.Context, st *domain.WorkflowState, results []team.Result) {
	now := time.Now().Unix()
	for _, res := range results {
		if res.InputTokens == 0 && res.OutputTokens == 0 && res.CostUSD == 0 {
			continue
		}
		delta := domain.CostDelta{
			RunID:        st.RunID,
			Caller:       res.Ref.Name,
			Phase:        st.Phase,
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
			AmountUSD:    res.CostUSD,
			CreatedAt:    now,
		}
		if err := e.Recorder.RecordCost(ctx, delta); err != nil {
			e.logger().Warn("record cost",
				"run_id", st.RunID,
				"caller", res.Ref.Name,
				"error", err,
			)
		}
	}
}

// recordDecomposerSpend accounts for the decomposition call, which does not
// pass through the executor.
func (e *Engine) recordDecomposerSpend(ctx context.Context, st *domain.WorkflowState, resp *llm.Response) {
	if e.Guard != nil && resp.CostUSD > 0 {
		if action := e.Guard.AddSpend(st.RunID, resp.CostUSD); action != domain.CostContinue {
			e.logger().Warn("spend threshold crossed",
				"run_id", st.RunID,
				"caller", "decomposer",
				"action", string(action),
			)
		}
	}
	delta := domain.CostDelta{
		RunID:        st.RunID,
		Caller:       "decomposer",
		Phase:        st.Phase,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		AmountUSD:    resp.CostUSD,
		CreatedAt:    time.Now().Unix(),
	}
	if err := e.Recorder.RecordCost(ctx, delta); err != nil {
		e.logger().Warn("record cost",
			"run_id", st.RunID,
			"caller", "decomposer",
			"error", err,
		)
	}
}

func (e *Engine) recordFailures(ctx context.Context, st *domain.WorkflowState, failed []domain.DomainTag) {
	if len(failed) == 0 {
		return
	}
	e.recordEvent(ctx, st, "participants_failed", tagsPayload(failed))
}

func (e *Engine) persistFeedback(ctx context.Context, st *domain.WorkflowState, items []domain.FeedbackItem) {
	if err := e.Recorder.RecordFeedback(ctx, st.RunID, items); err != nil {
		e.logger().Warn("record feedback",
			"run_id", st.RunID,
			"phase", string(st.Phase),
			"error", err,
		)
	}
}

func tagsPayload(tags []domain.DomainTag) string {
	raw, _ := json.Marshal(struct {
		Domains []domain.DomainTag `json:"domains"`
	}{tags})
	return string(raw)
}

func noticePayload(notice string) string {
	raw, _ := json.Marshal(struct {
		Notice string `json:"notice"`
	}{notice})
	return string(raw)
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
