package team

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anthropics/blueprint-engine/internal/domain"
	"github.com/anthropics/blueprint-engine/internal/guard"
	"github.com/anthropics/blueprint-engine/internal/review"
)

// Invocation pairs one participant with the snapshot it runs against.
type Invocation struct {
	Participant *Participant
	Snapshot    Snapshot
}

// Executor fans a batch of invocations out concurrently, waits for every
// participant to finish, then merges results into workflow state one at a
// time. State is only ever written between batches, never during one.
type Executor struct {
	Timeout time.Duration
	Schema  *review.SchemaValidator
	Guard   *guard.Guard
	Logger  *slog.Logger
}

// RunAndMerge invokes the whole batch concurrently and merges results in
// batch order once all participants have returned. It reports the raw
// results and the domains recorded as failed.
func (e *Executor) RunAndMerge(ctx context.Context, st *domain.WorkflowState, batch []Invocation) ([]Result, []domain.DomainTag) {
	results := make([]Result, len(batch))

	var wg sync.WaitGroup
	for i, inv := range batch {
		wg.Add(1)
		go func(i int, inv Invocation) {
			defer wg.Done()
			results[i] = e.invoke(ctx, inv)
		}(i, inv)
	}
	wg.Wait()

	return results, e.merge(st, results)
}

// invoke runs one participant under the per-call deadline. Calls refused by
// the guard never reach the reasoning client.
func (e *Executor) invoke(ctx context.Context, inv Invocation) Result {
	ref := inv.Participant.Ref
	if e.Guard != nil {
		if err := e.Guard.AllowCall(inv.Snapshot.RunID); err != nil {
			return Result{Ref: ref, Err: err}
		}
	}

	callCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	res := inv.Participant.Invoke(callCtx, inv.Snapshot)
	if res.Err != nil && callCtx.Err() == context.DeadlineExceeded {
		res.Err = domain.WrapEngineError(
			domain.ErrParticipantTimeout.Code,
			fmt.Sprintf("%s: no response within deadline", ref.Name),
			res.Err,
		)
	}
	return res
}

// merge folds results into state sequentially. Failure marks for every tag
// covered by this batch are cleared first, so a retried participant that
// succeeds heals its earlier failure.
func (e *Executor) merge(st *domain.WorkflowState, results []Result) []domain.DomainTag {
	for _, res := range results {
		delete(st.Failed, res.Ref.Domain)
	}

	var failed []domain.DomainTag
	for _, res := range results {
		if e.Guard != nil && res.CostUSD > 0 {
			if action := e.Guard.AddSpend(st.RunID, res.CostUSD); action != domain.CostContinue {
				e.logger().Warn("spend threshold crossed",
					"run_id", st.RunID,
					"participant", res.Ref.Name,
					"action", string(action),
				)
			}
		}

		tag, err := e.mergeOne(st, res)
		if err != nil {
			e.logger().Warn("participant failed",
				"run_id", st.RunID,
				"participant", res.Ref.Name,
				"phase", string(st.Phase),
				"error", err,
			)
			if st.Failed == nil {
				st.Failed = make(map[domain.DomainTag]bool)
			}
			st.Failed[tag] = true
			failed = append(failed, tag)
		}
	}
	return failed
}

func (e *Executor) mergeOne(st *domain.WorkflowState, res Result) (domain.DomainTag, error) {
	ref := res.Ref
	if res.Err != nil {
		return ref.Domain, res.Err
	}

	if ref.Kind == domain.KindProducer {
		comp := res.Component
		if comp == nil {
			return ref.Domain, domain.WrapEngineError(
				domain.ErrParticipantResponse.Code,
				fmt.Sprintf("%s: producer returned no component", ref.Name),
				nil,
			)
		}
		if comp.Domain != ref.Domain {
			return ref.Domain, domain.WrapEngineError(
				domain.ErrDomainOwnership.Code,
				fmt.Sprintf("%s owns %q but produced a component for %q", ref.Name, ref.Domain, comp.Domain),
				nil,
			)
		}
		if st.DesignComponents == nil {
			st.DesignComponents = make(map[domain.DomainTag]domain.DesignComponent)
		}
		st.DesignComponents[comp.Domain] = *comp
		return ref.Domain, nil
	}

	items, dropped := e.validItems(res.Feedback)
	if dropped > 0 && len(items) == 0 {
		return ref.Domain, domain.WrapEngineError(
			domain.ErrFeedbackInvalid.Code,
			fmt.Sprintf("%s: every finding failed schema validation", ref.Name),
			nil,
		)
	}
	for i := range items {
		items[i].Phase = st.Phase
		items[i].Iteration = st.Iteration
	}
	if ref.Kind == domain.KindValidator {
		st.ValidationFeedback = append(st.ValidationFeedback, items...)
	} else {
		st.AuditFeedback = append(st.AuditFeedback, items...)
	}
	st.FeedbackLog = append(st.FeedbackLog, items...)
	return ref.Domain, nil
}

// validItems filters findings through the schema validator. Invalid items
// are dropped individually; the count of drops lets the caller distinguish
// a clean review from a fully rejected one.
func (e *Executor) validItems(items []domain.FeedbackItem) ([]domain.FeedbackItem, int) {
	if e.Schema == nil {
		return items, 0
	}
	kept := make([]domain.FeedbackItem, 0, len(items))
	dropped := 0
	for _, it := range items {
		if err := e.Schema.Validate(it); err != nil {
			dropped++
			continue
		}
		kept = append(kept, it)
	}
	return kept, dropped
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
