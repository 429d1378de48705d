// Package guard enforces per-run call rate limits and spend budgets.
package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/blueprint-engine/internal/domain"
)

// Limits holds guard thresholds. A zero rate limit or budget disables the
// corresponding check.
type Limits struct {
	RateLimitPerMinute int
	SpendBudgetUSD     float64

	// WarnRatio is the fraction of budget at which spending warns (default 0.8).
	WarnRatio float64
	// HaltRatio is the fraction of budget at which spending halts (default 1.0).
	HaltRatio float64
}

type rateBucket struct {
	count       int
	windowStart int64
}

// Guard tracks reasoning call rates and accumulated spend per run.
type Guard struct {
	limits Limits

	mu         sync.Mutex
	rateCounts map[string]*rateBucket
	spend      map[string]float64
	now        func() time.Time
}

// New creates a Guard with standard warn and halt thresholds where unset.
func New(limits Limits) *Guard {
	if limits.WarnRatio <= 0 {
		limits.WarnRatio = 0.8
	}
	if limits.HaltRatio <= 0 {
		limits.HaltRatio = 1.0
	}
	return &Guard{
		limits:     limits,
		rateCounts: make(map[string]*rateBucket),
		spend:      make(map[string]float64),
		now:        time.Now,
	}
}

// AllowCall consumes one rate-limit slot for the run. It refuses with
// ErrSpendExceeded when the budget is already exhausted and with
// ErrRateLimitExceeded when the per-minute window is spent.
func (g *Guard) AllowCall(runID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.evaluate(g.spend[runID]) == domain.CostHalt {
		return domain.WrapEngineError(
			domain.ErrSpendExceeded.Code,
			fmt.Sprintf("run %s spent %.4f of %.2f USD", runID, g.spend[runID], g.limits.SpendBudgetUSD),
			nil,
		)
	}

	if g.limits.RateLimitPerMinute <= 0 {
		return nil
	}

	now := g.now().Unix()
	bucket, ok := g.rateCounts[runID]
	if !ok {
		g.rateCounts[runID] = &rateBucket{count: 1, windowStart: now}
		return nil
	}

	if now-bucket.windowStart > 60 {
		bucket.count = 1
		bucket.windowStart = now
		return nil
	}

	if bucket.count >= g.limits.RateLimitPerMinute {
		return domain.ErrRateLimitExceeded
	}

	bucket.count++
	return nil
}

// AddSpend accumulates cost for the run and returns the resulting action.
func (g *Guard) AddSpend(runID string, amountUSD float64) domain.CostAction {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.spend[runID] += amountUSD
	return g.evaluate(g.spend[runID])
}

// CheckSpend evaluates the run's accumulated spend without modifying it.
func (g *Guard) CheckSpend(runID string) domain.CostAction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.evaluate(g.spend[runID])
}

// Spent returns the total recorded spend for the run.
func (g *Guard) Spent(runID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spend[runID]
}

// Release drops all guard state for a finished run.
func (g *Guard) Release(runID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rateCounts, runID)
	delete(g.spend, runID)
}

func (g *Guard) evaluate(spent float64) domain.CostAction {
	if g.limits.SpendBudgetUSD <= 0 {
		return domain.CostContinue
	}
	ratio := spent / g.limits.SpendBudgetUSD
	if ratio >= g.limits.HaltRatio {
		return domain.CostHalt
	}
	if ratio >= g.limits.WarnRatio {
		return domain.CostWarn
	}
	return domain.CostContinue
}
