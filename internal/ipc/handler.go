// Package ipc provides the HTTP API for the Blueprint Engine.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/anthropics/blueprint-engine/internal/domain"
	"github.com/anthropics/blueprint-engine/internal/guard"
	"github.com/anthropics/blueprint-engine/internal/store"
	"github.com/anthropics/blueprint-engine/internal/workflow"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Engine   *workflow.Engine
	Recorder *store.Recorder
	Guard    *guard.Guard
	Logger   *slog.Logger
}

// CreateRunRequest is the body for POST /api/v1/runs.
type CreateRunRequest struct {
	Problem        string `json:"problem"`
	Provider       string `json:"provider"`
	IterationLimit int    `json:"iteration_limit"`
}

// CreateRunResponse acknowledges an accepted run.
type CreateRunResponse struct {
	RunID   string             `json:"run_id"`
	Phase   domain.Phase       `json:"phase"`
	Status  domain.RunStatus   `json:"status"`
	Domains []domain.DomainTag `json:"domains"`
}

// CostReport is the response for GET /api/v1/runs/{runID}/cost.
type CostReport struct {
	Calls        int64              `json:"calls"`
	InputTokens  int64              `json:"input_tokens"`
	OutputTokens int64              `json:"output_tokens"`
	AmountUSD    float64            `json:"amount_usd"`
	CostAction   domain.CostAction  `json:"cost_action"`
	Deltas       []domain.CostDelta `json:"deltas"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateRun handles POST /api/v1/runs. The run executes in the background;
// the response carries what a client needs to follow it.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}

	st, err := h.Engine.StartRun(r.Context(), workflow.RunRequest{
		Problem:        req.Problem,
		Provider:       domain.Provider(req.Provider),
		IterationLimit: req.IterationLimit,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	go h.executeRun(st)

	writeJSON(w, http.StatusAccepted, CreateRunResponse{
		RunID:   st.RunID,
		Phase:   st.Phase,
		Status:  domain.RunRunning,
		Domains: st.ActiveDomains,
	})
}

// executeRun drives an accepted run to its terminal state. The request
// context ends with the 202 response; the run must not.
func (h *Handler) executeRun(st *domain.WorkflowState) {
	if _, err := h.Engine.Execute(context.Background(), st); err != nil {
		h.logger().Error("run failed",
			"run_id", st.RunID,
			"error", err,
		)
	}
}

// GetRun handles GET /api/v1/runs/{runID}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	rec, err := h.Recorder.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetSummary handles GET /api/v1/runs/{runID}/summary. A run that has not
// reached its terminal phase has no summary yet.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	rec, err := h.Recorder.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec.Status != domain.RunDone || rec.SummaryJSON == "" {
		writeError(w, domain.NewEngineError(
			domain.ErrSummaryNotReady.Code,
			fmt.Sprintf("run %s is %s, no summary yet", runID, rec.Status),
		))
		return
	}

	var summary domain.RunSummary
	if err := json.Unmarshal([]byte(rec.SummaryJSON), &summary); err != nil {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: "stored summary is unreadable"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListEvents handles GET /api/v1/runs/{runID}/events?since_seq=N.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	sinceSeq := int64(0)
	if s := r.URL.Query().Get("since_seq"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			sinceSeq = parsed
		}
	}

	events, err := h.Recorder.ListEvents(r.Context(), runID, sinceSeq)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.WorkflowEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// ListFeedback handles GET /api/v1/runs/{runID}/feedback.
func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	items, err := h.Recorder.ListFeedback(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []domain.FeedbackItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// GetCost handles GET /api/v1/runs/{runID}/cost.
func (h *Handler) GetCost(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	totals, err := h.Recorder.CostSummary(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}

	deltas, err := h.Recorder.Costs.ListByRun(r.Context(), h.Recorder.DB, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if deltas == nil {
		deltas = []domain.CostDelta{}
	}

	action := domain.CostContinue
	if h.Guard != nil {
		action = h.Guard.CheckSpend(runID)
	}

	writeJSON(w, http.StatusOK, CostReport{
		Calls:        totals.Calls,
		InputTokens:  totals.InputTokens,
		OutputTokens: totals.OutputTokens,
		AmountUSD:    totals.AmountUSD,
		CostAction:   action,
		Deltas:       deltas,
	})
}

// StreamEvents handles GET /api/v1/runs/{runID}/events/stream (SSE).
// The stream closes once the run reaches a terminal event.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send the backlog first.
	events, err := h.Recorder.ListEvents(r.Context(), runID, 0)
	if err != nil {
		writeSSEError(w, flusher, err)
		return
	}
	lastSeq := int64(0)
	for _, ev := range events {
		writeSSEEvent(w, flusher, ev)
		lastSeq = ev.SeqNo
		if terminalEvent(ev) {
			return
		}
	}

	// Poll for new events until the run ends or the client leaves.
	ctx := r.Context()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			newEvents, err := h.Recorder.ListEvents(ctx, runID, lastSeq)
			if err != nil {
				return
			}
			for _, ev := range newEvents {
				writeSSEEvent(w, flusher, ev)
				lastSeq = ev.SeqNo
				if terminalEvent(ev) {
					return
				}
			}
		}
	}
}

func terminalEvent(ev domain.WorkflowEvent) bool {
	return ev.EventType == "run_completed" || ev.EventType == "run_failed"
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if engErr, ok := err.(*domain.EngineError); ok {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrRunNotFound.Code:
			status = http.StatusNotFound
		case domain.ErrProblemEmpty.Code, domain.ErrProviderUnknown.Code:
			status = http.StatusBadRequest
		case domain.ErrSummaryNotReady.Code:
			status = http.StatusConflict
		case domain.ErrSpendExceeded.Code:
			status = http.StatusForbidden
		case domain.ErrRateLimitExceeded.Code:
			status = http.StatusTooManyRequests
		case domain.ErrInvalidTransition.Code, domain.ErrInvalidPhase.Code:
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, ev domain.WorkflowEvent) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, err error) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	f.Flush()
}
