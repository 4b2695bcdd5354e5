package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/metrics"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/planner"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/store"
	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/webhooks"
)

const optimizeTimeout = 90 * time.Second

// optimize handles POST /v1/plans/{id}/optimize. The call is synchronous:
// the response carries the finished optimization, while SSE subscribers see
// started/succeeded/failed events as they happen.
func (s *Server) optimize(w http.ResponseWriter, r *http.Request, tenant, planID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Planner == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Optimizer unavailable", "no AI provider configured", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
	}
	plan, err := s.Store.GetPlan(r.Context(), tenant, planID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req, len(plan.Stops)); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}

	job, err := s.Store.BeginOptimization(r.Context(), tenant, planID, req.Model)
	if err != nil {
		if errors.Is(err, store.ErrOptimizationPending) {
			writeProblem(w, http.StatusConflict, "Optimization pending", "an optimization is already running for this plan", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Begin optimization failed", err.Error(), r.URL.Path)
		return
	}
	s.Broker.Publish(planID, SSEEvent{Type: webhooks.EventOptimizationStarted, Data: map[string]any{
		"planId": planID, "optimizationId": job.ID, "ts": job.RequestedAt,
	}})

	// Finalization writes must land even if the client has gone away,
	// or the pending job would block the plan forever.
	finCtx := context.WithoutCancel(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), optimizeTimeout)
	defer cancel()
	start := time.Now()
	stops, optErr := s.Planner.Optimize(ctx, plan.Stops, req)
	elapsed := time.Since(start)

	modelLabel := req.Model
	if modelLabel == "" {
		modelLabel = "default"
	}
	if optErr != nil {
		metrics.Optimizations.WithLabelValues(modelLabel, "failed").Inc()
		metrics.OptimizerLatency.WithLabelValues(modelLabel, "failed").Observe(float64(elapsed.Milliseconds()))
		failed, ferr := s.Store.FailOptimization(finCtx, tenant, job.ID, optErr.Error())
		if ferr != nil {
			writeProblem(w, http.StatusInternalServerError, "Optimization failed", optErr.Error(), r.URL.Path)
			return
		}
		s.Broker.Publish(planID, SSEEvent{Type: webhooks.EventOptimizationFailed, Data: map[string]any{
			"planId": planID, "optimizationId": job.ID, "error": optErr.Error(),
		}})
		s.Pub.Emit(finCtx, tenant, webhooks.EventOptimizationFailed, map[string]any{
			"planId": planID, "optimizationId": job.ID, "error": optErr.Error(),
		})
		status := http.StatusBadGateway
		if errors.Is(optErr, planner.ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		if errors.Is(optErr, planner.ErrNoStops) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, failed)
		return
	}

	metrics.Optimizations.WithLabelValues(modelLabel, "succeeded").Inc()
	metrics.OptimizerLatency.WithLabelValues(modelLabel, "succeeded").Observe(float64(elapsed.Milliseconds()))
	done, err := s.Store.CompleteOptimization(finCtx, tenant, job.ID, stops)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save optimization failed", err.Error(), r.URL.Path)
		return
	}
	s.Broker.Publish(planID, SSEEvent{Type: webhooks.EventOptimizationSucceeded, Data: map[string]any{
		"planId": planID, "optimizationId": job.ID, "stops": len(stops),
	}})
	s.Pub.Emit(finCtx, tenant, webhooks.EventOptimizationSucceeded, map[string]any{
		"planId": planID, "optimizationId": job.ID, "stops": done.Stops,
	})
	writeJSON(w, http.StatusOK, done)
}
