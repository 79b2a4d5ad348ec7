package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lei/vehicle-ci/internal/pipeline"
	"github.com/lei/vehicle-ci/internal/service"
)

// Handlers contains HTTP handler functions. Pipeline invocations are
// serialized: the underlying workspace supports one run at a time.
type Handlers struct {
	service *service.Service
	mu      sync.Mutex
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{service: svc}
}

// Health handles health check requests
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// TriggerBuild handles POST /v1/pipeline/build
func (h *Handlers) TriggerBuild(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	if logger != nil {
		logger.Debug("triggering build")
	}

	h.mu.Lock()
	report, err := h.service.Build(r.Context())
	h.mu.Unlock()
	if err != nil {
		respondPipelineError(w, r, report, err)
		return
	}

	if logger != nil {
		logger.Info("build triggered successfully",
			"run_id", report.RunID,
			"status", report.Build.Status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"report": report,
	})
}

// TriggerRun handles POST /v1/pipeline/run
func (h *Handlers) TriggerRun(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())

	var req struct {
		TimeoutSeconds int `json:"timeout_seconds"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if logger != nil {
				logger.Warn("invalid request body", "error", err)
			}
			respondError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if logger != nil {
		logger.Debug("triggering run", "timeout", timeout)
	}

	h.mu.Lock()
	report, err := h.service.Run(r.Context(), timeout)
	h.mu.Unlock()
	if err != nil {
		respondPipelineError(w, r, report, err)
		return
	}

	if logger != nil {
		logger.Info("run completed",
			"run_id", report.RunID,
			"status", report.Run.Status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"report": report,
	})
}

// TriggerValidate handles POST /v1/pipeline/validate
func (h *Handlers) TriggerValidate(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	if logger != nil {
		logger.Debug("triggering validation")
	}

	h.mu.Lock()
	report, _, err := h.service.Validate(r.Context())
	h.mu.Unlock()
	if err != nil {
		respondPipelineError(w, r, report, err)
		return
	}

	if logger != nil {
		logger.Info("validation completed",
			"run_id", report.RunID,
			"verdict", report.Validation.Verdict)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"report": report,
	})
}

// TriggerScenario handles POST /v1/pipeline/test/{scenario}
func (h *Handlers) TriggerScenario(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())
	scenario := chi.URLParam(r, "scenario")

	if logger != nil {
		logger.Debug("triggering scenario", "scenario", scenario)
	}

	h.mu.Lock()
	report, err := h.service.Test(r.Context(), scenario)
	h.mu.Unlock()
	if err != nil {
		respondPipelineError(w, r, report, err)
		return
	}

	if logger != nil {
		logger.Info("scenario completed",
			"run_id", report.RunID,
			"passed", report.Scenario.Passed,
			"total", report.Scenario.Total)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"report": report,
	})
}

// LatestReport handles GET /v1/reports/latest
func (h *Handlers) LatestReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.LatestReport()
	if err != nil {
		respondError(w, r, http.StatusNotFound, "no report available")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"report": report,
	})
}

// ListScenarios handles GET /v1/scenarios
func (h *Handlers) ListScenarios(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())

	scenarios, err := h.service.Scenarios()
	if err != nil {
		if logger != nil {
			logger.Error("scenario listing failed", "error", err)
		}
		respondError(w, r, http.StatusInternalServerError, "scenarios unavailable")
		return
	}

	search := r.URL.Query().Get("search")
	filtered := FilterScenarios(scenarios, search)

	if logger != nil {
		logger.Debug("scenarios listed", "count", len(filtered), "search", search)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"scenarios": filtered,
	})
}

// respondPipelineError maps pipeline errors to HTTP responses. The
// failed report, when present, rides along so callers still see every
// stage that did complete.
func respondPipelineError(w http.ResponseWriter, r *http.Request, report interface{}, err error) {
	logger := GetLogger(r.Context())
	requestID := GetRequestID(r.Context())

	if logger != nil {
		logger.Error("pipeline error occurred",
			"error", err.Error(),
			"error_type", fmt.Sprintf("%T", err),
			"request_id", requestID)
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrScenarioNotFound):
		status = http.StatusNotFound
	default:
		switch pipeline.KindOf(err) {
		case pipeline.KindInvalidSource, pipeline.KindInvalidSpecURL, pipeline.KindNoInput:
			status = http.StatusUnprocessableEntity
		case pipeline.KindCompileFailed, pipeline.KindRunCrashed,
			pipeline.KindScenarioAssertion, pipeline.KindGateCriticalFailure:
			status = http.StatusConflict
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":    err.Error(),
			"kind":       string(pipeline.KindOf(err)),
			"code":       status,
			"request_id": requestID,
		},
		"report": report,
	})
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logger := GetLogger(r.Context())
	requestID := GetRequestID(r.Context())

	if logger != nil {
		logger.Error("returning error response",
			"status", status,
			"message", message,
			"request_id", requestID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":    message,
			"code":       status,
			"request_id": requestID,
		},
	})
}
