package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/delivery/http/request"
	"github.com/user/legalcode-service/internal/delivery/http/response"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/internal/usecase"
)

const maxFailureLimit = 500

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	runs   usecase.RunManager
	checks map[string]HealthCheck
	logger *zap.Logger
}

func NewHandler(runs usecase.RunManager, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	return &Handler{
		runs:   runs,
		checks: checks,
		logger: logger,
	}
}

func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req request.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Wait {
		summary, err := h.runs.RunNow(r.Context())
		if err != nil {
			h.runError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, response.NewRunResponse(summary))
		return
	}

	runID, err := h.runs.Start(r.Context())
	if err != nil {
		h.runError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.StartRunResponse{
		Status:  "success",
		Message: "Pipeline run started",
		RunID:   runID,
	})
}

func (h *Handler) runError(w http.ResponseWriter, err error) {
	if errors.Is(err, usecase.ErrRunInProgress) {
		h.writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	h.logger.Error("Failed to run pipeline", zap.Error(err))
	h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := h.runs.GetStatus(r.Context(), id)
	h.writeRun(w, summary, err)
}

func (h *Handler) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runs.Latest(r.Context())
	h.writeRun(w, summary, err)
}

func (h *Handler) writeRun(w http.ResponseWriter, summary *entity.RunSummary, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		h.writeJSONError(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load run", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewRunResponse(summary))
}

func (h *Handler) HandleListFailures(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxFailureLimit {
			h.writeJSONError(w, "limit must be an integer between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.runs.Failures(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list failures", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewFailuresResponse(events))
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Error("Health check failed", zap.String("dependency", name), zap.Error(err))
			status[name] = "unhealthy"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "healthy"
	}
	h.writeJSON(w, code, status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
