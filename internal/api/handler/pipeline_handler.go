package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"go-etl-pipeline/internal/model"
	"go-etl-pipeline/internal/store"
	"go-etl-pipeline/pkg/router"
)

// Runner starts pipeline runs. *pipeline.Controller implements it.
type Runner interface {
	NewRunID() string
	RunWithID(ctx context.Context, runID string, date model.LogicalDate) (*model.RunResult, error)
}

// History reads recorded runs. *store.DB implements it.
type History interface {
	ListRuns(ctx context.Context) ([]store.RunSummary, error)
	GetRun(ctx context.Context, runID string) (*store.RunSummary, error)
	ListStageTransitions(ctx context.Context, runID string) ([]store.StageTransition, error)
	ListRunErrors(ctx context.Context, runID string) ([]store.RunError, error)
}

// CreateRunRequest triggers a run for one logical date.
type CreateRunRequest struct {
	LogicalDate string `json:"logical_date" validate:"required,datetime=2006-01-02" example:"2024-08-14"`
}

// CreateRunResponse acknowledges a started run.
type CreateRunResponse struct {
	RunID       string    `json:"run_id"`
	LogicalDate string    `json:"logical_date"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunDetail is a run with its recorded errors.
type RunDetail struct {
	store.RunSummary
	Errors []store.RunError `json:"errors"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Handler struct {
	runner   Runner
	history  History
	validate *validator.Validate
	now      func() time.Time

	// base outlives individual requests; runs started over HTTP use it.
	base context.Context
	wg   sync.WaitGroup
}

func NewHandler(base context.Context, runner Runner, history History) *Handler {
	return &Handler{
		runner:   runner,
		history:  history,
		validate: validator.New(),
		now:      time.Now,
		base:     base,
	}
}

// Wait blocks until every run started through the API has finished.
func (h *Handler) Wait() { h.wg.Wait() }

// CreateRun starts a pipeline run
// @Summary Trigger a run
// @Description Start a run of every stage for one logical date. The run executes asynchronously.
// @Tags runs
// @Accept json
// @Produce json
// @Param run body CreateRunRequest true "Logical date to process"
// @Success 202 {object} CreateRunResponse "Run started"
// @Failure 400 {object} ErrorResponse "Invalid request payload or a day that is not over yet"
// @Router /runs [post]
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "logical_date must be YYYY-MM-DD")
		return
	}
	date, err := model.ParseLogicalDate(req.LogicalDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	// a day can only be processed once it is over
	if today := model.NewLogicalDate(h.now()); !date.Before(today) {
		writeError(w, http.StatusBadRequest, "invalid_request", "logical_date must be before "+today.String())
		return
	}

	runID := h.runner.NewRunID()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		res, err := h.runner.RunWithID(h.base, runID, date)
		if err != nil {
			slog.ErrorContext(h.base, "api run finished with error", "run_id", runID, "error", err)
			return
		}
		slog.InfoContext(h.base, "api run finished", "run_id", runID, "status", res.Status)
	}()

	writeJSON(w, http.StatusAccepted, CreateRunResponse{
		RunID:       runID,
		LogicalDate: date.String(),
		Status:      string(model.RunRunning),
		CreatedAt:   h.now().UTC(),
	})
}

// ListRuns retrieves all runs
// @Summary List runs
// @Description Get every recorded run, newest first
// @Tags runs
// @Produce json
// @Success 200 {array} store.RunSummary "List of runs"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.history.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_unavailable", "failed to fetch runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun retrieves a single run
// @Summary Get run
// @Description Retrieve the status and recorded errors of one run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} RunDetail "Run details"
// @Failure 404 {object} ErrorResponse "Run not found"
// @Router /runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	errs, err := h.history.ListRunErrors(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_unavailable", "failed to fetch run errors")
		return
	}
	writeJSON(w, http.StatusOK, RunDetail{RunSummary: *run, Errors: errs})
}

// GetRunStages retrieves the stage history of a run
// @Summary Get stage transitions
// @Description Every state change of every stage of one run, in order
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {array} store.StageTransition "Stage transitions"
// @Failure 404 {object} ErrorResponse "Run not found"
// @Router /runs/{id}/stages [get]
func (h *Handler) GetRunStages(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	transitions, err := h.history.ListStageTransitions(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_unavailable", "failed to fetch stages")
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}

// Health reports liveness
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*store.RunSummary, bool) {
	id := router.Param(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "run id is required")
		return nil, false
	}
	run, err := h.history.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "run not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_unavailable", "failed to fetch run")
		return nil, false
	}
	return run, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}
