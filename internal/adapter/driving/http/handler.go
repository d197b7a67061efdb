package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/lmsnotify/internal/application"
	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
)

// maxBodyBytes bounds request bodies on the command surface.
const maxBodyBytes = 16 << 10

// Monitor is the subset of application.MonitorService the HTTP adapter drives.
type Monitor interface {
	Register(ctx context.Context, userID, username, password string) error
	Unregister(ctx context.Context, userID string) error
	PurgeAll(ctx context.Context) error
	UserExists(ctx context.Context, userID string) (bool, error)
	RunCycle(ctx context.Context, userID string) (model.CheckResult, error)
	SetTimeWindow(ctx context.Context, userID string, weeks int) error
	TimeWindow(ctx context.Context, userID string) (int, error)
}

// Sweeper triggers an immediate check of every registered user.
type Sweeper interface {
	TriggerSweep(ctx context.Context) (application.SweepSummary, error)
}

// Handler is the HTTP driving adapter that serves the command API.
type Handler struct {
	monitor    Monitor
	sweeper    Sweeper
	adminToken string
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. An empty
// adminToken disables the admin routes.
func NewHandler(monitor Monitor, sweeper Sweeper, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{
		monitor:    monitor,
		sweeper:    sweeper,
		adminToken: adminToken,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/users", h.Register)
	mux.HandleFunc("GET /api/v1/users/{id}", h.GetUser)
	mux.HandleFunc("DELETE /api/v1/users/{id}", h.Unregister)
	mux.HandleFunc("POST /api/v1/users/{id}/check", h.Check)
	mux.HandleFunc("GET /api/v1/users/{id}/window", h.GetTimeWindow)
	mux.HandleFunc("PUT /api/v1/users/{id}/window", h.SetTimeWindow)
	mux.HandleFunc("POST /api/v1/checks", adminOnly(h.adminToken, h.Sweep))
	mux.HandleFunc("DELETE /api/v1/users", adminOnly(h.adminToken, h.PurgeAll))
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Register stores a user's portal credentials and runs their first check,
// which records a baseline without notifying.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fields := validateStruct(req); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fields})
		return
	}

	if err := h.monitor.Register(r.Context(), req.UserID, req.Username, req.Password); err != nil {
		if errors.Is(err, application.ErrInvalidRegistration) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to register user", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// The registration stands even if the first check fails; the outcome is
	// reported alongside it.
	result, err := h.monitor.RunCycle(r.Context(), req.UserID)
	writeJSON(w, http.StatusCreated, RegisterResponse{
		UserID: req.UserID,
		Check:  toCheckResponse(result, err),
	})
}

// GetUser reports whether a user is registered.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	exists, err := h.monitor.UserExists(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to look up user", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "user not registered")
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{UserID: userID, Registered: true})
}

// Unregister removes everything stored for a user.
func (h *Handler) Unregister(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	if !h.requireUser(w, r, userID) {
		return
	}

	if err := h.monitor.Unregister(r.Context(), userID); err != nil {
		h.logger.Error("failed to unregister user", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Check runs an immediate check cycle for one user and reports the outcome.
// New events are dispatched exactly as a scheduled cycle would.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	if !h.requireUser(w, r, userID) {
		return
	}

	result, err := h.monitor.RunCycle(r.Context(), userID)
	resp := toCheckResponse(result, err)
	if err != nil {
		writeJSON(w, statusForKind(model.KindOf(err)), resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetTimeWindow returns a user's look-ahead in weeks.
func (h *Handler) GetTimeWindow(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	if !h.requireUser(w, r, userID) {
		return
	}

	weeks, err := h.monitor.TimeWindow(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get time window", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, TimeWindowResponse{UserID: userID, Weeks: weeks})
}

// SetTimeWindow changes a user's look-ahead in weeks.
func (h *Handler) SetTimeWindow(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var req timeWindowRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fields := validateStruct(req); fields != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fields})
		return
	}

	err := h.monitor.SetTimeWindow(r.Context(), userID, req.Weeks)
	switch {
	case errors.Is(err, model.ErrCredentialNotFound):
		writeError(w, http.StatusNotFound, "user not registered")
		return
	case errors.Is(err, application.ErrInvalidTimeWindow):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to set time window", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, TimeWindowResponse{UserID: userID, Weeks: req.Weeks})
}

// Sweep checks every registered user now and waits for the sweep to finish.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sweeper.TriggerSweep(r.Context())
	if err != nil {
		h.logger.Warn("manual sweep did not complete", "error", err)
		writeError(w, http.StatusServiceUnavailable, "sweep did not complete")
		return
	}

	writeJSON(w, http.StatusOK, toSweepResponse(summary))
}

// PurgeAll removes every registered user.
func (h *Handler) PurgeAll(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.PurgeAll(r.Context()); err != nil {
		h.logger.Error("failed to purge users", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// requireUser writes a 404 and returns false when userID is not registered.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request, userID string) bool {
	exists, err := h.monitor.UserExists(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to look up user", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return false
	}
	if !exists {
		writeError(w, http.StatusNotFound, "user not registered")
		return false
	}
	return true
}
