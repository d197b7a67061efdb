package httphandler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/lmsnotify/internal/application"
	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusForKind maps a check failure kind to the HTTP status reported to
// callers of the command surface.
func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.ErrorKindCredential, model.ErrorKindAuth:
		return http.StatusUnauthorized
	case model.ErrorKindTransient:
		return http.StatusServiceUnavailable
	case model.ErrorKindParseDegraded:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageForKind is the user-facing explanation for a failed check. It never
// includes the underlying error, which may carry portal details.
func messageForKind(kind model.ErrorKind) string {
	switch kind {
	case model.ErrorKindCredential:
		return "no usable credentials stored, please register"
	case model.ErrorKindAuth:
		return "the portal rejected the stored credentials, please register again"
	case model.ErrorKindTransient:
		return "the portal is unreachable right now, try again later"
	case model.ErrorKindParseDegraded:
		return "the portal calendar could not be read"
	default:
		return "internal server error"
	}
}

// registerRequest is the body of POST /api/v1/users.
type registerRequest struct {
	UserID   string `json:"user_id" validate:"required,notblank,max=64"`
	Username string `json:"username" validate:"required,notblank,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

// timeWindowRequest is the body of PUT /api/v1/users/{id}/window.
type timeWindowRequest struct {
	Weeks int `json:"weeks" validate:"min=1,max=52"`
}

// TimeWindowResponse is the JSON representation of a user's look-ahead.
type TimeWindowResponse struct {
	UserID string `json:"user_id"`
	Weeks  int    `json:"weeks"`
}

// UserResponse reports whether a user is registered.
type UserResponse struct {
	UserID     string `json:"user_id"`
	Registered bool   `json:"registered"`
}

// RegisterResponse is returned after a successful registration, together with
// the outcome of the immediate first check.
type RegisterResponse struct {
	UserID string         `json:"user_id"`
	Check  *CheckResponse `json:"check"`
}

// EventResponse is the JSON representation of a calendar event.
type EventResponse struct {
	Identity  string `json:"identity"`
	Title     string `json:"title"`
	Category  string `json:"category,omitempty"`
	Date      string `json:"date"`
	Course    string `json:"course,omitempty"`
	URL       string `json:"url,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// CheckResponse is the JSON representation of one check cycle.
type CheckResponse struct {
	CycleID     string          `json:"cycle_id,omitempty"`
	Status      string          `json:"status"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	Message     string          `json:"message,omitempty"`
	NewEvents   []EventResponse `json:"new_events"`
	Observed    int             `json:"observed"`
	Filtered    int             `json:"filtered"`
	Skipped     int             `json:"skipped"`
	Summary     string          `json:"summary"`
	SummaryHTML string          `json:"summary_html"`
	CheckedAt   string          `json:"checked_at"`
	DurationMS  int64           `json:"duration_ms"`
}

// SweepResponse is the JSON representation of a manual sweep.
type SweepResponse struct {
	Users      int            `json:"users"`
	NewEvents  int            `json:"new_events"`
	Failures   map[string]int `json:"failures"`
	DurationMS int64          `json:"duration_ms"`
}

func toEventResponse(e model.Event) EventResponse {
	resp := EventResponse{
		Identity: e.Identity,
		Title:    e.Title,
		Category: e.Category,
		Date:     e.DateText,
		Course:   e.Course,
		URL:      e.URL,
	}
	if !e.Timestamp.IsZero() {
		resp.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return resp
}

func toCheckResponse(result model.CheckResult, err error) *CheckResponse {
	resp := &CheckResponse{
		CycleID:    result.CycleID,
		Status:     string(result.Status),
		NewEvents:  make([]EventResponse, 0, len(result.NewEvents)),
		Observed:   result.Observed,
		Filtered:   result.Filtered,
		Skipped:    result.Skipped,
		DurationMS: result.Duration.Milliseconds(),
	}
	if !result.CheckedAt.IsZero() {
		resp.CheckedAt = result.CheckedAt.UTC().Format(time.RFC3339)
	}
	if err != nil {
		kind := model.KindOf(err)
		resp.Status = string(model.CheckStatusFailed)
		resp.ErrorKind = string(kind)
		resp.Message = messageForKind(kind)
		return resp
	}

	summaries := make([]string, 0, len(result.NewEvents))
	for _, e := range result.NewEvents {
		resp.NewEvents = append(resp.NewEvents, toEventResponse(e))
		summaries = append(summaries, e.Summary())
	}
	resp.Summary = strings.Join(summaries, "\n\n")
	resp.SummaryHTML = RenderMarkdown(resp.Summary)
	return resp
}

func toSweepResponse(s application.SweepSummary) SweepResponse {
	failures := make(map[string]int, len(s.Failures))
	for kind, n := range s.Failures {
		failures[string(kind)] = n
	}
	return SweepResponse{
		Users:      s.Users,
		NewEvents:  s.NewEvents,
		Failures:   failures,
		DurationMS: s.Duration.Milliseconds(),
	}
}

// HealthResponse is the JSON representation of the health check.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
