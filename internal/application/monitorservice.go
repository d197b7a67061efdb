// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
)

// Time window bounds accepted by SetTimeWindow.
const (
	MinTimeWindowWeeks = 1
	MaxTimeWindowWeeks = 52
)

var (
	// ErrInvalidRegistration is returned when a registration lacks a field.
	ErrInvalidRegistration = errors.New("user id, username and password are required")

	// ErrInvalidTimeWindow is returned when a time window is out of range.
	ErrInvalidTimeWindow = fmt.Errorf("time window must be between %d and %d weeks", MinTimeWindowWeeks, MaxTimeWindowWeeks)
)

// MonitorService runs check cycles: decrypt the user's credential, log in,
// fetch and parse the calendar, filter, diff against Seen-State, dispatch
// what is new and record what exists now. It holds no timing logic; the
// Scheduler decides when cycles run.
type MonitorService struct {
	vault    driven.CredentialVault
	seen     driven.SeenStore
	prefs    driven.PreferenceStore
	portal   driven.Portal
	parser   driven.CalendarParser
	notifier driven.Notifier
	rules    AttendanceRules
	timeout  time.Duration
	now      func() time.Time

	// flights guarantees at most one in-flight cycle per user. Overlapping
	// triggers for the same user share the running cycle's result.
	flights singleflight.Group

	mu sync.Mutex
	// failing records users currently in an auth/credential failure streak,
	// so the re-register notice is sent once per streak.
	failing map[string]model.ErrorKind
}

// NewMonitorService creates a new MonitorService with all required dependencies.
// A zero cycleTimeout leaves cycles bounded only by per-request timeouts.
func NewMonitorService(
	vault driven.CredentialVault,
	seen driven.SeenStore,
	prefs driven.PreferenceStore,
	portal driven.Portal,
	parser driven.CalendarParser,
	notifier driven.Notifier,
	rules AttendanceRules,
	cycleTimeout time.Duration,
) *MonitorService {
	return &MonitorService{
		vault:    vault,
		seen:     seen,
		prefs:    prefs,
		portal:   portal,
		parser:   parser,
		notifier: notifier,
		rules:    rules,
		timeout:  cycleTimeout,
		now:      time.Now,
		failing:  make(map[string]model.ErrorKind),
	}
}

// RunCycle runs one check cycle for userID. If a cycle for the same user is
// already running, RunCycle waits for it and returns its result instead of
// starting a second one, so overlapping triggers never notify twice.
//
// Errors carry a model.ErrorKind; use model.KindOf to classify them.
func (s *MonitorService) RunCycle(ctx context.Context, userID string) (model.CheckResult, error) {
	v, err, shared := s.flights.Do(userID, func() (any, error) {
		return s.runCycle(ctx, userID)
	})
	if shared {
		slog.Debug("joined in-flight check", "user_id", userID)
	}
	result, _ := v.(model.CheckResult)
	return result, err
}

func (s *MonitorService) runCycle(ctx context.Context, userID string) (model.CheckResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	result := model.CheckResult{
		UserID:    userID,
		CycleID:   uuid.NewString(),
		Status:    model.CheckStatusFailed,
		NewEvents: []model.Event{},
		CheckedAt: start,
	}
	logger := slog.With("cycle_id", result.CycleID, "user_id", userID)

	parsed, err := s.fetchEvents(ctx, userID)
	if err != nil {
		return s.fail(ctx, logger, result, err)
	}
	result.Skipped = parsed.Skipped
	if parsed.Skipped > 0 {
		logger.Warn("skipped malformed calendar entries", "skipped", parsed.Skipped, "matched", parsed.Matched)
	}

	weeks, err := s.prefs.GetTimeWindow(ctx, userID)
	if err != nil {
		logger.Warn("time window lookup failed, using default", "error", err)
		weeks = driven.DefaultTimeWindowWeeks
	}
	kept, filtered := FilterEvents(parsed.Events, s.rules, windowHorizon(start, weeks))
	result.Observed = len(kept)
	result.Filtered = filtered

	prev, hasSeen, err := s.seen.Load(ctx, userID)
	if err != nil {
		return s.fail(ctx, logger, result, fmt.Errorf("load seen state: %w", err))
	}

	fresh, next := DiffEvents(kept, prev, hasSeen)

	// Dispatch before recording so a failed delivery is retried next cycle.
	if len(fresh) > 0 {
		if err := s.notifier.NotifyEvents(ctx, userID, fresh); err != nil {
			return s.fail(ctx, logger, result, fmt.Errorf("dispatch notifications: %w", err))
		}
	}

	if err := s.seen.Replace(ctx, userID, next); err != nil {
		if len(fresh) > 0 {
			logger.Error("seen state not recorded after dispatch, events may repeat", "events", len(fresh))
		}
		return s.fail(ctx, logger, result, fmt.Errorf("replace seen state: %w", err))
	}

	result.NewEvents = fresh
	switch {
	case !hasSeen:
		result.Status = model.CheckStatusBaseline
	case len(fresh) > 0:
		result.Status = model.CheckStatusNewEvents
	default:
		result.Status = model.CheckStatusNoNewEvents
	}
	result.Duration = s.now().Sub(start)
	s.clearFailure(userID)

	logger.Info("check complete",
		"status", string(result.Status),
		"parsed", len(parsed.Events),
		"filtered", filtered,
		"observed", result.Observed,
		"new", len(fresh),
		"duration", result.Duration.Round(time.Millisecond),
	)

	return result, nil
}

// fetchEvents is the portal half of a cycle. The decrypted credential and
// the session never outlive this call.
func (s *MonitorService) fetchEvents(ctx context.Context, userID string) (model.ParseResult, error) {
	cred, err := s.vault.Get(ctx, userID)
	if err != nil {
		return model.ParseResult{}, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return model.ParseResult{}, model.NewCredentialError(model.ErrCredentialNotFound)
	}

	session, err := s.portal.Login(ctx, cred.Username, cred.Password)
	if err != nil {
		return model.ParseResult{}, fmt.Errorf("login: %w", err)
	}
	defer session.Close()

	raw, err := session.FetchCalendar(ctx)
	if err != nil {
		return model.ParseResult{}, fmt.Errorf("fetch calendar: %w", err)
	}

	parsed, err := s.parser.Parse(raw)
	if err != nil {
		return parsed, fmt.Errorf("parse calendar: %w", err)
	}
	return parsed, nil
}

// fail records a failed cycle. Seen-State is left exactly as the last
// successful cycle wrote it.
func (s *MonitorService) fail(ctx context.Context, logger *slog.Logger, result model.CheckResult, err error) (model.CheckResult, error) {
	result.Status = model.CheckStatusFailed
	result.Duration = s.now().Sub(result.CheckedAt)
	kind := model.KindOf(err)

	switch {
	case errors.Is(err, model.ErrCredentialNotFound):
		// Nobody registered under this id; there is no one to ask to re-register.
		logger.Warn("check for unregistered user", "kind", string(kind))
	case kind == model.ErrorKindCredential, kind == model.ErrorKindAuth:
		logger.Warn("check failed, user action required", "kind", string(kind), "error", err)
		s.noticeReregister(ctx, logger, result.UserID, kind)
	case kind == model.ErrorKindTransient:
		logger.Warn("check failed, will retry next cycle", "kind", string(kind), "error", err)
	case kind == model.ErrorKindParseDegraded:
		logger.Error("calendar markup not recognised, parser needs maintenance", "kind", string(kind), "error", err)
	default:
		logger.Error("check failed", "kind", string(kind), "error", err)
	}

	return result, err
}

// noticeReregister sends the re-register message on entry to a failure streak.
func (s *MonitorService) noticeReregister(ctx context.Context, logger *slog.Logger, userID string, kind model.ErrorKind) {
	s.mu.Lock()
	_, already := s.failing[userID]
	s.failing[userID] = kind
	s.mu.Unlock()

	if already {
		return
	}
	if err := s.notifier.NotifyReregister(ctx, userID, kind); err != nil {
		logger.Error("re-register notice failed", "error", err)
	}
}

func (s *MonitorService) clearFailure(userID string) {
	s.mu.Lock()
	delete(s.failing, userID)
	s.mu.Unlock()
}

// Register stores userID's portal credentials, replacing any previous
// registration. Seen-State is kept, so re-registering never re-announces
// events the user already heard about.
func (s *MonitorService) Register(ctx context.Context, userID, username, password string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(username) == "" || password == "" {
		return ErrInvalidRegistration
	}
	if err := s.vault.Put(ctx, userID, username, password); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	s.clearFailure(userID)
	slog.Info("user registered", "user_id", userID)
	return nil
}

// Unregister forgets everything stored for userID.
func (s *MonitorService) Unregister(ctx context.Context, userID string) error {
	if err := s.vault.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.seen.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.prefs.Delete(ctx, userID); err != nil {
		return err
	}
	s.clearFailure(userID)
	slog.Info("user unregistered", "user_id", userID)
	return nil
}

// PurgeAll forgets every user.
func (s *MonitorService) PurgeAll(ctx context.Context) error {
	if err := s.vault.DeleteAll(ctx); err != nil {
		return err
	}
	if err := s.seen.DeleteAll(ctx); err != nil {
		return err
	}
	if err := s.prefs.DeleteAll(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.failing = make(map[string]model.ErrorKind)
	s.mu.Unlock()

	slog.Warn("all user data removed")
	return nil
}

// UserExists reports whether userID has registered.
func (s *MonitorService) UserExists(ctx context.Context, userID string) (bool, error) {
	return s.vault.Exists(ctx, userID)
}

// ListUserIDs returns every registered user.
func (s *MonitorService) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.vault.ListUserIDs(ctx)
}

// SetTimeWindow sets how many weeks ahead events are reported for userID.
func (s *MonitorService) SetTimeWindow(ctx context.Context, userID string, weeks int) error {
	if weeks < MinTimeWindowWeeks || weeks > MaxTimeWindowWeeks {
		return ErrInvalidTimeWindow
	}
	exists, err := s.vault.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrCredentialNotFound
	}
	return s.prefs.SetTimeWindow(ctx, userID, weeks)
}

// TimeWindow returns userID's look-ahead in weeks.
func (s *MonitorService) TimeWindow(ctx context.Context, userID string) (int, error) {
	return s.prefs.GetTimeWindow(ctx, userID)
}
