package application_test

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockVault struct {
	mu     sync.Mutex
	creds  map[string]model.Credential
	getErr error
}

func newMockVault() *mockVault {
	return &mockVault{creds: make(map[string]model.Credential)}
}

func (m *mockVault) Put(_ context.Context, userID, username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[userID] = model.Credential{UserID: userID, Username: username, Password: password}
	return nil
}

func (m *mockVault) Get(_ context.Context, userID string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	cred, ok := m.creds[userID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (m *mockVault) Exists(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.creds[userID]
	return ok, nil
}

func (m *mockVault) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.creds))
	for id := range m.creds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockVault) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, userID)
	return nil
}

func (m *mockVault) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = make(map[string]model.Credential)
	return nil
}

type mockSeenStore struct {
	mu         sync.Mutex
	state      map[string][]model.Event
	replaceErr error
	replaces   int
}

func newMockSeenStore() *mockSeenStore {
	return &mockSeenStore{state: make(map[string][]model.Event)}
}

func (m *mockSeenStore) Load(_ context.Context, userID string) ([]model.Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events, ok := m.state[userID]
	return events, ok, nil
}

func (m *mockSeenStore) Replace(_ context.Context, userID string, events []model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaces++
	m.state[userID] = append([]model.Event{}, events...)
	return nil
}

func (m *mockSeenStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, userID)
	return nil
}

func (m *mockSeenStore) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = make(map[string][]model.Event)
	return nil
}

func (m *mockSeenStore) get(userID string) ([]model.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events, ok := m.state[userID]
	return events, ok
}

type mockPrefs struct {
	mu    sync.Mutex
	weeks map[string]int
}

func newMockPrefs() *mockPrefs {
	return &mockPrefs{weeks: make(map[string]int)}
}

func (m *mockPrefs) GetTimeWindow(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.weeks[userID]; ok {
		return w, nil
	}
	return driven.DefaultTimeWindowWeeks, nil
}

func (m *mockPrefs) SetTimeWindow(_ context.Context, userID string, weeks int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weeks[userID] = weeks
	return nil
}

func (m *mockPrefs) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.weeks, userID)
	return nil
}

func (m *mockPrefs) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weeks = make(map[string]int)
	return nil
}

// mockPortal returns canned calendar bodies keyed by username.
type mockPortal struct {
	mu       sync.Mutex
	login    func(ctx context.Context, username, password string) error
	bodies   map[string]string
	fetchErr error
	logins   int
	closed   int
}

func (m *mockPortal) Login(ctx context.Context, username, password string) (driven.PortalSession, error) {
	m.mu.Lock()
	m.logins++
	login := m.login
	m.mu.Unlock()

	if login != nil {
		if err := login(ctx, username, password); err != nil {
			return nil, err
		}
	}
	return &mockSession{portal: m, username: username}, nil
}

func (m *mockPortal) setBody(username, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bodies == nil {
		m.bodies = make(map[string]string)
	}
	m.bodies[username] = body
}

func (m *mockPortal) loginCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins
}

type mockSession struct {
	portal   *mockPortal
	username string
}

func (s *mockSession) FetchCalendar(_ context.Context) ([]byte, error) {
	s.portal.mu.Lock()
	defer s.portal.mu.Unlock()
	if s.portal.fetchErr != nil {
		return nil, s.portal.fetchErr
	}
	return []byte(s.portal.bodies[s.username]), nil
}

func (s *mockSession) Close() {
	s.portal.mu.Lock()
	defer s.portal.mu.Unlock()
	s.portal.closed++
}

// mockParser reads one event per line as "title|category|date".
type mockParser struct {
	err error
}

func (m *mockParser) Parse(raw []byte) (model.ParseResult, error) {
	if m.err != nil {
		return model.ParseResult{}, m.err
	}
	result := model.ParseResult{Events: []model.Event{}}
	for _, line := range splitLines(string(raw)) {
		parts := splitFields(line)
		result.Matched++
		if len(parts) != 3 {
			result.Skipped++
			continue
		}
		result.Events = append(result.Events, model.NewEvent(parts[0], parts[1], parts[2]))
	}
	return result, nil
}

type notifyCall struct {
	UserID string
	Events []model.Event
}

type mockNotifier struct {
	mu         sync.Mutex
	calls      []notifyCall
	reregister []string
	err        error
}

func (m *mockNotifier) NotifyEvents(_ context.Context, userID string, events []model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, notifyCall{UserID: userID, Events: events})
	return nil
}

func (m *mockNotifier) NotifyReregister(_ context.Context, userID string, _ model.ErrorKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reregister = append(m.reregister, userID)
	return nil
}

func (m *mockNotifier) snapshot() ([]notifyCall, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notifyCall{}, m.calls...), append([]string{}, m.reregister...)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitFields(line string) []string {
	return strings.Split(line, "|")
}
