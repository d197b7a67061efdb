// Package moodle implements the Portal and CalendarParser ports against a
// Moodle LMS: the login-token handshake, the upcoming-events calendar page,
// and the markup of that page.
package moodle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
)

const (
	loginPath    = "/login/index.php"
	calendarPath = "/calendar/view.php"

	// MaxBodyBytes is the largest portal response accepted; bigger ones fail.
	MaxBodyBytes = 4 << 20
)

// Compile-time interface satisfaction check.
var _ driven.Portal = (*Client)(nil)

// Client logs in to a Moodle portal. It holds no per-user state: every Login
// builds a fresh cookie jar, so sessions never leak across users or cycles.
type Client struct {
	baseURL   *url.URL
	timeout   time.Duration
	limiter   *rate.Limiter
	transport http.RoundTripper
	userAgent string
}

// NewClient creates a portal client with the following request stack:
//  1. rate.Limiter (process-wide politeness limit shared by all users)
//  2. per-session cookie jar, redirects not followed
//  3. http.Client with a per-request timeout
//
// A nil limiter disables rate limiting.
func NewClient(baseURL string, timeout time.Duration, limiter *rate.Limiter) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing portal URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("portal URL %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("portal request timeout must be positive, got %s", timeout)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	return &Client{
		baseURL:   u,
		timeout:   timeout,
		limiter:   limiter,
		transport: http.DefaultTransport,
		userAgent: "lmsnotify/1.0",
	}, nil
}

// NewClientWithTransport creates a Client whose requests go through rt.
// This constructor is intended for testing, allowing injection of an
// httptest server's transport.
func NewClientWithTransport(baseURL string, timeout time.Duration, rt http.RoundTripper) (*Client, error) {
	c, err := NewClient(baseURL, timeout, nil)
	if err != nil {
		return nil, err
	}
	c.transport = rt
	return c, nil
}

// Login performs the Moodle handshake: fetch the login page, lift the hidden
// logintoken, and post the credentials without following the redirect. Only
// a redirect away from the login form counts as success.
func (c *Client) Login(ctx context.Context, username, password string) (driven.PortalSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	httpClient := &http.Client{
		Jar:       jar,
		Timeout:   c.timeout,
		Transport: c.transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	s := &Session{client: c, http: httpClient}

	loginURL := c.resolve(loginPath, nil)

	status, _, body, err := s.do(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		s.Close()
		return nil, err
	}
	if status != http.StatusOK {
		s.Close()
		return nil, classifyStatus(status, "login page")
	}

	token, err := findLoginToken(body)
	if err != nil {
		s.Close()
		return nil, model.NewParseDegradedError(err)
	}

	form := url.Values{
		"username":   {username},
		"password":   {password},
		"logintoken": {token},
	}
	status, location, _, err := s.do(ctx, http.MethodPost, loginURL, form)
	if err != nil {
		s.Close()
		return nil, err
	}

	switch {
	case isRedirect(status) && !isLoginFormRedirect(location):
		slog.Debug("portal login succeeded", "status", status, "redirect", redactQuery(location))
		return s, nil
	case isRedirect(status), status == http.StatusOK,
		status == http.StatusUnauthorized, status == http.StatusForbidden:
		s.Close()
		return nil, model.NewAuthError(fmt.Errorf("%w (status %d)", model.ErrBadCredentials, status))
	default:
		s.Close()
		return nil, classifyStatus(status, "login")
	}
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

// calendarURL is the upcoming-events view the portal renders for the logged-in user.
func (c *Client) calendarURL() string {
	return c.resolve(calendarPath, url.Values{"view": {"upcoming"}})
}

// Session is one authenticated portal context. It serves exactly one
// calendar fetch and is then spent.
type Session struct {
	client *Client
	http   *http.Client
	spent  bool
}

// ErrSessionSpent is returned when a session is asked for a second fetch.
var ErrSessionSpent = errors.New("portal session already used")

// FetchCalendar retrieves the upcoming-events page. The session is spent
// afterwards regardless of outcome.
func (s *Session) FetchCalendar(ctx context.Context) ([]byte, error) {
	if s.spent {
		return nil, ErrSessionSpent
	}
	s.spent = true
	defer s.Close()

	status, location, body, err := s.do(ctx, http.MethodGet, s.client.calendarURL(), nil)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusOK:
	case isRedirect(status) && isLoginFormRedirect(location):
		return nil, model.NewTransientError(errors.New("calendar redirected to login: session not authenticated"))
	default:
		return nil, classifyStatus(status, "calendar")
	}

	// Moodle answers 200 with the login form when the session cookie was not honoured.
	if bytes.Contains(body, []byte(`name="logintoken"`)) {
		return nil, model.NewTransientError(errors.New("calendar served login form: session not authenticated"))
	}

	return body, nil
}

// Close drops the session's cookies. The transport is shared across users,
// so idle connections are left to it.
func (s *Session) Close() {
	s.spent = true
	s.http.Jar = nil
}

// do issues one request, waiting on the shared limiter first. Transport
// failures and timeouts are classified transient.
func (s *Session) do(ctx context.Context, method, target string, form url.Values) (int, string, []byte, error) {
	if err := s.client.limiter.Wait(ctx); err != nil {
		return 0, "", nil, model.NewTransientError(fmt.Errorf("rate limiter: %w", err))
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, "", nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", s.client.userAgent)

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, "", nil, model.NewTransientError(fmt.Errorf("%s %s: %w", method, redactQuery(target), err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return 0, "", nil, model.NewTransientError(fmt.Errorf("read %s body: %w", redactQuery(target), err))
	}
	if len(data) > MaxBodyBytes {
		return 0, "", nil, model.NewParseDegradedError(
			fmt.Errorf("%s body exceeds %d bytes", redactQuery(target), MaxBodyBytes))
	}

	slog.Debug("portal request",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"bytes", len(data),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return resp.StatusCode, resp.Header.Get("Location"), data, nil
}

// classifyStatus maps an unexpected HTTP status to the error taxonomy. Only
// the login POST can prove credentials wrong, and Login handles that itself;
// a 401 or 403 on a page fetch is treated as transient.
func classifyStatus(status int, what string) error {
	return model.NewTransientError(fmt.Errorf("%s returned status %d", what, status))
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// isLoginFormRedirect reports whether location sends the browser back to the
// login form. Moodle's post-login "testsession" hop also targets the login
// script but indicates success.
func isLoginFormRedirect(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return true
	}
	if !strings.HasSuffix(u.Path, loginPath) {
		return false
	}
	return u.Query().Get("testsession") == ""
}

// redactQuery strips query strings so tokens never reach the logs.
func redactQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
