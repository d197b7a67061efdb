// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/lmsnotify/internal/secret"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	PortalURL           string
	PollInterval        time.Duration
	InitialDelay        time.Duration
	HTTPTimeout         time.Duration
	CheckTimeout        time.Duration
	MaxConcurrentChecks int
	PortalRate          float64
	AttendanceRules     []string
	ListenAddr          string
	DBPath              string
	SecretKey           []byte
	SecretKeyFile       string
	WebhookURL          string
	AdminToken          string
}

// HasSecretKey returns true when the encryption key was supplied directly.
// Otherwise the composition root loads or creates SecretKeyFile.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) > 0
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional. Defaults: LMSNOTIFY_PORTAL_URL
// (https://lmsug23.iiitkottayam.ac.in), LMSNOTIFY_POLL_INTERVAL (30m),
// LMSNOTIFY_INITIAL_DELAY (1m), LMSNOTIFY_HTTP_TIMEOUT (15s),
// LMSNOTIFY_CHECK_TIMEOUT (2m), LMSNOTIFY_MAX_CONCURRENT_CHECKS (4),
// LMSNOTIFY_PORTAL_RATE (2), LMSNOTIFY_ATTENDANCE_RULES (attendance),
// LMSNOTIFY_LISTEN_ADDR (127.0.0.1:8080), LMSNOTIFY_DB_PATH (lmsnotify.db),
// LMSNOTIFY_SECRET_KEY_FILE (encryption_key.key).
func Load() (*Config, error) {
	cfg := &Config{
		PortalURL:           "https://lmsug23.iiitkottayam.ac.in",
		PollInterval:        30 * time.Minute,
		InitialDelay:        time.Minute,
		HTTPTimeout:         15 * time.Second,
		CheckTimeout:        2 * time.Minute,
		MaxConcurrentChecks: 4,
		PortalRate:          2,
		AttendanceRules:     []string{"attendance"},
		ListenAddr:          "127.0.0.1:8080",
		DBPath:              "lmsnotify.db",
		SecretKeyFile:       "encryption_key.key",
		WebhookURL:          os.Getenv("LMSNOTIFY_WEBHOOK_URL"),
		AdminToken:          os.Getenv("LMSNOTIFY_ADMIN_TOKEN"),
	}

	if v, ok := os.LookupEnv("LMSNOTIFY_PORTAL_URL"); ok {
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("LMSNOTIFY_PORTAL_URL must be an absolute URL, got %q", v)
		}
		cfg.PortalURL = strings.TrimRight(v, "/")
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LMSNOTIFY_POLL_INTERVAL", &cfg.PollInterval},
		{"LMSNOTIFY_INITIAL_DELAY", &cfg.InitialDelay},
		{"LMSNOTIFY_HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"LMSNOTIFY_CHECK_TIMEOUT", &cfg.CheckTimeout},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s has invalid duration %q: %w", d.key, v, err)
		}
		*d.dst = parsed
	}
	if cfg.InitialDelay < 0 {
		return nil, fmt.Errorf("LMSNOTIFY_INITIAL_DELAY must not be negative")
	}
	// Every network call and every cycle must be bounded.
	for _, d := range durations {
		if d.dst != &cfg.InitialDelay && *d.dst <= 0 {
			return nil, fmt.Errorf("%s must be positive", d.key)
		}
	}

	if v, ok := os.LookupEnv("LMSNOTIFY_MAX_CONCURRENT_CHECKS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("LMSNOTIFY_MAX_CONCURRENT_CHECKS must be a positive integer, got %q", v)
		}
		cfg.MaxConcurrentChecks = n
	}

	if v, ok := os.LookupEnv("LMSNOTIFY_PORTAL_RATE"); ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			return nil, fmt.Errorf("LMSNOTIFY_PORTAL_RATE must be a positive number, got %q", v)
		}
		cfg.PortalRate = r
	}

	if v, ok := os.LookupEnv("LMSNOTIFY_ATTENDANCE_RULES"); ok {
		var rules []string
		for _, rule := range strings.Split(v, ",") {
			rule = strings.TrimSpace(rule)
			if rule != "" {
				rules = append(rules, rule)
			}
		}
		if rules == nil {
			rules = []string{}
		}
		cfg.AttendanceRules = rules
	}

	if v, ok := os.LookupEnv("LMSNOTIFY_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	if v, ok := os.LookupEnv("LMSNOTIFY_DB_PATH"); ok {
		cfg.DBPath = v
	}

	if v, ok := os.LookupEnv("LMSNOTIFY_SECRET_KEY_FILE"); ok && v != "" {
		cfg.SecretKeyFile = v
	}

	if v := os.Getenv("LMSNOTIFY_SECRET_KEY"); v != "" {
		key, err := secret.ParseHexKey(v)
		if err != nil {
			return nil, fmt.Errorf("LMSNOTIFY_SECRET_KEY: %w", err)
		}
		cfg.SecretKey = key
	}

	return cfg, nil
}
