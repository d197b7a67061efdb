package application

import (
	"strings"
	"time"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
)

// categoryRulePrefix marks a rule that matches the event category exactly
// instead of as a substring of category or title.
const categoryRulePrefix = "category:"

// AttendanceRules decides which events are attendance noise. Rules are
// case-insensitive; a plain rule matches as a substring of the category or,
// as a fallback, the title, while a "category:" rule matches the category tag
// exactly.
type AttendanceRules struct {
	substrings []string
	categories []string
}

// NewAttendanceRules builds rules from configuration strings. Blank entries
// are ignored.
func NewAttendanceRules(rules []string) AttendanceRules {
	var r AttendanceRules
	for _, raw := range rules {
		rule := strings.ToLower(strings.TrimSpace(raw))
		if tag, ok := strings.CutPrefix(rule, categoryRulePrefix); ok {
			if tag = strings.TrimSpace(tag); tag != "" {
				r.categories = append(r.categories, tag)
			}
			continue
		}
		if rule != "" {
			r.substrings = append(r.substrings, rule)
		}
	}
	return r
}

// Matches reports whether e is attendance-class.
func (r AttendanceRules) Matches(e model.Event) bool {
	category := strings.ToLower(e.Category)
	for _, tag := range r.categories {
		if category == tag {
			return true
		}
	}

	title := strings.ToLower(e.Title)
	for _, sub := range r.substrings {
		if strings.Contains(category, sub) || strings.Contains(title, sub) {
			return true
		}
	}
	return false
}

// Len returns the number of configured rules.
func (r AttendanceRules) Len() int {
	return len(r.substrings) + len(r.categories)
}

// FilterEvents drops attendance-class events and, when horizon is non-zero,
// events the portal dates after horizon. Events without a portal timestamp
// are never dropped by the horizon. Order is preserved.
func FilterEvents(events []model.Event, rules AttendanceRules, horizon time.Time) ([]model.Event, int) {
	kept := make([]model.Event, 0, len(events))
	for _, e := range events {
		if rules.Matches(e) {
			continue
		}
		if !horizon.IsZero() && !e.Timestamp.IsZero() && e.Timestamp.After(horizon) {
			continue
		}
		kept = append(kept, e)
	}
	return kept, len(events) - len(kept)
}

// windowHorizon returns the latest portal timestamp still inside a look-ahead
// of weeks from now. A non-positive window disables the horizon.
func windowHorizon(now time.Time, weeks int) time.Time {
	if weeks <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(weeks) * 7 * 24 * time.Hour)
}
