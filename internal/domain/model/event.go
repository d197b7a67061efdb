package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Event is one calendar entry scraped from the portal's upcoming view.
// The portal assigns no durable identifier, so equality across check cycles
// is decided solely by Identity.
type Event struct {
	Identity string
	Title    string
	Category string
	DateText string
	Course   string
	URL      string
	// Timestamp is the day the portal links the event to. Zero when the
	// markup carried no machine-readable time.
	Timestamp time.Time
}

// NewEvent builds an Event and derives its identity from title and date text.
func NewEvent(title, category, dateText string) Event {
	title = collapseSpace(title)
	dateText = collapseSpace(dateText)
	return Event{
		Identity: EventIdentity(title, dateText),
		Title:    title,
		Category: strings.ToLower(collapseSpace(category)),
		DateText: dateText,
	}
}

// EventIdentity returns the fingerprint for an event known only by its date
// text: the hex SHA-256 of the case-folded, whitespace-collapsed title and
// date joined by a unit separator. Parsers prefer DatedIdentity when the
// portal supplies a machine-readable day.
func EventIdentity(title, dateText string) string {
	return fingerprint(strings.ToLower(collapseSpace(title)) + "\x1f" + strings.ToLower(collapseSpace(dateText)))
}

// DatedIdentity returns the fingerprint for an event the portal ties to a
// concrete day: the title, the day's Unix time and the time-of-day text. It
// is unaffected by relative day labels such as "Today" or "Tomorrow", which
// the portal substitutes for the weekday as an event approaches.
func DatedIdentity(title string, day time.Time, clock string) string {
	key := strings.ToLower(collapseSpace(title)) +
		"\x1f@" + strconv.FormatInt(day.Unix(), 10) +
		"\x1f" + strings.ToLower(collapseSpace(clock))
	return fingerprint(key)
}

// Summary renders the event as the markdown line used in notifications.
func (e Event) Summary() string {
	date := e.DateText
	if date == "" {
		date = "Unknown Date"
	}
	return "📅 **" + date + "**\n📌 " + e.Title
}

func fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
