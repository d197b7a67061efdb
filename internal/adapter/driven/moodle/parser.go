package moodle

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CalendarParser = (*CalendarParser)(nil)

// Structural anchors of the upcoming-events page. Every selector the
// monitor depends on lives here.
const (
	eventClass    = "event"
	titleClass    = "name"
	rowClass      = "row"
	valueColClass = "col-11"
	linkClass     = "card-link"
)

// calendarMarkers are classes that prove the page is a calendar view even
// when it lists no events.
var calendarMarkers = []string{"calendarwrapper", "calendar-no-results", "eventlist", "maincalendar"}

// componentCategories maps Moodle activity components to event categories.
var componentCategories = map[string]string{
	"mod_assign":     "assignment",
	"mod_quiz":       "quiz",
	"mod_attendance": "attendance",
	"mod_lesson":     "lesson",
	"mod_forum":      "forum",
	"mod_workshop":   "workshop",
	"mod_choice":     "choice",
	"mod_feedback":   "feedback",
	"mod_vpl":        "lab",
}

// titleCategories is the fallback classification when markup carries no
// component, checked in order against whole words of the title.
var titleCategories = []struct {
	keyword  string
	category string
}{
	{"attendance", "attendance"},
	{"quiz", "quiz"},
	{"quizzes", "quiz"},
	{"lab", "lab"},
	{"assignment", "assignment"},
	{"exam", "exam"},
}

var errEmptyPage = errors.New("calendar page is empty")

// CalendarParser extracts events from Moodle's upcoming-events page.
type CalendarParser struct{}

// NewCalendarParser creates a CalendarParser.
func NewCalendarParser() *CalendarParser {
	return &CalendarParser{}
}

// Parse returns events in page order. Entries missing a title or date are
// skipped and counted. A non-empty page with no event nodes and no calendar
// markers, or one whose every event node is malformed, is reported as a
// parse-degraded error.
func (p *CalendarParser) Parse(raw []byte) (model.ParseResult, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return model.ParseResult{}, model.NewParseDegradedError(errEmptyPage)
	}

	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return model.ParseResult{}, model.NewParseDegradedError(fmt.Errorf("parse calendar html: %w", err))
	}

	nodes := findAll(doc, func(n *html.Node) bool { return hasClass(n, eventClass) })
	if len(nodes) == 0 {
		if hasCalendarMarker(doc) {
			return model.ParseResult{Events: []model.Event{}}, nil
		}
		return model.ParseResult{}, model.NewParseDegradedError(model.ErrStructureChanged)
	}

	result := model.ParseResult{Events: make([]model.Event, 0, len(nodes)), Matched: len(nodes)}
	for i, n := range nodes {
		event, ok := parseEvent(n)
		if !ok {
			result.Skipped++
			slog.Debug("skipped malformed calendar entry", "index", i)
			continue
		}
		result.Events = append(result.Events, event)
	}

	if len(result.Events) == 0 {
		return result, model.NewParseDegradedError(
			fmt.Errorf("%w: all %d event entries malformed", model.ErrStructureChanged, result.Matched))
	}

	return result, nil
}

func parseEvent(n *html.Node) (model.Event, bool) {
	title := ""
	if t := findFirst(n, func(c *html.Node) bool { return hasClass(c, titleClass) }); t != nil {
		title = textContent(t)
	}
	if title == "" {
		title = strings.TrimSpace(attr(n, "data-event-title"))
	}
	if title == "" {
		return model.Event{}, false
	}

	rows := findAll(n, func(c *html.Node) bool { return hasClass(c, rowClass) })
	if len(rows) == 0 {
		return model.Event{}, false
	}
	dateCol := findFirst(rows[0], func(c *html.Node) bool { return hasClass(c, valueColClass) })
	if dateCol == nil {
		return model.Event{}, false
	}
	dateText := textContent(dateCol)
	if dateText == "" {
		return model.Event{}, false
	}

	event := model.NewEvent(title, classify(n, title), dateText)
	event.Course = courseName(rows[1:])
	event.URL = eventURL(n)

	// The day label turns into "Today" or "Tomorrow" as the event nears, so
	// identity is anchored on the day link or the portal's event id when
	// either is present.
	dayLink, day := dayTimestamp(dateCol)
	switch {
	case !day.IsZero():
		event.Timestamp = day
		event.Identity = model.DatedIdentity(event.Title, day, clockText(dateText, textContent(dayLink)))
	case attr(n, "data-event-id") != "":
		event.Identity = model.EventIdentity(event.Title, "event#"+strings.TrimSpace(attr(n, "data-event-id")))
	}
	return event, true
}

// clockText returns what follows the day link in the date column, usually
// the time of day: "Tomorrow, 11:59 PM" with link text "Tomorrow" gives
// "11:59 PM".
func clockText(dateText, dayText string) string {
	rest := strings.TrimPrefix(dateText, dayText)
	return strings.TrimSpace(strings.TrimLeft(rest, ", "))
}

// classify derives the category from the component attribute, then the
// header's calendar_event_* class, then keywords in the title.
func classify(n *html.Node, title string) string {
	if component := attr(n, "data-event-component"); component != "" {
		if category, ok := componentCategories[component]; ok {
			return category
		}
		return strings.TrimPrefix(component, "mod_")
	}

	words := titleWords(title)
	for _, tc := range titleCategories {
		for _, w := range words {
			if w == tc.keyword || w == tc.keyword+"s" || w == tc.keyword+"es" {
				return tc.category
			}
		}
	}

	if eventType := attr(n, "data-event-eventtype"); eventType != "" {
		return eventType
	}
	return "event"
}

// titleWords splits a title into lower-case words of letters only, so "Lab3"
// yields "lab" while "Syllabus" stays whole.
func titleWords(title string) []string {
	return strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// dayTimestamp reads the time= parameter of the day-view link Moodle places
// in the date column. The time is zero when there is no usable link.
func dayTimestamp(dateCol *html.Node) (*html.Node, time.Time) {
	link := findFirst(dateCol, func(c *html.Node) bool {
		return c.DataAtom == atom.A && strings.Contains(attr(c, "href"), "time=")
	})
	if link == nil {
		return nil, time.Time{}
	}
	u, err := url.Parse(attr(link, "href"))
	if err != nil {
		return nil, time.Time{}
	}
	secs, err := strconv.ParseInt(u.Query().Get("time"), 10, 64)
	if err != nil || secs <= 0 {
		return nil, time.Time{}
	}
	return link, time.Unix(secs, 0).UTC()
}

func courseName(rows []*html.Node) string {
	for _, row := range rows {
		link := findFirst(row, func(c *html.Node) bool {
			return c.DataAtom == atom.A && strings.Contains(attr(c, "href"), "/course/view.php")
		})
		if link != nil {
			return textContent(link)
		}
	}
	return ""
}

func eventURL(n *html.Node) string {
	if link := findFirst(n, func(c *html.Node) bool { return c.DataAtom == atom.A && hasClass(c, linkClass) }); link != nil {
		return attr(link, "href")
	}
	return ""
}

func hasCalendarMarker(doc *html.Node) bool {
	return findFirst(doc, func(n *html.Node) bool {
		if attr(n, "data-region") == "calendar" {
			return true
		}
		for _, marker := range calendarMarkers {
			if hasClass(n, marker) {
				return true
			}
		}
		return false
	}) != nil
}

// findAll returns matching elements in document order without descending
// into a match, so nested markup inside an event is never counted twice.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && match(c) {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// textContent returns the whitespace-collapsed text beneath n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// findLoginToken lifts the hidden logintoken input from the login form.
func findLoginToken(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse login page: %w", err)
	}
	input := findFirst(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Input && attr(n, "name") == "logintoken"
	})
	if input == nil {
		return "", errors.New("login token not found on login page")
	}
	return attr(input, "value"), nil
}
