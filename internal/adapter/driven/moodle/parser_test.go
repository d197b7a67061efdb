package moodle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestParse_UpcomingPage(t *testing.T) {
	result, err := NewCalendarParser().Parse(readFixture(t, "upcoming.html"))
	require.NoError(t, err)

	assert.Equal(t, 5, result.Matched)
	assert.Equal(t, 2, result.Skipped, "blank title and missing date rows are skipped")
	require.Len(t, result.Events, 3)

	first := result.Events[0]
	assert.Equal(t, "Assignment 1 is due", first.Title)
	assert.Equal(t, "assignment", first.Category)
	assert.Equal(t, "Thursday, 16 October, 11:59 PM", first.DateText)
	assert.Equal(t, "CS2001 Data Structures", first.Course)
	assert.Equal(t, "https://lms.example.edu/mod/assign/view.php?id=777", first.URL)
	assert.True(t, time.Unix(1760572800, 0).Equal(first.Timestamp))
	assert.Equal(t, model.DatedIdentity("Assignment 1 is due", time.Unix(1760572800, 0), "11:59 PM"), first.Identity)

	assert.Equal(t, "Morning Attendance", result.Events[1].Title)
	assert.Equal(t, "attendance", result.Events[1].Category)

	lab := result.Events[2]
	assert.Equal(t, "Lab 3 submission", lab.Title)
	assert.Equal(t, "lab", lab.Category, "title keyword classifies events without a component")
	assert.True(t, lab.Timestamp.IsZero())
	assert.Empty(t, lab.Course)
	assert.Equal(t, model.EventIdentity("Lab 3 submission", "event#104"), lab.Identity)
}

func upcomingEvent(dayLabel string) []byte {
	return []byte(`<div class="eventlist"><div class="event" data-event-component="mod_quiz">
		<h3 class="name">Quiz 2 closes</h3>
		<div class="row"><div class="col-11"><a href="https://lms.example.edu/calendar/view.php?view=day&amp;time=1760659200">` +
		dayLabel + `</a>, 11:59 PM</div></div></div></div>`)
}

func TestParse_IdentitySurvivesRelativeDayLabel(t *testing.T) {
	p := NewCalendarParser()

	earlier, err := p.Parse(upcomingEvent("Friday, 17 October"))
	require.NoError(t, err)
	later, err := p.Parse(upcomingEvent("Tomorrow"))
	require.NoError(t, err)
	require.Len(t, earlier.Events, 1)
	require.Len(t, later.Events, 1)

	assert.Equal(t, "Tomorrow, 11:59 PM", later.Events[0].DateText)
	assert.Equal(t, earlier.Events[0].Identity, later.Events[0].Identity)
}

func TestParse_IdentityFallsBackToDateText(t *testing.T) {
	raw := []byte(`<div class="event"><h3 class="name">Viva</h3>
		<div class="row"><div class="col-11">Monday, 20 October</div></div></div>`)

	result, err := NewCalendarParser().Parse(raw)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, model.EventIdentity("Viva", "Monday, 20 October"), result.Events[0].Identity)
}

func TestClassify_TitleKeywordsMatchWholeWords(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Lab3 submission", "lab"},
		{"Weekly labs", "lab"},
		{"Syllabus review", "event"},
		{"Collaboration session", "event"},
		{"Practice quizzes", "quiz"},
		{"Mid-term exam", "exam"},
		{"Examination board", "event"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			raw := []byte(`<div class="event"><h3 class="name">` + tt.title + `</h3>
				<div class="row"><div class="col-11">Monday, 20 October</div></div></div>`)

			result, err := NewCalendarParser().Parse(raw)
			require.NoError(t, err)
			require.Len(t, result.Events, 1)
			assert.Equal(t, tt.want, result.Events[0].Category)
		})
	}
}

func TestParse_IsDeterministic(t *testing.T) {
	raw := readFixture(t, "upcoming.html")
	p := NewCalendarParser()

	a, err := p.Parse(raw)
	require.NoError(t, err)
	b, err := p.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestParse_NoUpcomingEvents(t *testing.T) {
	result, err := NewCalendarParser().Parse(readFixture(t, "empty.html"))
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	assert.Zero(t, result.Matched)
}

func TestParse_StructureChanged(t *testing.T) {
	_, err := NewCalendarParser().Parse(readFixture(t, "redesigned.html"))
	require.Error(t, err)
	assert.Equal(t, model.ErrorKindParseDegraded, model.KindOf(err))
	assert.True(t, errors.Is(err, model.ErrStructureChanged))
}

func TestParse_AllEntriesMalformed(t *testing.T) {
	raw := []byte(`<div class="eventlist"><div class="event"><h3 class="name"></h3></div><div class="event"></div></div>`)

	result, err := NewCalendarParser().Parse(raw)
	require.Error(t, err)
	assert.Equal(t, model.ErrorKindParseDegraded, model.KindOf(err))
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 2, result.Skipped)
}

func TestParse_EmptyBody(t *testing.T) {
	_, err := NewCalendarParser().Parse([]byte("  \n"))
	assert.Equal(t, model.ErrorKindParseDegraded, model.KindOf(err))
}

func TestParse_TitleFallsBackToDataAttribute(t *testing.T) {
	raw := []byte(`<div class="event" data-event-title="Quiz 4 closes" data-event-component="mod_quiz">
		<div class="row"><div class="col-11">Wednesday, 22 October</div></div></div>`)

	result, err := NewCalendarParser().Parse(raw)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "Quiz 4 closes", result.Events[0].Title)
	assert.Equal(t, "quiz", result.Events[0].Category)
}

func TestClassify_UnknownComponent(t *testing.T) {
	raw := []byte(`<div class="event" data-event-component="mod_hvp">
		<h3 class="name">Interactive video</h3>
		<div class="row"><div class="col-11">Today</div></div></div>`)

	result, err := NewCalendarParser().Parse(raw)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "hvp", result.Events[0].Category)
}

func TestFindLoginToken(t *testing.T) {
	token, err := findLoginToken(readFixture(t, "login.html"))
	require.NoError(t, err)
	assert.Equal(t, "tok-abc123", token)

	_, err = findLoginToken([]byte("<html><body>maintenance</body></html>"))
	assert.Error(t, err)
}
