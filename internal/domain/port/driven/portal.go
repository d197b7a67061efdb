package driven

import (
	"context"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
)

// Portal defines the driven port for authenticating against the LMS.
// Errors are classified with the model.CheckError taxonomy: a rejected login
// is ErrorKindAuth, an unreachable portal is ErrorKindTransient.
type Portal interface {
	// Login performs a fresh login and returns a fully authenticated session.
	// A session that fails any step of the handshake is never returned.
	Login(ctx context.Context, username, password string) (PortalSession, error)
}

// PortalSession is a single-use authenticated portal context.
type PortalSession interface {
	// FetchCalendar retrieves the raw upcoming-events page. A session serves
	// exactly one fetch; later calls fail.
	FetchCalendar(ctx context.Context) ([]byte, error)
	// Close discards cookies and releases idle connections.
	Close()
}

// CalendarParser converts a raw calendar page into events. All
// portal-specific selectors live behind this interface.
type CalendarParser interface {
	Parse(raw []byte) (model.ParseResult, error)
}
