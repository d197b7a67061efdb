package driven

import (
	"context"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
)

// Notifier defines the driven port for delivering messages to chat users.
// It delivers; it never decides what is new.
type Notifier interface {
	// NotifyEvents delivers the new events found for userID, in portal order.
	NotifyEvents(ctx context.Context, userID string, events []model.Event) error
	// NotifyReregister tells userID their stored credential no longer works.
	NotifyReregister(ctx context.Context, userID string, kind model.ErrorKind) error
}
