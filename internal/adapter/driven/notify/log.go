package notify

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the structured log. It is used when
// no webhook is configured so the service stays runnable in development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier writing to logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyEvents(_ context.Context, userID string, events []model.Event) error {
	for _, e := range events {
		n.logger.Info("new event",
			"user_id", userID,
			"title", e.Title,
			"category", e.Category,
			"date", e.DateText,
			"course", e.Course,
		)
	}
	return nil
}

func (n *LogNotifier) NotifyReregister(_ context.Context, userID string, kind model.ErrorKind) error {
	n.logger.Warn("user must re-register", "user_id", userID, "kind", string(kind))
	return nil
}
