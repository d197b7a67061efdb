package driven

import "context"

// DefaultTimeWindowWeeks is the look-ahead applied when a user has not set one.
const DefaultTimeWindowWeeks = 2

// PreferenceStore defines the driven port for per-user notification preferences.
type PreferenceStore interface {
	// GetTimeWindow returns the look-ahead in weeks for userID, or
	// DefaultTimeWindowWeeks when the user never set one.
	GetTimeWindow(ctx context.Context, userID string) (int, error)
	// SetTimeWindow stores the look-ahead in weeks for userID.
	SetTimeWindow(ctx context.Context, userID string, weeks int) error
	Delete(ctx context.Context, userID string) error
	DeleteAll(ctx context.Context) error
}
