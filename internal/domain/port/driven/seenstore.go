package driven

import (
	"context"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
)

// SeenStore defines the driven port for per-user Seen-State persistence.
// Uses full replacement strategy: the recorded set is always exactly the
// filtered set of the last successful cycle.
type SeenStore interface {
	// Load returns the events recorded for userID. found is false when no
	// cycle has ever completed for the user (cold start); an empty recorded
	// set returns found=true with no events.
	Load(ctx context.Context, userID string) (events []model.Event, found bool, err error)
	// Replace atomically swaps the recorded set for userID.
	Replace(ctx context.Context, userID string, events []model.Event) error
	// Delete forgets userID's Seen-State, forcing a cold start next cycle.
	Delete(ctx context.Context, userID string) error
	// DeleteAll forgets every user's Seen-State.
	DeleteAll(ctx context.Context) error
}
