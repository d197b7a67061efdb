package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SeenStore = (*SeenRepo)(nil)

// SeenRepo is the SQLite implementation of the SeenStore port interface.
// A row in seen_state marks that a user has completed at least one cycle,
// which keeps an empty recorded set distinct from a cold start.
type SeenRepo struct {
	db *DB
}

// NewSeenRepo creates a new SeenRepo backed by the given DB.
func NewSeenRepo(db *DB) *SeenRepo {
	return &SeenRepo{db: db}
}

// Load returns the recorded events for userID in the order they were last observed.
func (r *SeenRepo) Load(ctx context.Context, userID string) ([]model.Event, bool, error) {
	const markerQuery = `SELECT EXISTS(SELECT 1 FROM seen_state WHERE user_id = ?)`
	var found bool
	if err := r.db.Reader.QueryRowContext(ctx, markerQuery, userID).Scan(&found); err != nil {
		return nil, false, fmt.Errorf("check seen state for %s: %w", userID, err)
	}
	if !found {
		return nil, false, nil
	}

	const query = `
		SELECT identity, title, category, date_text, course, url, event_unix
		FROM seen_events
		WHERE user_id = ?
		ORDER BY position
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, false, fmt.Errorf("query seen events for %s: %w", userID, err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanSeenEvent(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan seen event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate seen events: %w", err)
	}

	return events, true, nil
}

// Replace atomically swaps the recorded set for userID. It deletes existing
// rows and inserts the provided events in a single transaction.
func (r *SeenRepo) Replace(ctx context.Context, userID string, events []model.Event) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const markerQuery = `
		INSERT INTO seen_state (user_id) VALUES (?)
		ON CONFLICT(user_id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
	`
	if _, err := tx.ExecContext(ctx, markerQuery, userID); err != nil {
		return fmt.Errorf("mark seen state for %s: %w", userID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_events WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete seen events for %s: %w", userID, err)
	}

	const insertQuery = `
		INSERT INTO seen_events (user_id, position, identity, title, category, date_text, course, url, event_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, identity) DO NOTHING
	`
	for i, e := range events {
		var eventUnix any
		if !e.Timestamp.IsZero() {
			eventUnix = e.Timestamp.Unix()
		}
		if _, err := tx.ExecContext(ctx, insertQuery,
			userID, i, e.Identity, e.Title, e.Category, e.DateText, e.Course, e.URL, eventUnix,
		); err != nil {
			return fmt.Errorf("insert seen event for %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seen state for %s: %w", userID, err)
	}
	return nil
}

// Delete forgets userID's Seen-State. seen_events rows cascade.
func (r *SeenRepo) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM seen_state WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete seen state for %s: %w", userID, err)
	}
	return nil
}

// DeleteAll forgets every user's Seen-State.
func (r *SeenRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM seen_state`); err != nil {
		return fmt.Errorf("delete all seen state: %w", err)
	}
	return nil
}

func scanSeenEvent(s scanner) (model.Event, error) {
	var e model.Event
	var eventUnix sql.NullInt64

	if err := s.Scan(&e.Identity, &e.Title, &e.Category, &e.DateText, &e.Course, &e.URL, &eventUnix); err != nil {
		return model.Event{}, err
	}
	if eventUnix.Valid {
		e.Timestamp = time.Unix(eventUnix.Int64, 0).UTC()
	}
	return e, nil
}
