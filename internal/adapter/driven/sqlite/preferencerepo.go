package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PreferenceStore = (*PreferenceRepo)(nil)

// PreferenceRepo is the SQLite implementation of the PreferenceStore port interface.
type PreferenceRepo struct {
	db *DB
}

// NewPreferenceRepo creates a new PreferenceRepo backed by the given DB.
func NewPreferenceRepo(db *DB) *PreferenceRepo {
	return &PreferenceRepo{db: db}
}

// GetTimeWindow returns the user's look-ahead in weeks, defaulting when unset.
func (r *PreferenceRepo) GetTimeWindow(ctx context.Context, userID string) (int, error) {
	const query = `SELECT time_window_weeks FROM user_preferences WHERE user_id = ?`
	var weeks int
	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&weeks)
	if errors.Is(err, sql.ErrNoRows) {
		return driven.DefaultTimeWindowWeeks, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get time window for %s: %w", userID, err)
	}
	return weeks, nil
}

// SetTimeWindow inserts or replaces the user's look-ahead.
func (r *PreferenceRepo) SetTimeWindow(ctx context.Context, userID string, weeks int) error {
	const query = `
		INSERT INTO user_preferences (user_id, time_window_weeks)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET time_window_weeks = excluded.time_window_weeks
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, userID, weeks); err != nil {
		return fmt.Errorf("set time window for %s: %w", userID, err)
	}
	return nil
}

// Delete removes the user's preferences.
func (r *PreferenceRepo) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM user_preferences WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete preferences for %s: %w", userID, err)
	}
	return nil
}

// DeleteAll removes every user's preferences.
func (r *PreferenceRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM user_preferences`); err != nil {
		return fmt.Errorf("delete all preferences: %w", err)
	}
	return nil
}
