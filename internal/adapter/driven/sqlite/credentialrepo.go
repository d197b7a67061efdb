package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
	"github.com/ericfisherdev/lmsnotify/internal/secret"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialVault = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialVault port.
// Username and password are sealed independently with the process-wide Box
// before write and opened after read; plaintext never reaches the database.
type CredentialRepo struct {
	db  *DB
	box *secret.Box // nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. A nil box makes every
// operation that touches ciphertext return driven.ErrEncryptionKeyNotSet.
func NewCredentialRepo(db *DB, box *secret.Box) *CredentialRepo {
	return &CredentialRepo{db: db, box: box}
}

// Put stores or replaces the login pair for userID.
func (r *CredentialRepo) Put(ctx context.Context, userID, username, password string) error {
	if r.box == nil {
		return driven.ErrEncryptionKeyNotSet
	}

	encUser, err := r.box.Seal(username)
	if err != nil {
		return fmt.Errorf("seal username for %s: %w", userID, err)
	}
	encPass, err := r.box.Seal(password)
	if err != nil {
		return fmt.Errorf("seal password for %s: %w", userID, err)
	}

	const query = `
		INSERT INTO users (user_id, encrypted_username, encrypted_password)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			encrypted_username = excluded.encrypted_username,
			encrypted_password = excluded.encrypted_password,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, userID, encUser, encPass); err != nil {
		return fmt.Errorf("put credential for %s: %w", userID, err)
	}
	return nil
}

// Get returns the decrypted login pair for userID, or (nil, nil) if the user
// never registered. A record that fails to decrypt is reported as a
// credential error rather than returned as garbage.
func (r *CredentialRepo) Get(ctx context.Context, userID string) (*model.Credential, error) {
	if r.box == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT encrypted_username, encrypted_password, updated_at FROM users WHERE user_id = ?`
	var encUser, encPass, updatedAt string
	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&encUser, &encPass, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for %s: %w", userID, err)
	}

	username, err := r.box.Open(encUser)
	if err != nil {
		return nil, model.NewCredentialError(fmt.Errorf("open username for %s: %w", userID, err))
	}
	password, err := r.box.Open(encPass)
	if err != nil {
		return nil, model.NewCredentialError(fmt.Errorf("open password for %s: %w", userID, err))
	}

	cred := &model.Credential{UserID: userID, Username: username, Password: password}
	cred.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", userID, err)
	}
	return cred, nil
}

// Exists reports whether userID has registered.
func (r *CredentialRepo) Exists(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = ?)`
	var exists bool
	if err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check credential for %s: %w", userID, err)
	}
	return exists, nil
}

// ListUserIDs returns every registered user ID in ascending order.
func (r *CredentialRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT user_id FROM users ORDER BY user_id`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return ids, nil
}

// Delete removes the credential for userID.
func (r *CredentialRepo) Delete(ctx context.Context, userID string) error {
	const query = `DELETE FROM users WHERE user_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("delete credential for %s: %w", userID, err)
	}
	return nil
}

// DeleteAll removes every stored credential.
func (r *CredentialRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("delete all credentials: %w", err)
	}
	return nil
}
