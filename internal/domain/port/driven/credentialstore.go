package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialVault operations when the
// adapter was built without an encryption key. The daemon always loads or
// generates one at startup, so this indicates a wiring error.
var ErrEncryptionKeyNotSet = errors.New("credential vault has no encryption key loaded")

// CredentialVault defines the driven port for encrypted per-user portal
// credentials. The adapter owns encryption; this interface speaks plaintext
// at the domain boundary and callers must not retain the returned values
// beyond one check cycle.
type CredentialVault interface {
	// Put encrypts and stores the login pair for userID, replacing any
	// previous registration.
	Put(ctx context.Context, userID, username, password string) error

	// Get decrypts the login pair for userID. Returns (nil, nil) if the user
	// never registered. A record that cannot be decrypted yields an error
	// classified as model.ErrorKindCredential.
	Get(ctx context.Context, userID string) (*model.Credential, error)

	// Exists reports whether userID has a stored credential without decrypting it.
	Exists(ctx context.Context, userID string) (bool, error)

	// ListUserIDs returns every registered user, ordered by user ID.
	ListUserIDs(ctx context.Context) ([]string, error)

	// Delete removes the credential for userID. Deleting a missing user is not an error.
	Delete(ctx context.Context, userID string) error

	// DeleteAll removes every stored credential.
	DeleteAll(ctx context.Context) error
}
