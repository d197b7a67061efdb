package sqlite

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/lmsnotify/internal/domain/model"
	"github.com/ericfisherdev/lmsnotify/internal/domain/port/driven"
	"github.com/ericfisherdev/lmsnotify/internal/secret"
)

func TestCredentialRepo_PutAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testBox(t))
	ctx := context.Background()

	err := repo.Put(ctx, "1001", "alice", "secret")
	require.NoError(t, err)

	cred, err := repo.Get(ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "1001", cred.UserID)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "secret", cred.Password)
	assert.False(t, cred.UpdatedAt.IsZero())
}

func TestCredentialRepo_StoresCiphertextOnly(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testBox(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "1001", "alice", "secret"))

	var encUser, encPass string
	err := db.Reader.QueryRowContext(ctx,
		`SELECT encrypted_username, encrypted_password FROM users WHERE user_id = ?`, "1001",
	).Scan(&encUser, &encPass)
	require.NoError(t, err)
	assert.NotContains(t, encUser, "alice")
	assert.NotContains(t, encPass, "secret")
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testBox(t))

	cred, err := repo.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestCredentialRepo_PutOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testBox(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "1001", "alice", "old"))
	require.NoError(t, repo.Put(ctx, "1001", "alice2", "new"))

	cred, err := repo.Get(ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "alice2", cred.Username)
	assert.Equal(t, "new", cred.Password)

	ids, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1001"}, ids)
}

func TestCredentialRepo_CorruptedCiphertext(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testBox(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "1001", "alice", "secret"))

	_, err := db.Writer.ExecContext(ctx,
		`UPDATE users SET encrypted_password = 'AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA' WHERE user_id = ?`, "1001")
	require.NoError(t, err)

	cred, err := repo.Get(ctx, "1001")
	require.Error(t, err)
	assert.Nil(t, cred)
	assert.Equal(t, model.ErrorKindCredential, model.KindOf(err))
	assert.ErrorIs(t, err, secret.ErrDecrypt)
}

func TestCredentialRepo_KeyMismatch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, NewCredentialRepo(db, testBox(t)).Put(ctx, "1001", "alice", "secret"))

	otherBox, err := secret.NewBox(bytes.Repeat([]byte{0x07}, secret.KeySize))
	require.NoError(t, err)

	_, err = NewCredentialRepo(db, otherBox).Get(ctx, "1001")
	assert.Equal(t, model.ErrorKindCredential, model.KindOf(err))
}

func TestCredentialRepo_NoKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, nil)
	ctx := context.Background()

	err := repo.Put(ctx, "1001", "alice", "secret")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	_, err = repo.Get(ctx, "1001")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
	// The key can come from a file as well as the environment, so the
	// message must not point at a single variable.
	assert.NotContains(t, err.Error(), "LMSNOTIFY_SECRET_KEY")
}

func TestCredentialRepo_ExistsListDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testBox(t))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "2002", "bob", "pw"))
	require.NoError(t, repo.Put(ctx, "1001", "alice", "pw"))

	exists, err := repo.Exists(ctx, "1001")
	require.NoError(t, err)
	assert.True(t, exists)

	ids, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1001", "2002"}, ids)

	require.NoError(t, repo.Delete(ctx, "1001"))
	exists, err = repo.Exists(ctx, "1001")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, repo.Delete(ctx, "1001"), "deleting a missing user should not error")

	require.NoError(t, repo.DeleteAll(ctx))
	ids, err = repo.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
