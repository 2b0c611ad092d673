package fever

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kestrel/reader/internal/database"
	"kestrel/reader/internal/storage"
)

func newTestCredentialStore(t *testing.T) *CredentialStore {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "reader.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCredentialStore(storage.NewRepository(db), "reader")
}

func TestAPIKeyDerivation(t *testing.T) {
	sum := md5.Sum([]byte("reader:secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), APIKey("reader", "secret"))

	key := APIKey("reader", "secret")
	assert.Len(t, key, 32)
	assert.Equal(t, strings.ToLower(key), key)
	assert.Equal(t, key, APIKey("reader", "secret"))
	assert.NotEqual(t, key, APIKey("reader", "other"))
	assert.NotEqual(t, key, APIKey("other", "secret"))
}

func TestEnsureProvisionsOnce(t *testing.T) {
	store := newTestCredentialStore(t)
	ctx := context.Background()

	first, err := store.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reader", first.Username)
	assert.Len(t, first.AppPassword, 2*appPasswordBytes)
	assert.Equal(t, APIKey(first.Username, first.AppPassword), first.APIKey)

	second, err := store.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestVerify(t *testing.T) {
	store := newTestCredentialStore(t)
	ctx := context.Background()

	creds, err := store.Ensure(ctx)
	require.NoError(t, err)

	userID, ok := store.Verify(ctx, creds.APIKey)
	assert.True(t, ok)
	assert.Equal(t, localUserID, userID)

	// Keys compare case-insensitively with surrounding space ignored.
	_, ok = store.Verify(ctx, "  "+strings.ToUpper(creds.APIKey)+"\n")
	assert.True(t, ok)

	_, ok = store.Verify(ctx, "0123456789abcdef0123456789abcdef")
	assert.False(t, ok)
	_, ok = store.Verify(ctx, "")
	assert.False(t, ok)
	_, ok = store.Verify(ctx, "   ")
	assert.False(t, ok)
}

func TestResetInvalidatesOldKey(t *testing.T) {
	store := newTestCredentialStore(t)
	ctx := context.Background()

	before, err := store.Ensure(ctx)
	require.NoError(t, err)

	after, err := store.Reset(ctx)
	require.NoError(t, err)

	assert.Equal(t, before.Username, after.Username)
	assert.NotEqual(t, before.AppPassword, after.AppPassword)
	assert.NotEqual(t, before.APIKey, after.APIKey)

	_, ok := store.Verify(ctx, before.APIKey)
	assert.False(t, ok)
	_, ok = store.Verify(ctx, after.APIKey)
	assert.True(t, ok)
}
