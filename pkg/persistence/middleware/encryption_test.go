package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/persistence/middleware"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.SnapshotStore, cfg middleware.EncryptionConfig) ports.SnapshotStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	snap := domain.NewConversationSnapshot("c")
	snap.ActiveTopic = "quote"
	snap.Globals["secret"] = "my-secret-sauce"
	require.NoError(t, secure.Save(ctx, "c", snap))

	stored, err := underlying.Load(ctx, "c")
	require.NoError(t, err)
	assert.NotContains(t, stored.Globals, "secret")
	assert.Contains(t, stored.Globals, "__encrypted__")
	assert.Empty(t, stored.ActiveTopic)

	loaded, err := secure.Load(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Globals["secret"])
	assert.Equal(t, "quote", loaded.ActiveTopic)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	snap := domain.NewConversationSnapshot("r")
	snap.Globals["data"] = "encrypted-with-old-key"
	require.NoError(t, secureOld.Save(ctx, "r", snap))

	secureNew := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	loaded, err := secureNew.Load(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-with-old-key", loaded.Globals["data"])

	loaded.Globals["data"] = "encrypted-with-new-key"
	require.NoError(t, secureNew.Save(ctx, "r", loaded))

	_, err = secureOld.Load(ctx, "r")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_RejectsPlainSnapshot(t *testing.T) {
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(context.Background(), "p", domain.NewConversationSnapshot("p")))

	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	_, err := secure.Load(context.Background(), "p")
	assert.ErrorContains(t, err, "envelope")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("old")},
	})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}
