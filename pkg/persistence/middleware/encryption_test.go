package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/intake/pkg/adapters/memory"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/persistence/middleware"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func snapshotWith(values map[string]any) *domain.Snapshot {
	snap := &domain.Snapshot{SessionID: "s1", CallID: "call-1", State: domain.StateReportLost, Sequence: 4}
	for _, k := range []string{domain.FieldAnimalType, domain.FieldOwnerContact, domain.FieldCaseDetails} {
		if v, ok := values[k]; ok {
			snap.Context = append(snap.Context, domain.Entry{Key: k, Value: v, Confidence: 1})
		}
	}
	return snap
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	ports.RunConversationStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	secure := mw(underlying)
	ctx := context.Background()

	original := snapshotWith(map[string]any{domain.FieldOwnerContact: "555-0123"})
	require.NoError(t, secure.Save(ctx, "s1", original))

	stored, err := underlying.Load(ctx, "s1")
	require.NoError(t, err)
	assert.NotContains(t, stored.Values(), domain.FieldOwnerContact)
	assert.Contains(t, stored.Values(), "__encrypted__")
	assert.Equal(t, domain.StateReportLost, stored.State, "the state name stays readable")
	assert.Empty(t, stored.CallID)

	loaded, err := secure.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "555-0123", loaded.Values()[domain.FieldOwnerContact])
	assert.Equal(t, "call-1", loaded.CallID)
	assert.Equal(t, 4, loaded.Sequence)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	mwOld, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, err)
	require.NoError(t, mwOld(underlying).Save(ctx, "s1", snapshotWith(map[string]any{domain.FieldAnimalType: "cat"})))

	mwNew, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	require.NoError(t, err)
	loaded, err := mwNew(underlying).Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "cat", loaded.Values()[domain.FieldAnimalType])

	mwOther, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	_, err = mwOther(underlying).Load(ctx, "s1")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_RefusesPlainSnapshots(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "s1", snapshotWith(map[string]any{domain.FieldAnimalType: "dog"})))

	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	_, err = mw(underlying).Load(ctx, "s1")
	assert.ErrorContains(t, err, "envelope")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}
