package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kevin07696/funding-service/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingStore struct {
	calls int
	value string
}

func (s *countingStore) GetSecret(_ context.Context, _ string) (*ports.Secret, error) {
	s.calls++
	return &ports.Secret{Value: s.value}, nil
}

func TestCachedStore(t *testing.T) {
	inner := &countingStore{value: "v1"}
	cache := NewCachedStore(inner, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s, err := cache.GetSecret(ctx, "providers/card/webhook")
		require.NoError(t, err)
		assert.Equal(t, "v1", s.Value)
	}
	assert.Equal(t, 1, inner.calls)

	now = now.Add(2 * time.Minute)
	inner.value = "v2"
	s, err := cache.GetSecret(ctx, "providers/card/webhook")
	require.NoError(t, err)
	assert.Equal(t, "v2", s.Value)
	assert.Equal(t, 2, inner.calls)

	cache.Invalidate("providers/card/webhook")
	_, err = cache.GetSecret(ctx, "providers/card/webhook")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestCachedStore_Disabled(t *testing.T) {
	inner := &countingStore{value: "v1"}
	cache := NewCachedStore(inner, 0)

	_, _ = cache.GetSecret(context.Background(), "a")
	_, _ = cache.GetSecret(context.Background(), "a")

	assert.Equal(t, 2, inner.calls)
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "providers", "card"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "providers", "card", "webhook"), []byte("whsec_plain\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "providers", "card", "api_key"),
		[]byte(`{"value":"sk_json","tags":{"env":"test"}}`), 0o600))

	store := NewLocalStore(dir, zap.NewNop())
	ctx := context.Background()

	plain, err := store.GetSecret(ctx, "providers/card/webhook")
	require.NoError(t, err)
	assert.Equal(t, "whsec_plain", plain.Value)

	structured, err := store.GetSecret(ctx, "providers/card/api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk_json", structured.Value)
	assert.Equal(t, "test", structured.Metadata["env"])

	_, err = store.GetSecret(ctx, "providers/missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = store.GetSecret(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestStaticStore(t *testing.T) {
	store := NewStaticStore(map[string]string{"a": "1"})

	s, err := store.GetSecret(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "1", s.Value)

	_, err = store.GetSecret(context.Background(), "b")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}
