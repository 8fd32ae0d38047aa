// Package secrets reads provider API keys and webhook signing secrets
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kevin07696/funding-service/internal/config"
	"github.com/kevin07696/funding-service/internal/domain/ports"
	"go.uber.org/zap"
)

// ErrSecretNotFound is returned when a path holds no secret
var ErrSecretNotFound = errors.New("secret not found")

// New builds the configured secret store wrapped in a TTL cache
func New(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretStore, error) {
	var (
		store ports.SecretStore
		err   error
	)
	switch cfg.Provider {
	case "local":
		store = NewLocalStore(cfg.LocalPath, logger)
	case "aws":
		store, err = NewAWSStore(ctx, &AWSConfig{Region: cfg.AWSRegion, Endpoint: cfg.AWSEndpoint}, logger)
	case "vault":
		store, err = NewVaultStore(&VaultConfig{
			Address:   cfg.VaultAddress,
			Token:     cfg.VaultToken,
			Namespace: cfg.VaultNS,
			MountPath: cfg.VaultMount,
			KVVersion: "v2",
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported secrets provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewCachedStore(store, cfg.CacheTTL), nil
}

// CachedStore memoizes secrets for a fixed TTL
type CachedStore struct {
	next ports.SecretStore
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	secret    *ports.Secret
	expiresAt time.Time
}

// NewCachedStore wraps next with a TTL cache. A non-positive ttl disables caching.
func NewCachedStore(next ports.SecretStore, ttl time.Duration) *CachedStore {
	return &CachedStore{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// GetSecret returns a cached secret or fetches it from the wrapped store
func (c *CachedStore) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if c.ttl > 0 {
		c.mu.RLock()
		entry, ok := c.entries[path]
		c.mu.RUnlock()
		if ok && c.now().Before(entry.expiresAt) {
			return entry.secret, nil
		}
	}

	secret, err := c.next.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[path] = cacheEntry{secret: secret, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
	}
	return secret, nil
}

// Invalidate drops a cached path so the next read refetches it
func (c *CachedStore) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// StaticStore serves secrets from a fixed map
type StaticStore struct {
	values map[string]string
}

// NewStaticStore creates a store over values keyed by path
func NewStaticStore(values map[string]string) *StaticStore {
	return &StaticStore{values: values}
}

// GetSecret returns the value stored under path
func (s *StaticStore) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	v, ok := s.values[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}
	return &ports.Secret{Value: v, Version: "static"}, nil
}
