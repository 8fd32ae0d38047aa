// Package idempotency records gateway requests by idempotency key so a
// retried request returns the first result instead of reaching the provider again.
package idempotency

import (
	"context"
	"sync"
	"time"
)

type record struct {
	result    []byte
	done      bool
	expiresAt time.Time
}

// MemoryStore implements ports.IdempotencyStore for a single process
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// Acquire claims key. When the key already completed, its stored result is
// returned with acquired=false. When it is in flight, both are empty.
func (s *MemoryStore) Acquire(_ context.Context, key string, ttl time.Duration) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec, ok := s.records[key]; ok && now.Before(rec.expiresAt) {
		if rec.done {
			return rec.result, false, nil
		}
		return nil, false, nil
	}

	s.records[key] = &record{expiresAt: now.Add(ttl)}
	return nil, true, nil
}

// Complete stores the result for key
func (s *MemoryStore) Complete(_ context.Context, key string, result []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = &record{result: result, done: true, expiresAt: s.now().Add(ttl)}
	return nil
}

// Abandon releases an in-flight claim so the key can be retried
func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && !rec.done {
		delete(s.records, key)
	}
	return nil
}
