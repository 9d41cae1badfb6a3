package kv

import (
	"context"
	"sync"
)

type memEntry struct {
	value    string
	revision int64
}

// MemoryStore keeps entries in process memory. It backs development mode
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return "", 0, ErrNotFound
	}
	return e.value, e.revision, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[key]
	e.value = value
	e.revision++
	s.entries[key] = e
	return e.revision, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, key, value string, revision int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[key]
	if e.revision != revision {
		return e.revision, ErrRevisionMismatch
	}
	e.value = value
	e.revision++
	s.entries[key] = e
	return e.revision, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
