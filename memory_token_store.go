package authgate

import (
	"context"
	"sync"
)

// MemoryTokenStore is a process-local [TokenStore]. Sessions do not survive a
// restart; it exists for tests and for embedders that intentionally want a
// forget-on-exit session.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	values map[string]string

	// failing simulates an unavailable backend; settable by tests via
	// SetUnavailable.
	failing bool
}

// NewMemoryTokenStore describes the newmemorytokenstore operation and its observable behavior.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{values: make(map[string]string)}
}

// SetUnavailable makes every subsequent call fail with
// [ErrTokenStoreUnavailable] until called again with false.
func (s *MemoryTokenStore) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = unavailable
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
func (s *MemoryTokenStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return "", ErrTokenStoreUnavailable
	}
	v, ok := s.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

// Set describes the set operation and its observable behavior.
//
// Set may return an error when input validation, dependency calls, or security checks fail.
func (s *MemoryTokenStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrTokenStoreUnavailable
	}
	s.values[key] = value
	return nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
func (s *MemoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrTokenStoreUnavailable
	}
	delete(s.values, key)
	return nil
}

// Len reports the number of stored keys.
func (s *MemoryTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
