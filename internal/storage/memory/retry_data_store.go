package memory

import (
	"context"
	"sync"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// RetryDataStore is an in-memory implementation of storage.RetryDataStore.
type RetryDataStore struct {
	mu   sync.RWMutex
	data map[retryKey]*domain.RetryData
}

type retryKey struct {
	owner string
	kind  domain.FlowKind
}

// NewRetryDataStore creates a new in-memory retry data store.
func NewRetryDataStore() *RetryDataStore {
	return &RetryDataStore{
		data: make(map[retryKey]*domain.RetryData),
	}
}

// Compile-time interface check.
var _ storage.RetryDataStore = (*RetryDataStore)(nil)

// Put stores the latest parameters for (owner, kind), superseding any
// previous record.
func (s *RetryDataStore) Put(_ context.Context, d *domain.RetryData) error {
	if d == nil || d.Owner == "" || !d.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *d
	cp.Payload = append([]byte(nil), d.Payload...)
	s.data[retryKey{d.Owner, d.Kind}] = &cp
	return nil
}

// Get retrieves the live record for (owner, kind).
func (s *RetryDataStore) Get(_ context.Context, owner string, kind domain.FlowKind) (*domain.RetryData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.data[retryKey{owner, kind}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *d
	cp.Payload = append([]byte(nil), d.Payload...)
	return &cp, nil
}

// Delete removes the record for (owner, kind); idempotent.
func (s *RetryDataStore) Delete(_ context.Context, owner string, kind domain.FlowKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, retryKey{owner, kind})
	return nil
}
