package memory

import (
	"context"
	"sync"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// PoolAddressStore is an in-memory implementation of storage.PoolAddressStore.
type PoolAddressStore struct {
	mu   sync.Mutex
	data map[string]*domain.PoolAddress // keyed by public key
}

// NewPoolAddressStore creates a new in-memory pool address store.
func NewPoolAddressStore() *PoolAddressStore {
	return &PoolAddressStore{
		data: make(map[string]*domain.PoolAddress),
	}
}

// Compile-time interface check.
var _ storage.PoolAddressStore = (*PoolAddressStore)(nil)

// Insert adds a provisioned address. Returns ErrDuplicateKey if the public key exists.
func (s *PoolAddressStore) Insert(_ context.Context, a *domain.PoolAddress) error {
	if a == nil || a.PublicKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.PublicKey]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *a
	s.data[a.PublicKey] = &cp
	return nil
}

// AcquireOldestFree atomically claims the oldest free address for requesterID.
// The select-and-claim happens under one lock, so concurrent callers can
// never both claim the same address.
func (s *PoolAddressStore) AcquireOldestFree(_ context.Context, requesterID string, now int64) (*domain.PoolAddress, error) {
	if requesterID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *domain.PoolAddress
	for _, a := range s.data {
		if a.IsUsed {
			continue
		}
		if oldest == nil || a.CreatedAt < oldest.CreatedAt ||
			(a.CreatedAt == oldest.CreatedAt && a.PublicKey < oldest.PublicKey) {
			oldest = a
		}
	}
	if oldest == nil {
		return nil, storage.ErrNotFound
	}

	oldest.IsUsed = true
	oldest.UsedBy = requesterID
	oldest.UsedAt = now

	cp := *oldest
	return &cp, nil
}

// Release clears used state; no-op for unknown or already-free addresses.
func (s *PoolAddressStore) Release(_ context.Context, publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[publicKey]
	if !exists {
		return nil
	}
	a.IsUsed = false
	a.UsedBy = ""
	a.UsedAt = 0
	return nil
}

// ForceMarkUsed sets used state without going through acquisition.
func (s *PoolAddressStore) ForceMarkUsed(_ context.Context, publicKey, requesterID string, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[publicKey]
	if !exists {
		return storage.ErrNotFound
	}
	a.IsUsed = true
	a.UsedBy = requesterID
	a.UsedAt = now
	return nil
}

// Get retrieves an address by public key.
func (s *PoolAddressStore) Get(_ context.Context, publicKey string) (*domain.PoolAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[publicKey]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Stats returns pool occupancy counters.
func (s *PoolAddressStore) Stats(_ context.Context) (*storage.PoolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &storage.PoolStats{}
	for _, a := range s.data {
		stats.Total++
		if a.IsUsed {
			stats.Used++
		}
	}
	stats.Available = stats.Total - stats.Used
	if stats.Total > 0 {
		stats.UsagePercentage = float64(stats.Used) / float64(stats.Total) * 100
	}
	return stats, nil
}
