package memory

import (
	"context"
	"sort"
	"sync"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// TransactionRecordStore is an in-memory implementation of
// storage.TransactionRecordStore. Append-only: rows are never mutated.
type TransactionRecordStore struct {
	mu   sync.RWMutex
	rows []*domain.TransactionRecord
}

// NewTransactionRecordStore creates a new in-memory ledger store.
func NewTransactionRecordStore() *TransactionRecordStore {
	return &TransactionRecordStore{}
}

// Compile-time interface check.
var _ storage.TransactionRecordStore = (*TransactionRecordStore)(nil)

// Insert appends a ledger row.
func (s *TransactionRecordStore) Insert(_ context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.TokenAddress == "" || !r.Type.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.rows = append(s.rows, &cp)
	return nil
}

// GetByToken retrieves all rows for a token, oldest first.
func (s *TransactionRecordStore) GetByToken(_ context.Context, tokenAddress string) ([]*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TransactionRecord
	for _, r := range s.rows {
		if r.TokenAddress == tokenAddress {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortRecords(out)
	return out, nil
}

// GetByTokenAndAttempt retrieves rows for one launch attempt, oldest first.
func (s *TransactionRecordStore) GetByTokenAndAttempt(_ context.Context, tokenAddress string, attempt int) ([]*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TransactionRecord
	for _, r := range s.rows {
		if r.TokenAddress == tokenAddress && r.LaunchAttempt == attempt {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortRecords(out)
	return out, nil
}

// HasSuccess reports whether a successful row exists for (token, wallet, type).
func (s *TransactionRecordStore) HasSuccess(_ context.Context, tokenAddress, walletPublicKey string, t domain.TransactionType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rows {
		if r.TokenAddress == tokenAddress && r.WalletPublicKey == walletPublicKey &&
			r.Type == t && r.Success {
			return true, nil
		}
	}
	return false, nil
}

func sortRecords(rows []*domain.TransactionRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt < rows[j].CreatedAt
	})
}
