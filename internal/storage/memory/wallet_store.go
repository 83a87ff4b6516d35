package memory

import (
	"context"
	"sort"
	"sync"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Wallet // keyed by public key
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.Wallet),
	}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Insert adds a new wallet. Enforces per-owner role cardinality limits.
func (s *WalletStore) Insert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.PublicKey == "" || w.Owner == "" || !w.Role.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[w.PublicKey]; exists {
		return storage.ErrDuplicateKey
	}

	count := 0
	for _, existing := range s.data {
		if existing.Owner == w.Owner && existing.Role == w.Role {
			count++
		}
	}
	if w.Role == domain.RoleDev && count >= domain.MaxDevWallets {
		return storage.ErrInvalidInput
	}
	if w.Role == domain.RoleBuyer && count >= domain.MaxBuyerWallets {
		return storage.ErrInvalidInput
	}

	cp := *w
	s.data[w.PublicKey] = &cp
	return nil
}

// GetByPublicKey retrieves a wallet by public key.
func (s *WalletStore) GetByPublicKey(_ context.Context, publicKey string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[publicKey]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

// GetByOwner retrieves all wallets for an owner.
func (s *WalletStore) GetByOwner(_ context.Context, owner string) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wallets []*domain.Wallet
	for _, w := range s.data {
		if w.Owner == owner {
			cp := *w
			wallets = append(wallets, &cp)
		}
	}
	sortWallets(wallets)
	return wallets, nil
}

// GetByOwnerAndRole retrieves an owner's wallets with the given role.
func (s *WalletStore) GetByOwnerAndRole(_ context.Context, owner string, role domain.WalletRole) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wallets []*domain.Wallet
	for _, w := range s.data {
		if w.Owner == owner && w.Role == role {
			cp := *w
			wallets = append(wallets, &cp)
		}
	}
	sortWallets(wallets)
	return wallets, nil
}

// CountByRole counts an owner's wallets with the given role.
func (s *WalletStore) CountByRole(_ context.Context, owner string, role domain.WalletRole) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, w := range s.data {
		if w.Owner == owner && w.Role == role {
			count++
		}
	}
	return count, nil
}

func sortWallets(wallets []*domain.Wallet) {
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].CreatedAt != wallets[j].CreatedAt {
			return wallets[i].CreatedAt < wallets[j].CreatedAt
		}
		return wallets[i].PublicKey < wallets[j].PublicKey
	})
}
