package memory

import (
	"context"
	"sort"
	"sync"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.Mutex
	data map[string]*domain.Token // keyed by mint address
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[string]*domain.Token),
	}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.Token) error {
	if t == nil || t.MintAddress == "" || !t.State.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.MintAddress]; exists {
		return storage.ErrDuplicateKey
	}

	cp := copyToken(t)
	s.data[t.MintAddress] = cp
	return nil
}

// GetByMint retrieves a token by mint address.
func (s *TokenStore) GetByMint(_ context.Context, mint string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyToken(t), nil
}

// GetByOwner retrieves all tokens for an owner, newest first.
func (s *TokenStore) GetByOwner(_ context.Context, owner string) ([]*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []*domain.Token
	for _, t := range s.data {
		if t.Owner == owner {
			tokens = append(tokens, copyToken(t))
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].CreatedAt != tokens[j].CreatedAt {
			return tokens[i].CreatedAt > tokens[j].CreatedAt
		}
		return tokens[i].MintAddress < tokens[j].MintAddress
	})
	return tokens, nil
}

// UpdateLaunch applies change iff pred matches, invoking dispatch under the
// store lock so a dispatch error leaves the token untouched.
func (s *TokenStore) UpdateLaunch(ctx context.Context, mint string, pred storage.LaunchPredicate, change storage.LaunchChange, dispatch storage.DispatchFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.data[mint]
	if !exists {
		return storage.ErrNotFound
	}

	if !predicateMatches(t, pred) {
		return storage.ErrConflict
	}

	updated := copyToken(t)
	applyChange(updated, change)

	if dispatch != nil {
		if err := dispatch(ctx); err != nil {
			return err
		}
	}

	s.data[mint] = updated
	return nil
}

func predicateMatches(t *domain.Token, pred storage.LaunchPredicate) bool {
	if pred.Owner != "" && t.Owner != pred.Owner {
		return false
	}
	if t.State != pred.State {
		return false
	}
	if pred.Stage != nil && t.Launch.LaunchStage != *pred.Stage {
		return false
	}
	if pred.DevSellUnlocked && t.Launch.LockDevSell {
		return false
	}
	if pred.WalletSellUnlocked && t.Launch.LockWalletSell {
		return false
	}
	return true
}

func applyChange(t *domain.Token, change storage.LaunchChange) {
	if change.SetLaunchData != nil {
		t.Launch = *change.SetLaunchData
		t.Launch.BuyerWalletRefs = append([]string(nil), change.SetLaunchData.BuyerWalletRefs...)
		t.Launch.BuyDistribution = append([]float64(nil), change.SetLaunchData.BuyDistribution...)
	}
	if change.State != nil {
		t.State = *change.State
	}
	if change.Stage != nil && change.SetLaunchData == nil {
		t.Launch.LaunchStage = *change.Stage
	}
	if change.IncrementLaunchAttempt && change.SetLaunchData == nil {
		t.Launch.LaunchAttempt++
	}
	if change.LockDevSell != nil {
		t.Launch.LockDevSell = *change.LockDevSell
	}
	if change.LockWalletSell != nil {
		t.Launch.LockWalletSell = *change.LockWalletSell
	}
	if change.IncrementDevSellAttempt {
		t.Launch.DevSellAttempt++
	}
	if change.IncrementWalletSellAttempt {
		t.Launch.WalletSellAttempt++
	}
}

func copyToken(t *domain.Token) *domain.Token {
	cp := *t
	cp.Launch.BuyerWalletRefs = append([]string(nil), t.Launch.BuyerWalletRefs...)
	cp.Launch.BuyDistribution = append([]float64(nil), t.Launch.BuyDistribution...)
	return &cp
}
