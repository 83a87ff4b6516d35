package storage

import (
	"context"

	"solana-launch-engine/internal/domain"
)

// PoolStats summarizes address pool occupancy.
type PoolStats struct {
	Total           int
	Used            int
	Available       int
	UsagePercentage float64
}

// PoolAddressStore provides access to pool_addresses storage.
//
// Exclusivity is enforced by AcquireOldestFree: the implementation must
// select and claim an address in one conditional read-modify-write so that
// concurrent callers can never both claim the same address.
type PoolAddressStore interface {
	// Insert adds a provisioned address. Returns ErrDuplicateKey if the
	// public key exists.
	Insert(ctx context.Context, a *domain.PoolAddress) error

	// AcquireOldestFree atomically claims the oldest free address for
	// requesterID, setting is_used/used_by/used_at together. Returns
	// ErrNotFound when no free address exists at update time.
	AcquireOldestFree(ctx context.Context, requesterID string, now int64) (*domain.PoolAddress, error)

	// Release clears is_used/used_by/used_at. Releasing an already-free
	// address is a no-op, not an error.
	Release(ctx context.Context, publicKey string) error

	// ForceMarkUsed sets used state without going through acquisition,
	// for administrative reconciliation. Returns ErrNotFound if the
	// address does not exist.
	ForceMarkUsed(ctx context.Context, publicKey, requesterID string, now int64) error

	// Get retrieves an address by public key. Returns ErrNotFound if not exists.
	Get(ctx context.Context, publicKey string) (*domain.PoolAddress, error)

	// Stats returns pool occupancy counters.
	Stats(ctx context.Context) (*PoolStats, error)
}

// LaunchPredicate matches a token's current state before an update applies.
// Zero-valued optional fields are not checked.
type LaunchPredicate struct {
	Owner              string            // required owner match when non-empty
	State              domain.TokenState // required state match
	Stage              *int              // exact stage match when non-nil
	DevSellUnlocked    bool              // require lock_dev_sell = false
	WalletSellUnlocked bool              // require lock_wallet_sell = false
}

// LaunchChange describes the fields applied when the predicate matches.
type LaunchChange struct {
	State                      *domain.TokenState
	Stage                      *int
	IncrementLaunchAttempt     bool
	SetLaunchData              *domain.LaunchData // full replace, launch start only
	LockDevSell                *bool
	LockWalletSell             *bool
	IncrementDevSellAttempt    bool
	IncrementWalletSellAttempt bool
}

// DispatchFunc hands a unit of work to the execution queue from inside the
// stage-advance transaction. An error aborts the whole transaction.
type DispatchFunc func(ctx context.Context) error

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
	Insert(ctx context.Context, t *domain.Token) error

	// GetByMint retrieves a token by mint address. Returns ErrNotFound if
	// not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Token, error)

	// GetByOwner retrieves all tokens for an owner, newest first.
	GetByOwner(ctx context.Context, owner string) ([]*domain.Token, error)

	// UpdateLaunch applies change iff pred matches the token's current
	// state, invoking dispatch (when non-nil) inside the same transaction
	// before commit. A predicate mismatch returns ErrConflict and applies
	// nothing; a dispatch error aborts the update entirely.
	UpdateLaunch(ctx context.Context, mint string, pred LaunchPredicate, change LaunchChange, dispatch DispatchFunc) error
}

// WalletStore provides access to wallets storage.
type WalletStore interface {
	// Insert adds a new wallet. Returns ErrDuplicateKey if the public key
	// exists and ErrInvalidInput if the owner's role limit is reached.
	Insert(ctx context.Context, w *domain.Wallet) error

	// GetByPublicKey retrieves a wallet. Returns ErrNotFound if not exists.
	GetByPublicKey(ctx context.Context, publicKey string) (*domain.Wallet, error)

	// GetByOwner retrieves all wallets for an owner.
	GetByOwner(ctx context.Context, owner string) ([]*domain.Wallet, error)

	// GetByOwnerAndRole retrieves an owner's wallets with the given role.
	GetByOwnerAndRole(ctx context.Context, owner string, role domain.WalletRole) ([]*domain.Wallet, error)

	// CountByRole counts an owner's wallets with the given role.
	CountByRole(ctx context.Context, owner string, role domain.WalletRole) (int, error)
}

// TransactionRecordStore provides access to the append-only transaction
// ledger. Rows are never updated or deleted.
type TransactionRecordStore interface {
	// Insert appends a ledger row.
	Insert(ctx context.Context, r *domain.TransactionRecord) error

	// GetByToken retrieves all rows for a token, oldest first.
	GetByToken(ctx context.Context, tokenAddress string) ([]*domain.TransactionRecord, error)

	// GetByTokenAndAttempt retrieves rows for one launch attempt, oldest first.
	GetByTokenAndAttempt(ctx context.Context, tokenAddress string, attempt int) ([]*domain.TransactionRecord, error)

	// HasSuccess reports whether a successful row exists for the
	// (token, wallet, type) triple. Used as the resubmission idempotency guard.
	HasSuccess(ctx context.Context, tokenAddress, walletPublicKey string, t domain.TransactionType) (bool, error)
}

// RetryDataStore provides access to retry_data storage.
type RetryDataStore interface {
	// Put stores the latest parameters for (owner, kind), superseding any
	// previous record.
	Put(ctx context.Context, d *domain.RetryData) error

	// Get retrieves the live record for (owner, kind). Returns ErrNotFound
	// if not exists.
	Get(ctx context.Context, owner string, kind domain.FlowKind) (*domain.RetryData, error)

	// Delete removes the record for (owner, kind); idempotent.
	Delete(ctx context.Context, owner string, kind domain.FlowKind) error
}
