package postgres

import (
	"context"
	"fmt"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// PoolAddressStore implements storage.PoolAddressStore using PostgreSQL.
//
// Acquisition is a single conditional UPDATE over the oldest free row, so
// two concurrent acquisitions can never claim the same address: the loser
// finds no matching row and gets ErrNotFound.
type PoolAddressStore struct {
	pool *Pool
}

// NewPoolAddressStore creates a new PoolAddressStore.
func NewPoolAddressStore(pool *Pool) *PoolAddressStore {
	return &PoolAddressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolAddressStore = (*PoolAddressStore)(nil)

// Insert adds a provisioned address. Returns ErrDuplicateKey if the public key exists.
func (s *PoolAddressStore) Insert(ctx context.Context, a *domain.PoolAddress) error {
	if a == nil || a.PublicKey == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pool_addresses (
			public_key, secret_key_material, is_used, used_by, used_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		a.PublicKey,
		a.SecretKeyMaterial,
		a.IsUsed,
		a.UsedBy,
		a.UsedAt,
		a.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pool address: %w", err)
	}
	return nil
}

// AcquireOldestFree atomically claims the oldest free address for requesterID.
// Returns ErrNotFound when no free address exists at update time.
func (s *PoolAddressStore) AcquireOldestFree(ctx context.Context, requesterID string, now int64) (*domain.PoolAddress, error) {
	if requesterID == "" {
		return nil, storage.ErrInvalidInput
	}

	// SKIP LOCKED keeps concurrent winners from serializing on the same
	// candidate row; each transaction claims a distinct address or none.
	query := `
		UPDATE pool_addresses
		SET is_used = TRUE, used_by = $1, used_at = $2
		WHERE public_key = (
			SELECT public_key FROM pool_addresses
			WHERE NOT is_used
			ORDER BY created_at ASC, public_key ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING public_key, secret_key_material, is_used, used_by, used_at, created_at
	`

	row := s.pool.QueryRow(ctx, query, requesterID, now)

	var a domain.PoolAddress
	err := row.Scan(&a.PublicKey, &a.SecretKeyMaterial, &a.IsUsed, &a.UsedBy, &a.UsedAt, &a.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("acquire pool address: %w", err)
	}
	return &a, nil
}

// Release clears used state; releasing a free or unknown address is a no-op.
func (s *PoolAddressStore) Release(ctx context.Context, publicKey string) error {
	query := `
		UPDATE pool_addresses
		SET is_used = FALSE, used_by = '', used_at = 0
		WHERE public_key = $1
	`

	if _, err := s.pool.Exec(ctx, query, publicKey); err != nil {
		return fmt.Errorf("release pool address: %w", err)
	}
	return nil
}

// ForceMarkUsed sets used state without going through acquisition.
func (s *PoolAddressStore) ForceMarkUsed(ctx context.Context, publicKey, requesterID string, now int64) error {
	query := `
		UPDATE pool_addresses
		SET is_used = TRUE, used_by = $2, used_at = $3
		WHERE public_key = $1
	`

	ct, err := s.pool.Exec(ctx, query, publicKey, requesterID, now)
	if err != nil {
		return fmt.Errorf("mark pool address used: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Get retrieves an address by public key.
func (s *PoolAddressStore) Get(ctx context.Context, publicKey string) (*domain.PoolAddress, error) {
	query := `
		SELECT public_key, secret_key_material, is_used, used_by, used_at, created_at
		FROM pool_addresses
		WHERE public_key = $1
	`

	row := s.pool.QueryRow(ctx, query, publicKey)

	var a domain.PoolAddress
	err := row.Scan(&a.PublicKey, &a.SecretKeyMaterial, &a.IsUsed, &a.UsedBy, &a.UsedAt, &a.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool address: %w", err)
	}
	return &a, nil
}

// Stats returns pool occupancy counters.
func (s *PoolAddressStore) Stats(ctx context.Context) (*storage.PoolStats, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_used)
		FROM pool_addresses
	`

	var stats storage.PoolStats
	if err := s.pool.QueryRow(ctx, query).Scan(&stats.Total, &stats.Used); err != nil {
		return nil, fmt.Errorf("pool stats: %w", err)
	}
	stats.Available = stats.Total - stats.Used
	if stats.Total > 0 {
		stats.UsagePercentage = float64(stats.Used) / float64(stats.Total) * 100
	}
	return &stats, nil
}
