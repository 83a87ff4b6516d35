package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Insert adds a new wallet. Enforces per-owner role cardinality limits
// inside one transaction so concurrent inserts cannot overshoot the limit.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) error {
	if w == nil || w.PublicKey == "" || w.Owner == "" || !w.Role.IsValid() {
		return storage.ErrInvalidInput
	}

	limit := 0
	switch w.Role {
	case domain.RoleDev:
		limit = domain.MaxDevWallets
	case domain.RoleBuyer:
		limit = domain.MaxBuyerWallets
	case domain.RoleFunding:
		// no cardinality limit
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin wallet insert: %w", err)
	}
	defer tx.Rollback(ctx)

	if limit > 0 {
		var count int
		countQuery := `
			SELECT COUNT(*) FROM (
				SELECT 1 FROM wallets
				WHERE owner = $1 AND role = $2
				FOR UPDATE
			) held
		`
		if err := tx.QueryRow(ctx, countQuery, w.Owner, string(w.Role)).Scan(&count); err != nil {
			return fmt.Errorf("count wallets by role: %w", err)
		}
		if count >= limit {
			return storage.ErrInvalidInput
		}
	}

	query := `
		INSERT INTO wallets (
			public_key, owner, encrypted_private_key, role, is_default, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = tx.Exec(ctx, query,
		w.PublicKey, w.Owner, w.EncryptedPrivateKey, string(w.Role), w.IsDefault, w.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit wallet insert: %w", err)
	}
	return nil
}

// GetByPublicKey retrieves a wallet by public key.
func (s *WalletStore) GetByPublicKey(ctx context.Context, publicKey string) (*domain.Wallet, error) {
	query := `
		SELECT public_key, owner, encrypted_private_key, role, is_default, created_at
		FROM wallets
		WHERE public_key = $1
	`

	w, err := scanWallet(s.pool.QueryRow(ctx, query, publicKey))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet by public key: %w", err)
	}
	return w, nil
}

// GetByOwner retrieves all wallets for an owner.
func (s *WalletStore) GetByOwner(ctx context.Context, owner string) ([]*domain.Wallet, error) {
	query := `
		SELECT public_key, owner, encrypted_private_key, role, is_default, created_at
		FROM wallets
		WHERE owner = $1
		ORDER BY created_at ASC, public_key ASC
	`

	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("get wallets by owner: %w", err)
	}
	defer rows.Close()

	return scanWallets(rows)
}

// GetByOwnerAndRole retrieves an owner's wallets with the given role.
func (s *WalletStore) GetByOwnerAndRole(ctx context.Context, owner string, role domain.WalletRole) ([]*domain.Wallet, error) {
	query := `
		SELECT public_key, owner, encrypted_private_key, role, is_default, created_at
		FROM wallets
		WHERE owner = $1 AND role = $2
		ORDER BY created_at ASC, public_key ASC
	`

	rows, err := s.pool.Query(ctx, query, owner, string(role))
	if err != nil {
		return nil, fmt.Errorf("get wallets by owner and role: %w", err)
	}
	defer rows.Close()

	return scanWallets(rows)
}

// CountByRole counts an owner's wallets with the given role.
func (s *WalletStore) CountByRole(ctx context.Context, owner string, role domain.WalletRole) (int, error) {
	query := `SELECT COUNT(*) FROM wallets WHERE owner = $1 AND role = $2`

	var count int
	if err := s.pool.QueryRow(ctx, query, owner, string(role)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count wallets by role: %w", err)
	}
	return count, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	var roleStr string

	err := row.Scan(&w.PublicKey, &w.Owner, &w.EncryptedPrivateKey, &roleStr, &w.IsDefault, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	w.Role = domain.WalletRole(roleStr)
	return &w, nil
}

func scanWallets(rows pgx.Rows) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}
