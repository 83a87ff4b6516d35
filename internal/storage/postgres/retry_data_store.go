package postgres

import (
	"context"
	"fmt"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// RetryDataStore implements storage.RetryDataStore using PostgreSQL.
// One live record per (owner, kind); Put supersedes in place.
type RetryDataStore struct {
	pool *Pool
}

// NewRetryDataStore creates a new RetryDataStore.
func NewRetryDataStore(pool *Pool) *RetryDataStore {
	return &RetryDataStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RetryDataStore = (*RetryDataStore)(nil)

// Put stores the latest parameters for (owner, kind).
func (s *RetryDataStore) Put(ctx context.Context, d *domain.RetryData) error {
	if d == nil || d.Owner == "" || !d.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO retry_data (owner, kind, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, kind)
		DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at
	`

	if _, err := s.pool.Exec(ctx, query, d.Owner, string(d.Kind), d.Payload, d.CreatedAt); err != nil {
		return fmt.Errorf("put retry data: %w", err)
	}
	return nil
}

// Get retrieves the live record for (owner, kind).
func (s *RetryDataStore) Get(ctx context.Context, owner string, kind domain.FlowKind) (*domain.RetryData, error) {
	query := `
		SELECT owner, kind, payload, created_at
		FROM retry_data
		WHERE owner = $1 AND kind = $2
	`

	var d domain.RetryData
	var kindStr string
	err := s.pool.QueryRow(ctx, query, owner, string(kind)).Scan(&d.Owner, &kindStr, &d.Payload, &d.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get retry data: %w", err)
	}
	d.Kind = domain.FlowKind(kindStr)
	return &d, nil
}

// Delete removes the record for (owner, kind); idempotent.
func (s *RetryDataStore) Delete(ctx context.Context, owner string, kind domain.FlowKind) error {
	query := `DELETE FROM retry_data WHERE owner = $1 AND kind = $2`

	if _, err := s.pool.Exec(ctx, query, owner, string(kind)); err != nil {
		return fmt.Errorf("delete retry data: %w", err)
	}
	return nil
}
