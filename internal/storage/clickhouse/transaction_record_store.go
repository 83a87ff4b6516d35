package clickhouse

import (
	"context"
	"fmt"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// TransactionRecordStore implements storage.TransactionRecordStore using
// ClickHouse. The ledger is append-only by construction: MergeTree has no
// UPDATE or DELETE path in this store, and retried operations land as new
// rows distinguished by retry_attempt.
type TransactionRecordStore struct {
	conn *Conn
}

// NewTransactionRecordStore creates a new TransactionRecordStore.
func NewTransactionRecordStore(conn *Conn) *TransactionRecordStore {
	return &TransactionRecordStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransactionRecordStore = (*TransactionRecordStore)(nil)

const recordColumns = `
	token_address, wallet_public_key, transaction_type, signature, success,
	launch_attempt, amount_sol, amount_tokens, retry_attempt, error_message, created_at
`

// Insert appends a ledger row.
func (s *TransactionRecordStore) Insert(ctx context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.TokenAddress == "" || !r.Type.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transaction_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		r.TokenAddress, r.WalletPublicKey, string(r.Type), r.Signature, r.Success,
		int32(r.LaunchAttempt), r.AmountSol, r.AmountTokens, int32(r.RetryAttempt),
		r.ErrorMessage, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction record: %w", err)
	}
	return nil
}

// GetByToken retrieves all rows for a token, oldest first.
func (s *TransactionRecordStore) GetByToken(ctx context.Context, tokenAddress string) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transaction_records
		WHERE token_address = ?
		ORDER BY created_at ASC
	`

	return s.queryRecords(ctx, query, tokenAddress)
}

// GetByTokenAndAttempt retrieves rows for one launch attempt, oldest first.
func (s *TransactionRecordStore) GetByTokenAndAttempt(ctx context.Context, tokenAddress string, attempt int) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transaction_records
		WHERE token_address = ? AND launch_attempt = ?
		ORDER BY created_at ASC
	`

	return s.queryRecords(ctx, query, tokenAddress, int32(attempt))
}

// HasSuccess reports whether a successful row exists for (token, wallet, type).
func (s *TransactionRecordStore) HasSuccess(ctx context.Context, tokenAddress, walletPublicKey string, t domain.TransactionType) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM transaction_records
		WHERE token_address = ? AND wallet_public_key = ? AND transaction_type = ? AND success
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, tokenAddress, walletPublicKey, string(t)).Scan(&count); err != nil {
		return false, fmt.Errorf("check success: %w", err)
	}
	return count > 0, nil
}

func (s *TransactionRecordStore) queryRecords(ctx context.Context, query string, args ...any) ([]*domain.TransactionRecord, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transaction records: %w", err)
	}
	defer rows.Close()

	var records []*domain.TransactionRecord
	for rows.Next() {
		var r domain.TransactionRecord
		var typeStr string
		var launchAttempt, retryAttempt int32

		err := rows.Scan(
			&r.TokenAddress, &r.WalletPublicKey, &typeStr, &r.Signature, &r.Success,
			&launchAttempt, &r.AmountSol, &r.AmountTokens, &retryAttempt,
			&r.ErrorMessage, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction record row: %w", err)
		}

		r.Type = domain.TransactionType(typeStr)
		r.LaunchAttempt = int(launchAttempt)
		r.RetryAttempt = int(retryAttempt)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction record rows: %w", err)
	}
	return records, nil
}
