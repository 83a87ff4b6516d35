package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
//
// Launch state lives in flat columns so UpdateLaunch can express its
// predicate as a plain WHERE clause: the update applies only when the
// expected prior state still holds, giving at-most-one-winner semantics for
// concurrent stage advances without an explicit lock manager.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `
	mint_address, owner, name, symbol, encrypted_mint_key, state,
	funding_key_encrypted, dev_wallet_ref, buyer_wallet_refs,
	buy_amount, dev_buy_amount, launch_stage, launch_attempt,
	lock_dev_sell, lock_wallet_sell, dev_sell_attempt, wallet_sell_attempt,
	buy_distribution, created_at
`

// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.Token) error {
	if t == nil || t.MintAddress == "" || !t.State.IsValid() {
		return storage.ErrInvalidInput
	}

	refs, err := json.Marshal(t.Launch.BuyerWalletRefs)
	if err != nil {
		return fmt.Errorf("marshal buyer wallet refs: %w", err)
	}
	dist, err := json.Marshal(t.Launch.BuyDistribution)
	if err != nil {
		return fmt.Errorf("marshal buy distribution: %w", err)
	}

	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err = s.pool.Exec(ctx, query,
		t.MintAddress, t.Owner, t.Name, t.Symbol, t.EncryptedMintKey, string(t.State),
		t.Launch.FundingKeyEncrypted, t.Launch.DevWalletRef, refs,
		t.Launch.BuyAmount, t.Launch.DevBuyAmount, t.Launch.LaunchStage, t.Launch.LaunchAttempt,
		t.Launch.LockDevSell, t.Launch.LockWalletSell, t.Launch.DevSellAttempt, t.Launch.WalletSellAttempt,
		dist, t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByMint retrieves a token by mint address.
func (s *TokenStore) GetByMint(ctx context.Context, mint string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE mint_address = $1`

	t, err := scanToken(s.pool.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by mint: %w", err)
	}
	return t, nil
}

// GetByOwner retrieves all tokens for an owner, newest first.
func (s *TokenStore) GetByOwner(ctx context.Context, owner string) ([]*domain.Token, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM tokens
		WHERE owner = $1
		ORDER BY created_at DESC, mint_address ASC
	`

	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("get tokens by owner: %w", err)
	}
	defer rows.Close()

	var tokens []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}
	return tokens, nil
}

// UpdateLaunch applies change iff pred matches the token's current state.
// The predicate and the mutation are one conditional UPDATE inside a
// transaction; dispatch runs between the update and the commit, so a queue
// failure rolls the stage advance back.
func (s *TokenStore) UpdateLaunch(ctx context.Context, mint string, pred storage.LaunchPredicate, change storage.LaunchChange, dispatch storage.DispatchFunc) error {
	query, args, err := buildLaunchUpdate(mint, pred, change)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin launch update: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply launch update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tokens WHERE mint_address = $1)`, mint).Scan(&exists); err != nil {
			return fmt.Errorf("check token exists: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	if dispatch != nil {
		if err := dispatch(ctx); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit launch update: %w", err)
	}
	return nil
}

// buildLaunchUpdate renders the conditional UPDATE for a predicate/change pair.
func buildLaunchUpdate(mint string, pred storage.LaunchPredicate, change storage.LaunchChange) (string, []any, error) {
	if !pred.State.IsValid() {
		return "", nil, storage.ErrInvalidInput
	}

	args := []any{mint, string(pred.State)}
	where := []string{"mint_address = $1", "state = $2"}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if pred.Owner != "" {
		where = append(where, "owner = "+arg(pred.Owner))
	}
	if pred.Stage != nil {
		where = append(where, "launch_stage = "+arg(*pred.Stage))
	}
	if pred.DevSellUnlocked {
		where = append(where, "NOT lock_dev_sell")
	}
	if pred.WalletSellUnlocked {
		where = append(where, "NOT lock_wallet_sell")
	}

	var set []string
	if change.SetLaunchData != nil {
		ld := change.SetLaunchData
		refs, err := json.Marshal(ld.BuyerWalletRefs)
		if err != nil {
			return "", nil, fmt.Errorf("marshal buyer wallet refs: %w", err)
		}
		dist, err := json.Marshal(ld.BuyDistribution)
		if err != nil {
			return "", nil, fmt.Errorf("marshal buy distribution: %w", err)
		}
		set = append(set,
			"funding_key_encrypted = "+arg(ld.FundingKeyEncrypted),
			"dev_wallet_ref = "+arg(ld.DevWalletRef),
			"buyer_wallet_refs = "+arg(refs),
			"buy_amount = "+arg(ld.BuyAmount),
			"dev_buy_amount = "+arg(ld.DevBuyAmount),
			"launch_stage = "+arg(ld.LaunchStage),
			"launch_attempt = "+arg(ld.LaunchAttempt),
			"lock_dev_sell = "+arg(ld.LockDevSell),
			"lock_wallet_sell = "+arg(ld.LockWalletSell),
			"dev_sell_attempt = "+arg(ld.DevSellAttempt),
			"wallet_sell_attempt = "+arg(ld.WalletSellAttempt),
			"buy_distribution = "+arg(dist),
		)
	}
	if change.State != nil {
		set = append(set, "state = "+arg(string(*change.State)))
	}
	if change.Stage != nil && change.SetLaunchData == nil {
		set = append(set, "launch_stage = "+arg(*change.Stage))
	}
	if change.IncrementLaunchAttempt && change.SetLaunchData == nil {
		set = append(set, "launch_attempt = launch_attempt + 1")
	}
	if change.LockDevSell != nil {
		set = append(set, "lock_dev_sell = "+arg(*change.LockDevSell))
	}
	if change.LockWalletSell != nil {
		set = append(set, "lock_wallet_sell = "+arg(*change.LockWalletSell))
	}
	if change.IncrementDevSellAttempt {
		set = append(set, "dev_sell_attempt = dev_sell_attempt + 1")
	}
	if change.IncrementWalletSellAttempt {
		set = append(set, "wallet_sell_attempt = wallet_sell_attempt + 1")
	}
	if len(set) == 0 {
		return "", nil, storage.ErrInvalidInput
	}

	query := "UPDATE tokens SET " + strings.Join(set, ", ") +
		" WHERE " + strings.Join(where, " AND ")
	return query, args, nil
}

// scanToken scans a single row into a Token.
func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token
	var stateStr string
	var refs, dist []byte

	err := row.Scan(
		&t.MintAddress, &t.Owner, &t.Name, &t.Symbol, &t.EncryptedMintKey, &stateStr,
		&t.Launch.FundingKeyEncrypted, &t.Launch.DevWalletRef, &refs,
		&t.Launch.BuyAmount, &t.Launch.DevBuyAmount, &t.Launch.LaunchStage, &t.Launch.LaunchAttempt,
		&t.Launch.LockDevSell, &t.Launch.LockWalletSell, &t.Launch.DevSellAttempt, &t.Launch.WalletSellAttempt,
		&dist, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.State = domain.TokenState(stateStr)
	if err := json.Unmarshal(refs, &t.Launch.BuyerWalletRefs); err != nil {
		return nil, fmt.Errorf("unmarshal buyer wallet refs: %w", err)
	}
	if err := json.Unmarshal(dist, &t.Launch.BuyDistribution); err != nil {
		return nil, fmt.Errorf("unmarshal buy distribution: %w", err)
	}
	return &t, nil
}
