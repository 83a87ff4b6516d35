// Package ledger records every attempted on-chain operation and reconciles
// the raw, retry-laden rows into accurate per-token spend/earn figures.
package ledger

import (
	"context"
	"fmt"
	"time"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// PriceSource supplies the current token price in SOL for valuing holdings.
// Implementations degrade to zero when the feed is unavailable; a price of
// zero never blocks reconciliation.
type PriceSource interface {
	TokenPriceSol(ctx context.Context, mint string) float64
}

// Ledger wraps the append-only transaction record store.
type Ledger struct {
	store storage.TransactionRecordStore
	price PriceSource
}

// New creates a Ledger. price may be nil; holdings are then valued at zero.
func New(store storage.TransactionRecordStore, price PriceSource) *Ledger {
	return &Ledger{store: store, price: price}
}

// Record appends an immutable transaction record.
func (l *Ledger) Record(ctx context.Context, r *domain.TransactionRecord) error {
	if r == nil || !r.Type.IsValid() {
		return storage.ErrInvalidInput
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	if err := l.store.Insert(ctx, r); err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

// IsAlreadySuccessful reports whether a successful record exists for the
// (token, wallet, type) triple. Consulted before resubmitting a buy or sell
// so a retried pipeline stage never repeats completed work.
func (l *Ledger) IsAlreadySuccessful(ctx context.Context, tokenAddress, wallet string, t domain.TransactionType) (bool, error) {
	ok, err := l.store.HasSuccess(ctx, tokenAddress, wallet, t)
	if err != nil {
		return false, fmt.Errorf("check prior success: %w", err)
	}
	return ok, nil
}

// Stats holds simple audit counts over ledger rows.
type Stats struct {
	Total      int
	Successful int
	Failed     int
	ByType     map[domain.TransactionType]int
}

// Stats counts rows for a token, optionally restricted to one launch
// attempt. These are raw audit counts; use AccurateSpendingStats for
// user-facing figures.
func (l *Ledger) Stats(ctx context.Context, tokenAddress string, attempt *int) (*Stats, error) {
	var rows []*domain.TransactionRecord
	var err error
	if attempt != nil {
		rows, err = l.store.GetByTokenAndAttempt(ctx, tokenAddress, *attempt)
	} else {
		rows, err = l.store.GetByToken(ctx, tokenAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger rows: %w", err)
	}

	stats := &Stats{ByType: make(map[domain.TransactionType]int)}
	for _, r := range rows {
		stats.Total++
		if r.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		stats.ByType[r.Type]++
	}
	return stats, nil
}
