package ledger

import (
	"context"
	"fmt"

	"solana-launch-engine/internal/domain"
)

// SpendingStats holds reconciled per-token figures computed from terminal
// outcomes, not raw row sums.
type SpendingStats struct {
	TotalSpentSol   float64
	TotalEarnedSol  float64
	TokensBought    float64
	TokensSold      float64
	TokensHeld      float64
	WalletsInvolved int
}

// PnLReport is the user-facing profit and loss summary.
type PnLReport struct {
	SpendingStats
	HoldingsValueSol float64
	ProfitSol        float64
	ProfitPercentage float64
}

// AccurateSpendingStats reconciles the ledger for a token. Rows are grouped
// by wallet and transaction type first, and each group contributes its
// terminal successful outcome once. Summing every row would count each
// retried attempt, inflating totals; that shortcut must not reach
// user-facing figures.
func (l *Ledger) AccurateSpendingStats(ctx context.Context, tokenAddress string) (*SpendingStats, error) {
	rows, err := l.store.GetByToken(ctx, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("load ledger rows: %w", err)
	}

	type groupKey struct {
		wallet string
		txType domain.TransactionType
	}

	// Last successful row per (wallet, type). Rows arrive oldest first, so
	// later writes overwrite earlier retries.
	terminal := make(map[groupKey]*domain.TransactionRecord)
	wallets := make(map[string]struct{})
	for _, r := range rows {
		if !r.Success {
			continue
		}
		terminal[groupKey{r.WalletPublicKey, r.Type}] = r
		wallets[r.WalletPublicKey] = struct{}{}
	}

	stats := &SpendingStats{WalletsInvolved: len(wallets)}
	for key, r := range terminal {
		switch {
		case key.txType.IsBuy():
			stats.TotalSpentSol += r.AmountSol
			stats.TokensBought += r.AmountTokens
		case key.txType.IsSell():
			stats.TotalEarnedSol += r.AmountSol
			stats.TokensSold += r.AmountTokens
		}
	}
	stats.TokensHeld = stats.TokensBought - stats.TokensSold
	if stats.TokensHeld < 0 {
		stats.TokensHeld = 0
	}
	return stats, nil
}

// PnL computes profit and loss for a token:
// holdings value + earned - spent, with the percentage guarded for a zero
// spend. Holdings are valued through the price source; an unavailable feed
// values them at zero rather than failing.
func (l *Ledger) PnL(ctx context.Context, tokenAddress string) (*PnLReport, error) {
	stats, err := l.AccurateSpendingStats(ctx, tokenAddress)
	if err != nil {
		return nil, err
	}

	report := &PnLReport{SpendingStats: *stats}
	if l.price != nil && stats.TokensHeld > 0 {
		report.HoldingsValueSol = stats.TokensHeld * l.price.TokenPriceSol(ctx, tokenAddress)
	}

	report.ProfitSol = report.HoldingsValueSol + stats.TotalEarnedSol - stats.TotalSpentSol
	if stats.TotalSpentSol > 0 {
		report.ProfitPercentage = report.ProfitSol / stats.TotalSpentSol * 100
	}
	return report, nil
}
