package ledger

import (
	"context"
	"math"
	"testing"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
	"solana-launch-engine/internal/storage/memory"
)

// fixedPrice is a PriceSource returning a constant token price in SOL.
type fixedPrice float64

func (p fixedPrice) TokenPriceSol(context.Context, string) float64 {
	return float64(p)
}

func record(t *testing.T, l *Ledger, r *domain.TransactionRecord) {
	t.Helper()
	if err := l.Record(context.Background(), r); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestRecord_Validation(t *testing.T) {
	l := New(memory.NewTransactionRecordStore(), nil)

	if err := l.Record(context.Background(), nil); err != storage.ErrInvalidInput {
		t.Errorf("nil record error = %v, want ErrInvalidInput", err)
	}
	bad := &domain.TransactionRecord{TokenAddress: "mint-1", Type: "made_up"}
	if err := l.Record(context.Background(), bad); err != storage.ErrInvalidInput {
		t.Errorf("invalid type error = %v, want ErrInvalidInput", err)
	}
}

func TestRecord_StampsCreatedAt(t *testing.T) {
	store := memory.NewTransactionRecordStore()
	l := New(store, nil)

	record(t, l, &domain.TransactionRecord{
		TokenAddress:    "mint-1",
		WalletPublicKey: "w1",
		Type:            domain.TxDevBuy,
		Success:         true,
	})

	rows, err := store.GetByToken(context.Background(), "mint-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].CreatedAt == 0 {
		t.Error("record did not stamp CreatedAt")
	}
}

func TestIsAlreadySuccessful(t *testing.T) {
	ctx := context.Background()
	l := New(memory.NewTransactionRecordStore(), nil)

	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxSnipeBuy, Success: false, CreatedAt: 1,
	})

	ok, err := l.IsAlreadySuccessful(ctx, "mint-1", "w1", domain.TxSnipeBuy)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("failed attempt reported as successful")
	}

	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxSnipeBuy, Success: true, CreatedAt: 2,
	})

	ok, err = l.IsAlreadySuccessful(ctx, "mint-1", "w1", domain.TxSnipeBuy)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("successful attempt not found")
	}
}

func TestStats_Counts(t *testing.T) {
	ctx := context.Background()
	l := New(memory.NewTransactionRecordStore(), nil)

	record(t, l, &domain.TransactionRecord{TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxTokenCreation, Success: true, LaunchAttempt: 1, CreatedAt: 1})
	record(t, l, &domain.TransactionRecord{TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxDevBuy, Success: false, LaunchAttempt: 1, CreatedAt: 2})
	record(t, l, &domain.TransactionRecord{TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxDevBuy, Success: true, LaunchAttempt: 2, CreatedAt: 3})

	stats, err := l.Stats(ctx, "mint-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Successful != 2 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByType[domain.TxDevBuy] != 2 {
		t.Errorf("dev_buy count = %d, want 2", stats.ByType[domain.TxDevBuy])
	}

	attempt := 2
	scoped, err := l.Stats(ctx, "mint-1", &attempt)
	if err != nil {
		t.Fatal(err)
	}
	if scoped.Total != 1 || scoped.Successful != 1 {
		t.Errorf("attempt-scoped stats = %+v", scoped)
	}
}

func TestAccurateSpendingStats_RetriesCountedOnce(t *testing.T) {
	ctx := context.Background()
	l := New(memory.NewTransactionRecordStore(), nil)

	// w1's snipe buy: one failed attempt, then a successful retry. Only
	// the successful attempt may contribute to spend.
	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxSnipeBuy,
		Success: false, AmountSol: 1.5, CreatedAt: 1,
	})
	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxSnipeBuy,
		Success: true, AmountSol: 1.4, AmountTokens: 1000, CreatedAt: 2,
	})
	// w2 succeeded twice (a resubmitted callback); the terminal row wins.
	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w2", Type: domain.TxSnipeBuy,
		Success: true, AmountSol: 0.9, AmountTokens: 600, CreatedAt: 3,
	})
	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w2", Type: domain.TxSnipeBuy,
		Success: true, AmountSol: 0.8, AmountTokens: 550, CreatedAt: 4,
	})

	stats, err := l.AccurateSpendingStats(ctx, "mint-1")
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(stats.TotalSpentSol-2.2) > 1e-9 {
		t.Errorf("TotalSpentSol = %v, want 2.2 (1.4 + 0.8)", stats.TotalSpentSol)
	}
	if math.Abs(stats.TokensBought-1550) > 1e-9 {
		t.Errorf("TokensBought = %v, want 1550", stats.TokensBought)
	}
	if stats.WalletsInvolved != 2 {
		t.Errorf("WalletsInvolved = %d, want 2", stats.WalletsInvolved)
	}
}

func TestAccurateSpendingStats_BuysAndSells(t *testing.T) {
	ctx := context.Background()
	l := New(memory.NewTransactionRecordStore(), nil)

	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxDevBuy,
		Success: true, AmountSol: 2.0, AmountTokens: 1000, CreatedAt: 1,
	})
	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxDevSell,
		Success: true, AmountSol: 1.2, AmountTokens: 400, CreatedAt: 2,
	})

	stats, err := l.AccurateSpendingStats(ctx, "mint-1")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(stats.TotalSpentSol-2.0) > 1e-9 || math.Abs(stats.TotalEarnedSol-1.2) > 1e-9 {
		t.Errorf("spent %v earned %v, want 2.0 and 1.2", stats.TotalSpentSol, stats.TotalEarnedSol)
	}
	if math.Abs(stats.TokensHeld-600) > 1e-9 {
		t.Errorf("TokensHeld = %v, want 600", stats.TokensHeld)
	}
}

func TestPnL(t *testing.T) {
	ctx := context.Background()
	l := New(memory.NewTransactionRecordStore(), fixedPrice(0.002))

	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxSnipeBuy,
		Success: true, AmountSol: 2.0, AmountTokens: 1000, CreatedAt: 1,
	})
	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxWalletSell,
		Success: true, AmountSol: 1.5, AmountTokens: 500, CreatedAt: 2,
	})

	report, err := l.PnL(ctx, "mint-1")
	if err != nil {
		t.Fatal(err)
	}

	// 500 tokens held at 0.002 SOL = 1.0; profit = 1.0 + 1.5 - 2.0 = 0.5
	if math.Abs(report.HoldingsValueSol-1.0) > 1e-9 {
		t.Errorf("HoldingsValueSol = %v, want 1.0", report.HoldingsValueSol)
	}
	if math.Abs(report.ProfitSol-0.5) > 1e-9 {
		t.Errorf("ProfitSol = %v, want 0.5", report.ProfitSol)
	}
	if math.Abs(report.ProfitPercentage-25) > 1e-9 {
		t.Errorf("ProfitPercentage = %v, want 25", report.ProfitPercentage)
	}
}

func TestPnL_ZeroSpendGuard(t *testing.T) {
	ctx := context.Background()
	l := New(memory.NewTransactionRecordStore(), fixedPrice(0.002))

	report, err := l.PnL(ctx, "mint-empty")
	if err != nil {
		t.Fatal(err)
	}
	if report.ProfitPercentage != 0 {
		t.Errorf("ProfitPercentage = %v, want 0 for zero spend", report.ProfitPercentage)
	}
}

func TestPnL_NilPriceSource(t *testing.T) {
	ctx := context.Background()
	l := New(memory.NewTransactionRecordStore(), nil)

	record(t, l, &domain.TransactionRecord{
		TokenAddress: "mint-1", WalletPublicKey: "w1", Type: domain.TxSnipeBuy,
		Success: true, AmountSol: 2.0, AmountTokens: 1000, CreatedAt: 1,
	})

	report, err := l.PnL(ctx, "mint-1")
	if err != nil {
		t.Fatal(err)
	}
	if report.HoldingsValueSol != 0 {
		t.Errorf("HoldingsValueSol = %v, want 0 without a price source", report.HoldingsValueSol)
	}
	if math.Abs(report.ProfitSol-(-2.0)) > 1e-9 {
		t.Errorf("ProfitSol = %v, want -2.0", report.ProfitSol)
	}
}
