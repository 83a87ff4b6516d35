package orchestrator

import (
	"context"
	"errors"
	"log"
	"testing"

	"solana-launch-engine/internal/custody"
	"solana-launch-engine/internal/distribution"
	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/ledger"
	"solana-launch-engine/internal/pool"
	"solana-launch-engine/internal/queue"
	"solana-launch-engine/internal/solana"
	"solana-launch-engine/internal/storage"
	"solana-launch-engine/internal/storage/memory"
)

const testMasterSecret = "orchestrator-test-secret"

// fakeBalance is a BalanceChecker returning a fixed balance or error.
type fakeBalance struct {
	balance float64
	err     error
}

func (f *fakeBalance) GetBalance(context.Context, string) (float64, error) {
	return f.balance, f.err
}

// fakeReceipts is a ReceiptReader returning a fixed receipt. A nil receipt
// mirrors a signature the node does not know.
type fakeReceipts struct {
	receipt *solana.TransactionReceipt
	err     error
}

func (f *fakeReceipts) GetTransaction(context.Context, string) (*solana.TransactionReceipt, error) {
	return f.receipt, f.err
}

// fakeConfirmer is a ConfirmationWaiter resolving immediately.
type fakeConfirmer struct {
	conf *solana.Confirmation
	err  error
}

func (f *fakeConfirmer) WaitForConfirmation(context.Context, string) (*solana.Confirmation, error) {
	return f.conf, f.err
}

// fixture wires an orchestrator over memory stores with one owner's wallet
// set and an optional pool address.
type fixture struct {
	orch      *Orchestrator
	tokens    *memory.TokenStore
	pool      *memory.PoolAddressStore
	retryData *memory.RetryDataStore
	records   *memory.TransactionRecordStore
	queue     *queue.MemoryQueue
	custody   *custody.Service
	balance   *fakeBalance
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	svc, err := custody.NewService(testMasterSecret)
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		tokens:    memory.NewTokenStore(),
		pool:      memory.NewPoolAddressStore(),
		retryData: memory.NewRetryDataStore(),
		records:   memory.NewTransactionRecordStore(),
		queue:     queue.NewMemoryQueue(),
		custody:   svc,
		balance:   &fakeBalance{balance: 1000},
	}

	wallets := memory.NewWalletStore()
	ctx := context.Background()
	for _, w := range []struct {
		pk     string
		role   domain.WalletRole
		secret string
	}{
		{"dev-pk", domain.RoleDev, "dev-secret-key"},
		{"fund-pk", domain.RoleFunding, "funding-secret-key"},
		{"buyer-1", domain.RoleBuyer, "buyer-1-secret"},
		{"buyer-2", domain.RoleBuyer, "buyer-2-secret"},
		{"buyer-3", domain.RoleBuyer, "buyer-3-secret"},
	} {
		enc, err := svc.Encrypt(w.secret)
		if err != nil {
			t.Fatal(err)
		}
		err = wallets.Insert(ctx, &domain.Wallet{
			Owner:               "owner-1",
			PublicKey:           w.pk,
			EncryptedPrivateKey: enc,
			Role:                w.role,
			CreatedAt:           1000,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	logger := log.New(testWriter{t}, "[test] ", 0)
	f.orch = New(Deps{
		Tokens:    f.tokens,
		Wallets:   wallets,
		RetryData: f.retryData,
		Allocator: pool.NewAllocator(f.pool, logger),
		Custody:   svc,
		Generator: distribution.NewGenerator(distribution.DefaultConfig()),
		Queue:     f.queue,
		Ledger:    ledger.New(f.records, nil),
		Balance:   f.balance,
		Logger:    logger,
	})
	return f
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func (f *fixture) seedPoolAddress(t *testing.T, publicKey string) {
	t.Helper()
	enc, err := f.custody.Encrypt("mint-secret-for-" + publicKey)
	if err != nil {
		t.Fatal(err)
	}
	err = f.pool.Insert(context.Background(), &domain.PoolAddress{
		PublicKey:         publicKey,
		SecretKeyMaterial: enc,
		CreatedAt:         1000,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func launchReq() *LaunchRequest {
	return &LaunchRequest{
		Owner:        "owner-1",
		Name:         "Test Token",
		Symbol:       "TT",
		BuyAmount:    5,
		DevBuyAmount: 1,
	}
}

func TestStartLaunch_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPoolAddress(t, "pool-mint-1")

	res, err := f.orch.StartLaunch(ctx, launchReq())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	token, err := f.tokens.GetByMint(ctx, "pool-mint-1")
	if err != nil {
		t.Fatal(err)
	}
	if token.State != domain.StateLaunching {
		t.Errorf("state = %v, want LAUNCHING", token.State)
	}
	if token.Launch.LaunchStage != domain.StagePrepared || token.Launch.LaunchAttempt != 1 {
		t.Errorf("launch data = %+v", token.Launch)
	}
	if len(token.Launch.BuyDistribution) == 0 {
		t.Error("no distribution persisted")
	}

	jobs := f.queue.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("%d jobs dispatched, want 1", len(jobs))
	}
	job := jobs[0]
	if job.Operation != queue.OpLaunch || job.Attempt != 1 || job.LaunchStage != domain.StagePrepared {
		t.Errorf("job = %+v", job)
	}
	if job.MintKey == "" || job.FundingKey != "funding-secret-key" {
		t.Error("job is missing decrypted key material")
	}
	if len(job.Wallets) != len(token.Launch.BuyDistribution) {
		t.Errorf("job carries %d wallets, distribution has %d entries", len(job.Wallets), len(token.Launch.BuyDistribution))
	}

	if _, err := f.retryData.Get(ctx, "owner-1", domain.FlowLaunch); err != nil {
		t.Errorf("launch retry data not saved: %v", err)
	}
}

func TestStartLaunch_AdHocFallbackOnExhaustedPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	kp, err := solana.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	f.orch.newKeypair = func() (*solana.Keypair, error) { return kp, nil }

	res, err := f.orch.StartLaunch(ctx, launchReq())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	token, err := f.tokens.GetByMint(ctx, kp.PublicKey)
	if err != nil {
		t.Fatalf("token not created under the ad-hoc mint: %v", err)
	}

	// The ad-hoc secret is custody-encrypted and must round-trip.
	secret, err := f.custody.Decrypt(token.EncryptedMintKey)
	if err != nil {
		t.Fatal(err)
	}
	if secret != kp.SecretKey {
		t.Error("ad-hoc mint key does not round-trip through custody")
	}
}

func TestStartLaunch_InvalidAmount(t *testing.T) {
	f := newFixture(t)

	req := launchReq()
	req.BuyAmount = 0
	res, err := f.orch.StartLaunch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("zero buy amount accepted")
	}
	if len(f.queue.Jobs()) != 0 {
		t.Error("job dispatched for an invalid request")
	}
}

func TestStartLaunch_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.seedPoolAddress(t, "pool-mint-1")
	f.balance.balance = 1 // request needs 6

	res, err := f.orch.StartLaunch(context.Background(), launchReq())
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("launch accepted with insufficient funding balance")
	}
}

func TestStartLaunch_BalanceCheckTransient(t *testing.T) {
	f := newFixture(t)
	f.seedPoolAddress(t, "pool-mint-1")
	f.balance.err = errors.New("rpc timeout")

	res, err := f.orch.StartLaunch(context.Background(), launchReq())
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("launch accepted despite failed balance check")
	}
}

func TestStartLaunch_EnqueueFailureAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPoolAddress(t, "pool-mint-1")
	f.queue.FailNext = true

	if _, err := f.orch.StartLaunch(ctx, launchReq()); err == nil {
		t.Fatal("expected error from aborted dispatch")
	}

	// The stage advance must not have applied.
	token, err := f.tokens.GetByMint(ctx, "pool-mint-1")
	if err != nil {
		t.Fatal(err)
	}
	if token.State != domain.StateListed || token.Launch.LaunchAttempt != 0 {
		t.Errorf("aborted launch leaked state: %+v", token)
	}
	if len(f.queue.Jobs()) != 0 {
		t.Error("job present despite abort")
	}
}

// startLaunched drives a fixture through StartLaunch and returns the mint.
func startLaunched(t *testing.T, f *fixture) string {
	t.Helper()
	f.seedPoolAddress(t, "pool-mint-1")
	res, err := f.orch.StartLaunch(context.Background(), launchReq())
	if err != nil || !res.Success {
		t.Fatalf("start launch: res=%+v err=%v", res, err)
	}
	return "pool-mint-1"
}

func TestRetryLaunch_ResumesFromPersistedStage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)

	// Token creation completed before the crash.
	stage := domain.StagePrepared
	next := domain.StageTokenCreated
	err := f.tokens.UpdateLaunch(ctx, mint,
		storage.LaunchPredicate{State: domain.StateLaunching, Stage: &stage},
		storage.LaunchChange{Stage: &next}, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.orch.RetryLaunch(ctx, "owner-1", mint)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	jobs := f.queue.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("%d jobs, want 2", len(jobs))
	}
	retryJob := jobs[1]
	if retryJob.LaunchStage != domain.StageTokenCreated {
		t.Errorf("retry resumes from stage %d, want %d", retryJob.LaunchStage, domain.StageTokenCreated)
	}
	if retryJob.Attempt != 2 {
		t.Errorf("retry attempt = %d, want 2", retryJob.Attempt)
	}

	token, _ := f.tokens.GetByMint(ctx, mint)
	if token.Launch.LaunchAttempt != 2 {
		t.Errorf("persisted attempt = %d, want 2", token.Launch.LaunchAttempt)
	}
	if token.Launch.LaunchStage != domain.StageTokenCreated {
		t.Errorf("retry reset the stage to %d", token.Launch.LaunchStage)
	}
}

func TestRetryLaunch_WrongState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.tokens.Insert(ctx, &domain.Token{
		Owner: "owner-1", MintAddress: "mint-listed", State: domain.StateListed, CreatedAt: 1,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := f.orch.RetryLaunch(ctx, "owner-1", "mint-listed")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("retry accepted for a token that is not LAUNCHING")
	}
}

func TestRetryLaunch_UnknownOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)

	res, err := f.orch.RetryLaunch(ctx, "intruder", mint)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("retry accepted for a non-owner")
	}
}

func TestRetryLaunch_SkipsWalletsWithRecordedSnipeBuy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)

	// buyer-1's snipe buy landed before the attempt stalled.
	err := f.records.Insert(ctx, &domain.TransactionRecord{
		TokenAddress:    mint,
		WalletPublicKey: "buyer-1",
		Type:            domain.TxSnipeBuy,
		Success:         true,
		LaunchAttempt:   1,
		CreatedAt:       1,
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.orch.RetryLaunch(ctx, "owner-1", mint)
	if err != nil || !res.Success {
		t.Fatalf("retry: res=%+v err=%v", res, err)
	}

	jobs := f.queue.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("%d jobs, want 2", len(jobs))
	}
	retryJob := jobs[1]

	token, _ := f.tokens.GetByMint(ctx, mint)
	if len(retryJob.Wallets) >= len(token.Launch.BuyDistribution) {
		t.Errorf("retry carries %d wallets, distribution has %d entries; completed buys not skipped",
			len(retryJob.Wallets), len(token.Launch.BuyDistribution))
	}
	for _, w := range retryJob.Wallets {
		if w.PublicKey == "buyer-1" {
			t.Error("retry resubmits a wallet whose snipe buy already succeeded")
			break
		}
	}
}

// launchToCompletion reports each successful stage outcome in order.
func launchToCompletion(t *testing.T, f *fixture, mint string) {
	t.Helper()
	ctx := context.Background()
	for _, txType := range []domain.TransactionType{domain.TxTokenCreation, domain.TxDevBuy, domain.TxSnipeBuy} {
		res, err := f.orch.ReportLaunchOutcome(ctx, &OutcomeReport{
			TokenAddress:    mint,
			WalletPublicKey: "dev-pk",
			Type:            txType,
			Signature:       "sig-" + string(txType),
			Success:         true,
			AmountSol:       1,
		})
		if err != nil || !res.Success {
			t.Fatalf("outcome %v: res=%+v err=%v", txType, res, err)
		}
	}
}

func TestReportLaunchOutcome_AdvancesStagesToLaunched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)

	launchToCompletion(t, f, mint)

	token, err := f.tokens.GetByMint(ctx, mint)
	if err != nil {
		t.Fatal(err)
	}
	if token.State != domain.StateLaunched {
		t.Errorf("state = %v, want LAUNCHED", token.State)
	}
	if token.Launch.LaunchStage != domain.StageSnipesDone {
		t.Errorf("stage = %d, want %d", token.Launch.LaunchStage, domain.StageSnipesDone)
	}

	// Completion clears the cached launch parameters.
	if _, err := f.retryData.Get(ctx, "owner-1", domain.FlowLaunch); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("retry data error = %v, want ErrNotFound after completion", err)
	}

	// Every outcome landed in the ledger.
	rows, err := f.records.GetByToken(ctx, mint)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("%d ledger rows, want 3", len(rows))
	}
}

func TestReportLaunchOutcome_PermanentFailureReleasesAddress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)

	res, err := f.orch.ReportLaunchOutcome(ctx, &OutcomeReport{
		TokenAddress:    mint,
		WalletPublicKey: "dev-pk",
		Type:            domain.TxTokenCreation,
		Success:         false,
		ErrorMessage:    "custom program error: 0x0",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("permanent failure reported as success")
	}

	addr, err := f.pool.Get(ctx, mint)
	if err != nil {
		t.Fatal(err)
	}
	if addr.IsUsed {
		t.Error("address still reserved after a permanent failure")
	}
}

func TestReportLaunchOutcome_TransientKeepsReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)

	res, err := f.orch.ReportLaunchOutcome(ctx, &OutcomeReport{
		TokenAddress: mint,
		Type:         domain.TxTokenCreation,
		Success:      false,
		ErrorMessage: "blockhash not found",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("failure reported as success")
	}

	addr, err := f.pool.Get(ctx, mint)
	if err != nil {
		t.Fatal(err)
	}
	if !addr.IsUsed {
		t.Error("reservation dropped on a transient failure within the attempt budget")
	}
}

func TestReportLaunchOutcome_AttemptBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)

	// Burn the retry budget.
	for attempt := 2; attempt <= pool.MaxRetainedAttempts+1; attempt++ {
		res, err := f.orch.RetryLaunch(ctx, "owner-1", mint)
		if err != nil || !res.Success {
			t.Fatalf("retry %d: res=%+v err=%v", attempt, res, err)
		}
	}

	res, err := f.orch.ReportLaunchOutcome(ctx, &OutcomeReport{
		TokenAddress: mint,
		Type:         domain.TxTokenCreation,
		Success:      false,
		ErrorMessage: "blockhash not found",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("fatal outcome reported as success")
	}

	addr, err := f.pool.Get(ctx, mint)
	if err != nil {
		t.Fatal(err)
	}
	if addr.IsUsed {
		t.Error("address still reserved after exhausting the attempt budget")
	}
}

func TestReportLaunchOutcome_ReceiptOverridesReportedSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)

	f.orch.receipts = &fakeReceipts{receipt: &solana.TransactionReceipt{
		Signature: "sig-creation",
		Err:       map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
	}}

	res, err := f.orch.ReportLaunchOutcome(ctx, &OutcomeReport{
		TokenAddress:    mint,
		WalletPublicKey: "dev-pk",
		Type:            domain.TxTokenCreation,
		Signature:       "sig-creation",
		Success:         true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("outcome reported as success despite a failed receipt")
	}

	token, _ := f.tokens.GetByMint(ctx, mint)
	if token.Launch.LaunchStage != domain.StagePrepared {
		t.Errorf("stage advanced to %d on a transaction the chain rejected", token.Launch.LaunchStage)
	}

	rows, err := f.records.GetByToken(ctx, mint)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Success {
		t.Fatalf("ledger rows = %+v, want one failed row", rows)
	}
	if rows[0].ErrorMessage == "" {
		t.Error("chain error not carried into the ledger row")
	}
}

func TestReportLaunchOutcome_ReceiptDerivesSpentAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)

	f.orch.receipts = &fakeReceipts{receipt: &solana.TransactionReceipt{
		Signature:    "sig-dev-buy",
		AccountKeys:  []string{"dev-pk", "other-pk"},
		PreBalances:  []uint64{3_000_000_000, 1_000_000_000},
		PostBalances: []uint64{1_500_000_000, 2_500_000_000},
	}}

	res, err := f.orch.ReportLaunchOutcome(ctx, &OutcomeReport{
		TokenAddress:    mint,
		WalletPublicKey: "dev-pk",
		Type:            domain.TxTokenCreation,
		Signature:       "sig-dev-buy",
		Success:         true,
	})
	if err != nil || !res.Success {
		t.Fatalf("res=%+v err=%v", res, err)
	}

	rows, err := f.records.GetByToken(ctx, mint)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("%d ledger rows, want 1", len(rows))
	}
	if rows[0].AmountSol != 1.5 {
		t.Errorf("derived amount = %v SOL, want 1.5", rows[0].AmountSol)
	}
}

func TestReportLaunchOutcome_ConfirmationRescuesTimedOutReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)

	// The node has no receipt yet; the confirmation notification settles it.
	f.orch.receipts = &fakeReceipts{}
	f.orch.confirmer = &fakeConfirmer{conf: &solana.Confirmation{Signature: "sig-creation", Slot: 9}}

	res, err := f.orch.ReportLaunchOutcome(ctx, &OutcomeReport{
		TokenAddress:    mint,
		WalletPublicKey: "dev-pk",
		Type:            domain.TxTokenCreation,
		Signature:       "sig-creation",
		Success:         false,
		ErrorMessage:    "confirmation wait timed out",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want the confirmed signature treated as success", res)
	}

	token, _ := f.tokens.GetByMint(ctx, mint)
	if token.Launch.LaunchStage != domain.StageTokenCreated {
		t.Errorf("stage = %d, want %d after the confirmed creation", token.Launch.LaunchStage, domain.StageTokenCreated)
	}

	rows, err := f.records.GetByToken(ctx, mint)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].Success || rows[0].ErrorMessage != "" {
		t.Fatalf("ledger rows = %+v, want one clean successful row", rows)
	}
}

func TestEnqueueDevSell_LockFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)
	launchToCompletion(t, f, mint)

	req := &SellRequest{Owner: "owner-1", MintAddress: mint}
	res, err := f.orch.EnqueueDevSell(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	token, _ := f.tokens.GetByMint(ctx, mint)
	if !token.Launch.LockDevSell || token.Launch.DevSellAttempt != 1 {
		t.Errorf("lock state = %+v", token.Launch)
	}

	// Held lock rejects immediately.
	res, err = f.orch.EnqueueDevSell(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("second dev sell accepted while the lock is held")
	}

	// The wallet sell lock is independent.
	res, err = f.orch.EnqueueWalletSell(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Errorf("wallet sell blocked by the dev sell lock: %+v", res)
	}

	jobs := f.queue.Jobs()
	var devJob *queue.Job
	for _, j := range jobs {
		if j.Operation == queue.OpDevSell {
			devJob = j
		}
	}
	if devJob == nil {
		t.Fatal("no dev sell job dispatched")
	}
	if devJob.DevWallet == nil || devJob.DevWallet.SecretKey != "dev-secret-key" {
		t.Error("dev sell job missing the decrypted dev wallet key")
	}
}

func TestEnqueueSell_RequiresLaunchedToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f) // LAUNCHING, not LAUNCHED

	res, err := f.orch.EnqueueDevSell(ctx, &SellRequest{Owner: "owner-1", MintAddress: mint})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("sell accepted for a token that has not launched")
	}
}

func TestReportSellOutcome_ReleasesLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)
	launchToCompletion(t, f, mint)

	req := &SellRequest{Owner: "owner-1", MintAddress: mint}
	if res, err := f.orch.EnqueueDevSell(ctx, req); err != nil || !res.Success {
		t.Fatalf("enqueue: res=%+v err=%v", res, err)
	}

	res, err := f.orch.ReportSellOutcome(ctx, &OutcomeReport{
		TokenAddress:    mint,
		WalletPublicKey: "dev-pk",
		Type:            domain.TxDevSell,
		Success:         true,
		AmountSol:       2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	token, _ := f.tokens.GetByMint(ctx, mint)
	if token.Launch.LockDevSell {
		t.Error("dev sell lock still held after the outcome")
	}

	// Released lock admits the next submission.
	if res, err := f.orch.EnqueueDevSell(ctx, req); err != nil || !res.Success {
		t.Errorf("resubmission after release: res=%+v err=%v", res, err)
	}
}

func TestReportSellOutcome_FailureAlsoReleasesLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)
	launchToCompletion(t, f, mint)

	req := &SellRequest{Owner: "owner-1", MintAddress: mint}
	if res, err := f.orch.EnqueueWalletSell(ctx, req); err != nil || !res.Success {
		t.Fatalf("enqueue: res=%+v err=%v", res, err)
	}

	res, err := f.orch.ReportSellOutcome(ctx, &OutcomeReport{
		TokenAddress: mint,
		Type:         domain.TxWalletSell,
		Success:      false,
		ErrorMessage: "slippage exceeded",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("failed sell reported as success")
	}

	token, _ := f.tokens.GetByMint(ctx, mint)
	if token.Launch.LockWalletSell {
		t.Error("wallet sell lock still held after a failed outcome")
	}

	// Failure keeps the cached parameters for resubmission.
	if _, err := f.retryData.Get(ctx, "owner-1", domain.FlowWalletSell); err != nil {
		t.Errorf("sell retry data dropped on failure: %v", err)
	}
}

func TestEnqueueWalletSell_SkipsWalletsAlreadySold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)
	launchToCompletion(t, f, mint)

	sellRecord := func(wallet string) {
		err := f.records.Insert(ctx, &domain.TransactionRecord{
			TokenAddress:    mint,
			WalletPublicKey: wallet,
			Type:            domain.TxWalletSell,
			Success:         true,
			LaunchAttempt:   1,
			CreatedAt:       1,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	sellRecord("buyer-1")

	req := &SellRequest{Owner: "owner-1", MintAddress: mint}
	res, err := f.orch.EnqueueWalletSell(ctx, req)
	if err != nil || !res.Success {
		t.Fatalf("enqueue: res=%+v err=%v", res, err)
	}

	jobs := f.queue.Jobs()
	job := jobs[len(jobs)-1]
	if job.Operation != queue.OpWalletSell {
		t.Fatalf("last job = %+v, want a wallet sell", job)
	}
	if len(job.Wallets) != 2 {
		t.Errorf("job carries %d wallets, want 2 after skipping the sold one", len(job.Wallets))
	}
	for _, w := range job.Wallets {
		if w.PublicKey == "buyer-1" {
			t.Error("sell resubmits a wallet that already sold")
		}
	}

	// Once every wallet has sold, a resubmission has nothing to dispatch.
	res, err = f.orch.ReportSellOutcome(ctx, &OutcomeReport{
		TokenAddress: mint,
		Type:         domain.TxWalletSell,
		Success:      true,
	})
	if err != nil || !res.Success {
		t.Fatalf("sell outcome: res=%+v err=%v", res, err)
	}
	sellRecord("buyer-2")
	sellRecord("buyer-3")

	res, err = f.orch.EnqueueWalletSell(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("sell accepted with every buyer wallet already sold")
	}
}

func TestReportSellOutcome_ChainErrorOverridesReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := startLaunched(t, f)
	launchToCompletion(t, f, mint)

	req := &SellRequest{Owner: "owner-1", MintAddress: mint}
	if res, err := f.orch.EnqueueDevSell(ctx, req); err != nil || !res.Success {
		t.Fatalf("enqueue: res=%+v err=%v", res, err)
	}

	f.orch.confirmer = &fakeConfirmer{conf: &solana.Confirmation{
		Signature: "sig-dev-sell",
		Err:       map[string]interface{}{"InstructionError": []interface{}{1, "Custom"}},
	}}

	res, err := f.orch.ReportSellOutcome(ctx, &OutcomeReport{
		TokenAddress:    mint,
		WalletPublicKey: "dev-pk",
		Type:            domain.TxDevSell,
		Signature:       "sig-dev-sell",
		Success:         true,
		AmountSol:       2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("sell reported as success despite a chain error")
	}

	token, _ := f.tokens.GetByMint(ctx, mint)
	if token.Launch.LockDevSell {
		t.Error("dev sell lock still held after the failed outcome")
	}

	// Failure keeps the cached parameters for resubmission.
	if _, err := f.retryData.Get(ctx, "owner-1", domain.FlowDevSell); err != nil {
		t.Errorf("sell retry data dropped on failure: %v", err)
	}

	rows, err := f.records.GetByToken(ctx, mint)
	if err != nil {
		t.Fatal(err)
	}
	var devSell *domain.TransactionRecord
	for _, r := range rows {
		if r.Type == domain.TxDevSell {
			devSell = r
		}
	}
	if devSell == nil || devSell.Success || devSell.ErrorMessage == "" {
		t.Errorf("dev sell row = %+v, want a failed row carrying the chain error", devSell)
	}
}

func TestClassifyChainError(t *testing.T) {
	permanent := []string{
		"already initialized",
		"Error: token creation failed for mint",
		"custom program error: 0x0",
		"Unable to fetch curve data",
	}
	for _, msg := range permanent {
		if !ClassifyChainError(msg) {
			t.Errorf("ClassifyChainError(%q) = false, want permanent", msg)
		}
	}

	transient := []string{
		"",
		"blockhash not found",
		"429 too many requests",
		"custom program error: 0x1771",
	}
	for _, msg := range transient {
		if ClassifyChainError(msg) {
			t.Errorf("ClassifyChainError(%q) = true, want transient", msg)
		}
	}
}
