// Package orchestrator drives the launch and sell state machine. It is the
// only component that interprets failures: the allocator, custody service,
// and distribution generator raise typed errors and make no retry decisions.
// Every stage advance pairs a conditional persistence update with a queue
// hand-off inside one transaction, so no stage advances without a dispatched
// unit of work and no work is dispatched without a matching advance.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"solana-launch-engine/internal/custody"
	"solana-launch-engine/internal/distribution"
	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/ledger"
	"solana-launch-engine/internal/pool"
	"solana-launch-engine/internal/queue"
	"solana-launch-engine/internal/solana"
	"solana-launch-engine/internal/storage"
)

// BalanceChecker answers SOL balance queries for precondition checks. RPC
// failures are transient; the caller may retry under its own attempt policy.
type BalanceChecker interface {
	GetBalance(ctx context.Context, pubkey string) (float64, error)
}

// ReceiptReader fetches settled transaction receipts for outcome
// verification. A nil receipt means the node does not know the signature.
type ReceiptReader interface {
	GetTransaction(ctx context.Context, signature string) (*solana.TransactionReceipt, error)
}

// ConfirmationWaiter blocks until a signature reaches confirmed commitment
// or the connection drops.
type ConfirmationWaiter interface {
	WaitForConfirmation(ctx context.Context, signature string) (*solana.Confirmation, error)
}

// confirmWaitTimeout bounds the wait for a signature the node has not yet
// settled when an outcome callback arrives.
const confirmWaitTimeout = 15 * time.Second

// Result is the user-facing outcome of an orchestrator operation. Business
// failures land here with Success=false; only infrastructure faults surface
// as errors.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func failure(format string, args ...interface{}) *Result {
	return &Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

func success(format string, args ...interface{}) *Result {
	return &Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Tokens    storage.TokenStore
	Wallets   storage.WalletStore
	RetryData storage.RetryDataStore
	Allocator *pool.Allocator
	Custody   *custody.Service
	Generator *distribution.Generator
	Queue     queue.Queue
	Ledger    *ledger.Ledger
	Balance   BalanceChecker
	Receipts  ReceiptReader
	Confirmer ConfirmationWaiter
	Logger    *log.Logger
}

// Orchestrator implements the LISTED -> LAUNCHING -> LAUNCHED state machine
// and the advisory-locked sell flows.
type Orchestrator struct {
	tokens    storage.TokenStore
	wallets   storage.WalletStore
	retryData storage.RetryDataStore
	alloc     *pool.Allocator
	custody   *custody.Service
	gen       *distribution.Generator
	queue     queue.Queue
	ledger    *ledger.Ledger
	balance   BalanceChecker
	receipts  ReceiptReader
	confirmer ConfirmationWaiter
	logger    *log.Logger

	// newKeypair is the ad-hoc fallback when the pool is exhausted.
	newKeypair func() (*solana.Keypair, error)
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		tokens:     d.Tokens,
		wallets:    d.Wallets,
		retryData:  d.RetryData,
		alloc:      d.Allocator,
		custody:    d.Custody,
		gen:        d.Generator,
		queue:      d.Queue,
		ledger:     d.Ledger,
		balance:    d.Balance,
		receipts:   d.Receipts,
		confirmer:  d.Confirmer,
		logger:     logger,
		newKeypair: solana.GenerateKeypair,
	}
}

// LaunchRequest carries the parameters of a new campaign.
type LaunchRequest struct {
	Owner        string  `json:"owner"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	BuyAmount    float64 `json:"buyAmount"`
	DevBuyAmount float64 `json:"devBuyAmount"`
}

// launchRetryPayload is the RetryData body for the launch flow.
type launchRetryPayload struct {
	MintAddress  string  `json:"mintAddress"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	BuyAmount    float64 `json:"buyAmount"`
	DevBuyAmount float64 `json:"devBuyAmount"`
}

// StartLaunch creates a new campaign and dispatches the first unit of work.
//
// The mint address comes from the pool allocator, falling back to an ad-hoc
// keypair when the pool is exhausted. The token is inserted LISTED and then
// advanced to LAUNCHING stage 1 through the conditional update that also
// enqueues the launch job; a failed enqueue aborts the advance.
func (o *Orchestrator) StartLaunch(ctx context.Context, req *LaunchRequest) (*Result, error) {
	if req.Owner == "" || req.Name == "" || req.Symbol == "" {
		return failure("owner, name and symbol are required"), nil
	}

	dist, err := o.gen.Generate(req.BuyAmount, o.gen.Config().MaxWallets())
	if err != nil {
		if errors.Is(err, distribution.ErrInvalidAmount) {
			return failure("buy amount %.4f is out of range (max %.4f)", req.BuyAmount, o.gen.MaxBuyAmount()), nil
		}
		return nil, err
	}

	devWallet, fundingWallet, buyers, res, err := o.loadWallets(ctx, req.Owner)
	if res != nil || err != nil {
		return res, err
	}

	if res := o.checkFundingBalance(ctx, fundingWallet.PublicKey, req.BuyAmount+req.DevBuyAmount); res != nil {
		return res, nil
	}

	mint, encryptedMintKey, fromPool, err := o.acquireMintAddress(ctx, req.Owner)
	if err != nil {
		return nil, err
	}

	token := &domain.Token{
		Owner:            req.Owner,
		Name:             req.Name,
		Symbol:           req.Symbol,
		MintAddress:      mint,
		EncryptedMintKey: encryptedMintKey,
		State:            domain.StateListed,
		CreatedAt:        time.Now().UnixMilli(),
	}
	if err := o.tokens.Insert(ctx, token); err != nil {
		if fromPool {
			if relErr := o.alloc.Release(ctx, mint); relErr != nil {
				o.logger.Printf("orchestrator: release after failed insert: %v", relErr)
			}
		}
		if errors.Is(err, storage.ErrDuplicateKey) {
			return failure("mint address %s is already registered", mint), nil
		}
		return nil, err
	}

	if err := o.saveRetryData(ctx, req.Owner, domain.FlowLaunch, launchRetryPayload{
		MintAddress:  mint,
		Name:         req.Name,
		Symbol:       req.Symbol,
		BuyAmount:    req.BuyAmount,
		DevBuyAmount: req.DevBuyAmount,
	}); err != nil {
		return nil, err
	}

	job, res, err := o.buildLaunchJob(ctx, token, devWallet, fundingWallet, buyers, dist, req.DevBuyAmount, 1, domain.StagePrepared)
	if res != nil || err != nil {
		return res, err
	}

	launching := domain.StateLaunching
	change := storage.LaunchChange{
		State: &launching,
		SetLaunchData: &domain.LaunchData{
			FundingKeyEncrypted: fundingWallet.EncryptedPrivateKey,
			DevWalletRef:        devWallet.PublicKey,
			BuyerWalletRefs:     walletRefs(buyers, len(dist)),
			BuyAmount:           req.BuyAmount,
			DevBuyAmount:        req.DevBuyAmount,
			LaunchStage:         domain.StagePrepared,
			LaunchAttempt:       1,
			BuyDistribution:     dist,
		},
	}
	pred := storage.LaunchPredicate{Owner: req.Owner, State: domain.StateListed}

	err = o.tokens.UpdateLaunch(ctx, mint, pred, change, func(ctx context.Context) error {
		return o.queue.Enqueue(ctx, job)
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return failure("token %s is not in a launchable state", mint), nil
		}
		return nil, err
	}

	o.logger.Printf("orchestrator: launch started mint=%s owner=%s wallets=%d", mint, req.Owner, len(dist))
	return success("launch started for %s with %d buyer wallets", mint, len(dist)), nil
}

// RetryLaunch resumes an in-flight campaign from its last persisted stage.
// Each retry increments launchAttempt, so the dispatched job carries a fresh
// identity and is not deduplicated against the stalled one.
func (o *Orchestrator) RetryLaunch(ctx context.Context, owner, mint string) (*Result, error) {
	token, res, err := o.ownedToken(ctx, owner, mint)
	if res != nil || err != nil {
		return res, err
	}
	if token.State != domain.StateLaunching {
		return failure("token %s is %s, only launching tokens can be retried", mint, token.State), nil
	}
	if token.Launch.LaunchStage >= domain.StageSnipesDone {
		return failure("token %s has already completed all launch stages", mint), nil
	}

	devWallet, fundingWallet, buyers, res, err := o.loadWallets(ctx, owner)
	if res != nil || err != nil {
		return res, err
	}

	attempt := token.Launch.LaunchAttempt + 1
	job, res, err := o.buildLaunchJob(ctx, token, devWallet, fundingWallet, buyers,
		token.Launch.BuyDistribution, token.Launch.DevBuyAmount, attempt, token.Launch.LaunchStage)
	if res != nil || err != nil {
		return res, err
	}

	stage := token.Launch.LaunchStage
	pred := storage.LaunchPredicate{Owner: owner, State: domain.StateLaunching, Stage: &stage}
	change := storage.LaunchChange{IncrementLaunchAttempt: true}

	err = o.tokens.UpdateLaunch(ctx, mint, pred, change, func(ctx context.Context) error {
		return o.queue.Enqueue(ctx, job)
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return failure("token %s changed state, refresh and retry", mint), nil
		}
		return nil, err
	}

	o.logger.Printf("orchestrator: launch retry mint=%s attempt=%d stage=%d", mint, attempt, stage)
	return success("launch retry %d dispatched from stage %d", attempt, stage), nil
}

// SellRequest carries the parameters of a dev or wallet sell.
type SellRequest struct {
	Owner       string `json:"owner"`
	MintAddress string `json:"mintAddress"`
	// Percentage of holdings to sell, 0 means all.
	Percentage float64 `json:"percentage,omitempty"`
}

type sellRetryPayload struct {
	MintAddress string  `json:"mintAddress"`
	Percentage  float64 `json:"percentage"`
}

// EnqueueDevSell acquires the dev sell advisory lock and dispatches a sell
// job for the dev wallet. A held lock rejects the submission immediately.
func (o *Orchestrator) EnqueueDevSell(ctx context.Context, req *SellRequest) (*Result, error) {
	return o.enqueueSell(ctx, req, queue.OpDevSell)
}

// EnqueueWalletSell acquires the wallet sell advisory lock and dispatches a
// sell job covering the buyer wallets.
func (o *Orchestrator) EnqueueWalletSell(ctx context.Context, req *SellRequest) (*Result, error) {
	return o.enqueueSell(ctx, req, queue.OpWalletSell)
}

func (o *Orchestrator) enqueueSell(ctx context.Context, req *SellRequest, op queue.Operation) (*Result, error) {
	token, res, err := o.ownedToken(ctx, req.Owner, req.MintAddress)
	if res != nil || err != nil {
		return res, err
	}
	if token.State != domain.StateLaunched {
		return failure("token %s is %s, sells require a launched token", req.MintAddress, token.State), nil
	}

	var (
		kind    domain.FlowKind
		pred    storage.LaunchPredicate
		change  storage.LaunchChange
		attempt int
	)
	lock := true
	switch op {
	case queue.OpDevSell:
		kind = domain.FlowDevSell
		if token.Launch.LockDevSell {
			return failure("a dev sell for %s is already in flight", req.MintAddress), nil
		}
		pred = storage.LaunchPredicate{Owner: req.Owner, State: domain.StateLaunched, DevSellUnlocked: true}
		change = storage.LaunchChange{LockDevSell: &lock, IncrementDevSellAttempt: true}
		attempt = token.Launch.DevSellAttempt + 1
	default:
		kind = domain.FlowWalletSell
		if token.Launch.LockWalletSell {
			return failure("a wallet sell for %s is already in flight", req.MintAddress), nil
		}
		pred = storage.LaunchPredicate{Owner: req.Owner, State: domain.StateLaunched, WalletSellUnlocked: true}
		change = storage.LaunchChange{LockWalletSell: &lock, IncrementWalletSellAttempt: true}
		attempt = token.Launch.WalletSellAttempt + 1
	}

	job, res, err := o.buildSellJob(ctx, token, op, attempt, req.Percentage)
	if res != nil || err != nil {
		return res, err
	}

	if err := o.saveRetryData(ctx, req.Owner, kind, sellRetryPayload{
		MintAddress: req.MintAddress,
		Percentage:  req.Percentage,
	}); err != nil {
		return nil, err
	}

	err = o.tokens.UpdateLaunch(ctx, req.MintAddress, pred, change, func(ctx context.Context) error {
		return o.queue.Enqueue(ctx, job)
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return failure("a %s for %s is already in flight", op, req.MintAddress), nil
		}
		return nil, err
	}

	o.logger.Printf("orchestrator: %s dispatched mint=%s attempt=%d", op, req.MintAddress, attempt)
	return success("%s dispatched for %s", op, req.MintAddress), nil
}

// OutcomeReport is the worker callback payload: the terminal result of one
// dispatched on-chain operation.
type OutcomeReport struct {
	TokenAddress    string                 `json:"tokenAddress"`
	WalletPublicKey string                 `json:"walletPublicKey"`
	Type            domain.TransactionType `json:"type"`
	Signature       string                 `json:"signature,omitempty"`
	Success         bool                   `json:"success"`
	AmountSol       float64                `json:"amountSol,omitempty"`
	AmountTokens    float64                `json:"amountTokens,omitempty"`
	RetryAttempt    int                    `json:"retryAttempt,omitempty"`
	ErrorMessage    string                 `json:"errorMessage,omitempty"`
}

// ReportOutcome routes a worker callback to the launch or sell handler based
// on the transaction type.
func (o *Orchestrator) ReportOutcome(ctx context.Context, rep *OutcomeReport) (*Result, error) {
	if !rep.Type.IsValid() {
		return failure("unknown transaction type %q", rep.Type), nil
	}
	switch queue.OperationForTransaction(rep.Type) {
	case queue.OpLaunch:
		return o.ReportLaunchOutcome(ctx, rep)
	default:
		return o.ReportSellOutcome(ctx, rep)
	}
}

// stageAfter maps a successful launch transaction type to the stage it
// completes.
func stageAfter(t domain.TransactionType) int {
	switch t {
	case domain.TxTokenCreation:
		return domain.StageTokenCreated
	case domain.TxDevBuy:
		return domain.StageDevBuyDone
	case domain.TxSnipeBuy:
		return domain.StageSnipesDone
	}
	return 0
}

// ReportLaunchOutcome verifies the report against the chain, records the
// ledger row, and advances the launch stage on success, or classifies the
// failure and applies the release policy.
func (o *Orchestrator) ReportLaunchOutcome(ctx context.Context, rep *OutcomeReport) (*Result, error) {
	token, err := o.tokens.GetByMint(ctx, rep.TokenAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return failure("unknown token %s", rep.TokenAddress), nil
		}
		return nil, err
	}

	o.verifyOutcome(ctx, rep)

	if err := o.recordOutcome(ctx, token, rep); err != nil {
		return nil, err
	}

	if !rep.Success {
		return o.handleLaunchFailure(ctx, token, rep)
	}

	next := stageAfter(rep.Type)
	if next == 0 || next <= token.Launch.LaunchStage {
		// External buys and stale callbacks do not move the pipeline.
		return success("outcome recorded for %s", rep.TokenAddress), nil
	}

	stage := token.Launch.LaunchStage
	pred := storage.LaunchPredicate{State: domain.StateLaunching, Stage: &stage}
	change := storage.LaunchChange{Stage: &next}
	if next == domain.StageSnipesDone {
		launched := domain.StateLaunched
		change.State = &launched
	}

	if err := o.tokens.UpdateLaunch(ctx, rep.TokenAddress, pred, change, nil); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Another callback advanced first; the ledger row still stands.
			return success("outcome recorded for %s, stage already advanced", rep.TokenAddress), nil
		}
		return nil, err
	}

	if next == domain.StageSnipesDone {
		if err := o.retryData.Delete(ctx, token.Owner, domain.FlowLaunch); err != nil {
			o.logger.Printf("orchestrator: clear launch retry data: %v", err)
		}
		o.logger.Printf("orchestrator: launch complete mint=%s attempt=%d", rep.TokenAddress, token.Launch.LaunchAttempt)
		return success("launch complete for %s", rep.TokenAddress), nil
	}

	return success("stage %d complete for %s", next, rep.TokenAddress), nil
}

// handleLaunchFailure applies the failure-driven release policy. Permanent
// chain errors free the reserved address immediately and stop retries;
// transient ones keep the reservation until the attempt budget is spent.
func (o *Orchestrator) handleLaunchFailure(ctx context.Context, token *domain.Token, rep *OutcomeReport) (*Result, error) {
	permanent := ClassifyChainError(rep.ErrorMessage)
	attempt := token.Launch.LaunchAttempt

	if pool.ShouldRelease(permanent, attempt) {
		if err := o.alloc.Release(ctx, token.MintAddress); err != nil {
			o.logger.Printf("orchestrator: release %s: %v", token.MintAddress, err)
		}
		if err := o.retryData.Delete(ctx, token.Owner, domain.FlowLaunch); err != nil {
			o.logger.Printf("orchestrator: clear launch retry data: %v", err)
		}
		if permanent {
			o.logger.Printf("orchestrator: permanent failure mint=%s attempt=%d", token.MintAddress, attempt)
			return failure("launch failed permanently, address released"), nil
		}
		o.logger.Printf("orchestrator: retry budget exhausted mint=%s attempt=%d", token.MintAddress, attempt)
		return failure("launch failed after %d attempts, address released", attempt), nil
	}

	o.logger.Printf("orchestrator: transient failure mint=%s attempt=%d", token.MintAddress, attempt)
	return failure("launch attempt %d failed, retry available", attempt), nil
}

// ReportSellOutcome verifies the report against the chain, records the
// ledger row, and releases the advisory lock the sell held, regardless of
// success. Retry data is cleared only on success so a failed sell can be
// resubmitted with the cached parameters.
func (o *Orchestrator) ReportSellOutcome(ctx context.Context, rep *OutcomeReport) (*Result, error) {
	token, err := o.tokens.GetByMint(ctx, rep.TokenAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return failure("unknown token %s", rep.TokenAddress), nil
		}
		return nil, err
	}

	o.verifyOutcome(ctx, rep)

	if err := o.recordOutcome(ctx, token, rep); err != nil {
		return nil, err
	}

	unlocked := false
	var change storage.LaunchChange
	var kind domain.FlowKind
	switch queue.OperationForTransaction(rep.Type) {
	case queue.OpDevSell:
		change = storage.LaunchChange{LockDevSell: &unlocked}
		kind = domain.FlowDevSell
	default:
		change = storage.LaunchChange{LockWalletSell: &unlocked}
		kind = domain.FlowWalletSell
	}

	pred := storage.LaunchPredicate{State: token.State}
	if err := o.tokens.UpdateLaunch(ctx, rep.TokenAddress, pred, change, nil); err != nil && !errors.Is(err, storage.ErrConflict) {
		return nil, err
	}

	if rep.Success {
		if err := o.retryData.Delete(ctx, token.Owner, kind); err != nil {
			o.logger.Printf("orchestrator: clear sell retry data: %v", err)
		}
		return success("sell outcome recorded for %s", rep.TokenAddress), nil
	}
	return failure("sell failed for %s, lock released", rep.TokenAddress), nil
}

// PendingRetry returns the cached parameters for a resumable flow, or
// storage.ErrNotFound when none exist.
func (o *Orchestrator) PendingRetry(ctx context.Context, owner string, kind domain.FlowKind) (json.RawMessage, error) {
	rd, err := o.retryData.Get(ctx, owner, kind)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(rd.Payload), nil
}

// --- helpers ---

func (o *Orchestrator) ownedToken(ctx context.Context, owner, mint string) (*domain.Token, *Result, error) {
	if owner == "" || mint == "" {
		return nil, failure("owner and mint address are required"), nil
	}
	token, err := o.tokens.GetByMint(ctx, mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, failure("unknown token %s", mint), nil
		}
		return nil, nil, err
	}
	if token.Owner != owner {
		// Same message as unknown token so ownership is not probeable.
		return nil, failure("unknown token %s", mint), nil
	}
	return token, nil, nil
}

// loadWallets resolves the owner's dev, funding and buyer wallets. Buyer
// wallets are reused round-robin when the distribution needs more entries
// than exist.
func (o *Orchestrator) loadWallets(ctx context.Context, owner string) (dev, funding *domain.Wallet, buyers []*domain.Wallet, res *Result, err error) {
	dev, res, err = o.defaultWallet(ctx, owner, domain.RoleDev)
	if res != nil || err != nil {
		return nil, nil, nil, res, err
	}
	funding, res, err = o.defaultWallet(ctx, owner, domain.RoleFunding)
	if res != nil || err != nil {
		return nil, nil, nil, res, err
	}
	buyers, err = o.wallets.GetByOwnerAndRole(ctx, owner, domain.RoleBuyer)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(buyers) == 0 {
		return nil, nil, nil, failure("no buyer wallets registered"), nil
	}
	return dev, funding, buyers, nil, nil
}

func (o *Orchestrator) defaultWallet(ctx context.Context, owner string, role domain.WalletRole) (*domain.Wallet, *Result, error) {
	ws, err := o.wallets.GetByOwnerAndRole(ctx, owner, role)
	if err != nil {
		return nil, nil, err
	}
	if len(ws) == 0 {
		return nil, failure("no %s wallet registered", role), nil
	}
	for _, w := range ws {
		if w.IsDefault {
			return w, nil, nil
		}
	}
	return ws[0], nil, nil
}

// checkFundingBalance verifies the funding wallet covers the requested
// spend. RPC failures are transient and reported as retryable.
func (o *Orchestrator) checkFundingBalance(ctx context.Context, pubkey string, required float64) *Result {
	if o.balance == nil {
		return nil
	}
	balance, err := o.balance.GetBalance(ctx, pubkey)
	if err != nil {
		o.logger.Printf("orchestrator: balance check failed: %v", err)
		return failure("balance check failed, retry shortly")
	}
	if balance < required {
		return failure("funding wallet holds %.4f SOL, %.4f required", balance, required)
	}
	return nil
}

// acquireMintAddress claims a pool address, falling back to a fresh ad-hoc
// keypair when the pool is exhausted. Returns the mint public key, the
// custody-encrypted secret, and whether the address came from the pool.
func (o *Orchestrator) acquireMintAddress(ctx context.Context, owner string) (string, string, bool, error) {
	addr, err := o.alloc.Allocate(ctx, owner)
	if err == nil {
		return addr.PublicKey, addr.SecretKeyMaterial, true, nil
	}
	if !errors.Is(err, pool.ErrPoolExhausted) {
		return "", "", false, err
	}

	o.logger.Printf("orchestrator: pool exhausted, generating ad-hoc keypair for %s", owner)
	kp, err := o.newKeypair()
	if err != nil {
		return "", "", false, err
	}
	encrypted, err := o.custody.Encrypt(kp.SecretKey)
	if err != nil {
		return "", "", false, err
	}
	return kp.PublicKey, encrypted, false, nil
}

// buildLaunchJob assembles the queue payload for a launch attempt,
// decrypting every key it carries. Secrets live only in the job. Buyer
// wallets with a recorded successful snipe buy for this mint are left out,
// so a retried attempt never repeats completed buys.
func (o *Orchestrator) buildLaunchJob(ctx context.Context, token *domain.Token, dev, funding *domain.Wallet, buyers []*domain.Wallet, dist []float64, devBuyAmount float64, attempt, stage int) (*queue.Job, *Result, error) {
	mintKey, err := o.custody.Decrypt(token.EncryptedMintKey)
	if err != nil {
		return nil, failure("mint key cannot be decrypted"), nil
	}
	fundingKey, err := o.custody.Decrypt(funding.EncryptedPrivateKey)
	if err != nil {
		return nil, failure("funding wallet key cannot be decrypted"), nil
	}
	devKey, err := o.custody.Decrypt(dev.EncryptedPrivateKey)
	if err != nil {
		return nil, failure("dev wallet key cannot be decrypted"), nil
	}

	wallets := make([]queue.WalletKey, 0, len(dist))
	bought := make(map[string]bool, len(buyers))
	for i, amount := range dist {
		buyer := buyers[i%len(buyers)]
		done, checked := bought[buyer.PublicKey]
		if !checked {
			done, err = o.ledger.IsAlreadySuccessful(ctx, token.MintAddress, buyer.PublicKey, domain.TxSnipeBuy)
			if err != nil {
				return nil, nil, err
			}
			bought[buyer.PublicKey] = done
		}
		if done {
			continue
		}
		secret, err := o.custody.Decrypt(buyer.EncryptedPrivateKey)
		if err != nil {
			return nil, failure("buyer wallet key cannot be decrypted"), nil
		}
		wallets = append(wallets, queue.WalletKey{
			PublicKey: buyer.PublicKey,
			SecretKey: secret,
			Amount:    amount,
		})
	}

	return &queue.Job{
		Operation:    queue.OpLaunch,
		OwnerID:      token.Owner,
		TokenAddress: token.MintAddress,
		LaunchStage:  stage,
		Attempt:      attempt,
		MintKey:      mintKey,
		FundingKey:   fundingKey,
		DevWallet:    &queue.WalletKey{PublicKey: dev.PublicKey, SecretKey: devKey, Amount: devBuyAmount},
		Wallets:      wallets,
		Metadata:     map[string]string{"name": token.Name, "symbol": token.Symbol},
	}, nil, nil
}

// buildSellJob assembles the queue payload for a sell.
func (o *Orchestrator) buildSellJob(ctx context.Context, token *domain.Token, op queue.Operation, attempt int, percentage float64) (*queue.Job, *Result, error) {
	job := &queue.Job{
		Operation:    op,
		OwnerID:      token.Owner,
		TokenAddress: token.MintAddress,
		LaunchStage:  token.Launch.LaunchStage,
		Attempt:      attempt,
	}
	if percentage > 0 {
		job.Metadata = map[string]string{"percentage": fmt.Sprintf("%.2f", percentage)}
	}

	if op == queue.OpDevSell {
		dev, err := o.wallets.GetByPublicKey(ctx, token.Launch.DevWalletRef)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, failure("dev wallet for %s is not registered", token.MintAddress), nil
			}
			return nil, nil, err
		}
		secret, err := o.custody.Decrypt(dev.EncryptedPrivateKey)
		if err != nil {
			return nil, failure("dev wallet key cannot be decrypted"), nil
		}
		job.DevWallet = &queue.WalletKey{PublicKey: dev.PublicKey, SecretKey: secret}
		return job, nil, nil
	}

	refs := token.Launch.BuyerWalletRefs
	job.Wallets = make([]queue.WalletKey, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	sold := 0
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		// A wallet whose sell already landed is done; a resubmission after
		// a partial failure covers only the remainder.
		done, err := o.ledger.IsAlreadySuccessful(ctx, token.MintAddress, ref, domain.TxWalletSell)
		if err != nil {
			return nil, nil, err
		}
		if done {
			sold++
			continue
		}
		w, err := o.wallets.GetByPublicKey(ctx, ref)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, nil, err
		}
		secret, err := o.custody.Decrypt(w.EncryptedPrivateKey)
		if err != nil {
			return nil, failure("buyer wallet key cannot be decrypted"), nil
		}
		job.Wallets = append(job.Wallets, queue.WalletKey{PublicKey: w.PublicKey, SecretKey: secret})
	}
	if len(job.Wallets) == 0 {
		if sold > 0 {
			return nil, failure("every buyer wallet for %s has already sold", token.MintAddress), nil
		}
		return nil, failure("no buyer wallets recorded for %s", token.MintAddress), nil
	}
	return job, nil, nil
}

// verifyOutcome reconciles a worker report against the chain before it is
// recorded. The receipt is authoritative when the node has one: a reported
// success whose transaction failed on chain becomes a failure, a reported
// failure whose signature landed becomes a success, and a missing spend
// amount is derived from the wallet's balance change. An unverifiable
// report stands as the worker sent it.
func (o *Orchestrator) verifyOutcome(ctx context.Context, rep *OutcomeReport) {
	if rep.Signature == "" {
		return
	}

	receipt := o.fetchReceipt(ctx, rep.Signature)
	if receipt == nil && o.confirmer != nil {
		// The node may not have settled the signature yet; wait for the
		// confirmation notification, then read the receipt for amounts.
		waitCtx, cancel := context.WithTimeout(ctx, confirmWaitTimeout)
		conf, err := o.confirmer.WaitForConfirmation(waitCtx, rep.Signature)
		cancel()
		if err != nil {
			o.logger.Printf("orchestrator: confirmation wait %s: %v", rep.Signature, err)
			return
		}
		if conf.Err != nil {
			markChainFailure(rep, conf.Err)
			return
		}
		rep.Success = true
		rep.ErrorMessage = ""
		receipt = o.fetchReceipt(ctx, rep.Signature)
	}
	if receipt == nil {
		return
	}

	if !receipt.Succeeded() {
		markChainFailure(rep, receipt.Err)
		return
	}
	rep.Success = true
	rep.ErrorMessage = ""
	if rep.AmountSol == 0 && rep.WalletPublicKey != "" {
		if delta := receipt.BalanceChangeSol(rep.WalletPublicKey); delta != 0 {
			rep.AmountSol = math.Abs(delta)
		}
	}
}

func (o *Orchestrator) fetchReceipt(ctx context.Context, signature string) *solana.TransactionReceipt {
	if o.receipts == nil {
		return nil
	}
	receipt, err := o.receipts.GetTransaction(ctx, signature)
	if err != nil {
		o.logger.Printf("orchestrator: fetch receipt %s: %v", signature, err)
		return nil
	}
	return receipt
}

// markChainFailure overrides a report with the chain's verdict, keeping the
// worker's error message when it supplied one.
func markChainFailure(rep *OutcomeReport, chainErr interface{}) {
	rep.Success = false
	if rep.ErrorMessage == "" {
		rep.ErrorMessage = fmt.Sprintf("%v", chainErr)
	}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, token *domain.Token, rep *OutcomeReport) error {
	return o.ledger.Record(ctx, &domain.TransactionRecord{
		TokenAddress:    rep.TokenAddress,
		WalletPublicKey: rep.WalletPublicKey,
		Type:            rep.Type,
		Signature:       rep.Signature,
		Success:         rep.Success,
		LaunchAttempt:   token.Launch.LaunchAttempt,
		AmountSol:       rep.AmountSol,
		AmountTokens:    rep.AmountTokens,
		RetryAttempt:    rep.RetryAttempt,
		ErrorMessage:    rep.ErrorMessage,
	})
}

func (o *Orchestrator) saveRetryData(ctx context.Context, owner string, kind domain.FlowKind, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal retry payload: %w", err)
	}
	return o.retryData.Put(ctx, &domain.RetryData{
		Owner:     owner,
		Kind:      kind,
		Payload:   raw,
		CreatedAt: time.Now().UnixMilli(),
	})
}

func walletRefs(buyers []*domain.Wallet, count int) []string {
	refs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		refs = append(refs, buyers[i%len(buyers)].PublicKey)
	}
	return refs
}
