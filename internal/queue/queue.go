// Package queue hands launch and sell work to the external execution
// workers. The engine guarantees atomicity only up to a successful enqueue;
// execution itself is asynchronous and reported back through outcome
// callbacks.
package queue

import (
	"context"
	"fmt"

	"solana-launch-engine/internal/domain"
)

// Operation names the unit of work a job carries.
type Operation string

const (
	OpLaunch     Operation = "launch"
	OpDevSell    Operation = "dev-sell"
	OpWalletSell Operation = "wallet-sell"
)

// String returns the string representation of Operation.
func (o Operation) String() string {
	return string(o)
}

// WalletKey pairs a wallet with its decrypted secret for the worker.
// Secrets transit the queue only; they are never written back to storage.
type WalletKey struct {
	PublicKey string  `json:"publicKey"`
	SecretKey string  `json:"secretKey"`
	Amount    float64 `json:"amount"`
}

// Job is one unit of work for the execution workers.
type Job struct {
	Operation    Operation         `json:"operation"`
	OwnerID      string            `json:"ownerId"`
	TokenAddress string            `json:"tokenAddress"`
	LaunchStage  int               `json:"launchStage"`
	Attempt      int               `json:"attempt"`
	MintKey      string            `json:"mintKey,omitempty"`
	FundingKey   string            `json:"fundingKey,omitempty"`
	DevWallet    *WalletKey        `json:"devWallet,omitempty"`
	Wallets      []WalletKey       `json:"wallets,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ID returns the attempt-scoped identity key. Workers deduplicate on it, so
// re-dispatching the same attempt is harmless while a new attempt is a new
// job.
func (j *Job) ID() string {
	return fmt.Sprintf("%s-%s-%d", j.Operation, j.TokenAddress, j.Attempt)
}

// Validate checks a job is complete enough to dispatch.
func (j *Job) Validate() error {
	if j.Operation != OpLaunch && j.Operation != OpDevSell && j.Operation != OpWalletSell {
		return fmt.Errorf("unknown operation %q", j.Operation)
	}
	if j.TokenAddress == "" {
		return fmt.Errorf("job missing token address")
	}
	if j.OwnerID == "" {
		return fmt.Errorf("job missing owner")
	}
	return nil
}

// OperationForTransaction maps a ledger transaction type to the queue
// operation that produces it. Exhaustive over the closed enum.
func OperationForTransaction(t domain.TransactionType) Operation {
	switch t {
	case domain.TxTokenCreation, domain.TxDevBuy, domain.TxSnipeBuy, domain.TxExternalBuy:
		return OpLaunch
	case domain.TxDevSell:
		return OpDevSell
	case domain.TxWalletSell, domain.TxExternalSell:
		return OpWalletSell
	}
	return OpLaunch
}

// Queue dispatches jobs to the execution workers.
type Queue interface {
	// Enqueue hands a job off under its identity key. Enqueueing a job
	// whose identity was already dispatched is a no-op, not an error.
	Enqueue(ctx context.Context, job *Job) error
}
