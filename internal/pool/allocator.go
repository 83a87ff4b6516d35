// Package pool hands out exclusive use of pre-generated deployment
// addresses. The store's conditional acquire gives at-most-one-winner
// semantics; this package adds the domain policy around it.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-launch-engine/internal/domain"
	"solana-launch-engine/internal/storage"
)

// ErrPoolExhausted is returned when no free address exists at acquisition
// time. Race losers see this too; falling back to ad-hoc key generation is
// the caller's choice.
var ErrPoolExhausted = errors.New("address pool exhausted")

// MaxRetainedAttempts is the number of launch attempts an address stays
// reserved through on transient failures. Past this the reservation is
// released for the next campaign.
const MaxRetainedAttempts = 3

// Allocator manages the shared address pool.
type Allocator struct {
	store  storage.PoolAddressStore
	logger *log.Logger
}

// NewAllocator creates an Allocator over the given store.
func NewAllocator(store storage.PoolAddressStore, logger *log.Logger) *Allocator {
	if logger == nil {
		logger = log.Default()
	}
	return &Allocator{store: store, logger: logger}
}

// Allocate claims the oldest free address for requesterID. The claim is one
// conditional update: concurrent callers get distinct addresses or
// ErrPoolExhausted, never the same one.
func (a *Allocator) Allocate(ctx context.Context, requesterID string) (*domain.PoolAddress, error) {
	addr, err := a.store.AcquireOldestFree(ctx, requesterID, time.Now().UnixMilli())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPoolExhausted
		}
		return nil, fmt.Errorf("allocate pool address: %w", err)
	}

	a.logger.Printf("pool: allocated %s to %s", addr.PublicKey, requesterID)
	return addr, nil
}

// Release returns an address to the pool. Releasing an already-free address
// is a no-op.
func (a *Allocator) Release(ctx context.Context, publicKey string) error {
	if err := a.store.Release(ctx, publicKey); err != nil {
		return fmt.Errorf("release pool address: %w", err)
	}
	a.logger.Printf("pool: released %s", publicKey)
	return nil
}

// MarkUsed force-sets used state without going through Allocate, for
// administrative reconciliation such as burning an address after an
// unrecoverable launch.
func (a *Allocator) MarkUsed(ctx context.Context, publicKey, requesterID string) error {
	if err := a.store.ForceMarkUsed(ctx, publicKey, requesterID, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("mark pool address used: %w", err)
	}
	return nil
}

// Stats returns pool occupancy counters.
func (a *Allocator) Stats(ctx context.Context) (*storage.PoolStats, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool stats: %w", err)
	}
	return stats, nil
}

// ShouldRelease encodes the failure-driven release policy. Permanent
// failures free the address immediately; transient ones keep the
// reservation until the retry budget is spent.
func ShouldRelease(permanent bool, launchAttempt int) bool {
	if permanent {
		return true
	}
	return launchAttempt > MaxRetainedAttempts
}

// ValidateAddress checks that a provisioned public key is well formed:
// base58, 32 bytes, and a valid ed25519 curve point.
func ValidateAddress(publicKey string) error {
	decoded, err := base58.Decode(publicKey)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("address is %d bytes, want 32", len(decoded))
	}
	if _, err := new(edwards25519.Point).SetBytes(decoded); err != nil {
		return fmt.Errorf("address not on curve: %w", err)
	}
	return nil
}
