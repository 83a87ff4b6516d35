// Package distribution computes randomized per-wallet spend schedules for a
// launch campaign. Wallet positions are grouped into tiers with envelopes
// proportional to the requested total; the generated amounts always sum to
// the total and large buys only appear past the configured start position.
package distribution

import (
	"errors"
	"math"
	"math/rand/v2"
)

// ErrInvalidAmount is returned when the requested total is non-positive or
// exceeds what the tier table can absorb.
var ErrInvalidAmount = errors.New("invalid amount")

// SumTolerance is the accepted absolute deviation between the requested
// total and the sum of generated amounts.
const SumTolerance = 0.001

// Generator produces buy distributions from a tier configuration.
type Generator struct {
	cfg Config
}

// NewGenerator creates a Generator. A zero-value config falls back to the
// calibrated defaults.
func NewGenerator(cfg Config) *Generator {
	if len(cfg.Tiers) == 0 {
		cfg = DefaultConfig()
	}
	return &Generator{cfg: cfg}
}

// Config returns the generator's tier configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

type genOptions struct {
	seed    int64
	useSeed bool
}

// Option configures a Generate call.
type Option func(*genOptions)

// WithSeed makes the output exactly reproducible for the given seed.
// Without it every call draws fresh randomness.
func WithSeed(seed int64) Option {
	return func(o *genOptions) {
		o.seed = seed
		o.useSeed = true
	}
}

// MaxBuyAmount returns the system ceiling: the most SOL the full tier table
// can absorb across all wallet positions.
func (g *Generator) MaxBuyAmount() float64 {
	return g.maxAmountFor(g.cfg.MaxWallets())
}

// RequiredWallets returns the minimum wallet count whose cumulative tier
// capacity can absorb total.
func (g *Generator) RequiredWallets(total float64) (int, error) {
	if total <= 0 || total > g.MaxBuyAmount() {
		return 0, ErrInvalidAmount
	}
	if total < g.cfg.MinUnit {
		return 1, nil
	}

	cum := 0.0
	for pos := 1; pos <= g.cfg.MaxWallets(); pos++ {
		cum += g.cfg.capAt(pos)
		if cum >= total {
			return pos, nil
		}
	}
	return g.cfg.MaxWallets(), nil
}

// Generate partitions total across at most maxWallets entries. The result
// sums to total within SumTolerance; entries at or above the large-buy
// threshold occur only at positions the placement rule allows.
func (g *Generator) Generate(total float64, maxWallets int, opts ...Option) ([]float64, error) {
	var o genOptions
	for _, opt := range opts {
		opt(&o)
	}

	if total <= 0 || maxWallets <= 0 {
		return nil, ErrInvalidAmount
	}
	if maxWallets > g.cfg.MaxWallets() {
		maxWallets = g.cfg.MaxWallets()
	}
	if total > g.maxAmountFor(maxWallets) {
		return nil, ErrInvalidAmount
	}

	// Below one tier-1 unit there is nothing to partition.
	if total < g.cfg.MinUnit {
		return []float64{total}, nil
	}

	rng := newRand(o)

	required, err := g.RequiredWallets(total)
	if err != nil {
		return nil, err
	}
	if required > maxWallets {
		return nil, ErrInvalidAmount
	}

	n := g.pickWalletCount(rng, total, required, maxWallets)
	if n == 1 {
		return []float64{total}, nil
	}

	amounts := make([]float64, n)
	for i := range amounts {
		pos := i + 1
		tier := g.cfg.tierFor(pos)
		frac := tier.MinFraction + rng.Float64()*(tier.MaxFraction-tier.MinFraction)
		amounts[i] = math.Min(frac*total, g.cfg.capAt(pos))
	}

	g.fitToTotal(amounts, total)
	g.roundAndSettle(amounts, total)

	return amounts, nil
}

// pickWalletCount chooses a wallet count between the capacity minimum and
// maxWallets, biased by how many wallets the total can meaningfully fill.
func (g *Generator) pickWalletCount(rng *rand.Rand, total float64, required, maxWallets int) int {
	upper := maxWallets
	if byUnit := int(total / g.cfg.MinUnit); byUnit < upper {
		upper = byUnit
	}
	if upper < required {
		upper = required
	}
	return required + rng.IntN(upper-required+1)
}

// fitToTotal rescales amounts until they sum to total, water-filling against
// the per-position caps. Capacity was checked up front, so the loop
// terminates with the free entries carrying the exact remainder.
func (g *Generator) fitToTotal(amounts []float64, total float64) {
	free := make([]bool, len(amounts))
	for i := range free {
		free[i] = true
	}
	remaining := total

	for iter := 0; iter < len(amounts)+1; iter++ {
		sumFree := 0.0
		for i, a := range amounts {
			if free[i] {
				sumFree += a
			}
		}
		if sumFree <= 0 {
			break
		}

		factor := remaining / sumFree
		clamped := false
		for i := range amounts {
			if !free[i] {
				continue
			}
			scaled := amounts[i] * factor
			if limit := g.cfg.capAt(i + 1); scaled >= limit {
				amounts[i] = limit
				free[i] = false
				remaining -= limit
				clamped = true
			} else {
				amounts[i] = scaled
			}
		}
		if !clamped {
			return
		}
	}
}

// roundAndSettle rounds entries to 4 decimals and pushes the rounding
// residual into entries with cap headroom, keeping the exact-sum property.
func (g *Generator) roundAndSettle(amounts []float64, total float64) {
	sum := 0.0
	for i, a := range amounts {
		amounts[i] = math.Round(a*10000) / 10000
		sum += amounts[i]
	}

	residual := total - sum
	if math.Abs(residual) < SumTolerance {
		return
	}

	// Walk from the back (largest caps) so positive residual lands where
	// the placement rule permits it.
	for i := len(amounts) - 1; i >= 0 && math.Abs(residual) >= SumTolerance; i-- {
		headroom := g.cfg.capAt(i+1) - amounts[i]
		adjust := residual
		if adjust > headroom {
			adjust = headroom
		}
		if amounts[i]+adjust < 0 {
			adjust = -amounts[i]
		}
		amounts[i] = math.Round((amounts[i]+adjust)*10000) / 10000
		residual -= adjust
	}
}

func (g *Generator) maxAmountFor(wallets int) float64 {
	if wallets > g.cfg.MaxWallets() {
		wallets = g.cfg.MaxWallets()
	}
	sum := 0.0
	for pos := 1; pos <= wallets; pos++ {
		sum += g.cfg.capAt(pos)
	}
	return sum
}

func newRand(o genOptions) *rand.Rand {
	if o.useSeed {
		return rand.New(rand.NewPCG(uint64(o.seed), uint64(o.seed)))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
