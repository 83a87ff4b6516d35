package distribution

// Tier is a contiguous range of wallet positions sharing a spend envelope.
// Positions are 1-based. The envelope is proportional to the requested
// total so the same tier table serves small and large campaigns; MaxSol is
// the absolute per-wallet ceiling regardless of total.
type Tier struct {
	StartPos    int
	EndPos      int
	MinFraction float64
	MaxFraction float64
	MaxSol      float64
}

// Config holds the tier table and the large-buy placement rule.
type Config struct {
	Tiers []Tier

	// LargeBuyThreshold is the amount at or above which an entry counts as
	// a large buy.
	LargeBuyThreshold float64

	// LargeBuyStartPos is the first 1-based position allowed to carry a
	// large buy. Earlier positions are capped below the threshold so the
	// opening wallets never show an obviously sequential footprint.
	LargeBuyStartPos int

	// MinUnit is the smallest practical per-wallet allocation. A total
	// below one unit collapses to a single wallet holding the full amount.
	MinUnit float64
}

// DefaultConfig returns the calibrated tier table. The boundaries and the
// large-buy rule are tuned configuration data, not derived values.
func DefaultConfig() Config {
	return Config{
		Tiers: []Tier{
			{StartPos: 1, EndPos: 15, MinFraction: 0.004, MaxFraction: 0.012, MaxSol: 0.8},
			{StartPos: 16, EndPos: 25, MinFraction: 0.008, MaxFraction: 0.018, MaxSol: 1.2},
			{StartPos: 26, EndPos: 40, MinFraction: 0.010, MaxFraction: 0.025, MaxSol: 1.8},
			{StartPos: 41, EndPos: 60, MinFraction: 0.015, MaxFraction: 0.035, MaxSol: 2.5},
			{StartPos: 61, EndPos: 73, MinFraction: 0.020, MaxFraction: 0.045, MaxSol: 3.0},
		},
		LargeBuyThreshold: 2.0,
		LargeBuyStartPos:  41,
		MinUnit:           0.05,
	}
}

// MaxWallets returns the highest position the tier table covers.
func (c Config) MaxWallets() int {
	if len(c.Tiers) == 0 {
		return 0
	}
	return c.Tiers[len(c.Tiers)-1].EndPos
}

// tierFor returns the tier covering a 1-based position. The last tier
// absorbs positions past the table end.
func (c Config) tierFor(pos int) Tier {
	for _, t := range c.Tiers {
		if pos >= t.StartPos && pos <= t.EndPos {
			return t
		}
	}
	return c.Tiers[len(c.Tiers)-1]
}

// capAt returns the absolute per-wallet ceiling at a position, including the
// large-buy placement rule.
func (c Config) capAt(pos int) float64 {
	ceiling := c.tierFor(pos).MaxSol
	if pos < c.LargeBuyStartPos {
		// Stay strictly below the threshold before the allowed region.
		if limit := c.LargeBuyThreshold * 0.99; ceiling > limit {
			ceiling = limit
		}
	}
	return ceiling
}
