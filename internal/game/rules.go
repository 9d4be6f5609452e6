package game

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type Tier struct {
	Price decimal.Decimal `json:"price"`
	Spins int             `json:"spins"`
}

// Rules holds every tunable constant of the economy. Amounts are whole
// currency units; fractions are basis points.
type Rules struct {
	StartingBalance       decimal.Decimal
	StartingJackpot       decimal.Decimal
	EntryFee              decimal.Decimal
	CreditTarget          decimal.Decimal
	RepaymentInstallments int64
	Consolation           decimal.Decimal
	LossValuePerUnit      decimal.Decimal
	PartialShareBps       int64
	CelebrateThreshold    decimal.Decimal
	JackpotBps            map[Multiplier]int64
	Tiers                 []Tier
	ClampJackpot          bool
}

func DefaultRules() Rules {
	return Rules{
		StartingBalance:       decimal.NewFromInt(1_000),
		StartingJackpot:       decimal.NewFromInt(100_000),
		EntryFee:              decimal.NewFromInt(50),
		CreditTarget:          decimal.NewFromInt(1_000),
		RepaymentInstallments: 5,
		Consolation:           decimal.NewFromInt(50),
		LossValuePerUnit:      decimal.NewFromInt(100),
		PartialShareBps:       1_000,
		CelebrateThreshold:    decimal.NewFromInt(5_000),
		JackpotBps: map[Multiplier]int64{
			MultiplierX1: 9_000,
			MultiplierX3: 9_500,
			MultiplierX5: 9_900,
		},
		Tiers: []Tier{
			{Price: decimal.NewFromInt(100), Spins: 3},
			{Price: decimal.NewFromInt(500), Spins: 16},
			{Price: decimal.NewFromInt(1_000), Spins: 35},
		},
	}
}

func (r Rules) Validate() error {
	if r.StartingBalance.IsNegative() || r.StartingJackpot.IsNegative() {
		return fmt.Errorf("%w: starting balance and jackpot must be >= 0", ErrInvalidRules)
	}
	if r.EntryFee.IsNegative() || r.Consolation.IsNegative() || r.LossValuePerUnit.IsNegative() {
		return fmt.Errorf("%w: fees and payouts must be >= 0", ErrInvalidRules)
	}
	if !r.CreditTarget.IsPositive() {
		return fmt.Errorf("%w: credit target must be > 0", ErrInvalidRules)
	}
	if r.RepaymentInstallments <= 0 {
		return fmt.Errorf("%w: repayment installments must be > 0", ErrInvalidRules)
	}
	if r.PartialShareBps < 0 || r.PartialShareBps > 10_000 {
		return fmt.Errorf("%w: partial share must be within 0..10000 bps", ErrInvalidRules)
	}
	for _, m := range []Multiplier{MultiplierX1, MultiplierX3, MultiplierX5} {
		v, ok := r.JackpotBps[m]
		if !ok || v <= 0 || v > 10_000 {
			return fmt.Errorf("%w: jackpot share for %s must be within 1..10000 bps", ErrInvalidRules, m)
		}
	}
	if len(r.Tiers) == 0 {
		return fmt.Errorf("%w: at least one pricing tier is required", ErrInvalidRules)
	}
	for _, t := range r.Tiers {
		if !t.Price.IsPositive() || t.Spins <= 0 {
			return fmt.Errorf("%w: tier price and spins must be > 0", ErrInvalidRules)
		}
	}
	return nil
}

// Normalize returns a copy with tiers sorted by ascending price.
func (r Rules) Normalize() Rules {
	tiers := make([]Tier, len(r.Tiers))
	copy(tiers, r.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Price.LessThan(tiers[j].Price)
	})
	r.Tiers = tiers
	jp := make(map[Multiplier]int64, len(r.JackpotBps))
	for k, v := range r.JackpotBps {
		jp[k] = v
	}
	r.JackpotBps = jp
	return r
}

func (r Rules) JackpotFraction(m Multiplier) decimal.Decimal {
	return decimal.NewFromInt(r.JackpotBps[m]).Div(bps)
}

func (r Rules) PartialShare() decimal.Decimal {
	return decimal.NewFromInt(r.PartialShareBps).Div(bps)
}

func (r Rules) SmallestTier() Tier {
	return r.Tiers[0]
}

func (r Rules) TierFor(price decimal.Decimal) (Tier, error) {
	for _, t := range r.Tiers {
		if t.Price.Equal(price) {
			return t, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: %s", ErrUnknownTier, price.String())
}

func (r Rules) RepaymentFor(debt decimal.Decimal) decimal.Decimal {
	if !debt.IsPositive() {
		return decimal.Zero
	}
	return debt.Div(decimal.NewFromInt(r.RepaymentInstallments)).Ceil()
}

// PlanBuyMax spends the balance greedily from the most expensive tier down.
// When nothing is affordable it falls back to one smallest-tier purchase.
func (r Rules) PlanBuyMax(balance decimal.Decimal) (cost decimal.Decimal, spins int, fallback bool) {
	remaining := balance
	cost = decimal.Zero
	for i := len(r.Tiers) - 1; i >= 0; i-- {
		t := r.Tiers[i]
		if remaining.LessThan(t.Price) {
			continue
		}
		q, _ := remaining.QuoRem(t.Price, 0)
		n := q.IntPart()
		if n <= 0 {
			continue
		}
		spent := t.Price.Mul(decimal.NewFromInt(n))
		cost = cost.Add(spent)
		remaining = remaining.Sub(spent)
		spins += int(n) * t.Spins
	}
	smallest := r.SmallestTier()
	if cost.LessThan(smallest.Price) {
		return smallest.Price, smallest.Spins, true
	}
	return cost, spins, false
}

func (r Rules) WinTierOf(win decimal.Decimal) WinTier {
	switch {
	case !win.IsPositive():
		return WinTierNone
	case win.GreaterThanOrEqual(r.CelebrateThreshold):
		return WinTierMassive
	case win.GreaterThan(decimal.NewFromInt(500)):
		return WinTierLarge
	case win.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return WinTierMedium
	default:
		return WinTierSmall
	}
}
