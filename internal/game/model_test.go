package game

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestParseMultiplier(t *testing.T) {
	for _, v := range []int{1, 3, 5} {
		if _, err := ParseMultiplier(v); err != nil {
			t.Fatalf("expected multiplier %d to be valid: %v", v, err)
		}
	}
	for _, v := range []int{0, 2, 4, 6, -1} {
		if _, err := ParseMultiplier(v); !errors.Is(err, ErrInvalidMultiplier) {
			t.Fatalf("multiplier %d: got %v want ErrInvalidMultiplier", v, err)
		}
	}
}

func TestRepaymentFor(t *testing.T) {
	r := DefaultRules()
	tests := []struct {
		debt int64
		want int64
	}{
		{debt: 0, want: 0},
		{debt: -10, want: 0},
		{debt: 250, want: 50},
		{debt: 220, want: 44},
		{debt: 101, want: 21},
		{debt: 1, want: 1},
	}
	for _, tc := range tests {
		got := r.RepaymentFor(d(tc.debt))
		if !got.Equal(d(tc.want)) {
			t.Fatalf("debt=%d got=%s want=%d", tc.debt, got, tc.want)
		}
	}
}

func TestPlanBuyMax(t *testing.T) {
	r := DefaultRules().Normalize()
	tests := []struct {
		balance  int64
		cost     int64
		spins    int
		fallback bool
	}{
		{balance: 1750, cost: 1700, spins: 57, fallback: false},
		{balance: 3000, cost: 3000, spins: 105, fallback: false},
		{balance: 600, cost: 600, spins: 19, fallback: false},
		{balance: 99, cost: 100, spins: 3, fallback: true},
		{balance: 0, cost: 100, spins: 3, fallback: true},
	}
	for _, tc := range tests {
		cost, spins, fallback := r.PlanBuyMax(d(tc.balance))
		if !cost.Equal(d(tc.cost)) || spins != tc.spins || fallback != tc.fallback {
			t.Fatalf("balance=%d got cost=%s spins=%d fallback=%v want cost=%d spins=%d fallback=%v",
				tc.balance, cost, spins, fallback, tc.cost, tc.spins, tc.fallback)
		}
	}
}

func TestNormalizeSortsTiers(t *testing.T) {
	r := DefaultRules()
	r.Tiers = []Tier{
		{Price: d(1000), Spins: 35},
		{Price: d(100), Spins: 3},
		{Price: d(500), Spins: 16},
	}
	n := r.Normalize()
	if !n.SmallestTier().Price.Equal(d(100)) {
		t.Fatalf("smallest tier = %s", n.SmallestTier().Price)
	}
	if !r.Tiers[0].Price.Equal(d(1000)) {
		t.Fatalf("normalize mutated the input tiers")
	}
}

func TestTierFor(t *testing.T) {
	r := DefaultRules()
	tier, err := r.TierFor(d(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier.Spins != 16 {
		t.Fatalf("spins = %d want 16", tier.Spins)
	}
	if _, err := r.TierFor(d(250)); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("got %v want ErrUnknownTier", err)
	}
}

func TestWinTierOf(t *testing.T) {
	r := DefaultRules()
	tests := []struct {
		win  int64
		want WinTier
	}{
		{win: 0, want: WinTierNone},
		{win: 50, want: WinTierSmall},
		{win: 100, want: WinTierMedium},
		{win: 500, want: WinTierMedium},
		{win: 501, want: WinTierLarge},
		{win: 5000, want: WinTierMassive},
		{win: 90000, want: WinTierMassive},
	}
	for _, tc := range tests {
		if got := r.WinTierOf(d(tc.win)); got != tc.want {
			t.Fatalf("win=%d got=%s want=%s", tc.win, got, tc.want)
		}
	}
}

func TestValidateRules(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}

	mutations := map[string]func(r *Rules){
		"no tiers":         func(r *Rules) { r.Tiers = nil },
		"zero installment": func(r *Rules) { r.RepaymentInstallments = 0 },
		"missing x5":       func(r *Rules) { delete(r.JackpotBps, MultiplierX5) },
		"share too big":    func(r *Rules) { r.PartialShareBps = 10_001 },
		"free tier":        func(r *Rules) { r.Tiers = []Tier{{Price: decimal.Zero, Spins: 3}} },
		"zero target":      func(r *Rules) { r.CreditTarget = decimal.Zero },
	}
	for name, mutate := range mutations {
		r := DefaultRules().Normalize()
		mutate(&r)
		if err := r.Validate(); !errors.Is(err, ErrInvalidRules) {
			t.Fatalf("%s: got %v want ErrInvalidRules", name, err)
		}
	}
}
