package game

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	ReelCount  = 3
	StripCount = 5
	IconCount  = 6
)

type Multiplier int

const (
	MultiplierX1 Multiplier = 1
	MultiplierX3 Multiplier = 3
	MultiplierX5 Multiplier = 5
)

var (
	ErrNotEnoughSpins    = errors.New("not enough spins for multiplier")
	ErrInvalidMultiplier = errors.New("multiplier must be 1, 3 or 5")
	ErrInvalidPurchase   = errors.New("purchase amount and spins must be > 0")
	ErrUnknownTier       = errors.New("no pricing tier for amount")
	ErrSpinInProgress    = errors.New("spin already in progress")
	ErrNoSpinPending     = errors.New("no spin pending")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidRules      = errors.New("invalid economy rules")
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
	bps = decimal.NewFromInt(10_000)
)

func (m Multiplier) Valid() bool {
	switch m {
	case MultiplierX1, MultiplierX3, MultiplierX5:
		return true
	default:
		return false
	}
}

func (m Multiplier) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m))
}

func (m Multiplier) String() string {
	return fmt.Sprintf("X%d", int(m))
}

func ParseMultiplier(v int) (Multiplier, error) {
	m := Multiplier(v)
	if !m.Valid() {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidMultiplier, v)
	}
	return m, nil
}

func minDecimal(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	out := first
	for _, d := range rest {
		if d.LessThan(out) {
			out = d
		}
	}
	return out
}

func formatAmount(d decimal.Decimal) string {
	return d.Floor().String()
}
