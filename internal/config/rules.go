package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"jackpotreels/internal/game"
)

// rulesFile mirrors game.Rules with optional fields so a file only needs the
// keys it overrides.
type rulesFile struct {
	StartingBalance       *int64          `yaml:"starting_balance"`
	StartingJackpot       *int64          `yaml:"starting_jackpot"`
	EntryFee              *int64          `yaml:"entry_fee"`
	CreditTarget          *int64          `yaml:"credit_target"`
	RepaymentInstallments *int64          `yaml:"repayment_installments"`
	Consolation           *int64          `yaml:"consolation"`
	LossValuePerUnit      *int64          `yaml:"loss_value_per_unit"`
	PartialShareBps       *int64          `yaml:"partial_share_bps"`
	CelebrateThreshold    *int64          `yaml:"celebrate_threshold"`
	ClampJackpot          *bool           `yaml:"clamp_jackpot"`
	JackpotBps            map[int]int64   `yaml:"jackpot_bps"`
	Tiers                 []rulesFileTier `yaml:"tiers"`
}

type rulesFileTier struct {
	Price int64 `yaml:"price"`
	Spins int   `yaml:"spins"`
}

// LoadRules reads economy rules from a YAML file. An empty path yields the
// defaults.
func LoadRules(path string) (game.Rules, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return game.DefaultRules().Normalize(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return game.Rules{}, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (game.Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return game.Rules{}, fmt.Errorf("rules yaml: %w", err)
	}

	r := game.DefaultRules()
	setDecimal(&r.StartingBalance, f.StartingBalance)
	setDecimal(&r.StartingJackpot, f.StartingJackpot)
	setDecimal(&r.EntryFee, f.EntryFee)
	setDecimal(&r.CreditTarget, f.CreditTarget)
	setDecimal(&r.Consolation, f.Consolation)
	setDecimal(&r.LossValuePerUnit, f.LossValuePerUnit)
	setDecimal(&r.CelebrateThreshold, f.CelebrateThreshold)
	if f.RepaymentInstallments != nil {
		r.RepaymentInstallments = *f.RepaymentInstallments
	}
	if f.PartialShareBps != nil {
		r.PartialShareBps = *f.PartialShareBps
	}
	if f.ClampJackpot != nil {
		r.ClampJackpot = *f.ClampJackpot
	}
	for m, v := range f.JackpotBps {
		mult, err := game.ParseMultiplier(m)
		if err != nil {
			return game.Rules{}, fmt.Errorf("rules jackpot_bps: %w", err)
		}
		r.JackpotBps[mult] = v
	}
	if f.Tiers != nil {
		r.Tiers = make([]game.Tier, 0, len(f.Tiers))
		for _, t := range f.Tiers {
			r.Tiers = append(r.Tiers, game.Tier{Price: decimal.NewFromInt(t.Price), Spins: t.Spins})
		}
	}

	r = r.Normalize()
	if err := r.Validate(); err != nil {
		return game.Rules{}, err
	}
	return r, nil
}

func setDecimal(dst *decimal.Decimal, v *int64) {
	if v != nil {
		*dst = decimal.NewFromInt(*v)
	}
}
