package game

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type State struct {
	Balance          decimal.Decimal `json:"balance"`
	JackpotPool      decimal.Decimal `json:"jackpot_pool"`
	SpinsRemaining   int             `json:"spins_remaining"`
	TotalDebt        decimal.Decimal `json:"total_debt"`
	RepaymentPerSpin decimal.Decimal `json:"repayment_per_spin"`
	Multiplier       Multiplier      `json:"multiplier"`
}

func NewState(r Rules) State {
	return State{
		Balance:          r.StartingBalance,
		JackpotPool:      r.StartingJackpot,
		TotalDebt:        decimal.Zero,
		RepaymentPerSpin: decimal.Zero,
		Multiplier:       MultiplierX1,
	}
}

type ReelOutcome struct {
	Strip int `json:"strip"`
	Icon  int `json:"icon"`
}

func (o ReelOutcome) Equal(other ReelOutcome) bool {
	return o.Strip == other.Strip && o.Icon == other.Icon
}

func (o ReelOutcome) String() string {
	return fmt.Sprintf("%c%d", 'A'+rune(o.Strip), o.Icon)
}

type SpinResult [ReelCount]ReelOutcome

type MatchKind string

const (
	MatchNone    MatchKind = "none"
	MatchPartial MatchKind = "partial"
	MatchJackpot MatchKind = "jackpot"
)

type WinTier string

const (
	WinTierNone    WinTier = "none"
	WinTierSmall   WinTier = "small"
	WinTierMedium  WinTier = "medium"
	WinTierLarge   WinTier = "large"
	WinTierMassive WinTier = "massive"
)

type SpinOutcome struct {
	Reels     SpinResult      `json:"reels"`
	Match     MatchKind       `json:"match"`
	GrossWin  decimal.Decimal `json:"gross_win"`
	DebtPaid  decimal.Decimal `json:"debt_paid"`
	Credited  decimal.Decimal `json:"credited"`
	Tier      WinTier         `json:"tier"`
	Celebrate bool            `json:"celebrate"`
	Message   string          `json:"message"`
}

type CreditOffer struct {
	Amount    decimal.Decimal `json:"amount"`
	Spins     int             `json:"spins"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

type PurchaseOutcome struct {
	Amount   decimal.Decimal `json:"amount"`
	Spins    int             `json:"spins"`
	Credit   decimal.Decimal `json:"credit"`
	Offer    *CreditOffer    `json:"offer,omitempty"`
	Declined bool            `json:"declined"`
	Fallback bool            `json:"fallback,omitempty"`
	Message  string          `json:"message,omitempty"`
}

type CreditOutcome struct {
	Applied   bool            `json:"applied"`
	Amount    decimal.Decimal `json:"amount"`
	Overdrawn bool            `json:"overdrawn,omitempty"`
	Clamped   bool            `json:"clamped,omitempty"`
	Message   string          `json:"message,omitempty"`
}

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseSpinning Phase = "spinning"
)

// Record is the persisted unit of a session: its economy state plus the
// pending half of a two-phase spin.
type Record struct {
	ID        string      `json:"id"`
	State     State       `json:"state"`
	Phase     Phase       `json:"phase"`
	Pending   *SpinResult `json:"pending,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (r Record) Clone() Record {
	out := r
	if r.Pending != nil {
		p := *r.Pending
		out.Pending = &p
	}
	return out
}

type View struct {
	SessionID       string      `json:"session_id"`
	State           State       `json:"state"`
	Phase           Phase       `json:"phase"`
	Pending         *SpinResult `json:"pending,omitempty"`
	CanSpin         bool        `json:"can_spin"`
	SpinLabel       string      `json:"spin_label"`
	CreditAvailable bool        `json:"credit_available"`
}

func NewView(rec Record, r Rules) View {
	s := rec.State
	label := "BUY SPINS ABOVE"
	if s.SpinsRemaining > 0 {
		label = fmt.Sprintf("SPIN (%d LEFT)", s.SpinsRemaining)
	}
	v := View{
		SessionID:       rec.ID,
		State:           s,
		Phase:           rec.Phase,
		CanSpin:         rec.Phase == PhaseIdle && s.SpinsRemaining >= int(s.Multiplier),
		SpinLabel:       label,
		CreditAvailable: s.CreditAvailable(r),
	}
	if rec.Pending != nil {
		p := *rec.Pending
		v.Pending = &p
	}
	return v
}
