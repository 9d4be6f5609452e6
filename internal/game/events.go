package game

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventMultiplierSet    EventKind = "multiplier-set"
	EventBetPlaced        EventKind = "bet-placed"
	EventCreditDeclined   EventKind = "credit-declined"
	EventCreditTaken      EventKind = "credit-taken"
	EventJackpotOverdrawn EventKind = "jackpot-overdrawn"
	EventSpinStarted      EventKind = "spin-started"
	EventWinJackpot       EventKind = "win-jackpot"
	EventWinMatch         EventKind = "win-match"
	EventWinConsolation   EventKind = "win-consolation"
	EventLoss             EventKind = "loss"
	EventDebtRepaid       EventKind = "debt-repaid"
	EventCelebrate        EventKind = "celebrate"
)

func WinTierEvent(t WinTier) EventKind {
	return EventKind("win-tier-" + string(t))
}

type Event struct {
	Kind       EventKind       `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Multiplier Multiplier      `json:"multiplier,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// Update is what notifiers receive after a mutation has been committed.
type Update struct {
	SessionID string    `json:"session_id"`
	View      View      `json:"view"`
	Events    []Event   `json:"events"`
	At        time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, u Update)
}

type NotifierFunc func(ctx context.Context, u Update)

func (f NotifierFunc) Notify(ctx context.Context, u Update) {
	f(ctx, u)
}

// Confirmer decides whether a purchase the balance cannot cover is financed
// on credit. It is consulted while the session is exclusively held.
type Confirmer interface {
	ConfirmCredit(ctx context.Context, offer CreditOffer) (bool, error)
}

type AcceptCredit bool

func (a AcceptCredit) ConfirmCredit(context.Context, CreditOffer) (bool, error) {
	return bool(a), nil
}

type ConfirmFunc func(ctx context.Context, offer CreditOffer) (bool, error)

func (f ConfirmFunc) ConfirmCredit(ctx context.Context, offer CreditOffer) (bool, error) {
	return f(ctx, offer)
}
