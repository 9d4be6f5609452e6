package game

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func (s State) CreditAvailable(r Rules) bool {
	return s.Balance.LessThan(r.CreditTarget) && s.TotalDebt.IsZero()
}

// CreditOfferFor reports the shortfall a purchase of amount would need to
// borrow. ok is false when the balance already covers it.
func (s State) CreditOfferFor(amount decimal.Decimal, spins int) (CreditOffer, bool) {
	if s.Balance.GreaterThanOrEqual(amount) {
		return CreditOffer{}, false
	}
	return CreditOffer{
		Amount:    amount,
		Spins:     spins,
		Shortfall: amount.Sub(s.Balance),
	}, true
}

func (s State) WithMultiplier(m Multiplier) (State, []Event, error) {
	if !m.Valid() {
		return s, nil, fmt.Errorf("%w: got %d", ErrInvalidMultiplier, int(m))
	}
	s.Multiplier = m
	return s, []Event{{
		Kind:       EventMultiplierSet,
		Multiplier: m,
		Message:    fmt.Sprintf("Multiplier set to %s!", m),
	}}, nil
}

func (s State) addDebt(r Rules, amount decimal.Decimal) State {
	s.TotalDebt = s.TotalDebt.Add(amount)
	s.RepaymentPerSpin = r.RepaymentFor(s.TotalDebt)
	return s
}

// Purchase buys spins for amount. When the balance falls short the purchase
// only proceeds with acceptCredit; otherwise the state is returned untouched
// with the offer that was declined.
func (s State) Purchase(r Rules, amount decimal.Decimal, spins int, acceptCredit bool) (State, PurchaseOutcome, []Event, error) {
	if !amount.IsPositive() || spins <= 0 {
		return s, PurchaseOutcome{}, nil, fmt.Errorf("%w: amount=%s spins=%d", ErrInvalidPurchase, amount.String(), spins)
	}

	out := PurchaseOutcome{Amount: amount, Spins: spins, Credit: decimal.Zero}
	var events []Event

	if offer, short := s.CreditOfferFor(amount, spins); short {
		out.Offer = &offer
		if !acceptCredit {
			out.Declined = true
			out.Spins = 0
			out.Message = "Purchase cancelled."
			return s, out, []Event{{
				Kind:    EventCreditDeclined,
				Amount:  offer.Shortfall,
				Message: out.Message,
			}}, nil
		}
		s = s.addDebt(r, offer.Shortfall)
		s.Balance = s.Balance.Add(offer.Shortfall)
		out.Credit = offer.Shortfall
		out.Message = fmt.Sprintf("%s Credited & %s Bet Placed!", formatAmount(offer.Shortfall), formatAmount(amount))
		events = append(events, Event{
			Kind:    EventCreditTaken,
			Amount:  offer.Shortfall,
			Message: fmt.Sprintf("%s Credited", formatAmount(offer.Shortfall)),
		})
	} else {
		out.Message = "Bet Placed! Good Luck!"
	}

	s.Balance = s.Balance.Sub(amount)
	s.JackpotPool = s.JackpotPool.Add(amount)
	s.SpinsRemaining += spins

	events = append(events, Event{
		Kind:    EventBetPlaced,
		Amount:  amount,
		Message: out.Message,
	})
	return s, out, events, nil
}

func (s State) PurchaseTier(r Rules, price decimal.Decimal, acceptCredit bool) (State, PurchaseOutcome, []Event, error) {
	t, err := r.TierFor(price)
	if err != nil {
		return s, PurchaseOutcome{}, nil, fmt.Errorf("%w: %w", ErrInvalidPurchase, err)
	}
	return s.Purchase(r, t.Price, t.Spins, acceptCredit)
}

func (s State) BuyMax(r Rules, acceptCredit bool) (State, PurchaseOutcome, []Event, error) {
	cost, spins, fallback := r.PlanBuyMax(s.Balance)
	next, out, events, err := s.Purchase(r, cost, spins, acceptCredit)
	out.Fallback = fallback
	return next, out, events, err
}

// TakeCredit tops the balance up to the credit target, funded from the
// jackpot pool. It is a no-op unless the balance is below target and no debt
// is outstanding.
func (s State) TakeCredit(r Rules) (State, CreditOutcome, []Event) {
	if !s.CreditAvailable(r) {
		return s, CreditOutcome{Amount: decimal.Zero}, nil
	}

	loan := r.CreditTarget.Sub(s.Balance)
	s.TotalDebt = loan
	s.RepaymentPerSpin = r.RepaymentFor(loan)
	s.JackpotPool = s.JackpotPool.Sub(loan)
	s.Balance = r.CreditTarget

	out := CreditOutcome{
		Applied: true,
		Amount:  loan,
		Message: fmt.Sprintf("%s Credited! Topped up to %s.", formatAmount(loan), formatAmount(r.CreditTarget)),
	}
	events := []Event{{
		Kind:    EventCreditTaken,
		Amount:  loan,
		Message: out.Message,
	}}

	if s.JackpotPool.IsNegative() {
		out.Overdrawn = true
		events = append(events, Event{
			Kind:    EventJackpotOverdrawn,
			Amount:  s.JackpotPool.Neg(),
			Message: fmt.Sprintf("jackpot pool overdrawn by %s", formatAmount(s.JackpotPool.Neg())),
		})
		if r.ClampJackpot {
			s.JackpotPool = decimal.Zero
			out.Clamped = true
		}
	}
	return s, out, events
}
