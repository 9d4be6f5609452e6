package game

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store persists session records. Update must hold the record exclusively
// for the duration of fn and commit only when fn returns nil.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Update(ctx context.Context, id string, fn func(rec *Record) error) (Record, error)
}

type Options struct {
	Rules     Rules
	Random    RandomSource
	Notifiers []Notifier
	Logger    *slog.Logger
	Now       func() time.Time
}

type Service struct {
	store     Store
	rules     Rules
	rand      RandomSource
	notifiers []Notifier
	log       *slog.Logger
	now       func() time.Time
}

type MultiplierResult struct {
	View   View    `json:"view"`
	Events []Event `json:"events"`
}

type PurchaseResult struct {
	View    View            `json:"view"`
	Outcome PurchaseOutcome `json:"outcome"`
	Events  []Event         `json:"events"`
}

type CreditResult struct {
	View    View          `json:"view"`
	Outcome CreditOutcome `json:"outcome"`
	Events  []Event       `json:"events"`
}

type SpinStart struct {
	View   View       `json:"view"`
	Reels  SpinResult `json:"reels"`
	Events []Event    `json:"events"`
}

type SpinResolution struct {
	View    View        `json:"view"`
	Outcome SpinOutcome `json:"outcome"`
	Events  []Event     `json:"events"`
}

func NewService(store Store, opts Options) (*Service, error) {
	rules := opts.Rules
	if len(rules.Tiers) == 0 && rules.JackpotBps == nil {
		rules = DefaultRules()
	}
	rules = rules.Normalize()
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if opts.Random == nil {
		opts.Random = NewRandomSource(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:     store,
		rules:     rules,
		rand:      opts.Random,
		notifiers: opts.Notifiers,
		log:       opts.Logger,
		now:       opts.Now,
	}, nil
}

func (s *Service) Rules() Rules {
	return s.rules
}

func (s *Service) CreateSession(ctx context.Context) (View, error) {
	now := s.now().UTC()
	rec := Record{
		ID:        uuid.NewString(),
		State:     NewState(s.rules),
		Phase:     PhaseIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return View{}, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("session created", "session_id", rec.ID)
	s.dispatch(ctx, rec, nil)
	return NewView(rec, s.rules), nil
}

func (s *Service) Session(ctx context.Context, id string) (View, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return NewView(rec, s.rules), nil
}

func (s *Service) SetMultiplier(ctx context.Context, id string, m Multiplier) (MultiplierResult, error) {
	if !m.Valid() {
		return MultiplierResult{}, fmt.Errorf("%w: got %d", ErrInvalidMultiplier, int(m))
	}
	rec, events, err := s.mutate(ctx, id, "multiplier", func(rec *Record) ([]Event, error) {
		if rec.Phase == PhaseSpinning {
			return nil, ErrSpinInProgress
		}
		next, events, err := rec.State.WithMultiplier(m)
		if err != nil {
			return nil, err
		}
		rec.State = next
		return events, nil
	})
	if err != nil {
		return MultiplierResult{}, err
	}
	return MultiplierResult{View: NewView(rec, s.rules), Events: events}, nil
}

func (s *Service) Purchase(ctx context.Context, id string, amount decimal.Decimal, spins int, confirm Confirmer) (PurchaseResult, error) {
	if !amount.IsPositive() || spins <= 0 {
		return PurchaseResult{}, fmt.Errorf("%w: amount=%s spins=%d", ErrInvalidPurchase, amount.String(), spins)
	}
	return s.purchase(ctx, id, "purchase", confirm, func(Rules, State) (decimal.Decimal, int, bool) {
		return amount, spins, false
	})
}

func (s *Service) PurchaseTier(ctx context.Context, id string, price decimal.Decimal, confirm Confirmer) (PurchaseResult, error) {
	t, err := s.rules.TierFor(price)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("%w: %w", ErrInvalidPurchase, err)
	}
	return s.Purchase(ctx, id, t.Price, t.Spins, confirm)
}

func (s *Service) BuyMax(ctx context.Context, id string, confirm Confirmer) (PurchaseResult, error) {
	return s.purchase(ctx, id, "buy_max", confirm, func(r Rules, st State) (decimal.Decimal, int, bool) {
		return r.PlanBuyMax(st.Balance)
	})
}

type purchasePlan func(r Rules, st State) (amount decimal.Decimal, spins int, fallback bool)

func (s *Service) purchase(ctx context.Context, id, op string, confirm Confirmer, plan purchasePlan) (PurchaseResult, error) {
	var out PurchaseOutcome
	rec, events, err := s.mutate(ctx, id, op, func(rec *Record) ([]Event, error) {
		amount, spins, fallback := plan(s.rules, rec.State)
		accept := false
		if offer, short := rec.State.CreditOfferFor(amount, spins); short && confirm != nil {
			ok, err := confirm.ConfirmCredit(ctx, offer)
			if err != nil {
				return nil, fmt.Errorf("confirm credit: %w", err)
			}
			accept = ok
		}
		next, o, events, err := rec.State.Purchase(s.rules, amount, spins, accept)
		if err != nil {
			return nil, err
		}
		o.Fallback = fallback
		rec.State = next
		out = o
		return events, nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	if out.Credit.IsPositive() {
		s.log.Info("purchase financed on credit", "session_id", id, "amount", out.Amount.String(), "credit", out.Credit.String())
	}
	return PurchaseResult{View: NewView(rec, s.rules), Outcome: out, Events: events}, nil
}

func (s *Service) TakeCredit(ctx context.Context, id string) (CreditResult, error) {
	var out CreditOutcome
	rec, events, err := s.mutate(ctx, id, "credit", func(rec *Record) ([]Event, error) {
		next, o, events := rec.State.TakeCredit(s.rules)
		rec.State = next
		out = o
		return events, nil
	})
	if err != nil {
		return CreditResult{}, err
	}
	if out.Applied {
		s.log.Info("credit issued", "session_id", id, "amount", out.Amount.String())
	}
	if out.Overdrawn {
		s.log.Warn("jackpot pool overdrawn by credit", "session_id", id, "pool", rec.State.JackpotPool.String(), "clamped", out.Clamped)
	}
	return CreditResult{View: NewView(rec, s.rules), Outcome: out, Events: events}, nil
}

func (s *Service) BeginSpin(ctx context.Context, id string) (SpinStart, error) {
	var reels SpinResult
	rec, events, err := s.mutate(ctx, id, "begin_spin", func(rec *Record) ([]Event, error) {
		r, events, err := rec.BeginSpin(s.rules, s.rand)
		if err != nil {
			return nil, err
		}
		reels = r
		return events, nil
	})
	if err != nil {
		return SpinStart{}, err
	}
	return SpinStart{View: NewView(rec, s.rules), Reels: reels, Events: events}, nil
}

func (s *Service) ResolveSpin(ctx context.Context, id string) (SpinResolution, error) {
	var out SpinOutcome
	rec, events, err := s.mutate(ctx, id, "resolve_spin", func(rec *Record) ([]Event, error) {
		o, events, err := rec.ResolveSpin(s.rules)
		if err != nil {
			return nil, err
		}
		out = o
		return events, nil
	})
	if err != nil {
		return SpinResolution{}, err
	}
	if out.Match == MatchJackpot {
		s.log.Info("jackpot won",
			"session_id", id,
			"multiplier", int(rec.State.Multiplier),
			"win", out.GrossWin.String(),
			"pool", rec.State.JackpotPool.String(),
		)
	}
	return SpinResolution{View: NewView(rec, s.rules), Outcome: out, Events: events}, nil
}

// Spin runs both phases with delay between them. If ctx ends during the
// delay the spin stays pending and can be resolved later.
func (s *Service) Spin(ctx context.Context, id string, delay time.Duration) (SpinResolution, error) {
	if _, err := s.BeginSpin(ctx, id); err != nil {
		return SpinResolution{}, err
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return SpinResolution{}, ctx.Err()
		case <-timer.C:
		}
	}
	return s.ResolveSpin(ctx, id)
}

func (s *Service) mutate(ctx context.Context, id, op string, fn func(rec *Record) ([]Event, error)) (Record, []Event, error) {
	var events []Event
	rec, err := s.store.Update(ctx, id, func(rec *Record) error {
		ev, err := fn(rec)
		if err != nil {
			return err
		}
		events = ev
		rec.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return Record{}, nil, err
	}
	s.log.Debug("session updated",
		"session_id", id,
		"op", op,
		"balance", rec.State.Balance.String(),
		"jackpot_pool", rec.State.JackpotPool.String(),
		"spins_remaining", rec.State.SpinsRemaining,
		"total_debt", rec.State.TotalDebt.String(),
		"events", len(events),
	)
	s.dispatch(ctx, rec, events)
	return rec, events, nil
}

func (s *Service) dispatch(ctx context.Context, rec Record, events []Event) {
	if len(s.notifiers) == 0 {
		return
	}
	u := Update{
		SessionID: rec.ID,
		View:      NewView(rec, s.rules),
		Events:    events,
		At:        s.now().UTC(),
	}
	for _, n := range s.notifiers {
		s.notify(ctx, n, u)
	}
}

func (s *Service) notify(ctx context.Context, n Notifier, u Update) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("notifier panicked", "session_id", u.SessionID, "panic", r)
		}
	}()
	n.Notify(ctx, u)
}
