package game

import (
	"fmt"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type RandomSource interface {
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *mathrand.Rand
}

// NewRandomSource returns a goroutine-safe source. A zero seed seeds from the
// clock.
func NewRandomSource(seed int64) RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: mathrand.New(mathrand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// FixedSource replays its values in order and then repeats the last one.
// An empty FixedSource always yields 0, which lines every reel up.
type FixedSource struct {
	mu     sync.Mutex
	values []int
	next   int
}

func NewFixedSource(values ...int) *FixedSource {
	return &FixedSource{values: values}
}

func (f *FixedSource) Intn(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return 0
	}
	idx := f.next
	if idx >= len(f.values) {
		idx = len(f.values) - 1
	} else {
		f.next++
	}
	v := f.values[idx] % n
	if v < 0 {
		v += n
	}
	return v
}

func SampleReels(src RandomSource) SpinResult {
	var out SpinResult
	for i := range out {
		out[i] = ReelOutcome{
			Strip: src.Intn(StripCount),
			Icon:  src.Intn(IconCount),
		}
	}
	return out
}

func Classify(reels SpinResult) MatchKind {
	a, b, c := reels[0], reels[1], reels[2]
	if a.Equal(b) && b.Equal(c) {
		return MatchJackpot
	}
	if a.Equal(b) || b.Equal(c) || a.Equal(c) {
		return MatchPartial
	}
	return MatchNone
}

// BeginSpin charges the spin and samples the reels. Nothing is paid out until
// Resolve is called with the returned result.
func (s State) BeginSpin(r Rules, src RandomSource) (State, SpinResult, []Event, error) {
	if !s.Multiplier.Valid() {
		return s, SpinResult{}, nil, fmt.Errorf("%w: got %d", ErrInvalidMultiplier, int(s.Multiplier))
	}
	if s.SpinsRemaining < int(s.Multiplier) {
		return s, SpinResult{}, nil, fmt.Errorf("%w: need %d, have %d", ErrNotEnoughSpins, int(s.Multiplier), s.SpinsRemaining)
	}

	fee := r.EntryFee.Mul(s.Multiplier.Decimal())
	s.SpinsRemaining -= int(s.Multiplier)
	s.JackpotPool = s.JackpotPool.Add(fee)
	reels := SampleReels(src)

	return s, reels, []Event{{
		Kind:       EventSpinStarted,
		Amount:     fee,
		Multiplier: s.Multiplier,
	}}, nil
}

func (s State) Resolve(r Rules, reels SpinResult) (State, SpinOutcome, []Event) {
	m := s.Multiplier
	out := SpinOutcome{
		Reels:    reels,
		Match:    Classify(reels),
		GrossWin: decimal.Zero,
		DebtPaid: decimal.Zero,
		Credited: decimal.Zero,
	}
	var events []Event

	switch out.Match {
	case MatchJackpot:
		if s.JackpotPool.IsPositive() {
			f := r.JackpotFraction(m)
			out.GrossWin = s.JackpotPool.Mul(f).Floor()
			s.JackpotPool = s.JackpotPool.Mul(one.Sub(f))
		}
		out.Message = fmt.Sprintf("%s JACKPOT: %s", m, formatAmount(out.GrossWin))
		events = append(events, Event{Kind: EventWinJackpot, Amount: out.GrossWin, Multiplier: m, Message: out.Message})
	case MatchPartial:
		spins := s.SpinsRemaining
		if spins < 1 {
			spins = 1
		}
		base, _ := s.JackpotPool.Mul(r.PartialShare()).Mul(two).QuoRem(decimal.NewFromInt(int64(spins)), 0)
		out.GrossWin = base.Mul(m.Decimal())
		if out.GrossWin.IsNegative() {
			out.GrossWin = decimal.Zero
		}
		out.Message = fmt.Sprintf("%s Match: %s", m, formatAmount(out.GrossWin))
		events = append(events, Event{Kind: EventWinMatch, Amount: out.GrossWin, Multiplier: m, Message: out.Message})
	default:
		if m == MultiplierX1 {
			out.GrossWin = r.Consolation
			out.Message = fmt.Sprintf("Won: %s", formatAmount(out.GrossWin))
			events = append(events, Event{Kind: EventWinConsolation, Amount: out.GrossWin, Multiplier: m, Message: out.Message})
		} else {
			lost := r.LossValuePerUnit.Mul(m.Decimal())
			out.Message = lossMessage(m, lost)
			events = append(events, Event{Kind: EventLoss, Amount: lost, Multiplier: m, Message: out.Message})
		}
	}

	out.Tier = r.WinTierOf(out.GrossWin)
	if out.Tier != WinTierNone {
		events = append(events, Event{Kind: WinTierEvent(out.Tier), Amount: out.GrossWin, Multiplier: m})
	}
	if out.GrossWin.IsPositive() && out.GrossWin.GreaterThanOrEqual(r.CelebrateThreshold) {
		out.Celebrate = true
		events = append(events, Event{
			Kind:    EventCelebrate,
			Amount:  out.GrossWin,
			Message: fmt.Sprintf("CONGRATULATIONS! Massive Win of %s!", formatAmount(out.GrossWin)),
		})
	}

	win := out.GrossWin
	if win.IsPositive() && s.TotalDebt.IsPositive() {
		deduction := minDecimal(win, s.RepaymentPerSpin, s.TotalDebt)
		win = win.Sub(deduction)
		s.TotalDebt = s.TotalDebt.Sub(deduction)
		s.RepaymentPerSpin = r.RepaymentFor(s.TotalDebt)
		out.DebtPaid = deduction
		debtMsg := fmt.Sprintf("(%s Paid to Debt)", formatAmount(deduction))
		out.Message = strings.TrimSpace(out.Message + " " + debtMsg)
		events = append(events, Event{Kind: EventDebtRepaid, Amount: deduction, Message: debtMsg})
	}

	out.Credited = win
	s.Balance = s.Balance.Add(win)
	return s, out, events
}

func lossMessage(m Multiplier, lost decimal.Decimal) string {
	if m == MultiplierX5 {
		return fmt.Sprintf("Bad Luck Try harder! (%s Value Lost)", formatAmount(lost))
	}
	return fmt.Sprintf("Better Luck Next Time !! (%s Value Lost)", formatAmount(lost))
}

// BeginSpin moves an idle record into the spinning phase. Only one spin may
// be pending per session.
func (rec *Record) BeginSpin(r Rules, src RandomSource) (SpinResult, []Event, error) {
	if rec.Phase == PhaseSpinning {
		return SpinResult{}, nil, ErrSpinInProgress
	}
	next, reels, events, err := rec.State.BeginSpin(r, src)
	if err != nil {
		return SpinResult{}, nil, err
	}
	rec.State = next
	rec.Phase = PhaseSpinning
	pending := reels
	rec.Pending = &pending
	return reels, events, nil
}

func (rec *Record) ResolveSpin(r Rules) (SpinOutcome, []Event, error) {
	if rec.Phase != PhaseSpinning || rec.Pending == nil {
		return SpinOutcome{}, nil, ErrNoSpinPending
	}
	next, out, events := rec.State.Resolve(r, *rec.Pending)
	rec.State = next
	rec.Phase = PhaseIdle
	rec.Pending = nil
	return out, events, nil
}
