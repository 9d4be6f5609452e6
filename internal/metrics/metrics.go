package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"jackpotreels/internal/game"
)

// Metric names follow reels_<name>.

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reels_events_total",
		Help: "Session events by kind.",
	}, []string{"kind"})

	spinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reels_spins_total",
		Help: "Spins started by multiplier.",
	}, []string{"multiplier"})

	purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reels_purchases_total",
		Help: "Spin purchases by payment path (cash, credit, declined).",
	}, []string{"path"})

	creditIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reels_credit_issued_total",
		Help: "Currency lent to players.",
	})

	payoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reels_payout_total",
		Help: "Gross currency won before debt repayment.",
	})

	debtRepaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reels_debt_repaid_total",
		Help: "Currency withheld from wins to repay debt.",
	})

	jackpotPool = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reels_jackpot_pool",
		Help: "Jackpot pool of the most recently updated session.",
	})
)

// Recorder turns committed session updates into Prometheus series.
type Recorder struct{}

func NewRecorder() Recorder {
	return Recorder{}
}

func (Recorder) Notify(_ context.Context, u game.Update) {
	var betPlaced, credited, declined bool
	for _, e := range u.Events {
		eventsTotal.WithLabelValues(string(e.Kind)).Inc()
		amount := e.Amount.InexactFloat64()
		switch e.Kind {
		case game.EventSpinStarted:
			spinsTotal.WithLabelValues(strconv.Itoa(int(e.Multiplier))).Inc()
		case game.EventBetPlaced:
			betPlaced = true
		case game.EventCreditDeclined:
			declined = true
		case game.EventCreditTaken:
			credited = true
			creditIssued.Add(amount)
		case game.EventWinJackpot, game.EventWinMatch, game.EventWinConsolation:
			if amount > 0 {
				payoutTotal.Add(amount)
			}
		case game.EventDebtRepaid:
			debtRepaid.Add(amount)
		}
	}

	switch {
	case declined:
		purchasesTotal.WithLabelValues("declined").Inc()
	case betPlaced && credited:
		purchasesTotal.WithLabelValues("credit").Inc()
	case betPlaced:
		purchasesTotal.WithLabelValues("cash").Inc()
	}

	if u.View.SessionID != "" {
		jackpotPool.Set(u.View.State.JackpotPool.InexactFloat64())
	}
}
