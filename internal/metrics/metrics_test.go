package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"jackpotreels/internal/game"
)

func TestRecorderCountsPurchasesAndPayouts(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	cashBefore := testutil.ToFloat64(purchasesTotal.WithLabelValues("cash"))
	creditBefore := testutil.ToFloat64(purchasesTotal.WithLabelValues("credit"))
	declinedBefore := testutil.ToFloat64(purchasesTotal.WithLabelValues("declined"))
	issuedBefore := testutil.ToFloat64(creditIssued)
	payoutBefore := testutil.ToFloat64(payoutTotal)
	spinsBefore := testutil.ToFloat64(spinsTotal.WithLabelValues("3"))

	r.Notify(ctx, game.Update{SessionID: "s1", Events: []game.Event{
		{Kind: game.EventBetPlaced, Amount: decimal.NewFromInt(100)},
	}})
	r.Notify(ctx, game.Update{SessionID: "s1", Events: []game.Event{
		{Kind: game.EventCreditTaken, Amount: decimal.NewFromInt(100)},
		{Kind: game.EventBetPlaced, Amount: decimal.NewFromInt(1000)},
	}})
	r.Notify(ctx, game.Update{SessionID: "s1", Events: []game.Event{
		{Kind: game.EventCreditDeclined, Amount: decimal.NewFromInt(100)},
	}})
	r.Notify(ctx, game.Update{SessionID: "s1", Events: []game.Event{
		{Kind: game.EventSpinStarted, Multiplier: game.MultiplierX3, Amount: decimal.NewFromInt(150)},
	}})
	r.Notify(ctx, game.Update{
		SessionID: "s1",
		View:      game.View{SessionID: "s1", State: game.State{JackpotPool: decimal.NewFromInt(10_000)}},
		Events: []game.Event{
			{Kind: game.EventWinJackpot, Amount: decimal.NewFromInt(90_000)},
		},
	})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"cash", testutil.ToFloat64(purchasesTotal.WithLabelValues("cash")) - cashBefore, 1},
		{"credit", testutil.ToFloat64(purchasesTotal.WithLabelValues("credit")) - creditBefore, 1},
		{"declined", testutil.ToFloat64(purchasesTotal.WithLabelValues("declined")) - declinedBefore, 1},
		{"issued", testutil.ToFloat64(creditIssued) - issuedBefore, 100},
		{"payout", testutil.ToFloat64(payoutTotal) - payoutBefore, 90_000},
		{"spins x3", testutil.ToFloat64(spinsTotal.WithLabelValues("3")) - spinsBefore, 1},
		{"jackpot gauge", testutil.ToFloat64(jackpotPool), 10_000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
}
