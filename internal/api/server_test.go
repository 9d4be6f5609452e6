package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"jackpotreels/internal/game"
	"jackpotreels/internal/store"
	"jackpotreels/internal/stream"
)

func newTestServer(t *testing.T, src game.RandomSource) (*httptest.Server, *stream.Hub) {
	t.Helper()
	hub := stream.NewHub(16, nil)
	svc, err := game.NewService(store.NewMemory(), game.Options{
		Random:    src,
		Notifiers: []game.Notifier{hub},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	srv := httptest.NewServer(New(nil, svc, hub).Handler())
	t.Cleanup(srv.Close)
	return srv, hub
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func createSession(t *testing.T, base string) game.View {
	t.Helper()
	var view game.View
	if code := do(t, http.MethodPost, base+"/v1/sessions", nil, &view); code != http.StatusCreated {
		t.Fatalf("create session status = %d", code)
	}
	if view.SessionID == "" {
		t.Fatalf("missing session id")
	}
	return view
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, game.NewFixedSource())
	view := createSession(t, srv.URL)
	base := srv.URL + "/v1/sessions/" + view.SessionID

	if !view.State.Balance.Equal(decimal.NewFromInt(1000)) || view.SpinLabel != "BUY SPINS ABOVE" {
		t.Fatalf("unexpected initial view: %+v", view)
	}

	var purchase game.PurchaseResult
	if code := do(t, http.MethodPost, base+"/purchases", map[string]any{"amount": 500}, &purchase); code != http.StatusOK {
		t.Fatalf("purchase status = %d", code)
	}
	if purchase.View.State.SpinsRemaining != 16 || !purchase.View.State.Balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("unexpected purchase view: %+v", purchase.View.State)
	}

	var start game.SpinStart
	if code := do(t, http.MethodPost, base+"/spins", nil, &start); code != http.StatusOK {
		t.Fatalf("begin spin status = %d", code)
	}
	if start.View.Phase != game.PhaseSpinning || start.View.CanSpin {
		t.Fatalf("unexpected spin view: %+v", start.View)
	}

	var errBody map[string]string
	if code := do(t, http.MethodPost, base+"/spins", nil, &errBody); code != http.StatusConflict {
		t.Fatalf("re-entrant spin status = %d", code)
	}
	if code := do(t, http.MethodPost, base+"/multiplier", map[string]any{"multiplier": 3}, &errBody); code != http.StatusConflict {
		t.Fatalf("multiplier during spin status = %d", code)
	}

	var res game.SpinResolution
	if code := do(t, http.MethodPost, base+"/spins/resolve", nil, &res); code != http.StatusOK {
		t.Fatalf("resolve status = %d", code)
	}
	if res.Outcome.Match != game.MatchJackpot || !res.Outcome.Celebrate {
		t.Fatalf("unexpected outcome: %+v", res.Outcome)
	}
	// pool 100000 + 500 purchase + 50 entry fee, 90% paid out
	if !res.Outcome.GrossWin.Equal(decimal.NewFromInt(90_495)) {
		t.Fatalf("win = %s want 90495", res.Outcome.GrossWin)
	}

	if code := do(t, http.MethodPost, base+"/spins/resolve", nil, &errBody); code != http.StatusConflict {
		t.Fatalf("double resolve status = %d", code)
	}

	var got game.View
	if code := do(t, http.MethodGet, base, nil, &got); code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	if got.Phase != game.PhaseIdle || got.State.SpinsRemaining != 15 {
		t.Fatalf("unexpected final view: %+v", got)
	}
}

func TestPurchaseDeclineThenAccept(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	view := createSession(t, srv.URL)
	base := srv.URL + "/v1/sessions/" + view.SessionID

	var declined game.PurchaseResult
	if code := do(t, http.MethodPost, base+"/purchases", map[string]any{"amount": 1000, "spins": 35}, &declined); code != http.StatusOK {
		t.Fatalf("purchase status = %d", code)
	}
	if declined.Outcome.Declined || declined.Outcome.Offer != nil {
		t.Fatalf("affordable purchase offered credit: %+v", declined.Outcome)
	}

	if code := do(t, http.MethodPost, base+"/purchases", map[string]any{"amount": 100, "spins": 3}, &declined); code != http.StatusOK {
		t.Fatalf("purchase status = %d", code)
	}
	if !declined.Outcome.Declined || declined.Outcome.Offer == nil || !declined.Outcome.Offer.Shortfall.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected declined offer, got %+v", declined.Outcome)
	}
	if declined.View.State.SpinsRemaining != 35 {
		t.Fatalf("declined purchase changed state: %+v", declined.View.State)
	}

	var accepted game.PurchaseResult
	body := map[string]any{"amount": 100, "spins": 3, "accept_credit": true}
	if code := do(t, http.MethodPost, base+"/purchases", body, &accepted); code != http.StatusOK {
		t.Fatalf("purchase status = %d", code)
	}
	if !accepted.View.State.TotalDebt.Equal(decimal.NewFromInt(100)) || accepted.View.State.SpinsRemaining != 38 {
		t.Fatalf("credit purchase not applied: %+v", accepted.View.State)
	}
}

func TestBuyMaxAndCredit(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	view := createSession(t, srv.URL)
	base := srv.URL + "/v1/sessions/" + view.SessionID

	var res game.PurchaseResult
	if code := do(t, http.MethodPost, base+"/purchases/max", nil, &res); code != http.StatusOK {
		t.Fatalf("buy max status = %d", code)
	}
	if res.View.State.SpinsRemaining != 35 || !res.View.State.Balance.IsZero() {
		t.Fatalf("unexpected buy max state: %+v", res.View.State)
	}
	if !res.View.CreditAvailable {
		t.Fatalf("credit should be available at zero balance")
	}

	var credit game.CreditResult
	if code := do(t, http.MethodPost, base+"/credit", nil, &credit); code != http.StatusOK {
		t.Fatalf("credit status = %d", code)
	}
	if !credit.Outcome.Applied || !credit.View.State.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("credit not applied: %+v", credit)
	}

	if code := do(t, http.MethodPost, base+"/credit", nil, &credit); code != http.StatusOK {
		t.Fatalf("second credit status = %d", code)
	}
	if credit.Outcome.Applied {
		t.Fatalf("credit applied twice")
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	view := createSession(t, srv.URL)
	base := srv.URL + "/v1/sessions/" + view.SessionID

	tests := []struct {
		name   string
		method string
		url    string
		body   any
		want   int
	}{
		{"unknown session", http.MethodGet, srv.URL + "/v1/sessions/nope", nil, http.StatusNotFound},
		{"spin without spins", http.MethodPost, base + "/spins", nil, http.StatusConflict},
		{"resolve without spin", http.MethodPost, base + "/spins/resolve", nil, http.StatusConflict},
		{"bad multiplier", http.MethodPost, base + "/multiplier", map[string]any{"multiplier": 2}, http.StatusBadRequest},
		{"unknown tier", http.MethodPost, base + "/purchases", map[string]any{"amount": 250}, http.StatusBadRequest},
		{"negative spins", http.MethodPost, base + "/purchases", map[string]any{"amount": 100, "spins": -1}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, base + "/multiplier", map[string]any{"mult": 3}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		var body map[string]string
		code := do(t, tc.method, tc.url, tc.body, &body)
		if code != tc.want {
			t.Fatalf("%s: status = %d want %d", tc.name, code, tc.want)
		}
		if body["error"] == "" {
			t.Fatalf("%s: missing error body", tc.name)
		}
	}
}

func TestTiersAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var health map[string]bool
	if code := do(t, http.MethodGet, srv.URL+"/healthz", nil, &health); code != http.StatusOK || !health["ok"] {
		t.Fatalf("healthz: %d %v", code, health)
	}

	var tiers struct {
		Tiers []game.Tier `json:"tiers"`
	}
	if code := do(t, http.MethodGet, srv.URL+"/v1/tiers", nil, &tiers); code != http.StatusOK {
		t.Fatalf("tiers status = %d", code)
	}
	if len(tiers.Tiers) != 3 || tiers.Tiers[2].Spins != 35 {
		t.Fatalf("unexpected tiers: %+v", tiers.Tiers)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	srv, hub := newTestServer(t, game.NewFixedSource())
	view := createSession(t, srv.URL)
	base := srv.URL + "/v1/sessions/" + view.SessionID

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first game.Update
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first.SessionID != view.SessionID {
		t.Fatalf("initial update for %q", first.SessionID)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(view.SessionID) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if code := do(t, http.MethodPost, base+"/multiplier", map[string]any{"multiplier": 5}, nil); code != http.StatusOK {
		t.Fatalf("multiplier status = %d", code)
	}
	var next game.Update
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if len(next.Events) != 1 || next.Events[0].Kind != game.EventMultiplierSet || next.View.State.Multiplier != game.MultiplierX5 {
		t.Fatalf("unexpected update: %+v", next)
	}

	resp, err := http.Get(srv.URL + "/v1/sessions/nope/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("events for unknown session status = %d", resp.StatusCode)
	}
}
