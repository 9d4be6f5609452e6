package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"jackpotreels/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx response from the reels API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func sessionPath(id string, suffix string) string {
	return "/v1/sessions/" + url.PathEscape(id) + suffix
}

func (c *Client) CreateSession(ctx context.Context) (game.View, error) {
	var out game.View
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions", nil, &out)
	return out, err
}

func (c *Client) Session(ctx context.Context, id string) (game.View, error) {
	var out game.View
	err := c.jsonRequest(ctx, http.MethodGet, sessionPath(id, ""), nil, &out)
	return out, err
}

func (c *Client) Tiers(ctx context.Context) ([]game.Tier, error) {
	var out struct {
		Tiers []game.Tier `json:"tiers"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/tiers", nil, &out)
	return out.Tiers, err
}

func (c *Client) SetMultiplier(ctx context.Context, id string, m int) (game.MultiplierResult, error) {
	var out game.MultiplierResult
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(id, "/multiplier"), map[string]any{
		"multiplier": m,
	}, &out)
	return out, err
}

// Purchase buys spins. spins == 0 asks the server to look the amount up in
// its pricing tiers.
func (c *Client) Purchase(ctx context.Context, id string, amount decimal.Decimal, spins int, acceptCredit bool) (game.PurchaseResult, error) {
	body := map[string]any{
		"amount":        amount,
		"accept_credit": acceptCredit,
	}
	if spins > 0 {
		body["spins"] = spins
	}
	var out game.PurchaseResult
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(id, "/purchases"), body, &out)
	return out, err
}

func (c *Client) BuyMax(ctx context.Context, id string, acceptCredit bool) (game.PurchaseResult, error) {
	var out game.PurchaseResult
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(id, "/purchases/max"), map[string]any{
		"accept_credit": acceptCredit,
	}, &out)
	return out, err
}

func (c *Client) TakeCredit(ctx context.Context, id string) (game.CreditResult, error) {
	var out game.CreditResult
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(id, "/credit"), nil, &out)
	return out, err
}

func (c *Client) BeginSpin(ctx context.Context, id string) (game.SpinStart, error) {
	var out game.SpinStart
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(id, "/spins"), nil, &out)
	return out, err
}

func (c *Client) ResolveSpin(ctx context.Context, id string) (game.SpinResolution, error) {
	var out game.SpinResolution
	err := c.jsonRequest(ctx, http.MethodPost, sessionPath(id, "/spins/resolve"), nil, &out)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
