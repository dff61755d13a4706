// Package unbelievaboat reads and edits guild balances through the
// UnbelievaBoat economy API.
package unbelievaboat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockdesk/internal/ledger"
)

const baseURL = "https://unbelievaboat.com/api/v1"

// ErrInvalidShape is returned when the balance payload carries a bank value
// that is not a finite number.
var ErrInvalidShape = errors.New("invalid balance shape from provider")

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a ledger.Ledger backed by UnbelievaBoat.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPClient
	now        func() time.Time
}

// ClientOption is a configuration option for the UnbelievaBoat client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock overrides the clock used to stamp balances.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a client authenticating with token.
func NewClient(token string, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("unbelievaboat: missing api token")
	}
	var client = &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, option := range options {
		option(client)
	}
	if _, err := url.Parse(client.baseURL); err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	return client, nil
}

var _ ledger.Ledger = (*Client)(nil)

// balanceResponse is the user balance object. Values arrive as numbers, as
// numeric strings or as "Infinity".
type balanceResponse struct {
	UserID string          `json:"user_id"`
	Cash   json.RawMessage `json:"cash"`
	Bank   json.RawMessage `json:"bank"`
	Total  json.RawMessage `json:"total"`
}

type patchRequest struct {
	Cash   int64  `json:"cash"`
	Bank   int64  `json:"bank"`
	Reason string `json:"reason,omitempty"`
}

// Balance fetches the user's balance.
func (c *Client) Balance(ctx context.Context, scope ledger.Scope) (ledger.Balance, error) {
	if err := scope.Validate(); err != nil {
		return ledger.Balance{}, fmt.Errorf("%w: %w", ledger.ErrRejected, err)
	}
	var out balanceResponse
	if err := c.do(ctx, http.MethodGet, scope, nil, &out); err != nil {
		return ledger.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return c.balance(out)
}

// Debit removes amount from the bank balance with a single PATCH.
func (c *Client) Debit(ctx context.Context, scope ledger.Scope, amount int64, reason string) (ledger.Balance, error) {
	if err := scope.Validate(); err != nil {
		return ledger.Balance{}, fmt.Errorf("%w: %w", ledger.ErrRejected, err)
	}
	if amount <= 0 || amount > ledger.MaxAmount {
		return ledger.Balance{}, fmt.Errorf("%w: amount %d out of range", ledger.ErrRejected, amount)
	}
	var out balanceResponse
	body := patchRequest{Cash: 0, Bank: -amount, Reason: reason}
	if err := c.do(ctx, http.MethodPatch, scope, body, &out); err != nil {
		return ledger.Balance{}, fmt.Errorf("edit balance: %w", err)
	}
	b, err := c.balance(out)
	if err != nil {
		// the debit landed; only the echo is unreadable
		return ledger.Balance{ObservedAt: c.now()}, nil
	}
	return b, nil
}

func (c *Client) do(ctx context.Context, method string, scope ledger.Scope, body, out any) error {
	u := fmt.Sprintf("%s/guilds/%s/users/%s", c.baseURL, url.PathEscape(scope.GuildID), url.PathEscape(scope.UserID))

	var rd io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encoding body: %w", ledger.ErrRejected, err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ledger.ErrRejected, err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
	case res.StatusCode >= 400 && res.StatusCode < 500:
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("%w: status %d", ledger.ErrRejected, res.StatusCode)
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) balance(r balanceResponse) (ledger.Balance, error) {
	bank, err := amount(r.Bank)
	if err != nil {
		return ledger.Balance{}, err
	}
	out := ledger.Balance{Bank: bank, ObservedAt: c.now()}
	// cash and total are informational; unreadable cash leaves total at bank
	cash, err := amount(r.Cash)
	if err != nil {
		out.Total = bank
		out.Degraded = true
		return out, nil
	}
	total, err := amount(r.Total)
	if err != nil || len(r.Total) == 0 {
		total = bank + cash
	}
	out.Cash = cash
	out.Total = total
	return out, nil
}

// amount parses a balance value. A missing or null value is zero.
func amount(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidShape, s)
	}
	if math.Abs(v) > float64(ledger.MaxAmount) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidShape, s)
	}
	return int64(math.Floor(v)), nil
}
