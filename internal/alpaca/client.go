// Package alpaca provides the brokerage API client: order submission and
// lookup, exchange clock and calendar, account state, and latest trade
// prices from the market-data host.
package alpaca

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

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/codingayam/trading-automation-sub001/internal/httpretry"
)

const (
	// DefaultBaseURL is the paper-trading host.
	DefaultBaseURL = "https://paper-api.alpaca.markets"
	// LiveBaseURL is the live-trading host, selected only when paper trading
	// is explicitly disabled.
	LiveBaseURL = "https://api.alpaca.markets"
	// DefaultDataBaseURL is the market-data host, separate from trading.
	DefaultDataBaseURL = "https://data.alpaca.markets"

	requestTimeout = 15 * time.Second
)

// Client is the brokerage API client. It holds no per-run state and is safe
// for reuse across job runs.
type Client struct {
	baseURL     string
	dataBaseURL string
	keyID       string
	secretKey   string
	http        *http.Client
	policy      httpretry.Policy
	log         zerolog.Logger
}

// New creates a broker client. Empty hosts select the paper-trading and
// market-data defaults.
func New(baseURL, dataBaseURL, keyID, secretKey string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if dataBaseURL == "" {
		dataBaseURL = DefaultDataBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		dataBaseURL: dataBaseURL,
		keyID:       keyID,
		secretKey:   secretKey,
		http:        &http.Client{Timeout: requestTimeout},
		policy:      httpretry.DefaultPolicy,
		log:         log.With().Str("client", "alpaca").Logger(),
	}
}

// SubmitOrder submits a new order. Rejections map to typed failures: 422 to
// KindValidation (with data[].message violations), buying-power 400/403 to
// KindInsufficientFunds, everything else to KindTransport.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order request: %w", err)
	}

	reqURL := c.baseURL + "/v2/orders"
	resp, err := httpretry.Do(ctx, c.http, c.policy, c.log, func() (*http.Request, error) {
		r, err := http.NewRequest(http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.setHeaders(r)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit order for %s: %w", req.Symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read order response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.mapOrderError(resp.StatusCode, reqURL, body)
	}

	return decodeOrder(body)
}

// GetOrder fetches an order by its broker id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order *Order
	err := c.getJSON(ctx, c.baseURL+"/v2/orders/"+url.PathEscape(orderID), func(body []byte) error {
		var decodeErr error
		order, decodeErr = decodeOrder(body)
		return decodeErr
	})
	return order, err
}

// GetOrderByClientID fetches an order by the client-supplied order id.
func (c *Client) GetOrderByClientID(ctx context.Context, clientOrderID string) (*Order, error) {
	reqURL := c.baseURL + "/v2/orders:by_client_order_id?client_order_id=" + url.QueryEscape(clientOrderID)
	var order *Order
	err := c.getJSON(ctx, reqURL, func(body []byte) error {
		var decodeErr error
		order, decodeErr = decodeOrder(body)
		return decodeErr
	})
	return order, err
}

// LatestTradePrice fetches the latest trade price for a symbol from the
// market-data host.
func (c *Client) LatestTradePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	reqURL := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", c.dataBaseURL, url.PathEscape(symbol))
	var parsed latestTradeResponse
	err := c.getJSON(ctx, reqURL, func(body []byte) error {
		return json.Unmarshal(body, &parsed)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return parsed.Trade.Price, nil
}

// GetClock fetches the exchange clock.
func (c *Client) GetClock(ctx context.Context) (*Clock, error) {
	var clock Clock
	err := c.getJSON(ctx, c.baseURL+"/v2/clock", func(body []byte) error {
		return json.Unmarshal(body, &clock)
	})
	if err != nil {
		return nil, err
	}
	return &clock, nil
}

// GetCalendar fetches exchange sessions, ascending by date. Start and end
// are YYYY-MM-DD; either may be empty.
func (c *Client) GetCalendar(ctx context.Context, start, end string) ([]CalendarDay, error) {
	q := url.Values{}
	if start != "" {
		q.Set("start", start)
	}
	if end != "" {
		q.Set("end", end)
	}
	reqURL := c.baseURL + "/v2/calendar"
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	var days []CalendarDay
	err := c.getJSON(ctx, reqURL, func(body []byte) error {
		return json.Unmarshal(body, &days)
	})
	if err != nil {
		return nil, err
	}
	return days, nil
}

// GetAccount fetches the trading account.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	var account Account
	err := c.getJSON(ctx, c.baseURL+"/v2/account", func(body []byte) error {
		return json.Unmarshal(body, &account)
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetPositions fetches all open positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	err := c.getJSON(ctx, c.baseURL+"/v2/positions", func(body []byte) error {
		return json.Unmarshal(body, &positions)
	})
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (c *Client) setHeaders(r *http.Request) {
	r.Header.Set("APCA-API-KEY-ID", c.keyID)
	r.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	r.Header.Set("Accept", "application/json")
	r.Header.Set("Content-Type", "application/json")
}

func (c *Client) getJSON(ctx context.Context, reqURL string, decode func([]byte) error) error {
	resp, err := httpretry.Do(ctx, c.http, c.policy, c.log, func() (*http.Request, error) {
		r, err := http.NewRequest(http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(r)
		return r, nil
	})
	if err != nil {
		return fmt.Errorf("broker request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpretry.NewStatusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read broker response: %w", err)
	}
	if err := decode(body); err != nil {
		return fmt.Errorf("failed to decode broker response from %s: %w", reqURL, err)
	}
	return nil
}

// brokerErrorBody is the error payload shape of the trading API.
type brokerErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    []struct {
		Message string `json:"message"`
	} `json:"data"`
}

func (c *Client) mapOrderError(statusCode int, reqURL string, body []byte) error {
	var parsed brokerErrorBody
	_ = json.Unmarshal(body, &parsed)
	message := parsed.Message
	if message == "" {
		message = string(body)
	}

	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    message,
		URL:        reqURL,
	}
	for _, d := range parsed.Data {
		if d.Message != "" {
			apiErr.Violations = append(apiErr.Violations, d.Message)
		}
	}

	switch {
	case statusCode == http.StatusUnprocessableEntity:
		apiErr.Kind = KindValidation
	case (statusCode == http.StatusBadRequest || statusCode == http.StatusForbidden) &&
		strings.Contains(strings.ToLower(message), "buying power"):
		apiErr.Kind = KindInsufficientFunds
	default:
		apiErr.Kind = KindTransport
	}

	c.log.Warn().
		Int("status", statusCode).
		Str("kind", string(apiErr.Kind)).
		Str("message", message).
		Msg("Order submission rejected")
	return apiErr
}

func decodeOrder(body []byte) (*Order, error) {
	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	order.Raw = json.RawMessage(append([]byte(nil), body...))
	return &order, nil
}
