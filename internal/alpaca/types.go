package alpaca

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest is the body of POST /v2/orders. Exactly one of Notional and
// Qty is set; both are decimal strings per the broker's API.
type OrderRequest struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	Notional      string `json:"notional,omitempty"`
	Qty           string `json:"qty,omitempty"`
	ClientOrderID string `json:"client_order_id"`
	ExtendedHours bool   `json:"extended_hours"`
}

// Order is the broker's order representation. All monetary and quantity
// fields are strings on the wire. Raw carries the verbatim response body for
// opaque persistence.
type Order struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Side           string     `json:"side"`
	Type           string     `json:"type"`
	TimeInForce    string     `json:"time_in_force"`
	Status         string     `json:"status"`
	Notional       string     `json:"notional"`
	Qty            string     `json:"qty"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice string     `json:"filled_avg_price"`
	CreatedAt      *time.Time `json:"created_at"`
	SubmittedAt    *time.Time `json:"submitted_at"`
	FilledAt       *time.Time `json:"filled_at"`
	CanceledAt     *time.Time `json:"canceled_at"`
	FailedAt       *time.Time `json:"failed_at"`

	Raw json.RawMessage `json:"-"`
}

// Clock is the exchange clock from GET /v2/clock.
type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// CalendarDay is one session from GET /v2/calendar, ordered ascending by
// date. Open/Close are "HH:MM"; SessionOpen/SessionClose, when present, are
// compact "HHMM" and cover the extended session.
type CalendarDay struct {
	Date         string `json:"date"`
	Open         string `json:"open"`
	Close        string `json:"close"`
	SessionOpen  string `json:"session_open"`
	SessionClose string `json:"session_close"`
}

// latestTradeResponse wraps GET /v2/stocks/{symbol}/trades/latest.
type latestTradeResponse struct {
	Symbol string `json:"symbol"`
	Trade  struct {
		Price     decimal.Decimal `json:"p"`
		Timestamp time.Time       `json:"t"`
	} `json:"trade"`
}

// Account is the trading account from GET /v2/account.
type Account struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Currency       string `json:"currency"`
	Cash           string `json:"cash"`
	BuyingPower    string `json:"buying_power"`
	PortfolioValue string `json:"portfolio_value"`
}

// Position is one open position from GET /v2/positions.
type Position struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	MarketValue   string `json:"market_value"`
	UnrealizedPL  string `json:"unrealized_pl"`
}
