// Package poller drives a submitted order to a terminal status by polling
// the broker with backoff and persisting every observed transition.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/codingayam/trading-automation-sub001/internal/alpaca"
	"github.com/codingayam/trading-automation-sub001/internal/domain"
	"github.com/codingayam/trading-automation-sub001/internal/repository"
)

// OrderGetter is the broker surface the poller needs.
type OrderGetter interface {
	GetOrder(ctx context.Context, orderID string) (*alpaca.Order, error)
	GetOrderByClientID(ctx context.Context, clientOrderID string) (*alpaca.Order, error)
}

// TradeStore persists observed order transitions.
type TradeStore interface {
	Update(ctx context.Context, id int64, patch repository.TradeUpdate) (*domain.TradeAttempt, error)
}

// Options tune the polling loop.
type Options struct {
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Factor          float64
}

// DefaultOptions polls for up to a minute, starting at one second and
// backing off to at most five.
var DefaultOptions = Options{
	Timeout:         60 * time.Second,
	InitialInterval: time.Second,
	MaxInterval:     5 * time.Second,
	Factor:          1.6,
}

// Result is the outcome of a poll. TimedOut is set when the window expired
// with a non-terminal status observed.
type Result struct {
	Trade    *domain.TradeAttempt
	TimedOut bool
}

// Poller polls order status until terminal or timeout.
type Poller struct {
	broker OrderGetter
	trades TradeStore
	opts   Options
	log    zerolog.Logger
	now    func() time.Time
}

func New(broker OrderGetter, trades TradeStore, opts Options, log zerolog.Logger) *Poller {
	if opts.Timeout <= 0 {
		opts = DefaultOptions
	}
	return &Poller{
		broker: broker,
		trades: trades,
		opts:   opts,
		log:    log.With().Str("component", "poller").Logger(),
		now:    time.Now,
	}
}

// Poll fetches the order repeatedly, persisting each observed status, until
// the status is terminal or the timeout expires. The broker order id is
// preferred; the client order id is the fallback lookup. If no status was
// ever observed, Poll returns an error.
func (p *Poller) Poll(ctx context.Context, trade *domain.TradeAttempt) (*Result, error) {
	deadline := p.now().Add(p.opts.Timeout)
	interval := p.opts.InitialInterval

	current := trade
	observed := false

	for {
		order, err := p.fetch(ctx, trade)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.log.Warn().Err(err).
				Int64("trade_id", trade.ID).
				Msg("Order status fetch failed, will retry")
		} else {
			observed = true
			updated, uerr := p.trades.Update(ctx, trade.ID, UpdateFromOrder(order))
			if uerr != nil {
				return nil, fmt.Errorf("failed to persist order status: %w", uerr)
			}
			current = updated

			if current.Status.Terminal() {
				p.log.Info().
					Int64("trade_id", current.ID).
					Str("status", string(current.Status)).
					Msg("Order reached terminal status")
				return &Result{Trade: current}, nil
			}
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			break
		}

		wait := interval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		interval = time.Duration(float64(interval) * p.opts.Factor)
		if interval > p.opts.MaxInterval {
			interval = p.opts.MaxInterval
		}
	}

	if !observed {
		return nil, fmt.Errorf("no order status observed for trade %d before timeout", trade.ID)
	}

	p.log.Warn().
		Int64("trade_id", current.ID).
		Str("status", string(current.Status)).
		Msg("Poll window expired before terminal status")
	return &Result{Trade: current, TimedOut: true}, nil
}

func (p *Poller) fetch(ctx context.Context, trade *domain.TradeAttempt) (*alpaca.Order, error) {
	if trade.BrokerOrderID != nil && *trade.BrokerOrderID != "" {
		return p.broker.GetOrder(ctx, *trade.BrokerOrderID)
	}
	if trade.ClientOrderID != "" {
		return p.broker.GetOrderByClientID(ctx, trade.ClientOrderID)
	}
	return nil, fmt.Errorf("trade %d has no broker or client order id", trade.ID)
}

// UpdateFromOrder maps a broker order onto a trade patch: internal status,
// fill quantities, timestamps, and the raw order body.
func UpdateFromOrder(order *alpaca.Order) repository.TradeUpdate {
	status := domain.MapOrderStatus(order.Status)

	patch := repository.TradeUpdate{
		Status:       &status,
		RawOrderJSON: order.Raw,
		FilledAt:     order.FilledAt,
		CanceledAt:   order.CanceledAt,
		FailedAt:     order.FailedAt,
	}
	if order.ID != "" {
		id := order.ID
		patch.BrokerOrderID = &id
	}
	if d, ok := parseDecimal(order.FilledQty); ok {
		patch.FilledQty = d
	}
	if d, ok := parseDecimal(order.FilledAvgPrice); ok {
		patch.FilledAvgPrice = d
	}
	if status == domain.TradeStatusRejected && patch.FailedAt == nil {
		now := time.Now()
		patch.FailedAt = &now
	}
	return patch
}

func parseDecimal(s string) (*decimal.Decimal, bool) {
	if s == "" {
		return nil, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, false
	}
	return &d, true
}
