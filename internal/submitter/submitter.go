// Package submitter turns a disclosed filing into at most one broker order:
// guardrail checks and attempt creation run in one transaction, then the
// order is submitted with a whole-share fallback for assets that reject
// notional orders.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/codingayam/trading-automation-sub001/internal/alpaca"
	"github.com/codingayam/trading-automation-sub001/internal/database"
	"github.com/codingayam/trading-automation-sub001/internal/domain"
	"github.com/codingayam/trading-automation-sub001/internal/guardrails"
	"github.com/codingayam/trading-automation-sub001/internal/poller"
	"github.com/codingayam/trading-automation-sub001/internal/repository"
)

// notionalRejected matches broker validation messages that mean the asset
// does not support notional or fractional orders.
var notionalRejected = regexp.MustCompile(`(?i)notional|fraction`)

// Broker is the order-submission surface of the broker client.
type Broker interface {
	SubmitOrder(ctx context.Context, req alpaca.OrderRequest) (*alpaca.Order, error)
	LatestTradePrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// TradeStore is the trade persistence surface the submitter needs. The same
// interface is satisfied by a pool-bound and a transaction-bound repository.
type TradeStore interface {
	CreateAttempt(ctx context.Context, params repository.CreateTradeParams) (*domain.TradeAttempt, error)
	Update(ctx context.Context, id int64, patch repository.TradeUpdate) (*domain.TradeAttempt, error)
	FindBySourceHash(ctx context.Context, sourceHash string) (*domain.TradeAttempt, error)
	CountInWindow(ctx context.Context, start, end time.Time, symbol string) (int, error)
}

// TxRunner executes fn against a transaction-bound TradeStore.
type TxRunner interface {
	InTx(ctx context.Context, fn func(store TradeStore) error) error
}

// PgTxRunner binds the pgx transaction helper to the trade repository.
type PgTxRunner struct {
	DB     *database.DB
	Trades *repository.TradeRepository
}

func (r *PgTxRunner) InTx(ctx context.Context, fn func(store TradeStore) error) error {
	return r.DB.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(r.Trades.WithTx(tx))
	})
}

// StatusPoller drives a submitted order to a terminal status.
type StatusPoller interface {
	Poll(ctx context.Context, trade *domain.TradeAttempt) (*poller.Result, error)
}

// Window is the trading window the guardrail counters run over.
type Window struct {
	Start time.Time
	End   time.Time
}

// Params describe one submission candidate.
type Params struct {
	Filing domain.Filing
	FeedID *int64
	Window Window
	DryRun bool
}

// Result reports what happened to one candidate.
type Result struct {
	Trade            *domain.TradeAttempt
	Submitted        bool
	Duplicate        bool
	DryRunSkipped    bool
	GuardrailBlocked bool
	FallbackUsed     bool
	TimedOut         bool
}

// Submitter submits notional buy orders for filings.
type Submitter struct {
	broker   Broker
	trades   TradeStore
	tx       TxRunner
	poller   StatusPoller
	guards   *guardrails.Evaluator
	notional decimal.Decimal
	log      zerolog.Logger
}

func New(broker Broker, trades TradeStore, tx TxRunner, statusPoller StatusPoller, guards *guardrails.Evaluator, notional decimal.Decimal, log zerolog.Logger) *Submitter {
	return &Submitter{
		broker:   broker,
		trades:   trades,
		tx:       tx,
		poller:   statusPoller,
		guards:   guards,
		notional: notional,
		log:      log.With().Str("component", "submitter").Logger(),
	}
}

// SubmitForFiling runs the whole pipeline for one filing: idempotency check,
// guardrails plus attempt creation in a transaction, order submission with
// fallback, then status polling.
func (s *Submitter) SubmitForFiling(ctx context.Context, params Params) (*Result, error) {
	filing := params.Filing
	sourceHash := filing.SourceHash()
	clientOrderID := domain.ClientOrderIDFromHash(sourceHash)

	log := s.log.With().
		Str("symbol", filing.Ticker).
		Str("source_hash", sourceHash).
		Logger()

	existing, err := s.trades.FindBySourceHash(ctx, sourceHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Debug().Int64("trade_id", existing.ID).Msg("Filing already has a trade attempt, skipping")
		return &Result{Trade: existing, Duplicate: true}, nil
	}

	if params.DryRun {
		log.Info().Str("notional", s.notional.StringFixed(2)).Msg("Dry run, order not submitted")
		return &Result{DryRunSkipped: true}, nil
	}

	var (
		trade  *domain.TradeAttempt
		denied *guardrails.Decision
	)
	err = s.tx.InTx(ctx, func(store TradeStore) error {
		dailyCount, err := store.CountInWindow(ctx, params.Window.Start, params.Window.End, "")
		if err != nil {
			return err
		}
		tickerCount, err := store.CountInWindow(ctx, params.Window.Start, params.Window.End, filing.Ticker)
		if err != nil {
			return err
		}

		decision := s.guards.Evaluate(guardrails.Input{
			Symbol:      filing.Ticker,
			DailyCount:  dailyCount,
			TickerCount: tickerCount,
		})

		notional := s.notional
		create := repository.CreateTradeParams{
			SourceHash:    sourceHash,
			ClientOrderID: clientOrderID,
			Symbol:        filing.Ticker,
			FeedID:        params.FeedID,
		}

		if !decision.Allowed {
			denied = &decision
			now := time.Now()
			create.Status = domain.TradeStatusFailed
			reason := fmt.Sprintf("GUARDRAIL:%s: %s", decision.Guard, decision.Message)
			create.FailureReason = &reason
			create.FailedAt = &now
		} else {
			create.Status = domain.TradeStatusNew
			create.Notional = &notional
		}

		trade, err = store.CreateAttempt(ctx, create)
		return err
	})
	if repository.IsDuplicate(err) {
		existing, findErr := s.trades.FindBySourceHash(ctx, sourceHash)
		if findErr != nil {
			return nil, findErr
		}
		log.Debug().Msg("Concurrent attempt already created, skipping")
		return &Result{Trade: existing, Duplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trade attempt: %w", err)
	}

	if denied != nil {
		return &Result{Trade: trade, GuardrailBlocked: true}, nil
	}

	return s.submitAndPoll(ctx, log, trade, clientOrderID)
}

func (s *Submitter) submitAndPoll(ctx context.Context, log zerolog.Logger, trade *domain.TradeAttempt, clientOrderID string) (*Result, error) {
	result := &Result{Trade: trade}

	order, err := s.broker.SubmitOrder(ctx, alpaca.OrderRequest{
		Symbol:        trade.Symbol,
		Side:          "buy",
		Type:          "market",
		TimeInForce:   "day",
		Notional:      s.notional.StringFixed(2),
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		if isNotionalRejected(err) {
			return s.fallbackWholeShares(ctx, log, trade, clientOrderID)
		}
		failed, ferr := s.failTrade(ctx, trade, err.Error())
		if ferr != nil {
			return nil, ferr
		}
		result.Trade = failed
		if alpaca.IsInsufficientFunds(err) {
			log.Error().Err(err).Msg("Order rejected for insufficient buying power")
			return result, err
		}
		log.Error().Err(err).Msg("Order submission failed")
		return result, err
	}

	return s.recordAndPoll(ctx, log, trade, order, result)
}

// fallbackWholeShares retries a notional-rejected order as a whole-share
// market order sized from the latest trade price.
func (s *Submitter) fallbackWholeShares(ctx context.Context, log zerolog.Logger, trade *domain.TradeAttempt, clientOrderID string) (*Result, error) {
	result := &Result{Trade: trade, FallbackUsed: true}
	log.Info().Msg("Notional order rejected, falling back to whole shares")

	price, err := s.broker.LatestTradePrice(ctx, trade.Symbol)
	if err != nil {
		reason := fmt.Sprintf("FALLBACK_PRICE_UNAVAILABLE: %v", err)
		failed, ferr := s.failTrade(ctx, trade, reason)
		if ferr != nil {
			return nil, ferr
		}
		result.Trade = failed
		return result, err
	}

	if !price.IsPositive() {
		reason := fmt.Sprintf("FALLBACK_PRICE_UNAVAILABLE: non-positive price %s", price)
		failed, ferr := s.failTrade(ctx, trade, reason)
		if ferr != nil {
			return nil, ferr
		}
		result.Trade = failed
		return result, fmt.Errorf("latest trade price for %s is not positive: %s", trade.Symbol, price)
	}

	qty := s.notional.Div(price).Floor()
	if !qty.IsPositive() {
		return s.failFallback(ctx, result, trade,
			fmt.Sprintf("FALLBACK_QTY_ZERO: notional %s below price %s", s.notional.StringFixed(2), price))
	}

	updated, err := s.trades.Update(ctx, trade.ID, repository.TradeUpdate{
		NotionalSubmitted: &decimal.NullDecimal{},
		QtySubmitted:      &decimal.NullDecimal{Decimal: qty, Valid: true},
	})
	if err != nil {
		return nil, err
	}
	trade = updated
	result.Trade = updated

	order, err := s.broker.SubmitOrder(ctx, alpaca.OrderRequest{
		Symbol:        trade.Symbol,
		Side:          "buy",
		Type:          "market",
		TimeInForce:   "day",
		Qty:           qty.String(),
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		failed, ferr := s.failTrade(ctx, trade, err.Error())
		if ferr != nil {
			return nil, ferr
		}
		result.Trade = failed
		log.Error().Err(err).Msg("Whole-share fallback submission failed")
		return result, err
	}

	log.Info().Str("qty", qty.String()).Msg("Whole-share fallback order submitted")
	return s.recordAndPoll(ctx, log, trade, order, result)
}

func (s *Submitter) recordAndPoll(ctx context.Context, log zerolog.Logger, trade *domain.TradeAttempt, order *alpaca.Order, result *Result) (*Result, error) {
	patch := poller.UpdateFromOrder(order)
	now := time.Now()
	if patch.SubmittedAt == nil {
		if order.SubmittedAt != nil {
			patch.SubmittedAt = order.SubmittedAt
		} else {
			patch.SubmittedAt = &now
		}
	}

	updated, err := s.trades.Update(ctx, trade.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to record submitted order: %w", err)
	}
	result.Trade = updated
	result.Submitted = true

	log.Info().
		Int64("trade_id", updated.ID).
		Str("order_id", order.ID).
		Str("status", string(updated.Status)).
		Msg("Order submitted")

	pollRes, err := s.poller.Poll(ctx, updated)
	if err != nil {
		log.Warn().Err(err).Msg("Order polling failed")
		return result, nil
	}
	result.Trade = pollRes.Trade
	result.TimedOut = pollRes.TimedOut
	return result, nil
}

// failFallback marks the trade FAILED when the whole-share quantity rounds
// to zero. The denial is final but not an error: the run continues with the
// next filing.
func (s *Submitter) failFallback(ctx context.Context, result *Result, trade *domain.TradeAttempt, reason string) (*Result, error) {
	failed, err := s.failTrade(ctx, trade, reason)
	if err != nil {
		return nil, err
	}
	result.Trade = failed
	result.GuardrailBlocked = true
	return result, nil
}

func (s *Submitter) failTrade(ctx context.Context, trade *domain.TradeAttempt, reason string) (*domain.TradeAttempt, error) {
	status := domain.TradeStatusFailed
	now := time.Now()
	if len(reason) > 500 {
		reason = reason[:500]
	}
	failed, err := s.trades.Update(ctx, trade.ID, repository.TradeUpdate{
		Status:        &status,
		FailureReason: &reason,
		FailedAt:      &now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark trade failed: %w", err)
	}
	return failed, nil
}

// isNotionalRejected reports whether err is a validation rejection caused by
// notional or fractional orders being unsupported for the asset.
func isNotionalRejected(err error) bool {
	if !alpaca.IsValidation(err) {
		return false
	}
	var apiErr *alpaca.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	text := apiErr.Message + " " + strings.Join(apiErr.Violations, " ")
	return notionalRejected.MatchString(text)
}
