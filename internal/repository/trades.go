package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/codingayam/trading-automation-sub001/internal/database"
	"github.com/codingayam/trading-automation-sub001/internal/domain"
)

const tradeColumns = `
	id, source_hash, client_order_id, alpaca_order_id, symbol, side,
	order_type, time_in_force, notional_submitted, qty_submitted,
	filled_qty, filled_avg_price, status, failure_reason,
	congress_trade_feed_id, raw_order_json, created_at, submitted_at,
	updated_at, filled_at, canceled_at, failed_at`

// terminalStatuses guards the status column against regressions. Once a
// trade reaches a terminal status, later updates keep it there.
const terminalStatuses = `('FILLED', 'CANCELED', 'REJECTED', 'FAILED')`

// TradeRepository persists trade attempts.
type TradeRepository struct {
	q   database.Querier
	log zerolog.Logger
}

func NewTradeRepository(q database.Querier, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		q:   q,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *TradeRepository) WithTx(tx pgx.Tx) *TradeRepository {
	return &TradeRepository{q: tx, log: r.log}
}

// CreateTradeParams is the insert payload for a new trade attempt.
type CreateTradeParams struct {
	SourceHash    string
	ClientOrderID string
	Symbol        string
	Status        domain.TradeStatus
	Notional      *decimal.Decimal
	Qty           *decimal.Decimal
	FailureReason *string
	FeedID        *int64
	FailedAt      *time.Time
}

// TradeUpdate is a partial update. Nil fields are left untouched;
// NotionalSubmitted and QtySubmitted use NullDecimal so a fallback can
// explicitly null the notional while setting a whole-share quantity.
type TradeUpdate struct {
	BrokerOrderID     *string
	Status            *domain.TradeStatus
	NotionalSubmitted *decimal.NullDecimal
	QtySubmitted      *decimal.NullDecimal
	FilledQty         *decimal.Decimal
	FilledAvgPrice    *decimal.Decimal
	FailureReason     *string
	RawOrderJSON      json.RawMessage
	SubmittedAt       *time.Time
	FilledAt          *time.Time
	CanceledAt        *time.Time
	FailedAt          *time.Time
}

// CreateAttempt inserts a new trade attempt. A source_hash collision is
// returned as *DuplicateError so the caller can load the existing row.
func (r *TradeRepository) CreateAttempt(ctx context.Context, params CreateTradeParams) (*domain.TradeAttempt, error) {
	status := params.Status
	if status == "" {
		status = domain.TradeStatusNew
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO trade (
			source_hash, client_order_id, symbol, status,
			notional_submitted, qty_submitted, failure_reason,
			congress_trade_feed_id, failed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING`+tradeColumns,
		params.SourceHash,
		params.ClientOrderID,
		params.Symbol,
		string(status),
		decimalParam(params.Notional),
		decimalParam(params.Qty),
		params.FailureReason,
		params.FeedID,
		params.FailedAt,
	)

	trade, err := scanTrade(row)
	if err != nil {
		return nil, wrapDup(err, "failed to insert trade")
	}
	return trade, nil
}

// Update applies a partial update and returns the updated row. Status
// transitions out of a terminal status are silently kept terminal.
func (r *TradeRepository) Update(ctx context.Context, id int64, patch TradeUpdate) (*domain.TradeAttempt, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.BrokerOrderID != nil {
		add("alpaca_order_id = $%d", *patch.BrokerOrderID)
	}
	if patch.Status != nil {
		add("status = CASE WHEN status IN "+terminalStatuses+" THEN status ELSE $%d END", string(*patch.Status))
	}
	if patch.NotionalSubmitted != nil {
		add("notional_submitted = $%d", nullDecimalParam(*patch.NotionalSubmitted))
	}
	if patch.QtySubmitted != nil {
		add("qty_submitted = $%d", nullDecimalParam(*patch.QtySubmitted))
	}
	if patch.FilledQty != nil {
		add("filled_qty = $%d", patch.FilledQty.String())
	}
	if patch.FilledAvgPrice != nil {
		add("filled_avg_price = $%d", patch.FilledAvgPrice.String())
	}
	if patch.FailureReason != nil {
		add("failure_reason = $%d", *patch.FailureReason)
	}
	if patch.RawOrderJSON != nil {
		add("raw_order_json = $%d", []byte(patch.RawOrderJSON))
	}
	if patch.SubmittedAt != nil {
		add("submitted_at = $%d", *patch.SubmittedAt)
	}
	if patch.FilledAt != nil {
		add("filled_at = $%d", *patch.FilledAt)
	}
	if patch.CanceledAt != nil {
		add("canceled_at = $%d", *patch.CanceledAt)
	}
	if patch.FailedAt != nil {
		add("failed_at = $%d", *patch.FailedAt)
	}

	query := `UPDATE trade SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING` + tradeColumns
	trade, err := scanTrade(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, wrapDup(err, "failed to update trade")
	}
	return trade, nil
}

// UpsertBySourceHash inserts a new attempt, or applies the patch to the
// existing row when the source hash is already present. The returned bool
// reports whether a row was inserted.
func (r *TradeRepository) UpsertBySourceHash(ctx context.Context, create CreateTradeParams, patch TradeUpdate) (*domain.TradeAttempt, bool, error) {
	trade, err := r.CreateAttempt(ctx, create)
	if err == nil {
		return trade, true, nil
	}
	if !IsDuplicate(err) {
		return nil, false, err
	}

	existing, err := r.FindBySourceHash(ctx, create.SourceHash)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("trade for source hash %s vanished during upsert", create.SourceHash)
	}

	updated, err := r.Update(ctx, existing.ID, patch)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

// FindBySourceHash returns the trade with the given source hash, or nil
// when none exists.
func (r *TradeRepository) FindBySourceHash(ctx context.Context, sourceHash string) (*domain.TradeAttempt, error) {
	trade, err := scanTrade(r.q.QueryRow(ctx,
		`SELECT`+tradeColumns+` FROM trade WHERE source_hash = $1`, sourceHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find trade by source hash: %w", err)
	}
	return trade, nil
}

// FindByBrokerOrderID returns the trade with the given Alpaca order id, or
// nil when none exists.
func (r *TradeRepository) FindByBrokerOrderID(ctx context.Context, orderID string) (*domain.TradeAttempt, error) {
	trade, err := scanTrade(r.q.QueryRow(ctx,
		`SELECT`+tradeColumns+` FROM trade WHERE alpaca_order_id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find trade by order id: %w", err)
	}
	return trade, nil
}

// ListOpen returns trades still awaiting a terminal status, oldest first.
func (r *TradeRepository) ListOpen(ctx context.Context, limit int) ([]domain.TradeAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.Query(ctx, `
		SELECT`+tradeColumns+`
		FROM trade
		WHERE status NOT IN `+terminalStatuses+`
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open trades: %w", err)
	}
	return collectTrades(rows)
}

// ListTradesParams filters and pages the trade listing.
type ListTradesParams struct {
	Symbol   string
	Start    *time.Time
	End      *time.Time
	Page     int
	PageSize int
	Desc     bool
}

// List returns a page of trades ordered by created_at. PageSize is capped
// at 100.
func (r *TradeRepository) List(ctx context.Context, params ListTradesParams) ([]domain.TradeAttempt, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 || params.PageSize > 100 {
		params.PageSize = 100
	}

	where := []string{"TRUE"}
	args := []any{}
	if params.Symbol != "" {
		args = append(args, strings.ToUpper(params.Symbol))
		where = append(where, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if params.Start != nil {
		args = append(args, *params.Start)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if params.End != nil {
		args = append(args, *params.End)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	order := "ASC"
	if params.Desc {
		order = "DESC"
	}
	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)

	query := fmt.Sprintf(`
		SELECT`+tradeColumns+`
		FROM trade
		WHERE %s
		ORDER BY created_at %s
		LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), order, len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return collectTrades(rows)
}

// CountInWindow counts non-FAILED attempts created inside [start, end],
// optionally restricted to one symbol. FAILED rows are excluded so that
// guardrail-denied attempts do not consume the daily budget.
func (r *TradeRepository) CountInWindow(ctx context.Context, start, end time.Time, symbol string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM trade
		WHERE created_at >= $1 AND created_at <= $2 AND status <> 'FAILED'`
	args := []any{start, end}
	if symbol != "" {
		query += ` AND symbol = $3`
		args = append(args, strings.ToUpper(symbol))
	}

	var count int
	if err := r.q.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades in window: %w", err)
	}
	return count, nil
}

func decimalParam(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func nullDecimalParam(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func scanTrade(row pgx.Row) (*domain.TradeAttempt, error) {
	var (
		t        domain.TradeAttempt
		status   string
		notional decimal.NullDecimal
		qty      decimal.NullDecimal
		filled   decimal.NullDecimal
		avgPrice decimal.NullDecimal
		rawOrder []byte
	)
	err := row.Scan(
		&t.ID, &t.SourceHash, &t.ClientOrderID, &t.BrokerOrderID, &t.Symbol,
		&t.Side, &t.OrderType, &t.TimeInForce, &notional, &qty,
		&filled, &avgPrice, &status, &t.FailureReason,
		&t.FeedID, &rawOrder, &t.CreatedAt, &t.SubmittedAt,
		&t.UpdatedAt, &t.FilledAt, &t.CanceledAt, &t.FailedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TradeStatus(status)
	t.NotionalSubmitted = fromNullDecimal(notional)
	t.QtySubmitted = fromNullDecimal(qty)
	t.FilledQty = fromNullDecimal(filled)
	t.FilledAvgPrice = fromNullDecimal(avgPrice)
	if rawOrder != nil {
		t.RawOrderJSON = json.RawMessage(rawOrder)
	}
	return &t, nil
}

func collectTrades(rows pgx.Rows) ([]domain.TradeAttempt, error) {
	defer rows.Close()

	var trades []domain.TradeAttempt
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return trades, nil
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
