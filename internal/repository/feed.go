package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/codingayam/trading-automation-sub001/internal/database"
	"github.com/codingayam/trading-automation-sub001/internal/domain"
	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
)

const feedColumns = `
	id, ticker, member_name, transaction_type, trade_date, filing_date,
	party, raw_json, ingested_at`

// FeedRepository persists raw congressional filings.
type FeedRepository struct {
	q   database.Querier
	log zerolog.Logger
}

func NewFeedRepository(q database.Querier, log zerolog.Logger) *FeedRepository {
	return &FeedRepository{
		q:   q,
		log: log.With().Str("repo", "feed").Logger(),
	}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *FeedRepository) WithTx(tx pgx.Tx) *FeedRepository {
	return &FeedRepository{q: tx, log: r.log}
}

// Create inserts one filing. A duplicate of the
// (ticker, member, filing_date, trade_date) identity is returned as
// *DuplicateError.
func (r *FeedRepository) Create(ctx context.Context, f domain.Filing) (*domain.FeedEntry, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO congress_trade_feed (
			ticker, member_name, transaction_type, trade_date, filing_date,
			party, raw_json
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING`+feedColumns,
		f.Ticker,
		f.MemberName,
		string(f.Transaction),
		dateParam(f.TradeDate),
		marketclock.DateKey(f.FilingDate),
		partyParam(f.Party),
		[]byte(f.Raw),
	)

	entry, err := scanFeedEntry(row)
	if err != nil {
		return nil, wrapDup(err, "failed to insert filing")
	}
	return entry, nil
}

// CreateMany inserts filings, skipping identity duplicates, and returns
// the number of rows actually inserted.
func (r *FeedRepository) CreateMany(ctx context.Context, filings []domain.Filing) (int, error) {
	inserted := 0
	for _, f := range filings {
		tag, err := r.q.Exec(ctx, `
			INSERT INTO congress_trade_feed (
				ticker, member_name, transaction_type, trade_date, filing_date,
				party, raw_json
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT ON CONSTRAINT congress_trade_feed_identity_key DO NOTHING`,
			f.Ticker,
			f.MemberName,
			string(f.Transaction),
			dateParam(f.TradeDate),
			marketclock.DateKey(f.FilingDate),
			partyParam(f.Party),
			[]byte(f.Raw),
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert filing %s/%s: %w", f.Ticker, f.MemberName, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListFeedParams filters the feed listing.
type ListFeedParams struct {
	Ticker string
	Since  *time.Time
	Limit  int
}

// List returns filings newest first by filing date.
func (r *FeedRepository) List(ctx context.Context, params ListFeedParams) ([]domain.FeedEntry, error) {
	if params.Limit <= 0 || params.Limit > 500 {
		params.Limit = 100
	}

	where := []string{"TRUE"}
	args := []any{}
	if params.Ticker != "" {
		args = append(args, strings.ToUpper(params.Ticker))
		where = append(where, fmt.Sprintf("ticker = $%d", len(args)))
	}
	if params.Since != nil {
		args = append(args, marketclock.DateKey(*params.Since))
		where = append(where, fmt.Sprintf("filing_date >= $%d", len(args)))
	}
	args = append(args, params.Limit)

	query := fmt.Sprintf(`
		SELECT`+feedColumns+`
		FROM congress_trade_feed
		WHERE %s
		ORDER BY filing_date DESC, id DESC
		LIMIT $%d`,
		strings.Join(where, " AND "), len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list filings: %w", err)
	}
	defer rows.Close()

	var entries []domain.FeedEntry
	for rows.Next() {
		entry, err := scanFeedEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan filing: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate filings: %w", err)
	}
	return entries, nil
}

// LatestFilingDate returns the newest stored filing date, or nil when the
// feed is empty.
func (r *FeedRepository) LatestFilingDate(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	if err := r.q.QueryRow(ctx,
		`SELECT MAX(filing_date) FROM congress_trade_feed`,
	).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to read latest filing date: %w", err)
	}
	if latest == nil {
		return nil, nil
	}
	d := civilDate(*latest)
	return &d, nil
}

func scanFeedEntry(row pgx.Row) (*domain.FeedEntry, error) {
	var (
		e           domain.FeedEntry
		transaction string
		tradeDate   *time.Time
		filingDate  time.Time
		party       *string
		raw         []byte
	)
	err := row.Scan(
		&e.ID, &e.Filing.Ticker, &e.Filing.MemberName, &transaction,
		&tradeDate, &filingDate, &party, &raw, &e.IngestedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Filing.Transaction = domain.Transaction(transaction)
	if tradeDate != nil {
		d := civilDate(*tradeDate)
		e.Filing.TradeDate = &d
	}
	e.Filing.FilingDate = civilDate(filingDate)
	if party != nil {
		p := domain.Party(*party)
		e.Filing.Party = &p
	}
	if raw != nil {
		e.Filing.Raw = json.RawMessage(raw)
	}
	return &e, nil
}

func dateParam(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := marketclock.DateKey(*t)
	return &s
}

func partyParam(p *domain.Party) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

// civilDate reinterprets a scanned DATE value as midnight Eastern. pgx
// returns DATE columns as UTC midnight, so only the year, month, and day
// carry meaning.
func civilDate(t time.Time) time.Time {
	return marketclock.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0)
}
