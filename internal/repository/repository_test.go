package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codingayam/trading-automation-sub001/internal/domain"
	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
)

// recordingQuerier captures the SQL and arguments a repository method
// issues. Scan leaves the destinations zero-valued.
type recordingQuerier struct {
	sql  string
	args []any
}

func (q *recordingQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.sql, q.args = sql, args
	return pgconn.CommandTag{}, nil
}

func (q *recordingQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql, q.args = sql, args
	return nil, pgx.ErrNoRows
}

func (q *recordingQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql, q.args = sql, args
	return noopRow{}
}

type noopRow struct{}

func (noopRow) Scan(...any) error { return nil }

func TestWrapDup_UniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "trade_source_hash_key"}

	err := wrapDup(pgErr, "failed to insert trade")
	require.True(t, IsDuplicate(err))

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "trade_source_hash_key", dup.Constraint)
}

func TestWrapDup_OtherErrorsWrapped(t *testing.T) {
	cause := errors.New("connection reset")

	err := wrapDup(cause, "failed to insert trade")
	assert.False(t, IsDuplicate(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to insert trade")
}

func TestDecimalParams(t *testing.T) {
	assert.Nil(t, decimalParam(nil))

	d := decimal.RequireFromString("1000.50")
	require.NotNil(t, decimalParam(&d))
	assert.Equal(t, "1000.5", *decimalParam(&d))

	assert.Nil(t, nullDecimalParam(decimal.NullDecimal{}))
	set := decimal.NullDecimal{Decimal: decimal.NewFromInt(3), Valid: true}
	require.NotNil(t, nullDecimalParam(set))
	assert.Equal(t, "3", *nullDecimalParam(set))
}

func TestFromNullDecimal(t *testing.T) {
	assert.Nil(t, fromNullDecimal(decimal.NullDecimal{}))

	got := fromNullDecimal(decimal.NullDecimal{Decimal: decimal.NewFromInt(7), Valid: true})
	require.NotNil(t, got)
	assert.Equal(t, "7", got.String())
}

func TestCivilDate_ReinterpretsUTCMidnight(t *testing.T) {
	// pgx scans DATE columns as UTC midnight; only y/m/d carry meaning.
	scanned := time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC)

	got := civilDate(scanned)
	assert.Equal(t, "2024-02-16", marketclock.DateKey(got))
	assert.Equal(t, marketclock.Location(), got.Location())
}

func TestTradeUpdate_StatusTransitionGuardedBySQL(t *testing.T) {
	q := &recordingQuerier{}
	repo := NewTradeRepository(q, zerolog.Nop())

	status := domain.TradeStatusAccepted
	_, err := repo.Update(context.Background(), 42, TradeUpdate{Status: &status})
	require.NoError(t, err)

	// The guard lives in the statement itself: a row already in a terminal
	// status keeps it no matter what status the patch carries.
	assert.Contains(t, q.sql,
		"status = CASE WHEN status IN ('FILLED', 'CANCELED', 'REJECTED', 'FAILED') THEN status ELSE $2 END")
	require.Len(t, q.args, 2)
	assert.Equal(t, int64(42), q.args[0])
	assert.Equal(t, string(domain.TradeStatusAccepted), q.args[1])
}

func TestTradeUpdate_OmitsUntouchedColumns(t *testing.T) {
	q := &recordingQuerier{}
	repo := NewTradeRepository(q, zerolog.Nop())

	reason := "broker rejected"
	_, err := repo.Update(context.Background(), 7, TradeUpdate{FailureReason: &reason})
	require.NoError(t, err)

	assert.NotContains(t, q.sql, "status = CASE")
	assert.Contains(t, q.sql, "failure_reason = $2")
	assert.Contains(t, q.sql, "updated_at = now()")
	require.Len(t, q.args, 2)
	assert.Equal(t, "broker rejected", q.args[1])
}

func TestDateParam(t *testing.T) {
	assert.Nil(t, dateParam(nil))

	d := marketclock.Date(2024, 2, 16, 0, 0, 0, 0)
	require.NotNil(t, dateParam(&d))
	assert.Equal(t, "2024-02-16", *dateParam(&d))
}
