package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/codingayam/trading-automation-sub001/internal/database"
	"github.com/codingayam/trading-automation-sub001/internal/domain"
	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
)

// CheckpointRepository persists the per-trading-date ingest high-water mark.
type CheckpointRepository struct {
	q   database.Querier
	log zerolog.Logger
}

func NewCheckpointRepository(q database.Querier, log zerolog.Logger) *CheckpointRepository {
	return &CheckpointRepository{
		q:   q,
		log: log.With().Str("repo", "checkpoint").Logger(),
	}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *CheckpointRepository) WithTx(tx pgx.Tx) *CheckpointRepository {
	return &CheckpointRepository{q: tx, log: r.log}
}

// Get returns the checkpoint for a trading date, or nil when none exists.
func (r *CheckpointRepository) Get(ctx context.Context, tradingDate time.Time) (*domain.IngestCheckpoint, error) {
	cp, err := scanCheckpoint(r.q.QueryRow(ctx, `
		SELECT trading_date_et, last_filed_ts_processed_et, updated_at
		FROM ingest_checkpoint
		WHERE trading_date_et = $1`,
		marketclock.DateKey(tradingDate)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return cp, nil
}

// Upsert writes the checkpoint for a trading date, replacing any previous
// high-water mark.
func (r *CheckpointRepository) Upsert(ctx context.Context, tradingDate time.Time, lastFiled *time.Time) (*domain.IngestCheckpoint, error) {
	cp, err := scanCheckpoint(r.q.QueryRow(ctx, `
		INSERT INTO ingest_checkpoint (trading_date_et, last_filed_ts_processed_et)
		VALUES ($1, $2)
		ON CONFLICT (trading_date_et) DO UPDATE SET
			last_filed_ts_processed_et = EXCLUDED.last_filed_ts_processed_et,
			updated_at = now()
		RETURNING trading_date_et, last_filed_ts_processed_et, updated_at`,
		marketclock.DateKey(tradingDate), lastFiled))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert checkpoint: %w", err)
	}
	return cp, nil
}

// Delete removes the checkpoint for a trading date, reporting whether a
// row existed.
func (r *CheckpointRepository) Delete(ctx context.Context, tradingDate time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM ingest_checkpoint WHERE trading_date_et = $1`,
		marketclock.DateKey(tradingDate))
	if err != nil {
		return false, fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns the most recent checkpoints, newest trading date first.
func (r *CheckpointRepository) List(ctx context.Context, limit int) ([]domain.IngestCheckpoint, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := r.q.Query(ctx, `
		SELECT trading_date_et, last_filed_ts_processed_et, updated_at
		FROM ingest_checkpoint
		ORDER BY trading_date_et DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []domain.IngestCheckpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	return checkpoints, nil
}

func scanCheckpoint(row pgx.Row) (*domain.IngestCheckpoint, error) {
	var (
		cp          domain.IngestCheckpoint
		tradingDate time.Time
	)
	if err := row.Scan(&tradingDate, &cp.LastFiledTSProcessedET, &cp.UpdatedAt); err != nil {
		return nil, err
	}
	cp.TradingDateET = civilDate(tradingDate)
	return &cp, nil
}
