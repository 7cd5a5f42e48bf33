package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/codingayam/trading-automation-sub001/internal/database"
	"github.com/codingayam/trading-automation-sub001/internal/domain"
	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
)

const jobRunColumns = `
	id, type, trading_date_et, status, started_at, finished_at,
	summary_json, created_at, updated_at`

// JobRunRepository persists job executions, unique per (type, trading date).
type JobRunRepository struct {
	q   database.Querier
	log zerolog.Logger
}

func NewJobRunRepository(q database.Querier, log zerolog.Logger) *JobRunRepository {
	return &JobRunRepository{
		q:   q,
		log: log.With().Str("repo", "job_run").Logger(),
	}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *JobRunRepository) WithTx(tx pgx.Tx) *JobRunRepository {
	return &JobRunRepository{q: tx, log: r.log}
}

// Start records the beginning of a run for the given trading date. Re-running
// the same (type, trading date) resets the existing row to RUNNING instead
// of inserting a second one.
func (r *JobRunRepository) Start(ctx context.Context, jobType string, tradingDate time.Time) (*domain.JobRun, error) {
	run, err := scanJobRun(r.q.QueryRow(ctx, `
		INSERT INTO job_run (type, trading_date_et, status, started_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT ON CONSTRAINT job_run_type_trading_date_et_key DO UPDATE SET
			status = $3,
			started_at = now(),
			finished_at = NULL,
			updated_at = now()
		RETURNING`+jobRunColumns,
		jobType, marketclock.DateKey(tradingDate), string(domain.JobStatusRunning)))
	if err != nil {
		return nil, fmt.Errorf("failed to start job run: %w", err)
	}
	return run, nil
}

// Complete marks the run SUCCESS and stores the summary.
func (r *JobRunRepository) Complete(ctx context.Context, jobType string, tradingDate time.Time, summary any) (*domain.JobRun, error) {
	return r.finish(ctx, jobType, tradingDate, domain.JobStatusSuccess, summary)
}

// Fail marks the run FAILED and stores the summary.
func (r *JobRunRepository) Fail(ctx context.Context, jobType string, tradingDate time.Time, summary any) (*domain.JobRun, error) {
	return r.finish(ctx, jobType, tradingDate, domain.JobStatusFailed, summary)
}

func (r *JobRunRepository) finish(ctx context.Context, jobType string, tradingDate time.Time, status domain.JobStatus, summary any) (*domain.JobRun, error) {
	var summaryJSON []byte
	if summary != nil {
		var err error
		summaryJSON, err = json.Marshal(summary)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal job summary: %w", err)
		}
	}

	run, err := scanJobRun(r.q.QueryRow(ctx, `
		UPDATE job_run SET
			status = $3,
			finished_at = now(),
			summary_json = COALESCE($4, summary_json),
			updated_at = now()
		WHERE type = $1 AND trading_date_et = $2
		RETURNING`+jobRunColumns,
		jobType, marketclock.DateKey(tradingDate), string(status), summaryJSON))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no job run exists for %s on %s", jobType, marketclock.DateKey(tradingDate))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finish job run: %w", err)
	}
	return run, nil
}

// MarkStatus sets the run's status without finishing it. Used by operators
// to reset a wedged RUNNING row.
func (r *JobRunRepository) MarkStatus(ctx context.Context, jobType string, tradingDate time.Time, status domain.JobStatus) (*domain.JobRun, error) {
	run, err := scanJobRun(r.q.QueryRow(ctx, `
		UPDATE job_run SET status = $3, updated_at = now()
		WHERE type = $1 AND trading_date_et = $2
		RETURNING`+jobRunColumns,
		jobType, marketclock.DateKey(tradingDate), string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no job run exists for %s on %s", jobType, marketclock.DateKey(tradingDate))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark job run status: %w", err)
	}
	return run, nil
}

// GetByTradingDate returns the run for one (type, trading date), or nil
// when none exists.
func (r *JobRunRepository) GetByTradingDate(ctx context.Context, jobType string, tradingDate time.Time) (*domain.JobRun, error) {
	run, err := scanJobRun(r.q.QueryRow(ctx, `
		SELECT`+jobRunColumns+`
		FROM job_run
		WHERE type = $1 AND trading_date_et = $2`,
		jobType, marketclock.DateKey(tradingDate)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job run: %w", err)
	}
	return run, nil
}

// ListRecent returns the most recent runs, newest trading date first.
func (r *JobRunRepository) ListRecent(ctx context.Context, limit int) ([]domain.JobRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.q.Query(ctx, `
		SELECT`+jobRunColumns+`
		FROM job_run
		ORDER BY trading_date_et DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job runs: %w", err)
	}
	return runs, nil
}

func scanJobRun(row pgx.Row) (*domain.JobRun, error) {
	var (
		run         domain.JobRun
		tradingDate time.Time
		status      string
		summary     []byte
	)
	err := row.Scan(
		&run.ID, &run.Type, &tradingDate, &status, &run.StartedAt,
		&run.FinishedAt, &summary, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.TradingDateET = civilDate(tradingDate)
	run.Status = domain.JobStatus(status)
	if summary != nil {
		run.SummaryJSON = json.RawMessage(summary)
	}
	return &run, nil
}
