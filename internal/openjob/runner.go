// Package openjob implements the once-per-trading-day pipeline: plan the
// trading windows, fetch and filter filings, submit trades, and record the
// run outcome.
package openjob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codingayam/trading-automation-sub001/internal/alpaca"
	"github.com/codingayam/trading-automation-sub001/internal/domain"
	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
	"github.com/codingayam/trading-automation-sub001/internal/planner"
	"github.com/codingayam/trading-automation-sub001/internal/quiver"
	"github.com/codingayam/trading-automation-sub001/internal/submitter"
)

// calendarLookbackDays covers long weekends and holiday runs when asking
// the broker for the session range around the trading date.
const calendarLookbackDays = 7

// FeedClient fetches raw filings for one Eastern civil day.
type FeedClient interface {
	FilingsByDate(ctx context.Context, day time.Time) ([]quiver.Filing, error)
}

// BrokerCalendar is the market-structure surface of the broker client.
type BrokerCalendar interface {
	GetClock(ctx context.Context) (*alpaca.Clock, error)
	GetCalendar(ctx context.Context, start, end string) ([]alpaca.CalendarDay, error)
}

// TradeSubmitter runs the per-filing submission pipeline.
type TradeSubmitter interface {
	SubmitForFiling(ctx context.Context, params submitter.Params) (*submitter.Result, error)
}

// FeedStore persists filings.
type FeedStore interface {
	CreateMany(ctx context.Context, filings []domain.Filing) (int, error)
}

// CheckpointStore reads and advances the per-day ingest high-water mark.
type CheckpointStore interface {
	Get(ctx context.Context, tradingDate time.Time) (*domain.IngestCheckpoint, error)
	Upsert(ctx context.Context, tradingDate time.Time, lastFiled *time.Time) (*domain.IngestCheckpoint, error)
}

// JobRunStore records the job-run lifecycle.
type JobRunStore interface {
	Start(ctx context.Context, jobType string, tradingDate time.Time) (*domain.JobRun, error)
	Complete(ctx context.Context, jobType string, tradingDate time.Time, summary any) (*domain.JobRun, error)
	Fail(ctx context.Context, jobType string, tradingDate time.Time, summary any) (*domain.JobRun, error)
}

// WindowSummary is the per-window slice of the job summary.
type WindowSummary struct {
	SessionDate       string `json:"session_date"`
	FilingsFetched    int    `json:"filings_fetched"`
	FilingsConsidered int    `json:"filings_considered"`
	OutsideWindow     int    `json:"outside_window"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
}

// TradeCounters aggregates submission outcomes across both windows.
type TradeCounters struct {
	Attempted        int `json:"attempted"`
	Submitted        int `json:"submitted"`
	FallbackUsed     int `json:"fallback_used"`
	GuardrailBlocked int `json:"guardrail_blocked"`
	DryRunSkipped    int `json:"dry_run_skipped"`
}

// RunError is one recorded per-filing or per-day failure.
type RunError struct {
	Symbol     string `json:"symbol,omitempty"`
	SourceHash string `json:"source_hash,omitempty"`
	Day        string `json:"day,omitempty"`
	Error      string `json:"error"`
}

// Summary is persisted as the job run's summary_json.
type Summary struct {
	RunID   string                    `json:"run_id"`
	DryRun  bool                      `json:"dry_run"`
	Windows map[string]*WindowSummary `json:"windows"`
	Trades  TradeCounters             `json:"trades"`
	Errors  []RunError                `json:"errors"`
}

// Result is the outcome of one run.
type Result struct {
	Status  string
	Summary *Summary
}

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Runner is the open-job orchestrator. It processes windows sequentially,
// previous before current, and absorbs per-filing failures so a single bad
// record cannot abort the run.
type Runner struct {
	feed        FeedClient
	broker      BrokerCalendar
	submitter   TradeSubmitter
	feeds       FeedStore
	checkpoints CheckpointStore
	jobRuns     JobRunStore
	log         zerolog.Logger
}

func New(feed FeedClient, broker BrokerCalendar, sub TradeSubmitter, feeds FeedStore, checkpoints CheckpointStore, jobRuns JobRunStore, log zerolog.Logger) *Runner {
	return &Runner{
		feed:        feed,
		broker:      broker,
		submitter:   sub,
		feeds:       feeds,
		checkpoints: checkpoints,
		jobRuns:     jobRuns,
		log:         log.With().Str("component", "open_job").Logger(),
	}
}

// Run executes the open job for the trading date containing now. Clock or
// calendar failures are fatal and mark the run FAILED; everything after
// planning is partial-failure tolerant and still completes as SUCCESS with
// the errors recorded.
func (r *Runner) Run(ctx context.Context, now time.Time, dryRun bool) (*Result, error) {
	runID := uuid.NewString()
	tradingDate := marketclock.StartOfDay(now)

	log := r.log.With().
		Str("run_id", runID).
		Str("trading_date", marketclock.DateKey(tradingDate)).
		Bool("dry_run", dryRun).
		Logger()
	log.Info().Msg("Open job starting")

	if _, err := r.jobRuns.Start(ctx, domain.JobTypeOpen, tradingDate); err != nil {
		return nil, fmt.Errorf("failed to start job run: %w", err)
	}

	summary := &Summary{
		RunID:   runID,
		DryRun:  dryRun,
		Windows: map[string]*WindowSummary{},
	}

	clock, err := r.broker.GetClock(ctx)
	if err != nil {
		return r.fail(ctx, log, tradingDate, summary, fmt.Errorf("failed to fetch exchange clock: %w", err))
	}

	start := marketclock.DateKey(marketclock.AddDays(tradingDate, -calendarLookbackDays))
	end := marketclock.DateKey(marketclock.AddDays(tradingDate, 1))
	calendar, err := r.broker.GetCalendar(ctx, start, end)
	if err != nil {
		return r.fail(ctx, log, tradingDate, summary, fmt.Errorf("failed to fetch exchange calendar: %w", err))
	}

	plan, err := planner.ComputePlan(now, calendar, clock)
	if err != nil {
		return r.fail(ctx, log, tradingDate, summary, fmt.Errorf("failed to plan trading windows: %w", err))
	}
	log.Info().
		Str("previous_session", marketclock.DateKey(plan.Previous.Date)).
		Str("current_session", marketclock.DateKey(plan.Current.Date)).
		Int("fetch_days", len(plan.FetchDays)).
		Msg("Trading windows planned")

	r.processWindow(ctx, log, plan, plan.Previous, "previous", dryRun, summary)
	r.processWindow(ctx, log, plan, plan.Current, "current", dryRun, summary)

	if ctx.Err() != nil {
		return r.fail(ctx, log, tradingDate, summary, fmt.Errorf("canceled: %w", ctx.Err()))
	}

	if summary.Errors == nil {
		summary.Errors = []RunError{}
	}
	if _, err := r.jobRuns.Complete(ctx, domain.JobTypeOpen, tradingDate, summary); err != nil {
		return nil, fmt.Errorf("failed to complete job run: %w", err)
	}

	log.Info().
		Int("attempted", summary.Trades.Attempted).
		Int("submitted", summary.Trades.Submitted).
		Int("errors", len(summary.Errors)).
		Msg("Open job finished")
	return &Result{Status: StatusSuccess, Summary: summary}, nil
}

// fail finalizes the run as FAILED. The finalization itself runs on a fresh
// context so a canceled run can still be recorded.
func (r *Runner) fail(ctx context.Context, log zerolog.Logger, tradingDate time.Time, summary *Summary, cause error) (*Result, error) {
	log.Error().Err(cause).Msg("Open job failed")
	summary.Errors = append(summary.Errors, RunError{Error: cause.Error()})

	finishCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if _, err := r.jobRuns.Fail(finishCtx, domain.JobTypeOpen, tradingDate, summary); err != nil {
		log.Error().Err(err).Msg("Failed to record job failure")
	}
	return &Result{Status: StatusFailure, Summary: summary}, cause
}

func (r *Runner) processWindow(ctx context.Context, log zerolog.Logger, plan *planner.Plan, session planner.Session, name string, dryRun bool, summary *Summary) {
	ws := &WindowSummary{SessionDate: marketclock.DateKey(session.Date)}
	summary.Windows[name] = ws

	wlog := log.With().Str("window", name).Str("session_date", ws.SessionDate).Logger()

	var cutoff *time.Time
	cp, err := r.checkpoints.Get(ctx, session.Date)
	if err != nil {
		summary.Errors = append(summary.Errors, RunError{Day: ws.SessionDate, Error: err.Error()})
		wlog.Error().Err(err).Msg("Failed to load checkpoint, skipping window")
		return
	}
	if cp != nil {
		cutoff = cp.LastFiledTSProcessedET
	}

	maxFiled := cutoff
	var admitted, toPersist []domain.Filing

	for _, day := range plan.FetchDaysFor(session) {
		dayKey := marketclock.DateKey(day)
		raws, err := r.feed.FilingsByDate(ctx, day)
		if err != nil {
			summary.Errors = append(summary.Errors, RunError{Day: dayKey, Error: err.Error()})
			wlog.Warn().Err(err).Str("day", dayKey).Msg("Feed fetch failed, skipping day")
			continue
		}
		ws.FilingsFetched += len(raws)

		for _, raw := range raws {
			filing, ok := normalizeFiling(raw)
			if !ok {
				continue
			}

			filedTS := filing.FilingDate
			if maxFiled == nil || filedTS.After(*maxFiled) {
				ts := filedTS
				maxFiled = &ts
			}

			if filing.Transaction != domain.TransactionBuy {
				continue
			}

			if cutoff != nil && !filedTS.After(*cutoff) {
				ws.DuplicatesSkipped++
				continue
			}

			if !r.inWindow(plan, session, name, filedTS) {
				ws.OutsideWindow++
				toPersist = append(toPersist, filing)
				continue
			}

			ws.FilingsConsidered++
			admitted = append(admitted, filing)
			toPersist = append(toPersist, filing)
		}
	}

	admitted = dedupeBySourceHash(admitted)

	if len(toPersist) > 0 {
		if _, err := r.feeds.CreateMany(ctx, toPersist); err != nil {
			summary.Errors = append(summary.Errors, RunError{Day: ws.SessionDate, Error: err.Error()})
			wlog.Error().Err(err).Msg("Failed to persist feed entries")
		}
	}

	for _, filing := range admitted {
		if dryRun {
			summary.Trades.DryRunSkipped++
			continue
		}

		summary.Trades.Attempted++
		res, err := r.submitter.SubmitForFiling(ctx, submitter.Params{
			Filing: filing,
			Window: submitter.Window{Start: session.Open, End: session.Close},
		})
		if res != nil {
			if res.GuardrailBlocked {
				summary.Trades.GuardrailBlocked++
			}
			if res.FallbackUsed {
				summary.Trades.FallbackUsed++
			}
		}
		if err != nil {
			summary.Errors = append(summary.Errors, RunError{
				Symbol:     filing.Ticker,
				SourceHash: filing.SourceHash(),
				Error:      err.Error(),
			})
			wlog.Warn().Err(err).Str("symbol", filing.Ticker).Msg("Trade submission failed, continuing")
			continue
		}
		if res.Trade != nil && res.Trade.Status != domain.TradeStatusFailed && !res.Duplicate && !res.DryRunSkipped {
			summary.Trades.Submitted++
		}
	}

	if _, err := r.checkpoints.Upsert(ctx, session.Date, maxFiled); err != nil {
		summary.Errors = append(summary.Errors, RunError{Day: ws.SessionDate, Error: err.Error()})
		wlog.Error().Err(err).Msg("Failed to advance checkpoint")
	}

	wlog.Info().
		Int("fetched", ws.FilingsFetched).
		Int("considered", ws.FilingsConsidered).
		Int("outside_window", ws.OutsideWindow).
		Int("duplicates_skipped", ws.DuplicatesSkipped).
		Msg("Window processed")
}

// inWindow attributes a filing to the window whose session follows its
// filing date: a filing belongs to the current window when it was filed
// after the previous session, and to the previous window when filed on or
// before that session's date. Filings filed after the window's own session
// date are outside.
func (r *Runner) inWindow(plan *planner.Plan, session planner.Session, name string, filedTS time.Time) bool {
	if filedTS.After(marketclock.EndOfDay(session.Date)) {
		return false
	}
	if name == "current" && !filedTS.After(marketclock.EndOfDay(plan.Previous.Date)) {
		return false
	}
	return true
}

// normalizeFiling validates and normalizes one raw feed record. Records
// missing a ticker, member name, or parseable filing date are dropped.
func normalizeFiling(raw quiver.Filing) (domain.Filing, bool) {
	ticker := domain.NormalizeTicker(raw.Ticker)
	member := strings.TrimSpace(raw.Name)
	filed, ok := marketclock.ParseDate(raw.Filed)
	if ticker == "" || member == "" || !ok {
		return domain.Filing{}, false
	}

	filing := domain.Filing{
		Ticker:      ticker,
		MemberName:  member,
		Transaction: domain.NormalizeTransaction(raw.Transaction),
		FilingDate:  filed,
		Raw:         raw.Raw,
	}
	if traded, ok := marketclock.ParseDate(raw.Traded); ok {
		filing.TradeDate = &traded
	}
	filing.Party = domain.NormalizeParty(raw.Party)
	return filing, true
}

// dedupeBySourceHash keeps the earliest filing per source hash, preserving
// arrival order.
func dedupeBySourceHash(filings []domain.Filing) []domain.Filing {
	if len(filings) < 2 {
		return filings
	}
	seen := make(map[string]int, len(filings))
	out := make([]domain.Filing, 0, len(filings))
	for _, f := range filings {
		hash := f.SourceHash()
		if i, ok := seen[hash]; ok {
			if f.FilingDate.Before(out[i].FilingDate) {
				out[i] = f
			}
			continue
		}
		seen[hash] = len(out)
		out = append(out, f)
	}
	return out
}
