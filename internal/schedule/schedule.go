// Package schedule runs the open job on the exchange's weekday schedule and
// serves health and status endpoints while waiting.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/codingayam/trading-automation-sub001/internal/alpaca"
	"github.com/codingayam/trading-automation-sub001/internal/domain"
	"github.com/codingayam/trading-automation-sub001/internal/marketclock"
	"github.com/codingayam/trading-automation-sub001/internal/openjob"
)

// openJobSpec fires one minute after the regular open, Monday through
// Friday, in Eastern time. Holidays resolve to a no-op because the planner
// selects the next session and the job-run upsert keeps the day idempotent.
const openJobSpec = "31 9 * * 1-5"

// jobTimeout bounds a single scheduled run.
const jobTimeout = 10 * time.Minute

// JobRunner executes one open-job run.
type JobRunner interface {
	Run(ctx context.Context, now time.Time, dryRun bool) (*openjob.Result, error)
}

// HealthChecker reports storage liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RunLister reads recent job runs for the status endpoint.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.JobRun, error)
}

// AccountSource reads the brokerage account and open positions.
type AccountSource interface {
	GetAccount(ctx context.Context) (*alpaca.Account, error)
	GetPositions(ctx context.Context) ([]alpaca.Position, error)
}

// Scheduler wires the cron trigger and the HTTP surface together.
type Scheduler struct {
	runner  JobRunner
	health  HealthChecker
	jobRuns RunLister
	account AccountSource
	dryRun  bool
	cron    *cron.Cron
	log     zerolog.Logger
}

func New(runner JobRunner, health HealthChecker, jobRuns RunLister, account AccountSource, dryRun bool, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner:  runner,
		health:  health,
		jobRuns: jobRuns,
		account: account,
		dryRun:  dryRun,
		cron:    cron.New(cron.WithLocation(marketclock.Location())),
		log:     log.With().Str("component", "schedule").Logger(),
	}
}

// Start registers the cron entry and starts the trigger loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(openJobSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		res, err := s.runner.Run(ctx, time.Now(), s.dryRun)
		if err != nil {
			s.log.Error().Err(err).Msg("Scheduled open job failed")
			return
		}
		s.log.Info().Str("status", res.Status).Msg("Scheduled open job finished")
	})
	if err != nil {
		return fmt.Errorf("failed to register open job schedule: %w", err)
	}

	s.cron.Start()
	s.log.Info().Str("spec", openJobSpec).Msg("Open job scheduled")
	return nil
}

// Stop halts the trigger loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Router builds the HTTP surface: liveness plus the latest job run.
func (s *Scheduler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/job-runs/latest", s.handleLatestRun)
	r.Get("/api/account", s.handleAccount)
	r.Get("/api/positions", s.handlePositions)
	return r
}

// Serve blocks until ctx is canceled, then shuts the server down
// gracefully.
func (s *Scheduler) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", port).Msg("Health server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("health server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Scheduler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Scheduler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	runs, err := s.jobRuns.ListRecent(r.Context(), 1)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if len(runs) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no job runs yet"})
		return
	}

	run := runs[0]
	writeJSON(w, http.StatusOK, map[string]any{
		"type":            run.Type,
		"trading_date_et": marketclock.DateKey(run.TradingDateET),
		"status":          run.Status,
		"started_at":      run.StartedAt,
		"finished_at":     run.FinishedAt,
		"summary":         run.SummaryJSON,
	})
}

func (s *Scheduler) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.account.GetAccount(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Scheduler) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.account.GetPositions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if positions == nil {
		positions = []alpaca.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
