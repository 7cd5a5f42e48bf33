package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/codingayam/trading-automation-sub001/internal/alpaca"
	"github.com/codingayam/trading-automation-sub001/internal/config"
	"github.com/codingayam/trading-automation-sub001/internal/database"
	"github.com/codingayam/trading-automation-sub001/internal/guardrails"
	"github.com/codingayam/trading-automation-sub001/internal/openjob"
	"github.com/codingayam/trading-automation-sub001/internal/poller"
	"github.com/codingayam/trading-automation-sub001/internal/quiver"
	"github.com/codingayam/trading-automation-sub001/internal/repository"
	"github.com/codingayam/trading-automation-sub001/internal/schedule"
	"github.com/codingayam/trading-automation-sub001/internal/submitter"
	"github.com/codingayam/trading-automation-sub001/pkg/logger"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitInvalidEnv = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return exitInvalidEnv
	}
	command := os.Args[1]
	args := os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidEnv
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.Pretty,
	})
	logger.SetGlobalLogger(log)

	log.Debug().
		Str("env", cfg.Env).
		Bool("paper_trading", cfg.PaperTrading).
		Bool("trading_enabled", cfg.TradingEnabled).
		Str("trade_notional_usd", cfg.TradeNotionalUSD.String()).
		Int("daily_max_filings", cfg.DailyMaxFilings).
		Int("per_ticker_daily_max", cfg.PerTickerDailyMax).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "open-job":
		return runOpenJob(ctx, cfg, log, args)
	case "schedule":
		return runSchedule(ctx, cfg, log, args)
	case "migrate":
		return runMigrate(ctx, cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		usage()
		return exitInvalidEnv
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: worker <command> [flags]

commands:
  open-job   run the market-open job once and exit
             --dry-run   evaluate without submitting orders
  schedule   run the open job on the exchange schedule, with health endpoints
             --port      health server port (default from PORT)
             --dry-run   scheduled runs evaluate without submitting
  migrate    apply database migrations and exit`)
}

func runOpenJob(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) int {
	fs := flag.NewFlagSet("open-job", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "evaluate without submitting orders")
	if err := fs.Parse(args); err != nil {
		return exitInvalidEnv
	}

	db, err := connect(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return exitFailure
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to run migrations")
		return exitFailure
	}

	runner := buildRunner(cfg, db, log)
	res, err := runner.Run(ctx, time.Now(), *dryRun)
	if err != nil || res.Status != openjob.StatusSuccess {
		return exitFailure
	}
	return exitOK
}

func runSchedule(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) int {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	port := fs.Int("port", cfg.Port, "health server port")
	dryRun := fs.Bool("dry-run", false, "scheduled runs evaluate without submitting")
	if err := fs.Parse(args); err != nil {
		return exitInvalidEnv
	}

	db, err := connect(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return exitFailure
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to run migrations")
		return exitFailure
	}

	runner := buildRunner(cfg, db, log)
	jobRuns := repository.NewJobRunRepository(db.Pool(), log)
	broker := buildBroker(cfg, log)

	sched := schedule.New(runner, db, jobRuns, broker, *dryRun, log)
	if err := sched.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start scheduler")
		return exitFailure
	}
	defer sched.Stop()

	if err := sched.Serve(ctx, *port); err != nil {
		log.Error().Err(err).Msg("Health server stopped with error")
		return exitFailure
	}

	log.Info().Msg("Shutdown complete")
	return exitOK
}

func runMigrate(ctx context.Context, cfg *config.Config, log zerolog.Logger) int {
	db, err := connect(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return exitFailure
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to run migrations")
		return exitFailure
	}
	log.Info().Msg("Migrations applied")
	return exitOK
}

func connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*database.DB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return database.Connect(connectCtx, cfg.DatabaseURL, log)
}

func buildBroker(cfg *config.Config, log zerolog.Logger) *alpaca.Client {
	brokerBase := cfg.AlpacaBaseURL
	if brokerBase == "" && !cfg.PaperTrading {
		brokerBase = alpaca.LiveBaseURL
	}
	return alpaca.New(brokerBase, cfg.AlpacaDataBaseURL, cfg.AlpacaKeyID, cfg.AlpacaSecretKey, log)
}

func buildRunner(cfg *config.Config, db *database.DB, log zerolog.Logger) *openjob.Runner {
	broker := buildBroker(cfg, log)
	feed := quiver.New(cfg.QuiverBaseURL, cfg.QuiverAPIKey, log)

	trades := repository.NewTradeRepository(db.Pool(), log)
	feeds := repository.NewFeedRepository(db.Pool(), log)
	checkpoints := repository.NewCheckpointRepository(db.Pool(), log)
	jobRuns := repository.NewJobRunRepository(db.Pool(), log)

	orderPoller := poller.New(broker, trades, poller.DefaultOptions, log)
	guards := guardrails.New(cfg.Guardrails(), log)
	sub := submitter.New(
		broker,
		trades,
		&submitter.PgTxRunner{DB: db, Trades: trades},
		orderPoller,
		guards,
		cfg.TradeNotionalUSD,
		log,
	)

	return openjob.New(feed, broker, sub, feeds, checkpoints, jobRuns, log)
}
