// Package guardrails evaluates pre-trade risk limits. Evaluation is pure:
// callers supply the current window counts and get back an allow or deny
// decision with enough context to persist and log.
package guardrails

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Guard names identify which limit denied a trade. They are recorded in the
// trade's failure_reason and the job summary.
const (
	GuardTradingDisabled   = "TRADING_DISABLED"
	GuardDailyMaxFilings   = "DAILY_MAX_FILINGS"
	GuardPerTickerDailyMax = "PER_TICKER_DAILY_MAX"
)

// Config carries the configured limits. A limit of zero or below means
// unlimited.
type Config struct {
	TradingEnabled    bool
	DailyMaxFilings   int
	PerTickerDailyMax int
}

// Input is the state of the current trading window for one candidate trade.
type Input struct {
	Symbol      string
	DailyCount  int
	TickerCount int
}

// Decision is the outcome of a guardrail evaluation.
type Decision struct {
	Allowed bool
	Guard   string
	Message string
	Context map[string]any
}

// Evaluator applies the configured guardrails in a fixed order: the global
// trading switch, then the daily filing cap, then the per-ticker cap.
type Evaluator struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		cfg: cfg,
		log: log.With().Str("component", "guardrails").Logger(),
	}
}

// Evaluate checks the candidate trade against every guardrail and returns
// the first denial, or an allow decision. It never errors.
func (e *Evaluator) Evaluate(in Input) Decision {
	if !e.cfg.TradingEnabled {
		return e.deny(GuardTradingDisabled, "trading is disabled", map[string]any{
			"symbol": in.Symbol,
		})
	}

	if e.cfg.DailyMaxFilings > 0 && in.DailyCount >= e.cfg.DailyMaxFilings {
		return e.deny(GuardDailyMaxFilings,
			fmt.Sprintf("daily filing limit reached (%d/%d)", in.DailyCount, e.cfg.DailyMaxFilings),
			map[string]any{
				"symbol": in.Symbol,
				"count":  in.DailyCount,
				"limit":  e.cfg.DailyMaxFilings,
			})
	}

	if e.cfg.PerTickerDailyMax > 0 && in.TickerCount >= e.cfg.PerTickerDailyMax {
		return e.deny(GuardPerTickerDailyMax,
			fmt.Sprintf("per-ticker limit reached for %s (%d/%d)", in.Symbol, in.TickerCount, e.cfg.PerTickerDailyMax),
			map[string]any{
				"symbol": in.Symbol,
				"count":  in.TickerCount,
				"limit":  e.cfg.PerTickerDailyMax,
			})
	}

	return Decision{Allowed: true}
}

func (e *Evaluator) deny(guard, message string, ctx map[string]any) Decision {
	e.log.Warn().Str("guard", guard).Fields(ctx).Msg(message)
	return Decision{Guard: guard, Message: message, Context: ctx}
}
