package guardrails

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newEvaluator(cfg Config) *Evaluator {
	return New(cfg, zerolog.Nop())
}

func TestEvaluate_Allowed(t *testing.T) {
	e := newEvaluator(Config{TradingEnabled: true, DailyMaxFilings: 20, PerTickerDailyMax: 3})

	d := e.Evaluate(Input{Symbol: "AAPL", DailyCount: 5, TickerCount: 1})
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Guard)
}

func TestEvaluate_TradingDisabled(t *testing.T) {
	e := newEvaluator(Config{TradingEnabled: false, DailyMaxFilings: 20, PerTickerDailyMax: 3})

	d := e.Evaluate(Input{Symbol: "AAPL"})
	assert.False(t, d.Allowed)
	assert.Equal(t, GuardTradingDisabled, d.Guard)
}

func TestEvaluate_TradingDisabledWinsOverOtherGuards(t *testing.T) {
	e := newEvaluator(Config{TradingEnabled: false, DailyMaxFilings: 1, PerTickerDailyMax: 1})

	d := e.Evaluate(Input{Symbol: "AAPL", DailyCount: 99, TickerCount: 99})
	assert.Equal(t, GuardTradingDisabled, d.Guard)
}

func TestEvaluate_DailyMaxFilings(t *testing.T) {
	e := newEvaluator(Config{TradingEnabled: true, DailyMaxFilings: 20, PerTickerDailyMax: 3})

	d := e.Evaluate(Input{Symbol: "AAPL", DailyCount: 20, TickerCount: 0})
	assert.False(t, d.Allowed)
	assert.Equal(t, GuardDailyMaxFilings, d.Guard)
	assert.Equal(t, 20, d.Context["count"])
	assert.Equal(t, 20, d.Context["limit"])
}

func TestEvaluate_DailyMaxChecksBeforePerTicker(t *testing.T) {
	e := newEvaluator(Config{TradingEnabled: true, DailyMaxFilings: 10, PerTickerDailyMax: 3})

	d := e.Evaluate(Input{Symbol: "AAPL", DailyCount: 10, TickerCount: 3})
	assert.Equal(t, GuardDailyMaxFilings, d.Guard)
}

func TestEvaluate_PerTickerDailyMax(t *testing.T) {
	e := newEvaluator(Config{TradingEnabled: true, DailyMaxFilings: 20, PerTickerDailyMax: 3})

	d := e.Evaluate(Input{Symbol: "NVDA", DailyCount: 5, TickerCount: 3})
	assert.False(t, d.Allowed)
	assert.Equal(t, GuardPerTickerDailyMax, d.Guard)
	assert.Contains(t, d.Message, "NVDA")
}

func TestEvaluate_ZeroLimitsAreUnlimited(t *testing.T) {
	e := newEvaluator(Config{TradingEnabled: true})

	d := e.Evaluate(Input{Symbol: "AAPL", DailyCount: 1000, TickerCount: 1000})
	assert.True(t, d.Allowed)
}
