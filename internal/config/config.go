// Package config loads worker configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/codingayam/trading-automation-sub001/internal/guardrails"
)

// Config is the full worker configuration.
type Config struct {
	Env      string
	LogLevel string
	Pretty   bool
	Port     int

	DatabaseURL string

	AlpacaKeyID       string
	AlpacaSecretKey   string
	AlpacaBaseURL     string
	AlpacaDataBaseURL string
	PaperTrading      bool

	QuiverAPIKey  string
	QuiverBaseURL string

	TradingEnabled    bool
	TradeNotionalUSD  decimal.Decimal
	DailyMaxFilings   int
	PerTickerDailyMax int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present. Missing required variables or
// unparseable values return an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Env:      env,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Pretty:   getEnvBool("LOG_PRETTY", env == "development"),

		AlpacaBaseURL:     os.Getenv("ALPACA_BASE_URL"),
		AlpacaDataBaseURL: os.Getenv("ALPACA_DATA_BASE_URL"),
		PaperTrading:      getEnvBool("PAPER_TRADING", true),

		QuiverBaseURL: os.Getenv("QUIVER_BASE_URL"),

		TradingEnabled: getEnvBool("TRADING_ENABLED", env == "production"),
	}

	var missing []string
	for _, v := range []struct {
		name   string
		target *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"ALPACA_KEY_ID", &cfg.AlpacaKeyID},
		{"ALPACA_SECRET_KEY", &cfg.AlpacaSecretKey},
		{"QUIVER_API_KEY", &cfg.QuiverAPIKey},
	} {
		*v.target = strings.TrimSpace(os.Getenv(v.name))
		if *v.target == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.DailyMaxFilings, err = getEnvInt("DAILY_MAX_FILINGS", 0); err != nil {
		return nil, err
	}
	if cfg.PerTickerDailyMax, err = getEnvInt("PER_TICKER_DAILY_MAX", 0); err != nil {
		return nil, err
	}

	notional := getEnv("TRADE_NOTIONAL_USD", "1000")
	cfg.TradeNotionalUSD, err = decimal.NewFromString(notional)
	if err != nil {
		return nil, fmt.Errorf("invalid TRADE_NOTIONAL_USD %q: %w", notional, err)
	}
	if !cfg.TradeNotionalUSD.IsPositive() {
		return nil, fmt.Errorf("TRADE_NOTIONAL_USD must be positive, got %s", notional)
	}

	return cfg, nil
}

// Guardrails converts the trading limits into the evaluator's config.
func (c *Config) Guardrails() guardrails.Config {
	return guardrails.Config{
		TradingEnabled:    c.TradingEnabled,
		DailyMaxFilings:   c.DailyMaxFilings,
		PerTickerDailyMax: c.PerTickerDailyMax,
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}
