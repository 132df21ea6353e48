package config

import (
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/cbcbank/ledger/internal/money"
)

const defaultStatementLocation = "5 commission street johannesburg, south africa"

type LedgerConfig struct {
	FeeRate           decimal.Decimal
	ReversalWindow    time.Duration
	RateLimitWindow   time.Duration
	MaxRetries        int
	Currency          string
	StatementLocation string
	EventQueue        string
	QRCodeTimeout     time.Duration
}

// BindLedgerEnv maps the LEDGER_* environment variables onto viper keys.
func BindLedgerEnv() {
	viper.BindEnv("ledger.fee_rate", "LEDGER_FEE_RATE")
	viper.BindEnv("ledger.reversal_window", "LEDGER_REVERSAL_WINDOW")
	viper.BindEnv("ledger.rate_limit_window", "LEDGER_RATE_LIMIT_WINDOW")
	viper.BindEnv("ledger.max_retries", "LEDGER_MAX_RETRIES")
	viper.BindEnv("ledger.currency", "LEDGER_CURRENCY")
	viper.BindEnv("ledger.statement_location", "LEDGER_STATEMENT_LOCATION")
	viper.BindEnv("ledger.event_queue", "LEDGER_EVENT_QUEUE")
	viper.BindEnv("ledger.qr_code_timeout", "LEDGER_QR_CODE_TIMEOUT")
}

func LoadLedgerConfig() *LedgerConfig {
	viper.SetDefault("ledger.fee_rate", money.DefaultFeeRate.String())
	viper.SetDefault("ledger.reversal_window", 30*time.Minute)
	viper.SetDefault("ledger.rate_limit_window", 7*24*time.Hour)
	viper.SetDefault("ledger.max_retries", 3)
	viper.SetDefault("ledger.currency", "ZAR")
	viper.SetDefault("ledger.statement_location", defaultStatementLocation)
	viper.SetDefault("ledger.event_queue", "ledger:events")
	viper.SetDefault("ledger.qr_code_timeout", 5*time.Minute)

	return &LedgerConfig{
		FeeRate:           getDecimal("ledger.fee_rate", money.DefaultFeeRate),
		ReversalWindow:    getPositiveDuration("ledger.reversal_window", 30*time.Minute),
		RateLimitWindow:   getPositiveDuration("ledger.rate_limit_window", 7*24*time.Hour),
		MaxRetries:        getPositiveInt("ledger.max_retries", 3),
		Currency:          viper.GetString("ledger.currency"),
		StatementLocation: viper.GetString("ledger.statement_location"),
		EventQueue:        viper.GetString("ledger.event_queue"),
		QRCodeTimeout:     getPositiveDuration("ledger.qr_code_timeout", 5*time.Minute),
	}
}

func getDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	val := viper.GetString(key)
	if val == "" {
		return defaultVal
	}
	d, err := decimal.NewFromString(val)
	if err != nil || d.IsNegative() {
		log.Printf("[CONFIG] Invalid %s %q, using %s", key, val, defaultVal)
		return defaultVal
	}
	return d
}

func getPositiveInt(key string, defaultVal int) int {
	if val := viper.GetInt(key); val > 0 {
		return val
	}
	return defaultVal
}

func getPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	if val := viper.GetDuration(key); val > 0 {
		return val
	}
	return defaultVal
}
