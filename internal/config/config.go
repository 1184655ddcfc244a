package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port       string
	DBURL      string
	LogLevel   string
	DBMaxConns int

	RedisURL       string
	IdempotencyTTL time.Duration
	JWTSecret      string

	GatewayBaseURL  string
	GatewayAPIToken string
	GatewayTimeout  time.Duration

	// Fee policy. Both values are operational settings, see DESIGN.md.
	CashInFeePercent decimal.Decimal
	PayoutFeeFlat    decimal.Decimal
	Currency         string

	PayoutSweepInterval time.Duration
	ResendInterval      time.Duration
	ResendMaxAttempts   int
	ResendBackoff       time.Duration
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load("config.env")

	maxConns, err := intEnv("DB_MAX_CONNS", 8)
	if err != nil {
		return nil, err
	}
	idempotencyTTL, err := durationEnv("IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	gatewayTimeout, err := durationEnv("GATEWAY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cashInPercent, err := decimalEnv("CASH_IN_FEE_PERCENT", decimal.NewFromInt(10))
	if err != nil {
		return nil, err
	}
	payoutFee, err := decimalEnv("PAYOUT_FEE_FLAT", decimal.NewFromInt(10))
	if err != nil {
		return nil, err
	}
	sweepInterval, err := durationEnv("PAYOUT_SWEEP_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	resendInterval, err := durationEnv("RESEND_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	resendAttempts, err := intEnv("RESEND_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	resendBackoff, err := durationEnv("RESEND_BACKOFF", 300*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:     getEnv("APP_PORT", "8080"),
		LogLevel: os.Getenv("LOG_LEVEL"),
		DBURL: fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_NAME"),
		),
		DBMaxConns: maxConns,

		RedisURL:       os.Getenv("REDIS_URL"),
		IdempotencyTTL: idempotencyTTL,
		JWTSecret:      os.Getenv("JWT_SECRET"),

		GatewayBaseURL:  getEnv("GATEWAY_BASE_URL", "https://api.sandbox.pawapay.io/v2"),
		GatewayAPIToken: os.Getenv("GATEWAY_API_TOKEN"),
		GatewayTimeout:  gatewayTimeout,

		CashInFeePercent: cashInPercent,
		PayoutFeeFlat:    payoutFee,
		Currency:         getEnv("WALLET_CURRENCY", "ZMW"),

		PayoutSweepInterval: sweepInterval,
		ResendInterval:      resendInterval,
		ResendMaxAttempts:   resendAttempts,
		ResendBackoff:       resendBackoff,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func decimalEnv(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
