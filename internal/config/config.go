package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultAppName          = "VeloxLedger"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultBalanceTolerance = "0.01"
	defaultMinJustification = 20
	defaultMaxRetries       = 5
	defaultRetryBase        = 30 * time.Second
	defaultRetryMax         = time.Hour
	defaultRetryMultiplier  = 2.0
	defaultPollInterval     = 15 * time.Second
	defaultRetryWorkers     = 2
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration

	// BalanceTolerance is the maximum allowed |debits - credits| per
	// transaction. Currency-policy dependent, hence configurable.
	BalanceTolerance decimal.Decimal

	// MinJustification is the minimum justification length accepted by the
	// admin override log.
	MinJustification int

	// FinanceAuthorityRole is the only role allowed to grant overrides.
	FinanceAuthorityRole string

	// Settlement retry policy.
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RetryMultiplier float64
	PollInterval    time.Duration
	RetryWorkers    int
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:              getEnv("APP_NAME", defaultAppName),
		AppEnv:               getEnv("APP_ENV", defaultAppEnv),
		Port:                 getEnv("PORT", defaultPort),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		ShutdownPeriod:       defaultShutdownDelay,
		MinJustification:     defaultMinJustification,
		FinanceAuthorityRole: getEnv("FINANCE_AUTHORITY_ROLE", "finance_authority"),
		MaxRetries:           defaultMaxRetries,
		RetryBaseDelay:       defaultRetryBase,
		RetryMaxDelay:        defaultRetryMax,
		RetryMultiplier:      defaultRetryMultiplier,
		PollInterval:         defaultPollInterval,
		RetryWorkers:         defaultRetryWorkers,
	}

	var err error
	cfg.BalanceTolerance, err = decimal.NewFromString(getEnv("BALANCE_TOLERANCE", defaultBalanceTolerance))
	if err != nil {
		return Config{}, fmt.Errorf("invalid BALANCE_TOLERANCE: %w", err)
	}
	if cfg.BalanceTolerance.IsNegative() {
		return Config{}, fmt.Errorf("BALANCE_TOLERANCE must not be negative")
	}

	if err := parseDuration("SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if err := parseDuration("SETTLEMENT_RETRY_BASE", &cfg.RetryBaseDelay); err != nil {
		return Config{}, err
	}
	if err := parseDuration("SETTLEMENT_RETRY_MAX", &cfg.RetryMaxDelay); err != nil {
		return Config{}, err
	}
	if err := parseDuration("RETRY_POLL_INTERVAL", &cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if err := parseInt("OVERRIDE_MIN_JUSTIFICATION", &cfg.MinJustification); err != nil {
		return Config{}, err
	}
	if err := parseInt("SETTLEMENT_MAX_RETRIES", &cfg.MaxRetries); err != nil {
		return Config{}, err
	}
	if err := parseInt("SETTLEMENT_RETRY_WORKERS", &cfg.RetryWorkers); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("SETTLEMENT_RETRY_MULTIPLIER"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SETTLEMENT_RETRY_MULTIPLIER: %w", err)
		}
		cfg.RetryMultiplier = m
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func parseDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func parseInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
