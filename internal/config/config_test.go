package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/velox_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppName != "VeloxLedger" || cfg.Port != "8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.BalanceTolerance.Equal(mustDecimal(t, "0.01")) {
		t.Fatalf("tolerance = %s", cfg.BalanceTolerance)
	}
	if cfg.MaxRetries != 5 || cfg.RetryBaseDelay != 30*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/velox_test")
	t.Setenv("PORT", "9090")
	t.Setenv("BALANCE_TOLERANCE", "0.001")
	t.Setenv("SETTLEMENT_MAX_RETRIES", "7")
	t.Setenv("SETTLEMENT_RETRY_BASE", "5s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("address = %q", cfg.Address())
	}
	if !cfg.BalanceTolerance.Equal(mustDecimal(t, "0.001")) {
		t.Fatalf("tolerance = %s", cfg.BalanceTolerance)
	}
	if cfg.MaxRetries != 7 || cfg.RetryBaseDelay != 5*time.Second {
		t.Fatalf("retry overrides not applied: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level not normalized: %q", cfg.LogLevel)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"BALANCE_TOLERANCE":           "abc",
		"SETTLEMENT_RETRY_BASE":       "soon",
		"SETTLEMENT_MAX_RETRIES":      "many",
		"SETTLEMENT_RETRY_MULTIPLIER": "x2",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/velox_test")
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%q accepted", key, val)
			}
		})
	}
}
