package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsEnvOnly(t *testing.T) {
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.Trading.CooldownPeriod() != 12*time.Hour {
		t.Fatalf("cooldown=%s", cfg.Trading.CooldownPeriod())
	}
	if cfg.Trading.MaxBuyRetries != 5 || cfg.Trading.MaxCloseRetries != 5 {
		t.Fatalf("retries=%d/%d", cfg.Trading.MaxBuyRetries, cfg.Trading.MaxCloseRetries)
	}
	if cfg.Trading.BuyRetryPercentage != 2 || cfg.Trading.MinimumCashBalance != 5 {
		t.Fatalf("trading=%+v", cfg.Trading)
	}
	if cfg.Broker.MaxAttempts != 3 || cfg.Broker.RetryDelay != 2*time.Second || cfg.Broker.Timeout != 30*time.Second {
		t.Fatalf("broker=%+v", cfg.Broker)
	}
	if cfg.Trading.CloseRetryInterval != 3*time.Second || cfg.Trading.PostBuyPause != 3*time.Second {
		t.Fatalf("pauses=%+v", cfg.Trading)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TH_TRADING_COOLDOWN_PERIOD_HOURS", "0.5")
	t.Setenv("TH_BROKER_DEFAULT_ENDPOINT", "http://broker.local/hook")
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.Trading.CooldownPeriod() != 30*time.Minute {
		t.Fatalf("cooldown=%s", cfg.Trading.CooldownPeriod())
	}
	if cfg.Broker.Endpoints["*"] != "http://broker.local/hook" {
		t.Fatalf("endpoints=%v", cfg.Broker.Endpoints)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
server:
  http_addr: ":9090"
broker:
  endpoints:
    alice: "http://alice.local/hook"
trading:
  max_buy_retries: 7
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.Server.HTTPAddr != ":9090" || cfg.Trading.MaxBuyRetries != 7 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Broker.Endpoints["alice"] != "http://alice.local/hook" {
		t.Fatalf("endpoints=%v", cfg.Broker.Endpoints)
	}
}
