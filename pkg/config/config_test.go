package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  addr: ":9000"
risk:
  daily_loss_ratio: 0.08
  max_trades_per_day: 5
execution:
  max_order_size: 50000
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RISKCORE_MAX_TRADES_PER_DAY", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Risk.DailyLossRatio != 0.08 {
		t.Errorf("DailyLossRatio = %v", cfg.Risk.DailyLossRatio)
	}
	// 环境变量覆盖文件
	if cfg.Risk.MaxTradesPerDay != 7 {
		t.Errorf("MaxTradesPerDay = %d, want 7", cfg.Risk.MaxTradesPerDay)
	}
	if cfg.Execution.MaxOrderSize != 50000 {
		t.Errorf("MaxOrderSize = %v", cfg.Execution.MaxOrderSize)
	}
}

func TestLoadMissingFileIsDefault(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.TradeDB != "data/trades.db" {
		t.Errorf("TradeDB = %q", cfg.Store.TradeDB)
	}
}
