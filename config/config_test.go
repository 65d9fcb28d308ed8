package config

import (
	"os"
	"testing"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalYAML = `marketfeed:
  name: "TestApp"
  version: "1.0"
symbols:
  - btcusdt
  - ETHUSDT
exchange:
  ws_url: "wss://example.com/v5/public/linear"
  rest_url: "https://example.com"
`

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Stream.TopicBatchSize != 8 {
		t.Errorf("topic batch size default = %d, want 8", cfg.Stream.TopicBatchSize)
	}
	if cfg.RateLimit.WindowMs != 5000 {
		t.Errorf("rate window default = %d, want 5000", cfg.RateLimit.WindowMs)
	}
	if cfg.Cache.BudgetsMs.Ticker != 60_000 {
		t.Errorf("ticker budget default = %d, want 60000", cfg.Cache.BudgetsMs.Ticker)
	}
	if cfg.Cache.Timeframes.Long != "240" {
		t.Errorf("long timeframe default = %q, want 240", cfg.Cache.Timeframes.Long)
	}
	if cfg.Symbols[0] != "BTCUSDT" {
		t.Errorf("symbols not upper-cased: %v", cfg.Symbols)
	}
}

func TestLoadConfigNoSymbols(t *testing.T) {
	path := writeTempConfig(t, `exchange:
  ws_url: "wss://example.com"
  rest_url: "https://example.com"
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing symbols")
	}
}

func TestLoadConfigDuplicateSymbols(t *testing.T) {
	path := writeTempConfig(t, `symbols: [BTCUSDT, btcusdt]
exchange:
  ws_url: "wss://example.com"
  rest_url: "https://example.com"
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for duplicate symbols")
	}
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("MF_WS_URL", "wss://env.example.com/ws")
	path := writeTempConfig(t, `symbols: [BTCUSDT]
exchange:
  ws_url: "${MF_WS_URL}"
  rest_url: "https://example.com"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Exchange.WsURL != "wss://env.example.com/ws" {
		t.Errorf("env expansion failed: %q", cfg.Exchange.WsURL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/cfg.yml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
