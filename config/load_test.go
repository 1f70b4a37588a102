package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
env: dev
symbol: XRPUSDC
baseCurrency: XRP
quoteCurrency: USDC
grid:
  spacing: 0.01
  levels: 5
  amount: 50
gateway:
  baseURL: https://api.test
  apiKey: foo
  apiSecret: bar
`

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Symbol != "XRPUSDC" || cfg.Gateway.APIKey != "foo" {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	if cfg.Grid.Spacing != 0.01 || cfg.Grid.Levels != 5 {
		t.Fatalf("grid params not parsed: %+v", cfg.Grid)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Grid.MaxOpenOrders != 10 {
		t.Fatalf("maxOpenOrders default = %d, want 2*levels", cfg.Grid.MaxOpenOrders)
	}
	if cfg.Engine.IntervalSec != 30 || cfg.Engine.SnapshotPath != "grid-state.json" {
		t.Fatalf("engine defaults not applied: %+v", cfg.Engine)
	}
	if cfg.Engine.CancelConfirmAttempts != 5 || cfg.Engine.CancelConfirmDelayMs != 2000 {
		t.Fatalf("cancel confirm defaults not applied: %+v", cfg.Engine)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log level default = %q", cfg.Log.Level)
	}
}

func TestLoadRejectsBadGeometry(t *testing.T) {
	for name, mutation := range map[string]string{
		"zero spacing": `
env: dev
symbol: XRPUSDC
baseCurrency: XRP
quoteCurrency: USDC
grid:
  spacing: 0
  levels: 5
  amount: 50
gateway:
  baseURL: https://api.test
  apiKey: foo
  apiSecret: bar
`,
		"no levels": `
env: dev
symbol: XRPUSDC
baseCurrency: XRP
quoteCurrency: USDC
grid:
  spacing: 0.01
  levels: 0
  amount: 50
gateway:
  baseURL: https://api.test
  apiKey: foo
  apiSecret: bar
`,
		"missing credentials": `
env: dev
symbol: XRPUSDC
baseCurrency: XRP
quoteCurrency: USDC
grid:
  spacing: 0.01
  levels: 5
  amount: 50
gateway:
  baseURL: https://api.test
`,
	} {
		path := writeTempConfig(t, mutation)
		if _, err := Load(path); err == nil {
			t.Fatalf("case %q: expected validation error", name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
symbol: XRPUSDC
baseCurrency: XRP
quoteCurrency: USDC
grid:
  spacing: 0.01
  levels: 5
  amount: 50
gateway:
  baseURL: https://api.test
  apiKey: file-key
  apiSecret: file-secret
`)
	t.Setenv("GRID_API_KEY", "env-key")
	t.Setenv("GRID_API_SECRET", "env-secret")

	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.APIKey != "env-key" || cfg.Gateway.APISecret != "env-secret" {
		t.Fatalf("env overrides not applied: %+v", cfg.Gateway)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
