package infra

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
run:
  id: "t"
  symbol: "BTC-USDT"
  initial_cash: "100000"
  iterations: 2
  workers: 2
data:
  csv_path: "data/bars.csv"
simulator:
  path_policy: "WORST_CASE"
  participation_cap: "0.1"
strategy:
  short_period: 3
  long_period: 5
storage:
  path: "data/test.db"
logging:
  level: "debug"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Run.Symbol != "BTC-USDT" {
		t.Errorf("symbol lost: %s", cfg.Run.Symbol)
	}
	if !Dec(cfg.Simulator.ParticipationCap).Equal(Dec("0.1")) {
		t.Errorf("participation cap misparsed: %s", cfg.Simulator.ParticipationCap)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("BARSIM_CSV_PATH", "/tmp/override.csv")
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Data.CSVPath != "/tmp/override.csv" {
		t.Errorf("env override not applied: %s", cfg.Data.CSVPath)
	}
}

func TestValidateRejectsMissingSymbol(t *testing.T) {
	bad := `
run:
  initial_cash: "100000"
data:
  csv_path: "x.csv"
`
	if _, err := LoadConfig(writeConfig(t, bad)); err == nil {
		t.Error("expected error for missing symbol")
	}
}

func TestValidateRejectsNoDataSource(t *testing.T) {
	bad := `
run:
  symbol: "BTC-USDT"
  initial_cash: "100000"
`
	if _, err := LoadConfig(writeConfig(t, bad)); err == nil {
		t.Error("expected error for missing data source")
	}
}

func TestValidateRejectsBadDecimal(t *testing.T) {
	bad := `
run:
  symbol: "BTC-USDT"
  initial_cash: "lots"
data:
  csv_path: "x.csv"
`
	if _, err := LoadConfig(writeConfig(t, bad)); err == nil {
		t.Error("expected error for unparsable decimal")
	}
}

func TestValidateRejectsCapOutOfRange(t *testing.T) {
	bad := `
run:
  symbol: "BTC-USDT"
  initial_cash: "100000"
data:
  csv_path: "x.csv"
simulator:
  participation_cap: "1.5"
`
	if _, err := LoadConfig(writeConfig(t, bad)); err == nil {
		t.Error("expected error for cap above 1")
	}
}

func TestValidateRejectsInvertedPeriods(t *testing.T) {
	bad := `
run:
  symbol: "BTC-USDT"
  initial_cash: "100000"
data:
  csv_path: "x.csv"
strategy:
  short_period: 5
  long_period: 5
`
	if _, err := LoadConfig(writeConfig(t, bad)); err == nil {
		t.Error("expected error for short >= long period")
	}
}
