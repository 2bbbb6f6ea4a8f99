package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr = %s", cfg.Server.Addr)
	}
	if cfg.Limits.MaxRawBytes != 10000 || cfg.Limits.WindowBytes != 500 ||
		cfg.Limits.PatternCap != 500 || cfg.Limits.VectorCap != 1000 {
		t.Fatalf("unexpected limit defaults: %+v", cfg.Limits)
	}
	if cfg.Budgets.TotalSoftMs != 5000 || cfg.Budgets.TotalHardMs != 15000 ||
		cfg.Budgets.PatternMs != 500 || cfg.Budgets.EncodeMs != 3000 || cfg.Budgets.ReasonMs != 15000 {
		t.Fatalf("unexpected budget defaults: %+v", cfg.Budgets)
	}
	if cfg.Thresholds.Security != 0.65 || cfg.Thresholds.Content != 0.70 ||
		cfg.Thresholds.Tier2Certain != 0.78 || cfg.Thresholds.EscalationLow != 0.60 ||
		cfg.Thresholds.GrayLow != 0.30 || cfg.Thresholds.GrayHigh != 0.85 {
		t.Fatalf("unexpected threshold defaults: %+v", cfg.Thresholds)
	}
	if cfg.Cache.DecisionSize != 10000 {
		t.Fatalf("unexpected cache default: %+v", cfg.Cache)
	}
	if cfg.Tiers.Tier3Inflight != 4 {
		t.Fatalf("unexpected tier3 inflight default: %d", cfg.Tiers.Tier3Inflight)
	}
}

func TestLoadParsesAndFillsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vanguard.yaml")
	doc := `
server:
  addr: ":9090"
limits:
  max_raw_bytes: 2048
tiers:
  tier2_enabled: true
encoder:
  type: fake
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr not parsed: %s", cfg.Server.Addr)
	}
	if cfg.Limits.MaxRawBytes != 2048 {
		t.Fatalf("max_raw_bytes not parsed: %d", cfg.Limits.MaxRawBytes)
	}
	// Unspecified values pick up defaults.
	if cfg.Limits.PatternCap != 500 || cfg.Budgets.TotalSoftMs != 5000 {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Limits, cfg.Budgets)
	}
	if !cfg.Tiers.Tier2Enabled {
		t.Fatal("tier2 flag not parsed")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VANGUARD_MAX_RAW_BYTES", "4096")
	t.Setenv("VANGUARD_TOTAL_SOFT_MS", "2500")
	t.Setenv("VANGUARD_POLICY_PATH", "/tmp/p.yaml")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.MaxRawBytes != 4096 {
		t.Fatalf("env override missing: %d", cfg.Limits.MaxRawBytes)
	}
	if cfg.Budgets.TotalSoftMs != 2500 {
		t.Fatalf("env override missing: %d", cfg.Budgets.TotalSoftMs)
	}
	if cfg.Policy.Path != "/tmp/p.yaml" {
		t.Fatalf("env override missing: %s", cfg.Policy.Path)
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("VANGUARD_MAX_RAW_BYTES", "not-a-number")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.MaxRawBytes != 10000 {
		t.Fatalf("garbage env value should keep default, got %d", cfg.Limits.MaxRawBytes)
	}
}
