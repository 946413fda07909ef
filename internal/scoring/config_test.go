package scoring

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadConfigFileEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfigFile("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadConfigFilePartialOverride(t *testing.T) {
	path := writeConfigFile(t, `
industryPerf:
  enabled: true
  weight: 70
conversion:
  enabled: true
  weight: 30
avgDeal:
  enabled: false
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IndustryPerf.Weight != 70 || cfg.Conversion.Weight != 30 {
		t.Fatalf("weights = %+v", cfg)
	}
	if cfg.AvgDeal.Enabled {
		t.Fatal("avgDeal must be disabled")
	}
	// Untouched sections keep their defaults.
	def := DefaultConfig()
	if cfg.HotStreak != def.HotStreak || cfg.ResponseCeilingMinutes != def.ResponseCeilingMinutes {
		t.Fatalf("defaults not preserved: %+v", cfg)
	}
}

func TestLoadConfigFileRejectsBadCeilings(t *testing.T) {
	path := writeConfigFile(t, "avgDealCeiling: -100\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("negative ceiling must be rejected")
	}
}

func TestLoadConfigFileMissingFile(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must error")
	}
}
