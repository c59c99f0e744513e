package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
policy:
  version: "1.0"
  quality:
    weights:
      completeness: 0.3
      validity: 0.3
      consistency: 0.2
      timeliness: 0.2
    critical_failure_threshold: 0.20
    minimum_for_scoring: 0.80
  gates:
    edge_winner:
      threshold: 0.05
      description: "minimum edge on winner markets"
    edge_over_under:
      threshold: 0.03
      description: "minimum edge on over/under markets"
    confidence:
      threshold: 0.60
      description: "minimum model confidence"
    drift:
      threshold: 0.10
      description: "maximum tolerated drift"
    warn_margin: 0.01
  hard_stops:
    daily_loss_cap:
      value: 500
      unit: "usd"
    max_consecutive_losses:
      count: 3
    max_drawdown:
      percent: 0.15
      window_days: 30
    manual_halt:
      enabled: false
    daily_cutover: "00:00"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML), false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Policy.Gates.EdgeWinner.Threshold != 0.05 {
		t.Fatalf("edge_winner threshold=%v want=0.05", cfg.Policy.Gates.EdgeWinner.Threshold)
	}
	if cfg.Policy.HardStops.MaxConsecutiveLosses.Count != 3 {
		t.Fatalf("max_consecutive_losses=%d want=3", cfg.Policy.HardStops.MaxConsecutiveLosses.Count)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("http_addr=%q want default :8080", cfg.Server.HTTPAddr)
	}
}

func TestLoad_MissingThresholdFailsClosed(t *testing.T) {
	body := strings.Replace(validYAML, "    confidence:\n      threshold: 0.60\n      description: \"minimum model confidence\"\n", "", 1)
	_, err := Load(writeConfig(t, body), false)
	if err == nil {
		t.Fatal("load succeeded with missing confidence gate")
	}
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err=%v want ErrConfigInvalid", err)
	}
	if !strings.Contains(err.Error(), "policy.gates.confidence.threshold") {
		t.Fatalf("err=%v want mention of missing key", err)
	}
}

func TestLoad_OutOfRangeFails(t *testing.T) {
	body := strings.Replace(validYAML, "critical_failure_threshold: 0.20", "critical_failure_threshold: 1.20", 1)
	_, err := Load(writeConfig(t, body), false)
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err=%v want ErrConfigInvalid", err)
	}
}

func TestLoad_MinimumBelowCriticalFails(t *testing.T) {
	body := strings.Replace(validYAML, "minimum_for_scoring: 0.80", "minimum_for_scoring: 0.10", 1)
	_, err := Load(writeConfig(t, body), false)
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err=%v want ErrConfigInvalid", err)
	}
}

func TestLoad_ZeroConsecutiveLossesFails(t *testing.T) {
	body := strings.Replace(validYAML, "count: 3", "count: 0", 1)
	_, err := Load(writeConfig(t, body), false)
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("err=%v want ErrConfigInvalid", err)
	}
}

func TestParseCutover(t *testing.T) {
	d, err := ParseCutover("04:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d != 4*time.Hour+30*time.Minute {
		t.Fatalf("d=%v want 4h30m", d)
	}
	if _, err := ParseCutover("25:00"); err == nil {
		t.Fatal("parse accepted 25:00")
	}
}
