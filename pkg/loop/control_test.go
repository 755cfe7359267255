// pkg/loop/control_test.go
package loop

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseControlConfig_ValidYAML(t *testing.T) {
	yaml := `
blocked_threshold: 10
validation_timeout: 90s
history_cap: 20
min_interval: 2s

guardrails:
  - action: deny
    pattern: "rm -rf"
    reason: "destructive delete"
  - action: deny
    pattern: "git push*"
    match: glob

override:
  paused: true
  reason: "maintenance window"
`
	cfg, err := ParseControlConfig([]byte(yaml))
	if err != nil {
		t.Fatalf("ParseControlConfig failed: %v", err)
	}

	if cfg.BlockedThreshold != 10 {
		t.Errorf("expected threshold 10, got %d", cfg.BlockedThreshold)
	}
	if cfg.ValidationTimeout.Std() != 90*time.Second {
		t.Errorf("expected timeout 90s, got %s", cfg.ValidationTimeout.Std())
	}
	if cfg.HistoryCap != 20 {
		t.Errorf("expected history cap 20, got %d", cfg.HistoryCap)
	}
	if cfg.MinInterval.Std() != 2*time.Second {
		t.Errorf("expected min interval 2s, got %s", cfg.MinInterval.Std())
	}
	if len(cfg.Guardrails) != 2 {
		t.Fatalf("expected 2 guardrail rules, got %d", len(cfg.Guardrails))
	}
	if cfg.Guardrails[0].Reason != "destructive delete" {
		t.Errorf("unexpected rule reason %q", cfg.Guardrails[0].Reason)
	}
	if !cfg.Override.Paused {
		t.Error("expected paused override")
	}
	if cfg.Override.Reason != "maintenance window" {
		t.Errorf("unexpected override reason %q", cfg.Override.Reason)
	}
}

func TestParseControlConfig_EmptyGetsDefaults(t *testing.T) {
	cfg, err := ParseControlConfig(nil)
	if err != nil {
		t.Fatalf("ParseControlConfig failed: %v", err)
	}
	if cfg.BlockedThreshold != DefaultBlockedThreshold {
		t.Errorf("expected default threshold %d, got %d", DefaultBlockedThreshold, cfg.BlockedThreshold)
	}
	if cfg.ValidationTimeout.Std() != DefaultValidationTimeout {
		t.Errorf("expected default timeout %s, got %s", DefaultValidationTimeout, cfg.ValidationTimeout.Std())
	}
	if cfg.HistoryCap != DefaultHistoryCap {
		t.Errorf("expected default history cap %d, got %d", DefaultHistoryCap, cfg.HistoryCap)
	}
}

func TestParseControlConfig_InvalidYAML(t *testing.T) {
	if _, err := ParseControlConfig([]byte("blocked_threshold: [not a number")); err == nil {
		t.Error("expected an error for invalid YAML")
	}
}

func TestParseControlConfig_InvalidDuration(t *testing.T) {
	if _, err := ParseControlConfig([]byte("validation_timeout: soon")); err == nil {
		t.Error("expected an error for an unparsable duration")
	}
}

func TestControlConfig_ValidateRejectsBadGuardrails(t *testing.T) {
	cfg, err := ParseControlConfig([]byte("guardrails:\n  - action: deny\n    pattern: \"(\"\n    match: regex\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to reject an uncompilable guardrail rule")
	}
}

func TestLoadControlConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop-control.yaml")
	if err := os.WriteFile(path, []byte("blocked_threshold: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadControlConfig(path)
	if err != nil {
		t.Fatalf("LoadControlConfig failed: %v", err)
	}
	if cfg.BlockedThreshold != 5 {
		t.Errorf("expected threshold 5, got %d", cfg.BlockedThreshold)
	}

	if _, err := LoadControlConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing control file")
	}
}
