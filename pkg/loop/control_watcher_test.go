// pkg/loop/control_watcher_test.go
package loop

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeControl(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestControlWatcher_StartLoadsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop-control.yaml")
	writeControl(t, path, "blocked_threshold: 7\n")

	w := NewControlWatcher(path, 10*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	cfg := w.Config()
	if cfg == nil || cfg.BlockedThreshold != 7 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestControlWatcher_StartFailsOnMissingFile(t *testing.T) {
	w := NewControlWatcher(filepath.Join(t.TempDir(), "missing.yaml"), 10*time.Millisecond)
	if err := w.Start(); err == nil {
		t.Fatal("expected Start to fail for a missing file")
	}
}

func TestControlWatcher_HotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop-control.yaml")
	writeControl(t, path, "override:\n  paused: false\n")

	w := NewControlWatcher(path, 10*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeControl(t, path, "override:\n  paused: true\n  reason: \"manual hold\"\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cfg := w.Config(); cfg != nil && cfg.Override.Paused {
			if cfg.Override.Reason != "manual hold" {
				t.Errorf("unexpected reason %q", cfg.Override.Reason)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("watcher never picked up the control file change")
}

func TestControlWatcher_KeepsLastGoodConfigOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop-control.yaml")
	writeControl(t, path, "blocked_threshold: 7\n")

	w := NewControlWatcher(path, 10*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeControl(t, path, "blocked_threshold: [broken\n")

	// Give the poller a few cycles; the last good config must survive.
	time.Sleep(100 * time.Millisecond)
	cfg := w.Config()
	if cfg == nil || cfg.BlockedThreshold != 7 {
		t.Fatalf("expected last good config to survive, got %+v", cfg)
	}
}

func TestControlWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop-control.yaml")
	writeControl(t, path, "")

	w := NewControlWatcher(path, 10*time.Millisecond)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
