// pkg/state/store_test.go
package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStore_LoadNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.Load(filepath.Join(t.TempDir(), "missing.md"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_LoadIOErrorIsDistinguishable(t *testing.T) {
	dir := t.TempDir()
	// A directory at the state path forces a read error that is not
	// absence.
	path := filepath.Join(dir, "state.md")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	_, err := store.Load(path)
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("I/O error must not be ErrNotFound: %v", err)
	}
}

func TestStore_SaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.md")
	store := NewStore()

	st := &LoopState{
		Goal:        "Ship v1",
		CurrentTask: "Fix bug",
		Status:      "validation passing",
	}
	if err := store.Save(path, st); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Goal != st.Goal || loaded.CurrentTask != st.CurrentTask || loaded.Status != st.Status {
		t.Errorf("loaded state %+v does not match saved %+v", loaded, st)
	}
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.md")
	store := NewStore()

	for i := 0; i < 5; i++ {
		if err := store.Save(path, &LoopState{Goal: "g"}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("expected only the state file, found %d entries", len(entries))
	}
}

func TestStore_SaveIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.md")
	store := NewStore()

	oldState := &LoopState{Goal: "old goal", Status: "old status"}
	if err := store.Save(path, oldState); err != nil {
		t.Fatal(err)
	}
	oldContent, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	newState := &LoopState{Goal: "new goal", Status: "new status"}
	newContent := Serialize(newState)

	// Simulate a crash between materializing the temp file and the rename:
	// the temp file exists but the commit never happened. A reader of path
	// must still see the old content in full.
	tmp, err := os.CreateTemp(dir, "state.md.tmp-*")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmp.WriteString(newContent[:len(newContent)/2]); err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(oldContent) {
		t.Error("reader observed partial or mixed state content")
	}

	// The completed commit replaces the content wholesale.
	if err := store.Save(path, newState); err != nil {
		t.Fatal(err)
	}
	got, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != newContent {
		t.Errorf("expected committed content %q, got %q", newContent, got)
	}
}

func TestStore_SaveIOError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission checks do not apply")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	store := NewStore()
	err := store.Save(filepath.Join(dir, "state.md"), &LoopState{Goal: "g"})
	if err == nil {
		t.Fatal("expected an I/O error")
	}
}

func TestStore_SaveCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop", "state.md")
	store := NewStore()
	if err := store.Save(path, &LoopState{Goal: "g"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file missing: %v", err)
	}
}
