// pkg/state/store.go
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound reports that the state file does not exist. Callers recover
// from it by starting from a default empty state; any other load error is an
// I/O failure.
var ErrNotFound = errors.New("state file not found")

// Store reads and writes loop state documents. It assumes single-writer
// discipline; the loop controller is the only writer.
type Store struct{}

// NewStore creates a state store.
func NewStore() *Store {
	return &Store{}
}

// Load reads and parses the state document at path. A missing file returns
// ErrNotFound; any other read error is returned wrapped. Parsing itself
// never fails.
func (s *Store) Load(path string) (*LoopState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}
	return Parse(string(data)), nil
}

// Save atomically writes the state document at path. The content is fully
// materialized in a temp file in the same directory, synced, then renamed
// over path, so a reader never observes a partial state.
func (s *Store) Save(path string, st *LoopState) error {
	return atomicWrite(path, []byte(Serialize(st)))
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting state file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("committing state file %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic exposes the same all-or-nothing commit used for state
// documents, for callers that persist sibling artifacts (reports) next to
// the state file.
func WriteFileAtomic(path string, data []byte) error {
	return atomicWrite(path, data)
}
