// pkg/archive/archive_test.go
package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndListEntries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []string{
		"- Iteration 1: ENGINEERING mode, validation failed",
		"- Iteration 2: ENGINEERING mode, validation passed",
	}
	require.NoError(t, store.SaveEntries(ctx, "run-1", 52, entries))

	got, err := store.ListEntries(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Archive preserves the original order, oldest first.
	assert.Equal(t, entries[0], got[0].Entry)
	assert.Equal(t, entries[1], got[1].Entry)
	assert.Equal(t, 52, got[0].Iteration)
}

func TestStore_ListEntriesScopedToRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEntries(ctx, "run-a", 1, []string{"- a"}))
	require.NoError(t, store.SaveEntries(ctx, "run-b", 1, []string{"- b"}))

	got, err := store.ListEntries(ctx, "run-a", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "- a", got[0].Entry)
}

func TestStore_SaveEntriesEmptyIsNoop(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SaveEntries(context.Background(), "run-1", 1, nil))
	got, err := store.ListEntries(context.Background(), "run-1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_LastReport(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec, err := store.LastReport(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, store.SaveReport(ctx, ReportRecord{
		RunID: "run-1", Iteration: 1, ReportID: "r1", Mode: "ENGINEERING", Passed: false, Content: "first",
	}))
	require.NoError(t, store.SaveReport(ctx, ReportRecord{
		RunID: "run-1", Iteration: 2, ReportID: "r2", Mode: "CREATIVE", Passed: true, Content: "second",
	}))

	rec, err = store.LastReport(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Iteration)
	assert.Equal(t, "second", rec.Content)
	assert.True(t, rec.Passed)
}

func TestStore_Prune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEntries(ctx, "run-1", 1, []string{"- old"}))
	require.NoError(t, store.SaveReport(ctx, ReportRecord{
		RunID: "run-1", Iteration: 1, ReportID: "r1", Mode: "ENGINEERING", Content: "old",
	}))

	require.NoError(t, store.Prune(ctx, time.Now().Add(time.Hour)))

	entries, err := store.ListEntries(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	rec, err := store.LastReport(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}
