// pkg/archive/archive.go
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS loop_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    iteration INTEGER NOT NULL,
    entry TEXT NOT NULL,
    archived_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_loop_history_run ON loop_history(run_id, id);

CREATE TABLE IF NOT EXISTS loop_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    iteration INTEGER NOT NULL,
    report_id TEXT NOT NULL,
    mode TEXT NOT NULL,
    passed BOOLEAN NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_loop_reports_run_iter ON loop_reports(run_id, iteration);
`

// Entry is one archived history line trimmed from the state document.
type Entry struct {
	ID         int64
	RunID      string
	Iteration  int
	Entry      string
	ArchivedAt time.Time
}

// ReportRecord is one full iteration report kept beyond the standalone
// artifact, which only ever holds the most recent copy.
type ReportRecord struct {
	ID        int64
	RunID     string
	Iteration int
	ReportID  string
	Mode      string
	Passed    bool
	Content   string
	CreatedAt time.Time
}

// Store is a SQLite-backed archive for history entries and reports that
// overflow the state document's size cap.
type Store struct {
	db *sql.DB
}

// Open creates or opens the archive database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("archive path required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveEntries archives trimmed history entries in order, oldest first.
func (s *Store) SaveEntries(ctx context.Context, runID string, iteration int, entries []string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("archive store not open")
	}
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO loop_history (run_id, iteration, entry, archived_at) VALUES (?, ?, ?, ?)`,
			runID, iteration, entry, now,
		); err != nil {
			return fmt.Errorf("insert history entry: %w", err)
		}
	}
	return tx.Commit()
}

// SaveReport archives one full iteration report.
func (s *Store) SaveReport(ctx context.Context, rec ReportRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("archive store not open")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loop_reports (run_id, iteration, report_id, mode, passed, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Iteration, rec.ReportID, rec.Mode, rec.Passed, rec.Content, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// ListEntries returns archived history entries for a run in archive order.
// A limit <= 0 returns everything.
func (s *Store) ListEntries(ctx context.Context, runID string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("archive store not open")
	}
	query := `SELECT id, run_id, iteration, entry, archived_at FROM loop_history WHERE run_id = ? ORDER BY id`
	args := []any{runID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Iteration, &e.Entry, &e.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastReport returns the most recently archived report for a run, or nil
// when none exists.
func (s *Store) LastReport(ctx context.Context, runID string) (*ReportRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("archive store not open")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, iteration, report_id, mode, passed, content, created_at
		 FROM loop_reports WHERE run_id = ? ORDER BY iteration DESC, id DESC LIMIT 1`,
		runID,
	)
	var rec ReportRecord
	err := row.Scan(&rec.ID, &rec.RunID, &rec.Iteration, &rec.ReportID, &rec.Mode, &rec.Passed, &rec.Content, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last report: %w", err)
	}
	return &rec, nil
}

// Prune removes archived rows older than the cutoff.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("archive store not open")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM loop_history WHERE archived_at < ?`, olderThan.UTC()); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM loop_reports WHERE created_at < ?`, olderThan.UTC()); err != nil {
		return fmt.Errorf("prune reports: %w", err)
	}
	return nil
}
