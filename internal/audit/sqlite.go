package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"gatekeep/internal/types"
)

// SQLiteStore persists audit chains in SQLite. The seq column preserves
// append order per thread; chain hashes are stored verbatim so verification
// can run against exactly what was written.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) an audit database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		thread_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		previous_hash TEXT NOT NULL,
		current_hash TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_thread ON audit_entries(thread_id, seq);
	CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_entries(run_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create audit_entries table: %w", err)
	}
	return nil
}

// Append inserts one entry.
func (s *SQLiteStore) Append(ctx context.Context, e types.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries
		 (id, thread_id, run_id, action, actor, content_hash, previous_hash, current_hash, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ThreadID, e.RunID, e.Action, e.Actor,
		e.ContentHash, e.HashChain.PreviousHash, e.HashChain.CurrentHash,
		e.RecordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// LastHash returns the newest current_hash for the thread, or "" if none.
func (s *SQLiteStore) LastHash(ctx context.Context, threadID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT current_hash FROM audit_entries WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`,
		threadID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query chain tail: %w", err)
	}
	return hash, nil
}

// Entries returns the thread's entries in append order.
func (s *SQLiteStore) Entries(ctx context.Context, threadID string) ([]types.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, run_id, action, actor, content_hash, previous_hash, current_hash, recorded_at
		 FROM audit_entries WHERE thread_id = ? ORDER BY seq ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var out []types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var recordedAt int64
		if err := rows.Scan(&e.ID, &e.ThreadID, &e.RunID, &e.Action, &e.Actor,
			&e.ContentHash, &e.HashChain.PreviousHash, &e.HashChain.CurrentHash, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.RecordedAt = time.Unix(0, recordedAt).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
