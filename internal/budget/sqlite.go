package budget

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
)

// SQLiteLedger persists balances and per-run debits. Debits run in a single
// transaction: the unique run_id row and the balance update commit together,
// so a retried completion observes the existing debit row and no-ops.
type SQLiteLedger struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteLedger opens (or creates) a ledger database at dbPath.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	l := &SQLiteLedger{db: db, dbPath: dbPath}
	if err := l.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return l, nil
}

func (l *SQLiteLedger) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS balances (
		requester_id TEXT PRIMARY KEY,
		balance REAL NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS debits (
		run_id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		amount REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create ledger tables: %w", err)
	}
	return nil
}

// Balance returns the requester's current spendable amount. Unknown
// requesters have a zero balance.
func (l *SQLiteLedger) Balance(ctx context.Context, requesterID string) (float64, error) {
	var balance float64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE requester_id = ?`, requesterID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query balance: %w", err)
	}
	return balance, nil
}

// Credit adds funds to the requester's balance.
func (l *SQLiteLedger) Credit(ctx context.Context, requesterID string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be >= 0, got %f", amount)
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO balances (requester_id, balance) VALUES (?, ?)
		 ON CONFLICT(requester_id) DO UPDATE SET balance = balance + excluded.balance`,
		requesterID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", requesterID, err)
	}
	return nil
}

// Debit atomically charges the requester for a run's actual usage. A second
// debit with the same run id is a no-op.
func (l *SQLiteLedger) Debit(ctx context.Context, requesterID string, amount float64, runID string) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be >= 0, got %f", amount)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin debit transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO debits (run_id, requester_id, amount) VALUES (?, ?, ?)`,
		runID, requesterID, amount); err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil // already debited for this run
		}
		return fmt.Errorf("failed to record debit: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE balances SET balance = balance - ? WHERE requester_id = ? AND balance >= ?`,
		amount, requesterID, amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check balance update: %w", err)
	}
	if affected == 0 {
		balance, _ := l.Balance(ctx, requesterID)
		return fmt.Errorf("%w: balance %.2f, required %.2f", ErrInsufficientFunds, balance, amount)
	}

	return tx.Commit()
}

// Close releases the database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
