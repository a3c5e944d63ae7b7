// Package budget implements the ledger the pipeline consults for balance
// checks and charges against actual usage. The balance read at the budget
// verification gate is advisory; the authoritative deduction happens against
// actual consumption after execution, keyed by run id so retried completions
// never double-charge.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInsufficientFunds is returned by Debit when the requester's balance
// cannot cover the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// MemoryLedger is an in-process ledger for tests and single-node use.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]float64
	debits   map[string]bool // run_id -> already debited
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]float64),
		debits:   make(map[string]bool),
	}
}

// Balance returns the requester's current spendable amount.
func (l *MemoryLedger) Balance(_ context.Context, requesterID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[requesterID], nil
}

// Credit adds funds to the requester's balance.
func (l *MemoryLedger) Credit(_ context.Context, requesterID string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be >= 0, got %f", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[requesterID] += amount
	return nil
}

// Debit atomically charges the requester for a run's actual usage. A second
// debit with the same run id is a no-op.
func (l *MemoryLedger) Debit(_ context.Context, requesterID string, amount float64, runID string) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be >= 0, got %f", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debits[runID] {
		return nil
	}
	if l.balances[requesterID] < amount {
		return fmt.Errorf("%w: balance %.2f, required %.2f", ErrInsufficientFunds, l.balances[requesterID], amount)
	}
	l.balances[requesterID] -= amount
	l.debits[runID] = true
	return nil
}
