// Package audit maintains per-thread hash-chained audit logs. Each entry's
// hash covers its content and the previous entry's hash, so any tampering
// with a stored entry breaks every later link and is detectable by
// independent verification without access to the storage layer.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gatekeep/internal/types"
)

// GenesisHash is the fixed previous_hash for the first entry on a thread.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Store persists audit entries. Implementations must return entries for a
// thread in append order.
type Store interface {
	Append(ctx context.Context, entry types.AuditEntry) error
	LastHash(ctx context.Context, threadID string) (string, error)
	Entries(ctx context.Context, threadID string) ([]types.AuditEntry, error)
}

// Chain appends hash-linked entries to per-thread audit logs. Appends to the
// same thread serialize on a per-thread mutex so two concurrent completions
// can never both read the same previous_hash.
type Chain struct {
	store  Store
	logger *zap.Logger

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// NewChain creates a chain manager over the given store.
func NewChain(store Store, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		store:   store,
		logger:  logger,
		threads: make(map[string]*sync.Mutex),
	}
}

func (c *Chain) threadLock(threadID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.threads[threadID]
	if !ok {
		m = &sync.Mutex{}
		c.threads[threadID] = m
	}
	return m
}

// Append records one entry on the thread's chain and returns it with its
// hash links filled in.
func (c *Chain) Append(ctx context.Context, threadID, runID, action, actor string) (types.AuditEntry, error) {
	lock := c.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	prev, err := c.store.LastHash(ctx, threadID)
	if err != nil {
		return types.AuditEntry{}, fmt.Errorf("failed to read chain tail for thread %s: %w", threadID, err)
	}
	if prev == "" {
		prev = GenesisHash
	}

	entry := types.AuditEntry{
		ID:         uuid.NewString(),
		ThreadID:   threadID,
		RunID:      runID,
		Action:     action,
		Actor:      actor,
		RecordedAt: time.Now().UTC(),
	}
	entry.ContentHash = ContentHash(entry)
	entry.HashChain = types.HashChainLink{
		PreviousHash: prev,
		CurrentHash:  LinkHash(entry.ContentHash, prev),
	}

	if err := c.store.Append(ctx, entry); err != nil {
		return types.AuditEntry{}, fmt.Errorf("failed to append audit entry: %w", err)
	}

	c.logger.Debug("audit entry appended",
		zap.String("thread_id", threadID),
		zap.String("run_id", runID),
		zap.String("action", action),
		zap.String("hash", entry.HashChain.CurrentHash))
	return entry, nil
}

// Entries returns a thread's entries in append order.
func (c *Chain) Entries(ctx context.Context, threadID string) ([]types.AuditEntry, error) {
	return c.store.Entries(ctx, threadID)
}

// ContentHash hashes the entry's content fields. The chain link fields are
// excluded; they are derived from this hash.
func ContentHash(e types.AuditEntry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%d",
		e.ID, e.ThreadID, e.RunID, e.Action, e.Actor, e.RecordedAt.UnixNano())
	return hex.EncodeToString(h.Sum(nil))
}

// LinkHash computes current_hash = H(content_hash || previous_hash).
func LinkHash(contentHash, previousHash string) string {
	h := sha256.New()
	h.Write([]byte(contentHash))
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyEntries checks a thread's chain without any storage access: each
// entry's content hash must match its fields, each link hash must match
// H(content || previous), and each previous_hash must equal the prior
// entry's current_hash (or the genesis value for the first entry).
// Returns the index of the first broken entry, or -1 if the chain is intact.
func VerifyEntries(entries []types.AuditEntry) (int, error) {
	prev := GenesisHash
	for i, e := range entries {
		if got := ContentHash(e); got != e.ContentHash {
			return i, fmt.Errorf("entry %d (%s): content hash mismatch", i, e.ID)
		}
		if e.HashChain.PreviousHash != prev {
			return i, fmt.Errorf("entry %d (%s): previous_hash %s does not match prior current_hash %s",
				i, e.ID, e.HashChain.PreviousHash, prev)
		}
		if got := LinkHash(e.ContentHash, e.HashChain.PreviousHash); got != e.HashChain.CurrentHash {
			return i, fmt.Errorf("entry %d (%s): current_hash mismatch", i, e.ID)
		}
		prev = e.HashChain.CurrentHash
	}
	return -1, nil
}
