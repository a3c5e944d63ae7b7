package audit

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	chain := NewChain(store, nil)
	ctx := context.Background()

	a, err := chain.Append(ctx, "thread-1", "run-a", "run completed: create", "user-1")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	b, err := chain.Append(ctx, "thread-1", "run-b", "run completed: read", "user-1")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := store.Entries(ctx, "thread-1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ID != a.ID || entries[1].ID != b.ID {
		t.Fatal("entries must come back in append order")
	}
	if idx, err := VerifyEntries(entries); idx != -1 {
		t.Fatalf("persisted chain broken at %d: %v", idx, err)
	}

	last, err := store.LastHash(ctx, "thread-1")
	if err != nil {
		t.Fatalf("LastHash: %v", err)
	}
	if last != b.HashChain.CurrentHash {
		t.Fatalf("LastHash = %s, want %s", last, b.HashChain.CurrentHash)
	}

	if last, err = store.LastHash(ctx, "no-such-thread"); err != nil || last != "" {
		t.Fatalf("LastHash for unknown thread = (%q, %v), want empty", last, err)
	}
}
