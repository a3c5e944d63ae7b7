package config

import (
	"context"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/gatekeep.yaml"

	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, cfg, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounceDur = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	updated := DefaultConfig()
	updated.Scope.MaxDomains = 9
	if err := updated.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case c := <-reloaded:
		if c.Scope.MaxDomains != 9 {
			t.Fatalf("reloaded MaxDomains = %d, want 9", c.Scope.MaxDomains)
		}
		if w.Current().Scope.MaxDomains != 9 {
			t.Fatal("Current must reflect the reload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config reload never fired")
	}
}

func TestWatcherKeepsPreviousConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/gatekeep.yaml"

	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w, err := NewWatcher(path, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounceDur = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// An invalid file must not replace the running config.
	bad := DefaultConfig()
	bad.Scope.MaxDomains = 0
	if err := bad.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	w.reload()
	if w.Current().Scope.MaxDomains != cfg.Scope.MaxDomains {
		t.Fatal("invalid config must not replace the previous one")
	}
}
