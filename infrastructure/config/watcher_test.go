package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-router/domain/config"
)

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.yaml")
	if err := os.WriteFile(path, []byte("name: first\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	changed := make(chan *config.RouterConfig, 4)
	w, err := NewWatcher(path, nil, func(c *config.RouterConfig) { changed <- c },
		WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if w.Current().Name != "first" {
		t.Fatalf("initial Name = %q", w.Current().Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("name: second\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changed:
		if c.Name != "second" {
			t.Errorf("reloaded Name = %q", c.Name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	if w.Current().Name != "second" {
		t.Errorf("Current().Name = %q", w.Current().Name)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "nope.yaml"), nil, nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}
