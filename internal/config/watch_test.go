package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, zerolog.Nop(), func(cfg *Config) { changes <- cfg })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(Path(dir), []byte(`{"fetch_mode": "strict"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.FetchMode != FetchModeStrict {
			t.Errorf("FetchMode = %q, want %q", cfg.FetchMode, FetchModeStrict)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config change delivered")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent/adsift-test-dir", zerolog.Nop(), func(*Config) {})
	if err == nil {
		t.Fatal("Watch() expected error for missing directory")
	}
}
