package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func watcherLogger() *log.Logger {
	return log.New(os.Stdout, "[watcher-test] ", log.LstdFlags)
}

func writeWatcherTestConfig(t *testing.T, path string, maxOpenPositions int, capital float64) {
	t.Helper()
	content := fmt.Sprintf(`{
		"use_paper": true,
		"capital": %f,
		"database_url": "postgres://test@localhost/test?sslmode=disable",
		"sizing": {"max_open_positions": %d}
	}`, capital, maxOpenPositions)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func setupWatcherEnv(t *testing.T) {
	t.Helper()
	t.Setenv("QF_KIS_PAPER_APP_KEY", "k")
	t.Setenv("QF_KIS_PAPER_APP_SECRET", "s")
	t.Setenv("QF_KIS_PAPER_ACCOUNT_NO", "a")
	t.Setenv("QF_KIS_PAPER_PRODUCT_CD", "01")
}

func TestConfigWatcher_DetectsChange(t *testing.T) {
	setupWatcherEnv(t)
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.json")

	writeWatcherTestConfig(t, cfgPath, 5, 500000)
	initial, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	watcher := NewConfigWatcher(cfgPath, initial, watcherLogger())

	changed := make(chan bool, 1)
	watcher.OnChange(func(old, new *Config) { changed <- true })

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(20 * time.Millisecond)
	writeWatcherTestConfig(t, cfgPath, 3, 500000)
	watcher.checkForChanges()

	select {
	case <-changed:
		current := watcher.Current()
		if current.Sizing.MaxOpenPositions != 3 {
			t.Errorf("expected MaxOpenPositions=3, got %d", current.Sizing.MaxOpenPositions)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for config change notification")
	}
}

func TestConfigWatcher_IgnoresInvalidConfig(t *testing.T) {
	setupWatcherEnv(t)
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.json")

	writeWatcherTestConfig(t, cfgPath, 5, 500000)
	initial, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	watcher := NewConfigWatcher(cfgPath, initial, watcherLogger())

	changed := make(chan bool, 1)
	watcher.OnChange(func(old, new *Config) { changed <- true })

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(20 * time.Millisecond)
	os.WriteFile(cfgPath, []byte("not valid json"), 0644)
	watcher.checkForChanges()

	select {
	case <-changed:
		t.Error("should NOT fire callback for invalid JSON")
	case <-time.After(100 * time.Millisecond):
	}

	current := watcher.Current()
	if current.Sizing.MaxOpenPositions != 5 {
		t.Errorf("expected original MaxOpenPositions=5, got %d", current.Sizing.MaxOpenPositions)
	}
}

func TestConfigWatcher_IgnoresNonSizingChanges(t *testing.T) {
	setupWatcherEnv(t)
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.json")

	writeWatcherTestConfig(t, cfgPath, 5, 500000)
	initial, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	watcher := NewConfigWatcher(cfgPath, initial, watcherLogger())

	changed := make(chan bool, 1)
	watcher.OnChange(func(old, new *Config) { changed <- true })

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(20 * time.Millisecond)
	writeWatcherTestConfig(t, cfgPath, 5, 1000000) // non-sizing field only
	watcher.checkForChanges()

	select {
	case <-changed:
		t.Error("should NOT fire callback for non-sizing changes")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSizingChanged(t *testing.T) {
	base := DefaultSizing()

	if sizingChanged(base, base) {
		t.Error("identical sizing configs should not be flagged as changed")
	}

	modified := base
	modified.MaxOpenPositions = 3
	if !sizingChanged(base, modified) {
		t.Error("should detect MaxOpenPositions change")
	}

	modified2 := base
	modified2.TrailingStopPct = 0.05
	if !sizingChanged(base, modified2) {
		t.Error("should detect TrailingStopPct change")
	}
}

func TestConfigWatcher_StopIdempotent(t *testing.T) {
	setupWatcherEnv(t)
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.json")
	writeWatcherTestConfig(t, cfgPath, 5, 500000)
	initial, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	watcher := NewConfigWatcher(cfgPath, initial, watcherLogger())
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	watcher.Stop()
	watcher.Stop()
	watcher.Stop()
}
