// Package config - watcher.go provides config file hot-reload support.
//
// The watcher polls the config file for changes (stat-based, every 5
// seconds) and notifies registered callbacks when the sizing/exit-policy
// parameters change. Broker credentials, database URL, and USE_PAPER
// require an engine restart — only the tunable SizingConfig is reloadable.
package config

import (
	"log"
	"os"
	"sync"
	"time"
)

// ConfigWatcher monitors the config file for changes and invokes callbacks
// when sizing-related fields change. It uses stat-based polling (no
// external dependency like fsnotify required).
type ConfigWatcher struct {
	path     string
	logger   *log.Logger
	mu       sync.RWMutex
	current  *Config
	lastMod  time.Time
	onChange []func(old, new *Config)
	done     chan struct{}
	stopped  bool
}

// NewConfigWatcher creates a watcher for the given config file path.
// initial is the currently loaded config. The watcher does not start
// until Start() is called.
func NewConfigWatcher(path string, initial *Config, logger *log.Logger) *ConfigWatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &ConfigWatcher{
		path:    path,
		logger:  logger,
		current: initial,
		done:    make(chan struct{}),
	}
}

// OnChange registers a callback invoked when the config file changes and
// the new config passes validation and its sizing params actually
// differ. Multiple callbacks may be registered.
func (w *ConfigWatcher) OnChange(fn func(old, new *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins polling the config file for changes. Returns an error if
// the initial file stat fails.
func (w *ConfigWatcher) Start() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	w.lastMod = info.ModTime()
	w.logger.Printf("[config-watcher] watching %s for changes (poll interval: 5s)", w.path)

	go w.pollLoop()
	return nil
}

// Stop stops the config watcher. Safe to call multiple times.
func (w *ConfigWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.done)
		w.logger.Println("[config-watcher] stopped")
	}
}

// Current returns the most recently loaded valid config.
func (w *ConfigWatcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *ConfigWatcher) pollLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

func (w *ConfigWatcher) checkForChanges() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Printf("[config-watcher] stat error: %v", err)
		return
	}

	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	newCfg, err := Load(w.path)
	if err != nil {
		w.logger.Printf("[config-watcher] reload error (keeping old config): %v", err)
		return
	}

	w.mu.RLock()
	oldCfg := w.current
	w.mu.RUnlock()

	if !sizingChanged(oldCfg.Sizing, newCfg.Sizing) {
		w.logger.Printf("[config-watcher] file changed but sizing config unchanged, skipping")
		return
	}

	w.logSizingChanges(oldCfg.Sizing, newCfg.Sizing)

	w.mu.Lock()
	w.current = newCfg
	callbacks := make([]func(old, new *Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(oldCfg, newCfg)
	}
}

func sizingChanged(old, new SizingConfig) bool {
	return old != new
}

func (w *ConfigWatcher) logSizingChanges(old, new SizingConfig) {
	if old.BaseFraction != new.BaseFraction {
		w.logger.Printf("[config-watcher] base_fraction: %.2f -> %.2f", old.BaseFraction, new.BaseFraction)
	}
	if old.MaxOpenPositions != new.MaxOpenPositions {
		w.logger.Printf("[config-watcher] max_open_positions: %d -> %d", old.MaxOpenPositions, new.MaxOpenPositions)
	}
	if old.DailyLossLimitPct != new.DailyLossLimitPct {
		w.logger.Printf("[config-watcher] daily_loss_limit_pct: %.2f -> %.2f", old.DailyLossLimitPct, new.DailyLossLimitPct)
	}
	if old.TrailingStopPct != new.TrailingStopPct {
		w.logger.Printf("[config-watcher] trailing_stop_pct: %.3f -> %.3f", old.TrailingStopPct, new.TrailingStopPct)
	}
	if old.TakeProfitPct != new.TakeProfitPct {
		w.logger.Printf("[config-watcher] take_profit_pct: %.3f -> %.3f", old.TakeProfitPct, new.TakeProfitPct)
	}
}
