package watcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nitinkhare/quantumflow/internal/state"
)

// RecoveryState is the post-Risk-Off state machine's current state
// (spec §4.7.3: NONE → WATCHING → RECOVERED).
type RecoveryState string

const (
	RecoveryNone      RecoveryState = "NONE"
	RecoveryWatching  RecoveryState = "WATCHING"
	RecoveryRecovered RecoveryState = "RECOVERED"
)

const (
	watchingAfter       = 30 * time.Minute
	recheckDelay        = 60 * time.Second
	maxDailyReEntries   = 3
	recoveredPctOverride = 0.6
)

// MacroSource samples the current macro snapshot. Production wires this
// to whatever free data sources feed VIX/KOSPI/FX/top-cap breadth; tests
// supply a canned sequence.
type MacroSource interface {
	Sample(ctx context.Context) (MacroSnapshot, error)
}

// Adjudicator is the external LLM adjudication call used for both the
// initial Risk-Off decision and the recovery confirmation.
type Adjudicator interface {
	AdjudicateRiskOff(ctx context.Context, triggers []Trigger) (bool, error)
	ConfirmStabilized(ctx context.Context) (bool, error)
}

// Notifier is the subset of the outbound notification interface the
// watcher needs for its critical Risk-Off alert.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Watcher runs the independent macro-trigger loop and owns the recovery
// state machine. It writes RiskParams' risk_off-adjacent fields
// (risk_level, emergency_liquidate, pyramiding_allowed,
// position_pct_override) — the strategist only reads them. cmd/engine
// also raises risk_level and clears pyramiding_allowed when its circuit
// breaker trips.
type Watcher struct {
	store       *state.Store
	source      MacroSource
	adjudicator Adjudicator
	notifier    Notifier
	logger      *zap.Logger

	sleep func(time.Duration) // overridable for tests

	mu             sync.Mutex
	recoveryState  RecoveryState
	riskOffAt      time.Time
	reEntriesToday int
	locked         bool // true once 3 re-entries used up: stays Risk-Off rest of session
}

// New builds a Watcher.
func New(store *state.Store, source MacroSource, adjudicator Adjudicator, notifier Notifier, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		store:         store,
		source:        source,
		adjudicator:   adjudicator,
		notifier:      notifier,
		logger:        logger,
		sleep:         time.Sleep,
		recoveryState: RecoveryNone,
	}
}

// ResetDaily clears the re-entry counter and session lock. Called at
// pre-open, alongside state.Store.ResetDailyCounters.
func (w *Watcher) ResetDaily() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reEntriesToday = 0
	w.locked = false
	w.recoveryState = RecoveryNone
	w.riskOffAt = time.Time{}
}

// RecoveryState returns the current recovery state (for status/debug).
func (w *Watcher) RecoveryState() RecoveryState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.recoveryState
}

// RecoveryActive reports whether the watcher is currently in the
// RECOVERED substate, used by the strategist's sizing formula (spec
// §4.6.2 "Recovery").
func (w *Watcher) RecoveryActive() bool {
	return w.RecoveryState() == RecoveryRecovered
}

// Run samples macro triggers on a fixed interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, interval time.Duration, now func() time.Time) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx, now())
		}
	}
}

// Tick runs one evaluation cycle: if already Risk-Off, drive the
// recovery state machine; otherwise check for a new declaration.
func (w *Watcher) Tick(ctx context.Context, now time.Time) {
	w.mu.Lock()
	inRiskOff := w.store.GetRiskParams().EmergencyLiquidate
	w.mu.Unlock()

	if inRiskOff {
		w.evaluateRecovery(ctx, now)
		return
	}
	w.evaluateDeclaration(ctx)
}

// evaluateDeclaration implements spec §4.7.3's first paragraph: sample,
// and if ≥2 triggers fire, wait 60s, recheck, then adjudicate.
func (w *Watcher) evaluateDeclaration(ctx context.Context) {
	snap, err := w.source.Sample(ctx)
	if err != nil {
		w.logger.Warn("watcher: sample failed", zap.Error(err))
		return
	}
	fired := CheckTriggers(snap)
	if len(fired) < riskOffTriggerThreshold {
		return
	}

	w.sleep(recheckDelay)

	snap2, err := w.source.Sample(ctx)
	if err != nil {
		w.logger.Warn("watcher: recheck sample failed", zap.Error(err))
		return
	}
	fired2 := CheckTriggers(snap2)
	if len(fired2) < riskOffTriggerThreshold {
		return
	}

	yes, err := w.adjudicator.AdjudicateRiskOff(ctx, fired2)
	if err != nil {
		w.logger.Error("watcher: adjudication failed", zap.Error(err))
		return
	}
	if yes {
		w.declareRiskOff(ctx, fired2)
	} else {
		w.tightenOnly()
	}
}

func (w *Watcher) declareRiskOff(ctx context.Context, triggers []Trigger) {
	w.mu.Lock()
	w.riskOffAt = time.Now()
	w.recoveryState = RecoveryNone
	w.mu.Unlock()

	w.store.UpdateRiskParams(func(rp state.RiskParams) state.RiskParams {
		rp.RiskLevel = state.RiskCritical
		rp.EmergencyLiquidate = true
		rp.PyramidingAllowed = false
		return rp
	})
	w.logger.Error("watcher: Risk-Off declared", zap.Any("triggers", triggers))
	if w.notifier != nil {
		w.notifier.Send(ctx, "RISK-OFF declared: market watcher triggers confirmed by adjudication")
	}
}

func (w *Watcher) tightenOnly() {
	w.store.UpdateRiskParams(func(rp state.RiskParams) state.RiskParams {
		rp.RiskLevel = state.RiskHigh
		rp.PyramidingAllowed = false
		return rp
	})
}

// evaluateRecovery drives NONE → WATCHING → RECOVERED once a Risk-Off is
// in effect (spec §4.7.3 "Recovery watch").
func (w *Watcher) evaluateRecovery(ctx context.Context, now time.Time) {
	w.mu.Lock()
	state_ := w.recoveryState
	riskOffAt := w.riskOffAt
	locked := w.locked
	w.mu.Unlock()

	if locked {
		return
	}

	switch state_ {
	case RecoveryNone:
		if !riskOffAt.IsZero() && now.Sub(riskOffAt) >= watchingAfter {
			w.mu.Lock()
			w.recoveryState = RecoveryWatching
			w.mu.Unlock()
		}
	case RecoveryWatching:
		snap, err := w.source.Sample(ctx)
		if err != nil {
			w.logger.Warn("watcher: recovery sample failed", zap.Error(err))
			return
		}
		fired := CheckTriggers(snap)
		if len(fired) >= riskOffTriggerThreshold {
			return // still too many triggers firing; stay in WATCHING
		}
		confirmed, err := w.adjudicator.ConfirmStabilized(ctx)
		if err != nil {
			w.logger.Error("watcher: stabilization confirmation failed", zap.Error(err))
			return
		}
		if confirmed {
			w.transitionToRecovered(ctx)
		}
	case RecoveryRecovered:
		// Already recovered for this Risk-Off episode; nothing more to do
		// until the next declaration resets riskOffAt.
	}
}

func (w *Watcher) transitionToRecovered(ctx context.Context) {
	w.mu.Lock()
	w.recoveryState = RecoveryRecovered
	w.reEntriesToday++
	reached := w.reEntriesToday >= maxDailyReEntries
	if reached {
		w.locked = true
	}
	w.mu.Unlock()

	override := recoveredPctOverride
	w.store.UpdateRiskParams(func(rp state.RiskParams) state.RiskParams {
		rp.EmergencyLiquidate = false
		rp.RiskLevel = state.RiskHigh
		rp.PyramidingAllowed = false
		rp.PositionPctOverride = &override
		return rp
	})
	w.logger.Info("watcher: transitioned to RECOVERED", zap.Int("re_entries_today", w.reEntriesToday))

	if reached && w.notifier != nil {
		w.notifier.Send(ctx, "market watcher: 3rd re-entry used today, locking Risk-Off for the rest of the session on next trigger")
	}
}
