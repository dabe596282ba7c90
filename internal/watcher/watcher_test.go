package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/nitinkhare/quantumflow/internal/state"
)

type fakeSource struct {
	snapshots []MacroSnapshot
	i         int
}

func (f *fakeSource) Sample(ctx context.Context) (MacroSnapshot, error) {
	if f.i >= len(f.snapshots) {
		return f.snapshots[len(f.snapshots)-1], nil
	}
	s := f.snapshots[f.i]
	f.i++
	return s, nil
}

type fakeAdjudicator struct {
	riskOffAnswer   bool
	stabilizedAnswer bool
}

func (f *fakeAdjudicator) AdjudicateRiskOff(ctx context.Context, triggers []Trigger) (bool, error) {
	return f.riskOffAnswer, nil
}

func (f *fakeAdjudicator) ConfirmStabilized(ctx context.Context) (bool, error) {
	return f.stabilizedAnswer, nil
}

func noSleep(time.Duration) {}

func TestCheckTriggers(t *testing.T) {
	calm := MacroSnapshot{VixChangePct: 0.02, KospiChangePct: -0.005, FxChangeWon: 3, Top5DownCount: 1}
	if len(CheckTriggers(calm)) != 0 {
		t.Error("expected no triggers on a calm snapshot")
	}

	stressed := MacroSnapshot{VixChangePct: 0.22, KospiChangePct: -0.021, FxChangeWon: 16, Top5DownCount: 4}
	fired := CheckTriggers(stressed)
	if len(fired) != 4 {
		t.Errorf("expected all 4 triggers, got %v", fired)
	}
}

func TestWatcher_DeclaresRiskOffOnTwoTriggersAndYesAdjudication(t *testing.T) {
	stressed := MacroSnapshot{VixChangePct: 0.25, KospiChangePct: -0.03, FxChangeWon: 0, Top5DownCount: 0}
	store := state.New()
	w := New(store, &fakeSource{snapshots: []MacroSnapshot{stressed, stressed}}, &fakeAdjudicator{riskOffAnswer: true}, nil, nil)
	w.sleep = noSleep

	w.evaluateDeclaration(context.Background())

	rp := store.GetRiskParams()
	if !rp.EmergencyLiquidate || rp.RiskLevel != state.RiskCritical {
		t.Errorf("expected Risk-Off declared, got %+v", rp)
	}
}

func TestWatcher_TightensOnlyOnNoAdjudication(t *testing.T) {
	stressed := MacroSnapshot{VixChangePct: 0.25, KospiChangePct: -0.03}
	store := state.New()
	w := New(store, &fakeSource{snapshots: []MacroSnapshot{stressed, stressed}}, &fakeAdjudicator{riskOffAnswer: false}, nil, nil)
	w.sleep = noSleep

	w.evaluateDeclaration(context.Background())

	rp := store.GetRiskParams()
	if rp.EmergencyLiquidate {
		t.Error("expected no liquidation on NO adjudication")
	}
	if rp.RiskLevel != state.RiskHigh || rp.PyramidingAllowed {
		t.Errorf("expected tightened params, got %+v", rp)
	}
}

func TestWatcher_SingleTriggerNeverEscalates(t *testing.T) {
	mild := MacroSnapshot{VixChangePct: 0.25} // only VIX_SURGE fires
	store := state.New()
	w := New(store, &fakeSource{snapshots: []MacroSnapshot{mild}}, &fakeAdjudicator{riskOffAnswer: true}, nil, nil)
	w.sleep = noSleep

	w.evaluateDeclaration(context.Background())

	rp := store.GetRiskParams()
	if rp.RiskLevel != state.RiskNormal {
		t.Errorf("expected no change with a single trigger, got %+v", rp)
	}
}

func TestWatcher_RecoveryStateMachine(t *testing.T) {
	store := state.New()
	calm := MacroSnapshot{}
	w := New(store, &fakeSource{snapshots: []MacroSnapshot{calm}}, &fakeAdjudicator{stabilizedAnswer: true}, nil, nil)
	w.sleep = noSleep

	w.declareRiskOff(context.Background(), []Trigger{TriggerVIXSurge, TriggerKospiDrop})
	if w.RecoveryState() != RecoveryNone {
		t.Fatalf("expected NONE immediately after declaration, got %v", w.RecoveryState())
	}

	base := time.Now()
	w.evaluateRecovery(context.Background(), base.Add(29*time.Minute))
	if w.RecoveryState() != RecoveryNone {
		t.Errorf("expected still NONE before 30 minutes elapsed, got %v", w.RecoveryState())
	}

	w.evaluateRecovery(context.Background(), base.Add(31*time.Minute))
	if w.RecoveryState() != RecoveryWatching {
		t.Fatalf("expected WATCHING after 30 minutes, got %v", w.RecoveryState())
	}

	w.evaluateRecovery(context.Background(), base.Add(40*time.Minute))
	if w.RecoveryState() != RecoveryRecovered {
		t.Fatalf("expected RECOVERED after stabilization confirmed, got %v", w.RecoveryState())
	}

	rp := store.GetRiskParams()
	if rp.EmergencyLiquidate {
		t.Error("expected emergency_liquidate cleared on recovery")
	}
	if rp.PositionPctOverride == nil || *rp.PositionPctOverride != 0.6 {
		t.Errorf("expected position_pct_override=0.6, got %+v", rp.PositionPctOverride)
	}
	if rp.PyramidingAllowed {
		t.Error("expected pyramiding to stay disabled after recovery")
	}
}

func TestWatcher_LocksAfterThreeReEntries(t *testing.T) {
	store := state.New()
	calm := MacroSnapshot{}
	w := New(store, &fakeSource{snapshots: []MacroSnapshot{calm}}, &fakeAdjudicator{stabilizedAnswer: true}, nil, nil)
	w.sleep = noSleep

	for i := 0; i < maxDailyReEntries; i++ {
		w.declareRiskOff(context.Background(), []Trigger{TriggerVIXSurge, TriggerKospiDrop})
		w.mu.Lock()
		w.recoveryState = RecoveryWatching
		w.mu.Unlock()
		w.evaluateRecovery(context.Background(), time.Now())
	}

	w.mu.Lock()
	locked := w.locked
	w.mu.Unlock()
	if !locked {
		t.Error("expected watcher to lock after 3 re-entries")
	}

	w.declareRiskOff(context.Background(), []Trigger{TriggerVIXSurge, TriggerKospiDrop})
	w.mu.Lock()
	w.recoveryState = RecoveryWatching
	w.mu.Unlock()
	w.evaluateRecovery(context.Background(), time.Now())
	if w.RecoveryState() == RecoveryRecovered {
		t.Error("expected no further recovery once locked")
	}
}

func TestWatcher_ResetDaily(t *testing.T) {
	store := state.New()
	w := New(store, &fakeSource{snapshots: []MacroSnapshot{{}}}, &fakeAdjudicator{}, nil, nil)
	w.declareRiskOff(context.Background(), []Trigger{TriggerVIXSurge, TriggerKospiDrop})

	w.ResetDaily()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reEntriesToday != 0 || w.locked || w.recoveryState != RecoveryNone {
		t.Errorf("expected clean reset, got reEntries=%d locked=%v state=%v", w.reEntriesToday, w.locked, w.recoveryState)
	}
}
