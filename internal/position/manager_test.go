package position

import (
	"testing"
	"time"

	"github.com/nitinkhare/quantumflow/internal/config"
	"github.com/nitinkhare/quantumflow/internal/signal"
	"github.com/nitinkhare/quantumflow/internal/state"
)

func TestOpenPosition_SetsInitialStop(t *testing.T) {
	sizing := config.DefaultSizing()
	now := time.Date(2026, 2, 2, 9, 40, 0, 0, time.UTC)

	pos := OpenPosition("005930", 10000, 200, 0.2, 100, sizing, now)

	if pos.EntryPrice != 10000 || pos.AvgCost != 10000 {
		t.Errorf("unexpected entry/avg cost: %+v", pos)
	}
	expectedStop := int64(10000 - 200*2) // initial_stop_atr_mult=2.0
	if pos.StopPrice > expectedStop+10 || pos.StopPrice < expectedStop-10 {
		t.Errorf("expected stop near %d, got %d", expectedStop, pos.StopPrice)
	}
	if pos.Track != state.Track1 {
		t.Errorf("expected Track1, got %v", pos.Track)
	}
}

func TestUpdateOnQuote_StopTriggersBeforeTakeProfit(t *testing.T) {
	m := New(nil)
	sizing := config.DefaultSizing()
	now := time.Date(2026, 2, 2, 9, 41, 0, 0, time.UTC)

	pos := OpenPosition("005930", 10000, 200, 0.2, 100, sizing, now)
	pos.PeakPrice = 10000

	_, exit := m.UpdateOnQuote(pos, 9400, now, sizing) // below initial stop ~9600
	if exit == nil || exit.Reason != ExitStop {
		t.Fatalf("expected EXIT_STOP, got %+v", exit)
	}
}

func TestUpdateOnQuote_TrailingStopOnlyTightens(t *testing.T) {
	m := New(nil)
	sizing := config.DefaultSizing()
	now := time.Date(2026, 2, 2, 9, 41, 0, 0, time.UTC)

	pos := OpenPosition("005930", 10000, 200, 0.2, 100, sizing, now)
	originalStop := pos.StopPrice

	pos, _ = m.UpdateOnQuote(pos, 10500, now, sizing)
	if pos.StopPrice <= originalStop {
		t.Errorf("expected stop to tighten upward after price rise, got %d (was %d)", pos.StopPrice, originalStop)
	}

	tightStop := pos.StopPrice
	pos, _ = m.UpdateOnQuote(pos, 10200, now, sizing) // price drop should not loosen stop
	if pos.StopPrice != tightStop {
		t.Errorf("expected stop to stay at %d, got %d", tightStop, pos.StopPrice)
	}
}

func TestUpdateOnQuote_TakeProfitTriggers(t *testing.T) {
	m := New(nil)
	sizing := config.DefaultSizing()
	now := time.Date(2026, 2, 2, 9, 41, 0, 0, time.UTC)

	pos := OpenPosition("005930", 10000, 200, 0.2, 100, sizing, now)
	_, exit := m.UpdateOnQuote(pos, 10800, now, sizing) // +8% >= 7% take profit
	if exit == nil || exit.Reason != ExitTakeProfit {
		t.Fatalf("expected EXIT_TAKE_PROFIT, got %+v", exit)
	}
}

func TestUpdateOnQuote_TimeStopTriggers(t *testing.T) {
	m := New(nil)
	sizing := config.DefaultSizing()
	entryTime := time.Date(2026, 2, 2, 9, 41, 0, 0, time.UTC) // Monday

	pos := OpenPosition("005930", 10000, 200, 0.2, 100, sizing, entryTime)

	fourDaysLater := time.Date(2026, 2, 6, 9, 41, 0, 0, time.UTC) // Friday, 4 business days later
	_, exit := m.UpdateOnQuote(pos, 10050, fourDaysLater, sizing)
	if exit == nil || exit.Reason != ExitTimeStop {
		t.Fatalf("expected EXIT_TIME_STOP, got %+v", exit)
	}
}

func TestEvaluatePyramid_RequiresAllConditions(t *testing.T) {
	m := New(nil)
	sizing := config.DefaultSizing()
	now := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	pos := OpenPosition("005930", 10000, 200, 0.2, 100, sizing, now)

	// Price below trigger (entry + 1.5*ATR = 10300).
	if sig := m.EvaluatePyramid(pos, 10200, now, true, sizing); sig != nil {
		t.Errorf("expected no pyramid signal below trigger, got %+v", sig)
	}

	// Price at/above trigger.
	sig := m.EvaluatePyramid(pos, 10300, now, true, sizing)
	if sig == nil {
		t.Fatal("expected pyramid signal at trigger price")
	}

	// Pyramiding disabled.
	if sig := m.EvaluatePyramid(pos, 10500, now, false, sizing); sig != nil {
		t.Errorf("expected no pyramid signal when disallowed, got %+v", sig)
	}

	// Past pyramid count cap.
	pos.PyramidCount = 2
	if sig := m.EvaluatePyramid(pos, 10500, now, true, sizing); sig != nil {
		t.Errorf("expected no pyramid signal at count cap, got %+v", sig)
	}

	// Past 15:00 cutoff.
	pos.PyramidCount = 0
	late := time.Date(2026, 2, 2, 15, 1, 0, 0, time.UTC)
	if sig := m.EvaluatePyramid(pos, 10500, late, true, sizing); sig != nil {
		t.Errorf("expected no pyramid signal after 15:00, got %+v", sig)
	}
}

func TestEvaluateTrack2Transition_RequiresAllConditions(t *testing.T) {
	sizing := config.DefaultSizing()
	pos := state.Position{Code: "005930", AvgCost: 10000}

	good := Track2Candidate{
		Aligned15m: true,
		Intensity:  signal.Intensity{Score: 0.65, Present: true},
		Catalyst:   true,
	}

	if !EvaluateTrack2Transition(pos, 10350, good, 0, sizing) {
		t.Error("expected transition to qualify with all conditions met")
	}

	notAligned := good
	notAligned.Aligned15m = false
	if EvaluateTrack2Transition(pos, 10350, notAligned, 0, sizing) {
		t.Error("expected no transition without 15m alignment")
	}

	populationFull := good
	if EvaluateTrack2Transition(pos, 10350, populationFull, 2, sizing) {
		t.Error("expected no transition at population cap")
	}

	lowPnl := good
	if EvaluateTrack2Transition(pos, 10100, lowPnl, 0, sizing) {
		t.Error("expected no transition below 3% P/L")
	}
}

func TestEvaluateNextDayTrack2_GapDownExits(t *testing.T) {
	sizing := config.DefaultSizing()
	pos := state.Position{Code: "005930", PeakPrice: 10350}
	now := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)

	_, exit := EvaluateNextDayTrack2(pos, 10200, 10350, 10200, now, true, sizing)
	if exit == nil || exit.Reason != ExitGapDown {
		t.Fatalf("expected EXIT_GAP_DOWN, got %+v", exit)
	}
}

func TestEvaluateNextDayTrack2_DeadlineForcesClose(t *testing.T) {
	sizing := config.DefaultSizing()
	pos := state.Position{Code: "005930", PeakPrice: 10350, StopPrice: 9800}
	afterDeadline := time.Date(2026, 2, 3, 14, 0, 1, 0, time.UTC)

	_, exit := EvaluateNextDayTrack2(pos, 10300, 10350, 10300, afterDeadline, false, sizing)
	if exit == nil || exit.Reason != ExitTrack2Deadline {
		t.Fatalf("expected EXIT_TRACK2_DEADLINE, got %+v", exit)
	}
}

func TestEvaluateEmergencyLiquidation(t *testing.T) {
	pos := state.Position{Code: "005930"}

	if sig := EvaluateEmergencyLiquidation(pos, 10000, false, false); sig != nil {
		t.Errorf("expected no signal, got %+v", sig)
	}
	if sig := EvaluateEmergencyLiquidation(pos, 10000, true, false); sig == nil || sig.Reason != ExitEmergency {
		t.Errorf("expected EXIT_EMERGENCY on urgent exit-all, got %+v", sig)
	}
	if sig := EvaluateEmergencyLiquidation(pos, 10000, false, true); sig == nil || sig.Reason != ExitEmergency {
		t.Errorf("expected EXIT_EMERGENCY on emergency_liquidate, got %+v", sig)
	}
}
