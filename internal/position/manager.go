// Package position implements the position lifecycle manager (C5):
// entry construction, the per-tick stop/take-profit/time-stop sequence,
// pyramiding, the Track-1→Track-2 transition, forced closes, and the
// emergency-liquidation and daily-loss circuits (spec §4.5).
package position

import (
	"time"

	"github.com/nitinkhare/quantumflow/internal/config"
	"github.com/nitinkhare/quantumflow/internal/money"
	"github.com/nitinkhare/quantumflow/internal/signal"
	"github.com/nitinkhare/quantumflow/internal/state"
)

// ExitReason identifies why a position is being closed.
type ExitReason string

const (
	ExitStop           ExitReason = "EXIT_STOP"
	ExitTakeProfit     ExitReason = "EXIT_TAKE_PROFIT"
	ExitTimeStop       ExitReason = "EXIT_TIME_STOP"
	ExitGapDown        ExitReason = "EXIT_GAP_DOWN"
	ExitTrack2Deadline ExitReason = "EXIT_TRACK2_DEADLINE"
	ExitEmergency      ExitReason = "EXIT_EMERGENCY"
	ExitForceClose     ExitReason = "EXIT_FORCE_CLOSE"
)

// ExitSignal is what the per-tick evaluation hands back to the
// strategist when a position should be closed.
type ExitSignal struct {
	Code   state.Code
	Reason ExitReason
	Price  int64
}

// PyramidSignal requests an add-on buy for an already-open position.
type PyramidSignal struct {
	Code        state.Code
	AddFraction float64
	AtPrice     int64
}

// Track2Candidate carries the inputs the 14:30 transition decision needs
// beyond what's already in the Position itself.
type Track2Candidate struct {
	Code       state.Code
	Aligned15m bool
	Intensity  signal.Intensity
	Catalyst   bool
	EvalScore  float64
}

// Manager evaluates the lifecycle rules against the position store. It
// holds no mutable state of its own — all position state lives in
// state.Store (C2); Manager's methods are pure functions of a Position
// snapshot plus the live sizing config.
type Manager struct {
	store *state.Store
}

// New creates a lifecycle manager bound to the given store.
func New(store *state.Store) *Manager {
	return &Manager{store: store}
}

// OpenPosition constructs a new Position on a successful entry fill
// (spec §4.5 "Entry").
func OpenPosition(code state.Code, entryPrice int64, entryATR, quantityFraction float64, quantity int64, sizing config.SizingConfig, now time.Time) state.Position {
	stop := entryPrice - int64(entryATR*sizing.InitialStopATRMult)
	return state.Position{
		Code:             code,
		EntryPrice:       entryPrice,
		AvgCost:          entryPrice,
		QuantityFraction: quantityFraction,
		Quantity:         quantity,
		EntryATR:         entryATR,
		StopPrice:        money.RoundDownToTick(stop),
		PeakPrice:        entryPrice,
		Track:            state.Track1,
		PyramidCount:     0,
		EntryTimestamp:   now,
		EntryDate:        now.Format("2006-01-02"),
	}
}

// UpdateOnQuote runs the per-tick evaluation sequence for one position:
// tighten the trailing stop, then check stop → take-profit → time-stop
// in that deterministic order (spec §4.5 "Per-quote update").
func (m *Manager) UpdateOnQuote(pos state.Position, lastPrice int64, now time.Time, sizing config.SizingConfig) (state.Position, *ExitSignal) {
	pos.PeakPrice = max64(pos.PeakPrice, lastPrice)
	trailStop := int64(float64(pos.PeakPrice) * (1 - sizing.TrailingStopPct))
	pos.StopPrice = max64(pos.StopPrice, trailStop)

	if lastPrice <= pos.StopPrice {
		return pos, &ExitSignal{Code: pos.Code, Reason: ExitStop, Price: pos.StopPrice}
	}

	pnlPct := money.PctChange(float64(lastPrice), float64(pos.AvgCost))
	if pnlPct >= sizing.TakeProfitPct {
		tpPrice := int64(float64(pos.AvgCost) * (1 + sizing.TakeProfitPct))
		return pos, &ExitSignal{Code: pos.Code, Reason: ExitTakeProfit, Price: tpPrice}
	}

	if BusinessDaysHeld(pos.EntryDate, now) >= sizing.TimeStopDays {
		return pos, &ExitSignal{Code: pos.Code, Reason: ExitTimeStop, Price: lastPrice}
	}

	return pos, nil
}

// BusinessDaysHeld counts calendar days elapsed since entryDate,
// excluding weekends. KRX holidays are not subtracted here — the
// scheduler's calendar already prevents the tick loop from running on
// holidays, so a holiday never contributes a held day.
func BusinessDaysHeld(entryDate string, now time.Time) int {
	entry, err := time.ParseInLocation("2006-01-02", entryDate, now.Location())
	if err != nil {
		return 0
	}
	days := 0
	for d := entry.AddDate(0, 0, 1); !d.After(now); d = d.AddDate(0, 0, 1) {
		wd := d.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

// EvaluatePyramid checks whether a position qualifies for a pyramid
// add-on (spec §4.5 "Pyramiding"). Returns nil if not eligible.
func (m *Manager) EvaluatePyramid(pos state.Position, lastPrice int64, now time.Time, pyramidingAllowed bool, sizing config.SizingConfig) *PyramidSignal {
	if pos.PyramidCount >= 2 {
		return nil
	}
	if !pyramidingAllowed {
		return nil
	}
	cutoff := dayTime(now, 15, 0)
	if !now.Before(cutoff) {
		return nil
	}
	trigger := pos.EntryPrice + int64(pos.EntryATR*sizing.PyramidATRMult)
	if lastPrice < trigger {
		return nil
	}
	return &PyramidSignal{Code: pos.Code, AddFraction: sizing.PyramidAddFraction * pos.QuantityFraction, AtPrice: lastPrice}
}

// ApplyPyramid folds a filled pyramid add-on into the position: weighted
// average cost, tightened stop, incremented count.
func ApplyPyramid(pos state.Position, addQty int64, fillPrice int64, sizing config.SizingConfig) state.Position {
	totalQty := pos.Quantity + addQty
	if totalQty > 0 {
		pos.AvgCost = (pos.AvgCost*pos.Quantity + fillPrice*addQty) / totalQty
	}
	pos.Quantity = totalQty
	pos.StopPrice = int64(float64(pos.AvgCost) * (1 - sizing.PyramidStopPct))
	pos.PyramidCount++
	return pos
}

// EvaluateTrack2Transition decides, at 14:30, whether a Track-1 position
// qualifies for Track 2 (spec §4.5 "Track-2 transition").
func EvaluateTrack2Transition(pos state.Position, lastPrice int64, cand Track2Candidate, track2Population int, sizing config.SizingConfig) bool {
	pnlPct := money.PctChange(float64(lastPrice), float64(pos.AvgCost))
	if pnlPct < sizing.Track2QualifyPnLPct {
		return false
	}
	if !cand.Aligned15m {
		return false
	}
	if !cand.Intensity.Meets(sizing.Track2ChgMin) {
		return false
	}
	catalyst := cand.Catalyst || cand.EvalScore >= 70 || pnlPct >= 0.05
	if !catalyst {
		return false
	}
	if track2Population >= sizing.Track2MaxPopulation {
		return false
	}
	return true
}

// TransitionToTrack2 resets peak_price so trailing restarts from the
// transition point (spec §4.5).
func TransitionToTrack2(pos state.Position, atPrice int64) state.Position {
	pos.Track = state.Track2
	pos.PeakPrice = atPrice
	return pos
}

// EvaluateNextDayTrack2 applies the next-day Track-2 rules: gap-down
// exit at open, 5% trail until 14:00, forced close at 14:00 (spec §4.5
// "Next-day Track-2 handling").
func EvaluateNextDayTrack2(pos state.Position, openPrice, priorClose, lastPrice int64, now time.Time, isMarketOpenMoment bool, sizing config.SizingConfig) (state.Position, *ExitSignal) {
	if isMarketOpenMoment {
		gapPct := money.PctChange(float64(openPrice), float64(priorClose))
		if gapPct <= sizing.NextDayGapDownPct {
			return pos, &ExitSignal{Code: pos.Code, Reason: ExitGapDown, Price: openPrice}
		}
	}

	deadline := dayTime(now, 14, 0)
	if !now.Before(deadline) {
		return pos, &ExitSignal{Code: pos.Code, Reason: ExitTrack2Deadline, Price: lastPrice}
	}

	pos.PeakPrice = max64(pos.PeakPrice, lastPrice)
	trailStop := int64(float64(pos.PeakPrice) * (1 - sizing.NextDayTrailPct))
	pos.StopPrice = max64(pos.StopPrice, trailStop)
	if lastPrice <= pos.StopPrice {
		return pos, &ExitSignal{Code: pos.Code, Reason: ExitStop, Price: pos.StopPrice}
	}

	return pos, nil
}

// EvaluateEmergencyLiquidation signals an immediate market exit when the
// regime snapshot or risk params demand it (spec §4.5 "Emergency
// liquidation"). The strategist also sets urgentExitAll once the daily
// loss limit is hit.
func EvaluateEmergencyLiquidation(pos state.Position, lastPrice int64, urgentExitAll, emergencyLiquidate bool) *ExitSignal {
	if !urgentExitAll && !emergencyLiquidate {
		return nil
	}
	return &ExitSignal{Code: pos.Code, Reason: ExitEmergency, Price: lastPrice}
}

func dayTime(ref time.Time, hour, min int) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, min, 0, 0, ref.Location())
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
