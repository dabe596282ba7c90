package strategist

import (
	"math"
	"time"

	"github.com/nitinkhare/quantumflow/internal/config"
	"github.com/nitinkhare/quantumflow/internal/state"
)

// timeOfDayWeight is the step function from spec §4.6.2: for the current
// time, find the largest key ≤ current time.
type timeOfDayPoint struct {
	hour, min int
	weight    float64
}

var timeOfDayTable = []timeOfDayPoint{
	{9, 20, 0.5},
	{9, 30, 0.8},
	{10, 0, 1.0},
	{10, 30, 0.9},
	{11, 0, 0.7},
	{11, 30, 0.6},
	{13, 0, 0.7},
}

// TimeOfDayWeight returns the step-function weight for now.
func TimeOfDayWeight(now time.Time) float64 {
	weight := 0.0
	nowMinutes := now.Hour()*60 + now.Minute()
	for _, p := range timeOfDayTable {
		pointMinutes := p.hour*60 + p.min
		if pointMinutes <= nowMinutes {
			weight = p.weight
		}
	}
	return weight
}

// EventMultiplier implements spec §4.6.2's event filter.
func EventMultiplier(dayReturnPct, volRatio float64) float64 {
	if dayReturnPct < 0 && volRatio < 3.0 {
		return 0.60
	}
	return 1.0
}

// MacroRegimeMultiplier applies spec §4.6.1 step 2's regime filter chain
// to a working macro_position_multiplier, starting from the macro
// snapshot's suggestion (default 0.5 if unset). Returns the resulting
// multiplier, whether entries are fully blocked this cycle (Neutral
// block), and whether the macro boost (cap expansion to 6) is active.
func MacroRegimeMultiplier(regime state.RegimeSnapshot) (mult float64, blocked bool, boostActive bool) {
	mult = regime.MacroPositionMult
	if mult == 0 {
		mult = 0.5
	}

	if regime.RegimeLabel == state.RegimeNeutral || regime.StrategyLabel == "중립" {
		return mult, true, false
	}

	if regime.UsdKrwChangePct > 0.5 {
		mult *= 0.7
	}
	if regime.Kospi5DChangePct >= 2.0 {
		mult *= 1.1
	}
	if regime.Kospi5DChangePct >= 3.0 && regime.UsdAboveMA20 {
		mult *= 1.20
		boostActive = true
	}
	return mult, false, boostActive
}

// SizingInput bundles everything ComputeFinalFraction needs beyond the
// sizing config.
type SizingInput struct {
	MacroMultiplier float64
	BoostActive     bool
	SuggestedFraction float64
	DayReturnPct    float64
	VolRatio        float64
	RegimeStrategyLabel string
	RecoveryActive  bool
	Now             time.Time
}

// ComputeFinalFraction implements the full position-sizing formula of
// spec §4.6.2.
func ComputeFinalFraction(in SizingInput, sizing config.SizingConfig) float64 {
	fraction := sizing.BaseFraction
	fraction *= in.MacroMultiplier
	fraction *= in.SuggestedFraction
	fraction *= TimeOfDayWeight(in.Now)
	fraction *= EventMultiplier(in.DayReturnPct, in.VolRatio)

	switch in.RegimeStrategyLabel {
	case "방어적":
		fraction *= 0.5
	case "공격적":
		fraction *= 1.2
	}

	if in.RecoveryActive {
		fraction *= sizing.RecoveryMultiplier
	}

	cap := sizing.BaseFraction
	if in.BoostActive {
		cap *= 1.20
	}
	if fraction > cap {
		fraction = cap
	}
	return fraction
}

// SharesForFraction converts a sized fraction into a whole-share qty at
// ask1 (spec §4.6.2: floor(total_equity × final_fraction / ask1)).
func SharesForFraction(totalEquity float64, fraction float64, ask1 int64) int64 {
	if ask1 <= 0 {
		return 0
	}
	return int64(math.Floor(totalEquity * fraction / float64(ask1)))
}
