// Package watcher implements the market watcher (spec §4.7.3): an
// independent loop that samples macro triggers, adjudicates Risk-Off
// declarations through an external LLM call, and runs the post-Risk-Off
// recovery watch state machine.
package watcher

// Trigger identifies one of the four quantitative Risk-Off triggers.
type Trigger string

const (
	TriggerVIXSurge   Trigger = "VIX_SURGE"
	TriggerKospiDrop  Trigger = "KOSPI_DROP"
	TriggerFXSurge    Trigger = "FX_SURGE"
	TriggerMarketDrop Trigger = "MARKET_DROP"
)

const (
	vixSurgeThresholdPct    = 0.20
	kospiDropThresholdPct   = -0.02
	fxSurgeThresholdWon     = 15.0
	marketDropExtrapolated  = 7 // out of 10, extrapolated from top-5
	riskOffTriggerThreshold = 2
)

// MacroSnapshot is one sample of the four macro inputs. Sources are an
// external concern (spec §4.7.3) — whatever feeds this struct is free to
// pull from any free data provider.
type MacroSnapshot struct {
	VixChangePct      float64
	KospiChangePct    float64
	FxChangeWon       float64
	Top5DownCount     int // how many of the top-5 large-caps are down today
}

// extrapolatedTop10Down scales the top-5 down count to a top-10
// equivalent the way the spec's MARKET_DROP trigger is phrased.
func (s MacroSnapshot) extrapolatedTop10Down() int {
	return s.Top5DownCount * 2
}

// CheckTriggers evaluates all four quantitative triggers against one
// snapshot.
func CheckTriggers(s MacroSnapshot) []Trigger {
	var fired []Trigger
	if s.VixChangePct >= vixSurgeThresholdPct {
		fired = append(fired, TriggerVIXSurge)
	}
	if s.KospiChangePct <= kospiDropThresholdPct {
		fired = append(fired, TriggerKospiDrop)
	}
	if s.FxChangeWon >= fxSurgeThresholdWon || s.FxChangeWon <= -fxSurgeThresholdWon {
		fired = append(fired, TriggerFXSurge)
	}
	if s.extrapolatedTop10Down() >= marketDropExtrapolated {
		fired = append(fired, TriggerMarketDrop)
	}
	return fired
}
