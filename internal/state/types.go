// Package state implements C2, the shared state store: the single
// mutable-state owner for the core (spec §3, §4.2). Every other
// component reads a snapshot or calls a mutator here; nobody else holds
// a long-lived reference into the store's internals.
package state

import "time"

// Code is a 6-character immutable numeric security identifier.
type Code string

// Quote is a snapshot from the websocket fan-out. Never mutated after
// construction — a new tick produces a new Quote, not an edit.
type Quote struct {
	Code          Code
	LastPrice     int64
	Ask1          int64
	Bid1          int64
	Volume        int64
	TickTimestamp time.Time
}

// Stale reports whether the quote is too old to act on for a new entry
// (spec §3: staleness > 30s).
func (q Quote) Stale(now time.Time) bool {
	return now.Sub(q.TickTimestamp) > 30*time.Second
}

// EvalGrade is the scanner-assigned quality label.
type EvalGrade string

const (
	GradeAPlus EvalGrade = "A+"
	GradeA     EvalGrade = "A"
	GradeB     EvalGrade = "B"
	GradeC     EvalGrade = "C"
	GradeD     EvalGrade = "D"
	GradeF     EvalGrade = "F"
)

// Tradable reports whether the grade is eligible to ever appear in a live
// watchlist; D/F must never appear (spec §3).
func (g EvalGrade) Tradable() bool {
	return g != GradeD && g != GradeF
}

// WatchlistEntry is a scanner-owned, read-only-to-the-core candidate.
type WatchlistEntry struct {
	Code                     Code
	EvalGrade                EvalGrade
	EvalScore                int
	SuggestedPositionFraction float64
	Sector                   string
	EntryATR                 float64
	DayReturnPct             float64
	VolRatio                 float64
	Catalyst                 bool
}

// UrgentAction is the macro agent's emergency directive.
type UrgentAction string

const (
	UrgentNone     UrgentAction = "NONE"
	UrgentReduce   UrgentAction = "REDUCE"
	UrgentExitAll  UrgentAction = "EXIT_ALL"
)

// RegimeLabel classifies the macro backdrop.
type RegimeLabel string

const (
	RegimeRiskOn  RegimeLabel = "risk_on"
	RegimeNeutral RegimeLabel = "neutral"
	RegimeRiskOff RegimeLabel = "risk_off"
)

// RegimeSnapshot is macro-agent-owned, read-only-to-the-core. Absence is
// treated as {Risk: "ON", UrgentAction: NONE, RegimeLabel: neutral} — see
// DefaultRegime.
type RegimeSnapshot struct {
	Risk               string // "ON" | "OFF"
	UrgentAction       UrgentAction
	SectorsFavored     []string
	SectorsAvoid       []string
	SectorMultipliers  map[string]float64 // clamped to [0.5, 1.5] on read
	RegimeLabel        RegimeLabel
	StrategyLabel       string // e.g. "방어적" / "공격적", optional
	Kospi5DChangePct   float64
	UsdKrwChangePct    float64
	UsdAboveMA20       bool
	MacroPositionMult  float64 // macro-suggested starting multiplier; 0 means "unset" (default 0.5)
}

// DefaultRegime returns the fallback snapshot used whenever the macro
// agent has not yet published one.
func DefaultRegime() RegimeSnapshot {
	return RegimeSnapshot{
		Risk:         "ON",
		UrgentAction: UrgentNone,
		RegimeLabel:  RegimeNeutral,
	}
}

// SectorMultiplier returns the clamped multiplier for a code-or-sector
// key, defaulting to 1.0 for unknown keys (spec §9 design notes).
func (r RegimeSnapshot) SectorMultiplier(key string) float64 {
	m, ok := r.SectorMultipliers[key]
	if !ok {
		return 1.0
	}
	if m < 0.5 {
		return 0.5
	}
	if m > 1.5 {
		return 1.5
	}
	return m
}

// Track identifies a position's lifecycle track.
type Track int

const (
	Track1 Track = 1 // intraday-only
	Track2 Track = 2 // overnight-eligible
)

// Position is the core's per-symbol open-trade record (spec §3).
type Position struct {
	Code             Code
	EntryPrice       int64
	AvgCost          int64
	QuantityFraction float64
	Quantity         int64
	EntryATR         float64
	StopPrice        int64
	PeakPrice        int64
	HoldDays         int
	PyramidCount     int
	Track            Track
	EntryTimestamp   time.Time
	EntryDate        string // KST date, YYYY-MM-DD
}

// TrackInfo is the parallel bookkeeping record used by the exit policy
// and reporting (spec §3).
type TrackInfo struct {
	Code            Code
	Track           Track
	EntryPrice      int64
	EntryTimeHHMMSS string
	MaxPnLPctSeen   float64
}

// OrderKind enumerates the order-attempt kinds logged by C4.
type OrderKind string

const (
	OrderBuyIOC    OrderKind = "BUY_IOC"
	OrderBuyMarket OrderKind = "BUY_MARKET"
	OrderSellIOC   OrderKind = "SELL_IOC"
	OrderSellMkt   OrderKind = "SELL_MARKET"
	OrderCancel    OrderKind = "CANCEL"
)

// OrderStatus enumerates broker-reported order lifecycle states.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusPartial   OrderStatus = "PARTIAL"
	StatusFilled    OrderStatus = "FILLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusError     OrderStatus = "ERROR"
)

// OrderAttempt is a single fallback-chain order attempt record, persisted
// to the daily append-only log (spec §3, §4.4.6).
type OrderAttempt struct {
	ID            string
	Code          Code
	Kind          OrderKind
	Qty           int64
	LimitPrice    int64 // 0 for market orders
	Stage         int   // 1, 2, or 3
	BrokerOrderID string
	FilledQty     int64
	Status        OrderStatus
	PlacedAt      time.Time
	ConfirmedAt   time.Time
	ErrorMessage  string
}

// IntensityReading is the externally-computed trade-intensity score for
// one code, read by the strategist from C2 (spec §4.7.2). Present=false
// means no reading has arrived yet; a missing or zero reading disables
// the filter rather than blocking it.
type IntensityReading struct {
	Score   float64
	Present bool
}

// RiskLevel is the operative severity the watcher has declared.
type RiskLevel string

const (
	RiskNormal   RiskLevel = "NORMAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskParams is the fixed-shape risk parameter record the watcher
// mutates and the strategist/position manager read (spec §4.2).
type RiskParams struct {
	RiskLevel           RiskLevel
	PyramidingAllowed   bool
	EmergencyLiquidate  bool
	PositionPctOverride *float64 // nil = no override
}

// DefaultRiskParams is the pre-open reset state.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		RiskLevel:          RiskNormal,
		PyramidingAllowed:  true,
		EmergencyLiquidate: false,
	}
}
