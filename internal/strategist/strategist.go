// Package strategist implements the strategist loop (C6): the tick-cycle
// orchestrator that consumes the watchlist and regime snapshot from C2,
// applies the macro regime filters, sizes and places entries via C4,
// drives exits via C5, and dispatches the 14:30 Track-2 transition and
// 15:10 force-close handlers (spec §4.6).
package strategist

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nitinkhare/quantumflow/internal/config"
	"github.com/nitinkhare/quantumflow/internal/execution"
	"github.com/nitinkhare/quantumflow/internal/position"
	"github.com/nitinkhare/quantumflow/internal/state"
)

const (
	openingRushEndHour = 9
	openingRushEndMin  = 20

	minFinalFraction    = 0.02
	track2IntensityFloor = 0.60
	entryIntensityFloor  = 0.70
)

// AlignmentSource answers whether a code is currently 15m-aligned (spec
// §4.7.1). Production wires this to signal.CheckAlignment against the
// live bar buffer; tests supply a canned map.
type AlignmentSource interface {
	Aligned(code string) bool
}

// RecoverySource reports whether the market watcher's recovery state
// machine is in its RECOVERED substate (spec §4.6.2 "Recovery").
type RecoverySource interface {
	RecoveryActive() bool
}

// EquitySource reports the account's current total equity, used both
// for position sizing and for the daily-loss-circuit's starting-equity
// baseline.
type EquitySource interface {
	TotalEquity(ctx context.Context) (float64, error)
}

// TickSummary records what one tick cycle decided, for reporting and
// tests.
type TickSummary struct {
	Now            time.Time
	Exits          []position.ExitSignal
	Pyramids       []position.PyramidSignal
	Entries        []execution.EntryResult
	EntriesBlocked string // reason entries were skipped this cycle, empty if not blocked
}

// Strategist is C6.
type Strategist struct {
	store     *state.Store
	executor  *execution.Executor
	posMgr    *position.Manager
	sizing    func() config.SizingConfig
	alignment AlignmentSource
	recovery  RecoverySource
	logger    *zap.Logger
}

// New builds a Strategist. sizing is called fresh on every tick so
// config hot-reload (internal/config.ConfigWatcher) takes effect
// immediately.
func New(store *state.Store, executor *execution.Executor, posMgr *position.Manager, sizing func() config.SizingConfig, alignment AlignmentSource, recovery RecoverySource, logger *zap.Logger) *Strategist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategist{
		store:     store,
		executor:  executor,
		posMgr:    posMgr,
		sizing:    sizing,
		alignment: alignment,
		recovery:  recovery,
		logger:    logger,
	}
}

// Tick runs one full tick cycle (spec §4.6.1). quotes is the latest
// snapshot read from C3's websocket fan-out; totalEquity is the current
// account equity used for sizing.
func (s *Strategist) Tick(ctx context.Context, now time.Time, quotes map[state.Code]state.Quote, totalEquity float64) TickSummary {
	summary := TickSummary{Now: now}
	sizing := s.sizing()

	rp := s.store.GetRiskParams()
	regime := s.store.GetRegime()
	dailyLoss := s.store.DailyLossFraction()

	urgentExitAll := regime.UrgentAction == state.UrgentExitAll
	dailyLossHit := dailyLoss <= sizing.DailyLossLimitPct
	blockEntries := rp.EmergencyLiquidate || dailyLossHit || urgentExitAll

	macroMult, neutralBlocked, boostActive := MacroRegimeMultiplier(regime)
	if neutralBlocked {
		blockEntries = true
	}

	s.runExitPass(ctx, now, quotes, rp, regime, sizing, totalEquity, &summary)

	if blockEntries {
		summary.EntriesBlocked = blockReason(rp, dailyLossHit, urgentExitAll, neutralBlocked)
		return summary
	}

	s.runEntryPass(ctx, now, quotes, macroMult, boostActive, regime, sizing, totalEquity, &summary)
	return summary
}

func blockReason(rp state.RiskParams, dailyLossHit, urgentExitAll, neutralBlocked bool) string {
	switch {
	case urgentExitAll:
		return "urgent_action_exit_all"
	case rp.EmergencyLiquidate:
		return "risk_off"
	case dailyLossHit:
		return "daily_loss_limit"
	case neutralBlocked:
		return "regime_neutral"
	default:
		return ""
	}
}

func (s *Strategist) runExitPass(ctx context.Context, now time.Time, quotes map[state.Code]state.Quote, rp state.RiskParams, regime state.RegimeSnapshot, sizing config.SizingConfig, totalEquity float64, summary *TickSummary) {
	positions := s.store.GetPositions()
	urgentExitAll := regime.UrgentAction == state.UrgentExitAll
	dailyLossHit := s.store.DailyLossFraction() <= sizing.DailyLossLimitPct

	for code, pos := range positions {
		quote, ok := quotes[code]
		if !ok {
			continue
		}
		lastPrice := quote.LastPrice

		if sig := position.EvaluateEmergencyLiquidation(pos, lastPrice, urgentExitAll || dailyLossHit, rp.EmergencyLiquidate); sig != nil {
			s.dispatchExit(ctx, pos, *sig)
			s.store.AddToBlacklist(code)
			summary.Exits = append(summary.Exits, *sig)
			continue
		}

		updated, sig := s.posMgr.UpdateOnQuote(pos, lastPrice, now, sizing)
		s.store.UpdatePosition(code, func(state.Position) state.Position { return updated })

		if sig != nil {
			s.dispatchExit(ctx, updated, *sig)
			summary.Exits = append(summary.Exits, *sig)
			continue
		}

		if pyr := s.posMgr.EvaluatePyramid(updated, lastPrice, now, rp.PyramidingAllowed, sizing); pyr != nil {
			s.dispatchPyramid(ctx, updated, *pyr, sizing, totalEquity, summary)
		}
	}
}

func (s *Strategist) dispatchExit(ctx context.Context, pos state.Position, sig position.ExitSignal) {
	result := s.executor.SellMarket(ctx, string(pos.Code), pos.Quantity)
	if !result.Success {
		s.logger.Error("strategist: exit order failed", zap.String("code", string(pos.Code)), zap.String("reason", string(sig.Reason)))
		return
	}
	realizedPnL := float64(result.FilledQty) * (result.AvgPrice - float64(pos.AvgCost))
	s.store.RecordRealizedPnL(realizedPnL)
	s.store.RemovePosition(pos.Code)
	s.store.RemoveTrack(pos.Code)
}

func (s *Strategist) dispatchPyramid(ctx context.Context, pos state.Position, pyr position.PyramidSignal, sizing config.SizingConfig, totalEquity float64, summary *TickSummary) {
	addQty := SharesForFraction(totalEquity, pyr.AddFraction, pyr.AtPrice)
	if addQty <= 0 {
		return
	}
	result := s.executor.BuyWithFallback(ctx, string(pos.Code), addQty, pyr.AtPrice)
	if !result.Success || result.FilledQty <= 0 {
		return
	}
	updated := position.ApplyPyramid(pos, result.FilledQty, int64(result.AvgPrice), sizing)
	s.store.UpdatePosition(pos.Code, func(state.Position) state.Position { return updated })
	summary.Pyramids = append(summary.Pyramids, pyr)
}

func (s *Strategist) runEntryPass(ctx context.Context, now time.Time, quotes map[state.Code]state.Quote, macroMult float64, boostActive bool, regime state.RegimeSnapshot, sizing config.SizingConfig, totalEquity float64, summary *TickSummary) {
	if now.Hour() < openingRushEndHour || (now.Hour() == openingRushEndHour && now.Minute() < openingRushEndMin) {
		summary.EntriesBlocked = "opening_rush"
		return
	}

	maxOpen := sizing.MaxOpenPositions
	if boostActive {
		maxOpen = sizing.MacroBoostMaxPositions
	}
	if s.store.PositionCount() >= maxOpen {
		summary.EntriesBlocked = "position_cap_reached"
		return
	}

	watchlist := s.store.GetWatchlist()
	recoveryActive := s.recovery != nil && s.recovery.RecoveryActive()

	for _, cand := range watchlist {
		if s.store.PositionCount() >= maxOpen {
			break
		}
		if _, held := s.store.GetPosition(cand.Code); held {
			continue
		}
		if s.store.IsBlacklisted(cand.Code) {
			continue
		}

		if s.alignment != nil && !s.alignment.Aligned(string(cand.Code)) {
			continue
		}

		intensity := s.store.GetIntensity(cand.Code)
		if intensity.Present && intensity.Score > 0 && intensity.Score < entryIntensityFloor {
			continue
		}

		quote, ok := quotes[cand.Code]
		if !ok || quote.Stale(now) {
			continue
		}

		fraction := ComputeFinalFraction(SizingInput{
			MacroMultiplier:     macroMult,
			BoostActive:         boostActive,
			SuggestedFraction:   cand.SuggestedPositionFraction,
			DayReturnPct:        cand.DayReturnPct,
			VolRatio:            cand.VolRatio,
			RegimeStrategyLabel: regime.StrategyLabel,
			RecoveryActive:      recoveryActive,
			Now:                 now,
		}, sizing)

		if fraction < minFinalFraction {
			continue
		}

		qty := SharesForFraction(totalEquity, fraction, quote.Ask1)
		if qty <= 0 {
			continue
		}

		result := s.executor.BuyWithFallback(ctx, string(cand.Code), qty, quote.Ask1)
		summary.Entries = append(summary.Entries, result)
		if !result.Success || result.FilledQty <= 0 {
			continue
		}

		pos := position.OpenPosition(cand.Code, int64(result.AvgPrice), cand.EntryATR, fraction, result.FilledQty, sizing, now)
		s.store.AddPosition(cand.Code, pos)
		s.store.SetTrack(cand.Code, state.TrackInfo{
			Code:            cand.Code,
			Track:           state.Track1,
			EntryPrice:      pos.EntryPrice,
			EntryTimeHHMMSS: now.Format("150405"),
		})
	}
}
