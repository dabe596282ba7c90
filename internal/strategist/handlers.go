package strategist

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nitinkhare/quantumflow/internal/position"
	"github.com/nitinkhare/quantumflow/internal/signal"
	"github.com/nitinkhare/quantumflow/internal/state"
)

// HandleTrack2Evaluation runs the 14:30 scheduled handler (spec §4.5
// "Track-2 transition", §4.6.1 step 5): every open Track-1 position
// either transitions to Track 2 or is left for the 15:10 force close.
func (s *Strategist) HandleTrack2Evaluation(ctx context.Context, now time.Time, quotes map[state.Code]state.Quote) {
	sizing := s.sizing()
	positions := s.store.GetPositions()

	for code, pos := range positions {
		if pos.Track != state.Track1 {
			continue
		}
		quote, ok := quotes[code]
		if !ok {
			continue
		}

		r := s.store.GetIntensity(code)
		cand := position.Track2Candidate{
			Code:       code,
			Aligned15m: s.alignment == nil || s.alignment.Aligned(string(code)),
			Intensity:  signal.Intensity{Score: r.Score, Present: r.Present},
			EvalScore:  float64(watchlistEvalScore(s.store, code)),
			Catalyst:   watchlistCatalyst(s.store, code),
		}

		population := s.store.Track2Population()
		if position.EvaluateTrack2Transition(pos, quote.LastPrice, cand, population, sizing) {
			updated := position.TransitionToTrack2(pos, quote.LastPrice)
			s.store.UpdatePosition(code, func(state.Position) state.Position { return updated })
			s.store.SetTrack(code, state.TrackInfo{Code: code, Track: state.Track2, EntryPrice: updated.EntryPrice})
			s.logger.Info("strategist: Track-2 transition", zap.String("code", string(code)))
		}
	}
}

// HandleForceClose runs the 15:10 scheduled handler (spec §4.5 "15:10
// force close"): every remaining Track-1 position exits at market.
func (s *Strategist) HandleForceClose(ctx context.Context) {
	positions := s.store.GetPositions()
	for _, pos := range positions {
		if pos.Track != state.Track1 {
			continue
		}
		s.dispatchExit(ctx, pos, position.ExitSignal{Code: pos.Code, Reason: position.ExitForceClose})
	}
}

// HandleNextDayTrack2 runs the next-day evaluation for positions still
// on Track 2 (spec §4.5 "Next-day Track-2 handling"). isMarketOpenMoment
// should be true only on the first call of the day.
func (s *Strategist) HandleNextDayTrack2(ctx context.Context, now time.Time, quotes map[state.Code]state.Quote, priorCloses map[state.Code]int64, isMarketOpenMoment bool) {
	sizing := s.sizing()
	positions := s.store.GetPositions()

	for code, pos := range positions {
		if pos.Track != state.Track2 {
			continue
		}
		quote, ok := quotes[code]
		if !ok {
			continue
		}
		priorClose, ok := priorCloses[code]
		if !ok {
			priorClose = pos.EntryPrice
		}

		updated, sig := position.EvaluateNextDayTrack2(pos, quote.LastPrice, priorClose, quote.LastPrice, now, isMarketOpenMoment, sizing)
		s.store.UpdatePosition(code, func(state.Position) state.Position { return updated })

		if sig != nil {
			s.dispatchExit(ctx, updated, *sig)
		}
	}
}

func watchlistEvalScore(store *state.Store, code state.Code) int {
	for _, e := range store.GetWatchlist() {
		if e.Code == code {
			return e.EvalScore
		}
	}
	return 0
}

func watchlistCatalyst(store *state.Store, code state.Code) bool {
	for _, e := range store.GetWatchlist() {
		if e.Code == code {
			return e.Catalyst
		}
	}
	return false
}
