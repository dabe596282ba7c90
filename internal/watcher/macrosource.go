package watcher

import (
	"context"

	"github.com/nitinkhare/quantumflow/internal/state"
)

// StateMacroSource derives a MacroSnapshot from the macro agent's
// regime snapshot already published into C2 (spec §4.7.3: "surrogates
// pulled from free sources; exact sources are an external concern").
// VIX and top-5-large-cap breadth have no home in RegimeSnapshot (spec
// §3 defines no such fields), so those two triggers are left at their
// never-fire zero value here until a dedicated feed is wired; KOSPI and
// FX, which the macro agent already reports, are forwarded as-is.
type StateMacroSource struct {
	store *state.Store
}

// NewStateMacroSource builds a MacroSource backed by the shared store.
func NewStateMacroSource(store *state.Store) *StateMacroSource {
	return &StateMacroSource{store: store}
}

// Sample implements MacroSource.
func (s *StateMacroSource) Sample(ctx context.Context) (MacroSnapshot, error) {
	regime := s.store.GetRegime()
	return MacroSnapshot{
		KospiChangePct: regime.Kospi5DChangePct,
		FxChangeWon:    regime.UsdKrwChangePct,
	}, nil
}
