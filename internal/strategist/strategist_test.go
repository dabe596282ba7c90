package strategist

import (
	"context"
	"testing"
	"time"

	"github.com/nitinkhare/quantumflow/internal/broker"
	"github.com/nitinkhare/quantumflow/internal/config"
	"github.com/nitinkhare/quantumflow/internal/execution"
	"github.com/nitinkhare/quantumflow/internal/position"
	"github.com/nitinkhare/quantumflow/internal/state"
)

func newTestStrategist(t *testing.T) (*Strategist, *state.Store) {
	t.Helper()
	store := state.New()
	client := broker.NewSimClient(100_000_000)
	exec := execution.NewExecutor(client, nil, nil, nil, true) // dryRun
	posMgr := position.New(store)
	sizing := config.DefaultSizing()
	s := New(store, exec, posMgr, func() config.SizingConfig { return sizing }, nil, nil, nil)
	return s, store
}

func atKST(hh, mm int) time.Time {
	return time.Date(2026, 7, 31, hh, mm, 0, 0, time.UTC)
}

func baseQuote(code state.Code, price int64, now time.Time) state.Quote {
	return state.Quote{Code: code, LastPrice: price, Ask1: price, TickTimestamp: now}
}

func baseWatchlistEntry(code state.Code) state.WatchlistEntry {
	return state.WatchlistEntry{
		Code:                      code,
		EvalGrade:                 state.GradeA,
		EvalScore:                 80,
		SuggestedPositionFraction: 1.0,
		EntryATR:                  100,
		DayReturnPct:              0.01,
		VolRatio:                  1.0,
	}
}

func TestStrategist_RiskGateBlocksEntriesOnEmergencyLiquidate(t *testing.T) {
	s, store := newTestStrategist(t)
	store.UpdateRiskParams(func(rp state.RiskParams) state.RiskParams {
		rp.EmergencyLiquidate = true
		return rp
	})
	store.SetWatchlist([]state.WatchlistEntry{baseWatchlistEntry("005930")})

	now := atKST(10, 0)
	quotes := map[state.Code]state.Quote{"005930": baseQuote("005930", 10000, now)}

	summary := s.Tick(context.Background(), now, quotes, 10_000_000)
	if summary.EntriesBlocked != "risk_off" {
		t.Fatalf("expected entries blocked with risk_off, got %q", summary.EntriesBlocked)
	}
	if len(summary.Entries) != 0 {
		t.Errorf("expected no entries, got %+v", summary.Entries)
	}
}

func TestStrategist_UrgentExitAllLiquidatesOpenPositions(t *testing.T) {
	s, store := newTestStrategist(t)
	now := atKST(10, 0)
	pos := position.OpenPosition("005930", 10000, 100, 0.2, 10, config.DefaultSizing(), now)
	store.AddPosition("005930", pos)
	store.SetRegime(state.RegimeSnapshot{RegimeLabel: state.RegimeRiskOn, UrgentAction: state.UrgentExitAll})

	quotes := map[state.Code]state.Quote{"005930": baseQuote("005930", 10500, now)}
	summary := s.Tick(context.Background(), now, quotes, 10_000_000)

	if len(summary.Exits) != 1 || summary.Exits[0].Reason != position.ExitEmergency {
		t.Fatalf("expected one emergency exit, got %+v", summary.Exits)
	}
	if _, ok := store.GetPosition("005930"); ok {
		t.Error("expected position removed after emergency liquidation")
	}
	if !store.IsBlacklisted("005930") {
		t.Error("expected code blacklisted after emergency liquidation")
	}
}

func TestStrategist_DailyLossLimitBlocksEntries(t *testing.T) {
	s, store := newTestStrategist(t)
	store.ResetDailyCounters(1_000_000)
	store.RecordRealizedPnL(-40_000) // -4%, past the -3% default limit
	store.SetWatchlist([]state.WatchlistEntry{baseWatchlistEntry("005930")})

	now := atKST(10, 0)
	quotes := map[state.Code]state.Quote{"005930": baseQuote("005930", 10000, now)}
	summary := s.Tick(context.Background(), now, quotes, 10_000_000)

	if summary.EntriesBlocked != "daily_loss_limit" {
		t.Fatalf("expected daily_loss_limit block, got %q", summary.EntriesBlocked)
	}
}

func TestStrategist_NeutralRegimeBlocksEntries(t *testing.T) {
	s, store := newTestStrategist(t)
	store.SetRegime(state.RegimeSnapshot{RegimeLabel: state.RegimeNeutral})
	store.SetWatchlist([]state.WatchlistEntry{baseWatchlistEntry("005930")})

	now := atKST(10, 0)
	quotes := map[state.Code]state.Quote{"005930": baseQuote("005930", 10000, now)}
	summary := s.Tick(context.Background(), now, quotes, 10_000_000)

	if summary.EntriesBlocked != "regime_neutral" {
		t.Fatalf("expected regime_neutral block, got %q", summary.EntriesBlocked)
	}
}

func TestStrategist_EntryPassSkipsBeforeOpeningRush(t *testing.T) {
	s, store := newTestStrategist(t)
	store.SetRegime(state.RegimeSnapshot{RegimeLabel: state.RegimeRiskOn})
	store.SetWatchlist([]state.WatchlistEntry{baseWatchlistEntry("005930")})

	now := atKST(9, 15)
	quotes := map[state.Code]state.Quote{"005930": baseQuote("005930", 10000, now)}
	summary := s.Tick(context.Background(), now, quotes, 10_000_000)

	if summary.EntriesBlocked != "opening_rush" {
		t.Fatalf("expected opening_rush block, got %q", summary.EntriesBlocked)
	}
}

func TestStrategist_EntryPassRespectsPositionCap(t *testing.T) {
	s, store := newTestStrategist(t)
	store.SetRegime(state.RegimeSnapshot{RegimeLabel: state.RegimeRiskOn})
	sizing := config.DefaultSizing()
	now := atKST(10, 0)

	for i := 0; i < sizing.MaxOpenPositions; i++ {
		code := state.Code(string(rune('A' + i)))
		store.AddPosition(code, position.OpenPosition(code, 10000, 100, 0.2, 10, sizing, now))
	}

	store.SetWatchlist([]state.WatchlistEntry{baseWatchlistEntry("005930")})
	quotes := map[state.Code]state.Quote{"005930": baseQuote("005930", 10000, now)}
	summary := s.Tick(context.Background(), now, quotes, 10_000_000)

	if summary.EntriesBlocked != "position_cap_reached" {
		t.Fatalf("expected position_cap_reached block, got %q", summary.EntriesBlocked)
	}
}

func TestStrategist_EntryPassSkipsHeldBlacklistedMisalignedOrStale(t *testing.T) {
	s, store := newTestStrategist(t)
	store.SetRegime(state.RegimeSnapshot{RegimeLabel: state.RegimeRiskOn})
	now := atKST(10, 0)
	sizing := config.DefaultSizing()

	store.AddPosition("000001", position.OpenPosition("000001", 10000, 100, 0.2, 10, sizing, now))
	store.AddToBlacklist("000002")

	store.SetWatchlist([]state.WatchlistEntry{
		baseWatchlistEntry("000001"), // already held
		baseWatchlistEntry("000002"), // blacklisted
		baseWatchlistEntry("000003"), // stale quote
	})

	quotes := map[state.Code]state.Quote{
		"000001": baseQuote("000001", 10000, now),
		"000002": baseQuote("000002", 10000, now),
		"000003": baseQuote("000003", 10000, now.Add(-time.Minute)),
	}

	summary := s.Tick(context.Background(), now, quotes, 10_000_000)
	if len(summary.Entries) != 0 {
		t.Errorf("expected no entries placed, got %+v", summary.Entries)
	}
}

func TestStrategist_SuccessfulEntryCreatesPosition(t *testing.T) {
	s, store := newTestStrategist(t)
	store.SetRegime(state.RegimeSnapshot{RegimeLabel: state.RegimeRiskOn})
	store.SetWatchlist([]state.WatchlistEntry{baseWatchlistEntry("005930")})

	now := atKST(10, 30)
	quotes := map[state.Code]state.Quote{"005930": baseQuote("005930", 10000, now)}
	summary := s.Tick(context.Background(), now, quotes, 100_000_000)

	if len(summary.Entries) != 1 || !summary.Entries[0].Success {
		t.Fatalf("expected one successful entry, got %+v", summary.Entries)
	}
	pos, ok := store.GetPosition("005930")
	if !ok {
		t.Fatal("expected position opened in store")
	}
	if pos.Quantity <= 0 {
		t.Errorf("expected positive quantity, got %d", pos.Quantity)
	}
	if _, ok := store.GetTrack("005930"); !ok {
		t.Error("expected track info recorded")
	}
}

func TestStrategist_EntryPassSkipsLowIntensityCandidate(t *testing.T) {
	s, store := newTestStrategist(t)
	store.SetRegime(state.RegimeSnapshot{RegimeLabel: state.RegimeRiskOn})
	store.SetWatchlist([]state.WatchlistEntry{baseWatchlistEntry("005930")})
	store.SetIntensity("005930", state.IntensityReading{Score: 0.1, Present: true})

	now := atKST(10, 0)
	quotes := map[state.Code]state.Quote{"005930": baseQuote("005930", 10000, now)}
	summary := s.Tick(context.Background(), now, quotes, 10_000_000)

	if len(summary.Entries) != 0 {
		t.Errorf("expected low-intensity candidate skipped, got %+v", summary.Entries)
	}
}

func TestStrategist_HandleForceCloseExitsTrack1Positions(t *testing.T) {
	s, store := newTestStrategist(t)
	now := atKST(15, 10)
	pos := position.OpenPosition("005930", 10000, 100, 0.2, 10, config.DefaultSizing(), now)
	store.AddPosition("005930", pos)

	s.HandleForceClose(context.Background())

	if _, ok := store.GetPosition("005930"); ok {
		t.Error("expected Track-1 position force-closed")
	}
}

func TestStrategist_HandleTrack2EvaluationTransitionsQualifyingPosition(t *testing.T) {
	s, store := newTestStrategist(t)
	now := atKST(14, 30)
	pos := position.OpenPosition("005930", 10000, 100, 0.2, 10, config.DefaultSizing(), now)
	store.AddPosition("005930", pos)
	store.SetIntensity("005930", state.IntensityReading{Score: 0.8, Present: true})
	store.SetWatchlist([]state.WatchlistEntry{{Code: "005930", EvalGrade: state.GradeA, EvalScore: 80}})

	quotes := map[state.Code]state.Quote{"005930": baseQuote("005930", 10500, now)} // +5%

	s.HandleTrack2Evaluation(context.Background(), now, quotes)

	pos, ok := store.GetPosition("005930")
	if !ok {
		t.Fatal("expected position to remain open")
	}
	if pos.Track != state.Track2 {
		t.Errorf("expected transition to Track 2, got track %d", pos.Track)
	}
}
