// Package scheduler implements C1, the clock & scheduler component.
//
// It is a single KST-authoritative clock that emits named events at
// fixed wall-clock times, plus a periodic tick (~1.5s) during market
// hours. Handlers run on dedicated goroutines and must never block the
// scheduler; if a handler overruns its window, the next tick is skipped,
// not queued (spec §4.1).
package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/nitinkhare/quantumflow/internal/market"
)

// EventName identifies one of the fixed daily events (spec §4.1).
type EventName string

const (
	EventMacroReady       EventName = "MacroReady"
	EventScannerFirst     EventName = "ScannerFirst"
	EventTradingStart     EventName = "TradingStart"
	EventOpeningRushEnd   EventName = "OpeningRushEnd"
	EventScannerSecond    EventName = "ScannerSecond"
	EventTrack2Evaluation EventName = "Track2Evaluation"
	EventTrack1ForceClose EventName = "Track1ForceClose"
	EventMarketClose      EventName = "MarketClose"
	EventEndOfDayReport   EventName = "EndOfDayReport"
)

// fixedEvent pairs an event name with its KST time-of-day.
type fixedEvent struct {
	name           EventName
	hour, min, sec int
}

// dailySchedule is the ordered list of fixed daily events.
var dailySchedule = []fixedEvent{
	{EventMacroReady, 6, 0, 0},
	{EventScannerFirst, 8, 30, 0},
	{EventTradingStart, 9, 10, 0},
	{EventOpeningRushEnd, 9, 20, 0},
	{EventScannerSecond, 11, 30, 0},
	{EventTrack2Evaluation, 14, 30, 0},
	{EventTrack1ForceClose, 15, 10, 0},
	{EventMarketClose, 15, 30, 0},
	{EventEndOfDayReport, 15, 45, 0},
}

// TickInterval is the strategist tick cadence during market hours.
const TickInterval = 1500 * time.Millisecond

// EventHandler handles a fixed daily event.
type EventHandler func(ctx context.Context, now time.Time)

// TickHandler handles a periodic tick.
type TickHandler func(ctx context.Context, now time.Time)

// Scheduler drives the daily event sequence and the market-hour tick
// loop. It is the only component that reads the wall clock authoritatively;
// everything else receives `now` as a parameter.
type Scheduler struct {
	calendar *market.Calendar
	clock    market.Clock
	logger   *log.Logger

	handlers map[EventName]EventHandler
	onTick   TickHandler

	firedToday map[EventName]string // event -> date fired, to fire each event once per day
	tickBusy   atomic.Bool          // true while a tick handler is still running
}

// New creates a Scheduler bound to a calendar and clock.
func New(calendar *market.Calendar, clock market.Clock, logger *log.Logger) *Scheduler {
	if clock == nil {
		clock = market.RealClock{}
	}
	return &Scheduler{
		calendar:   calendar,
		clock:      clock,
		logger:     logger,
		handlers:   make(map[EventName]EventHandler),
		firedToday: make(map[EventName]string),
	}
}

// OnEvent registers a handler for a fixed daily event. Only one handler
// per event name; registering twice replaces the handler.
func (s *Scheduler) OnEvent(name EventName, h EventHandler) {
	s.handlers[name] = h
}

// OnTick registers the periodic market-hour tick handler.
func (s *Scheduler) OnTick(h TickHandler) {
	s.onTick = h
}

// Run blocks, driving the scheduler until ctx is cancelled. On a
// non-trading day the loop never starts firing events (spec §4.1); it
// still polls so the process can idle safely across a holiday.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var tickTicker *time.Ticker
	var tickC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if tickTicker != nil {
				tickTicker.Stop()
			}
			s.logger.Println("[scheduler] context cancelled, shutting down")
			return
		case <-ticker.C:
			now := s.clock.Now()
			s.checkFixedEvents(ctx, now)

			marketOpen := s.calendar.IsMarketOpen(now) && s.calendar.IsTradingDay(now)
			if marketOpen && tickTicker == nil {
				tickTicker = time.NewTicker(TickInterval)
				tickC = tickTicker.C
			} else if !marketOpen && tickTicker != nil {
				tickTicker.Stop()
				tickTicker = nil
				tickC = nil
			}
		case <-tickC:
			s.runTick(ctx)
		}
	}
}

// checkFixedEvents fires any event whose time-of-day has just been
// reached today and that hasn't already fired today.
func (s *Scheduler) checkFixedEvents(ctx context.Context, now time.Time) {
	if !s.calendar.IsTradingDay(now) {
		return
	}
	today := now.In(market.KST).Format("2006-01-02")

	for _, fe := range dailySchedule {
		eventTime := market.AtKST(now, fe.hour, fe.min, fe.sec)
		if now.Before(eventTime) {
			continue
		}
		if s.firedToday[fe.name] == today {
			continue
		}
		s.firedToday[fe.name] = today

		if fe.name == EventMacroReady {
			// Pre-open event: reset session-scoped state (blacklist, daily
			// counters) before firing any other event handlers.
			s.firedTodayReset(today)
		}

		h, ok := s.handlers[fe.name]
		if !ok {
			continue
		}
		s.dispatch(ctx, string(fe.name), func(ctx context.Context) {
			h(ctx, now)
		})
	}
}

// firedTodayReset drops any stale firedToday entries from a previous day,
// guaranteeing a fresh day's events all fire even if the process lives
// across midnight.
func (s *Scheduler) firedTodayReset(today string) {
	for name, date := range s.firedToday {
		if date != today {
			delete(s.firedToday, name)
		}
	}
	s.firedToday[EventMacroReady] = today
}

// runTick invokes the tick handler on its own goroutine. If the previous
// tick's handler is still running, the scheduler's own select loop is
// not blocked — the tick handler is expected to be reentrant-safe via
// C2; per spec §4.1, an overrunning handler causes the *next* tick to be
// skipped rather than queued, which falls out naturally here because we
// don't buffer ticks.
func (s *Scheduler) runTick(ctx context.Context) {
	if s.onTick == nil {
		return
	}
	// Skip, don't queue: if the previous tick's handler is still running,
	// drop this tick rather than stacking work (spec §4.1 suspension
	// semantics).
	if !s.tickBusy.CompareAndSwap(false, true) {
		s.logger.Println("[scheduler] previous tick still running, skipping")
		return
	}
	now := s.clock.Now()
	s.dispatch(ctx, "tick", func(ctx context.Context) {
		defer s.tickBusy.Store(false)
		s.onTick(ctx, now)
	})
}

// dispatch runs fn on its own goroutine and recovers a panic into a log
// line — a failing handler must never take down the scheduler.
func (s *Scheduler) dispatch(ctx context.Context, label string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Printf("[scheduler] handler %s panicked: %v", label, r)
			}
		}()
		fn(ctx)
	}()
}
