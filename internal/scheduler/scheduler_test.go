package scheduler

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/nitinkhare/quantumflow/internal/market"
)

func newTestScheduler(clock *market.FixedClock) *Scheduler {
	cal := market.NewCalendarFromHolidays(map[string]string{})
	return New(cal, clock, log.New(log.Writer(), "", 0))
}

func TestScheduler_FixedEventFiresOncePerDay(t *testing.T) {
	// Monday.
	clock := market.NewFixedClock(time.Date(2026, 2, 2, 9, 9, 59, 0, market.KST))
	s := newTestScheduler(clock)

	var mu sync.Mutex
	fireCount := 0
	done := make(chan struct{}, 10)
	s.OnEvent(EventTradingStart, func(ctx context.Context, now time.Time) {
		mu.Lock()
		fireCount++
		mu.Unlock()
		done <- struct{}{}
	})

	// Before 09:10:00 — should not fire.
	s.checkFixedEvents(context.Background(), clock.Now())
	mu.Lock()
	if fireCount != 0 {
		t.Errorf("expected no fire before event time, got %d", fireCount)
	}
	mu.Unlock()

	// At 09:10:00 — should fire.
	clock.Set(time.Date(2026, 2, 2, 9, 10, 0, 0, market.KST))
	s.checkFixedEvents(context.Background(), clock.Now())
	<-done

	// Later the same day — must not re-fire.
	clock.Set(time.Date(2026, 2, 2, 9, 10, 5, 0, market.KST))
	s.checkFixedEvents(context.Background(), clock.Now())

	mu.Lock()
	defer mu.Unlock()
	if fireCount != 1 {
		t.Errorf("expected exactly 1 fire, got %d", fireCount)
	}
}

func TestScheduler_NoEventsOnHoliday(t *testing.T) {
	cal := market.NewCalendarFromHolidays(map[string]string{"2026-02-02": "test holiday"})
	clock := market.NewFixedClock(time.Date(2026, 2, 2, 9, 10, 0, 0, market.KST))
	s := New(cal, clock, log.New(log.Writer(), "", 0))

	fired := false
	s.OnEvent(EventTradingStart, func(ctx context.Context, now time.Time) { fired = true })
	s.checkFixedEvents(context.Background(), clock.Now())

	if fired {
		t.Error("expected no events to fire on a holiday")
	}
}

func TestScheduler_TickSkippedWhileBusy(t *testing.T) {
	clock := market.NewFixedClock(time.Date(2026, 2, 2, 10, 0, 0, 0, market.KST))
	s := newTestScheduler(clock)

	release := make(chan struct{})
	var calls int32
	var mu sync.Mutex
	s.OnTick(func(ctx context.Context, now time.Time) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
	})

	s.runTick(context.Background()) // occupies tickBusy
	s.runTick(context.Background()) // should be skipped
	close(release)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("expected exactly 1 tick to run, got %d", calls)
	}
}
