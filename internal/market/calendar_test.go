package market

import (
	"testing"
	"time"
)

func makeTestCalendar() *Calendar {
	return NewCalendarFromHolidays(map[string]string{
		"2026-01-01": "New Year's Day",
		"2026-08-15": "Liberation Day",
		"2026-10-09": "Hangul Day",
	})
}

func TestCalendar_WeekdayIsTradingDay(t *testing.T) {
	cal := makeTestCalendar()
	// Monday, Feb 2, 2026.
	monday := time.Date(2026, 2, 2, 10, 0, 0, 0, KST)
	if !cal.IsTradingDay(monday) {
		t.Error("expected Monday to be a trading day")
	}
}

func TestCalendar_WeekendIsNotTradingDay(t *testing.T) {
	cal := makeTestCalendar()
	saturday := time.Date(2026, 2, 7, 10, 0, 0, 0, KST)
	sunday := time.Date(2026, 2, 8, 10, 0, 0, 0, KST)

	if cal.IsTradingDay(saturday) {
		t.Error("expected Saturday to not be a trading day")
	}
	if cal.IsTradingDay(sunday) {
		t.Error("expected Sunday to not be a trading day")
	}
}

func TestCalendar_HolidayIsNotTradingDay(t *testing.T) {
	cal := makeTestCalendar()
	liberationDay := time.Date(2026, 8, 15, 10, 0, 0, 0, KST)

	if cal.IsTradingDay(liberationDay) {
		t.Error("expected Liberation Day to not be a trading day")
	}
	if reason := cal.HolidayReason(liberationDay); reason != "Liberation Day" {
		t.Errorf("expected 'Liberation Day', got %q", reason)
	}
}

func TestCalendar_MarketOpenDuringTradingHours(t *testing.T) {
	cal := makeTestCalendar()
	during := time.Date(2026, 2, 2, 10, 30, 0, 0, KST)
	if !cal.IsMarketOpen(during) {
		t.Error("expected market to be open at 10:30 KST on trading day")
	}
}

func TestCalendar_MarketClosedBeforeOpen(t *testing.T) {
	cal := makeTestCalendar()
	before := time.Date(2026, 2, 2, 8, 59, 0, 0, KST)
	if cal.IsMarketOpen(before) {
		t.Error("expected market to be closed at 08:59 KST")
	}
}

func TestCalendar_MarketOpenAtOpeningBell(t *testing.T) {
	cal := makeTestCalendar()
	atOpen := time.Date(2026, 2, 2, 9, 0, 0, 0, KST)
	if !cal.IsMarketOpen(atOpen) {
		t.Error("expected market to be open exactly at 09:00 KST")
	}
}

func TestCalendar_MarketClosedAfterClose(t *testing.T) {
	cal := makeTestCalendar()
	after := time.Date(2026, 2, 2, 15, 31, 0, 0, KST)
	if cal.IsMarketOpen(after) {
		t.Error("expected market to be closed at 15:31 KST")
	}
}

func TestCalendar_MarketClosedOnWeekend(t *testing.T) {
	cal := makeTestCalendar()
	saturday := time.Date(2026, 2, 7, 10, 30, 0, 0, KST)
	if cal.IsMarketOpen(saturday) {
		t.Error("expected market to be closed on Saturday")
	}
}

func TestCalendar_TimeUntilNextSession(t *testing.T) {
	cal := makeTestCalendar()

	friday := time.Date(2026, 2, 6, 16, 0, 0, 0, KST)
	duration := cal.TimeUntilNextSession(friday)

	if duration <= 0 {
		t.Errorf("expected positive duration, got %v", duration)
	}

	during := time.Date(2026, 2, 2, 10, 30, 0, 0, KST)
	duration = cal.TimeUntilNextSession(during)
	if duration != 0 {
		t.Errorf("expected 0 during market hours, got %v", duration)
	}
}

func TestCalendar_NextTradingDay(t *testing.T) {
	cal := makeTestCalendar()

	friday := time.Date(2026, 2, 6, 0, 0, 0, 0, KST)
	next := cal.NextTradingDay(friday)

	if next.Weekday() != time.Monday {
		t.Errorf("expected Monday after Friday, got %s", next.Weekday())
	}
}

func TestCalendar_PreviousTradingDay(t *testing.T) {
	cal := makeTestCalendar()

	monday := time.Date(2026, 2, 9, 0, 0, 0, 0, KST)
	prev := cal.PreviousTradingDay(monday)

	if prev.Weekday() != time.Friday {
		t.Errorf("expected Friday before Monday, got %s", prev.Weekday())
	}
}

func TestDefaultKRXHolidays_NonEmpty(t *testing.T) {
	if len(DefaultKRXHolidays()) == 0 {
		t.Error("expected a non-empty compiled KRX holiday set")
	}
}
