// Package market handles market state awareness.
//
// Design rules (from spec):
//   - System must know if today is a trading day.
//   - System must know if the market is currently open.
//   - Do not rely only on time checks.
//   - Use exchange calendar data.
//   - One central MarketCalendar module, one KST-authoritative clock.
package market

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// KST is the Korea Standard Time location — the single timezone every
// scheduled event and tick in the core is authoritative against.
var KST *time.Location

func init() {
	var err error
	KST, err = time.LoadLocation("Asia/Seoul")
	if err != nil {
		panic(fmt.Sprintf("market: failed to load KST timezone: %v", err))
	}
}

// KRX market hours (KST).
const (
	MarketOpenHour  = 9
	MarketOpenMin   = 0
	MarketCloseHour = 15
	MarketCloseMin  = 30
)

// Calendar provides exchange calendar and market state information.
type Calendar struct {
	// holidays is a set of dates (YYYY-MM-DD) when KRX is closed.
	holidays map[string]string // date -> reason
}

// HolidayEntry represents a single exchange holiday.
type HolidayEntry struct {
	Date   string `json:"date"`   // YYYY-MM-DD
	Reason string `json:"reason"` // e.g., "Seollal", "Chuseok"
}

// DefaultKRXHolidays is the statically compiled KRX holiday set for the
// years the engine is expected to run unattended; updated yearly per
// spec §4.1. Source: KRX's published market holiday calendar.
func DefaultKRXHolidays() map[string]string {
	return map[string]string{
		"2026-01-01": "New Year's Day",
		"2026-02-16": "Seollal holiday",
		"2026-02-17": "Seollal",
		"2026-02-18": "Seollal holiday",
		"2026-03-01": "Independence Movement Day",
		"2026-03-02": "Independence Movement Day (observed)",
		"2026-05-05": "Children's Day",
		"2026-05-24": "Buddha's Birthday",
		"2026-06-06": "Memorial Day",
		"2026-08-15": "Liberation Day",
		"2026-09-24": "Chuseok holiday",
		"2026-09-25": "Chuseok",
		"2026-09-26": "Chuseok holiday",
		"2026-10-03": "National Foundation Day",
		"2026-10-09": "Hangul Day",
		"2026-12-25": "Christmas Day",
		"2026-12-31": "Market closure (year-end settlement)",
	}
}

// NewCalendar creates a Calendar from a JSON holiday file.
// The file should contain an array of HolidayEntry objects.
func NewCalendar(holidayFilePath string) (*Calendar, error) {
	data, err := os.ReadFile(holidayFilePath)
	if err != nil {
		return nil, fmt.Errorf("market calendar: read holidays file: %w", err)
	}

	var entries []HolidayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("market calendar: parse holidays: %w", err)
	}

	holidays := make(map[string]string, len(entries))
	for _, e := range entries {
		holidays[e.Date] = e.Reason
	}

	return &Calendar{holidays: holidays}, nil
}

// NewCalendarFromHolidays creates a Calendar directly from a holiday map.
// Useful for testing and as the fallback when no holiday file is configured.
func NewCalendarFromHolidays(holidays map[string]string) *Calendar {
	return &Calendar{holidays: holidays}
}

// IsTradingDay returns true if the given date is a valid trading day.
// A trading day is a weekday that is not an exchange holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	d := date.In(KST)

	if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		return false
	}

	dateStr := d.Format("2006-01-02")
	if _, isHoliday := c.holidays[dateStr]; isHoliday {
		return false
	}

	return true
}

// HolidayReason returns the reason for a holiday, or empty string if not a holiday.
func (c *Calendar) HolidayReason(date time.Time) string {
	dateStr := date.In(KST).Format("2006-01-02")
	return c.holidays[dateStr]
}

// IsMarketOpen returns true if KRX is currently in trading hours.
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	t := now.In(KST)

	if !c.IsTradingDay(t) {
		return false
	}

	currentMinutes := t.Hour()*60 + t.Minute()
	openMinutes := MarketOpenHour*60 + MarketOpenMin
	closeMinutes := MarketCloseHour*60 + MarketCloseMin

	return currentMinutes >= openMinutes && currentMinutes < closeMinutes
}

// TimeUntilNextSession returns the duration until the next market open.
// If the market is currently open, returns 0.
func (c *Calendar) TimeUntilNextSession(now time.Time) time.Duration {
	t := now.In(KST)

	if c.IsMarketOpen(t) {
		return 0
	}

	candidate := t
	for i := 0; i < 10; i++ {
		if i == 0 && c.IsTradingDay(candidate) {
			todayOpen := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
				MarketOpenHour, MarketOpenMin, 0, 0, KST)
			if t.Before(todayOpen) {
				return todayOpen.Sub(t)
			}
		}

		candidate = candidate.AddDate(0, 0, 1)
		if c.IsTradingDay(candidate) {
			nextOpen := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
				MarketOpenHour, MarketOpenMin, 0, 0, KST)
			return nextOpen.Sub(t)
		}
	}

	return 24 * time.Hour
}

// NextTradingDay returns the next trading day after the given date.
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	candidate := date.In(KST).AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// PreviousTradingDay returns the most recent trading day before the given date.
func (c *Calendar) PreviousTradingDay(date time.Time) time.Time {
	candidate := date.In(KST).AddDate(0, 0, -1)
	for i := 0; i < 10; i++ {
		if c.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, -1)
	}
	return candidate
}
