package signal

import (
	"sync"
	"time"
)

// maxBars bounds the 1-minute buffer at roughly 7 market-hours per code
// (spec §4.7.1).
const maxBars = 420

// TimestampedBar pairs a Bar with the KST timestamp of its slot start,
// needed to resample onto 5m/15m boundaries.
type TimestampedBar struct {
	Bar
	At time.Time
}

// BarBuffer holds the realtime 1-minute bar history for every subscribed
// code and resamples it to 5m/15m on demand. One BarBuffer is shared by
// the engine's minute-bar writer and the strategist's alignment check;
// all access is mutex-protected since
// the websocket reader appends concurrently with tick-cycle reads.
type BarBuffer struct {
	mu   sync.RWMutex
	bars map[string][]TimestampedBar
}

// NewBarBuffer creates an empty buffer.
func NewBarBuffer() *BarBuffer {
	return &BarBuffer{bars: make(map[string][]TimestampedBar)}
}

// Append adds a completed 1-minute bar for code, evicting the oldest bar
// once the per-code buffer exceeds maxBars.
func (b *BarBuffer) Append(code string, bar Bar, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	series := append(b.bars[code], TimestampedBar{Bar: bar, At: at})
	if len(series) > maxBars {
		series = series[len(series)-maxBars:]
	}
	b.bars[code] = series
}

// OneMinute returns a copy of the raw 1-minute series for code.
func (b *BarBuffer) OneMinute(code string) []TimestampedBar {
	b.mu.RLock()
	defer b.mu.RUnlock()

	src := b.bars[code]
	out := make([]TimestampedBar, len(src))
	copy(out, src)
	return out
}

// Resample aggregates the 1-minute series for code into bars of the
// given interval, aligned to slot boundaries (09:00, 09:15, … for a
// 15-minute interval). Only fully-closed slots are returned — a slot
// still accumulating 1-minute bars is excluded.
func Resample(oneMin []TimestampedBar, interval time.Duration) []Bar {
	if len(oneMin) == 0 {
		return nil
	}

	slotStart := func(t time.Time) time.Time {
		return t.Truncate(interval)
	}

	var out []Bar
	var cur Bar
	var curSlot time.Time
	open := false

	flush := func() {
		if open {
			out = append(out, cur)
		}
	}

	for _, tb := range oneMin {
		s := slotStart(tb.At)
		if !open {
			cur = tb.Bar
			curSlot = s
			open = true
			continue
		}
		if s.Equal(curSlot) {
			cur.High = max(cur.High, tb.High)
			cur.Low = min(cur.Low, tb.Low)
			cur.Close = tb.Close
			cur.Volume += tb.Volume
			continue
		}
		flush()
		cur = tb.Bar
		curSlot = s
	}

	// The current (possibly partial) slot is never flushed — only
	// closed slots are reported, per spec §4.7.1.
	return out
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
