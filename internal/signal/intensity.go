package signal

// Intensity is the trade-intensity score for a code, in [0, 2] — buy-side
// vs sell-side aggregated volume in a rolling window, computed externally
// from the websocket trade feed and read from C2 (spec §4.7.2).
//
// A reading of exactly 0 is indistinguishable from "not yet computed" and
// is treated as missing: it can never satisfy a threshold, but it also
// never blocks an entry that doesn't require one.
type Intensity struct {
	Score   float64
	Present bool
}

// Meets reports whether the reading is present and at or above threshold.
// A missing reading always returns false without blocking the caller —
// callers must check Present separately if absence should disable rather
// than merely fail a check.
func (i Intensity) Meets(threshold float64) bool {
	return i.Present && i.Score >= threshold
}

// TickSpeed computes tick_speed(code): the count of tick arrival
// timestamps within the last 1.0s, read from a 100-entry ring buffer
// (spec §4's websocket fan-out description).
type TickSpeed struct {
	timestamps [100]int64 // unix nanos, ring buffer
	next       int
	filled     bool
}

// Record appends a tick arrival timestamp (unix nanos).
func (t *TickSpeed) Record(unixNano int64) {
	t.timestamps[t.next] = unixNano
	t.next = (t.next + 1) % len(t.timestamps)
	if t.next == 0 {
		t.filled = true
	}
}

// CountWithinLastSecond returns how many recorded timestamps fall within
// 1.0s of nowUnixNano.
func (t *TickSpeed) CountWithinLastSecond(nowUnixNano int64) int {
	cutoff := nowUnixNano - int64(1e9)
	n := len(t.timestamps)
	if !t.filled {
		n = t.next
	}

	count := 0
	for i := 0; i < n; i++ {
		if t.timestamps[i] >= cutoff && t.timestamps[i] <= nowUnixNano {
			count++
		}
	}
	return count
}
