package market

import "time"

// Clock abstracts wall-clock reads so schedulers and time-dependent
// filters (opening-rush, 14:30 transition, 15:10 force close) are
// testable without sleeping. Production code uses RealClock; tests
// inject a fixed or steppable clock.
type Clock interface {
	Now() time.Time
}

// RealClock returns time.Now() in KST.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now().In(KST) }

// FixedClock is a test clock that always returns the same instant until
// advanced.
type FixedClock struct {
	t time.Time
}

// NewFixedClock builds a FixedClock at t.
func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{t: t.In(KST)} }

// Now implements Clock.
func (f *FixedClock) Now() time.Time { return f.t }

// Advance moves the fixed clock forward by d.
func (f *FixedClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

// Set moves the fixed clock to an absolute instant.
func (f *FixedClock) Set(t time.Time) { f.t = t.In(KST) }

// HHMMSS formats a time as the six-digit broker wire format used for
// minute-bar endpoint cursors and order-attempt timestamps.
func HHMMSS(t time.Time) string {
	return t.In(KST).Format("150405")
}

// AtKST builds a time.Time for today (relative to ref) at the given
// hour/minute/second in KST — used to compare "now" against the fixed
// daily event times in spec §4.1.
func AtKST(ref time.Time, hour, min, sec int) time.Time {
	r := ref.In(KST)
	return time.Date(r.Year(), r.Month(), r.Day(), hour, min, sec, 0, KST)
}
