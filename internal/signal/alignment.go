package signal

import (
	"context"
	"time"

	"github.com/nitinkhare/quantumflow/internal/broker"
)

// Alignment is the 15-minute moving-average ordering verdict for a code
// (spec §4.7.1).
type Alignment int

const (
	// AlignmentNeutral means alignment could not be determined — fewer
	// than 3 usable 15-minute bars from either the realtime buffer or
	// the REST fallback. Entry is declined in this case.
	AlignmentNeutral Alignment = iota
	AlignmentBullish
	AlignmentBearish
)

func (a Alignment) String() string {
	switch a {
	case AlignmentBullish:
		return "BULLISH"
	case AlignmentBearish:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

// RestBarFetcher fetches the last n 15-minute bars for a code from the
// broker's REST endpoint, used as a fallback when the realtime 1-minute
// buffer hasn't accumulated enough history yet.
type RestBarFetcher interface {
	FetchFifteenMinuteBars(code string, n int) ([]Bar, error)
}

const fifteenMinutes = 15 * time.Minute

// CheckAlignment evaluates 15m-alignment for a code: MA(3) > MA(8) >
// MA(20) of closes on the 15-minute series (spec §4.7.1). With fewer
// than 8 or 20 bars, MA(8) and MA(20) are taken over all available bars.
// It resamples the realtime 1-minute buffer first; if that yields fewer
// than 20 bars, it falls back to rest.
func CheckAlignment(buf *BarBuffer, code string, rest RestBarFetcher) Alignment {
	bars15 := Resample(buf.OneMinute(code), fifteenMinutes)

	if len(bars15) < 20 && rest != nil {
		if fallback, err := rest.FetchFifteenMinuteBars(code, 20); err == nil && len(fallback) > len(bars15) {
			bars15 = fallback
		}
	}

	if len(bars15) < 3 {
		return AlignmentNeutral
	}

	ma3 := CalculateSMA(bars15, 3)
	ma8 := CalculateSMA(bars15, minInt(8, len(bars15)))
	ma20 := CalculateSMA(bars15, minInt(20, len(bars15)))

	if ma3 == 0 || ma8 == 0 || ma20 == 0 {
		return AlignmentNeutral
	}

	switch {
	case ma3 > ma8 && ma8 > ma20:
		return AlignmentBullish
	case ma3 < ma8 && ma8 < ma20:
		return AlignmentBearish
	default:
		return AlignmentNeutral
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Aligner adapts a BarBuffer into strategist.AlignmentSource: a code is
// aligned when its 15m series is bullish (spec §4.7.1). Bearish and
// neutral both decline entry, matching CheckAlignment's own semantics.
type Aligner struct {
	Buf  *BarBuffer
	Rest RestBarFetcher // optional REST fallback; nil is valid
}

// Aligned implements strategist.AlignmentSource.
func (a *Aligner) Aligned(code string) bool {
	return CheckAlignment(a.Buf, code, a.Rest) == AlignmentBullish
}

// BrokerBarFetcher adapts broker.Client's REST minute-bar endpoint into
// a RestBarFetcher, used as the Aligner's fallback when the realtime
// buffer hasn't accumulated 20 fifteen-minute bars yet.
type BrokerBarFetcher struct {
	Client broker.Client
}

// FetchFifteenMinuteBars implements RestBarFetcher.
func (f BrokerBarFetcher) FetchFifteenMinuteBars(code string, n int) ([]Bar, error) {
	bars, err := f.Client.InquireMinuteBars(context.Background(), code, 15, "", n)
	if err != nil {
		return nil, err
	}
	out := make([]Bar, len(bars))
	for i, b := range bars {
		out[i] = Bar{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out, nil
}
