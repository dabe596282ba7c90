package execution

import (
	"context"
	"time"
)

const (
	twapMaxSlices     = 4
	twapSliceInterval = 45 * time.Second

	// twapVolumeThreshold is the fraction of average daily volume above
	// which a requested qty triggers TWAP splitting instead of a single
	// fallback-chain entry (spec §4.4.5).
	twapVolumeThreshold = 0.005
)

// TickSpeedSource reports tick velocity for a code, used to abort
// remaining TWAP slices if the market has gone quiet.
type TickSpeedSource interface {
	TickSpeed(code string) int
}

// TWAPResult is the outcome of a full TWAP split.
type TWAPResult struct {
	Code           string
	Success        bool
	TotalFilled    int64
	SplitsPlanned  int
	SplitsExecuted int
	SliceResults   []EntryResult
}

// ShouldSplit reports whether qty (as a fraction of avgDailyVolume) is
// large enough to warrant TWAP splitting (spec §4.4.5).
func ShouldSplit(qty int64, avgDailyVolume float64) bool {
	if avgDailyVolume <= 0 {
		return false
	}
	return float64(qty)/avgDailyVolume >= twapVolumeThreshold
}

// RunTWAP splits qty into up to twapMaxSlices roughly-equal slices,
// separated by twapSliceInterval, each executed through the three-stage
// fallback chain. Before each slice after the first, it rechecks tick
// velocity; if it falls below velocityFloor, remaining slices are
// aborted.
func (e *Executor) RunTWAP(ctx context.Context, code string, qty int64, ask1 int64, velocitySource TickSpeedSource, velocityFloor int) TWAPResult {
	slices := planSlices(qty, twapMaxSlices)
	result := TWAPResult{Code: code, SplitsPlanned: len(slices)}

sliceLoop:
	for i, sliceQty := range slices {
		if i > 0 {
			if velocitySource != nil && velocitySource.TickSpeed(code) < velocityFloor {
				e.logger.Sugar().Infof("twap: aborting remaining slices for %s, tick velocity below floor", code)
				break sliceLoop
			}
			select {
			case <-ctx.Done():
				break sliceLoop
			case <-time.After(twapSliceInterval):
			}
		}

		r := e.BuyWithFallback(ctx, code, sliceQty, ask1)
		result.SliceResults = append(result.SliceResults, r)
		result.SplitsExecuted++
		result.TotalFilled += r.FilledQty

		if ctx.Err() != nil {
			break sliceLoop
		}
	}

	result.Success = result.TotalFilled > 0
	return result
}

// planSlices divides qty into up to n roughly-equal positive slices.
func planSlices(qty int64, n int) []int64 {
	if qty <= 0 {
		return nil
	}
	if int64(n) > qty {
		n = int(qty)
	}
	base := qty / int64(n)
	remainder := qty % int64(n)

	slices := make([]int64, n)
	for i := range slices {
		slices[i] = base
		if int64(i) < remainder {
			slices[i]++
		}
	}
	return slices
}
