// Package execution implements the order executor (C4): the three-stage
// fallback chain that converts a logical "buy N shares at ask1" into a
// sequence of broker orders, plus TWAP splitting and the order-attempt
// log.
package execution

import "github.com/nitinkhare/quantumflow/internal/money"

// stageTicks are the tick offsets for the fallback chain's first two IOC
// stages — chosen conservatively (3 then 5) so worst-case slippage is
// bounded (spec §4.4.1, §4.4.2).
const (
	stage1Ticks = 3
	stage2Ticks = 5
)

// stageLimitPrice computes the tick-rounded limit price for a fallback
// stage, given ask1 in won.
func stageLimitPrice(ask1 int64, ticks int) int64 {
	return money.LimitPrice(ask1, ticks)
}
