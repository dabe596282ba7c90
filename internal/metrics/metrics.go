// Package metrics registers the core's prometheus collectors: order
// stage usage, rate-limiter wait time, websocket reconnects, and open
// position counts (SPEC_FULL.md §10 "Metrics"). Not part of the teacher,
// added because the pack's exchange-facing services (chidi150c-coinbase,
// benedict-anokye-davies-atlas-ai/trading-backend) all expose this.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every collector the engine updates, constructed once
// in cmd/engine and threaded through to the components that report.
type Registry struct {
	OrderStageUsed      *prometheus.CounterVec
	OrderAttempts       *prometheus.CounterVec
	RateLimiterWaitSecs prometheus.Histogram
	WebsocketReconnects prometheus.Counter
	OpenPositions       prometheus.Gauge
	Track2Positions     prometheus.Gauge
	DailyRealizedPnL    prometheus.Gauge
	TickDurationSecs    prometheus.Histogram
}

// New registers all collectors against the default registerer. Safe to
// call once per process.
func New() *Registry {
	return &Registry{
		OrderStageUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quantumflow_order_stage_used_total",
			Help: "Count of fallback-chain entries completed at each stage (1, 2, or 3).",
		}, []string{"stage"}),
		OrderAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quantumflow_order_attempts_total",
			Help: "Count of order attempts by side and outcome.",
		}, []string{"side", "success"}),
		RateLimiterWaitSecs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quantumflow_rate_limiter_wait_seconds",
			Help:    "Time spent waiting to acquire a broker rate-limit token.",
			Buckets: prometheus.DefBuckets,
		}),
		WebsocketReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quantumflow_websocket_reconnects_total",
			Help: "Count of websocket fan-out reconnect attempts.",
		}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quantumflow_open_positions",
			Help: "Current number of open positions.",
		}),
		Track2Positions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quantumflow_track2_positions",
			Help: "Current number of positions on Track 2 (overnight-eligible).",
		}),
		DailyRealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quantumflow_daily_realized_pnl_krw",
			Help: "Today's realized P&L in KRW.",
		}),
		TickDurationSecs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quantumflow_tick_duration_seconds",
			Help:    "Wall-clock duration of one strategist tick cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
