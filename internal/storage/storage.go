// Package storage defines the persistence interfaces and types for the
// core's durable records: the daily order-attempt log (spec §4.4.6),
// closed-position history, and daily equity/P&L snapshots. Backed by
// Postgres in production (postgres.go); nothing else in the core talks
// to the database directly.
package storage

import (
	"context"
	"time"

	"github.com/nitinkhare/quantumflow/internal/market"
	"github.com/nitinkhare/quantumflow/internal/state"
)

// ClosedPositionRecord is a full lifecycle record for a position that
// has exited, kept for reporting and post-mortem review.
type ClosedPositionRecord struct {
	ID           int64
	Code         string
	Track        int
	Quantity     int64
	EntryPrice   int64
	ExitPrice    int64
	EntryTime    time.Time
	ExitTime     time.Time
	ExitReason   string
	RealizedPnL  float64
	CreatedAt    time.Time
}

// DailyStatsRecord is the end-of-day equity/P&L snapshot (spec §6's
// daily-stats reporting surface).
type DailyStatsRecord struct {
	Date              time.Time
	StartEquity       float64
	EndEquity         float64
	RealizedPnL       float64
	RealizedPnLPct    float64
	TradeCount        int
	RiskOffDeclared   bool
	CreatedAt         time.Time
}

// Store defines the complete storage interface for the trading system.
type Store interface {
	// Candle operations (implements market.DataStore).
	SaveCandles(ctx context.Context, candles []market.DailyCandle) error
	GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]market.DailyCandle, error)
	GetLatestCandleDate(ctx context.Context, symbol string) (time.Time, error)

	// Order-attempt log (spec §4.4.6): the append-only daily record of
	// every fallback-chain order attempt.
	SaveOrderAttempt(ctx context.Context, attempt *state.OrderAttempt) error
	GetOrderAttempts(ctx context.Context, from, to time.Time) ([]state.OrderAttempt, error)

	// Closed-position history.
	SaveClosedPosition(ctx context.Context, rec *ClosedPositionRecord) error
	GetClosedPositions(ctx context.Context, from, to time.Time) ([]ClosedPositionRecord, error)

	// Daily stats.
	SaveDailyStats(ctx context.Context, rec *DailyStatsRecord) error
	GetDailyStats(ctx context.Context, date time.Time) (*DailyStatsRecord, error)

	// Health check.
	Ping(ctx context.Context) error
}
