// Package storage - postgres.go provides the Postgres implementation of
// Store, backed by pgx's connection pool.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nitinkhare/quantumflow/internal/market"
	"github.com/nitinkhare/quantumflow/internal/state"
)

// PostgresStore implements Store using Postgres via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pooled connection to connStr and verifies it
// with a ping.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, fmt.Errorf("postgres store: connection string is required")
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (ps *PostgresStore) Close() {
	ps.pool.Close()
}

func (ps *PostgresStore) SaveCandles(ctx context.Context, candles []market.DailyCandle) error {
	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(`
			INSERT INTO daily_candles (code, date, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (code, date) DO UPDATE SET
				open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
				close = EXCLUDED.close, volume = EXCLUDED.volume`,
			c.Code, c.Date, c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	br := ps.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range candles {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres store: save candles: %w", err)
		}
	}
	return nil
}

func (ps *PostgresStore) GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]market.DailyCandle, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT code, date, open, high, low, close, volume
		FROM daily_candles WHERE code = $1 AND date BETWEEN $2 AND $3 ORDER BY date`,
		symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get candles: %w", err)
	}
	defer rows.Close()

	var out []market.DailyCandle
	for rows.Next() {
		var c market.DailyCandle
		if err := rows.Scan(&c.Code, &c.Date, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("postgres store: scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) GetLatestCandleDate(ctx context.Context, symbol string) (time.Time, error) {
	var date time.Time
	err := ps.pool.QueryRow(ctx, `SELECT MAX(date) FROM daily_candles WHERE code = $1`, symbol).Scan(&date)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres store: get latest candle date: %w", err)
	}
	return date, nil
}

func (ps *PostgresStore) SaveOrderAttempt(ctx context.Context, a *state.OrderAttempt) error {
	_, err := ps.pool.Exec(ctx, `
		INSERT INTO order_attempts
			(id, code, kind, qty, limit_price, stage, broker_order_id, filled_qty, status, placed_at, confirmed_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			filled_qty = EXCLUDED.filled_qty, status = EXCLUDED.status,
			confirmed_at = EXCLUDED.confirmed_at, error_message = EXCLUDED.error_message`,
		a.ID, a.Code, a.Kind, a.Qty, a.LimitPrice, a.Stage, a.BrokerOrderID, a.FilledQty, a.Status, a.PlacedAt, a.ConfirmedAt, a.ErrorMessage)
	if err != nil {
		return fmt.Errorf("postgres store: save order attempt: %w", err)
	}
	return nil
}

func (ps *PostgresStore) GetOrderAttempts(ctx context.Context, from, to time.Time) ([]state.OrderAttempt, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT id, code, kind, qty, limit_price, stage, broker_order_id, filled_qty, status, placed_at, confirmed_at, error_message
		FROM order_attempts WHERE placed_at BETWEEN $1 AND $2 ORDER BY placed_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get order attempts: %w", err)
	}
	defer rows.Close()

	var out []state.OrderAttempt
	for rows.Next() {
		var a state.OrderAttempt
		if err := rows.Scan(&a.ID, &a.Code, &a.Kind, &a.Qty, &a.LimitPrice, &a.Stage, &a.BrokerOrderID, &a.FilledQty, &a.Status, &a.PlacedAt, &a.ConfirmedAt, &a.ErrorMessage); err != nil {
			return nil, fmt.Errorf("postgres store: scan order attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) SaveClosedPosition(ctx context.Context, rec *ClosedPositionRecord) error {
	err := ps.pool.QueryRow(ctx, `
		INSERT INTO closed_positions
			(code, track, quantity, entry_price, exit_price, entry_time, exit_time, exit_reason, realized_pnl, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING id`,
		rec.Code, rec.Track, rec.Quantity, rec.EntryPrice, rec.ExitPrice, rec.EntryTime, rec.ExitTime, rec.ExitReason, rec.RealizedPnL,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("postgres store: save closed position: %w", err)
	}
	return nil
}

func (ps *PostgresStore) GetClosedPositions(ctx context.Context, from, to time.Time) ([]ClosedPositionRecord, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT id, code, track, quantity, entry_price, exit_price, entry_time, exit_time, exit_reason, realized_pnl, created_at
		FROM closed_positions WHERE exit_time BETWEEN $1 AND $2 ORDER BY exit_time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get closed positions: %w", err)
	}
	defer rows.Close()

	var out []ClosedPositionRecord
	for rows.Next() {
		var r ClosedPositionRecord
		if err := rows.Scan(&r.ID, &r.Code, &r.Track, &r.Quantity, &r.EntryPrice, &r.ExitPrice, &r.EntryTime, &r.ExitTime, &r.ExitReason, &r.RealizedPnL, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan closed position: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) SaveDailyStats(ctx context.Context, rec *DailyStatsRecord) error {
	_, err := ps.pool.Exec(ctx, `
		INSERT INTO daily_stats (date, start_equity, end_equity, realized_pnl, realized_pnl_pct, trade_count, risk_off_declared, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (date) DO UPDATE SET
			end_equity = EXCLUDED.end_equity, realized_pnl = EXCLUDED.realized_pnl,
			realized_pnl_pct = EXCLUDED.realized_pnl_pct, trade_count = EXCLUDED.trade_count,
			risk_off_declared = EXCLUDED.risk_off_declared`,
		rec.Date, rec.StartEquity, rec.EndEquity, rec.RealizedPnL, rec.RealizedPnLPct, rec.TradeCount, rec.RiskOffDeclared)
	if err != nil {
		return fmt.Errorf("postgres store: save daily stats: %w", err)
	}
	return nil
}

func (ps *PostgresStore) GetDailyStats(ctx context.Context, date time.Time) (*DailyStatsRecord, error) {
	var r DailyStatsRecord
	err := ps.pool.QueryRow(ctx, `
		SELECT date, start_equity, end_equity, realized_pnl, realized_pnl_pct, trade_count, risk_off_declared, created_at
		FROM daily_stats WHERE date = $1`, date,
	).Scan(&r.Date, &r.StartEquity, &r.EndEquity, &r.RealizedPnL, &r.RealizedPnLPct, &r.TradeCount, &r.RiskOffDeclared, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get daily stats: %w", err)
	}
	return &r, nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}
