package main

import "time"

// MetricsResponse contains overall performance metrics derived from the
// closed-position history (storage.ClosedPositionRecord).
type MetricsResponse struct {
	TotalPnL       float64   `json:"total_pnl"`
	TotalPnLPercent float64  `json:"total_pnl_percent"`
	WinRate        float64   `json:"win_rate"`
	ProfitFactor   float64   `json:"profit_factor"`
	TotalTrades    int       `json:"total_trades"`
	WinningTrades  int       `json:"winning_trades"`
	LosingTrades   int       `json:"losing_trades"`
	GrossProfit    float64   `json:"gross_profit"`
	GrossLoss      float64   `json:"gross_loss"`
	AvgPnL         float64   `json:"avg_pnl"`
	InitialCapital float64   `json:"initial_capital"`
	FinalCapital   float64   `json:"final_capital"`
	Timestamp      time.Time `json:"timestamp"`
}

// ClosedPositionsResponse wraps a page of closed-position history.
type ClosedPositionsResponse struct {
	Positions []ClosedPositionView `json:"positions"`
	Timestamp time.Time            `json:"timestamp"`
}

// ClosedPositionView is the wire shape of one closed position.
type ClosedPositionView struct {
	Code        string    `json:"code"`
	Track       int       `json:"track"`
	Quantity    int64     `json:"quantity"`
	EntryPrice  int64     `json:"entry_price"`
	ExitPrice   int64     `json:"exit_price"`
	EntryTime   time.Time `json:"entry_time"`
	ExitTime    time.Time `json:"exit_time"`
	ExitReason  string    `json:"exit_reason"`
	RealizedPnL float64   `json:"realized_pnl"`
}

// DailyStatsResponse wraps one day's persisted stats snapshot.
type DailyStatsResponse struct {
	Date            time.Time `json:"date"`
	StartEquity     float64   `json:"start_equity"`
	EndEquity       float64   `json:"end_equity"`
	RealizedPnL     float64   `json:"realized_pnl"`
	RealizedPnLPct  float64   `json:"realized_pnl_pct"`
	TradeCount      int       `json:"trade_count"`
	RiskOffDeclared bool      `json:"risk_off_declared"`
}

// OrderAttemptsResponse wraps a page of the order-attempt log.
type OrderAttemptsResponse struct {
	Attempts  []OrderAttemptView `json:"attempts"`
	Timestamp time.Time          `json:"timestamp"`
}

// OrderAttemptView is the wire shape of one fallback-chain order attempt.
type OrderAttemptView struct {
	Code       string    `json:"code"`
	Kind       string    `json:"kind"`
	Qty        int64     `json:"qty"`
	Stage      int       `json:"stage"`
	FilledQty  int64     `json:"filled_qty"`
	Status     string    `json:"status"`
	PlacedAt   time.Time `json:"placed_at"`
	ErrorMsg   string    `json:"error_message,omitempty"`
}

// CandleData represents a single OHLCV candlestick.
type CandleData struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// CandlesResponse contains OHLCV history for a specific code.
type CandlesResponse struct {
	Code      string       `json:"code"`
	Candles   []CandleData `json:"candles"`
	FromDate  time.Time    `json:"from_date"`
	ToDate    time.Time    `json:"to_date"`
	Timestamp time.Time    `json:"timestamp"`
}

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}
