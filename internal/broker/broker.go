// Package broker defines the broker abstraction layer (C3 in the design).
//
// Design rules:
//   - Only one broker is active at a time, switched by config, not code.
//   - No strategy or sizing logic inside broker.
//   - No AI logic inside broker.
//   - Broker APIs are used only for execution and account state.
package broker

import (
	"context"
	"time"
)

// Side is buy or sell.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TimeInForce controls how an order rests on the book.
type TimeInForce string

const (
	TIFIOC TimeInForce = "IOC"
	TIFDay TimeInForce = "DAY"
)

// OrderStatus is the normalized lifecycle state of an order, independent
// of whatever status strings the broker's native API returns.
type OrderStatus string

const (
	StatusPending OrderStatus = "PENDING"
	StatusPartial OrderStatus = "PARTIAL"
	StatusFilled  OrderStatus = "FILLED"
	StatusUnknown OrderStatus = "UNKNOWN"
	StatusError   OrderStatus = "ERROR"
)

// OrderAck is the immediate broker response to issue_order/cancel_order.
type OrderAck struct {
	OrderID    string
	StatusCode string
	Message    string
}

// OrderStatusReport is the normalized inquire_order_status response.
type OrderStatusReport struct {
	FilledQty    int64
	RemainingQty int64
	AvgFillPrice float64
	Status       OrderStatus
}

// BalanceHolding is one open position line from inquire_balance.
type BalanceHolding struct {
	Code         string
	Quantity     int64
	AveragePrice float64
	LastPrice    float64
}

// Balance is the normalized inquire_balance response.
type Balance struct {
	CashKRW            float64
	Positions          []BalanceHolding
	TotalEvaluationKRW float64
}

// MinuteBar is one OHLCV bar from inquire_minute_bars.
type MinuteBar struct {
	Open, High, Low, Close float64
	Volume                 int64
	Timestamp              time.Time
}

// Trade is one tick from the trade stream.
type Trade struct {
	Code      string
	Price     float64
	Volume    int64
	Timestamp time.Time
}

// Quote is one level-1 book update from the quote stream.
type Quote struct {
	Code      string
	Ask1      float64
	Bid1      float64
	Timestamp time.Time
}

// Client is the full broker contract (spec §6 EXTERNAL INTERFACES). A
// single implementation is active per process: SimClient for dry-run,
// the KIS REST+websocket client (KISClient) for both paper and live
// trading.
type Client interface {
	IssueOrder(ctx context.Context, code string, side Side, qty int64, limitPrice float64, tif TimeInForce) (OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) (OrderAck, error)
	InquireBalance(ctx context.Context) (Balance, error)
	InquireOrderStatus(ctx context.Context, orderID string) (OrderStatusReport, error)
	InquireMinuteBars(ctx context.Context, code string, intervalMinutes int, endHHMMSS string, count int) ([]MinuteBar, error)

	SubscribeTrade(ctx context.Context, code string) (<-chan Trade, error)
	SubscribeQuote(ctx context.Context, code string) (<-chan Quote, error)

	// TickSpeed returns tick_speed(code): count of trade timestamps
	// within the last 1.0s, from the 100-entry per-code ring (spec §4.3).
	TickSpeed(code string) int
}
