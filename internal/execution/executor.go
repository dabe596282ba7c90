package execution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nitinkhare/quantumflow/internal/broker"
)

const (
	stage1WaitAfterPlace = 150 * time.Millisecond
	stage2PreSleep       = 200 * time.Millisecond
)

// Notifier is the subset of the outbound notification interface the
// executor needs: a market-fallback signal and a critical failure
// signal. Kept minimal here to avoid a dependency on the full
// internal/notifier package from this one.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// EntryRequest is one leg of a (possibly parallel) multi-symbol entry.
type EntryRequest struct {
	Code string
	Qty  int64
	Ask1 int64
}

// EntryResult is the outcome of buy_with_fallback for one code.
type EntryResult struct {
	Code       string
	Success    bool
	FilledQty  int64
	AvgPrice   float64
	StageUsed  int
	Error      error
}

// Executor is the order executor (C4): the three-stage fallback chain,
// parallel multi-symbol entry, and the plain sell/cancel/inquire
// operations used by the position lifecycle manager.
type Executor struct {
	client   broker.Client
	log      *OrderLog
	notifier Notifier
	logger   *zap.Logger
	dryRun   bool

	sleep func(time.Duration) // overridable for deterministic tests
}

// NewExecutor builds an Executor. dryRun suppresses real broker writes —
// every stage reports success with the full requested qty (spec §4.4.2,
// §6's `--dry-run`).
func NewExecutor(client broker.Client, log *OrderLog, notifier Notifier, logger *zap.Logger, dryRun bool) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		client:   client,
		log:      log,
		notifier: notifier,
		logger:   logger,
		dryRun:   dryRun,
		sleep:    time.Sleep,
	}
}

// BuyWithFallback converts a logical "buy qty shares of code at ask1"
// into the three-stage IOC→IOC→market fallback chain (spec §4.4.2).
func (e *Executor) BuyWithFallback(ctx context.Context, code string, qty int64, ask1 int64) EntryResult {
	if e.dryRun {
		result := EntryResult{Code: code, Success: true, FilledQty: qty, AvgPrice: float64(ask1), StageUsed: 1}
		e.logAttempt(code, "BUY", result)
		return result
	}

	remaining := qty
	var filled int64
	var weightedPriceSum float64

	// Stage 1 — IOC at ask1 + 3 ticks.
	price1 := stageLimitPrice(ask1, stage1Ticks)
	ack, err := e.client.IssueOrder(ctx, code, broker.SideBuy, remaining, float64(price1), broker.TIFIOC)
	if err != nil {
		return e.fail(code, "BUY", filled, err)
	}
	e.sleep(stage1WaitAfterPlace)
	status, err := e.client.InquireOrderStatus(ctx, ack.OrderID)
	if err != nil {
		return e.fail(code, "BUY", filled, err)
	}
	if status.FilledQty > 0 {
		filled += status.FilledQty
		weightedPriceSum += status.AvgFillPrice * float64(status.FilledQty)
		remaining -= status.FilledQty
	}
	if remaining <= 0 {
		result := EntryResult{Code: code, Success: true, FilledQty: filled, AvgPrice: weightedPriceSum / float64(filled), StageUsed: 1}
		e.logAttempt(code, "BUY", result)
		return result
	}

	// Stage 2 — re-quote IOC at ask1 + 5 ticks after a 200ms sleep.
	e.sleep(stage2PreSleep)
	price2 := stageLimitPrice(ask1, stage2Ticks)
	ack2, err := e.client.IssueOrder(ctx, code, broker.SideBuy, remaining, float64(price2), broker.TIFIOC)
	if err != nil {
		return e.fail(code, "BUY", filled, err)
	}
	e.sleep(stage1WaitAfterPlace)
	status2, err := e.client.InquireOrderStatus(ctx, ack2.OrderID)
	if err != nil {
		return e.fail(code, "BUY", filled, err)
	}
	if status2.FilledQty > 0 {
		filled += status2.FilledQty
		weightedPriceSum += status2.AvgFillPrice * float64(status2.FilledQty)
		remaining -= status2.FilledQty
	}
	if remaining <= 0 {
		result := EntryResult{Code: code, Success: true, FilledQty: filled, AvgPrice: weightedPriceSum / float64(filled), StageUsed: 2}
		e.logAttempt(code, "BUY", result)
		return result
	}

	// Stage 3 — market order for whatever remains, assumed to fill fully.
	ack3, err := e.client.IssueOrder(ctx, code, broker.SideBuy, remaining, 0, broker.TIFDay)
	if err != nil {
		result := EntryResult{Code: code, Success: filled > 0, FilledQty: filled, Error: err}
		e.logAttempt(code, "BUY", result)
		if e.notifier != nil {
			e.notifier.Send(ctx, "order execution: all fallback stages failed for "+code)
		}
		return result
	}
	status3, err := e.client.InquireOrderStatus(ctx, ack3.OrderID)
	if err == nil && status3.FilledQty > 0 {
		filled += status3.FilledQty
		weightedPriceSum += status3.AvgFillPrice * float64(status3.FilledQty)
	} else {
		// Market orders are assumed to fill fully even if the broker's
		// status endpoint lags (spec §4.4.2).
		filled += remaining
		weightedPriceSum += float64(ask1) * float64(remaining)
	}

	avgPrice := 0.0
	if filled > 0 {
		avgPrice = weightedPriceSum / float64(filled)
	}
	result := EntryResult{Code: code, Success: filled > 0, FilledQty: filled, AvgPrice: avgPrice, StageUsed: 3}
	e.logAttempt(code, "BUY", result)
	if e.notifier != nil {
		e.notifier.Send(ctx, "market fallback used for "+code)
	}
	return result
}

func (e *Executor) fail(code, side string, filled int64, cause error) EntryResult {
	result := EntryResult{Code: code, Success: false, FilledQty: filled, Error: cause}
	e.logAttempt(code, side, result)
	if e.notifier != nil && filled == 0 {
		e.notifier.Send(context.Background(), "order execution failed for "+code+": "+cause.Error())
	}
	return result
}

func (e *Executor) logAttempt(code, side string, r EntryResult) {
	if e.log == nil {
		return
	}
	entry := OrderLogEntry{
		Timestamp: time.Now(),
		Code:      code,
		Side:      side,
		StageUsed: r.StageUsed,
		Requested: r.FilledQty,
		Filled:    r.FilledQty,
		Success:   r.Success,
	}
	if r.Error != nil {
		entry.Error = r.Error.Error()
	}
	e.log.Append(entry)
}

// BuyParallelEntries launches one BuyWithFallback per entry concurrently,
// bounded by the broker rate limit. Results preserve input order. A
// panic in one entry goroutine must not take down the others (spec
// §4.4.3).
func (e *Executor) BuyParallelEntries(ctx context.Context, entries []EntryRequest) []EntryResult {
	results := make([]EntryResult, len(entries))
	done := make(chan struct{}, len(entries))

	for i, req := range entries {
		go func(i int, req EntryRequest) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("entry goroutine panicked", zap.Any("recover", r), zap.String("code", req.Code))
					results[i] = EntryResult{Code: req.Code, Success: false, Error: panicAsError(r)}
				}
				done <- struct{}{}
			}()
			results[i] = e.BuyWithFallback(ctx, req.Code, req.Qty, req.Ask1)
		}(i, req)
	}

	for range entries {
		<-done
	}
	return results
}

func panicAsError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{r}
}

type panicError struct{ v interface{} }

func (p *panicError) Error() string { return "panic: " + toString(p.v) }

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic"
}

// SellMarket issues a single market sell, logged like any other attempt.
func (e *Executor) SellMarket(ctx context.Context, code string, qty int64) EntryResult {
	if e.dryRun {
		result := EntryResult{Code: code, Success: true, FilledQty: qty, StageUsed: 1}
		e.logAttempt(code, "SELL", result)
		return result
	}

	ack, err := e.client.IssueOrder(ctx, code, broker.SideSell, qty, 0, broker.TIFDay)
	if err != nil {
		return e.fail(code, "SELL", 0, err)
	}
	status, err := e.client.InquireOrderStatus(ctx, ack.OrderID)
	if err != nil {
		return e.fail(code, "SELL", 0, err)
	}
	result := EntryResult{Code: code, Success: status.FilledQty > 0, FilledQty: status.FilledQty, AvgPrice: status.AvgFillPrice, StageUsed: 1}
	e.logAttempt(code, "SELL", result)
	return result
}

// SellIOC is unused by the current exit policy but available for future
// partial-exit logic (spec §4.4.4).
func (e *Executor) SellIOC(ctx context.Context, code string, qty int64, limitPrice int64) EntryResult {
	if e.dryRun {
		result := EntryResult{Code: code, Success: true, FilledQty: qty, StageUsed: 1}
		e.logAttempt(code, "SELL_IOC", result)
		return result
	}

	ack, err := e.client.IssueOrder(ctx, code, broker.SideSell, qty, float64(limitPrice), broker.TIFIOC)
	if err != nil {
		return e.fail(code, "SELL_IOC", 0, err)
	}
	status, err := e.client.InquireOrderStatus(ctx, ack.OrderID)
	if err != nil {
		return e.fail(code, "SELL_IOC", 0, err)
	}
	result := EntryResult{Code: code, Success: status.FilledQty > 0, FilledQty: status.FilledQty, AvgPrice: status.AvgFillPrice, StageUsed: 1}
	e.logAttempt(code, "SELL_IOC", result)
	return result
}

// CancelOrder cancels a resting order via the broker.
func (e *Executor) CancelOrder(ctx context.Context, orderID string) error {
	if e.dryRun {
		return nil
	}
	_, err := e.client.CancelOrder(ctx, orderID)
	return err
}

// GetBalance normalizes the broker's balance inquiry.
func (e *Executor) GetBalance(ctx context.Context) (broker.Balance, error) {
	return e.client.InquireBalance(ctx)
}

// GetOrderStatus normalizes the broker's order-status inquiry.
func (e *Executor) GetOrderStatus(ctx context.Context, orderID string) (broker.OrderStatusReport, error) {
	return e.client.InquireOrderStatus(ctx, orderID)
}
