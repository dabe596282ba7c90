// Package main is the entry point for the Quantum Flow trading engine.
//
// The engine wires together the shared state store (C2), the broker
// client (C3, either the KIS REST+websocket client or the in-process
// simulator), the order executor (C4), the position lifecycle manager
// (C5), the strategist tick loop (C6), and the independent market
// watcher, then drives them from a fixed daily schedule plus a 1.5s
// tick cadence during market hours.
//
// Run modes (spec §6):
//   --dry-run   simulate fills locally; no broker calls at all
//   --paper     connect to the broker's paper-trading endpoint
//   --real      connect to the broker's live endpoint (requires
//               --confirm-live and QF_LIVE_CONFIRMED=true)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nitinkhare/quantumflow/internal/broker"
	"github.com/nitinkhare/quantumflow/internal/config"
	"github.com/nitinkhare/quantumflow/internal/errs"
	"github.com/nitinkhare/quantumflow/internal/execution"
	"github.com/nitinkhare/quantumflow/internal/ingest"
	"github.com/nitinkhare/quantumflow/internal/market"
	"github.com/nitinkhare/quantumflow/internal/metrics"
	"github.com/nitinkhare/quantumflow/internal/notifier"
	"github.com/nitinkhare/quantumflow/internal/position"
	"github.com/nitinkhare/quantumflow/internal/risk"
	"github.com/nitinkhare/quantumflow/internal/scheduler"
	tradesignal "github.com/nitinkhare/quantumflow/internal/signal"
	"github.com/nitinkhare/quantumflow/internal/state"
	"github.com/nitinkhare/quantumflow/internal/storage"
	"github.com/nitinkhare/quantumflow/internal/strategist"
	"github.com/nitinkhare/quantumflow/internal/watcher"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 normal shutdown, 1 fatal
// configuration error, 2 unhandled runtime error (spec §6).
func run() int {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	dryRun := flag.Bool("dry-run", false, "simulate fills locally; no broker calls")
	paper := flag.Bool("paper", false, "force paper-trading mode regardless of config")
	real := flag.Bool("real", false, "force live-trading mode regardless of config")
	confirmLive := flag.Bool("confirm-live", false, "required safety flag to run in live trading mode")
	metricsPort := flag.Int("metrics-port", 9090, "port to serve /metrics on (0 disables)")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: logger init: %v\n", err)
		return 1
	}
	defer zapLogger.Sync()
	stdLogger := log.New(os.Stdout, "[engine] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		zapLogger.Error("config load failed", zap.Error(err))
		return 1
	}
	cfg.DryRun = *dryRun
	if *paper {
		cfg.UsePaper = true
	}
	if *real {
		cfg.UsePaper = false
	}

	if !cfg.UsePaper && !cfg.DryRun {
		if !*confirmLive || os.Getenv("QF_LIVE_CONFIRMED") != "true" {
			fmt.Fprintln(os.Stderr, "live mode requires --confirm-live AND QF_LIVE_CONFIRMED=true")
			return 1
		}
	}

	zapLogger.Info("starting",
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("mode", string(cfg.ActiveMode())),
		zap.Float64("capital", cfg.Capital),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	if *metricsPort > 0 {
		startMetricsServer(*metricsPort, zapLogger)
	}

	eng, err := buildEngine(ctx, cfg, zapLogger, stdLogger, reg)
	if err != nil {
		zapLogger.Error("engine build failed", zap.Error(err))
		return 1
	}
	defer eng.Close(context.Background())

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		zapLogger.Error("engine run failed", zap.Error(err))
		return 2
	}

	zapLogger.Info("shutdown complete")
	return 0
}

// startMetricsServer exposes the prometheus registry on /metrics. Errors
// after startup are logged, not fatal: a scrape outage should never take
// the engine down with it.
func startMetricsServer(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

// engine bundles every wired component for the lifetime of one process.
type engine struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *state.Store
	calendar   *market.Calendar
	clock      market.Clock
	brokerCli  broker.Client
	executor   *execution.Executor
	posMgr     *position.Manager
	strat      *strategist.Strategist
	watch      *watcher.Watcher
	notif      *notifier.Notifier
	ingestSrv  *ingest.Server
	breaker    *risk.CircuitBreaker
	sched      *scheduler.Scheduler
	storageDB  storage.Store
	barBuf     *tradesignal.BarBuffer
	metrics    *metrics.Registry

	quotesMu sync.RWMutex
	quotes   map[state.Code]state.Quote
}

func buildEngine(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger, stdLogger *log.Logger, reg *metrics.Registry) (*engine, error) {
	calendar, err := market.NewCalendar(cfg.MarketCalendarPath)
	if err != nil {
		zapLogger.Warn("market calendar: falling back to built-in KRX holidays", zap.Error(err))
		calendar = market.NewCalendarFromHolidays(market.DefaultKRXHolidays())
	}
	clock := market.RealClock{}

	storageDB, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	st := state.New()

	var brokerCli broker.Client
	if cfg.DryRun {
		brokerCli = broker.NewSimClient(cfg.Capital)
	} else {
		creds := cfg.ActiveCreds()
		brokerCli = broker.NewKISClient(broker.KISConfig{
			BaseURL:       creds.BaseURL,
			AppKey:        creds.AppKey,
			AppSecret:     creds.AppSecret,
			AccountNo:     creds.AccountNo,
			ProductCd:     creds.ProductCd,
			IsPaper:       cfg.UsePaper,
			TokenCacheDir: cfg.OutputsDir,
			Logger:        zapLogger,
			OnReconnect:   func() { reg.WebsocketReconnects.Inc() },
			OnRateLimitWait: func(d time.Duration) { reg.RateLimiterWaitSecs.Observe(d.Seconds()) },
		})
		if kc, ok := brokerCli.(interface{ PreWarm(context.Context) error }); ok {
			if err := kc.PreWarm(ctx); err != nil {
				zapLogger.Warn("broker: prewarm failed, continuing", zap.Error(err))
			}
		}
	}

	bal, err := brokerCli.InquireBalance(ctx)
	startEquity := cfg.Capital
	if err == nil && bal.TotalEvaluationKRW > 0 {
		startEquity = bal.TotalEvaluationKRW
	} else if err != nil {
		zapLogger.Warn("broker: initial balance inquiry failed, using configured capital", zap.Error(err))
	}
	st.ResetDailyCounters(startEquity)

	notif := notifier.New(notifier.Config{
		WebhookURL: cfg.Notifier.WebhookURL,
		Enabled:    cfg.Notifier.WebhookURL != "",
	}, zapLogger)

	orderLog := execution.NewOrderLog(cfg.OutputsDir, zapLogger)
	executor := execution.NewExecutor(brokerCli, orderLog, notif, zapLogger, cfg.DryRun)

	posMgr := position.New(st)

	barBuf := tradesignal.NewBarBuffer()
	aligner := &tradesignal.Aligner{Buf: barBuf, Rest: tradesignal.BrokerBarFetcher{Client: brokerCli}}

	macroSource := watcher.NewStateMacroSource(st)
	adjudicator := watcher.NewHTTPAdjudicator(cfg.Adjudicator.BaseURL, cfg.Adjudicator.APIKey, cfg.Adjudicator.Model)
	watch := watcher.New(st, macroSource, adjudicator, notif, zapLogger)

	strat := strategist.New(st, executor, posMgr, func() config.SizingConfig { return cfg.Sizing }, aligner, watch, zapLogger)

	ingestSrv := ingest.New(ingest.Config{Port: cfg.Ingest.Port}, st, zapLogger)
	if err := ingestSrv.Start(); err != nil {
		return nil, fmt.Errorf("ingest server: %w", err)
	}

	breaker := risk.NewCircuitBreaker(cfg.CircuitBreaker, stdLogger)

	sched := scheduler.New(calendar, clock, stdLogger)

	eng := &engine{
		cfg:       cfg,
		logger:    zapLogger,
		store:     st,
		calendar:  calendar,
		clock:     clock,
		brokerCli: brokerCli,
		executor:  executor,
		posMgr:    posMgr,
		strat:     strat,
		watch:     watch,
		notif:     notif,
		ingestSrv: ingestSrv,
		breaker:   breaker,
		sched:     sched,
		storageDB: storageDB,
		barBuf:    barBuf,
		metrics:   reg,
		quotes:    make(map[state.Code]state.Quote),
	}
	eng.registerEvents()
	return eng, nil
}

// registerEvents wires the fixed daily schedule (spec §4.1) and the
// 1.5s strategist tick to the scheduler.
func (e *engine) registerEvents() {
	e.sched.OnEvent(scheduler.EventMacroReady, func(ctx context.Context, now time.Time) {
		e.store.ClearBlacklist()
		e.watch.ResetDaily()
		e.logger.Info("daily reset complete", zap.Time("now", now))
	})
	e.sched.OnEvent(scheduler.EventScannerFirst, func(ctx context.Context, now time.Time) {
		e.logger.Info("scanner first pass window open; awaiting ingest", zap.Time("now", now))
	})
	e.sched.OnEvent(scheduler.EventTradingStart, func(ctx context.Context, now time.Time) {
		e.logger.Info("trading session started", zap.Time("now", now))
	})
	e.sched.OnEvent(scheduler.EventOpeningRushEnd, func(ctx context.Context, now time.Time) {
		e.logger.Info("opening rush window elapsed", zap.Time("now", now))
	})
	e.sched.OnEvent(scheduler.EventScannerSecond, func(ctx context.Context, now time.Time) {
		e.logger.Info("scanner second pass window open; awaiting ingest", zap.Time("now", now))
	})
	e.sched.OnEvent(scheduler.EventTrack2Evaluation, func(ctx context.Context, now time.Time) {
		e.strat.HandleTrack2Evaluation(ctx, now, e.snapshotQuotes())
	})
	e.sched.OnEvent(scheduler.EventTrack1ForceClose, func(ctx context.Context, now time.Time) {
		e.strat.HandleForceClose(ctx)
	})
	e.sched.OnEvent(scheduler.EventMarketClose, func(ctx context.Context, now time.Time) {
		e.logger.Info("market closed", zap.Time("now", now))
	})
	e.sched.OnEvent(scheduler.EventEndOfDayReport, func(ctx context.Context, now time.Time) {
		e.emitEndOfDayReport(ctx, now)
	})

	e.sched.OnTick(func(ctx context.Context, now time.Time) {
		e.runTick(ctx, now)
	})
}

// runTick executes one strategist cycle and folds the result into the
// circuit breaker (spec §7's transient-failure escalation path).
func (e *engine) runTick(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() { e.metrics.TickDurationSecs.Observe(time.Since(start).Seconds()) }()

	equity, err := e.totalEquity(ctx)
	if err != nil {
		e.logger.Warn("tick: equity lookup failed, skipping", zap.Error(err))
		return
	}

	summary := e.strat.Tick(ctx, now, e.snapshotQuotes(), equity)

	for _, entry := range summary.Entries {
		success := strconv.FormatBool(entry.Success)
		e.metrics.OrderAttempts.WithLabelValues("buy", success).Inc()
		if entry.Success {
			e.metrics.OrderStageUsed.WithLabelValues(strconv.Itoa(entry.StageUsed)).Inc()
			e.breaker.RecordSuccess()
		} else {
			var typed *errs.Error
			if errors.As(entry.Error, &typed) && typed.Kind == errs.BrokerLogical {
				// The broker rejected the order on its own terms (bad qty,
				// insufficient balance) — not a sign the broker itself is
				// unhealthy, so it shouldn't count toward the breaker.
				e.logger.Warn("entry rejected by broker", zap.String("code", entry.Code), zap.Error(entry.Error))
			} else {
				e.breaker.RecordFailure(fmt.Sprintf("entry %s: %v", entry.Code, entry.Error))
			}
		}
	}

	if e.breaker.IsTripped() {
		e.store.UpdateRiskParams(func(rp state.RiskParams) state.RiskParams {
			rp.RiskLevel = state.RiskCritical
			rp.PyramidingAllowed = false
			return rp
		})
		e.logger.Warn("circuit breaker tripped; entries tightened", zap.String("reason", e.breaker.TripReason()))
	}

	e.metrics.OpenPositions.Set(float64(e.store.PositionCount()))
	e.metrics.Track2Positions.Set(float64(e.store.Track2Population()))
	e.metrics.DailyRealizedPnL.Set(e.store.DailyLossFraction() * equity)
}

// totalEquity implements strategist.EquitySource against the live
// broker balance.
func (e *engine) totalEquity(ctx context.Context) (float64, error) {
	bal, err := e.executor.GetBalance(ctx)
	if err != nil {
		return 0, err
	}
	return bal.TotalEvaluationKRW, nil
}

func (e *engine) snapshotQuotes() map[state.Code]state.Quote {
	e.quotesMu.RLock()
	defer e.quotesMu.RUnlock()
	out := make(map[state.Code]state.Quote, len(e.quotes))
	for k, v := range e.quotes {
		out[k] = v
	}
	return out
}

// setQuote merges an incremental update into the cached snapshot for
// code; fields left at zero keep their cached value. A trade carries no
// book side and a quote carries no traded price, so the quote stream's
// caller passes the quote's bid as LastPrice.
func (e *engine) setQuote(code state.Code, partial state.Quote) {
	e.quotesMu.Lock()
	defer e.quotesMu.Unlock()

	merged := e.quotes[code]
	merged.Code = code
	merged.TickTimestamp = partial.TickTimestamp
	if partial.LastPrice != 0 {
		merged.LastPrice = partial.LastPrice
	}
	if partial.Ask1 != 0 {
		merged.Ask1 = partial.Ask1
	}
	if partial.Bid1 != 0 {
		merged.Bid1 = partial.Bid1
	}
	if partial.Volume != 0 {
		merged.Volume = partial.Volume
	}
	e.quotes[code] = merged
}

func (e *engine) emitEndOfDayReport(ctx context.Context, now time.Time) {
	rec := &storage.DailyStatsRecord{
		Date:        now.Truncate(24 * time.Hour),
		RealizedPnL: e.store.DailyLossFraction(),
		CreatedAt:   now,
	}
	if err := e.storageDB.SaveDailyStats(ctx, rec); err != nil {
		e.logger.Error("end-of-day stats persist failed", zap.Error(err))
	}
	if err := e.notif.Send(ctx, fmt.Sprintf("end of day: realized P&L fraction %.4f", rec.RealizedPnL)); err != nil {
		e.logger.Warn("end-of-day notification failed", zap.Error(err))
	}
}

// Run subscribes to every watchlist code's websocket feed, starts the
// market watcher's independent sampling loop, and blocks on the
// scheduler until ctx is cancelled.
func (e *engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runFeedSubscriber(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := e.watch.Run(ctx, 10*time.Second, func() time.Time { return e.clock.Now() }); err != nil && ctx.Err() == nil {
			e.logger.Error("market watcher stopped unexpectedly", zap.Error(err))
		}
	}()

	e.sched.Run(ctx)
	wg.Wait()
	return nil
}

// runFeedSubscriber re-subscribes to the watchlist's websocket streams
// whenever the watchlist changes, feeding both the quote cache used by
// strategist.Tick and the 1-minute bar buffer used for 15m alignment.
// broker.SimClient's feed never emits data in dry-run (spec §6): an
// empty quotes map is handled safely by strategist.Tick, which skips
// any watchlist candidate with no quote, so no dry-run special case is
// needed here.
func (e *engine) runFeedSubscriber(ctx context.Context) {
	subscribed := make(map[string]context.CancelFunc)
	defer func() {
		for _, cancel := range subscribed {
			cancel()
		}
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, entry := range e.store.GetWatchlist() {
				code := string(entry.Code)
				if _, ok := subscribed[code]; ok {
					continue
				}
				subCtx, cancel := context.WithCancel(ctx)
				subscribed[code] = cancel
				e.subscribeCode(subCtx, code)
			}
		}
	}
}

func (e *engine) subscribeCode(ctx context.Context, code string) {
	quoteCh, err := e.brokerCli.SubscribeQuote(ctx, code)
	if err != nil {
		e.logger.Warn("subscribe quote failed", zap.String("code", code), zap.Error(err))
		return
	}
	tradeCh, err := e.brokerCli.SubscribeTrade(ctx, code)
	if err != nil {
		e.logger.Warn("subscribe trade failed", zap.String("code", code), zap.Error(err))
		return
	}

	agg := &minuteAggregator{code: code, buf: e.barBuf}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case q, ok := <-quoteCh:
				if !ok {
					return
				}
				e.setQuote(state.Code(code), state.Quote{
					Code:          state.Code(code),
					LastPrice:     int64(q.Bid1),
					Ask1:          int64(q.Ask1),
					Bid1:          int64(q.Bid1),
					TickTimestamp: q.Timestamp,
				})
			case t, ok := <-tradeCh:
				if !ok {
					return
				}
				e.setQuote(state.Code(code), state.Quote{
					Code:          state.Code(code),
					LastPrice:     int64(t.Price),
					Volume:        t.Volume,
					TickTimestamp: t.Timestamp,
				})
				agg.onTrade(t)
			}
		}
	}()
}

// minuteAggregator folds a trade stream into closed 1-minute bars for
// the alignment buffer (spec §4.7.1 resamples this into 15m series).
type minuteAggregator struct {
	code  string
	buf   *tradesignal.BarBuffer
	slot  time.Time
	bar   tradesignal.Bar
	open  bool
}

func (a *minuteAggregator) onTrade(t broker.Trade) {
	slot := t.Timestamp.Truncate(time.Minute)
	if !a.open {
		a.slot = slot
		a.bar = tradesignal.Bar{Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price, Volume: t.Volume}
		a.open = true
		return
	}
	if slot.Equal(a.slot) {
		a.bar.High = max(a.bar.High, t.Price)
		a.bar.Low = min(a.bar.Low, t.Price)
		a.bar.Close = t.Price
		a.bar.Volume += t.Volume
		return
	}
	a.buf.Append(a.code, a.bar, a.slot)
	a.slot = slot
	a.bar = tradesignal.Bar{Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price, Volume: t.Volume}
}

// Close shuts down the ingest server and notifier.
func (e *engine) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.ingestSrv.Shutdown(shutdownCtx); err != nil {
		e.logger.Warn("ingest server shutdown", zap.Error(err))
	}
	e.notif.Shutdown()
}
