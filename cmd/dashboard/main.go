// Package main is the entry point for the Quantum Flow monitoring
// dashboard: a read-only HTTP/WebSocket API over the same Postgres
// database the engine writes closed-position and daily-stats history
// to, plus a LISTEN/NOTIFY-driven live feed of position and risk-off
// events.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/nitinkhare/quantumflow/internal/config"
	"github.com/nitinkhare/quantumflow/internal/dashboard"
	"github.com/nitinkhare/quantumflow/internal/storage"
)

// Server holds all dependencies for the dashboard API.
type Server struct {
	store       storage.Store
	cfg         *config.Config
	logger      *log.Logger
	port        string
	broadcaster *dashboard.Broadcaster
	listener    *dashboard.EventListener
}

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	port := flag.String("port", "8081", "dashboard server port")
	flag.Parse()

	logger := log.New(os.Stdout, "[dashboard] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}

	broadcaster := dashboard.NewBroadcaster(logger)
	eventListener := dashboard.NewEventListener(cfg.DatabaseURL, broadcaster, logger)

	server := &Server{
		store:       store,
		cfg:         cfg,
		logger:      logger,
		port:        *port,
		broadcaster: broadcaster,
		listener:    eventListener,
	}

	go broadcaster.Run()
	logger.Println("broadcaster: started")

	eventListener.Start(ctx)
	logger.Println("event listener: started")

	go server.startPeriodicBroadcast(ctx)
	logger.Println("periodic broadcast: started")

	router := mux.NewRouter()
	router.HandleFunc("/api/metrics", server.handleMetrics).Methods(http.MethodGet)
	router.HandleFunc("/api/positions/closed", server.handleClosedPositions).Methods(http.MethodGet)
	router.HandleFunc("/api/daily-stats", server.handleDailyStats).Methods(http.MethodGet)
	router.HandleFunc("/api/order-attempts", server.handleOrderAttempts).Methods(http.MethodGet)
	router.HandleFunc("/api/candles", server.handleCandles).Methods(http.MethodGet)
	router.HandleFunc("/health", server.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.handleWebSocket)

	handler := cors.Default().Handler(router)

	httpServer := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("dashboard API starting on port %s", *port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Println("shutting down dashboard server...")

	cancel()
	eventListener.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
	broadcaster.Shutdown()

	logger.Println("dashboard server stopped")
}

// computeMetrics aggregates the closed-position history into a
// performance summary. The window is the trailing year; the dashboard
// has no concept of a backtest run, only of the live book's history.
func (s *Server) computeMetrics(ctx context.Context) (MetricsResponse, error) {
	now := time.Now()
	from := now.AddDate(-1, 0, 0)

	closed, err := s.store.GetClosedPositions(ctx, from, now)
	if err != nil {
		return MetricsResponse{}, err
	}

	resp := MetricsResponse{
		InitialCapital: s.cfg.Capital,
		FinalCapital:   s.cfg.Capital,
		Timestamp:      now,
	}
	if len(closed) == 0 {
		return resp, nil
	}

	var grossProfit, grossLoss, totalPnL float64
	wins := 0
	for _, rec := range closed {
		totalPnL += rec.RealizedPnL
		if rec.RealizedPnL >= 0 {
			grossProfit += rec.RealizedPnL
			wins++
		} else {
			grossLoss += -rec.RealizedPnL
		}
	}

	resp.TotalTrades = len(closed)
	resp.WinningTrades = wins
	resp.LosingTrades = len(closed) - wins
	resp.TotalPnL = totalPnL
	resp.GrossProfit = grossProfit
	resp.GrossLoss = grossLoss
	resp.AvgPnL = totalPnL / float64(len(closed))
	if s.cfg.Capital > 0 {
		resp.TotalPnLPercent = (totalPnL / s.cfg.Capital) * 100
	}
	if len(closed) > 0 {
		resp.WinRate = float64(wins) / float64(len(closed)) * 100
	}
	if grossLoss > 0 {
		resp.ProfitFactor = grossProfit / grossLoss
	}
	resp.FinalCapital = s.cfg.Capital + totalPnL

	return resp, nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp, err := s.computeMetrics(r.Context())
	if err != nil {
		s.logger.Printf("failed to compute metrics: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to compute metrics")
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClosedPositions(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from, to := parseDateRange(r, now.AddDate(-1, 0, 0), now)

	records, err := s.store.GetClosedPositions(r.Context(), from, to)
	if err != nil {
		s.logger.Printf("failed to get closed positions: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch closed positions")
		return
	}

	views := make([]ClosedPositionView, len(records))
	for i, rec := range records {
		views[i] = ClosedPositionView{
			Code:        rec.Code,
			Track:       rec.Track,
			Quantity:    rec.Quantity,
			EntryPrice:  rec.EntryPrice,
			ExitPrice:   rec.ExitPrice,
			EntryTime:   rec.EntryTime,
			ExitTime:    rec.ExitTime,
			ExitReason:  rec.ExitReason,
			RealizedPnL: rec.RealizedPnL,
		}
	}

	s.respondJSON(w, http.StatusOK, ClosedPositionsResponse{Positions: views, Timestamp: now})
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	date := time.Now().Truncate(24 * time.Hour)
	if dateStr != "" {
		if parsed, err := time.Parse("2006-01-02", dateStr); err == nil {
			date = parsed
		}
	}

	rec, err := s.store.GetDailyStats(r.Context(), date)
	if err != nil {
		s.logger.Printf("failed to get daily stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch daily stats")
		return
	}
	if rec == nil {
		s.respondError(w, http.StatusNotFound, "no stats recorded for that date")
		return
	}

	s.respondJSON(w, http.StatusOK, DailyStatsResponse{
		Date:            rec.Date,
		StartEquity:     rec.StartEquity,
		EndEquity:       rec.EndEquity,
		RealizedPnL:     rec.RealizedPnL,
		RealizedPnLPct:  rec.RealizedPnLPct,
		TradeCount:      rec.TradeCount,
		RiskOffDeclared: rec.RiskOffDeclared,
	})
}

func (s *Server) handleOrderAttempts(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from, to := parseDateRange(r, now.AddDate(0, 0, -1), now)

	attempts, err := s.store.GetOrderAttempts(r.Context(), from, to)
	if err != nil {
		s.logger.Printf("failed to get order attempts: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch order attempts")
		return
	}

	views := make([]OrderAttemptView, len(attempts))
	for i, a := range attempts {
		views[i] = OrderAttemptView{
			Code:       string(a.Code),
			Kind:       string(a.Kind),
			Qty:        a.Qty,
			Stage:      a.Stage,
			FilledQty:  a.FilledQty,
			Status:     string(a.Status),
			PlacedAt:   a.PlacedAt,
			ErrorMsg:   a.ErrorMessage,
		}
	}

	s.respondJSON(w, http.StatusOK, OrderAttemptsResponse{Attempts: views, Timestamp: now})
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		s.respondError(w, http.StatusBadRequest, "code query parameter required")
		return
	}

	now := time.Now()
	from, to := parseDateRange(r, now.AddDate(-1, 0, 0), now)

	candles, err := s.store.GetCandles(r.Context(), code, from, to)
	if err != nil {
		s.logger.Printf("failed to get candles for %s: %v", code, err)
		s.respondError(w, http.StatusInternalServerError, "failed to fetch candles")
		return
	}

	data := make([]CandleData, len(candles))
	for i, c := range candles {
		data[i] = CandleData{Date: c.Date, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
	}

	s.respondJSON(w, http.StatusOK, CandlesResponse{Code: code, Candles: data, FromDate: from, ToDate: to, Timestamp: now})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func parseDateRange(r *http.Request, defaultFrom, defaultTo time.Time) (time.Time, time.Time) {
	from, to := defaultFrom, defaultTo
	if v := r.URL.Query().Get("from"); v != "" {
		if parsed, err := time.Parse("2006-01-02", v); err == nil {
			from = parsed
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if parsed, err := time.Parse("2006-01-02", v); err == nil {
			to = parsed
		}
	}
	return from, to
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      status,
		Timestamp: time.Now(),
	})
}
