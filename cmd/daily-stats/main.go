// Package main - Daily Trading Statistics CLI
// Shows closed positions, realized P&L, and order-attempt outcomes for
// a given trading day.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nitinkhare/quantumflow/internal/config"
	"github.com/nitinkhare/quantumflow/internal/state"
	"github.com/nitinkhare/quantumflow/internal/storage"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[0;31m"
	Green  = "\033[0;32m"
	Yellow = "\033[1;33m"
	Blue   = "\033[0;34m"
	Cyan   = "\033[0;36m"
)

func main() {
	dateFlag := flag.String("date", "", "Date in YYYY-MM-DD format (defaults to today)")
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	flag.Parse()

	date := *dateFlag
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid date format, use YYYY-MM-DD\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}

	dailyRec, err := store.GetDailyStats(ctx, day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch daily stats: %v\n", err)
		os.Exit(1)
	}

	dayEnd := day.Add(24 * time.Hour)
	closed, err := store.GetClosedPositions(ctx, day, dayEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch closed positions: %v\n", err)
		os.Exit(1)
	}

	attempts, err := store.GetOrderAttempts(ctx, day, dayEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch order attempts: %v\n", err)
		os.Exit(1)
	}

	displaySummary(date, dailyRec, closed)
	if len(closed) > 0 {
		displayClosedPositions(closed)
	}
	displayOrderAttempts(attempts)
}

func displaySummary(date string, rec *storage.DailyStatsRecord, closed []storage.ClosedPositionRecord) {
	fmt.Printf("%s================================================================%s\n", Cyan, Reset)
	fmt.Printf("%s  DAILY TRADING STATISTICS - %s%s\n", Cyan, date, Reset)
	fmt.Printf("%s================================================================%s\n\n", Cyan, Reset)

	if rec == nil {
		fmt.Printf("%sno stats recorded for %s%s\n\n", Yellow, date, Reset)
		return
	}

	wins := 0
	for _, c := range closed {
		if c.RealizedPnL >= 0 {
			wins++
		}
	}
	winRate := 0.0
	if len(closed) > 0 {
		winRate = float64(wins) / float64(len(closed)) * 100
	}

	pnlColor := Green
	if rec.RealizedPnL < 0 {
		pnlColor = Red
	}

	fmt.Printf("  %sTrades Closed:%s     %s%d%s\n", Yellow, Reset, Green, rec.TradeCount, Reset)
	fmt.Printf("  %sWin Rate:%s          %s%.1f%%%s\n", Yellow, Reset, Green, winRate, Reset)
	fmt.Printf("  %sStart Equity:%s      %.2f\n", Yellow, Reset, rec.StartEquity)
	fmt.Printf("  %sEnd Equity:%s        %.2f\n", Yellow, Reset, rec.EndEquity)
	fmt.Printf("  %sRealized P&L:%s      %s%.2f (%.2f%%)%s\n", Yellow, Reset, pnlColor, rec.RealizedPnL, rec.RealizedPnLPct, Reset)
	if rec.RiskOffDeclared {
		fmt.Printf("  %sRisk-off declared this session%s\n", Red, Reset)
	}
	fmt.Println()
}

func displayClosedPositions(closed []storage.ClosedPositionRecord) {
	fmt.Printf("%s----------------------------------------------------------------%s\n", Blue, Reset)
	fmt.Printf("%sCLOSED POSITIONS%s\n", Blue, Reset)
	fmt.Printf("%s----------------------------------------------------------------%s\n", Blue, Reset)

	fmt.Printf("%-8s %-6s %-8s %-10s %-10s %-8s %s\n", "Code", "Track", "Qty", "Entry", "Exit", "P&L", "Reason")
	fmt.Println(strings.Repeat("-", 66))

	for _, c := range closed {
		pnlColor := Green
		if c.RealizedPnL < 0 {
			pnlColor = Red
		}
		fmt.Printf("%-8s %-6d %-8d %-10d %-10d %s%-8.2f%s %s\n",
			c.Code, c.Track, c.Quantity, c.EntryPrice, c.ExitPrice, pnlColor, c.RealizedPnL, Reset, c.ExitReason)
	}
	fmt.Println()
}

func displayOrderAttempts(attempts []state.OrderAttempt) {
	if len(attempts) == 0 {
		return
	}
	fmt.Printf("%s----------------------------------------------------------------%s\n", Blue, Reset)
	fmt.Printf("%sORDER ATTEMPTS%s\n", Blue, Reset)
	fmt.Printf("%s----------------------------------------------------------------%s\n", Blue, Reset)

	fmt.Printf("%-8s %-5s %-8s %-6s %-10s %-10s\n", "Code", "Kind", "Qty", "Stage", "Status", "Filled")
	fmt.Println(strings.Repeat("-", 56))
	for _, a := range attempts {
		fmt.Printf("%-8s %-5s %-8d %-6d %-10s %-10d\n", a.Code, a.Kind, a.Qty, a.Stage, a.Status, a.FilledQty)
	}
	fmt.Println()
}
