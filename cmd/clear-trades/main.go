// clear-trades - delete today's closed-position, order-attempt, and
// daily-stats rows so the engine can be restarted against a clean slate.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nitinkhare/quantumflow/internal/config"
)

func main() {
	confirmFlag := flag.Bool("confirm", false, "confirm deletion (must be explicit)")
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	flag.Parse()

	today := time.Now().Format("2006-01-02")

	if !*confirmFlag {
		fmt.Println("SAFETY CHECK - must confirm deletion")
		fmt.Println()
		fmt.Printf("this will delete all closed positions, order attempts, and daily stats for %s\n", today)
		fmt.Println()
		fmt.Println("to proceed, run:")
		fmt.Println("  go run ./cmd/clear-trades --confirm")
		fmt.Println()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	fmt.Printf("deleting all data for %s\n\n", today)

	closedTag, err := pool.Exec(ctx, `DELETE FROM closed_positions WHERE DATE(exit_time) = $1`, today)
	if err != nil {
		log.Fatalf("failed to delete closed positions: %v", err)
	}
	fmt.Printf("  deleted %d closed positions\n", closedTag.RowsAffected())

	attemptsTag, err := pool.Exec(ctx, `DELETE FROM order_attempts WHERE DATE(placed_at) = $1`, today)
	if err != nil {
		log.Fatalf("failed to delete order attempts: %v", err)
	}
	fmt.Printf("  deleted %d order attempts\n", attemptsTag.RowsAffected())

	statsTag, err := pool.Exec(ctx, `DELETE FROM daily_stats WHERE date = $1`, today)
	if err != nil {
		log.Fatalf("failed to delete daily stats: %v", err)
	}
	fmt.Printf("  deleted %d daily stats rows\n", statsTag.RowsAffected())

	fmt.Println()
	fmt.Println("clean slate ready")
	fmt.Println()
	fmt.Println("you can now run:")
	fmt.Println("  go run ./cmd/engine --dry-run")
	fmt.Println()
}
