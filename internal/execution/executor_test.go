package execution

import (
	"context"
	"testing"

	"github.com/nitinkhare/quantumflow/internal/broker"
)

func newTestExecutor(t *testing.T, client broker.Client, dryRun bool) *Executor {
	t.Helper()
	dir := t.TempDir()
	log := NewOrderLog(dir, nil)
	t.Cleanup(log.Shutdown)
	return NewExecutor(client, log, nil, nil, dryRun)
}

func TestBuyWithFallback_DryRunAlwaysStage1(t *testing.T) {
	e := newTestExecutor(t, broker.NewSimClient(10_000_000), true)

	result := e.BuyWithFallback(context.Background(), "005930", 10, 70000)
	if !result.Success {
		t.Fatal("expected dry-run success")
	}
	if result.StageUsed != 1 {
		t.Errorf("expected stage_used=1 in dry-run, got %d", result.StageUsed)
	}
	if result.FilledQty != 10 {
		t.Errorf("expected full requested qty filled, got %d", result.FilledQty)
	}
}

func TestBuyWithFallback_Stage1FillsViaSimClient(t *testing.T) {
	sim := broker.NewSimClient(10_000_000)
	e := newTestExecutor(t, sim, false)

	result := e.BuyWithFallback(context.Background(), "005930", 10, 70000)
	if !result.Success {
		t.Fatalf("expected success, got error: %v", result.Error)
	}
	if result.FilledQty != 10 {
		t.Errorf("expected 10 filled, got %d", result.FilledQty)
	}
}

func TestBuyParallelEntries_PreservesOrderAndIsolatesFailures(t *testing.T) {
	sim := broker.NewSimClient(1000) // enough for only one of the two entries
	e := newTestExecutor(t, sim, false)

	entries := []EntryRequest{
		{Code: "005930", Qty: 1, Ask1: 500},
		{Code: "035720", Qty: 1000, Ask1: 500000}, // will fail: insufficient funds
	}

	results := e.BuyParallelEntries(context.Background(), entries)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Code != "005930" || results[1].Code != "035720" {
		t.Errorf("expected input order preserved, got %+v", results)
	}
	if results[1].Success {
		t.Error("expected second entry to fail on insufficient funds")
	}
}

func TestPlanSlices_DistributesRemainder(t *testing.T) {
	slices := planSlices(10, 4)
	var total int64
	for _, s := range slices {
		total += s
	}
	if total != 10 {
		t.Errorf("expected slices to sum to 10, got %d", total)
	}
	if len(slices) != 4 {
		t.Errorf("expected 4 slices, got %d", len(slices))
	}
}

func TestShouldSplit_ThresholdBehavior(t *testing.T) {
	if ShouldSplit(100, 0) {
		t.Error("zero avg volume should never trigger split")
	}
	if ShouldSplit(1, 1_000_000) {
		t.Error("tiny qty relative to volume should not split")
	}
	if !ShouldSplit(10_000, 1_000_000) {
		t.Error("qty at 1% of adv should split (threshold 0.5%)")
	}
}
