package broker

import (
	"context"
	"testing"
)

func TestSimClient_InitialBalance(t *testing.T) {
	sc := NewSimClient(500000)
	ctx := context.Background()

	bal, err := sc.InquireBalance(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bal.CashKRW != 500000 {
		t.Errorf("expected 500000, got %.2f", bal.CashKRW)
	}
}

func TestSimClient_BuyReducesCash(t *testing.T) {
	sc := NewSimClient(500000)
	ctx := context.Background()

	ack, err := sc.IssueOrder(ctx, "005930", SideBuy, 10, 2500, TIFDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.StatusCode != "OK" {
		t.Errorf("expected OK, got %s", ack.StatusCode)
	}

	bal, _ := sc.InquireBalance(ctx)
	expectedCash := 500000.0 - (2500.0 * 10)
	if bal.CashKRW != expectedCash {
		t.Errorf("expected %.2f, got %.2f", expectedCash, bal.CashKRW)
	}
}

func TestSimClient_SellIncreasesCash(t *testing.T) {
	sc := NewSimClient(500000)
	ctx := context.Background()

	sc.IssueOrder(ctx, "035720", SideBuy, 5, 3500, TIFDay)
	ack, err := sc.IssueOrder(ctx, "035720", SideSell, 5, 3600, TIFDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.StatusCode != "OK" {
		t.Errorf("expected OK, got %s", ack.StatusCode)
	}

	bal, _ := sc.InquireBalance(ctx)
	expectedCash := 500000.0 - 17500.0 + 18000.0
	if bal.CashKRW != expectedCash {
		t.Errorf("expected %.2f, got %.2f", expectedCash, bal.CashKRW)
	}
}

func TestSimClient_RejectsInsufficientFunds(t *testing.T) {
	sc := NewSimClient(1000)
	ctx := context.Background()

	ack, err := sc.IssueOrder(ctx, "005930", SideBuy, 10, 2500, TIFDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.StatusCode != "REJECTED" {
		t.Errorf("expected REJECTED, got %s", ack.StatusCode)
	}
}

func TestSimClient_RejectsInsufficientHoldings(t *testing.T) {
	sc := NewSimClient(500000)
	ctx := context.Background()

	ack, err := sc.IssueOrder(ctx, "035720", SideSell, 10, 3500, TIFDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.StatusCode != "REJECTED" {
		t.Errorf("expected REJECTED, got %s", ack.StatusCode)
	}
}

func TestSimClient_OrderStatusTracked(t *testing.T) {
	sc := NewSimClient(500000)
	ctx := context.Background()

	ack, _ := sc.IssueOrder(ctx, "000660", SideBuy, 50, 600, TIFDay)

	status, err := sc.InquireOrderStatus(ctx, ack.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != StatusFilled {
		t.Errorf("expected FILLED, got %s", status.Status)
	}
	if status.FilledQty != 50 {
		t.Errorf("expected filled qty 50, got %d", status.FilledQty)
	}
}
