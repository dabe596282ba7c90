package main

import (
	"testing"
	"time"

	"github.com/nitinkhare/quantumflow/internal/broker"
	tradesignal "github.com/nitinkhare/quantumflow/internal/signal"
	"github.com/nitinkhare/quantumflow/internal/state"
)

func TestMinuteAggregator_FlushesOnSlotBoundary(t *testing.T) {
	buf := tradesignal.NewBarBuffer()
	agg := &minuteAggregator{code: "005930", buf: buf}

	base := time.Date(2026, 7, 31, 9, 30, 0, 0, time.UTC)
	agg.onTrade(broker.Trade{Code: "005930", Price: 100, Volume: 10, Timestamp: base})
	agg.onTrade(broker.Trade{Code: "005930", Price: 105, Volume: 5, Timestamp: base.Add(20 * time.Second)})
	agg.onTrade(broker.Trade{Code: "005930", Price: 95, Volume: 5, Timestamp: base.Add(40 * time.Second)})

	if len(buf.OneMinute("005930")) != 0 {
		t.Fatal("bar should not flush until the minute slot changes")
	}

	agg.onTrade(broker.Trade{Code: "005930", Price: 102, Volume: 1, Timestamp: base.Add(70 * time.Second)})

	bars := buf.OneMinute("005930")
	if len(bars) != 1 {
		t.Fatalf("expected 1 flushed bar, got %d", len(bars))
	}
	got := bars[0]
	if got.Open != 100 || got.High != 105 || got.Low != 95 || got.Close != 95 || got.Volume != 20 {
		t.Fatalf("unexpected aggregated bar: %+v", got)
	}
}

func TestEngine_SetQuoteMergesPartialUpdates(t *testing.T) {
	e := &engine{quotes: make(map[state.Code]state.Quote)}

	now := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	e.setQuote("005930", state.Quote{Ask1: 1000, Bid1: 990, TickTimestamp: now})
	e.setQuote("005930", state.Quote{LastPrice: 995, TickTimestamp: now.Add(time.Second)})

	got := e.snapshotQuotes()["005930"]
	if got.Ask1 != 1000 || got.Bid1 != 990 || got.LastPrice != 995 {
		t.Fatalf("expected merged quote fields, got %+v", got)
	}
}
