package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsMaxReconnectAttempts = 3
	wsReconnectDelay       = 1 * time.Second
	ringBufferSize         = 256
)

// kisFeed manages the single websocket connection used for both tick
// (trade) and level-1 quote subscriptions, fanning decoded frames out to
// per-code subscriber channels.
type kisFeed struct {
	url         string
	approval    string
	logger      *zap.Logger
	dialer      *websocket.Dialer
	onCritical  func(reason string)
	onReconnect func()

	mu             sync.Mutex
	conn           *websocket.Conn
	tradeSubs      map[string][]chan Trade
	quoteSubs      map[string][]chan Quote
	tickTimestamps map[string]*tickRing
}

type tickRing struct {
	mu   sync.Mutex
	ts   [100]int64
	next int
	full bool
}

func (t *tickRing) record(unixNano int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ts[t.next] = unixNano
	t.next = (t.next + 1) % len(t.ts)
	if t.next == 0 {
		t.full = true
	}
}

func (t *tickRing) countWithinLastSecond(nowUnixNano int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := nowUnixNano - int64(time.Second)
	n := len(t.ts)
	if !t.full {
		n = t.next
	}
	count := 0
	for i := 0; i < n; i++ {
		if t.ts[i] >= cutoff && t.ts[i] <= nowUnixNano {
			count++
		}
	}
	return count
}

func newKisFeed(url, approval string, logger *zap.Logger, onCritical func(string)) *kisFeed {
	return &kisFeed{
		url:            url,
		approval:       approval,
		logger:         logger,
		dialer:         websocket.DefaultDialer,
		onCritical:     onCritical,
		tradeSubs:      make(map[string][]chan Trade),
		quoteSubs:      make(map[string][]chan Quote),
		tickTimestamps: make(map[string]*tickRing),
	}
}

// Run connects and reads frames until ctx is cancelled, reconnecting up
// to wsMaxReconnectAttempts times with wsReconnectDelay between attempts.
// After exhaustion it invokes onCritical and returns — the market watcher
// is expected to halt entries on this signal (spec §4.3).
func (f *kisFeed) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
		if err != nil {
			attempts++
			f.logger.Warn("websocket dial failed", zap.Error(err), zap.Int("attempt", attempts))
			if f.onReconnect != nil {
				f.onReconnect()
			}
			if attempts > wsMaxReconnectAttempts {
				f.onCritical(fmt.Sprintf("websocket reconnect exhausted: %v", err))
				return fmt.Errorf("broker: websocket reconnect exhausted: %w", err)
			}
			time.Sleep(wsReconnectDelay)
			continue
		}

		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		attempts = 0

		if err := f.readLoop(ctx, conn); err != nil {
			f.logger.Warn("websocket read loop ended", zap.Error(err))
			attempts++
			if f.onReconnect != nil {
				f.onReconnect()
			}
			if attempts > wsMaxReconnectAttempts {
				f.onCritical(fmt.Sprintf("websocket reconnect exhausted: %v", err))
				return fmt.Errorf("broker: websocket reconnect exhausted: %w", err)
			}
			time.Sleep(wsReconnectDelay)
			continue
		}
		return nil
	}
}

// rawFrame is the decoded shape of a KIS real-time data frame, collapsed
// to the fields this client cares about. The broker's actual frames are
// pipe-delimited with a TR-ID-specific field layout; decodeFrame isolates
// that parsing so the rest of the client never sees it.
type rawFrame struct {
	trID   string
	code   string
	price  float64
	volume int64
	ask1   float64
	bid1   float64
}

func (f *kisFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return nil
			default:
				return err
			}
		}

		frame, err := decodeFrame(msg)
		if err != nil {
			continue // control/heartbeat frames are not tradable data
		}
		f.dispatch(frame)
	}
}

func decodeFrame(msg []byte) (rawFrame, error) {
	var envelope struct {
		Header struct {
			TrID string `json:"tr_id"`
		} `json:"header"`
		Body struct {
			Output struct {
				Code   string `json:"MKSC_SHRN_ISCD"`
				Price  string `json:"STCK_PRPR"`
				Volume string `json:"CNTG_VOL"`
				Ask1   string `json:"ASKP1"`
				Bid1   string `json:"BIDP1"`
			} `json:"output"`
		} `json:"body"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return rawFrame{}, err
	}
	if envelope.Body.Output.Code == "" {
		return rawFrame{}, fmt.Errorf("broker: non-data frame")
	}

	price, _ := strconv.ParseFloat(envelope.Body.Output.Price, 64)
	volume, _ := strconv.ParseInt(envelope.Body.Output.Volume, 10, 64)
	ask1, _ := strconv.ParseFloat(envelope.Body.Output.Ask1, 64)
	bid1, _ := strconv.ParseFloat(envelope.Body.Output.Bid1, 64)

	return rawFrame{
		trID:   envelope.Header.TrID,
		code:   envelope.Body.Output.Code,
		price:  price,
		volume: volume,
		ask1:   ask1,
		bid1:   bid1,
	}, nil
}

func (f *kisFeed) dispatch(frame rawFrame) {
	now := time.Now()

	f.mu.Lock()
	tr := f.tickTimestamps[frame.code]
	if tr == nil {
		tr = &tickRing{}
		f.tickTimestamps[frame.code] = tr
	}
	tradeChans := append([]chan Trade(nil), f.tradeSubs[frame.code]...)
	quoteChans := append([]chan Quote(nil), f.quoteSubs[frame.code]...)
	f.mu.Unlock()

	if frame.price > 0 {
		tr.record(now.UnixNano())
		t := Trade{Code: frame.code, Price: frame.price, Volume: frame.volume, Timestamp: now}
		for _, ch := range tradeChans {
			select {
			case ch <- t:
			default:
			}
		}
	}
	if frame.ask1 > 0 || frame.bid1 > 0 {
		q := Quote{Code: frame.code, Ask1: frame.ask1, Bid1: frame.bid1, Timestamp: now}
		for _, ch := range quoteChans {
			select {
			case ch <- q:
			default:
			}
		}
	}
}

func (f *kisFeed) subscribeTrade(code string) <-chan Trade {
	ch := make(chan Trade, ringBufferSize)
	f.mu.Lock()
	f.tradeSubs[code] = append(f.tradeSubs[code], ch)
	if f.tickTimestamps[code] == nil {
		f.tickTimestamps[code] = &tickRing{}
	}
	f.mu.Unlock()
	return ch
}

func (f *kisFeed) subscribeQuote(code string) <-chan Quote {
	ch := make(chan Quote, ringBufferSize)
	f.mu.Lock()
	f.quoteSubs[code] = append(f.quoteSubs[code], ch)
	f.mu.Unlock()
	return ch
}

func (f *kisFeed) tickSpeed(code string) int {
	f.mu.Lock()
	tr := f.tickTimestamps[code]
	f.mu.Unlock()
	if tr == nil {
		return 0
	}
	return tr.countWithinLastSecond(time.Now().UnixNano())
}
