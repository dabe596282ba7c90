package execution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// orderLogQueueCapacity bounds the async queue; beyond this, writes fall
// back to synchronous append rather than blocking the caller or dropping
// the record (spec §4.4.6).
const orderLogQueueCapacity = 2000

// OrderLogEntry is one line of the daily JSON-lines order-attempt log.
type OrderLogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Code       string    `json:"code"`
	Side       string    `json:"side"`
	StageUsed  int       `json:"stage_used"`
	Requested  int64     `json:"requested_qty"`
	Filled     int64     `json:"filled_qty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// OrderLog appends order attempts to a daily JSON-lines file. A bounded
// non-blocking queue drains to disk on a background worker; callers never
// block on I/O. If the queue is full, the write falls back to a
// synchronous append so no attempt is silently lost.
type OrderLog struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	file    *os.File
	fileDay string

	queue chan OrderLogEntry
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewOrderLog starts the background drain worker, rooted at dir (one
// file per day, named order-log-YYYY-MM-DD.jsonl).
func NewOrderLog(dir string, logger *zap.Logger) *OrderLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &OrderLog{
		dir:    dir,
		logger: logger,
		queue:  make(chan OrderLogEntry, orderLogQueueCapacity),
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.drainLoop()
	return l
}

// Append enqueues an entry for async write, falling back to a synchronous
// append if the queue is full.
func (l *OrderLog) Append(e OrderLogEntry) {
	select {
	case l.queue <- e:
	default:
		l.logger.Warn("order log queue full, writing synchronously")
		if err := l.writeEntry(e); err != nil {
			l.logger.Error("order log synchronous write failed", zap.Error(err))
		}
	}
}

func (l *OrderLog) drainLoop() {
	defer l.wg.Done()
	for {
		select {
		case e := <-l.queue:
			if err := l.writeEntry(e); err != nil {
				l.logger.Error("order log write failed", zap.Error(err))
			}
		case <-l.done:
			// Drain whatever remains before exiting (spec §4.4.6: "on
			// process exit, drain the queue").
			for {
				select {
				case e := <-l.queue:
					l.writeEntry(e)
				default:
					return
				}
			}
		}
	}
}

func (l *OrderLog) writeEntry(e OrderLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := e.Timestamp.Format("2006-01-02")
	if l.file == nil || l.fileDay != day {
		if l.file != nil {
			l.file.Close()
		}
		path := filepath.Join(l.dir, fmt.Sprintf("order-log-%s.jsonl", day))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		l.file = f
		l.fileDay = day
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

// Shutdown stops the drain worker after flushing the queue.
func (l *OrderLog) Shutdown() {
	close(l.done)
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
}
