// Package notifier implements the outbound Notifier interface (spec §6,
// §9 design notes): `send(text)` and `send_image(path, caption)`,
// delivered best-effort over an HTTP webhook. Callers never block on
// delivery — events are enqueued into a channel drained by a single
// background worker, breaking the executor→notifier reference into pure
// message passing (spec §9 "Cyclic references / ownership").
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	queueCapacity = 256
	sendTimeout   = 10 * time.Second
)

// Config holds the webhook delivery target.
type Config struct {
	WebhookURL string
	Enabled    bool
}

type eventKind int

const (
	kindText eventKind = iota
	kindImage
)

type event struct {
	kind    eventKind
	text    string
	path    string
	caption string
}

// Notifier is the best-effort outbound notification worker. Send
// failures never propagate to the trading path (spec §6).
type Notifier struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger

	queue chan event
	done  chan struct{}
	wg    sync.WaitGroup
}

// New builds a Notifier and starts its drain worker.
func New(cfg Config, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		cfg:    cfg,
		http:   &http.Client{Timeout: sendTimeout},
		logger: logger,
		queue:  make(chan event, queueCapacity),
		done:   make(chan struct{}),
	}
	n.wg.Add(1)
	go n.drainLoop()
	return n
}

// Send enqueues a plain-text notification. Satisfies both
// internal/execution.Notifier and internal/watcher.Notifier.
func (n *Notifier) Send(ctx context.Context, text string) error {
	return n.enqueue(event{kind: kindText, text: text})
}

// SendImage enqueues an image notification with an optional caption.
func (n *Notifier) SendImage(ctx context.Context, path, caption string) error {
	return n.enqueue(event{kind: kindImage, path: path, caption: caption})
}

func (n *Notifier) enqueue(e event) error {
	if !n.cfg.Enabled {
		return nil
	}
	select {
	case n.queue <- e:
		return nil
	default:
		n.logger.Warn("notifier: queue full, dropping event")
		return fmt.Errorf("notifier: queue full")
	}
}

func (n *Notifier) drainLoop() {
	defer n.wg.Done()
	for {
		select {
		case e := <-n.queue:
			n.deliver(e)
		case <-n.done:
			for {
				select {
				case e := <-n.queue:
					n.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(e event) {
	var err error
	switch e.kind {
	case kindText:
		err = n.deliverText(e.text)
	case kindImage:
		err = n.deliverImage(e.path, e.caption)
	}
	if err != nil {
		n.logger.Warn("notifier: delivery failed", zap.Error(err))
	}
}

func (n *Notifier) deliverText(text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	resp, err := n.http.Post(n.cfg.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: webhook status %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) deliverImage(path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	resp, err := n.http.Post(n.cfg.WebhookURL, mw.FormDataContentType(), &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: webhook status %d", resp.StatusCode)
	}
	return nil
}

// Shutdown stops the drain worker after flushing any queued events.
func (n *Notifier) Shutdown() {
	close(n.done)
	n.wg.Wait()
}
