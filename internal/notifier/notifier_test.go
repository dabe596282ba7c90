package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestNotifier_SendDeliversToWebhook(t *testing.T) {
	var mu sync.Mutex
	var received string
	gotCh := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		received = payload["text"]
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		select {
		case gotCh <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, Enabled: true}, nil)
	defer n.Shutdown()

	if err := n.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}

	select {
	case <-gotCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if received != "hello" {
		t.Errorf("expected 'hello', got %q", received)
	}
}

func TestNotifier_DisabledNeverCallsWebhook(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, Enabled: false}, nil)
	defer n.Shutdown()

	n.Send(context.Background(), "should not be sent")
	time.Sleep(50 * time.Millisecond)

	if called {
		t.Error("expected disabled notifier to never call the webhook")
	}
}

func TestNotifier_ShutdownDrainsQueue(t *testing.T) {
	var count int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, Enabled: true}, nil)
	for i := 0; i < 5; i++ {
		n.Send(context.Background(), "event")
	}
	n.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("expected all 5 events delivered before shutdown returned, got %d", count)
	}
}
