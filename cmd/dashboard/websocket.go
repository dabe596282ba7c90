package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nitinkhare/quantumflow/internal/dashboard"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket upgrades the connection and registers it with the
// broadcaster for real-time position/risk-off events.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	client := &dashboard.Client{
		ID:   r.RemoteAddr,
		Send: make(chan interface{}, 256),
	}

	s.broadcaster.Register(client)
	defer s.broadcaster.Unregister(client)

	s.logger.Printf("websocket: client connected from %s", client.ID)

	go s.writePump(ws, client)
	s.readPump(ws, client)
}

func (s *Server) writePump(ws *websocket.Conn, client *dashboard.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(message); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Printf("websocket write error for %s: %v", client.ID, err)
				}
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(ws *websocket.Conn, client *dashboard.Client) {
	defer func() {
		s.broadcaster.Unregister(client)
		s.logger.Printf("websocket: client disconnected from %s", client.ID)
	}()

	ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Printf("websocket read error for %s: %v", client.ID, err)
			}
			return
		}
	}
}

// broadcastMetrics pushes the latest performance snapshot to every
// connected client.
func (s *Server) broadcastMetrics(ctx context.Context) error {
	metrics, err := s.computeMetrics(ctx)
	if err != nil {
		return err
	}

	msg := dashboard.WebSocketMessage{
		Type:      "metrics",
		Data:      metrics,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	s.broadcaster.Broadcast(msg)
	return nil
}

// startPeriodicBroadcast sends periodic metrics updates to every
// connected WebSocket client, supplementing the event-driven LISTEN/NOTIFY
// broadcasts from the event listener.
func (s *Server) startPeriodicBroadcast(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.broadcastMetrics(ctx); err != nil {
				s.logger.Printf("failed to broadcast metrics: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
