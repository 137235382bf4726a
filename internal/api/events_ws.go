package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/interview-engine/internal/events"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is a frame sent over the session event stream
type StreamMessage struct {
	Type  string        `json:"type"`
	Data  string        `json:"data,omitempty"`
	Event *events.Event `json:"event,omitempty"`
}

// handleSessionEvents streams the caller's session lifecycle events over a WebSocket.
// Messages from the client are ignored except for close frames.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.subscriber == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "event stream is not enabled")
		return
	}

	ownerID := OwnerFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()
	// Drop any read deadline left by the HTTP server
	conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, unsubscribe, err := s.subscriber.Subscribe(ctx, ownerID)
	if err != nil {
		slog.Error("failed to subscribe to session events", "owner_id", ownerID, "error", err)
		s.sendStreamMessage(conn, StreamMessage{Type: "error", Data: "failed to subscribe to session events"})
		return
	}
	defer unsubscribe()

	slog.Info("event stream connected", "owner_id", ownerID)

	if err := s.sendStreamMessage(conn, StreamMessage{Type: "connected", Data: "Subscribed to session events"}); err != nil {
		return
	}

	var wg sync.WaitGroup

	// Drain client frames so close and pong control messages are processed
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-stream:
			if !ok {
				break loop
			}
			if err := s.sendStreamMessage(conn, StreamMessage{Type: "event", Event: &ev}); err != nil {
				break loop
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				break loop
			}
		}
	}

	cancel()
	// Unblock the reader goroutine
	conn.Close()
	wg.Wait()
	slog.Info("event stream disconnected", "owner_id", ownerID)
}

func (s *Server) sendStreamMessage(conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal stream message", "error", err)
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send stream message", "error", err)
		return err
	}
	return nil
}
