package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sitescout/sitescout/internal/live"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser UI is served from arbitrary hosts during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSender serializes live events onto one websocket connection. Gorilla
// connections allow a single concurrent writer, so Send holds a mutex.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(_ context.Context, ev live.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

type wsClientMessage struct {
	Type  string `json:"type"`
	Query string `json:"query"`
}

// smartSearchWS runs a live smart-search session over a websocket. The
// client opens with {"query": ...}; a later {"type": "cancel"} or a closed
// connection stops the session.
func (s *Server) smartSearchWS(w http.ResponseWriter, r *http.Request) {
	if s.liveCtrl == nil {
		writeError(w, http.StatusServiceUnavailable, "live search is not configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close() //nolint:errcheck

	var first wsClientMessage
	if err := conn.ReadJSON(&first); err != nil || strings.TrimSpace(first.Query) == "" {
		_ = conn.WriteJSON(live.Event{Type: live.EventError, Message: "expected an opening message with a query"})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	state := live.NewState()
	sender := &wsSender{conn: conn}

	// Reads only feed cancellation: a cancel message or any read error (the
	// client went away) stops the session.
	go func() {
		for {
			var msg wsClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				state.Cancel()
				cancel()
				return
			}
			if msg.Type == "cancel" {
				state.Cancel()
				return
			}
		}
	}()

	if err := s.liveCtrl.Run(ctx, strings.TrimSpace(first.Query), state, sender); err != nil {
		s.logger.Warn("smart search session failed", zap.String("query", first.Query), zap.Error(err))
	}
}
