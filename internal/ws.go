package internal

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/taskforge-ai/taskforge/internal/agent"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Auth happens in the api key middleware; cross-origin agents are fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleAgentWS pushes task assignments to one agent over a websocket.
// Inbound messages are treated as heartbeats only.
func (s *Server) handleAgentWS(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	reg, ok := s.registry.GetAgent(agentID)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	if reg.Transport != agent.TransportWebSocket {
		http.Error(w, "agent is not registered for websocket", http.StatusPreconditionFailed)
		return
	}
	ch, ok := s.registry.Channel(agentID)
	if !ok {
		http.Error(w, "no push channel for agent", http.StatusPreconditionFailed)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "agent_id", agentID, "error", err)
		return
	}
	defer conn.Close()
	slog.Info("agent websocket opened", "agent_id", agentID)

	// Reader drains heartbeats and surfaces disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			s.registry.Touch(agentID)
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Info("agent websocket closed", "agent_id", agentID)
			return
		case <-done:
			slog.Info("agent websocket disconnected", "agent_id", agentID)
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, open := <-ch:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				slog.Warn("websocket write failed", "agent_id", agentID, "error", err)
				return
			}
		}
	}
}
