package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskforge-ai/taskforge/internal/agent"
)

const ssePingInterval = 30 * time.Second

func sseHeaders(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// handleEvents streams the event bus over SSE until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := sseHeaders(w)
	if !ok {
		return
	}

	subID, ch := s.bus.Subscribe(256)
	defer s.bus.Unsubscribe(subID)
	slog.Debug("event stream opened", "subscriber_id", subID)

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-ch:
			if !open {
				return
			}
			if err := writeSSE(w, flusher, string(event.Type), event); err != nil {
				return
			}
		}
	}
}

// handleAgentStream streams task assignments to one agent over SSE. Only
// agents registered with the sse transport have a push channel.
func (s *Server) handleAgentStream(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	reg, ok := s.registry.GetAgent(agentID)
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	if reg.Transport != agent.TransportSSE {
		http.Error(w, "agent is not registered for sse", http.StatusPreconditionFailed)
		return
	}
	ch, ok := s.registry.Channel(agentID)
	if !ok {
		http.Error(w, "no push channel for agent", http.StatusPreconditionFailed)
		return
	}

	flusher, ok := sseHeaders(w)
	if !ok {
		return
	}
	slog.Info("agent stream opened", "agent_id", agentID)

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Info("agent stream closed", "agent_id", agentID)
			return
		case <-ping.C:
			if err := writeSSE(w, flusher, agent.PushKindPing, agent.PushMessage{Kind: agent.PushKindPing}); err != nil {
				return
			}
			s.registry.Touch(agentID)
		case msg, open := <-ch:
			if !open {
				// Channel replaced by re-registration or unregister.
				return
			}
			if err := writeSSE(w, flusher, msg.Kind, msg); err != nil {
				return
			}
		}
	}
}
