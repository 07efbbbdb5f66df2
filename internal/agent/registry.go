package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskforge-ai/taskforge/internal/eventbus"
	"github.com/taskforge-ai/taskforge/pkg/cerr"
)

type RegistryConfig struct {
	// HealthCheckInterval is the sweep period marking silent agents offline.
	HealthCheckInterval time.Duration
	// OfflineThreshold is how long an online agent may stay silent.
	OfflineThreshold time.Duration
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		HealthCheckInterval: 60 * time.Second,
		OfflineThreshold:    5 * time.Minute,
	}
}

// Registry holds the currently known worker agents. It is an explicitly
// constructed service with application lifetime, not a process-wide static.
type Registry struct {
	cfg RegistryConfig
	bus *eventbus.Bus

	mu       sync.RWMutex
	agents   map[string]*Registration
	sessions map[string]string // session id -> agent id
	channels map[string]chan PushMessage
	now      func() time.Time
}

func NewRegistry(cfg RegistryConfig, bus *eventbus.Bus) *Registry {
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 60 * time.Second
	}
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = 5 * time.Minute
	}
	return &Registry{
		cfg:      cfg,
		bus:      bus,
		agents:   make(map[string]*Registration),
		sessions: make(map[string]string),
		channels: make(map[string]chan PushMessage),
		now:      time.Now,
	}
}

func validateRegistration(reg *Registration) error {
	err := cerr.NewError(cerr.InvalidArgument, "invalid agent registration", nil)
	if reg.ID == "" {
		err.AddDetail("agent id is required")
	}
	if len(reg.Capabilities) == 0 {
		err.AddDetail("at least one capability is required")
	}
	if !reg.Transport.Valid() {
		err.AddDetail(fmt.Sprintf("unsupported transport %q", reg.Transport))
	}
	if reg.SessionID == "" {
		err.AddDetail("session id is required")
	}
	if reg.MaxConcurrentTasks < 1 || reg.MaxConcurrentTasks > 10 {
		err.AddDetail("max concurrent tasks must be between 1 and 10")
	}
	if len(err.Details) > 0 {
		return err
	}
	return nil
}

// Register creates a new record or merges into an existing one. Re-registering
// refreshes last-seen, forces the agent back online, and rebinds the session.
func (r *Registry) Register(reg *Registration) error {
	if err := validateRegistration(reg); err != nil {
		return err
	}

	now := r.now()
	r.mu.Lock()
	existing, ok := r.agents[reg.ID]
	if ok {
		delete(r.sessions, existing.SessionID)
		existing.Capabilities = append([]string(nil), reg.Capabilities...)
		existing.Transport = reg.Transport
		existing.SessionID = reg.SessionID
		existing.MaxConcurrentTasks = reg.MaxConcurrentTasks
		existing.PollingInterval = reg.PollingInterval
		existing.Status = StatusOnline
		existing.LastSeen = now
	} else {
		stored := reg.clone()
		stored.Status = StatusOnline
		stored.RegisteredAt = now
		stored.LastSeen = now
		stored.CurrentTaskCount = 0
		r.agents[reg.ID] = stored
	}
	r.sessions[reg.SessionID] = reg.ID

	// Re-registering a push-capable agent replaces its channel so a stale
	// stream does not swallow notifications.
	if old, ok := r.channels[reg.ID]; ok {
		close(old)
		delete(r.channels, reg.ID)
	}
	if reg.Transport.PushCapable() {
		r.channels[reg.ID] = make(chan PushMessage, 64)
	}
	r.mu.Unlock()

	r.publish(eventbus.EventAgentRegistered, reg.ID, map[string]string{
		"transport": string(reg.Transport),
	})
	slog.Info("agent registered", "agent_id", reg.ID, "transport", reg.Transport, "capabilities", reg.Capabilities)
	return nil
}

func (r *Registry) GetAgent(id string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return reg.clone(), true
}

func (r *Registry) GetAgentBySession(sessionID string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	reg, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return reg.clone(), true
}

func (r *Registry) GetOnlineAgents() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Registration
	for _, reg := range r.agents {
		if reg.Status == StatusOnline || reg.Status == StatusBusy {
			out = append(out, reg.clone())
		}
	}
	return out
}

func (r *Registry) UpdateAgentStatus(id string, status Status) error {
	r.mu.Lock()
	reg, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return cerr.NewError(cerr.NotFound, "agent not found", nil)
	}
	changed := reg.Status != status
	reg.Status = status
	reg.LastSeen = r.now()
	pushCapable := reg.Transport.PushCapable()
	r.mu.Unlock()

	if changed {
		r.publish(eventbus.EventAgentStatusChanged, id, map[string]string{"status": string(status)})
		if pushCapable {
			r.SendPush(id, PushMessage{Kind: PushKindStatusChanged, Payload: status})
		}
	}
	return nil
}

func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	reg, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return cerr.NewError(cerr.NotFound, "agent not found", nil)
	}
	delete(r.sessions, reg.SessionID)
	delete(r.agents, id)
	if ch, ok := r.channels[id]; ok {
		close(ch)
		delete(r.channels, id)
	}
	r.mu.Unlock()

	r.publish(eventbus.EventAgentUnregistered, id, nil)
	slog.Info("agent unregistered", "agent_id", id)
	return nil
}

// Touch refreshes an agent's last-seen timestamp (polls, heartbeats).
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	if reg, ok := r.agents[id]; ok {
		reg.LastSeen = r.now()
	}
	r.mu.Unlock()
}

// SetLoad records an agent's queue length and flips status between busy and
// online around its concurrency limit. Offline agents keep their status.
func (r *Registry) SetLoad(id string, queueLen int) {
	r.mu.Lock()
	reg, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	reg.CurrentTaskCount = queueLen
	var newStatus Status
	switch {
	case reg.Status == StatusOffline:
		r.mu.Unlock()
		return
	case queueLen >= reg.MaxConcurrentTasks:
		newStatus = StatusBusy
	default:
		newStatus = StatusOnline
	}
	changed := reg.Status != newStatus
	reg.Status = newStatus
	r.mu.Unlock()

	if changed {
		r.publish(eventbus.EventAgentStatusChanged, id, map[string]string{"status": string(newStatus)})
	}
}

// Channel returns the push channel for a push-capable agent. The channel is
// closed on unregistration and on re-registration.
func (r *Registry) Channel(id string) (<-chan PushMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// SendPush delivers a notification without blocking. Returns false when the
// agent has no push channel or its buffer is full; senders treat both as
// best-effort misses. The read lock is held across the send so Unregister and
// Register cannot close the channel mid-send.
func (r *Registry) SendPush(id string, msg PushMessage) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	if !ok {
		return false
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

// PerformHealthCheck marks online agents silent for longer than the offline
// threshold as offline and returns their ids. The sweep snapshots under the
// lock and notifies outside it.
func (r *Registry) PerformHealthCheck() []string {
	cutoff := r.now().Add(-r.cfg.OfflineThreshold)

	r.mu.Lock()
	var flipped []string
	for id, reg := range r.agents {
		if reg.Status == StatusOffline {
			continue
		}
		if reg.LastSeen.Before(cutoff) {
			reg.Status = StatusOffline
			flipped = append(flipped, id)
		}
	}
	r.mu.Unlock()

	for _, id := range flipped {
		slog.Warn("agent went offline", "agent_id", id)
		r.publish(eventbus.EventAgentOffline, id, nil)
	}
	return flipped
}

// Start runs the periodic health-check sweep until ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HealthCheckInterval)
	defer ticker.Stop()

	slog.Info("agent health checker started", "interval", r.cfg.HealthCheckInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("agent health checker stopped")
			return
		case <-ticker.C:
			r.PerformHealthCheck()
		}
	}
}

func (r *Registry) publish(eventType eventbus.EventType, agentID string, metadata map[string]string) {
	if r.bus == nil {
		return
	}
	r.bus.PublishNew(eventType, agentID, "", metadata)
}
