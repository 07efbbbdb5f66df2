package agent

import "time"

// Transport identifies how a worker agent is connected.
type Transport string

const (
	TransportStdio     Transport = "stdio"
	TransportSSE       Transport = "sse"
	TransportWebSocket Transport = "websocket"
	TransportHTTP      Transport = "http"
)

func (t Transport) Valid() bool {
	switch t {
	case TransportStdio, TransportSSE, TransportWebSocket, TransportHTTP:
		return true
	}
	return false
}

// PushCapable reports whether assignments can be pushed to the agent instead
// of waiting for a poll.
func (t Transport) PushCapable() bool {
	return t == TransportSSE || t == TransportWebSocket
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusBusy    Status = "busy"
)

// Registration is a known worker agent.
type Registration struct {
	ID                 string        `yaml:"id" json:"id"`
	Capabilities       []string      `yaml:"capabilities" json:"capabilities"`
	Transport          Transport     `yaml:"transport" json:"transport"`
	SessionID          string        `yaml:"session_id" json:"sessionId"`
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks" json:"maxConcurrentTasks"`
	PollingInterval    time.Duration `yaml:"polling_interval,omitempty" json:"pollingInterval,omitempty"`
	Status             Status        `yaml:"status" json:"status"`
	RegisteredAt       time.Time     `yaml:"registered_at" json:"registeredAt"`
	LastSeen           time.Time     `yaml:"last_seen" json:"lastSeen"`
	CurrentTaskCount   int           `yaml:"current_task_count" json:"currentTaskCount"`
}

// HasCapabilities reports whether the agent possesses every required
// capability.
func (r *Registration) HasCapabilities(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range r.Capabilities {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r *Registration) clone() *Registration {
	cp := *r
	cp.Capabilities = append([]string(nil), r.Capabilities...)
	return &cp
}

// PushMessage is a best-effort notification delivered over a push-capable
// transport (SSE stream or websocket).
type PushMessage struct {
	Kind         string `json:"kind"`
	AssignmentID string `json:"assignmentId,omitempty"`
	TaskID       string `json:"taskId,omitempty"`
	Payload      any    `json:"payload,omitempty"`
}

const (
	PushKindTaskAssigned  = "task_assigned"
	PushKindStatusChanged = "status_changed"
	PushKindPing          = "ping"
)
