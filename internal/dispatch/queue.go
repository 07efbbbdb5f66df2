// Package dispatch routes atomic tasks to registered worker agents through
// per-agent FIFO queues, combining poll-based retrieval with best-effort push
// notification for agents on push-capable transports.
package dispatch

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskforge-ai/taskforge/internal/agent"
	"github.com/taskforge-ai/taskforge/internal/eventbus"
	"github.com/taskforge-ai/taskforge/internal/task"
	"github.com/taskforge-ai/taskforge/pkg/cerr"
)

// TaskAssignment binds a task to an agent. The assignment id is distinct from
// the task id so the same task can be re-dispatched after a failure.
type TaskAssignment struct {
	AssignmentID      string            `json:"assignmentId"`
	TaskID            string            `json:"taskId"`
	AgentID           string            `json:"agentId"`
	Payload           *task.AtomicTask  `json:"payload"`
	Priority          task.Priority     `json:"priority"`
	AssignedAt        time.Time         `json:"assignedAt"`
	EstimatedDuration time.Duration     `json:"estimatedDuration,omitempty"`
	Deadline          time.Time         `json:"deadline,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Dispatcher holds the per-agent queues. Assignment history is kept so
// completed work can be traced back to the agent that ran it.
type Dispatcher struct {
	registry *agent.Registry
	bus      *eventbus.Bus

	mu      sync.RWMutex
	queues  map[string][]*TaskAssignment
	history map[string]*TaskAssignment // assignment id -> assignment

	// StrictCapacity refuses enqueues onto agents already at their
	// concurrency limit instead of overcommitting the queue.
	StrictCapacity bool
}

func NewDispatcher(registry *agent.Registry, bus *eventbus.Bus) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		bus:      bus,
		queues:   make(map[string][]*TaskAssignment),
		history:  make(map[string]*TaskAssignment),
	}
}

// AddTask enqueues a task for an agent and notifies it when its transport
// supports push. The push is best effort; polling remains the source of truth.
func (d *Dispatcher) AddTask(agentID string, t *task.AtomicTask) (*TaskAssignment, error) {
	reg, ok := d.registry.GetAgent(agentID)
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, "agent not found", nil)
	}
	if reg.Status == agent.StatusOffline {
		return nil, cerr.NewError(cerr.FailedPrecondition, "agent is offline", nil)
	}

	assignment := &TaskAssignment{
		AssignmentID: ulid.Make().String(),
		TaskID:       t.ID,
		AgentID:      agentID,
		Payload:      t,
		Priority:     t.Priority,
		AssignedAt:   time.Now(),
	}
	if t.EstimatedHours > 0 {
		assignment.EstimatedDuration = time.Duration(t.EstimatedHours * float64(time.Hour))
	}

	d.mu.Lock()
	if d.StrictCapacity && len(d.queues[agentID]) >= reg.MaxConcurrentTasks {
		d.mu.Unlock()
		return nil, cerr.NewError(cerr.ResourceExhausted, "agent queue is at capacity", nil)
	}
	d.queues[agentID] = append(d.queues[agentID], assignment)
	d.history[assignment.AssignmentID] = assignment
	queueLen := len(d.queues[agentID])
	d.mu.Unlock()

	d.registry.SetLoad(agentID, queueLen)
	d.registry.SendPush(agentID, agent.PushMessage{
		Kind:         agent.PushKindTaskAssigned,
		AssignmentID: assignment.AssignmentID,
		TaskID:       t.ID,
		Payload:      t,
	})
	d.publish(eventbus.EventTaskAssigned, t.ID, t.Title, map[string]string{
		"agent_id":      agentID,
		"assignment_id": assignment.AssignmentID,
	})
	slog.Info("task assigned", "task_id", t.ID, "agent_id", agentID, "queue_length", queueLen)
	return assignment, nil
}

// GetTasks pops up to max assignments in FIFO order and refreshes the agent's
// last-seen timestamp. max <= 0 defaults to 1.
func (d *Dispatcher) GetTasks(agentID string, max int) []*TaskAssignment {
	if max <= 0 {
		max = 1
	}
	d.mu.Lock()
	queue := d.queues[agentID]
	n := len(queue)
	if max < n {
		n = max
	}
	popped := queue[:n]
	d.queues[agentID] = queue[n:]
	remaining := len(d.queues[agentID])
	d.mu.Unlock()

	d.registry.Touch(agentID)
	if len(popped) > 0 {
		d.registry.SetLoad(agentID, remaining)
		for _, a := range popped {
			d.publish(eventbus.EventTaskRetrieved, a.TaskID, "", map[string]string{
				"agent_id":      agentID,
				"assignment_id": a.AssignmentID,
			})
		}
	}
	return popped
}

func (d *Dispatcher) QueueLength(agentID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.queues[agentID])
}

// RemoveTask removes a queued assignment that has not been retrieved yet.
func (d *Dispatcher) RemoveTask(agentID, assignmentID string) bool {
	d.mu.Lock()
	queue := d.queues[agentID]
	removed := false
	for i, a := range queue {
		if a.AssignmentID == assignmentID {
			d.queues[agentID] = append(queue[:i], queue[i+1:]...)
			removed = true
			break
		}
	}
	remaining := len(d.queues[agentID])
	d.mu.Unlock()

	if removed {
		d.registry.SetLoad(agentID, remaining)
	}
	return removed
}

// ClearAgentTasks drops an agent's queue and purges its assignment history,
// typically on unregistration.
func (d *Dispatcher) ClearAgentTasks(agentID string) int {
	d.mu.Lock()
	n := len(d.queues[agentID])
	delete(d.queues, agentID)
	for id, a := range d.history {
		if a.AgentID == agentID {
			delete(d.history, id)
		}
	}
	d.mu.Unlock()

	if n > 0 {
		slog.Info("cleared agent queue", "agent_id", agentID, "dropped", n)
	}
	return n
}

// GetAssignment looks up an assignment by id, queued or already retrieved.
func (d *Dispatcher) GetAssignment(assignmentID string) (*TaskAssignment, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.history[assignmentID]
	return a, ok
}

// FindBestAgent picks the online agent best suited for the required
// capabilities: every capability must match, shorter queues win, and agents
// strictly under their concurrency limit are preferred over saturated ones.
func (d *Dispatcher) FindBestAgent(required []string) (*agent.Registration, error) {
	candidates := d.registry.GetOnlineAgents()

	var capable []*agent.Registration
	for _, reg := range candidates {
		if reg.HasCapabilities(required) {
			capable = append(capable, reg)
		}
	}
	if len(capable) == 0 {
		return nil, cerr.NewError(cerr.NotFound, "no capable agent available", nil)
	}

	d.mu.RLock()
	loads := make(map[string]int, len(capable))
	for _, reg := range capable {
		loads[reg.ID] = len(d.queues[reg.ID])
	}
	d.mu.RUnlock()

	sort.SliceStable(capable, func(i, j int) bool {
		return loads[capable[i].ID] < loads[capable[j].ID]
	})

	for _, reg := range capable {
		if loads[reg.ID] < reg.MaxConcurrentTasks {
			return reg, nil
		}
	}
	if d.StrictCapacity {
		return nil, cerr.NewError(cerr.ResourceExhausted, "all capable agents are at capacity", nil)
	}
	// Everyone is saturated; overcommit the least loaded queue.
	return capable[0], nil
}

// Dispatch finds the best agent for the task's required capabilities and
// enqueues it there.
func (d *Dispatcher) Dispatch(t *task.AtomicTask, required []string) (*TaskAssignment, error) {
	reg, err := d.FindBestAgent(required)
	if err != nil {
		return nil, err
	}
	return d.AddTask(reg.ID, t)
}

func (d *Dispatcher) publish(eventType eventbus.EventType, resourceID, payload string, metadata map[string]string) {
	if d.bus == nil {
		return
	}
	d.bus.PublishNew(eventType, resourceID, payload, metadata)
}
