package dispatch

import (
	"testing"

	"github.com/taskforge-ai/taskforge/internal/agent"
	"github.com/taskforge-ai/taskforge/internal/eventbus"
	"github.com/taskforge-ai/taskforge/internal/task"
	"github.com/taskforge-ai/taskforge/pkg/cerr"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *agent.Registry) {
	t.Helper()
	bus := eventbus.New()
	registry := agent.NewRegistry(agent.DefaultRegistryConfig(), bus)
	return NewDispatcher(registry, bus), registry
}

func registerAgent(t *testing.T, r *agent.Registry, id string, caps []string, maxTasks int) {
	t.Helper()
	err := r.Register(&agent.Registration{
		ID:                 id,
		Capabilities:       caps,
		Transport:          agent.TransportSSE,
		SessionID:          "session-" + id,
		MaxConcurrentTasks: maxTasks,
	})
	if err != nil {
		t.Fatalf("register %s failed: %v", id, err)
	}
}

func devTask(id string) *task.AtomicTask {
	return &task.AtomicTask{
		ID:             id,
		Title:          "implement " + id,
		Status:         task.StatusPending,
		Priority:       task.PriorityMedium,
		Type:           task.TypeDevelopment,
		EstimatedHours: 0.1,
	}
}

func TestAddAndGetTasksFIFO(t *testing.T) {
	d, r := newTestDispatcher(t)
	registerAgent(t, r, "agent-1", []string{"go"}, 5)

	for _, id := range []string{"t1", "t2", "t3"} {
		if _, err := d.AddTask("agent-1", devTask(id)); err != nil {
			t.Fatalf("add %s failed: %v", id, err)
		}
	}
	if got := d.QueueLength("agent-1"); got != 3 {
		t.Fatalf("expected queue length 3, got %d", got)
	}

	popped := d.GetTasks("agent-1", 2)
	if len(popped) != 2 || popped[0].TaskID != "t1" || popped[1].TaskID != "t2" {
		t.Fatalf("expected FIFO pop of t1,t2, got %+v", popped)
	}
	if got := d.QueueLength("agent-1"); got != 1 {
		t.Errorf("expected 1 remaining, got %d", got)
	}

	rest := d.GetTasks("agent-1", 5)
	if len(rest) != 1 || rest[0].TaskID != "t3" {
		t.Fatalf("expected t3, got %+v", rest)
	}
}

func TestGetTasksDefaultsToOne(t *testing.T) {
	d, r := newTestDispatcher(t)
	registerAgent(t, r, "agent-1", []string{"go"}, 5)

	for _, id := range []string{"t1", "t2", "t3"} {
		if _, err := d.AddTask("agent-1", devTask(id)); err != nil {
			t.Fatalf("add %s failed: %v", id, err)
		}
	}

	// A poll without an explicit max hands out a single assignment, not the
	// whole backlog.
	popped := d.GetTasks("agent-1", 0)
	if len(popped) != 1 || popped[0].TaskID != "t1" {
		t.Fatalf("expected single FIFO pop of t1, got %+v", popped)
	}
	if got := d.QueueLength("agent-1"); got != 2 {
		t.Errorf("expected 2 remaining, got %d", got)
	}

	popped = d.GetTasks("agent-1", -1)
	if len(popped) != 1 || popped[0].TaskID != "t2" {
		t.Fatalf("expected single pop of t2 for negative max, got %+v", popped)
	}
}

func TestAddTaskUnknownOrOfflineAgent(t *testing.T) {
	d, r := newTestDispatcher(t)
	if _, err := d.AddTask("nobody", devTask("t1")); !cerr.IsCode(err, cerr.NotFound) {
		t.Errorf("expected NotFound for unknown agent, got %v", err)
	}

	registerAgent(t, r, "agent-1", []string{"go"}, 5)
	if err := r.UpdateAgentStatus("agent-1", agent.StatusOffline); err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	if _, err := d.AddTask("agent-1", devTask("t1")); !cerr.IsCode(err, cerr.FailedPrecondition) {
		t.Errorf("expected FailedPrecondition for offline agent, got %v", err)
	}
}

func TestAssignmentPushedToAgentChannel(t *testing.T) {
	d, r := newTestDispatcher(t)
	registerAgent(t, r, "agent-1", []string{"go"}, 5)

	ch, ok := r.Channel("agent-1")
	if !ok {
		t.Fatal("sse agent should have a push channel")
	}

	assignment, err := d.AddTask("agent-1", devTask("t1"))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	select {
	case msg := <-ch:
		if msg.Kind != agent.PushKindTaskAssigned {
			t.Errorf("expected task_assigned push, got %s", msg.Kind)
		}
		if msg.AssignmentID != assignment.AssignmentID {
			t.Errorf("push carries wrong assignment id")
		}
	default:
		t.Fatal("expected a push message in the channel")
	}
}

func TestFindBestAgentPrefersShorterQueue(t *testing.T) {
	d, r := newTestDispatcher(t)
	// A covers both capabilities but carries more work; B covers the one
	// required capability with a shorter queue.
	registerAgent(t, r, "a", []string{"x", "y"}, 5)
	registerAgent(t, r, "b", []string{"x"}, 2)

	for i := 0; i < 3; i++ {
		if _, err := d.AddTask("a", devTask("a-task")); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	if _, err := d.AddTask("b", devTask("b-task")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	best, err := d.FindBestAgent([]string{"x"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if best.ID != "b" {
		t.Errorf("expected b (queue 1 of 2), got %s", best.ID)
	}

	// Only A has capability y.
	best, err = d.FindBestAgent([]string{"x", "y"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if best.ID != "a" {
		t.Errorf("expected a for x+y, got %s", best.ID)
	}

	if _, err := d.FindBestAgent([]string{"z"}); !cerr.IsCode(err, cerr.NotFound) {
		t.Errorf("expected NotFound for unmatched capability, got %v", err)
	}
}

func TestFindBestAgentOvercommitsWhenSaturated(t *testing.T) {
	d, r := newTestDispatcher(t)
	registerAgent(t, r, "a", []string{"x"}, 1)
	registerAgent(t, r, "b", []string{"x"}, 1)

	if _, err := d.AddTask("a", devTask("t1")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := d.AddTask("b", devTask("t2")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := d.AddTask("b", devTask("t3")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// Both saturated; the least loaded absolute queue wins.
	best, err := d.FindBestAgent([]string{"x"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if best.ID != "a" {
		t.Errorf("expected a (queue 1 vs 2), got %s", best.ID)
	}

	d.StrictCapacity = true
	if _, err := d.FindBestAgent([]string{"x"}); !cerr.IsCode(err, cerr.ResourceExhausted) {
		t.Errorf("strict mode should refuse saturated agents, got %v", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	d, r := newTestDispatcher(t)
	registerAgent(t, r, "agent-1", []string{"go"}, 5)

	a1, _ := d.AddTask("agent-1", devTask("t1"))
	if _, err := d.AddTask("agent-1", devTask("t2")); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if !d.RemoveTask("agent-1", a1.AssignmentID) {
		t.Fatal("remove of queued assignment should succeed")
	}
	if d.RemoveTask("agent-1", a1.AssignmentID) {
		t.Error("double remove should report false")
	}
	if got := d.QueueLength("agent-1"); got != 1 {
		t.Errorf("expected queue length 1, got %d", got)
	}

	if n := d.ClearAgentTasks("agent-1"); n != 1 {
		t.Errorf("expected 1 cleared, got %d", n)
	}
	if _, ok := d.GetAssignment(a1.AssignmentID); ok {
		t.Error("history should be purged on clear")
	}
}

func TestDispatchRoundTrip(t *testing.T) {
	d, r := newTestDispatcher(t)
	registerAgent(t, r, "agent-1", []string{"go"}, 5)

	assignment, err := d.Dispatch(devTask("t1"), []string{"go"})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if assignment.AgentID != "agent-1" {
		t.Errorf("expected assignment to agent-1, got %s", assignment.AgentID)
	}

	got, ok := d.GetAssignment(assignment.AssignmentID)
	if !ok || got.TaskID != "t1" {
		t.Errorf("assignment lookup failed")
	}

	popped := d.GetTasks("agent-1", 10)
	if len(popped) != 1 || popped[0].AssignmentID != assignment.AssignmentID {
		t.Errorf("retrieved assignment mismatch")
	}
}
