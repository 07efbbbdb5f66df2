package decompose

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge-ai/taskforge/internal/task"
)

func budgetTask(id string, priority task.Priority, hours float64) *task.AtomicTask {
	return &task.AtomicTask{ID: id, Priority: priority, EstimatedHours: hours}
}

func TestTruncateToEpicBudget(t *testing.T) {
	t.Run("within budget untouched", func(t *testing.T) {
		tasks := []*task.AtomicTask{
			budgetTask("a", task.PriorityHigh, 0.1),
			budgetTask("b", task.PriorityLow, 0.1),
		}
		got := truncateToEpicBudget(tasks, 1)
		assert.Len(t, got, 2)
	})

	t.Run("drops lowest priority trailing tasks first", func(t *testing.T) {
		tasks := []*task.AtomicTask{
			budgetTask("keep-high", task.PriorityHigh, 0.1),
			budgetTask("low-early", task.PriorityLow, 0.1),
			budgetTask("keep-medium", task.PriorityMedium, 0.1),
			budgetTask("low-late", task.PriorityLow, 0.1),
		}
		got := truncateToEpicBudget(tasks, 0.3)
		require.Len(t, got, 3)
		// The low-priority task closest to the end goes first.
		ids := []string{got[0].ID, got[1].ID, got[2].ID}
		assert.Equal(t, []string{"keep-high", "low-early", "keep-medium"}, ids)
	})

	t.Run("keeps dropping until the sum fits", func(t *testing.T) {
		tasks := []*task.AtomicTask{
			budgetTask("a", task.PriorityCritical, 0.1),
			budgetTask("b", task.PriorityLow, 0.1),
			budgetTask("c", task.PriorityLow, 0.1),
			budgetTask("d", task.PriorityLow, 0.1),
		}
		got := truncateToEpicBudget(tasks, 0.15)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].ID)
	})

	t.Run("zero budget disables truncation", func(t *testing.T) {
		tasks := []*task.AtomicTask{budgetTask("a", task.PriorityLow, 100)}
		assert.Len(t, truncateToEpicBudget(tasks, 0), 1)
	})
}

func TestGenerateEpicsCapsAndDefaults(t *testing.T) {
	epics := `{"epics": [`
	for i := 0; i < 8; i++ {
		if i > 0 {
			epics += ","
		}
		epics += fmt.Sprintf(`{"name": "Epic %d", "functionalArea": "backend", "description": "d", "priority": "nonsense", "estimatedComplexity": "simple"}`, i)
	}
	epics += `]}`

	client := &fakeClient{responses: map[string][]string{"epic_generation": {epics}}}
	e := newTestEngine(DefaultConfig(), &fakeOracle{}, client)

	got, err := e.generateEpics(context.Background(), rootTask(), "")
	require.NoError(t, err)
	assert.Len(t, got, maxEpics, "epic list is capped regardless of model output")
	for _, epic := range got {
		assert.Equal(t, task.PriorityHigh, epic.Priority, "invalid priorities inherit the origin's")
	}
}

func TestGenerateEpicsSkipsNameless(t *testing.T) {
	raw := `{"epics": [
		{"name": "", "functionalArea": "backend", "description": "dropped"},
		{"name": "Kept", "functionalArea": "api", "description": "kept", "priority": "low"}
	]}`
	client := &fakeClient{responses: map[string][]string{"epic_generation": {raw}}}
	e := newTestEngine(DefaultConfig(), &fakeOracle{}, client)

	got, err := e.generateEpics(context.Background(), rootTask(), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Kept", got[0].Name)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "user-login", slug("User Login"))
	assert.Equal(t, "api-v2-rollout", slug("  API v2 Rollout "))
	assert.Equal(t, "cache", slug("Cache!!!"))
}
