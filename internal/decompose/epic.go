package decompose

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/taskforge-ai/taskforge/internal/llm"
	"github.com/taskforge-ai/taskforge/internal/task"
)

// maxEpics bounds the epic list regardless of what the model returns.
const maxEpics = 6

// EpicStructure is an intermediate grouping used only during two-phase
// decomposition. It is never persisted beyond the call that created it.
type EpicStructure struct {
	Name                string        `json:"name"`
	FunctionalArea      string        `json:"functionalArea"`
	Description         string        `json:"description"`
	Priority            task.Priority `json:"priority"`
	EstimatedComplexity string        `json:"estimatedComplexity"`
}

// epicFirst runs the two-phase strategy: identify functional-area epics, then
// generate atomic tasks per epic. A transport error on the epic call aborts
// the strategy; per-epic task-generation failures skip that epic only.
func (e *Engine) epicFirst(ctx context.Context, t *task.AtomicTask, projectContext string, seq *int) ([]*task.AtomicTask, error) {
	epics, err := e.generateEpics(ctx, t, projectContext)
	if err != nil {
		return nil, err
	}
	if len(epics) == 0 {
		return nil, nil
	}

	var out []*task.AtomicTask
	for i := range epics {
		epic := &epics[i]
		tasks, err := e.generateEpicTasks(ctx, t, epic, projectContext, seq)
		if err != nil {
			slog.Warn("epic task generation failed, skipping epic",
				"task_id", t.ID, "epic", epic.Name, "error", err)
			continue
		}
		out = append(out, truncateToEpicBudget(tasks, e.cfg.EpicTimeBudget)...)
	}
	return out, nil
}

func (e *Engine) generateEpics(ctx context.Context, t *task.AtomicTask, projectContext string) ([]EpicStructure, error) {
	raw, err := e.client.Complete(ctx, llm.Request{
		Prompt:         epicPrompt(t, projectContext),
		SystemPrompt:   epicSystemPrompt,
		TaskName:       "epic_generation",
		ExpectedFormat: epicFormat,
		Temperature:    0.3,
	})
	if err != nil {
		return nil, err
	}

	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Epics []EpicStructure `json:"epics"`
	}
	if err := json.Unmarshal([]byte(obj), &wrapper); err != nil {
		return nil, &ParseError{Shape: ShapeUnrecognized, Reason: "epic list malformed"}
	}

	var epics []EpicStructure
	for _, epic := range wrapper.Epics {
		if epic.Name == "" {
			continue
		}
		if !validFunctionalArea(epic.FunctionalArea) {
			slog.Debug("dropping epic with invalid functional area",
				"task_id", t.ID, "epic", epic.Name, "functional_area", epic.FunctionalArea)
			continue
		}
		if !epic.Priority.Valid() {
			epic.Priority = t.Priority
		}
		epics = append(epics, epic)
		if len(epics) == maxEpics {
			break
		}
	}
	return epics, nil
}

func (e *Engine) generateEpicTasks(ctx context.Context, t *task.AtomicTask, epic *EpicStructure, projectContext string, seq *int) ([]*task.AtomicTask, error) {
	raw, err := e.client.Complete(ctx, llm.Request{
		Prompt:         epicTaskPrompt(t, epic, projectContext),
		SystemPrompt:   taskGenSystemPrompt,
		TaskName:       "epic_task_generation",
		ExpectedFormat: taskListFormat,
		Temperature:    0.2,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := parseTaskResponse(raw)
	if err != nil {
		return nil, err
	}
	if len(parsed.Tasks) == 0 {
		return nil, &ParseError{Shape: parsed.Shape, Reason: "no tasks in epic response"}
	}

	epicID := slug(epic.Name)
	var out []*task.AtomicTask
	for _, payload := range parsed.Tasks {
		*seq++
		built := e.buildTask(t, payload, *seq, epicID, epic.FunctionalArea)
		if err := built.ValidateAtomic(); err != nil {
			// Rejected tasks do not count toward the epic's time budget.
			slog.Debug("rejecting generated task", "task_id", built.ID, "error", err)
			continue
		}
		out = append(out, built)
	}
	return out, nil
}

// truncateToEpicBudget drops lowest-priority trailing tasks until the summed
// estimate fits the per-epic time budget.
func truncateToEpicBudget(tasks []*task.AtomicTask, budget float64) []*task.AtomicTask {
	if budget <= 0 {
		return tasks
	}
	total := 0.0
	for _, t := range tasks {
		total += t.EstimatedHours
	}
	for total > budget && len(tasks) > 0 {
		drop := len(tasks) - 1
		for i := len(tasks) - 1; i >= 0; i-- {
			if tasks[i].Priority.LessImportant(tasks[drop].Priority) {
				drop = i
			}
		}
		total -= tasks[drop].EstimatedHours
		tasks = append(tasks[:drop], tasks[drop+1:]...)
	}
	return tasks
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
