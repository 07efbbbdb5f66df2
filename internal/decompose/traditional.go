package decompose

import (
	"context"
	"errors"
	"log/slog"

	"github.com/taskforge-ai/taskforge/internal/llm"
	"github.com/taskforge-ai/taskforge/internal/task"
)

// traditional runs the single-phase strategy: one completion call producing a
// flat task list, with a bounded retry state machine escalating temperature
// and prompt strictness on structurally invalid output. Exhausted retries end
// in fallback synthesis (analysis conversion or the plan/implement pair)
// rather than an empty result, so the caller always gets something
// schedulable unless the transport itself failed.
func (e *Engine) traditional(ctx context.Context, t *task.AtomicTask, projectContext string, seq *int) ([]*task.AtomicTask, error) {
	base := traditionalPrompt(t, projectContext)

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		raw, err := e.client.Complete(ctx, llm.Request{
			Prompt:         base + retrySuffix(attempt),
			SystemPrompt:   taskGenSystemPrompt,
			TaskName:       "task_decomposition",
			ExpectedFormat: taskListFormat,
			Temperature:    retryTemperature(attempt),
		})
		if err != nil {
			// Transport and timeout errors are not retried here: the caller
			// treats them as a local decomposition failure for this node.
			return nil, err
		}

		parsed, err := parseTaskResponse(raw)
		if err != nil {
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				return nil, err
			}
			lastErr = parseErr
			slog.Warn("task decomposition output invalid",
				"task_id", t.ID, "attempt", attempt, "shape", parseErr.Shape.String(), "reason", parseErr.Reason)
			if attempt < e.cfg.MaxRetries {
				continue
			}
			if parseErr.Shape == ShapeUnrecognized {
				return e.fallbackPair(t), nil
			}
			return nil, lastErr
		}

		switch parsed.Shape {
		case ShapeTasks, ShapeLegacy, ShapeSingle:
			tasks := e.buildValidated(t, parsed.Tasks, seq)
			if len(tasks) > 0 {
				return tasks, nil
			}
			lastErr = &ParseError{Shape: parsed.Shape, Reason: "all generated tasks rejected by validation"}
			if attempt < e.cfg.MaxRetries {
				continue
			}
			return nil, lastErr
		case ShapeAnalysisOnly:
			slog.Warn("completion produced analysis instead of tasks",
				"task_id", t.ID, "attempt", attempt)
			if attempt < e.cfg.MaxRetries {
				continue
			}
			return []*task.AtomicTask{e.fallbackFromAnalysis(t, parsed.AnalysisText)}, nil
		default:
			slog.Warn("completion response shape unrecognized",
				"task_id", t.ID, "attempt", attempt)
			if attempt < e.cfg.MaxRetries {
				continue
			}
			return e.fallbackPair(t), nil
		}
	}
	return nil, lastErr
}

// buildValidated converts payloads into atomic tasks, dropping any that fail
// validation. Rejection is per task: out-of-range estimates and wrong
// criterion counts are never clamped.
func (e *Engine) buildValidated(origin *task.AtomicTask, payloads []taskPayload, seq *int) []*task.AtomicTask {
	var out []*task.AtomicTask
	for _, payload := range payloads {
		*seq++
		built := e.buildTask(origin, payload, *seq, origin.EpicID, origin.FunctionalArea)
		if err := built.ValidateAtomic(); err != nil {
			slog.Debug("rejecting generated task", "task_id", built.ID, "error", err)
			continue
		}
		out = append(out, built)
	}
	return out
}
