// Package decompose implements the recursive Split-Solve-Merge task
// decomposition engine: it judges atomicity through an oracle, splits
// non-atomic tasks with a two-phase (epic-first) strategy falling back to a
// single-phase one, recurses bounded by depth, and merges the results into a
// flat list of atomic tasks. Failures degrade into schedulable atomic
// results instead of propagating.
package decompose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskforge-ai/taskforge/internal/breaker"
	"github.com/taskforge-ai/taskforge/internal/eventbus"
	"github.com/taskforge-ai/taskforge/internal/identity"
	"github.com/taskforge-ai/taskforge/internal/llm"
	"github.com/taskforge-ai/taskforge/internal/task"
)

type Config struct {
	// MaxDepth bounds recursion; tasks at the limit are accepted as atomic.
	MaxDepth int
	// MinConfidence is the oracle confidence needed to accept an atomic
	// verdict.
	MinConfidence float64
	// MaxRetries bounds re-prompting on structurally invalid output.
	MaxRetries int
	// EpicTimeBudget caps the summed estimate of one epic's tasks, in hours.
	EpicTimeBudget float64
}

func DefaultConfig() Config {
	return Config{
		MaxDepth:       5,
		MinConfidence:  0.8,
		MaxRetries:     2,
		EpicTimeBudget: 400,
	}
}

type Engine struct {
	cfg     Config
	oracle  Oracle
	client  llm.Client
	breaker *breaker.Breaker
	ids     identity.Generator
	bus     *eventbus.Bus
}

func NewEngine(cfg Config, oracle Oracle, client llm.Client, brk *breaker.Breaker, ids identity.Generator, bus *eventbus.Bus) *Engine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 5
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.8
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 2
	}
	return &Engine{
		cfg:     cfg,
		oracle:  oracle,
		client:  client,
		breaker: brk,
		ids:     ids,
		bus:     bus,
	}
}

// DecomposeTask breaks a task into atomic subtasks. It always returns a
// usable result: external failures, breaker blocks, and the depth limit all
// degrade into an atomic verdict rather than an error.
func (e *Engine) DecomposeTask(ctx context.Context, t *task.AtomicTask, projectContext string) *DecompositionResult {
	return e.decompose(ctx, t, projectContext, 0)
}

func (e *Engine) decompose(ctx context.Context, t *task.AtomicTask, projectContext string, depth int) *DecompositionResult {
	if !e.breaker.CanAttempt(t.ID) {
		// Policy event, not a failure: the work is kept, just not split again.
		slog.Info("decomposition blocked by circuit breaker", "task_id", t.ID, "depth", depth)
		e.publish(eventbus.EventDecomposeBlocked, t.ID, "", map[string]string{"depth": fmt.Sprint(depth)})
		return e.forcedAtomic(t, depth, "circuit breaker open; accepting task as atomic")
	}
	if depth >= e.cfg.MaxDepth {
		slog.Info("decomposition depth limit reached", "task_id", t.ID, "depth", depth)
		e.publish(eventbus.EventDecomposeDepthStop, t.ID, "", map[string]string{"depth": fmt.Sprint(depth)})
		return e.forcedAtomic(t, depth, "recursion depth limit reached; accepting task as atomic")
	}

	e.breaker.RecordAttempt(t.ID)
	e.publish(eventbus.EventDecomposeProgress, t.ID, t.Title, map[string]string{"depth": fmt.Sprint(depth)})

	analysis, err := e.oracle.Analyze(ctx, t, projectContext)
	if err != nil {
		// A failed oracle call is local to this node: return a degraded
		// atomic result carrying the error text instead of propagating.
		slog.Warn("atomicity analysis failed", "task_id", t.ID, "depth", depth, "error", err)
		e.breaker.RecordFailure(t.ID)
		res := e.forcedAtomic(t, depth, "atomicity analysis unavailable; accepting task as atomic")
		res.Error = err.Error()
		return res
	}

	if analysis.IsAtomic && analysis.Confidence >= e.cfg.MinConfidence {
		e.breaker.RecordSuccess(t.ID)
		e.publish(eventbus.EventTaskAtomic, t.ID, t.Title, nil)
		return &DecompositionResult{
			Success:  true,
			IsAtomic: true,
			Task:     t,
			Analysis: analysis,
			Depth:    depth,
		}
	}

	seq := 0
	subtasks, err := e.epicFirst(ctx, t, projectContext, &seq)
	if err != nil || len(subtasks) == 0 {
		if err != nil {
			slog.Warn("epic-first strategy failed, falling back", "task_id", t.ID, "error", err)
		}
		subtasks, err = e.traditional(ctx, t, projectContext, &seq)
	}
	if err != nil || len(subtasks) == 0 {
		e.breaker.RecordFailure(t.ID)
		slog.Warn("task is un-decomposable, accepting as atomic", "task_id", t.ID, "depth", depth, "error", err)
		res := e.forcedAtomic(t, depth, "no strategy produced subtasks; accepting task as atomic")
		res.Analysis = analysis
		if err != nil {
			res.Error = err.Error()
		}
		return res
	}

	// Re-check each produced subtask; non-atomic ones recurse with the same
	// breaker keyed by their own id. Branches run sequentially, bounding
	// external-service concurrency.
	merged := make([]*task.AtomicTask, 0, len(subtasks))
	for _, st := range subtasks {
		res := e.decompose(ctx, st, projectContext, depth+1)
		if !res.IsAtomic && len(res.Subtasks) > 0 {
			merged = append(merged, res.Subtasks...)
			continue
		}
		merged = append(merged, st)
	}

	e.breaker.RecordSuccess(t.ID)
	e.publish(eventbus.EventTaskDecomposed, t.ID, t.Title, map[string]string{
		"depth":    fmt.Sprint(depth),
		"subtasks": fmt.Sprint(len(merged)),
	})
	return &DecompositionResult{
		Success:  true,
		IsAtomic: false,
		Task:     t,
		Subtasks: merged,
		Analysis: analysis,
		Depth:    depth,
	}
}

// forcedAtomic builds the degraded terminal result used for breaker blocks,
// the depth limit, and failed strategies. Work is never silently dropped.
func (e *Engine) forcedAtomic(t *task.AtomicTask, depth int, reason string) *DecompositionResult {
	return &DecompositionResult{
		Success:  true,
		IsAtomic: true,
		Task:     t,
		Analysis: &AtomicityAnalysis{
			IsAtomic:   true,
			Confidence: 1,
			Reasoning:  reason,
		},
		Depth: depth,
	}
}

// buildTask converts an untrusted payload into an AtomicTask inheriting the
// origin's project scope. Child ids derive from the parent id plus a sequence
// suffix; tasks without a parent id get a generated one.
func (e *Engine) buildTask(origin *task.AtomicTask, p taskPayload, seq int, epicID, functionalArea string) *task.AtomicTask {
	hours := 0.0
	if p.EstimatedHours != nil {
		hours = *p.EstimatedHours
	}
	area := p.FunctionalArea
	if area == "" {
		area = functionalArea
	}
	now := time.Now()
	return &task.AtomicTask{
		ID:                 e.childID(origin, seq),
		Title:              p.Title,
		Description:        p.Description,
		Status:             task.StatusPending,
		Priority:           task.Priority(p.Priority),
		Type:               task.Type(p.Type),
		FunctionalArea:     area,
		EstimatedHours:     hours,
		EpicID:             epicID,
		ProjectID:          origin.ProjectID,
		FilePaths:          p.FilePaths,
		AcceptanceCriteria: p.AcceptanceCriteria,
		Metadata: task.Metadata{
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: "decomposition-engine",
			Tags:      p.Tags,
		},
	}
}

func (e *Engine) childID(origin *task.AtomicTask, seq int) string {
	if origin.ID == "" {
		return e.ids.NextTaskID()
	}
	return fmt.Sprintf("%s-%02d", origin.ID, seq)
}

func (e *Engine) publish(eventType eventbus.EventType, resourceID, payload string, metadata map[string]string) {
	if e.bus == nil {
		return
	}
	e.bus.PublishNew(eventType, resourceID, payload, metadata)
}
