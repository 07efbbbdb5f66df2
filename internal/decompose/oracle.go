package decompose

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskforge-ai/taskforge/internal/llm"
	"github.com/taskforge-ai/taskforge/internal/task"
)

// Oracle judges whether a task qualifies as atomic. Implementations live
// outside the engine; LLMOracle below is the default adapter.
type Oracle interface {
	Analyze(ctx context.Context, t *task.AtomicTask, projectContext string) (*AtomicityAnalysis, error)
}

// LLMOracle asks the completion service for an atomicity verdict and
// normalizes the response through the repair pipeline.
type LLMOracle struct {
	client llm.Client
}

func NewLLMOracle(client llm.Client) *LLMOracle {
	return &LLMOracle{client: client}
}

func (o *LLMOracle) Analyze(ctx context.Context, t *task.AtomicTask, projectContext string) (*AtomicityAnalysis, error) {
	raw, err := o.client.Complete(ctx, llm.Request{
		Prompt:         atomicityPrompt(t, projectContext),
		SystemPrompt:   atomicitySystemPrompt,
		TaskName:       "atomicity_analysis",
		ExpectedFormat: atomicityFormat,
		Temperature:    0.1,
	})
	if err != nil {
		return nil, err
	}

	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("atomicity verdict unparsable: %w", err)
	}
	var analysis AtomicityAnalysis
	if err := json.Unmarshal([]byte(obj), &analysis); err != nil {
		return nil, fmt.Errorf("atomicity verdict malformed: %w", err)
	}
	if analysis.Confidence < 0 {
		analysis.Confidence = 0
	}
	if analysis.Confidence > 1 {
		analysis.Confidence = 1
	}
	return &analysis, nil
}
