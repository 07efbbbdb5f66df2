package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"
)

// ClaudeClient implements Client over the Claude CLI via the agent SDK.
// Each request is a single-turn query with a per-call deadline. The CLI does
// not expose a sampling temperature; escalation is carried through prompt
// strictness instead.
type ClaudeClient struct {
	workDir string
	timeout time.Duration
}

func NewClaudeClient(workDir string, timeout time.Duration) *ClaudeClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ClaudeClient{workDir: workDir, timeout: timeout}
}

func (c *ClaudeClient) Complete(ctx context.Context, req Request) (string, error) {
	prompt := req.Prompt
	if req.ExpectedFormat != "" {
		prompt = fmt.Sprintf("%s\n\nExpected output format:\n%s", prompt, req.ExpectedFormat)
	}
	if req.SchemaHint != "" {
		prompt = fmt.Sprintf("%s\n\nThe output must conform to this JSON schema:\n%s", prompt, req.SchemaHint)
	}

	maxTurns := 1
	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt: req.SystemPrompt,
		Cwd:          c.workDir,
		MaxTurns:     &maxTurns,
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	result, err := claudeagent.RunQuerySync(callCtx, prompt, opts)
	if err != nil {
		return "", fmt.Errorf("completion %q failed: %w", req.TaskName, err)
	}
	if result.Result == nil {
		return "", fmt.Errorf("completion %q returned no result", req.TaskName)
	}
	if result.Result.IsError {
		msg := result.Result.Result
		if msg == "" {
			msg = "completion backend returned an error"
		}
		return "", fmt.Errorf("completion %q failed: %s", req.TaskName, msg)
	}

	slog.Debug("completion finished",
		"task_name", req.TaskName,
		"temperature", req.Temperature,
		"duration", time.Since(started),
	)
	return strings.TrimSpace(result.Result.Result), nil
}
