// Package llm defines the text-completion contract consumed by the
// decomposition engine. Responses are untrusted text: callers must validate
// and repair them before use.
package llm

import "context"

// Request describes one completion call.
type Request struct {
	Prompt       string
	SystemPrompt string
	// TaskName labels the logical operation for logging ("epic_generation",
	// "task_decomposition", ...).
	TaskName string
	// ExpectedFormat is a human-readable description of the wanted output
	// shape, appended to the prompt.
	ExpectedFormat string
	// SchemaHint optionally carries a JSON schema fragment for backends that
	// can enforce one.
	SchemaHint string
	// Temperature is honored by backends that expose a sampling control and
	// recorded for logging otherwise.
	Temperature float64
}

// Client turns a prompt into raw completion text. Implementations may fail
// with a timeout or transport error; the response is never trusted as-is.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
