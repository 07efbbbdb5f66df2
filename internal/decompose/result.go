package decompose

import "github.com/taskforge-ai/taskforge/internal/task"

// AtomicityAnalysis is the oracle's verdict on whether a task is small enough
// to execute directly.
type AtomicityAnalysis struct {
	IsAtomic          bool     `json:"isAtomic"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	ComplexityFactors []string `json:"complexityFactors,omitempty"`
	Recommendations   []string `json:"recommendations,omitempty"`
}

// DecompositionResult is the outcome of one decomposition attempt. It is
// immutable once returned.
type DecompositionResult struct {
	Success  bool               `json:"success"`
	IsAtomic bool               `json:"isAtomic"`
	Task     *task.AtomicTask   `json:"task"`
	Subtasks []*task.AtomicTask `json:"subtasks,omitempty"`
	Analysis *AtomicityAnalysis `json:"analysis,omitempty"`
	Error    string             `json:"error,omitempty"`
	Depth    int                `json:"depth"`
}
