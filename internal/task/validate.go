package task

import (
	"fmt"

	"github.com/taskforge-ai/taskforge/pkg/cerr"
)

// Atomic tasks must fit in a 5-10 minute execution window.
const (
	MinAtomicHours = 0.08
	MaxAtomicHours = 0.17
)

// ValidateAtomic checks the invariants of an atomic task: a non-empty
// identity, an in-range estimate, and exactly one acceptance criterion.
// Violations are rejected, never clamped.
func (t *AtomicTask) ValidateAtomic() error {
	if t.ID == "" {
		return cerr.NewError(cerr.InvalidArgument, "task id is required", nil)
	}
	if t.Title == "" {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("task %s: title is required", t.ID), nil)
	}
	if !t.Type.Valid() {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("task %s: unknown type %q", t.ID, t.Type), nil)
	}
	if !t.Priority.Valid() {
		return cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("task %s: unknown priority %q", t.ID, t.Priority), nil)
	}
	if t.EstimatedHours < MinAtomicHours || t.EstimatedHours > MaxAtomicHours {
		return cerr.NewError(cerr.OutOfRange,
			fmt.Sprintf("task %s: estimated hours %.3f outside atomic range [%.2f, %.2f]",
				t.ID, t.EstimatedHours, MinAtomicHours, MaxAtomicHours), nil)
	}
	if len(t.AcceptanceCriteria) != 1 {
		return cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("task %s: atomic tasks need exactly one acceptance criterion, got %d",
				t.ID, len(t.AcceptanceCriteria)), nil)
	}
	return nil
}
