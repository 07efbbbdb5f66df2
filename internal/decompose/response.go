package decompose

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/taskforge-ai/taskforge/internal/task"
)

// Shape tags the possible completion-service response shapes. The classifier
// replaces ad hoc field probing with an explicit tagged union.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeTasks
	ShapeLegacy
	ShapeSingle
	ShapeAnalysisOnly
)

func (s Shape) String() string {
	switch s {
	case ShapeTasks:
		return "tasks"
	case ShapeLegacy:
		return "legacy-subtasks"
	case ShapeSingle:
		return "single-task"
	case ShapeAnalysisOnly:
		return "analysis-only"
	default:
		return "unrecognized"
	}
}

// ParseError is the typed parse failure of the validator. It is recovered
// inside the engine (retry, then fallback synthesis) and never propagated
// past DecomposeTask.
type ParseError struct {
	Shape  Shape
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure (%s shape): %s", e.Shape, e.Reason)
}

// extractJSONObject pulls a JSON object out of raw completion text, tolerating
// surrounding prose and markdown fences. Invalid JSON goes through jsonrepair
// before giving up.
func extractJSONObject(raw string) (string, error) {
	candidate := raw
	if idx := strings.Index(candidate, "```"); idx >= 0 {
		rest := candidate[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate = rest[:end]
		} else {
			candidate = rest
		}
	}

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return "", &ParseError{Shape: ShapeUnrecognized, Reason: "no JSON object found in response"}
	}
	candidate = candidate[start : end+1]

	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil || !json.Valid([]byte(repaired)) {
		return "", &ParseError{Shape: ShapeUnrecognized, Reason: "response is not valid JSON and could not be repaired"}
	}
	return repaired, nil
}

// analysisKeys mark an "analysis-only" response: the model described the task
// instead of producing a task list.
var analysisKeys = []string{"analysis", "assessment", "reasoning", "contextualInsights", "summary", "evaluation"}

func classifyShape(fields map[string]json.RawMessage) Shape {
	if _, ok := fields["tasks"]; ok {
		return ShapeTasks
	}
	if _, ok := fields["subTasks"]; ok {
		return ShapeLegacy
	}
	if _, ok := fields["title"]; ok {
		if _, ok := fields["description"]; ok {
			return ShapeSingle
		}
	}
	for _, key := range analysisKeys {
		if _, ok := fields[key]; ok {
			return ShapeAnalysisOnly
		}
	}
	return ShapeUnrecognized
}

// taskPayload is the untrusted wire form of a generated task.
type taskPayload struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Type               string   `json:"type"`
	Priority           string   `json:"priority"`
	EstimatedHours     *float64 `json:"estimatedHours"`
	FunctionalArea     string   `json:"functionalArea"`
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
	FilePaths          []string `json:"filePaths"`
	Tags               []string `json:"tags"`
}

// parsedResponse is the classified outcome of one completion response.
type parsedResponse struct {
	Shape Shape
	Tasks []taskPayload
	// AnalysisText carries the descriptive content of an analysis-only
	// response so it can be converted into a fallback task.
	AnalysisText string
}

// parseTaskResponse extracts, classifies, and validates raw completion text.
// A *ParseError is returned for unparsable input or a structurally invalid
// batch; analysis-only and unrecognized shapes are returned to the caller to
// drive the retry policy.
func parseTaskResponse(raw string) (*parsedResponse, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return nil, &ParseError{Shape: ShapeUnrecognized, Reason: "response is not a JSON object"}
	}

	shape := classifyShape(fields)
	switch shape {
	case ShapeTasks:
		tasks, err := decodeTaskBatch(shape, fields["tasks"])
		if err != nil {
			return nil, err
		}
		return &parsedResponse{Shape: shape, Tasks: tasks}, nil
	case ShapeLegacy:
		tasks, err := decodeTaskBatch(shape, fields["subTasks"])
		if err != nil {
			return nil, err
		}
		return &parsedResponse{Shape: shape, Tasks: tasks}, nil
	case ShapeSingle:
		var single taskPayload
		if err := json.Unmarshal([]byte(obj), &single); err != nil {
			return nil, &ParseError{Shape: shape, Reason: "single task object malformed"}
		}
		if missing := missingFields(single); len(missing) > 0 {
			return nil, &ParseError{Shape: shape, Reason: fmt.Sprintf("task %q missing fields: %s", single.Title, strings.Join(missing, ", "))}
		}
		return &parsedResponse{Shape: shape, Tasks: []taskPayload{single}}, nil
	case ShapeAnalysisOnly:
		return &parsedResponse{Shape: shape, AnalysisText: analysisText(fields)}, nil
	default:
		return &parsedResponse{Shape: ShapeUnrecognized}, nil
	}
}

// decodeTaskBatch rejects the whole batch when any element misses a required
// field, naming the first offender in the diagnostic.
func decodeTaskBatch(shape Shape, rawList json.RawMessage) ([]taskPayload, error) {
	var payloads []taskPayload
	if err := json.Unmarshal(rawList, &payloads); err != nil {
		return nil, &ParseError{Shape: shape, Reason: "tasks field is not an array of objects"}
	}
	if len(payloads) == 0 {
		return nil, &ParseError{Shape: shape, Reason: "tasks array is empty"}
	}
	for i, p := range payloads {
		if missing := missingFields(p); len(missing) > 0 {
			name := p.Title
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return nil, &ParseError{
				Shape:  shape,
				Reason: fmt.Sprintf("task %q missing fields: %s", name, strings.Join(missing, ", ")),
			}
		}
	}
	return payloads, nil
}

func missingFields(p taskPayload) []string {
	var missing []string
	if p.Title == "" {
		missing = append(missing, "title")
	}
	if p.Description == "" {
		missing = append(missing, "description")
	}
	if p.Type == "" {
		missing = append(missing, "type")
	}
	if p.Priority == "" {
		missing = append(missing, "priority")
	}
	if p.EstimatedHours == nil {
		missing = append(missing, "estimatedHours")
	}
	return missing
}

func analysisText(fields map[string]json.RawMessage) string {
	var parts []string
	for _, key := range analysisKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			parts = append(parts, s)
			continue
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			parts = append(parts, strings.Join(list, "; "))
		}
	}
	return strings.Join(parts, " ")
}

// fallbackFromAnalysis converts the descriptive content of an analysis-only
// response into a single atomic task instead of failing outright.
func (e *Engine) fallbackFromAnalysis(origin *task.AtomicTask, analysis string) *task.AtomicTask {
	description := strings.TrimSpace(analysis)
	if description == "" {
		description = fmt.Sprintf("Review and act on the analysis of %q.", origin.Title)
	}
	t := &task.AtomicTask{
		ID:                 e.childID(origin, 1),
		Title:              fmt.Sprintf("Apply analysis findings: %s", origin.Title),
		Description:        truncate(description, 1000),
		Status:             task.StatusPending,
		Priority:           origin.Priority,
		Type:               origin.Type,
		FunctionalArea:     origin.FunctionalArea,
		EstimatedHours:     0.15,
		EpicID:             origin.EpicID,
		ProjectID:          origin.ProjectID,
		AcceptanceCriteria: []string{fmt.Sprintf("The findings of the analysis for %q are applied and verified.", origin.Title)},
	}
	stampSynthetic(t)
	return t
}

// fallbackPair synthesizes the two-task fallback for unparsable output: a
// planning task and an implementation task linked by a dependency edge.
func (e *Engine) fallbackPair(origin *task.AtomicTask) []*task.AtomicTask {
	plan := &task.AtomicTask{
		ID:                 e.childID(origin, 1),
		Title:              fmt.Sprintf("Plan: %s", origin.Title),
		Description:        fmt.Sprintf("Analyze the scope of %q and note the concrete implementation steps.", origin.Title),
		Status:             task.StatusPending,
		Priority:           origin.Priority,
		Type:               task.TypeResearch,
		FunctionalArea:     origin.FunctionalArea,
		EstimatedHours:     0.1,
		EpicID:             origin.EpicID,
		ProjectID:          origin.ProjectID,
		AcceptanceCriteria: []string{fmt.Sprintf("Implementation steps for %q are written down.", origin.Title)},
	}
	impl := &task.AtomicTask{
		ID:                 e.childID(origin, 2),
		Title:              fmt.Sprintf("Implement: %s", origin.Title),
		Description:        fmt.Sprintf("Carry out the planned steps for %q.", origin.Title),
		Status:             task.StatusPending,
		Priority:           origin.Priority,
		Type:               origin.Type,
		FunctionalArea:     origin.FunctionalArea,
		EstimatedHours:     0.15,
		EpicID:             origin.EpicID,
		ProjectID:          origin.ProjectID,
		Dependencies:       []string{plan.ID},
		AcceptanceCriteria: []string{fmt.Sprintf("The planned steps for %q are implemented.", origin.Title)},
	}
	plan.Dependents = []string{impl.ID}
	stampSynthetic(plan)
	stampSynthetic(impl)
	return []*task.AtomicTask{plan, impl}
}

func stampSynthetic(t *task.AtomicTask) {
	now := time.Now()
	t.Metadata = task.Metadata{
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: "decomposition-engine",
		Tags:      []string{"fallback"},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
