package task

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a task in this status is retired.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// rank orders priorities for truncation decisions; higher is more important.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 0
	default:
		return -1
	}
}

func (p Priority) Valid() bool {
	return p.rank() >= 0
}

// LessImportant reports whether p ranks strictly below other.
func (p Priority) LessImportant(other Priority) bool {
	return p.rank() < other.rank()
}

type Type string

const (
	TypeDevelopment   Type = "development"
	TypeTesting       Type = "testing"
	TypeDocumentation Type = "documentation"
	TypeResearch      Type = "research"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDevelopment, TypeTesting, TypeDocumentation, TypeResearch:
		return true
	}
	return false
}

// TestingRequirements describes how an atomic task is verified.
type TestingRequirements struct {
	UnitTests        []string `yaml:"unit_tests,omitempty" json:"unitTests,omitempty"`
	IntegrationTests []string `yaml:"integration_tests,omitempty" json:"integrationTests,omitempty"`
	CoverageTarget   float64  `yaml:"coverage_target,omitempty" json:"coverageTarget,omitempty"`
}

type PerformanceCriteria struct {
	ResponseTime string `yaml:"response_time,omitempty" json:"responseTime,omitempty"`
	MemoryUsage  string `yaml:"memory_usage,omitempty" json:"memoryUsage,omitempty"`
}

type QualityCriteria struct {
	CodeQuality   []string `yaml:"code_quality,omitempty" json:"codeQuality,omitempty"`
	Documentation []string `yaml:"documentation,omitempty" json:"documentation,omitempty"`
	TypeSafety    bool     `yaml:"type_safety,omitempty" json:"typeSafety,omitempty"`
}

type IntegrationCriteria struct {
	Compatibility []string `yaml:"compatibility,omitempty" json:"compatibility,omitempty"`
	Patterns      []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

type ValidationMethods struct {
	Automated []string `yaml:"automated,omitempty" json:"automated,omitempty"`
	Manual    []string `yaml:"manual,omitempty" json:"manual,omitempty"`
}

type Metadata struct {
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updatedAt"`
	CreatedBy string    `yaml:"created_by" json:"createdBy"`
	Tags      []string  `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// AtomicTask is the unit of schedulable work produced by decomposition.
type AtomicTask struct {
	ID                  string              `yaml:"id" json:"id"`
	Title               string              `yaml:"title" json:"title"`
	Description         string              `yaml:"description" json:"description"`
	Status              Status              `yaml:"status" json:"status"`
	Priority            Priority            `yaml:"priority" json:"priority"`
	Type                Type                `yaml:"type" json:"type"`
	FunctionalArea      string              `yaml:"functional_area,omitempty" json:"functionalArea,omitempty"`
	EstimatedHours      float64             `yaml:"estimated_hours" json:"estimatedHours"`
	ActualHours         float64             `yaml:"actual_hours,omitempty" json:"actualHours,omitempty"`
	EpicID              string              `yaml:"epic_id,omitempty" json:"epicId,omitempty"`
	ProjectID           string              `yaml:"project_id" json:"projectId"`
	Dependencies        []string            `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Dependents          []string            `yaml:"dependents,omitempty" json:"dependents,omitempty"`
	FilePaths           []string            `yaml:"file_paths,omitempty" json:"filePaths,omitempty"`
	AcceptanceCriteria  []string            `yaml:"acceptance_criteria" json:"acceptanceCriteria"`
	Testing             TestingRequirements `yaml:"testing,omitempty" json:"testing,omitempty"`
	Performance         PerformanceCriteria `yaml:"performance,omitempty" json:"performance,omitempty"`
	Quality             QualityCriteria     `yaml:"quality,omitempty" json:"quality,omitempty"`
	Integration         IntegrationCriteria `yaml:"integration,omitempty" json:"integration,omitempty"`
	Validation          ValidationMethods   `yaml:"validation,omitempty" json:"validation,omitempty"`
	AssignedAgent       string              `yaml:"assigned_agent,omitempty" json:"assignedAgent,omitempty"`
	Metadata            Metadata            `yaml:"metadata" json:"metadata"`
}

// Touch refreshes the update timestamp.
func (t *AtomicTask) Touch() {
	t.Metadata.UpdatedAt = time.Now()
}
