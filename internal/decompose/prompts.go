package decompose

import (
	"fmt"
	"strings"

	"github.com/taskforge-ai/taskforge/internal/task"
)

// FunctionalAreas enumerates the valid functional-area tags epics may use.
var FunctionalAreas = []string{
	"authentication",
	"backend",
	"frontend",
	"database",
	"api",
	"infrastructure",
	"testing",
	"documentation",
	"integration",
	"performance",
}

func validFunctionalArea(area string) bool {
	for _, a := range FunctionalAreas {
		if a == area {
			return true
		}
	}
	return false
}

const atomicitySystemPrompt = `You are a software planning assistant that judges whether a development task is atomic. An atomic task takes 5-10 minutes for a single developer and has exactly one acceptance criterion. Respond with JSON only.`

const atomicityFormat = `{"isAtomic": bool, "confidence": number between 0 and 1, "reasoning": string, "complexityFactors": [string], "recommendations": [string]}`

func atomicityPrompt(t *task.AtomicTask, projectContext string) string {
	var b strings.Builder
	b.WriteString("Analyze whether the following task is atomic.\n\n")
	writeTaskBlock(&b, t)
	if projectContext != "" {
		fmt.Fprintf(&b, "\nProject context:\n%s\n", projectContext)
	}
	b.WriteString("\nA task is atomic when it can be completed in 5-10 minutes and verified by a single acceptance criterion.")
	return b.String()
}

const epicSystemPrompt = `You are a software planning assistant that groups work into epics. Respond with JSON only, no prose.`

const epicFormat = `{"epics": [{"name": string, "functionalArea": string, "description": string, "priority": "low"|"medium"|"high"|"critical", "estimatedComplexity": "simple"|"moderate"|"complex"}]}`

func epicPrompt(t *task.AtomicTask, projectContext string) string {
	var b strings.Builder
	b.WriteString("Identify the epics needed to complete the following task.\n\n")
	writeTaskBlock(&b, t)
	if projectContext != "" {
		fmt.Fprintf(&b, "\nProject context:\n%s\n", projectContext)
	}
	fmt.Fprintf(&b, "\nValid functional areas (use exactly one per epic): %s.\n", strings.Join(FunctionalAreas, ", "))
	b.WriteString("Scale the epic count to complexity: 1-2 epics for simple tasks, 2-4 for moderate, 4-6 for complex. Never exceed 6 epics.")
	return b.String()
}

const taskGenSystemPrompt = `You are a software planning assistant that produces atomic development tasks. Every task must take 5-10 minutes (estimatedHours between 0.08 and 0.17) and carry exactly one acceptance criterion. Respond with JSON only, no prose.`

const taskListFormat = `{"tasks": [{"title": string, "description": string, "type": "development"|"testing"|"documentation"|"research", "priority": "low"|"medium"|"high"|"critical", "estimatedHours": number, "functionalArea": string, "acceptanceCriteria": [string], "filePaths": [string], "tags": [string]}]}`

func epicTaskPrompt(t *task.AtomicTask, epic *EpicStructure, projectContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate the atomic tasks for the epic %q (%s) of the following parent task.\n\n", epic.Name, epic.FunctionalArea)
	writeTaskBlock(&b, t)
	fmt.Fprintf(&b, "\nEpic description: %s\n", epic.Description)
	if projectContext != "" {
		fmt.Fprintf(&b, "\nProject context:\n%s\n", projectContext)
	}
	b.WriteString("\nEvery task must be completable in 5-10 minutes (estimatedHours between 0.08 and 0.17) and have exactly one acceptance criterion.")
	return b.String()
}

func traditionalPrompt(t *task.AtomicTask, projectContext string) string {
	var b strings.Builder
	b.WriteString("Decompose the following task into a flat list of atomic tasks.\n\n")
	writeTaskBlock(&b, t)
	if projectContext != "" {
		fmt.Fprintf(&b, "\nProject context:\n%s\n", projectContext)
	}
	b.WriteString("\nEvery task must be completable in 5-10 minutes (estimatedHours between 0.08 and 0.17) and have exactly one acceptance criterion.")
	return b.String()
}

// strictnessSuffixes escalate per retry attempt. Index 0 is the initial call.
var strictnessSuffixes = []string{
	"",
	"\n\nIMPORTANT: Your previous response was not a valid task list. Respond with ONLY the JSON object described in the expected format. Do not describe or analyze the task: produce the tasks array.",
	"\n\nSTRICT MODE: Output exactly one JSON object with a top-level \"tasks\" array and nothing else. No markdown, no commentary, no analysis. Any other output is rejected.",
}

// temperatureSchedule escalates sampling temperature per retry attempt for
// backends that support it.
var temperatureSchedule = []float64{0.2, 0.4, 0.7}

func retrySuffix(attempt int) string {
	if attempt >= len(strictnessSuffixes) {
		return strictnessSuffixes[len(strictnessSuffixes)-1]
	}
	return strictnessSuffixes[attempt]
}

func retryTemperature(attempt int) float64 {
	if attempt >= len(temperatureSchedule) {
		return temperatureSchedule[len(temperatureSchedule)-1]
	}
	return temperatureSchedule[attempt]
}

func writeTaskBlock(b *strings.Builder, t *task.AtomicTask) {
	fmt.Fprintf(b, "Task: %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", t.Description)
	}
	fmt.Fprintf(b, "Type: %s\nPriority: %s\n", t.Type, t.Priority)
	if t.FunctionalArea != "" {
		fmt.Fprintf(b, "Functional area: %s\n", t.FunctionalArea)
	}
	if t.EstimatedHours > 0 {
		fmt.Fprintf(b, "Estimated hours: %.2f\n", t.EstimatedHours)
	}
}
