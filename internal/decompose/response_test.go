package decompose

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		obj, err := extractJSONObject(`{"tasks": []}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"tasks": []}`, obj)
	})

	t.Run("markdown fence", func(t *testing.T) {
		raw := "Here you go:\n```json\n{\"tasks\": []}\n```\nLet me know if you need more."
		obj, err := extractJSONObject(raw)
		require.NoError(t, err)
		assert.JSONEq(t, `{"tasks": []}`, obj)
	})

	t.Run("surrounding prose", func(t *testing.T) {
		obj, err := extractJSONObject(`Sure! {"title": "x"} Hope that helps.`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"title": "x"}`, obj)
	})

	t.Run("repairable json", func(t *testing.T) {
		// Trailing comma and single quotes are common model mistakes.
		obj, err := extractJSONObject(`{'title': 'x', 'description': 'y',}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"title": "x", "description": "y"}`, obj)
	})

	t.Run("no object at all", func(t *testing.T) {
		_, err := extractJSONObject("I could not produce tasks for this input.")
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, ShapeUnrecognized, parseErr.Shape)
	})
}

func TestParseTaskResponseShapes(t *testing.T) {
	const valid = `"description": "d", "type": "development", "priority": "medium", "estimatedHours": 0.1`

	t.Run("tasks shape", func(t *testing.T) {
		parsed, err := parseTaskResponse(`{"tasks": [{"title": "a", ` + valid + `}]}`)
		require.NoError(t, err)
		assert.Equal(t, ShapeTasks, parsed.Shape)
		require.Len(t, parsed.Tasks, 1)
		assert.Equal(t, "a", parsed.Tasks[0].Title)
	})

	t.Run("legacy subTasks shape", func(t *testing.T) {
		parsed, err := parseTaskResponse(`{"subTasks": [{"title": "a", ` + valid + `}]}`)
		require.NoError(t, err)
		assert.Equal(t, ShapeLegacy, parsed.Shape)
		assert.Len(t, parsed.Tasks, 1)
	})

	t.Run("single task shape", func(t *testing.T) {
		parsed, err := parseTaskResponse(`{"title": "a", ` + valid + `}`)
		require.NoError(t, err)
		assert.Equal(t, ShapeSingle, parsed.Shape)
		assert.Len(t, parsed.Tasks, 1)
	})

	t.Run("analysis only", func(t *testing.T) {
		parsed, err := parseTaskResponse(`{"analysis": "too broad to split", "recommendations": ["narrow scope"]}`)
		require.NoError(t, err)
		assert.Equal(t, ShapeAnalysisOnly, parsed.Shape)
		assert.Contains(t, parsed.AnalysisText, "too broad to split")
	})

	t.Run("unrecognized", func(t *testing.T) {
		parsed, err := parseTaskResponse(`{"unexpectedField": "x"}`)
		require.NoError(t, err)
		assert.Equal(t, ShapeUnrecognized, parsed.Shape)
		assert.Empty(t, parsed.Tasks)
	})
}

func TestDecodeTaskBatchRejectsWholeBatch(t *testing.T) {
	raw := `{"tasks": [
		{"title": "good", "description": "d", "type": "development", "priority": "medium", "estimatedHours": 0.1},
		{"title": "bad", "description": "d", "type": "development"}
	]}`
	_, err := parseTaskResponse(raw)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	// One invalid element poisons the batch; the offender is named.
	assert.Contains(t, parseErr.Reason, `"bad"`)
	assert.Contains(t, parseErr.Reason, "priority")
	assert.Contains(t, parseErr.Reason, "estimatedHours")
}

func TestDecodeTaskBatchKeepsLegacyShapeInDiagnostics(t *testing.T) {
	raw := `{"subTasks": [{"title": "bad", "description": "d", "type": "development"}]}`
	_, err := parseTaskResponse(raw)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ShapeLegacy, parseErr.Shape)
}

func TestDecodeTaskBatchEmptyArray(t *testing.T) {
	_, err := parseTaskResponse(`{"tasks": []}`)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Reason, "empty")
}

func TestMissingEstimatedHoursIsDetected(t *testing.T) {
	// estimatedHours: 0 is present but zero; a missing key is a different
	// failure and must be reported as missing.
	missing := missingFields(taskPayload{Title: "a", Description: "d", Type: "development", Priority: "low"})
	assert.Contains(t, missing, "estimatedHours")

	zero := 0.0
	withZero := missingFields(taskPayload{Title: "a", Description: "d", Type: "development", Priority: "low", EstimatedHours: &zero})
	assert.NotContains(t, withZero, "estimatedHours")
}
