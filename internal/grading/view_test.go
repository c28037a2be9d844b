package grading

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exec/internal/execution"
)

func hiddenResult() TestResult {
	return TestResult{
		TestID:   "t1",
		Hidden:   true,
		Passed:   false,
		Input:    "secret input",
		Expected: "secret expected",
		Outcome: execution.Outcome{
			Status: execution.StatusWrongAnswer,
			Stdout: "secret actual",
		},
	}
}

func TestHiddenCaseRedactedForLearner(t *testing.T) {
	view := NewTestResultView(hiddenResult(), false)

	require.Empty(t, view.Input)
	require.Empty(t, view.Expected)
	require.Empty(t, view.Actual)
	require.True(t, view.Hidden)
	require.False(t, view.Passed)
	require.Equal(t, execution.StatusWrongAnswer, view.Status)

	// Nothing secret may survive serialisation either.
	payload, err := json.Marshal(view)
	require.NoError(t, err)
	require.NotContains(t, string(payload), "secret")
}

func TestHiddenCaseVisibleToEvaluator(t *testing.T) {
	view := NewTestResultView(hiddenResult(), true)
	require.Equal(t, "secret input", view.Input)
	require.Equal(t, "secret expected", view.Expected)
	require.Equal(t, "secret actual", view.Actual)
}

func TestVisibleCaseAlwaysExposed(t *testing.T) {
	r := hiddenResult()
	r.Hidden = false
	view := NewTestResultView(r, false)
	require.Equal(t, "secret input", view.Input)
	require.Equal(t, "secret actual", view.Actual)
}

func TestBatchViewCarriesAggregates(t *testing.T) {
	batch := BatchResult{
		Results:        []TestResult{hiddenResult()},
		TestsPassed:    0,
		EarnedPoints:   0,
		PossiblePoints: 5,
	}

	view := NewBatchView(batch, false)
	require.Len(t, view.Results, 1)
	require.Equal(t, 5, view.PossiblePoints)
	require.Empty(t, view.Results[0].Input)
}
