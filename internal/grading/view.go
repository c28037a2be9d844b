package grading

import (
	"time"

	"github.com/noah-isme/gema-exec/internal/execution"
)

// TestResultView is the per-test payload exposed to callers. For hidden test
// cases a non-evaluator view withholds the input, the expected output and the
// program's actual output; only the pass flag and coarse status remain.
type TestResultView struct {
	TestID   string           `json:"test_id"`
	Name     string           `json:"name,omitempty"`
	Hidden   bool             `json:"hidden"`
	Passed   bool             `json:"passed"`
	Points   int              `json:"points"`
	Status   execution.Status `json:"status"`
	WallTime time.Duration    `json:"wall_time"`
	Input    string           `json:"input,omitempty"`
	Expected string           `json:"expected,omitempty"`
	Actual   string           `json:"actual,omitempty"`
}

// BatchView is the caller-facing shape of a graded batch.
type BatchView struct {
	Results        []TestResultView `json:"results"`
	TestsPassed    int              `json:"tests_passed"`
	EarnedPoints   int              `json:"earned_points"`
	PossiblePoints int              `json:"possible_points"`
	AvgWallTime    time.Duration    `json:"avg_wall_time"`
	MaxMemoryBytes int64            `json:"max_memory_bytes"`
}

// NewTestResultView shapes one result for a caller. evaluator grants access
// to hidden case data.
func NewTestResultView(r TestResult, evaluator bool) TestResultView {
	view := TestResultView{
		TestID:   r.TestID,
		Name:     r.Name,
		Hidden:   r.Hidden,
		Passed:   r.Passed,
		Points:   r.Points,
		Status:   r.Outcome.Status,
		WallTime: r.Outcome.WallTime,
	}

	if !r.Hidden || evaluator {
		view.Input = r.Input
		view.Expected = r.Expected
		view.Actual = r.Outcome.Stdout
	}
	return view
}

// NewBatchView shapes a whole batch for a caller.
func NewBatchView(batch BatchResult, evaluator bool) BatchView {
	views := make([]TestResultView, 0, len(batch.Results))
	for _, r := range batch.Results {
		views = append(views, NewTestResultView(r, evaluator))
	}
	return BatchView{
		Results:        views,
		TestsPassed:    batch.TestsPassed,
		EarnedPoints:   batch.EarnedPoints,
		PossiblePoints: batch.PossiblePoints,
		AvgWallTime:    batch.AvgWallTime,
		MaxMemoryBytes: batch.MaxMemoryBytes,
	}
}
