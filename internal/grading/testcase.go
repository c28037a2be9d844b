// Package grading runs a submission against an exercise's test cases and
// aggregates the per-test outcomes into a graded batch result.
package grading

import (
	"time"

	"github.com/noah-isme/gema-exec/internal/execution"
)

// TestCase is one input/expected-output pair owned by an exercise. Test cases
// are immutable during grading.
type TestCase struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
	// Points is the case's point value; zero means the default of one point.
	Points int  `json:"points,omitempty"`
	Hidden bool `json:"hidden,omitempty"`

	// Optional per-case limit overrides.
	CPULimit time.Duration `json:"cpu_limit,omitempty"`
	MemoryMB int64         `json:"memory_mb,omitempty"`
}

// PointValue resolves the default. Negative values are clamped to zero.
func (tc TestCase) PointValue() int {
	if tc.Points < 0 {
		return 0
	}
	if tc.Points == 0 {
		return 1
	}
	return tc.Points
}

// TestResult is the graded outcome of one test case.
type TestResult struct {
	TestID   string            `json:"test_id"`
	Name     string            `json:"name,omitempty"`
	Hidden   bool              `json:"hidden"`
	Passed   bool              `json:"passed"`
	Points   int               `json:"points"`
	Input    string            `json:"input"`
	Expected string            `json:"expected"`
	Outcome  execution.Outcome `json:"outcome"`
}

// BatchResult aggregates one full grading pass. Results preserve the original
// test-case order regardless of completion order.
type BatchResult struct {
	Results        []TestResult  `json:"results"`
	TestsPassed    int           `json:"tests_passed"`
	EarnedPoints   int           `json:"earned_points"`
	PossiblePoints int           `json:"possible_points"`
	AvgWallTime    time.Duration `json:"avg_wall_time"`
	MaxMemoryBytes int64         `json:"max_memory_bytes"`
}
