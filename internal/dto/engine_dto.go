// Package dto defines the request and response payloads of the HTTP API.
package dto

import (
	"time"

	"github.com/noah-isme/gema-exec/internal/execution"
	"github.com/noah-isme/gema-exec/internal/grading"
)

// ExecuteRequest is the payload for one ad-hoc code run.
type ExecuteRequest struct {
	UserID   string   `json:"user_id" validate:"required"`
	Source   string   `json:"source" validate:"required,min=1"`
	Language string   `json:"language" validate:"required"`
	Tier     string   `json:"tier" validate:"required"`
	Stdin    string   `json:"stdin"`
	Args     []string `json:"args"`

	// Optional overrides, clamped to the caller's tier.
	CPULimitMs  int64 `json:"cpu_limit_ms" validate:"omitempty,min=0"`
	WallLimitMs int64 `json:"wall_limit_ms" validate:"omitempty,min=0"`
	MemoryMB    int64 `json:"memory_mb" validate:"omitempty,min=0"`
}

// ExecuteResponse mirrors one execution outcome.
type ExecuteResponse struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	CompileOutput   string `json:"compile_output,omitempty"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
	ExitCode        int    `json:"exit_code"`
	WallTimeMs      int64  `json:"wall_time_ms"`
	MemoryKB        int64  `json:"memory_kb"`
	Message         string `json:"message,omitempty"`
}

// NewExecuteResponse converts an outcome into its API shape.
func NewExecuteResponse(out execution.Outcome) ExecuteResponse {
	return ExecuteResponse{
		ID:              out.ID,
		Status:          string(out.Status),
		Stdout:          out.Stdout,
		Stderr:          out.Stderr,
		CompileOutput:   out.CompileOutput,
		StdoutTruncated: out.StdoutTruncated,
		StderrTruncated: out.StderrTruncated,
		ExitCode:        out.ExitCode,
		WallTimeMs:      out.WallTime.Milliseconds(),
		MemoryKB:        out.MemoryBytes / 1024,
		Message:         out.Message,
	}
}

// TicketResponse acknowledges an asynchronous execution.
type TicketResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TestCaseRequest is one test case of a graded submission.
type TestCaseRequest struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Points   int    `json:"points" validate:"omitempty,min=0"`
	Hidden   bool   `json:"hidden"`

	CPULimitMs int64 `json:"cpu_limit_ms" validate:"omitempty,min=0"`
	MemoryMB   int64 `json:"memory_mb" validate:"omitempty,min=0"`
}

// ToTestCase converts the payload into the grading harness shape.
func (r TestCaseRequest) ToTestCase() grading.TestCase {
	return grading.TestCase{
		ID:       r.ID,
		Name:     r.Name,
		Input:    r.Input,
		Expected: r.Expected,
		Points:   r.Points,
		Hidden:   r.Hidden,
		CPULimit: time.Duration(r.CPULimitMs) * time.Millisecond,
		MemoryMB: r.MemoryMB,
	}
}

// SubmissionRequest is the payload for grading a submission against tests.
type SubmissionRequest struct {
	UserID     string            `json:"user_id" validate:"required"`
	ExerciseID string            `json:"exercise_id" validate:"required"`
	Language   string            `json:"language" validate:"required"`
	Source     string            `json:"source" validate:"required,min=1"`
	Tier       string            `json:"tier" validate:"required"`
	Tests      []TestCaseRequest `json:"tests" validate:"required,min=1,dive"`
}

// SubmissionResponse reports the graded submission and its per-test results.
type SubmissionResponse struct {
	ID             string                   `json:"id"`
	Status         string                   `json:"status"`
	TestsPassed    int                      `json:"tests_passed"`
	TestsTotal     int                      `json:"tests_total"`
	EarnedPoints   int                      `json:"earned_points"`
	PossiblePoints int                      `json:"possible_points"`
	AvgWallTimeMs  int64                    `json:"avg_wall_time_ms"`
	MaxMemoryKB    int64                    `json:"max_memory_kb"`
	Results        []grading.TestResultView `json:"results"`
}

// RateLimitResponse reports an admission decision.
type RateLimitResponse struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// LanguagesResponse lists the runnable language identifiers.
type LanguagesResponse struct {
	Languages []string `json:"languages"`
}

// QueueResponse reports engine load.
type QueueResponse struct {
	InFlight    int64 `json:"in_flight"`
	Concurrency int   `json:"concurrency"`
}
