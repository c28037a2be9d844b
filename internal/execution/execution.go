// Package execution defines the request and outcome types shared by every
// execution backend.
package execution

import (
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/gema-exec/internal/tier"
	"github.com/noah-isme/gema-exec/pkg/sandbox"
)

// Request describes one run of untrusted source code. It is immutable once
// constructed; limit overrides default to the caller's tier profile.
type Request struct {
	Source   string    `validate:"required,min=1"`
	Language string    `validate:"required"`
	Tier     tier.Tier `validate:"required"`
	Stdin    string
	Args     []string

	// Optional overrides; zero means "use the tier limit".
	CPULimit  time.Duration
	WallLimit time.Duration
	MemoryMB  int64
}

// Outcome is the result record of one sandboxed program run. It is produced
// exactly once per attempt and never mutated; a retry gets a fresh identifier.
type Outcome struct {
	ID              string        `json:"id"`
	Status          Status        `json:"status"`
	Stdout          string        `json:"stdout"`
	Stderr          string        `json:"stderr"`
	CompileOutput   string        `json:"compile_output,omitempty"`
	StdoutTruncated bool          `json:"stdout_truncated,omitempty"`
	StderrTruncated bool          `json:"stderr_truncated,omitempty"`
	ExitCode        int           `json:"exit_code"`
	WallTime        time.Duration `json:"wall_time"`
	MemoryBytes     int64         `json:"memory_bytes"`
	Message         string        `json:"message,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	FinishedAt      time.Time     `json:"finished_at"`
}

// NewOutcome builds an outcome from a sandbox result, stamping identity and
// timestamps. createdAt is when the attempt began.
func NewOutcome(res sandbox.Result, createdAt time.Time) Outcome {
	return Outcome{
		ID:              uuid.NewString(),
		Status:          statusFromVerdict(res.Verdict),
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		CompileOutput:   res.CompileOutput,
		StdoutTruncated: res.StdoutTruncated,
		StderrTruncated: res.StderrTruncated,
		ExitCode:        res.ExitCode,
		WallTime:        res.Duration,
		MemoryBytes:     res.MaxMemoryBytes,
		Message:         res.Message,
		CreatedAt:       createdAt,
		FinishedAt:      time.Now().UTC(),
	}
}

// InternalOutcome builds an internal_error outcome for failures that happen
// before any process is spawned, such as input validation.
func InternalOutcome(message string) Outcome {
	now := time.Now().UTC()
	return Outcome{
		ID:         uuid.NewString(),
		Status:     StatusInternalError,
		Message:    message,
		CreatedAt:  now,
		FinishedAt: now,
	}
}

func statusFromVerdict(v sandbox.Verdict) Status {
	switch v {
	case sandbox.VerdictOK:
		return StatusAccepted
	case sandbox.VerdictCompileError:
		return StatusCompilationError
	case sandbox.VerdictTimeLimit:
		return StatusTimeLimitExceeded
	case sandbox.VerdictMemoryLimit:
		return StatusMemoryLimitExceeded
	case sandbox.VerdictRuntimeError:
		return StatusRuntimeError
	default:
		return StatusInternalError
	}
}
