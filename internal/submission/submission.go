// Package submission drives the externally visible lifecycle of a graded
// submission: queued, processing, then exactly one permanent terminal status.
package submission

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/gema-exec/internal/execution"
	"github.com/noah-isme/gema-exec/internal/tier"
)

// ErrInvalidTransition indicates an attempt to leave a terminal status or to
// skip the processing stage.
var ErrInvalidTransition = errors.New("invalid submission status transition")

// Submission is one learner's attempt at an exercise. Persistence belongs to
// an external collaborator behind the Store interface; the engine only drives
// the state machine and computes everything worth persisting.
type Submission struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	ExerciseID string           `json:"exercise_id"`
	Language   string           `json:"language"`
	Source     string           `json:"source"`
	Tier       tier.Tier        `json:"tier"`
	Status     execution.Status `json:"status"`
	Error      string           `json:"error,omitempty"`

	TestsPassed    int   `json:"tests_passed"`
	EarnedPoints   int   `json:"earned_points"`
	PossiblePoints int   `json:"possible_points"`
	AvgWallTimeMs  int64 `json:"avg_wall_time_ms"`
	MaxMemoryKB    int64 `json:"max_memory_kb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New constructs a queued submission.
func New(userID, exerciseID, language, source string, t tier.Tier) *Submission {
	now := time.Now().UTC()
	return &Submission{
		ID:         uuid.NewString(),
		UserID:     userID,
		ExerciseID: exerciseID,
		Language:   language,
		Source:     source,
		Tier:       t,
		Status:     execution.StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition moves the submission to the next status. Legal moves are
// queued→processing, queued→internal_error (infrastructure failed before
// grading started) and processing→any terminal status. Terminal statuses are
// permanent.
func (s *Submission) Transition(to execution.Status) error {
	legal := false
	switch s.Status {
	case execution.StatusQueued:
		legal = to == execution.StatusProcessing || to == execution.StatusInternalError
	case execution.StatusProcessing:
		legal = to.Terminal()
	}
	if !legal {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}

	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}
