package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exec/internal/engine"
	"github.com/noah-isme/gema-exec/internal/execution"
	"github.com/noah-isme/gema-exec/internal/grading"
	"github.com/noah-isme/gema-exec/internal/observability"
	"github.com/noah-isme/gema-exec/internal/ratelimit"
)

// RateLimitedError carries the admission decision for a denied submission.
type RateLimitedError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s", e.Decision.Reason)
}

// Service grades submissions through an execution provider and records the
// lifecycle in the store.
type Service struct {
	provider engine.Provider
	store    Store
	logger   zerolog.Logger
}

// NewService constructs a submission grading service.
func NewService(provider engine.Provider, store Store, logger zerolog.Logger) *Service {
	return &Service{
		provider: provider,
		store:    store,
		logger:   logger.With().Str("component", "submission_service").Logger(),
	}
}

// Grade runs the full submission lifecycle: admission, processing, batch
// grading, terminal transition. Quota is consumed only by attempts that reach
// a terminal grading outcome, so infrastructure failures stay free.
func (s *Service) Grade(ctx context.Context, sub *Submission, tests []grading.TestCase) (grading.BatchResult, error) {
	decision, err := s.provider.CheckRateLimit(ctx, sub.UserID, sub.Tier)
	if err != nil {
		return grading.BatchResult{}, s.fail(ctx, sub, fmt.Errorf("admission check: %w", err))
	}
	if !decision.Allowed {
		return grading.BatchResult{}, &RateLimitedError{Decision: decision}
	}

	if err := s.transitionAndPersist(ctx, sub, execution.StatusProcessing, ""); err != nil {
		return grading.BatchResult{}, err
	}

	req := execution.Request{
		Source:   sub.Source,
		Language: sub.Language,
		Tier:     sub.Tier,
	}

	batch, err := s.provider.ExecuteWithTests(ctx, req, tests)
	if err != nil {
		return grading.BatchResult{}, s.fail(ctx, sub, err)
	}

	status := grading.Classify(batch)
	sub.TestsPassed = batch.TestsPassed
	sub.EarnedPoints = batch.EarnedPoints
	sub.PossiblePoints = batch.PossiblePoints
	sub.AvgWallTimeMs = batch.AvgWallTime.Milliseconds()
	sub.MaxMemoryKB = batch.MaxMemoryBytes / 1024

	if err := sub.Transition(status); err != nil {
		return grading.BatchResult{}, s.fail(ctx, sub, err)
	}
	if err := s.store.SaveResults(ctx, sub, batch); err != nil {
		return grading.BatchResult{}, fmt.Errorf("persist results: %w", err)
	}

	if err := s.provider.TrackExecution(ctx, sub.UserID); err != nil {
		// The grade stands; losing one usage event only under-counts quota.
		s.logger.Error().Err(err).Str("user_id", sub.UserID).Msg("failed to track execution")
	}

	observability.Gradings().WithLabelValues(string(status)).Inc()
	s.logger.Info().
		Str("submission_id", sub.ID).
		Str("status", string(status)).
		Int("tests_passed", batch.TestsPassed).
		Msg("submission graded")
	return batch, nil
}

// fail transitions the submission to internal_error without consuming quota.
func (s *Service) fail(ctx context.Context, sub *Submission, cause error) error {
	if terr := sub.Transition(execution.StatusInternalError); terr != nil && !errors.Is(terr, ErrInvalidTransition) {
		s.logger.Error().Err(terr).Str("submission_id", sub.ID).Msg("failed to mark submission internal_error")
	}
	sub.Error = cause.Error()
	sub.UpdatedAt = time.Now().UTC()

	if perr := s.store.UpdateStatus(ctx, sub.ID, execution.StatusInternalError, cause.Error()); perr != nil {
		s.logger.Error().Err(perr).Str("submission_id", sub.ID).Msg("failed to persist internal_error")
	}

	observability.Gradings().WithLabelValues(string(execution.StatusInternalError)).Inc()
	return cause
}

func (s *Service) transitionAndPersist(ctx context.Context, sub *Submission, status execution.Status, errMsg string) error {
	if err := sub.Transition(status); err != nil {
		return err
	}
	if err := s.store.UpdateStatus(ctx, sub.ID, status, errMsg); err != nil {
		return fmt.Errorf("persist status %s: %w", status, err)
	}
	return nil
}
