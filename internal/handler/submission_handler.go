package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exec/internal/dto"
	"github.com/noah-isme/gema-exec/internal/grading"
	"github.com/noah-isme/gema-exec/internal/submission"
	"github.com/noah-isme/gema-exec/internal/tier"
	"github.com/noah-isme/gema-exec/internal/utils"
)

// SubmissionHandler exposes graded submission endpoints.
type SubmissionHandler struct {
	service   *submission.Service
	store     submission.Store
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service *submission.Service, store submission.Store, validator *validator.Validate, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:   service,
		store:     store,
		validator: validator,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("/:id", h.get)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	var payload dto.SubmissionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	sub := submission.New(payload.UserID, payload.ExerciseID, payload.Language, payload.Source, tier.Tier(payload.Tier))
	if err := h.store.Create(c.Context(), sub); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to create submission")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	tests := make([]grading.TestCase, 0, len(payload.Tests))
	for _, t := range payload.Tests {
		tests = append(tests, t.ToTestCase())
	}

	batch, err := h.service.Grade(c.Context(), sub, tests)
	if err != nil {
		var rle *submission.RateLimitedError
		if errors.As(err, &rle) {
			return utils.SendError(c, fiber.StatusTooManyRequests, rle.Decision.Reason)
		}
		requestLogger(h.logger, c).Error().Err(err).Str("submission_id", sub.ID).Msg("grading failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	evaluator := isEvaluator(c)
	views := make([]grading.TestResultView, 0, len(batch.Results))
	for _, r := range batch.Results {
		views = append(views, grading.NewTestResultView(r, evaluator))
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission graded", dto.SubmissionResponse{
		ID:             sub.ID,
		Status:         string(sub.Status),
		TestsPassed:    sub.TestsPassed,
		TestsTotal:     len(batch.Results),
		EarnedPoints:   sub.EarnedPoints,
		PossiblePoints: sub.PossiblePoints,
		AvgWallTimeMs:  sub.AvgWallTimeMs,
		MaxMemoryKB:    sub.MaxMemoryKB,
		Results:        views,
	})
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	sub, err := h.store.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, submission.ErrNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "submission not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load submission")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
	return utils.SendSuccess(c, "submission retrieved", sub)
}

// isEvaluator reports whether the caller may see hidden test case data.
// Authentication lives in front of the engine; the gateway forwards the role.
func isEvaluator(c *fiber.Ctx) bool {
	switch c.Get("X-User-Role") {
	case "teacher", "admin", "evaluator":
		return true
	}
	return false
}
