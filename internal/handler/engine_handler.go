package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exec/internal/dto"
	"github.com/noah-isme/gema-exec/internal/engine"
	"github.com/noah-isme/gema-exec/internal/execution"
	"github.com/noah-isme/gema-exec/internal/tier"
	"github.com/noah-isme/gema-exec/internal/utils"
)

// EngineHandler exposes ad-hoc execution endpoints.
type EngineHandler struct {
	provider  engine.Provider
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEngineHandler constructs the handler.
func NewEngineHandler(provider engine.Provider, validator *validator.Validate, logger zerolog.Logger) *EngineHandler {
	return &EngineHandler{
		provider:  provider,
		validator: validator,
		logger:    logger.With().Str("component", "engine_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *EngineHandler) Register(router fiber.Router) {
	router.Post("/execute", h.execute)
	router.Post("/execute/async", h.executeAsync)
	router.Get("/executions/:id", h.result)
	router.Get("/languages", h.languages)
	router.Get("/queue", h.queue)
	router.Get("/limits/:tier", h.limits)
	router.Get("/usage/:user_id", h.usage)
}

func (h *EngineHandler) execute(c *fiber.Ctx) error {
	payload, err := h.parseExecute(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	decision, err := h.provider.CheckRateLimit(c.Context(), payload.UserID, tier.Tier(payload.Tier))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("rate limit check failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
	if !decision.Allowed {
		return utils.SendError(c, fiber.StatusTooManyRequests, decision.Reason)
	}

	out := h.provider.Execute(c.Context(), toExecutionRequest(payload))
	if out.Status != execution.StatusInternalError {
		if err := h.provider.TrackExecution(c.Context(), payload.UserID); err != nil {
			requestLogger(h.logger, c).Error().Err(err).Str("user_id", payload.UserID).Msg("failed to track execution")
		}
	}

	return utils.SendSuccess(c, "execution finished", dto.NewExecuteResponse(out))
}

func (h *EngineHandler) executeAsync(c *fiber.Ctx) error {
	payload, err := h.parseExecute(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	decision, err := h.provider.CheckRateLimit(c.Context(), payload.UserID, tier.Tier(payload.Tier))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("rate limit check failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
	if !decision.Allowed {
		return utils.SendError(c, fiber.StatusTooManyRequests, decision.Reason)
	}

	// Usage is recorded by the provider once the outcome is known.
	ticket := h.provider.ExecuteAsync(c.Context(), payload.UserID, toExecutionRequest(payload))

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "execution accepted", dto.TicketResponse{
		ID:     ticket.ID,
		Status: string(ticket.Status),
	})
}

func (h *EngineHandler) result(c *fiber.Ctx) error {
	id := c.Params("id")
	out := h.provider.Result(id)
	if out == nil {
		return utils.SendError(c, fiber.StatusNotFound, "execution result not available")
	}
	return utils.SendSuccess(c, "execution retrieved", dto.NewExecuteResponse(*out))
}

func (h *EngineHandler) languages(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "languages listed", dto.LanguagesResponse{
		Languages: h.provider.SupportedLanguages(),
	})
}

func (h *EngineHandler) queue(c *fiber.Ctx) error {
	status := h.provider.QueueStatus()
	return utils.SendSuccess(c, "queue status", dto.QueueResponse{
		InFlight:    status.InFlight,
		Concurrency: status.Concurrency,
	})
}

func (h *EngineHandler) limits(c *fiber.Ctx) error {
	profile := h.provider.LimitsForTier(tier.Tier(c.Params("tier")))
	return utils.SendSuccess(c, "tier limits", profile)
}

// usage reports whether the user's next execution would be admitted. It is a
// read-only look at the sliding windows and consumes no quota.
func (h *EngineHandler) usage(c *fiber.Ctx) error {
	userTier := tier.Tier(c.Query("tier", string(tier.Free)))

	decision, err := h.provider.CheckRateLimit(c.Context(), c.Params("user_id"), userTier)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("rate limit check failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "usage retrieved", dto.RateLimitResponse{
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		ResetAt:   decision.ResetAt,
		Reason:    decision.Reason,
	})
}

func (h *EngineHandler) parseExecute(c *fiber.Ctx) (dto.ExecuteRequest, error) {
	var payload dto.ExecuteRequest
	if err := c.BodyParser(&payload); err != nil {
		return dto.ExecuteRequest{}, err
	}
	if err := h.validator.Struct(payload); err != nil {
		return dto.ExecuteRequest{}, err
	}
	return payload, nil
}

func toExecutionRequest(payload dto.ExecuteRequest) execution.Request {
	return execution.Request{
		Source:    payload.Source,
		Language:  payload.Language,
		Tier:      tier.Tier(payload.Tier),
		Stdin:     payload.Stdin,
		Args:      payload.Args,
		CPULimit:  time.Duration(payload.CPULimitMs) * time.Millisecond,
		WallLimit: time.Duration(payload.WallLimitMs) * time.Millisecond,
		MemoryMB:  payload.MemoryMB,
	}
}
