package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util"
)

// QueueHandler manages officer queue endpoints.
type QueueHandler struct {
	queue *service.QueueService
}

// NewQueueHandler constructs handler.
func NewQueueHandler(queue *service.QueueService) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// ListQueue GET /queue?date=&service=.
func (h *QueueHandler) ListQueue(c *fiber.Ctx) error {
	date, err := dateParam(c)
	if err != nil {
		return err
	}
	var svcFilter *domain.ServiceType
	if raw := c.Query("service"); raw != "" {
		svc := domain.ServiceType(raw)
		if !domain.ValidServiceType(svc) {
			return apperrors.NewValidationError("unknown service type", map[string]any{"service": raw})
		}
		svcFilter = &svc
	}

	groups, err := h.queue.ListQueue(c.UserContext(), date, svcFilter)
	if err != nil {
		return err
	}
	items := make([]dto.SlotGroupResponse, 0, len(groups))
	for _, g := range groups {
		tokens := make([]dto.TokenResponse, 0, len(g.Tokens))
		for _, t := range g.Tokens {
			tokens = append(tokens, tokenResponse(t.Token, t.DisplayCode))
		}
		items = append(items, dto.SlotGroupResponse{SlotIndex: g.SlotIndex, Tokens: tokens})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Stats GET /queue/stats?date=.
func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	date, err := dateParam(c)
	if err != nil {
		return err
	}
	stats, err := h.queue.Stats(c.UserContext(), date)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.QueueStatsResponse{
		TotalTokens:        stats.TotalTokens,
		CurrentlyServing:   stats.CurrentlyServing,
		CompletedToday:     stats.CompletedToday,
		AverageWaitMinutes: stats.AverageWaitMinutes,
	}})
}

// UpdateStatus PATCH /queue/tokens/:id/status.
func (h *QueueHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("officer required")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}

	actor := events.Actor{Role: principal.Role, UserID: principal.UserID}
	token, err := h.queue.SetStatus(c.UserContext(), actor, c.Params("id"), req.Status, req.CounterID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tokenResponse(*token, "")})
}

// Remind POST /queue/tokens/:id/remind.
func (h *QueueHandler) Remind(c *fiber.Ctx) error {
	if err := h.queue.Remind(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"reminded": true}})
}
