package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util"
)

// TokensHandler manages citizen token endpoints.
type TokensHandler struct {
	queue *service.QueueService
}

// NewTokensHandler constructs handler.
func NewTokensHandler(queue *service.QueueService) *TokensHandler {
	return &TokensHandler{queue: queue}
}

// RequestToken POST /tokens.
func (h *TokensHandler) RequestToken(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("citizen required")
	}
	var req dto.RequestTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	token, err := h.queue.RequestToken(c.UserContext(), principal.UserID, service.TokenRequestInput{
		ServiceType: req.ServiceType,
		DesiredSlot: req.DesiredSlot,
		Disability:  req.Disability,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": tokenResponse(*token, "")})
}

// ListTokens GET /tokens?date=YYYY-MM-DD.
func (h *TokensHandler) ListTokens(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("citizen required")
	}
	date, err := dateParam(c)
	if err != nil {
		return err
	}

	tokens, err := h.queue.ListCitizenTokens(c.UserContext(), principal.UserID, date)
	if err != nil {
		return err
	}
	items := make([]dto.TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		items = append(items, tokenResponse(t.Token, t.DisplayCode))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetToken GET /tokens/:id.
func (h *TokensHandler) GetToken(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("citizen required")
	}
	token, err := h.queue.GetToken(c.UserContext(), c.Params("id"), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tokenResponse(*token, "")})
}

// CancelToken POST /tokens/:id/cancel.
func (h *TokensHandler) CancelToken(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("citizen required")
	}
	token, err := h.queue.CancelOwnToken(c.UserContext(), principal.UserID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tokenResponse(*token, "")})
}

func dateParam(c *fiber.Ctx) (string, error) {
	date := c.Query("date")
	if date == "" {
		return time.Now().Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", apperrors.NewValidationError("date must be YYYY-MM-DD", map[string]any{"date": date})
	}
	return date, nil
}

func tokenResponse(t domain.Token, code string) dto.TokenResponse {
	return dto.TokenResponse{
		ID:          t.ID,
		TokenNumber: t.TokenNumber,
		DisplayCode: code,
		CitizenID:   t.CitizenID,
		ServiceType: t.ServiceType,
		TimeSlot:    t.TimeSlot,
		SlotDate:    t.SlotDate,
		SlotIndex:   t.SlotIndex,
		Status:      t.Status,
		Priority:    t.Priority,
		Disability:  t.Disability,
		CounterID:   t.CounterID,
		QRCode:      t.QRCode,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CalledAt:    t.CalledAt,
		ServedAt:    t.ServedAt,
		CompletedAt: t.CompletedAt,
	}
}
