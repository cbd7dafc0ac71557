package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/dto"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/service"
	apperrors "github.com/spec-kit/queue-service/pkg/util"
)

// CountersHandler manages counter administration endpoints.
type CountersHandler struct {
	counters *service.CounterService
}

// NewCountersHandler constructs handler.
func NewCountersHandler(counters *service.CounterService) *CountersHandler {
	return &CountersHandler{counters: counters}
}

// ListCounters GET /counters.
func (h *CountersHandler) ListCounters(c *fiber.Ctx) error {
	counters, err := h.counters.ListActive(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.CounterResponse, 0, len(counters))
	for _, counter := range counters {
		items = append(items, counterResponse(counter))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateCounter POST /counters.
func (h *CountersHandler) CreateCounter(c *fiber.Ctx) error {
	var req dto.CounterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	counter, err := h.counters.Create(c.UserContext(), service.CounterInput{
		Name:      req.Name,
		OfficerID: req.OfficerID,
		IsActive:  req.IsActive,
		Services:  req.Services,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": counterResponse(*counter)})
}

// UpdateCounter PATCH /counters/:id.
func (h *CountersHandler) UpdateCounter(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("counter id must be numeric", nil)
	}
	var req dto.CounterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	counter, err := h.counters.Update(c.UserContext(), id, service.CounterInput{
		Name:      req.Name,
		OfficerID: req.OfficerID,
		IsActive:  req.IsActive,
		Services:  req.Services,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": counterResponse(*counter)})
}

func counterResponse(counter domain.Counter) dto.CounterResponse {
	services := counter.Services
	if services == nil {
		services = []domain.ServiceType{}
	}
	return dto.CounterResponse{
		ID:        counter.ID,
		Name:      counter.Name,
		OfficerID: counter.OfficerID,
		IsActive:  counter.IsActive,
		Services:  services,
	}
}
