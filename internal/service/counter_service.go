package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/pkg/util"
)

// CounterService manages the staffed service points.
type CounterService struct {
	counters repository.CounterRepository
}

// NewCounterService constructs the service.
func NewCounterService(counters repository.CounterRepository) *CounterService {
	return &CounterService{counters: counters}
}

// CounterInput describes counter creation/update payloads.
type CounterInput struct {
	Name      string
	OfficerID *string
	IsActive  *bool
	Services  []domain.ServiceType
}

// ListActive returns the active counters in id order.
func (s *CounterService) ListActive(ctx context.Context) ([]domain.Counter, error) {
	return s.counters.ListActive(ctx)
}

// Create registers a new counter.
func (s *CounterService) Create(ctx context.Context, input CounterInput) (*domain.Counter, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, util.NewValidationError("counter name required", nil)
	}
	for _, svc := range input.Services {
		if !domain.ValidServiceType(svc) {
			return nil, util.NewValidationError("unknown service type", map[string]any{"service_type": svc})
		}
	}

	counter := &domain.Counter{
		Name:      name,
		OfficerID: input.OfficerID,
		IsActive:  true,
		Services:  input.Services,
	}
	if input.IsActive != nil {
		counter.IsActive = *input.IsActive
	}
	if err := s.counters.Create(ctx, counter); err != nil {
		return nil, err
	}
	return counter, nil
}

// Update applies partial changes to a counter.
func (s *CounterService) Update(ctx context.Context, id int64, input CounterInput) (*domain.Counter, error) {
	counter, err := s.counters.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("counter", map[string]any{"counter_id": id})
		}
		return nil, err
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		counter.Name = name
	}
	if input.OfficerID != nil {
		counter.OfficerID = input.OfficerID
	}
	if input.IsActive != nil {
		counter.IsActive = *input.IsActive
	}
	if input.Services != nil {
		for _, svc := range input.Services {
			if !domain.ValidServiceType(svc) {
				return nil, util.NewValidationError("unknown service type", map[string]any{"service_type": svc})
			}
		}
		counter.Services = input.Services
	}

	if err := s.counters.Update(ctx, counter); err != nil {
		return nil, err
	}
	return counter, nil
}
