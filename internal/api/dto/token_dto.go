package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// RequestTokenRequest payload.
type RequestTokenRequest struct {
	ServiceType domain.ServiceType         `json:"service_type"`
	DesiredSlot *time.Time                 `json:"desired_slot"`
	Disability  *domain.DisabilityCategory `json:"disability"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status    domain.TokenStatus `json:"status"`
	CounterID *int64             `json:"counter_id"`
}

// TokenResponse is the wire shape of a token.
type TokenResponse struct {
	ID          string                     `json:"id"`
	TokenNumber int                        `json:"token_number"`
	DisplayCode string                     `json:"display_code,omitempty"`
	CitizenID   string                     `json:"citizen_id"`
	ServiceType domain.ServiceType         `json:"service_type"`
	TimeSlot    time.Time                  `json:"time_slot"`
	SlotDate    string                     `json:"slot_date"`
	SlotIndex   int                        `json:"slot_index"`
	Status      domain.TokenStatus         `json:"status"`
	Priority    bool                       `json:"priority"`
	Disability  *domain.DisabilityCategory `json:"disability,omitempty"`
	CounterID   *int64                     `json:"counter_id,omitempty"`
	QRCode      string                     `json:"qr_code,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
	CalledAt    *time.Time                 `json:"called_at,omitempty"`
	ServedAt    *time.Time                 `json:"served_at,omitempty"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
}

// SlotGroupResponse is one slot's tokens in display order.
type SlotGroupResponse struct {
	SlotIndex int             `json:"slot_index"`
	Tokens    []TokenResponse `json:"tokens"`
}

// QueueStatsResponse summarizes a day for the dashboard.
type QueueStatsResponse struct {
	TotalTokens        int     `json:"total_tokens"`
	CurrentlyServing   int     `json:"currently_serving"`
	CompletedToday     int     `json:"completed_today"`
	AverageWaitMinutes float64 `json:"average_wait_minutes"`
}

// CounterRequest payload for create/update.
type CounterRequest struct {
	Name      string               `json:"name"`
	OfficerID *string              `json:"officer_id"`
	IsActive  *bool                `json:"is_active"`
	Services  []domain.ServiceType `json:"services"`
}

// CounterResponse is the wire shape of a counter.
type CounterResponse struct {
	ID        int64                `json:"id"`
	Name      string               `json:"name"`
	OfficerID *string              `json:"officer_id,omitempty"`
	IsActive  bool                 `json:"is_active"`
	Services  []domain.ServiceType `json:"services"`
}
