package events

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTokenCreated       EventType = "token_created"
	EventTokenStatusChanged EventType = "token_status_changed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role   domain.ProfileRole `json:"role"`
	UserID string             `json:"user_id"`
}

// Event represents a domain event emitted by the queue service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TokenID   string      `json:"token_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TokenCreatedPayload payload.
type TokenCreatedPayload struct {
	CitizenID   string             `json:"citizen_id"`
	ServiceType domain.ServiceType `json:"service_type"`
	TimeSlot    time.Time          `json:"time_slot"`
	SlotIndex   int                `json:"slot_index"`
	Priority    bool               `json:"priority"`
}

// TokenStatusChangedPayload payload.
type TokenStatusChangedPayload struct {
	OldStatus domain.TokenStatus `json:"old_status"`
	NewStatus domain.TokenStatus `json:"new_status"`
	CounterID *int64             `json:"counter_id,omitempty"`
}
