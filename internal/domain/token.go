package domain

import "time"

// TokenStatus enumerates lifecycle states for queue tokens.
type TokenStatus string

const (
	TokenStatusWaiting   TokenStatus = "waiting"
	TokenStatusServing   TokenStatus = "serving"
	TokenStatusCompleted TokenStatus = "completed"
	TokenStatusNoShow    TokenStatus = "no-show"
	TokenStatusCancelled TokenStatus = "cancelled"
)

// ServiceType enumerates the services the office handles.
type ServiceType string

const (
	ServiceGeneral      ServiceType = "general"
	ServiceLicense      ServiceType = "license"
	ServiceRegistration ServiceType = "registration"
)

// ValidServiceType reports whether s is a known service type.
func ValidServiceType(s ServiceType) bool {
	switch s {
	case ServiceGeneral, ServiceLicense, ServiceRegistration:
		return true
	}
	return false
}

// DisabilityCategory marks tokens that need assistance at the counter.
type DisabilityCategory string

const (
	DisabilityVision   DisabilityCategory = "vision"
	DisabilityHearing  DisabilityCategory = "hearing"
	DisabilityMobility DisabilityCategory = "mobility"
)

// ValidDisability reports whether d is a known category.
func ValidDisability(d DisabilityCategory) bool {
	switch d {
	case DisabilityVision, DisabilityHearing, DisabilityMobility:
		return true
	}
	return false
}

// Token is one service request occupying one operating slot.
// A token is never deleted; cancellation and no-show are terminal statuses.
type Token struct {
	ID          string
	Seq         int64
	TokenNumber int
	CitizenID   string
	ServiceType ServiceType
	TimeSlot    time.Time
	SlotDate    string
	SlotIndex   int
	Status      TokenStatus
	Priority    bool
	Disability  *DisabilityCategory
	CounterID   *int64
	QRCode      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CalledAt    *time.Time
	ServedAt    *time.Time
	CompletedAt *time.Time
}
