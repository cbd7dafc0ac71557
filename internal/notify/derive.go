package notify

import (
	"sort"

	"github.com/spec-kit/queue-service/internal/domain"
)

// EventType enumerates the notification kinds sent to citizens.
type EventType string

const (
	EventTokenCreated   EventType = "token_created"
	EventTokenCalled    EventType = "token_called"
	EventTokenCompleted EventType = "token_completed"
	EventUpNext         EventType = "up_next"
	EventReminder       EventType = "reminder"
)

// upNextWindow is how many waiting citizens are warned when a token is called.
const upNextWindow = 2

// Event is one notification owed to one recipient. RecipientContact is filled
// by the sender from the citizen's profile when empty.
type Event struct {
	TokenID          string         `json:"token_id"`
	CitizenID        string         `json:"citizen_id"`
	RecipientContact string         `json:"recipient_contact,omitempty"`
	Type             EventType      `json:"type"`
	Context          map[string]any `json:"context,omitempty"`
}

// DeriveEvents computes the notifications owed for a lifecycle change as a
// pure function of the transition. oldStatus is nil for token creation. The
// waiting slice holds the still-waiting tokens sharing the moved token's
// service type and slot date; ordering inside this function is authoritative,
// callers may pass it unsorted.
func DeriveEvents(oldStatus *domain.TokenStatus, newStatus domain.TokenStatus, token domain.Token, waiting []domain.Token) []Event {
	var out []Event

	if oldStatus == nil {
		out = append(out, Event{
			TokenID:   token.ID,
			CitizenID: token.CitizenID,
			Type:      EventTokenCreated,
			Context: map[string]any{
				"token_number": token.TokenNumber,
				"time_slot":    token.TimeSlot,
			},
		})
		return out
	}

	switch newStatus {
	case domain.TokenStatusServing:
		out = append(out, Event{
			TokenID:   token.ID,
			CitizenID: token.CitizenID,
			Type:      EventTokenCalled,
			Context: map[string]any{
				"counter_id": token.CounterID,
			},
		})
		for _, next := range upNext(waiting, token.ID) {
			out = append(out, Event{
				TokenID:   next.ID,
				CitizenID: next.CitizenID,
				Type:      EventUpNext,
				Context: map[string]any{
					"serving_token_number": token.TokenNumber,
				},
			})
		}
	case domain.TokenStatusCompleted:
		out = append(out, Event{
			TokenID:   token.ID,
			CitizenID: token.CitizenID,
			Type:      EventTokenCompleted,
		})
	}

	return out
}

// ReminderEvent builds the manual reminder notification. Valid at any status.
func ReminderEvent(token domain.Token) Event {
	return Event{
		TokenID:   token.ID,
		CitizenID: token.CitizenID,
		Type:      EventReminder,
		Context: map[string]any{
			"token_number": token.TokenNumber,
			"time_slot":    token.TimeSlot,
		},
	}
}

// upNext picks the earliest tokens by (slot timestamp, creation time),
// excluding the token that just moved to serving.
func upNext(waiting []domain.Token, excludeID string) []domain.Token {
	candidates := make([]domain.Token, 0, len(waiting))
	for _, t := range waiting {
		if t.ID == excludeID || t.Status != domain.TokenStatusWaiting {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].TimeSlot.Equal(candidates[j].TimeSlot) {
			return candidates[i].TimeSlot.Before(candidates[j].TimeSlot)
		}
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].Seq < candidates[j].Seq
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if len(candidates) > upNextWindow {
		candidates = candidates[:upNextWindow]
	}
	return candidates
}
