package notify

import (
	"testing"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

func makeToken(id string, seq int64, created time.Time, slot time.Time) domain.Token {
	return domain.Token{
		ID:          id,
		Seq:         seq,
		TokenNumber: 1,
		CitizenID:   "citizen-" + id,
		ServiceType: domain.ServiceGeneral,
		TimeSlot:    slot,
		SlotDate:    "2025-03-10",
		Status:      domain.TokenStatusWaiting,
		CreatedAt:   created,
	}
}

func TestDeriveEventsOnCreation(t *testing.T) {
	token := makeToken("t1", 1, time.Now(), time.Now())
	got := DeriveEvents(nil, domain.TokenStatusWaiting, token, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != EventTokenCreated {
		t.Errorf("event type = %s, want %s", got[0].Type, EventTokenCreated)
	}
	if got[0].CitizenID != token.CitizenID {
		t.Errorf("recipient = %s, want %s", got[0].CitizenID, token.CitizenID)
	}
}

func TestDeriveEventsOnServing(t *testing.T) {
	base := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	serving := makeToken("t1", 1, base, base)
	serving.Status = domain.TokenStatusServing

	waiting := []domain.Token{
		makeToken("t4", 4, base.Add(3*time.Minute), base.Add(30*time.Minute)),
		makeToken("t2", 2, base.Add(time.Minute), base),
		makeToken("t3", 3, base.Add(2*time.Minute), base),
	}

	old := domain.TokenStatusWaiting
	got := DeriveEvents(&old, domain.TokenStatusServing, serving, waiting)
	if len(got) != 3 {
		t.Fatalf("expected token_called plus 2 up_next, got %d events", len(got))
	}
	if got[0].Type != EventTokenCalled || got[0].TokenID != "t1" {
		t.Errorf("first event = %s/%s, want token_called/t1", got[0].Type, got[0].TokenID)
	}
	// Up next must be the two earliest by (slot, creation time).
	if got[1].Type != EventUpNext || got[1].TokenID != "t2" {
		t.Errorf("second event = %s/%s, want up_next/t2", got[1].Type, got[1].TokenID)
	}
	if got[2].Type != EventUpNext || got[2].TokenID != "t3" {
		t.Errorf("third event = %s/%s, want up_next/t3", got[2].Type, got[2].TokenID)
	}
}

func TestDeriveEventsUpNextFewerThanTwo(t *testing.T) {
	base := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	serving := makeToken("t1", 1, base, base)
	old := domain.TokenStatusWaiting

	one := []domain.Token{makeToken("t2", 2, base.Add(time.Minute), base)}
	if got := DeriveEvents(&old, domain.TokenStatusServing, serving, one); len(got) != 2 {
		t.Errorf("with one waiting token expected 2 events, got %d", len(got))
	}
	if got := DeriveEvents(&old, domain.TokenStatusServing, serving, nil); len(got) != 1 {
		t.Errorf("with no waiting tokens expected 1 event, got %d", len(got))
	}
}

func TestDeriveEventsExcludesServedTokenFromUpNext(t *testing.T) {
	base := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	serving := makeToken("t1", 1, base, base)
	old := domain.TokenStatusWaiting

	// The moved token itself may still appear in a stale waiting snapshot.
	waiting := []domain.Token{
		makeToken("t1", 1, base, base),
		makeToken("t2", 2, base.Add(time.Minute), base),
	}
	got := DeriveEvents(&old, domain.TokenStatusServing, serving, waiting)
	for _, e := range got {
		if e.Type == EventUpNext && e.TokenID == "t1" {
			t.Error("served token must not receive up_next")
		}
	}
}

func TestDeriveEventsOnCompleted(t *testing.T) {
	token := makeToken("t1", 1, time.Now(), time.Now())
	old := domain.TokenStatusServing
	got := DeriveEvents(&old, domain.TokenStatusCompleted, token, nil)
	if len(got) != 1 || got[0].Type != EventTokenCompleted {
		t.Fatalf("expected a single token_completed event, got %+v", got)
	}
}

func TestDeriveEventsSilentTransitions(t *testing.T) {
	token := makeToken("t1", 1, time.Now(), time.Now())
	for _, tc := range []struct {
		old domain.TokenStatus
		new domain.TokenStatus
	}{
		{domain.TokenStatusWaiting, domain.TokenStatusCancelled},
		{domain.TokenStatusServing, domain.TokenStatusNoShow},
		{domain.TokenStatusServing, domain.TokenStatusWaiting},
	} {
		old := tc.old
		if got := DeriveEvents(&old, tc.new, token, nil); len(got) != 0 {
			t.Errorf("%s -> %s should derive no events, got %d", tc.old, tc.new, len(got))
		}
	}
}

func TestReminderEvent(t *testing.T) {
	token := makeToken("t1", 1, time.Now(), time.Now())
	token.Status = domain.TokenStatusCompleted

	got := ReminderEvent(token)
	if got.Type != EventReminder || got.TokenID != "t1" {
		t.Errorf("reminder event = %+v", got)
	}
}
