package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/feed"
	"github.com/spec-kit/queue-service/internal/notify"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/pkg/util"
)

// fakeTokenRepo implements repository.TokenRepository in memory with the
// same admission and compare-and-swap semantics as the SQL implementation.
type fakeTokenRepo struct {
	mu        sync.Mutex
	tokens    map[string]*domain.Token
	seq       int64
	clock     time.Time
	beforeCAS func(repo *fakeTokenRepo)
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{
		tokens: make(map[string]*domain.Token),
		clock:  time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC),
	}
}

func (r *fakeTokenRepo) CreateAdmitted(ctx context.Context, token *domain.Token, capacity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := 0
	for _, t := range r.tokens {
		if t.ServiceType == token.ServiceType && t.TimeSlot.Equal(token.TimeSlot) && t.Status != domain.TokenStatusCancelled {
			active++
		}
	}
	if active >= capacity {
		return repository.ErrSlotFull
	}

	r.seq++
	r.clock = r.clock.Add(time.Minute)
	token.ID = fmt.Sprintf("tok-%d", r.seq)
	token.Seq = r.seq
	token.CreatedAt = r.clock
	token.UpdatedAt = r.clock
	stored := *token
	r.tokens[token.ID] = &stored
	return nil
}

func (r *fakeTokenRepo) GetByID(ctx context.Context, id string) (*domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tokens[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeTokenRepo) UpdateStatusCAS(ctx context.Context, token *domain.Token, expected domain.TokenStatus) error {
	if r.beforeCAS != nil {
		hook := r.beforeCAS
		r.beforeCAS = nil
		hook(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tokens[token.ID]
	if !ok || stored.Status != expected {
		return repository.ErrStatusConflict
	}
	stored.Status = token.Status
	stored.CounterID = token.CounterID
	stored.CalledAt = token.CalledAt
	stored.ServedAt = token.ServedAt
	stored.CompletedAt = token.CompletedAt
	r.clock = r.clock.Add(time.Minute)
	stored.UpdatedAt = r.clock
	token.UpdatedAt = r.clock
	return nil
}

func (r *fakeTokenRepo) ListByDate(ctx context.Context, date string, service *domain.ServiceType) ([]domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Token
	for _, t := range r.tokens {
		if t.SlotDate != date {
			continue
		}
		if service != nil && t.ServiceType != *service {
			continue
		}
		result = append(result, *t)
	}
	sortTokens(result)
	return result, nil
}

func (r *fakeTokenRepo) ListWaiting(ctx context.Context, service domain.ServiceType, date string) ([]domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Token
	for _, t := range r.tokens {
		if t.Status == domain.TokenStatusWaiting && t.ServiceType == service && t.SlotDate == date {
			result = append(result, *t)
		}
	}
	sortTokens(result)
	return result, nil
}

func (r *fakeTokenRepo) ListByCitizen(ctx context.Context, citizenID, date string) ([]domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Token
	for _, t := range r.tokens {
		if t.CitizenID == citizenID && t.SlotDate == date {
			result = append(result, *t)
		}
	}
	sortTokens(result)
	return result, nil
}

func (r *fakeTokenRepo) CountActiveInSlot(ctx context.Context, service domain.ServiceType, slot time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, t := range r.tokens {
		if t.ServiceType == service && t.TimeSlot.Equal(slot) && t.Status != domain.TokenStatusCancelled {
			count++
		}
	}
	return count, nil
}

func sortTokens(tokens []domain.Token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		if !tokens[i].TimeSlot.Equal(tokens[j].TimeSlot) {
			return tokens[i].TimeSlot.Before(tokens[j].TimeSlot)
		}
		if !tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
		}
		return tokens[i].Seq < tokens[j].Seq
	})
}

type fakeCounterRepo struct {
	counters map[int64]*domain.Counter
}

func newFakeCounterRepo() *fakeCounterRepo {
	return &fakeCounterRepo{counters: map[int64]*domain.Counter{
		1: {ID: 1, Name: "Counter 1", IsActive: true},
		2: {ID: 2, Name: "Counter 2", IsActive: false},
	}}
}

func (r *fakeCounterRepo) Create(ctx context.Context, counter *domain.Counter) error {
	counter.ID = int64(len(r.counters) + 1)
	r.counters[counter.ID] = counter
	return nil
}

func (r *fakeCounterRepo) Update(ctx context.Context, counter *domain.Counter) error {
	if _, ok := r.counters[counter.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.counters[counter.ID] = counter
	return nil
}

func (r *fakeCounterRepo) GetByID(ctx context.Context, id int64) (*domain.Counter, error) {
	counter, ok := r.counters[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *counter
	return &copied, nil
}

func (r *fakeCounterRepo) ListActive(ctx context.Context) ([]domain.Counter, error) {
	var result []domain.Counter
	for _, c := range r.counters {
		if c.IsActive {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Enqueue(event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) byType(eventType notify.EventType) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var result []notify.Event
	for _, e := range n.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

type fixture struct {
	service  *QueueService
	tokens   *fakeTokenRepo
	counters *fakeCounterRepo
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens := newFakeTokenRepo()
	counters := newFakeCounterRepo()
	notifier := &recordingNotifier{}
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher()

	svc := NewQueueService(QueueDependencies{
		TokenRepo:    tokens,
		CounterRepo:  counters,
		Dispatcher:   dispatcher,
		Feed:         feed.New(nil, "queue:token-changes", logger),
		Notifier:     notifier,
		Logger:       logger,
		SlotCapacity: 3,
	})
	NewNotificationService(tokens, notifier, logger).RegisterHandlers(dispatcher)

	return &fixture{service: svc, tokens: tokens, counters: counters, notifier: notifier}
}

func slotAt(hour, minute int) *time.Time {
	ts := time.Date(2025, time.March, 10, hour, minute, 0, 0, time.UTC)
	return &ts
}

func counterID(id int64) *int64 { return &id }

func TestRequestTokenResolvesSlot(t *testing.T) {
	f := newFixture(t)

	desired := slotAt(10, 20)
	token, err := f.service.RequestToken(context.Background(), "citizen-1", TokenRequestInput{
		ServiceType: domain.ServiceGeneral,
		DesiredSlot: desired,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.TimeSlot.Hour() != 10 || token.TimeSlot.Minute() != 30 {
		t.Errorf("slot = %02d:%02d, want 10:30", token.TimeSlot.Hour(), token.TimeSlot.Minute())
	}
	if token.SlotIndex != 4 || token.TokenNumber != 4 {
		t.Errorf("slot index/number = %d/%d, want 4/4", token.SlotIndex, token.TokenNumber)
	}
	if token.Status != domain.TokenStatusWaiting {
		t.Errorf("status = %s, want waiting", token.Status)
	}
	if token.CounterID != nil {
		t.Error("counter must be null until serving")
	}
	if token.QRCode == "" {
		t.Error("qr code missing")
	}

	created := f.notifier.byType(notify.EventTokenCreated)
	if len(created) != 1 || created[0].TokenID != token.ID {
		t.Errorf("expected one token_created notification, got %+v", created)
	}
}

func TestRequestTokenPriorityFromDisability(t *testing.T) {
	f := newFixture(t)

	disability := domain.DisabilityMobility
	token, err := f.service.RequestToken(context.Background(), "citizen-1", TokenRequestInput{
		ServiceType: domain.ServiceLicense,
		DesiredSlot: slotAt(9, 0),
		Disability:  &disability,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !token.Priority {
		t.Error("disability must set the priority flag")
	}
}

func TestCapacityGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var second *domain.Token
	for i := 0; i < 3; i++ {
		token, err := f.service.RequestToken(ctx, fmt.Sprintf("citizen-%d", i), TokenRequestInput{
			ServiceType: domain.ServiceGeneral,
			DesiredSlot: slotAt(9, 0),
		})
		if err != nil {
			t.Fatalf("creation %d failed: %v", i, err)
		}
		if i == 1 {
			second = token
		}
	}

	_, err := f.service.RequestToken(ctx, "citizen-4", TokenRequestInput{
		ServiceType: domain.ServiceGeneral,
		DesiredSlot: slotAt(9, 0),
	})
	if !util.IsCode(err, "SLOT_FULL") {
		t.Fatalf("expected SLOT_FULL, got %v", err)
	}

	// Same slot, different service type still has room.
	if _, err := f.service.RequestToken(ctx, "citizen-4", TokenRequestInput{
		ServiceType: domain.ServiceLicense,
		DesiredSlot: slotAt(9, 0),
	}); err != nil {
		t.Fatalf("other service type should admit: %v", err)
	}

	// Cancelling frees a place.
	if _, err := f.service.CancelOwnToken(ctx, second.CitizenID, second.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := f.service.RequestToken(ctx, "citizen-4", TokenRequestInput{
		ServiceType: domain.ServiceGeneral,
		DesiredSlot: slotAt(9, 0),
	}); err != nil {
		t.Fatalf("expected admission after cancellation: %v", err)
	}
}

func TestServingRequiresCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.service.RequestToken(ctx, "citizen-1", TokenRequestInput{DesiredSlot: slotAt(9, 0)})
	if err != nil {
		t.Fatal(err)
	}

	actor := events.Actor{Role: domain.RoleOfficer, UserID: "officer-1"}
	if _, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusServing, nil); !util.IsCode(err, "MISSING_COUNTER") {
		t.Fatalf("expected MISSING_COUNTER, got %v", err)
	}
	if _, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusServing, counterID(2)); !util.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected rejection for inactive counter, got %v", err)
	}
	if _, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusServing, counterID(99)); !util.IsCode(err, "NOT_FOUND") {
		t.Fatalf("expected NOT_FOUND for unknown counter, got %v", err)
	}

	stored, err := f.tokens.GetByID(ctx, token.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.TokenStatusWaiting {
		t.Errorf("rejected transitions must not change the stored status, got %s", stored.Status)
	}
}

func TestServingStampsTimestampsAndCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := events.Actor{Role: domain.RoleOfficer, UserID: "officer-1"}

	token, err := f.service.RequestToken(ctx, "citizen-1", TokenRequestInput{DesiredSlot: slotAt(9, 0)})
	if err != nil {
		t.Fatal(err)
	}

	serving, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusServing, counterID(1))
	if err != nil {
		t.Fatalf("serving transition failed: %v", err)
	}
	if serving.CalledAt == nil || serving.ServedAt == nil {
		t.Error("serving must stamp called_at and served_at")
	}
	if serving.CounterID == nil || *serving.CounterID != 1 {
		t.Errorf("counter id = %v, want 1", serving.CounterID)
	}

	completed, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusCompleted, nil)
	if err != nil {
		t.Fatalf("completed transition failed: %v", err)
	}
	if completed.CompletedAt == nil {
		t.Error("completed must stamp completed_at")
	}
}

func TestRequeueClearsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := events.Actor{Role: domain.RoleOfficer, UserID: "officer-1"}

	token, err := f.service.RequestToken(ctx, "citizen-1", TokenRequestInput{DesiredSlot: slotAt(9, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusServing, counterID(1)); err != nil {
		t.Fatal(err)
	}

	requeued, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusWaiting, nil)
	if err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if requeued.CounterID != nil {
		t.Error("requeue must free the counter")
	}
	if requeued.Status != domain.TokenStatusWaiting {
		t.Errorf("status = %s, want waiting", requeued.Status)
	}
}

func TestInvalidTransitionLeavesStoredUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := events.Actor{Role: domain.RoleOfficer, UserID: "officer-1"}

	token, err := f.service.RequestToken(ctx, "citizen-1", TokenRequestInput{DesiredSlot: slotAt(9, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusServing, counterID(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusCompleted, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusServing, counterID(1)); !util.IsCode(err, "INVALID_TRANSITION") {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}

	stored, err := f.tokens.GetByID(ctx, token.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.TokenStatusCompleted {
		t.Errorf("stored status = %s, want completed", stored.Status)
	}
}

func TestConcurrentStatusChangeLosesCleanly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := events.Actor{Role: domain.RoleOfficer, UserID: "officer-1"}

	token, err := f.service.RequestToken(ctx, "citizen-1", TokenRequestInput{DesiredSlot: slotAt(9, 0)})
	if err != nil {
		t.Fatal(err)
	}

	// Another officer cancels between the read and the write.
	f.tokens.beforeCAS = func(repo *fakeTokenRepo) {
		repo.mu.Lock()
		repo.tokens[token.ID].Status = domain.TokenStatusCancelled
		repo.mu.Unlock()
	}

	if _, err := f.service.SetStatus(ctx, actor, token.ID, domain.TokenStatusServing, counterID(1)); !util.IsCode(err, "INVALID_TRANSITION") {
		t.Fatalf("expected INVALID_TRANSITION on lost race, got %v", err)
	}
}

func TestUpNextNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := events.Actor{Role: domain.RoleOfficer, UserID: "officer-1"}

	var ids []string
	for i := 0; i < 4; i++ {
		token, err := f.service.RequestToken(ctx, fmt.Sprintf("citizen-%d", i), TokenRequestInput{
			DesiredSlot: slotAt(9+i/3, 0),
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, token.ID)
	}

	if _, err := f.service.SetStatus(ctx, actor, ids[0], domain.TokenStatusServing, counterID(1)); err != nil {
		t.Fatal(err)
	}

	called := f.notifier.byType(notify.EventTokenCalled)
	if len(called) != 1 || called[0].TokenID != ids[0] {
		t.Fatalf("expected token_called for %s, got %+v", ids[0], called)
	}

	upNext := f.notifier.byType(notify.EventUpNext)
	if len(upNext) != 2 {
		t.Fatalf("expected exactly 2 up_next events, got %d", len(upNext))
	}
	if upNext[0].TokenID != ids[1] || upNext[1].TokenID != ids[2] {
		t.Errorf("up_next went to %s, %s; want %s, %s", upNext[0].TokenID, upNext[1].TokenID, ids[1], ids[2])
	}
}

func TestDisplayCodesStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.service.RequestToken(ctx, fmt.Sprintf("citizen-%d", i), TokenRequestInput{
			DesiredSlot: slotAt(11, 0),
		}); err != nil {
			t.Fatal(err)
		}
	}

	for read := 0; read < 2; read++ {
		groups, err := f.service.ListQueue(ctx, "2025-03-10", nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(groups) != 1 || groups[0].SlotIndex != 5 {
			t.Fatalf("expected a single group for slot 5, got %+v", groups)
		}
		want := []string{"5A", "5B", "5C"}
		for i, token := range groups[0].Tokens {
			if token.DisplayCode != want[i] {
				t.Errorf("read %d: code[%d] = %s, want %s", read, i, token.DisplayCode, want[i])
			}
		}
	}
}

func TestSlotScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var tokens []*domain.Token
	for i := 0; i < 3; i++ {
		token, err := f.service.RequestToken(ctx, fmt.Sprintf("citizen-%d", i), TokenRequestInput{
			ServiceType: domain.ServiceGeneral,
			DesiredSlot: slotAt(9, 0),
		})
		if err != nil {
			t.Fatalf("creation %d failed: %v", i, err)
		}
		tokens = append(tokens, token)
	}

	groups, err := f.service.ListQueue(ctx, "2025-03-10", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1A", "1B", "1C"}
	for i, token := range groups[0].Tokens {
		if token.DisplayCode != want[i] {
			t.Errorf("code[%d] = %s, want %s", i, token.DisplayCode, want[i])
		}
	}

	if _, err := f.service.RequestToken(ctx, "citizen-4", TokenRequestInput{
		ServiceType: domain.ServiceGeneral,
		DesiredSlot: slotAt(9, 0),
	}); !util.IsCode(err, "SLOT_FULL") {
		t.Fatalf("expected SLOT_FULL for 4th creation, got %v", err)
	}

	if _, err := f.service.CancelOwnToken(ctx, tokens[1].CitizenID, tokens[1].ID); err != nil {
		t.Fatal(err)
	}

	fourth, err := f.service.RequestToken(ctx, "citizen-4", TokenRequestInput{
		ServiceType: domain.ServiceGeneral,
		DesiredSlot: slotAt(9, 0),
	})
	if err != nil {
		t.Fatalf("expected admission after cancel: %v", err)
	}

	// The new token's letter follows its creation-time rank within the slot,
	// not the freed letter.
	groups, err = f.service.ListQueue(ctx, "2025-03-10", nil)
	if err != nil {
		t.Fatal(err)
	}
	var fourthCode string
	for _, token := range groups[0].Tokens {
		if token.Token.ID == fourth.ID {
			fourthCode = token.DisplayCode
		}
	}
	if fourthCode != "1D" {
		t.Errorf("re-derived code = %s, want 1D", fourthCode)
	}
}

func TestCancelOwnTokenEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.service.RequestToken(ctx, "citizen-1", TokenRequestInput{DesiredSlot: slotAt(9, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.CancelOwnToken(ctx, "citizen-2", token.ID); !util.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestRemind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.service.RequestToken(ctx, "citizen-1", TokenRequestInput{DesiredSlot: slotAt(9, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.service.Remind(ctx, token.ID); err != nil {
		t.Fatalf("remind failed: %v", err)
	}
	reminders := f.notifier.byType(notify.EventReminder)
	if len(reminders) != 1 || reminders[0].TokenID != token.ID {
		t.Errorf("expected one reminder for %s, got %+v", token.ID, reminders)
	}

	if err := f.service.Remind(ctx, "missing"); !util.IsCode(err, "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND for unknown token, got %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := events.Actor{Role: domain.RoleOfficer, UserID: "officer-1"}

	var ids []string
	for i := 0; i < 3; i++ {
		token, err := f.service.RequestToken(ctx, fmt.Sprintf("citizen-%d", i), TokenRequestInput{
			DesiredSlot: slotAt(9, 30),
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, token.ID)
	}

	if _, err := f.service.SetStatus(ctx, actor, ids[0], domain.TokenStatusServing, counterID(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.SetStatus(ctx, actor, ids[0], domain.TokenStatusCompleted, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.SetStatus(ctx, actor, ids[1], domain.TokenStatusServing, counterID(1)); err != nil {
		t.Fatal(err)
	}

	stats, err := f.service.Stats(ctx, "2025-03-10")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalTokens != 3 {
		t.Errorf("total = %d, want 3", stats.TotalTokens)
	}
	if stats.CurrentlyServing != 1 {
		t.Errorf("serving = %d, want 1", stats.CurrentlyServing)
	}
	if stats.CompletedToday != 1 {
		t.Errorf("completed = %d, want 1", stats.CompletedToday)
	}
	if stats.AverageWaitMinutes <= 0 {
		t.Errorf("average wait = %f, want > 0", stats.AverageWaitMinutes)
	}
}
