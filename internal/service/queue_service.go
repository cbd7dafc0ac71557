package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/feed"
	"github.com/spec-kit/queue-service/internal/notify"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/pkg/util"
)

// Notifier accepts derived notification events for asynchronous delivery.
type Notifier interface {
	Enqueue(event notify.Event)
}

// QueueService owns token admission, the lifecycle state machine and queue
// reads. Every mutation publishes a domain event and a change-feed record.
type QueueService struct {
	tokens     repository.TokenRepository
	counters   repository.CounterRepository
	dispatcher events.Dispatcher
	changes    *feed.Feed
	notifier   Notifier
	metrics    *observability.Metrics
	logger     *zap.Logger
	capacity   int
	now        func() time.Time
}

// QueueDependencies bundles collaborators for the queue service.
type QueueDependencies struct {
	TokenRepo    repository.TokenRepository
	CounterRepo  repository.CounterRepository
	Dispatcher   events.Dispatcher
	Feed         *feed.Feed
	Notifier     Notifier
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	SlotCapacity int
}

// TokenRequestInput describes a citizen token request.
type TokenRequestInput struct {
	ServiceType domain.ServiceType
	DesiredSlot *time.Time
	Disability  *domain.DisabilityCategory
}

// QueueStats summarizes a day's queue for the dashboard.
type QueueStats struct {
	TotalTokens        int     `json:"total_tokens"`
	CurrentlyServing   int     `json:"currently_serving"`
	CompletedToday     int     `json:"completed_today"`
	AverageWaitMinutes float64 `json:"average_wait_minutes"`
}

// SlotGroup is one slot's tokens in display order.
type SlotGroup struct {
	SlotIndex int
	Tokens    []TokenWithCode
}

// TokenWithCode pairs a token with its derived call code.
type TokenWithCode struct {
	Token       domain.Token
	DisplayCode string
}

// NewQueueService constructs the service.
func NewQueueService(deps QueueDependencies) *QueueService {
	capacity := deps.SlotCapacity
	if capacity <= 0 {
		capacity = 3
	}
	return &QueueService{
		tokens:     deps.TokenRepo,
		counters:   deps.CounterRepo,
		dispatcher: deps.Dispatcher,
		changes:    deps.Feed,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		capacity:   capacity,
		now:        time.Now,
	}
}

// RequestToken allocates the citizen into the nearest valid slot, enforces
// slot capacity and inserts the token.
func (s *QueueService) RequestToken(ctx context.Context, citizenID string, input TokenRequestInput) (*domain.Token, error) {
	if citizenID == "" {
		return nil, util.NewValidationError("citizen id required", nil)
	}
	if input.ServiceType == "" {
		input.ServiceType = domain.ServiceGeneral
	}
	if !domain.ValidServiceType(input.ServiceType) {
		return nil, util.NewValidationError("unknown service type", map[string]any{"service_type": input.ServiceType})
	}
	if input.Disability != nil && !domain.ValidDisability(*input.Disability) {
		return nil, util.NewValidationError("unknown disability category", map[string]any{"disability": *input.Disability})
	}

	desired := s.now()
	if input.DesiredSlot != nil {
		desired = *input.DesiredSlot
	}
	slot := domain.ResolveSlot(desired)
	slotIndex := domain.SlotIndex(slot)

	token := &domain.Token{
		TokenNumber: slotIndex,
		CitizenID:   citizenID,
		ServiceType: input.ServiceType,
		TimeSlot:    slot,
		SlotDate:    domain.SlotDate(slot),
		SlotIndex:   slotIndex,
		Status:      domain.TokenStatusWaiting,
		Priority:    input.Disability != nil,
		Disability:  input.Disability,
	}
	token.QRCode = s.buildQRCode(token)

	if err := s.tokens.CreateAdmitted(ctx, token, s.capacity); err != nil {
		if errors.Is(err, repository.ErrSlotFull) {
			s.metrics.RecordAdmission(string(token.ServiceType), "rejected")
			return nil, util.NewSlotFull(map[string]any{
				"service_type": token.ServiceType,
				"time_slot":    token.TimeSlot,
			})
		}
		return nil, err
	}
	s.metrics.RecordAdmission(string(token.ServiceType), "admitted")

	s.publishEvent(ctx, events.Event{
		Type:    events.EventTokenCreated,
		TokenID: token.ID,
		Actor:   events.Actor{Role: domain.RoleCitizen, UserID: citizenID},
		Payload: events.TokenCreatedPayload{
			CitizenID:   token.CitizenID,
			ServiceType: token.ServiceType,
			TimeSlot:    token.TimeSlot,
			SlotIndex:   token.SlotIndex,
			Priority:    token.Priority,
		},
	})
	s.publishChange(ctx, token.ID, feed.ChangeCreated)
	return token, nil
}

// SetStatus moves a token through the lifecycle state machine. Transitions on
// a single token are serialized by a compare-and-swap on the current status,
// so two officers acting at once cannot both win.
func (s *QueueService) SetStatus(ctx context.Context, actor events.Actor, tokenID string, newStatus domain.TokenStatus, counterID *int64) (*domain.Token, error) {
	if !domain.ValidStatus(newStatus) {
		return nil, util.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}

	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("token", map[string]any{"token_id": tokenID})
		}
		return nil, err
	}

	oldStatus := token.Status
	if !domain.CanTransition(oldStatus, newStatus) {
		return nil, util.NewInvalidTransition(string(oldStatus), string(newStatus))
	}

	now := s.now()
	switch newStatus {
	case domain.TokenStatusServing:
		if counterID == nil {
			return nil, util.NewMissingCounter()
		}
		counter, err := s.counters.GetByID(ctx, *counterID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, util.NewNotFound("counter", map[string]any{"counter_id": *counterID})
			}
			return nil, err
		}
		if !counter.IsActive {
			return nil, util.NewValidationError("counter is not active", map[string]any{"counter_id": counter.ID})
		}
		if !counter.Serves(token.ServiceType) {
			return nil, util.NewValidationError("counter does not serve this service type", map[string]any{
				"counter_id":   counter.ID,
				"service_type": token.ServiceType,
			})
		}
		token.CounterID = counterID
		token.CalledAt = &now
		token.ServedAt = &now
	case domain.TokenStatusCompleted:
		token.CompletedAt = &now
	case domain.TokenStatusWaiting:
		// Officer retry: back into the queue, counter freed.
		token.CounterID = nil
	}
	token.Status = newStatus

	if err := s.tokens.UpdateStatusCAS(ctx, token, oldStatus); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			current, readErr := s.tokens.GetByID(ctx, tokenID)
			if readErr == nil {
				return nil, util.NewInvalidTransition(string(current.Status), string(newStatus))
			}
			return nil, util.NewInvalidTransition(string(oldStatus), string(newStatus))
		}
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventTokenStatusChanged,
		TokenID: token.ID,
		Actor:   actor,
		Payload: events.TokenStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
			CounterID: token.CounterID,
		},
	})
	s.publishChange(ctx, token.ID, feed.ChangeStatusUpdated)
	return token, nil
}

// CancelOwnToken lets a citizen cancel their waiting token.
func (s *QueueService) CancelOwnToken(ctx context.Context, citizenID, tokenID string) (*domain.Token, error) {
	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("token", map[string]any{"token_id": tokenID})
		}
		return nil, err
	}
	if token.CitizenID != citizenID {
		return nil, util.NewForbidden("token belongs to another citizen")
	}
	actor := events.Actor{Role: domain.RoleCitizen, UserID: citizenID}
	return s.SetStatus(ctx, actor, tokenID, domain.TokenStatusCancelled, nil)
}

// Remind sends a manual reminder to the token's citizen, any status.
func (s *QueueService) Remind(ctx context.Context, tokenID string) error {
	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("token", map[string]any{"token_id": tokenID})
		}
		return err
	}
	if s.notifier != nil {
		s.notifier.Enqueue(notify.ReminderEvent(*token))
	}
	return nil
}

// GetToken fetches a token, optionally enforcing citizen ownership.
func (s *QueueService) GetToken(ctx context.Context, tokenID string, ownerID string) (*domain.Token, error) {
	token, err := s.tokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("token", map[string]any{"token_id": tokenID})
		}
		return nil, err
	}
	if ownerID != "" && token.CitizenID != ownerID {
		return nil, util.NewForbidden("token belongs to another citizen")
	}
	return token, nil
}

// ListQueue returns the day's tokens grouped by slot index, each token paired
// with its display code. Codes are re-derived on every read, never stored.
func (s *QueueService) ListQueue(ctx context.Context, date string, service *domain.ServiceType) ([]SlotGroup, error) {
	tokens, err := s.tokens.ListByDate(ctx, date, service)
	if err != nil {
		return nil, err
	}
	return buildSlotGroups(tokens), nil
}

// ListCitizenTokens returns the citizen's tokens for a date with display
// codes derived against the full slot groups of that date.
func (s *QueueService) ListCitizenTokens(ctx context.Context, citizenID, date string) ([]TokenWithCode, error) {
	own, err := s.tokens.ListByCitizen(ctx, citizenID, date)
	if err != nil {
		return nil, err
	}
	if len(own) == 0 {
		return []TokenWithCode{}, nil
	}
	all, err := s.tokens.ListByDate(ctx, date, nil)
	if err != nil {
		return nil, err
	}
	groups := domain.GroupBySlot(all)

	result := make([]TokenWithCode, 0, len(own))
	for _, t := range own {
		result = append(result, TokenWithCode{Token: t, DisplayCode: codeFor(groups, t)})
	}
	return result, nil
}

// Stats summarizes the day. Average wait is measured from creation to the
// serving call over tokens that were actually called.
func (s *QueueService) Stats(ctx context.Context, date string) (QueueStats, error) {
	tokens, err := s.tokens.ListByDate(ctx, date, nil)
	if err != nil {
		return QueueStats{}, err
	}

	stats := QueueStats{TotalTokens: len(tokens)}
	var waited time.Duration
	var called int
	for _, t := range tokens {
		switch t.Status {
		case domain.TokenStatusServing:
			stats.CurrentlyServing++
		case domain.TokenStatusCompleted:
			stats.CompletedToday++
		}
		if t.CalledAt != nil {
			waited += t.CalledAt.Sub(t.CreatedAt)
			called++
		}
	}
	if called > 0 {
		stats.AverageWaitMinutes = waited.Minutes() / float64(called)
	}
	return stats, nil
}

func buildSlotGroups(tokens []domain.Token) []SlotGroup {
	groups := domain.GroupBySlot(tokens)

	indices := make([]int, 0, len(groups))
	for idx := range groups {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	result := make([]SlotGroup, 0, len(indices))
	for _, idx := range indices {
		group := groups[idx]
		withCodes := make([]TokenWithCode, 0, len(group))
		for pos, t := range group {
			withCodes = append(withCodes, TokenWithCode{
				Token:       t,
				DisplayCode: domain.DisplayCode(idx, pos),
			})
		}
		result = append(result, SlotGroup{SlotIndex: idx, Tokens: withCodes})
	}
	return result
}

func codeFor(groups map[int][]domain.Token, t domain.Token) string {
	pos := domain.PositionInSlot(groups[t.SlotIndex], t.ID)
	if pos < 0 {
		pos = 0
	}
	return domain.DisplayCode(t.SlotIndex, pos)
}

func (s *QueueService) buildQRCode(token *domain.Token) string {
	payload, err := json.Marshal(map[string]any{
		"token_number": token.TokenNumber,
		"citizen_id":   token.CitizenID,
		"time_slot":    token.TimeSlot,
	})
	if err != nil {
		return ""
	}
	png, err := qrcode.Encode(string(payload), qrcode.Medium, 256)
	if err != nil {
		s.logger.Warn("generate qr code", zap.Error(err))
		return ""
	}
	return fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(png))
}

func newEventID() string {
	return uuid.NewString()
}

func (s *QueueService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = newEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *QueueService) publishChange(ctx context.Context, tokenID string, kind feed.ChangeKind) {
	if s.changes == nil {
		return
	}
	s.changes.Publish(ctx, feed.TokenChange{TokenID: tokenID, Kind: kind, OccurredAt: s.now()})
}
