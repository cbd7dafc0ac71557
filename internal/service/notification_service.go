package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/notify"
	"github.com/spec-kit/queue-service/internal/repository"
)

// NotificationService turns domain events into notification events and hands
// them to the async notifier. Derivation is the pure notify.DeriveEvents;
// this service only gathers its inputs.
type NotificationService struct {
	tokens   repository.TokenRepository
	notifier Notifier
	logger   *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(tokens repository.TokenRepository, notifier Notifier, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
	}
}

// RegisterHandlers subscribes to the dispatcher.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTokenCreated, n.handleTokenCreated)
	dispatcher.Subscribe(events.EventTokenStatusChanged, n.handleStatusChanged)
}

func (n *NotificationService) handleTokenCreated(ctx context.Context, event events.Event) error {
	token, err := n.tokens.GetByID(ctx, event.TokenID)
	if err != nil {
		n.logger.Warn("load token for creation notification",
			zap.String("token_id", event.TokenID), zap.Error(err))
		return err
	}
	n.enqueue(notify.DeriveEvents(nil, token.Status, *token, nil))
	return nil
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TokenStatusChangedPayload)
	if !ok {
		return nil
	}
	token, err := n.tokens.GetByID(ctx, event.TokenID)
	if err != nil {
		n.logger.Warn("load token for status notification",
			zap.String("token_id", event.TokenID), zap.Error(err))
		return err
	}

	var waiting []domain.Token
	if payload.NewStatus == domain.TokenStatusServing {
		waiting, err = n.tokens.ListWaiting(ctx, token.ServiceType, token.SlotDate)
		if err != nil {
			n.logger.Warn("load waiting tokens for up-next notification",
				zap.String("token_id", event.TokenID), zap.Error(err))
			waiting = nil
		}
	}

	oldStatus := payload.OldStatus
	n.enqueue(notify.DeriveEvents(&oldStatus, payload.NewStatus, *token, waiting))
	return nil
}

func (n *NotificationService) enqueue(eventsToSend []notify.Event) {
	if n.notifier == nil {
		return
	}
	for _, e := range eventsToSend {
		n.notifier.Enqueue(e)
	}
}
