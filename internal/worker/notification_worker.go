package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/notify"
	"github.com/spec-kit/queue-service/internal/observability"
)

// NotificationWorker drains derived notification events on its own
// goroutines so delivery can never block or fail a lifecycle transition.
type NotificationWorker struct {
	sender   notify.Sender
	profiles *cache.ProfileCache
	metrics  *observability.Metrics
	logger   *zap.Logger
	queue    chan notify.Event
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewNotificationWorker builds a worker with the given queue depth.
func NewNotificationWorker(sender notify.Sender, profiles *cache.ProfileCache, metrics *observability.Metrics, logger *zap.Logger, queueSize int) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationWorker{
		sender:   sender,
		profiles: profiles,
		metrics:  metrics,
		logger:   logger,
		queue:    make(chan notify.Event, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches n delivery goroutines.
func (w *NotificationWorker) Start(n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go w.run()
	}
}

// Enqueue hands an event to the worker. When the queue is full the event is
// dropped and logged; notifications are a side channel, not part of the
// lifecycle transaction.
func (w *NotificationWorker) Enqueue(event notify.Event) {
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("notification queue full, dropping event",
			zap.String("token_id", event.TokenID),
			zap.String("type", string(event.Type)))
		w.metrics.RecordNotification(string(event.Type), "dropped")
	}
}

// Stop drains queued deliveries and shuts the workers down. The context is
// cancelled only after the drain, so pending sends still complete.
func (w *NotificationWorker) Stop() {
	close(w.queue)
	w.wg.Wait()
	w.cancel()
}

func (w *NotificationWorker) run() {
	defer w.wg.Done()
	for event := range w.queue {
		w.deliver(event)
	}
}

func (w *NotificationWorker) deliver(event notify.Event) {
	ctx := w.ctx

	if event.RecipientContact == "" && w.profiles != nil {
		profile, err := w.profiles.Get(ctx, event.CitizenID)
		if err != nil {
			w.logger.Warn("resolve notification recipient",
				zap.String("citizen_id", event.CitizenID),
				zap.Error(err))
			w.metrics.RecordNotification(string(event.Type), "failed")
			return
		}
		event.RecipientContact = profile.Phone
	}

	if err := w.sender.Send(ctx, event); err != nil {
		w.logger.Warn("notification delivery failed",
			zap.String("token_id", event.TokenID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
		w.metrics.RecordNotification(string(event.Type), "failed")
		return
	}
	w.metrics.RecordNotification(string(event.Type), "sent")
}
