package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChangeKind distinguishes what happened to a token.
type ChangeKind string

const (
	ChangeCreated       ChangeKind = "created"
	ChangeStatusUpdated ChangeKind = "status_updated"
)

// TokenChange is the record published for every successful token mutation.
// Viewers re-fetch by id; the feed never carries full token state.
type TokenChange struct {
	TokenID    string     `json:"token_id"`
	Kind       ChangeKind `json:"kind"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Feed fans token changes out to in-process subscribers and, when a Redis
// client is configured, republishes them on a pub/sub channel for external
// viewers.
type Feed struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan TokenChange
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// New creates a feed. client may be nil; the feed then serves in-process
// subscribers only.
func New(client *redis.Client, channel string, logger *zap.Logger) *Feed {
	return &Feed{
		subs:    make(map[int]chan TokenChange),
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// Subscribe registers a viewer. The returned cancel func must be called when
// the viewer goes away; the channel is closed by cancel.
func (f *Feed) Subscribe() (<-chan TokenChange, func()) {
	ch := make(chan TokenChange, 16)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the change to every subscriber. Slow subscribers are
// skipped rather than blocking the mutation path.
func (f *Feed) Publish(ctx context.Context, change TokenChange) {
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now()
	}

	f.mu.Lock()
	for _, ch := range f.subs {
		select {
		case ch <- change:
		default:
		}
	}
	f.mu.Unlock()

	if f.client == nil {
		return
	}
	payload, err := json.Marshal(change)
	if err != nil {
		f.logger.Error("marshal token change", zap.Error(err))
		return
	}
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		f.logger.Warn("publish token change to redis",
			zap.String("token_id", change.TokenID),
			zap.Error(err))
	}
}

// SubscriberCount reports active in-process subscribers.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
