package cache

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// ProfileFetcher loads a citizen profile from the backing store.
type ProfileFetcher interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Profile, error)
}

// ProfileCache is a read-through cache of citizen profiles keyed by user id,
// with a TTL and in-flight request de-duplication: concurrent Gets for the
// same citizen share a single fetch instead of hammering the store.
type ProfileCache struct {
	fetcher ProfileFetcher
	ttl     time.Duration

	mu       sync.Mutex
	entries  map[string]cachedProfile
	inflight map[string]*fetchCall
}

type cachedProfile struct {
	profile   *domain.Profile
	fetchedAt time.Time
}

type fetchCall struct {
	done    chan struct{}
	profile *domain.Profile
	err     error
}

// NewProfileCache builds a cache around the fetcher.
func NewProfileCache(fetcher ProfileFetcher, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ProfileCache{
		fetcher:  fetcher,
		ttl:      ttl,
		entries:  make(map[string]cachedProfile),
		inflight: make(map[string]*fetchCall),
	}
}

// Get returns the cached profile when fresh, otherwise fetches it. Errors are
// not cached.
func (c *ProfileCache) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	c.mu.Lock()
	if entry, ok := c.entries[userID]; ok && time.Since(entry.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return entry.profile, nil
	}
	if call, ok := c.inflight[userID]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.profile, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &fetchCall{done: make(chan struct{})}
	c.inflight[userID] = call
	c.mu.Unlock()

	call.profile, call.err = c.fetcher.GetByUserID(ctx, userID)

	c.mu.Lock()
	delete(c.inflight, userID)
	if call.err == nil {
		c.entries[userID] = cachedProfile{profile: call.profile, fetchedAt: time.Now()}
	}
	c.mu.Unlock()
	close(call.done)

	return call.profile, call.err
}

// Invalidate drops the cached entry for a citizen.
func (c *ProfileCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
