// Package identity provides a request-deduplicating cache for identity
// resources. Concurrent requests for the same logical key collapse into a
// single fetch; resolved values are cached until explicitly invalidated.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	teamsync "github.com/performeplus/teamsync-go"
	"github.com/performeplus/teamsync-go/metrics"
	"golang.org/x/sync/singleflight"
)

// KeyCurrentUser is the logical key of the authenticated user's profile.
// It has infinite staleness: once resolved it is never silently re-fetched.
const KeyCurrentUser = "current_user"

// Cache implements teamsync.IdentityCache backed by an AuthBackend.
type Cache struct {
	auth    teamsync.AuthBackend
	logger  *slog.Logger
	metrics *metrics.Metrics

	sf singleflight.Group

	mu      sync.RWMutex
	entries map[string]any
	gen     uint64
}

// compile-time check
var _ teamsync.IdentityCache = (*Cache)(nil)

// Option configures the Cache.
type Option func(*Cache)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics enables cache hit/miss/collapse instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates an identity cache fetching through auth.
func New(auth teamsync.AuthBackend, opts ...Option) *Cache {
	c := &Cache{
		auth:    auth,
		logger:  slog.New(slog.DiscardHandler),
		entries: make(map[string]any),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CurrentUser returns the authenticated user's profile, fetching it at most
// once regardless of how many callers ask concurrently.
func (c *Cache) CurrentUser(ctx context.Context) (*teamsync.Identity, error) {
	v, err := c.Get(ctx, KeyCurrentUser, func(ctx context.Context) (any, error) {
		return c.auth.CurrentUser(ctx)
	})
	if err != nil {
		return nil, err
	}
	u, ok := v.(*teamsync.Identity)
	if !ok || u == nil {
		return nil, fmt.Errorf("teamsync/identity: %q resolved to unexpected value", KeyCurrentUser)
	}
	return u, nil
}

// Get returns the cached value for key, or runs fetch to resolve it.
// Concurrent callers for the same key share a single fetch and all receive
// its result. Failed fetches are not cached; the next call retries.
func (c *Cache) Get(ctx context.Context, key string, fetch func(ctx context.Context) (any, error)) (any, error) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.metrics.RecordCacheHit(key)
		return v, nil
	}
	c.metrics.RecordCacheMiss(key)

	// The generation is captured when the fetch starts and the cache write
	// happens inside the flight, so every joiner shares one verdict. A
	// caller joining after Reset must not be the one deciding whether a
	// pre-reset result is still valid.
	v, err, shared := c.sf.Do(key, func() (any, error) {
		c.mu.RLock()
		cached, ok := c.entries[key]
		gen := c.gen
		c.mu.RUnlock()
		if ok {
			// Another caller resolved the key between the cache check and
			// joining the flight.
			return cached, nil
		}

		v, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("teamsync/identity: fetch %q: %w", key, err)
		}

		c.mu.Lock()
		if c.gen != gen {
			// The cache was reset while the fetch was in flight (e.g.
			// logout). Reinstating the value would resurrect cleared state.
			c.mu.Unlock()
			c.logger.Debug("discarding stale fetch result", "key", key)
			return nil, fmt.Errorf("teamsync/identity: %q resolved after cache reset: %w", key, teamsync.ErrNoCredential)
		}
		c.entries[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if shared {
		c.metrics.RecordCacheCollapse(key)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Peek returns the resolved profile without triggering a fetch.
func (c *Cache) Peek() (*teamsync.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.entries[KeyCurrentUser].(*teamsync.Identity)
	return u, ok && u != nil
}

// Seed installs an already-known profile under the current generation.
func (c *Cache) Seed(u *teamsync.Identity) {
	if u == nil {
		return
	}
	c.mu.Lock()
	c.entries[KeyCurrentUser] = u
	c.mu.Unlock()
}

// Invalidate removes one key, forcing the next request to re-fetch. An
// in-flight fetch for the key is forgotten so later callers start a fresh
// one instead of joining it.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.sf.Forget(key)
}

// Reset clears every entry and advances the generation so in-flight fetches
// started before the reset are discarded on arrival. Callers arriving after
// the reset start a fresh fetch rather than joining a stale flight.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]any)
	c.gen++
	c.mu.Unlock()
	c.sf.Forget(KeyCurrentUser)
}
