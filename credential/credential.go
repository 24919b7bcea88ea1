// Package credential provides the CredentialStore implementation: a single
// shared, persisted holder of the access/refresh token pair.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	teamsync "github.com/performeplus/teamsync-go"
	"github.com/performeplus/teamsync-go/localstore"
)

// StorageKey is the fixed identifier the credential is persisted under.
const StorageKey = "teamsync.credential"

// Store implements teamsync.CredentialStore over a localstore backend.
type Store struct {
	backend localstore.Store
	logger  *slog.Logger

	mu      sync.RWMutex
	cred    teamsync.Credential
	present bool
	subs    map[int]func(bool)
	nextSub int
}

// compile-time check
var _ teamsync.CredentialStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a credential store persisting through backend.
func NewStore(backend localstore.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.New(slog.DiscardHandler),
		subs:    make(map[int]func(bool)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load rehydrates the credential from persisted storage. A missing key is
// not an error; the store simply starts unauthenticated.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.backend.Get(ctx, StorageKey)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("teamsync/credential: load: %w", err)
	}

	var cred teamsync.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		// Corrupt persisted state is unrecoverable; drop it.
		s.logger.Warn("discarding corrupt persisted credential", "error", err)
		return s.Clear(ctx)
	}
	if cred.IsZero() {
		return nil
	}

	s.mu.Lock()
	s.cred = cred
	s.present = true
	s.mu.Unlock()
	return nil
}

// Set stores both tokens atomically: the pair is persisted first, then the
// in-memory state flips and subscribers are notified.
func (s *Store) Set(ctx context.Context, c teamsync.Credential) error {
	if c.AccessToken == "" {
		return fmt.Errorf("teamsync/credential: access token cannot be empty")
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("teamsync/credential: encode: %w", err)
	}
	if err := s.backend.Put(ctx, StorageKey, raw); err != nil {
		return fmt.Errorf("teamsync/credential: persist: %w", err)
	}

	s.mu.Lock()
	s.cred = c
	s.present = true
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(true)
	}
	return nil
}

// Clear removes both tokens and marks the session unauthenticated. The
// in-memory state is cleared even when the persisted delete fails, so a
// logout always takes effect locally.
func (s *Store) Clear(ctx context.Context) error {
	delErr := s.backend.Delete(ctx, StorageKey)

	s.mu.Lock()
	s.cred = teamsync.Credential{}
	s.present = false
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(false)
	}

	if delErr != nil {
		return fmt.Errorf("teamsync/credential: remove persisted credential: %w", delErr)
	}
	return nil
}

// Has reports whether a credential is present.
func (s *Store) Has() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.present
}

// Get returns the current credential, if any.
func (s *Store) Get() (teamsync.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.present
}

// ExpiresAt returns the stored access token's expiry. Opaque (non-JWT)
// tokens yield the zero time with no error.
func (s *Store) ExpiresAt() (time.Time, error) {
	s.mu.RLock()
	cred, present := s.cred, s.present
	s.mu.RUnlock()
	if !present {
		return time.Time{}, teamsync.ErrNoCredential
	}
	return Expiry(cred.AccessToken)
}

// Subscribe registers a change listener. Listeners run synchronously after
// each Set/Clear, outside the store lock.
func (s *Store) Subscribe(fn func(authenticated bool)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// snapshotSubs copies subscribers for invocation outside the lock.
// Caller must hold s.mu.
func (s *Store) snapshotSubs() []func(bool) {
	out := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}
