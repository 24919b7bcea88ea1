// Package fake provides in-memory backend implementations for testing.
//
// Use fake.NewBackends() in unit tests and examples to avoid network calls
// and external dependencies.
package fake

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	teamsync "github.com/performeplus/teamsync-go"
)

// Backends bundles the in-memory AuthBackend and TeamBackend over shared
// state, so a login immediately affects subsequent identity and team
// fetches.
type Backends struct {
	mu sync.RWMutex

	accounts    map[string]account // email → account
	current     *teamsync.Identity
	memberships []teamsync.TeamMembership
	includeUser bool

	loginErr  error
	logoutErr error
	meErr     error
	teamsErr  error

	meCalls    atomic.Int64
	loginCalls atomic.Int64
	teamsCalls atomic.Int64
}

type account struct {
	password string
	user     teamsync.Identity
}

// compile-time checks
var (
	_ teamsync.AuthBackend = (*Backends)(nil)
	_ teamsync.TeamBackend = (*Backends)(nil)
)

// Option configures the fake backends.
type Option func(*Backends)

// WithAccount registers a login account.
func WithAccount(email, password string, user teamsync.Identity) Option {
	return func(b *Backends) {
		b.accounts[email] = account{password: password, user: user}
	}
}

// WithCurrentUser sets the profile returned by CurrentUser without
// requiring a login.
func WithCurrentUser(u teamsync.Identity) Option {
	return func(b *Backends) { b.current = &u }
}

// WithMemberships sets the team list returned by ListMine.
func WithMemberships(list ...teamsync.TeamMembership) Option {
	return func(b *Backends) { b.memberships = list }
}

// WithUserInLoginResponse controls whether Login includes the user profile
// in its result. Default: true.
func WithUserInLoginResponse(include bool) Option {
	return func(b *Backends) { b.includeUser = include }
}

// NewBackends creates fake backends with the given fixtures.
func NewBackends(opts ...Option) *Backends {
	b := &Backends{
		accounts:    make(map[string]account),
		includeUser: true,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Login authenticates against the registered accounts.
func (b *Backends) Login(ctx context.Context, email, password string) (*teamsync.LoginResult, error) {
	b.loginCalls.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loginErr != nil {
		return nil, b.loginErr
	}

	acct, ok := b.accounts[email]
	if !ok || acct.password != password {
		return nil, fmt.Errorf("fake: bad credentials: %w", teamsync.ErrInvalidCredential)
	}

	u := acct.user
	b.current = &u
	res := &teamsync.LoginResult{
		Credential: teamsync.Credential{
			AccessToken:  "fake-access-" + u.ID,
			RefreshToken: "fake-refresh-" + u.ID,
		},
	}
	if b.includeUser {
		res.User = &u
	}
	return res, nil
}

// Logout succeeds unless a failure is injected via FailLogout.
func (b *Backends) Logout(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logoutErr
}

// CurrentUser returns the fixture profile.
func (b *Backends) CurrentUser(ctx context.Context) (*teamsync.Identity, error) {
	b.meCalls.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.meErr != nil {
		return nil, b.meErr
	}
	if b.current == nil {
		return nil, fmt.Errorf("fake: no session: %w", teamsync.ErrInvalidCredential)
	}
	u := *b.current
	return &u, nil
}

// ListMine returns the fixture memberships.
func (b *Backends) ListMine(ctx context.Context) ([]teamsync.TeamMembership, error) {
	b.teamsCalls.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.teamsErr != nil {
		return nil, b.teamsErr
	}
	out := make([]teamsync.TeamMembership, len(b.memberships))
	copy(out, b.memberships)
	return out, nil
}

// SetMemberships replaces the team list, simulating a server-side change.
func (b *Backends) SetMemberships(list ...teamsync.TeamMembership) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memberships = list
}

// FailLogin injects an error for Login; nil restores success.
func (b *Backends) FailLogin(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginErr = err
}

// FailLogout injects an error for Logout; nil restores success.
func (b *Backends) FailLogout(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutErr = err
}

// FailCurrentUser injects an error for CurrentUser; nil restores success.
func (b *Backends) FailCurrentUser(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meErr = err
}

// FailListMine injects an error for ListMine; nil restores success.
func (b *Backends) FailListMine(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teamsErr = err
}

// MeCalls returns how many times CurrentUser hit the backend.
func (b *Backends) MeCalls() int64 { return b.meCalls.Load() }

// TeamsCalls returns how many times ListMine hit the backend.
func (b *Backends) TeamsCalls() int64 { return b.teamsCalls.Load() }
