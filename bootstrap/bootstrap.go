// Package bootstrap provides the session bootstrapper: the startup
// sequence that resolves credential → identity → teams and reconciles the
// result into the team context store.
//
// The bootstrapper owns the only path that writes the team context store
// from remote data. It also owns the login and logout flows, since both end
// in the same reconciliation.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	teamsync "github.com/performeplus/teamsync-go"
	"github.com/performeplus/teamsync-go/audit"
	"github.com/performeplus/teamsync-go/metrics"
	"golang.org/x/sync/singleflight"
)

// Bootstrapper drives the bootstrap state machine. Safe for concurrent use;
// concurrent Run calls collapse into a single pass.
type Bootstrapper struct {
	client  *teamsync.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *audit.Logger

	sf singleflight.Group

	// runMu serializes bootstrap passes against login/logout session swaps.
	runMu sync.Mutex

	mu      sync.RWMutex
	status  teamsync.BootstrapStatus
	lastErr error
	gen     uint64
	subs    map[int]func(teamsync.BootstrapStatus)
	nextSub int
}

// compile-time check
var _ teamsync.StatusSource = (*Bootstrapper)(nil)

// Option configures the Bootstrapper.
type Option func(*Bootstrapper)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bootstrapper) { b.logger = l }
}

// WithMetrics enables bootstrap instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bootstrapper) { b.metrics = m }
}

// WithAudit sets the audit trail for session lifecycle events.
func WithAudit(a *audit.Logger) Option {
	return func(b *Bootstrapper) { b.audit = a }
}

// New creates a bootstrapper over the client's stores and backends.
func New(client *teamsync.Client, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		client: client,
		logger: slog.New(slog.DiscardHandler),
		status: teamsync.StatusUnstarted,
		subs:   make(map[int]func(teamsync.BootstrapStatus)),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Status returns the current bootstrap status.
func (b *Bootstrapper) Status() teamsync.BootstrapStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Err returns the error that put the bootstrapper into StatusFailed, if any.
func (b *Bootstrapper) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

// SubscribeStatus registers a listener invoked on every status transition.
// The returned function cancels the subscription.
func (b *Bootstrapper) SubscribeStatus(fn func(teamsync.BootstrapStatus)) (cancel func()) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Run executes the bootstrap sequence. It is idempotent per process: once
// settled at StatusReady it returns immediately, and a StatusFailed run
// returns its error until Retry resets it. Concurrent callers share a
// single pass.
func (b *Bootstrapper) Run(ctx context.Context) error {
	b.mu.RLock()
	status, lastErr, gen := b.status, b.lastErr, b.gen
	b.mu.RUnlock()
	switch status {
	case teamsync.StatusReady:
		return nil
	case teamsync.StatusFailed:
		return lastErr
	}

	// The flight is keyed by session generation: a Run issued for the new
	// session after login never joins a pass started for the old one.
	_, err, _ := b.sf.Do(fmt.Sprintf("run-%d", gen), func() (any, error) {
		b.runMu.Lock()
		defer b.runMu.Unlock()

		b.mu.RLock()
		stale := b.gen != gen
		status, lastErr := b.status, b.lastErr
		b.mu.RUnlock()
		if stale {
			// A login or logout replaced the session while this pass was
			// queued; the replacement bootstraps itself.
			return nil, nil
		}
		// A caller arriving after a previous pass settled must not start
		// another one.
		switch status {
		case teamsync.StatusReady:
			return nil, nil
		case teamsync.StatusFailed:
			return nil, lastErr
		}
		return nil, b.run(ctx)
	})
	return err
}

// Retry re-runs a failed bootstrap. No-op unless the status is StatusFailed.
func (b *Bootstrapper) Retry(ctx context.Context) error {
	b.mu.Lock()
	if b.status != teamsync.StatusFailed {
		b.mu.Unlock()
		return nil
	}
	b.status = teamsync.StatusUnstarted
	b.lastErr = nil
	b.mu.Unlock()

	return b.Run(ctx)
}

// run is the single bootstrap pass. Identity load strictly precedes team
// load.
func (b *Bootstrapper) run(ctx context.Context) error {
	start := time.Now()

	b.setStatus(teamsync.StatusCheckingCredential)

	if !b.client.Credentials().Has() {
		// No session: ready with empty team context, nothing else runs.
		if err := b.client.Teams().Clear(ctx); err != nil {
			b.logger.Warn("clearing team context without credential", "error", err)
		}
		b.setStatus(teamsync.StatusReady)
		b.metrics.RecordBootstrap("anonymous", time.Since(start).Seconds())
		return nil
	}

	b.setStatus(teamsync.StatusLoadingIdentity)

	user, err := b.client.Identity().CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, teamsync.ErrInvalidCredential) || errors.Is(err, teamsync.ErrNoCredential) {
			// Session expired or torn down mid-flight: a normal logged-out
			// outcome, not a bootstrap failure.
			return b.expireSession(ctx, start, err)
		}
		b.fail(fmt.Errorf("teamsync/bootstrap: load identity: %w", err))
		b.metrics.RecordBootstrap("failed", time.Since(start).Seconds())
		return b.Err()
	}

	b.setStatus(teamsync.StatusLoadingTeams)

	list, err := b.client.TeamsAPI().ListMine(ctx)
	if err != nil {
		// Identity stays loaded and the team context keeps its last known
		// state: stale-but-available beats clearing on a transient error.
		b.fail(fmt.Errorf("teamsync/bootstrap: load teams: %w", err))
		b.metrics.RecordBootstrap("failed", time.Since(start).Seconds())
		return b.Err()
	}

	prevActive, hadActive := b.client.Teams().Active()
	if len(list) == 0 {
		if err := b.client.Teams().Clear(ctx); err != nil {
			b.fail(fmt.Errorf("teamsync/bootstrap: clear team context: %w", err))
			b.metrics.RecordBootstrap("failed", time.Since(start).Seconds())
			return b.Err()
		}
	} else if err := b.client.Teams().SetTeams(ctx, list); err != nil {
		b.fail(fmt.Errorf("teamsync/bootstrap: reconcile teams: %w", err))
		b.metrics.RecordBootstrap("failed", time.Since(start).Seconds())
		return b.Err()
	}
	b.auditReconciliation(user, prevActive, hadActive)

	b.setStatus(teamsync.StatusReady)
	b.metrics.RecordBootstrap("ready", time.Since(start).Seconds())
	b.audit.Log(audit.Event{Action: audit.ActionBootstrap, Result: "success", UserID: user.ID})
	b.logger.Info("bootstrap complete", "user", user.ID, "teams", len(list))
	return nil
}

// expireSession handles a rejected credential: clear everything locally and
// settle at StatusReady, effectively logged out.
func (b *Bootstrapper) expireSession(ctx context.Context, start time.Time, cause error) error {
	if err := b.client.Credentials().Clear(ctx); err != nil {
		b.logger.Warn("clearing rejected credential", "error", err)
	}
	if err := b.client.Teams().Clear(ctx); err != nil {
		b.logger.Warn("clearing team context for expired session", "error", err)
	}
	b.client.Identity().Reset()

	b.setStatus(teamsync.StatusReady)
	b.metrics.RecordBootstrap("expired", time.Since(start).Seconds())
	b.audit.Log(audit.Event{Action: audit.ActionSessionExpired, Result: "expired", Error: cause.Error()})
	b.logger.Info("session expired, cleared local state")
	return nil
}

// auditReconciliation records forced reselections and role write-throughs.
func (b *Bootstrapper) auditReconciliation(user *teamsync.Identity, prev teamsync.TeamMembership, hadPrev bool) {
	cur, ok := b.client.Teams().Active()
	if !ok || !hadPrev {
		return
	}
	switch {
	case cur.Team.ID != prev.Team.ID:
		b.audit.Log(audit.Event{
			Action: audit.ActionTeamReselected, Result: "success",
			UserID: user.ID, TeamID: cur.Team.ID,
			Details: fmt.Sprintf("previous team %s no longer in list", prev.Team.ID),
		})
	case cur.Role != prev.Role:
		b.audit.Log(audit.Event{
			Action: audit.ActionRoleChanged, Result: "success",
			UserID: user.ID, TeamID: cur.Team.ID,
			Details: fmt.Sprintf("%s -> %s", prev.Role, cur.Role),
		})
	}
}

// Login authenticates, stores the credential, and completes the bootstrap
// sequence for the new session. When the login response omits the user
// profile, a follow-up identity fetch resolves it before the teams phase.
func (b *Bootstrapper) Login(ctx context.Context, email, password string) error {
	res, err := b.client.Auth().Login(ctx, email, password)
	if err != nil {
		b.metrics.RecordLogin("failure")
		b.audit.Log(audit.Event{Action: audit.ActionLogin, Result: "failure", Error: err.Error()})
		return fmt.Errorf("teamsync/bootstrap: login: %w", err)
	}

	if err := b.client.Credentials().Set(ctx, res.Credential); err != nil {
		b.metrics.RecordLogin("failure")
		return fmt.Errorf("teamsync/bootstrap: store credential: %w", err)
	}

	// Wait out any in-flight pass for the old session before swapping it,
	// so the new session's Run cannot observe a half-done predecessor.
	b.runMu.Lock()
	// New session: drop anything cached for the previous one, then seed
	// the profile if the server already sent it.
	b.client.Identity().Reset()
	if res.User != nil {
		b.client.Identity().Seed(res.User)
	}

	b.mu.Lock()
	b.gen++
	b.status = teamsync.StatusUnstarted
	b.lastErr = nil
	b.mu.Unlock()
	b.runMu.Unlock()

	b.metrics.RecordLogin("success")
	b.audit.Log(audit.Event{Action: audit.ActionLogin, Result: "success"})
	return b.Run(ctx)
}

// Logout tears the session down. The server call is best-effort: local
// state is cleared regardless of its outcome.
func (b *Bootstrapper) Logout(ctx context.Context) error {
	if err := b.client.Auth().Logout(ctx); err != nil {
		b.logger.Warn("server logout failed, clearing locally anyway", "error", err)
	}

	// Wait out any in-flight pass so it cannot rewrite state cleared here.
	b.runMu.Lock()
	credErr := b.client.Credentials().Clear(ctx)
	teamErr := b.client.Teams().Clear(ctx)
	b.client.Identity().Reset()

	b.mu.Lock()
	b.gen++
	b.lastErr = nil
	b.mu.Unlock()
	b.setStatus(teamsync.StatusReady)
	b.runMu.Unlock()
	b.metrics.RecordLogout()
	b.audit.Log(audit.Event{Action: audit.ActionLogout, Result: "success"})

	if credErr != nil {
		return fmt.Errorf("teamsync/bootstrap: logout: %w", credErr)
	}
	if teamErr != nil {
		return fmt.Errorf("teamsync/bootstrap: logout: %w", teamErr)
	}
	return nil
}

// fail stores the error and transitions to StatusFailed.
func (b *Bootstrapper) fail(err error) {
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
	b.setStatus(teamsync.StatusFailed)
	b.logger.Error("bootstrap failed", "error", err)
}

// setStatus transitions the status and notifies subscribers outside the
// lock.
func (b *Bootstrapper) setStatus(s teamsync.BootstrapStatus) {
	b.mu.Lock()
	if b.status == s {
		b.mu.Unlock()
		return
	}
	b.status = s
	subs := make([]func(teamsync.BootstrapStatus), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
