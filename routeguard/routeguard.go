// Package routeguard provides the navigation guard: a small state machine
// evaluated on every navigation intent that decides whether the destination
// may render, must redirect, or must wait for bootstrap to settle.
package routeguard

import (
	"strings"

	teamsync "github.com/performeplus/teamsync-go"
	"github.com/performeplus/teamsync-go/metrics"
)

// State is the guard's position in handling one navigation intent.
type State int

const (
	// StateChecking: bootstrap has not settled; render a neutral waiting
	// state instead of deciding, to avoid a flash of the wrong screen.
	StateChecking State = iota

	// StateRedirecting: a redirect was issued and has not completed.
	StateRedirecting

	// StateSettled: the destination renders.
	StateSettled
)

// Verdict is the guard's decision for a destination.
type Verdict int

const (
	// VerdictWait: render the neutral waiting state.
	VerdictWait Verdict = iota

	// VerdictRender: render the destination.
	VerdictRender

	// VerdictRedirectLogin: send the visitor to the login screen.
	VerdictRedirectLogin

	// VerdictRedirectDashboard: send the authenticated visitor away from
	// auth screens to the dashboard entry.
	VerdictRedirectDashboard
)

// String returns the verdict name used in metric labels.
func (v Verdict) String() string {
	switch v {
	case VerdictWait:
		return "wait"
	case VerdictRender:
		return "render"
	case VerdictRedirectLogin:
		return "redirect_login"
	case VerdictRedirectDashboard:
		return "redirect_dashboard"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating one navigation intent.
type Decision struct {
	Verdict Verdict
	State   State

	// Target is the redirect destination for redirect verdicts.
	Target string
}

// Guard evaluates navigation intents against the credential store, the
// identity cache, and the bootstrap status.
type Guard struct {
	creds     teamsync.CredentialStore
	identity  teamsync.IdentityCache
	status    teamsync.StatusSource
	metrics   *metrics.Metrics
	public    []string
	auth      []string
	loginPath string
	dashPath  string
}

// Option configures the Guard.
type Option func(*Guard)

// WithMetrics enables guard decision instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithAuthScreens overrides the screens an authenticated visitor is
// redirected away from. Default: the login path and "/register".
func WithAuthScreens(paths ...string) Option {
	return func(g *Guard) { g.auth = paths }
}

// New creates a guard over the client's stores. Public roots, login path
// and dashboard path come from the client configuration.
func New(client *teamsync.Client, status teamsync.StatusSource, opts ...Option) *Guard {
	cfg := client.Config()
	g := &Guard{
		creds:     client.Credentials(),
		identity:  client.Identity(),
		status:    status,
		public:    cfg.PublicPaths,
		auth:      []string{cfg.LoginPath, "/register"},
		loginPath: cfg.LoginPath,
		dashPath:  cfg.DashboardPath,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Decide classifies one navigation intent.
func (g *Guard) Decide(path string) Decision {
	d := g.decide(path)
	g.metrics.RecordGuardDecision(d.Verdict.String())
	return d
}

func (g *Guard) decide(path string) Decision {
	// Public screens never wait on bootstrap; an anonymous visitor on
	// /login must not stare at a spinner.
	public := g.isPublic(path)
	authed := g.creds.Has()

	if public {
		if g.isAuthScreen(path) && authed {
			if _, resolved := g.identity.Peek(); resolved {
				return Decision{Verdict: VerdictRedirectDashboard, State: StateRedirecting, Target: g.dashPath}
			}
		}
		return Decision{Verdict: VerdictRender, State: StateSettled}
	}

	// Protected destination: no redirect decision until bootstrap settles,
	// to avoid a flash of the wrong screen.
	if !g.status.Status().Settled() {
		return Decision{Verdict: VerdictWait, State: StateChecking}
	}

	if !authed {
		return Decision{Verdict: VerdictRedirectLogin, State: StateRedirecting, Target: g.loginPath}
	}

	return Decision{Verdict: VerdictRender, State: StateSettled}
}

// isPublic reports whether path equals a public root or extends it across a
// "/" boundary.
func (g *Guard) isPublic(path string) bool {
	for _, root := range g.public {
		if path == root {
			return true
		}
		if root == "/" {
			// "/" matches only itself; every path extends it.
			continue
		}
		if strings.HasPrefix(path, root+"/") {
			return true
		}
	}
	return false
}

// isAuthScreen reports whether path is a login/registration screen.
func (g *Guard) isAuthScreen(path string) bool {
	for _, root := range g.auth {
		if path == root || strings.HasPrefix(path, root+"/") {
			return true
		}
	}
	return false
}
