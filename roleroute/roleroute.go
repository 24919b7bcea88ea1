// Package roleroute provides the role router: once bootstrap is ready it
// maps the active membership's role to its landing screen.
package roleroute

import (
	"errors"
	"fmt"

	teamsync "github.com/performeplus/teamsync-go"
	"github.com/performeplus/teamsync-go/metrics"
)

// ErrNotReady is returned while the bootstrap has not settled.
var ErrNotReady = errors.New("teamsync/roleroute: bootstrap not ready")

// Default landing screens per role.
const (
	DefaultPlayerPath = "/player"
	DefaultStaffPath  = "/staff"
	DefaultOwnerPath  = "/owner"
	DefaultNoTeamPath = "/no-team"
)

// Router resolves the landing screen for the active membership. It holds no
// cached destination: every call re-reads the team context, so a role
// change written through by the bootstrapper takes effect on the next
// evaluation.
type Router struct {
	teams      teamsync.TeamContextStore
	status     teamsync.StatusSource
	metrics    *metrics.Metrics
	table      map[teamsync.Role]string
	noTeamPath string
}

// Option configures the Router.
type Option func(*Router)

// WithMetrics enables redirect instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithRolePath overrides the landing screen for one role.
func WithRolePath(role teamsync.Role, path string) Option {
	return func(r *Router) { r.table[role] = path }
}

// WithNoTeamPath overrides the terminal screen shown when the user belongs
// to no team.
func WithNoTeamPath(path string) Option {
	return func(r *Router) { r.noTeamPath = path }
}

// New creates a role router over the client's team context store.
func New(client *teamsync.Client, status teamsync.StatusSource, opts ...Option) *Router {
	r := &Router{
		teams:  client.Teams(),
		status: status,
		table: map[teamsync.Role]string{
			teamsync.RolePlayer: DefaultPlayerPath,
			teamsync.RoleStaff:  DefaultStaffPath,
			teamsync.RoleOwner:  DefaultOwnerPath,
		},
		noTeamPath: DefaultNoTeamPath,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Destination resolves the current landing screen.
//
// Returns ErrNotReady until bootstrap settles at StatusReady, the no-team
// path when the team list is empty (a terminal screen, not a redirect
// loop), and ErrUnroutableRole when the active role has no table entry.
func (r *Router) Destination() (string, error) {
	if r.status.Status() != teamsync.StatusReady {
		return "", ErrNotReady
	}

	active, ok := r.teams.Active()
	if !ok {
		return r.noTeamPath, nil
	}

	path, ok := r.table[active.Role]
	if !ok {
		return "", fmt.Errorf("teamsync/roleroute: role %q: %w", active.Role, teamsync.ErrUnroutableRole)
	}
	r.metrics.RecordRoleRedirect(string(active.Role))
	return path, nil
}

// NoTeamPath returns the terminal screen for users without a team.
func (r *Router) NoTeamPath() string { return r.noTeamPath }
