package teamsync

import "context"

type ctxKey string

const (
	ctxKeyIdentity   ctxKey = "teamsync_identity"
	ctxKeyActiveTeam ctxKey = "teamsync_active_team"
)

// WithIdentity stores the authenticated user's profile in the context.
func WithIdentity(ctx context.Context, u *Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, u)
}

// IdentityFromContext extracts the authenticated user's profile from the
// context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(ctxKeyIdentity).(*Identity)
	return v
}

// WithActiveTeam stores the active team membership in the context.
func WithActiveTeam(ctx context.Context, m TeamMembership) context.Context {
	return context.WithValue(ctx, ctxKeyActiveTeam, m)
}

// ActiveTeamFromContext extracts the active team membership from the
// context.
func ActiveTeamFromContext(ctx context.Context) (TeamMembership, bool) {
	v, ok := ctx.Value(ctxKeyActiveTeam).(TeamMembership)
	return v, ok
}
