package teamsync

import "context"

// AuthBackend talks to the remote service's authentication endpoints.
// Implementations: remote/ (HTTP), fake/ (testing).
type AuthBackend interface {
	// Login exchanges email/password for a credential. The returned user
	// profile is optional; callers must tolerate a nil User.
	Login(ctx context.Context, email, password string) (*LoginResult, error)

	// Logout invalidates the session server-side. Best-effort: local
	// teardown proceeds even when Logout fails.
	Logout(ctx context.Context) error

	// CurrentUser returns the profile of the authenticated user.
	CurrentUser(ctx context.Context) (*Identity, error)
}

// TeamBackend fetches the current user's team memberships.
type TeamBackend interface {
	// ListMine returns the user's memberships in server order.
	ListMine(ctx context.Context) ([]TeamMembership, error)
}

// CredentialStore owns the token pair and is the sole source of truth for
// "is a session present". A single shared instance serves the whole process.
type CredentialStore interface {
	// Set stores both tokens atomically and marks the session authenticated.
	Set(ctx context.Context, c Credential) error

	// Clear removes both tokens, including from persisted storage, on all
	// exit paths. Clearing is local and optimistic: it never depends on a
	// successful server logout.
	Clear(ctx context.Context) error

	// Has reports whether a credential is present. Synchronous and
	// side-effect-free.
	Has() bool

	// Get returns the current credential, if any.
	Get() (Credential, bool)

	// Subscribe registers a change listener invoked after every Set/Clear
	// with the new authenticated state. The returned function cancels the
	// subscription.
	Subscribe(fn func(authenticated bool)) (cancel func())
}

// IdentityCache deduplicates and caches identity fetches per logical
// resource key. Resolved values live until explicit invalidation; failures
// are never cached.
type IdentityCache interface {
	// CurrentUser returns the cached profile, fetching it at most once no
	// matter how many callers ask concurrently.
	CurrentUser(ctx context.Context) (*Identity, error)

	// Peek returns the resolved profile without triggering a fetch.
	Peek() (*Identity, bool)

	// Seed installs an already-known profile (e.g. from a login response)
	// so the next CurrentUser resolves without a network call.
	Seed(u *Identity)

	// Invalidate removes one key, forcing a re-fetch on next request.
	Invalidate(key string)

	// Reset clears every entry and fences out in-flight fetches: a fetch
	// that resolves after Reset is discarded, not reinstated.
	Reset()
}

// TeamContextStore holds the team list and the active selection. It never
// touches the network; the bootstrapper is the only component that writes
// it from remote data.
type TeamContextStore interface {
	// SetTeams replaces the list and re-validates the active selection:
	// empty list clears it, a vanished team falls back to the first entry,
	// an unchanged team has its membership payload written through.
	SetTeams(ctx context.Context, list []TeamMembership) error

	// SetActive selects a team from the current list by id. Returns an
	// error wrapping ErrNotFound if the team is not in the list.
	SetActive(ctx context.Context, teamID string) error

	// Teams returns the current team list.
	Teams() []TeamMembership

	// Active returns the active membership, if any.
	Active() (TeamMembership, bool)

	// Clear empties both list and selection.
	Clear(ctx context.Context) error

	// Subscribe registers a change listener invoked after every mutation.
	// The returned function cancels the subscription.
	Subscribe(fn func(TeamSnapshot)) (cancel func())
}

// StatusSource reports bootstrap progress. Implemented by
// bootstrap.Bootstrapper; consumed by the route guard and role router.
type StatusSource interface {
	Status() BootstrapStatus
}
