package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	teamsync "github.com/performeplus/teamsync-go"
	"github.com/performeplus/teamsync-go/credential"
	"github.com/performeplus/teamsync-go/fake"
	"github.com/performeplus/teamsync-go/identity"
	"github.com/performeplus/teamsync-go/localstore"
	"github.com/performeplus/teamsync-go/teamctx"
)

type fixture struct {
	backends *fake.Backends
	creds    *credential.Store
	cache    *identity.Cache
	teams    *teamctx.Store
	client   *teamsync.Client
	boot     *Bootstrapper
}

func newFixture(t *testing.T, opts ...fake.Option) *fixture {
	t.Helper()

	backends := fake.NewBackends(opts...)
	kv := localstore.NewMemory()
	creds := credential.NewStore(kv)
	cache := identity.New(backends)
	teams := teamctx.NewStore(kv)

	client, err := teamsync.NewClient(teamsync.Config{BaseURL: "http://api.local"},
		teamsync.WithCredentialStore(creds),
		teamsync.WithIdentityCache(cache),
		teamsync.WithTeamContextStore(teams),
		teamsync.WithAuthBackend(backends),
		teamsync.WithTeamBackend(backends),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	return &fixture{
		backends: backends,
		creds:    creds,
		cache:    cache,
		teams:    teams,
		client:   client,
		boot:     New(client),
	}
}

func membership(teamID string, role teamsync.Role) teamsync.TeamMembership {
	return teamsync.TeamMembership{
		ID:   "m-" + teamID,
		Team: teamsync.Team{ID: teamID},
		Role: role,
	}
}

func (f *fixture) seedCredential(t *testing.T) {
	t.Helper()
	if err := f.creds.Set(context.Background(), teamsync.Credential{AccessToken: "at"}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
}

func TestRun_NoCredentialSettlesReadyAndEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.boot.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := f.boot.Status(); got != teamsync.StatusReady {
		t.Errorf("status = %v, want ready", got)
	}
	if len(f.teams.Teams()) != 0 {
		t.Error("team context not empty for anonymous session")
	}
	if got := f.backends.MeCalls(); got != 0 {
		t.Errorf("identity fetches = %d, want 0 without credential", got)
	}
}

func TestRun_FullSequence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		fake.WithCurrentUser(teamsync.Identity{ID: "u1", Email: "a@b.c"}),
		fake.WithMemberships(membership("a", teamsync.RoleStaff), membership("b", teamsync.RolePlayer)),
	)
	f.seedCredential(t)

	var transitions []teamsync.BootstrapStatus
	cancel := f.boot.SubscribeStatus(func(s teamsync.BootstrapStatus) { transitions = append(transitions, s) })
	defer cancel()

	if err := f.boot.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := f.boot.Status(); got != teamsync.StatusReady {
		t.Fatalf("status = %v, want ready", got)
	}
	active, ok := f.teams.Active()
	if !ok || active.Team.ID != "a" {
		t.Errorf("active = %+v, %v; want team a", active, ok)
	}
	want := []teamsync.BootstrapStatus{
		teamsync.StatusCheckingCredential,
		teamsync.StatusLoadingIdentity,
		teamsync.StatusLoadingTeams,
		teamsync.StatusReady,
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestRun_InvalidCredentialIsLoggedOutNotFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fake.WithMemberships(membership("a", teamsync.RoleStaff)))
	f.seedCredential(t)
	f.backends.FailCurrentUser(fmt.Errorf("server says no: %w", teamsync.ErrInvalidCredential))

	if err := f.boot.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := f.boot.Status(); got != teamsync.StatusReady {
		t.Errorf("status = %v, want ready (session expired is not a failure)", got)
	}
	if f.creds.Has() {
		t.Error("credential not cleared after rejection")
	}
	if len(f.teams.Teams()) != 0 {
		t.Error("team context not cleared after rejection")
	}
}

func TestRun_TransientIdentityFailurePreservesCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedCredential(t)
	f.backends.FailCurrentUser(fmt.Errorf("gateway: %w", teamsync.ErrTransient))

	err := f.boot.Run(ctx)
	if err == nil {
		t.Fatal("Run() expected error")
	}
	if got := f.boot.Status(); got != teamsync.StatusFailed {
		t.Errorf("status = %v, want failed", got)
	}
	if !f.creds.Has() {
		t.Error("credential cleared on a transient failure")
	}
}

func TestRun_TeamsFailureKeepsIdentityAndStaleContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fake.WithCurrentUser(teamsync.Identity{ID: "u1"}))
	f.seedCredential(t)

	// Last-known team context from a previous session.
	if err := f.teams.SetTeams(ctx, []teamsync.TeamMembership{membership("old", teamsync.RoleStaff)}); err != nil {
		t.Fatalf("seed teams: %v", err)
	}
	f.backends.FailListMine(fmt.Errorf("timeout: %w", teamsync.ErrTransient))

	err := f.boot.Run(ctx)
	if err == nil {
		t.Fatal("Run() expected error")
	}
	if got := f.boot.Status(); got != teamsync.StatusFailed {
		t.Errorf("status = %v, want failed", got)
	}
	if _, ok := f.cache.Peek(); !ok {
		t.Error("identity dropped on teams failure")
	}
	active, ok := f.teams.Active()
	if !ok || active.Team.ID != "old" {
		t.Errorf("team context changed on transient failure: %+v, %v", active, ok)
	}
}

func TestRetry_RecoversAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		fake.WithCurrentUser(teamsync.Identity{ID: "u1"}),
		fake.WithMemberships(membership("a", teamsync.RoleOwner)),
	)
	f.seedCredential(t)
	f.backends.FailListMine(fmt.Errorf("down: %w", teamsync.ErrTransient))

	if err := f.boot.Run(ctx); err == nil {
		t.Fatal("Run() expected error")
	}
	f.backends.FailListMine(nil)

	if err := f.boot.Retry(ctx); err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if got := f.boot.Status(); got != teamsync.StatusReady {
		t.Errorf("status after retry = %v, want ready", got)
	}
	active, _ := f.teams.Active()
	if active.Team.ID != "a" {
		t.Errorf("active team after retry = %q, want a", active.Team.ID)
	}
}

func TestRun_IdempotentOnceReady(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		fake.WithCurrentUser(teamsync.Identity{ID: "u1"}),
		fake.WithMemberships(membership("a", teamsync.RoleStaff)),
	)
	f.seedCredential(t)

	if err := f.boot.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if err := f.boot.Run(ctx); err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if got := f.backends.MeCalls(); got != 1 {
		t.Errorf("identity fetches = %d, want 1", got)
	}
	if got := f.backends.TeamsCalls(); got != 1 {
		t.Errorf("team fetches = %d, want 1", got)
	}
}

func TestRun_ConcurrentCallersShareOnePass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		fake.WithCurrentUser(teamsync.Identity{ID: "u1"}),
		fake.WithMemberships(membership("a", teamsync.RoleStaff)),
	)
	f.seedCredential(t)

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.boot.Run(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d returned error: %v", i, err)
		}
	}
	if got := f.backends.TeamsCalls(); got != 1 {
		t.Errorf("team fetches = %d, want 1 (single pass)", got)
	}
}

func TestRun_ReselectsWhenActiveTeamDisappears(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		fake.WithCurrentUser(teamsync.Identity{ID: "u1"}),
		fake.WithMemberships(membership("b", teamsync.RoleOwner)),
	)
	f.seedCredential(t)

	// Previous session had team a active with STAFF.
	if err := f.teams.SetTeams(ctx, []teamsync.TeamMembership{membership("a", teamsync.RoleStaff)}); err != nil {
		t.Fatalf("seed teams: %v", err)
	}

	if err := f.boot.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	active, ok := f.teams.Active()
	if !ok {
		t.Fatal("no active selection after reconciliation")
	}
	if active.Team.ID != "b" || active.Role != teamsync.RoleOwner {
		t.Errorf("active = {%s %s}, want {b OWNER}", active.Team.ID, active.Role)
	}
}

func TestLogin_WithUserInResponseSkipsIdentityFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		fake.WithAccount("a@b.c", "pw", teamsync.Identity{ID: "u1"}),
		fake.WithMemberships(membership("a", teamsync.RoleStaff)),
	)

	if err := f.boot.Login(ctx, "a@b.c", "pw"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if got := f.boot.Status(); got != teamsync.StatusReady {
		t.Errorf("status = %v, want ready", got)
	}
	if got := f.backends.MeCalls(); got != 0 {
		t.Errorf("identity fetches = %d, want 0 (profile seeded from login)", got)
	}
	if !f.creds.Has() {
		t.Error("credential not stored after login")
	}
}

func TestLogin_WithoutUserPerformsFollowUpFetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		fake.WithAccount("a@b.c", "pw", teamsync.Identity{ID: "u1"}),
		fake.WithMemberships(membership("a", teamsync.RolePlayer)),
		fake.WithUserInLoginResponse(false),
	)

	if err := f.boot.Login(ctx, "a@b.c", "pw"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if got := f.backends.MeCalls(); got != 1 {
		t.Errorf("identity fetches = %d, want exactly 1 follow-up", got)
	}
	if u, ok := f.cache.Peek(); !ok || u.ID != "u1" {
		t.Errorf("identity = %+v, %v; want resolved before role routing", u, ok)
	}
	if got := f.boot.Status(); got != teamsync.StatusReady {
		t.Errorf("status = %v, want ready", got)
	}
}

func TestLogin_BadCredentialsSurfaceError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fake.WithAccount("a@b.c", "pw", teamsync.Identity{ID: "u1"}))

	err := f.boot.Login(ctx, "a@b.c", "wrong")
	if !errors.Is(err, teamsync.ErrInvalidCredential) {
		t.Fatalf("error = %v, want ErrInvalidCredential", err)
	}
	if f.creds.Has() {
		t.Error("credential stored after failed login")
	}
}

func TestLogout_ClearsEverythingEvenWhenServerFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		fake.WithAccount("a@b.c", "pw", teamsync.Identity{ID: "u1"}),
		fake.WithMemberships(membership("a", teamsync.RoleStaff)),
	)
	if err := f.boot.Login(ctx, "a@b.c", "pw"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	// Clearing is optimistic and local: a failed server logout must not
	// keep the session alive.
	f.backends.FailLogout(fmt.Errorf("revoke: %w", teamsync.ErrTransient))

	if err := f.boot.Logout(ctx); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if f.creds.Has() {
		t.Error("credential survived logout")
	}
	if len(f.teams.Teams()) != 0 {
		t.Error("team context survived logout")
	}
	if _, ok := f.cache.Peek(); ok {
		t.Error("identity cache survived logout")
	}
}

// gateAuth blocks CurrentUser until released, signalling once a fetch has
// begun.
type gateAuth struct {
	teamsync.AuthBackend
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateAuth) CurrentUser(ctx context.Context) (*teamsync.Identity, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.AuthBackend.CurrentUser(ctx)
}

func TestLogin_DuringInFlightRunBootstrapsNewSession(t *testing.T) {
	ctx := context.Background()
	backends := fake.NewBackends(
		fake.WithCurrentUser(teamsync.Identity{ID: "old"}),
		fake.WithAccount("a@b.c", "pw", teamsync.Identity{ID: "new"}),
		fake.WithMemberships(membership("t1", teamsync.RoleStaff)),
		fake.WithUserInLoginResponse(false),
	)
	gate := &gateAuth{AuthBackend: backends, started: make(chan struct{}), release: make(chan struct{})}

	kv := localstore.NewMemory()
	creds := credential.NewStore(kv)
	cache := identity.New(gate)
	teams := teamctx.NewStore(kv)
	client, err := teamsync.NewClient(teamsync.Config{BaseURL: "http://api.local"},
		teamsync.WithCredentialStore(creds),
		teamsync.WithIdentityCache(cache),
		teamsync.WithTeamContextStore(teams),
		teamsync.WithAuthBackend(gate),
		teamsync.WithTeamBackend(backends),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	boot := New(client)

	if err := creds.Set(ctx, teamsync.Credential{AccessToken: "old-at"}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}

	// A pass for the old session is in flight when the login arrives.
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = boot.Run(ctx)
	}()
	<-gate.started

	loginDone := make(chan error, 1)
	go func() { loginDone <- boot.Login(ctx, "a@b.c", "pw") }()

	close(gate.release)
	<-runDone

	if err := <-loginDone; err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if got := boot.Status(); got != teamsync.StatusReady {
		t.Errorf("status = %v, want ready", got)
	}
	if !creds.Has() {
		t.Error("credential missing; the new session was never bootstrapped")
	}
	if u, ok := cache.Peek(); !ok || u.ID != "new" {
		t.Errorf("Peek() = %v, %v, want the logged-in profile", u, ok)
	}
	if got := teams.Teams(); len(got) != 1 || got[0].Team.ID != "t1" {
		t.Errorf("Teams() = %+v, want the logged-in memberships", got)
	}
}

func TestRun_EmptyTeamListClearsContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fake.WithCurrentUser(teamsync.Identity{ID: "u1"}))
	f.seedCredential(t)

	// Stale context from a previous session; server now reports no teams.
	_ = f.teams.SetTeams(ctx, []teamsync.TeamMembership{membership("gone", teamsync.RoleStaff)})

	if err := f.boot.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if _, ok := f.teams.Active(); ok {
		t.Error("selection survived an authoritative empty team list")
	}
	if got := f.boot.Status(); got != teamsync.StatusReady {
		t.Errorf("status = %v, want ready", got)
	}
}
