// Package teamctx provides the TeamContextStore implementation: the user's
// team list and active selection, persisted across reloads.
//
// The store never touches the network. The session bootstrapper is the only
// component that writes it from remote data; explicit user switches go
// through SetActive.
package teamctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	teamsync "github.com/performeplus/teamsync-go"
	"github.com/performeplus/teamsync-go/localstore"
)

// StorageKey is the fixed identifier the team context is persisted under.
const StorageKey = "teamsync.teamctx"

// persisted is the durable representation: the list plus the selected team
// id. The membership payload is re-derived from the list on load so a stale
// selection can never outlive its team.
type persisted struct {
	Teams        []teamsync.TeamMembership `json:"teams"`
	ActiveTeamID string                    `json:"activeTeamId,omitempty"`
}

// Store implements teamsync.TeamContextStore over a localstore backend.
type Store struct {
	backend localstore.Store
	logger  *slog.Logger

	mu      sync.RWMutex
	teams   []teamsync.TeamMembership
	active  *teamsync.TeamMembership
	subs    map[int]func(teamsync.TeamSnapshot)
	nextSub int
}

// compile-time check
var _ teamsync.TeamContextStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a team context store persisting through backend.
func NewStore(backend localstore.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.New(slog.DiscardHandler),
		subs:    make(map[int]func(teamsync.TeamSnapshot)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load rehydrates the team context from persisted storage, re-validating
// the selection against the loaded list.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.backend.Get(ctx, StorageKey)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("teamsync/teamctx: load: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		s.logger.Warn("discarding corrupt persisted team context", "error", err)
		return s.Clear(ctx)
	}

	s.mu.Lock()
	s.teams = p.Teams
	s.active = reconcile(p.Teams, p.ActiveTeamID)
	s.mu.Unlock()
	return nil
}

// SetTeams replaces the team list and re-validates the active selection:
//   - empty list: selection cleared
//   - selected team absent from the new list: first entry selected
//   - selected team still present: selection kept, membership payload
//     written through (role/permissions may have changed server-side)
func (s *Store) SetTeams(ctx context.Context, list []teamsync.TeamMembership) error {
	s.mu.Lock()
	prevID := ""
	if s.active != nil {
		prevID = s.active.Team.ID
	}
	s.teams = list
	s.active = reconcile(list, prevID)
	snap := s.snapshotLocked()
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	// The in-memory state already changed; subscribers hear about it even
	// when persistence fails, so observers never lag the live store.
	persistErr := s.persist(ctx, snap)
	for _, fn := range subs {
		fn(snap)
	}
	return persistErr
}

// SetActive selects a team from the current list by id.
func (s *Store) SetActive(ctx context.Context, teamID string) error {
	s.mu.Lock()
	m := findTeam(s.teams, teamID)
	if m == nil {
		s.mu.Unlock()
		return fmt.Errorf("teamsync/teamctx: team %q not in current list: %w", teamID, teamsync.ErrNotFound)
	}
	s.active = m
	snap := s.snapshotLocked()
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	persistErr := s.persist(ctx, snap)
	for _, fn := range subs {
		fn(snap)
	}
	return persistErr
}

// Teams returns a copy of the current team list.
func (s *Store) Teams() []teamsync.TeamMembership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]teamsync.TeamMembership, len(s.teams))
	copy(out, s.teams)
	return out
}

// Active returns the active membership, if any.
func (s *Store) Active() (teamsync.TeamMembership, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return teamsync.TeamMembership{}, false
	}
	return *s.active, true
}

// Clear empties both the list and the selection, removing persisted state.
func (s *Store) Clear(ctx context.Context) error {
	delErr := s.backend.Delete(ctx, StorageKey)

	s.mu.Lock()
	s.teams = nil
	s.active = nil
	snap := s.snapshotLocked()
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}

	if delErr != nil {
		return fmt.Errorf("teamsync/teamctx: remove persisted context: %w", delErr)
	}
	return nil
}

// Subscribe registers a change listener. Listeners run synchronously after
// each mutation, outside the store lock.
func (s *Store) Subscribe(fn func(teamsync.TeamSnapshot)) (cancel func()) {
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

// persist writes the snapshot through the backend.
func (s *Store) persist(ctx context.Context, snap teamsync.TeamSnapshot) error {
	p := persisted{Teams: snap.Teams}
	if snap.Active != nil {
		p.ActiveTeamID = snap.Active.Team.ID
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("teamsync/teamctx: encode: %w", err)
	}
	if err := s.backend.Put(ctx, StorageKey, raw); err != nil {
		return fmt.Errorf("teamsync/teamctx: persist: %w", err)
	}
	return nil
}

// snapshotLocked builds an immutable view. Caller must hold s.mu.
func (s *Store) snapshotLocked() teamsync.TeamSnapshot {
	teams := make([]teamsync.TeamMembership, len(s.teams))
	copy(teams, s.teams)
	snap := teamsync.TeamSnapshot{Teams: teams}
	if s.active != nil {
		m := *s.active
		snap.Active = &m
	}
	return snap
}

// snapshotSubsLocked copies subscribers. Caller must hold s.mu.
func (s *Store) snapshotSubsLocked() []func(teamsync.TeamSnapshot) {
	out := make([]func(teamsync.TeamSnapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// reconcile resolves the active selection against a team list: nil for an
// empty list, the membership matching prevTeamID if still present, else the
// first entry. The returned pointer is into list, so a kept selection picks
// up the refreshed membership payload.
func reconcile(list []teamsync.TeamMembership, prevTeamID string) *teamsync.TeamMembership {
	if len(list) == 0 {
		return nil
	}
	if m := findTeam(list, prevTeamID); m != nil {
		return m
	}
	return &list[0]
}

// findTeam returns the membership whose team id matches, or nil.
func findTeam(list []teamsync.TeamMembership, teamID string) *teamsync.TeamMembership {
	if teamID == "" {
		return nil
	}
	for i := range list {
		if list[i].Team.ID == teamID {
			return &list[i]
		}
	}
	return nil
}
