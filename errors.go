package teamsync

import "errors"

// Sentinel errors shared across packages. Backends and stores wrap these so
// callers can classify failures with errors.Is regardless of transport.
var (
	// ErrNoCredential indicates an operation that requires a session was
	// attempted without one.
	ErrNoCredential = errors.New("teamsync: no credential present")

	// ErrInvalidCredential indicates the remote service rejected the stored
	// credential (401/403). This is a normal "session expired" outcome,
	// recoverable by re-login, never a crash.
	ErrInvalidCredential = errors.New("teamsync: credential rejected by server")

	// ErrTransient indicates a temporary transport failure (timeout, 5xx).
	// The stored credential is preserved and the operation may be retried.
	ErrTransient = errors.New("teamsync: transient network failure")

	// ErrNotFound indicates a referenced entity is absent, e.g. selecting a
	// team that is not in the current team list.
	ErrNotFound = errors.New("teamsync: not found")

	// ErrUnroutableRole indicates the active membership carries a role with
	// no landing screen in the routing table.
	ErrUnroutableRole = errors.New("teamsync: no route for role")
)
