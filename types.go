package teamsync

import "time"

// Credential is the access/refresh token pair proving an authenticated
// session. The zero value means "no session".
type Credential struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// IsZero reports whether the credential is absent.
func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Identity is the authenticated user's profile as reported by the remote
// service. Once fetched it is treated as immutable until explicitly
// invalidated.
type Identity struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Role             Role      `json:"role"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	CreatedAt        time.Time `json:"createdAt,omitempty"`
}

// Role is a membership role within a team.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleStaff  Role = "STAFF"
	RolePlayer Role = "PLAYER"
)

// Team represents one team the user belongs to.
type Team struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Sport   string `json:"sport,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// TeamMembership links the current user to exactly one team.
type TeamMembership struct {
	ID          string    `json:"id"`
	Team        Team      `json:"team"`
	Role        Role      `json:"role"`
	Permissions []string  `json:"permissions,omitempty"`
	JoinedAt    time.Time `json:"joinedAt,omitempty"`
	Active      bool      `json:"active"`
}

// TeamSnapshot is an immutable view of the team context: the full team list
// and the active selection, if any.
type TeamSnapshot struct {
	Teams  []TeamMembership
	Active *TeamMembership
}

// LoginResult is the outcome of a successful login call. User may be nil:
// some deployments return only the token pair and expect a follow-up
// identity fetch.
type LoginResult struct {
	Credential Credential
	User       *Identity
}

// BootstrapStatus tracks the startup sequence that resolves
// credential → identity → teams. It is terminal at StatusReady or
// StatusFailed for the current process lifetime.
type BootstrapStatus int

const (
	StatusUnstarted BootstrapStatus = iota
	StatusCheckingCredential
	StatusLoadingIdentity
	StatusLoadingTeams
	StatusReady
	StatusFailed
)

// String returns the status name used in logs and metric labels.
func (s BootstrapStatus) String() string {
	switch s {
	case StatusUnstarted:
		return "unstarted"
	case StatusCheckingCredential:
		return "checking_credential"
	case StatusLoadingIdentity:
		return "loading_identity"
	case StatusLoadingTeams:
		return "loading_teams"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Settled reports whether the bootstrap has reached a terminal state.
func (s BootstrapStatus) Settled() bool {
	return s == StatusReady || s == StatusFailed
}
