// Package ginmw provides Gin HTTP middleware and handlers that wire the
// session core into a server-rendered dashboard shell.
//
// Navigation intents arrive as HTTP requests; the route guard decides per
// request whether the destination renders, redirects, or shows a neutral
// waiting state while bootstrap settles.
package ginmw

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	teamsync "github.com/performeplus/teamsync-go"
	"github.com/performeplus/teamsync-go/bootstrap"
	"github.com/performeplus/teamsync-go/roleroute"
	"github.com/performeplus/teamsync-go/routeguard"
)

// Context keys for storing session data in gin.Context.
const (
	KeyIdentity   = "teamsync_identity"
	KeyActiveTeam = "teamsync_active_team"
)

// waitingPage is the neutral state rendered while bootstrap has not
// settled, instead of a redirect that could flash the wrong screen.
const waitingPage = `<!DOCTYPE html>
<html><head><meta http-equiv="refresh" content="1"><title>Loading</title></head>
<body><p>Loading your session…</p></body></html>`

// Guard returns Gin middleware applying the route guard's decision to
// every request.
func Guard(g *routeguard.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := g.Decide(c.Request.URL.Path)
		switch d.Verdict {
		case routeguard.VerdictWait:
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(waitingPage))
			c.Abort()
		case routeguard.VerdictRedirectLogin, routeguard.VerdictRedirectDashboard:
			c.Redirect(http.StatusFound, d.Target)
			c.Abort()
		default:
			c.Next()
		}
	}
}

// Session returns Gin middleware that stores the resolved identity and
// active team in the request context for downstream handlers. Run it after
// Guard.
func Session(client *teamsync.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u, ok := client.Identity().Peek(); ok {
			c.Set(KeyIdentity, u)
		}
		if m, ok := client.Teams().Active(); ok {
			c.Set(KeyActiveTeam, m)
		}
		c.Next()
	}
}

// RoleLanding returns the handler for the dashboard entry screen: it
// resolves the role-specific landing screen and redirects there.
func RoleLanding(r *roleroute.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		dest, err := r.Destination()
		switch {
		case errors.Is(err, roleroute.ErrNotReady):
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(waitingPage))
		case errors.Is(err, teamsync.ErrUnroutableRole):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no landing screen for your role"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "routing failed"})
		default:
			c.Redirect(http.StatusFound, dest)
		}
	}
}

// loginForm is the credentials payload accepted by the Login handler.
type loginForm struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login returns a JSON handler that authenticates and bootstraps the new
// session.
func Login(b *bootstrap.Bootstrapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form loginForm
		if err := c.ShouldBindJSON(&form); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		err := b.Login(c.Request.Context(), form.Email, form.Password)
		switch {
		case errors.Is(err, teamsync.ErrInvalidCredential):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		case errors.Is(err, teamsync.ErrTransient):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable, try again"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		default:
			c.JSON(http.StatusOK, gin.H{"status": b.Status().String()})
		}
	}
}

// Logout returns a JSON handler that tears the session down. Local state
// is cleared even when the server call fails.
func Logout(b *bootstrap.Bootstrapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := b.Logout(c.Request.Context()); err != nil {
			c.JSON(http.StatusOK, gin.H{"status": "logged_out", "warning": "local state cleared, server cleanup incomplete"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
	}
}

// Retry returns a JSON handler re-running a failed bootstrap.
func Retry(b *bootstrap.Bootstrapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := b.Retry(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": b.Status().String(), "error": "bootstrap failed again"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": b.Status().String()})
	}
}

// --- Context helpers ---

// GetIdentity returns the resolved identity from the Gin context.
func GetIdentity(c *gin.Context) *teamsync.Identity {
	v, _ := c.Get(KeyIdentity)
	u, _ := v.(*teamsync.Identity)
	return u
}

// GetActiveTeam returns the active team membership from the Gin context.
func GetActiveTeam(c *gin.Context) (teamsync.TeamMembership, bool) {
	v, ok := c.Get(KeyActiveTeam)
	if !ok {
		return teamsync.TeamMembership{}, false
	}
	m, ok := v.(teamsync.TeamMembership)
	return m, ok
}
