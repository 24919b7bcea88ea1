// Package teamsync provides a framework-agnostic Go SDK for session and
// team-context synchronization against the PerformePlus API.
//
// The SDK defines contracts for credential storage, identity caching, team
// context reconciliation and the remote backends. Concrete implementations
// are injected via Option functions, making the root package independent of
// any specific transport or storage engine.
//
// Example usage with the HTTP backend and sqlite persistence:
//
//	kv, err := localstore.OpenSQLite("teamsync.db")
//	api := remote.NewClient("https://api.performeplus.example")
//	client, err := teamsync.NewClient(
//	    teamsync.Config{BaseURL: "https://api.performeplus.example"},
//	    teamsync.WithCredentialStore(credential.NewStore(kv)),
//	    teamsync.WithTeamContextStore(teamctx.NewStore(kv)),
//	    teamsync.WithAuthBackend(api),
//	    teamsync.WithTeamBackend(api),
//	)
package teamsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Client is the main entry point. Store and backend implementations are
// injected via Option functions.
type Client struct {
	config   Config
	logger   *slog.Logger
	creds    CredentialStore
	identity IdentityCache
	teams    TeamContextStore
	auth     AuthBackend
	teamsAPI TeamBackend
}

// Config holds connection and navigation configuration.
type Config struct {
	// BaseURL is the address of the PerformePlus API.
	BaseURL string

	// HTTPTimeout bounds each request to the remote service.
	// Default: 10 seconds.
	HTTPTimeout time.Duration

	// PublicPaths are navigation roots reachable without a credential.
	// A path is public when it equals a root or extends it across a "/"
	// boundary. Default: "/", "/login", "/register", "/forgot-password",
	// "/health".
	PublicPaths []string

	// LoginPath is where unauthenticated visitors of protected screens are
	// sent. Default: "/login".
	LoginPath string

	// DashboardPath is the authenticated entry screen. Default: "/dashboard".
	DashboardPath string
}

// DefaultHTTPTimeout bounds remote calls when Config.HTTPTimeout is unset.
const DefaultHTTPTimeout = 10 * time.Second

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithCredentialStore sets the credential store implementation.
func WithCredentialStore(s CredentialStore) Option {
	return func(c *Client) { c.creds = s }
}

// WithIdentityCache sets the identity cache implementation.
func WithIdentityCache(ic IdentityCache) Option {
	return func(c *Client) { c.identity = ic }
}

// WithTeamContextStore sets the team context store implementation.
func WithTeamContextStore(s TeamContextStore) Option {
	return func(c *Client) { c.teams = s }
}

// WithAuthBackend sets the authentication backend implementation.
func WithAuthBackend(b AuthBackend) Option {
	return func(c *Client) { c.auth = b }
}

// WithTeamBackend sets the team membership backend implementation.
func WithTeamBackend(b TeamBackend) Option {
	return func(c *Client) { c.teamsAPI = b }
}

// NewClient creates a new teamsync client with the given configuration and
// options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.DashboardPath == "" {
		cfg.DashboardPath = "/dashboard"
	}
	if len(cfg.PublicPaths) == 0 {
		cfg.PublicPaths = []string{"/", "/login", "/register", "/forgot-password", "/health"}
	}

	c := &Client{config: cfg}
	for _, o := range opts {
		o(c)
	}
	if cfg.BaseURL == "" && (c.auth == nil || c.teamsAPI == nil) {
		return nil, fmt.Errorf("teamsync: BaseURL is required unless both backends are injected")
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the configured logger, or a discard logger when unset.
func (c *Client) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Credentials returns the credential store, or nil if not configured.
func (c *Client) Credentials() CredentialStore { return c.creds }

// Identity returns the identity cache, or nil if not configured.
func (c *Client) Identity() IdentityCache { return c.identity }

// Teams returns the team context store, or nil if not configured.
func (c *Client) Teams() TeamContextStore { return c.teams }

// Auth returns the authentication backend, or nil if not configured.
func (c *Client) Auth() AuthBackend { return c.auth }

// TeamsAPI returns the team membership backend, or nil if not configured.
func (c *Client) TeamsAPI() TeamBackend { return c.teamsAPI }

// Load rehydrates the persisted stores. Call once at process start, before
// running the bootstrapper.
func (c *Client) Load(ctx context.Context) error {
	type loader interface {
		Load(ctx context.Context) error
	}
	for _, s := range []any{c.creds, c.teams} {
		if l, ok := s.(loader); ok && l != nil {
			if err := l.Load(ctx); err != nil {
				return fmt.Errorf("teamsync: load persisted state: %w", err)
			}
		}
	}
	return nil
}

// Close releases all resources held by the client.
// Any injected store or backend that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []any{c.creds, c.identity, c.teams, c.auth, c.teamsAPI}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
