// Package remote provides the HTTP backend for the PerformePlus API,
// implementing teamsync.AuthBackend and teamsync.TeamBackend.
//
// Usage:
//
//	api := remote.NewClient("https://api.performeplus.example",
//	    remote.WithTokenSource(credStore))
//	client, err := teamsync.NewClient(cfg,
//	    teamsync.WithAuthBackend(api),
//	    teamsync.WithTeamBackend(api),
//	    ...)
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	teamsync "github.com/performeplus/teamsync-go"
)

// TokenSource supplies the bearer token for authenticated requests.
// Implemented by credential.Store.
type TokenSource interface {
	Get() (teamsync.Credential, bool)
}

// Client talks to the PerformePlus REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// compile-time checks
var (
	_ teamsync.AuthBackend = (*Client)(nil)
	_ teamsync.TeamBackend = (*Client)(nil)
)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Client) { r.httpClient = c }
}

// WithTokenSource sets the supplier of the bearer token for authenticated
// endpoints.
func WithTokenSource(ts TokenSource) Option {
	return func(r *Client) { r.tokens = ts }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Client) { r.logger = l }
}

// NewClient creates an API client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Wire types

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string             `json:"access"`
	Refresh string             `json:"refresh"`
	User    *teamsync.Identity `json:"user,omitempty"`
}

// Login exchanges email/password for a credential. The user profile is
// passed through when present; callers handle its absence.
func (c *Client) Login(ctx context.Context, email, password string) (*teamsync.LoginResult, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &resp, false)
	if err != nil {
		return nil, fmt.Errorf("teamsync/remote: login: %w", err)
	}
	if resp.Access == "" {
		return nil, fmt.Errorf("teamsync/remote: login: empty access token in response")
	}
	return &teamsync.LoginResult{
		Credential: teamsync.Credential{AccessToken: resp.Access, RefreshToken: resp.Refresh},
		User:       resp.User,
	}, nil
}

// Logout invalidates the session server-side.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, true); err != nil {
		return fmt.Errorf("teamsync/remote: logout: %w", err)
	}
	return nil
}

// CurrentUser fetches the authenticated user's profile.
func (c *Client) CurrentUser(ctx context.Context) (*teamsync.Identity, error) {
	var u teamsync.Identity
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u, true); err != nil {
		return nil, fmt.Errorf("teamsync/remote: current user: %w", err)
	}
	return &u, nil
}

// ListMine fetches the user's team memberships in server order.
func (c *Client) ListMine(ctx context.Context) ([]teamsync.TeamMembership, error) {
	var list []teamsync.TeamMembership
	if err := c.do(ctx, http.MethodGet, "/teams/mine", nil, &list, true); err != nil {
		return nil, fmt.Errorf("teamsync/remote: list teams: %w", err)
	}
	return list, nil
}

// do performs one JSON request/response cycle, classifying failures into
// the shared error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if c.tokens == nil {
			return teamsync.ErrNoCredential
		}
		cred, ok := c.tokens.Get()
		if !ok {
			return teamsync.ErrNoCredential
		}
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%s %s timed out: %w", method, path, teamsync.ErrTransient)
		}
		return fmt.Errorf("%s %s: %v: %w", method, path, err, teamsync.ErrTransient)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyStatus(resp.StatusCode, method, path, resp.Body); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy.
func classifyStatus(status int, method, path string, body io.Reader) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s %s returned %d: %w", method, path, status, teamsync.ErrInvalidCredential)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%s %s returned %d: %w", method, path, status, teamsync.ErrTransient)
	default:
		raw, _ := io.ReadAll(io.LimitReader(body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", method, path, status, strings.TrimSpace(string(raw)))
	}
}

// isTimeout reports whether a transport error is a timeout.
func isTimeout(err error) bool {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
