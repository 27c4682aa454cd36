// Package auth guards the service routes: an API key for the profile API,
// an admin token for privileged schema operations and basic auth backed by
// sessions for the dashboard.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/developer-mesh/style-guide-service/pkg/config"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

// Common errors
var (
	ErrNoCredentials      = errors.New("no credentials provided")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotConfigured      = errors.New("credential not configured")
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session expired")
)

// Header and cookie names
const (
	APIKeyHeader     = "X-API-Key"
	AdminTokenHeader = "X-Init-Token"
	AdminTokenQuery  = "token"
	SessionCookie    = "auth"
)

// Gateway holds the expected credentials and checks requests against them.
// The Check methods do not write to the response.
type Gateway struct {
	cfg      config.AuthConfig
	sessions SessionStore
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewGateway creates a gateway. sessions may be nil when the dashboard is not served.
func NewGateway(cfg config.AuthConfig, sessions SessionStore, logger observability.Logger, metrics observability.MetricsClient) *Gateway {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Gateway{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger.WithPrefix("auth"),
		metrics:  metrics,
	}
}

// secureCompare reports whether given equals expected in constant time.
// An empty expected value never matches.
func secureCompare(given, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}

// CheckAPIKey accepts X-API-Key or Authorization: Bearer
func (g *Gateway) CheckAPIKey(r *http.Request) error {
	if g.cfg.APIKey == "" {
		return ErrNotConfigured
	}

	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			key = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if key == "" {
		return ErrNoCredentials
	}
	if !secureCompare(key, g.cfg.APIKey) {
		return ErrInvalidCredentials
	}
	return nil
}

// CheckAdminToken accepts the X-Init-Token header. The token query parameter
// is only read when AllowQueryToken is set.
func (g *Gateway) CheckAdminToken(r *http.Request) error {
	token := r.Header.Get(AdminTokenHeader)
	if token == "" && g.cfg.AllowQueryToken {
		token = r.URL.Query().Get(AdminTokenQuery)
	}
	return g.VerifyAdminToken(token)
}

// VerifyAdminToken compares token with the configured admin token
func (g *Gateway) VerifyAdminToken(token string) error {
	if g.cfg.AdminToken == "" {
		return ErrNotConfigured
	}
	if token == "" {
		return ErrNoCredentials
	}
	if !secureCompare(token, g.cfg.AdminToken) {
		return ErrInvalidCredentials
	}
	return nil
}

// VerifyDashboardCredentials checks a username and password pair. Both
// halves are compared so the time taken does not reveal which one failed.
func (g *Gateway) VerifyDashboardCredentials(username, password string) error {
	dash := g.cfg.Dashboard
	if dash.Username == "" || dash.Password == "" {
		return ErrNotConfigured
	}
	userOK := secureCompare(username, dash.Username)
	passOK := secureCompare(password, dash.Password)
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

// DashboardIdentity is the result of a successful dashboard check
type DashboardIdentity struct {
	Username string
	// FromHeader is set when basic auth was used rather than a session
	FromHeader bool
	// HasSession is set when the request carries a valid session cookie
	HasSession bool
}

// CheckDashboard accepts basic auth credentials or a session cookie
func (g *Gateway) CheckDashboard(ctx context.Context, r *http.Request) (*DashboardIdentity, error) {
	if username, password, ok := r.BasicAuth(); ok {
		if err := g.VerifyDashboardCredentials(username, password); err != nil {
			return nil, err
		}
		_, sessionErr := g.sessionUser(ctx, r)
		return &DashboardIdentity{Username: username, FromHeader: true, HasSession: sessionErr == nil}, nil
	}

	username, err := g.sessionUser(ctx, r)
	if err != nil {
		return nil, err
	}
	return &DashboardIdentity{Username: username, HasSession: true}, nil
}

// sessionUser validates the session cookie of r
func (g *Gateway) sessionUser(ctx context.Context, r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return "", ErrNoCredentials
	}
	if g.sessions == nil {
		return "", ErrInvalidSession
	}
	username, err := g.sessions.Validate(ctx, cookie.Value)
	if err != nil {
		return "", err
	}
	if !secureCompare(username, g.cfg.Dashboard.Username) {
		return "", ErrInvalidSession
	}
	return username, nil
}

// Login verifies credentials and issues a session token
func (g *Gateway) Login(ctx context.Context, username, password string) (string, error) {
	if err := g.VerifyDashboardCredentials(username, password); err != nil {
		g.recordFailure("login", err)
		return "", err
	}
	if g.sessions == nil {
		return "", ErrNotConfigured
	}
	return g.sessions.Issue(ctx, username)
}

// Logout revokes a session token. Stores that cannot revoke ignore it.
func (g *Gateway) Logout(ctx context.Context, token string) error {
	if g.sessions == nil || token == "" {
		return nil
	}
	return g.sessions.Revoke(ctx, token)
}

// Sessions returns the session store, if any
func (g *Gateway) Sessions() SessionStore {
	return g.sessions
}

func (g *Gateway) recordFailure(guard string, err error) {
	reason := "invalid"
	switch {
	case errors.Is(err, ErrNoCredentials):
		reason = "missing"
	case errors.Is(err, ErrNotConfigured):
		reason = "not_configured"
	case errors.Is(err, ErrSessionExpired):
		reason = "expired"
	}
	g.metrics.RecordCounter("auth_failures_total", 1, map[string]string{
		"guard":  guard,
		"reason": reason,
	})
}
