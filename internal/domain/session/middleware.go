package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carepoint/portal/internal/platform/auth"
)

// Principal is a verified, unrevoked session token.
type Principal struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// Authenticator verifies a session token against the identity provider.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Principal, error)
}

// Gate applies Evaluate to HTTP requests.
type Gate struct {
	auth     Authenticator
	sessions *Registry
	wait     time.Duration
	observe  func(Decision)
}

// NewGate builds a gate. wait bounds how long a request may wait for a
// pending role lookup; observe, if non-nil, sees every decision.
func NewGate(a Authenticator, sessions *Registry, wait time.Duration, observe func(Decision)) *Gate {
	if observe == nil {
		observe = func(Decision) {}
	}
	return &Gate{auth: a, sessions: sessions, wait: wait, observe: observe}
}

// Sessions exposes the registry the gate resolves against.
func (g *Gate) Sessions() *Registry { return g.sessions }

// Current resolves the request's session. A missing or invalid token
// resolves to unauthenticated without error.
func (g *Gate) Current(c echo.Context) (Principal, Session) {
	token, err := auth.BearerToken(c)
	if err != nil {
		return Principal{}, Unauthenticated()
	}
	ctx := c.Request().Context()
	p, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		return Principal{}, Unauthenticated()
	}

	h, ok := g.sessions.Ensure(p.SessionID, p.UserID, p.ExpiresAt)
	if !ok {
		return Principal{}, Unauthenticated()
	}
	ctx, cancel := context.WithTimeout(ctx, g.wait)
	defer cancel()
	return p, h.Resolve(ctx)
}

// Require admits requests whose session satisfies role. An empty role
// admits any signed-in user.
func (g *Gate) Require(role Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, s := g.Current(c)
			d := Evaluate(s, role)
			g.observe(d)

			switch d.Kind {
			case DecisionAllow:
				auth.WithIdentity(c, d.UserID, p.SessionID, string(d.Role))
				return next(c)
			case DecisionRedirectHome:
				return redirectError(http.StatusForbidden, "this page is not available for your role", d.Target)
			default:
				return redirectError(http.StatusUnauthorized, "authentication required", LoginPath)
			}
		}
	}
}

func redirectError(code int, msg, target string) *echo.HTTPError {
	return echo.NewHTTPError(code, map[string]string{"message": msg, "redirect": target})
}

// Caller returns the identity a Require middleware stored for this request.
func Caller(c echo.Context) (userID string, role Role) {
	ctx := c.Request().Context()
	return auth.UserIDFromContext(ctx), Role(auth.RoleFromContext(ctx))
}

// redirectTarget extracts the redirect path from an error returned by
// Require, if it carries one.
func redirectTarget(err error) (string, bool) {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return "", false
	}
	m, ok := he.Message.(map[string]string)
	if !ok {
		return "", false
	}
	target, ok := m["redirect"]
	return target, ok
}
