package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	SessionIDKey contextKey = "session_id"
	UserRoleKey  contextKey = "user_role"
)

var (
	ErrMissingToken = errors.New("missing authorization header")
	ErrBadFormat    = errors.New("invalid authorization format")
)

// BearerToken extracts the token from the Authorization header. Browsers
// cannot set headers on a WebSocket handshake, so the access_token query
// parameter is accepted for upgrade requests.
func BearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if strings.EqualFold(c.Request().Header.Get("Upgrade"), "websocket") {
			if tok := c.QueryParam("access_token"); tok != "" {
				return tok, nil
			}
		}
		return "", ErrMissingToken
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", ErrBadFormat
	}
	return parts[1], nil
}

// WithIdentity stores the resolved caller on the request context and on the
// echo context for handlers and the access log.
func WithIdentity(c echo.Context, userID, sessionID, role string) {
	c.Set(string(UserIDKey), userID)
	c.Set(string(UserRoleKey), role)
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, SessionIDKey, sessionID)
	ctx = context.WithValue(ctx, UserRoleKey, role)
	c.SetRequest(c.Request().WithContext(ctx))
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(SessionIDKey).(string)
	return sid
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(UserRoleKey).(string)
	return role
}
