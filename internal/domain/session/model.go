// Package session resolves who is signed in and decides whether a view may
// render, must redirect to login, or must redirect to the caller's own home.
package session

import (
	"errors"
	"fmt"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type Status string

const (
	StatusUnknown         Status = "unknown"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// Session is the sign-in state of one browser session. UserID and Role are
// only set when Status is authenticated.
type Session struct {
	UserID string `json:"user_id,omitempty"`
	Role   Role   `json:"role,omitempty"`
	Status Status `json:"status"`
}

func Unknown() Session         { return Session{Status: StatusUnknown} }
func Unauthenticated() Session { return Session{Status: StatusUnauthenticated} }

func Authenticated(userID string, role Role) Session {
	return Session{UserID: userID, Role: role, Status: StatusAuthenticated}
}

var ErrAuthResolution = errors.New("auth resolution failed")

// AuthResolutionError reports a profile lookup that failed or timed out.
// The session resolves to unauthenticated when it occurs.
type AuthResolutionError struct {
	UserID string
	Err    error
}

func (e *AuthResolutionError) Error() string {
	return fmt.Sprintf("resolve role for %s: %v", e.UserID, e.Err)
}

func (e *AuthResolutionError) Unwrap() error { return e.Err }

func (e *AuthResolutionError) Is(target error) bool { return target == ErrAuthResolution }
