package identity

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carepoint/portal/internal/domain/session"
	"github.com/carepoint/portal/internal/platform/auth"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrDoctorLinked       = errors.New("doctor already linked to another account")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionRevoked     = errors.New("session revoked or expired")
)

// User is a portal account with its profile metadata.
type User struct {
	ID           uuid.UUID    `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Role         session.Role `json:"role"`
	// DoctorID links a doctor account to its doctor catalog entry.
	DoctorID  string    `json:"doctor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// storedUser is the persisted form; PasswordHash is excluded from User's JSON.
type storedUser struct {
	User
	PasswordHash string `json:"password_hash"`
}

type SignUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	DoctorID  string `json:"doctor_id"`
}

func (r *SignUpRequest) Validate() error {
	r.Email = normalizeEmail(r.Email)
	if _, err := mail.ParseAddress(r.Email); err != nil || r.Email == "" {
		return fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	if len(r.Password) < auth.MinPasswordLength {
		return fmt.Errorf("%w: %v", ErrValidation, auth.ErrPasswordTooShort)
	}
	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return fmt.Errorf("%w: first_name and last_name are required", ErrValidation)
	}
	role, err := session.ParseRole(r.Role)
	if err != nil {
		return fmt.Errorf("%w: role must be patient or doctor", ErrValidation)
	}
	r.DoctorID = strings.TrimSpace(r.DoctorID)
	if role == session.RoleDoctor && r.DoctorID == "" {
		return fmt.Errorf("%w: doctor_id is required for doctor accounts", ErrValidation)
	}
	return nil
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionRecord is the server-side record behind a session token.
type SessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

func (s *SessionRecord) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
