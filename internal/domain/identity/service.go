package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepoint/portal/internal/domain/session"
	"github.com/carepoint/portal/internal/platform/auth"
)

// Notifier receives sign-in and sign-out events for a session.
type Notifier interface {
	SignedIn(sessionID, userID string, expiresAt time.Time)
	SignedOut(sessionID string)
}

// DoctorCatalog confirms that a doctor_id names a catalog entry.
type DoctorCatalog interface {
	HasDoctor(ctx context.Context, doctorID string) bool
}

type DoctorCatalogFunc func(ctx context.Context, doctorID string) bool

func (f DoctorCatalogFunc) HasDoctor(ctx context.Context, doctorID string) bool {
	return f(ctx, doctorID)
}

// Service is the portal's identity provider and profile lookup.
type Service struct {
	users    UserRepository
	sessions SessionStore
	tokens   *auth.TokenIssuer
	doctors  DoctorCatalog
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(users UserRepository, sessions SessionStore, tokens *auth.TokenIssuer, doctors DoctorCatalog, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		doctors:  doctors,
		notifier: nopNotifier{},
		logger:   logger.With().Str("component", "identity").Logger(),
		now:      time.Now,
	}
}

// SetNotifier wires the session registry. The registry itself needs the
// service for role lookups, so it is attached after construction.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

type nopNotifier struct{}

func (nopNotifier) SignedIn(string, string, time.Time) {}
func (nopNotifier) SignedOut(string)                  {}

// SignInResult is returned to the client after a successful sign-in.
type SignInResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
	User      *User     `json:"user"`
}

func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	role, _ := session.ParseRole(req.Role)
	if role == session.RoleDoctor && !s.doctors.HasDoctor(ctx, req.DoctorID) {
		return nil, fmt.Errorf("%w: doctor_id %q is not in the doctor catalog", ErrValidation, req.DoctorID)
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if role == session.RoleDoctor {
		u.DoctorID = req.DoctorID
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user signed up")
	return u, nil
}

// SignIn checks credentials, records a session and announces SIGNED_IN.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResult, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	sid := uuid.NewString()
	token, exp, err := s.tokens.Issue(u.ID.String(), sid)
	if err != nil {
		return nil, err
	}
	rec := &SessionRecord{ID: sid, UserID: u.ID.String(), CreatedAt: s.now().UTC(), ExpiresAt: exp}
	if err := s.sessions.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.notifier.SignedIn(sid, u.ID.String(), exp)
	s.logger.Info().Str("user_id", u.ID.String()).Str("session_id", sid).Msg("signed in")
	return &SignInResult{Token: token, ExpiresAt: exp, SessionID: sid, User: u}, nil
}

// SignOut revokes the session and announces SIGNED_OUT. The announcement is
// made even if the revoke fails so open views still leave.
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	err := s.sessions.Revoke(ctx, sessionID)
	s.notifier.SignedOut(sessionID)
	if err != nil && !errors.Is(err, ErrSessionRevoked) {
		return fmt.Errorf("sign out: %w", err)
	}
	s.logger.Info().Str("session_id", sessionID).Msg("signed out")
	return nil
}

// Authenticate verifies a token and its server-side session.
func (s *Service) Authenticate(ctx context.Context, token string) (session.Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return session.Principal{}, err
	}
	rec, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return session.Principal{}, err
	}
	if !rec.Active(s.now()) || rec.UserID != claims.Subject {
		return session.Principal{}, ErrSessionRevoked
	}
	return session.Principal{UserID: claims.Subject, SessionID: claims.SessionID, ExpiresAt: rec.ExpiresAt}, nil
}

// LookupRole is the profile lookup the session holder runs after SIGNED_IN.
func (s *Service) LookupRole(ctx context.Context, userID string) (session.Role, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.users.GetByID(ctx, id)
}

// DoctorIDFor returns the catalog entry linked to a doctor account, or an
// empty string for any other account.
func (s *Service) DoctorIDFor(ctx context.Context, userID string) (string, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.Role != session.RoleDoctor {
		return "", nil
	}
	return u.DoctorID, nil
}

// IsPatient reports whether userID is a registered patient account.
func (s *Service) IsPatient(ctx context.Context, userID string) (bool, error) {
	u, err := s.Profile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Role == session.RolePatient, nil
}
