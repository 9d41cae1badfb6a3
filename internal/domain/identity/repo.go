package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *SessionRecord) error
	Get(ctx context.Context, id string) (*SessionRecord, error)
	Revoke(ctx context.Context, id string) error
}
