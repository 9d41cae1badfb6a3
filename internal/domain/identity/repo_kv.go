package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carepoint/portal/internal/platform/kv"
)

// -- Users over kv --

type userRepoKV struct {
	store kv.Store
}

// NewUserRepoKV stores users as JSON documents with an email index key.
func NewUserRepoKV(store kv.Store) UserRepository {
	return &userRepoKV{store: store}
}

func userKey(id uuid.UUID) string      { return "users:id:" + id.String() }
func emailKey(email string) string    { return "users:email:" + email }
func doctorKey(doctorID string) string { return "users:doctor:" + doctorID }

func (r *userRepoKV) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = normalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	// Claiming an index key with revision 0 only succeeds if it is unused.
	if _, err := r.store.CompareAndSwap(ctx, emailKey(u.Email), u.ID.String(), 0); err != nil {
		if errors.Is(err, kv.ErrRevisionMismatch) {
			return ErrEmailTaken
		}
		return fmt.Errorf("user create: %w", err)
	}

	release := func() {
		_ = r.store.Delete(ctx, emailKey(u.Email))
		if u.DoctorID != "" {
			_ = r.store.Delete(ctx, doctorKey(u.DoctorID))
		}
	}
	if u.DoctorID != "" {
		if _, err := r.store.CompareAndSwap(ctx, doctorKey(u.DoctorID), u.ID.String(), 0); err != nil {
			_ = r.store.Delete(ctx, emailKey(u.Email))
			if errors.Is(err, kv.ErrRevisionMismatch) {
				return ErrDoctorLinked
			}
			return fmt.Errorf("user create: %w", err)
		}
	}

	data, err := json.Marshal(storedUser{User: *u, PasswordHash: u.PasswordHash})
	if err != nil {
		release()
		return fmt.Errorf("user create: %w", err)
	}
	if _, err := r.store.Set(ctx, userKey(u.ID), string(data)); err != nil {
		release()
		return fmt.Errorf("user create: %w", err)
	}
	return nil
}

func (r *userRepoKV) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	raw, _, err := r.store.Get(ctx, userKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user get: %w", err)
	}
	var su storedUser
	if err := json.Unmarshal([]byte(raw), &su); err != nil {
		return nil, fmt.Errorf("user decode: %w", err)
	}
	u := su.User
	u.PasswordHash = su.PasswordHash
	return &u, nil
}

func (r *userRepoKV) GetByEmail(ctx context.Context, email string) (*User, error) {
	raw, _, err := r.store.Get(ctx, emailKey(normalizeEmail(email)))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("user lookup: corrupt email index: %w", err)
	}
	return r.GetByID(ctx, id)
}

// -- Sessions over kv --

type sessionStoreKV struct {
	store kv.Store
}

func NewSessionStoreKV(store kv.Store) SessionStore {
	return &sessionStoreKV{store: store}
}

func sessionKey(id string) string { return "sessions:" + id }

func (s *sessionStoreKV) Create(ctx context.Context, rec *SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session create: %w", err)
	}
	if _, err := s.store.CompareAndSwap(ctx, sessionKey(rec.ID), string(data), 0); err != nil {
		return fmt.Errorf("session create: %w", err)
	}
	return nil
}

func (s *sessionStoreKV) Get(ctx context.Context, id string) (*SessionRecord, error) {
	raw, _, err := s.store.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("session get: %w", err)
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &rec, nil
}

func (s *sessionStoreKV) Revoke(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.Revoked = true
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session revoke: %w", err)
	}
	if _, err := s.store.Set(ctx, sessionKey(id), string(data)); err != nil {
		return fmt.Errorf("session revoke: %w", err)
	}
	return nil
}
