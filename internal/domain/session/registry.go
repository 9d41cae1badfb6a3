package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// revokedGrace is how long a signed-out session id stays tombstoned when its
// expiry is unknown. It only has to outlast requests that authenticated
// before the sign-out landed.
const revokedGrace = time.Minute

type entry struct {
	holder  *Holder
	expires time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Registry owns one Holder per session id. Holders are dropped on sign-out
// and once their session expires. A zero expiry never expires.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	revoked map[string]time.Time // session id -> tombstone expiry
	lookup  RoleLookup
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

func NewRegistry(lookup RoleLookup, timeout time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		revoked: make(map[string]time.Time),
		lookup:  lookup,
		timeout: timeout,
		logger:  logger.With().Str("component", "session").Logger(),
		now:     time.Now,
	}
}

// Get returns the holder for sessionID if one is live.
func (r *Registry) Get(sessionID string) (*Holder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok || e.expired(r.now()) {
		return nil, false
	}
	return e.holder, true
}

// SignedIn creates or reuses the holder for sessionID and delivers SIGNED_IN.
func (r *Registry) SignedIn(sessionID, userID string, expiresAt time.Time) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if !ok {
		e = &entry{holder: r.newHolder(sessionID)}
		r.entries[sessionID] = e
	}
	e.expires = expiresAt
	delete(r.revoked, sessionID)
	stale := r.sweepLocked(r.now())
	r.mu.Unlock()

	signOutAll(stale)
	e.holder.SignedIn(userID)
}

// Ensure returns the live holder for sessionID. A session that is valid but
// not yet in memory, for example after a restart, is restored by replaying
// SIGNED_IN. It reports false for a session that has expired or was signed
// out, even if the caller authenticated it moments earlier.
func (r *Registry) Ensure(sessionID, userID string, expiresAt time.Time) (*Holder, bool) {
	r.mu.Lock()
	now := r.now()
	if until, ok := r.revoked[sessionID]; ok && now.Before(until) {
		r.mu.Unlock()
		return nil, false
	}
	e, ok := r.entries[sessionID]
	if ok && !e.expired(now) {
		r.mu.Unlock()
		return e.holder, true
	}
	if !expiresAt.IsZero() && !now.Before(expiresAt) {
		r.mu.Unlock()
		return nil, false
	}
	e = &entry{holder: r.newHolder(sessionID), expires: expiresAt}
	r.entries[sessionID] = e
	stale := r.sweepLocked(now)
	r.mu.Unlock()

	signOutAll(stale)
	e.holder.SignedIn(userID)
	return e.holder, true
}

// SignedOut delivers SIGNED_OUT to the session's holder, forgets it, and
// tombstones the id so a racing request cannot bring it back.
func (r *Registry) SignedOut(sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	until := r.now().Add(revokedGrace)
	if ok && e.expires.After(until) {
		until = e.expires
	}
	r.revoked[sessionID] = until
	r.mu.Unlock()

	if ok {
		e.holder.SignedOut()
	}
}

// Sweep drops expired holders and stale tombstones. Open views on an
// expired session see it become unauthenticated. It returns the number of
// holders removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	stale := r.sweepLocked(r.now())
	r.mu.Unlock()

	signOutAll(stale)
	return len(stale)
}

func (r *Registry) sweepLocked(now time.Time) []*Holder {
	var stale []*Holder
	for sid, e := range r.entries {
		if e.expired(now) {
			stale = append(stale, e.holder)
			delete(r.entries, sid)
		}
	}
	for sid, until := range r.revoked {
		if !now.Before(until) {
			delete(r.revoked, sid)
		}
	}
	if len(stale) > 0 {
		r.logger.Debug().Int("count", len(stale)).Msg("expired sessions dropped")
	}
	return stale
}

func signOutAll(holders []*Holder) {
	for _, h := range holders {
		h.SignedOut()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) newHolder(sessionID string) *Holder {
	return NewHolder(r.lookup, r.timeout, r.logger.With().Str("session_id", sessionID).Logger())
}
