package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RoleLookup returns the profile role for a user.
type RoleLookup interface {
	LookupRole(ctx context.Context, userID string) (Role, error)
}

// RoleLookupFunc adapts a function to RoleLookup.
type RoleLookupFunc func(ctx context.Context, userID string) (Role, error)

func (f RoleLookupFunc) LookupRole(ctx context.Context, userID string) (Role, error) {
	return f(ctx, userID)
}

// Listener receives every session state change.
type Listener func(Session)

// Unsubscribe stops delivery to a listener. It is safe to call more than once.
type Unsubscribe func()

// Holder is the state machine for one browser session. It starts unknown,
// moves to authenticated once a SIGNED_IN role lookup succeeds, and to
// unauthenticated on SIGNED_OUT or a failed lookup.
//
// Notifications are delivered in transition order. Listeners run on the
// goroutine that caused the transition and must not call SignedIn or
// SignedOut themselves.
type Holder struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	current   Session
	gen       uint64
	lastErr   error
	listeners map[uint64]Listener
	nextID    uint64

	lookup  RoleLookup
	timeout time.Duration
	logger  zerolog.Logger
}

func NewHolder(lookup RoleLookup, timeout time.Duration, logger zerolog.Logger) *Holder {
	return &Holder{
		current:   Unknown(),
		listeners: make(map[uint64]Listener),
		lookup:    lookup,
		timeout:   timeout,
		logger:    logger,
	}
}

// Current returns the latest session state.
func (h *Holder) Current() Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Err returns the last resolution failure, if the current unauthenticated
// state came from one.
func (h *Holder) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Subscribe registers l and immediately delivers the current state to it.
func (h *Holder) Subscribe(l Listener) Unsubscribe {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = l
	snapshot := h.current
	h.notifyMu.Lock()
	h.mu.Unlock()

	l(snapshot)
	h.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Listeners reports how many listeners are subscribed.
func (h *Holder) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// SignedIn records a sign-in for userID. The session stays unknown until the
// role lookup completes; the lookup result is discarded if another sign-in
// or a sign-out happened in the meantime.
func (h *Holder) SignedIn(userID string) {
	h.mu.Lock()
	h.gen++
	gen := h.gen
	h.lastErr = nil
	changed := h.current.Status != StatusUnknown
	h.current = Unknown()
	h.publishLocked(changed)

	go h.resolve(gen, userID)
}

// SignedOut moves the session to unauthenticated and invalidates any lookup
// still in flight.
func (h *Holder) SignedOut() {
	h.mu.Lock()
	h.gen++
	h.lastErr = nil
	changed := h.current.Status != StatusUnauthenticated
	h.current = Unauthenticated()
	h.publishLocked(changed)
}

func (h *Holder) resolve(gen uint64, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	type result struct {
		role Role
		err  error
	}
	done := make(chan result, 1)
	go func() {
		role, err := h.lookup.LookupRole(ctx, userID)
		done <- result{role, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// A lookup that ignores ctx must not keep the session unknown.
		res.err = ctx.Err()
	}

	h.mu.Lock()
	if h.gen != gen {
		h.mu.Unlock()
		h.logger.Debug().Str("user_id", userID).Msg("discarding stale role lookup")
		return
	}

	next := Authenticated(userID, res.role)
	if res.err == nil {
		if _, err := ParseRole(string(res.role)); err != nil {
			res.err = err
		}
	}
	if res.err != nil {
		h.lastErr = &AuthResolutionError{UserID: userID, Err: res.err}
		h.logger.Warn().Err(res.err).Str("user_id", userID).Msg("role lookup failed, treating session as signed out")
		next = Unauthenticated()
	}
	h.current = next
	h.publishLocked(true)
}

// publishLocked releases h.mu and, when changed, delivers the current state.
// Taking notifyMu before releasing mu keeps deliveries in transition order.
func (h *Holder) publishLocked(changed bool) {
	if !changed {
		h.mu.Unlock()
		return
	}
	snapshot := h.current
	ls := make([]Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		ls = append(ls, l)
	}
	h.notifyMu.Lock()
	h.mu.Unlock()
	defer h.notifyMu.Unlock()

	for _, l := range ls {
		l(snapshot)
	}
}

// Resolve blocks until the session leaves the unknown state or ctx ends.
// A context that ends first yields unauthenticated.
func (h *Holder) Resolve(ctx context.Context) Session {
	resolved := make(chan Session, 1)
	unsub := h.Subscribe(func(s Session) {
		if s.Status == StatusUnknown {
			return
		}
		select {
		case resolved <- s:
		default:
		}
	})
	defer unsub()

	select {
	case s := <-resolved:
		return s
	case <-ctx.Done():
		return Unauthenticated()
	}
}
