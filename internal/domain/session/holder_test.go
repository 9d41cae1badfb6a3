package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func staticLookup(role Role) RoleLookup {
	return RoleLookupFunc(func(context.Context, string) (Role, error) { return role, nil })
}

type recorder struct {
	mu     sync.Mutex
	states []Session
}

func (r *recorder) listen(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Session(nil), r.states...)
}

func resolve(t *testing.T, h *Holder) Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.Resolve(ctx)
}

func TestHolder_StartsUnknown(t *testing.T) {
	h := NewHolder(staticLookup(RolePatient), time.Second, zerolog.Nop())
	if h.Current().Status != StatusUnknown {
		t.Fatalf("expected unknown, got %s", h.Current().Status)
	}
}

func TestHolder_SignedInResolvesRole(t *testing.T) {
	h := NewHolder(staticLookup(RoleDoctor), time.Second, zerolog.Nop())
	h.SignedIn("d-1")

	s := resolve(t, h)
	if s != Authenticated("d-1", RoleDoctor) {
		t.Fatalf("expected authenticated doctor, got %+v", s)
	}
}

func TestHolder_LookupErrorResolvesUnauthenticated(t *testing.T) {
	lookup := RoleLookupFunc(func(context.Context, string) (Role, error) {
		return "", errors.New("profile service down")
	})
	h := NewHolder(lookup, time.Second, zerolog.Nop())
	h.SignedIn("p-1")

	if s := resolve(t, h); s.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %+v", s)
	}
	var are *AuthResolutionError
	if !errors.As(h.Err(), &are) || are.UserID != "p-1" {
		t.Errorf("expected AuthResolutionError for p-1, got %v", h.Err())
	}
	if !errors.Is(h.Err(), ErrAuthResolution) {
		t.Error("expected errors.Is ErrAuthResolution")
	}
}

func TestHolder_InvalidRoleResolvesUnauthenticated(t *testing.T) {
	h := NewHolder(staticLookup("admin"), time.Second, zerolog.Nop())
	h.SignedIn("x")
	if s := resolve(t, h); s.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated for unknown role, got %+v", s)
	}
}

func TestHolder_LookupTimeoutResolvesUnauthenticated(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)
	lookup := RoleLookupFunc(func(context.Context, string) (Role, error) {
		<-stuck // ignores ctx on purpose
		return RolePatient, nil
	})
	h := NewHolder(lookup, 20*time.Millisecond, zerolog.Nop())
	h.SignedIn("p-1")

	if s := resolve(t, h); s.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated after timeout, got %+v", s)
	}
	if !errors.Is(h.Err(), context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", h.Err())
	}
}

func TestHolder_SignOutDuringPendingLookup(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	lookup := RoleLookupFunc(func(ctx context.Context, _ string) (Role, error) {
		close(started)
		<-release
		return RoleDoctor, nil
	})
	h := NewHolder(lookup, time.Second, zerolog.Nop())

	var navigations []Decision
	var mu sync.Mutex
	unsub := Watch(h, RoleDoctor, func(d Decision) {
		mu.Lock()
		navigations = append(navigations, d)
		mu.Unlock()
	})
	defer unsub()

	h.SignedIn("d-1")
	<-started
	h.SignedOut()
	close(release)

	// Give the stale lookup time to land.
	time.Sleep(50 * time.Millisecond)

	if s := h.Current(); s.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %+v", s)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(navigations) != 1 || navigations[0].Kind != DecisionRedirectLogin {
		t.Fatalf("expected exactly one login redirect, got %+v", navigations)
	}
}

func TestHolder_NotificationsInOrder(t *testing.T) {
	h := NewHolder(staticLookup(RolePatient), time.Second, zerolog.Nop())
	rec := &recorder{}
	unsub := h.Subscribe(rec.listen)
	defer unsub()

	h.SignedIn("p-1")
	resolve(t, h)
	h.SignedOut()

	got := rec.snapshot()
	want := []Status{StatusUnknown, StatusAuthenticated, StatusUnauthenticated}
	if len(got) != len(want) {
		t.Fatalf("expected %d notifications, got %+v", len(want), got)
	}
	for i, s := range got {
		if s.Status != want[i] {
			t.Errorf("notification %d: expected %s, got %s", i, want[i], s.Status)
		}
	}
}

func TestHolder_Unsubscribe(t *testing.T) {
	h := NewHolder(staticLookup(RolePatient), time.Second, zerolog.Nop())
	rec := &recorder{}
	unsub := h.Subscribe(rec.listen)
	if h.Listeners() != 1 {
		t.Fatalf("expected 1 listener, got %d", h.Listeners())
	}

	unsub()
	unsub()
	if h.Listeners() != 0 {
		t.Fatalf("expected 0 listeners, got %d", h.Listeners())
	}

	h.SignedOut()
	if n := len(rec.snapshot()); n != 1 {
		t.Errorf("expected only the initial delivery, got %d", n)
	}
}

func TestHolder_ResolveContextEnds(t *testing.T) {
	stuck := make(chan struct{})
	defer close(stuck)
	lookup := RoleLookupFunc(func(context.Context, string) (Role, error) {
		<-stuck
		return RolePatient, nil
	})
	h := NewHolder(lookup, time.Hour, zerolog.Nop())
	h.SignedIn("p-1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if s := h.Resolve(ctx); s.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated when caller gives up, got %+v", s)
	}
	if h.Current().Status != StatusUnknown {
		t.Error("caller timeout must not change holder state")
	}
}

func TestWatch_UnknownIssuesNoNavigation(t *testing.T) {
	h := NewHolder(staticLookup(RolePatient), time.Second, zerolog.Nop())
	called := false
	unsub := Watch(h, "", func(Decision) { called = true })
	defer unsub()

	if called {
		t.Error("unknown session must not navigate")
	}
}

func TestRegistry_EnsureRestoresSession(t *testing.T) {
	r := NewRegistry(staticLookup(RolePatient), time.Second, zerolog.Nop())

	h, ok := r.Ensure("sess-1", "p-1", time.Time{})
	if !ok {
		t.Fatal("expected a holder for a valid session")
	}
	if s := resolve(t, h); s.Status != StatusAuthenticated || s.UserID != "p-1" {
		t.Fatalf("expected restored session, got %+v", s)
	}
	if again, _ := r.Ensure("sess-1", "p-1", time.Time{}); again != h {
		t.Error("expected the same holder for the same session id")
	}

	r.SignedOut("sess-1")
	if _, ok := r.Get("sess-1"); ok {
		t.Error("expected holder to be forgotten after sign out")
	}
	if h.Current().Status != StatusUnauthenticated {
		t.Error("expected signed out holder to be unauthenticated")
	}
}

type registryClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *registryClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *registryClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedRegistry() (*Registry, *registryClock) {
	clock := &registryClock{now: time.Date(2025, time.April, 15, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry(staticLookup(RolePatient), time.Second, zerolog.Nop())
	r.now = clock.Now
	return r, clock
}

func TestRegistry_SweepDropsExpiredSessions(t *testing.T) {
	r, clock := newClockedRegistry()
	expires := clock.Now().Add(time.Hour)

	for i := 0; i < 50; i++ {
		r.SignedIn(fmt.Sprintf("sess-%d", i), "p-1", expires)
	}
	h, _ := r.Get("sess-0")
	if r.Len() != 50 {
		t.Fatalf("expected 50 live holders, got %d", r.Len())
	}

	clock.Advance(2 * time.Hour)
	if _, ok := r.Get("sess-0"); ok {
		t.Error("expired session must not be returned")
	}
	if n := r.Sweep(); n != 50 {
		t.Errorf("expected 50 holders swept, got %d", n)
	}
	if r.Len() != 0 {
		t.Errorf("expected no holders after sweep, got %d", r.Len())
	}
	if h.Current().Status != StatusUnauthenticated {
		t.Errorf("expected expired holder to sign out, got %s", h.Current().Status)
	}
}

func TestRegistry_NewSignInEvictsExpired(t *testing.T) {
	r, clock := newClockedRegistry()
	r.SignedIn("old", "p-1", clock.Now().Add(time.Minute))

	clock.Advance(time.Hour)
	r.SignedIn("new", "p-1", clock.Now().Add(time.Hour))

	if r.Len() != 1 {
		t.Errorf("expected only the new holder, got %d", r.Len())
	}
	if _, ok := r.Get("new"); !ok {
		t.Error("expected the new session to be live")
	}
}

func TestRegistry_EnsureRejectsExpiredSession(t *testing.T) {
	r, clock := newClockedRegistry()
	if _, ok := r.Ensure("sess-1", "p-1", clock.Now().Add(-time.Second)); ok {
		t.Error("expected an already expired session to be rejected")
	}
	if r.Len() != 0 {
		t.Errorf("rejected session must not leave a holder, got %d", r.Len())
	}
}

func TestRegistry_EnsureAfterSignOutStaysSignedOut(t *testing.T) {
	r, clock := newClockedRegistry()
	expires := clock.Now().Add(time.Hour)
	r.SignedIn("sess-1", "p-1", expires)

	// A request that authenticated before the sign-out reaches Ensure after it.
	r.SignedOut("sess-1")
	if _, ok := r.Ensure("sess-1", "p-1", expires); ok {
		t.Error("signed out session must not be restored")
	}
	if r.Len() != 0 {
		t.Errorf("expected no holders, got %d", r.Len())
	}

	clock.Advance(2 * time.Hour)
	r.Sweep()
	if len(r.revoked) != 0 {
		t.Errorf("expected tombstone to be dropped after expiry, got %d", len(r.revoked))
	}
}
