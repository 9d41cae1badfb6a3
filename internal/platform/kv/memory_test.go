package kv

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, rev, err := s.Get(context.Background(), "appointments:p1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if rev != 0 {
		t.Errorf("expected revision 0 for missing key, got %d", rev)
	}
}

func TestMemoryStore_SetIncrementsRevision(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r1, _ := s.Set(ctx, "k", "a")
	r2, _ := s.Set(ctx, "k", "b")
	if r1 != 1 || r2 != 2 {
		t.Errorf("expected revisions 1,2 got %d,%d", r1, r2)
	}
	v, rev, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "b" || rev != 2 {
		t.Errorf("expected (b,2), got (%s,%d)", v, rev)
	}
}

func TestMemoryStore_CompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rev, err := s.CompareAndSwap(ctx, "k", "first", 0)
	if err != nil || rev != 1 {
		t.Fatalf("create-if-absent failed: rev=%d err=%v", rev, err)
	}
	if _, err := s.CompareAndSwap(ctx, "k", "again", 0); !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("expected mismatch on second create, got %v", err)
	}
	rev, err = s.CompareAndSwap(ctx, "k", "second", 1)
	if err != nil || rev != 2 {
		t.Fatalf("swap at revision 1 failed: rev=%d err=%v", rev, err)
	}
	if _, err := s.CompareAndSwap(ctx, "k", "stale", 1); !errors.Is(err, ErrRevisionMismatch) {
		t.Errorf("expected mismatch on stale revision, got %v", err)
	}
	v, _, _ := s.Get(ctx, "k")
	if v != "second" {
		t.Errorf("stale write must not apply, got %q", v)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Set(ctx, "k", "v")
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStore_ConcurrentCAS(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Set(ctx, "k", "base")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CompareAndSwap(ctx, "k", "x", 1); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("expected exactly one CAS winner, got %d", wins)
	}
}
