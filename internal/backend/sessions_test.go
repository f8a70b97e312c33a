package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestSessionCacheResolveCreatesOnce(t *testing.T) {
	var creations atomic.Int32
	cache := NewSessionCache(func(ctx context.Context, userKey string) (string, error) {
		creations.Add(1)
		return "handle-" + userKey, nil
	})

	handle, err := cache.Resolve(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if handle != "handle-alice" {
		t.Errorf("expected handle-alice, got %q", handle)
	}

	// Second resolve is a pure cache hit.
	if _, err := cache.Resolve(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	if got := creations.Load(); got != 1 {
		t.Errorf("expected 1 creation, got %d", got)
	}
}

func TestSessionCacheConcurrentResolveSingleCreation(t *testing.T) {
	const workers = 20

	gate := make(chan struct{})
	var creations atomic.Int32
	cache := NewSessionCache(func(ctx context.Context, userKey string) (string, error) {
		creations.Add(1)
		<-gate
		return "shared-handle", nil
	})

	var wg sync.WaitGroup
	handles := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = cache.Resolve(context.Background(), "bob")
		}(i)
	}
	close(gate)
	wg.Wait()

	if got := creations.Load(); got != 1 {
		t.Errorf("expected exactly 1 creation call, got %d", got)
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if handles[i] != "shared-handle" {
			t.Errorf("worker %d: expected shared-handle, got %q", i, handles[i])
		}
	}
}

func TestSessionCacheFailureNotCached(t *testing.T) {
	var calls atomic.Int32
	cache := NewSessionCache(func(ctx context.Context, userKey string) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("backend down")
		}
		return "recovered", nil
	})

	if _, err := cache.Resolve(context.Background(), "carol"); err == nil {
		t.Fatal("expected first resolve to fail")
	}
	handle, err := cache.Resolve(context.Background(), "carol")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if handle != "recovered" {
		t.Errorf("expected recovered, got %q", handle)
	}
}

func TestSessionCacheInvalidate(t *testing.T) {
	var calls atomic.Int32
	cache := NewSessionCache(func(ctx context.Context, userKey string) (string, error) {
		return fmt.Sprintf("handle-%d", calls.Add(1)), nil
	})

	first, _ := cache.Resolve(context.Background(), "dave")
	cache.Invalidate("dave")
	second, _ := cache.Resolve(context.Background(), "dave")
	if first == second {
		t.Errorf("expected a fresh handle after invalidation, got %q twice", first)
	}

	cache.InvalidateAll()
	if cache.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", cache.Len())
	}
}
