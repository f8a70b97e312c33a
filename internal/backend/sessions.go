package backend

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CreateFunc issues one session-creation call against the backend.
type CreateFunc func(ctx context.Context, userKey string) (string, error)

// SessionCache maps a user key to its backend session handle. The first
// resolve for a key creates the session; later resolves return the cached
// handle without I/O. Concurrent first-resolves for the same key are
// collapsed into a single creation call.
//
// Creation failures are propagated and never cached, so the next message
// from the same user retries naturally.
type SessionCache struct {
	create CreateFunc

	mu      sync.RWMutex
	handles map[string]string
	group   singleflight.Group
}

// NewSessionCache returns an empty cache backed by the given creator.
func NewSessionCache(create CreateFunc) *SessionCache {
	return &SessionCache{
		create:  create,
		handles: make(map[string]string),
	}
}

// Resolve returns the session handle for userKey, creating it on first use.
func (s *SessionCache) Resolve(ctx context.Context, userKey string) (string, error) {
	s.mu.RLock()
	handle, ok := s.handles[userKey]
	s.mu.RUnlock()
	if ok {
		return handle, nil
	}

	v, err, _ := s.group.Do(userKey, func() (any, error) {
		// A concurrent caller may have won the race and populated the
		// cache between our read and the flight starting.
		s.mu.RLock()
		handle, ok := s.handles[userKey]
		s.mu.RUnlock()
		if ok {
			return handle, nil
		}

		handle, err := s.create(ctx, userKey)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.handles[userKey] = handle
		s.mu.Unlock()
		return handle, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate removes one cached handle. Operator recovery only; the normal
// request path never invalidates.
func (s *SessionCache) Invalidate(userKey string) {
	s.mu.Lock()
	delete(s.handles, userKey)
	s.mu.Unlock()
}

// InvalidateAll clears the whole cache.
func (s *SessionCache) InvalidateAll() {
	s.mu.Lock()
	s.handles = make(map[string]string)
	s.mu.Unlock()
}

// Len reports the number of cached sessions.
func (s *SessionCache) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}
