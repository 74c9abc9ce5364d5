package session

import (
	"context"
	"sync"
)

// Store owns the canonical session cells. The (loggedIn, user) pair mutates
// atomically under one lock; the half-authenticated pair (true, nil) is never
// observable. All mutation goes through the lifecycle Service; consumers read
// snapshots or subscribe.
type Store struct {
	mu       sync.RWMutex
	loggedIn bool
	user     *User
	version  uint64

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	hydrateOnce sync.Once
	hydrated    chan struct{}
}

func NewStore() *Store {
	return &Store{
		subs:     map[int]chan Snapshot{},
		hydrated: make(chan struct{}),
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{LoggedIn: s.loggedIn, User: s.user.clone(), Version: s.version}
	s.mu.RUnlock()
	return snap
}

func (s *Store) setAuthenticated(u *User) {
	s.mu.Lock()
	s.loggedIn = true
	s.user = u.clone()
	s.version++
	snap := Snapshot{LoggedIn: true, User: s.user.clone(), Version: s.version}
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Store) clear() {
	s.mu.Lock()
	changed := s.loggedIn || s.user != nil
	s.loggedIn = false
	s.user = nil
	if changed {
		s.version++
	}
	snap := Snapshot{Version: s.version}
	s.mu.Unlock()
	if changed {
		s.notify(snap)
	}
}

// Subscribe returns a channel receiving snapshots after each state change and
// a cancel func. Slow subscribers miss intermediate states, never the lock.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 8)
	s.subs[id] = ch
	s.subMu.Unlock()
	cancel := func() {
		s.subMu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	s.subMu.Unlock()
}

// MarkHydrated records that one session-hydration attempt has completed,
// successfully or not. Idempotent.
func (s *Store) MarkHydrated() {
	s.hydrateOnce.Do(func() { close(s.hydrated) })
}

// WaitHydrated blocks until the first hydration attempt completes. The router
// calls this before evaluating any guard, so a first-paint navigation never
// sees a not-yet-hydrated "anonymous" session.
func (s *Store) WaitHydrated(ctx context.Context) error {
	select {
	case <-s.hydrated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) Hydrated() bool {
	select {
	case <-s.hydrated:
		return true
	default:
		return false
	}
}
