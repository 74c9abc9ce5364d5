package session

import (
	"context"
	"testing"
	"time"
)

func TestSnapshotPairConsistency(t *testing.T) {
	s := NewStore()

	snap := s.Snapshot()
	if snap.LoggedIn || snap.User != nil {
		t.Fatal("fresh store must be anonymous")
	}

	s.setAuthenticated(&User{ID: 1, Email: "a@b.c", Roles: []string{"CLIENT"}})
	snap = s.Snapshot()
	if !snap.LoggedIn || snap.User == nil {
		t.Fatal("authenticated snapshot must carry both cells")
	}

	s.clear()
	snap = s.Snapshot()
	if snap.LoggedIn || snap.User != nil {
		t.Fatal("cleared snapshot must carry neither cell")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.setAuthenticated(&User{ID: 1, Email: "a@b.c", Roles: []string{"CLIENT"}})

	snap := s.Snapshot()
	snap.User.Roles[0] = "ADMIN"
	snap.User.Email = "evil@b.c"

	again := s.Snapshot()
	if again.User.Roles[0] != "CLIENT" || again.User.Email != "a@b.c" {
		t.Fatal("mutating a snapshot must not write through to the store")
	}
}

func TestVersionAdvancesOnChange(t *testing.T) {
	s := NewStore()
	v0 := s.Snapshot().Version
	s.clear() // no-op, already anonymous
	if s.Snapshot().Version != v0 {
		t.Fatal("clearing an anonymous store must not bump the version")
	}
	s.setAuthenticated(&User{ID: 1, Email: "a@b.c"})
	if s.Snapshot().Version == v0 {
		t.Fatal("authentication must bump the version")
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.setAuthenticated(&User{ID: 1, Email: "a@b.c"})
	select {
	case snap := <-ch:
		if !snap.LoggedIn {
			t.Fatal("expected authenticated snapshot")
		}
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	s.clear()
	select {
	case snap := <-ch:
		if snap.LoggedIn {
			t.Fatal("expected anonymous snapshot")
		}
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}

func TestWaitHydrated(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitHydrated(ctx); err == nil {
		t.Fatal("expected timeout before hydration")
	}

	s.MarkHydrated()
	s.MarkHydrated() // idempotent
	if err := s.WaitHydrated(context.Background()); err != nil {
		t.Fatalf("hydrated wait: %v", err)
	}
	if !s.Hydrated() {
		t.Fatal("Hydrated() must report true")
	}
}
