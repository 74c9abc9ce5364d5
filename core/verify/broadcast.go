package verify

import (
	"context"
	"sync"
	"time"
)

const EventEmailVerified = "emailVerified"

// Message is the typed payload exchanged between application windows
// when a verification completes. Origin identifies the publishing
// window so subscribers can ignore their own messages.
type Message struct {
	Event  string    `json:"event"`
	Email  string    `json:"email"`
	At     time.Time `json:"at"`
	Origin string    `json:"origin"`
}

// Broadcaster delivers verification messages across windows. The
// store-backed implementation filters out messages published under the
// subscriber's own origin; delivery is at-most-once and lossy under a
// slow consumer, so completion logic must stay idempotent.
type Broadcaster interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe() (<-chan Message, func())
}

// MemoryBroadcaster fans messages out inside one process. Used in
// tests and in single-window deployments where no shared store exists.
type MemoryBroadcaster struct {
	origin string

	mu   sync.Mutex
	subs map[int]chan Message
	next int
}

func NewMemoryBroadcaster(origin string) *MemoryBroadcaster {
	return &MemoryBroadcaster{origin: origin, subs: make(map[int]chan Message)}
}

func (b *MemoryBroadcaster) Publish(_ context.Context, msg Message) error {
	if msg.Origin == "" {
		msg.Origin = b.origin
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBroadcaster) Subscribe() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Message, 8)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}
