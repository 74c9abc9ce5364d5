package verify

import (
	"context"
	"sync"
	"time"

	"garrison-gate/core/store"
	"garrison-gate/core/utils"
)

// StoreBroadcaster carries messages between windows through the shared
// event log. Each window appends under its own origin and tails the
// log for rows written by other origins; a window's own rows are
// skipped, so the publisher never hears itself.
type StoreBroadcaster struct {
	events *store.VerifyEventsStore
	origin string
	poll   time.Duration
	logger *utils.Logger

	mu     sync.Mutex
	subs   map[int]chan Message
	next   int
	cursor int64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStoreBroadcaster(events *store.VerifyEventsStore, origin string, poll time.Duration, logger *utils.Logger) *StoreBroadcaster {
	if poll <= 0 {
		poll = time.Second
	}
	return &StoreBroadcaster{
		events: events,
		origin: origin,
		poll:   poll,
		logger: logger,
		subs:   make(map[int]chan Message),
	}
}

func (b *StoreBroadcaster) Origin() string { return b.origin }

// Start begins tailing the event log from its current end. Messages
// appended before Start are never replayed.
func (b *StoreBroadcaster) Start(ctx context.Context) error {
	seq, err := b.events.LatestSeq(ctx)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cursor = seq
	b.cancel = cancel
	b.done = make(chan struct{})
	b.mu.Unlock()
	go b.loop(runCtx)
	return nil
}

func (b *StoreBroadcaster) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.cancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (b *StoreBroadcaster) loop(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drain(ctx)
		}
	}
}

func (b *StoreBroadcaster) drain(ctx context.Context) {
	b.mu.Lock()
	cursor := b.cursor
	b.mu.Unlock()
	rows, err := b.events.ReadSince(ctx, cursor)
	if err != nil {
		b.logger.Warnf("broadcast tail failed: %v", err)
		return
	}
	for _, row := range rows {
		cursor = row.Seq
		if row.Origin == b.origin {
			continue
		}
		b.deliver(Message{Event: row.Event, Email: row.Email, At: row.At, Origin: row.Origin})
	}
	b.mu.Lock()
	if cursor > b.cursor {
		b.cursor = cursor
	}
	b.mu.Unlock()
}

func (b *StoreBroadcaster) deliver(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *StoreBroadcaster) Publish(ctx context.Context, msg Message) error {
	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := b.events.Append(ctx, msg.Event, msg.Email, b.origin, at)
	return err
}

func (b *StoreBroadcaster) Subscribe() (<-chan Message, func()) {
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
