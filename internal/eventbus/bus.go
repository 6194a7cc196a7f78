package eventbus

import (
	"context"
	"sync"

	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

const (
	defaultDepth   = 256
	defaultBacklog = 4096
)

type subscription struct {
	ch   chan schema.OutputEvent
	done chan struct{}
	once sync.Once
}

func (s *subscription) cancel() {
	s.once.Do(func() { close(s.done) })
}

type topic struct {
	backlog []schema.OutputEvent
	sub     *subscription
	closed  bool
}

// Bus demultiplexes session output to one subscriber per session. Publishing
// blocks while the subscriber is behind, so subscribed output is never dropped
// or reordered. Output that arrives before anyone subscribes is held back, up
// to 4096 events per session, and delivered on Subscribe. Events past that cap
// are dropped with a warning.
type Bus struct {
	mu      sync.Mutex
	topics  map[schema.SessionID]*topic
	log     pslog.Logger
	depth   int
	backlog int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		topics:  make(map[schema.SessionID]*topic),
		log:     logger,
		depth:   defaultDepth,
		backlog: defaultBacklog,
	}
}

// Subscribe registers the subscriber for a session. Events arrive on the
// first channel; the second is closed once cancel is called. A second
// Subscribe for the same session replaces the first.
func (b *Bus) Subscribe(id schema.SessionID) (<-chan schema.OutputEvent, <-chan struct{}, func()) {
	if b == nil {
		done := make(chan struct{})
		close(done)
		return nil, done, func() {}
	}
	b.mu.Lock()
	t := b.topics[id]
	if t == nil {
		t = &topic{}
		b.topics[id] = t
	}
	depth := b.depth
	if len(t.backlog) > depth {
		depth = len(t.backlog)
	}
	sub := &subscription{
		ch:   make(chan schema.OutputEvent, depth),
		done: make(chan struct{}),
	}
	for _, event := range t.backlog {
		sub.ch <- event
	}
	pending := len(t.backlog)
	t.backlog = nil
	if t.sub != nil {
		t.sub.cancel()
	}
	t.sub = sub
	t.closed = false
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("session", id).Debug("eventbus subscribe", "pending", pending)
	}
	return sub.ch, sub.done, func() {
		b.mu.Lock()
		if t := b.topics[id]; t != nil && t.sub == sub {
			t.sub = nil
			t.closed = true
		}
		b.mu.Unlock()
		sub.cancel()
		if b.log != nil {
			b.log.With("session", id).Debug("eventbus unsubscribe")
		}
	}
}

// Publish delivers event to the session's subscriber. It blocks until the
// subscriber accepts the event, unsubscribes, or ctx is done.
func (b *Bus) Publish(ctx context.Context, event schema.OutputEvent) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	t := b.topics[event.SessionID]
	if t == nil {
		t = &topic{}
		b.topics[event.SessionID] = t
	}
	if t.closed {
		b.mu.Unlock()
		return nil
	}
	sub := t.sub
	if sub == nil {
		if len(t.backlog) >= b.backlog {
			b.mu.Unlock()
			if b.log != nil {
				b.log.With("session", event.SessionID).Warn("eventbus backlog full")
			}
			return nil
		}
		t.backlog = append(t.backlog, event)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	select {
	case sub.ch <- event:
		return nil
	case <-sub.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drop forgets a session. Call it once the session's output stream ended.
func (b *Bus) Drop(id schema.SessionID) {
	if b == nil {
		return
	}
	b.mu.Lock()
	delete(b.topics, id)
	b.mu.Unlock()
}
