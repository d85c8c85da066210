// Package lifecycle carries application lifecycle notifications to the
// components that react to them. Subscribers are called on the main queue
// and unsubscribe explicitly.
package lifecycle

import (
	"log/slog"
	"sync"

	"github.com/soocke/frame-pipeline-go/domain/dispatch"
)

// Event is a lifecycle notification.
type Event int

const (
	WillEnterForeground Event = iota
	DidEnterBackground
	WillResignActive
	DidBecomeActive
)

func (e Event) String() string {
	switch e {
	case WillEnterForeground:
		return "will-enter-foreground"
	case DidEnterBackground:
		return "did-enter-background"
	case WillResignActive:
		return "will-resign-active"
	case DidBecomeActive:
		return "did-become-active"
	}
	return "unknown"
}

// Bus fans lifecycle events out to subscribers on the main queue.
type Bus struct {
	main   dispatch.Queue
	logger *slog.Logger

	mu         sync.Mutex
	subs       map[uint64]func(Event)
	nextID     uint64
	background bool
}

// NewBus returns a bus delivering on main.
func NewBus(main dispatch.Queue, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{main: main, logger: logger, subs: make(map[uint64]func(Event))}
}

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	bus *Bus
	id  uint64
}

// Subscribe registers fn. fn runs on the main queue.
func (b *Bus) Subscribe(fn func(Event)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[b.nextID] = fn
	return &Subscription{bus: b, id: b.nextID}
}

// Cancel removes the subscription. Events already queued for delivery are
// discarded when they reach the main queue. Nil-safe and idempotent.
func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}

// Background reports whether the last foreground/background event put the
// application in the background.
func (b *Bus) Background() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.background
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish records e and delivers it to current subscribers. Safe from any
// goroutine.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	switch e {
	case DidEnterBackground:
		b.background = true
	case WillEnterForeground:
		b.background = false
	}
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	b.logger.Debug("lifecycle event", "event", e.String(), "subscribers", len(ids))
	b.main.Async(func() {
		for _, id := range ids {
			b.mu.Lock()
			fn, ok := b.subs[id]
			b.mu.Unlock()
			if ok {
				fn(e)
			}
		}
	})
}
