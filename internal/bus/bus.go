package bus

import (
	"strings"
	"sync"
)

// subscriber is one registered listener. Its channel is closed exactly once,
// by unsubscribe or by Close, so consumers can range over it.
type subscriber struct {
	prefix string
	ch     chan Event
	once   sync.Once
}

func (s *subscriber) wants(kind string) bool {
	return strings.HasPrefix(kind, s.prefix)
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.ch) })
}

// Bus is the in-process event bus: the read path the embedding UI uses to
// observe the core without polling the store. Delivery is best-effort; a
// subscriber that stops draining loses events rather than stalling the
// publisher.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish delivers evt to every subscriber whose namespace prefix matches
// evt.Kind. Full buffers drop the event for that subscriber.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if !sub.wants(evt.Kind) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Subscribe registers a listener for kinds starting with the namespace
// prefix ("" matches everything). The channel is closed when the returned
// unsubscribe runs, so consumers may range over it. Unsubscribe is
// idempotent.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	sub := &subscriber{prefix: namespace, ch: make(chan Event, bufSize)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.stop()
	}
}

// Close ends every subscription. Publishing to a closed bus is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	b.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}
