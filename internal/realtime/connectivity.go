// Package realtime owns the push session: the connect/reconnect state
// machine, the heartbeat, and the transport that delivers server pushes to
// the sync engine. Connectivity is an injected subscription, never an
// ambient global.
package realtime

import (
	"sync"
	"time"

	"github.com/mingleapp/mingle/internal/bus"
)

// Connectivity reports network reachability and notifies on changes. The
// manager registers its subscription on Start and releases it on Stop.
type Connectivity interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// ConnectivityState is the default Connectivity: the embedding host feeds it
// reachability changes via Set, and it fans them out to subscribers and the
// bus.
type ConnectivityState struct {
	bus *bus.Bus

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)
}

// NewConnectivityState starts in the given reachability state.
func NewConnectivityState(b *bus.Bus, online bool) *ConnectivityState {
	return &ConnectivityState{
		bus:    b,
		online: online,
		subs:   make(map[int]func(online bool)),
	}
}

// Online reports the last known reachability.
func (c *ConnectivityState) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// Subscribe registers fn for reachability changes. The returned function
// removes the registration and is safe to call more than once.
func (c *ConnectivityState) Subscribe(fn func(online bool)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Set records a reachability change. Redundant reports are dropped; a real
// change notifies subscribers and publishes net.online / net.offline on the
// bus, which is what triggers pending-swipe replay and outbox flushes.
func (c *ConnectivityState) Set(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	fns := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	if c.bus != nil {
		kind := bus.KindNetOffline
		if online {
			kind = bus.KindNetOnline
		}
		c.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now()})
	}
}
