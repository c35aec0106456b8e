// Package store owns the state tree. All mutations flow through Dispatch,
// which applies the reducer, writes the snapshot through to the cache, and
// announces the change on the bus. One Store is constructed at startup and
// injected everywhere; there are no package-level instances.
package store

import (
	"encoding/json"
	"sync"

	"github.com/mingleapp/mingle/internal/bus"
	"github.com/mingleapp/mingle/internal/cache"
	"github.com/mingleapp/mingle/internal/state"
	"go.uber.org/zap"
)

// SnapshotKey is the cache key the full state snapshot persists under.
const SnapshotKey = "state/snapshot"

// Change is the bus payload for state.changed events.
type Change struct {
	Action string
	State  state.AppState
}

// Store serializes dispatches over the state tree and persists a snapshot
// after every transition.
type Store struct {
	mu     sync.Mutex
	state  state.AppState
	cache  *cache.Cache
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a store starting from the initial state.
func New(c *cache.Cache, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		state:  state.Initial(),
		cache:  c,
		bus:    b,
		logger: logger,
	}
}

// Hydrate restores the persisted snapshot, if any. A missing or corrupt
// snapshot leaves the initial state in place; startup never fails on bad
// local data. Volatile session/presence fields are reset: a restored process
// is never "connected".
func (s *Store) Hydrate() {
	res := s.cache.Read(SnapshotKey)
	if res.Status == cache.StatusMiss {
		s.logger.Info("no persisted snapshot, starting from initial state")
		return
	}

	// Decode over the initial state so missing fields keep their defaults
	// and unknown fields are ignored (forward compatible).
	restored := state.Initial()
	if err := json.Unmarshal(res.Value, &restored); err != nil {
		s.logger.Warn("persisted snapshot is corrupt, starting fresh", zap.Error(err))
		s.cache.Invalidate(SnapshotKey)
		return
	}
	if restored.Messages == nil {
		restored.Messages = make(map[string]state.ResourceState[[]state.Message])
	}
	if restored.Presence == nil {
		restored.Presence = make(map[string]state.Presence)
	}
	restored.Session = state.SessionSnapshot{Status: state.SessionDisconnected}

	// A send that was mid-flight when the previous process died never
	// settled; requeue it so the next flush retries it.
	for i, m := range restored.Outbox {
		if m.Status == state.QueuedMessageSending {
			restored.Outbox[i].Status = state.QueuedMessageQueued
		}
	}

	s.Dispatch(state.Hydrated{State: restored})
	s.logger.Info("state hydrated from snapshot",
		zap.Int("pending_swipes", len(restored.PendingSwipes)),
		zap.Int("outbox", len(restored.Outbox)))
}

// State returns the current state tree.
func (s *Store) State() state.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies an action and returns the resulting state. Dispatches are
// strictly serialized; the snapshot write happens before the next dispatch
// can commit, so a restart never observes state older than the last
// committed action.
func (s *Store) Dispatch(a state.Action) state.AppState {
	s.mu.Lock()
	next := state.Reduce(s.state, a)
	s.state = next
	s.persistLocked(next)
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(bus.Now(bus.KindStateChanged, Change{Action: a.Name(), State: next}))
	}
	return next
}

// persistLocked writes the snapshot through to the cache. Persistence
// failures are logged, never surfaced: in-memory state stays authoritative
// for the session.
func (s *Store) persistLocked(snapshot state.AppState) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Write(SnapshotKey, snapshot, nil); err != nil {
		s.logger.Error("failed to persist state snapshot", zap.Error(err))
	}
}
