package sync

import (
	"github.com/mingleapp/mingle/internal/state"
)

// swipeSaga is the optimistic transaction for one swipe: it captures the
// pre-swipe item, applies the optimistic write together with its pending
// action, and owns the commit/rollback paths as first-class operations.
type swipeSaga struct {
	engine *Engine
	before state.MatchFeedItem
	swipe  state.PendingSwipeAction
}

// beginSwipe snapshots the current feed item. Returns nil when the id is not
// in the in-memory feed (a stale UI reference); callers treat that as a
// silent no-op.
func (e *Engine) beginSwipe(matchID string, decision state.SwipeDecision) *swipeSaga {
	snapshot := e.store.State()
	item := snapshot.FindMatch(matchID)
	if item == nil {
		return nil
	}
	return &swipeSaga{
		engine: e,
		before: *item,
		swipe: state.PendingSwipeAction{
			ID:              matchID,
			Decision:        decision,
			ClientTimestamp: e.now(),
		},
	}
}

// Apply commits the optimistic decision and enqueues the pending action.
// This always happens before the network call is issued.
func (s *swipeSaga) Apply() {
	s.engine.store.Dispatch(state.SwipeApplied{
		MatchID:  s.swipe.ID,
		Decision: s.swipe.Decision,
		At:       s.swipe.ClientTimestamp,
	})
	s.engine.store.Dispatch(state.PendingSwipeAdded{Swipe: s.swipe})
}

// Commit removes the pending action after server confirmation. The
// optimistic write stands (or has already been reconciled by an
// authoritative snapshot).
func (s *swipeSaga) Commit() {
	s.engine.store.Dispatch(state.PendingSwipesRemoved{IDs: []string{s.swipe.ID}})
}

// Rollback restores the pre-swipe item and drops the pending action.
func (s *swipeSaga) Rollback() {
	s.engine.store.Dispatch(state.MatchRestored{Item: s.before})
	s.engine.store.Dispatch(state.PendingSwipesRemoved{IDs: []string{s.swipe.ID}})
}

// MarkQueued keeps the pending action with the failure attached, to be
// replayed on the next connectivity event. The optimistic state stands.
func (s *swipeSaga) MarkQueued(reason string) {
	s.engine.store.Dispatch(state.PendingSwipeUpdated{Swipe: state.PendingSwipeAction{
		ID:      s.swipe.ID,
		Retries: s.swipe.Retries + 1,
		Error:   reason,
	}})
}

// rollbackReplayed reverts a match whose replayed (possibly restored from a
// previous session) swipe the server rejected. The true pre-swipe item is no
// longer known, so the recorded decision is unwound back to pending.
func (e *Engine) rollbackReplayed(failed state.PendingSwipeAction) {
	snapshot := e.store.State()
	item := snapshot.FindMatch(failed.ID)
	if item == nil {
		e.store.Dispatch(state.PendingSwipesRemoved{IDs: []string{failed.ID}})
		return
	}
	restored := *item
	restored.Status = state.MatchPending
	restored.Metadata.LikedAt = nil
	restored.Metadata.PassedAt = nil
	at := e.now()
	restored.Metadata.SyncedAt = &at
	e.store.Dispatch(state.MatchRestored{Item: restored})
	e.store.Dispatch(state.PendingSwipesRemoved{IDs: []string{failed.ID}})
}
