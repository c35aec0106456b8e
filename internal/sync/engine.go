// Package sync orchestrates optimistic updates, pending-action queues,
// retry-on-reconnect, and merge-by-id reconciliation between the local store
// and the remote services. All mutations go through the store's reducer; the
// engine decides what to dispatch and when.
package sync

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mingleapp/mingle/internal/api"
	"github.com/mingleapp/mingle/internal/bus"
	"github.com/mingleapp/mingle/internal/request"
	"github.com/mingleapp/mingle/internal/state"
	"github.com/mingleapp/mingle/internal/store"
	"go.uber.org/zap"
)

// Engine is the synchronization engine. One instance per store.
type Engine struct {
	store     *store.Store
	profile   api.Profile
	matching  api.Matching
	events    api.Events
	messaging api.Messaging
	bus       *bus.Bus
	offline   request.OfflinePolicy
	logger    *zap.Logger

	now   func() time.Time
	newID func() string

	// replayMu serializes batched replays so a connectivity event and a new
	// swipe cannot double-send the same backlog.
	replayMu sync.Mutex
	cancel   context.CancelFunc
}

// NewEngine creates a sync engine over the given store and collaborators.
func NewEngine(s *store.Store, profile api.Profile, matching api.Matching, events api.Events, messaging api.Messaging, b *bus.Bus, offline request.OfflinePolicy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:     s,
		profile:   profile,
		matching:  matching,
		events:    events,
		messaging: messaging,
		bus:       b,
		offline:   offline,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Start subscribes to connectivity events on the bus: when the network
// returns, the pending-swipe backlog is replayed and the outbox flushed.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe(bus.KindNetOnline, 16)

	go func() {
		defer unsub()
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				if err := e.Replay(ctx); err != nil {
					e.logger.Warn("pending swipe replay failed", zap.Error(err))
				}
				if err := e.FlushOutbox(ctx); err != nil {
					e.logger.Warn("outbox flush failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// RefreshProfile loads the user's profile. Failures are stored in state
// (stale data stays renderable) and returned.
func (e *Engine) RefreshProfile(ctx context.Context) error {
	e.store.Dispatch(state.ProfileLoading{})
	p, err := e.profile.Get(ctx)
	if err != nil {
		e.store.Dispatch(state.ProfileFailed{Err: err.Error()})
		return err
	}
	e.store.Dispatch(state.ProfileLoaded{Profile: p})
	return nil
}

// RefreshPreferences loads discovery preferences.
func (e *Engine) RefreshPreferences(ctx context.Context) error {
	p, err := e.profile.Preferences(ctx)
	if err != nil {
		return err
	}
	e.store.Dispatch(state.PreferencesLoaded{Preferences: p})
	return nil
}

// SaveProfile applies the edit optimistically, then persists it. On failure
// the previous profile is restored and the error returned, so callers can
// show immediate feedback on top of the rollback.
func (e *Engine) SaveProfile(ctx context.Context, payload state.Profile) error {
	before := e.store.State().Profile.Data
	e.store.Dispatch(state.ProfileLoaded{Profile: &payload})

	saved, err := e.profile.Update(ctx, payload)
	if err != nil {
		e.store.Dispatch(state.ProfileLoaded{Profile: before})
		e.store.Dispatch(state.ProfileFailed{Err: err.Error()})
		return fmt.Errorf("save profile: %w", err)
	}
	e.store.Dispatch(state.ProfileLoaded{Profile: saved})
	return nil
}

// RefreshFeed loads the match feed and reconciles it by id: a partial fetch
// never drops locally known items.
func (e *Engine) RefreshFeed(ctx context.Context) error {
	e.store.Dispatch(state.FeedLoading{})
	page, err := e.matching.Feed(ctx)
	if err != nil {
		e.store.Dispatch(state.FeedFailed{Err: err.Error()})
		return err
	}
	e.mergeFeed(page.Items, state.SourceInitial)
	return nil
}

// RefreshStatus reconciles the server's authoritative swipe-status snapshot
// into the feed.
func (e *Engine) RefreshStatus(ctx context.Context) error {
	snapshot, err := e.matching.Status(ctx)
	if err != nil {
		return err
	}
	e.applyStatusSnapshot(snapshot, state.SourceInitial)
	return nil
}

// AcceptMatch likes a match: optimistic commit, queue, batched sync.
func (e *Engine) AcceptMatch(ctx context.Context, matchID string) error {
	return e.swipe(ctx, matchID, state.DecisionLike)
}

// DeclineMatch passes on a match: optimistic commit, queue, batched sync.
func (e *Engine) DeclineMatch(ctx context.Context, matchID string) error {
	return e.swipe(ctx, matchID, state.DecisionPass)
}

func (e *Engine) swipe(ctx context.Context, matchID string, decision state.SwipeDecision) error {
	saga := e.beginSwipe(matchID, decision)
	if saga == nil {
		// Stale UI reference, nothing to do.
		e.logger.Debug("swipe on unknown match ignored", zap.String("match_id", matchID))
		return nil
	}

	// Optimistic write strictly before the network call.
	saga.Apply()
	return e.syncPending(ctx, saga)
}

// Replay re-sends the whole pending backlog, typically on reconnect.
func (e *Engine) Replay(ctx context.Context) error {
	return e.syncPending(ctx, nil)
}

// syncPending sends every currently pending swipe in one batch. current is
// the saga of the swipe that triggered this sync, if any; it carries the
// exact pre-swipe value for rollback.
func (e *Engine) syncPending(ctx context.Context, current *swipeSaga) error {
	e.replayMu.Lock()
	defer e.replayMu.Unlock()

	pending := e.store.State().PendingSwipes
	if len(pending) == 0 {
		return nil
	}

	result, err := e.matching.SyncLikes(ctx, api.SyncLikesRequest{Likes: pending})
	if err != nil {
		return e.handleSyncFailure(pending, current, err)
	}

	confirmed := result.Processed
	if current != nil && slices.Contains(confirmed, current.swipe.ID) {
		current.Commit()
		confirmed = slices.DeleteFunc(slices.Clone(confirmed), func(id string) bool {
			return id == current.swipe.ID
		})
	}
	if len(confirmed) > 0 {
		e.store.Dispatch(state.PendingSwipesRemoved{IDs: confirmed})
	}
	if len(result.Processed) > 0 {
		e.bus.Publish(bus.Now(bus.KindSwipeSynced, result.Processed))
	}

	// Authoritative snapshots: server wins, metadata is unioned.
	if len(result.Feed) > 0 {
		e.mergeFeed(result.Feed, state.SourceReplay)
	}
	if result.Status != nil {
		e.applyStatusSnapshot(result.Status, state.SourceReplay)
	}

	var rejection error
	for _, failed := range result.Failed {
		e.bus.Publish(bus.Now(bus.KindSwipeRejected, failed))
		if current != nil && failed.ID == current.swipe.ID {
			current.Rollback()
			rejection = &SwipeRejectedError{MatchID: failed.ID, Reason: failed.Error}
			continue
		}
		e.logger.Warn("replayed swipe rejected by server",
			zap.String("match_id", failed.ID), zap.String("reason", failed.Error))
		e.rollbackReplayed(failed)
	}
	return rejection
}

// handleSyncFailure classifies a whole-batch failure. Offline failures keep
// the backlog queued for the next connectivity event; server rejections roll
// everything attempted back.
func (e *Engine) handleSyncFailure(pending []state.PendingSwipeAction, current *swipeSaga, err error) error {
	if e.offline.Offline(err) {
		for _, p := range pending {
			if current != nil && p.ID == current.swipe.ID {
				current.MarkQueued(err.Error())
				continue
			}
			e.store.Dispatch(state.PendingSwipeUpdated{Swipe: state.PendingSwipeAction{
				ID:      p.ID,
				Retries: p.Retries + 1,
				Error:   err.Error(),
			}})
		}
		e.logger.Info("swipe sync deferred, offline",
			zap.Int("pending", len(pending)), zap.Error(err))
		return nil
	}

	for _, p := range pending {
		if current != nil && p.ID == current.swipe.ID {
			current.Rollback()
			continue
		}
		e.rollbackReplayed(p)
	}
	if current != nil {
		return &SwipeRejectedError{MatchID: current.swipe.ID, Reason: err.Error()}
	}
	return fmt.Errorf("sync likes: %w", err)
}

// mergeFeed reconciles items into the feed and emits exactly one
// notification per newly matched item.
func (e *Engine) mergeFeed(items []state.MatchFeedItem, source state.MatchSource) {
	prev := e.store.State().Feed.Data
	next := e.store.Dispatch(state.FeedMerged{Items: items, Source: source})

	newly := state.NewlyMatched(prev, next.Feed.Data)
	if len(newly) == 0 {
		return
	}
	notifications := make([]state.Notification, 0, len(newly))
	for _, item := range newly {
		if item.Status == state.MatchMatched && prevStatus(prev, item.ID) == state.MatchPassed {
			e.logger.Warn("server matched an item that was passed locally",
				zap.String("match_id", item.ID))
		}
		// Stable id: the reducer's dedupe makes repeated snapshots emit
		// this at most once.
		notifications = append(notifications, state.Notification{
			ID:        "match:" + item.ID,
			Kind:      "new_match",
			MatchID:   item.ID,
			Text:      "You matched with " + item.Profile.DisplayName,
			CreatedAt: e.now(),
		})
		e.bus.Publish(bus.Now(bus.KindNewMatch, item))
	}
	e.store.Dispatch(state.NotificationsPushed{Items: notifications})
}

func prevStatus(items []state.MatchFeedItem, id string) state.MatchStatus {
	for _, item := range items {
		if item.ID == id {
			return item.Status
		}
	}
	return ""
}

// applyStatusSnapshot folds a by-id status snapshot into the feed as a
// status-only merge.
func (e *Engine) applyStatusSnapshot(snapshot *api.MatchStatusSnapshot, source state.MatchSource) {
	var items []state.MatchFeedItem
	appendAll := func(ids []string, status state.MatchStatus) {
		for _, id := range ids {
			items = append(items, state.MatchFeedItem{ID: id, Status: status})
		}
	}
	appendAll(snapshot.Liked, state.MatchLiked)
	appendAll(snapshot.Passed, state.MatchPassed)
	appendAll(snapshot.Matched, state.MatchMatched)
	appendAll(snapshot.Pending, state.MatchPending)
	if len(items) > 0 {
		e.mergeFeed(items, source)
	}
}

// HandleRealtimeMatchUpdate feeds a pushed match update through the same
// merge path as server responses.
func (e *Engine) HandleRealtimeMatchUpdate(item state.MatchFeedItem) {
	e.mergeFeed([]state.MatchFeedItem{item}, state.SourceRealtime)
}

// HandleRealtimePresence records a participant's presence.
func (e *Engine) HandleRealtimePresence(p state.Presence) {
	e.store.Dispatch(state.PresenceChanged{Presence: p})
	e.bus.Publish(bus.Now(bus.KindPresence, p))
}
