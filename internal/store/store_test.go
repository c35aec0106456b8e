package store

import (
	"testing"
	"time"

	"github.com/mingleapp/mingle/internal/bus"
	"github.com/mingleapp/mingle/internal/cache"
	"github.com/mingleapp/mingle/internal/state"
)

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	return cache.New("test", cache.NewMemoryStorage(), cache.Policy{MaxAge: time.Hour}, nil)
}

func TestDispatchApplies(t *testing.T) {
	s := New(testCache(t), nil, nil)

	next := s.Dispatch(state.FeedLoaded{Items: []state.MatchFeedItem{{ID: "m1"}}})

	if next.Feed.Status != state.StatusSuccess {
		t.Errorf("status = %s, want success", next.Feed.Status)
	}
	if got := s.State(); len(got.Feed.Data) != 1 {
		t.Error("State() should reflect the dispatched action")
	}
}

func TestDispatchPersistsSnapshot(t *testing.T) {
	c := testCache(t)
	s := New(c, nil, nil)

	s.Dispatch(state.PendingSwipeAdded{Swipe: state.PendingSwipeAction{ID: "m1", Decision: state.DecisionLike}})

	// A second store over the same cache sees the committed snapshot.
	restored := New(c, nil, nil)
	restored.Hydrate()
	if got := restored.State(); len(got.PendingSwipes) != 1 || got.PendingSwipes[0].ID != "m1" {
		t.Errorf("restored pending swipes = %v, want [m1]", got.PendingSwipes)
	}
}

func TestHydrateMissingSnapshot(t *testing.T) {
	s := New(testCache(t), nil, nil)
	s.Hydrate()

	if got := s.State(); got.Feed.Status != state.StatusIdle {
		t.Errorf("status = %s, want idle initial state", got.Feed.Status)
	}
}

func TestHydrateCorruptSnapshot(t *testing.T) {
	storage := cache.NewMemoryStorage()
	c := cache.New("test", storage, cache.Policy{MaxAge: time.Hour}, nil)
	// A parseable cache entry whose value is not an AppState.
	if err := c.Write(SnapshotKey, "not a state tree", nil); err != nil {
		t.Fatal(err)
	}

	s := New(c, nil, nil)
	s.Hydrate() // must not panic

	if got := s.State(); got.Messages == nil {
		t.Error("corrupt snapshot must fall back to initial state")
	}
}

func TestHydrateResetsSession(t *testing.T) {
	c := testCache(t)
	s := New(c, nil, nil)
	s.Dispatch(state.SessionChanged{Snapshot: state.SessionSnapshot{
		ID: "sess-1", Status: state.SessionConnected, Since: time.Now(),
	}})

	restored := New(c, nil, nil)
	restored.Hydrate()
	if got := restored.State().Session.Status; got != state.SessionDisconnected {
		t.Errorf("restored session status = %s, want disconnected", got)
	}
}

func TestHydrateRequeuesInterruptedSends(t *testing.T) {
	c := testCache(t)
	s := New(c, nil, nil)
	s.Dispatch(state.OutboxAdded{Message: state.QueuedMessage{
		ID:                "out-1",
		ConversationID:    "c1",
		ClientGeneratedID: "cid-1",
		Content:           "hi",
		Status:            state.QueuedMessageSending,
		Attempts:          1,
	}})

	restored := New(c, nil, nil)
	restored.Hydrate()
	outbox := restored.State().Outbox
	if len(outbox) != 1 {
		t.Fatalf("outbox length = %d, want 1", len(outbox))
	}
	if got := outbox[0].Status; got != state.QueuedMessageQueued {
		t.Errorf("restored status = %q, want queued", got)
	}
}

func TestDispatchPublishesChange(t *testing.T) {
	b := bus.New()
	s := New(testCache(t), b, nil)
	ch, unsub := b.Subscribe("state.", 10)
	defer unsub()

	s.Dispatch(state.FeedLoading{})

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(Change)
		if !ok {
			t.Fatalf("payload type = %T, want Change", evt.Payload)
		}
		if change.Action != "matches/feed/loading" {
			t.Errorf("action = %q, want matches/feed/loading", change.Action)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for state.changed event")
	}
}
