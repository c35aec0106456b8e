package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mingleapp/mingle/internal/api"
	"github.com/mingleapp/mingle/internal/bus"
	"github.com/mingleapp/mingle/internal/cache"
	"github.com/mingleapp/mingle/internal/request"
	"github.com/mingleapp/mingle/internal/state"
	"github.com/mingleapp/mingle/internal/store"
)

type fakeProfile struct {
	profile     *state.Profile
	preferences *state.Preferences
	updateErr   error
}

func (f *fakeProfile) Get(ctx context.Context) (*state.Profile, error) {
	return f.profile, nil
}

func (f *fakeProfile) Update(ctx context.Context, payload state.Profile) (*state.Profile, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &payload, nil
}

func (f *fakeProfile) Preferences(ctx context.Context) (*state.Preferences, error) {
	return f.preferences, nil
}

type fakeMatching struct {
	syncRequests []api.SyncLikesRequest
	syncFn       func(api.SyncLikesRequest) (*api.SyncLikesResult, error)
	feedFn       func() (*api.FeedPage, error)
	statusFn     func() (*api.MatchStatusSnapshot, error)
}

func (f *fakeMatching) Feed(ctx context.Context) (*api.FeedPage, error) {
	if f.feedFn == nil {
		return &api.FeedPage{}, nil
	}
	return f.feedFn()
}

func (f *fakeMatching) Status(ctx context.Context) (*api.MatchStatusSnapshot, error) {
	if f.statusFn == nil {
		return &api.MatchStatusSnapshot{}, nil
	}
	return f.statusFn()
}

func (f *fakeMatching) SyncLikes(ctx context.Context, req api.SyncLikesRequest) (*api.SyncLikesResult, error) {
	f.syncRequests = append(f.syncRequests, req)
	if f.syncFn == nil {
		return &api.SyncLikesResult{}, nil
	}
	return f.syncFn(req)
}

type fakeEvents struct {
	listFn   func() (*api.EventPage, error)
	joinErr  error
	leaveErr error
}

func (f *fakeEvents) List(ctx context.Context, filters api.EventFilters, page int) (*api.EventPage, error) {
	if f.listFn == nil {
		return &api.EventPage{}, nil
	}
	return f.listFn()
}

func (f *fakeEvents) Details(ctx context.Context, id string) (*state.Event, error) {
	return nil, nil
}

func (f *fakeEvents) Join(ctx context.Context, id string) error  { return f.joinErr }
func (f *fakeEvents) Leave(ctx context.Context, id string) error { return f.leaveErr }

type fakeMessaging struct {
	sendRequests []api.SendMessageRequest
	sendFn       func(conversationID string, req api.SendMessageRequest) (*state.Message, error)
	markReadErr  error
}

func (f *fakeMessaging) Conversations(ctx context.Context) ([]state.Conversation, error) {
	return nil, nil
}

func (f *fakeMessaging) Messages(ctx context.Context, conversationID string) ([]state.Message, error) {
	return nil, nil
}

func (f *fakeMessaging) Send(ctx context.Context, conversationID string, req api.SendMessageRequest) (*state.Message, error) {
	f.sendRequests = append(f.sendRequests, req)
	if f.sendFn == nil {
		echo := state.Message{
			ID:                "srv-" + req.ClientGeneratedID,
			ConversationID:    conversationID,
			Content:           req.Content,
			ClientGeneratedID: req.ClientGeneratedID,
			SentAt:            time.Now(),
		}
		return &echo, nil
	}
	return f.sendFn(conversationID, req)
}

func (f *fakeMessaging) MarkRead(ctx context.Context, conversationID string) error {
	return f.markReadErr
}

type testEngine struct {
	engine    *Engine
	store     *store.Store
	matching  *fakeMatching
	events    *fakeEvents
	messaging *fakeMessaging
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	logger := zap.NewNop()
	c := cache.New("engine-test", cache.NewMemoryStorage(), cache.Policy{MaxAge: time.Minute}, logger)
	s := store.New(c, bus.New(), logger)

	matching := &fakeMatching{}
	events := &fakeEvents{}
	messaging := &fakeMessaging{}
	e := NewEngine(s, &fakeProfile{}, matching, events, messaging, bus.New(), request.OfflinePolicy{}, logger)
	return &testEngine{engine: e, store: s, matching: matching, events: events, messaging: messaging}
}

func offlineErr() error {
	return &request.TransportError{Err: errors.New("dial tcp 10.0.0.1:443: connect: connection refused")}
}

func seedFeed(t *testing.T, s *store.Store, items ...state.MatchFeedItem) {
	t.Helper()
	s.Dispatch(state.FeedLoaded{Items: items})
}

func feedItem(id string, status state.MatchStatus) state.MatchFeedItem {
	return state.MatchFeedItem{
		ID:       id,
		Status:   status,
		Profile:  state.Profile{ID: "p-" + id, DisplayName: "User " + id},
		Metadata: state.MatchMetadata{Source: state.SourceInitial},
	}
}

func matchStatus(t *testing.T, s *store.Store, id string) state.MatchStatus {
	t.Helper()
	snapshot := s.State()
	item := snapshot.FindMatch(id)
	if item == nil {
		t.Fatalf("match %q not in feed", id)
	}
	return item.Status
}

func TestAcceptMatchOfflineKeepsOptimisticStateQueued(t *testing.T) {
	te := newTestEngine(t)
	seedFeed(t, te.store, feedItem("m1", state.MatchPending))
	te.matching.syncFn = func(api.SyncLikesRequest) (*api.SyncLikesResult, error) {
		return nil, offlineErr()
	}

	if err := te.engine.AcceptMatch(context.Background(), "m1"); err != nil {
		t.Fatalf("AcceptMatch: %v", err)
	}

	if got := matchStatus(t, te.store, "m1"); got != state.MatchLiked {
		t.Fatalf("status = %q, want liked", got)
	}
	pending := te.store.State().PendingSwipes
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].ID != "m1" || pending[0].Decision != state.DecisionLike {
		t.Fatalf("queued swipe = %+v", pending[0])
	}
	if pending[0].Retries != 1 {
		t.Fatalf("retries = %d, want 1", pending[0].Retries)
	}
}

func TestReplayDrainsBacklogOnce(t *testing.T) {
	te := newTestEngine(t)
	seedFeed(t, te.store, feedItem("m1", state.MatchPending), feedItem("m2", state.MatchPending))
	te.matching.syncFn = func(api.SyncLikesRequest) (*api.SyncLikesResult, error) {
		return nil, offlineErr()
	}

	ctx := context.Background()
	if err := te.engine.AcceptMatch(ctx, "m1"); err != nil {
		t.Fatalf("AcceptMatch m1: %v", err)
	}
	if err := te.engine.DeclineMatch(ctx, "m2"); err != nil {
		t.Fatalf("DeclineMatch m2: %v", err)
	}
	if got := len(te.store.State().PendingSwipes); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	// Connectivity restored.
	te.matching.syncFn = func(req api.SyncLikesRequest) (*api.SyncLikesResult, error) {
		ids := make([]string, len(req.Likes))
		for i, l := range req.Likes {
			ids[i] = l.ID
		}
		return &api.SyncLikesResult{Processed: ids}, nil
	}
	if err := te.engine.Replay(ctx); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if got := len(te.store.State().PendingSwipes); got != 0 {
		t.Fatalf("pending after replay = %d, want 0", got)
	}
	if got := matchStatus(t, te.store, "m1"); got != state.MatchLiked {
		t.Fatalf("m1 status = %q, want liked", got)
	}
	if got := matchStatus(t, te.store, "m2"); got != state.MatchPassed {
		t.Fatalf("m2 status = %q, want passed", got)
	}

	// Each attempt was one batch; an empty backlog replays nothing.
	calls := len(te.matching.syncRequests)
	if err := te.engine.Replay(ctx); err != nil {
		t.Fatalf("second Replay: %v", err)
	}
	if len(te.matching.syncRequests) != calls {
		t.Fatalf("replay with empty backlog hit the server")
	}
	if last := te.matching.syncRequests[calls-1]; len(last.Likes) != 2 {
		t.Fatalf("replay batch = %d likes, want 2", len(last.Likes))
	}
}

func TestServerRejectionRollsBackSwipe(t *testing.T) {
	te := newTestEngine(t)
	before := feedItem("m1", state.MatchPending)
	seedFeed(t, te.store, before)
	te.matching.syncFn = func(req api.SyncLikesRequest) (*api.SyncLikesResult, error) {
		return &api.SyncLikesResult{
			Failed: []state.PendingSwipeAction{{ID: "m1", Error: "conflict"}},
		}, nil
	}

	err := te.engine.AcceptMatch(context.Background(), "m1")
	var rejected *SwipeRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err = %v, want SwipeRejectedError", err)
	}
	if rejected.MatchID != "m1" || rejected.Reason != "conflict" {
		t.Fatalf("rejection = %+v", rejected)
	}

	if got := matchStatus(t, te.store, "m1"); got != state.MatchPending {
		t.Fatalf("status after rollback = %q, want pending", got)
	}
	snapshot := te.store.State()
	if item := snapshot.FindMatch("m1"); item.Metadata.LikedAt != nil {
		t.Fatalf("likedAt survived rollback")
	}
	if got := len(te.store.State().PendingSwipes); got != 0 {
		t.Fatalf("pending after rollback = %d, want 0", got)
	}
}

func TestBatchRejectionRollsBackAllAttempted(t *testing.T) {
	te := newTestEngine(t)
	seedFeed(t, te.store, feedItem("m1", state.MatchPending), feedItem("m2", state.MatchPending))
	te.matching.syncFn = func(api.SyncLikesRequest) (*api.SyncLikesResult, error) {
		return nil, offlineErr()
	}

	ctx := context.Background()
	if err := te.engine.AcceptMatch(ctx, "m1"); err != nil {
		t.Fatalf("AcceptMatch m1: %v", err)
	}

	// A 422 is a server verdict, not an outage: nothing stays queued.
	te.matching.syncFn = func(api.SyncLikesRequest) (*api.SyncLikesResult, error) {
		return nil, &request.StatusError{Code: 422, Body: "invalid batch"}
	}
	err := te.engine.AcceptMatch(ctx, "m2")
	var rejected *SwipeRejectedError
	if !errors.As(err, &rejected) || rejected.MatchID != "m2" {
		t.Fatalf("err = %v, want SwipeRejectedError for m2", err)
	}

	if got := len(te.store.State().PendingSwipes); got != 0 {
		t.Fatalf("pending = %d, want 0", got)
	}
	if got := matchStatus(t, te.store, "m2"); got != state.MatchPending {
		t.Fatalf("m2 status = %q, want pending", got)
	}
	// m1's swipe was replayed from the queue, so it unwinds to pending too.
	if got := matchStatus(t, te.store, "m1"); got != state.MatchPending {
		t.Fatalf("m1 status = %q, want pending", got)
	}
}

func TestSwipeOnUnknownMatchIsIgnored(t *testing.T) {
	te := newTestEngine(t)
	seedFeed(t, te.store, feedItem("m1", state.MatchPending))

	if err := te.engine.AcceptMatch(context.Background(), "ghost"); err != nil {
		t.Fatalf("AcceptMatch: %v", err)
	}
	if len(te.matching.syncRequests) != 0 {
		t.Fatalf("unknown match reached the server")
	}
	if got := len(te.store.State().PendingSwipes); got != 0 {
		t.Fatalf("pending = %d, want 0", got)
	}
}

func TestNewMatchNotifiesExactlyOnce(t *testing.T) {
	te := newTestEngine(t)
	seedFeed(t, te.store, feedItem("m1", state.MatchPending))
	matched := feedItem("m1", state.MatchMatched)
	te.matching.syncFn = func(api.SyncLikesRequest) (*api.SyncLikesResult, error) {
		return &api.SyncLikesResult{
			Processed: []string{"m1"},
			Feed:      []state.MatchFeedItem{matched},
		}, nil
	}

	if err := te.engine.AcceptMatch(context.Background(), "m1"); err != nil {
		t.Fatalf("AcceptMatch: %v", err)
	}

	count := func() int {
		n := 0
		for _, notif := range te.store.State().Notifications {
			if notif.ID == "match:m1" {
				n++
			}
		}
		return n
	}
	if got := count(); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}

	// The realtime layer pushes the same match again: already matched, no
	// second notification.
	te.engine.HandleRealtimeMatchUpdate(matched)
	if got := count(); got != 1 {
		t.Fatalf("notifications after realtime repeat = %d, want 1", got)
	}
}

func TestMergePreservesLocalDecisionOnStatuslessRefresh(t *testing.T) {
	te := newTestEngine(t)
	seedFeed(t, te.store, feedItem("m1", state.MatchPending))
	te.matching.syncFn = func(api.SyncLikesRequest) (*api.SyncLikesResult, error) {
		return nil, offlineErr()
	}
	ctx := context.Background()
	if err := te.engine.AcceptMatch(ctx, "m1"); err != nil {
		t.Fatalf("AcceptMatch: %v", err)
	}

	// A feed refresh that carries no status for the item must not clobber
	// the locally applied decision.
	refreshed := feedItem("m1", "")
	score := 0.93
	refreshed.CompatibilityScore = &score
	te.matching.feedFn = func() (*api.FeedPage, error) {
		return &api.FeedPage{Items: []state.MatchFeedItem{refreshed}}, nil
	}
	if err := te.engine.RefreshFeed(ctx); err != nil {
		t.Fatalf("RefreshFeed: %v", err)
	}

	snapshot := te.store.State()
	item := snapshot.FindMatch("m1")
	if item.Status != state.MatchLiked {
		t.Fatalf("status = %q, want local liked to survive refresh", item.Status)
	}
	if item.CompatibilityScore == nil || *item.CompatibilityScore != 0.93 {
		t.Fatalf("score = %v, want server value merged in", item.CompatibilityScore)
	}
}
