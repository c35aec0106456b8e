package state

// Reduce is the pure transition function. It never mutates s or any nested
// collection in place: every changed node gets a new container, so consumers
// can rely on reference comparison for change detection.
func Reduce(s AppState, a Action) AppState {
	switch act := a.(type) {
	case Hydrated:
		return act.State

	case ProfileLoading:
		s.Profile = loading(s.Profile)
	case ProfileLoaded:
		s.Profile = success(s.Profile, act.Profile)
	case ProfileFailed:
		s.Profile = failure(s.Profile, act.Err)
	case PreferencesLoaded:
		s.Preferences = success(s.Preferences, act.Preferences)

	case FeedLoading:
		s.Feed = loading(s.Feed)
	case FeedLoaded:
		s.Feed = success(s.Feed, act.Items)
	case FeedFailed:
		s.Feed = failure(s.Feed, act.Err)
	case FeedMerged:
		s.Feed = success(s.Feed, MergeFeed(s.Feed.Data, act.Items, act.Source))
	case SwipeApplied:
		s.Feed.Data = applySwipe(s.Feed.Data, act)
	case MatchRestored:
		s.Feed.Data = restoreMatch(s.Feed.Data, act.Item)

	case PendingSwipeAdded:
		s.PendingSwipes = upsertSwipe(s.PendingSwipes, act.Swipe)
	case PendingSwipeUpdated:
		s.PendingSwipes = upsertSwipe(s.PendingSwipes, act.Swipe)
	case PendingSwipesRemoved:
		s.PendingSwipes = removeSwipes(s.PendingSwipes, act.IDs)

	case EventsLoading:
		s.Events = loading(s.Events)
	case EventsLoaded:
		s.Events = success(s.Events, act.Items)
	case EventsFailed:
		s.Events = failure(s.Events, act.Err)
	case EventAttendance:
		s.Events.Data = setAttendance(s.Events.Data, act.EventID, act.Joined)

	case ConversationsLoading:
		s.Conversations = loading(s.Conversations)
	case ConversationsLoaded:
		s.Conversations = success(s.Conversations, act.Items)
	case ConversationsFailed:
		s.Conversations = failure(s.Conversations, act.Err)
	case ConversationRead:
		s.Conversations.Data = markRead(s.Conversations.Data, act.ConversationID)

	case MessagesLoading:
		s.Messages = withConversation(s.Messages, act.ConversationID, loading)
	case MessagesLoaded:
		s.Messages = withConversation(s.Messages, act.ConversationID, func(rs ResourceState[[]Message]) ResourceState[[]Message] {
			return success(rs, act.Items)
		})
	case MessagesFailed:
		s.Messages = withConversation(s.Messages, act.ConversationID, func(rs ResourceState[[]Message]) ResourceState[[]Message] {
			return failure(rs, act.Err)
		})
	case MessageUpserted:
		s.Messages = withConversation(s.Messages, act.Message.ConversationID, func(rs ResourceState[[]Message]) ResourceState[[]Message] {
			rs.Data = upsertMessage(rs.Data, act.Message)
			if rs.Status == StatusIdle {
				rs.Status = StatusSuccess
			}
			return rs
		})

	case OutboxAdded:
		s.Outbox = upsertQueued(s.Outbox, act.Message)
	case OutboxUpdated:
		s.Outbox = upsertQueued(s.Outbox, act.Message)
	case OutboxRemoved:
		s.Outbox = removeQueued(s.Outbox, act.IDs)

	case NotificationsPushed:
		s.Notifications = appendNew(s.Notifications, act.Items)
	case NotificationAcked:
		s.Notifications = ackNotification(s.Notifications, act.ID)

	case PresenceChanged:
		next := make(map[string]Presence, len(s.Presence)+1)
		for k, v := range s.Presence {
			next[k] = v
		}
		next[act.Presence.UserID] = act.Presence
		s.Presence = next

	case SessionChanged:
		s.Session = act.Snapshot
	}
	return s
}

// loading preserves existing data and clears any error.
func loading[T any](rs ResourceState[T]) ResourceState[T] {
	rs.Status = StatusLoading
	rs.Error = ""
	return rs
}

// success replaces data wholly and clears any error.
func success[T any](rs ResourceState[T], data T) ResourceState[T] {
	rs.Status = StatusSuccess
	rs.Data = data
	rs.Error = ""
	return rs
}

// failure preserves data and records the error.
func failure[T any](rs ResourceState[T], msg string) ResourceState[T] {
	rs.Status = StatusError
	rs.Error = msg
	return rs
}

func withConversation(m map[string]ResourceState[[]Message], id string, fn func(ResourceState[[]Message]) ResourceState[[]Message]) map[string]ResourceState[[]Message] {
	next := make(map[string]ResourceState[[]Message], len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	rs, ok := next[id]
	if !ok {
		rs = ResourceState[[]Message]{Status: StatusIdle}
	}
	next[id] = fn(rs)
	return next
}

func applySwipe(items []MatchFeedItem, act SwipeApplied) []MatchFeedItem {
	next := make([]MatchFeedItem, len(items))
	copy(next, items)
	for i := range next {
		if next[i].ID != act.MatchID {
			continue
		}
		at := act.At
		item := next[i]
		item.Metadata.Source = SourceLocal
		if act.Decision == DecisionLike {
			item.Status = MatchLiked
			item.Metadata.LikedAt = &at
			item.Metadata.PassedAt = nil
		} else {
			item.Status = MatchPassed
			item.Metadata.PassedAt = &at
			item.Metadata.LikedAt = nil
		}
		next[i] = item
		break
	}
	return next
}

func restoreMatch(items []MatchFeedItem, restored MatchFeedItem) []MatchFeedItem {
	next := make([]MatchFeedItem, len(items))
	copy(next, items)
	for i := range next {
		if next[i].ID == restored.ID {
			next[i] = restored
			break
		}
	}
	return next
}

// MergeFeed reconciles incoming items into local ones by id. Incoming fields
// that are set overwrite local fields, metadata is unioned, unmatched
// incoming items are appended, and local items absent from incoming are
// preserved untouched.
func MergeFeed(local, incoming []MatchFeedItem, source MatchSource) []MatchFeedItem {
	next := make([]MatchFeedItem, len(local))
	copy(next, local)

	index := make(map[string]int, len(next))
	for i := range next {
		index[next[i].ID] = i
	}

	for _, in := range incoming {
		if i, ok := index[in.ID]; ok {
			next[i] = MergeMatch(next[i], in, source)
			continue
		}
		item := in
		if item.Metadata.Source == "" {
			item.Metadata.Source = source
		}
		index[item.ID] = len(next)
		next = append(next, item)
	}
	return next
}

// MergeMatch overlays the set fields of incoming onto local. The server wins
// for any field it echoes; fields it omits keep the local value. Metadata
// timestamps are unioned, never replaced wholesale.
func MergeMatch(local, incoming MatchFeedItem, source MatchSource) MatchFeedItem {
	out := local
	if incoming.Status != "" {
		out.Status = incoming.Status
	}
	if incoming.CompatibilityScore != nil {
		out.CompatibilityScore = incoming.CompatibilityScore
	}
	if incoming.Profile.ID != "" {
		out.Profile = incoming.Profile
	}
	if incoming.SharedInterests != nil {
		out.SharedInterests = incoming.SharedInterests
	}
	out.Metadata = mergeMetadata(local.Metadata, incoming.Metadata, source)
	return out
}

func mergeMetadata(local, incoming MatchMetadata, source MatchSource) MatchMetadata {
	out := local
	if incoming.LikedAt != nil {
		out.LikedAt = incoming.LikedAt
	}
	if incoming.PassedAt != nil {
		out.PassedAt = incoming.PassedAt
	}
	if incoming.MatchedAt != nil {
		out.MatchedAt = incoming.MatchedAt
	}
	if incoming.SyncedAt != nil {
		out.SyncedAt = incoming.SyncedAt
	}
	out.Source = source
	return out
}

// NewlyMatched returns items whose status is matched in next but was not
// matched in prev. Replaying an identical snapshot yields nothing.
func NewlyMatched(prev, next []MatchFeedItem) []MatchFeedItem {
	already := make(map[string]bool, len(prev))
	for _, item := range prev {
		if item.Status == MatchMatched {
			already[item.ID] = true
		}
	}
	var out []MatchFeedItem
	for _, item := range next {
		if item.Status == MatchMatched && !already[item.ID] {
			out = append(out, item)
		}
	}
	return out
}

func upsertSwipe(list []PendingSwipeAction, swipe PendingSwipeAction) []PendingSwipeAction {
	next := make([]PendingSwipeAction, len(list))
	copy(next, list)
	for i := range next {
		if next[i].ID != swipe.ID {
			continue
		}
		// Shallow merge: set fields of the update win, the rest survive.
		merged := next[i]
		if swipe.Decision != "" {
			merged.Decision = swipe.Decision
		}
		if !swipe.ClientTimestamp.IsZero() {
			merged.ClientTimestamp = swipe.ClientTimestamp
		}
		if swipe.Retries != 0 {
			merged.Retries = swipe.Retries
		}
		merged.Error = swipe.Error
		next[i] = merged
		return next
	}
	return append(next, swipe)
}

func removeSwipes(list []PendingSwipeAction, ids []string) []PendingSwipeAction {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	next := make([]PendingSwipeAction, 0, len(list))
	for _, swipe := range list {
		if !drop[swipe.ID] {
			next = append(next, swipe)
		}
	}
	return next
}

func setAttendance(items []Event, id string, joined bool) []Event {
	next := make([]Event, len(items))
	copy(next, items)
	for i := range next {
		if next[i].ID != id {
			continue
		}
		item := next[i]
		if item.Joined == joined {
			break
		}
		item.Joined = joined
		if joined {
			item.Attendees++
		} else if item.Attendees > 0 {
			item.Attendees--
		}
		next[i] = item
		break
	}
	return next
}

func markRead(items []Conversation, id string) []Conversation {
	next := make([]Conversation, len(items))
	copy(next, items)
	for i := range next {
		if next[i].ID == id {
			item := next[i]
			item.UnreadCount = 0
			next[i] = item
			break
		}
	}
	return next
}

func upsertMessage(list []Message, msg Message) []Message {
	next := make([]Message, len(list))
	copy(next, list)
	for i := range next {
		if sameMessage(next[i], msg) {
			// Keep the correlation id if the echo dropped it.
			if msg.ClientGeneratedID == "" {
				msg.ClientGeneratedID = next[i].ClientGeneratedID
			}
			next[i] = msg
			return next
		}
	}
	return append(next, msg)
}

func sameMessage(a, b Message) bool {
	if a.ClientGeneratedID != "" && a.ClientGeneratedID == b.ClientGeneratedID {
		return true
	}
	return a.ID != "" && a.ID == b.ID
}

func upsertQueued(list []QueuedMessage, msg QueuedMessage) []QueuedMessage {
	next := make([]QueuedMessage, len(list))
	copy(next, list)
	for i := range next {
		if next[i].ID != msg.ID {
			continue
		}
		merged := next[i]
		if msg.Status != "" {
			merged.Status = msg.Status
		}
		if msg.Attempts != 0 {
			merged.Attempts = msg.Attempts
		}
		if msg.Content != "" {
			merged.Content = msg.Content
		}
		merged.Error = msg.Error
		next[i] = merged
		return next
	}
	return append(next, msg)
}

func removeQueued(list []QueuedMessage, ids []string) []QueuedMessage {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	next := make([]QueuedMessage, 0, len(list))
	for _, msg := range list {
		if !drop[msg.ID] {
			next = append(next, msg)
		}
	}
	return next
}

func appendNew(list []Notification, items []Notification) []Notification {
	seen := make(map[string]bool, len(list))
	for _, n := range list {
		seen[n.ID] = true
	}
	next := make([]Notification, len(list))
	copy(next, list)
	for _, n := range items {
		if !seen[n.ID] {
			seen[n.ID] = true
			next = append(next, n)
		}
	}
	return next
}

func ackNotification(list []Notification, id string) []Notification {
	next := make([]Notification, 0, len(list))
	for _, n := range list {
		if n.ID != id {
			next = append(next, n)
		}
	}
	return next
}
