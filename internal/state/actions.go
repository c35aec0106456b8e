package state

import "time"

// Action is the closed set of state transitions. Every variant is declared
// in this file; the reducer switches over all of them. Name returns the
// "<resource>/<verb>" label used in logs.
type Action interface {
	Name() string
	isAction()
}

type action struct{}

func (action) isAction() {}

// Hydrated replaces the whole tree with a restored snapshot.
type Hydrated struct {
	action
	State AppState
}

func (Hydrated) Name() string { return "state/hydrated" }

// ProfileLoading marks the profile resource as loading.
type ProfileLoading struct{ action }

func (ProfileLoading) Name() string { return "profile/loading" }

// ProfileLoaded replaces the profile resource data.
type ProfileLoaded struct {
	action
	Profile *Profile
}

func (ProfileLoaded) Name() string { return "profile/success" }

// ProfileFailed records a profile load/save failure, keeping prior data.
type ProfileFailed struct {
	action
	Err string
}

func (ProfileFailed) Name() string { return "profile/error" }

// PreferencesLoaded replaces the preferences resource data.
type PreferencesLoaded struct {
	action
	Preferences *Preferences
}

func (PreferencesLoaded) Name() string { return "preferences/success" }

// FeedLoading marks the match feed as loading.
type FeedLoading struct{ action }

func (FeedLoading) Name() string { return "matches/feed/loading" }

// FeedLoaded replaces the feed wholesale.
type FeedLoaded struct {
	action
	Items []MatchFeedItem
}

func (FeedLoaded) Name() string { return "matches/feed/success" }

// FeedFailed records a feed load failure, keeping prior data.
type FeedFailed struct {
	action
	Err string
}

func (FeedFailed) Name() string { return "matches/feed/error" }

// FeedMerged reconciles server items into the feed by id: present fields
// overwrite, metadata is unioned, unmatched items append, local-only items
// are preserved.
type FeedMerged struct {
	action
	Items  []MatchFeedItem
	Source MatchSource
}

func (FeedMerged) Name() string { return "matches/feed/merge" }

// SwipeApplied commits an optimistic like/pass decision on a feed item.
type SwipeApplied struct {
	action
	MatchID  string
	Decision SwipeDecision
	At       time.Time
}

func (SwipeApplied) Name() string { return "matches/swipe/apply" }

// MatchRestored reverts a feed item to its pre-swipe value after a server
// rejection.
type MatchRestored struct {
	action
	Item MatchFeedItem
}

func (MatchRestored) Name() string { return "matches/swipe/rollback" }

// PendingSwipeAdded upserts a pending swipe (merged by id, never duplicated).
type PendingSwipeAdded struct {
	action
	Swipe PendingSwipeAction
}

func (PendingSwipeAdded) Name() string { return "matches/pending/add" }

// PendingSwipeUpdated merges updated fields into an existing pending swipe.
type PendingSwipeUpdated struct {
	action
	Swipe PendingSwipeAction
}

func (PendingSwipeUpdated) Name() string { return "matches/pending/update" }

// PendingSwipesRemoved deletes pending swipes by id set.
type PendingSwipesRemoved struct {
	action
	IDs []string
}

func (PendingSwipesRemoved) Name() string { return "matches/pending/remove" }

// EventsLoading marks the events resource as loading.
type EventsLoading struct{ action }

func (EventsLoading) Name() string { return "events/loading" }

// EventsLoaded replaces the events collection.
type EventsLoaded struct {
	action
	Items []Event
}

func (EventsLoaded) Name() string { return "events/success" }

// EventsFailed records an events load failure, keeping prior data.
type EventsFailed struct {
	action
	Err string
}

func (EventsFailed) Name() string { return "events/error" }

// EventAttendance toggles the local joined flag for an event.
type EventAttendance struct {
	action
	EventID string
	Joined  bool
}

func (EventAttendance) Name() string { return "events/attendance" }

// ConversationsLoading marks the conversation list as loading.
type ConversationsLoading struct{ action }

func (ConversationsLoading) Name() string { return "conversations/loading" }

// ConversationsLoaded replaces the conversation list.
type ConversationsLoaded struct {
	action
	Items []Conversation
}

func (ConversationsLoaded) Name() string { return "conversations/success" }

// ConversationsFailed records a conversation list failure.
type ConversationsFailed struct {
	action
	Err string
}

func (ConversationsFailed) Name() string { return "conversations/error" }

// ConversationRead zeroes a conversation's unread count.
type ConversationRead struct {
	action
	ConversationID string
}

func (ConversationRead) Name() string { return "conversations/read" }

// MessagesLoading marks one conversation's messages as loading.
type MessagesLoading struct {
	action
	ConversationID string
}

func (MessagesLoading) Name() string { return "messages/loading" }

// MessagesLoaded replaces one conversation's message list.
type MessagesLoaded struct {
	action
	ConversationID string
	Items          []Message
}

func (MessagesLoaded) Name() string { return "messages/success" }

// MessagesFailed records a message list failure for one conversation.
type MessagesFailed struct {
	action
	ConversationID string
	Err            string
}

func (MessagesFailed) Name() string { return "messages/error" }

// MessageUpserted inserts or replaces a message, deduplicating by
// ClientGeneratedID first and server id second. A realtime echo of a locally
// inserted message replaces it in place instead of appending.
type MessageUpserted struct {
	action
	Message Message
}

func (MessageUpserted) Name() string { return "messages/upsert" }

// OutboxAdded upserts a queued outgoing message by id.
type OutboxAdded struct {
	action
	Message QueuedMessage
}

func (OutboxAdded) Name() string { return "messages/outbox/add" }

// OutboxUpdated merges updated fields into a queued message.
type OutboxUpdated struct {
	action
	Message QueuedMessage
}

func (OutboxUpdated) Name() string { return "messages/outbox/update" }

// OutboxRemoved deletes queued messages by id set.
type OutboxRemoved struct {
	action
	IDs []string
}

func (OutboxRemoved) Name() string { return "messages/outbox/remove" }

// NotificationsPushed appends genuinely new notifications (deduped by id).
type NotificationsPushed struct {
	action
	Items []Notification
}

func (NotificationsPushed) Name() string { return "notifications/notify" }

// NotificationAcked removes a notification by id.
type NotificationAcked struct {
	action
	ID string
}

func (NotificationAcked) Name() string { return "notifications/ack" }

// PresenceChanged records a participant's latest presence.
type PresenceChanged struct {
	action
	Presence Presence
}

func (PresenceChanged) Name() string { return "presence/change" }

// SessionChanged records the realtime session snapshot.
type SessionChanged struct {
	action
	Snapshot SessionSnapshot
}

func (SessionChanged) Name() string { return "session/change" }
