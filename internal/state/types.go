// Package state holds the client data model and the pure reducer that is the
// single source of truth for every mutation of it.
package state

import "time"

// ResourceStatus is the lifecycle of a remote-backed resource.
type ResourceStatus string

const (
	StatusIdle    ResourceStatus = "idle"
	StatusLoading ResourceStatus = "loading"
	StatusSuccess ResourceStatus = "success"
	StatusError   ResourceStatus = "error"
)

// ResourceState wraps a remote resource. Data retains the last known value
// even while loading or in error, so the UI can render stale-but-available
// content next to an error banner.
type ResourceState[T any] struct {
	Status ResourceStatus `json:"status"`
	Data   T              `json:"data"`
	Error  string         `json:"error,omitempty"`
}

// Profile is the authenticated user's own profile snapshot.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio,omitempty"`
	Age         int       `json:"age,omitempty"`
	Interests   []string  `json:"interests,omitempty"`
	PhotoURLs   []string  `json:"photo_urls,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Preferences are the user's discovery settings.
type Preferences struct {
	MinAge        int      `json:"min_age,omitempty"`
	MaxAge        int      `json:"max_age,omitempty"`
	MaxDistanceKm int      `json:"max_distance_km,omitempty"`
	Interests     []string `json:"interests,omitempty"`
}

// MatchStatus is the per-item swipe state machine:
// pending -> liked -> matched, or pending -> passed (terminal).
type MatchStatus string

const (
	MatchPending MatchStatus = "pending"
	MatchLiked   MatchStatus = "liked"
	MatchPassed  MatchStatus = "passed"
	MatchMatched MatchStatus = "matched"
)

// MatchSource records where the latest version of a feed item came from.
type MatchSource string

const (
	SourceInitial  MatchSource = "initial"
	SourceLocal    MatchSource = "local"
	SourceRealtime MatchSource = "realtime"
	SourceReplay   MatchSource = "replay"
)

// MatchMetadata carries swipe timestamps. Merges union these fields so a
// server echo that omits a timestamp never erases the locally known one.
type MatchMetadata struct {
	LikedAt   *time.Time  `json:"liked_at,omitempty"`
	PassedAt  *time.Time  `json:"passed_at,omitempty"`
	MatchedAt *time.Time  `json:"matched_at,omitempty"`
	SyncedAt  *time.Time  `json:"synced_at,omitempty"`
	Source    MatchSource `json:"source,omitempty"`
}

// MatchFeedItem is one candidate in the match feed. CompatibilityScore is a
// pointer so a server value of exactly 0 is distinguishable from the field
// being absent and can still overwrite a local score on merge.
type MatchFeedItem struct {
	ID                 string        `json:"id"`
	CompatibilityScore *float64      `json:"compatibility_score,omitempty"`
	Profile            Profile       `json:"profile"`
	SharedInterests    []string      `json:"shared_interests,omitempty"`
	Status             MatchStatus   `json:"status"`
	Metadata           MatchMetadata `json:"metadata"`
}

// SwipeDecision is the user's verdict on a feed item.
type SwipeDecision string

const (
	DecisionLike SwipeDecision = "like"
	DecisionPass SwipeDecision = "pass"
)

// PendingSwipeAction is a swipe not yet confirmed by the server. Offline
// failures keep it queued for the next connectivity event; server rejections
// remove it after rollback.
type PendingSwipeAction struct {
	ID              string        `json:"id"`
	Decision        SwipeDecision `json:"decision"`
	ClientTimestamp time.Time     `json:"client_timestamp"`
	Retries         int           `json:"retries,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// QueuedMessageStatus is the outbox entry lifecycle.
type QueuedMessageStatus string

const (
	QueuedMessageQueued  QueuedMessageStatus = "queued"
	QueuedMessageSending QueuedMessageStatus = "sending"
	QueuedMessageSent    QueuedMessageStatus = "sent"
	QueuedMessageFailed  QueuedMessageStatus = "failed"
)

// QueuedMessage is an outgoing message awaiting server confirmation. The
// ClientGeneratedID is the dedup key matched against later HTTP or realtime
// echoes.
type QueuedMessage struct {
	ID                string              `json:"id"`
	ConversationID    string              `json:"conversation_id"`
	ClientGeneratedID string              `json:"client_generated_id"`
	Content           string              `json:"content"`
	Attachments       []string            `json:"attachments,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	Attempts          int                 `json:"attempts,omitempty"`
	Status            QueuedMessageStatus `json:"status"`
	Error             string              `json:"error,omitempty"`
}

// Message is a chat message. Client-originated messages carry the
// ClientGeneratedID they were sent with so realtime echoes can be matched.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	SenderID          string    `json:"sender_id"`
	Content           string    `json:"content"`
	Attachments       []string  `json:"attachments,omitempty"`
	ClientGeneratedID string    `json:"client_generated_id,omitempty"`
	SentAt            time.Time `json:"sent_at"`
	Pending           bool      `json:"pending,omitempty"`
}

// Conversation is a chat thread summary.
type Conversation struct {
	ID              string    `json:"id"`
	ParticipantID   string    `json:"participant_id"`
	ParticipantName string    `json:"participant_name"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageAt   time.Time `json:"last_message_at,omitzero"`
	UnreadCount     int       `json:"unread_count,omitempty"`
}

// Event is a social event the user can join or leave.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartsAt    time.Time `json:"starts_at,omitzero"`
	Attendees   int       `json:"attendees,omitempty"`
	Joined      bool      `json:"joined,omitempty"`
}

// Notification is a user-facing alert (e.g. a new mutual match).
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	MatchID   string    `json:"match_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PresenceStatus is a participant's broadcast availability.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
	PresenceTyping  PresenceStatus = "typing"
)

// Presence is one participant's latest presence snapshot.
type Presence struct {
	UserID string         `json:"user_id"`
	Status PresenceStatus `json:"status"`
	Since  time.Time      `json:"since"`
}

// SessionStatus is the realtime session lifecycle.
type SessionStatus string

const (
	SessionDisconnected SessionStatus = "disconnected"
	SessionConnecting   SessionStatus = "connecting"
	SessionConnected    SessionStatus = "connected"
	SessionReconnecting SessionStatus = "reconnecting"
)

// SessionSnapshot describes the push session. The ID is stable for one
// start/stop lifetime and regenerated on the next start.
type SessionSnapshot struct {
	ID     string        `json:"id"`
	Status SessionStatus `json:"status"`
	Since  time.Time     `json:"since,omitzero"`
}

// AppState is the whole client state tree. It is JSON-serializable; the
// persisted snapshot is decoded over Initial() so missing fields keep their
// defaults and unknown fields are ignored.
type AppState struct {
	Profile       ResourceState[*Profile]             `json:"profile"`
	Preferences   ResourceState[*Preferences]         `json:"preferences"`
	Feed          ResourceState[[]MatchFeedItem]      `json:"feed"`
	Events        ResourceState[[]Event]              `json:"events"`
	Conversations ResourceState[[]Conversation]       `json:"conversations"`
	Messages      map[string]ResourceState[[]Message] `json:"messages"`
	PendingSwipes []PendingSwipeAction                `json:"pending_swipes,omitempty"`
	Outbox        []QueuedMessage                     `json:"outbox,omitempty"`
	Notifications []Notification                      `json:"notifications,omitempty"`
	Presence      map[string]Presence                 `json:"presence,omitempty"`
	Session       SessionSnapshot                     `json:"session"`
}

// Initial returns the default empty state tree.
func Initial() AppState {
	return AppState{
		Profile:       ResourceState[*Profile]{Status: StatusIdle},
		Preferences:   ResourceState[*Preferences]{Status: StatusIdle},
		Feed:          ResourceState[[]MatchFeedItem]{Status: StatusIdle},
		Events:        ResourceState[[]Event]{Status: StatusIdle},
		Conversations: ResourceState[[]Conversation]{Status: StatusIdle},
		Messages:      make(map[string]ResourceState[[]Message]),
		Presence:      make(map[string]Presence),
		Session:       SessionSnapshot{Status: SessionDisconnected},
	}
}

// FindMatch returns the feed item with the given id, or nil.
func (s *AppState) FindMatch(id string) *MatchFeedItem {
	for i := range s.Feed.Data {
		if s.Feed.Data[i].ID == id {
			return &s.Feed.Data[i]
		}
	}
	return nil
}
