// Package api defines the collaborator contracts the core depends on, plus
// thin HTTP implementations over the request layer. The sync engine only
// sees the interfaces; transports are swappable.
package api

import (
	"time"

	"github.com/mingleapp/mingle/internal/state"
)

// FeedMeta accompanies a feed page.
type FeedMeta struct {
	FetchedAt  time.Time `json:"fetched_at"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// FeedPage is the matching service's feed response.
type FeedPage struct {
	Items []state.MatchFeedItem `json:"items"`
	Meta  FeedMeta              `json:"meta"`
}

// MatchStatusSnapshot is the server-authoritative swipe status by id.
type MatchStatusSnapshot struct {
	Liked     []string  `json:"liked"`
	Passed    []string  `json:"passed"`
	Matched   []string  `json:"matched"`
	Pending   []string  `json:"pending"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncLikesRequest replays pending swipes in a batch. The server must be
// safe against the same action id arriving repeatedly.
type SyncLikesRequest struct {
	Likes []state.PendingSwipeAction `json:"likes"`
}

// SyncLikesResult reports per-item outcomes plus optional authoritative
// snapshots to reconcile against.
type SyncLikesResult struct {
	Processed []string                   `json:"processed"`
	Failed    []state.PendingSwipeAction `json:"failed"`
	Feed      []state.MatchFeedItem      `json:"feed,omitempty"`
	Status    *MatchStatusSnapshot       `json:"status,omitempty"`
}

// EventFilters narrows an event listing.
type EventFilters struct {
	Location  string   `json:"location,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// EventPage is one page of an event listing.
type EventPage struct {
	Items      []state.Event `json:"items"`
	Page       int           `json:"page"`
	TotalPages int           `json:"total_pages"`
}

// SendMessageRequest carries an outgoing message. The client-generated id is
// echoed back by the server and by realtime pushes of the same message.
type SendMessageRequest struct {
	Content           string   `json:"content"`
	Attachments       []string `json:"attachments,omitempty"`
	ClientGeneratedID string   `json:"client_generated_id,omitempty"`
}
