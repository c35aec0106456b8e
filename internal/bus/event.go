package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the core. Subscribers filter by namespace
// prefix: "state.", "session.", "net.", "notify.", "presence.", "message.".
const (
	KindStateChanged  = "state.changed"
	KindSessionStatus = "session.status_changed"
	KindNetOnline     = "net.online"
	KindNetOffline    = "net.offline"
	KindNewMatch      = "notify.match"
	KindPresence      = "presence.changed"
	KindMessageQueued = "message.queued"
	KindMessageSent   = "message.sent"
	KindMessageFailed = "message.send_failed"
	KindSwipeSynced   = "swipe.synced"
	KindSwipeRejected = "swipe.rejected"
	KindAuthExpired   = "auth.expired"
)

// Now returns an Event of the given kind stamped with the current time.
func Now(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
