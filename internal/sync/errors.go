package sync

import "fmt"

// SwipeRejectedError is returned when the server rejects a swipe. The
// optimistic state has already been rolled back by the time callers see it.
type SwipeRejectedError struct {
	MatchID string
	Reason  string
}

func (e *SwipeRejectedError) Error() string {
	return fmt.Sprintf("swipe on %s rejected: %s", e.MatchID, e.Reason)
}

// MessageRejectedError is returned when the server rejects a message send
// for a non-transient reason. The queued entry is marked failed, not retried.
type MessageRejectedError struct {
	ClientGeneratedID string
	Reason            string
}

func (e *MessageRejectedError) Error() string {
	return fmt.Sprintf("message %s rejected: %s", e.ClientGeneratedID, e.Reason)
}
