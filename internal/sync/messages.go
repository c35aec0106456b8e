package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mingleapp/mingle/internal/api"
	"github.com/mingleapp/mingle/internal/bus"
	"github.com/mingleapp/mingle/internal/request"
	"github.com/mingleapp/mingle/internal/state"
)

// RefreshConversations loads the conversation list.
func (e *Engine) RefreshConversations(ctx context.Context) error {
	e.store.Dispatch(state.ConversationsLoading{})
	items, err := e.messaging.Conversations(ctx)
	if err != nil {
		e.store.Dispatch(state.ConversationsFailed{Err: err.Error()})
		return err
	}
	e.store.Dispatch(state.ConversationsLoaded{Items: items})
	return nil
}

// RefreshMessages loads one conversation's messages. Locally queued
// pending messages are re-upserted afterwards so a full server fetch never
// hides an unconfirmed send.
func (e *Engine) RefreshMessages(ctx context.Context, conversationID string) error {
	e.store.Dispatch(state.MessagesLoading{ConversationID: conversationID})
	items, err := e.messaging.Messages(ctx, conversationID)
	if err != nil {
		e.store.Dispatch(state.MessagesFailed{ConversationID: conversationID, Err: err.Error()})
		return err
	}
	e.store.Dispatch(state.MessagesLoaded{ConversationID: conversationID, Items: items})

	for _, queued := range e.store.State().Outbox {
		if queued.ConversationID != conversationID || queued.Status == state.QueuedMessageSent {
			continue
		}
		e.store.Dispatch(state.MessageUpserted{Message: queuedToMessage(queued, e.selfID())})
	}
	return nil
}

// SendMessage inserts the message optimistically under a client-generated
// idempotency key, then attempts delivery. Offline and transient failures
// leave it queued for the next flush; server rejections mark it failed and
// return the error.
func (e *Engine) SendMessage(ctx context.Context, conversationID, content string, attachments []string) (*state.Message, error) {
	clientID := e.newID()
	queued := state.QueuedMessage{
		ID:                clientID,
		ConversationID:    conversationID,
		ClientGeneratedID: clientID,
		Content:           content,
		Attachments:       attachments,
		CreatedAt:         e.now(),
		Status:            state.QueuedMessageQueued,
	}

	optimistic := queuedToMessage(queued, e.selfID())
	e.store.Dispatch(state.MessageUpserted{Message: optimistic})
	e.store.Dispatch(state.OutboxAdded{Message: queued})
	e.bus.Publish(bus.Now(bus.KindMessageQueued, queued))

	if err := e.deliver(ctx, queued); err != nil {
		var rejected *MessageRejectedError
		if errors.As(err, &rejected) {
			return nil, err
		}
		// Still queued; the caller sees the optimistic message.
		return &optimistic, nil
	}

	msgs := e.store.State().Messages[conversationID].Data
	for i := range msgs {
		if msgs[i].ClientGeneratedID == clientID {
			return &msgs[i], nil
		}
	}
	return &optimistic, nil
}

// FlushOutbox attempts delivery of every queued message, oldest first. It
// stops early when the network is still down.
func (e *Engine) FlushOutbox(ctx context.Context) error {
	for _, queued := range e.store.State().Outbox {
		if queued.Status != state.QueuedMessageQueued {
			continue
		}
		if err := e.deliver(ctx, queued); err != nil {
			if e.offline.Offline(err) {
				return nil
			}
			var rejected *MessageRejectedError
			if errors.As(err, &rejected) {
				continue
			}
			return err
		}
	}
	return nil
}

// deliver performs one send attempt for a queued message and settles its
// outbox entry.
func (e *Engine) deliver(ctx context.Context, queued state.QueuedMessage) error {
	e.store.Dispatch(state.OutboxUpdated{Message: state.QueuedMessage{
		ID:       queued.ID,
		Status:   state.QueuedMessageSending,
		Attempts: queued.Attempts + 1,
	}})

	sent, err := e.messaging.Send(ctx, queued.ConversationID, api.SendMessageRequest{
		Content:           queued.Content,
		Attachments:       queued.Attachments,
		ClientGeneratedID: queued.ClientGeneratedID,
	})
	if err == nil {
		e.confirmDelivery(queued, *sent)
		return nil
	}

	if e.offline.Offline(err) || transientSend(err) {
		e.store.Dispatch(state.OutboxUpdated{Message: state.QueuedMessage{
			ID:     queued.ID,
			Status: state.QueuedMessageQueued,
			Error:  err.Error(),
		}})
		e.logger.Info("message delivery deferred",
			zap.String("client_id", queued.ClientGeneratedID),
			zap.Error(err))
		return fmt.Errorf("deliver message: %w", err)
	}

	e.store.Dispatch(state.OutboxUpdated{Message: state.QueuedMessage{
		ID:     queued.ID,
		Status: state.QueuedMessageFailed,
		Error:  err.Error(),
	}})
	e.bus.Publish(bus.Now(bus.KindMessageFailed, queued))
	return &MessageRejectedError{ClientGeneratedID: queued.ClientGeneratedID, Reason: err.Error()}
}

// confirmDelivery replaces the optimistic message with the server's version
// and removes the outbox entry. The same path handles confirmations arriving
// via realtime echo.
func (e *Engine) confirmDelivery(queued state.QueuedMessage, sent state.Message) {
	if sent.ClientGeneratedID == "" {
		sent.ClientGeneratedID = queued.ClientGeneratedID
	}
	e.store.Dispatch(state.MessageUpserted{Message: sent})
	e.store.Dispatch(state.OutboxRemoved{IDs: []string{queued.ID}})
	e.bus.Publish(bus.Now(bus.KindMessageSent, sent))
}

// HandleRealtimeMessage ingests a pushed message. An echo of a locally
// queued message (matched by client-generated id) confirms the pending send
// instead of appending a duplicate.
func (e *Engine) HandleRealtimeMessage(msg state.Message) {
	if msg.ClientGeneratedID != "" {
		for _, queued := range e.store.State().Outbox {
			if queued.ClientGeneratedID == msg.ClientGeneratedID {
				e.confirmDelivery(queued, msg)
				return
			}
		}
	}
	e.store.Dispatch(state.MessageUpserted{Message: msg})
}

// MarkConversationRead zeroes the unread count locally and tells the server.
// The server call is idempotent; an offline failure is left for the next
// refresh to reconcile.
func (e *Engine) MarkConversationRead(ctx context.Context, conversationID string) error {
	e.store.Dispatch(state.ConversationRead{ConversationID: conversationID})
	if err := e.messaging.MarkRead(ctx, conversationID); err != nil {
		if e.offline.Offline(err) {
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) selfID() string {
	if p := e.store.State().Profile.Data; p != nil {
		return p.ID
	}
	return ""
}

func queuedToMessage(q state.QueuedMessage, senderID string) state.Message {
	return state.Message{
		ID:                q.ClientGeneratedID,
		ConversationID:    q.ConversationID,
		SenderID:          senderID,
		Content:           q.Content,
		Attachments:       q.Attachments,
		ClientGeneratedID: q.ClientGeneratedID,
		SentAt:            q.CreatedAt,
		Pending:           true,
	}
}

func transientSend(err error) bool {
	var statusErr *request.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	var transportErr *request.TransportError
	return errors.As(err, &transportErr)
}
