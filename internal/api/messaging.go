package api

import (
	"context"
	"net/http"

	"github.com/mingleapp/mingle/internal/request"
	"github.com/mingleapp/mingle/internal/state"
)

// Messaging is the messaging service contract. Send must echo back any
// client-supplied idempotency key on the returned message.
type Messaging interface {
	Conversations(ctx context.Context) ([]state.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]state.Message, error)
	Send(ctx context.Context, conversationID string, req SendMessageRequest) (*state.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// MessagingClient is the HTTP implementation of Messaging.
type MessagingClient struct {
	client *request.Client
}

// NewMessagingClient creates a messaging client over the shared request layer.
func NewMessagingClient(c *request.Client) *MessagingClient {
	return &MessagingClient{client: c}
}

// Conversations lists the user's conversations.
func (m *MessagingClient) Conversations(ctx context.Context) ([]state.Conversation, error) {
	resp, err := m.client.Do(ctx, request.Request{
		Method: http.MethodGet,
		Path:   "/v1/conversations",
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out []state.Conversation
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages lists one conversation's messages.
func (m *MessagingClient) Messages(ctx context.Context, conversationID string) ([]state.Message, error) {
	resp, err := m.client.Do(ctx, request.Request{
		Method: http.MethodGet,
		Path:   "/v1/conversations/" + conversationID + "/messages",
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out []state.Message
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send posts a message and returns the server's committed version.
func (m *MessagingClient) Send(ctx context.Context, conversationID string, req SendMessageRequest) (*state.Message, error) {
	resp, err := m.client.Do(ctx, request.Request{
		Method: http.MethodPost,
		Path:   "/v1/conversations/" + conversationID + "/messages",
		Body:   req,
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out state.Message
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead zeroes the unread counter for a conversation.
func (m *MessagingClient) MarkRead(ctx context.Context, conversationID string) error {
	_, err := m.client.Do(ctx, request.Request{
		Method: http.MethodPost,
		Path:   "/v1/conversations/" + conversationID + "/read",
		Auth:   true,
	})
	return err
}
