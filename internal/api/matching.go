package api

import (
	"context"
	"net/http"

	"github.com/mingleapp/mingle/internal/request"
)

// Matching is the matching service contract. SyncLikes must be safe to call
// repeatedly with the same action ids.
type Matching interface {
	Feed(ctx context.Context) (*FeedPage, error)
	Status(ctx context.Context) (*MatchStatusSnapshot, error)
	SyncLikes(ctx context.Context, req SyncLikesRequest) (*SyncLikesResult, error)
}

// MatchingClient is the HTTP implementation of Matching.
type MatchingClient struct {
	client *request.Client
}

// NewMatchingClient creates a matching client over the shared request layer.
func NewMatchingClient(c *request.Client) *MatchingClient {
	return &MatchingClient{client: c}
}

// Feed fetches the current match feed page.
func (m *MatchingClient) Feed(ctx context.Context) (*FeedPage, error) {
	resp, err := m.client.Do(ctx, request.Request{
		Method: http.MethodGet,
		Path:   "/v1/matches/feed",
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out FeedPage
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the authoritative swipe status snapshot.
func (m *MatchingClient) Status(ctx context.Context) (*MatchStatusSnapshot, error) {
	resp, err := m.client.Do(ctx, request.Request{
		Method: http.MethodGet,
		Path:   "/v1/matches/status",
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out MatchStatusSnapshot
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncLikes replays the given pending swipes in one batch.
func (m *MatchingClient) SyncLikes(ctx context.Context, req SyncLikesRequest) (*SyncLikesResult, error) {
	resp, err := m.client.Do(ctx, request.Request{
		Method: http.MethodPost,
		Path:   "/v1/matches/sync",
		Body:   req,
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out SyncLikesResult
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
