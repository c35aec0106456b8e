package api

import (
	"context"
	"net/http"

	"github.com/mingleapp/mingle/internal/request"
	"github.com/mingleapp/mingle/internal/state"
)

// Profile is the profile service contract.
type Profile interface {
	Get(ctx context.Context) (*state.Profile, error)
	Update(ctx context.Context, payload state.Profile) (*state.Profile, error)
	Preferences(ctx context.Context) (*state.Preferences, error)
}

// ProfileClient is the HTTP implementation of Profile.
type ProfileClient struct {
	client *request.Client
}

// NewProfileClient creates a profile client over the shared request layer.
func NewProfileClient(c *request.Client) *ProfileClient {
	return &ProfileClient{client: c}
}

// Get fetches the authenticated user's profile.
func (p *ProfileClient) Get(ctx context.Context) (*state.Profile, error) {
	resp, err := p.client.Do(ctx, request.Request{
		Method: http.MethodGet,
		Path:   "/v1/profile",
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out state.Profile
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update saves profile edits and returns the server's version.
func (p *ProfileClient) Update(ctx context.Context, payload state.Profile) (*state.Profile, error) {
	resp, err := p.client.Do(ctx, request.Request{
		Method: http.MethodPut,
		Path:   "/v1/profile",
		Body:   payload,
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out state.Profile
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Preferences fetches the user's discovery preferences.
func (p *ProfileClient) Preferences(ctx context.Context) (*state.Preferences, error) {
	resp, err := p.client.Do(ctx, request.Request{
		Method: http.MethodGet,
		Path:   "/v1/profile/preferences",
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out state.Preferences
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
