package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mingleapp/mingle/internal/request"
	"github.com/mingleapp/mingle/internal/state"
)

// Events is the events service contract. Details returns (nil, nil) for an
// unknown id.
type Events interface {
	List(ctx context.Context, filters EventFilters, page int) (*EventPage, error)
	Details(ctx context.Context, id string) (*state.Event, error)
	Join(ctx context.Context, id string) error
	Leave(ctx context.Context, id string) error
}

// EventsClient is the HTTP implementation of Events.
type EventsClient struct {
	client *request.Client
}

// NewEventsClient creates an events client over the shared request layer.
func NewEventsClient(c *request.Client) *EventsClient {
	return &EventsClient{client: c}
}

// List fetches one page of events matching the filters.
func (e *EventsClient) List(ctx context.Context, filters EventFilters, page int) (*EventPage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if filters.Location != "" {
		query.Set("location", filters.Location)
	}
	if len(filters.Interests) > 0 {
		query.Set("interests", strings.Join(filters.Interests, ","))
	}

	resp, err := e.client.Do(ctx, request.Request{
		Method: http.MethodGet,
		Path:   "/v1/events",
		Query:  query,
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	var out EventPage
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Details fetches a single event, or nil when the server has no such id.
func (e *EventsClient) Details(ctx context.Context, id string) (*state.Event, error) {
	resp, err := e.client.Do(ctx, request.Request{
		Method: http.MethodGet,
		Path:   "/v1/events/" + id,
		Auth:   true,
	})
	if err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	var out state.Event
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Join registers attendance for an event.
func (e *EventsClient) Join(ctx context.Context, id string) error {
	_, err := e.client.Do(ctx, request.Request{
		Method: http.MethodPost,
		Path:   "/v1/events/" + id + "/join",
		Auth:   true,
	})
	return err
}

// Leave withdraws attendance from an event.
func (e *EventsClient) Leave(ctx context.Context, id string) error {
	_, err := e.client.Do(ctx, request.Request{
		Method: http.MethodPost,
		Path:   "/v1/events/" + id + "/leave",
		Auth:   true,
	})
	return err
}
