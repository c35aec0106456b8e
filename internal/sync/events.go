package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mingleapp/mingle/internal/api"
	"github.com/mingleapp/mingle/internal/state"
)

// RefreshEvents loads one page of the event listing with the given filters.
func (e *Engine) RefreshEvents(ctx context.Context, filters api.EventFilters, page int) error {
	e.store.Dispatch(state.EventsLoading{})
	listing, err := e.events.List(ctx, filters, page)
	if err != nil {
		e.store.Dispatch(state.EventsFailed{Err: err.Error()})
		return err
	}
	e.store.Dispatch(state.EventsLoaded{Items: listing.Items})
	return nil
}

// EventDetails fetches one event. A missing event returns (nil, nil).
func (e *Engine) EventDetails(ctx context.Context, eventID string) (*state.Event, error) {
	return e.events.Details(ctx, eventID)
}

// JoinEvent flips attendance optimistically, then confirms with the server.
func (e *Engine) JoinEvent(ctx context.Context, eventID string) error {
	return e.setAttendance(ctx, eventID, true)
}

// LeaveEvent is the inverse of JoinEvent.
func (e *Engine) LeaveEvent(ctx context.Context, eventID string) error {
	return e.setAttendance(ctx, eventID, false)
}

func (e *Engine) setAttendance(ctx context.Context, eventID string, joined bool) error {
	e.store.Dispatch(state.EventAttendance{EventID: eventID, Joined: joined})

	var err error
	if joined {
		err = e.events.Join(ctx, eventID)
	} else {
		err = e.events.Leave(ctx, eventID)
	}
	if err == nil {
		return nil
	}

	e.store.Dispatch(state.EventAttendance{EventID: eventID, Joined: !joined})
	e.logger.Warn("event attendance reverted",
		zap.String("event_id", eventID),
		zap.Bool("joined", joined),
		zap.Error(err))
	return fmt.Errorf("update attendance: %w", err)
}
