package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"slotline/calendar"
	"slotline/models"
	"slotline/utils"
)

// CalendarWriter commits an accepted slot to the calendar, retrying
// transient provider failures with doubling backoff. Creates carry the
// session's idempotency key, so a retry after a lost response converges on
// the event written by the first attempt instead of booking a duplicate.
type CalendarWriter struct {
	Provider   calendar.Provider
	MaxRetries int
	Backoff    time.Duration
}

// Commit writes the interval as the session's event. A session that
// already holds an event ID is patched in place; otherwise a new event is
// created under the session's idempotency key. On a stale-availability
// conflict the caller gets ErrWriteConflict and should re-resolve; a
// vanished event on update clears the stored ID so the next commit
// recreates it.
func (w *CalendarWriter) Commit(ctx context.Context, session *models.BookingSession, iv models.TimeInterval) (*models.BookingResult, error) {
	if !iv.Valid() {
		return nil, fmt.Errorf("%w: cannot write empty interval", ErrWriteConflict)
	}

	delay := w.backoff()
	for attempt := 0; ; attempt++ {
		var (
			eventID string
			status  models.BookingStatus
			err     error
		)
		if session.EventID != "" {
			eventID = session.EventID
			status = models.BookingUpdated
			err = w.Provider.UpdateEvent(ctx, session.CalendarID, session.EventID, iv)
		} else {
			status = models.BookingCreated
			eventID, err = w.Provider.CreateEvent(ctx, session.CalendarID, session.IdempotencyKey(), iv, session.Intent.Subject, session.Intent.Attendees)
		}
		if err == nil {
			return &models.BookingResult{
				EventID:       eventID,
				FinalInterval: iv.UTC(),
				Status:        status,
			}, nil
		}

		switch {
		case errors.Is(err, calendar.ErrConflict):
			return nil, fmt.Errorf("%w: %v", ErrWriteConflict, err)
		case errors.Is(err, calendar.ErrNotFound):
			// The event we meant to move is gone; recreate on the next pass.
			utils.GetLogger().Warn("event vanished during update",
				zap.String("sessionId", session.ID),
				zap.String("eventId", session.EventID))
			session.EventID = ""
			return nil, fmt.Errorf("%w: event no longer exists", ErrWriteConflict)
		case errors.Is(err, calendar.ErrUnauthorized):
			return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
		case errors.Is(err, calendar.ErrRateLimited), errors.Is(err, calendar.ErrTransient):
			if attempt >= w.maxRetries() {
				return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
			}
			utils.GetLogger().Debug("calendar write retrying",
				zap.String("sessionId", session.ID),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(err))
			if waitErr := wait(ctx, delay); waitErr != nil {
				return nil, waitErr
			}
			delay *= 2
		default:
			return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
		}
	}
}

func (w *CalendarWriter) maxRetries() int {
	if w.MaxRetries > 0 {
		return w.MaxRetries
	}
	return 3
}

func (w *CalendarWriter) backoff() time.Duration {
	if w.Backoff > 0 {
		return w.Backoff
	}
	return 200 * time.Millisecond
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
