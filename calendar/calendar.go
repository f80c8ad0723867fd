package calendar

import (
	"context"
	"time"

	"slotline/models"
)

// Provider is the external calendar backend the engine reads busy intervals
// from and writes finalized events to. Implementations translate their
// transport errors into the sentinels in errors.go.
type Provider interface {
	// ListBusy returns the blocked ranges on the calendar within
	// [windowStart, windowEnd).
	ListBusy(ctx context.Context, calendarID string, windowStart, windowEnd time.Time) ([]models.BusyInterval, error)

	// CreateEvent writes a new event. The idempotency key is stable across
	// retries for one booking; creating twice with the same key must yield
	// the same single event. Returns ErrConflict when the slot was taken
	// between resolution and write.
	CreateEvent(ctx context.Context, calendarID, idempotencyKey string, iv models.TimeInterval, subject string, attendees []string) (string, error)

	// UpdateEvent moves an existing event to a new interval.
	UpdateEvent(ctx context.Context, calendarID, eventID string, iv models.TimeInterval) error

	// DeleteEvent removes an event, used to compensate a cancelled booking.
	DeleteEvent(ctx context.Context, calendarID, eventID string) error

	// ListUpcoming returns at most max events starting at or after from,
	// ordered by start time. All-day events are not included.
	ListUpcoming(ctx context.Context, calendarID string, from time.Time, max int) ([]models.Event, error)
}
