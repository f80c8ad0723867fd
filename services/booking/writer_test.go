package booking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotline/calendar"
	"slotline/models"
)

func newTestSession() *models.BookingSession {
	return &models.BookingSession{
		ID:         "7b0d3c9a-6f1e-4a28-9f5b-2f4c8d1e0a33",
		UserID:     "user-1",
		CalendarID: "primary",
		Timezone:   "UTC",
		State:      models.StateResolving,
		Intent: models.BookingIntent{
			Subject:  "dentist",
			Duration: 30 * time.Minute,
		},
	}
}

func newTestWriter(p *fakeProvider) *CalendarWriter {
	return &CalendarWriter{Provider: p, MaxRetries: 2, Backoff: time.Millisecond}
}

func TestCommitCreatesUnderIdempotencyKey(t *testing.T) {
	p := newFakeProvider()
	sess := newTestSession()
	iv := span(at(monday, 10, 0), 30*time.Minute)

	result, err := newTestWriter(p).Commit(context.Background(), sess, iv)

	require.NoError(t, err)
	assert.Equal(t, models.BookingCreated, result.Status)
	assert.Equal(t, sess.IdempotencyKey(), result.EventID)
	assert.Equal(t, iv, result.FinalInterval)
	assert.Equal(t, 1, p.createCalls)
	assert.Contains(t, p.events, sess.IdempotencyKey())
}

func TestCommitUpdatesExistingEvent(t *testing.T) {
	p := newFakeProvider()
	sess := newTestSession()
	sess.EventID = "evt-1"
	p.events["evt-1"] = span(at(monday, 10, 0), 30*time.Minute)
	moved := span(at(monday, 15, 0), 30*time.Minute)

	result, err := newTestWriter(p).Commit(context.Background(), sess, moved)

	require.NoError(t, err)
	assert.Equal(t, models.BookingUpdated, result.Status)
	assert.Equal(t, "evt-1", result.EventID)
	assert.Equal(t, 0, p.createCalls)
	assert.Equal(t, 1, p.updateCalls)
	assert.Equal(t, moved, p.events["evt-1"])
}

func TestCommitRetriesTransientThenSucceeds(t *testing.T) {
	p := newFakeProvider()
	failures := 2
	p.createFn = func(key string, iv models.TimeInterval) (string, error) {
		if p.createCalls <= failures {
			return "", fmt.Errorf("%w: flaky backend", calendar.ErrTransient)
		}
		p.events[key] = iv
		return key, nil
	}
	sess := newTestSession()

	result, err := newTestWriter(p).Commit(context.Background(), sess, span(at(monday, 10, 0), 30*time.Minute))

	require.NoError(t, err)
	assert.Equal(t, models.BookingCreated, result.Status)
	assert.Equal(t, 3, p.createCalls)
}

func TestCommitExhaustsRetries(t *testing.T) {
	p := newFakeProvider()
	p.createFn = func(string, models.TimeInterval) (string, error) {
		return "", fmt.Errorf("%w: still flaky", calendar.ErrRateLimited)
	}

	_, err := newTestWriter(p).Commit(context.Background(), newTestSession(), span(at(monday, 10, 0), 30*time.Minute))

	require.ErrorIs(t, err, ErrCalendarUnavailable)
	assert.Equal(t, 3, p.createCalls, "initial attempt plus MaxRetries")
}

func TestCommitConflictNotRetried(t *testing.T) {
	p := newFakeProvider()
	p.createFn = func(string, models.TimeInterval) (string, error) {
		return "", fmt.Errorf("%w: slot taken", calendar.ErrConflict)
	}

	_, err := newTestWriter(p).Commit(context.Background(), newTestSession(), span(at(monday, 10, 0), 30*time.Minute))

	require.ErrorIs(t, err, ErrWriteConflict)
	assert.Equal(t, 1, p.createCalls)
}

func TestCommitUnauthorizedNotRetried(t *testing.T) {
	p := newFakeProvider()
	p.createFn = func(string, models.TimeInterval) (string, error) {
		return "", fmt.Errorf("%w: token revoked", calendar.ErrUnauthorized)
	}

	_, err := newTestWriter(p).Commit(context.Background(), newTestSession(), span(at(monday, 10, 0), 30*time.Minute))

	require.ErrorIs(t, err, ErrCalendarUnavailable)
	assert.Equal(t, 1, p.createCalls)
}

func TestCommitUpdateOnVanishedEvent(t *testing.T) {
	p := newFakeProvider()
	p.updateFn = func(string, models.TimeInterval) error {
		return fmt.Errorf("%w: gone", calendar.ErrNotFound)
	}
	sess := newTestSession()
	sess.EventID = "evt-dead"

	_, err := newTestWriter(p).Commit(context.Background(), sess, span(at(monday, 10, 0), 30*time.Minute))

	require.ErrorIs(t, err, ErrWriteConflict)
	assert.Empty(t, sess.EventID, "vanished event ID must be cleared so the retry recreates")
}

func TestCommitAbortsOnCanceledContext(t *testing.T) {
	p := newFakeProvider()
	p.createFn = func(string, models.TimeInterval) (string, error) {
		return "", fmt.Errorf("%w: flaky backend", calendar.ErrTransient)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestWriter(p).Commit(ctx, newTestSession(), span(at(monday, 10, 0), 30*time.Minute))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.createCalls)
}

func TestCommitRejectsEmptyInterval(t *testing.T) {
	_, err := newTestWriter(newFakeProvider()).Commit(context.Background(), newTestSession(), models.TimeInterval{})
	assert.ErrorIs(t, err, ErrWriteConflict)
}
