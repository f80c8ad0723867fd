package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"slotline/calendar"
	"slotline/models"
	"slotline/utils"
)

// Client implements calendar.Provider against the Google Calendar API using
// a service-account credential.
type Client struct {
	svc *gcal.Service
}

// NewClient reads a service-account JSON file and builds an authenticated
// calendar service.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("google: reading credentials file: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("google: parsing credentials file: %w", err)
	}
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("google: building calendar service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListBusy queries freebusy for the calendar over [windowStart, windowEnd).
func (c *Client) ListBusy(ctx context.Context, calendarID string, windowStart, windowEnd time.Time) ([]models.BusyInterval, error) {
	req := &gcal.FreeBusyRequest{
		TimeMin: windowStart.Format(time.RFC3339),
		TimeMax: windowEnd.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}
	resp, err := c.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, mapErr(err)
	}
	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("%w: calendar %q missing from freebusy response", calendar.ErrNotFound, calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("%w: freebusy: %s", calendar.ErrTransient, cal.Errors[0].Reason)
	}

	busy := make([]models.BusyInterval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			continue
		}
		busy = append(busy, models.BusyInterval{
			Interval: models.TimeInterval{Start: start, End: end},
			Source:   calendarID,
		})
	}
	return busy, nil
}

// CreateEvent inserts an event whose ID is the idempotency key, so a retried
// insert lands on the existing event instead of duplicating it. The slot is
// re-checked against freebusy immediately before the insert; a busy overlap
// surfaces as ErrConflict.
func (c *Client) CreateEvent(ctx context.Context, calendarID, idempotencyKey string, iv models.TimeInterval, subject string, attendees []string) (string, error) {
	if err := c.checkFree(ctx, calendarID, iv, models.TimeInterval{}); err != nil {
		return "", err
	}

	event := &gcal.Event{
		Id:      idempotencyKey,
		Summary: subject,
		Start:   &gcal.EventDateTime{DateTime: iv.Start.Format(time.RFC3339)},
		End:     &gcal.EventDateTime{DateTime: iv.End.Format(time.RFC3339)},
	}
	for _, a := range attendees {
		event.Attendees = append(event.Attendees, &gcal.EventAttendee{Email: a})
	}

	_, err := c.svc.Events.Insert(calendarID, event).Context(ctx).Do()
	if err == nil {
		utils.GetLogger().Debug("google: event created",
			zap.String("calendarId", calendarID), zap.String("eventId", idempotencyKey))
		return idempotencyKey, nil
	}
	if !isDuplicate(err) {
		return "", mapErr(err)
	}

	// The key already exists: a previous attempt got through. Converge the
	// stored event onto the requested interval instead of failing.
	existing, gerr := c.svc.Events.Get(calendarID, idempotencyKey).Context(ctx).Do()
	if gerr != nil {
		return "", mapErr(gerr)
	}
	if existing.Status == "cancelled" {
		event.Status = "confirmed"
		if _, uerr := c.svc.Events.Update(calendarID, idempotencyKey, event).Context(ctx).Do(); uerr != nil {
			return "", mapErr(uerr)
		}
		return idempotencyKey, nil
	}
	if !eventMatches(existing, iv) {
		patch := &gcal.Event{
			Start: &gcal.EventDateTime{DateTime: iv.Start.Format(time.RFC3339)},
			End:   &gcal.EventDateTime{DateTime: iv.End.Format(time.RFC3339)},
		}
		if _, perr := c.svc.Events.Patch(calendarID, idempotencyKey, patch).Context(ctx).Do(); perr != nil {
			return "", mapErr(perr)
		}
	}
	return idempotencyKey, nil
}

// UpdateEvent moves an event to a new interval after re-checking the target
// slot. The event's current range is excluded from the busy set so that
// shrinking or shifting within it is not read as a conflict.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, iv models.TimeInterval) error {
	existing, err := c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return mapErr(err)
	}
	if existing.Status == "cancelled" {
		return fmt.Errorf("%w: event %s is cancelled", calendar.ErrNotFound, eventID)
	}
	if err := c.checkFree(ctx, calendarID, iv, eventInterval(existing)); err != nil {
		return err
	}

	patch := &gcal.Event{
		Start: &gcal.EventDateTime{DateTime: iv.Start.Format(time.RFC3339)},
		End:   &gcal.EventDateTime{DateTime: iv.End.Format(time.RFC3339)},
	}
	if _, err := c.svc.Events.Patch(calendarID, eventID, patch).Context(ctx).Do(); err != nil {
		return mapErr(err)
	}
	utils.GetLogger().Debug("google: event updated",
		zap.String("calendarId", calendarID), zap.String("eventId", eventID))
	return nil
}

// DeleteEvent removes an event; an already-deleted event is not an error.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err == nil || alreadyDeleted(err) {
		return nil
	}
	return mapErr(err)
}

// ListUpcoming returns the next max events from the given instant, skipping
// all-day entries (date without a time of day).
func (c *Client) ListUpcoming(ctx context.Context, calendarID string, from time.Time, max int) ([]models.Event, error) {
	resp, err := c.svc.Events.List(calendarID).
		Context(ctx).
		TimeMin(from.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(max)).
		Do()
	if err != nil {
		return nil, mapErr(err)
	}

	events := make([]models.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil {
			continue
		}
		start, serr := time.Parse(time.RFC3339, item.Start.DateTime)
		end, eerr := time.Parse(time.RFC3339, item.End.DateTime)
		if serr != nil || eerr != nil {
			continue
		}
		ev := models.Event{
			ID:      item.Id,
			Subject: item.Summary,
			Start:   start,
			End:     end,
		}
		for _, a := range item.Attendees {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
		events = append(events, ev)
	}
	return events, nil
}

// checkFree verifies that iv does not overlap any busy period, ignoring
// busy blocks that lie within exclude (the caller's own current slot).
func (c *Client) checkFree(ctx context.Context, calendarID string, iv, exclude models.TimeInterval) error {
	busy, err := c.ListBusy(ctx, calendarID, iv.Start, iv.End)
	if err != nil {
		return err
	}
	for _, b := range busy {
		if !exclude.IsZero() && exclude.Contains(b.Interval) {
			continue
		}
		if b.Interval.Overlaps(iv) {
			return fmt.Errorf("%w: busy %s-%s", calendar.ErrConflict,
				b.Interval.Start.Format(time.RFC3339), b.Interval.End.Format(time.RFC3339))
		}
	}
	return nil
}

func eventInterval(ev *gcal.Event) models.TimeInterval {
	if ev.Start == nil || ev.End == nil {
		return models.TimeInterval{}
	}
	start, serr := time.Parse(time.RFC3339, ev.Start.DateTime)
	end, eerr := time.Parse(time.RFC3339, ev.End.DateTime)
	if serr != nil || eerr != nil {
		return models.TimeInterval{}
	}
	return models.TimeInterval{Start: start, End: end}
}

func eventMatches(ev *gcal.Event, iv models.TimeInterval) bool {
	have := eventInterval(ev)
	return !have.IsZero() && have.Equal(iv)
}

func isDuplicate(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 409 {
		return true
	}
	return errIsReason(err, "duplicate")
}

func alreadyDeleted(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == 404 || gerr.Code == 410) {
		return true
	}
	return errIsReason(err, "deleted")
}

func isRateLimited(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		return true
	}
	return errIsReason(err, "rateLimitExceeded") || errIsReason(err, "userRateLimitExceeded")
}

func errIsReason(err error, reason string) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, e := range gerr.Errors {
		if e.Reason == reason {
			return true
		}
	}
	return false
}

// mapErr translates googleapi and transport errors into the provider
// sentinels.
func mapErr(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%w: %v", calendar.ErrTransient, err)
	}
	switch {
	case isRateLimited(err):
		return fmt.Errorf("%w: %v", calendar.ErrRateLimited, err)
	case gerr.Code == 401 || gerr.Code == 403:
		return fmt.Errorf("%w: %v", calendar.ErrUnauthorized, err)
	case gerr.Code == 404 || gerr.Code == 410:
		return fmt.Errorf("%w: %v", calendar.ErrNotFound, err)
	case gerr.Code == 409:
		return fmt.Errorf("%w: %v", calendar.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", calendar.ErrTransient, err)
	}
}
