package booking

import (
	"context"
	"sync"
	"time"

	"slotline/models"
)

// fakeProvider is an in-memory calendar backend. Default behavior serves the
// busy slice and stores created events keyed by their idempotency key; the
// function hooks override individual calls to script failures.
type fakeProvider struct {
	mu   sync.Mutex
	busy []models.BusyInterval

	events map[string]models.TimeInterval

	listBusyFn func(from, to time.Time) ([]models.BusyInterval, error)
	createFn   func(key string, iv models.TimeInterval) (string, error)
	updateFn   func(eventID string, iv models.TimeInterval) error
	deleteFn   func(eventID string) error

	listBusyCalls int
	createCalls   int
	updateCalls   int
	deleteCalls   int
}

func newFakeProvider(busy ...models.BusyInterval) *fakeProvider {
	return &fakeProvider{busy: busy, events: make(map[string]models.TimeInterval)}
}

func (p *fakeProvider) setBusy(busy ...models.BusyInterval) {
	p.mu.Lock()
	p.busy = busy
	p.mu.Unlock()
}

func (p *fakeProvider) addBusy(iv models.TimeInterval) {
	p.mu.Lock()
	p.busy = append(p.busy, models.BusyInterval{Interval: iv, Source: "fake"})
	p.mu.Unlock()
}

func (p *fakeProvider) ListBusy(_ context.Context, _ string, from, to time.Time) ([]models.BusyInterval, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listBusyCalls++
	if p.listBusyFn != nil {
		return p.listBusyFn(from, to)
	}
	window := models.TimeInterval{Start: from, End: to}
	var out []models.BusyInterval
	for _, b := range p.busy {
		if b.Interval.Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (p *fakeProvider) CreateEvent(_ context.Context, _ string, idempotencyKey string, iv models.TimeInterval, _ string, _ []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.createFn != nil {
		return p.createFn(idempotencyKey, iv)
	}
	p.events[idempotencyKey] = iv
	return idempotencyKey, nil
}

func (p *fakeProvider) UpdateEvent(_ context.Context, _ string, eventID string, iv models.TimeInterval) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateCalls++
	if p.updateFn != nil {
		return p.updateFn(eventID, iv)
	}
	p.events[eventID] = iv
	return nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, _ string, eventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteCalls++
	if p.deleteFn != nil {
		return p.deleteFn(eventID)
	}
	delete(p.events, eventID)
	return nil
}

func (p *fakeProvider) ListUpcoming(_ context.Context, _ string, from time.Time, max int) ([]models.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Event
	for id, iv := range p.events {
		if !iv.Start.Before(from) {
			out = append(out, models.Event{ID: id, Start: iv.Start, End: iv.End})
		}
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func span(start time.Time, d time.Duration) models.TimeInterval {
	return models.TimeInterval{Start: start, End: start.Add(d)}
}

func busyAt(start time.Time, d time.Duration) models.BusyInterval {
	return models.BusyInterval{Interval: span(start, d), Source: "fake"}
}
