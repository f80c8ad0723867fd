package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotline/models"
	"slotline/services/booking"
	"slotline/services/timeparse"
)

var monday = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

// stubProvider is a minimal in-memory calendar for service-level tests.
type stubProvider struct {
	mu          sync.Mutex
	busy        []models.BusyInterval
	events      map[string]models.TimeInterval
	createCalls int
	deleteCalls int
}

func newStubProvider() *stubProvider {
	return &stubProvider{events: make(map[string]models.TimeInterval)}
}

func (p *stubProvider) ListBusy(_ context.Context, _ string, _, _ time.Time) ([]models.BusyInterval, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.BusyInterval(nil), p.busy...), nil
}

func (p *stubProvider) CreateEvent(_ context.Context, _ string, key string, iv models.TimeInterval, _ string, _ []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	p.events[key] = iv
	return key, nil
}

func (p *stubProvider) UpdateEvent(_ context.Context, _ string, eventID string, iv models.TimeInterval) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[eventID] = iv
	return nil
}

func (p *stubProvider) DeleteEvent(_ context.Context, _ string, eventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteCalls++
	delete(p.events, eventID)
	return nil
}

func (p *stubProvider) ListUpcoming(_ context.Context, _ string, from time.Time, max int) ([]models.Event, error) {
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

// scriptedExtractor replays a fixed sequence of entity updates, one per turn.
type scriptedExtractor struct {
	updates []models.EntityUpdate
	err     error
	calls   int
}

func (s *scriptedExtractor) Extract(_ context.Context, _ string, _ models.BookingIntent) (models.EntityUpdate, error) {
	if s.err != nil {
		return models.EntityUpdate{}, s.err
	}
	i := s.calls
	s.calls++
	if i >= len(s.updates) {
		return models.EntityUpdate{}, nil
	}
	return s.updates[i], nil
}

// memoryRecords collects journaled bookings.
type memoryRecords struct {
	mu      sync.Mutex
	records []models.BookingRecord
}

func (m *memoryRecords) Create(_ context.Context, record models.BookingRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.ID == "" {
		record.ID = "rec-1"
	}
	m.records = append(m.records, record)
	return record.ID, nil
}

func (m *memoryRecords) GetByID(_ context.Context, id string) (*models.BookingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			return &m.records[i], nil
		}
	}
	return nil, errors.New("record not found")
}

func (m *memoryRecords) GetBySessionID(_ context.Context, sessionID string) (*models.BookingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].SessionID == sessionID {
			return &m.records[i], nil
		}
	}
	return nil, nil
}

func (m *memoryRecords) GetByUserID(_ context.Context, userID string, limit int64) ([]models.BookingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BookingRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRecords) DeleteByID(_ context.Context, _ string) error { return nil }

func newTestAssistant(p *stubProvider, ex *scriptedExtractor, rec *memoryRecords) *DefaultAssistantService {
	index := booking.NewAvailabilityIndex(p)
	engine := &booking.Engine{
		Index: index,
		Resolver: &booking.SlotResolver{
			Index:           index,
			MaxAlternatives: 3,
			Granularity:     30 * time.Minute,
			ParseOpts:       timeparse.DefaultOptions(),
		},
		Writer:          &booking.CalendarWriter{Provider: p, MaxRetries: 2, Backoff: time.Millisecond},
		StalenessMaxAge: time.Minute,
		Lookahead:       7 * 24 * time.Hour,
		RefreshRetries:  2,
		RefreshBackoff:  time.Millisecond,
		MaxStrikes:      3,
		Now:             func() time.Time { return monday },
	}
	svc := &DefaultAssistantService{
		Engine:            engine,
		Store:             booking.NewMemorySessionStore(),
		Extractor:         ex,
		Provider:          p,
		DefaultCalendarID: "primary",
		DefaultTimezone:   "UTC",
		ReminderLead:      30 * time.Minute,
	}
	if rec != nil {
		svc.Records = rec
	}
	return svc
}

func TestIngestTurnCreatesSessionAndAsks(t *testing.T) {
	p := newStubProvider()
	ex := &scriptedExtractor{updates: []models.EntityUpdate{{}}}
	svc := newTestAssistant(p, ex, nil)

	reply, err := svc.IngestTurn(context.Background(), models.TurnRequest{Text: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.SessionID)
	assert.Equal(t, models.StateCollecting, reply.State)
	assert.Equal(t, "What is this appointment for?", reply.Question)

	stored, err := svc.GetSession(context.Background(), reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCollecting, stored.State)
}

func TestIngestTurnBooksAcrossTurns(t *testing.T) {
	p := newStubProvider()
	ex := &scriptedExtractor{updates: []models.EntityUpdate{
		{Subject: "dentist"},
		{TimeText: "tomorrow at 10am", DurationText: "45 minutes"},
	}}
	rec := &memoryRecords{}
	svc := newTestAssistant(p, ex, rec)
	ctx := context.Background()

	reply, err := svc.IngestTurn(ctx, models.TurnRequest{UserID: "user-1", Text: "book a dentist visit"})
	require.NoError(t, err)
	require.NotEmpty(t, reply.Question)

	reply, err = svc.IngestTurn(ctx, models.TurnRequest{SessionID: reply.SessionID, Text: "tomorrow at 10am for 45 minutes"})
	require.NoError(t, err)
	require.NotNil(t, reply.Result)
	assert.Equal(t, models.StateConfirmed, reply.State)
	assert.Equal(t, models.BookingCreated, reply.Result.Status)
	assert.Equal(t, 1, p.createCalls)

	// Confirmation journaled exactly once with the final slot.
	require.Len(t, rec.records, 1)
	assert.Equal(t, reply.SessionID, rec.records[0].SessionID)
	assert.Equal(t, "user-1", rec.records[0].UserID)
	assert.Equal(t, reply.Result.FinalInterval.Start, rec.records[0].Start)
}

func TestIngestTurnReplaysConfirmedSession(t *testing.T) {
	p := newStubProvider()
	ex := &scriptedExtractor{updates: []models.EntityUpdate{
		{Subject: "standup", TimeText: "tomorrow at 10am", DurationText: "30 minutes"},
		{Subject: "anything else"},
	}}
	rec := &memoryRecords{}
	svc := newTestAssistant(p, ex, rec)
	ctx := context.Background()

	first, err := svc.IngestTurn(ctx, models.TurnRequest{Text: "standup tomorrow at 10"})
	require.NoError(t, err)
	require.NotNil(t, first.Result)

	second, err := svc.IngestTurn(ctx, models.TurnRequest{SessionID: first.SessionID, Text: "book it again"})
	require.NoError(t, err)
	require.NotNil(t, second.Result)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, 1, p.createCalls, "replay must not write a second event")
	assert.Len(t, rec.records, 1, "replay must not journal twice")
}

func TestCancelBeforeWriteDeletesSession(t *testing.T) {
	p := newStubProvider()
	ex := &scriptedExtractor{updates: []models.EntityUpdate{
		{Subject: "checkup"},
		{Cancel: true},
	}}
	svc := newTestAssistant(p, ex, nil)
	ctx := context.Background()

	reply, err := svc.IngestTurn(ctx, models.TurnRequest{Text: "book a checkup"})
	require.NoError(t, err)

	reply, err = svc.IngestTurn(ctx, models.TurnRequest{SessionID: reply.SessionID, Text: "never mind"})
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, reply.State)
	assert.NotEmpty(t, reply.Failure)
	assert.Zero(t, p.deleteCalls)

	_, err = svc.GetSession(ctx, reply.SessionID)
	assert.ErrorIs(t, err, booking.ErrSessionNotFound)
}

func TestCancelSessionCompensatesBookedEvent(t *testing.T) {
	p := newStubProvider()
	ex := &scriptedExtractor{updates: []models.EntityUpdate{
		{Subject: "physio", TimeText: "tomorrow at 10am", DurationText: "30 minutes"},
	}}
	svc := newTestAssistant(p, ex, nil)
	ctx := context.Background()

	reply, err := svc.IngestTurn(ctx, models.TurnRequest{Text: "physio tomorrow at 10"})
	require.NoError(t, err)
	require.NotNil(t, reply.Result)
	require.Len(t, p.events, 1)

	_, err = svc.CancelSession(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.deleteCalls)
	assert.Empty(t, p.events, "compensating delete must remove the booked event")

	_, err = svc.GetSession(ctx, reply.SessionID)
	assert.ErrorIs(t, err, booking.ErrSessionNotFound)
}

func TestCancelTurnAfterConfirmationCompensates(t *testing.T) {
	p := newStubProvider()
	ex := &scriptedExtractor{updates: []models.EntityUpdate{
		{Subject: "physio", TimeText: "tomorrow at 10am", DurationText: "30 minutes"},
		{Cancel: true},
	}}
	rec := &memoryRecords{}
	svc := newTestAssistant(p, ex, rec)
	ctx := context.Background()

	reply, err := svc.IngestTurn(ctx, models.TurnRequest{Text: "physio tomorrow at 10"})
	require.NoError(t, err)
	require.NotNil(t, reply.Result)
	require.Len(t, p.events, 1)

	// A cancel spoken after the booking landed must remove the event, not
	// replay the confirmation.
	reply, err = svc.IngestTurn(ctx, models.TurnRequest{SessionID: reply.SessionID, Text: "actually cancel that"})
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, reply.State)
	assert.NotEmpty(t, reply.Failure)
	assert.Nil(t, reply.Result)
	assert.Equal(t, 1, p.deleteCalls)
	assert.Empty(t, p.events, "compensating delete must remove the booked event")

	_, err = svc.GetSession(ctx, reply.SessionID)
	assert.ErrorIs(t, err, booking.ErrSessionNotFound)
}

func TestSessionLockMapDoesNotLeak(t *testing.T) {
	p := newStubProvider()
	ex := &scriptedExtractor{updates: []models.EntityUpdate{{}, {}, {}}}
	svc := newTestAssistant(p, ex, nil)
	ctx := context.Background()

	reply, err := svc.IngestTurn(ctx, models.TurnRequest{Text: "hi"})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = svc.IngestTurn(ctx, models.TurnRequest{SessionID: reply.SessionID, Text: "still thinking"})
		require.NoError(t, err)
	}

	svc.lockMu.Lock()
	defer svc.lockMu.Unlock()
	assert.Empty(t, svc.locks, "idle sessions must not pin lock entries")
}

func TestIngestTurnSurvivesExtractorFailure(t *testing.T) {
	p := newStubProvider()
	ex := &scriptedExtractor{err: errors.New("model unavailable")}
	svc := newTestAssistant(p, ex, nil)

	reply, err := svc.IngestTurn(context.Background(), models.TurnRequest{Text: "book something"})
	require.NoError(t, err)
	assert.Contains(t, reply.Question, "rephrase")
	assert.Equal(t, models.StateCollecting, reply.State)
}

func TestListUpcomingUsesDefaults(t *testing.T) {
	p := newStubProvider()
	future := time.Now().Add(48 * time.Hour)
	p.events["ev-1"] = models.TimeInterval{Start: future, End: future.Add(time.Hour)}
	svc := newTestAssistant(p, &scriptedExtractor{}, nil)

	events, err := svc.ListUpcoming(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-1", events[0].ID)
}

func TestListHistoryWithoutJournal(t *testing.T) {
	svc := newTestAssistant(newStubProvider(), &scriptedExtractor{}, nil)
	records, err := svc.ListHistory(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Nil(t, records)
}
