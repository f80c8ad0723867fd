package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"slotline/calendar"
	recordsRepo "slotline/database/repository/records"
	"slotline/models"
	"slotline/services/booking"
	ai "slotline/services/intelligence"
	"slotline/services/tasks"
	"slotline/utils"
)

// AssistantService is the conversational surface of the scheduling engine:
// one turn of user text in, one reply out. Everything behind it (extraction,
// resolution, calendar writes, persistence) is hidden from the caller.
type AssistantService interface {
	// IngestTurn advances the conversation by one user message. A blank
	// session ID starts a new conversation.
	IngestTurn(ctx context.Context, req models.TurnRequest) (models.TurnReply, error)

	// GetSession returns the stored session snapshot.
	GetSession(ctx context.Context, sessionID string) (*models.BookingSession, error)

	// CancelSession abandons a conversation, deleting the booked event when
	// one was already written.
	CancelSession(ctx context.Context, sessionID string) (models.TurnReply, error)

	// ListUpcoming returns the next events on the calendar.
	ListUpcoming(ctx context.Context, calendarID string, max int) ([]models.Event, error)

	// ListHistory returns a user's confirmed bookings, newest first.
	ListHistory(ctx context.Context, userID string, limit int64) ([]models.BookingRecord, error)
}

// DefaultAssistantService wires the extractor, the negotiation engine, and
// the session store together, serializing turns per session.
type DefaultAssistantService struct {
	Engine    *booking.Engine
	Store     booking.SessionStore
	Extractor ai.Extractor
	Provider  calendar.Provider

	// Optional side effects on confirmation; nil disables them.
	Records recordsRepo.BookingRecordRepository
	Queue   *asynq.Client

	DefaultCalendarID string
	DefaultTimezone   string
	ReminderLead      time.Duration

	// One mutex per in-flight session so concurrent turns for the same
	// conversation queue up instead of interleaving. Entries are
	// refcounted and dropped when the last holder leaves, so the map
	// never outgrows the number of sessions currently being served.
	lockMu sync.Mutex
	locks  map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

// acquireLock blocks until the caller owns the session's mutex. Every
// acquire must be paired with releaseLock.
func (s *DefaultAssistantService) acquireLock(id string) *sessionLock {
	s.lockMu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*sessionLock)
	}
	lock, ok := s.locks[id]
	if !ok {
		lock = &sessionLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.lockMu.Unlock()

	lock.Lock()
	return lock
}

// releaseLock unlocks the session mutex and evicts the map entry once no
// other turn is holding or waiting on it.
func (s *DefaultAssistantService) releaseLock(id string, lock *sessionLock) {
	lock.Unlock()
	s.lockMu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, id)
	}
	s.lockMu.Unlock()
}

// IngestTurn runs one full turn: load or create the session, extract
// entities from the text, advance the state machine, persist, and fire the
// confirmation side effects. The per-session lock is held for the whole
// turn, so a turn never observes another turn's half-finished state.
func (s *DefaultAssistantService) IngestTurn(ctx context.Context, req models.TurnRequest) (models.TurnReply, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	lock := s.acquireLock(sessionID)
	defer s.releaseLock(sessionID, lock)

	session, err := s.loadOrCreate(ctx, sessionID, req)
	if err != nil {
		return models.TurnReply{}, err
	}

	update, err := s.Extractor.Extract(ctx, req.Text, session.Intent)
	if err != nil {
		// A broken extractor must not kill the conversation; ask again.
		utils.GetLogger().Warn("entity extraction failed",
			zap.String("sessionId", session.ID), zap.Error(err))
		return models.TurnReply{
			SessionID: session.ID,
			State:     session.State,
			Question:  "Sorry, I didn't catch that. Could you rephrase?",
		}, nil
	}

	// A cancel turn tears the session down in any state short of failed,
	// compensating the calendar write when one already landed. A failed
	// session has nothing to undo and simply replays its farewell.
	if update.Cancel && session.State != models.StateFailed {
		return s.cancelLocked(ctx, session)
	}

	wasConfirmed := session.State == models.StateConfirmed

	reply, err := s.Engine.Advance(ctx, session, update)
	if err != nil {
		// The turn aborted mid-step; keep the stored state untouched.
		return models.TurnReply{}, err
	}

	session.UpdatedAt = time.Now()
	if err := s.Store.Save(ctx, session); err != nil {
		return models.TurnReply{}, fmt.Errorf("persisting session %s: %w", session.ID, err)
	}

	if session.State == models.StateConfirmed && !wasConfirmed {
		s.onConfirmed(ctx, session)
	}
	return reply, nil
}

// GetSession returns the stored snapshot for inspection; booking.ErrSessionNotFound
// when the conversation expired or never existed.
func (s *DefaultAssistantService) GetSession(ctx context.Context, sessionID string) (*models.BookingSession, error) {
	return s.Store.Get(ctx, sessionID)
}

// CancelSession abandons a conversation on explicit request, outside the
// normal turn flow.
func (s *DefaultAssistantService) CancelSession(ctx context.Context, sessionID string) (models.TurnReply, error) {
	lock := s.acquireLock(sessionID)
	defer s.releaseLock(sessionID, lock)

	session, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return models.TurnReply{}, err
	}
	return s.cancelLocked(ctx, session)
}

// cancelLocked tears a session down. Turns are serialized per session, so by
// the time a cancel runs any in-flight calendar write has already settled
// and the session tells us whether there is an event to compensate.
func (s *DefaultAssistantService) cancelLocked(ctx context.Context, session *models.BookingSession) (models.TurnReply, error) {
	if session.EventID != "" {
		if err := s.Provider.DeleteEvent(ctx, session.CalendarID, session.EventID); err != nil {
			utils.GetLogger().Error("compensating delete failed",
				zap.String("sessionId", session.ID),
				zap.String("eventId", session.EventID),
				zap.Error(err))
			return models.TurnReply{}, fmt.Errorf("cancelling booked event: %w", err)
		}
		utils.GetLogger().Info("booked event deleted on cancellation",
			zap.String("sessionId", session.ID),
			zap.String("eventId", session.EventID))
	}
	if err := s.Store.Delete(ctx, session.ID); err != nil {
		return models.TurnReply{}, err
	}
	return models.TurnReply{
		SessionID: session.ID,
		State:     models.StateFailed,
		Failure:   "This booking request was cancelled. Start a new one whenever you're ready.",
	}, nil
}

// ListUpcoming surfaces the next events on the calendar, the way the
// assistant answers "what's coming up?".
func (s *DefaultAssistantService) ListUpcoming(ctx context.Context, calendarID string, max int) ([]models.Event, error) {
	if calendarID == "" {
		calendarID = s.DefaultCalendarID
	}
	if max <= 0 || max > 50 {
		max = 10
	}
	return s.Provider.ListUpcoming(ctx, calendarID, time.Now(), max)
}

// ListHistory reads the booking journal for a user. Without a journal
// configured there is simply no history.
func (s *DefaultAssistantService) ListHistory(ctx context.Context, userID string, limit int64) ([]models.BookingRecord, error) {
	if s.Records == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Records.GetByUserID(ctx, userID, limit)
}

func (s *DefaultAssistantService) loadOrCreate(ctx context.Context, sessionID string, req models.TurnRequest) (*models.BookingSession, error) {
	session, err := s.Store.Get(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, booking.ErrSessionNotFound) {
		return nil, err
	}

	now := time.Now()
	session = &models.BookingSession{
		ID:         sessionID,
		UserID:     req.UserID,
		CalendarID: s.DefaultCalendarID,
		Timezone:   s.DefaultTimezone,
		State:      models.StateCollecting,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.CalendarID != "" {
		session.CalendarID = req.CalendarID
	}
	if req.Timezone != "" {
		if _, tzErr := time.LoadLocation(req.Timezone); tzErr == nil {
			session.Timezone = req.Timezone
		}
	}
	return session, nil
}

// onConfirmed journals the booking and schedules its reminder. Both are
// best-effort: the event is already on the calendar, and a lost journal
// entry must not look like a failed booking to the user.
func (s *DefaultAssistantService) onConfirmed(ctx context.Context, session *models.BookingSession) {
	result := session.Result
	if result == nil {
		return
	}

	if s.Records != nil {
		record := models.BookingRecord{
			SessionID:  session.ID,
			UserID:     session.UserID,
			CalendarID: session.CalendarID,
			EventID:    result.EventID,
			Subject:    session.Intent.Subject,
			Start:      result.FinalInterval.Start,
			End:        result.FinalInterval.End,
			Attendees:  session.Intent.Attendees,
			Status:     string(result.Status),
		}
		if _, err := s.Records.Create(ctx, record); err != nil {
			utils.GetLogger().Error("failed to journal booking record",
				zap.String("sessionId", session.ID), zap.Error(err))
		}
	}

	if s.Queue != nil {
		fireAt := result.FinalInterval.Start.Add(-s.ReminderLead)
		if fireAt.After(time.Now()) {
			payload := models.ReminderPayload{
				EventID:    result.EventID,
				SessionID:  session.ID,
				UserID:     session.UserID,
				CalendarID: session.CalendarID,
				Subject:    session.Intent.Subject,
				Start:      result.FinalInterval.Start,
			}
			task, opts, err := tasks.NewReminderTask(payload, fireAt)
			if err == nil {
				_, err = s.Queue.Enqueue(task, opts...)
			}
			if err != nil {
				utils.GetLogger().Error("failed to enqueue reminder",
					zap.String("sessionId", session.ID), zap.Error(err))
			}
		}
	}
}
