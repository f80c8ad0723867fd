package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"slotline/models"
	"slotline/services/timeparse"
	"slotline/utils"
)

// Engine advances a booking session by one conversational turn. It owns the
// state machine only; extraction, persistence, and per-session serialization
// live in the assistant service above it.
type Engine struct {
	Index    *AvailabilityIndex
	Resolver *SlotResolver
	Writer   *CalendarWriter

	StalenessMaxAge time.Duration
	Lookahead       time.Duration
	RefreshRetries  int
	RefreshBackoff  time.Duration
	MaxStrikes      int

	Now func() time.Time
}

type mergeOutcome struct {
	timeProvided     bool
	durationProvided bool
	problem          string
}

// Advance merges the extracted entities into the session's intent and walks
// the state machine until the turn settles on a reply. A returned error
// means the turn aborted (context canceled) and the session must not be
// persisted in whatever half-stepped state it holds.
func (e *Engine) Advance(ctx context.Context, session *models.BookingSession, update models.EntityUpdate) (models.TurnReply, error) {
	if session.State.Terminal() {
		return e.replay(session), nil
	}

	loc := session.Location()
	now := e.now()

	merged := e.applyUpdate(session, update, now, loc)

	if session.State == models.StateAwaitingDisambiguation {
		if reply, settled := e.settlePick(session, update, merged, loc); settled {
			return reply, nil
		}
	}

	forceRefresh := false
	conflictRetried := false
	for hops := 0; hops < 4; hops++ {
		switch session.State {
		case models.StateCollecting:
			if merged.problem != "" {
				return e.ask(session, merged.problem), nil
			}
			if !session.Intent.Ready() {
				return e.ask(session, missingFieldQuestion(session.Intent)), nil
			}
			session.State = models.StateResolving
		case models.StateResolving:
			reply, again, err := e.resolveOnce(ctx, session, now, loc, &forceRefresh, &conflictRetried)
			if err != nil {
				return models.TurnReply{}, err
			}
			if !again {
				return reply, nil
			}
		default:
			return e.replay(session), nil
		}
	}
	return e.ask(session, availabilityRetryQuestion()), nil
}

// applyUpdate folds one turn's extracted entities into the intent. Fields
// that fail validation leave the intent untouched and surface as a problem
// question instead.
func (e *Engine) applyUpdate(session *models.BookingSession, update models.EntityUpdate, now time.Time, loc *time.Location) mergeOutcome {
	var out mergeOutcome

	if s := strings.TrimSpace(update.Subject); s != "" {
		session.Intent.Subject = s
	}
	session.Intent.AddAttendees(update.Attendees...)

	if update.DurationText != "" {
		d, err := timeparse.ParseDurationText(update.DurationText)
		if err != nil {
			out.problem = fmt.Sprintf("I couldn't read %q as a length. How long should it be, for example \"45 minutes\"?", update.DurationText)
		} else {
			session.Intent.Duration = d
			out.durationProvided = true
		}
	}

	if update.TimeText != "" {
		opts := e.parseOpts(session.Intent)
		cands, err := timeparse.Normalize(update.TimeText, now, loc, opts)
		switch {
		case err != nil:
			out.problem = ambiguousTimeQuestion(update.TimeText)
		case len(cands) == 1:
			// An exact phrase pins the slot; a vague one keeps the raw
			// constraint so resolution can re-expand it once the final
			// duration is known.
			session.Intent.CandidateIntervals = cands
			session.Intent.Constraint = ""
			out.timeProvided = true
			e.adoptEmbeddedDuration(session, cands, opts, &out)
		default:
			session.Intent.Constraint = update.TimeText
			session.Intent.CandidateIntervals = nil
			out.timeProvided = true
			e.adoptEmbeddedDuration(session, cands, opts, &out)
		}
	}
	return out
}

// adoptEmbeddedDuration picks up a duration carried inside the time phrase
// itself ("tomorrow at 3 for two hours") when none was given separately.
func (e *Engine) adoptEmbeddedDuration(session *models.BookingSession, cands []models.TimeInterval, opts timeparse.Options, out *mergeOutcome) {
	if session.Intent.Duration > 0 || len(cands) == 0 {
		return
	}
	defDur := opts.DefaultDuration
	if defDur <= 0 {
		defDur = 30 * time.Minute
	}
	if d := cands[0].Duration(); d != defDur {
		session.Intent.Duration = d
		out.durationProvided = true
	}
}

// settlePick handles the turn while alternatives are on the table: a valid
// 1-based selection or a fresh time/duration restarts resolution; anything
// else is a strike, and enough strikes abandon the session.
func (e *Engine) settlePick(session *models.BookingSession, update models.EntityUpdate, merged mergeOutcome, loc *time.Location) (models.TurnReply, bool) {
	switch {
	case update.Selection >= 1 && update.Selection <= len(session.Alternatives):
		chosen := session.Alternatives[update.Selection-1]
		session.Intent.CandidateIntervals = []models.TimeInterval{chosen}
		session.Intent.Constraint = ""
	case merged.timeProvided, merged.durationProvided:
	default:
		session.InvalidPicks++
		if session.InvalidPicks >= e.maxStrikes() {
			return e.fail(session, ErrSessionAbandoned), true
		}
		return e.ask(session, invalidPickQuestion(renderAlternatives(session.Alternatives, loc))), true
	}
	session.InvalidPicks = 0
	session.Alternatives = nil
	session.State = models.StateResolving
	return models.TurnReply{}, false
}

// resolveOnce runs one resolution pass: freshness check, slot resolution,
// and, when a slot is accepted, the calendar write. again=true asks the
// caller to loop after a write conflict forced a refresh.
func (e *Engine) resolveOnce(ctx context.Context, session *models.BookingSession, now time.Time, loc *time.Location, forceRefresh, conflictRetried *bool) (models.TurnReply, bool, error) {
	if err := e.ensureFresh(ctx, session, now, *forceRefresh); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.TurnReply{}, false, err
		}
		utils.GetLogger().Warn("availability refresh exhausted",
			zap.String("sessionId", session.ID),
			zap.String("calendarId", session.CalendarID),
			zap.Error(err))
		return e.ask(session, availabilityRetryQuestion()), false, nil
	}
	*forceRefresh = false

	res, err := e.Resolver.Resolve(session.Intent, session.CalendarID, now, loc)
	switch {
	case errors.Is(err, ErrAmbiguousTime):
		fragment := session.Intent.Constraint
		session.Intent.Constraint = ""
		session.Intent.CandidateIntervals = nil
		session.State = models.StateCollecting
		return e.ask(session, ambiguousTimeQuestion(fragment)), false, nil
	case errors.Is(err, ErrNoAvailability):
		return e.fail(session, err), false, nil
	case err != nil:
		return e.fail(session, err), false, nil
	}

	if res.Accepted == nil {
		session.Alternatives = res.Alternatives
		session.State = models.StateAwaitingDisambiguation
		return e.ask(session, alternativesQuestion(renderAlternatives(res.Alternatives, loc))), false, nil
	}

	result, err := e.Writer.Commit(ctx, session, *res.Accepted)
	switch {
	case err == nil:
		session.EventID = result.EventID
		session.Result = result
		session.State = models.StateConfirmed
		session.Alternatives = nil
		return models.TurnReply{SessionID: session.ID, State: session.State, Result: result}, false, nil
	case errors.Is(err, ErrWriteConflict):
		if !*conflictRetried {
			*conflictRetried = true
			*forceRefresh = true
			return models.TurnReply{}, true, nil
		}
		// Second collision in one turn: stop racing and let the user pick.
		// The write proved the slot taken even if the snapshot lags, so it
		// is excluded from the offers.
		raw := e.Index.FreeSlotsNear(session.CalendarID, *res.Accepted, e.Resolver.maxAlternatives()+1, e.Resolver.granularity())
		alts := make([]models.TimeInterval, 0, len(raw))
		for _, alt := range raw {
			if !alt.Overlaps(*res.Accepted) {
				alts = append(alts, alt)
			}
		}
		if len(alts) > e.Resolver.maxAlternatives() {
			alts = alts[:e.Resolver.maxAlternatives()]
		}
		if len(alts) == 0 {
			return e.fail(session, fmt.Errorf("%w: slot taken with no nearby openings", ErrNoAvailability)), false, nil
		}
		session.Alternatives = alts
		session.State = models.StateAwaitingDisambiguation
		return e.ask(session, alternativesQuestion(renderAlternatives(alts, loc))), false, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.TurnReply{}, false, err
	default:
		return e.fail(session, err), false, nil
	}
}

// ensureFresh refreshes the calendar's availability snapshot when it is
// missing, stale, or a refresh is forced, retrying with doubling backoff. A
// stale snapshot is never silently used for resolution.
func (e *Engine) ensureFresh(ctx context.Context, session *models.BookingSession, now time.Time, force bool) error {
	if !force && !e.Index.Stale(session.CalendarID, e.stalenessMaxAge()) {
		return nil
	}
	window := e.refreshWindow(session, now)
	delay := e.refreshBackoff()
	var err error
	for attempt := 0; attempt <= e.refreshRetries(); attempt++ {
		if attempt > 0 {
			if waitErr := wait(ctx, delay); waitErr != nil {
				return waitErr
			}
			delay *= 2
		}
		if err = e.Index.Refresh(ctx, session.CalendarID, window); err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

// refreshWindow spans the lookahead horizon, stretched to cover any
// candidate that lands past it.
func (e *Engine) refreshWindow(session *models.BookingSession, now time.Time) models.TimeInterval {
	end := now.Add(e.lookahead())
	for _, c := range session.Intent.CandidateIntervals {
		if c.End.After(end) {
			end = c.End
		}
	}
	return models.TimeInterval{Start: now.UTC(), End: end.UTC()}
}

func (e *Engine) ask(session *models.BookingSession, question string) models.TurnReply {
	reply := models.TurnReply{
		SessionID: session.ID,
		State:     session.State,
		Question:  question,
	}
	if len(session.Alternatives) > 0 {
		reply.Alternatives = renderAlternatives(session.Alternatives, session.Location())
	}
	return reply
}

func (e *Engine) fail(session *models.BookingSession, cause error) models.TurnReply {
	session.State = models.StateFailed
	session.FailReason = failureReason(cause)
	session.Alternatives = nil
	utils.GetLogger().Info("booking session failed",
		zap.String("sessionId", session.ID),
		zap.String("reason", session.FailReason))
	return models.TurnReply{SessionID: session.ID, State: session.State, Failure: session.FailReason}
}

func (e *Engine) replay(session *models.BookingSession) models.TurnReply {
	reply := models.TurnReply{SessionID: session.ID, State: session.State}
	if session.State == models.StateConfirmed {
		reply.Result = session.Result
	} else {
		reply.Failure = session.FailReason
	}
	return reply
}

func (e *Engine) parseOpts(intent models.BookingIntent) timeparse.Options {
	opts := e.Resolver.ParseOpts
	if intent.Duration > 0 {
		opts.DefaultDuration = intent.Duration
	}
	return opts
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) maxStrikes() int {
	if e.MaxStrikes > 0 {
		return e.MaxStrikes
	}
	return 3
}

func (e *Engine) stalenessMaxAge() time.Duration {
	if e.StalenessMaxAge > 0 {
		return e.StalenessMaxAge
	}
	return time.Minute
}

func (e *Engine) lookahead() time.Duration {
	if e.Lookahead > 0 {
		return e.Lookahead
	}
	return 14 * 24 * time.Hour
}

func (e *Engine) refreshRetries() int {
	if e.RefreshRetries > 0 {
		return e.RefreshRetries
	}
	return 2
}

func (e *Engine) refreshBackoff() time.Duration {
	if e.RefreshBackoff > 0 {
		return e.RefreshBackoff
	}
	return 150 * time.Millisecond
}
