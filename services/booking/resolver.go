package booking

import (
	"fmt"
	"time"

	"slotline/models"
	"slotline/services/timeparse"
)

// Resolution is the outcome of matching an intent against availability.
// Exactly one of Accepted or Alternatives is populated.
type Resolution struct {
	Accepted     *models.TimeInterval
	Alternatives []models.TimeInterval
}

// SlotResolver turns a complete intent into a concrete slot, or into a
// short list of nearby openings when every requested slot is taken.
type SlotResolver struct {
	Index           *AvailabilityIndex
	MaxAlternatives int
	Granularity     time.Duration
	ParseOpts       timeparse.Options
}

// Resolve checks the intent's candidate intervals in listed order and
// accepts the first one that is free. When the intent carries only a raw
// time constraint, the constraint is expanded into candidates first. If
// nothing fits, up to MaxAlternatives openings near the first candidate
// come back instead; the caller decides, never the resolver.
func (r *SlotResolver) Resolve(intent models.BookingIntent, calendarID string, ref time.Time, loc *time.Location) (Resolution, error) {
	candidates := intent.CandidateIntervals
	if len(candidates) == 0 && intent.Constraint != "" {
		opts := r.ParseOpts
		if intent.Duration > 0 {
			opts.DefaultDuration = intent.Duration
		}
		expanded, err := timeparse.Normalize(intent.Constraint, ref, loc, opts)
		if err != nil {
			return Resolution{}, fmt.Errorf("%w: %q", ErrAmbiguousTime, intent.Constraint)
		}
		candidates = expanded
	}
	if len(candidates) == 0 {
		return Resolution{}, fmt.Errorf("%w: intent has no time signal", ErrAmbiguousTime)
	}

	if intent.Duration > 0 {
		resized := make([]models.TimeInterval, len(candidates))
		for i, c := range candidates {
			resized[i] = models.NewTimeInterval(c.Start, intent.Duration)
		}
		candidates = resized
	}

	for _, cand := range candidates {
		if !cand.Valid() {
			continue
		}
		if !r.Index.Overlaps(calendarID, cand) {
			accepted := cand
			return Resolution{Accepted: &accepted}, nil
		}
	}

	alts := r.Index.FreeSlotsNear(calendarID, candidates[0], r.maxAlternatives(), r.granularity())
	if len(alts) == 0 {
		return Resolution{}, fmt.Errorf("%w: no openings near %s", ErrNoAvailability, candidates[0].Start.Format(time.RFC3339))
	}
	return Resolution{Alternatives: alts}, nil
}

func (r *SlotResolver) maxAlternatives() int {
	if r.MaxAlternatives > 0 {
		return r.MaxAlternatives
	}
	return 3
}

func (r *SlotResolver) granularity() time.Duration {
	if r.Granularity > 0 {
		return r.Granularity
	}
	return 15 * time.Minute
}
