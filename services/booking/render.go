package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"slotline/models"
)

// renderInterval formats an interval in the given zone for user-facing
// replies. Internal times stay UTC; this is the only place they pick up a
// local wall clock.
func renderInterval(iv models.TimeInterval, loc *time.Location) string {
	start := iv.Start.In(loc)
	end := iv.End.In(loc)
	if start.Year() == end.Year() && start.YearDay() == end.YearDay() {
		return fmt.Sprintf("%s %s to %s",
			start.Format("Mon Jan 2"),
			start.Format("3:04 PM"),
			end.Format("3:04 PM"))
	}
	return fmt.Sprintf("%s to %s",
		start.Format("Mon Jan 2 3:04 PM"),
		end.Format("Mon Jan 2 3:04 PM"))
}

func renderAlternatives(alts []models.TimeInterval, loc *time.Location) []string {
	out := make([]string, len(alts))
	for i, alt := range alts {
		out[i] = renderInterval(alt, loc)
	}
	return out
}

func missingFieldQuestion(intent models.BookingIntent) string {
	switch {
	case intent.Subject == "":
		return "What is this appointment for?"
	case !intent.HasTimeSignal():
		return "When would you like to schedule it?"
	default:
		return "How long should it be?"
	}
}

func ambiguousTimeQuestion(fragment string) string {
	if fragment == "" {
		return "I couldn't pin down a time from that. When would you like to meet?"
	}
	return fmt.Sprintf("I couldn't pin down a time from %q. Could you give a more specific day and time?", fragment)
}

func alternativesQuestion(rendered []string) string {
	var b strings.Builder
	b.WriteString("That time is already taken. The closest openings are:\n")
	for i, alt := range rendered {
		fmt.Fprintf(&b, "%d. %s\n", i+1, alt)
	}
	b.WriteString("Reply with a number to pick one, or suggest another time.")
	return b.String()
}

func invalidPickQuestion(rendered []string) string {
	var b strings.Builder
	b.WriteString("Sorry, I didn't catch which slot you meant. The options are:\n")
	for i, alt := range rendered {
		fmt.Fprintf(&b, "%d. %s\n", i+1, alt)
	}
	b.WriteString("Reply with a number between 1 and ")
	fmt.Fprintf(&b, "%d, or suggest another time.", len(rendered))
	return b.String()
}

func availabilityRetryQuestion() string {
	return "I'm having trouble reaching the calendar right now. Say \"try again\" in a moment, or suggest another time."
}

// failureReason maps a terminal flow error to the text stored on the
// session and echoed on replays.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrSessionAbandoned):
		return "Too many unrecognized replies, so this booking was abandoned. Start a new request when ready."
	case errors.Is(err, ErrNoAvailability):
		return "No open slot could be found near the requested time."
	case errors.Is(err, ErrCalendarUnavailable):
		return "The calendar service is unavailable, so the booking could not be completed."
	case err != nil:
		return err.Error()
	default:
		return "The booking could not be completed."
	}
}
