package models

import "time"

// BookingIntent accumulates what the user has asked for so far.
// It is owned by exactly one session and mutated only between turns,
// never concurrently.
type BookingIntent struct {
	Subject            string         `json:"subject,omitempty"`
	Duration           time.Duration  `json:"duration,omitempty"`
	Attendees          []string       `json:"attendees,omitempty"`
	CandidateIntervals []TimeInterval `json:"candidateIntervals,omitempty"`
	Constraint         string         `json:"constraint,omitempty"` // unresolved fuzzy text, e.g. "sometime next week"
}

// HasTimeSignal reports whether the intent carries anything a resolver
// could turn into a concrete slot.
func (bi BookingIntent) HasTimeSignal() bool {
	return len(bi.CandidateIntervals) > 0 || bi.Constraint != ""
}

// Ready reports whether enough is known to attempt resolution.
func (bi BookingIntent) Ready() bool {
	return bi.Subject != "" && bi.Duration > 0 && bi.HasTimeSignal()
}

// AddAttendees merges new attendees into the set, skipping blanks and
// duplicates.
func (bi *BookingIntent) AddAttendees(names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		dup := false
		for _, have := range bi.Attendees {
			if have == name {
				dup = true
				break
			}
		}
		if !dup {
			bi.Attendees = append(bi.Attendees, name)
		}
	}
}
