package models

// EntityUpdate is the untrusted partial record produced by the entity
// extractor for a single turn. Zero values mean "not mentioned"; every
// field is re-validated before it touches the intent.
type EntityUpdate struct {
	Subject      string   `json:"subject,omitempty"`       // what the meeting is about
	DurationText string   `json:"duration_text,omitempty"` // e.g. "45 minutes", "1.5 hours"
	TimeText     string   `json:"time_text,omitempty"`     // e.g. "next tuesday at 3pm"
	Attendees    []string `json:"attendees,omitempty"`
	Selection    int      `json:"selection,omitempty"` // 1-based pick among offered alternatives
	Cancel       bool     `json:"cancel,omitempty"`    // user wants to abandon the request
}

// Empty reports whether the extractor found nothing usable in the turn.
func (u EntityUpdate) Empty() bool {
	return u.Subject == "" && u.DurationText == "" && u.TimeText == "" &&
		len(u.Attendees) == 0 && u.Selection == 0 && !u.Cancel
}
