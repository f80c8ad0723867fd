package models

// TurnRequest is the payload coming from the frontend into /api/assistant/turn.
type TurnRequest struct {
	SessionID  string `json:"session_id,omitempty"`  // empty on the first turn
	UserID     string `json:"user_id,omitempty"`     // caller identity, opaque to the engine
	CalendarID string `json:"calendar_id,omitempty"` // target calendar; server default when empty
	Timezone   string `json:"timezone,omitempty"`    // IANA name, e.g. "America/New_York"
	Text       string `json:"text" binding:"required"`
}

// TurnReply is what a single turn returns to the caller. Exactly one of
// Question, Result, or Failure is populated.
type TurnReply struct {
	SessionID    string         `json:"sessionId"`
	State        SessionState   `json:"state"`
	Question     string         `json:"question,omitempty"`
	Alternatives []string       `json:"alternatives,omitempty"` // rendered in the user's zone
	Result       *BookingResult `json:"result,omitempty"`
	Failure      string         `json:"failure,omitempty"`
}
