package models

import "time"

// Event is a calendar event as returned by listing operations.
type Event struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Attendees []string  `json:"attendees,omitempty"`
}

// ReminderPayload is the queued task payload for an appointment reminder.
type ReminderPayload struct {
	EventID    string    `json:"eventId"`
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId,omitempty"`
	CalendarID string    `json:"calendarId"`
	Subject    string    `json:"subject"`
	Start      time.Time `json:"start"`
}
