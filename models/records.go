package models

import "time"

// BookingRecord is the journal entry written once a booking is confirmed.
// It is append-only history; the session itself expires from the cache.
type BookingRecord struct {
	ID         string    `bson:"id" json:"id"`
	SessionID  string    `bson:"sessionId" json:"sessionId"`
	UserID     string    `bson:"userId,omitempty" json:"userId,omitempty"`
	CalendarID string    `bson:"calendarId" json:"calendarId"`
	EventID    string    `bson:"eventId" json:"eventId"`
	Subject    string    `bson:"subject" json:"subject"`
	Start      time.Time `bson:"start" json:"start"`
	End        time.Time `bson:"end" json:"end"`
	Attendees  []string  `bson:"attendees,omitempty" json:"attendees,omitempty"`
	Status     string    `bson:"status" json:"status"` // "created" or "updated"
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}
