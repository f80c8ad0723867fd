package models

import (
	"strings"
	"time"
)

// SessionState tracks where a booking conversation is in its lifecycle.
type SessionState string

const (
	StateCollecting             SessionState = "collecting"
	StateResolving              SessionState = "resolving"
	StateAwaitingDisambiguation SessionState = "awaiting_disambiguation"
	StateConfirmed              SessionState = "confirmed"
	StateFailed                 SessionState = "failed"
)

// Terminal reports whether the session can accept no further negotiation.
func (s SessionState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// BookingStatus says whether the committed event was created fresh or an
// existing event was moved.
type BookingStatus string

const (
	BookingCreated BookingStatus = "created"
	BookingUpdated BookingStatus = "updated"
)

// BookingResult is the terminal artifact of a successful booking.
type BookingResult struct {
	EventID       string        `json:"eventId"`
	FinalInterval TimeInterval  `json:"finalInterval"`
	Status        BookingStatus `json:"status"`
}

// BookingSession holds one conversation's negotiation state between turns.
// Exactly one logical conversation drives a session; turns are serialized
// by the service layer, so nothing here needs its own locking.
type BookingSession struct {
	ID         string `json:"id"`
	UserID     string `json:"userId,omitempty"`
	CalendarID string `json:"calendarId"`
	Timezone   string `json:"timezone"`

	State  SessionState  `json:"state"`
	Intent BookingIntent `json:"intent"`

	// Alternatives offered while awaiting disambiguation, and how many
	// invalid replies the user has given in a row.
	Alternatives []TimeInterval `json:"alternatives,omitempty"`
	InvalidPicks int            `json:"invalidPicks,omitempty"`

	// Set once the calendar write has happened.
	EventID    string         `json:"eventId,omitempty"`
	Result     *BookingResult `json:"result,omitempty"`
	FailReason string         `json:"failReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IdempotencyKey derives a stable write key from the session ID so that a
// retried create cannot produce a duplicate event. The form (lowercase hex,
// no hyphens) is accepted verbatim as a Google Calendar event ID.
func (s *BookingSession) IdempotencyKey() string {
	return strings.ToLower(strings.ReplaceAll(s.ID, "-", ""))
}

// Location resolves the session's timezone, falling back to UTC when the
// name is empty or unknown.
func (s *BookingSession) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
