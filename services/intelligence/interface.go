// File: service/ai/interface.go
package ai

import (
	"context"

	"slotline/models"
)

// Extractor pulls scheduling entities out of one user utterance. It does
// not resolve anything: time and duration come back as raw text for the
// engine to validate, so a hallucinated field can never book a slot.
type Extractor interface {
	Extract(ctx context.Context, text string, intent models.BookingIntent) (models.EntityUpdate, error)
}
