// File: service/ai/gemini_client.go
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"slotline/models"
)

const extractionPrompt = `You are the entity extractor of an appointment scheduling assistant.
Read the user's message and answer with a single JSON object, nothing else:
{"subject": "", "time_text": "", "duration_text": "", "attendees": [], "selection": 0, "cancel": false}

Rules:
- subject: what the appointment is about, a short noun phrase.
- time_text: the temporal expression copied verbatim ("next tuesday at 3pm"). Never resolve it to a date.
- duration_text: the length expression copied verbatim ("45 minutes").
- attendees: names or emails the user wants present.
- selection: the 1-based option number when the user picks from previously offered slots, else 0.
- cancel: true only when the user wants to abandon the booking.
- Leave out anything the message does not say. Do not repeat values already known.

Known so far: subject known: %t, time known: %t, duration known: %t.
User message: %q`

// GeminiExtractor asks Gemini for the entities in a turn and parses its
// strict-JSON reply.
type GeminiExtractor struct {
	model *genai.GenerativeModel
}

func NewGeminiExtractor(ctx context.Context, apiKey string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := client.GenerativeModel("models/gemini-1.5-flash")
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	return &GeminiExtractor{model: model}, nil
}

func (g *GeminiExtractor) Extract(ctx context.Context, text string, intent models.BookingIntent) (models.EntityUpdate, error) {
	prompt := fmt.Sprintf(extractionPrompt,
		intent.Subject != "", intent.HasTimeSignal(), intent.Duration > 0, text)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return models.EntityUpdate{}, fmt.Errorf("gemini generate error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return models.EntityUpdate{}, fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if textPart, ok := part.(genai.Text); ok {
			sb.WriteString(string(textPart))
		}
	}

	var update models.EntityUpdate
	if err := json.Unmarshal([]byte(stripFences(sb.String())), &update); err != nil {
		return models.EntityUpdate{}, fmt.Errorf("gemini reply is not valid entity JSON: %w", err)
	}
	return update, nil
}

// stripFences removes a markdown code fence the model sometimes wraps
// around the JSON despite the MIME hint.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
