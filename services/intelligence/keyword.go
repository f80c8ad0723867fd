// File: service/ai/keyword.go
package ai

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"slotline/models"
)

// KeywordExtractor is the offline fallback when no model is configured or
// the model call fails. Simple keyword matching, same contract as Gemini:
// raw text out, validation downstream.
type KeywordExtractor struct{}

var (
	bareNumberRe   = regexp.MustCompile(`^(\d{1,2})\.?$`)
	numberedPickRe = regexp.MustCompile(`\b(?:option|number|slot|pick|choose|take|no\.?|#)\s*(\d{1,2})\b`)
	ordinalPickRe  = regexp.MustCompile(`\b(?:the\s+)?(first|second|third|fourth|fifth)\b(?:\s+(?:one|option|slot))?`)

	durationTextRe = regexp.MustCompile(`\b(\d+(?:\.\d+)?\s?(?:hours?|hrs?|minutes?|mins?)(?:\s+(?:and\s+)?\d+\s?(?:minutes?|mins?))?|an hour and a half|hour and a half|half an hour|an hour)\b`)

	clockSignalRe  = regexp.MustCompile(`\b(?:\d{1,2}:\d{2}|\d{1,2}\s?(?:am|pm)|at \d{1,2}\b|\d{1,2}\s?o'?clock)`)
	dateSignalRe   = regexp.MustCompile(`\b(?:\d{4}-\d{1,2}-\d{1,2}|(?:january|february|march|april|june|july|august|september|october|november|december)\s\d{1,2}|may\s\d{1,2}|in\s(?:a|an|one|two|three|four|five|six|seven|eight|nine|ten|\d+)\s(?:day|days|week|weeks))\b`)
	subjectLeadRe  = regexp.MustCompile(`\b(?:about|regarding|titled|called)\s+(.+)$`)
	bookingVerbRe  = regexp.MustCompile(`\b(?:book|schedule|set\s?up|arrange|plan)\s+(?:a\s|an\s|the\s)?(.+)$`)
	attendeeLeadRe = regexp.MustCompile(`\bwith\s+(.+)$`)
)

var timeKeywords = []string{
	"tomorrow", "today", "tonight", "day after",
	"next ", "this week", "noon", "midnight",
	"morning", "afternoon", "evening", "night",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

var cancelPhrases = []string{
	"cancel", "never mind", "nevermind", "forget it", "abort", "don't book", "do not book",
}

// Words that end a free-text capture because they start a different entity.
var captureStops = []string{
	" with ", " at ", " on ", " for ", " from ", " by ", " in ",
	" tomorrow", " today", " tonight", " next ", " this ",
	" monday", " tuesday", " wednesday", " thursday", " friday", " saturday", " sunday",
}

var ordinals = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
}

func (KeywordExtractor) Extract(_ context.Context, text string, intent models.BookingIntent) (models.EntityUpdate, error) {
	var update models.EntityUpdate
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return update, nil
	}

	for _, phrase := range cancelPhrases {
		if strings.Contains(lower, phrase) {
			update.Cancel = true
			return update, nil
		}
	}

	update.Selection = parseSelection(lower)

	if m := durationTextRe.FindStringSubmatch(lower); m != nil {
		update.DurationText = m[1]
	}
	if hasTimeSignal(lower) {
		update.TimeText = lower
	}

	update.Subject = parseSubject(lower)
	update.Attendees = parseAttendees(lower)

	// A short bare reply while the subject is still missing is the subject.
	if update.Empty() && intent.Subject == "" && len(strings.Fields(lower)) <= 6 {
		update.Subject = lower
	}
	return update, nil
}

func parseSelection(lower string) int {
	if m := bareNumberRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := numberedPickRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := ordinalPickRe.FindStringSubmatch(lower); m != nil {
		return ordinals[m[1]]
	}
	return 0
}

func hasTimeSignal(lower string) bool {
	for _, kw := range timeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return clockSignalRe.MatchString(lower) || dateSignalRe.MatchString(lower)
}

func parseSubject(lower string) string {
	if start := strings.Index(lower, `"`); start >= 0 {
		if end := strings.Index(lower[start+1:], `"`); end > 0 {
			return strings.TrimSpace(lower[start+1 : start+1+end])
		}
	}
	if m := subjectLeadRe.FindStringSubmatch(lower); m != nil {
		return cutAtStop(m[1])
	}
	if m := bookingVerbRe.FindStringSubmatch(lower); m != nil {
		return cutAtStop(m[1])
	}
	return ""
}

func parseAttendees(lower string) []string {
	m := attendeeLeadRe.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	chunk := cutAtStop(m[1])
	if chunk == "" {
		return nil
	}
	chunk = strings.ReplaceAll(chunk, " and ", ",")
	var out []string
	for _, part := range strings.Split(chunk, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// cutAtStop trims a free-text capture at the first word that starts another
// entity, so "team retro with sam tomorrow" keeps just "team retro".
func cutAtStop(s string) string {
	cut := len(s)
	for _, stop := range captureStops {
		if i := strings.Index(s, stop); i >= 0 && i < cut {
			cut = i
		}
	}
	return strings.Trim(strings.TrimSpace(s[:cut]), ".,!?")
}
