package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"slotline/models"
)

// ErrUnrecognized is returned when a fragment cannot be normalized into any
// concrete interval. Callers treat it as "re-ask the user".
var ErrUnrecognized = errors.New("timeparse: unrecognized time expression")

// Options tune how fragments expand into candidate intervals.
type Options struct {
	DefaultDuration time.Duration // slot length when the fragment has no explicit duration
	BusinessStart   int           // first suggested hour for vague phrases, inclusive
	BusinessEnd     int           // hour past the last suggested slot end
	Step            time.Duration // spacing between suggested starts
	MaxCandidates   int           // cap on candidates for vague phrases
}

// DefaultOptions returns the standard expansion settings.
func DefaultOptions() Options {
	return Options{
		DefaultDuration: 30 * time.Minute,
		BusinessStart:   9,
		BusinessEnd:     17,
		Step:            time.Hour,
		MaxCandidates:   5,
	}
}

// daySpan is a run of consecutive candidate days.
type daySpan struct {
	start        time.Time // midnight of the first day, in the user's zone
	days         int
	weekdaysOnly bool
}

var (
	inOffsetRe  = regexp.MustCompile(`\bin (a|an|one|two|three|four|five|six|seven|eight|nine|ten|\d+) (day|days|week|weeks)\b`)
	weekdayRe   = regexp.MustCompile(`\b(?:(next|this|coming|on) )?(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)\b`)
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	monthDateRe = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.? (\d{1,2})(?:st|nd|rd|th)?(?:,? (\d{4}))?\b`)

	clockColonRe  = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?: ?(am|pm))?\b`)
	clockAmPmRe   = regexp.MustCompile(`\b(\d{1,2}) ?(am|pm)\b`)
	clockOClockRe = regexp.MustCompile(`\b(\d{1,2}) ?o'?clock\b`)
	clockAtRe     = regexp.MustCompile(`\bat (\d{1,2})\b`)

	durClauseRe = regexp.MustCompile(`\bfor ((?:\d+(?:\.\d+)?|an?|half an?) ?(?:hours?|hrs?|h|minutes?|mins?|m)\b(?: and \d+ ?(?:minutes?|mins?|m)\b)?)`)
)

var wordNumbers = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var weekdayIndex = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

var monthIndex = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// Normalize turns a free-text temporal fragment into an ordered sequence of
// candidate intervals, interpreted against the reference instant in the
// user's zone. An exact phrase yields one candidate; a vague phrase yields
// several, ranked chronologically. Candidates starting before the reference
// instant are dropped.
func Normalize(fragment string, ref time.Time, loc *time.Location, opts Options) ([]models.TimeInterval, error) {
	if loc == nil {
		loc = time.UTC
	}
	now := ref.In(loc)

	f := strings.ToLower(strings.TrimSpace(fragment))
	f = strings.ReplaceAll(f, "a.m.", "am")
	f = strings.ReplaceAll(f, "p.m.", "pm")
	if f == "" {
		return nil, fmt.Errorf("%w: empty fragment", ErrUnrecognized)
	}

	dur := opts.DefaultDuration
	if dur <= 0 {
		dur = 30 * time.Minute
	}
	if m := durClauseRe.FindStringSubmatch(f); m != nil {
		if d, err := ParseDurationText(m[1]); err == nil {
			dur = d
			f = strings.Replace(f, m[0], " ", 1)
		}
	}

	span, rest, haveDay := scanDay(f, now)
	hour, minute, haveClock := scanClock(rest)
	partStart, partEnd, havePart := scanPart(rest)

	if !haveDay && !haveClock && !havePart {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognized, fragment)
	}

	if !haveDay {
		// A time of day with no date means today, or tomorrow once the
		// moment has passed.
		span = daySpan{start: dayStart(now), days: 1}
		if haveClock {
			at := span.start.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
			if !at.After(now) {
				span.start = span.start.AddDate(0, 0, 1)
			}
		}
	}

	var out []models.TimeInterval
	add := func(start time.Time) {
		if len(out) >= maxCandidates(opts) {
			return
		}
		if start.Before(now) {
			return
		}
		out = append(out, models.NewTimeInterval(start, dur))
	}

	for i := 0; i < span.days; i++ {
		day := span.start.AddDate(0, 0, i)
		if span.weekdaysOnly && (day.Weekday() == time.Saturday || day.Weekday() == time.Sunday) {
			continue
		}
		switch {
		case haveClock:
			add(day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute))
		case havePart:
			addWindow(add, day, partStart, partEnd, dur, opts)
		default:
			addWindow(add, day, businessStart(opts), businessEnd(opts), dur, opts)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q resolves to no usable slot", ErrUnrecognized, fragment)
	}
	return out, nil
}

// addWindow appends stepped starts inside [startHour, endHour) whose slots
// still end within the window.
func addWindow(add func(time.Time), day time.Time, startHour, endHour int, dur time.Duration, opts Options) {
	step := opts.Step
	if step <= 0 {
		step = time.Hour
	}
	windowEnd := day.Add(time.Duration(endHour) * time.Hour)
	for at := day.Add(time.Duration(startHour) * time.Hour); !at.Add(dur).After(windowEnd); at = at.Add(step) {
		add(at)
	}
}

func scanDay(f string, now time.Time) (daySpan, string, bool) {
	today := dayStart(now)

	if strings.Contains(f, "day after tomorrow") {
		return daySpan{start: today.AddDate(0, 0, 2), days: 1},
			strings.Replace(f, "day after tomorrow", " ", 1), true
	}
	if strings.Contains(f, "tomorrow") {
		return daySpan{start: today.AddDate(0, 0, 1), days: 1},
			strings.Replace(f, "tomorrow", " ", 1), true
	}
	if strings.Contains(f, "tonight") {
		// Keep the evening hint in place for the part scan.
		return daySpan{start: today, days: 1},
			strings.Replace(f, "tonight", "evening", 1), true
	}
	if strings.Contains(f, "today") {
		return daySpan{start: today, days: 1},
			strings.Replace(f, "today", " ", 1), true
	}
	if strings.Contains(f, "next week") {
		return daySpan{start: today.AddDate(0, 0, daysToNextMonday(today)), days: 5, weekdaysOnly: true},
			strings.Replace(f, "next week", " ", 1), true
	}
	if strings.Contains(f, "this week") {
		return daySpan{start: today, days: 8 - isoWeekday(today), weekdaysOnly: true},
			strings.Replace(f, "this week", " ", 1), true
	}
	if m := inOffsetRe.FindStringSubmatch(f); m != nil {
		n, ok := wordNumbers[m[1]]
		if !ok {
			n, _ = strconv.Atoi(m[1])
		}
		if strings.HasPrefix(m[2], "week") {
			n *= 7
		}
		if n > 0 {
			return daySpan{start: today.AddDate(0, 0, n), days: 1},
				strings.Replace(f, m[0], " ", 1), true
		}
	}
	if m := isoDateRe.FindStringSubmatch(f); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
			day := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, now.Location())
			return daySpan{start: day, days: 1}, strings.Replace(f, m[0], " ", 1), true
		}
	}
	if m := monthDateRe.FindStringSubmatch(f); m != nil {
		d, _ := strconv.Atoi(m[2])
		if d >= 1 && d <= 31 {
			year := now.Year()
			if m[3] != "" {
				year, _ = strconv.Atoi(m[3])
			}
			day := time.Date(year, monthIndex[m[1]], d, 0, 0, 0, 0, now.Location())
			if m[3] == "" && day.Before(today) {
				day = day.AddDate(1, 0, 0)
			}
			return daySpan{start: day, days: 1}, strings.Replace(f, m[0], " ", 1), true
		}
	}
	if m := weekdayRe.FindStringSubmatch(f); m != nil {
		target := weekdayIndex[m[2]]
		var day time.Time
		if m[1] == "next" {
			// The named day of next week, Monday as week start.
			day = today.AddDate(0, 0, daysToNextMonday(today)+isoIndex(target)-1)
		} else {
			delta := (int(target) - int(today.Weekday()) + 7) % 7
			if delta == 0 && m[1] != "this" {
				delta = 7
			}
			day = today.AddDate(0, 0, delta)
		}
		return daySpan{start: day, days: 1}, strings.Replace(f, m[0], " ", 1), true
	}
	return daySpan{}, f, false
}

func scanClock(f string) (hour, minute int, ok bool) {
	if strings.Contains(f, "midnight") {
		return 0, 0, true
	}
	if strings.Contains(f, "noon") || strings.Contains(f, "midday") {
		return 12, 0, true
	}
	if m := clockColonRe.FindStringSubmatch(f); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h <= 23 && mm <= 59 {
			return meridiemHour(h, m[3]), mm, true
		}
	}
	if m := clockAmPmRe.FindStringSubmatch(f); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 12 {
			return meridiemHour(h, m[2]), 0, true
		}
	}
	if m := clockOClockRe.FindStringSubmatch(f); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 12 {
			return meridiemHour(h, ""), 0, true
		}
	}
	if m := clockAtRe.FindStringSubmatch(f); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h <= 23 {
			return meridiemHour(h, ""), 0, true
		}
	}
	return 0, 0, false
}

// meridiemHour applies am/pm, assuming afternoon for small bare hours the
// way people say "at 3" for 15:00.
func meridiemHour(h int, meridiem string) int {
	switch meridiem {
	case "am":
		if h == 12 {
			return 0
		}
		return h
	case "pm":
		if h == 12 {
			return 12
		}
		return h + 12
	default:
		if h >= 1 && h <= 7 {
			return h + 12
		}
		return h
	}
}

func scanPart(f string) (startHour, endHour int, ok bool) {
	switch {
	case strings.Contains(f, "morning"):
		return 9, 12, true
	case strings.Contains(f, "afternoon"):
		return 12, 17, true
	case strings.Contains(f, "evening"), strings.Contains(f, "night"):
		return 17, 20, true
	}
	return 0, 0, false
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// isoWeekday maps Sunday to 7 so Monday starts the week.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return wd
}

func isoIndex(w time.Weekday) int {
	i := int(w)
	if i == 0 {
		i = 7
	}
	return i
}

func daysToNextMonday(today time.Time) int {
	return 8 - isoWeekday(today)
}

func businessStart(opts Options) int {
	if opts.BusinessStart > 0 {
		return opts.BusinessStart
	}
	return 9
}

func businessEnd(opts Options) int {
	if opts.BusinessEnd > businessStart(opts) {
		return opts.BusinessEnd
	}
	return 17
}

func maxCandidates(opts Options) int {
	if opts.MaxCandidates > 0 {
		return opts.MaxCandidates
	}
	return 5
}
