package models

import "time"

// TimeInterval is a half-open time range [Start, End).
// Start must be strictly before End; instants are kept in UTC internally
// and converted to the user's zone only at the rendering boundary.
type TimeInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeInterval builds an interval from a start instant and a duration.
func NewTimeInterval(start time.Time, d time.Duration) TimeInterval {
	return TimeInterval{Start: start, End: start.Add(d)}
}

// Duration returns the length of the interval.
func (iv TimeInterval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Valid reports whether Start is strictly before End.
func (iv TimeInterval) Valid() bool {
	return iv.Start.Before(iv.End)
}

// IsZero reports whether both endpoints are unset.
func (iv TimeInterval) IsZero() bool {
	return iv.Start.IsZero() && iv.End.IsZero()
}

// Overlaps reports whether two half-open intervals intersect.
// Touching endpoints (one interval's End equal to the other's Start)
// do not count as an overlap.
func (iv TimeInterval) Overlaps(other TimeInterval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely within iv.
func (iv TimeInterval) Contains(other TimeInterval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// UTC returns the interval with both endpoints in UTC.
func (iv TimeInterval) UTC() TimeInterval {
	return TimeInterval{Start: iv.Start.UTC(), End: iv.End.UTC()}
}

// In returns the interval with both endpoints in the given location.
func (iv TimeInterval) In(loc *time.Location) TimeInterval {
	return TimeInterval{Start: iv.Start.In(loc), End: iv.End.In(loc)}
}

// Equal reports whether both intervals denote the same instants,
// regardless of location.
func (iv TimeInterval) Equal(other TimeInterval) bool {
	return iv.Start.Equal(other.Start) && iv.End.Equal(other.End)
}

// BusyInterval is a blocked range on a calendar, as reported by the
// availability source.
type BusyInterval struct {
	Interval TimeInterval `json:"interval"`
	Source   string       `json:"source"` // calendar identifier
}
