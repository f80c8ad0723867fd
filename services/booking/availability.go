package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"slotline/calendar"
	"slotline/models"
	"slotline/utils"
)

// busySnapshot is one calendar's busy set over a lookahead window. It is
// immutable once built: a refresh swaps in a whole new snapshot, so readers
// holding an old one stay consistent.
type busySnapshot struct {
	busy      []models.TimeInterval // merged, sorted by start, UTC
	window    models.TimeInterval
	fetchedAt time.Time
}

// AvailabilityIndex caches busy intervals per calendar. Reads never block
// on provider I/O; refreshes for the same calendar are serialized while
// different calendars refresh concurrently.
type AvailabilityIndex struct {
	provider calendar.Provider

	mu        sync.RWMutex
	snapshots map[string]*busySnapshot

	// One refresh at a time per calendar.
	refreshMu sync.Mutex
	refreshes map[string]*sync.Mutex
}

// NewAvailabilityIndex builds an empty index over the given provider.
func NewAvailabilityIndex(provider calendar.Provider) *AvailabilityIndex {
	return &AvailabilityIndex{
		provider:  provider,
		snapshots: make(map[string]*busySnapshot),
		refreshes: make(map[string]*sync.Mutex),
	}
}

// Refresh pulls busy intervals for the calendar over the window and swaps
// the cached snapshot. The provider call runs outside the snapshot lock;
// only the swap itself takes it.
func (ix *AvailabilityIndex) Refresh(ctx context.Context, calendarID string, window models.TimeInterval) error {
	if !window.Valid() {
		return fmt.Errorf("%w: refresh window %v is empty", ErrAvailabilitySource, window)
	}

	lock := ix.refreshLock(calendarID)
	lock.Lock()
	defer lock.Unlock()

	busy, err := ix.provider.ListBusy(ctx, calendarID, window.Start, window.End)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAvailabilitySource, err)
	}

	intervals := make([]models.TimeInterval, 0, len(busy))
	for _, b := range busy {
		if b.Interval.Valid() {
			intervals = append(intervals, b.Interval.UTC())
		}
	}
	snap := &busySnapshot{
		busy:      mergeBusy(intervals),
		window:    window.UTC(),
		fetchedAt: time.Now(),
	}

	ix.mu.Lock()
	ix.snapshots[calendarID] = snap
	ix.mu.Unlock()

	utils.GetLogger().Debug("availability refreshed",
		zap.String("calendarId", calendarID),
		zap.Int("busyIntervals", len(snap.busy)),
		zap.Time("windowStart", snap.window.Start),
		zap.Time("windowEnd", snap.window.End))
	return nil
}

// Overlaps reports whether the interval intersects any cached busy range
// for the calendar, under half-open semantics. An unknown calendar has no
// busy data and reports no overlap.
func (ix *AvailabilityIndex) Overlaps(calendarID string, iv models.TimeInterval) bool {
	snap := ix.snapshot(calendarID)
	if snap == nil {
		return false
	}
	return snap.overlaps(iv.UTC())
}

// FreeSlotsNear returns up to count conflict-free slots of the same length
// as iv, searched outward from iv.Start at the given granularity, forward
// before backward at each distance. Slots never leave the snapshot window.
func (ix *AvailabilityIndex) FreeSlotsNear(calendarID string, iv models.TimeInterval, count int, granularity time.Duration) []models.TimeInterval {
	snap := ix.snapshot(calendarID)
	if snap == nil || count <= 0 || granularity <= 0 || !iv.Valid() {
		return nil
	}

	base := iv.UTC()
	dur := base.Duration()

	// Beyond this many steps both directions are outside the window.
	reach := snap.window.End.Sub(base.Start)
	if back := base.Start.Sub(snap.window.Start); back > reach {
		reach = back
	}
	maxSteps := int(reach/granularity) + 1

	out := make([]models.TimeInterval, 0, count)
	tryAt := func(start time.Time) bool {
		cand := models.TimeInterval{Start: start, End: start.Add(dur)}
		if !snap.window.Contains(cand) || snap.overlaps(cand) {
			return false
		}
		out = append(out, cand)
		return len(out) >= count
	}

	for step := 0; step <= maxSteps; step++ {
		offset := time.Duration(step) * granularity
		if tryAt(base.Start.Add(offset)) {
			break
		}
		if step > 0 && tryAt(base.Start.Add(-offset)) {
			break
		}
	}
	return out
}

// Stale reports whether the calendar's snapshot is missing or older than
// maxAge.
func (ix *AvailabilityIndex) Stale(calendarID string, maxAge time.Duration) bool {
	snap := ix.snapshot(calendarID)
	return snap == nil || time.Since(snap.fetchedAt) > maxAge
}

// Window returns the interval the calendar's cached snapshot covers, and
// false when no snapshot exists.
func (ix *AvailabilityIndex) Window(calendarID string) (models.TimeInterval, bool) {
	snap := ix.snapshot(calendarID)
	if snap == nil {
		return models.TimeInterval{}, false
	}
	return snap.window, true
}

// Invalidate drops the cached snapshot so the next freshness check forces
// a refresh.
func (ix *AvailabilityIndex) Invalidate(calendarID string) {
	ix.mu.Lock()
	delete(ix.snapshots, calendarID)
	ix.mu.Unlock()
}

func (ix *AvailabilityIndex) snapshot(calendarID string) *busySnapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snapshots[calendarID]
}

func (ix *AvailabilityIndex) refreshLock(calendarID string) *sync.Mutex {
	ix.refreshMu.Lock()
	defer ix.refreshMu.Unlock()
	lock, ok := ix.refreshes[calendarID]
	if !ok {
		lock = &sync.Mutex{}
		ix.refreshes[calendarID] = lock
	}
	return lock
}

func (s *busySnapshot) overlaps(iv models.TimeInterval) bool {
	// busy is merged and sorted, so the first range ending after iv.Start
	// is the only one that can intersect.
	i := sort.Search(len(s.busy), func(i int) bool {
		return s.busy[i].End.After(iv.Start)
	})
	return i < len(s.busy) && s.busy[i].Start.Before(iv.End)
}

// mergeBusy sorts the intervals and coalesces overlapping or touching
// ranges into a minimal busy set.
func mergeBusy(in []models.TimeInterval) []models.TimeInterval {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Start.Before(in[j].Start) })

	out := make([]models.TimeInterval, 0, len(in))
	for _, iv := range in {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
