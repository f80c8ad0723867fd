package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotline/models"
	"slotline/services/timeparse"
)

func newTestResolver(t *testing.T, p *fakeProvider) *SlotResolver {
	t.Helper()
	return &SlotResolver{
		Index:           refreshed(t, p, weekWindow()),
		MaxAlternatives: 3,
		Granularity:     30 * time.Minute,
		ParseOpts:       timeparse.DefaultOptions(),
	}
}

func TestResolveHonorsListedOrder(t *testing.T) {
	// Second-listed candidate is earlier in time; the first free listed one
	// must still win.
	p := newFakeProvider()
	r := newTestResolver(t, p)

	intent := models.BookingIntent{
		Subject:  "sync",
		Duration: 30 * time.Minute,
		CandidateIntervals: []models.TimeInterval{
			span(at(monday, 14, 0), 30 * time.Minute),
			span(at(monday, 9, 0), 30 * time.Minute),
		},
	}
	res, err := r.Resolve(intent, "primary", monday, time.UTC)

	require.NoError(t, err)
	require.NotNil(t, res.Accepted)
	assert.Equal(t, at(monday, 14, 0), res.Accepted.Start)
}

func TestResolveSkipsBusyCandidates(t *testing.T) {
	p := newFakeProvider(busyAt(at(monday, 14, 0), time.Hour))
	r := newTestResolver(t, p)

	intent := models.BookingIntent{
		Subject:  "sync",
		Duration: 30 * time.Minute,
		CandidateIntervals: []models.TimeInterval{
			span(at(monday, 14, 0), 30 * time.Minute),
			span(at(monday, 16, 0), 30 * time.Minute),
		},
	}
	res, err := r.Resolve(intent, "primary", monday, time.UTC)

	require.NoError(t, err)
	require.NotNil(t, res.Accepted)
	assert.Equal(t, at(monday, 16, 0), res.Accepted.Start)
}

func TestResolveOffersAlternativesWhenAllBusy(t *testing.T) {
	p := newFakeProvider(busyAt(at(monday, 13, 0), 4*time.Hour))
	r := newTestResolver(t, p)

	intent := models.BookingIntent{
		Subject:  "sync",
		Duration: 30 * time.Minute,
		CandidateIntervals: []models.TimeInterval{
			span(at(monday, 14, 0), 30 * time.Minute),
			span(at(monday, 15, 0), 30 * time.Minute),
		},
	}
	res, err := r.Resolve(intent, "primary", monday, time.UTC)

	require.NoError(t, err)
	assert.Nil(t, res.Accepted, "resolver must never auto-pick a replacement")
	require.NotEmpty(t, res.Alternatives)
	assert.LessOrEqual(t, len(res.Alternatives), 3)
	for _, alt := range res.Alternatives {
		assert.False(t, r.Index.Overlaps("primary", alt), "alternative %v overlaps busy time", alt)
		assert.Equal(t, 30*time.Minute, alt.Duration())
	}
}

func TestResolveExpandsConstraint(t *testing.T) {
	p := newFakeProvider(busyAt(at(monday.AddDate(0, 0, 1), 9, 0), time.Hour))
	r := newTestResolver(t, p)

	intent := models.BookingIntent{
		Subject:    "review",
		Duration:   30 * time.Minute,
		Constraint: "tomorrow morning",
	}
	res, err := r.Resolve(intent, "primary", monday, time.UTC)

	require.NoError(t, err)
	require.NotNil(t, res.Accepted)
	// 9:00 is blocked, so the first free morning slot is 10:00.
	assert.Equal(t, at(monday.AddDate(0, 0, 1), 10, 0), res.Accepted.Start)
	assert.Equal(t, 30*time.Minute, res.Accepted.Duration())
}

func TestResolveResizesCandidatesToDuration(t *testing.T) {
	p := newFakeProvider()
	r := newTestResolver(t, p)

	intent := models.BookingIntent{
		Subject:            "workshop",
		Duration:           2 * time.Hour,
		CandidateIntervals: []models.TimeInterval{span(at(monday, 10, 0), 30 * time.Minute)},
	}
	res, err := r.Resolve(intent, "primary", monday, time.UTC)

	require.NoError(t, err)
	require.NotNil(t, res.Accepted)
	assert.Equal(t, span(at(monday, 10, 0), 2*time.Hour), *res.Accepted)
}

func TestResolveAmbiguousConstraint(t *testing.T) {
	r := newTestResolver(t, newFakeProvider())

	_, err := r.Resolve(models.BookingIntent{Constraint: "whenever feels right"}, "primary", monday, time.UTC)
	assert.ErrorIs(t, err, ErrAmbiguousTime)

	_, err = r.Resolve(models.BookingIntent{Subject: "chat"}, "primary", monday, time.UTC)
	assert.ErrorIs(t, err, ErrAmbiguousTime)
}

func TestResolveNoAvailability(t *testing.T) {
	p := newFakeProvider(busyAt(monday, 7*24*time.Hour))
	r := newTestResolver(t, p)

	intent := models.BookingIntent{
		Subject:            "sync",
		Duration:           30 * time.Minute,
		CandidateIntervals: []models.TimeInterval{span(at(monday, 14, 0), 30 * time.Minute)},
	}
	_, err := r.Resolve(intent, "primary", monday, time.UTC)

	assert.ErrorIs(t, err, ErrNoAvailability)
}

func TestResolveIgnoresStaleProviderState(t *testing.T) {
	// Resolution reads the snapshot, not the live provider: busy added after
	// the refresh is invisible until the next refresh.
	p := newFakeProvider()
	r := newTestResolver(t, p)
	p.addBusy(span(at(monday, 14, 0), time.Hour))

	intent := models.BookingIntent{
		Subject:            "sync",
		Duration:           30 * time.Minute,
		CandidateIntervals: []models.TimeInterval{span(at(monday, 14, 0), 30 * time.Minute)},
	}
	res, err := r.Resolve(intent, "primary", monday, time.UTC)

	require.NoError(t, err)
	require.NotNil(t, res.Accepted)

	require.NoError(t, r.Index.Refresh(context.Background(), "primary", weekWindow()))
	res, err = r.Resolve(intent, "primary", monday, time.UTC)
	require.NoError(t, err)
	assert.Nil(t, res.Accepted)
}
