package correlate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vigil/core"
)

func TestComputeWindow_FixedEpochAligned(t *testing.T) {
	tw := core.TimeWindow{Duration: 5 * time.Minute, Alignment: core.WindowAlignmentFixed}

	at := time.Date(2026, 3, 1, 10, 3, 17, 0, time.UTC)
	w := ComputeWindow(tw, at)

	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), w.End)

	// Every timestamp inside the window maps to the same window: replay-stable.
	for _, offset := range []time.Duration{0, time.Second, 4*time.Minute + 59*time.Second} {
		again := ComputeWindow(tw, w.Start.Add(offset))
		assert.Equal(t, w, again)
	}

	// The next instant starts a new window.
	next := ComputeWindow(tw, w.End)
	assert.Equal(t, w.End, next.Start)
}

func TestComputeWindow_FixedNormalizesZone(t *testing.T) {
	tw := core.TimeWindow{Duration: time.Hour, Alignment: core.WindowAlignmentFixed}
	utc := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	cet := utc.In(time.FixedZone("CET", 3600))

	assert.Equal(t, ComputeWindow(tw, utc), ComputeWindow(tw, cet))
}

func TestComputeWindow_SlidingAnchorsOnSignal(t *testing.T) {
	tw := core.TimeWindow{Duration: 10 * time.Minute, Alignment: core.WindowAlignmentSliding}
	at := time.Date(2026, 3, 1, 10, 7, 0, 0, time.UTC)

	w := ComputeWindow(tw, at)
	assert.Equal(t, at.Add(-10*time.Minute), w.Start)
	assert.Equal(t, at, w.End)
}

func TestWindow_ContainsHalfOpen(t *testing.T) {
	w := Window{
		Start: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
	}

	assert.True(t, w.Contains(w.Start), "start is inclusive")
	assert.True(t, w.Contains(w.End.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(w.End), "end is exclusive")
	assert.False(t, w.Contains(w.Start.Add(-time.Nanosecond)))
}
