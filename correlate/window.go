// Package correlate groups detections within rule-defined time windows and
// assembles deterministic incident candidates backed by evidence graphs and
// evidence bundles.
package correlate

import (
	"time"

	"vigil/core"
)

// Window is a half-open correlation interval [Start, End). A signal belongs
// to a window iff its observedAt falls inside; arrival time is irrelevant.
// Windows are never extended and there is no backfill.
type Window struct {
	Start time.Time
	End   time.Time
}

// ComputeWindow derives the window that contains observedAt under the rule's
// alignment policy.
//
// Fixed windows align to epoch multiples of the duration (floor(t/d)*d), so a
// given timestamp maps to the same window on every replay. Sliding windows
// anchor on the signal itself: [observedAt-d, observedAt).
func ComputeWindow(tw core.TimeWindow, observedAt time.Time) Window {
	at := observedAt.UTC()
	switch tw.Alignment {
	case core.WindowAlignmentSliding:
		return Window{Start: at.Add(-tw.Duration), End: at}
	default:
		d := tw.Duration
		start := time.Unix(0, (at.UnixNano()/int64(d))*int64(d)).UTC()
		return Window{Start: start, End: start.Add(d)}
	}
}

// Contains reports whether t falls inside [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
