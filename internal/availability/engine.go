// Package availability computes open scheduling slots from busy intervals.
// Pure functions, no clock, no I/O: same inputs always produce the same
// slots.
package availability

import (
	"errors"
	"sort"
	"time"
)

// Granularity is the fixed step between candidate start times, independent
// of the requested slot duration.
const Granularity = 15 * time.Minute

// ErrInvalidWindow is returned for a non-positive duration or a window whose
// end does not follow its start.
var ErrInvalidWindow = errors.New("invalid availability window")

// Interval is a half-open [Start, End) span of absolute time. Used for both
// busy intervals and free slots.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// ComputeFreeSlots lists every candidate start time within the window at
// which a slot of slotDuration fits without touching a busy interval.
// Candidates step by Granularity, so adjacent results may overlap each
// other; this is a listing of valid start times, not a partition of free
// time. A duration longer than the window yields an empty result, not an
// error. Busy intervals need not be sorted.
func ComputeFreeSlots(window Interval, busy []Interval, slotDuration time.Duration) ([]Interval, error) {
	if slotDuration <= 0 || !window.End.After(window.Start) {
		return nil, ErrInvalidWindow
	}

	var free []Interval
	for t := window.Start; !t.Add(slotDuration).After(window.End); t = t.Add(Granularity) {
		candidate := Interval{Start: t, End: t.Add(slotDuration)}
		if !overlapsAny(candidate, busy) {
			free = append(free, candidate)
		}
	}
	return free, nil
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

// MergeBusy collapses overlapping or touching busy intervals into a minimal
// sorted set. Not required for correctness of ComputeFreeSlots; used to
// compact freebusy responses spanning several calendars.
func MergeBusy(busy []Interval) []Interval {
	if len(busy) < 2 {
		return busy
	}

	sorted := make([]Interval, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := sorted[:1]
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
