package snapshot

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const (
	dayLayout       = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// Interval is a half-open range [Start, End) of epoch milliseconds.
type Interval struct {
	Start int64
	End   int64
}

// NewInterval is a factory method for Interval. It fails with ErrInvalidInterval if end does not exceed start.
func NewInterval(start, end int64) (Interval, error) {
	if end <= start {
		return Interval{}, fmt.Errorf("%w: [%d, %d)", ErrInvalidInterval, start, end)
	}

	return Interval{Start: start, End: end}, nil
}

// IntervalFromTimes builds an Interval from two instants.
func IntervalFromTimes(start, end time.Time) (Interval, error) {
	return NewInterval(ToTimestamp(start), ToTimestamp(end))
}

// Contains reports whether ts falls into the interval.
func (i Interval) Contains(ts int64) bool {
	return ts >= i.Start && ts < i.End
}

func (i Interval) StartTime() time.Time {
	return FromTimestamp(i.Start)
}

func (i Interval) EndTime() time.Time {
	return FromTimestamp(i.End)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%d, %d)", i.Start, i.End)
}

// MarshalJSON encodes the interval as a two element array.
func (i Interval) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal([2]int64{i.Start, i.End})
}

// UnmarshalJSON decodes a two element array.
func (i *Interval) UnmarshalJSON(data []byte) error {
	var pair []int64
	if err := jsoniter.Unmarshal(data, &pair); err != nil {
		return err
	}

	if len(pair) != 2 {
		return fmt.Errorf("%w: expected [start, end], got %d elements", ErrInvalidInterval, len(pair))
	}

	i.Start, i.End = pair[0], pair[1]

	return nil
}

// Intervals is a list of intervals. Lists held by a Snapshot are always sorted and non-overlapping.
type Intervals []Interval

// Clone returns an independent copy. A nil list stays nil.
func (is Intervals) Clone() Intervals {
	return slices.Clone(is)
}

// Covers reports whether [start, end) is fully contained in one interval of the merged list.
func (is Intervals) Covers(start, end int64) bool {
	for _, interval := range is {
		if interval.Start <= start && end <= interval.End {
			return true
		}
	}

	return false
}

// ToTimestamp converts an instant to epoch milliseconds.
func ToTimestamp(t time.Time) int64 {
	return t.UnixMilli()
}

// FromTimestamp converts epoch milliseconds to a UTC instant.
func FromTimestamp(ts int64) time.Time {
	return time.UnixMilli(ts).UTC()
}

// MergeIntervals sorts the intervals and merges overlapping and touching ones.
//
// The input is not modified. Empty input yields an empty result.
func MergeIntervals(intervals Intervals) Intervals {
	if len(intervals) == 0 {
		return Intervals{}
	}

	sorted := intervals.Clone()
	slices.SortFunc(sorted, func(a, b Interval) int {
		if a.Start != b.Start {
			return cmp.Compare(a.Start, b.Start)
		}

		return cmp.Compare(a.End, b.End)
	})

	merged := Intervals{sorted[0]}

	for _, next := range sorted[1:] {
		current := &merged[len(merged)-1]

		if next.Start <= current.End {
			current.End = max(current.End, next.End)
			continue
		}

		merged = append(merged, next)
	}

	return merged
}

// RemoveInterval subtracts [removeStart, removeEnd) from every interval.
//
// Intervals that end up empty are dropped. The input is not modified.
func RemoveInterval(intervals Intervals, removeStart, removeEnd int64) Intervals {
	modified := make(Intervals, 0, len(intervals))

	for _, interval := range intervals {
		start, end := interval.Start, interval.End

		switch {
		case removeStart > start && removeEnd < end:
			modified = append(modified, Interval{Start: start, End: removeStart}, Interval{Start: removeEnd, End: end})
		case removeStart > start:
			modified = append(modified, Interval{Start: start, End: min(removeStart, end)})
		case removeEnd < end:
			modified = append(modified, Interval{Start: max(removeEnd, start), End: end})
		}
	}

	return modified
}

// IntervalsBefore returns the parts of intervals strictly before cutoverTS. A cutoverTS <= 0 keeps everything.
// The input is not modified.
func IntervalsBefore(intervals Intervals, cutoverTS int64) Intervals {
	if cutoverTS <= 0 {
		return intervals.Clone()
	}

	before := make(Intervals, 0, len(intervals))

	for _, interval := range intervals {
		if interval.Start >= cutoverTS {
			continue
		}

		before = append(before, Interval{Start: interval.Start, End: min(interval.End, cutoverTS)})
	}

	return before
}

// FormatIntervals renders the intervals as inclusive ranges, e.g. "2024-01-01 - 2024-01-02".
// With dailyGranularity only dates are printed.
func FormatIntervals(intervals Intervals, dailyGranularity bool) string {
	layout := timestampLayout
	if dailyGranularity {
		layout = dayLayout
	}

	formatted := make([]string, 0, len(intervals))

	for _, interval := range intervals {
		inclusiveEnd := interval.EndTime().Add(-time.Millisecond)
		formatted = append(formatted, interval.StartTime().Format(layout)+" - "+inclusiveEnd.Format(layout))
	}

	return strings.Join(formatted, ", ")
}
