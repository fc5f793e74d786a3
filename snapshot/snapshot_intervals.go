package snapshot

import (
	"fmt"
	"slices"
	"time"
)

// MissingOptions tune MissingIntervals.
type MissingOptions struct {
	// Latest is the exclusive upper bound of data that can exist yet. Zero means now.
	Latest time.Time
	// IsDev tells whether the intervals are going to be written in development mode.
	IsDev bool
	// Restatements names the snapshots which are being restated.
	Restatements []string
}

// InitIntervals makes sure both interval lists are hydrated, initializing missing ones as empty.
func (s *Snapshot) InitIntervals() {
	if s.intervals == nil {
		s.intervals = Intervals{}
	}

	if s.devIntervals == nil {
		s.devIntervals = Intervals{}
	}

	s.intervalsHydrated = true
}

// SetIntervals hydrates the snapshot with intervals loaded from a state store, replacing the current ones.
func (s *Snapshot) SetIntervals(intervals, devIntervals Intervals) {
	s.intervals = MergeIntervals(intervals)
	s.devIntervals = MergeIntervals(devIntervals)
	s.intervalsHydrated = true
}

// IntervalsHydrated reports whether the interval lists can be read.
func (s *Snapshot) IntervalsHydrated() bool {
	return s.intervalsHydrated
}

// Intervals returns a copy of the production intervals.
func (s *Snapshot) Intervals() (Intervals, error) {
	if !s.intervalsHydrated {
		return nil, fmt.Errorf("%w: %s", ErrIntervalsNotHydrated, s.SnapshotID())
	}

	return s.intervals.Clone(), nil
}

// DevIntervals returns a copy of the intervals written to temporary tables in development mode.
func (s *Snapshot) DevIntervals() (Intervals, error) {
	if !s.intervalsHydrated {
		return nil, fmt.Errorf("%w: %s", ErrIntervalsNotHydrated, s.SnapshotID())
	}

	return s.devIntervals.Clone(), nil
}

// SnapshotIntervals returns the interval lists of the categorized snapshot for transport.
func (s *Snapshot) SnapshotIntervals() (SnapshotIntervals, error) {
	if err := s.ensureCategorized(); err != nil {
		return SnapshotIntervals{}, err
	}

	if !s.intervalsHydrated {
		return SnapshotIntervals{}, fmt.Errorf("%w: %s", ErrIntervalsNotHydrated, s.SnapshotID())
	}

	return SnapshotIntervals{
		Name:         s.name,
		Identifier:   s.Identifier(),
		Version:      s.version,
		Intervals:    s.intervals.Clone(),
		DevIntervals: s.devIntervals.Clone(),
	}, nil
}

// InclusiveExclusive normalizes [start, end) to the model's schedule.
//
// Both bounds are floored to the schedule. With strict, an empty result is an error, otherwise only an end
// before the start is.
func (s *Snapshot) InclusiveExclusive(start, end time.Time, strict bool) (Interval, error) {
	startTS := ToTimestamp(s.model.CronFloor(start))
	endTS := ToTimestamp(s.model.CronFloor(end))

	if (strict && startTS >= endTS) || startTS > endTS {
		return Interval{}, fmt.Errorf(
			"%w: end (%s) must be greater than start (%s)",
			ErrInvalidInterval,
			FromTimestamp(endTS).Format(time.RFC3339),
			FromTimestamp(startTS).Format(time.RFC3339),
		)
	}

	return Interval{Start: startTS, End: endTS}, nil
}

// AddInterval records that the data in [start, end) has been processed.
// In development mode forward-only writes are recorded separately, see IsTemporaryTable.
func (s *Snapshot) AddInterval(start, end time.Time, isDev bool) error {
	interval, err := s.InclusiveExclusive(start, end, true)
	if err != nil {
		return err
	}

	return s.addInterval(interval, isDev)
}

// AddIntervalTS is AddInterval for bounds which are already aligned to the schedule.
func (s *Snapshot) AddIntervalTS(startTS, endTS int64, isDev bool) error {
	interval, err := NewInterval(startTS, endTS)
	if err != nil {
		return err
	}

	return s.addInterval(interval, isDev)
}

func (s *Snapshot) addInterval(interval Interval, isDev bool) error {
	if !s.intervalsHydrated {
		return fmt.Errorf("%w: %s", ErrIntervalsNotHydrated, s.SnapshotID())
	}

	if s.IsTemporaryTable(isDev) {
		s.devIntervals = appendMerged(s.devIntervals, interval)
	} else {
		s.intervals = appendMerged(s.intervals, interval)
	}

	return nil
}

func appendMerged(intervals Intervals, interval Interval) Intervals {
	intervals = append(intervals, interval)
	if len(intervals) < 2 {
		return intervals
	}

	return MergeIntervals(intervals)
}

// RemoveInterval removes [start, end) from both interval lists.
func (s *Snapshot) RemoveInterval(start, end time.Time) error {
	interval, err := s.InclusiveExclusive(start, end, true)
	if err != nil {
		return err
	}

	return s.RemoveIntervalTS(interval.Start, interval.End)
}

// RemoveIntervalTS is RemoveInterval for bounds which are already aligned to the schedule.
func (s *Snapshot) RemoveIntervalTS(startTS, endTS int64) error {
	interval, err := NewInterval(startTS, endTS)
	if err != nil {
		return err
	}

	if !s.intervalsHydrated {
		return fmt.Errorf("%w: %s", ErrIntervalsNotHydrated, s.SnapshotID())
	}

	s.intervals = RemoveInterval(s.intervals, interval.Start, interval.End)
	s.devIntervals = RemoveInterval(s.devIntervals, interval.Start, interval.End)

	return nil
}

// MergeIntervals inherits the intervals of other.
//
// If this snapshot has an effective-from cutover and other is a different snapshot, only the parts of the
// incoming intervals before the cutover are inherited. Development intervals are only inherited from the
// same snapshot.
func (s *Snapshot) MergeIntervals(other SnapshotIntervals) error {
	if !s.intervalsHydrated {
		return fmt.Errorf("%w: %s", ErrIntervalsNotHydrated, s.SnapshotID())
	}

	sameSnapshot := s.Identifier() == other.Identifier

	inherited := other.Intervals
	if !sameSnapshot {
		inherited = IntervalsBefore(other.Intervals, s.NormalizedEffectiveFromTS())
	}

	for _, interval := range inherited {
		if err := s.AddInterval(interval.StartTime(), interval.EndTime(), false); err != nil {
			return err
		}
	}

	if !sameSnapshot {
		return nil
	}

	for _, interval := range other.DevIntervals {
		if err := s.AddInterval(interval.StartTime(), interval.EndTime(), true); err != nil {
			return err
		}
	}

	return nil
}

// Start returns the model's start floored to its schedule. The second result is false if it has none.
func (s *Snapshot) Start() (time.Time, bool) {
	start, ok := s.model.Start()
	if !ok {
		return time.Time{}, false
	}

	return s.model.CronFloor(start), true
}

// Latest returns the exclusive end of the processed data, or the start if nothing was processed yet.
// The second result is false if neither exists.
func (s *Snapshot) Latest() (time.Time, bool) {
	if !s.intervalsHydrated || len(s.intervals) == 0 {
		return s.Start()
	}

	latest := s.intervals[0].End
	for _, interval := range s.intervals[1:] {
		latest = max(latest, interval.End)
	}

	return FromTimestamp(latest), true
}

// MissingIntervals returns the schedule slots within [start, end) which still have to be processed.
//
// A slot counts as processed only if it and the lookback slots following it are covered by one interval.
// Symbolic models never miss anything, seeds only until they were loaded once. Models that depend on their
// own past are checked up to their latest data, and recomputed completely when they are being restated.
func (s *Snapshot) MissingIntervals(start, end time.Time, options MissingOptions) (Intervals, error) {
	if !s.intervalsHydrated {
		return nil, fmt.Errorf("%w: %s", ErrIntervalsNotHydrated, s.SnapshotID())
	}

	if s.version == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotVersioned, s.SnapshotID())
	}

	kind := s.model.Kind()
	if kind.IsSymbolic() || (kind.IsSeed() && len(s.intervals) > 0) {
		return Intervals{}, nil
	}

	if s.DependsOnPast() {
		if latest, ok := s.Latest(); ok && latest.After(end) {
			end = latest
		}
	}

	bounds, err := s.InclusiveExclusive(start, end, false)
	if err != nil {
		return nil, err
	}

	latest := options.Latest
	if latest.IsZero() {
		latest = s.now()
	}

	latestTS := ToTimestamp(latest)

	dates, err := s.candidateDates(bounds, latestTS)
	if err != nil {
		return nil, err
	}

	intervals := s.intervals
	if options.IsDev && s.IsPaused() && s.IsForwardOnly() {
		intervals = s.devIntervals
	}

	if s.DependsOnPast() && slices.Contains(options.Restatements, s.name) {
		intervals = nil
	}

	lookback := s.model.Lookback()
	missing := Intervals{}

	for i, current := range dates {
		if current >= bounds.End {
			break
		}

		var next int64
		if i+1 < len(dates) {
			next = dates[i+1]
		} else {
			next = ToTimestamp(s.model.CronNext(FromTimestamp(current)))
		}

		compare := dates[len(dates)-1]
		if i+lookback < len(dates) {
			compare = dates[i+lookback]
		}

		if !isCovered(intervals, current, compare) {
			missing = append(missing, Interval{Start: current, End: next})
		}
	}

	return missing, nil
}

// candidateDates lists the schedule boundaries from bounds.Start before bounds.End, followed by up to lookback
// further boundaries before latestTS.
func (s *Snapshot) candidateDates(bounds Interval, latestTS int64) ([]int64, error) {
	dates := []int64{bounds.Start}
	current := FromTimestamp(bounds.Start)

	for {
		next, err := s.cronNext(current)
		if err != nil {
			return nil, err
		}

		if ToTimestamp(next) >= bounds.End {
			break
		}

		dates = append(dates, ToTimestamp(next))
		current = next
	}

	for range s.model.Lookback() {
		next, err := s.cronNext(current)
		if err != nil {
			return nil, err
		}

		if ToTimestamp(next) >= latestTS {
			break
		}

		dates = append(dates, ToTimestamp(next))
		current = next
	}

	return dates, nil
}

func (s *Snapshot) cronNext(t time.Time) (time.Time, error) {
	next := s.model.CronNext(t)
	if !next.After(t) {
		return time.Time{}, fmt.Errorf("%w: %s after %s", ErrNonAdvancingSchedule, s.name, t.Format(time.RFC3339))
	}

	return next, nil
}

// isCovered decides by the first stored interval which either lies completely after compare or covers
// [current, compare].
func isCovered(intervals Intervals, current, compare int64) bool {
	for _, interval := range intervals {
		if compare < interval.Start {
			return false
		}

		if current >= interval.Start && compare < interval.End {
			return true
		}
	}

	return false
}

// IsValidStart reports whether processing a model which depends on its past may start at start without
// leaving a gap before it. defaultStart is used if the model has no start; zero means none.
func (s *Snapshot) IsValidStart(start, defaultStart time.Time) (bool, error) {
	if !s.DependsOnPast() || start.IsZero() {
		return true, nil
	}

	snapshotStart, ok := s.Start()
	if !ok {
		snapshotStart, ok = defaultStart, !defaultStart.IsZero()
	}

	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUndefinedStart, s.SnapshotID())
	}

	startTS := ToTimestamp(s.model.CronFloor(start))

	intervals, err := s.Intervals()
	if err != nil {
		return false, err
	}

	if len(intervals) == 0 {
		return ToTimestamp(snapshotStart) >= startTS, nil
	}

	missing, err := s.MissingIntervals(snapshotStart, s.now(), MissingOptions{})
	if err != nil {
		return false, err
	}

	if len(missing) > 0 {
		return missing[0].Start >= startTS, nil
	}

	return true, nil
}
