package sqlengine

import (
	"context"
	"errors"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

// intervalKey addresses the log rows of one snapshot: shared rows by version, development rows by id.
// Shared rows written by other snapshots of the version only count before effectiveFromTS, if it is set.
type intervalKey struct {
	id              snapshot.SnapshotID
	version         string
	effectiveFromTS int64
}

// replayState accumulates the log rows of one interval list. Added intervals are merged lazily.
type replayState struct {
	intervals snapshot.Intervals
	dirty     bool
}

func (r *replayState) add(interval snapshot.Interval) {
	r.intervals = append(r.intervals, interval)
	r.dirty = true
}

func (r *replayState) remove(interval snapshot.Interval) {
	r.intervals = snapshot.RemoveInterval(r.merged(), interval.Start, interval.End)
}

func (r *replayState) merged() snapshot.Intervals {
	if r.dirty {
		r.intervals = snapshot.MergeIntervals(r.intervals)
		r.dirty = false
	}

	if r.intervals == nil {
		r.intervals = snapshot.Intervals{}
	}

	return r.intervals
}

// versionReplay holds the shared rows of one name and version, grouped by the identifier that wrote them.
// A removal applies to every writer seen so far.
type versionReplay struct {
	writers map[string]*replayState
}

func (v *versionReplay) add(identifier string, interval snapshot.Interval) {
	state, ok := v.writers[identifier]
	if !ok {
		state = &replayState{}
		v.writers[identifier] = state
	}

	state.add(interval)
}

func (v *versionReplay) remove(interval snapshot.Interval) {
	for _, state := range v.writers {
		state.remove(interval)
	}
}

// intervalsFor merges the writers' lists as seen by key.
func (v *versionReplay) intervalsFor(key intervalKey) snapshot.Intervals {
	all := make(snapshot.Intervals, 0)

	for identifier, state := range v.writers {
		if identifier == key.id.Identifier {
			all = append(all, state.merged()...)
			continue
		}

		all = append(all, snapshot.IntervalsBefore(state.merged(), key.effectiveFromTS)...)
	}

	return snapshot.MergeIntervals(all)
}

// loadIntervals replays the interval log for keys. Every key gets an entry, with empty lists if nothing was logged.
func (ss *StateStore) loadIntervals(ctx context.Context, keys []intervalKey) (map[snapshot.SnapshotID]snapshot.SnapshotIntervals, error) {
	result := make(map[snapshot.SnapshotID]snapshot.SnapshotIntervals, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	shared := make(map[snapshot.SnapshotNameVersion]*versionReplay)
	dev := make(map[snapshot.SnapshotID]*replayState)

	for _, key := range keys {
		shared[snapshot.SnapshotNameVersion{Name: key.id.Name, Version: key.version}] = &versionReplay{
			writers: make(map[string]*replayState),
		}
		dev[key.id] = &replayState{}
	}

	sqlQuery, err := ss.buildSelectIntervalsQuery(keys)
	if err != nil {
		return nil, err
	}

	rows, err := ss.query(ctx, sqlQuery, operationGetIntervals)
	if err != nil {
		return nil, err
	}
	defer ss.closeRows(ctx, rows)

	for rows.Next() {
		var (
			row              intervalRow
			isDev, isRemoved int64
		)

		scanErr := rows.Scan(&row.id.Name, &row.id.Identifier, &row.version, &row.start, &row.end, &isDev, &isRemoved)
		if scanErr != nil {
			ss.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(ErrScanningDBRowFailed, scanErr)
		}

		interval := snapshot.Interval{Start: row.start, End: row.end}

		if isDev == 1 {
			state := dev[row.id]

			// rows of keys which were not asked for, e.g. a development row of a deleted identifier
			if state == nil {
				continue
			}

			if isRemoved == 1 {
				state.remove(interval)
			} else {
				state.add(interval)
			}

			continue
		}

		version := shared[snapshot.SnapshotNameVersion{Name: row.id.Name, Version: row.version}]
		if version == nil {
			continue
		}

		if isRemoved == 1 {
			version.remove(interval)
		} else {
			version.add(row.id.Identifier, interval)
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, errors.Join(ErrQueryingStateFailed, rowsErr)
	}

	for _, key := range keys {
		result[key.id] = snapshot.SnapshotIntervals{
			Name:         key.id.Name,
			Identifier:   key.id.Identifier,
			Version:      key.version,
			Intervals:    shared[snapshot.SnapshotNameVersion{Name: key.id.Name, Version: key.version}].intervalsFor(key),
			DevIntervals: dev[key.id].merged().Clone(),
		}
	}

	return result, nil
}
