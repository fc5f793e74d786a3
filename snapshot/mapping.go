package snapshot

import (
	"fmt"
)

// ToTableMapping maps the names of all versioned, materialized snapshots to the tables their children read from.
func ToTableMapping(snapshots []*Snapshot, isDev bool) (map[string]string, error) {
	mapping := make(map[string]string, len(snapshots))

	for _, s := range snapshots {
		if s.Version() == "" || s.IsSymbolic() {
			continue
		}

		tableName, err := s.TableNameForMapping(isDev)
		if err != nil {
			return nil, err
		}

		mapping[s.Name()] = tableName
	}

	return mapping, nil
}

// IndexSnapshots indexes snapshots by their id.
func IndexSnapshots(snapshots []*Snapshot) map[SnapshotID]*Snapshot {
	index := make(map[SnapshotID]*Snapshot, len(snapshots))
	for _, s := range snapshots {
		index[s.SnapshotID()] = s
	}

	return index
}

// HasPausedForwardOnly reports whether any of the targets is a paused forward-only snapshot.
// Every target must be part of snapshots.
func HasPausedForwardOnly(targets []SnapshotID, snapshots map[SnapshotID]*Snapshot) (bool, error) {
	for _, target := range targets {
		s, ok := snapshots[target]
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownSnapshot, target)
		}

		if s.IsPaused() && s.IsForwardOnly() {
			return true, nil
		}
	}

	return false, nil
}
