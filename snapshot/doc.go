// Package snapshot provides the versioning and interval-tracking core for models
// of a data-transformation pipeline.
//
// A Snapshot captures one fingerprinted instance of a model. Its identity is derived
// from the model's content and from the content of all upstream models, so a change
// anywhere in the dependency graph produces a new identity downstream.
//
// The package covers:
//   - Hashing: a deterministic CRC-32 checksum over ordered, optional strings
//   - Fingerprints: recursive, memoized data/metadata hashes over the model graph
//   - Change categories: a ranked classification that decides version and storage reuse
//   - Intervals: half-open [start, end) millisecond ranges with merge, remove and gap detection
//   - Table naming: physical table and environment view names derived from a categorized snapshot
//
// Common usage pattern:
//
//	cache := snapshot.NewFingerprintCache()
//	snap, err := snapshot.NewSnapshotFromModel(
//		models["db.orders"],
//		models,
//		snapshot.WithFingerprintCache(cache),
//		snapshot.WithAudits(audits),
//	)
//	if err != nil {
//		// handle error
//	}
//
//	if err = snap.CategorizeAs(snapshot.Breaking); err != nil {
//		// handle error
//	}
//
//	missing, err := snap.MissingIntervals(start, end, snapshot.MissingOptions{})
//	for _, interval := range missing {
//		// evaluate the model for the interval, then record it
//		_ = snap.AddIntervalTS(interval.Start, interval.End, false)
//	}
//
// Nothing in this package performs I/O. Persistence lives in the sqlengine package,
// execution is driven by the scheduler package.
package snapshot
