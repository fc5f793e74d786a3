// Package scheduler backfills the missing intervals of a set of snapshots.
//
// ComputeMissing orders the snapshots so that parents come before their children and asks every snapshot
// for its missing intervals. Run splits them into batches, hands every batch to an Evaluator and records
// the processed interval on the snapshot and, if configured, in an IntervalRecorder such as the
// sqlengine state store. A run stops at the first failed batch, there are no retries.
//
//	s, _ := scheduler.New(evaluator, scheduler.WithIntervalRecorder(store), scheduler.WithBatchSize(7))
//	result, err := s.Run(ctx, snaps, start, end, snapshot.MissingOptions{})
package scheduler
