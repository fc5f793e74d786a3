package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

// Evaluator computes the data of a snapshot for one interval, e.g. by running the model's query against the
// physical table of the snapshot.
type Evaluator interface {
	Evaluate(ctx context.Context, snap *snapshot.Snapshot, interval snapshot.Interval) error
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, snap *snapshot.Snapshot, interval snapshot.Interval) error

func (f EvaluatorFunc) Evaluate(ctx context.Context, snap *snapshot.Snapshot, interval snapshot.Interval) error {
	return f(ctx, snap, interval)
}

// IntervalRecorder persists processed intervals. The sqlengine.StateStore implements it.
type IntervalRecorder interface {
	AddInterval(ctx context.Context, snap *snapshot.Snapshot, interval snapshot.Interval, isDev bool) error
}

// Plan is the work for one snapshot.
type Plan struct {
	Snapshot *snapshot.Snapshot
	Missing  snapshot.Intervals
}

// RunResult summarizes a Run.
type RunResult struct {
	RunID     string
	Snapshots int
	Batches   int
}

// Scheduler backfills missing intervals.
type Scheduler struct {
	recorder         IntervalRecorder
	evaluator        Evaluator
	batchSize        int
	isDev            bool
	logger           snapshot.Logger
	contextualLogger snapshot.ContextualLogger
	metricsCollector snapshot.MetricsCollector
	tracingCollector snapshot.TracingCollector
}

// New creates a Scheduler. The recorder may be nil, then processed intervals are only kept on the snapshots.
func New(recorder IntervalRecorder, evaluator Evaluator, options ...Option) (*Scheduler, error) {
	if evaluator == nil {
		return nil, ErrNilEvaluator
	}

	s := &Scheduler{
		recorder:  recorder,
		evaluator: evaluator,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// ComputeMissing returns the missing intervals within [start, end) of every snapshot that misses any,
// ordered so that parents come before their children. Snapshots that are not in snaps are ignored as
// parents. The snapshots must have hydrated intervals and a version.
func ComputeMissing(
	snaps []*snapshot.Snapshot,
	start time.Time,
	end time.Time,
	options snapshot.MissingOptions,
) ([]Plan, error) {

	ordered, err := TopologicalOrder(snaps)
	if err != nil {
		return nil, err
	}

	plans := make([]Plan, 0, len(ordered))

	for _, snap := range ordered {
		missing, missingErr := snap.MissingIntervals(start, end, options)
		if missingErr != nil {
			return nil, missingErr
		}

		if len(missing) == 0 {
			continue
		}

		plans = append(plans, Plan{Snapshot: snap, Missing: missing})
	}

	return plans, nil
}

// TopologicalOrder sorts snaps parents first. Snapshots without an ordering constraint between them
// are sorted by name and identifier. Duplicates are dropped.
func TopologicalOrder(snaps []*snapshot.Snapshot) ([]*snapshot.Snapshot, error) {
	byID := make(map[snapshot.SnapshotID]*snapshot.Snapshot, len(snaps))
	for _, snap := range snaps {
		byID[snap.SnapshotID()] = snap
	}

	inDegree := make(map[snapshot.SnapshotID]int, len(byID))
	children := make(map[snapshot.SnapshotID][]snapshot.SnapshotID, len(byID))

	for id := range byID {
		inDegree[id] = 0
	}

	for id, snap := range byID {
		for _, parent := range snap.Parents() {
			if _, ok := byID[parent]; !ok || parent == id {
				continue
			}

			inDegree[id]++
			children[parent] = append(children[parent], id)
		}
	}

	var ready []snapshot.SnapshotID
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}

	ordered := make([]*snapshot.Snapshot, 0, len(byID))

	for len(ready) > 0 {
		slices.SortFunc(ready, compareIDs)
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byID[next])

		for _, child := range children[next] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(ordered) != len(byID) {
		var stuck []string
		for id, degree := range inDegree {
			if degree > 0 {
				stuck = append(stuck, id.Name)
			}
		}

		slices.Sort(stuck)

		return nil, fmt.Errorf("%w: %s", snapshot.ErrDependencyCycle, strings.Join(stuck, ", "))
	}

	return ordered, nil
}

func compareIDs(a, b snapshot.SnapshotID) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}

	return strings.Compare(a.Identifier, b.Identifier)
}

// Batches merges adjacent intervals into batches of at most batchSize intervals.
// Intervals that are not adjacent always end up in different batches. A batchSize <= 0 means unlimited.
func Batches(intervals snapshot.Intervals, batchSize int) snapshot.Intervals {
	batches := snapshot.Intervals{}
	count := 0

	for _, interval := range intervals {
		last := len(batches) - 1
		if last >= 0 && batches[last].End == interval.Start && (batchSize <= 0 || count < batchSize) {
			batches[last].End = interval.End
			count++

			continue
		}

		batches = append(batches, interval)
		count = 1
	}

	return batches
}

// batchSizeFor prefers the batch size of the model's metadata over the scheduler's default.
func (s *Scheduler) batchSizeFor(snap *snapshot.Snapshot) int {
	if size := snap.Model().Metadata().BatchSize; size != nil {
		return *size
	}

	return s.batchSize
}

// Run evaluates the missing intervals within [start, end) of snaps, parents first.
//
// Every evaluated batch is recorded on the snapshot and in the IntervalRecorder before the next one starts.
// The run stops at the first error. Batches that were recorded before stay recorded.
func (s *Scheduler) Run(
	ctx context.Context,
	snaps []*snapshot.Snapshot,
	start time.Time,
	end time.Time,
	options snapshot.MissingOptions,
) (RunResult, error) {

	result := RunResult{RunID: uuid.NewString()}
	observer, ctx := s.startRun(ctx, result.RunID)

	options.IsDev = options.IsDev || s.isDev

	plans, err := ComputeMissing(snaps, start, end, options)
	if err != nil {
		observer.finishError(err, result)
		return result, err
	}

	for _, plan := range plans {
		for _, batch := range Batches(plan.Missing, s.batchSizeFor(plan.Snapshot)) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = errors.Join(ErrRunCanceled, ctxErr)
				observer.finishError(err, result)

				return result, err
			}

			if err = s.runBatch(ctx, plan.Snapshot, batch, options.IsDev); err != nil {
				observer.finishError(err, result)
				return result, err
			}

			result.Batches++
		}

		result.Snapshots++
	}

	observer.finishSuccess(result)

	return result, nil
}

func (s *Scheduler) runBatch(ctx context.Context, snap *snapshot.Snapshot, batch snapshot.Interval, isDev bool) error {
	batchStart := time.Now()

	if err := s.evaluator.Evaluate(ctx, snap, batch); err != nil {
		s.recordBatch(ctx, snap, batch, time.Since(batchStart), statusError)
		return errors.Join(ErrEvaluationFailed, fmt.Errorf("%s %s", snap.SnapshotID(), batch), err)
	}

	// the store first, so a failed write leaves the snapshot as it was
	if s.recorder != nil {
		if err := s.recorder.AddInterval(ctx, snap, batch, isDev); err != nil {
			s.recordBatch(ctx, snap, batch, time.Since(batchStart), statusError)
			return errors.Join(ErrRecordingFailed, err)
		}
	}

	if err := snap.AddIntervalTS(batch.Start, batch.End, isDev); err != nil {
		s.recordBatch(ctx, snap, batch, time.Since(batchStart), statusError)
		return errors.Join(ErrRecordingFailed, err)
	}

	s.recordBatch(ctx, snap, batch, time.Since(batchStart), statusSuccess)

	return nil
}
