package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/model"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/scheduler"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/sqlengine"
)

// planner versions the models of a project against the state store.
type planner struct {
	cfg     Config
	project *model.Project
	store   *sqlengine.StateStore
	logger  *slog.Logger
	out     io.Writer
	clock   func() time.Time
}

// snapshots returns one snapshot per model. Snapshots the store already knows are restored with their
// intervals, new ones are categorized as breaking and pushed.
func (p *planner) snapshots(ctx context.Context) ([]*snapshot.Snapshot, error) {
	created, err := p.project.Snapshots(
		snapshot.WithProject(p.cfg.Project),
		snapshot.WithTTL(p.cfg.TTL),
		snapshot.WithClock(p.clock),
	)
	if err != nil {
		return nil, err
	}

	ids := make([]snapshot.SnapshotID, 0, len(created))
	for _, snap := range created {
		ids = append(ids, snap.SnapshotID())
	}

	records, err := p.store.GetSnapshots(ctx, ids...)
	if err != nil {
		return nil, err
	}

	stored := make(map[snapshot.SnapshotID]snapshot.SnapshotRecord, len(records))
	for _, record := range records {
		stored[record.SnapshotID()] = record
	}

	result := make([]*snapshot.Snapshot, 0, len(created))
	var pushed []*snapshot.Snapshot

	for _, snap := range created {
		record, ok := stored[snap.SnapshotID()]
		if !ok {
			if err = snap.CategorizeAs(snapshot.Breaking); err != nil {
				return nil, err
			}

			pushed = append(pushed, snap)
			result = append(result, snap)

			continue
		}

		restored, restoreErr := snapshot.RestoreSnapshot(
			record,
			snap.Model(),
			snapshot.WithAudits(p.project.Audits()),
			snapshot.WithClock(p.clock),
		)
		if restoreErr != nil {
			return nil, restoreErr
		}

		result = append(result, restored)
	}

	if err = p.store.PushSnapshots(ctx, pushed...); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "snapshots loaded", "total", len(result), "new", len(pushed))

	return result, nil
}

// plan prints the missing intervals of every snapshot within [start, end).
func (p *planner) plan(ctx context.Context, start, end time.Time) ([]*snapshot.Snapshot, error) {
	snaps, err := p.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	plans, err := scheduler.ComputeMissing(snaps, start, end, p.missingOptions())
	if err != nil {
		return nil, err
	}

	w := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SNAPSHOT\tTABLE\tMISSING")

	for _, plan := range plans {
		table, tableErr := plan.Snapshot.TableName(p.cfg.Dev, false)
		if tableErr != nil {
			return nil, tableErr
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", plan.Snapshot.Name(), table, snapshot.FormatIntervals(snapshot.MergeIntervals(plan.Missing), true))
	}

	if len(plans) == 0 {
		_, _ = fmt.Fprintln(w, "-\t-\tnothing to do")
	}

	return snaps, w.Flush()
}

// run evaluates the plan with evaluator and records the progress in the store.
func (p *planner) run(
	ctx context.Context,
	snaps []*snapshot.Snapshot,
	start time.Time,
	end time.Time,
	evaluator scheduler.Evaluator,
	options ...scheduler.Option,
) (scheduler.RunResult, error) {

	options = append(
		[]scheduler.Option{scheduler.WithBatchSize(p.cfg.BatchSize), scheduler.WithLogger(p.logger)},
		options...,
	)

	if p.cfg.Dev {
		options = append(options, scheduler.WithDevelopmentMode())
	}

	s, err := scheduler.New(p.store, evaluator, options...)
	if err != nil {
		return scheduler.RunResult{}, err
	}

	return s.Run(ctx, snaps, start, end, p.missingOptions())
}

// janitor deletes expired snapshots.
func (p *planner) janitor(ctx context.Context) (int64, error) {
	expired, err := p.store.ExpiredSnapshots(ctx, p.clock())
	if err != nil {
		return 0, err
	}

	if len(expired) == 0 {
		return 0, nil
	}

	for _, id := range expired {
		p.logger.InfoContext(ctx, "deleting expired snapshot", "snapshot", id.String())
	}

	return p.store.DeleteSnapshots(ctx, expired...)
}

func (p *planner) missingOptions() snapshot.MissingOptions {
	return snapshot.MissingOptions{Latest: p.clock(), IsDev: p.cfg.Dev}
}

// printingEvaluator only reports the intervals it would compute.
type printingEvaluator struct {
	out   io.Writer
	isDev bool
}

func (e printingEvaluator) Evaluate(_ context.Context, snap *snapshot.Snapshot, interval snapshot.Interval) error {
	table, err := snap.TableName(e.isDev, false)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(e.out, "evaluating %s %s\n", table, snapshot.FormatIntervals(snapshot.Intervals{interval}, true))

	return err
}
