package fixtures

import (
	"time"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/model"
)

// FixedNow is the instant returned by FixedClock.
var FixedNow = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

// FixedClock always returns FixedNow.
func FixedClock() time.Time {
	return FixedNow
}

// Day returns midnight UTC of the given day in January 2024.
func Day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// TS returns Day(d) in epoch milliseconds.
func TS(d int) int64 {
	return Day(d).UnixMilli()
}

// DailyInterval returns the interval of the days [from, to).
func DailyInterval(from, to int) snapshot.Interval {
	return snapshot.Interval{Start: TS(from), End: TS(to)}
}

// DailyModel returns an incremental model on a daily schedule starting 2024-01-01.
func DailyModel(name string, modify ...func(spec *model.Spec)) *model.Definition {
	spec := model.Spec{
		Name:  name,
		Kind:  model.KindSpec{Name: "incremental_by_time_range", TimeColumn: "ds"},
		Cron:  "@daily",
		Start: "2024-01-01",
		Query: "SELECT id, ds FROM raw.orders",
		Columns: []model.ColumnSpec{
			{Name: "id", Type: "INT"},
			{Name: "ds", Type: "DATE"},
		},
	}

	for _, m := range modify {
		m(&spec)
	}

	return model.MustNew(spec)
}

// DependsOn is a DailyModel modifier.
func DependsOn(names ...string) func(spec *model.Spec) {
	return func(spec *model.Spec) {
		spec.DependsOn = names
	}
}

// ModelsOf indexes the definitions by name.
func ModelsOf(definitions ...*model.Definition) map[string]snapshot.Model {
	models := make(map[string]snapshot.Model, len(definitions))
	for _, definition := range definitions {
		models[definition.Name()] = definition
	}

	return models
}

// CategorizedSnapshots creates a snapshot with FixedClock per definition, categorized as breaking.
func CategorizedSnapshots(definitions ...*model.Definition) (map[string]*snapshot.Snapshot, error) {
	models := ModelsOf(definitions...)
	cache := snapshot.NewFingerprintCache()
	snaps := make(map[string]*snapshot.Snapshot, len(definitions))

	for _, definition := range definitions {
		snap, err := snapshot.NewSnapshotFromModel(
			definition,
			models,
			snapshot.WithClock(FixedClock),
			snapshot.WithFingerprintCache(cache),
		)
		if err != nil {
			return nil, err
		}

		if err = snap.CategorizeAs(snapshot.Breaking); err != nil {
			return nil, err
		}

		snaps[definition.Name()] = snap
	}

	return snaps, nil
}
