package snapshot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/model"
)

var fixedNow = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return fixedNow
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func ts(d int) int64 {
	return day(d).UnixMilli()
}

func dailyModel(name string, modify ...func(spec *model.Spec)) *model.Definition {
	spec := model.Spec{
		Name:  name,
		Kind:  model.KindSpec{Name: "incremental_by_time_range", TimeColumn: "ds"},
		Cron:  "@daily",
		Start: "2024-01-01",
		Query: "SELECT id, ds FROM raw.orders -- daily orders",
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

func modelsOf(definitions ...*model.Definition) map[string]snapshot.Model {
	models := make(map[string]snapshot.Model, len(definitions))
	for _, definition := range definitions {
		models[definition.Name()] = definition
	}

	return models
}

func newSnapshot(
	t *testing.T,
	m snapshot.Model,
	models map[string]snapshot.Model,
	options ...snapshot.Option,
) *snapshot.Snapshot {

	t.Helper()

	options = append([]snapshot.Option{snapshot.WithClock(fixedClock)}, options...)

	s, err := snapshot.NewSnapshotFromModel(m, models, options...)
	require.NoError(t, err)

	return s
}

func categorized(t *testing.T, s *snapshot.Snapshot, category snapshot.ChangeCategory) *snapshot.Snapshot {
	t.Helper()

	require.NoError(t, s.CategorizeAs(category))

	return s
}
