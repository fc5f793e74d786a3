package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/model"
)

func Test_New(t *testing.T) {
	definition, err := model.New(model.Spec{
		Name:      "db.orders",
		Kind:      model.KindSpec{Name: "INCREMENTAL_BY_TIME_RANGE", TimeColumn: "ds", TimeColumnFormat: "%Y-%m-%d"},
		DependsOn: []string{"db.raw", "db.orders", "db.raw"},
		Start:     "2024-01-01",
		Cron:      "@hourly",
		Lookback:  2,
	})
	require.NoError(t, err)

	var m snapshot.Model = definition

	assert.Equal(t, "db.orders", m.Name())
	assert.Equal(t, []string{"db.raw"}, m.DependsOn())
	assert.True(t, m.DependsOnPast())
	assert.Equal(t, "@hourly", m.Cron())
	assert.Equal(t, 2, m.Lookback())
	assert.Equal(t, snapshot.ModelKind{
		Name:             snapshot.KindIncrementalByTimeRange,
		TimeColumn:       "ds",
		TimeColumnFormat: "%Y-%m-%d",
	}, m.Kind())

	start, ok := m.Start()
	assert.True(t, ok)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(start))
}

func Test_New_Defaults(t *testing.T) {
	definition := model.MustNew(model.Spec{Name: "db.full"})

	assert.Equal(t, snapshot.KindFull, definition.Kind().Name)
	assert.Equal(t, model.DefaultCron, definition.Cron())
	assert.False(t, definition.DependsOnPast())

	_, ok := definition.Start()
	assert.False(t, ok)
}

func Test_New_UniqueKeyDependsOnPast(t *testing.T) {
	definition := model.MustNew(model.Spec{
		Name: "db.customers",
		Kind: model.KindSpec{Name: "incremental_by_unique_key", UniqueKey: []string{"id"}},
	})

	assert.True(t, definition.DependsOnPast())
	assert.Equal(t, []string{"id"}, definition.Kind().UniqueKey)
}

func Test_New_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec model.Spec
		err  error
	}{
		{name: "empty_name", spec: model.Spec{Name: " "}, err: model.ErrEmptyName},
		{name: "unknown_kind", spec: model.Spec{Name: "a", Kind: model.KindSpec{Name: "snapshot"}}, err: model.ErrUnknownKind},
		{
			name: "time_range_without_time_column",
			spec: model.Spec{Name: "a", Kind: model.KindSpec{Name: "incremental_by_time_range"}},
			err:  model.ErrUnknownKind,
		},
		{
			name: "unique_key_without_key",
			spec: model.Spec{Name: "a", Kind: model.KindSpec{Name: "incremental_by_unique_key"}},
			err:  model.ErrUnknownKind,
		},
		{name: "invalid_cron", spec: model.Spec{Name: "a", Cron: "@sometimes"}, err: model.ErrInvalidCron},
		{name: "invalid_start", spec: model.Spec{Name: "a", Start: "yesterday"}, err: model.ErrInvalidStart},
		{name: "negative_lookback", spec: model.Spec{Name: "a", Lookback: -1}, err: model.ErrInvalidDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.New(tt.spec)

			assert.ErrorIs(t, err, tt.err)
			assert.ErrorIs(t, err, model.ErrInvalidDefinition)
		})
	}
}

func Test_ParseTime(t *testing.T) {
	for _, value := range []string{"2024-01-02", "2024-01-02 00:00:00", "2024-01-02T02:00:00+02:00"} {
		t.Run(value, func(t *testing.T) {
			parsed, err := model.ParseTime(value)
			require.NoError(t, err)
			assert.True(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).Equal(parsed))
		})
	}
}

func Test_Definition_Content(t *testing.T) {
	query := `/* orders per day */
SELECT id,
       ds   -- partition column
FROM raw.orders`

	definition := model.MustNew(model.Spec{
		Name:             "db.orders",
		Query:            query,
		PreStatements:    []string{"SET  timezone = 'UTC'"},
		MacroDefinitions: []string{"@DEF(x, 1)"},
		Macros:           map[string]string{"b": "2", "a": "1"},
		Environment:      map[string]string{"z": "1", "a": "2"},
		Columns:          []model.ColumnSpec{{Name: "id", Type: "INT"}, {Name: "ds", Type: "DATE"}},
	})

	rendered, err := definition.Content(false)
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, ds FROM raw.orders", rendered.Query)
	assert.Equal(t, []string{"SET timezone = 'UTC'"}, rendered.PreStatements)
	assert.Empty(t, rendered.MacroDefinitions)
	assert.Equal(t, []snapshot.Macro{{Name: "a", Definition: "1"}, {Name: "b", Definition: "2"}}, rendered.Macros)
	assert.Equal(t, "a=2\nz=1", rendered.Environment)
	assert.Equal(t, []string{"orders per day", "partition column"}, rendered.Comments)
	assert.Equal(t, []snapshot.Column{{Name: "id", Type: "INT"}, {Name: "ds", Type: "DATE"}}, rendered.Columns)

	raw, err := definition.Content(true)
	require.NoError(t, err)

	assert.Contains(t, raw.Query, "-- partition column")
	assert.Equal(t, []string{"@DEF(x, 1)"}, raw.MacroDefinitions)
}

func Test_Definition_Metadata(t *testing.T) {
	retention := 30

	definition := model.MustNew(model.Spec{
		Name:        "db.orders",
		Owner:       "analytics",
		Description: "orders",
		Start:       "2024-01-01",
		Retention:   &retention,
		Tags:        []string{"finance"},
		Grain:       []string{"id"},
		Audits:      []model.AuditRefSpec{{Name: "not_null", Args: map[string]string{"columns": "[id]"}}},
	})

	metadata := definition.Metadata()

	assert.Equal(t, "analytics", metadata.Owner)
	assert.Equal(t, "2024-01-01", metadata.Start)
	assert.Equal(t, &retention, metadata.Retention)
	assert.Nil(t, metadata.BatchSize)
	assert.Equal(t, []string{"finance"}, metadata.Tags)
	assert.Equal(t, []snapshot.AuditRef{{Name: "not_null", Args: map[string]string{"columns": "[id]"}}}, definition.AuditRefs())
}
