package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot/model"
)

func Test_SQLAudit_Query(t *testing.T) {
	blocking := false

	audit, err := model.NewAudit(model.AuditSpec{
		Name:     "positive",
		Dialect:  "postgres",
		Blocking: &blocking,
		Query:    "SELECT *\nFROM @this_model\nWHERE @column < @threshold",
		Defaults: map[string]string{"threshold": "0"},
	})
	require.NoError(t, err)

	assert.Equal(t, "positive", audit.Name())
	assert.Equal(t, "postgres", audit.Dialect())
	assert.False(t, audit.Blocking())
	assert.False(t, audit.Skip())

	orders := model.MustNew(model.Spec{Name: "db.orders"})

	rendered, err := audit.Query(orders, map[string]string{"column": "amount"}, false)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM db.orders WHERE amount < 0", rendered)

	overridden, err := audit.Query(orders, map[string]string{"column": "amount", "threshold": "10"}, false)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM db.orders WHERE amount < 10", overridden)

	raw, err := audit.Query(orders, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "SELECT *\nFROM @this_model\nWHERE @column < @threshold", raw)

	_, err = audit.Query(orders, nil, false)
	assert.ErrorContains(t, err, "missing arguments column")
}

func Test_NewAudit_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec model.AuditSpec
	}{
		{name: "empty_name", spec: model.AuditSpec{Query: "SELECT 1"}},
		{name: "built_in_name", spec: model.AuditSpec{Name: "not_null", Query: "SELECT 1"}},
		{name: "empty_query", spec: model.AuditSpec{Name: "custom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.NewAudit(tt.spec)
			assert.ErrorIs(t, err, model.ErrInvalidDefinition)
		})
	}
}

func Test_NewAudit_BlockingByDefault(t *testing.T) {
	audit, err := model.NewAudit(model.AuditSpec{Name: "custom", Query: "SELECT 1"})
	require.NoError(t, err)
	assert.True(t, audit.Blocking())
}
