package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/versioned-snapshots-go/snapshot"
)

func Test_ChangeCategory_Ordering(t *testing.T) {
	ordered := []snapshot.ChangeCategory{
		snapshot.Breaking,
		snapshot.NonBreaking,
		snapshot.ForwardOnly,
		snapshot.IndirectBreaking,
		snapshot.IndirectNonBreaking,
	}

	for i, category := range ordered {
		assert.Equal(t, i+1, int(category))

		for j, other := range ordered {
			switch {
			case i < j:
				assert.Negative(t, category.Compare(other))
			case i > j:
				assert.Positive(t, category.Compare(other))
			default:
				assert.Zero(t, category.Compare(other))
			}
		}
	}
}

func Test_MostSevere(t *testing.T) {
	mostSevere, ok := snapshot.MostSevere(snapshot.IndirectNonBreaking, snapshot.NonBreaking, snapshot.ForwardOnly)
	assert.True(t, ok)
	assert.Equal(t, snapshot.NonBreaking, mostSevere)

	_, ok = snapshot.MostSevere()
	assert.False(t, ok)
}

func Test_ChangeCategory_Predicates(t *testing.T) {
	assert.True(t, snapshot.Breaking.IsBreaking())
	assert.True(t, snapshot.NonBreaking.IsNonBreaking())
	assert.True(t, snapshot.ForwardOnly.IsForwardOnly())
	assert.True(t, snapshot.IndirectBreaking.IsIndirectBreaking())
	assert.True(t, snapshot.IndirectNonBreaking.IsIndirectNonBreaking())
	assert.True(t, snapshot.IndirectBreaking.IsIndirect())
	assert.False(t, snapshot.Breaking.IsIndirect())
	assert.True(t, snapshot.ForwardOnly.ReusesPreviousVersion())
	assert.True(t, snapshot.IndirectNonBreaking.ReusesPreviousVersion())
	assert.False(t, snapshot.NonBreaking.ReusesPreviousVersion())
	assert.False(t, snapshot.ChangeCategory(0).IsValid())
}

func Test_ParseChangeCategory(t *testing.T) {
	tests := []struct {
		input    string
		expected snapshot.ChangeCategory
	}{
		{input: "BREAKING", expected: snapshot.Breaking},
		{input: "non_breaking", expected: snapshot.NonBreaking},
		{input: "forward-only", expected: snapshot.ForwardOnly},
		{input: "4", expected: snapshot.IndirectBreaking},
		{input: " INDIRECT_NON_BREAKING ", expected: snapshot.IndirectNonBreaking},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			category, err := snapshot.ParseChangeCategory(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, category)
		})
	}

	for _, invalid := range []string{"", "0", "6", "cosmetic"} {
		_, err := snapshot.ParseChangeCategory(invalid)
		assert.ErrorIs(t, err, snapshot.ErrUnknownChangeCategory, invalid)
	}
}

func Test_ChangeCategory_JSON(t *testing.T) {
	data, err := snapshot.ForwardOnly.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "3", string(data))

	var category snapshot.ChangeCategory
	require.NoError(t, category.UnmarshalJSON([]byte("5")))
	assert.Equal(t, snapshot.IndirectNonBreaking, category)

	require.NoError(t, category.UnmarshalJSON([]byte(`"BREAKING"`)))
	assert.Equal(t, snapshot.Breaking, category)

	_, err = snapshot.ChangeCategory(9).MarshalJSON()
	assert.ErrorIs(t, err, snapshot.ErrUnknownChangeCategory)
}
