package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoadsReferenceData(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, 69, c.Len())

	// Every catalog code has guidance.
	for _, act := range c.All() {
		_, ok := c.GuidanceFor(act.Code)
		assert.True(t, ok, "missing guidance for %s", act.Code)
	}
}

func TestLookup(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	act, ok := c.Lookup("1(a)")
	require.True(t, ok)
	assert.Contains(t, act.Description, "livestock")
	require.NotNil(t, act.Weights)
	assert.InDelta(t, 1.5, act.Weights.Nature, 1e-9)
	assert.InDelta(t, 1.5, act.Weights.Scale, 1e-9)
	assert.InDelta(t, 3.0, act.Weights.Location, 1e-9)
	assert.InDelta(t, 6.0, act.Weights.Sum(), 1e-9)

	_, ok = c.Lookup("99(z)")
	assert.False(t, ok)
}

func TestWeightTableGap(t *testing.T) {
	// The upstream weight table has no entry for 5(c); the activity is still
	// listed, it just never contributes to the score.
	c, err := New()
	require.NoError(t, err)

	act, ok := c.Lookup("5(c)")
	require.True(t, ok)
	assert.Nil(t, act.Weights)
}

func TestAllIsCopy(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	all := c.All()
	all[0].Code = "mutated"
	fresh := c.All()
	assert.NotEqual(t, "mutated", fresh[0].Code)
}

func TestSortKeyOrdering(t *testing.T) {
	tests := []struct {
		smaller, larger string
	}{
		{"8(a)", "8(c)"},
		{"8(c)", "9"},
		{"9", "10(a)"},
		{"1(a)", "1(b)"},
		{"1(b)", "2"},
		{"44(a)", "44(b)"},
	}
	for _, tt := range tests {
		assert.Less(t, SortKey(tt.smaller), SortKey(tt.larger),
			"%s should precede %s", tt.smaller, tt.larger)
	}

	// Unsuffixed codes precede lettered suffixes of the same number.
	assert.Less(t, SortKey("8"), SortKey("8(a)"))

	// Unparsable codes sort last.
	assert.Greater(t, SortKey("not-a-code"), SortKey("44(b)"))
}

func TestSortCodes(t *testing.T) {
	codes := []string{"10(a)", "8(c)", "9", "8(a)"}
	SortCodes(codes)
	assert.Equal(t, []string{"8(a)", "8(c)", "9", "10(a)"}, codes)
}
