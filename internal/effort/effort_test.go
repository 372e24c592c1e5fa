package effort

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBudgets(t *testing.T) {
	cases := map[string]Budget{
		"low":    {SearchQueryCount: 1, MaxResearchLoops: 1},
		"medium": {SearchQueryCount: 3, MaxResearchLoops: 3},
		"high":   {SearchQueryCount: 5, MaxResearchLoops: 10},
		" HIGH ": {SearchQueryCount: 5, MaxResearchLoops: 10},
	}
	for input, want := range cases {
		level, err := Parse(input)
		require.NoError(t, err)
		budget, err := level.Budget()
		require.NoError(t, err)
		require.Equal(t, want, budget, input)
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, input := range []string{"", "extreme", "med"} {
		_, err := Parse(input)
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrUnknownEffort))
	}

	_, err := Level("turbo").Budget()
	require.ErrorIs(t, err, ErrUnknownEffort)
}

func TestNextCycles(t *testing.T) {
	require.Equal(t, Medium, Low.Next())
	require.Equal(t, High, Medium.Next())
	require.Equal(t, Low, High.Next())
	require.Equal(t, Low, Level("bogus").Next())
}
