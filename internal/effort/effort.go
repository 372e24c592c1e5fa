// Package effort maps the user-facing effort levels onto the research budget
// the agent runs with.
package effort

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownEffort = errors.New("unknown effort level")

type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Budget is the pair of research knobs sent with every submission.
type Budget struct {
	SearchQueryCount int `json:"initial_search_query_count"`
	MaxResearchLoops int `json:"max_research_loops"`
}

var budgets = map[Level]Budget{
	Low:    {SearchQueryCount: 1, MaxResearchLoops: 1},
	Medium: {SearchQueryCount: 3, MaxResearchLoops: 3},
	High:   {SearchQueryCount: 5, MaxResearchLoops: 10},
}

// Levels lists the supported levels from cheapest to most thorough.
func Levels() []Level {
	return []Level{Low, Medium, High}
}

func Parse(value string) (Level, error) {
	level := Level(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := budgets[level]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEffort, value)
	}
	return level, nil
}

func (l Level) Budget() (Budget, error) {
	budget, ok := budgets[l]
	if !ok {
		return Budget{}, fmt.Errorf("%w: %q", ErrUnknownEffort, string(l))
	}
	return budget, nil
}

// Next cycles to the following level, wrapping from high back to low.
func (l Level) Next() Level {
	levels := Levels()
	for i, level := range levels {
		if level == l {
			return levels[(i+1)%len(levels)]
		}
	}
	return Low
}
