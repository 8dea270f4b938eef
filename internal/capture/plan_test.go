package capture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPlanGeneratesInclusiveLadder(t *testing.T) {
	plan := NewPlan(2.0, 2.0, 0.5, 5.0)
	assert.Equal(t, Plan{2.0, 2.5, 3.0, 3.5, 4.0}, plan)
}

func TestNewPlanClipsToDuration(t *testing.T) {
	plan := NewPlan(9.5, 2.0, 0.5, 10.0)
	assert.Equal(t, Plan{9.5, 10.0}, plan)
}

func TestNewPlanFiltersNegativeCandidates(t *testing.T) {
	plan := NewPlan(-1.0, 2.0, 0.5, 10.0)
	assert.Equal(t, Plan{0.0, 0.5, 1.0}, plan)
}

func TestNewPlanZeroDuration(t *testing.T) {
	plan := NewPlan(0, 5, 1, 0)
	assert.Equal(t, Plan{0.0}, plan)
}

func TestNewPlanInvalidInputs(t *testing.T) {
	tests := []struct {
		name                          string
		start, window, step, duration float64
	}{
		{"zero window", 1, 0, 0.5, 10},
		{"negative window", 1, -2, 0.5, 10},
		{"zero step", 1, 2, 0, 10},
		{"negative step", 1, 2, -0.5, 10},
		{"negative duration", 1, 2, 0.5, -1},
		{"nan start", math.NaN(), 2, 0.5, 10},
		{"nan window", 1, math.NaN(), 0.5, 10},
		{"nan step", 1, 2, math.NaN(), 10},
		{"nan duration", 1, 2, 0.5, math.NaN()},
		{"positive inf start", math.Inf(1), 2, 0.5, 10},
		{"negative inf start", math.Inf(-1), 2, 0.5, 10},
		{"inf window", 1, math.Inf(1), 0.5, 10},
		{"inf step", 1, 2, math.Inf(1), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, NewPlan(tt.start, tt.window, tt.step, tt.duration))
		})
	}
}

func TestNewPlanDeterministic(t *testing.T) {
	a := NewPlan(1.2345, 3.7, 0.37, 42.0)
	b := NewPlan(1.2345, 3.7, 0.37, 42.0)
	assert.Equal(t, a, b)
}

func TestNewPlanStrictlyIncreasing(t *testing.T) {
	tests := []struct {
		start, window, step, duration float64
	}{
		{0, 10, 0.1, 100},
		{9.5, 2, 0.5, 10},
		{-3, 6, 0.7, 2},
		{0.333333, 1, 0.111111, 5},
		{0, 1e-6, 4e-7, 1},
		{0.5, 0.001, 3e-7, 2},
	}
	for _, tt := range tests {
		plan := NewPlan(tt.start, tt.window, tt.step, tt.duration)
		for i := 1; i < len(plan); i++ {
			assert.Greater(t, plan[i], plan[i-1])
		}
	}
}

// A candidate landing on start+window only within float error must still be
// included: 3*0.1 overshoots 0.3 by one ulp before normalization.
func TestNewPlanBoundaryTie(t *testing.T) {
	plan := NewPlan(0, 0.3, 0.1, 10)
	assert.Equal(t, Plan{0.0, 0.1, 0.2, 0.3}, plan)
}

// A step below the normalization grain collapses consecutive candidates onto
// the same microsecond; the duplicates must be dropped, not emitted.
func TestNewPlanSubGrainStep(t *testing.T) {
	plan := NewPlan(0, 1e-6, 4e-7, 1)
	assert.Equal(t, Plan{0, 1e-6}, plan)
}

// Direct multiplication keeps late candidates exact; accumulation would have
// drifted by the 96th step.
func TestNewPlanNoAccumulatedDrift(t *testing.T) {
	plan := NewPlan(0, 10, 0.1, 100)
	assert.Len(t, plan, 101)
	assert.Equal(t, 9.5, plan[95])
	assert.Equal(t, 10.0, plan[100])
}
