package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerWeight(t *testing.T) {
	assert.Equal(t, 1.0, PlayerWeight(0))
	assert.InDelta(t, 0.965, PlayerWeight(1), 1e-12)
	assert.InDelta(t, 0.931225, PlayerWeight(2), 1e-12)
	assert.InDelta(t, math.Pow(0.965, 9999), PlayerWeight(9999), 1e-12)
	assert.Zero(t, PlayerWeight(10000))
	assert.Zero(t, PlayerWeight(-1))
}

func TestApplyWeights_Aggregate(t *testing.T) {
	scores := []*WeightedScore{
		{ID: 3, Pp: 50, AccPP: 5, Weight: 0.5},
		{ID: 1, Pp: 100, AccPP: 10, Weight: 1},
		{ID: 2, Pp: 80, AccPP: 8, Weight: 0.965},
	}

	totals, changed := ApplyWeights(scores)

	assert.InDelta(t, 223.76125, totals.Pp, 1e-9)
	assert.InDelta(t, 22.376125, totals.AccPp, 1e-9)
	require.Len(t, changed, 1)
	assert.Equal(t, int64(3), changed[0].ID)
	assert.InDelta(t, 0.931225, changed[0].Weight, 1e-12)
}

func TestApplyWeights_Idempotent(t *testing.T) {
	scores := []*WeightedScore{
		{ID: 1, Pp: 10},
		{ID: 2, Pp: 30},
		{ID: 3, Pp: 20},
	}

	first, changed := ApplyWeights(scores)
	assert.Len(t, changed, 3)

	second, changed := ApplyWeights(scores)
	assert.Empty(t, changed)
	assert.Equal(t, first, second)
}

func TestWeightedAccuracy_MissingSlotsDilute(t *testing.T) {
	var denom float64
	for i := 0; i < StatsWeightSlots; i++ {
		denom += math.Pow(0.95, float64(i))
	}

	got := WeightedAccuracy([]float64{0.9, 0.8})

	assert.InDelta(t, (0.9+0.8*0.95)/denom, got, 1e-9)

	full := make([]float64, StatsWeightSlots+20)
	for i := range full {
		full[i] = 1
	}
	assert.InDelta(t, 1.0, WeightedAccuracy(full), 1e-9)
}

func TestWeightedRank_MissingSlotsPenalized(t *testing.T) {
	var num, denom float64
	for i := 0; i < StatsWeightSlots; i++ {
		w := math.Pow(1.05, float64(i))
		if i == 0 {
			num += 1 * w
		} else {
			num += float64(i*10) * w
		}
		denom += w
	}

	assert.InDelta(t, num/denom, WeightedRank([]int{1}), 1e-6)
}

func TestScoreForRank(t *testing.T) {
	assert.Equal(t, 1000, ScoreForRank(1))
	assert.Equal(t, 950, ScoreForRank(2))
	assert.Equal(t, 857, ScoreForRank(4))
	assert.Zero(t, ScoreForRank(0))
}
