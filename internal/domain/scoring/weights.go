package scoring

import (
	"math"
	"sort"
)

const (
	// PlayerWeightDecay is the per-position decay of a player's PP aggregate.
	PlayerWeightDecay = 0.965
	// PlayerWeightSlots bounds the number of weighted positions.
	PlayerWeightSlots = 10000

	// StatsWeightSlots is the window of the weighted top accuracy and rank.
	StatsWeightSlots = 100
	accWeightDecay   = 0.95
	rankWeightGrowth = 1.05
)

// Lookup tables built once at startup and never mutated.
var (
	playerWeights = buildPowers(PlayerWeightDecay, PlayerWeightSlots)
	accWeights    = buildPowers(accWeightDecay, StatsWeightSlots)
	rankWeights   = buildPowers(rankWeightGrowth, StatsWeightSlots)
)

func buildPowers(base float64, n int) []float64 {
	w := make([]float64, n)
	w[0] = 1
	for i := 1; i < n; i++ {
		w[i] = w[i-1] * base
	}
	return w
}

// PlayerWeight returns 0.965^i. Positions past the table contribute 0.
func PlayerWeight(i int) float64 {
	if i < 0 || i >= len(playerWeights) {
		return 0
	}
	return playerWeights[i]
}

// WeightedTotals is the decay-weighted PP aggregate of one player.
type WeightedTotals struct {
	Pp     float64
	AccPp  float64
	PassPp float64
	TechPp float64
}

// ApplyWeights orders a player's scores by PP descending, sets each score's
// Weight from its position and returns the weighted sums. The returned slice
// holds the scores whose stored weight changed.
func ApplyWeights(scores []*WeightedScore) (WeightedTotals, []*WeightedScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Pp != scores[j].Pp {
			return scores[i].Pp > scores[j].Pp
		}
		return scores[i].ID < scores[j].ID
	})

	var totals WeightedTotals
	var changed []*WeightedScore
	for i, s := range scores {
		w := PlayerWeight(i)
		if s.Weight != w {
			s.Weight = w
			changed = append(changed, s)
		}
		totals.Pp += s.Pp * w
		totals.AccPp += s.AccPP * w
		totals.PassPp += s.PassPP * w
		totals.TechPp += s.TechPP * w
	}
	return totals, changed
}

// WeightedAccuracy is the 0.95^i weighted average of the top accuracies.
// accuracies must be sorted descending. Missing slots keep their weight in
// the denominator.
func WeightedAccuracy(accuracies []float64) float64 {
	var sum, weights float64
	for i := 0; i < StatsWeightSlots; i++ {
		w := accWeights[i]
		if i < len(accuracies) {
			sum += accuracies[i] * w
		}
		weights += w
	}
	return sum / weights
}

// WeightedRank is the 1.05^i weighted average of the best ranks. ranks must be
// sorted ascending. Missing slots are penalized with i*10.
func WeightedRank(ranks []int) float64 {
	var sum, weights float64
	for i := 0; i < StatsWeightSlots; i++ {
		w := rankWeights[i]
		if i < len(ranks) {
			sum += float64(ranks[i]) * w
		} else {
			sum += float64(i*10) * w
		}
		weights += w
	}
	return sum / weights
}

// ScoreForRank is the implied score of a leaderboard position used by Top1Score:
// 1000 for first place, decaying by 5% per position.
func ScoreForRank(rank int) int {
	if rank <= 0 {
		return 0
	}
	return int(math.Round(1000 * math.Pow(accWeightDecay, float64(rank-1))))
}
