package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedianAccuracy(t *testing.T) {
	assert.InDelta(t, 0.875, MedianAccuracy([]float64{0.9, 0.8, 0.85, 0.95}), 1e-12)
	assert.Equal(t, 0.7, MedianAccuracy([]float64{0.7}))
	assert.InDelta(t, 0.75, MedianAccuracy([]float64{0.7, 0.8}), 1e-12)
	// Odd counts index round(n/2), past the textbook middle.
	assert.Equal(t, 0.7, MedianAccuracy([]float64{0.9, 0.7, 0.8}))
	assert.Equal(t, 0.7, MedianAccuracy([]float64{0.9, 0.7, 0.8, 0.95, 0.6}))
	assert.Zero(t, MedianAccuracy(nil))
}

func TestTierCounts_Boundaries(t *testing.T) {
	var tiers TierCounts
	for _, acc := range []float64{0.96, 0.95, 0.9, 0.899, 0.85, 0.8, 0.79} {
		tiers.Add(acc)
	}

	assert.Equal(t, TierCounts{SSPlus: 1, SS: 2, SPlus: 2, S: 1, A: 1}, tiers)
}

func TestPeakRank(t *testing.T) {
	assert.Equal(t, 5, PeakRank(0, 5))
	assert.Equal(t, 3, PeakRank(3, 0))
	assert.Equal(t, 3, PeakRank(3, 7))
	assert.Equal(t, 2, PeakRank(3, 2))
	assert.Zero(t, PeakRank(0, 0))
}

func TestAllHmds_TrimsLeastFrequent(t *testing.T) {
	var scores []StatScore
	for hmd, count := range map[int]int{1: 5, 64: 4, 256: 3, 1024: 2, 4096: 1} {
		for i := 0; i < count; i++ {
			scores = append(scores, StatScore{Hmd: hmd})
		}
	}

	assert.Equal(t, "1,64,256,1024,4096", AllHmds(scores, 50))
	assert.Equal(t, "1,64,256", AllHmds(scores, 10))
	assert.Equal(t, "", AllHmds(scores, 0))
}

func TestComputeScoreStats(t *testing.T) {
	scores := []StatScore{
		{ScoreID: 1, Pp: 300, AccPP: 200, Accuracy: 0.95, ModifiedScore: 1000, Rank: 1, Timepost: 10, Platform: "steam", Hmd: 64, MaxStreak: 100, AccLeft: 110, AccRight: 112},
		{ScoreID: 2, Pp: 200, Accuracy: 0.9, ModifiedScore: 900, Rank: 4, Timepost: 20, Platform: "oculus", Hmd: 256, MaxStreak: 300, AccLeft: 100, AccRight: 104},
		{ScoreID: 3, Pp: 150, Accuracy: 0.85, ModifiedScore: 850, Rank: 2, Timepost: 30, Platform: "steam", Hmd: 64, MaxStreak: 50, AccLeft: 90, AccRight: 92},
		{ScoreID: 4, Pp: 100, Accuracy: 0.8, ModifiedScore: 800, Rank: 1, Timepost: 40, Platform: "oculus", Hmd: 256, MaxStreak: 20, AccLeft: 100, AccRight: 100},
		{ScoreID: 5, Pp: 120, Qualification: true, Accuracy: 0.99, ModifiedScore: 990, Rank: 7, Timepost: 50, Platform: "oculus", Hmd: 256},
		{ScoreID: 6, Accuracy: 0.5, ModifiedScore: 500, Rank: 1, Timepost: 5, Platform: "steam", Hmd: 1},
	}

	stats := ComputeScoreStats(StatsInput{
		PlayerID:    "p1",
		Context:     ContextGeneral,
		Scores:      scores,
		CurrentRank: 12,
		PeakRank:    20,
		Percentiles: &Percentiles{Global: 0.5, Country: 0.25},
	})

	require.NotNil(t, stats)
	assert.Equal(t, 6, stats.All.Count)
	assert.Equal(t, 4, stats.Ranked.Count)
	assert.Equal(t, 2, stats.Unranked.Count)

	assert.Equal(t, int64(3550), stats.Ranked.TotalScore)
	assert.InDelta(t, 0.875, stats.Ranked.AverageAccuracy, 1e-12)
	assert.InDelta(t, 0.875, stats.Ranked.MedianAccuracy, 1e-12)
	assert.Equal(t, 0.95, stats.Ranked.TopAccuracy)
	assert.InDelta(t, 2.0, stats.Ranked.AverageRank, 1e-12)
	assert.Equal(t, int64(40), stats.Ranked.LastScoreTime)
	assert.Equal(t, 300, stats.Ranked.MaxStreak)
	assert.Equal(t, 2, stats.Ranked.Top1Count)
	assert.Equal(t, 1000+857+950+1000, stats.Ranked.Top1Score)

	assert.Equal(t, int64(50), stats.All.LastScoreTime)
	assert.Equal(t, 3, stats.All.Top1Count)
	assert.Equal(t, 0.99, stats.Unranked.TopAccuracy)

	assert.Equal(t, 300.0, stats.TopPp)
	assert.Equal(t, 200.0, stats.TopAccPP)
	assert.Equal(t, TierCounts{SS: 2, SPlus: 1, S: 1}, stats.Tiers)

	assert.Equal(t, "oculus", stats.TopPlatform)
	assert.Equal(t, 256, stats.TopHmd)
	assert.Equal(t, "256,64,1", stats.AllHmds)

	assert.Equal(t, 12, stats.PeakRank)
	assert.Equal(t, &Percentiles{Global: 0.5, Country: 0.25}, stats.Percentiles)

	assert.Greater(t, stats.AverageWeightedRankedAccuracy, 0.0)
	assert.Less(t, stats.AverageWeightedRankedAccuracy, 0.95)
	assert.Greater(t, stats.AverageWeightedRankedRank, 1.0)
}

func TestComputeScoreStats_Empty(t *testing.T) {
	stats := ComputeScoreStats(StatsInput{PlayerID: "p1", Context: ContextNoMods, PeakRank: 4})

	assert.Zero(t, stats.All.Count)
	assert.Zero(t, stats.AverageWeightedRankedAccuracy)
	assert.Equal(t, "", stats.AllHmds)
	assert.Equal(t, 4, stats.PeakRank)
}
