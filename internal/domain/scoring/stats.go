package scoring

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	// RecentScoresWindow is how many latest scores decide top platform and HMD.
	RecentScoresWindow = 50
	// AllHmdsMaxLen caps the serialized list of used headsets.
	AllHmdsMaxLen = 50
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER SCORE STATS
// ══════════════════════════════════════════════════════════════════════════════

// ScoreSetStats are the whole-set aggregates of one subset of a player's scores.
type ScoreSetStats struct {
	Count           int     `json:"count"`
	TotalScore      int64   `json:"total_score"`
	AverageAccuracy float64 `json:"average_accuracy"`
	MedianAccuracy  float64 `json:"median_accuracy"`
	TopAccuracy     float64 `json:"top_accuracy"`
	AverageRank     float64 `json:"average_rank"`
	LastScoreTime   int64   `json:"last_score_time"`
	MaxStreak       int     `json:"max_streak"`
	AverageLeftAcc  float64 `json:"average_left_acc"`
	AverageRightAcc float64 `json:"average_right_acc"`
	Top1Count       int     `json:"top1_count"`
	Top1Score       int     `json:"top1_score"`
}

// TierCounts counts ranked scores per accuracy grade.
type TierCounts struct {
	SSPlus int `json:"ssp"`
	SS     int `json:"ss"`
	SPlus  int `json:"sp"`
	S      int `json:"s"`
	A      int `json:"a"`
}

// PlayerScoreStats is wholly recomputed for one (player, context) pair.
type PlayerScoreStats struct {
	PlayerID string
	Context  Context

	All      ScoreSetStats
	Ranked   ScoreSetStats
	Unranked ScoreSetStats

	TopPp      float64
	TopBonusPp float64
	TopPassPP  float64
	TopAccPP   float64
	TopTechPP  float64

	AverageWeightedRankedAccuracy float64
	AverageWeightedRankedRank     float64

	Tiers TierCounts

	TopPlatform string
	TopHmd      int
	AllHmds     string

	PeakRank int

	// Percentiles are supplied by the caller and stored verbatim.
	Percentiles *Percentiles
}

// Percentiles computed elsewhere and passed through.
type Percentiles struct {
	Global  float64 `json:"global"`
	Country float64 `json:"country"`
}

// StatsInput is what ComputeScoreStats folds.
type StatsInput struct {
	PlayerID string
	Context  Context
	Scores   []StatScore
	// CurrentRank is the player's rank in the context, 0 if unranked.
	CurrentRank int
	// PeakRank is the previously stored peak, 0 if unset.
	PeakRank    int
	Percentiles *Percentiles
}

// ComputeScoreStats folds a player's scores into a fresh stats record.
func ComputeScoreStats(in StatsInput) *PlayerScoreStats {
	var ranked, unranked []StatScore
	for _, s := range in.Scores {
		if s.IsRanked() {
			ranked = append(ranked, s)
		} else {
			unranked = append(unranked, s)
		}
	}

	stats := &PlayerScoreStats{
		PlayerID:    in.PlayerID,
		Context:     in.Context,
		All:         aggregateSet(in.Scores),
		Ranked:      aggregateSet(ranked),
		Unranked:    aggregateSet(unranked),
		PeakRank:    PeakRank(in.PeakRank, in.CurrentRank),
		Percentiles: in.Percentiles,
	}

	stats.TopPlatform, stats.TopHmd = topDevices(in.Scores)
	stats.AllHmds = AllHmds(in.Scores, AllHmdsMaxLen)

	for _, s := range ranked {
		stats.TopPp = math.Max(stats.TopPp, s.Pp)
		stats.TopBonusPp = math.Max(stats.TopBonusPp, s.BonusPp)
		stats.TopPassPP = math.Max(stats.TopPassPP, s.PassPP)
		stats.TopAccPP = math.Max(stats.TopAccPP, s.AccPP)
		stats.TopTechPP = math.Max(stats.TopTechPP, s.TechPP)
		stats.Tiers.Add(s.Accuracy)
	}

	if len(ranked) > 0 {
		accuracies := make([]float64, len(ranked))
		ranks := make([]int, len(ranked))
		for i, s := range ranked {
			accuracies[i] = s.Accuracy
			ranks[i] = s.Rank
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(accuracies)))
		sort.Ints(ranks)
		stats.AverageWeightedRankedAccuracy = WeightedAccuracy(accuracies)
		stats.AverageWeightedRankedRank = WeightedRank(ranks)
	}

	return stats
}

// Add counts one accuracy into its tier.
func (t *TierCounts) Add(accuracy float64) {
	switch {
	case accuracy > 0.95:
		t.SSPlus++
	case accuracy >= 0.9:
		t.SS++
	case accuracy >= 0.85:
		t.SPlus++
	case accuracy >= 0.8:
		t.S++
	default:
		t.A++
	}
}

// PeakRank returns the better of the stored peak and the current rank.
// Zero means unset on either side.
func PeakRank(existing, current int) int {
	switch {
	case current <= 0:
		return existing
	case existing <= 0:
		return current
	default:
		return min(existing, current)
	}
}

// MedianAccuracy orders accuracies descending and picks the middle one.
// middle is round(n/2); odd counts take the element at middle, even counts
// average the elements at middle-1 and middle.
func MedianAccuracy(accuracies []float64) float64 {
	n := len(accuracies)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), accuracies...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	middle := int(math.Round(float64(n) / 2))
	if n%2 == 1 {
		return sorted[min(middle, n-1)]
	}
	return (sorted[middle-1] + sorted[middle]) / 2
}

func aggregateSet(scores []StatScore) ScoreSetStats {
	var st ScoreSetStats
	st.Count = len(scores)
	if st.Count == 0 {
		return st
	}

	var accSum, rankSum, leftSum, rightSum float64
	accuracies := make([]float64, 0, len(scores))
	for _, s := range scores {
		st.TotalScore += int64(s.ModifiedScore)
		accSum += s.Accuracy
		rankSum += float64(s.Rank)
		leftSum += s.AccLeft
		rightSum += s.AccRight
		accuracies = append(accuracies, s.Accuracy)

		st.TopAccuracy = math.Max(st.TopAccuracy, s.Accuracy)
		st.LastScoreTime = max(st.LastScoreTime, s.Timepost)
		st.MaxStreak = max(st.MaxStreak, s.MaxStreak)
		if s.Rank == 1 {
			st.Top1Count++
		}
		st.Top1Score += ScoreForRank(s.Rank)
	}

	n := float64(st.Count)
	st.AverageAccuracy = accSum / n
	st.AverageRank = rankSum / n
	st.AverageLeftAcc = leftSum / n
	st.AverageRightAcc = rightSum / n
	st.MedianAccuracy = MedianAccuracy(accuracies)
	return st
}

// recentScores returns up to RecentScoresWindow scores, newest first.
func recentScores(scores []StatScore) []StatScore {
	recent := append([]StatScore(nil), scores...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Timepost > recent[j].Timepost
	})
	if len(recent) > RecentScoresWindow {
		recent = recent[:RecentScoresWindow]
	}
	return recent
}

// topDevices finds the most used platform and headset among recent scores.
// Ties go to the value seen most recently.
func topDevices(scores []StatScore) (string, int) {
	recent := recentScores(scores)

	platforms := make(map[string]int)
	hmds := make(map[int]int)
	var topPlatform string
	var topHmd, platformCount, hmdCount int
	for _, s := range recent {
		platforms[s.Platform]++
		hmds[s.Hmd]++
	}
	for _, s := range recent {
		if c := platforms[s.Platform]; c > platformCount {
			topPlatform, platformCount = s.Platform, c
		}
		if c := hmds[s.Hmd]; c > hmdCount {
			topHmd, hmdCount = s.Hmd, c
		}
	}
	return topPlatform, topHmd
}

// AllHmds serializes the distinct headset ids used, most frequent first,
// dropping the least frequent ones until the list fits maxLen.
func AllHmds(scores []StatScore, maxLen int) string {
	counts := make(map[int]int)
	for _, s := range scores {
		counts[s.Hmd]++
	}

	hmds := make([]int, 0, len(counts))
	for hmd := range counts {
		hmds = append(hmds, hmd)
	}
	sort.Slice(hmds, func(i, j int) bool {
		if counts[hmds[i]] != counts[hmds[j]] {
			return counts[hmds[i]] > counts[hmds[j]]
		}
		return hmds[i] < hmds[j]
	})

	parts := make([]string, len(hmds))
	for i, hmd := range hmds {
		parts[i] = strconv.Itoa(hmd)
	}
	list := strings.Join(parts, ",")
	for len(list) > maxLen && len(parts) > 0 {
		parts = parts[:len(parts)-1]
		list = strings.Join(parts, ",")
	}
	return list
}
