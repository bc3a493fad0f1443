package scoring

import (
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ORDERING
// ══════════════════════════════════════════════════════════════════════════════

// RankKey is the projection of a score used by the leaderboard comparator.
type RankKey struct {
	ID            int64
	Pp            float64
	Accuracy      float64
	ModifiedScore int
	Priority      int
	Timepost      int64
}

// Round rounds v to the given number of decimals, half away from zero.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Less reports whether a ranks above b.
//
// PP leaderboards order by rounded PP, then rounded accuracy, then submission
// time. Other leaderboards order by priority, modified score, rounded accuracy
// and submission time. The id keeps the order total.
func Less(a, b RankKey, hasPp bool) bool {
	if hasPp {
		if pa, pb := Round(a.Pp, 2), Round(b.Pp, 2); pa != pb {
			return pa > pb
		}
	} else {
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.ModifiedScore != b.ModifiedScore {
			return a.ModifiedScore > b.ModifiedScore
		}
	}
	if aa, ab := Round(a.Accuracy, 4), Round(b.Accuracy, 4); aa != ab {
		return aa > ab
	}
	if a.Timepost != b.Timepost {
		return a.Timepost < b.Timepost
	}
	return a.ID < b.ID
}

// SortForRanking orders items in place with the leaderboard comparator.
func SortForRanking[T any](items []T, hasPp bool, key func(T) RankKey) {
	sort.Slice(items, func(i, j int) bool {
		return Less(key(items[i]), key(items[j]), hasPp)
	})
}

// AssignRanks sorts items and calls set with each item's 1-based dense rank.
func AssignRanks[T any](items []T, hasPp bool, key func(T) RankKey, set func(T, int)) {
	SortForRanking(items, hasPp, key)
	for i, item := range items {
		set(item, i+1)
	}
}

// ScoreRankKey projects a score.
func ScoreRankKey(s *Score) RankKey {
	return RankKey{
		ID:            s.ID,
		Pp:            s.Pp,
		Accuracy:      s.Accuracy,
		ModifiedScore: s.ModifiedScore,
		Priority:      s.Priority,
		Timepost:      s.Timepost,
	}
}

// CandidateRankKey projects a ranker candidate.
func CandidateRankKey(c *RankCandidate) RankKey {
	return RankKey{
		ID:            c.ID,
		Pp:            c.Pp,
		Accuracy:      c.Accuracy,
		ModifiedScore: c.ModifiedScore,
		Priority:      c.Priority,
		Timepost:      c.Timepost,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER RANKING
// ══════════════════════════════════════════════════════════════════════════════

// RankPlayers orders players by PP descending and assigns global and country
// ranks. Players with PP <= 0 are skipped and keep their fields untouched.
// Ties on PP are broken by player id so reruns are stable.
// The returned slice holds only ranked players, in rank order.
func RankPlayers(players []*RankablePlayer) []*RankablePlayer {
	ranked := make([]*RankablePlayer, 0, len(players))
	for _, p := range players {
		if p.Pp > 0 {
			ranked = append(ranked, p)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Pp != ranked[j].Pp {
			return ranked[i].Pp > ranked[j].Pp
		}
		return ranked[i].PlayerID < ranked[j].PlayerID
	})

	countries := make(map[string]int)
	for i, p := range ranked {
		p.Rank = i + 1
		countries[p.Country]++
		p.CountryRank = countries[p.Country]
	}
	return ranked
}
