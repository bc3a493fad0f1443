package scoring

import (
	"strings"
)

// Gameplay modifier codes as submitted with a score.
const (
	ModDisappearingArrows = "DA"
	ModFasterSong         = "FS"
	ModSuperFastSong      = "SF"
	ModSlowerSong         = "SS"
	ModGhostNotes         = "GN"
	ModNoArrows           = "NA"
	ModNoBombs            = "NB"
	ModNoFail             = "NF"
	ModNoObstacles        = "NO"
	ModProMode            = "PM"
	ModSmallCubes         = "SC"
	ModStrictAngles       = "SA"
	ModOldDots            = "OP"
)

// speedModifiers are priced into ModifiersRating on ranked leaderboards.
var speedModifiers = map[string]bool{
	ModFasterSong:    true,
	ModSuperFastSong: true,
	ModSlowerSong:    true,
}

// ParseModifiers splits a comma separated modifier string into codes.
// Empty segments are dropped and codes are upper-cased.
func ParseModifiers(modifiers string) []string {
	if modifiers == "" {
		return nil
	}
	parts := strings.Split(modifiers, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// HasModifier reports whether the modifier string contains code.
func HasModifier(modifiers, code string) bool {
	for _, m := range ParseModifiers(modifiers) {
		if m == code {
			return true
		}
	}
	return false
}

// SpeedModifier returns the speed modifier present in the string, or "".
func SpeedModifier(modifiers string) string {
	for _, m := range ParseModifiers(modifiers) {
		if speedModifiers[m] {
			return m
		}
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// MODIFIER MULTIPLIER TABLE
// ══════════════════════════════════════════════════════════════════════════════

// ModifiersMap is the multiplier table attached to a leaderboard.
// Positive entries increase the score, negative entries reduce it.
// It is read-only during a recompute pass.
type ModifiersMap struct {
	DA float64 `json:"da"`
	FS float64 `json:"fs"`
	SF float64 `json:"sf"`
	SS float64 `json:"ss"`
	GN float64 `json:"gn"`
	NA float64 `json:"na"`
	NB float64 `json:"nb"`
	NF float64 `json:"nf"`
	NO float64 `json:"no"`
	PM float64 `json:"pm"`
	SC float64 `json:"sc"`
	SA float64 `json:"sa"`
	OP float64 `json:"op"`
}

// DefaultModifiersMap returns the table used when a leaderboard carries none.
func DefaultModifiersMap() *ModifiersMap {
	return &ModifiersMap{
		DA: 0.005,
		FS: 0.11,
		SF: 0.22,
		SS: -0.3,
		GN: 0.04,
		NA: -0.3,
		NB: -0.1,
		NF: -0.5,
		NO: -0.2,
		PM: 0.0,
		SC: 0.0,
		SA: 0.0,
		OP: -0.5,
	}
}

// Value returns the multiplier delta of one modifier code.
func (m *ModifiersMap) Value(code string) float64 {
	if m == nil {
		return 0
	}
	switch code {
	case ModDisappearingArrows:
		return m.DA
	case ModFasterSong:
		return m.FS
	case ModSuperFastSong:
		return m.SF
	case ModSlowerSong:
		return m.SS
	case ModGhostNotes:
		return m.GN
	case ModNoArrows:
		return m.NA
	case ModNoBombs:
		return m.NB
	case ModNoFail:
		return m.NF
	case ModNoObstacles:
		return m.NO
	case ModProMode:
		return m.PM
	case ModSmallCubes:
		return m.SC
	case ModStrictAngles:
		return m.SA
	case ModOldDots:
		return m.OP
	default:
		return 0
	}
}

// PositiveMultiplier returns 1 plus the sum of the positive deltas of the
// applied modifiers.
func (m *ModifiersMap) PositiveMultiplier(modifiers string) float64 {
	result := 1.0
	for _, code := range ParseModifiers(modifiers) {
		if v := m.Value(code); v > 0 {
			result += v
		}
	}
	return result
}

// NegativeMultiplier returns 1 plus the sum of the negative deltas of the
// applied modifiers. With rankedOnly, speed modifiers are skipped because
// ranked PP already prices them through ModifiersRating.
func (m *ModifiersMap) NegativeMultiplier(modifiers string, rankedOnly bool) float64 {
	result := 1.0
	for _, code := range ParseModifiers(modifiers) {
		if rankedOnly && speedModifiers[code] {
			continue
		}
		if v := m.Value(code); v < 0 {
			result += v
		}
	}
	return result
}

// ModifiersRating holds per-speed-modifier star ratings of a leaderboard.
// Zero values mean the leaderboard has no rating for that speed.
type ModifiersRating struct {
	SSPassRating float64 `json:"ss_pass_rating"`
	SSAccRating  float64 `json:"ss_acc_rating"`
	SSTechRating float64 `json:"ss_tech_rating"`
	FSPassRating float64 `json:"fs_pass_rating"`
	FSAccRating  float64 `json:"fs_acc_rating"`
	FSTechRating float64 `json:"fs_tech_rating"`
	SFPassRating float64 `json:"sf_pass_rating"`
	SFAccRating  float64 `json:"sf_acc_rating"`
	SFTechRating float64 `json:"sf_tech_rating"`
}

// ForSpeed returns the (acc, pass, tech) ratings for a speed modifier.
// ok is false when the table has no rating for it.
func (r *ModifiersRating) ForSpeed(code string) (acc, pass, tech float64, ok bool) {
	if r == nil {
		return 0, 0, 0, false
	}
	switch code {
	case ModSlowerSong:
		acc, pass, tech = r.SSAccRating, r.SSPassRating, r.SSTechRating
	case ModFasterSong:
		acc, pass, tech = r.FSAccRating, r.FSPassRating, r.FSTechRating
	case ModSuperFastSong:
		acc, pass, tech = r.SFAccRating, r.SFPassRating, r.SFTechRating
	default:
		return 0, 0, 0, false
	}
	return acc, pass, tech, acc != 0 || pass != 0 || tech != 0
}

// Priority derives the non-PP tie-break category from modifiers.
// Lower sorts first.
func Priority(modifiers string) int {
	switch {
	case HasModifier(modifiers, ModNoFail):
		return 3
	case HasModifier(modifiers, ModNoBombs), HasModifier(modifiers, ModNoArrows):
		return 2
	case HasModifier(modifiers, ModNoObstacles):
		return 1
	default:
		return 0
	}
}
