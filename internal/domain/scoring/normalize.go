package scoring

import (
	"fmt"

	"github.com/beatrank/ppcron/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE NORMALIZATION
// ══════════════════════════════════════════════════════════════════════════════

// ScoreDerived is the set of columns the normalizer owns on a score.
// Two values compare equal when nothing needs to be written.
type ScoreDerived struct {
	Rank          int
	ModifiedScore int
	Accuracy      float64
	Pp            float64
	FcPp          float64
	BonusPp       float64
	PassPP        float64
	AccPP         float64
	TechPP        float64
	Qualification bool
	Priority      int
}

// Derived returns the current derived columns of the score.
func (s *Score) Derived() ScoreDerived {
	return ScoreDerived{
		Rank:          s.Rank,
		ModifiedScore: s.ModifiedScore,
		Accuracy:      s.Accuracy,
		Pp:            s.Pp,
		FcPp:          s.FcPp,
		BonusPp:       s.BonusPp,
		PassPP:        s.PassPP,
		AccPP:         s.AccPP,
		TechPP:        s.TechPP,
		Qualification: s.Qualification,
		Priority:      s.Priority,
	}
}

// NormalizeOutcome reports the notable events of normalizing one score.
type NormalizeOutcome struct {
	// Corrected is set when the stored max score produced accuracy above 1
	// and the note-count max was used instead.
	Corrected bool
	// Overflow is set when accuracy is still above 1 after the correction.
	// The value is kept as computed.
	Overflow bool
	// NaN is set when the oracle returned a non-finite component.
	NaN bool
}

// Normalizer recomputes score-derived fields under a leaderboard's rules.
type Normalizer struct {
	oracle RatingOracle
}

// NewNormalizer creates a normalizer backed by the given oracle.
func NewNormalizer(oracle RatingOracle) *Normalizer {
	return &Normalizer{oracle: oracle}
}

// Normalize recomputes ModifiedScore, Accuracy, Priority, Qualification and
// the PP fields of s. Rank is left to the caller. A leaderboard without any
// usable max score yields an inconsistent-data error and s is not modified.
func (n *Normalizer) Normalize(lb *Leaderboard, s *Score) (NormalizeOutcome, error) {
	var out NormalizeOutcome

	hasPp := lb.Status.HasPp()
	modifiers := lb.Modifiers()

	maxScore := lb.EffectiveMaxScore()
	if maxScore <= 0 {
		return out, shared.WrapError("scoring", "NormalizeScore", shared.ErrInconsistentData,
			fmt.Sprintf("leaderboard %s has no max score", lb.ID), nil)
	}

	modified, accuracy := scoreAndAccuracy(s.BaseScore, maxScore, s.Modifiers, modifiers, hasPp)
	if accuracy > 1 {
		corrected := MaxScoreForNotes(lb.Notes)
		if corrected > 0 {
			modified, accuracy = scoreAndAccuracy(s.BaseScore, corrected, s.Modifiers, modifiers, hasPp)
			out.Corrected = true
		}
		out.Overflow = accuracy > 1
	}

	s.ModifiedScore = modified
	s.Accuracy = accuracy
	s.Priority = Priority(s.Modifiers)
	s.Qualification = lb.Status.IsQualification()

	if !hasPp {
		s.Pp, s.FcPp, s.BonusPp, s.PassPP, s.AccPP, s.TechPP = 0, 0, 0, 0, 0, 0
		return out, nil
	}

	pp := n.oracle.ComputePp(PpInputFor(lb, ContextGeneral, s.Accuracy, s.Modifiers))
	fc := n.oracle.ComputePp(PpInputFor(lb, ContextGeneral, s.FcAccuracy, s.Modifiers))
	out.NaN = pp.HasNaN() || fc.HasNaN()

	pp = pp.Sanitized()
	s.Pp = pp.Pp
	s.BonusPp = pp.BonusPp
	s.PassPP = pp.PassPP
	s.AccPP = pp.AccPP
	s.TechPP = pp.TechPP
	s.FcPp = fc.Sanitized().Pp

	return out, nil
}

func scoreAndAccuracy(base, maxScore int, mods string, table *ModifiersMap, hasPp bool) (int, float64) {
	var modified float64
	if hasPp {
		modified = float64(base) * table.NegativeMultiplier(mods, true)
	} else {
		bonus := float64(maxScore-base) * (table.PositiveMultiplier(mods) - 1)
		modified = (float64(base) + bonus) * table.NegativeMultiplier(mods, false)
	}
	return int(modified), float64(base) / float64(maxScore)
}
