package scoring

import "math"

// PpInput is everything the rating oracle needs for one accuracy value.
type PpInput struct {
	Accuracy        float64
	Context         Context
	Modifiers       string
	ModifierValues  *ModifiersMap
	ModifiersRating *ModifiersRating
	AccRating       float64
	PassRating      float64
	TechRating      float64
	IsSpecialMode   bool
}

// PpInputFor builds the oracle input of a leaderboard for one score.
func PpInputFor(lb *Leaderboard, ctx Context, accuracy float64, modifiers string) PpInput {
	return PpInput{
		Accuracy:        accuracy,
		Context:         ctx,
		Modifiers:       modifiers,
		ModifierValues:  lb.Modifiers(),
		ModifiersRating: lb.ModifiersRating,
		AccRating:       lb.AccRating,
		PassRating:      lb.PassRating,
		TechRating:      lb.TechRating,
		IsSpecialMode:   ctx.IsSpecialMode(),
	}
}

// PpBreakdown is the result of the rating oracle.
type PpBreakdown struct {
	Pp      float64
	BonusPp float64
	PassPP  float64
	AccPP   float64
	TechPP  float64
}

// Sanitized returns a copy with every NaN or infinite component forced to 0.
func (b PpBreakdown) Sanitized() PpBreakdown {
	return PpBreakdown{
		Pp:      finiteOrZero(b.Pp),
		BonusPp: finiteOrZero(b.BonusPp),
		PassPP:  finiteOrZero(b.PassPP),
		AccPP:   finiteOrZero(b.AccPP),
		TechPP:  finiteOrZero(b.TechPP),
	}
}

// HasNaN reports whether any component is not a finite number.
func (b PpBreakdown) HasNaN() bool {
	return b != b.Sanitized()
}

// RatingOracle turns accuracy and a leaderboard's rating parameters into PP.
// Implementations must be pure.
type RatingOracle interface {
	ComputePp(in PpInput) PpBreakdown
}

// RatingOracleFunc adapts a function to RatingOracle.
type RatingOracleFunc func(in PpInput) PpBreakdown

// ComputePp implements RatingOracle.
func (f RatingOracleFunc) ComputePp(in PpInput) PpBreakdown {
	return f(in)
}

// MaxScoreForNotes returns the maximum base score of a map with the given
// note count. The combo multiplier ramps 1x, 2x, 4x, 8x after 1, 5 and 13 notes.
func MaxScoreForNotes(notes int) int {
	switch {
	case notes <= 0:
		return 0
	case notes == 1:
		return 115
	case notes <= 5:
		return 115 + (notes-1)*230
	case notes <= 13:
		return 1035 + (notes-5)*460
	default:
		return 4715 + (notes-13)*920
	}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
