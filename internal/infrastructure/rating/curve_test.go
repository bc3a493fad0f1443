package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beatrank/ppcron/internal/domain/scoring"
)

func TestCurve(t *testing.T) {
	assert.Equal(t, 7.424, curve(1.0))
	assert.Equal(t, 7.424, curve(1.2))
	assert.InDelta(t, 1.0, curve(0.95), 1e-12)
	assert.InDelta(t, (0.729+0.768)/2, curve(0.905), 1e-9)
	assert.Zero(t, curve(0))
}

func TestCurveOracle_Monotonic(t *testing.T) {
	o := NewCurveOracle()
	in := scoring.PpInput{Context: scoring.ContextGeneral, AccRating: 8, PassRating: 7, TechRating: 5}

	prev := -1.0
	for _, acc := range []float64{0.6, 0.8, 0.9, 0.95, 0.97, 0.99} {
		in.Accuracy = acc
		got := o.ComputePp(in)
		assert.Greater(t, got.Pp, prev, "acc=%v", acc)
		assert.False(t, math.IsNaN(got.Pp))
		prev = got.Pp
	}
}

func TestCurveOracle_ZeroAccuracy(t *testing.T) {
	got := NewCurveOracle().ComputePp(scoring.PpInput{Accuracy: 0, AccRating: 8, PassRating: 7, TechRating: 5})
	assert.Equal(t, scoring.PpBreakdown{}, got)
}

func TestCurveOracle_NegativePassRatingIsNotNaN(t *testing.T) {
	got := NewCurveOracle().ComputePp(scoring.PpInput{Accuracy: 0.9, AccRating: 2, PassRating: -1, TechRating: 1})
	assert.Zero(t, got.PassPP)
	assert.False(t, math.IsNaN(got.Pp))
}

func TestCurveOracle_PositiveModifiersGiveBonus(t *testing.T) {
	o := NewCurveOracle()
	in := scoring.PpInput{
		Accuracy:       0.95,
		Context:        scoring.ContextGeneral,
		ModifierValues: scoring.DefaultModifiersMap(),
		AccRating:      8, PassRating: 7, TechRating: 5,
	}
	plain := o.ComputePp(in)

	in.Modifiers = "GN"
	boosted := o.ComputePp(in)

	assert.Greater(t, boosted.Pp, plain.Pp)
	assert.InDelta(t, boosted.Pp-plain.Pp, boosted.BonusPp, 1e-9)

	in.Context = scoring.ContextNoMods
	assert.Equal(t, plain, o.ComputePp(in))
}

func TestCurveOracle_SpeedRatings(t *testing.T) {
	o := NewCurveOracle()
	in := scoring.PpInput{
		Accuracy:        0.95,
		Context:         scoring.ContextGeneral,
		Modifiers:       "FS",
		ModifierValues:  scoring.DefaultModifiersMap(),
		ModifiersRating: &scoring.ModifiersRating{FSAccRating: 10, FSPassRating: 9, FSTechRating: 6},
		AccRating:       8, PassRating: 7, TechRating: 5,
	}

	fast := o.ComputePp(in)
	in.Modifiers = ""
	plain := o.ComputePp(in)

	assert.Greater(t, fast.Pp, plain.Pp)
	assert.Zero(t, fast.BonusPp)
}

func TestCurveOracle_SpecialModeInvertsAccuracy(t *testing.T) {
	o := NewCurveOracle()
	in := scoring.PpInput{Context: scoring.ContextGolf, IsSpecialMode: true, AccRating: 8, PassRating: 7, TechRating: 5}

	in.Accuracy = 0.1
	low := o.ComputePp(in)
	in.Accuracy = 0.5
	high := o.ComputePp(in)

	assert.Greater(t, low.Pp, high.Pp)
}
