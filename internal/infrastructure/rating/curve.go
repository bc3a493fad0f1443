// Package rating provides the default rating oracle: a piecewise-linear
// accuracy curve combined with pass and tech components.
package rating

import (
	"math"

	"github.com/beatrank/ppcron/internal/domain/scoring"
)

// curvePoint maps an accuracy to a curve multiplier.
type curvePoint struct {
	acc   float64
	value float64
}

// accCurve is ordered by accuracy descending.
var accCurve = []curvePoint{
	{1.0, 7.424},
	{0.999, 6.241},
	{0.9975, 5.158},
	{0.995, 4.010},
	{0.9925, 3.241},
	{0.99, 2.700},
	{0.9875, 2.303},
	{0.985, 2.007},
	{0.9825, 1.786},
	{0.98, 1.618},
	{0.9775, 1.490},
	{0.975, 1.392},
	{0.9725, 1.315},
	{0.97, 1.256},
	{0.965, 1.167},
	{0.96, 1.094},
	{0.955, 1.039},
	{0.95, 1.000},
	{0.94, 0.931},
	{0.93, 0.867},
	{0.92, 0.813},
	{0.91, 0.768},
	{0.9, 0.729},
	{0.875, 0.650},
	{0.85, 0.581},
	{0.825, 0.522},
	{0.8, 0.473},
	{0.75, 0.404},
	{0.7, 0.345},
	{0.65, 0.296},
	{0.6, 0.256},
	{0.0, 0.0},
}

const (
	accMultiplier  = 34.0
	inflateBase    = 650.0
	inflateExp     = 1.3
	passScale      = 15.2
	passExpRoot    = 2.62
	passOffset     = 30.0
	techExpFactor  = 1.9
	techMultiplier = 1.08
)

// CurveOracle implements scoring.RatingOracle.
type CurveOracle struct{}

// NewCurveOracle creates the default oracle.
func NewCurveOracle() *CurveOracle {
	return &CurveOracle{}
}

// ComputePp implements scoring.RatingOracle.
//
// Speed modifiers switch to the leaderboard's per-speed ratings when it has
// them. Remaining modifiers scale every rating by their summed multiplier;
// the PP gained through positive modifiers is reported as BonusPp.
// The NoMods context ignores modifiers. Special modes rate the inverted accuracy.
func (o *CurveOracle) ComputePp(in scoring.PpInput) scoring.PpBreakdown {
	accuracy := in.Accuracy
	if in.IsSpecialMode {
		accuracy = 1 - accuracy
	}
	if accuracy <= 0 {
		return scoring.PpBreakdown{}
	}

	accRating, passRating, techRating := in.AccRating, in.PassRating, in.TechRating
	modifiers := in.Modifiers
	if in.Context.IgnoresModifiers() {
		modifiers = ""
	}

	if speed := scoring.SpeedModifier(modifiers); speed != "" {
		if a, p, t, ok := in.ModifiersRating.ForSpeed(speed); ok {
			accRating, passRating, techRating = a, p, t
		}
	}

	base := compute(accuracy, accRating, passRating, techRating)

	multiplier := 1.0
	for _, code := range scoring.ParseModifiers(modifiers) {
		if scoring.SpeedModifier(code) != "" {
			continue
		}
		multiplier += in.ModifierValues.Value(code)
	}
	if multiplier == 1 {
		return base
	}

	result := compute(accuracy, accRating*multiplier, passRating*multiplier, techRating*multiplier)
	if bonus := result.Pp - base.Pp; bonus > 0 {
		result.BonusPp = bonus
	}
	return result
}

func compute(accuracy, accRating, passRating, techRating float64) scoring.PpBreakdown {
	passPP := passScale*math.Exp(math.Pow(passRating, 1/passExpRoot)) - passOffset
	if math.IsNaN(passPP) || math.IsInf(passPP, 0) || passPP < 0 {
		passPP = 0
	}
	accPP := curve(accuracy) * accRating * accMultiplier
	techPP := math.Exp(techExpFactor*accuracy) * techMultiplier * techRating

	return scoring.PpBreakdown{
		Pp:     inflate(passPP + accPP + techPP),
		PassPP: passPP,
		AccPP:  accPP,
		TechPP: techPP,
	}
}

// curve interpolates the accuracy curve.
func curve(acc float64) float64 {
	if acc >= accCurve[0].acc {
		return accCurve[0].value
	}
	for i := 1; i < len(accCurve); i++ {
		hi, lo := accCurve[i-1], accCurve[i]
		if acc >= lo.acc {
			t := (acc - lo.acc) / (hi.acc - lo.acc)
			return lo.value + t*(hi.value-lo.value)
		}
	}
	return 0
}

func inflate(pp float64) float64 {
	if pp <= 0 {
		return 0
	}
	return inflateBase * math.Pow(pp, inflateExp) / math.Pow(inflateBase, inflateExp)
}
