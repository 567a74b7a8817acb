package envelope

import "math"

// Curve selects the shaping function applied to normalized stage progress.
type Curve int

const (
	CurveLinear Curve = iota
	CurveExponential
	CurveLogarithmic
	CurveSine
	CurvePower
	CurveSnap
)

// expNorm rescales 1-e^(-5p) so the curve lands exactly on 1 at p=1,
// keeping stage transitions continuous.
var expNorm = 1 / (1 - math.Exp(-5))

// applyCurve maps progress p in [0,1] to a shaped value in [0,1]. Every curve
// passes through (0,0) and (1,1) so stage boundaries stay continuous.
func applyCurve(c Curve, p, power float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	switch c {
	case CurveExponential:
		return (1 - math.Exp(-5*p)) * expNorm
	case CurveLogarithmic:
		return math.Log10(1 + 9*p)
	case CurveSine:
		return math.Sin(p * math.Pi / 2)
	case CurvePower:
		return math.Pow(p, power)
	case CurveSnap:
		return 1
	default:
		return p
	}
}
