package wavetable

import "math"

// Kind selects the interpolation kernel.
type Kind int

const (
	// Linear and Hermite interpolate samples within the nearest frame.
	Linear Kind = iota
	Hermite
	// The spline kernels blend the four nearest frames at the fractional
	// frame weight, each frame read at the requested sample position.
	CatmullRom
	Cardinal
	Bezier
	BSpline
	Smoothstep
)

// blend applies the closed-form blending polynomial for a 4-point kernel at
// weight t in [0, 1).
func blend(kind Kind, tension, p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	switch kind {
	case CatmullRom:
		return 0.5 * (2*p1 + (-p0+p2)*t + (2*p0-5*p1+4*p2-p3)*t2 + (-p0+3*p1-3*p2+p3)*t3)
	case Cardinal:
		// Hermite basis with tangents m1 = c(p2-p0), m2 = c(p3-p1).
		// Tension c = 0.5 reduces to Catmull-Rom.
		m1 := tension * (p2 - p0)
		m2 := tension * (p3 - p1)
		h00 := 2*t3 - 3*t2 + 1
		h10 := t3 - 2*t2 + t
		h01 := -2*t3 + 3*t2
		h11 := t3 - t2
		return h00*p1 + h10*m1 + h01*p2 + h11*m2
	case Bezier:
		u := 1 - t
		return u*u*u*p0 + 3*u*u*t*p1 + 3*u*t2*p2 + t3*p3
	case BSpline:
		return ((1-t)*(1-t)*(1-t)*p0 + (3*t3-6*t2+4)*p1 + (-3*t3+3*t2+3*t+1)*p2 + t3*p3) / 6
	case Smoothstep:
		s := t2 * (3 - 2*t)
		return p1*(1-s) + p2*s
	default:
		return p1 + (p2-p1)*t
	}
}

// interpolate is the stateless base lookup: framePos selects (fractionally)
// among frames, samplePos is the fractional position within one cycle.
func interpolate(t *Table, kind Kind, tension, framePos, samplePos float64) float64 {
	if t == nil || t.FrameCount() == 0 {
		return 0
	}
	switch kind {
	case Linear:
		return sampleLinear(t.frame(int(framePos)), samplePos)
	case Hermite:
		return sampleHermite(t.frame(int(framePos)), samplePos)
	}

	fi := math.Floor(framePos)
	frac := framePos - fi
	i1 := int(fi)
	p0 := sampleLinear(t.frame(i1-1), samplePos)
	p1 := sampleLinear(t.frame(i1), samplePos)
	p2 := sampleLinear(t.frame(i1+1), samplePos)
	p3 := sampleLinear(t.frame(i1+2), samplePos)
	return blend(kind, tension, p0, p1, p2, p3, frac)
}
