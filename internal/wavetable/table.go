// Package wavetable implements multi-frame wavetable data, the interpolation
// kernel family used to scan it, the anti-aliased lookup path, and the
// wavetable synthesis engine built on them.
package wavetable

import (
	"fmt"
	"math"
)

// Table is an ordered set of single-cycle frames. Every frame has the same
// length. Tables are read-only during synthesis; they are owned by the patch
// layer above the engine.
type Table struct {
	frames    [][]float64
	frameSize int
}

// NewTable builds a table from frames, copying the data. All frames must
// share one size and there must be at least one frame.
func NewTable(frames [][]float64) (*Table, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("wavetable: no frames")
	}
	size := len(frames[0])
	if size == 0 {
		return nil, fmt.Errorf("wavetable: empty frame")
	}
	cp := make([][]float64, len(frames))
	for i, f := range frames {
		if len(f) != size {
			return nil, fmt.Errorf("wavetable: frame %d has size %d, expected %d", i, len(f), size)
		}
		cp[i] = make([]float64, size)
		copy(cp[i], f)
	}
	return &Table{frames: cp, frameSize: size}, nil
}

// FrameCount returns the number of frames.
func (t *Table) FrameCount() int { return len(t.frames) }

// FrameSize returns the per-frame sample count.
func (t *Table) FrameSize() int { return t.frameSize }

// frame returns the frame at index i, clamped to the valid range.
func (t *Table) frame(i int) []float64 {
	if i < 0 {
		i = 0
	}
	if i >= len(t.frames) {
		i = len(t.frames) - 1
	}
	return t.frames[i]
}

// at reads one raw sample with the sample index wrapped into the frame.
func at(frame []float64, i int) float64 {
	n := len(frame)
	i %= n
	if i < 0 {
		i += n
	}
	return frame[i]
}

// sampleLinear reads a frame at a fractional sample position with linear
// interpolation between adjacent entries. pos wraps around the frame.
func sampleLinear(frame []float64, pos float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	n := float64(len(frame))
	pos = math.Mod(pos, n)
	if pos < 0 {
		pos += n
	}
	i0 := int(pos)
	frac := pos - float64(i0)
	return at(frame, i0)*(1-frac) + at(frame, i0+1)*frac
}

// sampleHermite reads a frame at a fractional sample position with 4-point
// Hermite interpolation.
func sampleHermite(frame []float64, pos float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	n := float64(len(frame))
	pos = math.Mod(pos, n)
	if pos < 0 {
		pos += n
	}
	i1 := int(pos)
	t := pos - float64(i1)
	p0 := at(frame, i1-1)
	p1 := at(frame, i1)
	p2 := at(frame, i1+1)
	p3 := at(frame, i1+2)
	c1 := 0.5 * (p2 - p0)
	c2 := p0 - 2.5*p1 + 2*p2 - 0.5*p3
	c3 := 0.5*(p3-p0) + 1.5*(p1-p2)
	return ((c3*t+c2)*t+c1)*t + p1
}

// SineTable returns a one-frame sine table, the default installed on a fresh
// engine.
func SineTable(frameSize int) *Table {
	if frameSize < 4 {
		frameSize = 64
	}
	frame := make([]float64, frameSize)
	for i := range frame {
		frame[i] = math.Sin(2 * math.Pi * float64(i) / float64(frameSize))
	}
	return &Table{frames: [][]float64{frame}, frameSize: frameSize}
}

// MorphTable returns a multi-frame table that morphs from a sine to a
// band-limited sawtooth across frames. Handy for demos and tests that need
// genuine frame interpolation.
func MorphTable(frameSize, frameCount int) *Table {
	if frameSize < 4 {
		frameSize = 64
	}
	if frameCount < 1 {
		frameCount = 8
	}
	frames := make([][]float64, frameCount)
	for f := range frames {
		frame := make([]float64, frameSize)
		// Add one harmonic per frame; every frame stays band-limited.
		harmonics := f + 1
		for i := range frame {
			phase := 2 * math.Pi * float64(i) / float64(frameSize)
			var s float64
			for h := 1; h <= harmonics; h++ {
				s += math.Sin(phase*float64(h)) / float64(h)
			}
			frame[i] = s * (2 / math.Pi)
		}
		frames[f] = frame
	}
	return &Table{frames: frames, frameSize: frameSize}
}
