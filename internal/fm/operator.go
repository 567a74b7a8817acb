// Package fm implements the polyphonic FM synthesis engine: phase-accumulating
// sine operators, connection-graph algorithms, voices and the voice pool.
package fm

import "math"

const twoPi = math.Pi * 2

const (
	sineTableSize = 4096
	minFrequency  = 1e-6 // Hz; frequencies at or below zero clamp here
)

// sineTable holds one precomputed sine cycle. Lookups interpolate linearly
// between adjacent entries, keeping the error under 1e-3.
var sineTable [sineTableSize]float64

func init() {
	for i := range sineTable {
		sineTable[i] = math.Sin(twoPi * float64(i) / sineTableSize)
	}
}

// fastSin returns sin(phase) from the lookup table. Phase may be any value;
// it is wrapped into [0, 2Pi).
func fastSin(phase float64) float64 {
	phase = math.Mod(phase, twoPi)
	if phase < 0 {
		phase += twoPi
	}
	pos := phase * (sineTableSize / twoPi)
	i0 := int(pos)
	frac := pos - float64(i0)
	i1 := i0 + 1
	if i1 >= sineTableSize {
		i1 = 0
	}
	return sineTable[i0]*(1-frac) + sineTable[i1]*frac
}

// Operator is a single phase-accumulating sine generator with a phase
// modulation input and internal self-feedback. It is owned exclusively by one
// voice and mutated only on the rendering path.
type Operator struct {
	sampleRate      float64
	baseFrequency   float64 // assigned frequency in Hz (base * ratio)
	frequency       float64 // effective frequency including pitch modulation
	phase           float64 // [0, 2Pi)
	phaseIncrement  float64
	amplitude       float64 // [0, 1]
	modulationIndex float64 // >= 0
	feedbackAmount  float64 // [0, 1]
	previousOutput  float64
	pitchModulation float64 // fractional detune, -1 < m
}

// SetFrequency assigns the operator frequency in Hz and derives the phase
// increment. Non-positive values clamp to a small epsilon.
func (op *Operator) SetFrequency(hz float64) {
	if hz <= 0 {
		hz = minFrequency
	}
	op.baseFrequency = hz
	op.updateIncrement()
}

// SetPitchModulation applies a fractional detune (0 = none) on top of the
// assigned frequency. Takes effect from the next sample.
func (op *Operator) SetPitchModulation(m float64) {
	if m <= -1 {
		m = -1 + minFrequency
	}
	op.pitchModulation = m
	op.updateIncrement()
}

func (op *Operator) updateIncrement() {
	op.frequency = op.baseFrequency * (1 + op.pitchModulation)
	op.phaseIncrement = twoPi * op.frequency / op.sampleRate
}

// Reset zeros phase and feedback history for a fresh note.
func (op *Operator) Reset() {
	op.phase = 0
	op.previousOutput = 0
}

// ProcessSample produces one sample given the summed modulation input, then
// advances the phase. The output is stored for the next call's feedback term.
func (op *Operator) ProcessSample(modInput float64) float64 {
	out := op.amplitude * fastSin(op.phase+modInput*op.modulationIndex+op.previousOutput*op.feedbackAmount)
	op.previousOutput = out
	op.phase += op.phaseIncrement
	if op.phase >= twoPi {
		op.phase -= twoPi
		if op.phase >= twoPi {
			op.phase = math.Mod(op.phase, twoPi)
		}
	}
	return out
}
