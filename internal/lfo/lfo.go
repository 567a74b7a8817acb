// Package lfo provides the low-frequency modulation oscillator shared by all
// voices of an engine, used for mod-wheel vibrato.
package lfo

import "math"

// Waveform constants.
const (
	WaveSine     = 0
	WaveTriangle = 1
	WaveSaw      = 2
	WaveSquare   = 3
	WaveRandom   = 4
)

// LFO produces a per-call modulation value in [-depth, +depth]. One LFO is
// shared across all voices in an engine; depth units depend on the
// destination (semitones for vibrato).
type LFO struct {
	depth    float64
	rateHz   float64
	waveform int
	phase    float64 // [0, 1)
	randVal  float64 // held sample for the random waveform
}

// Set configures rate, depth and waveform in one call.
func (l *LFO) Set(depth, rateHz float64, waveform int) {
	l.depth = depth
	l.rateHz = rateHz
	if waveform < WaveSine || waveform > WaveRandom {
		waveform = WaveSine
	}
	l.waveform = waveform
}

// SetDepth changes only the modulation depth, leaving phase and rate alone.
// Used to track the mod wheel without restarting the vibrato cycle.
func (l *LFO) SetDepth(depth float64) {
	l.depth = depth
}

// Sample advances the LFO by one step at the given update rate and returns
// the scaled waveform value. Returns 0 when depth or rate is zero.
func (l *LFO) Sample(updateRate float64) float64 {
	if l.depth == 0 || l.rateHz == 0 || updateRate <= 0 {
		return 0
	}

	var v float64
	switch l.waveform {
	case WaveTriangle:
		if l.phase < 0.5 {
			v = 4*l.phase - 1
		} else {
			v = 3 - 4*l.phase
		}
	case WaveSaw:
		v = 1 - 2*l.phase
	case WaveSquare:
		if l.phase < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case WaveRandom:
		v = l.randVal
	default: // WaveSine
		v = math.Sin(2 * math.Pi * l.phase)
	}

	oldPhase := l.phase
	l.phase += l.rateHz / updateRate
	for l.phase >= 1 {
		l.phase -= 1
	}

	// Sample-and-hold: pick a new random value at each cycle boundary.
	if l.waveform == WaveRandom && l.phase < oldPhase {
		r := math.Sin(l.phase*12345.6789 + l.randVal*67890.1234)
		r -= math.Floor(r)
		l.randVal = r*2 - 1
	}

	return v * l.depth
}

// Active reports whether the LFO produces non-zero output.
func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

// Reset rewinds the LFO phase, restarting the cycle.
func (l *LFO) Reset() {
	l.phase = 0
	l.randVal = 0
}
