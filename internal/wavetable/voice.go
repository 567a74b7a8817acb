package wavetable

import (
	"math"

	"github.com/cbegin/fmvoice-go/internal/envelope"
)

const quickReleaseSec = 0.010

// voiceConfig is the per-note snapshot of the engine's global parameters,
// copied by value at noteOn.
type voiceConfig struct {
	table    *Table
	framePos float64
	env      envelope.Config
	tuning   float64
}

// Voice renders one sounding note by scanning a wavetable with its own
// interpolator and amplitude envelope. The interpolator is per-voice because
// its anti-aliasing filter carries state.
type Voice struct {
	note     int
	velocity int

	table    *Table
	framePos float64
	phase    float64 // position in table samples
	step     float64 // per-sample advance in table samples
	baseFreq float64
	pitchMod float64
	amp      float64

	interp *Interpolator
	env    *envelope.Envelope

	active    bool
	startTime uint64
}

func newVoice(sampleRate float64, interpCfg Config) Voice {
	return Voice{
		interp: NewInterpolator(sampleRate, interpCfg),
		env:    envelope.New(sampleRate),
	}
}

// NoteOn snapshots the table and frame position and triggers the envelope.
// Base frequency follows equal temperament around the tuning reference.
func (v *Voice) NoteOn(note, velocity int, sampleRate float64, cfg voiceConfig) {
	v.note = note
	v.velocity = velocity
	v.table = cfg.table
	v.framePos = cfg.framePos
	v.baseFreq = cfg.tuning * math.Pow(2, float64(note-69)/12)
	v.amp = float64(velocity) / 127
	v.phase = 0
	v.pitchMod = 0
	v.updateStep(sampleRate)
	v.interp.ResetFilter()

	v.env.SetConfig(cfg.env)
	v.env.Trigger(v.amp, note)
	v.active = true
}

func (v *Voice) NoteOff() {
	v.env.Release()
}

// QuickRelease fades the voice out over quickReleaseSec regardless of the
// configured release time.
func (v *Voice) QuickRelease() {
	v.env.QuickRelease(quickReleaseSec)
}

// ProcessSample reads one interpolated sample and advances the table phase.
func (v *Voice) ProcessSample() float64 {
	if !v.active || v.env.IsFinished() || v.table == nil {
		return 0
	}
	freq := v.baseFreq * (1 + v.pitchMod)
	out := v.interp.SampleAA(v.table, v.framePos, v.phase, freq, v.step)

	v.phase += v.step
	size := float64(v.table.FrameSize())
	for v.phase >= size {
		v.phase -= size
	}
	return out * v.amp * v.env.Next()
}

func (v *Voice) finished() bool {
	return v.env.IsFinished()
}

func (v *Voice) setPitchModulation(m float64, sampleRate float64) {
	v.pitchMod = m
	v.updateStep(sampleRate)
}

// updateStep recomputes the per-sample table advance from the effective
// frequency: step = freq * frameSize / sampleRate.
func (v *Voice) updateStep(sampleRate float64) {
	if v.table == nil {
		v.step = 0
		return
	}
	freq := v.baseFreq * (1 + v.pitchMod)
	v.step = freq * float64(v.table.FrameSize()) / sampleRate
}

func (v *Voice) reset() {
	v.env.Reset()
	v.active = false
}
