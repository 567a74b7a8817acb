package fm

import (
	"math"

	"github.com/cbegin/fmvoice-go/internal/envelope"
)

// quickReleaseSec is the forced fade used when a voice must stop faster than
// its configured release.
const quickReleaseSec = 0.010

// voiceConfig is the per-note snapshot of the engine's global parameters.
// Copied by value at noteOn so later setter calls never alias into a
// sounding voice.
type voiceConfig struct {
	ratios     [NumOperators]float64
	levels     [NumOperators]float64
	modIndexes [NumOperators]float64
	feedbacks  [NumOperators]float64
	algorithm  *Algorithm
	env        envelope.Config
	tuning     float64 // A4 reference in Hz
}

// Voice renders one sounding note: four operators, an algorithm reference and
// one amplitude envelope. Voices are allocated once at engine construction
// and reused across notes.
type Voice struct {
	note      int
	velocity  int
	ops       [NumOperators]Operator
	alg       *Algorithm
	modInputs [NumOperators][]modSource
	env       *envelope.Envelope
	active    bool
	startTime uint64 // engine trigger counter, used for steal ordering
}

func newVoice(sampleRate float64) Voice {
	v := Voice{env: envelope.New(sampleRate)}
	for i := range v.ops {
		v.ops[i].sampleRate = sampleRate
	}
	return v
}

// NoteOn configures the operators from the config snapshot and triggers the
// envelope. Base frequency follows equal temperament around the tuning
// reference: tuning * 2^((note-69)/12).
func (v *Voice) NoteOn(note, velocity int, cfg voiceConfig) {
	v.note = note
	v.velocity = velocity
	v.alg = cfg.algorithm
	v.modInputs = cfg.algorithm.compile()

	base := cfg.tuning * math.Pow(2, float64(note-69)/12)
	vel := float64(velocity) / 127
	for i := range v.ops {
		op := &v.ops[i]
		op.SetFrequency(base * cfg.ratios[i])
		op.amplitude = cfg.levels[i] * vel
		op.modulationIndex = cfg.modIndexes[i]
		op.feedbackAmount = cfg.feedbacks[i]
		op.SetPitchModulation(0)
		op.Reset()
	}

	v.env.SetConfig(cfg.env)
	v.env.Trigger(vel, note)
	v.active = true
}

// NoteOff forwards to the envelope release. The voice keeps sounding (and
// occupying the pool) until the envelope finishes.
func (v *Voice) NoteOff() {
	v.env.Release()
}

// QuickRelease fades the voice out over quickReleaseSec regardless of the
// configured release time.
func (v *Voice) QuickRelease() {
	v.env.QuickRelease(quickReleaseSec)
}

// ProcessSample evaluates the algorithm graph for one sample and scales the
// carrier sum by the envelope level. Returns 0 once the envelope finishes.
func (v *Voice) ProcessSample() float64 {
	if !v.active || v.env.IsFinished() {
		return 0
	}

	// Operators run modulators-first (3 down to 0) so every connection
	// source is already computed within the same pass.
	var outs [NumOperators]float64
	for i := NumOperators - 1; i >= 0; i-- {
		var mod float64
		for _, m := range v.modInputs[i] {
			mod += outs[m.source] * m.amount
		}
		outs[i] = v.ops[i].ProcessSample(mod)
	}

	var sum float64
	for _, c := range v.alg.Carriers {
		sum += outs[c]
	}
	return sum * v.env.Next()
}

// finished reports whether the envelope has run out; the engine deactivates
// such voices on its bookkeeping pass after each render.
func (v *Voice) finished() bool {
	return v.env.IsFinished()
}

// setPitchModulation fans a fractional detune out to all operators.
func (v *Voice) setPitchModulation(m float64) {
	for i := range v.ops {
		v.ops[i].SetPitchModulation(m)
	}
}

// reset force-silences the voice, used by stealing and panic.
func (v *Voice) reset() {
	v.env.Reset()
	v.active = false
}
