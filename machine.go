// Package fmvoice provides real-time polyphonic voice engines: a
// four-operator FM synthesizer and an anti-aliased wavetable synthesizer,
// both sharing the same voice-pool, envelope and control semantics.
package fmvoice

import (
	"github.com/cbegin/fmvoice-go/internal/envelope"
	intfm "github.com/cbegin/fmvoice-go/internal/fm"
	intwt "github.com/cbegin/fmvoice-go/internal/wavetable"
)

// VoiceMachine is the host-facing surface shared by both engines. All
// methods are safe for concurrent use; control calls are serialized against
// rendering, and a parameter change is audible from the first sample
// rendered after the call returns.
type VoiceMachine interface {
	// NoteOn starts (or steals a voice for) a note. Note and velocity are
	// clamped to [0, 127]. Returns false only when the machine has no voices.
	NoteOn(note, velocity int) bool
	// NoteOff releases the most recently triggered sounding instance of note.
	NoteOff(note int)
	// AllNotesOff releases every sounding voice through its envelope.
	AllNotesOff()
	// QuickReleaseAll fades every sounding voice out over ~10ms, ignoring the
	// configured release time. Click-free, but not synchronous.
	QuickReleaseAll()
	// StopAllVoices silences everything immediately. Never fails.
	StopAllVoices()

	// ProcessBuffer renders mono samples into the caller-owned buffer.
	ProcessBuffer(dst []float32)
	// ProcessSample renders exactly one sample, bit-identical to a
	// one-sample ProcessBuffer.
	ProcessSample() float32

	SetMasterVolume(v float64)
	ActiveVoiceCount() int
	IsActive() bool
}

// Compile-time interface checks.
var (
	_ VoiceMachine = (*intfm.Engine)(nil)
	_ VoiceMachine = (*intwt.Engine)(nil)
)

// Envelope configuration is re-exported so hosts can build patches without
// importing internal packages.
type (
	EnvelopeConfig = envelope.Config
	EnvelopeStage  = envelope.StageConfig
	EnvelopeCurve  = envelope.Curve
)

const (
	CurveLinear      = envelope.CurveLinear
	CurveExponential = envelope.CurveExponential
	CurveLogarithmic = envelope.CurveLogarithmic
	CurveSine        = envelope.CurveSine
	CurvePower       = envelope.CurvePower
	CurveSnap        = envelope.CurveSnap
)

// DefaultEnvelopeConfig returns the stock percussive DADSR.
func DefaultEnvelopeConfig() EnvelopeConfig { return envelope.DefaultConfig() }

// FMParams aliases the FM engine's parameter struct.
type FMParams = intfm.Params

// WavetableParams aliases the wavetable engine's parameter struct.
type WavetableParams = intwt.Params

// DefaultFMParams returns the default FM patch.
func DefaultFMParams() FMParams { return intfm.DefaultParams() }

// DefaultWavetableParams returns the default wavetable patch.
func DefaultWavetableParams() WavetableParams { return intwt.DefaultParams() }

// NewFM builds an FM voice machine. The returned *fm.Engine exposes the full
// control surface (operators, algorithm, bend, mod wheel) beyond the
// VoiceMachine interface.
func NewFM(sampleRate int, params FMParams) *intfm.Engine {
	return intfm.New(sampleRate, params)
}

// NewWavetable builds a wavetable voice machine.
func NewWavetable(sampleRate int, params WavetableParams) *intwt.Engine {
	return intwt.New(sampleRate, params)
}
