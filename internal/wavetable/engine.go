package wavetable

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"

	"github.com/cbegin/fmvoice-go/internal/envelope"
	"github.com/cbegin/fmvoice-go/internal/lfo"
)

// MaxBlockSize is the largest chunk rendered in one pass, matching the FM
// engine so both machines chunk identically.
const MaxBlockSize = 512

// Params configures a new wavetable engine.
type Params struct {
	Polyphony int
	Table     *Table
	Interp    Config

	FramePosition float64
	Envelope      envelope.Config
	MasterVolume  float64
	Tuning        float64 // A4 reference in Hz

	BendRangeSemitones    float64
	VibratoRateHz         float64
	VibratoDepthSemitones float64
}

// DefaultParams returns a playable single-cycle morph patch.
func DefaultParams() Params {
	return Params{
		Polyphony:             32,
		Table:                 MorphTable(2048, 8),
		Interp:                DefaultConfig(),
		Envelope:              envelope.DefaultConfig(),
		MasterVolume:          1,
		Tuning:                440,
		BendRangeSemitones:    2,
		VibratoRateHz:         5.5,
		VibratoDepthSemitones: 0.4,
	}
}

// Engine owns a fixed pool of wavetable voices. The control path shares the
// FM engine's contract: one mutex against the render path, atomic master
// volume, block-rate bend and vibrato fan-out.
type Engine struct {
	mu         sync.Mutex
	sampleRate float64
	voices     []Voice

	table    *Table
	framePos float64
	envCfg   envelope.Config
	tuning   float64

	masterVolume uint64 // float64 bits
	peakLevel    uint64

	pitchBend    float64
	bendRange    float64
	modWheel     float64
	vibrato      lfo.LFO
	vibratoDepth float64
	appliedMod   float64

	triggerCount uint64

	scratch [MaxBlockSize]float32
	one     [1]float32

	outputStage func([]float32) []float32
	cpuBudget   func() float64
	lastBudget  float64
}

// New creates an engine with Polyphony voices pre-allocated.
func New(sampleRate int, params Params) *Engine {
	if params.Polyphony <= 0 {
		params.Polyphony = 32
	}
	if params.Table == nil {
		params.Table = SineTable(2048)
	}
	e := &Engine{
		sampleRate:   float64(sampleRate),
		voices:       make([]Voice, params.Polyphony),
		table:        params.Table,
		envCfg:       params.Envelope.Clamped(),
		tuning:       clamp(params.Tuning, 400, 480),
		masterVolume: math.Float64bits(clamp(params.MasterVolume, 0, 1)),
		bendRange:    clamp(params.BendRangeSemitones, 0, 24),
		vibratoDepth: params.VibratoDepthSemitones,
	}
	e.framePos = clamp(params.FramePosition, 0, float64(params.Table.FrameCount()-1))
	for i := range e.voices {
		e.voices[i] = newVoice(e.sampleRate, params.Interp)
	}
	e.vibrato.Set(0, params.VibratoRateHz, lfo.WaveSine)
	return e
}

// NoteOn allocates (or steals) a voice for the note. Stealing and tie-break
// rules match the FM engine.
func (e *Engine) NoteOn(note, velocity int) bool {
	if len(e.voices) == 0 {
		return false
	}
	note = clampInt(note, 0, 127)
	velocity = clampInt(velocity, 0, 127)

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.allocateVoice()
	v := &e.voices[idx]
	if v.active {
		v.reset()
	}
	v.NoteOn(note, velocity, e.sampleRate, voiceConfig{
		table:    e.table,
		framePos: e.framePos,
		env:      e.envCfg,
		tuning:   e.tuning,
	})
	if e.appliedMod != 0 {
		v.setPitchModulation(e.appliedMod, e.sampleRate)
	}
	e.triggerCount++
	v.startTime = e.triggerCount
	return true
}

func (e *Engine) allocateVoice() int {
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}
	best := -1
	for i := range e.voices {
		if !e.voices[i].env.IsReleasing() {
			continue
		}
		if best < 0 || e.voices[i].startTime < e.voices[best].startTime {
			best = i
		}
	}
	if best >= 0 {
		return best
	}
	best = 0
	for i := 1; i < len(e.voices); i++ {
		if e.voices[i].startTime < e.voices[best].startTime {
			best = i
		}
	}
	return best
}

// NoteOff releases the most recently triggered voice sounding the note that
// has not yet entered release.
func (e *Engine) NoteOff(note int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	best := -1
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active || v.note != note || v.env.IsReleasing() || v.finished() {
			continue
		}
		if best < 0 || v.startTime >= e.voices[best].startTime {
			best = i
		}
	}
	if best >= 0 {
		e.voices[best].NoteOff()
	}
}

// AllNotesOff gracefully releases every sounding voice.
func (e *Engine) AllNotesOff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.voices {
		if e.voices[i].active {
			e.voices[i].NoteOff()
		}
	}
}

// QuickReleaseAll forces every sounding voice into a ~10ms fade, ignoring the
// configured release time. The soft panic counterpart to StopAllVoices.
func (e *Engine) QuickReleaseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.voices {
		if e.voices[i].active {
			e.voices[i].QuickRelease()
		}
	}
}

// StopAllVoices silences every voice immediately.
func (e *Engine) StopAllVoices() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.voices {
		e.voices[i].reset()
	}
}

// ProcessBuffer renders into the caller-owned buffer.
func (e *Engine) ProcessBuffer(dst []float32) {
	e.mu.Lock()
	for start := 0; start < len(dst); start += MaxBlockSize {
		end := start + MaxBlockSize
		if end > len(dst) {
			end = len(dst)
		}
		e.renderBlock(dst[start:end])
	}
	stage := e.outputStage
	e.mu.Unlock()

	if stage != nil && len(dst) > 0 {
		out := stage(dst)
		if len(out) == len(dst) && &out[0] != &dst[0] {
			copy(dst, out)
		}
	}
	e.updatePeak(dst)
}

// ProcessSample renders exactly one sample via ProcessBuffer.
func (e *Engine) ProcessSample() float32 {
	e.one[0] = 0
	e.ProcessBuffer(e.one[:])
	return e.one[0]
}

func (e *Engine) renderBlock(block []float32) {
	for i := range block {
		block[i] = 0
	}

	if e.cpuBudget != nil {
		if b := clamp(e.cpuBudget(), 0, 1); b != e.lastBudget {
			e.applyBudget(b)
			e.lastBudget = b
		}
	}

	vib := e.vibrato.Sample(e.sampleRate / float64(len(block)))
	semis := e.pitchBend*e.bendRange + vib
	mod := math.Pow(2, semis/12) - 1
	if mod != e.appliedMod {
		for i := range e.voices {
			if e.voices[i].active {
				e.voices[i].setPitchModulation(mod, e.sampleRate)
			}
		}
		e.appliedMod = mod
	}

	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		scratch := e.scratch[:len(block)]
		for j := range scratch {
			scratch[j] = float32(v.ProcessSample())
		}
		vek32.Add_Inplace(block, scratch)
	}

	for i := range e.voices {
		if e.voices[i].active && e.voices[i].finished() {
			e.voices[i].active = false
		}
	}

	vol := float32(e.masterVolumeValue())
	if vol != 1 {
		vek32.MulNumber_Inplace(block, vol)
	}
}

func (e *Engine) updatePeak(dst []float32) {
	if len(dst) == 0 {
		return
	}
	hi := vek32.Max(dst)
	lo := vek32.Min(dst)
	if -lo > hi {
		hi = -lo
	}
	atomic.StoreUint64(&e.peakLevel, math.Float64bits(float64(hi)))
}

// PeakLevel returns the absolute peak of the most recently rendered buffer.
func (e *Engine) PeakLevel() float64 {
	return math.Float64frombits(atomic.LoadUint64(&e.peakLevel))
}

// SetMasterVolume sets the output scale, clamped to [0, 1].
func (e *Engine) SetMasterVolume(v float64) {
	atomic.StoreUint64(&e.masterVolume, math.Float64bits(clamp(v, 0, 1)))
}

// MasterVolume returns the current output scale.
func (e *Engine) MasterVolume() float64 { return e.masterVolumeValue() }

func (e *Engine) masterVolumeValue() float64 {
	return math.Float64frombits(atomic.LoadUint64(&e.masterVolume))
}

// SetTable swaps the wavetable for subsequently triggered notes. Sounding
// voices keep their snapshot, so the swap never clicks.
func (e *Engine) SetTable(t *Table) {
	if t == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.table = t
	e.framePos = clamp(e.framePos, 0, float64(t.FrameCount()-1))
}

// SetFramePosition sets the morph position in frames, clamped to the table.
// Affects subsequently triggered notes.
func (e *Engine) SetFramePosition(p float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.framePos = clamp(p, 0, float64(e.table.FrameCount()-1))
}

// FramePosition reads back the morph position.
func (e *Engine) FramePosition() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.framePos
}

// SetEnvelope replaces the envelope configuration used for subsequent notes.
func (e *Engine) SetEnvelope(cfg envelope.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envCfg = cfg.Clamped()
}

// SetTuning sets the A4 reference in Hz, clamped to [400, 480].
func (e *Engine) SetTuning(hz float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tuning = clamp(hz, 400, 480)
}

// SetPitchBend applies a bend in [-1, 1], scaled by the configured range.
func (e *Engine) SetPitchBend(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pitchBend = clamp(v, -1, 1)
}

// SetPitchBendRange sets the bend span in semitones, clamped to [0, 24].
func (e *Engine) SetPitchBendRange(semitones float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bendRange = clamp(semitones, 0, 24)
}

// SetModWheel maps [0, 1] onto vibrato depth. Applies live.
func (e *Engine) SetModWheel(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modWheel = clamp(v, 0, 1)
	e.vibrato.SetDepth(e.modWheel * e.vibratoDepth)
}

// SetCPUBudget installs the external load collaborator, consulted once per
// rendered block for the available headroom in [0, 1]. Budgets below 0.5
// halve the anti-aliasing oversample factor; below 0.25 the AA path is
// disabled entirely. The engine never measures load itself.
func (e *Engine) SetCPUBudget(budget func() float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cpuBudget = budget
	e.lastBudget = -1 // force re-application on the next block
}

// applyBudget fans the oversample factor out to all voices. Callers hold the
// mutex.
func (e *Engine) applyBudget(budget float64) {
	for i := range e.voices {
		in := e.voices[i].interp
		switch {
		case budget < 0.25:
			in.SetOversample(1)
		case budget < 0.5:
			in.SetOversample(in.cfg.Oversample / 2)
		default:
			in.SetOversample(in.cfg.Oversample)
		}
	}
}

// ActiveVoiceCount returns the number of voices currently sounding,
// including those in release.
func (e *Engine) ActiveVoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

// IsActive reports whether any voice is sounding.
func (e *Engine) IsActive() bool { return e.ActiveVoiceCount() > 0 }

// ActiveNotes appends the notes of all sounding voices to dst, in pool order.
func (e *Engine) ActiveNotes(dst []int) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.voices {
		if e.voices[i].active {
			dst = append(dst, e.voices[i].note)
		}
	}
	return dst
}

// SetOutputStage installs the external output-effects collaborator.
func (e *Engine) SetOutputStage(stage func([]float32) []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputStage = stage
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
