package fm

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"

	"github.com/cbegin/fmvoice-go/internal/envelope"
	"github.com/cbegin/fmvoice-go/internal/lfo"
)

// MaxBlockSize is the largest chunk rendered in one pass. ProcessBuffer
// splits larger requests so steady-state rendering never allocates.
const MaxBlockSize = 512

// Params configures a new engine. Per-operator arrays are indexed
// 0=Carrier, 1=A, 2=B1, 3=B2.
type Params struct {
	Polyphony  int
	Ratios     [NumOperators]float64
	Levels     [NumOperators]float64
	ModIndexes [NumOperators]float64
	Feedbacks  [NumOperators]float64

	AlgorithmID  int
	Envelope     envelope.Config
	MasterVolume float64
	Tuning       float64 // A4 reference in Hz

	BendRangeSemitones    float64
	VibratoRateHz         float64
	VibratoDepthSemitones float64 // depth at full mod wheel
}

// DefaultParams returns a playable two-operator FM patch.
func DefaultParams() Params {
	return Params{
		Polyphony:             32,
		Ratios:                [NumOperators]float64{1, 2, 3, 4},
		Levels:                [NumOperators]float64{1, 0.6, 0.4, 0.3},
		ModIndexes:            [NumOperators]float64{1.6, 1.6, 1.6, 1.6},
		AlgorithmID:           1,
		Envelope:              envelope.DefaultConfig(),
		MasterVolume:          1,
		Tuning:                440,
		BendRangeSemitones:    2,
		VibratoRateHz:         5.5,
		VibratoDepthSemitones: 0.4,
	}
}

// Engine owns a fixed pool of voices and fans global parameters out to them.
// Control-path calls (noteOn/noteOff/setters) are serialized against
// ProcessBuffer with one mutex; a parameter change becomes audible with the
// first sample rendered after the setter returns.
type Engine struct {
	mu         sync.Mutex
	sampleRate float64
	voices     []Voice

	ratios     [NumOperators]float64
	levels     [NumOperators]float64
	modIndexes [NumOperators]float64
	feedbacks  [NumOperators]float64

	algorithmID int
	envCfg      envelope.Config
	tuning      float64

	masterVolume uint64 // float64 bits, read atomically on the render path
	peakLevel    uint64

	pitchBend    float64
	bendRange    float64
	modWheel     float64
	vibrato      lfo.LFO
	vibratoDepth float64
	appliedMod   float64 // last pitch modulation fanned out to voices

	triggerCount uint64

	scratch [MaxBlockSize]float32
	one     [1]float32

	outputStage func([]float32) []float32
}

// New creates an engine with Polyphony voices pre-allocated. The pool size is
// immutable afterwards.
func New(sampleRate int, params Params) *Engine {
	if params.Polyphony <= 0 {
		params.Polyphony = 32
	}
	e := &Engine{
		sampleRate:   float64(sampleRate),
		voices:       make([]Voice, params.Polyphony),
		ratios:       params.Ratios,
		levels:       params.Levels,
		modIndexes:   params.ModIndexes,
		feedbacks:    params.Feedbacks,
		algorithmID:  params.AlgorithmID,
		envCfg:       params.Envelope.Clamped(),
		tuning:       clamp(params.Tuning, 400, 480),
		masterVolume: math.Float64bits(clamp(params.MasterVolume, 0, 1)),
		bendRange:    clamp(params.BendRangeSemitones, 0, 24),
		vibratoDepth: params.VibratoDepthSemitones,
	}
	if e.algorithmID < 1 || e.algorithmID > len(Algorithms) {
		e.algorithmID = 1
	}
	for i := range e.ratios {
		e.ratios[i] = clamp(e.ratios[i], 0.1, 32)
		e.levels[i] = clamp(e.levels[i], 0, 1)
		e.modIndexes[i] = clamp(e.modIndexes[i], 0, 10)
		e.feedbacks[i] = clamp(e.feedbacks[i], 0, 1)
	}
	for i := range e.voices {
		e.voices[i] = newVoice(e.sampleRate)
	}
	e.vibrato.Set(0, params.VibratoRateHz, lfo.WaveSine)
	return e
}

// NoteOn allocates (or steals) a voice for the note. Returns false only when
// the pool is empty, which cannot happen for a normally constructed engine.
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
	v.NoteOn(note, velocity, e.snapshot())
	if e.appliedMod != 0 {
		v.setPitchModulation(e.appliedMod)
	}
	e.triggerCount++
	v.startTime = e.triggerCount
	return true
}

// snapshot copies the current global parameters for one note. Callers hold
// the mutex.
func (e *Engine) snapshot() voiceConfig {
	return voiceConfig{
		ratios:     e.ratios,
		levels:     e.levels,
		modIndexes: e.modIndexes,
		feedbacks:  e.feedbacks,
		algorithm:  AlgorithmByID(e.algorithmID),
		env:        e.envCfg,
		tuning:     e.tuning,
	}
}

// allocateVoice returns a free voice index, or steals one. Stealing prefers
// voices already in release, then falls back to the oldest voice; both
// tie-break on the lowest index so pool behavior is deterministic.
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
// has not yet entered release. Earlier duplicates of the same note keep
// sounding until their own NoteOff.
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
// configured release time. The soft panic: no click, but voices stay in the
// pool until the fade renders out. StopAllVoices is the hard variant.
func (e *Engine) QuickReleaseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.voices {
		if e.voices[i].active {
			e.voices[i].QuickRelease()
		}
	}
}

// StopAllVoices is the panic stop: every voice is silenced and the active set
// cleared before the call returns. Never fails.
func (e *Engine) StopAllVoices() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.voices {
		e.voices[i].reset()
	}
}

// ProcessBuffer renders into the caller-owned buffer, mixing all active
// voices and applying master volume. Requests larger than MaxBlockSize are
// chunked; the steady-state path performs no allocation.
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

// ProcessSample renders exactly one sample. Implemented on top of
// ProcessBuffer with a pre-allocated one-sample buffer, so the two are
// bit-identical by construction.
func (e *Engine) ProcessSample() float32 {
	e.one[0] = 0
	e.ProcessBuffer(e.one[:])
	return e.one[0]
}

func (e *Engine) renderBlock(block []float32) {
	for i := range block {
		block[i] = 0
	}

	// Pitch bend and mod-wheel vibrato are fanned out at block rate; the
	// vibrato LFO advances once per block.
	vib := e.vibrato.Sample(e.sampleRate / float64(len(block)))
	semis := e.pitchBend*e.bendRange + vib
	mod := math.Pow(2, semis/12) - 1
	if mod != e.appliedMod {
		for i := range e.voices {
			if e.voices[i].active {
				e.voices[i].setPitchModulation(mod)
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

	// Bookkeeping pass: drop voices whose envelope finished during the block.
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

// SetMasterVolume sets the output scale, clamped to [0, 1]. Applies to
// already-sounding voices from the next rendered sample.
func (e *Engine) SetMasterVolume(v float64) {
	atomic.StoreUint64(&e.masterVolume, math.Float64bits(clamp(v, 0, 1)))
}

// MasterVolume returns the current output scale.
func (e *Engine) MasterVolume() float64 { return e.masterVolumeValue() }

func (e *Engine) masterVolumeValue() float64 {
	return math.Float64frombits(atomic.LoadUint64(&e.masterVolume))
}

// SetAlgorithm selects a bank algorithm by 1-based id, clamped to the bank
// size. Affects subsequently triggered notes.
func (e *Engine) SetAlgorithm(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.algorithmID = AlgorithmByID(id).ID
}

// CurrentAlgorithm returns the selected algorithm id.
func (e *Engine) CurrentAlgorithm() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.algorithmID
}

// SetOperatorRatio sets the frequency ratio for one operator, clamped to
// [0.1, 32]. Out-of-range operator indices are ignored.
func (e *Engine) SetOperatorRatio(op int, ratio float64) {
	if op < 0 || op >= NumOperators {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ratios[op] = clamp(ratio, 0.1, 32)
}

// OperatorRatio reads back a ratio; 0 for an invalid index.
func (e *Engine) OperatorRatio(op int) float64 {
	if op < 0 || op >= NumOperators {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ratios[op]
}

// SetOperatorLevel sets one operator's output level, clamped to [0, 1].
func (e *Engine) SetOperatorLevel(op int, level float64) {
	if op < 0 || op >= NumOperators {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.levels[op] = clamp(level, 0, 1)
}

// OperatorLevel reads back a level; 0 for an invalid index.
func (e *Engine) OperatorLevel(op int) float64 {
	if op < 0 || op >= NumOperators {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.levels[op]
}

// SetOperatorModIndex sets one operator's modulation index, clamped to
// [0, 10].
func (e *Engine) SetOperatorModIndex(op int, idx float64) {
	if op < 0 || op >= NumOperators {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.modIndexes[op] = clamp(idx, 0, 10)
}

// SetOperatorFeedback sets one operator's self-feedback, clamped to [0, 1].
func (e *Engine) SetOperatorFeedback(op int, fb float64) {
	if op < 0 || op >= NumOperators {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feedbacks[op] = clamp(fb, 0, 1)
}

// SetEnvelope replaces the envelope configuration used for subsequent notes.
func (e *Engine) SetEnvelope(cfg envelope.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envCfg = cfg.Clamped()
}

// EnvelopeConfig returns the clamped envelope configuration.
func (e *Engine) EnvelopeConfig() envelope.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.envCfg
}

// SetTuning sets the A4 reference in Hz, clamped to [400, 480]. Affects
// subsequently triggered notes.
func (e *Engine) SetTuning(hz float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tuning = clamp(hz, 400, 480)
}

// SetPitchBend applies a bend in [-1, 1], scaled by the configured semitone
// range. Already-sounding voices move from the next rendered block.
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

// ActiveNotes appends the notes of all sounding voices to dst, in pool
// order. Useful for hosts displaying engine state.
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

// SetOutputStage installs the external output-effects collaborator, invoked
// once per ProcessBuffer call with the rendered samples. The stage must
// return a slice of the same length; anything else is ignored.
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
