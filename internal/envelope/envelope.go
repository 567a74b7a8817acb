// Package envelope implements the multi-stage amplitude envelope used by every
// voice: delay, attack, decay, sustain and release stages with per-stage curve
// shaping, loop modes, key tracking and velocity sensitivity.
package envelope

import "math"

// Phase identifies the current position in the envelope state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDelay
	PhaseAttack
	PhaseDecay
	PhaseSustain
	PhaseRelease
	PhaseFinished
)

// LoopMode controls what happens when the sustain region completes.
type LoopMode int

const (
	LoopOff LoopMode = iota
	// LoopSustain re-enters decay every time the sustain stage completes.
	LoopSustain
	// LoopFull jumps back to the configured loop start stage.
	LoopFull
	// LoopPingPong bounces between the loop start and loop end stages,
	// traversing intermediate stages in reverse on the way back.
	LoopPingPong
)

// TriggerMode controls how Trigger behaves on an already-running envelope.
type TriggerMode int

const (
	// TriggerRetrigger always restarts from the first stage.
	TriggerRetrigger TriggerMode = iota
	// TriggerLegato starts only if the envelope is not already active.
	TriggerLegato
	// TriggerCycle advances to the next stage instead of restarting.
	TriggerCycle
)

const (
	minStageRate = 0.001 // seconds
	maxStageRate = 10.0  // seconds
	denormFloor  = 1e-10
)

// StageConfig describes one envelope stage.
type StageConfig struct {
	Curve  Curve
	Rate   float64 // stage duration in seconds, clamped to [0.001, 10]
	Target float64 // level reached at the end of the stage, clamped to [0, 1]
	Power  float64 // exponent for CurvePower (ignored by other curves)
}

// Config is the full envelope description copied into a voice at note start.
type Config struct {
	Delay   StageConfig // Rate 0 disables the stage entirely
	Attack  StageConfig
	Decay   StageConfig
	Sustain StageConfig
	Release StageConfig

	// VelocitySensitivity scales output level by
	// 1 - s + s*curve(velocity); 0 means velocity is ignored.
	VelocitySensitivity float64
	VelocityCurve       Curve

	// KeyTracking scales stage durations by 2^(factor*(note-KeyCenter)/12).
	KeyTracking float64
	KeyCenter   int

	LoopMode  LoopMode
	LoopStart Phase // first stage of the loop region (LoopFull, LoopPingPong)
	LoopEnd   Phase // last stage of the loop region

	Trigger TriggerMode
}

// DefaultConfig returns a plain percussive DADSR with no delay and no looping.
func DefaultConfig() Config {
	return Config{
		Attack:  StageConfig{Curve: CurveLinear, Rate: 0.005, Target: 1.0},
		Decay:   StageConfig{Curve: CurveExponential, Rate: 0.12, Target: 0.75},
		Sustain: StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.75},
		Release: StageConfig{Curve: CurveExponential, Rate: 0.2, Target: 0},
		Delay:   StageConfig{Curve: CurveLinear, Rate: 0, Target: 0},

		VelocityCurve: CurveLinear,
		KeyCenter:     60,
		LoopStart:     PhaseAttack,
		LoopEnd:       PhaseSustain,
	}
}

// Envelope runs the stage machine for a single voice. All state is owned by
// that voice and mutated only on the rendering path.
type Envelope struct {
	sampleRate float64
	cfg        Config

	phase         Phase
	level         float64
	progress      float64
	startLevel    float64
	rate          float64 // per-sample progress increment for the current stage
	target        float64
	curve         Curve
	power         float64
	loopCount     int
	loopDirection int // +1 forward, -1 backward (ping-pong only)

	velocityScale float64
	note          int
}

// New creates an idle envelope for the given sample rate.
func New(sampleRate float64) *Envelope {
	return &Envelope{
		sampleRate:    sampleRate,
		cfg:           DefaultConfig(),
		velocityScale: 1,
		loopDirection: 1,
	}
}

// SetConfig replaces the envelope configuration. Values are clamped to their
// documented ranges; the copy is private to this envelope.
func (e *Envelope) SetConfig(cfg Config) {
	e.cfg = cfg.Clamped()
}

// Clamped returns a copy of the configuration with every value pulled into
// its documented range. A delay rate of exactly 0 stays 0, meaning the stage
// is skipped.
func (c Config) Clamped() Config {
	c.Attack = clampStage(c.Attack)
	c.Decay = clampStage(c.Decay)
	c.Sustain = clampStage(c.Sustain)
	c.Release = clampStage(c.Release)
	if c.Delay.Rate != 0 {
		c.Delay = clampStage(c.Delay)
	}
	c.Delay.Target = 0
	c.VelocitySensitivity = clamp(c.VelocitySensitivity, 0, 1)
	if c.LoopStart < PhaseDelay || c.LoopStart > PhaseSustain {
		c.LoopStart = PhaseAttack
	}
	if c.LoopEnd < c.LoopStart || c.LoopEnd > PhaseSustain {
		c.LoopEnd = PhaseSustain
	}
	return c
}

// Config returns a copy of the active configuration.
func (e *Envelope) Config() Config { return e.cfg }

func clampStage(s StageConfig) StageConfig {
	s.Rate = clamp(s.Rate, minStageRate, maxStageRate)
	s.Target = clamp(s.Target, 0, 1)
	if s.Power <= 0 {
		s.Power = 2
	}
	return s
}

// Trigger starts the envelope for a note. velocity is normalized to [0, 1].
func (e *Envelope) Trigger(velocity float64, note int) {
	e.note = note
	s := e.cfg.VelocitySensitivity
	e.velocityScale = 1 - s + s*applyCurve(e.cfg.VelocityCurve, clamp(velocity, 0, 1), 2)

	switch e.cfg.Trigger {
	case TriggerLegato:
		if e.active() {
			return
		}
	case TriggerCycle:
		if e.active() {
			e.advance()
			return
		}
	}
	e.restart()
}

func (e *Envelope) restart() {
	e.level = 0
	e.loopCount = 0
	e.loopDirection = 1
	if e.cfg.Delay.Rate > 0 {
		e.enterStage(PhaseDelay, 0)
	} else {
		e.enterStage(PhaseAttack, 0)
	}
}

// Release moves the envelope into its release stage from the current level.
// A no-op when idle, finished or already releasing.
func (e *Envelope) Release() {
	if !e.active() || e.phase == PhaseRelease {
		return
	}
	// Release always plays forward, even when it interrupts a backward
	// ping-pong traversal.
	e.loopDirection = 1
	e.enterStage(PhaseRelease, e.level)
}

// QuickRelease forces the release stage with an explicit short rate,
// bypassing the configured release time. Used for voice stealing and panic.
func (e *Envelope) QuickRelease(seconds float64) {
	if e.phase == PhaseIdle || e.phase == PhaseFinished {
		return
	}
	e.loopDirection = 1
	e.enterStage(PhaseRelease, e.level)
	e.rate = 1 / (e.sampleRate * clamp(seconds, minStageRate, maxStageRate))
}

// Reset silences the envelope immediately.
func (e *Envelope) Reset() {
	e.phase = PhaseIdle
	e.level = 0
	e.progress = 0
	e.loopDirection = 1
}

func (e *Envelope) active() bool {
	return e.phase != PhaseIdle && e.phase != PhaseFinished
}

// IsActive reports whether the envelope is producing a non-terminal level.
func (e *Envelope) IsActive() bool { return e.active() }

// IsFinished reports whether the envelope has completed its release.
func (e *Envelope) IsFinished() bool {
	return e.phase == PhaseFinished || e.phase == PhaseIdle
}

// IsReleasing reports whether the envelope is in its release stage.
func (e *Envelope) IsReleasing() bool { return e.phase == PhaseRelease }

// CurrentPhase returns the stage the envelope is in.
func (e *Envelope) CurrentPhase() Phase { return e.phase }

// CurrentLevel returns the last computed velocity-scaled level.
func (e *Envelope) CurrentLevel() float64 { return e.level * e.velocityScale }

// LoopCount returns how many times the loop region has wrapped.
func (e *Envelope) LoopCount() int { return e.loopCount }

// Next returns the envelope level for the current sample and advances the
// state machine by one sample.
func (e *Envelope) Next() float64 {
	if !e.active() {
		return 0
	}

	from, to := e.startLevel, e.target
	if e.loopDirection < 0 {
		// Backward traversal runs from the stage's target down to its
		// natural start level.
		from, to = e.target, e.startLevel
	}
	e.level = from + (to-from)*applyCurve(e.curve, e.progress, e.power)
	if math.Abs(e.level) < denormFloor {
		e.level = 0
	}

	e.progress += e.rate
	if e.progress >= 1 {
		if e.phase == PhaseSustain && !e.sustainAdvances() {
			// Sustain holds indefinitely; pin progress at the end of its ramp.
			e.progress = 1
			e.level = e.target
		} else {
			// Land exactly on the stage's end level so the next stage starts
			// from it, not from the last sampled point.
			if e.loopDirection < 0 {
				e.level = e.startLevel
			} else {
				e.level = e.target
			}
			e.advance()
		}
	}
	return e.level * e.velocityScale
}

// sustainAdvances reports whether the sustain stage is allowed to complete,
// which only happens inside a loop region.
func (e *Envelope) sustainAdvances() bool {
	switch e.cfg.LoopMode {
	case LoopSustain:
		return true
	case LoopFull, LoopPingPong:
		return e.cfg.LoopEnd == PhaseSustain
	}
	return false
}

// advance moves to the next stage after the current one completes.
func (e *Envelope) advance() {
	if e.loopDirection < 0 {
		// Ping-pong, travelling backward: level has arrived at this stage's
		// natural start level.
		if e.phase <= e.cfg.LoopStart {
			e.loopDirection = 1
			e.loopCount++
			e.enterStage(e.phase, e.level)
			return
		}
		e.enterBackward(e.prevStage(e.phase))
		return
	}

	switch e.phase {
	case PhaseDelay:
		e.enterStage(PhaseAttack, e.level)
	case PhaseAttack:
		e.maybeLoopOr(PhaseDecay)
	case PhaseDecay:
		e.maybeLoopOr(PhaseSustain)
	case PhaseSustain:
		switch e.cfg.LoopMode {
		case LoopSustain:
			e.loopCount++
			e.enterStage(PhaseDecay, e.level)
		case LoopFull:
			e.loopCount++
			e.enterStage(e.cfg.LoopStart, e.level)
		case LoopPingPong:
			e.loopDirection = -1
			e.enterBackward(e.phase)
		default:
			// Only a cycle trigger advances out of an unlooped sustain;
			// the next stage after sustain is release.
			e.enterStage(PhaseRelease, e.level)
		}
	case PhaseRelease:
		e.level = 0
		e.phase = PhaseFinished
	}
}

// maybeLoopOr handles loop-region wrap at the configured loop end, otherwise
// enters next.
func (e *Envelope) maybeLoopOr(next Phase) {
	if e.phase == e.cfg.LoopEnd {
		switch e.cfg.LoopMode {
		case LoopFull:
			e.loopCount++
			e.enterStage(e.cfg.LoopStart, e.level)
			return
		case LoopPingPong:
			e.loopDirection = -1
			e.enterBackward(e.phase)
			return
		}
	}
	e.enterStage(next, e.level)
}

func (e *Envelope) prevStage(p Phase) Phase {
	switch p {
	case PhaseSustain:
		return PhaseDecay
	case PhaseDecay:
		return PhaseAttack
	case PhaseAttack:
		return PhaseDelay
	}
	return e.cfg.LoopStart
}

// enterBackward re-enters a stage for reverse traversal. The level runs from
// the stage's target back to its natural start level.
func (e *Envelope) enterBackward(p Phase) {
	e.enterStage(p, e.naturalStart(p))
	e.level = e.target
}

// naturalStart is the level a stage begins at when reached in forward order.
func (e *Envelope) naturalStart(p Phase) float64 {
	switch p {
	case PhaseSustain:
		return e.cfg.Decay.Target
	case PhaseDecay:
		return e.cfg.Attack.Target
	}
	return 0
}

// enterStage initializes per-stage state. startLevel carries the continuous
// level across the transition.
func (e *Envelope) enterStage(p Phase, startLevel float64) {
	e.phase = p
	e.progress = 0
	e.startLevel = startLevel
	sc := e.stageConfig(p)
	e.target = sc.Target
	e.curve = sc.Curve
	e.power = sc.Power
	e.rate = 1 / (e.sampleRate * sc.Rate * e.keyTrackMultiplier())
	e.level = startLevel
}

func (e *Envelope) stageConfig(p Phase) StageConfig {
	switch p {
	case PhaseDelay:
		return e.cfg.Delay
	case PhaseAttack:
		return e.cfg.Attack
	case PhaseDecay:
		return e.cfg.Decay
	case PhaseSustain:
		return e.cfg.Sustain
	case PhaseRelease:
		return e.cfg.Release
	}
	return StageConfig{Curve: CurveLinear, Rate: minStageRate}
}

func (e *Envelope) keyTrackMultiplier() float64 {
	if e.cfg.KeyTracking == 0 {
		return 1
	}
	m := math.Pow(2, e.cfg.KeyTracking*float64(e.note-e.cfg.KeyCenter)/12)
	// Keep the effective duration inside the documented rate range.
	return clamp(m, minStageRate/maxStageRate, maxStageRate/minStageRate)
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
