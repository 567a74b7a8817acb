package envelope

import (
	"math"
	"testing"
)

const testRate = 48000

func runSamples(e *Envelope, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = e.Next()
	}
	return out
}

func TestAttackReachesPeak(t *testing.T) {
	e := New(testRate)
	cfg := DefaultConfig()
	cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 1}
	e.SetConfig(cfg)
	e.Trigger(1, 60)

	samples := int(0.01*testRate) + 2
	out := runSamples(e, samples)
	peak := 0.0
	for _, v := range out {
		if v > peak {
			peak = v
		}
	}
	if peak < 0.999 {
		t.Fatalf("attack never reached peak, max level %f", peak)
	}
	if out[0] > 0.001 {
		t.Fatalf("attack should start near zero, got %f", out[0])
	}
}

func TestLinearStageDuration(t *testing.T) {
	// A linear attack of R seconds takes round(R*sampleRate) samples to hit
	// its target, within one sample.
	e := New(1000)
	cfg := DefaultConfig()
	cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.1, Target: 1}
	e.SetConfig(cfg)
	e.Trigger(1, 60)

	want := 100
	got := -1
	for i := 0; i < want*2; i++ {
		if e.Next() >= 1-1e-9 {
			got = i
			break
		}
	}
	if got < 0 {
		t.Fatalf("attack never completed")
	}
	if got < want-1 || got > want+1 {
		t.Fatalf("attack took %d samples, want %d±1", got, want)
	}
}

func TestContinuityAcrossStages(t *testing.T) {
	// Running delay→attack→decay→sustain must not produce a jump larger than
	// the steepest configured stage slope.
	e := New(testRate)
	cfg := Config{
		Delay:   StageConfig{Curve: CurveLinear, Rate: 0.005, Target: 0},
		Attack:  StageConfig{Curve: CurveExponential, Rate: 0.01, Target: 1},
		Decay:   StageConfig{Curve: CurveLogarithmic, Rate: 0.02, Target: 0.6},
		Sustain: StageConfig{Curve: CurveSine, Rate: 0.01, Target: 0.5},
		Release: StageConfig{Curve: CurveExponential, Rate: 0.05, Target: 0},
	}
	e.SetConfig(cfg)
	e.Trigger(1, 60)

	// Steepest stage is the 10ms attack; exponential slope at p=0 is
	// 5/(1-e^-5) ≈ 5.03 per unit progress.
	maxSlope := 5.04 / (0.01 * testRate)
	out := runSamples(e, int(0.1*testRate))
	for i := 1; i < len(out); i++ {
		if d := math.Abs(out[i] - out[i-1]); d > maxSlope+1e-6 {
			t.Fatalf("discontinuity %f at sample %d (limit %f)", d, i, maxSlope)
		}
	}
}

func TestSustainHolds(t *testing.T) {
	e := New(1000)
	cfg := DefaultConfig()
	cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 1}
	cfg.Decay = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.5}
	cfg.Sustain = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.5}
	e.SetConfig(cfg)
	e.Trigger(1, 60)

	runSamples(e, 100)
	if e.CurrentPhase() != PhaseSustain {
		t.Fatalf("expected sustain phase, got %v", e.CurrentPhase())
	}
	out := runSamples(e, 500)
	for i, v := range out {
		if math.Abs(v-0.5) > 1e-9 {
			t.Fatalf("sustain drifted to %f at sample %d", v, i)
		}
	}
}

func TestReleaseFinishes(t *testing.T) {
	e := New(1000)
	cfg := DefaultConfig()
	cfg.Release = StageConfig{Curve: CurveLinear, Rate: 0.05, Target: 0}
	e.SetConfig(cfg)
	e.Trigger(1, 60)
	runSamples(e, 200)

	e.Release()
	if !e.IsReleasing() {
		t.Fatalf("expected release phase")
	}
	runSamples(e, 60)
	if !e.IsFinished() {
		t.Fatalf("release did not finish")
	}
	if v := e.Next(); v != 0 {
		t.Fatalf("finished envelope produced %f", v)
	}
}

func TestQuickReleaseOverridesRate(t *testing.T) {
	e := New(testRate)
	cfg := DefaultConfig()
	cfg.Release = StageConfig{Curve: CurveLinear, Rate: 5, Target: 0}
	e.SetConfig(cfg)
	e.Trigger(1, 60)
	runSamples(e, 1000)

	e.QuickRelease(0.010)
	runSamples(e, int(0.011*testRate))
	if !e.IsFinished() {
		t.Fatalf("quick release should finish within ~10ms")
	}
}

func TestTriggerModes(t *testing.T) {
	t.Run("retrigger restarts", func(t *testing.T) {
		e := New(1000)
		e.Trigger(1, 60)
		runSamples(e, 50)
		before := e.CurrentLevel()
		e.Trigger(1, 60)
		if e.CurrentLevel() >= before {
			t.Fatalf("retrigger should restart from zero, level %f (was %f)", e.CurrentLevel(), before)
		}
	})
	t.Run("legato ignores retrigger", func(t *testing.T) {
		e := New(1000)
		cfg := DefaultConfig()
		cfg.Trigger = TriggerLegato
		e.SetConfig(cfg)
		e.Trigger(1, 60)
		runSamples(e, 50)
		phase, level := e.CurrentPhase(), e.CurrentLevel()
		e.Trigger(1, 64)
		if e.CurrentPhase() != phase || e.CurrentLevel() != level {
			t.Fatalf("legato trigger changed state")
		}
	})
	t.Run("cycle advances stage", func(t *testing.T) {
		e := New(1000)
		cfg := DefaultConfig()
		cfg.Trigger = TriggerCycle
		cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 1, Target: 1}
		e.SetConfig(cfg)
		e.Trigger(1, 60)
		if e.CurrentPhase() != PhaseAttack {
			t.Fatalf("expected attack")
		}
		e.Trigger(1, 60)
		if e.CurrentPhase() != PhaseDecay {
			t.Fatalf("cycle trigger should advance to decay, got %v", e.CurrentPhase())
		}
	})
}

func TestSustainLoop(t *testing.T) {
	e := New(1000)
	cfg := DefaultConfig()
	cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 1}
	cfg.Decay = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.5}
	cfg.Sustain = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.8}
	cfg.LoopMode = LoopSustain
	e.SetConfig(cfg)
	e.Trigger(1, 60)

	runSamples(e, 1000)
	if e.LoopCount() < 2 {
		t.Fatalf("sustain loop never wrapped, count %d", e.LoopCount())
	}
	if !e.IsActive() {
		t.Fatalf("looping envelope went inactive")
	}
}

func TestPingPongLoop(t *testing.T) {
	e := New(1000)
	cfg := DefaultConfig()
	cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 1}
	cfg.Decay = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.5}
	cfg.Sustain = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.8}
	cfg.LoopMode = LoopPingPong
	cfg.LoopStart = PhaseAttack
	cfg.LoopEnd = PhaseSustain
	e.SetConfig(cfg)
	e.Trigger(1, 60)

	out := runSamples(e, 2000)
	for i, v := range out {
		if v < 0 || v > 1 {
			t.Fatalf("ping-pong level %f out of range at sample %d", v, i)
		}
	}
	if e.LoopCount() < 2 {
		t.Fatalf("ping-pong never completed a round trip, count %d", e.LoopCount())
	}
	// Backward traversal must actually move the level, not hold it flat.
	var distinct int
	seen := map[float64]struct{}{}
	for _, v := range out[100:] {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			distinct++
		}
	}
	if distinct < 10 {
		t.Fatalf("ping-pong output looks flat, %d distinct levels", distinct)
	}
}

func TestReleaseDuringBackwardTraversal(t *testing.T) {
	// A release arriving while ping-pong is running backward must still play
	// the release stage forward, continuously from the current level, and
	// reach finished.
	setup := func() *Envelope {
		e := New(1000)
		cfg := DefaultConfig()
		cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 1}
		cfg.Decay = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.5}
		cfg.Sustain = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.8}
		cfg.Release = StageConfig{Curve: CurveLinear, Rate: 0.05, Target: 0}
		cfg.LoopMode = LoopPingPong
		cfg.LoopStart = PhaseAttack
		cfg.LoopEnd = PhaseSustain
		e.SetConfig(cfg)
		e.Trigger(1, 60)
		for i := 0; i < 10000 && e.loopDirection > 0; i++ {
			e.Next()
		}
		if e.loopDirection > 0 {
			t.Fatalf("never entered backward traversal")
		}
		e.Next() // a few samples into the backward stage
		e.Next()
		return e
	}

	t.Run("release", func(t *testing.T) {
		e := setup()
		before := e.CurrentLevel()
		e.Release()
		first := e.Next()
		if math.Abs(first-before) > 0.05 {
			t.Fatalf("release jumped from %f to %f", before, first)
		}
		for i := 0; i < 60; i++ {
			if v := e.Next(); v > first+1e-9 {
				t.Fatalf("release level rose to %f at sample %d", v, i)
			}
		}
		if !e.IsFinished() {
			t.Fatalf("release never finished: phase %v level %f", e.CurrentPhase(), e.CurrentLevel())
		}
	})
	t.Run("quick release", func(t *testing.T) {
		e := setup()
		e.QuickRelease(0.010)
		runSamples(e, 12)
		if !e.IsFinished() {
			t.Fatalf("quick release never finished: phase %v level %f", e.CurrentPhase(), e.CurrentLevel())
		}
	})
}

func TestFullLoop(t *testing.T) {
	e := New(1000)
	cfg := DefaultConfig()
	cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 1}
	cfg.Decay = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.2}
	cfg.Release = StageConfig{Curve: CurveLinear, Rate: 0.05, Target: 0}
	cfg.LoopMode = LoopFull
	cfg.LoopStart = PhaseAttack
	cfg.LoopEnd = PhaseDecay
	e.SetConfig(cfg)
	e.Trigger(1, 60)

	out := runSamples(e, 500)
	if e.LoopCount() < 2 {
		t.Fatalf("full loop never wrapped, count %d", e.LoopCount())
	}
	if p := e.CurrentPhase(); p != PhaseAttack && p != PhaseDecay {
		t.Fatalf("full loop left its region, phase %v", p)
	}
	// The jump back to the loop start resumes from the loop end's target, so
	// no sample-to-sample step may exceed the steepest stage slope.
	maxSlope := 1.0 / 10
	for i := 1; i < len(out); i++ {
		if d := math.Abs(out[i] - out[i-1]); d > maxSlope+1e-9 {
			t.Fatalf("discontinuity %f at loop wrap, sample %d", d, i)
		}
	}

	e.Release()
	runSamples(e, 60)
	if !e.IsFinished() {
		t.Fatalf("looping envelope did not release")
	}
}

func TestCycleTriggerLeavesSustain(t *testing.T) {
	e := New(1000)
	cfg := DefaultConfig()
	cfg.Trigger = TriggerCycle
	cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 1}
	cfg.Decay = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.5}
	cfg.Sustain = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0.5}
	cfg.Release = StageConfig{Curve: CurveLinear, Rate: 0.05, Target: 0}
	e.SetConfig(cfg)
	e.Trigger(1, 60)

	runSamples(e, 100)
	if e.CurrentPhase() != PhaseSustain {
		t.Fatalf("expected sustain, got %v", e.CurrentPhase())
	}
	e.Trigger(1, 60)
	if e.CurrentPhase() != PhaseRelease {
		t.Fatalf("cycle trigger from unlooped sustain should enter release, got %v", e.CurrentPhase())
	}
	runSamples(e, 60)
	if !e.IsFinished() {
		t.Fatalf("release after cycle trigger did not finish")
	}
}

func TestKeyTrackingScalesDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.1, Target: 1}
	cfg.KeyTracking = 1
	cfg.KeyCenter = 60

	duration := func(note int) int {
		e := New(1000)
		e.SetConfig(cfg)
		e.Trigger(1, note)
		for i := 0; i < 10000; i++ {
			if e.Next() >= 1-1e-9 {
				return i
			}
		}
		t.Fatalf("attack never completed for note %d", note)
		return -1
	}

	// Duration scales by 2^(factor*(note-center)/12): one octave above the
	// center doubles it, one below halves it.
	low, center, high := duration(48), duration(60), duration(72)
	if !(low < center && center < high) {
		t.Fatalf("key tracking ordering wrong: note48=%d note60=%d note72=%d", low, center, high)
	}
	if math.Abs(float64(high)-float64(center)*2) > 3 {
		t.Fatalf("octave above center should double duration: center=%d high=%d", center, high)
	}
	if math.Abs(float64(low)-float64(center)/2) > 3 {
		t.Fatalf("octave below center should halve duration: center=%d low=%d", center, low)
	}
}

func TestVelocitySensitivity(t *testing.T) {
	peak := func(sens, vel float64) float64 {
		e := New(1000)
		cfg := DefaultConfig()
		cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 1}
		cfg.VelocitySensitivity = sens
		e.SetConfig(cfg)
		e.Trigger(vel, 60)
		var p float64
		for i := 0; i < 20; i++ {
			if v := e.Next(); v > p {
				p = v
			}
		}
		return p
	}

	if p := peak(0, 0.25); math.Abs(p-1) > 1e-9 {
		t.Fatalf("sensitivity 0 should ignore velocity, peak %f", p)
	}
	if p := peak(1, 0.25); math.Abs(p-0.25) > 1e-9 {
		t.Fatalf("full sensitivity with linear curve should scale by velocity, peak %f", p)
	}
	if p := peak(0.5, 0.5); math.Abs(p-0.75) > 1e-9 {
		t.Fatalf("half sensitivity at half velocity should give 0.75, peak %f", p)
	}
}

func TestDelayStageSilence(t *testing.T) {
	e := New(1000)
	cfg := DefaultConfig()
	cfg.Delay = StageConfig{Curve: CurveLinear, Rate: 0.05, Target: 0}
	e.SetConfig(cfg)
	e.Trigger(1, 60)

	out := runSamples(e, 49)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("delay stage output %f at sample %d", v, i)
		}
	}
	runSamples(e, 30)
	if e.CurrentLevel() == 0 {
		t.Fatalf("attack never started after delay")
	}
}

func TestConfigClamping(t *testing.T) {
	cfg := Config{
		Attack:              StageConfig{Rate: 100, Target: 3},
		Decay:               StageConfig{Rate: -1, Target: -2},
		Sustain:             StageConfig{Rate: 0.5, Target: 0.5},
		Release:             StageConfig{Rate: 0, Target: 0},
		VelocitySensitivity: 7,
	}
	c := cfg.Clamped()
	if c.Attack.Rate != 10 || c.Attack.Target != 1 {
		t.Fatalf("attack not clamped: %+v", c.Attack)
	}
	if c.Decay.Rate != 0.001 || c.Decay.Target != 0 {
		t.Fatalf("decay not clamped: %+v", c.Decay)
	}
	if c.Release.Rate != 0.001 {
		t.Fatalf("release rate not clamped up: %f", c.Release.Rate)
	}
	if c.VelocitySensitivity != 1 {
		t.Fatalf("velocity sensitivity not clamped: %f", c.VelocitySensitivity)
	}
	// Delay rate 0 is the documented off switch and must survive clamping.
	if c.Delay.Rate != 0 {
		t.Fatalf("delay off switch lost: %f", c.Delay.Rate)
	}
}

func TestCurveEndpoints(t *testing.T) {
	curves := []struct {
		name string
		c    Curve
	}{
		{"linear", CurveLinear},
		{"exponential", CurveExponential},
		{"logarithmic", CurveLogarithmic},
		{"sine", CurveSine},
		{"power", CurvePower},
		{"snap", CurveSnap},
	}
	for _, tc := range curves {
		t.Run(tc.name, func(t *testing.T) {
			if v := applyCurve(tc.c, 0, 2); math.Abs(v) > 1e-12 {
				t.Fatalf("curve(0) = %f, want 0", v)
			}
			if v := applyCurve(tc.c, 1, 2); math.Abs(v-1) > 1e-12 {
				t.Fatalf("curve(1) = %f, want 1", v)
			}
			for p := 0.0; p <= 1; p += 0.01 {
				v := applyCurve(tc.c, p, 2)
				if v < 0 || v > 1 {
					t.Fatalf("curve(%f) = %f out of range", p, v)
				}
			}
		})
	}
}

func TestDenormalSnap(t *testing.T) {
	e := New(1000)
	cfg := DefaultConfig()
	cfg.Attack = StageConfig{Curve: CurveLinear, Rate: 0.001, Target: 1}
	cfg.Decay = StageConfig{Curve: CurveExponential, Rate: 0.01, Target: 0}
	cfg.Sustain = StageConfig{Curve: CurveLinear, Rate: 0.01, Target: 0}
	e.SetConfig(cfg)
	e.Trigger(1, 60)

	for i := 0; i < 200; i++ {
		v := e.Next()
		if v != 0 && math.Abs(v) < 1e-10 {
			t.Fatalf("denormal-range level %g not snapped at sample %d", v, i)
		}
	}
}
