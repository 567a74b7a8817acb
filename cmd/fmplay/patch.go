package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	fmvoice "github.com/cbegin/fmvoice-go"
)

// patchFile is the YAML preset format understood by the cmd binaries. It is a
// host-side convenience only; the engines themselves never read files.
type patchFile struct {
	Engine    string  `yaml:"engine"` // fm | wavetable
	Polyphony int     `yaml:"polyphony"`
	Algorithm int     `yaml:"algorithm"`
	Volume    float64 `yaml:"volume"`
	Tuning    float64 `yaml:"tuning"`

	Operators []operatorPatch `yaml:"operators"`
	Envelope  *envelopePatch  `yaml:"envelope"`

	FramePosition float64 `yaml:"frame_position"`

	BendRange    float64 `yaml:"bend_range"`
	VibratoRate  float64 `yaml:"vibrato_rate"`
	VibratoDepth float64 `yaml:"vibrato_depth"`
}

type operatorPatch struct {
	Ratio    float64 `yaml:"ratio"`
	Level    float64 `yaml:"level"`
	ModIndex float64 `yaml:"mod_index"`
	Feedback float64 `yaml:"feedback"`
}

type envelopePatch struct {
	Delay   *stagePatch `yaml:"delay"`
	Attack  *stagePatch `yaml:"attack"`
	Decay   *stagePatch `yaml:"decay"`
	Sustain *stagePatch `yaml:"sustain"`
	Release *stagePatch `yaml:"release"`

	VelocitySensitivity float64 `yaml:"velocity_sensitivity"`
	KeyTracking         float64 `yaml:"key_tracking"`
}

type stagePatch struct {
	Rate   float64 `yaml:"rate"`
	Target float64 `yaml:"target"`
	Curve  string  `yaml:"curve"` // linear|exponential|logarithmic|sine|power|snap
	Power  float64 `yaml:"power"`
}

func loadPatch(path string) (*patchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p patchFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse patch %s: %w", path, err)
	}
	return &p, nil
}

// applyFM folds the patch into FM params, leaving unset fields at their
// defaults.
func (p *patchFile) applyFM(params *fmvoice.FMParams) error {
	if p.Polyphony > 0 {
		params.Polyphony = p.Polyphony
	}
	if p.Algorithm > 0 {
		params.AlgorithmID = p.Algorithm
	}
	if p.Volume > 0 {
		params.MasterVolume = p.Volume
	}
	if p.Tuning > 0 {
		params.Tuning = p.Tuning
	}
	if p.BendRange > 0 {
		params.BendRangeSemitones = p.BendRange
	}
	if p.VibratoRate > 0 {
		params.VibratoRateHz = p.VibratoRate
	}
	if p.VibratoDepth > 0 {
		params.VibratoDepthSemitones = p.VibratoDepth
	}
	if len(p.Operators) > len(params.Ratios) {
		return fmt.Errorf("patch has %d operators, engine supports %d", len(p.Operators), len(params.Ratios))
	}
	for i, op := range p.Operators {
		params.Ratios[i] = op.Ratio
		params.Levels[i] = op.Level
		params.ModIndexes[i] = op.ModIndex
		params.Feedbacks[i] = op.Feedback
	}
	if p.Envelope != nil {
		if err := p.Envelope.apply(&params.Envelope); err != nil {
			return err
		}
	}
	return nil
}

func (p *patchFile) applyWavetable(params *fmvoice.WavetableParams) error {
	if p.Polyphony > 0 {
		params.Polyphony = p.Polyphony
	}
	if p.Volume > 0 {
		params.MasterVolume = p.Volume
	}
	if p.Tuning > 0 {
		params.Tuning = p.Tuning
	}
	if p.BendRange > 0 {
		params.BendRangeSemitones = p.BendRange
	}
	if p.VibratoRate > 0 {
		params.VibratoRateHz = p.VibratoRate
	}
	if p.VibratoDepth > 0 {
		params.VibratoDepthSemitones = p.VibratoDepth
	}
	params.FramePosition = p.FramePosition
	if p.Envelope != nil {
		if err := p.Envelope.apply(&params.Envelope); err != nil {
			return err
		}
	}
	return nil
}

func (e *envelopePatch) apply(cfg *fmvoice.EnvelopeConfig) error {
	stages := []struct {
		src *stagePatch
		dst *fmvoice.EnvelopeStage
	}{
		{e.Delay, &cfg.Delay},
		{e.Attack, &cfg.Attack},
		{e.Decay, &cfg.Decay},
		{e.Sustain, &cfg.Sustain},
		{e.Release, &cfg.Release},
	}
	for _, s := range stages {
		if s.src == nil {
			continue
		}
		curve, err := parseCurve(s.src.Curve)
		if err != nil {
			return err
		}
		s.dst.Rate = s.src.Rate
		s.dst.Target = s.src.Target
		s.dst.Curve = curve
		s.dst.Power = s.src.Power
	}
	cfg.VelocitySensitivity = e.VelocitySensitivity
	cfg.KeyTracking = e.KeyTracking
	return nil
}

func parseCurve(name string) (fmvoice.EnvelopeCurve, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return fmvoice.CurveLinear, nil
	case "exponential", "exp":
		return fmvoice.CurveExponential, nil
	case "logarithmic", "log":
		return fmvoice.CurveLogarithmic, nil
	case "sine":
		return fmvoice.CurveSine, nil
	case "power":
		return fmvoice.CurvePower, nil
	case "snap":
		return fmvoice.CurveSnap, nil
	default:
		return fmvoice.CurveLinear, fmt.Errorf("unknown envelope curve %q", name)
	}
}
