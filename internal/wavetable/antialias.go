package wavetable

import "math"

// Config controls an Interpolator.
type Config struct {
	Kind    Kind
	Tension float64 // cardinal tension; 0.5 reproduces Catmull-Rom

	// AntiAlias enables the oversample-filter-decimate path for
	// fundamentals above Threshold*Nyquist.
	AntiAlias  bool
	Threshold  float64 // fraction of Nyquist, default 0.3
	Oversample int     // integer factor, clamped to [2, 4]
	FIROrder   int     // windowed-sinc tap count - 1, default 32
	FIRCutoff  float64 // normalized cutoff in the oversampled domain

	// CacheSize bounds the lookup cache; 0 disables caching.
	CacheSize int
}

// DefaultConfig returns a Catmull-Rom interpolator with anti-aliasing on.
func DefaultConfig() Config {
	return Config{
		Kind:       CatmullRom,
		Tension:    0.5,
		AntiAlias:  true,
		Threshold:  0.3,
		Oversample: 2,
		FIROrder:   32,
	}
}

type cacheKey struct {
	pos  uint64
	kind Kind
}

// Interpolator performs table lookups with a selectable kernel and an
// optional anti-aliased path. The FIR filter carries state across calls, so
// one Interpolator belongs to one voice stream.
type Interpolator struct {
	cfg        Config
	sampleRate float64
	nyquist    float64

	taps    []float64
	hist    []float64
	histPos int

	oversample int // effective factor, adjustable under CPU pressure

	cache map[cacheKey]float64
}

// NewInterpolator builds an interpolator for the given sample rate.
func NewInterpolator(sampleRate float64, cfg Config) *Interpolator {
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		cfg.Threshold = 0.3
	}
	if cfg.Oversample < 2 {
		cfg.Oversample = 2
	}
	if cfg.Oversample > 4 {
		cfg.Oversample = 4
	}
	if cfg.FIROrder < 4 {
		cfg.FIROrder = 32
	}
	if cfg.FIRCutoff <= 0 || cfg.FIRCutoff >= 0.5 {
		// Cut at the original Nyquist expressed in the oversampled domain.
		cfg.FIRCutoff = 0.5 / float64(cfg.Oversample)
	}
	if cfg.Tension == 0 {
		cfg.Tension = 0.5
	}
	in := &Interpolator{
		cfg:        cfg,
		sampleRate: sampleRate,
		nyquist:    sampleRate / 2,
		oversample: cfg.Oversample,
	}
	in.taps = designLowpass(cfg.FIROrder, cfg.FIRCutoff)
	in.hist = make([]float64, len(in.taps))
	if cfg.CacheSize > 0 {
		in.cache = make(map[cacheKey]float64, cfg.CacheSize)
	}
	return in
}

// designLowpass builds Hamming-windowed sinc taps with unit DC gain.
func designLowpass(order int, cutoff float64) []float64 {
	n := order + 1
	taps := make([]float64, n)
	mid := float64(order) / 2
	var sum float64
	for i := range taps {
		x := float64(i) - mid
		var s float64
		if x == 0 {
			s = 2 * cutoff
		} else {
			s = math.Sin(2*math.Pi*cutoff*x) / (math.Pi * x)
		}
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(order))
		taps[i] = s * w
		sum += taps[i]
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}

// SetOversample adjusts the effective oversampling factor at run time,
// clamped to [1, configured factor]. A factor of 1 disables the AA path.
// Used by the engine's CPU-budget collaborator.
func (in *Interpolator) SetOversample(n int) {
	if n < 1 {
		n = 1
	}
	if n > in.cfg.Oversample {
		n = in.cfg.Oversample
	}
	in.oversample = n
}

// Sample is the stateless base lookup at (framePos, samplePos).
func (in *Interpolator) Sample(t *Table, framePos, samplePos float64) float64 {
	if in.cache != nil {
		key := in.key(framePos, samplePos)
		if v, ok := in.cache[key]; ok {
			return v
		}
		v := interpolate(t, in.cfg.Kind, in.cfg.Tension, framePos, samplePos)
		in.cacheStore(key, v)
		return v
	}
	return interpolate(t, in.cfg.Kind, in.cfg.Tension, framePos, samplePos)
}

// SampleAA reads one output sample for a tone at the given fundamental
// frequency, where step is the per-sample advance in table samples. Below
// the threshold (or with anti-aliasing off) this is exactly Sample; above
// it, the base interpolation is evaluated at sub-sample offsets, low-pass
// filtered, and decimated by arithmetic mean.
func (in *Interpolator) SampleAA(t *Table, framePos, samplePos, fundamental, step float64) float64 {
	n := in.oversample
	if !in.cfg.AntiAlias || n < 2 || fundamental <= in.cfg.Threshold*in.nyquist {
		return in.Sample(t, framePos, samplePos)
	}

	var acc float64
	sub := step / float64(n)
	for k := 0; k < n; k++ {
		x := interpolate(t, in.cfg.Kind, in.cfg.Tension, framePos, samplePos+sub*float64(k))
		acc += in.filter(x)
	}
	return acc / float64(n)
}

// filter pushes one sample through the windowed-sinc FIR, returning the
// filtered value.
func (in *Interpolator) filter(x float64) float64 {
	in.hist[in.histPos] = x
	var y float64
	idx := in.histPos
	for _, tap := range in.taps {
		y += tap * in.hist[idx]
		idx--
		if idx < 0 {
			idx = len(in.hist) - 1
		}
	}
	in.histPos++
	if in.histPos >= len(in.hist) {
		in.histPos = 0
	}
	return y
}

// ResetFilter clears FIR history, used when a voice restarts.
func (in *Interpolator) ResetFilter() {
	for i := range in.hist {
		in.hist[i] = 0
	}
	in.histPos = 0
}

func (in *Interpolator) key(framePos, samplePos float64) cacheKey {
	qf := uint64(int64(framePos*1024)) & 0xFFFFFFFF
	qs := uint64(int64(samplePos*1024)) & 0xFFFFFFFF
	return cacheKey{pos: qf<<32 | qs, kind: in.cfg.Kind}
}

// cacheStore inserts with unordered eviction once the bound is reached.
func (in *Interpolator) cacheStore(key cacheKey, v float64) {
	if len(in.cache) >= in.cfg.CacheSize {
		for k := range in.cache {
			delete(in.cache, k)
			break
		}
	}
	in.cache[key] = v
}
