package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// FilterType selects FilterCollection's topology.
type FilterType int

const (
	FilterLowpass FilterType = iota
	FilterHighpass
	FilterBandpass
	FilterNotch
	FilterPeaking
	FilterLowShelf
	FilterHighShelf
	FilterLadder
	FilterComb
)

func (t FilterType) String() string {
	switch t {
	case FilterLowpass:
		return "Lowpass"
	case FilterHighpass:
		return "Highpass"
	case FilterBandpass:
		return "Bandpass"
	case FilterNotch:
		return "Notch"
	case FilterPeaking:
		return "Peaking"
	case FilterLowShelf:
		return "LowShelf"
	case FilterHighShelf:
		return "HighShelf"
	case FilterLadder:
		return "Ladder"
	case FilterComb:
		return "Comb"
	default:
		return "Unknown"
	}
}

// FilterSlope selects the steepness of the LP/HP/BP/Notch
// topologies: one ZDF SVF stage (12 dB/oct) or two cascaded stages
// (24 dB/oct). Peaking/shelf/Ladder/Comb ignore slope.
type FilterSlope int

const (
	Slope12dB FilterSlope = iota
	Slope24dB
)

// FilterCollectionParams is the user-visible parameter struct for
// FilterCollection.
type FilterCollectionParams struct {
	Type  FilterType
	Slope FilterSlope

	Cutoff     float32 // Hz
	Resonance  float32 // Q, 0.5..20
	GainDB     float32 // peaking/shelf boost or cut, dB
	KeyTrack   float32 // 0..1, weight mixing GlobalFrequency into cutoff
	CombFreq   float32 // Hz, comb filter's fundamental
	CombDamp   float32 // 0..1, comb feedback lowpass damping
	OutputGain float32
	Active     bool
}

// DefaultFilterCollectionParams returns a 12dB/oct lowpass at 2 kHz
// with Q 0.707 and unity gain, active.
func DefaultFilterCollectionParams() FilterCollectionParams {
	return FilterCollectionParams{
		Type:       FilterLowpass,
		Slope:      Slope12dB,
		Cutoff:     2000,
		Resonance:  0.707,
		GainDB:     0,
		KeyTrack:   0,
		CombFreq:   220,
		CombDamp:   0.2,
		OutputGain: 1,
		Active:     true,
	}
}

func (p FilterCollectionParams) clamped(sampleRate float64) FilterCollectionParams {
	nyquist := float32(sampleRate * 0.45)
	p.Cutoff = clampF32(p.Cutoff, 20, nyquist)
	p.Resonance = clampF32(p.Resonance, 0.5, 20)
	p.GainDB = clampF32(p.GainDB, -24, 24)
	p.KeyTrack = clampF32(p.KeyTrack, 0, 1)
	p.CombFreq = clampF32(p.CombFreq, 20, nyquist)
	p.CombDamp = clampF32(p.CombDamp, 0, 0.99)
	p.OutputGain = clampF32(p.OutputGain, 0, 4)
	return p
}

// zdfSVFStage is one zero-delay-feedback state variable filter stage,
// producing lowpass/bandpass/highpass/notch simultaneously.
type zdfSVFStage struct {
	ic1eq, ic2eq float64
}

func (s *zdfSVFStage) reset() {
	s.ic1eq = 0
	s.ic2eq = 0
}

func (s *zdfSVFStage) process(input, g, k float64) (lp, bp, hp, notch float64) {
	a1 := 1.0 / (1.0 + g*(g+k))
	a2 := g * a1
	a3 := g * a2

	v3 := input - s.ic2eq
	v1 := a1*s.ic1eq + a2*v3
	v2 := s.ic2eq + a2*s.ic1eq + a3*v3

	s.ic1eq = 2.0*v1 - s.ic1eq
	s.ic2eq = 2.0*v2 - s.ic2eq

	return v2, v1, input - k*v1 - v2, input - k*v1
}

// FilterCollection implements LP/HP/BP/Notch/Peaking/Shelf/Ladder/Comb
// over a shared zero-delay-feedback SVF core, with an optional second
// cascaded stage for a 24dB/oct slope. It reads AudioInput0, CutoffMod,
// ResonanceMod, and GlobalFrequency (for key tracking), and writes
// AudioOutput0.
type FilterCollection struct {
	sampleRate float64
	params     FilterCollectionParams

	stage1, stage2 zdfSVFStage

	combLine []float64
	combPos  int
	combLast float64
}

func init() {
	Register("FilterCollection", func(sampleRate float64) Node {
		return NewFilterCollection(sampleRate)
	})
}

// NewFilterCollection creates a filter at the given sample rate with
// default parameters.
func NewFilterCollection(sampleRate float64) *FilterCollection {
	f := &FilterCollection{sampleRate: sampleRate, params: DefaultFilterCollectionParams()}
	f.resizeCombLine()
	return f
}

func (f *FilterCollection) Kind() string { return "FilterCollection" }

func (f *FilterCollection) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.AudioInput0, port.CutoffMod, port.ResonanceMod, port.GlobalFrequency},
		Writes: []port.ID{port.AudioOutput0},
	}
}

func (f *FilterCollection) UpdateParameters(params any) {
	if p, ok := params.(FilterCollectionParams); ok {
		f.params = p.clamped(f.sampleRate)
		if p.Type == FilterComb {
			f.resizeCombLine()
		}
	}
}

func (f *FilterCollection) Reset() {
	f.stage1.reset()
	f.stage2.reset()
	for i := range f.combLine {
		f.combLine[i] = 0
	}
	f.combPos = 0
	f.combLast = 0
}

func (f *FilterCollection) resizeCombLine() {
	minFreq := 20.0
	maxSamples := int(f.sampleRate/minFreq) + 2
	if len(f.combLine) < maxSamples {
		f.combLine = make([]float64, maxSamples)
	}
}

func coefficients(sampleRate, cutoff, resonance float64) (g, k float64) {
	w := cutoff / sampleRate
	if w > 0.49 {
		w = 0.49
	}
	g = math.Tan(math.Pi * w)
	k = 1.0 / resonance
	return g, k
}

func (f *FilterCollection) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	out := outputs[port.AudioOutput0]
	if !f.params.Active {
		for i := range out {
			out[i] = 0
		}
		return
	}

	in := inputs[port.AudioInput0]
	cutoffMod := inputs[port.CutoffMod]
	resonanceMod := inputs[port.ResonanceMod]

	keyTrack := float64(f.params.KeyTrack) * float64(ctx.Frequency-440)

	for i := range out {
		var sample float64
		if in != nil {
			sample = float64(in[i])
		}

		cutoff := float64(f.params.Cutoff) + keyTrack
		if cutoffMod != nil {
			cutoff += float64(cutoffMod[i])
		}
		cutoff = clampF64(cutoff, 20, f.sampleRate*0.45)

		resonance := float64(f.params.Resonance)
		if resonanceMod != nil {
			resonance += float64(resonanceMod[i])
		}
		resonance = clampF64(resonance, 0.5, 20)

		var result float64
		switch f.params.Type {
		case FilterComb:
			result = f.processComb(sample, cutoff)
		case FilterLadder:
			result = f.processLadder(sample, cutoff, resonance)
		case FilterPeaking, FilterLowShelf, FilterHighShelf:
			result = f.processShelfOrPeak(sample, cutoff, resonance)
		default:
			result = f.processStandard(sample, cutoff, resonance)
		}

		if math.Abs(result) > 10.0 {
			result = 10.0 * math.Tanh(result/10.0)
		}

		out[i] = sanitize(float32(result) * f.params.OutputGain)
	}
}

func (f *FilterCollection) processStandard(sample, cutoff, resonance float64) float64 {
	g, k := coefficients(f.sampleRate, cutoff, resonance)
	lp, bp, hp, notch := f.stage1.process(sample, g, k)

	selected := selectMode(f.params.Type, lp, bp, hp, notch)

	if f.params.Slope == Slope24dB {
		lp2, bp2, hp2, notch2 := f.stage2.process(selected, g, k)
		selected = selectMode(f.params.Type, lp2, bp2, hp2, notch2)
	}
	return selected
}

func selectMode(t FilterType, lp, bp, hp, notch float64) float64 {
	switch t {
	case FilterHighpass:
		return hp
	case FilterBandpass:
		return bp
	case FilterNotch:
		return notch
	default:
		return lp
	}
}

func (f *FilterCollection) processShelfOrPeak(sample, cutoff, resonance float64) float64 {
	g, k := coefficients(f.sampleRate, cutoff, resonance)
	lp, bp, hp, _ := f.stage1.process(sample, g, k)
	gainLinear := math.Pow(10, float64(f.params.GainDB)/20.0)

	switch f.params.Type {
	case FilterLowShelf:
		return lp*gainLinear + (sample - lp)
	case FilterHighShelf:
		return hp*gainLinear + (sample - hp)
	default: // FilterPeaking
		return sample + bp*k*(gainLinear-1.0)
	}
}

// processLadder emulates a Moog-style 4-pole ladder by cascading the
// SVF's lowpass output through itself, feeding a resonance-scaled
// negative feedback of the final stage back to the input.
func (f *FilterCollection) processLadder(sample, cutoff, resonance float64) float64 {
	g, _ := coefficients(f.sampleRate, cutoff, 0.707)
	feedbackAmount := clampF64((resonance-0.5)/19.5, 0, 0.98) * 4.0

	driven := sample - feedbackAmount*f.combLast
	lp1, _, _, _ := f.stage1.process(driven, g, 0.707)
	lp2, _, _, _ := f.stage2.process(lp1, g, 0.707)
	f.combLast = lp2
	return lp2
}

// processComb runs a feedback comb filter with a one-pole lowpass in
// the feedback path (damping), tuned to CombFreq's period.
func (f *FilterCollection) processComb(sample, cutoff float64) float64 {
	if len(f.combLine) == 0 {
		return sample
	}
	period := f.sampleRate / float64(f.params.CombFreq)
	delaySamples := int(period)
	if delaySamples < 1 {
		delaySamples = 1
	}
	if delaySamples >= len(f.combLine) {
		delaySamples = len(f.combLine) - 1
	}

	readPos := f.combPos - delaySamples
	for readPos < 0 {
		readPos += len(f.combLine)
	}
	delayed := f.combLine[readPos]

	damp := float64(f.params.CombDamp)
	f.combLast = delayed*(1-damp) + f.combLast*damp

	output := sample + f.combLast*0.6
	f.combLine[f.combPos] = output

	f.combPos++
	if f.combPos >= len(f.combLine) {
		f.combPos = 0
	}
	return output
}
