package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// Waveform selects an AnalogOscillator's shape.
type Waveform int

const (
	WaveformSine Waveform = iota
	WaveformTriangle
	WaveformSaw
	WaveformSquare
	WaveformCustom
)

func (w Waveform) String() string {
	switch w {
	case WaveformSine:
		return "Sine"
	case WaveformTriangle:
		return "Triangle"
	case WaveformSaw:
		return "Saw"
	case WaveformSquare:
		return "Square"
	case WaveformCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// AnalogOscillatorParams is the user-visible parameter struct for
// AnalogOscillator, atomically swapped in by UpdateParameters. Detune
// is expressed as octaves/semitones/cents that combine into a single
// ratio, matching how a panel would expose coarse and fine tuning as
// separate knobs.
type AnalogOscillatorParams struct {
	Waveform        Waveform
	DetuneOctaves   float32
	DetuneSemitones float32
	DetuneCents     float32
	PulseWidth      float32 // 0..1, square wave duty cycle
	HardSync        bool
	UnisonVoices    int     // 1..8 detuned copies stacked and averaged
	Spread          float32 // cents, total detune spread across unison voices
	FeedbackAmount  float32 // 0..1, self-feedback folded into phase
	Gain            float32 // 0..2
	AntiAlias       bool
	Active          bool
}

// DefaultAnalogOscillatorParams returns the oscillator's initial
// parameter values: sine, no detune, one unison voice, square duty
// 0.5, unity gain, anti-aliasing on, active.
func DefaultAnalogOscillatorParams() AnalogOscillatorParams {
	return AnalogOscillatorParams{
		Waveform:     WaveformSine,
		PulseWidth:   0.5,
		UnisonVoices: 1,
		Gain:         1.0,
		AntiAlias:    true,
		Active:       true,
	}
}

func (p AnalogOscillatorParams) clamped() AnalogOscillatorParams {
	p.DetuneOctaves = clampF32(p.DetuneOctaves, -4, 4)
	p.DetuneSemitones = clampF32(p.DetuneSemitones, -12, 12)
	p.DetuneCents = clampF32(p.DetuneCents, -100, 100)
	p.PulseWidth = clampF32(p.PulseWidth, 0.05, 0.95)
	if p.UnisonVoices < 1 {
		p.UnisonVoices = 1
	}
	if p.UnisonVoices > 8 {
		p.UnisonVoices = 8
	}
	p.Spread = clampF32(p.Spread, 0, 100)
	p.FeedbackAmount = clampF32(p.FeedbackAmount, 0, 1)
	p.Gain = clampF32(p.Gain, 0, 2)
	return p
}

// detuneCents folds the three tuning fields into one cents value.
func (p AnalogOscillatorParams) detuneCents() float64 {
	return float64(p.DetuneOctaves)*1200 + float64(p.DetuneSemitones)*100 + float64(p.DetuneCents)
}

// unisonOffsetCents returns the detune offset, in cents, for unison
// voice index k of voiceCount, evenly spread across [-spread/2,
// spread/2].
func unisonOffsetCents(k, voiceCount int, spreadCents float32) float64 {
	if voiceCount <= 1 {
		return 0
	}
	step := float64(spreadCents) / float64(voiceCount-1)
	center := float64(voiceCount-1) / 2.0
	return (float64(k) - center) * step
}

// AnalogOscillator is a phase-accumulator oscillator producing
// sine/triangle/saw/square waveforms, anti-aliased with PolyBLEP for
// the discontinuous shapes, with up to 8-voice unison detune stacking,
// hard sync, and self-feedback. It reads Frequency (defaulting to the
// voice's GlobalFrequency), FrequencyMod (ratio, 1.0 = unchanged),
// PhaseMod (also the hard-sync trigger: a 1→0 transition resets phase
// when HardSync is set), DetuneMod (cents), GainMod, FeedbackMod, and
// writes AudioOutput0.
type AnalogOscillator struct {
	sampleRate float64
	params     AnalogOscillatorParams

	unisonPhases []float64
	lastPhaseMod float64
	lastOutput   float64
}

func init() {
	Register("AnalogOscillator", func(sampleRate float64) Node {
		return NewAnalogOscillator(sampleRate)
	})
}

// NewAnalogOscillator creates an oscillator at the given sample rate
// with default parameters.
func NewAnalogOscillator(sampleRate float64) *AnalogOscillator {
	return &AnalogOscillator{sampleRate: sampleRate, params: DefaultAnalogOscillatorParams()}
}

func (o *AnalogOscillator) Kind() string { return "AnalogOscillator" }

func (o *AnalogOscillator) Ports() PortSet {
	return PortSet{
		Reads: []port.ID{
			port.Frequency, port.FrequencyMod, port.PhaseMod,
			port.DetuneMod, port.GainMod, port.FeedbackMod,
		},
		Writes: []port.ID{port.AudioOutput0},
	}
}

func (o *AnalogOscillator) UpdateParameters(params any) {
	if p, ok := params.(AnalogOscillatorParams); ok {
		o.params = p.clamped()
	}
}

func (o *AnalogOscillator) Reset() {
	for i := range o.unisonPhases {
		o.unisonPhases[i] = 0
	}
	o.lastPhaseMod = 0
	o.lastOutput = 0
}

func (o *AnalogOscillator) resizeUnison(n int) {
	grown := make([]float64, n)
	copy(grown, o.unisonPhases)
	o.unisonPhases = grown
}

func (o *AnalogOscillator) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	out := outputs[port.AudioOutput0]
	if !o.params.Active {
		for i := range out {
			out[i] = 0
		}
		return
	}

	freqIn := inputs[port.Frequency]
	freqMod := inputs[port.FrequencyMod]
	phaseMod := inputs[port.PhaseMod]
	detuneMod := inputs[port.DetuneMod]
	gainMod := inputs[port.GainMod]
	feedbackMod := inputs[port.FeedbackMod]

	voices := o.params.UnisonVoices
	if voices < 1 {
		voices = 1
	}
	if len(o.unisonPhases) != voices {
		o.resizeUnison(voices)
	}

	baseDetuneCents := o.params.detuneCents()

	for i := range out {
		baseFreq := float64(ctx.Frequency)
		if freqIn != nil {
			baseFreq = float64(freqIn[i])
		}
		if freqMod != nil {
			baseFreq *= float64(freqMod[i])
		}

		detuneCents := baseDetuneCents
		if detuneMod != nil {
			detuneCents += float64(detuneMod[i])
		}

		pm := 0.0
		if phaseMod != nil {
			pm = float64(phaseMod[i])
		}
		if o.params.HardSync && o.lastPhaseMod >= 1.0 && pm < 1.0 {
			for k := range o.unisonPhases {
				o.unisonPhases[k] = 0
			}
		}
		o.lastPhaseMod = pm

		fb := o.lastOutput * float64(o.params.FeedbackAmount)
		if feedbackMod != nil {
			fb += float64(feedbackMod[i])
		}

		var mix float64
		for k := 0; k < voices; k++ {
			ratio := math.Pow(2.0, (detuneCents+unisonOffsetCents(k, voices, o.params.Spread))/1200.0)
			freq := baseFreq * ratio
			if freq < 0 {
				freq = 0
			}

			samplePhase := o.unisonPhases[k] + pm + fb
			samplePhase -= math.Floor(samplePhase)

			phaseInc := freq / o.sampleRate
			var sample float64
			switch {
			case o.params.AntiAlias && o.params.Waveform == WaveformSaw:
				sample = polyBLEPSaw(samplePhase, phaseInc)
			case o.params.AntiAlias && o.params.Waveform == WaveformSquare:
				sample = polyBLEPSquare(samplePhase, phaseInc, float64(o.params.PulseWidth))
			default:
				sample = waveformSample(samplePhase, o.params.Waveform, float64(o.params.PulseWidth))
			}
			mix += sample

			o.unisonPhases[k] += phaseInc
			if o.unisonPhases[k] >= 1.0 {
				o.unisonPhases[k] -= math.Floor(o.unisonPhases[k])
			}
		}
		mix /= float64(voices)
		o.lastOutput = mix

		gain := o.params.Gain
		if gainMod != nil {
			gain *= gainMod[i]
		}

		out[i] = sanitize(float32(mix) * gain)
	}
}

func waveformSample(phase float64, waveform Waveform, pulseWidth float64) float64 {
	switch waveform {
	case WaveformSine:
		return math.Sin(2.0 * math.Pi * phase)
	case WaveformSaw:
		return 2.0*phase - 1.0
	case WaveformSquare:
		if phase < pulseWidth {
			return 1.0
		}
		return -1.0
	case WaveformTriangle:
		if phase < 0.5 {
			return 4.0*phase - 1.0
		}
		return -4.0*phase + 3.0
	default:
		return math.Sin(2.0 * math.Pi * phase)
	}
}

func polyBLEPSaw(phase, phaseIncrement float64) float64 {
	value := 2.0*phase - 1.0
	if phaseIncrement <= 0 {
		return value
	}
	if phase < phaseIncrement {
		t := phase / phaseIncrement
		value -= 2.0 * t * t * (1.0 - 0.5*t)
	} else if phase > 1.0-phaseIncrement {
		t := (phase - 1.0) / phaseIncrement
		value -= 2.0 * t * t * (1.0 + 0.5*t)
	}
	return value
}

func polyBLEPSquare(phase, phaseIncrement, pulseWidth float64) float64 {
	value := 1.0
	if phase >= pulseWidth {
		value = -1.0
	}
	if phaseIncrement <= 0 {
		return value
	}

	if phase < phaseIncrement {
		t := phase / phaseIncrement
		value += 2.0 * t * t * (1.0 - 0.5*t)
	} else if phase > 1.0-phaseIncrement {
		t := (phase - 1.0) / phaseIncrement
		value += 2.0 * t * t * (1.0 + 0.5*t)
	}

	if phase > pulseWidth-phaseIncrement && phase < pulseWidth+phaseIncrement {
		t := (phase - pulseWidth) / phaseIncrement
		if t < 0 {
			value -= 2.0 * t * t * (1.0 + 0.5*t)
		} else {
			value -= 2.0 * t * t * (1.0 - 0.5*t)
		}
	}

	return value
}
