package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// WavetableOscillatorParams is the user-visible parameter struct for
// WavetableOscillator: AnalogOscillator's tuning/unison/sync/feedback
// surface, plus WaveIndex selecting a morph position across the
// loaded table.
type WavetableOscillatorParams struct {
	DetuneOctaves   float32
	DetuneSemitones float32
	DetuneCents     float32
	HardSync        bool
	UnisonVoices    int     // 1..8 detuned copies stacked and averaged
	Spread          float32 // cents, total detune spread across unison voices
	FeedbackAmount  float32 // 0..1, self-feedback folded into phase
	WaveIndex       float32 // 0..1, default morph position absent WavetableIndex input
	Gain            float32
	Active          bool
}

// DefaultWavetableOscillatorParams returns no detune, one unison
// voice, the table's first frame, unity gain, active.
func DefaultWavetableOscillatorParams() WavetableOscillatorParams {
	return WavetableOscillatorParams{UnisonVoices: 1, Gain: 1.0, Active: true}
}

func (p WavetableOscillatorParams) clamped() WavetableOscillatorParams {
	p.DetuneOctaves = clampF32(p.DetuneOctaves, -4, 4)
	p.DetuneSemitones = clampF32(p.DetuneSemitones, -12, 12)
	p.DetuneCents = clampF32(p.DetuneCents, -100, 100)
	if p.UnisonVoices < 1 {
		p.UnisonVoices = 1
	}
	if p.UnisonVoices > 8 {
		p.UnisonVoices = 8
	}
	p.Spread = clampF32(p.Spread, 0, 100)
	p.FeedbackAmount = clampF32(p.FeedbackAmount, 0, 1)
	p.WaveIndex = clampF32(p.WaveIndex, 0, 1)
	p.Gain = clampF32(p.Gain, 0, 2)
	return p
}

func (p WavetableOscillatorParams) detuneCents() float64 {
	return float64(p.DetuneOctaves)*1200 + float64(p.DetuneSemitones)*100 + float64(p.DetuneCents)
}

// WavetableOscillator plays back a table of equal-length single-cycle
// frames, cross-fading between adjacent frames per WavetableIndex (or
// the WaveIndex parameter when unconnected). The table itself arrives
// pre-decoded via SetTable (the WAV importer normalizes raw bytes into
// frames before this node ever sees them). It reads Frequency,
// FrequencyMod (ratio, 1.0 = unchanged), PhaseMod (also the hard-sync
// trigger), DetuneMod (cents), GainMod, FeedbackMod, WavetableIndex,
// and writes AudioOutput0.
type WavetableOscillator struct {
	sampleRate float64
	params     WavetableOscillatorParams

	unisonPhases []float64
	lastPhaseMod float64
	lastOutput   float64

	frames   [][]float32 // each frame is one cycle, equal length
	frameLen int
}

func init() {
	Register("WavetableOscillator", func(sampleRate float64) Node {
		return NewWavetableOscillator(sampleRate)
	})
}

// NewWavetableOscillator creates a wavetable oscillator with an empty
// table; it produces silence until SetTable is called.
func NewWavetableOscillator(sampleRate float64) *WavetableOscillator {
	return &WavetableOscillator{sampleRate: sampleRate, params: DefaultWavetableOscillatorParams()}
}

func (w *WavetableOscillator) Kind() string { return "WavetableOscillator" }

func (w *WavetableOscillator) Ports() PortSet {
	return PortSet{
		Reads: []port.ID{
			port.Frequency, port.FrequencyMod, port.PhaseMod, port.WavetableIndex,
			port.DetuneMod, port.GainMod, port.FeedbackMod,
		},
		Writes: []port.ID{port.AudioOutput0},
	}
}

func (w *WavetableOscillator) UpdateParameters(params any) {
	if p, ok := params.(WavetableOscillatorParams); ok {
		w.params = p.clamped()
	}
}

func (w *WavetableOscillator) Reset() {
	for i := range w.unisonPhases {
		w.unisonPhases[i] = 0
	}
	w.lastPhaseMod = 0
	w.lastOutput = 0
}

func (w *WavetableOscillator) resizeUnison(n int) {
	grown := make([]float64, n)
	copy(grown, w.unisonPhases)
	w.unisonPhases = grown
}

// SetTable replaces the oscillator's wavetable with a set of
// equal-length single-cycle frames. A malformed table (empty, or
// frames of differing length) is rejected and the existing table is
// retained, matching the engine's import-failure policy.
func (w *WavetableOscillator) SetTable(frames [][]float32) bool {
	if len(frames) == 0 {
		return false
	}
	frameLen := len(frames[0])
	if frameLen == 0 {
		return false
	}
	for _, f := range frames {
		if len(f) != frameLen {
			return false
		}
	}
	w.frames = frames
	w.frameLen = frameLen
	return true
}

func (w *WavetableOscillator) sampleFrame(frame []float32, phase float64) float32 {
	pos := phase * float64(len(frame))
	i0 := int(pos) % len(frame)
	i1 := (i0 + 1) % len(frame)
	frac := float32(pos - math.Floor(pos))
	return frame[i0]*(1-frac) + frame[i1]*frac
}

func (w *WavetableOscillator) sampleTable(phase float64, tableIndex float64) float32 {
	numFrames := len(w.frames)
	i0 := int(tableIndex)
	if i0 >= numFrames {
		i0 = numFrames - 1
	}
	i1 := i0 + 1
	if i1 >= numFrames {
		i1 = numFrames - 1
	}
	frac := float32(tableIndex - math.Floor(tableIndex))

	sample0 := w.sampleFrame(w.frames[i0], phase)
	sample1 := w.sampleFrame(w.frames[i1], phase)
	return sample0*(1-frac) + sample1*frac
}

func (w *WavetableOscillator) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	out := outputs[port.AudioOutput0]
	if len(w.frames) == 0 || !w.params.Active {
		for i := range out {
			out[i] = 0
		}
		return
	}

	freqIn := inputs[port.Frequency]
	freqMod := inputs[port.FrequencyMod]
	phaseMod := inputs[port.PhaseMod]
	indexIn := inputs[port.WavetableIndex]
	detuneMod := inputs[port.DetuneMod]
	gainMod := inputs[port.GainMod]
	feedbackMod := inputs[port.FeedbackMod]

	voices := w.params.UnisonVoices
	if voices < 1 {
		voices = 1
	}
	if len(w.unisonPhases) != voices {
		w.resizeUnison(voices)
	}

	baseDetuneCents := w.params.detuneCents()
	numFrames := len(w.frames)

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
		if w.params.HardSync && w.lastPhaseMod >= 1.0 && pm < 1.0 {
			for k := range w.unisonPhases {
				w.unisonPhases[k] = 0
			}
		}
		w.lastPhaseMod = pm

		fb := w.lastOutput * float64(w.params.FeedbackAmount)
		if feedbackMod != nil {
			fb += float64(feedbackMod[i])
		}

		tableIndex := float64(w.params.WaveIndex)
		if indexIn != nil {
			tableIndex = clampF64(float64(indexIn[i]), 0, 1)
		}
		tableIndex *= float64(numFrames - 1)

		var mix float64
		for k := 0; k < voices; k++ {
			ratio := math.Pow(2.0, (detuneCents+unisonOffsetCents(k, voices, w.params.Spread))/1200.0)
			freq := baseFreq * ratio
			if freq < 0 {
				freq = 0
			}

			samplePhase := w.unisonPhases[k] + pm + fb
			samplePhase -= math.Floor(samplePhase)

			mix += float64(w.sampleTable(samplePhase, tableIndex))

			w.unisonPhases[k] += freq / w.sampleRate
			if w.unisonPhases[k] >= 1.0 {
				w.unisonPhases[k] -= math.Floor(w.unisonPhases[k])
			}
		}
		mix /= float64(voices)
		w.lastOutput = mix

		gain := w.params.Gain
		if gainMod != nil {
			gain *= gainMod[i]
		}

		out[i] = sanitize(float32(mix) * gain)
	}
}
