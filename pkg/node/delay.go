package node

import "github.com/vgraph/voicegraph/pkg/port"

// DelayParams is the user-visible parameter struct for the Delay
// effect.
type DelayParams struct {
	TimeMs   float32
	Feedback float32 // 0..0.98
	WetMix   float32 // 0..1
	Active   bool
}

// DefaultDelayParams returns a 300ms slapback with modest feedback,
// active.
func DefaultDelayParams() DelayParams {
	return DelayParams{TimeMs: 300, Feedback: 0.35, WetMix: 0.3, Active: true}
}

func (p DelayParams) clamped(maxMs float32) DelayParams {
	p.TimeMs = clampF32(p.TimeMs, 1, maxMs)
	p.Feedback = clampF32(p.Feedback, 0, 0.98)
	p.WetMix = clampF32(p.WetMix, 0, 1)
	return p
}

// Delay is a stereo feedback delay line, independent per channel, with
// a configurable maximum delay time fixed at construction. It reads
// AudioInput0/AudioInput1 as left/right and writes AudioOutput0/
// AudioOutput1, plus reads FeedbackMod and WetDryMix for modulation.
type Delay struct {
	sampleRate float64
	maxMs      float32
	params     DelayParams

	lineL, lineR []float32
	posL, posR   int
}

func init() {
	Register("Delay", func(sampleRate float64) Node {
		return NewDelay(sampleRate, 2000)
	})
}

// NewDelay creates a delay at the given sample rate with a maximum
// delay time of maxMs milliseconds.
func NewDelay(sampleRate float64, maxMs float32) *Delay {
	d := &Delay{sampleRate: sampleRate, maxMs: maxMs, params: DefaultDelayParams().clamped(maxMs)}
	length := int(sampleRate*float64(maxMs)/1000.0) + 1
	d.lineL = make([]float32, length)
	d.lineR = make([]float32, length)
	return d
}

func (d *Delay) Kind() string { return "Delay" }

func (d *Delay) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.AudioInput0, port.AudioInput1, port.FeedbackMod, port.WetDryMix},
		Writes: []port.ID{port.AudioOutput0, port.AudioOutput1},
	}
}

func (d *Delay) UpdateParameters(params any) {
	if p, ok := params.(DelayParams); ok {
		d.params = p.clamped(d.maxMs)
	}
}

func (d *Delay) Reset() {
	for i := range d.lineL {
		d.lineL[i] = 0
		d.lineR[i] = 0
	}
	d.posL = 0
	d.posR = 0
}

func (d *Delay) processChannel(line []float32, pos int, input, feedback, wetMix, delaySamples float32) (float32, int) {
	length := len(line)
	readPos := pos - int(delaySamples)
	for readPos < 0 {
		readPos += length
	}
	readPos %= length

	delayed := line[readPos]
	line[pos] = sanitize(input + delayed*feedback)

	next := (pos + 1) % length
	output := input*(1-wetMix) + delayed*wetMix
	return sanitize(output), next
}

func (d *Delay) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	inL := inputs[port.AudioInput0]
	inR := inputs[port.AudioInput1]
	feedbackMod := inputs[port.FeedbackMod]
	wetMod := inputs[port.WetDryMix]
	outL := outputs[port.AudioOutput0]
	outR := outputs[port.AudioOutput1]

	if !d.params.Active {
		for i := range outL {
			outL[i] = 0
			outR[i] = 0
		}
		return
	}

	delaySamples := float32(d.sampleRate * float64(d.params.TimeMs) / 1000.0)

	for i := range outL {
		var sampleL, sampleR float32
		if inL != nil {
			sampleL = inL[i]
		}
		if inR != nil {
			sampleR = inR[i]
		}

		feedback := d.params.Feedback
		if feedbackMod != nil {
			feedback = clampF32(feedback+feedbackMod[i], 0, 0.98)
		}
		wetMix := d.params.WetMix
		if wetMod != nil {
			wetMix = clampF32(wetMix+wetMod[i], 0, 1)
		}

		outL[i], d.posL = d.processChannel(d.lineL, d.posL, sampleL, feedback, wetMix, delaySamples)
		outR[i], d.posR = d.processChannel(d.lineR, d.posR, sampleR, feedback, wetMix, delaySamples)
	}
}
