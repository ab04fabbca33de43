package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// ChorusParams is the user-visible parameter struct for the Chorus
// effect.
type ChorusParams struct {
	BaseDelayMs float32
	DepthMs     float32
	RateHz      float32
	Feedback    float32 // 0..0.9
	StereoPhase float32 // radians offset between L and R LFOs
	WetMix      float32
	Active      bool
}

// DefaultChorusParams returns a gentle classic chorus, active.
func DefaultChorusParams() ChorusParams {
	return ChorusParams{
		BaseDelayMs: 15,
		DepthMs:     4,
		RateHz:      0.5,
		Feedback:    0.2,
		StereoPhase: float32(math.Pi / 2),
		WetMix:      0.5,
		Active:      true,
	}
}

func (p ChorusParams) clamped() ChorusParams {
	p.BaseDelayMs = clampF32(p.BaseDelayMs, 2, 40)
	p.DepthMs = clampF32(p.DepthMs, 0, 15)
	p.RateHz = clampF32(p.RateHz, 0.02, 10)
	p.Feedback = clampF32(p.Feedback, 0, 0.9)
	p.WetMix = clampF32(p.WetMix, 0, 1)
	return p
}

// Chorus is a stereo modulated delay with a one-pole lowpass in the
// feedback path and an LFO phase offset between channels for width. It
// reads AudioInput0/AudioInput1 and writes AudioOutput0/AudioOutput1.
type Chorus struct {
	sampleRate float64
	params     ChorusParams

	lineL, lineR   []float32
	posL, posR     int
	lfoPhase       float64
	feedbackLPFL   float32
	feedbackLPFR   float32
}

func init() {
	Register("Chorus", func(sampleRate float64) Node {
		return NewChorus(sampleRate)
	})
}

// NewChorus creates a chorus at the given sample rate with default
// parameters.
func NewChorus(sampleRate float64) *Chorus {
	c := &Chorus{sampleRate: sampleRate, params: DefaultChorusParams()}
	length := int(sampleRate*0.06) + 1 // 60ms max buffer: base delay + depth headroom
	c.lineL = make([]float32, length)
	c.lineR = make([]float32, length)
	return c
}

func (c *Chorus) Kind() string { return "Chorus" }

func (c *Chorus) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.AudioInput0, port.AudioInput1, port.WetDryMix},
		Writes: []port.ID{port.AudioOutput0, port.AudioOutput1},
	}
}

func (c *Chorus) UpdateParameters(params any) {
	if p, ok := params.(ChorusParams); ok {
		c.params = p.clamped()
	}
}

func (c *Chorus) Reset() {
	for i := range c.lineL {
		c.lineL[i] = 0
		c.lineR[i] = 0
	}
	c.posL, c.posR = 0, 0
	c.lfoPhase = 0
	c.feedbackLPFL, c.feedbackLPFR = 0, 0
}

func (c *Chorus) readInterpolated(line []float32, writePos int, delaySamples float64) float32 {
	length := len(line)
	readPos := float64(writePos) - delaySamples
	for readPos < 0 {
		readPos += float64(length)
	}
	i0 := int(readPos) % length
	i1 := (i0 + 1) % length
	frac := float32(readPos - math.Floor(readPos))
	return line[i0]*(1-frac) + line[i1]*frac
}

func (c *Chorus) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	inL := inputs[port.AudioInput0]
	inR := inputs[port.AudioInput1]
	wetMod := inputs[port.WetDryMix]
	outL := outputs[port.AudioOutput0]
	outR := outputs[port.AudioOutput1]

	if !c.params.Active {
		for i := range outL {
			outL[i] = 0
			outR[i] = 0
		}
		return
	}

	length := len(c.lineL)

	for i := range outL {
		var sampleL, sampleR float32
		if inL != nil {
			sampleL = inL[i]
		}
		if inR != nil {
			sampleR = inR[i]
		}

		lfoL := math.Sin(2 * math.Pi * c.lfoPhase)
		lfoR := math.Sin(2*math.Pi*c.lfoPhase + float64(c.params.StereoPhase))

		delayL := (float64(c.params.BaseDelayMs) + float64(c.params.DepthMs)*lfoL) * c.sampleRate / 1000.0
		delayR := (float64(c.params.BaseDelayMs) + float64(c.params.DepthMs)*lfoR) * c.sampleRate / 1000.0

		delayedL := c.readInterpolated(c.lineL, c.posL, delayL)
		delayedR := c.readInterpolated(c.lineR, c.posR, delayR)

		c.feedbackLPFL += (delayedL - c.feedbackLPFL) * 0.5
		c.feedbackLPFR += (delayedR - c.feedbackLPFR) * 0.5

		c.lineL[c.posL] = sanitize(sampleL + c.feedbackLPFL*c.params.Feedback)
		c.lineR[c.posR] = sanitize(sampleR + c.feedbackLPFR*c.params.Feedback)

		c.posL = (c.posL + 1) % length
		c.posR = (c.posR + 1) % length

		wetMix := c.params.WetMix
		if wetMod != nil {
			wetMix = clampF32(wetMix+wetMod[i], 0, 1)
		}

		outL[i] = sanitize(sampleL*(1-wetMix) + delayedL*wetMix)
		outR[i] = sanitize(sampleR*(1-wetMix) + delayedR*wetMix)

		c.lfoPhase += float64(c.params.RateHz) / c.sampleRate
		if c.lfoPhase >= 1 {
			c.lfoPhase -= math.Floor(c.lfoPhase)
		}
	}
}
