package node

import "github.com/vgraph/voicegraph/pkg/port"

// ReverbAlgorithm selects Reverb's topology.
type ReverbAlgorithm int

const (
	ReverbHall ReverbAlgorithm = iota
	ReverbPlate
)

// ReverbParams is the user-visible parameter struct for Reverb.
type ReverbParams struct {
	Algorithm float32 // stored as ReverbAlgorithm, float-backed for macro modulation
	DecayTime float32 // seconds
	Size      float32 // 0.1..1.5, scales comb delay lengths
	Diffusion float32 // 0..0.9, allpass coefficient
	WetMix    float32
	Active    bool
}

// DefaultReverbParams returns a medium hall at 30% wet, active.
func DefaultReverbParams() ReverbParams {
	return ReverbParams{
		Algorithm: float32(ReverbHall),
		DecayTime: 2.0,
		Size:      0.5,
		Diffusion: 0.5,
		WetMix:    0.3,
		Active:    true,
	}
}

func (p ReverbParams) clamped() ReverbParams {
	p.DecayTime = clampF32(p.DecayTime, 0.1, 20)
	p.Size = clampF32(p.Size, 0.1, 1.5)
	p.Diffusion = clampF32(p.Diffusion, 0, 0.9)
	p.WetMix = clampF32(p.WetMix, 0, 1)
	return p
}

func (p ReverbParams) algorithm() ReverbAlgorithm {
	if p.Algorithm >= 0.5 {
		return ReverbPlate
	}
	return ReverbHall
}

// reverbComb is one feedback comb filter with a one-pole lowpass in
// the feedback path (damping), the building block of a Freeverb-style
// reverb tank.
type reverbComb struct {
	line  []float32
	pos   int
	store float32
}

func newReverbComb(lengthSamples int) *reverbComb {
	if lengthSamples < 1 {
		lengthSamples = 1
	}
	return &reverbComb{line: make([]float32, lengthSamples)}
}

func (c *reverbComb) process(input, feedback, damping float32) float32 {
	out := c.line[c.pos]
	c.store = out*(1-damping) + c.store*damping
	c.line[c.pos] = sanitize(input + c.store*feedback)
	c.pos++
	if c.pos >= len(c.line) {
		c.pos = 0
	}
	return out
}

func (c *reverbComb) reset() {
	for i := range c.line {
		c.line[i] = 0
	}
	c.pos = 0
	c.store = 0
}

// reverbAllpass is a Schroeder allpass filter used to diffuse the comb
// bank's output.
type reverbAllpass struct {
	line []float32
	pos  int
}

func newReverbAllpass(lengthSamples int) *reverbAllpass {
	if lengthSamples < 1 {
		lengthSamples = 1
	}
	return &reverbAllpass{line: make([]float32, lengthSamples)}
}

func (a *reverbAllpass) process(input, coefficient float32) float32 {
	bufOut := a.line[a.pos]
	out := -input + bufOut
	a.line[a.pos] = sanitize(input + bufOut*coefficient)
	a.pos++
	if a.pos >= len(a.line) {
		a.pos = 0
	}
	return out
}

func (a *reverbAllpass) reset() {
	for i := range a.line {
		a.line[i] = 0
	}
	a.pos = 0
}

// hallCombTuningsMs and plateCombTuningsMs are the comb filter lengths
// (in milliseconds) for each algorithm's reverb tank, converted to
// samples at the node's sample rate and scaled by Size. Hall uses longer, more
// widely spaced delays for a diffuse decay; plate uses shorter, denser
// delays for a brighter, tighter decay.
var hallCombTuningsMs = []float32{29.7, 37.1, 41.1, 43.7, 50.1, 56.3, 60.1, 65.2}
var plateCombTuningsMs = []float32{18.2, 22.4, 25.1, 27.9, 30.6, 33.3, 35.8, 38.1}
var allpassTuningsMs = []float32{5.0, 1.7, 1.2}

// Reverb implements Hall and Plate algorithms as parallel comb banks
// feeding a series of allpass diffusers, following the Freeverb
// topology. It reads AudioInput0/AudioInput1 and writes
// AudioOutput0/AudioOutput1, plus WetDryMix for modulation.
type Reverb struct {
	sampleRate float64
	params     ReverbParams

	combsL, combsR       []*reverbComb
	allpassesL, allpassesR []*reverbAllpass
}

func init() {
	Register("Reverb", func(sampleRate float64) Node {
		return NewReverb(sampleRate)
	})
}

// NewReverb creates a reverb at the given sample rate with default
// parameters, Hall algorithm.
func NewReverb(sampleRate float64) *Reverb {
	r := &Reverb{sampleRate: sampleRate, params: DefaultReverbParams()}
	r.rebuildTank()
	return r
}

func (r *Reverb) rebuildTank() {
	tuning := hallCombTuningsMs
	if r.params.algorithm() == ReverbPlate {
		tuning = plateCombTuningsMs
	}
	size := float64(r.params.Size)

	r.combsL = make([]*reverbComb, len(tuning))
	r.combsR = make([]*reverbComb, len(tuning))
	for i, ms := range tuning {
		lenSamples := int(r.sampleRate * float64(ms) / 1000.0 * size)
		r.combsL[i] = newReverbComb(lenSamples)
		r.combsR[i] = newReverbComb(lenSamples + 23) // stereo decorrelation offset
	}

	r.allpassesL = make([]*reverbAllpass, len(allpassTuningsMs))
	r.allpassesR = make([]*reverbAllpass, len(allpassTuningsMs))
	for i, ms := range allpassTuningsMs {
		lenSamples := int(r.sampleRate * float64(ms) / 1000.0)
		r.allpassesL[i] = newReverbAllpass(lenSamples)
		r.allpassesR[i] = newReverbAllpass(lenSamples + 11)
	}
}

func (r *Reverb) Kind() string { return "Reverb" }

func (r *Reverb) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.AudioInput0, port.AudioInput1, port.WetDryMix},
		Writes: []port.ID{port.AudioOutput0, port.AudioOutput1},
	}
}

func (r *Reverb) UpdateParameters(params any) {
	p, ok := params.(ReverbParams)
	if !ok {
		return
	}
	p = p.clamped()
	rebuild := p.algorithm() != r.params.algorithm() || p.Size != r.params.Size
	r.params = p
	if rebuild {
		r.rebuildTank()
	}
}

func (r *Reverb) Reset() {
	for _, c := range r.combsL {
		c.reset()
	}
	for _, c := range r.combsR {
		c.reset()
	}
	for _, a := range r.allpassesL {
		a.reset()
	}
	for _, a := range r.allpassesR {
		a.reset()
	}
}

func (r *Reverb) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	inL := inputs[port.AudioInput0]
	inR := inputs[port.AudioInput1]
	wetMod := inputs[port.WetDryMix]
	outL := outputs[port.AudioOutput0]
	outR := outputs[port.AudioOutput1]

	if !r.params.Active {
		for i := range outL {
			outL[i] = 0
			outR[i] = 0
		}
		return
	}

	feedback := clampF32(1.0-1.0/(r.params.DecayTime*float32(r.sampleRate)/float32(len(r.combsL[0].line)+1)), 0.2, 0.98)
	damping := 0.2 + (1.0-r.params.Diffusion)*0.3
	allpassCoeff := clampF32(r.params.Diffusion, 0, 0.9)

	for i := range outL {
		var sampleL, sampleR float32
		if inL != nil {
			sampleL = inL[i]
		}
		if inR != nil {
			sampleR = inR[i]
		}

		var tankL, tankR float32
		for _, c := range r.combsL {
			tankL += c.process(sampleL, feedback, damping)
		}
		for _, c := range r.combsR {
			tankR += c.process(sampleR, feedback, damping)
		}
		tankL /= float32(len(r.combsL))
		tankR /= float32(len(r.combsR))

		for _, a := range r.allpassesL {
			tankL = a.process(tankL, allpassCoeff)
		}
		for _, a := range r.allpassesR {
			tankR = a.process(tankR, allpassCoeff)
		}

		wetMix := r.params.WetMix
		if wetMod != nil {
			wetMix = clampF32(wetMix+wetMod[i], 0, 1)
		}

		outL[i] = sanitize(sampleL*(1-wetMix) + tankL*wetMix)
		outR[i] = sanitize(sampleR*(1-wetMix) + tankR*wetMix)
	}
}
