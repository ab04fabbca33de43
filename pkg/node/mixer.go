package node

import "github.com/vgraph/voicegraph/pkg/port"

// MixerParams is the user-visible parameter struct for Mixer.
type MixerParams struct {
	OutputGain float32
	Active     bool
}

// DefaultMixerParams returns unity output gain, active.
func DefaultMixerParams() MixerParams {
	return MixerParams{OutputGain: 1.0, Active: true}
}

func (p MixerParams) clamped() MixerParams {
	p.OutputGain = clampF32(p.OutputGain, 0, 4)
	return p
}

// Mixer sums all four AudioInput ports into AudioOutput0. Per-connection
// amount weighting happens upstream in the modulation accumulator; this
// node's own job is to sum the already-weighted accumulated buffers and
// apply a final output gain.
type Mixer struct {
	params MixerParams
}

func init() {
	Register("Mixer", func(sampleRate float64) Node {
		return NewMixer()
	})
}

// NewMixer creates a mixer with default parameters.
func NewMixer() *Mixer {
	return &Mixer{params: DefaultMixerParams()}
}

func (m *Mixer) Kind() string { return "Mixer" }

func (m *Mixer) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.AudioInput0, port.AudioInput1, port.AudioInput2, port.AudioInput3},
		Writes: []port.ID{port.AudioOutput0},
	}
}

func (m *Mixer) UpdateParameters(params any) {
	if p, ok := params.(MixerParams); ok {
		m.params = p.clamped()
	}
}

func (m *Mixer) Reset() {}

func (m *Mixer) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	out := outputs[port.AudioOutput0]
	if !m.params.Active {
		for i := range out {
			out[i] = 0
		}
		return
	}
	in0 := inputs[port.AudioInput0]
	in1 := inputs[port.AudioInput1]
	in2 := inputs[port.AudioInput2]
	in3 := inputs[port.AudioInput3]

	for i := range out {
		var sum float32
		if in0 != nil {
			sum += in0[i]
		}
		if in1 != nil {
			sum += in1[i]
		}
		if in2 != nil {
			sum += in2[i]
		}
		if in3 != nil {
			sum += in3[i]
		}
		out[i] = sanitize(sum * m.params.OutputGain)
	}
}
