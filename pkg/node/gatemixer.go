package node

import "github.com/vgraph/voicegraph/pkg/port"

// GateMixerParams is the user-visible parameter struct for GateMixer.
type GateMixerParams struct {
	Active bool
}

// DefaultGateMixerParams returns an active gate mixer.
func DefaultGateMixerParams() GateMixerParams {
	return GateMixerParams{Active: true}
}

// GateMixer OR-combines GlobalGate and ArpGate into a single
// CombinedGate stream, so downstream Envelope nodes can react to
// either the held-key gate or an arpeggiator-generated gate without
// caring which one is active.
type GateMixer struct {
	params GateMixerParams
}

func init() {
	Register("GateMixer", func(sampleRate float64) Node {
		return NewGateMixer()
	})
}

// NewGateMixer creates a gate mixer with default parameters.
func NewGateMixer() *GateMixer {
	return &GateMixer{params: DefaultGateMixerParams()}
}

func (g *GateMixer) Kind() string { return "GateMixer" }

func (g *GateMixer) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.GlobalGate, port.ArpGate},
		Writes: []port.ID{port.CombinedGate},
	}
}

func (g *GateMixer) UpdateParameters(params any) {
	if p, ok := params.(GateMixerParams); ok {
		g.params = p
	}
}

func (g *GateMixer) Reset() {}

func (g *GateMixer) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	out := outputs[port.CombinedGate]
	if !g.params.Active {
		for i := range out {
			out[i] = 0
		}
		return
	}
	globalGate := inputs[port.GlobalGate]
	arpGate := inputs[port.ArpGate]

	for i := range out {
		gate := ctx.Gate
		if globalGate != nil {
			gate = globalGate[i]
		}
		arp := float32(0)
		if arpGate != nil {
			arp = arpGate[i]
		}
		if gate > 0 || arp > 0 {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
}
