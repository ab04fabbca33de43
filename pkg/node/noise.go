package node

import (
	"math"
	"math/rand"

	"github.com/vgraph/voicegraph/pkg/port"
)

// NoiseType selects a Noise node's spectral shape.
type NoiseType int

const (
	NoiseWhite NoiseType = iota
	NoisePink
	NoiseBrownian
)

func (t NoiseType) String() string {
	switch t {
	case NoiseWhite:
		return "White"
	case NoisePink:
		return "Pink"
	case NoiseBrownian:
		return "Brownian"
	default:
		return "Unknown"
	}
}

// NoiseParams is the user-visible parameter struct for Noise.
type NoiseParams struct {
	Type   NoiseType
	Gain   float32
	Active bool
}

// DefaultNoiseParams returns unity-gain white noise, active.
func DefaultNoiseParams() NoiseParams {
	return NoiseParams{Type: NoiseWhite, Gain: 1.0, Active: true}
}

func (p NoiseParams) clamped() NoiseParams {
	p.Gain = clampF32(p.Gain, 0, 2)
	return p
}

// Noise generates white, pink, or brownian noise seeded per-voice from
// Context.RNGSeed so replicated voices in the pool decorrelate from
// each other. It writes AudioOutput0.
type Noise struct {
	params NoiseParams
	rng    *rand.Rand
	seeded bool

	// Pink noise: Paul Kellet's refined cascade of one-pole filters.
	pb0, pb1, pb2, pb3, pb4, pb5, pb6 float64

	// Brownian noise: integrator of white noise, clamped to [-1, 1].
	brown float64
}

func init() {
	Register("Noise", func(sampleRate float64) Node {
		return NewNoise()
	})
}

// NewNoise creates a noise source with default parameters. The RNG is
// lazily seeded from the first block's Context.RNGSeed.
func NewNoise() *Noise {
	return &Noise{params: DefaultNoiseParams()}
}

func (n *Noise) Kind() string { return "Noise" }

func (n *Noise) Ports() PortSet {
	return PortSet{Writes: []port.ID{port.AudioOutput0}}
}

func (n *Noise) UpdateParameters(params any) {
	if p, ok := params.(NoiseParams); ok {
		n.params = p.clamped()
	}
}

func (n *Noise) Reset() {
	n.pb0, n.pb1, n.pb2, n.pb3, n.pb4, n.pb5, n.pb6 = 0, 0, 0, 0, 0, 0, 0
	n.brown = 0
}

func (n *Noise) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	if !n.seeded {
		n.rng = rand.New(rand.NewSource(int64(ctx.RNGSeed)))
		n.seeded = true
	}
	out := outputs[port.AudioOutput0]
	if !n.params.Active {
		for i := range out {
			out[i] = 0
		}
		return
	}

	for i := range out {
		white := n.rng.Float64()*2 - 1

		var sample float64
		switch n.params.Type {
		case NoisePink:
			n.pb0 = 0.99886*n.pb0 + white*0.0555179
			n.pb1 = 0.99332*n.pb1 + white*0.0750759
			n.pb2 = 0.96900*n.pb2 + white*0.1538520
			n.pb3 = 0.86650*n.pb3 + white*0.3104856
			n.pb4 = 0.55000*n.pb4 + white*0.5329522
			n.pb5 = -0.7616*n.pb5 - white*0.0168980
			pink := n.pb0 + n.pb1 + n.pb2 + n.pb3 + n.pb4 + n.pb5 + n.pb6 + white*0.5362
			n.pb6 = white * 0.115926
			sample = pink * 0.11
		case NoiseBrownian:
			n.brown += white * 0.02
			if n.brown > 1 {
				n.brown = 1
			} else if n.brown < -1 {
				n.brown = -1
			}
			sample = n.brown * 3.5
		default:
			sample = white
		}

		if math.Abs(sample) > 4 {
			sample = 4 * math.Tanh(sample/4)
		}

		out[i] = sanitize(float32(sample) * n.params.Gain)
	}
}
