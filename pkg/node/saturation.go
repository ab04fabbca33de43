package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// SaturationParams is the user-visible parameter struct for
// Saturation.
type SaturationParams struct {
	Drive  float32 // 1..20, pre-gain into the tanh waveshaper
	Mix    float32 // 0..1
	Active bool
}

// DefaultSaturationParams returns a subtle drive, active.
func DefaultSaturationParams() SaturationParams {
	return SaturationParams{Drive: 2, Mix: 0.5, Active: true}
}

func (p SaturationParams) clamped() SaturationParams {
	p.Drive = clampF32(p.Drive, 1, 20)
	p.Mix = clampF32(p.Mix, 0, 1)
	return p
}

// Saturation applies a tanh waveshaper driven by Drive, matching the
// output level with a 1/tanh(Drive) compensation so increasing drive
// adds harmonics without also increasing loudness. It reads and
// writes AudioInput0/1, AudioOutput0/1.
type Saturation struct {
	params SaturationParams
}

func init() {
	Register("Saturation", func(sampleRate float64) Node {
		return NewSaturation()
	})
}

// NewSaturation creates a saturation stage with default parameters.
func NewSaturation() *Saturation {
	return &Saturation{params: DefaultSaturationParams()}
}

func (s *Saturation) Kind() string { return "Saturation" }

func (s *Saturation) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.AudioInput0, port.AudioInput1},
		Writes: []port.ID{port.AudioOutput0, port.AudioOutput1},
	}
}

func (s *Saturation) UpdateParameters(params any) {
	if p, ok := params.(SaturationParams); ok {
		s.params = p.clamped()
	}
}

func (s *Saturation) Reset() {}

func (s *Saturation) shape(sample float32) float32 {
	drive := float64(s.params.Drive)
	compensation := 1.0 / math.Tanh(drive)
	wet := float32(math.Tanh(float64(sample)*drive) * compensation)
	return sample*(1-s.params.Mix) + wet*s.params.Mix
}

func (s *Saturation) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	inL := inputs[port.AudioInput0]
	inR := inputs[port.AudioInput1]
	outL := outputs[port.AudioOutput0]
	outR := outputs[port.AudioOutput1]

	if !s.params.Active {
		for i := range outL {
			outL[i] = 0
			outR[i] = 0
		}
		return
	}

	for i := range outL {
		var sampleL, sampleR float32
		if inL != nil {
			sampleL = inL[i]
		}
		if inR != nil {
			sampleR = inR[i]
		}
		outL[i] = sanitize(s.shape(sampleL))
		outR[i] = sanitize(s.shape(sampleR))
	}
}
