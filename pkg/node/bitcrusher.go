package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// BitcrusherParams is the user-visible parameter struct for
// Bitcrusher.
type BitcrusherParams struct {
	BitDepth         float32 // 1..16
	DownsampleFactor int     // 1..64, samples held between updates
	Mix              float32
	Active           bool
}

// DefaultBitcrusherParams returns a mild 12-bit, no downsampling crush,
// active.
func DefaultBitcrusherParams() BitcrusherParams {
	return BitcrusherParams{BitDepth: 12, DownsampleFactor: 1, Mix: 1.0, Active: true}
}

func (p BitcrusherParams) clamped() BitcrusherParams {
	p.BitDepth = clampF32(p.BitDepth, 1, 16)
	if p.DownsampleFactor < 1 {
		p.DownsampleFactor = 1
	}
	if p.DownsampleFactor > 64 {
		p.DownsampleFactor = 64
	}
	p.Mix = clampF32(p.Mix, 0, 1)
	return p
}

// Bitcrusher quantizes amplitude to BitDepth levels and holds samples
// for DownsampleFactor ticks (a sample-and-hold downsampler), for lo-fi
// digital distortion. It reads and writes AudioInput0/1, AudioOutput0/1.
type Bitcrusher struct {
	params BitcrusherParams

	holdCounterL, holdCounterR int
	heldL, heldR               float32
}

func init() {
	Register("Bitcrusher", func(sampleRate float64) Node {
		return NewBitcrusher()
	})
}

// NewBitcrusher creates a bitcrusher with default parameters.
func NewBitcrusher() *Bitcrusher {
	return &Bitcrusher{params: DefaultBitcrusherParams()}
}

func (b *Bitcrusher) Kind() string { return "Bitcrusher" }

func (b *Bitcrusher) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.AudioInput0, port.AudioInput1},
		Writes: []port.ID{port.AudioOutput0, port.AudioOutput1},
	}
}

func (b *Bitcrusher) UpdateParameters(params any) {
	if p, ok := params.(BitcrusherParams); ok {
		b.params = p.clamped()
	}
}

func (b *Bitcrusher) Reset() {
	b.holdCounterL, b.holdCounterR = 0, 0
	b.heldL, b.heldR = 0, 0
}

func quantize(sample float32, bitDepth float32) float32 {
	levels := math.Pow(2, float64(bitDepth))
	return float32(math.Round(float64(sample)*levels/2) / (levels / 2))
}

func (b *Bitcrusher) crushChannel(sample float32, counter *int, held *float32) float32 {
	if *counter <= 0 {
		*held = quantize(sample, b.params.BitDepth)
		*counter = b.params.DownsampleFactor
	}
	*counter--
	return sample*(1-b.params.Mix) + *held*b.params.Mix
}

func (b *Bitcrusher) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	inL := inputs[port.AudioInput0]
	inR := inputs[port.AudioInput1]
	outL := outputs[port.AudioOutput0]
	outR := outputs[port.AudioOutput1]

	if !b.params.Active {
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
		outL[i] = sanitize(b.crushChannel(sampleL, &b.holdCounterL, &b.heldL))
		outR[i] = sanitize(b.crushChannel(sampleR, &b.holdCounterR, &b.heldR))
	}
}
