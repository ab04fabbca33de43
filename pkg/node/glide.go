package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// GlideParams is the user-visible parameter struct for Glide.
type GlideParams struct {
	Time   float32 // seconds to reach 1/e of a step
	Active bool
}

// DefaultGlideParams returns glide disabled (no smoothing).
func DefaultGlideParams() GlideParams {
	return GlideParams{Time: 0, Active: false}
}

func (p GlideParams) clamped() GlideParams {
	p.Time = clampF32(p.Time, 0, 10)
	return p
}

// Glide smooths GlobalFrequency toward its target with an exponential
// one-pole follower, writing the smoothed stream to AudioOutput0.
type Glide struct {
	sampleRate float64
	params     GlideParams
	current    float64
	primed     bool
}

func init() {
	Register("Glide", func(sampleRate float64) Node {
		return NewGlide(sampleRate)
	})
}

// NewGlide creates a glide node at the given sample rate, glide
// disabled by default.
func NewGlide(sampleRate float64) *Glide {
	return &Glide{sampleRate: sampleRate, params: DefaultGlideParams()}
}

func (g *Glide) Kind() string { return "Glide" }

func (g *Glide) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.GlobalFrequency},
		Writes: []port.ID{port.AudioOutput0},
	}
}

func (g *Glide) UpdateParameters(params any) {
	if p, ok := params.(GlideParams); ok {
		g.params = p.clamped()
	}
}

func (g *Glide) Reset() {
	g.current = 0
	g.primed = false
}

func (g *Glide) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	out := outputs[port.AudioOutput0]
	freqIn := inputs[port.GlobalFrequency]

	if !g.primed {
		first := ctx.Frequency
		if freqIn != nil && len(freqIn) > 0 {
			first = freqIn[0]
		}
		g.current = float64(first)
		g.primed = true
	}

	var coeff float64
	if g.params.Active && g.params.Time > 0 {
		coeff = 1.0 - math.Exp(-1.0/(float64(g.params.Time)*g.sampleRate))
	} else {
		coeff = 1.0
	}

	for i := range out {
		target := float64(ctx.Frequency)
		if freqIn != nil {
			target = float64(freqIn[i])
		}
		g.current += (target - g.current) * coeff
		out[i] = sanitize(float32(g.current))
	}
}
