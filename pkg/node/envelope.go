package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// EnvelopeStage is the current phase of an Envelope's state machine.
type EnvelopeStage int

const (
	EnvelopeIdle EnvelopeStage = iota
	EnvelopeAttack
	EnvelopeDecay
	EnvelopeSustain
	EnvelopeRelease
)

func (s EnvelopeStage) String() string {
	switch s {
	case EnvelopeIdle:
		return "Idle"
	case EnvelopeAttack:
		return "Attack"
	case EnvelopeDecay:
		return "Decay"
	case EnvelopeSustain:
		return "Sustain"
	case EnvelopeRelease:
		return "Release"
	default:
		return "Unknown"
	}
}

// EnvelopeParams is the user-visible parameter struct for Envelope.
// Attack/Decay/Release are in seconds; the Curve fields run from -1
// (logarithmic: fast rise, long tail) through 0 (linear) to +1
// (exponential: slow start, fast finish).
type EnvelopeParams struct {
	Attack  float32
	Decay   float32
	Sustain float32
	Release float32

	AttackCurve  float32
	DecayCurve   float32
	ReleaseCurve float32

	AttackSmoothingSamples int
	Active                 bool
}

// DefaultEnvelopeParams returns a fast-attack, short-decay, full
// sustain, medium-release envelope with linear segments and no
// smoothing — a reasonable default for a plucked or sustained voice.
func DefaultEnvelopeParams() EnvelopeParams {
	return EnvelopeParams{
		Attack:       0.01,
		Decay:        0.1,
		Sustain:      0.7,
		Release:      0.3,
		AttackCurve:  0,
		DecayCurve:   0,
		ReleaseCurve: 0,
		Active:       true,
	}
}

func (p EnvelopeParams) clamped() EnvelopeParams {
	p.Attack = clampF32(p.Attack, 0, 20)
	p.Decay = clampF32(p.Decay, 0, 20)
	p.Sustain = clampF32(p.Sustain, 0, 1)
	p.Release = clampF32(p.Release, 0, 20)
	p.AttackCurve = clampF32(p.AttackCurve, -1, 1)
	p.DecayCurve = clampF32(p.DecayCurve, -1, 1)
	p.ReleaseCurve = clampF32(p.ReleaseCurve, -1, 1)
	if p.AttackSmoothingSamples < 0 {
		p.AttackSmoothingSamples = 0
	}
	return p
}

// Envelope is a four-stage ADSR state machine with per-segment curve
// shaping and optional attack smoothing. It reads CombinedGate and
// writes EnvelopeMod. AttackMod is declared as a readable port, so it
// accepts connections, but ProcessBlock does not read it.
type Envelope struct {
	sampleRate float64
	params     EnvelopeParams

	stage        EnvelopeStage
	currentValue float64
	timeInStage  float64
	releaseLevel float64
	smoothed     float64
	lastGate     float32
}

func init() {
	Register("Envelope", func(sampleRate float64) Node {
		return NewEnvelope(sampleRate)
	})
}

// NewEnvelope creates an envelope at the given sample rate, idle, with
// default ADSR parameters.
func NewEnvelope(sampleRate float64) *Envelope {
	return &Envelope{sampleRate: sampleRate, params: DefaultEnvelopeParams()}
}

func (e *Envelope) Kind() string { return "Envelope" }

func (e *Envelope) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.CombinedGate, port.AttackMod},
		Writes: []port.ID{port.EnvelopeMod},
	}
}

func (e *Envelope) UpdateParameters(params any) {
	if p, ok := params.(EnvelopeParams); ok {
		e.params = p.clamped()
	}
}

func (e *Envelope) Reset() {
	e.stage = EnvelopeIdle
	e.currentValue = 0
	e.timeInStage = 0
	e.releaseLevel = 0
	e.smoothed = 0
	e.lastGate = 0
}

// Stage reports the envelope's current state machine stage, mainly
// for LFO envelope-trigger mode and tests.
func (e *Envelope) Stage() EnvelopeStage { return e.stage }

func (e *Envelope) trigger() {
	e.stage = EnvelopeAttack
	e.timeInStage = 0
	e.currentValue = 0
}

func (e *Envelope) release() {
	if e.stage != EnvelopeIdle && e.stage != EnvelopeRelease {
		e.releaseLevel = e.currentValue
		e.stage = EnvelopeRelease
		e.timeInStage = 0
	}
}

func applyEnvelopeCurve(progress float64, curve float32) float64 {
	if curve == 0 || progress <= 0 || progress >= 1 {
		return progress
	}
	exponent := math.Pow(5, float64(curve))
	return math.Pow(progress, exponent)
}

func (e *Envelope) advance() float64 {
	if !e.params.Active {
		return 0
	}
	sampleDuration := 1.0 / e.sampleRate

	switch e.stage {
	case EnvelopeIdle:
		e.currentValue = 0

	case EnvelopeAttack:
		attack := float64(e.params.Attack)
		if attack > 0 {
			progress := e.timeInStage / attack
			if progress >= 1.0 {
				e.currentValue = 1.0
				e.stage = EnvelopeDecay
				e.timeInStage = 0
			} else {
				e.currentValue = applyEnvelopeCurve(progress, e.params.AttackCurve)
				e.timeInStage += sampleDuration
			}
		} else {
			e.currentValue = 1.0
			e.stage = EnvelopeDecay
			e.timeInStage = 0
		}

	case EnvelopeDecay:
		decay := float64(e.params.Decay)
		sustain := float64(e.params.Sustain)
		if decay > 0 {
			progress := e.timeInStage / decay
			if progress >= 1.0 {
				e.currentValue = sustain
				e.stage = EnvelopeSustain
				e.timeInStage = 0
			} else {
				shaped := applyEnvelopeCurve(progress, e.params.DecayCurve)
				e.currentValue = 1.0 - shaped*(1.0-sustain)
				e.timeInStage += sampleDuration
			}
		} else {
			e.currentValue = sustain
			e.stage = EnvelopeSustain
			e.timeInStage = 0
		}

	case EnvelopeSustain:
		e.currentValue = float64(e.params.Sustain)

	case EnvelopeRelease:
		release := float64(e.params.Release)
		if release > 0 {
			progress := e.timeInStage / release
			if progress >= 1.0 {
				e.currentValue = 0
				e.stage = EnvelopeIdle
				e.timeInStage = 0
			} else {
				shaped := applyEnvelopeCurve(progress, e.params.ReleaseCurve)
				e.currentValue = e.releaseLevel * (1.0 - shaped)
				e.timeInStage += sampleDuration
			}
		} else {
			e.currentValue = 0
			e.stage = EnvelopeIdle
			e.timeInStage = 0
		}
	}

	return e.currentValue
}

func (e *Envelope) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	out := outputs[port.EnvelopeMod]
	gateIn := inputs[port.CombinedGate]

	smoothN := e.params.AttackSmoothingSamples

	for i := range out {
		gate := ctx.Gate
		if gateIn != nil {
			gate = gateIn[i]
		}

		if gate > 0 && e.lastGate <= 0 {
			e.trigger()
		} else if gate <= 0 && e.lastGate > 0 {
			e.release()
		}
		e.lastGate = gate

		raw := e.advance()

		if smoothN > 0 {
			alpha := 1.0 / float64(smoothN)
			e.smoothed += (raw - e.smoothed) * alpha
			out[i] = sanitize(float32(e.smoothed))
		} else {
			out[i] = sanitize(float32(raw))
		}
	}
}

// IsActive reports whether the envelope is currently producing a
// non-idle value.
func (e *Envelope) IsActive() bool {
	return e.stage != EnvelopeIdle
}
