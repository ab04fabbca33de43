package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// LfoTriggerMode selects what resets an LFO's phase.
type LfoTriggerMode int

const (
	LfoTriggerNone LfoTriggerMode = iota
	LfoTriggerGate
	LfoTriggerEnvelope
)

// LfoLoopMode selects how an LFO's phase wraps within [LoopStart, LoopEnd).
type LfoLoopMode int

const (
	LfoLoopOff LfoLoopMode = iota
	LfoLoopLoop
	LfoLoopPingPong
)

// LFOParams is the user-visible parameter struct for LFO.
type LFOParams struct {
	Frequency   float32
	PhaseOffset float32 // 0..1
	Waveform    Waveform
	Trigger     LfoTriggerMode
	Loop        LfoLoopMode
	LoopStart   float32 // 0..1
	LoopEnd     float32 // 0..1
	Gain        float32
	UseNormalized bool // output 0..1 instead of -1..1
	UseAbsolute   bool // output abs(value), applied after normalization
	Active        bool
}

// DefaultLFOParams returns a free-running 2Hz sine LFO in -1..1.
func DefaultLFOParams() LFOParams {
	return LFOParams{
		Frequency: 2.0,
		Waveform:  WaveformSine,
		Trigger:   LfoTriggerNone,
		Loop:      LfoLoopLoop,
		LoopStart: 0,
		LoopEnd:   1,
		Gain:      1,
		Active:    true,
	}
}

func (p LFOParams) clamped() LFOParams {
	p.Frequency = clampF32(p.Frequency, 0.001, 200)
	p.PhaseOffset = clampF32(p.PhaseOffset, 0, 1)
	p.LoopStart = clampF32(p.LoopStart, 0, 1)
	p.LoopEnd = clampF32(p.LoopEnd, 0, 1)
	if p.LoopEnd <= p.LoopStart {
		p.LoopEnd = p.LoopStart + 0.001
	}
	p.Gain = clampF32(p.Gain, 0, 4)
	return p
}

// LFO is a free-running or triggerable low-frequency oscillator
// writing a bipolar (or normalized/absolute) modulator to AudioOutput0.
// It reads GlobalGate (for gate-triggered reset) and Frequency.
type LFO struct {
	sampleRate     float64
	params         LFOParams
	phase          float64
	direction      float64 // +1 or -1, for ping-pong looping
	lastGate       float32
	envelopeWasOn  bool
}

func init() {
	Register("LFO", func(sampleRate float64) Node {
		return NewLFO(sampleRate)
	})
}

// NewLFO creates an LFO at the given sample rate with default
// parameters.
func NewLFO(sampleRate float64) *LFO {
	return &LFO{sampleRate: sampleRate, params: DefaultLFOParams(), direction: 1}
}

func (l *LFO) Kind() string { return "LFO" }

func (l *LFO) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.GlobalGate, port.Frequency},
		Writes: []port.ID{port.AudioOutput0},
	}
}

func (l *LFO) UpdateParameters(params any) {
	if p, ok := params.(LFOParams); ok {
		l.params = p.clamped()
	}
}

func (l *LFO) Reset() {
	l.phase = float64(l.params.PhaseOffset)
	l.direction = 1
	l.lastGate = 0
	l.envelopeWasOn = false
}

// NotifyEnvelopeAttack resets the phase of an envelope-trigger mode
// LFO. The voice graph evaluator does not call it, so an LFO in
// LfoTriggerEnvelope mode only resets when a caller invokes this
// method directly.
func (l *LFO) NotifyEnvelopeAttack() {
	if l.params.Trigger == LfoTriggerEnvelope {
		l.phase = float64(l.params.PhaseOffset)
		l.direction = 1
	}
}

func (l *LFO) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	out := outputs[port.AudioOutput0]
	if !l.params.Active {
		for i := range out {
			out[i] = 0
		}
		return
	}

	gateIn := inputs[port.GlobalGate]
	freqIn := inputs[port.Frequency]

	start := float64(l.params.LoopStart)
	end := float64(l.params.LoopEnd)
	span := end - start

	for i := range out {
		gate := ctx.Gate
		if gateIn != nil {
			gate = gateIn[i]
		}
		if l.params.Trigger == LfoTriggerGate && gate > 0 && l.lastGate <= 0 {
			l.phase = float64(l.params.PhaseOffset)
			l.direction = 1
		}
		l.lastGate = gate

		freq := float64(l.params.Frequency)
		if freqIn != nil {
			freq = float64(freqIn[i])
		}

		raw := waveformSample(wrapUnit(l.phase), l.params.Waveform, 0.5)

		value := float32(raw)
		if l.params.UseNormalized {
			value = (value + 1) / 2
		}
		if l.params.UseAbsolute {
			value = float32(math.Abs(float64(value)))
		}
		out[i] = sanitize(value * l.params.Gain)

		step := freq / l.sampleRate
		switch l.params.Loop {
		case LfoLoopOff:
			l.phase += step
			if l.phase > end {
				l.phase = end
			}
		case LfoLoopPingPong:
			l.phase += step * l.direction
			if l.phase >= end {
				l.phase = end
				l.direction = -1
			} else if l.phase <= start {
				l.phase = start
				l.direction = 1
			}
		default: // LfoLoopLoop
			l.phase += step
			if span > 0 {
				for l.phase >= end {
					l.phase -= span
				}
			}
		}
	}
}

func wrapUnit(phase float64) float64 {
	phase -= math.Floor(phase)
	return phase
}
