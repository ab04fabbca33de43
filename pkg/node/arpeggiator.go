package node

import "github.com/vgraph/voicegraph/pkg/port"

// ArpMode selects ArpeggiatorGenerator's note-ordering pattern.
type ArpMode int

const (
	ArpUp ArpMode = iota
	ArpDown
	ArpUpDown
	ArpRandom
)

// ArpeggiatorParams is the user-visible parameter struct for
// ArpeggiatorGenerator.
type ArpeggiatorParams struct {
	Mode      ArpMode
	RateHz    float32 // steps per second
	GateRatio float32 // 0..1, fraction of a step the gate stays high
	Active    bool
}

// DefaultArpeggiatorParams returns a disabled arpeggiator at 8 steps/sec.
func DefaultArpeggiatorParams() ArpeggiatorParams {
	return ArpeggiatorParams{Mode: ArpUp, RateHz: 8, GateRatio: 0.5, Active: false}
}

func (p ArpeggiatorParams) clamped() ArpeggiatorParams {
	p.RateHz = clampF32(p.RateHz, 0.1, 50)
	p.GateRatio = clampF32(p.GateRatio, 0.05, 1.0)
	return p
}

// ArpeggiatorGenerator reads the held-note set in Context.HeldNotes and emits an
// ArpGate pulse stream plus a Frequency stream selecting notes in turn
// per Mode. When not Active or the held-note set is empty it holds
// ArpGate low and passes GlobalFrequency through unchanged.
type ArpeggiatorGenerator struct {
	sampleRate float64
	params     ArpeggiatorParams

	stepPhase float64
	stepIndex int
	direction int
	rngState  uint64
}

func init() {
	Register("ArpeggiatorGenerator", func(sampleRate float64) Node {
		return NewArpeggiatorGenerator(sampleRate)
	})
}

// NewArpeggiatorGenerator creates a disabled arpeggiator at the given
// sample rate.
func NewArpeggiatorGenerator(sampleRate float64) *ArpeggiatorGenerator {
	return &ArpeggiatorGenerator{sampleRate: sampleRate, params: DefaultArpeggiatorParams(), direction: 1, rngState: 0x9e3779b97f4a7c15}
}

func (a *ArpeggiatorGenerator) Kind() string { return "ArpeggiatorGenerator" }

func (a *ArpeggiatorGenerator) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.GlobalFrequency},
		Writes: []port.ID{port.ArpGate, port.Frequency},
	}
}

func (a *ArpeggiatorGenerator) UpdateParameters(params any) {
	if p, ok := params.(ArpeggiatorParams); ok {
		a.params = p.clamped()
	}
}

func (a *ArpeggiatorGenerator) Reset() {
	a.stepPhase = 0
	a.stepIndex = 0
	a.direction = 1
}

func (a *ArpeggiatorGenerator) nextRand() float64 {
	a.rngState ^= a.rngState << 13
	a.rngState ^= a.rngState >> 7
	a.rngState ^= a.rngState << 17
	return float64(a.rngState%1_000_000) / 1_000_000.0
}

func (a *ArpeggiatorGenerator) pickFrequency(notes []float32) float32 {
	n := len(notes)
	if n == 0 {
		return 0
	}
	if a.stepIndex >= n {
		a.stepIndex = n - 1
	}
	if a.stepIndex < 0 {
		a.stepIndex = 0
	}

	switch a.params.Mode {
	case ArpRandom:
		idx := int(a.nextRand() * float64(n))
		if idx >= n {
			idx = n - 1
		}
		return notes[idx]
	default:
		return notes[a.stepIndex]
	}
}

func (a *ArpeggiatorGenerator) advanceStep(n int) {
	if n == 0 {
		return
	}
	switch a.params.Mode {
	case ArpDown:
		a.stepIndex--
		if a.stepIndex < 0 {
			a.stepIndex = n - 1
		}
	case ArpUpDown:
		a.stepIndex += a.direction
		if a.stepIndex >= n {
			a.stepIndex = n - 2
			if a.stepIndex < 0 {
				a.stepIndex = 0
			}
			a.direction = -1
		} else if a.stepIndex < 0 {
			a.stepIndex = 1
			if a.stepIndex >= n {
				a.stepIndex = 0
			}
			a.direction = 1
		}
	case ArpRandom:
		// stepIndex unused for note selection; still advances so
		// GateRatio timing stays consistent across modes.
		a.stepIndex++
		if a.stepIndex >= n {
			a.stepIndex = 0
		}
	default: // ArpUp
		a.stepIndex++
		if a.stepIndex >= n {
			a.stepIndex = 0
		}
	}
}

func (a *ArpeggiatorGenerator) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	gateOut := outputs[port.ArpGate]
	freqOut := outputs[port.Frequency]
	freqIn := inputs[port.GlobalFrequency]

	if !a.params.Active || len(ctx.HeldNotes) == 0 {
		for i := range gateOut {
			gateOut[i] = 0
			base := ctx.Frequency
			if freqIn != nil {
				base = freqIn[i]
			}
			freqOut[i] = base
		}
		return
	}

	stepSeconds := 1.0 / float64(a.params.RateHz)
	currentFreq := a.pickFrequency(ctx.HeldNotes)

	for i := range gateOut {
		if a.stepPhase >= stepSeconds {
			a.stepPhase -= stepSeconds
			a.advanceStep(len(ctx.HeldNotes))
			currentFreq = a.pickFrequency(ctx.HeldNotes)
		}

		withinGate := a.stepPhase < stepSeconds*float64(a.params.GateRatio)
		if withinGate {
			gateOut[i] = 1
		} else {
			gateOut[i] = 0
		}
		freqOut[i] = currentFreq

		a.stepPhase += 1.0 / a.sampleRate
	}
}
