package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// SamplerLoopMode selects how Sampler wraps playback at its loop
// boundaries.
type SamplerLoopMode int

const (
	SamplerLoopOff SamplerLoopMode = iota
	SamplerLoopLoop
	SamplerLoopPingPong
)

// SamplerTriggerMode selects what starts and stops Sampler playback.
type SamplerTriggerMode int

const (
	SamplerTriggerFreeRunning SamplerTriggerMode = iota
	SamplerTriggerGate
	SamplerTriggerOneShot
)

// SamplerParams is the user-visible parameter struct for Sampler.
type SamplerParams struct {
	RootNote   int // MIDI note number the sample was recorded at
	TuningFreq float32
	Loop       SamplerLoopMode
	LoopStart  int // sample frames
	LoopEnd    int // sample frames
	Trigger    SamplerTriggerMode
	Gain       float32
	Active     bool
}

// DefaultSamplerParams returns A4-rooted, free-running, no loop,
// active.
func DefaultSamplerParams() SamplerParams {
	return SamplerParams{
		RootNote:   69,
		TuningFreq: 440,
		Loop:       SamplerLoopOff,
		Trigger:    SamplerTriggerFreeRunning,
		Gain:       1.0,
		Active:     true,
	}
}

func (p SamplerParams) clamped(sampleLen int) SamplerParams {
	p.Gain = clampF32(p.Gain, 0, 2)
	if p.TuningFreq <= 0 {
		p.TuningFreq = 440
	}
	if sampleLen > 0 {
		if p.LoopEnd <= 0 || p.LoopEnd > sampleLen {
			p.LoopEnd = sampleLen
		}
		if p.LoopStart < 0 || p.LoopStart >= p.LoopEnd {
			p.LoopStart = 0
		}
	}
	return p
}

// Sampler plays back an imported single-channel sample, resampling by
// the ratio of the voice's current frequency to the sample's root
// frequency. It reads GlobalGate, GlobalFrequency, GainMod, DetuneMod,
// and writes AudioOutput0.
type Sampler struct {
	params SamplerParams

	sample []float32

	position  float64
	direction float64
	playing   bool
	lastGate  float32
}

func init() {
	Register("Sampler", func(sampleRate float64) Node {
		return NewSampler()
	})
}

// NewSampler creates a sampler with no sample loaded; it produces
// silence until SetSample is called.
func NewSampler() *Sampler {
	s := &Sampler{params: DefaultSamplerParams()}
	s.Reset()
	return s
}

func (s *Sampler) Kind() string { return "Sampler" }

func (s *Sampler) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.GlobalGate, port.GlobalFrequency, port.GainMod, port.DetuneMod},
		Writes: []port.ID{port.AudioOutput0},
	}
}

func (s *Sampler) UpdateParameters(params any) {
	if p, ok := params.(SamplerParams); ok {
		s.params = p.clamped(len(s.sample))
	}
}

func (s *Sampler) Reset() {
	s.position = 0
	s.direction = 1
	s.playing = s.params.Trigger == SamplerTriggerFreeRunning
	s.lastGate = 0
}

// SetSample replaces the playback buffer with a normalized
// single-channel buffer of samples. An empty buffer is rejected and
// the existing sample retained, matching the engine's import-failure
// policy (sampler continues producing whatever it produced before).
func (s *Sampler) SetSample(samples []float32) bool {
	if len(samples) == 0 {
		return false
	}
	s.sample = samples
	s.params = s.params.clamped(len(samples))
	return true
}

// rootFrequency returns the pitch the sample was recorded at: RootNote's
// equal-tempered frequency, taking TuningFreq as the pitch of MIDI
// note 69 (concert A).
func (s *Sampler) rootFrequency() float64 {
	return float64(s.params.TuningFreq) * math.Pow(2.0, float64(s.params.RootNote-69)/12.0)
}

func (s *Sampler) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	out := outputs[port.AudioOutput0]
	if len(s.sample) == 0 || !s.params.Active {
		for i := range out {
			out[i] = 0
		}
		return
	}

	gateIn := inputs[port.GlobalGate]
	freqIn := inputs[port.GlobalFrequency]
	gainMod := inputs[port.GainMod]
	detuneMod := inputs[port.DetuneMod]

	loopStart := float64(s.params.LoopStart)
	loopEnd := float64(s.params.LoopEnd)
	if loopEnd <= loopStart {
		loopEnd = float64(len(s.sample))
	}
	sampleLen := float64(len(s.sample))

	for i := range out {
		gate := ctx.Gate
		if gateIn != nil {
			gate = gateIn[i]
		}

		if s.params.Trigger == SamplerTriggerGate {
			if gate > 0 && s.lastGate <= 0 {
				s.position = 0
				s.direction = 1
				s.playing = true
			} else if gate <= 0 && s.lastGate > 0 {
				s.playing = false
			}
		} else if s.params.Trigger == SamplerTriggerOneShot {
			if gate > 0 && s.lastGate <= 0 {
				s.position = 0
				s.direction = 1
				s.playing = true
			}
		}
		s.lastGate = gate

		if !s.playing {
			out[i] = 0
			continue
		}

		freq := ctx.Frequency
		if freqIn != nil {
			freq = freqIn[i]
		}
		if detuneMod != nil {
			freq *= float32(math.Pow(2.0, float64(detuneMod[i])/1200.0))
		}

		ratio := float64(freq) / s.rootFrequency()
		if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
			ratio = 1
		}

		pos := s.position
		i0 := int(pos)
		if i0 < 0 {
			i0 = 0
		}
		if i0 >= len(s.sample) {
			i0 = len(s.sample) - 1
		}
		i1 := i0 + 1
		if i1 >= len(s.sample) {
			i1 = len(s.sample) - 1
		}
		frac := float32(pos - math.Floor(pos))
		sample := s.sample[i0]*(1-frac) + s.sample[i1]*frac

		gain := s.params.Gain
		if gainMod != nil {
			gain *= gainMod[i]
		}
		out[i] = sanitize(sample * gain)

		switch s.params.Loop {
		case SamplerLoopLoop:
			s.position += ratio
			if loopEnd > loopStart {
				for s.position >= loopEnd {
					s.position -= loopEnd - loopStart
				}
			}
		case SamplerLoopPingPong:
			s.position += ratio * s.direction
			if s.position >= loopEnd {
				s.position = loopEnd
				s.direction = -1
			} else if s.position <= loopStart {
				s.position = loopStart
				s.direction = 1
			}
		default: // SamplerLoopOff
			s.position += ratio
			if s.position >= sampleLen {
				s.position = sampleLen - 1
				s.playing = false
			}
		}
	}
}
