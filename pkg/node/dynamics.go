package node

import (
	"math"

	"github.com/vgraph/voicegraph/pkg/port"
)

// CompressorParams is the user-visible parameter struct for
// Compressor.
type CompressorParams struct {
	ThresholdDB float32
	Ratio       float32 // 1..20
	AttackMs    float32
	ReleaseMs   float32
	MakeupDB    float32
	Mix         float32 // 0..1, dry/wet for parallel compression
	Active      bool
}

// DefaultCompressorParams returns a mild bus-glue setting, active.
func DefaultCompressorParams() CompressorParams {
	return CompressorParams{
		ThresholdDB: -18,
		Ratio:       4,
		AttackMs:    10,
		ReleaseMs:   120,
		MakeupDB:    0,
		Mix:         1,
		Active:      true,
	}
}

func (p CompressorParams) clamped() CompressorParams {
	p.ThresholdDB = clampF32(p.ThresholdDB, -60, 0)
	p.Ratio = clampF32(p.Ratio, 1, 20)
	p.AttackMs = clampF32(p.AttackMs, 0.1, 500)
	p.ReleaseMs = clampF32(p.ReleaseMs, 1, 2000)
	p.MakeupDB = clampF32(p.MakeupDB, -24, 24)
	p.Mix = clampF32(p.Mix, 0, 1)
	return p
}

// Compressor is a classic feed-forward RMS-detector compressor, applied
// identically to both channels driven by a shared detector fed from the
// loudest channel. It reads and writes AudioInput0/1, AudioOutput0/1.
type Compressor struct {
	sampleRate float64
	params     CompressorParams
	envelope   float64
}

func init() {
	Register("Compressor", func(sampleRate float64) Node {
		return NewCompressor(sampleRate)
	})
}

// NewCompressor creates a compressor at the given sample rate with
// default parameters.
func NewCompressor(sampleRate float64) *Compressor {
	return &Compressor{sampleRate: sampleRate, params: DefaultCompressorParams()}
}

func (c *Compressor) Kind() string { return "Compressor" }

func (c *Compressor) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.AudioInput0, port.AudioInput1},
		Writes: []port.ID{port.AudioOutput0, port.AudioOutput1},
	}
}

func (c *Compressor) UpdateParameters(params any) {
	if p, ok := params.(CompressorParams); ok {
		c.params = p.clamped()
	}
}

func (c *Compressor) Reset() {
	c.envelope = 0
}

func linearToDB(linear float64) float64 {
	if linear <= 1e-9 {
		return -180
	}
	return 20.0 * math.Log10(linear)
}

func dbToLinear(db float64) float64 {
	return math.Pow(10.0, db/20.0)
}

func (c *Compressor) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	inL := inputs[port.AudioInput0]
	inR := inputs[port.AudioInput1]
	outL := outputs[port.AudioOutput0]
	outR := outputs[port.AudioOutput1]

	if !c.params.Active {
		for i := range outL {
			outL[i] = 0
			outR[i] = 0
		}
		return
	}

	attackCoeff := math.Exp(-1.0 / (float64(c.params.AttackMs) / 1000.0 * c.sampleRate))
	releaseCoeff := math.Exp(-1.0 / (float64(c.params.ReleaseMs) / 1000.0 * c.sampleRate))
	makeup := dbToLinear(float64(c.params.MakeupDB))

	for i := range outL {
		var sampleL, sampleR float32
		if inL != nil {
			sampleL = inL[i]
		}
		if inR != nil {
			sampleR = inR[i]
		}

		rectified := math.Max(math.Abs(float64(sampleL)), math.Abs(float64(sampleR)))
		squared := rectified * rectified

		if squared > c.envelope {
			c.envelope = attackCoeff*c.envelope + (1-attackCoeff)*squared
		} else {
			c.envelope = releaseCoeff*c.envelope + (1-releaseCoeff)*squared
		}

		rms := math.Sqrt(math.Max(c.envelope, 0))
		levelDB := linearToDB(rms)

		gainReductionDB := 0.0
		if levelDB > float64(c.params.ThresholdDB) {
			excess := levelDB - float64(c.params.ThresholdDB)
			gainReductionDB = excess - excess/float64(c.params.Ratio)
		}
		gain := dbToLinear(-gainReductionDB) * makeup

		wetL := float32(float64(sampleL) * gain)
		wetR := float32(float64(sampleR) * gain)

		mix := c.params.Mix
		outL[i] = sanitize(sampleL*(1-mix) + wetL*mix)
		outR[i] = sanitize(sampleR*(1-mix) + wetR*mix)
	}
}

// LimiterParams is the user-visible parameter struct for Limiter.
type LimiterParams struct {
	CeilingDB   float32
	LookaheadMs float32
	ReleaseMs   float32
	Active      bool
}

// DefaultLimiterParams returns a -0.3dB ceiling with a short lookahead,
// active.
func DefaultLimiterParams() LimiterParams {
	return LimiterParams{CeilingDB: -0.3, LookaheadMs: 3, ReleaseMs: 50, Active: true}
}

func (p LimiterParams) clamped() LimiterParams {
	p.CeilingDB = clampF32(p.CeilingDB, -12, 0)
	p.LookaheadMs = clampF32(p.LookaheadMs, 0.5, 20)
	p.ReleaseMs = clampF32(p.ReleaseMs, 1, 1000)
	return p
}

// Limiter is a lookahead peak limiter with a fixed output ceiling: a
// delay line provides the lookahead window, and a gain envelope derived
// from the peak in that window is applied to the delayed signal.
type Limiter struct {
	sampleRate float64
	params     LimiterParams

	delayL, delayR []float32
	pos            int
	gainEnvelope   float64
}

func init() {
	Register("Limiter", func(sampleRate float64) Node {
		return NewLimiter(sampleRate)
	})
}

// NewLimiter creates a limiter at the given sample rate with default
// parameters.
func NewLimiter(sampleRate float64) *Limiter {
	l := &Limiter{sampleRate: sampleRate, params: DefaultLimiterParams(), gainEnvelope: 1}
	l.resizeDelay()
	return l
}

func (l *Limiter) resizeDelay() {
	length := int(l.sampleRate*float64(l.params.LookaheadMs)/1000.0) + 1
	if len(l.delayL) != length {
		l.delayL = make([]float32, length)
		l.delayR = make([]float32, length)
		l.pos = 0
	}
}

func (l *Limiter) Kind() string { return "Limiter" }

func (l *Limiter) Ports() PortSet {
	return PortSet{
		Reads:  []port.ID{port.AudioInput0, port.AudioInput1},
		Writes: []port.ID{port.AudioOutput0, port.AudioOutput1},
	}
}

func (l *Limiter) UpdateParameters(params any) {
	if p, ok := params.(LimiterParams); ok {
		l.params = p.clamped()
		l.resizeDelay()
	}
}

func (l *Limiter) Reset() {
	for i := range l.delayL {
		l.delayL[i] = 0
		l.delayR[i] = 0
	}
	l.pos = 0
	l.gainEnvelope = 1
}

func (l *Limiter) ProcessBlock(ctx Context, inputs map[port.ID][]float32, outputs map[port.ID][]float32) {
	inL := inputs[port.AudioInput0]
	inR := inputs[port.AudioInput1]
	outL := outputs[port.AudioOutput0]
	outR := outputs[port.AudioOutput1]

	if !l.params.Active {
		for i := range outL {
			outL[i] = 0
			outR[i] = 0
		}
		return
	}

	ceiling := dbToLinear(float64(l.params.CeilingDB))
	releaseCoeff := math.Exp(-1.0 / (float64(l.params.ReleaseMs) / 1000.0 * l.sampleRate))
	length := len(l.delayL)

	for i := range outL {
		var sampleL, sampleR float32
		if inL != nil {
			sampleL = inL[i]
		}
		if inR != nil {
			sampleR = inR[i]
		}

		peak := math.Max(math.Abs(float64(sampleL)), math.Abs(float64(sampleR)))
		targetGain := 1.0
		if peak*l.gainEnvelope > ceiling && peak > 0 {
			targetGain = ceiling / peak
		}

		if targetGain < l.gainEnvelope {
			l.gainEnvelope = targetGain
		} else {
			l.gainEnvelope = releaseCoeff*l.gainEnvelope + (1-releaseCoeff)*targetGain
		}
		if l.gainEnvelope > 1 {
			l.gainEnvelope = 1
		}

		delayedL := l.delayL[l.pos]
		delayedR := l.delayR[l.pos]
		l.delayL[l.pos] = sampleL
		l.delayR[l.pos] = sampleR
		l.pos = (l.pos + 1) % length

		outL[i] = sanitize(float32(float64(delayedL) * l.gainEnvelope))
		outR[i] = sanitize(float32(float64(delayedR) * l.gainEnvelope))
	}
}
