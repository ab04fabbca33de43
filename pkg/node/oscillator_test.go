package node

import (
	"math"
	"testing"

	"github.com/vgraph/voicegraph/pkg/port"
)

func newTestOutputs(n int, ports ...port.ID) map[port.ID][]float32 {
	m := make(map[port.ID][]float32, len(ports))
	for _, p := range ports {
		m[p] = make([]float32, n)
	}
	return m
}

func TestAnalogOscillatorSineAmplitude(t *testing.T) {
	osc := NewAnalogOscillator(44100)
	osc.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSine, UnisonVoices: 1, Gain: 1.0, AntiAlias: true, Active: true})

	outputs := newTestOutputs(4410, port.AudioOutput0)
	ctx := Context{SampleRate: 44100, FrameCount: 4410, Frequency: 440}
	osc.ProcessBlock(ctx, map[port.ID][]float32{}, outputs)

	var peak float32
	for _, s := range outputs[port.AudioOutput0] {
		if s > peak {
			peak = s
		}
		if s < -peak {
			peak = -s
		}
	}
	if peak < 0.95 || peak > 1.05 {
		t.Fatalf("expected peak amplitude near 1.0, got %f", peak)
	}
}

func TestAnalogOscillatorNoNaNOrInf(t *testing.T) {
	osc := NewAnalogOscillator(44100)
	osc.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSaw, UnisonVoices: 1, Gain: 1.0, AntiAlias: true, Active: true})

	outputs := newTestOutputs(128, port.AudioOutput0)
	freqMod := make([]float32, 128)
	for i := range freqMod {
		freqMod[i] = float32(i * 1000) // push frequency out of sane range
	}
	ctx := Context{SampleRate: 44100, FrameCount: 128, Frequency: 440}
	osc.ProcessBlock(ctx, map[port.ID][]float32{port.FrequencyMod: freqMod}, outputs)

	for i, s := range outputs[port.AudioOutput0] {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			t.Fatalf("sample %d is not finite: %v", i, s)
		}
	}
}

func TestAnalogOscillatorResetClearsPhase(t *testing.T) {
	osc := NewAnalogOscillator(44100)
	osc.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSine, UnisonVoices: 1, Gain: 1.0, Active: true})
	outputs := newTestOutputs(64, port.AudioOutput0)
	ctx := Context{SampleRate: 44100, FrameCount: 64, Frequency: 440}
	osc.ProcessBlock(ctx, map[port.ID][]float32{}, outputs)

	if osc.unisonPhases[0] == 0 {
		t.Fatal("expected phase to have advanced")
	}
	osc.Reset()
	if osc.unisonPhases[0] != 0 {
		t.Fatalf("expected phase reset to 0, got %f", osc.unisonPhases[0])
	}
}

func TestAnalogOscillatorInactiveProducesSilence(t *testing.T) {
	osc := NewAnalogOscillator(44100)
	osc.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSine, UnisonVoices: 1, Gain: 1.0, Active: false})

	outputs := newTestOutputs(64, port.AudioOutput0)
	ctx := Context{SampleRate: 44100, FrameCount: 64, Frequency: 440}
	osc.ProcessBlock(ctx, map[port.ID][]float32{}, outputs)

	for i, s := range outputs[port.AudioOutput0] {
		if s != 0 {
			t.Fatalf("sample %d: expected silence while inactive, got %f", i, s)
		}
	}
}

func TestAnalogOscillatorFrequencyModIsMultiplicative(t *testing.T) {
	osc := NewAnalogOscillator(44100)
	osc.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSine, UnisonVoices: 1, Gain: 1.0, Active: true})

	outputs := newTestOutputs(4410, port.AudioOutput0)
	freqMod := make([]float32, 4410)
	for i := range freqMod {
		freqMod[i] = 2.0 // double pitch: 220 Hz base -> 440 Hz actual
	}
	ctx := Context{SampleRate: 44100, FrameCount: 4410, Frequency: 220}
	osc.ProcessBlock(ctx, map[port.ID][]float32{port.FrequencyMod: freqMod}, outputs)

	zeroCrossings := 0
	out := outputs[port.AudioOutput0]
	for i := 1; i < len(out); i++ {
		if out[i-1] < 0 && out[i] >= 0 {
			zeroCrossings++
		}
	}
	// A 440Hz sine over exactly 0.1s (4410 samples @ 44100Hz) completes
	// 44 cycles, one rising zero crossing each; a 220Hz doubling bug
	// (additive Hz offset) or an unscaled ratio would land far off 44.
	if zeroCrossings < 40 || zeroCrossings > 48 {
		t.Fatalf("expected about 44 rising zero crossings for a 2x ratio on a 220Hz base, got %d", zeroCrossings)
	}
}

func TestAnalogOscillatorUnisonDetuneWidensSpectrum(t *testing.T) {
	single := NewAnalogOscillator(44100)
	single.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSaw, UnisonVoices: 1, Gain: 1.0, AntiAlias: true, Active: true})
	stacked := NewAnalogOscillator(44100)
	stacked.UpdateParameters(AnalogOscillatorParams{
		Waveform: WaveformSaw, UnisonVoices: 4, Spread: 40, Gain: 1.0, AntiAlias: true, Active: true,
	})

	outSingle := newTestOutputs(512, port.AudioOutput0)
	outStacked := newTestOutputs(512, port.AudioOutput0)
	ctx := Context{SampleRate: 44100, FrameCount: 512, Frequency: 220}
	single.ProcessBlock(ctx, map[port.ID][]float32{}, outSingle)
	stacked.ProcessBlock(ctx, map[port.ID][]float32{}, outStacked)

	same := true
	for i := range outSingle[port.AudioOutput0] {
		if math.Abs(float64(outSingle[port.AudioOutput0][i]-outStacked[port.AudioOutput0][i])) > 1e-4 {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected detuned unison stacking to differ from a single voice")
	}
}

func TestAnalogOscillatorHardSyncResetsPhaseOnTransition(t *testing.T) {
	osc := NewAnalogOscillator(44100)
	osc.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSine, UnisonVoices: 1, Gain: 1.0, HardSync: true, Active: true})

	outputs := newTestOutputs(8, port.AudioOutput0)
	phaseMod := make([]float32, 8)
	phaseMod[0] = 1.0
	phaseMod[1] = 0.0 // 1 -> 0 transition on sample 1: phase resets to 0 here
	ctx := Context{SampleRate: 44100, FrameCount: 8, Frequency: 440}
	osc.ProcessBlock(ctx, map[port.ID][]float32{port.PhaseMod: phaseMod}, outputs)

	// sin(2*pi*0) == 0, so the resync sample should land near zero.
	if math.Abs(float64(outputs[port.AudioOutput0][1])) > 1e-3 {
		t.Fatalf("expected hard sync to reset phase near zero, got %f", outputs[port.AudioOutput0][1])
	}
}

func TestAnalogOscillatorDetuneModAppliesCents(t *testing.T) {
	flat := NewAnalogOscillator(44100)
	flat.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSine, UnisonVoices: 1, Gain: 1.0, Active: true})
	detuned := NewAnalogOscillator(44100)
	detuned.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSine, UnisonVoices: 1, Gain: 1.0, Active: true})

	outFlat := newTestOutputs(4410, port.AudioOutput0)
	outDetuned := newTestOutputs(4410, port.AudioOutput0)
	detuneMod := make([]float32, 4410)
	for i := range detuneMod {
		detuneMod[i] = 1200 // a full octave up, in cents
	}
	ctx := Context{SampleRate: 44100, FrameCount: 4410, Frequency: 220}
	flat.ProcessBlock(ctx, map[port.ID][]float32{}, outFlat)
	detuned.ProcessBlock(ctx, map[port.ID][]float32{port.DetuneMod: detuneMod}, outDetuned)

	zerosFlat, zerosDetuned := 0, 0
	for i := 1; i < 4410; i++ {
		if outFlat[port.AudioOutput0][i-1] < 0 && outFlat[port.AudioOutput0][i] >= 0 {
			zerosFlat++
		}
		if outDetuned[port.AudioOutput0][i-1] < 0 && outDetuned[port.AudioOutput0][i] >= 0 {
			zerosDetuned++
		}
	}
	// 1200 cents is a 2x ratio: the detuned run should complete roughly
	// twice as many cycles as the flat run over the same block.
	if zerosDetuned < zerosFlat*2-2 || zerosDetuned > zerosFlat*2+2 {
		t.Fatalf("expected ~2x zero crossings under +1200 cents DetuneMod, got flat=%d detuned=%d", zerosFlat, zerosDetuned)
	}
}

func TestAnalogOscillatorGainModScalesOutput(t *testing.T) {
	osc := NewAnalogOscillator(44100)
	osc.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSine, UnisonVoices: 1, Gain: 1.0, Active: true})

	outputs := newTestOutputs(4410, port.AudioOutput0)
	gainMod := make([]float32, 4410)
	for i := range gainMod {
		gainMod[i] = 0.25
	}
	ctx := Context{SampleRate: 44100, FrameCount: 4410, Frequency: 440}
	osc.ProcessBlock(ctx, map[port.ID][]float32{port.GainMod: gainMod}, outputs)

	var peak float32
	for _, s := range outputs[port.AudioOutput0] {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	if peak < 0.2 || peak > 0.3 {
		t.Fatalf("expected peak near 0.25 under GainMod=0.25, got %f", peak)
	}
}

func TestAnalogOscillatorFeedbackAltersWaveform(t *testing.T) {
	clean := NewAnalogOscillator(44100)
	clean.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSine, UnisonVoices: 1, Gain: 1.0, Active: true})
	fed := NewAnalogOscillator(44100)
	fed.UpdateParameters(AnalogOscillatorParams{Waveform: WaveformSine, UnisonVoices: 1, Gain: 1.0, FeedbackAmount: 1.0, Active: true})

	outClean := newTestOutputs(256, port.AudioOutput0)
	outFed := newTestOutputs(256, port.AudioOutput0)
	ctx := Context{SampleRate: 44100, FrameCount: 256, Frequency: 440}
	clean.ProcessBlock(ctx, map[port.ID][]float32{}, outClean)
	fed.ProcessBlock(ctx, map[port.ID][]float32{}, outFed)

	same := true
	for i := range outClean[port.AudioOutput0] {
		if math.Abs(float64(outClean[port.AudioOutput0][i]-outFed[port.AudioOutput0][i])) > 1e-4 {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected self-feedback to alter the waveform versus no feedback")
	}
}

func TestPolyBLEPSawReducesDiscontinuityJump(t *testing.T) {
	naive := 2.0*0.001 - 1.0
	corrected := polyBLEPSaw(0.001, 0.01)
	if math.Abs(corrected-naive) < 1e-9 {
		t.Fatal("expected polyBLEP correction to alter the naive saw value near the discontinuity")
	}
}
