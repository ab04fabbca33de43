package node

import (
	"math"
	"testing"

	"github.com/vgraph/voicegraph/pkg/port"
)

func TestFilterCollectionLowpassAttenuatesHighFrequency(t *testing.T) {
	sampleRate := 44100.0
	f := NewFilterCollection(sampleRate)
	f.UpdateParameters(FilterCollectionParams{
		Type: FilterLowpass, Slope: Slope24dB, Cutoff: 500, Resonance: 0.707, OutputGain: 1, Active: true,
	})

	n := 4096
	in := make([]float32, n)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 8000 * float64(i) / sampleRate))
	}
	outputs := newTestOutputs(n, port.AudioOutput0)
	ctx := Context{SampleRate: sampleRate, FrameCount: n}
	f.ProcessBlock(ctx, map[port.ID][]float32{port.AudioInput0: in}, outputs)

	var inPeak, outPeak float32
	for i := n / 2; i < n; i++ {
		if a := abs32(in[i]); a > inPeak {
			inPeak = a
		}
		if a := abs32(outputs[port.AudioOutput0][i]); a > outPeak {
			outPeak = a
		}
	}
	if outPeak >= inPeak*0.5 {
		t.Fatalf("expected substantial attenuation of 8kHz through a 500Hz lowpass, in=%f out=%f", inPeak, outPeak)
	}
}

func TestFilterCollectionNoNaNOrInf(t *testing.T) {
	f := NewFilterCollection(44100)
	f.UpdateParameters(FilterCollectionParams{Type: FilterComb, CombFreq: 110, CombDamp: 0.9, OutputGain: 1, Active: true})

	n := 2048
	in := make([]float32, n)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 220 * float64(i) / 44100))
	}
	outputs := newTestOutputs(n, port.AudioOutput0)
	ctx := Context{SampleRate: 44100, FrameCount: n, Frequency: 440}
	f.ProcessBlock(ctx, map[port.ID][]float32{port.AudioInput0: in}, outputs)

	for i, s := range outputs[port.AudioOutput0] {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			t.Fatalf("sample %d not finite: %v", i, s)
		}
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
