package node

import (
	"testing"

	"github.com/vgraph/voicegraph/pkg/port"
)

func runEnvelopeBlocks(t *testing.T, env *Envelope, gate float32, blocks, frameCount int) []float32 {
	t.Helper()
	var all []float32
	ctx := Context{SampleRate: 44100, FrameCount: frameCount, Gate: gate}
	for b := 0; b < blocks; b++ {
		outputs := newTestOutputs(frameCount, port.EnvelopeMod)
		env.ProcessBlock(ctx, map[port.ID][]float32{}, outputs)
		all = append(all, outputs[port.EnvelopeMod]...)
	}
	return all
}

func TestEnvelopeSettlesToSustain(t *testing.T) {
	env := NewEnvelope(44100)
	env.UpdateParameters(EnvelopeParams{
		Attack: 0.01, Decay: 0.1, Sustain: 0.5, Release: 0.2, Active: true,
	})

	samples := runEnvelopeBlocks(t, env, 1, 20, 128)

	// Attack + Decay take (0.01+0.1)*44100 ~= 4851 samples; with 20*128=2560
	// samples in this run we haven't fully settled, so extend.
	samples = append(samples, runEnvelopeBlocks(t, env, 1, 20, 128)...)

	last := samples[len(samples)-1]
	if diff := last - 0.5; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("expected envelope to settle near sustain 0.5, got %f", last)
	}
}

func TestEnvelopeRisesAndFallsOnGateEdges(t *testing.T) {
	env := NewEnvelope(44100)
	env.UpdateParameters(EnvelopeParams{Attack: 0.001, Decay: 0.01, Sustain: 0.6, Release: 0.01, Active: true})

	ctx := Context{SampleRate: 44100, FrameCount: 128, Gate: 1}
	outputs := newTestOutputs(128, port.EnvelopeMod)
	env.ProcessBlock(ctx, map[port.ID][]float32{}, outputs)

	if env.Stage() == EnvelopeIdle {
		t.Fatal("expected envelope to have left idle after a gate-high block")
	}

	// Run enough high-gate blocks to reach sustain.
	for i := 0; i < 10; i++ {
		env.ProcessBlock(ctx, map[port.ID][]float32{}, outputs)
	}
	if env.Stage() != EnvelopeSustain {
		t.Fatalf("expected sustain stage, got %v", env.Stage())
	}

	ctx.Gate = 0
	env.ProcessBlock(ctx, map[port.ID][]float32{}, outputs)
	if env.Stage() != EnvelopeRelease {
		t.Fatalf("expected release stage after gate falls, got %v", env.Stage())
	}
}

func TestEnvelopeResetIsSilent(t *testing.T) {
	env := NewEnvelope(44100)
	ctx := Context{SampleRate: 44100, FrameCount: 128, Gate: 1}
	outputs := newTestOutputs(128, port.EnvelopeMod)
	env.ProcessBlock(ctx, map[port.ID][]float32{}, outputs)

	env.Reset()
	ctx.Gate = 0
	env.ProcessBlock(ctx, map[port.ID][]float32{}, outputs)
	for i, s := range outputs[port.EnvelopeMod] {
		if s != 0 {
			t.Fatalf("expected silence after reset with gate=0, sample %d was %f", i, s)
		}
	}
}
