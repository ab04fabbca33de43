package engine

import (
	"fmt"

	"github.com/vgraph/voicegraph/pkg/engineerr"
	"github.com/vgraph/voicegraph/pkg/node"
	"github.com/vgraph/voicegraph/pkg/rtcheck"
	"github.com/vgraph/voicegraph/pkg/voice"
)

// silenceFloor is the peak amplitude below which a releasing voice is
// considered to have settled, per spec.md §8's "falls monotonically to
// below 1e-4" scenario.
const silenceFloor = 1e-4

// ProcessAudio runs one block: it drains pending control-plane
// mutations, resyncs the voice pool's topology if it changed, sums
// every voice's stereo output into frame.OutL/OutR, runs the global
// effects chain, and applies master gain. It is the engine's sole
// per-block entry point and the only method meant to run on the
// host's audio thread.
func (e *Engine) ProcessAudio(frame *AutomationFrame) error {
	n := len(frame.OutL)
	if n == 0 || n > MaxBlockFrames || n != len(frame.OutR) {
		return fmt.Errorf("engine: %w: outL=%d outR=%d", engineerr.ErrBufferLengthMismatch, len(frame.OutL), len(frame.OutR))
	}
	if len(frame.Gates) != e.voiceCount || len(frame.Frequencies) != e.voiceCount ||
		len(frame.Gains) != e.voiceCount || len(frame.Velocities) != e.voiceCount {
		return fmt.Errorf("engine: %w: automation frame does not match voice count %d", engineerr.ErrBufferLengthMismatch, e.voiceCount)
	}

	if rtcheck.InProcessBlock() {
		panic("engine: ProcessAudio re-entered on the audio thread")
	}
	rtcheck.EnterBlock()
	defer rtcheck.ExitBlock()

	start := e.perf.Begin()
	defer e.perf.End(start)

	e.mutations.drain(e)
	e.pool.ResyncIfDirty(e.canonical)

	for i := range frame.OutL {
		frame.OutL[i] = 0
		frame.OutR[i] = 0
	}

	ctx := node.Context{SampleRate: e.sampleRate, FrameCount: n}

	for i := 0; i < e.voiceCount; i++ {
		e.pool.UpdatePlayState(i, frame.Gates[i])
		if e.pool.PlayState(i) == PlayIdle {
			continue
		}

		ctrl := voice.ControlInputs{
			Gate:      boolToGate(frame.Gates[i] > 0.5),
			Frequency: frame.Frequencies[i],
			Velocity:  frame.Velocities[i],
		}
		for m := 0; m < 4; m++ {
			ctrl.Macros[m] = macroSample(frame.Macros, i, m, 0, n)
		}
		ctrl.ExternalInputs = e.macroExternalInputs(i, frame.Macros, n)
		ctx.RNGSeed = uint64(i)

		left, right := e.pool.Voice(i).ProcessBlock(ctx, ctrl)

		gain := frame.Gains[i]
		peak := float32(0)
		for s := 0; s < n; s++ {
			l := left[s] * gain
			r := right[s] * gain
			frame.OutL[s] += l
			frame.OutR[s] += r
			if abs := l; abs > peak || -abs > peak {
				if abs < 0 {
					abs = -abs
				}
				if abs > peak {
					peak = abs
				}
			}
		}
		if e.pool.PlayState(i) == PlayReleasing && peak < silenceFloor {
			e.pool.MarkIdle(i)
		}
	}

	e.effects.ProcessBlock(ctx, frame.OutL, frame.OutR)

	for i := 0; i < n; i++ {
		frame.OutL[i] *= frame.MasterGain
		frame.OutR[i] *= frame.MasterGain
	}

	return nil
}

func boolToGate(high bool) float32 {
	if high {
		return 1
	}
	return 0
}

// macroExternalInputs builds one voice.ExternalInput per macro routing
// targeting voiceIndex, each carrying that macro's per-sample value for
// this block so it folds into the destination port's accumulator the
// same way an ordinary connection does.
func (e *Engine) macroExternalInputs(voiceIndex int, macros []float32, n int) []voice.ExternalInput {
	var out []voice.ExternalInput
	for _, m := range e.macros {
		if m.VoiceIndex != voiceIndex {
			continue
		}
		value := make([]float32, n)
		for s := 0; s < n; s++ {
			value[s] = macroSample(macros, voiceIndex, m.MacroIndex, s, n)
		}
		out = append(out, voice.ExternalInput{
			TargetNode: m.TargetNode,
			TargetPort: m.TargetPort,
			Value:      value,
			Amount:     m.Amount,
			Mode:       m.Mode,
			Transform:  m.Transform,
		})
	}
	return out
}
