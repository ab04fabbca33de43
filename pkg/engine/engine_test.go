package engine_test

import (
	"io"
	"math"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgraph/voicegraph/pkg/engine"
	"github.com/vgraph/voicegraph/pkg/node"
	"github.com/vgraph/voicegraph/pkg/port"
)

// sliceWriteSeeker is a minimal in-memory io.WriteSeeker: wav.Encoder
// seeks back to the start of the stream to patch chunk sizes once the
// full sample count is known.
type sliceWriteSeeker struct {
	data []byte
	pos  int64
}

func (w *sliceWriteSeeker) Write(p []byte) (int, error) {
	end := w.pos + int64(len(p))
	if end > int64(len(w.data)) {
		grown := make([]byte, end)
		copy(grown, w.data)
		w.data = grown
	}
	copy(w.data[w.pos:end], p)
	w.pos = end
	return len(p), nil
}

func (w *sliceWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekCurrent:
		base = w.pos
	case io.SeekEnd:
		base = int64(len(w.data))
	}
	w.pos = base + offset
	return w.pos, nil
}

func encodeTestWAV(t *testing.T, samples []float32, sampleRate int) []byte {
	t.Helper()
	w := &sliceWriteSeeker{}
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	intData := make([]int, len(samples))
	for i, s := range samples {
		intData[i] = int(s * 32767)
	}
	pcm := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           intData,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(pcm))
	require.NoError(t, enc.Close())
	return w.data
}

func sineSamples(n int, freq, sampleRate float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}
	return out
}

func newTestEngine(t *testing.T, voices int) *engine.Engine {
	t.Helper()
	e := engine.New(44100, zerolog.Nop())
	require.NoError(t, e.Init(voices))
	return e
}

// oscillatorToMixerPatch wires the simplest playable patch into e's
// canonical graph and returns the two node IDs.
func oscillatorToMixerPatch(t *testing.T, e *engine.Engine) (osc, mix string) {
	t.Helper()
	osc, err := e.CreateNode("AnalogOscillator")
	require.NoError(t, err)
	mix, err = e.CreateNode("Mixer")
	require.NoError(t, err)
	require.NoError(t, e.Connect(port.Connection{
		FromNode: osc, FromPort: port.AudioOutput0,
		ToNode: mix, ToPort: port.AudioInput0,
		Amount: 1, Mode: port.Additive,
	}))
	return osc, mix
}

func frameFor(voices, n int) *engine.AutomationFrame {
	return &engine.AutomationFrame{
		Gates:       make([]float32, voices),
		Frequencies: make([]float32, voices),
		Gains:       make([]float32, voices),
		Velocities:  make([]float32, voices),
		Macros:      make([]float32, voices*4*n),
		MasterGain:  1,
		OutL:        make([]float32, n),
		OutR:        make([]float32, n),
	}
}

func TestSingleVoiceSineProducesNonSilentOutput(t *testing.T) {
	e := newTestEngine(t, 1)
	oscillatorToMixerPatch(t, e)

	n := 256
	frame := frameFor(1, n)
	frame.Gates[0] = 1
	frame.Frequencies[0] = 440
	frame.Gains[0] = 1

	require.NoError(t, e.ProcessAudio(frame))

	var peak float32
	for _, s := range frame.OutL {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	assert.Greater(t, peak, float32(0.1))
}

func TestProcessAudioRejectsMismatchedBufferLengths(t *testing.T) {
	e := newTestEngine(t, 1)
	oscillatorToMixerPatch(t, e)

	frame := frameFor(1, 128)
	frame.OutR = make([]float32, 64)
	err := e.ProcessAudio(frame)
	assert.Error(t, err)
}

func TestConnectRejectsCycleWithoutFeedbackCapableEdge(t *testing.T) {
	e := newTestEngine(t, 1)
	a, err := e.CreateNode("Mixer")
	require.NoError(t, err)
	b, err := e.CreateNode("Mixer")
	require.NoError(t, err)

	require.NoError(t, e.Connect(port.Connection{FromNode: a, FromPort: port.AudioOutput0, ToNode: b, ToPort: port.AudioInput0, Amount: 1}))
	err = e.Connect(port.Connection{FromNode: b, FromPort: port.AudioOutput0, ToNode: a, ToPort: port.AudioInput0, Amount: 1})
	assert.Error(t, err)
}

func TestUpdateNodeParamsRejectsWrongKind(t *testing.T) {
	e := newTestEngine(t, 1)
	osc, _ := oscillatorToMixerPatch(t, e)

	err := e.UpdateNodeParams(osc, "Mixer", node.MixerParams{})
	assert.Error(t, err)
}

func TestGetCurrentStateReflectsCreatedGraph(t *testing.T) {
	e := newTestEngine(t, 1)
	osc, mix := oscillatorToMixerPatch(t, e)

	snap := e.GetCurrentState()
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Connections, 1)
	assert.Equal(t, osc, snap.Connections[0].FromNode)
	assert.Equal(t, mix, snap.Connections[0].ToNode)
}

func TestVoicesAreIndependentAcrossSlots(t *testing.T) {
	e := newTestEngine(t, 2)
	oscillatorToMixerPatch(t, e)

	n := 128
	frame := frameFor(2, n)
	frame.Gates[0] = 1
	frame.Frequencies[0] = 440
	frame.Gains[0] = 1
	// voice 1 stays silent (gate low)

	require.NoError(t, e.ProcessAudio(frame))

	var peak float32
	for _, s := range frame.OutL {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	assert.Greater(t, peak, float32(0.1))
}

func TestIdleVoiceProducesNoOutputWithoutEvaluatingGraph(t *testing.T) {
	e := newTestEngine(t, 1)
	oscillatorToMixerPatch(t, e)

	n := 64
	frame := frameFor(1, n)
	frame.Gains[0] = 1
	frame.Frequencies[0] = 440
	// Gate stays low for every block: a voice slot that has never seen
	// a gate edge stays Idle and its graph is never evaluated.

	for i := 0; i < 3; i++ {
		require.NoError(t, e.ProcessAudio(frame))
	}

	for _, s := range frame.OutL {
		assert.Zero(t, s)
	}
}

func TestConnectMacroRejectsOutOfRangeVoiceIndex(t *testing.T) {
	e := newTestEngine(t, 1)
	_, mix := oscillatorToMixerPatch(t, e)

	err := e.ConnectMacro(engine.MacroConnection{
		VoiceIndex: 5,
		MacroIndex: 0,
		TargetNode: mix,
		TargetPort: port.AudioInput1,
		Amount:     1,
	})
	assert.Error(t, err)
}

func TestConnectMacroRoutesValueIntoGraph(t *testing.T) {
	e := newTestEngine(t, 1)
	_, mix := oscillatorToMixerPatch(t, e)

	require.NoError(t, e.ConnectMacro(engine.MacroConnection{
		VoiceIndex: 0,
		MacroIndex: 0,
		TargetNode: mix,
		TargetPort: port.AudioInput1,
		Amount:     1,
		Mode:       port.Additive,
	}))

	n := 32
	frame := frameFor(1, n)
	frame.Gates[0] = 1
	frame.Gains[0] = 1
	// Macro 0 on voice 0 set to a constant 0.5 for every sample.
	for s := 0; s < n; s++ {
		frame.Macros[s] = 0.5
	}

	require.NoError(t, e.ProcessAudio(frame))

	for _, s := range frame.OutL {
		assert.InDelta(t, 0.5, s, 1e-6)
	}
}

func TestResetClearsCPUUsage(t *testing.T) {
	e := newTestEngine(t, 1)
	oscillatorToMixerPatch(t, e)
	e.Reset()
	assert.Zero(t, e.GetCPUUsage())
}

func TestImportSampleLoadsSamplerAndProducesSound(t *testing.T) {
	e := newTestEngine(t, 1)
	sampler, err := e.CreateNode("Sampler")
	require.NoError(t, err)
	mix, err := e.CreateNode("Mixer")
	require.NoError(t, err)
	require.NoError(t, e.Connect(port.Connection{
		FromNode: sampler, FromPort: port.AudioOutput0,
		ToNode: mix, ToPort: port.AudioInput0,
		Amount: 1, Mode: port.Additive,
	}))

	wavBytes := encodeTestWAV(t, sineSamples(4410, 440, 44100), 44100)
	require.NoError(t, e.ImportSample(sampler, wavBytes))

	n := 256
	frame := frameFor(1, n)
	frame.Gates[0] = 1
	frame.Frequencies[0] = 440
	frame.Gains[0] = 1
	require.NoError(t, e.ProcessAudio(frame))

	var peak float32
	for _, s := range frame.OutL {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	assert.Greater(t, peak, float32(0.05))
}

func TestImportSampleRejectsUnknownNode(t *testing.T) {
	e := newTestEngine(t, 1)
	wavBytes := encodeTestWAV(t, sineSamples(64, 440, 44100), 44100)
	err := e.ImportSample("no-such-node", wavBytes)
	assert.Error(t, err)
}

func TestImportSampleRejectsMalformedWAV(t *testing.T) {
	e := newTestEngine(t, 1)
	sampler, err := e.CreateNode("Sampler")
	require.NoError(t, err)
	err = e.ImportSample(sampler, []byte("not a wav file"))
	assert.Error(t, err)
}

func TestImportWavetableLoadsOscillatorAndProducesSound(t *testing.T) {
	e := newTestEngine(t, 1)
	osc, err := e.CreateNode("WavetableOscillator")
	require.NoError(t, err)
	mix, err := e.CreateNode("Mixer")
	require.NoError(t, err)
	require.NoError(t, e.Connect(port.Connection{
		FromNode: osc, FromPort: port.AudioOutput0,
		ToNode: mix, ToPort: port.AudioInput0,
		Amount: 1, Mode: port.Additive,
	}))

	frameLen := 64
	wavBytes := encodeTestWAV(t, sineSamples(frameLen*4, 440, 44100), 44100)
	require.NoError(t, e.ImportWavetable(osc, wavBytes, frameLen))

	n := 256
	frame := frameFor(1, n)
	frame.Gates[0] = 1
	frame.Frequencies[0] = 440
	frame.Gains[0] = 1
	require.NoError(t, e.ProcessAudio(frame))

	var peak float32
	for _, s := range frame.OutL {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	assert.Greater(t, peak, float32(0.05))
}

func TestCreateNodeRejectsGraphFull(t *testing.T) {
	e := newTestEngine(t, 1)
	for i := 0; i < engine.MaxNodesPerGraph; i++ {
		_, err := e.CreateNode("Mixer")
		require.NoError(t, err)
	}
	_, err := e.CreateNode("Mixer")
	assert.Error(t, err)
}

func TestImportWavetableRejectsUnevenFrameSize(t *testing.T) {
	e := newTestEngine(t, 1)
	osc, err := e.CreateNode("WavetableOscillator")
	require.NoError(t, err)
	wavBytes := encodeTestWAV(t, sineSamples(100, 440, 44100), 44100)
	err = e.ImportWavetable(osc, wavBytes, 64)
	assert.Error(t, err)
}
