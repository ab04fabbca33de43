// The voicegraphdemo command builds one of the engine's seed patch
// scenarios, drives ProcessAudio in a block loop exactly as a native
// host would, and writes the resulting stereo stream to a WAV file —
// a way to manually audit the engine's output without a browser
// worklet.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/vgraph/voicegraph/pkg/engine"
	"github.com/vgraph/voicegraph/pkg/port"
)

var (
	scenario   = flag.String("scenario", "sine", "Scenario to render: sine, fm, adsr")
	outPath    = flag.String("out", "voicegraphdemo.wav", "Output WAV file path")
	seconds    = flag.Float64("seconds", 2.0, "Duration to render, in seconds")
	sampleRate = flag.Float64("sample-rate", 44100, "Sample rate in Hz")
	blockSize  = flag.Int("block-size", 256, "Frames per ProcessAudio call")
	freq       = flag.Float64("freq", 440, "Voice frequency in Hz")
	verbose    = flag.Bool("verbose", false, "Log at debug level")
)

func main() {
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	e := engine.New(*sampleRate, log)
	if err := e.Init(1); err != nil {
		log.Fatal().Err(err).Msg("init failed")
	}

	if err := buildScenario(e, *scenario); err != nil {
		log.Fatal().Err(err).Str("scenario", *scenario).Msg("failed to build scenario")
	}

	totalFrames := int(*seconds * *sampleRate)
	outFile, err := os.Create(*outPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create output file")
	}
	defer outFile.Close()

	enc := wav.NewEncoder(outFile, int(*sampleRate), 16, 2, 1)
	defer enc.Close()

	frame := &engine.AutomationFrame{
		Gates:       []float32{1},
		Frequencies: []float32{float32(*freq)},
		Gains:       []float32{1},
		Velocities:  []float32{1},
		Macros:      make([]float32, 4**blockSize),
		MasterGain:  0.8,
		OutL:        make([]float32, *blockSize),
		OutR:        make([]float32, *blockSize),
	}

	rendered := 0
	for rendered < totalFrames {
		n := *blockSize
		if remaining := totalFrames - rendered; remaining < n {
			n = remaining
			frame.OutL = frame.OutL[:n]
			frame.OutR = frame.OutR[:n]
			frame.Macros = frame.Macros[:4*n]
		}
		if err := e.ProcessAudio(frame); err != nil {
			log.Fatal().Err(err).Msg("processAudio failed")
		}
		if err := writeBlock(enc, frame); err != nil {
			log.Fatal().Err(err).Msg("failed to write block")
		}
		rendered += n
	}

	log.Info().Str("path", *outPath).Int("frames", totalFrames).Msg("render complete")
}

// buildScenario wires one of the engine's seed patches into e's
// canonical graph.
func buildScenario(e *engine.Engine, name string) error {
	switch name {
	case "sine":
		return buildSineScenario(e)
	case "fm":
		return buildFMScenario(e)
	case "adsr":
		return buildADSRScenario(e)
	default:
		return fmt.Errorf("unknown scenario %q", name)
	}
}

// buildSineScenario wires a single AnalogOscillator straight into a
// Mixer: the simplest playable patch.
func buildSineScenario(e *engine.Engine) error {
	osc, err := e.CreateNode("AnalogOscillator")
	if err != nil {
		return err
	}
	mix, err := e.CreateNode("Mixer")
	if err != nil {
		return err
	}
	return e.Connect(port.Connection{
		FromNode: osc, FromPort: port.AudioOutput0,
		ToNode: mix, ToPort: port.AudioInput0,
		Amount: 1, Mode: port.Additive,
	})
}

// buildFMScenario wires a modulator oscillator's output into a
// carrier's PhaseMod input, then the carrier into a Mixer.
func buildFMScenario(e *engine.Engine) error {
	modulator, err := e.CreateNode("AnalogOscillator")
	if err != nil {
		return err
	}
	carrier, err := e.CreateNode("AnalogOscillator")
	if err != nil {
		return err
	}
	mix, err := e.CreateNode("Mixer")
	if err != nil {
		return err
	}
	if err := e.Connect(port.Connection{
		FromNode: modulator, FromPort: port.AudioOutput0,
		ToNode: carrier, ToPort: port.PhaseMod,
		Amount: 0.3, Mode: port.Bipolar,
	}); err != nil {
		return err
	}
	return e.Connect(port.Connection{
		FromNode: carrier, FromPort: port.AudioOutput0,
		ToNode: mix, ToPort: port.AudioInput0,
		Amount: 1, Mode: port.Additive,
	})
}

// buildADSRScenario wires an envelope-controlled Sampler gain stage:
// GateMixer drives Envelope, whose EnvelopeMod output
// amplitude-modulates a Sampler's GainMod input. No oscillator is
// created in this scenario.
func buildADSRScenario(e *engine.Engine) error {
	sampler, err := e.CreateNode("Sampler")
	if err != nil {
		return err
	}
	gateMixer, err := e.CreateNode("GateMixer")
	if err != nil {
		return err
	}
	env, err := e.CreateNode("Envelope")
	if err != nil {
		return err
	}
	mix, err := e.CreateNode("Mixer")
	if err != nil {
		return err
	}

	if err := e.Connect(port.Connection{
		FromNode: gateMixer, FromPort: port.CombinedGate,
		ToNode: env, ToPort: port.CombinedGate,
		Amount: 1, Mode: port.Additive,
	}); err != nil {
		return err
	}
	if err := e.Connect(port.Connection{
		FromNode: env, FromPort: port.EnvelopeMod,
		ToNode: sampler, ToPort: port.GainMod,
		Amount: 1, Mode: port.VCA,
	}); err != nil {
		return err
	}
	if err := e.Connect(port.Connection{
		FromNode: sampler, FromPort: port.AudioOutput0,
		ToNode: mix, ToPort: port.AudioInput0,
		Amount: 1, Mode: port.Additive,
	}); err != nil {
		return err
	}

	// The sampler has no imported sample in this demo; its output
	// stays silent without one, but the envelope/gate wiring above is
	// the point of the scenario, not the sampler's audio content.
	return nil
}

// writeBlock interleaves a block's stereo frame into 16-bit PCM and
// appends it to the encoder.
func writeBlock(enc *wav.Encoder, frame *engine.AutomationFrame) error {
	n := len(frame.OutL)
	data := make([]int, n*2)
	for i := 0; i < n; i++ {
		data[i*2] = int(clamp(frame.OutL[i]) * 32767)
		data[i*2+1] = int(clamp(frame.OutR[i]) * 32767)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: int(*sampleRate)},
		Data:           data,
		SourceBitDepth: 16,
	}
	return enc.Write(buf)
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
