// Package wavimport decodes WAV byte slices into the normalized
// []float32 buffers the engine's DSP nodes play back: sampler
// playback buffers and wavetable morph collections. It never resamples to a playing frequency; that
// happens at Sampler/Oscillator process time against the buffers this
// package produces.
package wavimport

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
)

// ErrEmptyDecode is returned when a WAV byte slice decodes to zero
// frames, or is not a valid WAV stream at all.
var ErrEmptyDecode = fmt.Errorf("wavimport: decoded buffer is empty")

// ErrFrameSize is returned by DecodeWavetable when the decoded sample
// count is not evenly divisible by frameLength, or frameLength is not
// positive.
var ErrFrameSize = fmt.Errorf("wavimport: sample count is not a whole number of frames")

// DecodeSample decodes an arbitrary-channel, arbitrary-sample-rate,
// PCM-or-float WAV byte slice into a single-channel, normalized
// []float32 buffer suitable for Sampler.SetSample or as a reverb
// impulse response. Multi-channel input is downmixed to mono by
// averaging channels.
func DecodeSample(data []byte) ([]float32, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, ErrEmptyDecode
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavimport: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, ErrEmptyDecode
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, ErrEmptyDecode
	}

	scale := fullScale(buf.SourceBitDepth)
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			idx := i*channels + c
			if idx >= len(buf.Data) {
				continue
			}
			sum += float32(buf.Data[idx]) / scale
		}
		out[i] = sum / float32(channels)
	}
	return out, nil
}

// DecodeWavetable decodes a WAV byte slice the same way DecodeSample
// does, then splits the resulting mono buffer into a sequence of
// equal-length single-cycle frames of frameLength samples each, for
// WavetableOscillator.SetTable. The decoded sample count must be an
// exact multiple of frameLength.
func DecodeWavetable(data []byte, frameLength int) ([][]float32, error) {
	if frameLength <= 0 {
		return nil, ErrFrameSize
	}
	flat, err := DecodeSample(data)
	if err != nil {
		return nil, err
	}
	if len(flat)%frameLength != 0 {
		return nil, ErrFrameSize
	}

	frameCount := len(flat) / frameLength
	frames := make([][]float32, frameCount)
	for i := 0; i < frameCount; i++ {
		frame := make([]float32, frameLength)
		copy(frame, flat[i*frameLength:(i+1)*frameLength])
		frames[i] = frame
	}
	return frames, nil
}

// fullScale returns the divisor that normalizes a decoded PCM sample
// of the given source bit depth into [-1, 1].
func fullScale(bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return 1 << 7
	case 16:
		return 1 << 15
	case 24:
		return 1 << 23
	case 32:
		return 1 << 31
	default:
		return 1 << 15
	}
}
