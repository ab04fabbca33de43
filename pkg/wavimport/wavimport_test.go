package wavimport_test

import (
	"io"
	"math"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/vgraph/voicegraph/pkg/wavimport"
)

// encodeTestWAV builds a mono, 16-bit PCM WAV byte slice from samples
// in [-1, 1], for round-tripping through DecodeSample/DecodeWavetable
// without depending on a fixture file.
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
	if err := enc.Write(pcm); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	return w.data
}

// sliceWriteSeeker is a minimal in-memory io.WriteSeeker: wav.Encoder
// seeks back to the start of the stream to patch RIFF/data chunk
// sizes once the full sample count is known, which a plain
// bytes.Buffer can't support.
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
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = w.pos
	case io.SeekEnd:
		base = int64(len(w.data))
	}
	w.pos = base + offset
	return w.pos, nil
}

func sineSamples(n int, freq, sampleRate float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}
	return out
}

func TestDecodeSampleRoundTripsMonoPCM(t *testing.T) {
	want := sineSamples(256, 440, 44100)
	data := encodeTestWAV(t, want, 44100)

	got, err := wavimport.DecodeSample(data)
	if err != nil {
		t.Fatalf("DecodeSample: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(got))
	}
	for i := range want {
		if diff := math.Abs(float64(got[i] - want[i])); diff > 0.01 {
			t.Fatalf("frame %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestDecodeSampleRejectsEmptyInput(t *testing.T) {
	_, err := wavimport.DecodeSample([]byte{})
	if err == nil {
		t.Fatal("expected an error decoding an empty byte slice")
	}
}

func TestDecodeWavetableSplitsIntoEqualFrames(t *testing.T) {
	frameLen := 64
	frameCount := 4
	samples := sineSamples(frameLen*frameCount, 220, 44100)
	data := encodeTestWAV(t, samples, 44100)

	frames, err := wavimport.DecodeWavetable(data, frameLen)
	if err != nil {
		t.Fatalf("DecodeWavetable: %v", err)
	}
	if len(frames) != frameCount {
		t.Fatalf("expected %d frames, got %d", frameCount, len(frames))
	}
	for i, f := range frames {
		if len(f) != frameLen {
			t.Fatalf("frame %d: expected length %d, got %d", i, frameLen, len(f))
		}
	}
}

func TestDecodeWavetableRejectsUnevenFrameSize(t *testing.T) {
	samples := sineSamples(100, 220, 44100)
	data := encodeTestWAV(t, samples, 44100)

	_, err := wavimport.DecodeWavetable(data, 64)
	if err == nil {
		t.Fatal("expected an error when sample count isn't a multiple of frameLength")
	}
}
