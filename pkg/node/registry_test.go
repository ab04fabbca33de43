package node

import "testing"

func TestRegistryKnowsAllBuiltinKinds(t *testing.T) {
	expected := []string{
		"AnalogOscillator", "WavetableOscillator", "Sampler", "Noise",
		"FilterCollection", "Mixer", "GateMixer",
		"Envelope", "LFO", "Glide",
		"ArpeggiatorGenerator",
		"Delay", "Chorus", "Reverb", "Compressor", "Saturation", "Bitcrusher", "Limiter",
	}
	for _, kind := range expected {
		if !Registered(kind) {
			t.Errorf("expected kind %q to be registered", kind)
		}
	}
}

func TestNewUnknownKindErrors(t *testing.T) {
	_, err := New("NotAKind", 44100)
	if err == nil {
		t.Fatal("expected an error for an unregistered kind")
	}
}

func TestNewBuildsUsableNode(t *testing.T) {
	n, err := New("AnalogOscillator", 44100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Kind() != "AnalogOscillator" {
		t.Fatalf("expected kind AnalogOscillator, got %s", n.Kind())
	}
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Register to panic on duplicate kind")
		}
	}()
	Register("AnalogOscillator", func(sampleRate float64) Node { return NewAnalogOscillator(sampleRate) })
}
