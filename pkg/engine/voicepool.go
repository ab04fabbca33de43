package engine

import (
	"fmt"

	"github.com/vgraph/voicegraph/pkg/node"
	"github.com/vgraph/voicegraph/pkg/voice"
)

// PlayState is a voice slot's current lifecycle state, driven purely
// by the host-supplied gate stream for that slot.
type PlayState int

const (
	PlayIdle PlayState = iota
	PlayPlaying
	PlayReleasing
)

func (s PlayState) String() string {
	switch s {
	case PlayPlaying:
		return "Playing"
	case PlayReleasing:
		return "Releasing"
	default:
		return "Idle"
	}
}

// VoicePool holds the fixed-size set of voice replicas the engine
// drives per block. The host owns voice-to-slot assignment (see
// spec.md §4.E); the pool only tracks each slot's derived play state
// from its own gate stream and keeps every replica structurally in
// sync with the canonical graph across block boundaries.
type VoicePool struct {
	voices     []*voice.Voice
	playStates []PlayState
	lastGate   []float32

	topologyDirty bool
	newNode       func(id, kind string) node.Node
	sampleRate    float64
	blockSize     int
}

// NewVoicePool builds count replicas of canonical.
func NewVoicePool(count int, canonical *voice.Voice, sampleRate float64, blockSize int, newNode func(id, kind string) node.Node) *VoicePool {
	p := &VoicePool{
		playStates: make([]PlayState, count),
		lastGate:   make([]float32, count),
		newNode:    newNode,
		sampleRate: sampleRate,
		blockSize:  blockSize,
	}
	p.rebuild(canonical)
	return p
}

func (p *VoicePool) rebuild(canonical *voice.Voice) {
	p.voices = make([]*voice.Voice, len(p.playStates))
	for i := range p.voices {
		p.voices[i] = canonical.Clone(fmt.Sprintf("voice-%d", i), p.newNode)
	}
	p.topologyDirty = false
}

// MarkTopologyDirty flags that the canonical graph's shape changed
// since the pool was last synced; the engine resyncs at the next
// block boundary.
func (p *VoicePool) MarkTopologyDirty() {
	p.topologyDirty = true
}

// ResyncIfDirty rebuilds every replica from canonical if the topology
// changed since the last block. Play states and gate history are
// per-slot and survive a resync untouched.
func (p *VoicePool) ResyncIfDirty(canonical *voice.Voice) {
	if p.topologyDirty {
		p.rebuild(canonical)
	}
}

// BroadcastParams pushes a parameter update to every replica's node
// with the given ID, if present.
func (p *VoicePool) BroadcastParams(nodeID string, params any) {
	for _, v := range p.voices {
		if entry := v.Node(nodeID); entry != nil {
			entry.Node.UpdateParameters(params)
		}
	}
}

// BroadcastSample pushes an imported sample buffer to every replica's
// node with the given ID, if it accepts one.
func (p *VoicePool) BroadcastSample(nodeID string, samples []float32) {
	for _, v := range p.voices {
		if entry := v.Node(nodeID); entry != nil {
			if setter, ok := entry.Node.(interface{ SetSample([]float32) bool }); ok {
				setter.SetSample(samples)
			}
		}
	}
}

// BroadcastTable pushes an imported wavetable frame set to every
// replica's node with the given ID, if it accepts one.
func (p *VoicePool) BroadcastTable(nodeID string, frames [][]float32) {
	for _, v := range p.voices {
		if entry := v.Node(nodeID); entry != nil {
			if setter, ok := entry.Node.(interface{ SetTable([][]float32) bool }); ok {
				setter.SetTable(frames)
			}
		}
	}
}

// ResetAll clears every replica's DSP state and play tracking.
func (p *VoicePool) ResetAll() {
	for _, v := range p.voices {
		v.Reset()
	}
	for i := range p.playStates {
		p.playStates[i] = PlayIdle
		p.lastGate[i] = 0
	}
}

// UpdatePlayState derives the next play state for slot i from its
// current state and this block's gate value (>0.5 counts as high, per
// spec.md §4.H), and records the gate for the next call's edge
// detection.
func (p *VoicePool) UpdatePlayState(i int, gate float32) {
	high := gate > 0.5
	wasHigh := p.lastGate[i] > 0.5

	switch {
	case high:
		p.playStates[i] = PlayPlaying
	case wasHigh && !high:
		p.playStates[i] = PlayReleasing
	case !high && p.playStates[i] == PlayReleasing:
		// Stays Releasing until the engine observes the voice's
		// envelope(s) have reached silence; ProcessAudio downgrades to
		// Idle once a block produces negligible output for this slot.
	}
	p.lastGate[i] = gate
}

// MarkIdle demotes a releasing slot to idle once its output has
// settled to silence.
func (p *VoicePool) MarkIdle(i int) {
	if p.playStates[i] == PlayReleasing {
		p.playStates[i] = PlayIdle
	}
}

// PlayState reports slot i's current play state.
func (p *VoicePool) PlayState(i int) PlayState {
	return p.playStates[i]
}

// Voice returns the replica at slot i.
func (p *VoicePool) Voice(i int) *voice.Voice {
	return p.voices[i]
}

// Len reports the pool size.
func (p *VoicePool) Len() int {
	return len(p.voices)
}
