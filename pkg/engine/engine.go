// Package engine implements the host-facing synth engine facade: node
// and connection lifecycle operations, the voice pool, the global
// effects chain, and the per-block audio processing entry point.
package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vgraph/voicegraph/pkg/engineerr"
	"github.com/vgraph/voicegraph/pkg/node"
	"github.com/vgraph/voicegraph/pkg/perfmon"
	"github.com/vgraph/voicegraph/pkg/port"
	"github.com/vgraph/voicegraph/pkg/voice"
	"github.com/vgraph/voicegraph/pkg/wavimport"
)

// MaxVoices is the largest pool size Init will accept.
const MaxVoices = 8

// MaxBlockFrames is the largest N ProcessAudio will accept in a single
// call; scratch buffers are sized to this at Init and never grow.
const MaxBlockFrames = 2048

// MaxNodesPerGraph bounds the canonical graph's node count. spec.md's
// create<NodeKind> operation table names "graph full" as a possible
// error but leaves the capacity itself unspecified; this caps it at a
// size generously larger than any of spec.md §8's seed patches while
// still bounding per-voice clone cost, since every node in the
// canonical graph is replicated MaxVoices times.
const MaxNodesPerGraph = 128

// nodeRecord tracks a node's kind and last-committed parameters
// alongside the canonical voice's own bookkeeping, so a freshly cloned
// pool replica can be brought up to date without re-deriving state
// from the node itself (Node has no parameter getter, only a setter).
// sample/table additionally cache the last successfully imported
// playback buffer for Sampler/WavetableOscillator nodes, replayed the
// same way onto clones.
type nodeRecord struct {
	kind   string
	params any
	sample []float32
	table  [][]float32
}

// sampleSetter is satisfied by node kinds that accept an imported
// single-channel playback buffer (currently Sampler).
type sampleSetter interface {
	SetSample(samples []float32) bool
}

// tableSetter is satisfied by node kinds that accept an imported
// wavetable frame set (currently WavetableOscillator).
type tableSetter interface {
	SetTable(frames [][]float32) bool
}

// Engine is the synth engine facade: one canonical voice graph, a pool
// of replicas driven per-block, a global effects chain, and the
// control-plane bookkeeping (macro routing, pending mutations, node
// parameter cache) needed to keep the pool in sync with the canonical
// graph across block boundaries.
type Engine struct {
	mu sync.Mutex // guards canonical + nodeRecords + macros against concurrent control-plane calls

	sampleRate float64
	voiceCount int

	canonical   *voice.Voice
	nodeRecords map[string]*nodeRecord
	macros      []MacroConnection
	nextNodeNum uint64

	pool *VoicePool

	effects *EffectsChain

	mutations *mutationQueue

	perf *perfmon.Metrics
	log  zerolog.Logger
}

// MacroConnection records one connectMacro routing: a per-voice,
// per-sample macro input wired to a destination port like any other
// connection, but sourced from the automation frame's macro buffer
// rather than from another node's output.
type MacroConnection struct {
	VoiceIndex   int
	MacroIndex   int // 0..3
	TargetNode   string
	TargetPort   port.ID
	Amount       float32
	Mode         port.ModulationMode
	Transform    port.ModulationTransformation
}

// New creates an engine at the given sample rate with an empty
// canonical graph. Call Init to size the voice pool before processing
// audio.
func New(sampleRate float64, log zerolog.Logger) *Engine {
	e := &Engine{
		sampleRate:  sampleRate,
		canonical:   voice.New("canonical", sampleRate, MaxBlockFrames),
		nodeRecords: make(map[string]*nodeRecord),
		effects:     NewEffectsChain(sampleRate),
		mutations:   newMutationQueue(256),
		perf:        perfmon.NewMetrics(sampleRate, MaxBlockFrames),
		log:         log,
	}
	log.Info().Float64("sample_rate", sampleRate).Msg("engine created")
	return e
}

// Init sizes the voice pool and clones voiceCount replicas from the
// (possibly already populated) canonical graph. voiceCount must be in
// [1, MaxVoices].
func (e *Engine) Init(voiceCount int) error {
	if voiceCount < 1 || voiceCount > MaxVoices {
		return fmt.Errorf("engine: %w: %d", engineerr.ErrInvalidVoiceCount, voiceCount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.voiceCount = voiceCount
	e.pool = NewVoicePool(voiceCount, e.canonical, e.sampleRate, MaxBlockFrames, e.newNodeFromRecords)
	e.log.Info().Int("voice_count", voiceCount).Msg("engine initialized")
	return nil
}

// newNodeFromRecords builds a fresh node instance for kind and, if the
// canonical graph has committed parameters for a node of this kind
// under id, replays them immediately so cloned replicas don't start
// back at default parameters.
func (e *Engine) newNodeFromRecords(id, kind string) node.Node {
	n, err := node.New(kind, e.sampleRate)
	if err != nil {
		// Unreachable: canonical only ever holds kinds createNode already
		// validated against the registry.
		panic(fmt.Sprintf("engine: clone requested unknown kind %q for node %q", kind, id))
	}
	if rec, ok := e.nodeRecords[id]; ok {
		if rec.params != nil {
			n.UpdateParameters(rec.params)
		}
		if rec.sample != nil {
			if setter, ok := n.(sampleSetter); ok {
				setter.SetSample(rec.sample)
			}
		}
		if rec.table != nil {
			if setter, ok := n.(tableSetter); ok {
				setter.SetTable(rec.table)
			}
		}
	}
	return n
}

// CreateNode creates a node of the given kind in the canonical graph
// and returns its new ID.
func (e *Engine) CreateNode(kind string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.nodeRecords) >= MaxNodesPerGraph {
		return "", fmt.Errorf("engine: %w: %d", engineerr.ErrGraphFull, len(e.nodeRecords))
	}

	n, err := node.New(kind, e.sampleRate)
	if err != nil {
		return "", fmt.Errorf("engine: %w: %s", engineerr.ErrUnknownKind, kind)
	}

	e.nextNodeNum++
	id := fmt.Sprintf("%s-%s", kind, uuid.New().String())
	e.canonical.AddNode(id, kind, n)
	e.nodeRecords[id] = &nodeRecord{kind: kind}

	e.log.Debug().Str("node_id", id).Str("kind", kind).Msg("node created")
	e.mutations.push(func(e *Engine) { e.pool.MarkTopologyDirty() })
	return id, nil
}

// DeleteNode removes a node from the canonical graph, pruning all
// incident connections.
func (e *Engine) DeleteNode(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.canonical.RemoveNode(id); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	delete(e.nodeRecords, id)
	e.log.Debug().Str("node_id", id).Msg("node deleted")
	e.mutations.push(func(e *Engine) { e.pool.MarkTopologyDirty() })
	return nil
}

// Connect adds or updates a connection in the canonical graph.
func (e *Engine) Connect(c port.Connection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.canonical.Connect(c); err != nil {
		e.log.Warn().Str("from", c.FromNode).Str("to", c.ToNode).Err(err).Msg("connection rejected")
		return fmt.Errorf("engine: %w", err)
	}
	e.log.Debug().Str("from", c.FromNode).Str("to", c.ToNode).Str("to_port", c.ToPort.String()).Msg("connected")
	e.mutations.push(func(e *Engine) { e.pool.MarkTopologyDirty() })
	return nil
}

// RemoveConnection removes a connection; idempotent.
func (e *Engine) RemoveConnection(from string, fromPort port.ID, to string, toPort port.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.canonical.RemoveConnection(from, fromPort, to, toPort)
	e.mutations.push(func(e *Engine) { e.pool.MarkTopologyDirty() })
}

// RemoveAll removes every connection from `from` to `to`'s `toPort`.
func (e *Engine) RemoveAll(from, to string, toPort port.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.canonical.RemoveAll(from, to, toPort)
	e.mutations.push(func(e *Engine) { e.pool.MarkTopologyDirty() })
}

// UpdateNodeParams commits a new parameter struct for id, recording it
// so future pool clones start from it, and pushing it onto every live
// replica's matching node for the next block.
func (e *Engine) UpdateNodeParams(id string, kind string, params any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.nodeRecords[id]
	if !ok {
		return fmt.Errorf("engine: %w: %s", engineerr.ErrUnknownNode, id)
	}
	if rec.kind != kind {
		return fmt.Errorf("engine: %w: %s is a %s, not a %s", engineerr.ErrWrongNodeKind, id, rec.kind, kind)
	}
	rec.params = params

	if entry := e.canonical.Node(id); entry != nil {
		entry.Node.UpdateParameters(params)
	}
	e.mutations.push(func(e *Engine) { e.pool.BroadcastParams(id, params) })
	return nil
}

// ImportSample decodes a WAV byte slice and loads it as the playback
// buffer of the Sampler node id. The decoded buffer is cached on id's
// node record so future pool clones start with it already loaded.
func (e *Engine) ImportSample(id string, wavBytes []byte) error {
	samples, err := wavimport.DecodeSample(wavBytes)
	if err != nil {
		e.log.Warn().Str("node_id", id).Err(err).Msg("sample import failed")
		return fmt.Errorf("engine: %w: %v", engineerr.ErrImportFailure, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.nodeRecords[id]
	if !ok {
		return fmt.Errorf("engine: %w: %s", engineerr.ErrUnknownNode, id)
	}
	entry := e.canonical.Node(id)
	if entry == nil {
		return fmt.Errorf("engine: %w: %s", engineerr.ErrUnknownNode, id)
	}
	setter, ok := entry.Node.(sampleSetter)
	if !ok || !setter.SetSample(samples) {
		return fmt.Errorf("engine: %w: %s does not accept a sample buffer", engineerr.ErrImportFailure, id)
	}
	rec.sample = samples
	e.log.Info().Str("node_id", id).Int("frames", len(samples)).Msg("sample imported")
	e.mutations.push(func(e *Engine) { e.pool.BroadcastSample(id, samples) })
	return nil
}

// ImportWavetable decodes a WAV byte slice as a concatenation of
// equal-length single-cycle frames of frameLength samples each, and
// loads it as the table of the WavetableOscillator node id.
func (e *Engine) ImportWavetable(id string, wavBytes []byte, frameLength int) error {
	frames, err := wavimport.DecodeWavetable(wavBytes, frameLength)
	if err != nil {
		e.log.Warn().Str("node_id", id).Err(err).Msg("wavetable import failed")
		return fmt.Errorf("engine: %w: %v", engineerr.ErrImportFailure, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.nodeRecords[id]
	if !ok {
		return fmt.Errorf("engine: %w: %s", engineerr.ErrUnknownNode, id)
	}
	entry := e.canonical.Node(id)
	if entry == nil {
		return fmt.Errorf("engine: %w: %s", engineerr.ErrUnknownNode, id)
	}
	setter, ok := entry.Node.(tableSetter)
	if !ok || !setter.SetTable(frames) {
		return fmt.Errorf("engine: %w: %s does not accept a wavetable", engineerr.ErrImportFailure, id)
	}
	rec.table = frames
	e.log.Info().Str("node_id", id).Int("frame_count", len(frames)).Msg("wavetable imported")
	e.mutations.push(func(e *Engine) { e.pool.BroadcastTable(id, frames) })
	return nil
}

// ConnectMacro records a macro routing from a voice's macroIndex-th
// automation channel to an arbitrary destination port.
func (e *Engine) ConnectMacro(m MacroConnection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m.VoiceIndex < 0 || m.VoiceIndex >= e.voiceCount {
		return fmt.Errorf("engine: %w: %d", engineerr.ErrVoiceOutOfRange, m.VoiceIndex)
	}
	if entry := e.canonical.Node(m.TargetNode); entry == nil {
		return fmt.Errorf("engine: %w: %s", engineerr.ErrUnknownNode, m.TargetNode)
	}

	for i, existing := range e.macros {
		if existing.VoiceIndex == m.VoiceIndex && existing.MacroIndex == m.MacroIndex &&
			existing.TargetNode == m.TargetNode && existing.TargetPort == m.TargetPort {
			e.macros[i] = m
			return nil
		}
	}
	e.macros = append(e.macros, m)
	return nil
}

// NodeSnapshot describes one node in a getCurrentState response.
type NodeSnapshot struct {
	ID   string
	Kind string
}

// ConnectionSnapshot describes one connection in a getCurrentState
// response.
type ConnectionSnapshot struct {
	FromNode  string
	FromPort  port.ID
	ToNode    string
	ToPort    port.ID
	Amount    float32
	Mode      port.ModulationMode
	Transform port.ModulationTransformation
}

// StateSnapshot is the structured description returned by
// GetCurrentState.
type StateSnapshot struct {
	Nodes       []NodeSnapshot
	Connections []ConnectionSnapshot
}

// GetCurrentState returns a snapshot of the canonical graph's nodes
// and connections.
func (e *Engine) GetCurrentState() StateSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var snap StateSnapshot
	for _, entry := range e.canonical.Nodes() {
		snap.Nodes = append(snap.Nodes, NodeSnapshot{ID: entry.ID, Kind: entry.Kind})
	}
	for _, c := range e.canonical.Connections() {
		snap.Connections = append(snap.Connections, ConnectionSnapshot{
			FromNode: c.FromNode, FromPort: c.FromPort,
			ToNode: c.ToNode, ToPort: c.ToPort,
			Amount: c.Amount, Mode: c.Mode, Transform: c.Transform,
		})
	}
	return snap
}

// Reset clears all DSP state in the canonical graph and every pool
// replica, keeping the graph shape intact.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.canonical.Reset()
	if e.pool != nil {
		e.pool.ResetAll()
	}
	e.effects.Reset()
	e.perf.Reset()
	e.log.Info().Msg("engine reset")
}

// GetCPUUsage reports the last block's processing time as a fraction
// of the real-time deadline of a MaxBlockFrames-frame block at the
// engine's sample rate, clamped to [0, 1]. The deadline does not
// follow the frame count of the block actually processed.
func (e *Engine) GetCPUUsage() float64 {
	return e.perf.CPUUsage()
}
