// Package voice implements one canonical graph instance — the nodes,
// connection list, derived topological order, and per-port scratch
// buffers that make up a single voice — and its per-block evaluation.
package voice

import (
	"fmt"
	"sort"

	"github.com/vgraph/voicegraph/pkg/engineerr"
	"github.com/vgraph/voicegraph/pkg/node"
	"github.com/vgraph/voicegraph/pkg/port"
)

// NodeEntry pairs a node instance with its stable ID and declared port
// set, so the graph can validate connections without re-querying the
// node on every mutation.
type NodeEntry struct {
	ID    string
	Kind  string
	Node  node.Node
	Ports node.PortSet
}

// ControlInputs carries one voice's per-block parameter slot: the
// gate/frequency/velocity scalars the host supplies for this voice,
// plus the first-sample value of each of the four macros for this
// voice (per-sample macro routing travels in ExternalInputs).
type ControlInputs struct {
	Gate      float32
	Frequency float32
	Velocity  float32
	Macros    [4]float32
	HeldNotes []float32

	// ExternalInputs carries per-sample signals from outside the
	// graph — host macro automation routed via connectMacro — that
	// fold into a destination port's accumulator exactly like an
	// ordinary connection, but whose source is a caller-supplied
	// buffer rather than another node's output.
	ExternalInputs []ExternalInput
}

// ExternalInput is one macro-style routing: a per-sample signal value
// combined into (TargetNode, TargetPort)'s accumulator.
type ExternalInput struct {
	TargetNode string
	TargetPort port.ID
	Value      []float32 // length N
	Amount     float32
	Mode       port.ModulationMode
	Transform  port.ModulationTransformation
}

// Voice is one playable instance of the canonical graph: a node map, a
// connection list, a derived topological evaluation order, and
// per-port scratch accumulator buffers. Every replica in the engine's
// voice pool is structurally identical to the canonical voice — same
// node IDs, same port set, same connections — differing only in
// internal DSP state (phase, envelope stage, delay line contents),
// which is why Clone builds fresh node instances from the registry
// rather than copying state. Replicas start at each node's default
// parameters; the voice manager is responsible for replaying the
// canonical voice's last-known parameters onto a freshly cloned
// replica before it is used.
type Voice struct {
	ID          string
	sampleRate  float64
	blockSize   int
	nodes       map[string]*NodeEntry
	connections []port.Connection

	order    []string // topological order, recomputed on mutation
	feedback map[feedbackEdgeKey]bool

	// feedbackSnapshot holds, per feedback-capable edge, the source
	// port's last sample as of the end of the previous ProcessBlock
	// call — the one-block delay that lets a feedback edge close a
	// cycle without an intra-block dependency.
	feedbackSnapshot map[feedbackEdgeKey]float32

	scratch map[scratchKey][]float32

	terminalNodeID string // the last Mixer in the canonical graph; "" if none
}

type feedbackEdgeKey struct {
	from, to string
	toPort   port.ID
}

type scratchKey struct {
	nodeID string
	portID port.ID
}

// New creates an empty voice at the given sample rate and block size.
func New(id string, sampleRate float64, blockSize int) *Voice {
	return &Voice{
		ID:         id,
		sampleRate: sampleRate,
		blockSize:  blockSize,
		nodes:      make(map[string]*NodeEntry),
		scratch:    make(map[scratchKey][]float32),
		feedback:   make(map[feedbackEdgeKey]bool),
	}
}

// AddNode registers a new node under id, allocating its scratch
// buffers for every port it declares.
func (v *Voice) AddNode(id, kind string, n node.Node) {
	entry := &NodeEntry{ID: id, Kind: kind, Node: n, Ports: n.Ports()}
	v.nodes[id] = entry
	for _, p := range entry.Ports.Reads {
		v.ensureScratch(id, p)
	}
	for _, p := range entry.Ports.Writes {
		v.ensureScratch(id, p)
	}
	if kind == "Mixer" {
		v.terminalNodeID = id
	}
	v.invalidateOrder()
}

func (v *Voice) ensureScratch(nodeID string, p port.ID) {
	key := scratchKey{nodeID, p}
	if _, ok := v.scratch[key]; !ok {
		v.scratch[key] = make([]float32, v.blockSize)
	}
}

// RemoveNode deletes a node and prunes every connection incident to it.
func (v *Voice) RemoveNode(id string) error {
	if _, ok := v.nodes[id]; !ok {
		return fmt.Errorf("voice: %w: %s", engineerr.ErrUnknownNode, id)
	}
	delete(v.nodes, id)

	kept := v.connections[:0]
	for _, c := range v.connections {
		if c.FromNode == id || c.ToNode == id {
			continue
		}
		kept = append(kept, c)
	}
	v.connections = kept

	for key := range v.scratch {
		if key.nodeID == id {
			delete(v.scratch, key)
		}
	}
	if v.terminalNodeID == id {
		v.terminalNodeID = ""
	}
	v.invalidateOrder()
	return nil
}

// Node returns the node entry for id, or nil if it does not exist.
func (v *Voice) Node(id string) *NodeEntry {
	return v.nodes[id]
}

// Nodes returns every node entry, in no particular order.
func (v *Voice) Nodes() []*NodeEntry {
	out := make([]*NodeEntry, 0, len(v.nodes))
	for _, n := range v.nodes {
		out = append(out, n)
	}
	return out
}

// Connections returns the voice's connection list.
func (v *Voice) Connections() []port.Connection {
	return v.connections
}

func (v *Voice) invalidateOrder() {
	v.order = nil
}

// Connect adds or updates a connection. If an edge with the same
// (FromNode, ToNode, ToPort) already exists, its Amount/Mode/Transform
// are updated in place rather than adding a duplicate edge, per the
// engine's edge-identity rule. Returns an error without mutating state
// if either node is unknown, the port roles are incompatible, or the
// edge would close a cycle not broken by a feedback-capable node.
func (v *Voice) Connect(c port.Connection) error {
	from, ok := v.nodes[c.FromNode]
	if !ok {
		return fmt.Errorf("voice: %w: %s", engineerr.ErrUnknownNode, c.FromNode)
	}
	to, ok := v.nodes[c.ToNode]
	if !ok {
		return fmt.Errorf("voice: %w: %s", engineerr.ErrUnknownNode, c.ToNode)
	}
	if !from.Ports.HasWrite(c.FromPort) {
		return fmt.Errorf("voice: %w: %s does not write port %s", engineerr.ErrPortTypeMismatch, c.FromNode, c.FromPort)
	}
	if !to.Ports.HasRead(c.ToPort) {
		return fmt.Errorf("voice: %w: %s does not read port %s", engineerr.ErrPortTypeMismatch, c.ToNode, c.ToPort)
	}
	if port.RoleOf(c.FromPort) != port.RoleOf(c.ToPort) {
		return fmt.Errorf("voice: %w: %s (%s) -> %s (%s)",
			engineerr.ErrPortTypeMismatch, c.FromPort, port.RoleOf(c.FromPort), c.ToPort, port.RoleOf(c.ToPort))
	}

	for i, existing := range v.connections {
		if existing.SameEdge(c) {
			v.connections[i].Amount = c.Amount
			v.connections[i].Mode = c.Mode
			v.connections[i].Transform = c.Transform
			return nil
		}
	}

	// An edge only needs the one-block-delayed feedback treatment when
	// evaluating it as an ordinary same-block dependency would close a
	// cycle; an edge into a feedback-capable port that happens not to
	// close any loop (e.g. a plain upstream signal feeding a Delay's
	// audio input) is processed same-block like any other connection.
	needsDelay := wouldCycle(v.connections, c.FromNode, c.ToNode)
	if needsDelay && !(port.IsFeedbackCapable(to.Kind, c.ToPort) || port.IsFeedbackCapable(from.Kind, c.FromPort)) {
		return fmt.Errorf("voice: %w: %s -> %s", engineerr.ErrCycleWithoutFeedback, c.FromNode, c.ToNode)
	}

	v.connections = append(v.connections, c)
	v.feedback[feedbackEdgeKey{c.FromNode, c.ToNode, c.ToPort}] = needsDelay
	v.invalidateOrder()
	return nil
}

// wouldCycle reports whether adding an edge from->to would close a
// cycle in the graph formed by existing connections (i.e. whether to
// can already reach from).
func wouldCycle(connections []port.Connection, from, to string) bool {
	if from == to {
		return true
	}
	adjacency := make(map[string][]string)
	for _, c := range connections {
		adjacency[c.FromNode] = append(adjacency[c.FromNode], c.ToNode)
	}
	visited := make(map[string]bool)
	var dfs func(string) bool
	dfs = func(current string) bool {
		if current == from {
			return true
		}
		if visited[current] {
			return false
		}
		visited[current] = true
		for _, next := range adjacency[current] {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(to)
}

// RemoveConnection removes the edge matching (from, toPort, to), if
// present. Idempotent: removing a non-existent connection is not an
// error.
func (v *Voice) RemoveConnection(from string, fromPort port.ID, to string, toPort port.ID) {
	kept := v.connections[:0]
	for _, c := range v.connections {
		if c.FromNode == from && c.FromPort == fromPort && c.ToNode == to && c.ToPort == toPort {
			delete(v.feedback, feedbackEdgeKey{from, to, toPort})
			continue
		}
		kept = append(kept, c)
	}
	v.connections = kept
	v.invalidateOrder()
}

// RemoveAll removes every connection from `from` to `to`'s `toPort`,
// regardless of source port.
func (v *Voice) RemoveAll(from, to string, toPort port.ID) {
	kept := v.connections[:0]
	for _, c := range v.connections {
		if c.FromNode == from && c.ToNode == to && c.ToPort == toPort {
			delete(v.feedback, feedbackEdgeKey{from, to, toPort})
			continue
		}
		kept = append(kept, c)
	}
	v.connections = kept
	v.invalidateOrder()
}

// TopologicalOrder returns the voice's node evaluation order, computing
// it via Kahn's algorithm over non-feedback edges if it is stale.
// Feedback-capable edges are excluded from the DAG used for ordering,
// since their destination reads the source's *previous* block output
// (see ProcessBlock) rather than depending on it within the same block.
func (v *Voice) TopologicalOrder() []string {
	if v.order != nil {
		return v.order
	}

	indegree := make(map[string]int, len(v.nodes))
	adjacency := make(map[string][]string, len(v.nodes))
	ids := make([]string, 0, len(v.nodes))
	for id := range v.nodes {
		indegree[id] = 0
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic base order before Kahn's algorithm breaks ties

	for _, c := range v.connections {
		if v.feedback[feedbackEdgeKey{c.FromNode, c.ToNode, c.ToPort}] {
			continue
		}
		adjacency[c.FromNode] = append(adjacency[c.FromNode], c.ToNode)
		indegree[c.ToNode]++
	}

	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := adjacency[id]
		sort.Strings(next)
		for _, to := range next {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	v.order = order
	return order
}

// Reset clears every node's internal state and zeroes all scratch
// buffers.
func (v *Voice) Reset() {
	for _, entry := range v.nodes {
		entry.Node.Reset()
	}
	for key, buf := range v.scratch {
		for i := range buf {
			buf[i] = 0
		}
		v.scratch[key] = buf
	}
	for key := range v.feedbackSnapshot {
		delete(v.feedbackSnapshot, key)
	}
}

// Clone builds a structurally identical replica of v — same node IDs
// and kinds, same connections — with freshly constructed (default-
// parameter) node instances and its own scratch buffers. newNode is
// called once per node to be cloned; the engine passes
// node.New(kind, sampleRate) wrapped so Clone has no direct dependency
// on the registry's error-returning signature.
func (v *Voice) Clone(id string, newNode func(kind string) node.Node) *Voice {
	clone := New(id, v.sampleRate, v.blockSize)
	for nodeID, entry := range v.nodes {
		clone.AddNode(nodeID, entry.Kind, newNode(entry.Kind))
	}
	clone.connections = append(clone.connections, v.connections...)
	for key, isFeedback := range v.feedback {
		clone.feedback[key] = isFeedback
	}
	clone.invalidateOrder()
	return clone
}
