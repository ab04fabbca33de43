package voice

import (
	"github.com/vgraph/voicegraph/pkg/node"
	"github.com/vgraph/voicegraph/pkg/port"
)

// globalPorts are seeded directly from the voice's control inputs
// every block, regardless of whether any connection targets them —
// they are the host-driven inputs every patch can read without
// explicit wiring.
var globalPorts = [...]port.ID{port.GlobalGate, port.GlobalFrequency, port.GlobalVelocity}

func isGlobalPort(p port.ID) bool {
	for _, g := range globalPorts {
		if g == p {
			return true
		}
	}
	return false
}

// ProcessBlock evaluates every node in topological order and returns
// the voice's final stereo pair, read from the terminal Mixer's
// AudioOutput0/AudioOutput1. If the canonical graph has no Mixer node,
// both returned slices are silence.
//
// Feedback-capable connections (see port.IsFeedbackCapable) read the
// source port's last sample from the *previous* call to ProcessBlock,
// buffering one block of delay so a cycle through a feedback edge
// never creates an intra-block dependency.
func (v *Voice) ProcessBlock(ctx node.Context, ctrl ControlInputs) ([]float32, []float32) {
	ctx.Gate = ctrl.Gate
	ctx.Frequency = ctrl.Frequency
	ctx.Velocity = ctrl.Velocity
	ctx.HeldNotes = ctrl.HeldNotes

	order := v.TopologicalOrder()
	n := ctx.FrameCount

	for _, id := range order {
		entry := v.nodes[id]

		inputs := make(map[port.ID][]float32, len(entry.Ports.Reads))
		for _, p := range entry.Ports.Reads {
			if isGlobalPort(p) {
				buf := v.scratch[scratchKey{id, p}]
				v.seedGlobal(buf, p, ctrl, n)
				inputs[p] = buf
				continue
			}
			if buf, ok := v.buildAccumulator(id, p, n, ctrl.ExternalInputs); ok {
				inputs[p] = buf
			}
		}

		outputs := make(map[port.ID][]float32, len(entry.Ports.Writes))
		for _, p := range entry.Ports.Writes {
			outputs[p] = v.scratch[scratchKey{id, p}]
		}

		entry.Node.ProcessBlock(ctx, inputs, outputs)
	}

	v.snapshotFeedbackSources()

	if v.terminalNodeID == "" {
		return make([]float32, n), make([]float32, n)
	}
	left := v.scratch[scratchKey{v.terminalNodeID, port.AudioOutput0}]
	right := v.scratch[scratchKey{v.terminalNodeID, port.AudioOutput1}]
	if right == nil {
		right = left
	}
	return left, right
}

func (v *Voice) seedGlobal(buf []float32, p port.ID, ctrl ControlInputs, n int) {
	var value float32
	switch p {
	case port.GlobalGate:
		value = ctrl.Gate
	case port.GlobalFrequency:
		value = ctrl.Frequency
	case port.GlobalVelocity:
		value = ctrl.Velocity
	}
	for i := 0; i < n; i++ {
		buf[i] = value
	}
}

// buildAccumulator combines every connection and external input
// targeting (nodeID, p) into that port's scratch buffer per
// port.ModulationCombine, reading feedback-capable sources from the
// previous block's snapshot instead of this block's (not-yet-computed,
// or cyclically unavailable) live output. Returns ok=false if nothing
// targets this port, so the caller can leave the port absent from the
// node's input map and let the node fall back to its own
// context-derived default.
func (v *Voice) buildAccumulator(nodeID string, p port.ID, n int, externals []ExternalInput) ([]float32, bool) {
	var incoming []port.Connection
	for _, c := range v.connections {
		if c.ToNode == nodeID && c.ToPort == p {
			incoming = append(incoming, c)
		}
	}
	var externalIncoming []ExternalInput
	for _, x := range externals {
		if x.TargetNode == nodeID && x.TargetPort == p {
			externalIncoming = append(externalIncoming, x)
		}
	}
	if len(incoming) == 0 && len(externalIncoming) == 0 {
		return nil, false
	}

	buf := v.scratch[scratchKey{nodeID, p}]
	seed := port.Additive.AccumulatorDefault()
	for _, c := range incoming {
		if c.Mode == port.VCA {
			seed = port.VCA.AccumulatorDefault()
			break
		}
	}
	for _, x := range externalIncoming {
		if x.Mode == port.VCA {
			seed = port.VCA.AccumulatorDefault()
			break
		}
	}
	for i := 0; i < n; i++ {
		buf[i] = seed
	}

	for _, c := range incoming {
		key := feedbackEdgeKey{c.FromNode, c.ToNode, c.ToPort}
		if v.feedback[key] {
			sample := v.feedbackSnapshot[key]
			for i := 0; i < n; i++ {
				transformed := port.Transform(c.Transform, sample)
				buf[i] = port.ModulationCombine(c.Mode, buf[i], transformed, c.Amount)
			}
			continue
		}
		source := v.scratch[scratchKey{c.FromNode, c.FromPort}]
		for i := 0; i < n; i++ {
			transformed := port.Transform(c.Transform, source[i])
			buf[i] = port.ModulationCombine(c.Mode, buf[i], transformed, c.Amount)
		}
	}

	for _, x := range externalIncoming {
		for i := 0; i < n && i < len(x.Value); i++ {
			transformed := port.Transform(x.Transform, x.Value[i])
			buf[i] = port.ModulationCombine(x.Mode, buf[i], transformed, x.Amount)
		}
	}

	return buf, true
}

// snapshotFeedbackSources records the last sample of every
// feedback-capable edge's source port, for buildAccumulator to read
// on the next call to ProcessBlock.
func (v *Voice) snapshotFeedbackSources() {
	if v.feedbackSnapshot == nil {
		v.feedbackSnapshot = make(map[feedbackEdgeKey]float32, len(v.feedback))
	}
	for key, isFeedback := range v.feedback {
		if !isFeedback {
			continue
		}
		source := v.scratch[scratchKey{key.from, v.connectionFromPort(key)}]
		if len(source) == 0 {
			continue
		}
		v.feedbackSnapshot[key] = source[len(source)-1]
	}
}

// connectionFromPort looks up the FromPort of the connection
// identified by a feedback edge key, since the key itself only
// records the destination port.
func (v *Voice) connectionFromPort(key feedbackEdgeKey) port.ID {
	for _, c := range v.connections {
		if c.FromNode == key.from && c.ToNode == key.to && c.ToPort == key.toPort {
			return c.FromPort
		}
	}
	return 0
}
