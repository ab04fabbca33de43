package engine

import (
	"fmt"

	"github.com/vgraph/voicegraph/pkg/engineerr"
	"github.com/vgraph/voicegraph/pkg/node"
	"github.com/vgraph/voicegraph/pkg/port"
)

// effectKinds lists the node kinds usable as global effects — every
// stereo-in/stereo-out kind the node package registers.
var effectKinds = map[string]bool{
	"Delay": true, "Chorus": true, "Reverb": true,
	"Compressor": true, "Saturation": true, "Bitcrusher": true, "Limiter": true,
}

// effectSlot pairs a live effect node with its kind, so reorder/remove
// can operate positionally while update operations can still validate
// kind.
type effectSlot struct {
	id   string
	kind string
	node node.Node
}

// EffectsChain is the ordered, global (post-voice-sum) stereo effects
// list. It is not part of any voice's graph: it runs once per block on
// the summed stereo accumulator, reusing two N-length scratch buffers
// swapped between effects so no effect allocates during ProcessBlock.
type EffectsChain struct {
	sampleRate float64
	slots      []effectSlot
	scratchL   [2][]float32
	scratchR   [2][]float32
}

// NewEffectsChain creates an empty effects chain.
func NewEffectsChain(sampleRate float64) *EffectsChain {
	return &EffectsChain{sampleRate: sampleRate}
}

// Add appends a new effect of the given kind (e.g. "Delay", "Reverb")
// with default parameters and returns its slot index.
func (c *EffectsChain) Add(kind string) (int, error) {
	if !effectKinds[kind] {
		return 0, fmt.Errorf("engine: %w: %s is not a stereo effect kind", engineerr.ErrUnknownKind, kind)
	}
	n, err := node.New(kind, c.sampleRate)
	if err != nil {
		return 0, fmt.Errorf("engine: %w: %s", engineerr.ErrUnknownKind, kind)
	}
	c.slots = append(c.slots, effectSlot{id: fmt.Sprintf("%s-%d", kind, len(c.slots)), kind: kind, node: n})
	return len(c.slots) - 1, nil
}

// Remove deletes the effect at index.
func (c *EffectsChain) Remove(index int) error {
	if index < 0 || index >= len(c.slots) {
		return fmt.Errorf("engine: %w: effect index %d", engineerr.ErrUnknownNode, index)
	}
	c.slots = append(c.slots[:index], c.slots[index+1:]...)
	return nil
}

// Reorder moves the effect at fromIndex to toIndex, shifting the
// others.
func (c *EffectsChain) Reorder(fromIndex, toIndex int) error {
	if fromIndex < 0 || fromIndex >= len(c.slots) || toIndex < 0 || toIndex >= len(c.slots) {
		return fmt.Errorf("engine: %w: reorder %d -> %d", engineerr.ErrUnknownNode, fromIndex, toIndex)
	}
	moved := c.slots[fromIndex]
	c.slots = append(c.slots[:fromIndex], c.slots[fromIndex+1:]...)
	tail := append([]effectSlot{moved}, c.slots[toIndex:]...)
	c.slots = append(c.slots[:toIndex], tail...)
	return nil
}

// UpdateParams commits new parameters to the effect at index.
func (c *EffectsChain) UpdateParams(index int, kind string, params any) error {
	if index < 0 || index >= len(c.slots) {
		return fmt.Errorf("engine: %w: effect index %d", engineerr.ErrUnknownNode, index)
	}
	if c.slots[index].kind != kind {
		return fmt.Errorf("engine: %w: slot %d is a %s, not a %s", engineerr.ErrWrongNodeKind, index, c.slots[index].kind, kind)
	}
	c.slots[index].node.UpdateParameters(params)
	return nil
}

// Reset clears every effect's internal state.
func (c *EffectsChain) Reset() {
	for _, s := range c.slots {
		s.node.Reset()
	}
}

func (c *EffectsChain) ensureScratch(n int) {
	for i := range c.scratchL {
		if len(c.scratchL[i]) < n {
			c.scratchL[i] = make([]float32, n)
			c.scratchR[i] = make([]float32, n)
		}
	}
}

// ProcessBlock runs every effect in order over inL/inR in place,
// reusing the chain's two stereo scratch buffers rather than
// allocating per effect.
func (c *EffectsChain) ProcessBlock(ctx node.Context, inL, inR []float32) {
	n := len(inL)
	if len(c.slots) == 0 {
		return
	}
	c.ensureScratch(n)

	curL, curR := inL, inR
	for i, slot := range c.slots {
		dstL := c.scratchL[i%2][:n]
		dstR := c.scratchR[i%2][:n]
		outputs := map[port.ID][]float32{port.AudioOutput0: dstL, port.AudioOutput1: dstR}
		inputs := map[port.ID][]float32{port.AudioInput0: curL, port.AudioInput1: curR}
		slot.node.ProcessBlock(ctx, inputs, outputs)
		curL, curR = dstL, dstR
	}

	copy(inL, curL)
	copy(inR, curR)
}
