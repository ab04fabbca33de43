package port

// ModulationMode determines how an incoming connection is combined into
// the destination port's accumulator.
type ModulationMode int

const (
	VCA ModulationMode = iota
	Bipolar
	Additive
)

func (m ModulationMode) String() string {
	switch m {
	case VCA:
		return "VCA"
	case Bipolar:
		return "Bipolar"
	case Additive:
		return "Additive"
	default:
		return "UnknownMode"
	}
}

// AccumulatorDefault returns the value an accumulator is initialized to
// before any connection has been combined into it.
func (m ModulationMode) AccumulatorDefault() float32 {
	if m == VCA {
		return 1.0
	}
	return 0.0
}

// ModulationTransformation is a unary shaping function applied to a
// source signal before it is combined into a destination accumulator.
type ModulationTransformation int

const (
	TransformNone ModulationTransformation = iota
	TransformInvert
	TransformSquare
	TransformCube
)

func (t ModulationTransformation) String() string {
	switch t {
	case TransformNone:
		return "None"
	case TransformInvert:
		return "Invert"
	case TransformSquare:
		return "Square"
	case TransformCube:
		return "Cube"
	default:
		return "UnknownTransform"
	}
}

// Transform applies the unary transformation to a single sample.
func Transform(t ModulationTransformation, sample float32) float32 {
	switch t {
	case TransformInvert:
		return -sample
	case TransformSquare:
		return sample * sample
	case TransformCube:
		return sample * sample * sample
	default:
		return sample
	}
}

// ModulationCombine folds one connection's contribution into an
// accumulator and returns the new accumulator value. It is defined
// per-sample and is commutative/associative within a mode so that the
// result does not depend on connection processing order:
//
//   - Additive: acc += sample * amount
//   - Bipolar:  acc += sample*amount*2 - amount
//   - VCA:      acc *= (1-amount) + amount*sample
func ModulationCombine(mode ModulationMode, acc, sample, amount float32) float32 {
	switch mode {
	case VCA:
		return acc * ((1 - amount) + amount*sample)
	case Bipolar:
		return acc + sample*amount*2 - amount
	default: // Additive
		return acc + sample*amount
	}
}

// Connection is a directed edge in a voice's graph: from a source node's
// output port to a destination node's input port, carrying an amount, a
// modulation mode, and a pre-combine transformation.
//
// Two connections are the same edge iff (FromNode, ToNode, ToPort)
// match; Amount, Mode, and Transform are mutable attributes of that edge.
type Connection struct {
	FromNode  string
	FromPort  ID
	ToNode    string
	ToPort    ID
	Amount    float32
	Mode      ModulationMode
	Transform ModulationTransformation
}

// SameEdge reports whether c and other identify the same edge, ignoring
// amount/mode/transform.
func (c Connection) SameEdge(other Connection) bool {
	return c.FromNode == other.FromNode && c.ToNode == other.ToNode && c.ToPort == other.ToPort
}
