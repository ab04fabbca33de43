package node

import "fmt"

// Factory builds a new Node instance of a given kind at the given
// sample rate, with default parameters.
type Factory func(sampleRate float64) Node

var registry = map[string]Factory{}

// Register adds a kind's factory to the registry. Called from each
// kind's init(); panics on an empty name, nil factory, or duplicate
// registration, since all three indicate a programming error that must
// be caught at startup rather than surfaced as a runtime failure.
func Register(kind string, factory Factory) {
	if kind == "" {
		panic("node registry: empty kind name")
	}
	if factory == nil {
		panic("node registry: nil factory for kind " + kind)
	}
	if _, exists := registry[kind]; exists {
		panic("node registry: duplicate kind: " + kind)
	}
	registry[kind] = factory
}

// New constructs a node of the given kind, or returns an error if the
// kind is not registered.
func New(kind string, sampleRate float64) (Node, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("node: unknown kind %q", kind)
	}
	return factory(sampleRate), nil
}

// Kinds returns the registered kind names in no particular order;
// callers that need a stable listing should sort the result themselves.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}

// Registered reports whether kind has a registered factory.
func Registered(kind string) bool {
	_, ok := registry[kind]
	return ok
}
