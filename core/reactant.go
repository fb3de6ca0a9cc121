package core

// Reactant is invoked with a decoded value, the neuron that produced it and
// the reaction id that caused the transduction, letting subscribers
// forward/dedupe across a Plexus without re-deriving an id themselves.
type Reactant func(value any, neuron Neuron, reactionID string)

// RawReactant is invoked with the raw wire bytes of a transduction, for
// subscribers that want to forward or persist bytes without paying a
// decode they don't need.
type RawReactant func(data []byte, neuron Neuron, reactionID string)

// ReactantHandle is an opaque token returned by AddReactants/AddRawReactants
// so callers can later remove exactly the reactant they added. Go funcs are
// not comparable, so dendrites key their reactant sets by this handle
// instead of by the function value itself.
type ReactantHandle uint64
