package core

import "errors"

// Sentinel errors for the fabric's core abstractions. Callers should compare
// against these with errors.Is rather than matching error strings.
var (
	// ErrUnencodableNeuron is returned when a value cannot be encoded by a
	// neuron's codec before transmission.
	ErrUnencodableNeuron = errors.New("core: neuron value is not encodable")

	// ErrUnsupportedSynapse is returned by Plexus.InfuseGanglion when a
	// ganglion reports IsExternal but does not implement ExternalGanglion.
	// A capability mismatch at Adapt is not an error (Adapt returns nil).
	ErrUnsupportedSynapse = errors.New("core: unsupported synapse")

	// ErrStartup is returned when a ganglion fails to complete its startup
	// sequence within its allotted time.
	ErrStartup = errors.New("core: ganglion startup failed")

	// ErrSynapseClosed is returned by a synapse that has already been
	// closed and is asked to transmit or transduce again.
	ErrSynapseClosed = errors.New("core: synapse closed")
)
