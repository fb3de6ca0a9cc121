package core

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// CapabilityFilter implements the optional allow/deny lists a ganglion
// applies at adapt time. A nil or empty Relevant list means "no allow-list
// restriction". Control-plane neurons bypass these filters entirely: the
// multicast ganglion binds their synapses directly instead of through Adapt.
type CapabilityFilter struct {
	Relevant      map[string]bool
	Ignored       map[string]bool
	AllowedCodecs map[string]bool
}

// Capable reports whether neuron passes this filter. codecName may be empty
// if the neuron's codec is unnamed.
func (f CapabilityFilter) Capable(neuronName, codecName string) bool {
	if f.Ignored != nil && f.Ignored[neuronName] {
		return false
	}
	if f.Relevant != nil && len(f.Relevant) > 0 && !f.Relevant[neuronName] {
		return false
	}
	if f.AllowedCodecs != nil && len(f.AllowedCodecs) > 0 && codecName != "" && !f.AllowedCodecs[codecName] {
		return false
	}
	return true
}

// Ganglion is a collection of synapses on one transport. Adapt is the sole
// user-facing registration entry; Transmit selects the transmitter bound to
// neuron and invokes it. Capable reports whether the ganglion's filters
// would accept neuron.
type Ganglion interface {
	// Adapt registers reactants/rawReactants for neuron, lazily creating the
	// backing synapse. It returns silently (logging a warning) rather than
	// failing when the ganglion is not Capable of neuron.
	Adapt(neuron Neuron, reactants []Reactant, rawReactants []RawReactant) error
	// Transmit encodes (if external) and sends value for neuron.
	Transmit(neuron Neuron, value any, reactionID string) error
	// Capable reports whether this ganglion's filters accept neuron.
	Capable(neuron Neuron) bool
	// IsExternal distinguishes internal (inproc) ganglia from external
	// (wire-backed) ones for Plexus partitioning.
	IsExternal() bool
}

// ExternalGanglion additionally accepts already-encoded bytes, used when the
// Plexus forwards a payload received from one external ganglion to another
// without re-decoding.
type ExternalGanglion interface {
	Ganglion
	// TransmitBytes pushes already-encoded data for neuron without passing
	// back through the codec.
	TransmitBytes(neuron Neuron, data []byte, reactionID string) error
}

func warnNotCapable(ganglionKind, neuronName string) {
	log.Warnf("%s: neuron %s rejected by capability filter, adapt skipped", ganglionKind, neuronName)
}

var errTransmitterNotFound = fmt.Errorf("core: transmit attempted before adapt")
