package core

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// InprocGanglion is the in-process transport: transmit is direct dendrite
// transduction, identical in effect to a function call, but routed through
// the neuron boundary so Plexus wiring can observe it.
type InprocGanglion struct {
	filter CapabilityFilter

	mu          sync.RWMutex
	synapses    map[string]*InprocSynapse
	transmitter map[string]func(value any, reactionID string) error
	names       map[string]Neuron
}

// NewInprocGanglion creates an internal ganglion with the given capability
// filter (zero value accepts everything).
func NewInprocGanglion(filter CapabilityFilter) *InprocGanglion {
	return &InprocGanglion{
		filter:      filter,
		synapses:    make(map[string]*InprocSynapse),
		transmitter: make(map[string]func(value any, reactionID string) error),
		names:       make(map[string]Neuron),
	}
}

// IsExternal always returns false for an inproc ganglion.
func (g *InprocGanglion) IsExternal() bool { return false }

// Capable reports whether the ganglion's filters accept neuron.
func (g *InprocGanglion) Capable(neuron Neuron) bool {
	return g.filter.Capable(neuron.NameWithoutCodec(), neuron.CodecName())
}

// Adapt registers reactants for neuron, lazily creating its synapse.
// rawReactants are not meaningful for the in-process transport (there is no
// encode/decode boundary); any supplied are ignored with a debug log.
func (g *InprocGanglion) Adapt(neuron Neuron, reactants []Reactant, rawReactants []RawReactant) error {
	if !g.Capable(neuron) {
		warnNotCapable("InprocGanglion", neuron.Name())
		return nil
	}
	if len(rawReactants) > 0 {
		log.Debugf("InprocGanglion: ignoring %d raw reactants for %s, no encode boundary in-process", len(rawReactants), neuron.Name())
	}

	name := neuron.Name()

	g.mu.Lock()
	syn, ok := g.synapses[name]
	if !ok {
		syn = NewInprocSynapse(neuron)
		g.synapses[name] = syn
		g.names[name] = neuron
		g.transmitter[name] = func(value any, reactionID string) error {
			return syn.Transmit(value, reactionID)
		}
	}
	g.mu.Unlock()

	syn.Dendrite().AddReactants(reactants...)
	return nil
}

// Transmit invokes the transmitter bound to neuron.
func (g *InprocGanglion) Transmit(neuron Neuron, value any, reactionID string) error {
	g.mu.RLock()
	fn, ok := g.transmitter[neuron.Name()]
	g.mu.RUnlock()
	if !ok {
		return errTransmitterNotFound
	}
	return fn(value, reactionID)
}

// Close closes every synapse. Idempotent per-synapse.
func (g *InprocGanglion) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.synapses {
		_ = s.Close()
	}
	return nil
}
