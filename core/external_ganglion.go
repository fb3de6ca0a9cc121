package core

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// SynapseFactory creates the transport-specific synapse for neuron. It is
// the one seam a concrete external ganglion (e.g. the multicast ganglion)
// must supply; everything else in ExternalGanglionBase is shared skeleton.
type SynapseFactory func(neuron Neuron) (ExternalSynapse, error)

// ExternalGanglionBase is the shared skeleton for ganglia backed by a wire
// transport. It serializes outbound values via the neuron's codec and
// dispatches inbound bytes through a bytes-dendrite, matching spec-level
// "external ganglion" behavior. Concrete ganglia (multicast, a future TCP
// pair) compose this type and supply a SynapseFactory rather than
// subclassing it, since Go has no implementation inheritance.
type ExternalGanglionBase struct {
	filter         CapabilityFilter
	createSynapse  SynapseFactory
	ganglionKind   string

	mu               sync.RWMutex
	synapses         map[string]ExternalSynapse
	valueTransmitter map[string]func(value any, reactionID string) error
	bytesTransmitter map[string]func(data []byte, reactionID string) error
	names            map[string]Neuron
}

// NewExternalGanglionBase creates a base with the given filter and synapse
// factory. ganglionKind is used only in log messages.
func NewExternalGanglionBase(ganglionKind string, filter CapabilityFilter, createSynapse SynapseFactory) *ExternalGanglionBase {
	return &ExternalGanglionBase{
		filter:           filter,
		createSynapse:    createSynapse,
		ganglionKind:     ganglionKind,
		synapses:         make(map[string]ExternalSynapse),
		valueTransmitter: make(map[string]func(value any, reactionID string) error),
		bytesTransmitter: make(map[string]func(data []byte, reactionID string) error),
		names:            make(map[string]Neuron),
	}
}

// IsExternal always returns true.
func (g *ExternalGanglionBase) IsExternal() bool { return true }

// Capable reports whether the ganglion's filters accept neuron.
func (g *ExternalGanglionBase) Capable(neuron Neuron) bool {
	return g.filter.Capable(neuron.NameWithoutCodec(), neuron.CodecName())
}

// Synapse returns the synapse bound to name, if any has been adapted.
func (g *ExternalGanglionBase) Synapse(name string) (ExternalSynapse, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.synapses[name]
	return s, ok
}

// Adapt registers reactants/rawReactants for neuron, lazily creating its
// synapse via the injected SynapseFactory.
func (g *ExternalGanglionBase) Adapt(neuron Neuron, reactants []Reactant, rawReactants []RawReactant) error {
	if !g.Capable(neuron) {
		warnNotCapable(g.ganglionKind, neuron.Name())
		return nil
	}

	name := neuron.Name()

	g.mu.Lock()
	syn, ok := g.synapses[name]
	if !ok {
		var err error
		syn, err = g.createSynapse(neuron)
		if err != nil {
			g.mu.Unlock()
			return err
		}
		g.synapses[name] = syn
		g.names[name] = neuron
		g.valueTransmitter[name] = func(value any, reactionID string) error {
			data, err := neuron.EncodeAny(value)
			if err != nil {
				return err
			}
			return syn.Transmit(data, reactionID)
		}
		g.bytesTransmitter[name] = func(data []byte, reactionID string) error {
			return syn.Transmit(data, reactionID)
		}
	}
	g.mu.Unlock()

	syn.BytesDendrite().AddReactants(reactants...)
	syn.BytesDendrite().AddRawReactants(rawReactants...)

	// Concrete transports (e.g. the multicast UDP synapse) start their
	// inbound loop lazily on first reactant rather than at construction.
	if starter, ok := syn.(interface{ StartReceiving() error }); ok {
		if err := starter.StartReceiving(); err != nil {
			return err
		}
	}
	return nil
}

// Transmit encodes value via neuron's codec and pushes the result to the
// synapse bound to neuron.
func (g *ExternalGanglionBase) Transmit(neuron Neuron, value any, reactionID string) error {
	g.mu.RLock()
	fn, ok := g.valueTransmitter[neuron.Name()]
	g.mu.RUnlock()
	if !ok {
		return errTransmitterNotFound
	}
	return fn(value, reactionID)
}

// TransmitBytes pushes already-encoded data to the synapse bound to neuron,
// without passing back through the codec. Used when the Plexus forwards a
// payload received from another external ganglion.
func (g *ExternalGanglionBase) TransmitBytes(neuron Neuron, data []byte, reactionID string) error {
	g.mu.RLock()
	fn, ok := g.bytesTransmitter[neuron.Name()]
	g.mu.RUnlock()
	if !ok {
		return errTransmitterNotFound
	}
	return fn(data, reactionID)
}

// Close closes every synapse. Idempotent per-synapse. It waits at most
// closeTimeout for every synapse to finish closing before returning anyway,
// so a transport stuck releasing one resource (e.g. a blocked socket call)
// cannot hang the whole Plexus's shutdown.
func (g *ExternalGanglionBase) Close() error {
	g.mu.RLock()
	synapses := make([]ExternalSynapse, 0, len(g.synapses))
	for _, s := range g.synapses {
		synapses = append(synapses, s)
	}
	g.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		for _, s := range synapses {
			_ = s.Close()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(closeTimeout):
		log.Warnf("%s: close timed out after %s, returning anyway", g.ganglionKind, closeTimeout)
	}
	return nil
}
