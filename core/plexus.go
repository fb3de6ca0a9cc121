package core

import (
	"sync"

	"github.com/google/uuid"
)

type wireKey struct {
	neuron   string
	ganglion Ganglion
}

// Plexus is the cross-ganglion router. It always owns one internal inproc
// ganglion; any number of additional internal or external ganglia may be
// infused. It wires every (neuron, ganglion) pair exactly once and routes
// reactions across ganglia with loop suppression via reaction-ids.
type Plexus struct {
	inproc *InprocGanglion

	mu       sync.Mutex
	internal []Ganglion
	external []ExternalGanglion
	neurons  map[string]Neuron
	wired    map[wireKey]struct{}

	reactions *reactionTracker
}

// NewPlexus creates a Plexus with its always-present internal inproc
// ganglion already infused.
func NewPlexus(inprocFilter CapabilityFilter) *Plexus {
	inproc := NewInprocGanglion(inprocFilter)
	return &Plexus{
		inproc:    inproc,
		internal:  []Ganglion{inproc},
		external:  nil,
		neurons:   make(map[string]Neuron),
		wired:     make(map[wireKey]struct{}),
		reactions: newReactionTracker(),
	}
}

// Inproc returns the Plexus's always-present internal ganglion, primarily
// for tests that want to assert on its state.
func (p *Plexus) Inproc() *InprocGanglion { return p.inproc }

// InfuseGanglion adds g to the internal or external partition (decided by
// g.IsExternal()) and recomputes wirings for every previously adapted
// neuron.
func (p *Plexus) InfuseGanglion(g Ganglion) error {
	p.mu.Lock()
	if g.IsExternal() {
		eg, ok := g.(ExternalGanglion)
		if !ok {
			p.mu.Unlock()
			return ErrUnsupportedSynapse
		}
		p.external = append(p.external, eg)
	} else {
		p.internal = append(p.internal, g)
	}
	p.mu.Unlock()
	return p.rewire()
}

// Adapt registers neuron with the Plexus's inproc ganglion under the given
// application-level reactants, then recomputes wirings so every infused
// ganglion is also adapted to neuron with the appropriate routing reactant.
func (p *Plexus) Adapt(neuron Neuron, reactants ...Reactant) error {
	if err := p.inproc.Adapt(neuron, reactants, nil); err != nil {
		return err
	}
	p.mu.Lock()
	p.neurons[neuron.Name()] = neuron
	p.mu.Unlock()
	return p.rewire()
}

// Emit transmits value for neuron through the Plexus's inproc ganglion,
// which both invokes any locally registered reactants and, via the routing
// reactant installed by rewire, forwards the event to every other infused
// ganglion that has not yet seen it.
func (p *Plexus) Emit(neuron Neuron, value any) error {
	return p.inproc.Transmit(neuron, value, "")
}

// rewire computes the full cross-product of adapted neurons and infused
// ganglia, diffs it against already-wired pairs, and adapts every new pair
// with the reaction closure appropriate to the ganglion's kind.
func (p *Plexus) rewire() error {
	p.mu.Lock()
	neurons := make([]Neuron, 0, len(p.neurons))
	for _, n := range p.neurons {
		neurons = append(neurons, n)
	}
	internal := append([]Ganglion(nil), p.internal...)
	external := append([]ExternalGanglion(nil), p.external...)
	p.mu.Unlock()

	for _, n := range neurons {
		for _, g := range internal {
			if err := p.wireInternal(n, g); err != nil {
				return err
			}
		}
		for _, g := range external {
			if err := p.wireExternal(n, g); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Plexus) alreadyWired(key wireKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.wired[key]; ok {
		return true
	}
	p.wired[key] = struct{}{}
	return false
}

func (p *Plexus) wireInternal(n Neuron, g Ganglion) error {
	key := wireKey{neuron: n.Name(), ganglion: g}
	if p.alreadyWired(key) {
		return nil
	}
	origin := g
	return g.Adapt(n, []Reactant{func(value any, neuron Neuron, reactionID string) {
		p.internalReaction(origin, neuron, value, reactionID)
	}}, nil)
}

func (p *Plexus) wireExternal(n Neuron, g ExternalGanglion) error {
	key := wireKey{neuron: n.Name(), ganglion: g}
	if p.alreadyWired(key) {
		return nil
	}
	origin := g
	reactants := []Reactant{func(value any, neuron Neuron, reactionID string) {
		p.externalInternalReaction(origin, neuron, value, reactionID)
	}}
	raw := []RawReactant{func(data []byte, neuron Neuron, reactionID string) {
		p.externalExternalReaction(origin, neuron, data, reactionID)
	}}
	return g.Adapt(n, reactants, raw)
}

func (p *Plexus) reactionID(reactionID string) string {
	if reactionID != "" {
		return reactionID
	}
	return uuid.NewString()
}

func (p *Plexus) snapshotGanglia() (internal []Ganglion, external []ExternalGanglion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	internal = append([]Ganglion(nil), p.internal...)
	external = append([]ExternalGanglion(nil), p.external...)
	return
}

// internalReaction fires when an internal ganglion (origin) has delivered a
// value. It forwards the value to every internal ganglion and every
// external ganglion that has not yet seen reactionID.
func (p *Plexus) internalReaction(origin Ganglion, neuron Neuron, value any, reactionID string) {
	id := p.reactionID(reactionID)
	internal, external := p.snapshotGanglia()

	candidates := make([]Ganglion, 0, len(internal)+len(external))
	for _, g := range internal {
		candidates = append(candidates, g)
	}
	for _, g := range external {
		candidates = append(candidates, g)
	}
	targets := p.reactions.markAndDiff(id, origin, candidates)

	forwardAll(targets, func(g Ganglion) error {
		return g.Transmit(neuron, value, id)
	})
}

// externalInternalReaction fires when an external ganglion (origin) has
// decoded an inbound value. It forwards the value only to internal ganglia
// that have not yet seen reactionID.
func (p *Plexus) externalInternalReaction(origin Ganglion, neuron Neuron, value any, reactionID string) {
	id := p.reactionID(reactionID)
	internal, _ := p.snapshotGanglia()
	targets := p.reactions.markAndDiff(id, origin, internal)

	forwardAll(targets, func(g Ganglion) error {
		return g.Transmit(neuron, value, id)
	})
}

// externalExternalReaction fires when an external ganglion (origin) has
// received raw inbound bytes. It forwards the already-encoded bytes only to
// external ganglia that have not yet seen reactionID, without re-decoding.
func (p *Plexus) externalExternalReaction(origin Ganglion, neuron Neuron, data []byte, reactionID string) {
	id := p.reactionID(reactionID)
	_, external := p.snapshotGanglia()

	candidates := make([]Ganglion, 0, len(external))
	for _, g := range external {
		candidates = append(candidates, g)
	}
	targets := p.reactions.markAndDiff(id, origin, candidates)

	forwardAll(targets, func(g Ganglion) error {
		eg, ok := g.(ExternalGanglion)
		if !ok {
			return nil
		}
		return eg.TransmitBytes(neuron, data, id)
	})
}

// Close closes every infused ganglion that exposes a Close method,
// including the inproc ganglion.
func (p *Plexus) Close() error {
	p.mu.Lock()
	internal := append([]Ganglion(nil), p.internal...)
	external := append([]ExternalGanglion(nil), p.external...)
	p.mu.Unlock()

	var firstErr error
	closeIfCloser := func(g Ganglion) {
		if c, ok := g.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, g := range internal {
		closeIfCloser(g)
	}
	for _, g := range external {
		closeIfCloser(g)
	}
	return firstErr
}
