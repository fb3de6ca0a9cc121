package core

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// ValueDendrite fans a decoded value out to a set of reactants. The reactant
// set is replaced atomically on every add/remove; reads taken during
// Transduce snapshot the current set and never block a concurrent writer.
type ValueDendrite struct {
	neuron Neuron

	mu        sync.Mutex
	next      ReactantHandle
	reactants map[ReactantHandle]Reactant
}

// NewValueDendrite creates a dendrite owned by neuron.
func NewValueDendrite(neuron Neuron) *ValueDendrite {
	return &ValueDendrite{
		neuron:    neuron,
		reactants: make(map[ReactantHandle]Reactant),
	}
}

// AddReactants merges rs into the dendrite's reactant set and returns a
// handle per reactant so the caller can remove exactly what it added.
func (d *ValueDendrite) AddReactants(rs ...Reactant) []ReactantHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	handles := make([]ReactantHandle, 0, len(rs))
	for _, r := range rs {
		d.next++
		h := d.next
		d.reactants[h] = r
		handles = append(handles, h)
	}
	return handles
}

// RemoveReactants removes the reactants identified by handles, ignoring
// handles that are not present.
func (d *ValueDendrite) RemoveReactants(handles ...ReactantHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range handles {
		delete(d.reactants, h)
	}
}

// snapshot returns the current reactant set without holding the lock during
// dispatch.
func (d *ValueDendrite) snapshot() []Reactant {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Reactant, 0, len(d.reactants))
	for _, r := range d.reactants {
		out = append(out, r)
	}
	return out
}

// Transduce invokes every reactant concurrently with the owning neuron and
// reactionID. An empty reactant set is not an error.
func (d *ValueDendrite) Transduce(value any, reactionID string) error {
	reactants := d.snapshot()
	var g errgroup.Group
	for _, r := range reactants {
		r := r
		g.Go(func() error {
			r(value, d.neuron, reactionID)
			return nil
		})
	}
	return g.Wait()
}

// BytesDendrite fans raw wire bytes out to raw reactants and, after decoding
// exactly once via the owning neuron's codec, to value reactants.
type BytesDendrite struct {
	*ValueDendrite

	mu           sync.Mutex
	nextRaw      ReactantHandle
	rawReactants map[ReactantHandle]RawReactant
}

// NewBytesDendrite creates a bytes-dendrite owned by neuron.
func NewBytesDendrite(neuron Neuron) *BytesDendrite {
	return &BytesDendrite{
		ValueDendrite: NewValueDendrite(neuron),
		rawReactants:  make(map[ReactantHandle]RawReactant),
	}
}

// AddRawReactants merges rs into the raw-reactant set, returning one handle
// per reactant.
func (d *BytesDendrite) AddRawReactants(rs ...RawReactant) []ReactantHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	handles := make([]ReactantHandle, 0, len(rs))
	for _, r := range rs {
		d.nextRaw++
		h := d.nextRaw
		d.rawReactants[h] = r
		handles = append(handles, h)
	}
	return handles
}

// RemoveRawReactants removes the raw reactants identified by handles.
func (d *BytesDendrite) RemoveRawReactants(handles ...ReactantHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range handles {
		delete(d.rawReactants, h)
	}
}

func (d *BytesDendrite) rawSnapshot() []RawReactant {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RawReactant, 0, len(d.rawReactants))
	for _, r := range d.rawReactants {
		out = append(out, r)
	}
	return out
}

// TransduceBytes decodes data exactly once via the owning neuron's codec and
// dispatches the decoded value to value reactants and the raw bytes to raw
// reactants, both concurrently.
func (d *BytesDendrite) TransduceBytes(data []byte, reactionID string) error {
	raws := d.rawSnapshot()
	values := d.snapshot()

	var g errgroup.Group
	for _, r := range raws {
		r := r
		g.Go(func() error {
			r(data, d.neuron, reactionID)
			return nil
		})
	}
	if len(values) > 0 {
		decoded, err := d.neuron.DecodeAny(data)
		if err != nil {
			return g.Wait()
		}
		for _, r := range values {
			r := r
			g.Go(func() error {
				r(decoded, d.neuron, reactionID)
				return nil
			})
		}
	}
	return g.Wait()
}
