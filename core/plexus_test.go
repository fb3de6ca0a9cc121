package core

import (
	"sync"
	"testing"
)

// fakeExternalGanglion is a minimal ExternalGanglion test double: it records
// what it was asked to transmit instead of touching a real transport.
type fakeExternalGanglion struct {
	filter CapabilityFilter

	mu            sync.Mutex
	adapted       map[string]bool
	valueSends    []any
	bytesSends    [][]byte
	bytesDendrite map[string]*BytesDendrite
}

func newFakeExternalGanglion(filter CapabilityFilter) *fakeExternalGanglion {
	return &fakeExternalGanglion{
		filter:        filter,
		adapted:       make(map[string]bool),
		bytesDendrite: make(map[string]*BytesDendrite),
	}
}

func (f *fakeExternalGanglion) IsExternal() bool { return true }

func (f *fakeExternalGanglion) Capable(neuron Neuron) bool {
	return f.filter.Capable(neuron.NameWithoutCodec(), neuron.CodecName())
}

func (f *fakeExternalGanglion) Adapt(neuron Neuron, reactants []Reactant, rawReactants []RawReactant) error {
	if !f.Capable(neuron) {
		return nil
	}
	f.mu.Lock()
	f.adapted[neuron.Name()] = true
	bd, ok := f.bytesDendrite[neuron.Name()]
	if !ok {
		bd = NewBytesDendrite(neuron)
		f.bytesDendrite[neuron.Name()] = bd
	}
	f.mu.Unlock()
	bd.AddReactants(reactants...)
	bd.AddRawReactants(rawReactants...)
	return nil
}

func (f *fakeExternalGanglion) Transmit(neuron Neuron, value any, reactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.adapted[neuron.Name()] {
		return errTransmitterNotFound
	}
	f.valueSends = append(f.valueSends, value)
	return nil
}

func (f *fakeExternalGanglion) TransmitBytes(neuron Neuron, data []byte, reactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.adapted[neuron.Name()] {
		return errTransmitterNotFound
	}
	f.bytesSends = append(f.bytesSends, data)
	return nil
}

// deliverInbound simulates the transport handing raw bytes to the external
// ganglion's bytes-dendrite for neuron, as if they'd arrived on the wire.
func (f *fakeExternalGanglion) deliverInbound(neuron Neuron, data []byte) error {
	f.mu.Lock()
	bd := f.bytesDendrite[neuron.Name()]
	f.mu.Unlock()
	return bd.TransduceBytes(data, "")
}

func TestPlexusCrossGanglionDedup(t *testing.T) {
	p := NewPlexus(CapabilityFilter{})
	ext := newFakeExternalGanglion(CapabilityFilter{})
	if err := p.InfuseGanglion(ext); err != nil {
		t.Fatalf("infuse: %v", err)
	}

	n := NewNeuron[string](DefaultNamespace, "Event", StringCodec{})
	if err := p.Adapt(n); err != nil {
		t.Fatalf("adapt: %v", err)
	}

	if err := p.Emit(n, "hello"); err != nil {
		t.Fatalf("emit: %v", err)
	}

	ext.mu.Lock()
	defer ext.mu.Unlock()
	if len(ext.valueSends) != 1 {
		t.Fatalf("expected exactly one frame sent to the external ganglion, got %d", len(ext.valueSends))
	}
	if ext.valueSends[0] != "hello" {
		t.Fatalf("unexpected value sent: %v", ext.valueSends[0])
	}
}

func TestPlexusCapabilityFilterRejectsNeuron(t *testing.T) {
	p := NewPlexus(CapabilityFilter{})
	filter := CapabilityFilter{AllowedCodecs: map[string]bool{"msgpack": true}}
	ext := newFakeExternalGanglion(filter)
	if err := p.InfuseGanglion(ext); err != nil {
		t.Fatalf("infuse: %v", err)
	}

	n := NewNeuron[string](DefaultNamespace, "Event", StringCodec{}) // codec "string", not allowed
	if err := p.Adapt(n); err != nil {
		t.Fatalf("adapt: %v", err)
	}

	ext.mu.Lock()
	adapted := ext.adapted[n.Name()]
	ext.mu.Unlock()
	if adapted {
		t.Fatal("expected the capability filter to reject this neuron")
	}

	if err := p.Emit(n, "hello"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	ext.mu.Lock()
	defer ext.mu.Unlock()
	if len(ext.valueSends) != 0 {
		t.Fatalf("expected no transmit to a ganglion that rejected this neuron, got %d", len(ext.valueSends))
	}
}

func TestPlexusExternalExternalForwardsRawBytesOnly(t *testing.T) {
	p := NewPlexus(CapabilityFilter{})
	origin := newFakeExternalGanglion(CapabilityFilter{})
	other := newFakeExternalGanglion(CapabilityFilter{})
	if err := p.InfuseGanglion(origin); err != nil {
		t.Fatalf("infuse origin: %v", err)
	}
	if err := p.InfuseGanglion(other); err != nil {
		t.Fatalf("infuse other: %v", err)
	}

	n := NewNeuron[string](DefaultNamespace, "Event", StringCodec{})
	if err := p.Adapt(n); err != nil {
		t.Fatalf("adapt: %v", err)
	}

	if err := origin.deliverInbound(n, []byte("hello")); err != nil {
		t.Fatalf("deliver inbound: %v", err)
	}

	other.mu.Lock()
	defer other.mu.Unlock()
	if len(other.bytesSends) != 1 || string(other.bytesSends[0]) != "hello" {
		t.Fatalf("expected raw bytes forwarded to the other external ganglion, got %v", other.bytesSends)
	}

	origin.mu.Lock()
	defer origin.mu.Unlock()
	if len(origin.bytesSends) != 0 {
		t.Fatal("expected no bytes forwarded back to the originating ganglion")
	}
}
