package core

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestValueDendriteFanOutInvokesEveryReactant(t *testing.T) {
	n := NewNeuron[string](DefaultNamespace, "Ping", StringCodec{})
	d := NewValueDendrite(n)

	const reactantCount = 5
	const emissions = 3

	var counts [reactantCount]int64
	for i := 0; i < reactantCount; i++ {
		i := i
		d.AddReactants(func(value any, neuron Neuron, reactionID string) {
			atomic.AddInt64(&counts[i], 1)
		})
	}

	for e := 0; e < emissions; e++ {
		if err := d.Transduce("hello", ""); err != nil {
			t.Fatalf("transduce: %v", err)
		}
	}

	for i, c := range counts {
		if c != emissions {
			t.Fatalf("reactant %d invoked %d times, want %d", i, c, emissions)
		}
	}
}

func TestValueDendriteEmptyReactantSetIsNotAnError(t *testing.T) {
	n := NewNeuron[string](DefaultNamespace, "Ping", StringCodec{})
	d := NewValueDendrite(n)
	if err := d.Transduce("hello", ""); err != nil {
		t.Fatalf("expected no error with zero reactants, got %v", err)
	}
}

func TestValueDendriteRemoveReactants(t *testing.T) {
	n := NewNeuron[string](DefaultNamespace, "Ping", StringCodec{})
	d := NewValueDendrite(n)

	var calls int64
	handles := d.AddReactants(func(value any, neuron Neuron, reactionID string) {
		atomic.AddInt64(&calls, 1)
	})
	d.RemoveReactants(handles...)

	if err := d.Transduce("hello", ""); err != nil {
		t.Fatalf("transduce: %v", err)
	}
	if calls != 0 {
		t.Fatalf("removed reactant still invoked %d times", calls)
	}
}

func TestBytesDendriteDecodesOnceAndDispatchesBoth(t *testing.T) {
	n := NewNeuron[string](DefaultNamespace, "Ping", StringCodec{})
	d := NewBytesDendrite(n)

	var mu sync.Mutex
	var decodedValues []string
	var rawPayloads [][]byte

	d.AddReactants(func(value any, neuron Neuron, reactionID string) {
		mu.Lock()
		decodedValues = append(decodedValues, value.(string))
		mu.Unlock()
	})
	d.AddRawReactants(func(data []byte, neuron Neuron, reactionID string) {
		mu.Lock()
		rawPayloads = append(rawPayloads, data)
		mu.Unlock()
	})

	if err := d.TransduceBytes([]byte("hello"), ""); err != nil {
		t.Fatalf("transduce bytes: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(decodedValues) != 1 || decodedValues[0] != "hello" {
		t.Fatalf("unexpected decoded values: %v", decodedValues)
	}
	if len(rawPayloads) != 1 || string(rawPayloads[0]) != "hello" {
		t.Fatalf("unexpected raw payloads: %v", rawPayloads)
	}
}
