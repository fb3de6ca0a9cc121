package core

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestInprocSynapseTransmitIsTransduce(t *testing.T) {
	n := NewNeuron[string](DefaultNamespace, "Ping", StringCodec{})
	s := NewInprocSynapse(n)

	var calls int64
	s.Dendrite().AddReactants(func(value any, neuron Neuron, reactionID string) {
		atomic.AddInt64(&calls, 1)
	})

	if err := s.Transmit("hello", ""); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestInprocSynapseCloseIsIdempotentAndRejectsFurtherTransduce(t *testing.T) {
	n := NewNeuron[string](DefaultNamespace, "Ping", StringCodec{})
	s := NewInprocSynapse(n)

	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	err := s.Transduce("hello", "")
	if !errors.Is(err, ErrSynapseClosed) {
		t.Fatalf("expected ErrSynapseClosed, got %v", err)
	}
}
