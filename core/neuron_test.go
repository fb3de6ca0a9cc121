package core

import "testing"

func TestNeuronNameIsStableAndUsedForEquality(t *testing.T) {
	n1 := NewNeuron[string](DefaultNamespace, "Greeting", StringCodec{})
	n2 := NewNeuron[string](DefaultNamespace, "Greeting", StringCodec{})

	if n1.Name() != n2.Name() {
		t.Fatalf("expected equal names, got %q and %q", n1.Name(), n2.Name())
	}
	if n1.Name() != "Greeting.string" {
		t.Fatalf("unexpected name: %q", n1.Name())
	}
	if n1.NameWithoutCodec() != "Greeting" {
		t.Fatalf("unexpected name without codec: %q", n1.NameWithoutCodec())
	}
	if n1.CodecName() != "string" {
		t.Fatalf("unexpected codec name: %q", n1.CodecName())
	}
}

func TestNeuronNamespaceSuffix(t *testing.T) {
	ns := Namespace("a").WithSuffix("b").WithSuffix("c")
	if ns.String() != "a.b.c" {
		t.Fatalf("expected a.b.c, got %s", ns.String())
	}

	n := NewNeuron[int](ns, "Count", intCodec{})
	if n.NameWithoutCodec() != "a.b.c.Count" {
		t.Fatalf("unexpected namespaced name: %s", n.NameWithoutCodec())
	}
	if n.Name() != "a.b.c.Count.int" {
		t.Fatalf("unexpected full name: %s", n.Name())
	}
}

func TestNamespaceWithSuffixJoinsMultiplePartsAtOnce(t *testing.T) {
	ns := Namespace("a").WithSuffix("b", "c")
	if ns.String() != "a.b.c" {
		t.Fatalf("expected a.b.c, got %s", ns.String())
	}
	if Namespace("a").WithSuffix() != Namespace("a") {
		t.Fatal("expected a no-op WithSuffix() call to return the receiver unchanged")
	}
}

func TestNeuronEncodeAnyRejectsWrongType(t *testing.T) {
	n := NewNeuron[int](DefaultNamespace, "Count", intCodec{})
	if _, err := n.EncodeAny("not an int"); err == nil {
		t.Fatal("expected error encoding a mismatched type")
	}
}

// intCodec is a minimal Codec[int] used only by tests in this package.
type intCodec struct{}

func (intCodec) Encode(v int) ([]byte, error) { return []byte{byte(v)}, nil }
func (intCodec) Decode(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	return int(data[0]), nil
}
func (intCodec) Name() string { return "int" }
