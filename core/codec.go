package core

// Codec encodes and decodes values of type T to and from the wire bytes
// carried by a neuron's dendrites and synapses. Implementations must be safe
// for concurrent use.
type Codec[T any] interface {
	// Encode converts v into its wire representation.
	Encode(v T) ([]byte, error)
	// Decode converts wire bytes back into a value of type T.
	Decode(data []byte) (T, error)
	// Name identifies the codec, forming part of a neuron's full name so
	// that two neurons carrying the same Go type but different codecs are
	// distinguishable on the wire.
	Name() string
}

// StringCodec is a bundled, illustrative Codec[string] that encodes a string
// as its UTF-8 bytes verbatim. It exists because spec-level documentation
// names StringCodec as an example codec, not because concrete codecs are a
// responsibility of the core package.
type StringCodec struct{}

// Encode returns the UTF-8 bytes of v.
func (StringCodec) Encode(v string) ([]byte, error) {
	return []byte(v), nil
}

// Decode returns data interpreted as a UTF-8 string.
func (StringCodec) Decode(data []byte) (string, error) {
	return string(data), nil
}

// Name returns "string".
func (StringCodec) Name() string {
	return "string"
}
