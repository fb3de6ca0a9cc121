package core

import "strings"

// Namespace scopes neuron names so unrelated subsystems sharing a transport
// do not collide on type name alone.
type Namespace string

// DefaultNamespace is used when no namespace is supplied to NewNeuron.
const DefaultNamespace Namespace = ""

// WithSuffix returns a new namespace formed by appending every part in
// parts, in order, dot-separated after n itself. This is the one naming
// primitive neuron names are built from: NewNeuron calls it once with the
// type name and once more with the type name plus the codec name, rather
// than hand-concatenating either.
func (n Namespace) WithSuffix(parts ...string) Namespace {
	if len(parts) == 0 {
		return n
	}
	all := make([]string, 0, len(parts)+1)
	if n != DefaultNamespace {
		all = append(all, string(n))
	}
	all = append(all, parts...)
	return Namespace(strings.Join(all, "."))
}

func (n Namespace) String() string {
	return string(n)
}
