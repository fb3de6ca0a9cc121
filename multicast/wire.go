package multicast

import "github.com/vmihailenco/msgpack/v5"

// Heartbeat announces that instanceID is still alive. Sent periodically on
// the reserved heartbeat channel.
type Heartbeat struct {
	InstanceID uint64 `msgpack:"instance_id"`
}

// Preparation opens a Paxos round for typeName, proposing proposalID.
type Preparation struct {
	InstanceID uint64 `msgpack:"instance_id"`
	ProposalID uint64 `msgpack:"proposal_id"`
	TypeName   string `msgpack:"type_name"`
}

// Promise is a peer's reply to a Preparation it accepted. MulticastIP is
// nil when the peer never observed a prior accepted value for typeName, per
// the explicit optional/absent treatment spec.md's design notes require
// instead of substituting a zero address.
type Promise struct {
	InstanceID         uint64  `msgpack:"instance_id"`
	ProposalID         uint64  `msgpack:"proposal_id"`
	TypeName           string  `msgpack:"type_name"`
	AcceptedInstanceID uint64  `msgpack:"accepted_instance_id"`
	AcceptedProposalID uint64  `msgpack:"accepted_proposal_id"`
	MulticastIP        *string `msgpack:"multicast_ip,omitempty"`
}

// Rejection is a peer's reply to a Preparation it did not accept because it
// had already promised a newer proposal.
type Rejection struct {
	InstanceID uint64 `msgpack:"instance_id"`
	ProposalID uint64 `msgpack:"proposal_id"`
	TypeName   string `msgpack:"type_name"`
}

// Proposal asks peers to approve value for typeName after a quorum of
// promises was collected.
type Proposal struct {
	InstanceID  uint64  `msgpack:"instance_id"`
	ProposalID  uint64  `msgpack:"proposal_id"`
	TypeName    string  `msgpack:"type_name"`
	MulticastIP *string `msgpack:"multicast_ip,omitempty"`
}

// Approval is a peer's acceptance of a Proposal it previously promised.
type Approval struct {
	InstanceID  uint64 `msgpack:"instance_id"`
	ProposalID  uint64 `msgpack:"proposal_id"`
	TypeName    string `msgpack:"type_name"`
	MulticastIP string `msgpack:"multicast_ip"`
}

// msgpackCodec implements core.Codec[T] for any msgpack-marshalable T. It is
// used for all six control-plane message schemas, one instantiation per
// type, matching "each control message is encoded by a dedicated codec".
type msgpackCodec[T any] struct {
	name string
}

func newMsgpackCodec[T any](name string) msgpackCodec[T] {
	return msgpackCodec[T]{name: name}
}

func (c msgpackCodec[T]) Encode(v T) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c msgpackCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := msgpack.Unmarshal(data, &v)
	return v, err
}

func (c msgpackCodec[T]) Name() string { return c.name }
