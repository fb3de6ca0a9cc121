package multicast

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// NewInstanceID generates a 64-bit identifier unique to a running peer,
// taken from the top 64 bits of a time-ordered UUID.
func NewInstanceID() uint64 {
	id := uuid.Must(uuid.NewV7())
	return binary.BigEndian.Uint64(id[:8])
}

// proposalID mints a proposal identifier: a wall-clock nanosecond
// timestamp. Two peers with synchronized clocks may collide on this value
// alone, so every comparison pairs it with instance-id as the tie-break
// (see proposalIdentity.newerThan).
func newProposalID(nowNanos func() int64) uint64 {
	return uint64(nowNanos())
}

// proposalIdentity is the (proposal-id, instance-id) tuple that totally
// orders Paxos rounds for one channel-name.
type proposalIdentity struct {
	ProposalID uint64
	InstanceID uint64
}

// newerThan reports whether p is strictly newer than other by the
// lexicographic (proposal-id, instance-id) order spec.md mandates as the
// unambiguous tie-break.
func (p proposalIdentity) newerThan(other proposalIdentity) bool {
	if p.ProposalID != other.ProposalID {
		return p.ProposalID > other.ProposalID
	}
	return p.InstanceID > other.InstanceID
}
