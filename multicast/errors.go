package multicast

import "errors"

var (
	// ErrIPLeaseExists is returned by Lease when the address is already
	// leased (including the permanently reserved control addresses).
	ErrIPLeaseExists = errors.New("multicast: ip already leased")
	// ErrIPNotFound is returned when an address is outside the managed
	// CIDR.
	ErrIPNotFound = errors.New("multicast: ip not in managed cidr")
	// ErrIPNotLeased is returned by Release when the address is not
	// currently leased.
	ErrIPNotLeased = errors.New("multicast: ip not leased")
	// ErrIPsExhausted is returned by Get when no address remains available.
	ErrIPsExhausted = errors.New("multicast: no ip addresses available")
	// ErrIPAddressNotMulticast is a construction-time programmer error: the
	// configured CIDR does not fall within a multicast range.
	ErrIPAddressNotMulticast = errors.New("multicast: address is not a multicast address")

	// ErrPreparationRejection is a transient Paxos outcome: the local
	// proposal lost its preparation round and must be retried with a fresh
	// proposal-id.
	ErrPreparationRejection = errors.New("multicast: preparation rejected, retry")
	// ErrConsensusNotReached is a transient Paxos outcome: proposal did not
	// gather quorum approval and must be retried.
	ErrConsensusNotReached = errors.New("multicast: consensus not reached, retry")
	// ErrProposalPromiseNotMade is a follower-side invariant violation: a
	// Proposal arrived for a round the local peer never promised.
	ErrProposalPromiseNotMade = errors.New("multicast: proposal received without a prior promise")
	// ErrProposalNotLatest is a follower-side invariant violation: a
	// Proposal does not match the round the local peer last promised.
	ErrProposalNotLatest = errors.New("multicast: proposal does not match latest promise")
)
