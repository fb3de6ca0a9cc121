package multicast

import "testing"

func TestProposalIdentityOrdering(t *testing.T) {
	a := proposalIdentity{ProposalID: 5, InstanceID: 1}
	b := proposalIdentity{ProposalID: 5, InstanceID: 2}
	c := proposalIdentity{ProposalID: 6, InstanceID: 1}

	if !b.newerThan(a) {
		t.Fatal("expected instance-id to tie-break equal proposal-ids")
	}
	if a.newerThan(b) {
		t.Fatal("lower instance-id must not be newer on a tied proposal-id")
	}
	if !c.newerThan(b) {
		t.Fatal("expected higher proposal-id to win regardless of instance-id")
	}
}

func TestQuorumIsStrictMajority(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3}
	for peers, want := range cases {
		if got := quorum(peers); got != want {
			t.Fatalf("quorum(%d) = %d, want %d", peers, got, want)
		}
	}
}

func TestHandlePreparationPromisesNewerRound(t *testing.T) {
	c := newConsensusState()
	reply := c.handlePreparation(Preparation{InstanceID: 1, ProposalID: 10, TypeName: "Widget"})
	promise, ok := reply.(Promise)
	if !ok {
		t.Fatalf("expected a Promise, got %T", reply)
	}
	if promise.MulticastIP != nil {
		t.Fatal("expected no previously accepted value on a fresh channel")
	}
}

func TestHandlePreparationRejectsStaleRound(t *testing.T) {
	c := newConsensusState()
	c.handlePreparation(Preparation{InstanceID: 1, ProposalID: 10, TypeName: "Widget"})

	reply := c.handlePreparation(Preparation{InstanceID: 1, ProposalID: 5, TypeName: "Widget"})
	if _, ok := reply.(Rejection); !ok {
		t.Fatalf("expected a Rejection for a stale proposal-id, got %T", reply)
	}
}

func TestHandleProposalRequiresMatchingPromise(t *testing.T) {
	c := newConsensusState()
	if _, err := c.handleProposal(Proposal{InstanceID: 1, ProposalID: 10, TypeName: "Widget", MulticastIP: strPtr("239.0.1.1")}); err != ErrProposalPromiseNotMade {
		t.Fatalf("expected ErrProposalPromiseNotMade, got %v", err)
	}

	c.handlePreparation(Preparation{InstanceID: 1, ProposalID: 10, TypeName: "Widget"})

	if _, err := c.handleProposal(Proposal{InstanceID: 1, ProposalID: 9, TypeName: "Widget", MulticastIP: strPtr("239.0.1.1")}); err != ErrProposalNotLatest {
		t.Fatalf("expected ErrProposalNotLatest for a non-matching round, got %v", err)
	}

	approval, err := c.handleProposal(Proposal{InstanceID: 1, ProposalID: 10, TypeName: "Widget", MulticastIP: strPtr("239.0.1.1")})
	if err != nil {
		t.Fatalf("expected the matching proposal to be approved, got %v", err)
	}
	if approval.MulticastIP != "239.0.1.1" {
		t.Fatalf("unexpected approval address: %s", approval.MulticastIP)
	}
}

// TestTwoPeersCommitTheSameAddress is the safety property spec.md §4.9
// requires: for any two peers that commit a value for the same channel in
// the same round, the committed addresses must be equal. It simulates a
// 3-peer fabric (peerA proposing, peerB and peerC following) directly
// against consensusState, with no network involved.
func TestTwoPeersCommitTheSameAddress(t *testing.T) {
	const channel = "Widget"
	const proposalID = 100
	const proposerInstanceID = 1

	peerB := newConsensusState()
	peerC := newConsensusState()

	prep := Preparation{InstanceID: proposerInstanceID, ProposalID: proposalID, TypeName: channel}
	replyB := peerB.handlePreparation(prep)
	replyC := peerC.handlePreparation(prep)
	if _, ok := replyB.(Promise); !ok {
		t.Fatalf("expected peerB to promise, got %T", replyB)
	}
	if _, ok := replyC.(Promise); !ok {
		t.Fatalf("expected peerC to promise, got %T", replyC)
	}

	address := "239.0.1.42"
	proposal := Proposal{InstanceID: proposerInstanceID, ProposalID: proposalID, TypeName: channel, MulticastIP: &address}

	approvalB, err := peerB.handleProposal(proposal)
	if err != nil {
		t.Fatalf("peerB approve: %v", err)
	}
	approvalC, err := peerC.handleProposal(proposal)
	if err != nil {
		t.Fatalf("peerC approve: %v", err)
	}

	if approvalB.MulticastIP != approvalC.MulticastIP {
		t.Fatalf("peers committed different addresses: %s vs %s", approvalB.MulticastIP, approvalC.MulticastIP)
	}
	if approvalB.MulticastIP != address {
		t.Fatalf("committed address %s does not match the proposed value %s", approvalB.MulticastIP, address)
	}
}

// TestRecordCommitMakesProposerACorrectAcceptorForItsOwnValue reproduces the
// scenario spec.md §8's safety invariant rules out: peerA commits a value for
// a channel by winning a round outright (as the sole proposer, so
// handlePreparation/handleProposal are never invoked on its own state), then
// peerB later prepares a fresh round for the same channel. Without
// recordCommit, peerA's currentProposal/currentValue for the channel would
// still be the zero value, so it would wrongly promise "no prior value" and
// let peerB commit a different address for the same channel-name.
func TestRecordCommitMakesProposerACorrectAcceptorForItsOwnValue(t *testing.T) {
	const channel = "Widget"
	peerA := newConsensusState()

	won := proposalIdentity{ProposalID: 100, InstanceID: 1}
	peerA.recordCommit(channel, won, "239.0.1.42")

	reply := peerA.handlePreparation(Preparation{InstanceID: 2, ProposalID: 200, TypeName: channel})
	promise, ok := reply.(Promise)
	if !ok {
		t.Fatalf("expected a Promise, got %T", reply)
	}
	if promise.MulticastIP == nil {
		t.Fatal("expected peerA to disclose its own previously committed value, got nil")
	}
	if *promise.MulticastIP != "239.0.1.42" {
		t.Fatalf("unexpected disclosed value: %s", *promise.MulticastIP)
	}
	if promise.AcceptedProposalID != won.ProposalID || promise.AcceptedInstanceID != won.InstanceID {
		t.Fatalf("unexpected disclosed proposal identity: %+v", promise)
	}
}

// TestRecordCommitDoesNotRegressToAnOlderProposal guards the newerThan check
// inside recordCommit: a stale/delayed call (e.g. from a retried solo-peer
// acquire) must never clobber a value already recorded under a newer
// proposal identity.
func TestRecordCommitDoesNotRegressToAnOlderProposal(t *testing.T) {
	const channel = "Widget"
	c := newConsensusState()

	newer := proposalIdentity{ProposalID: 200, InstanceID: 1}
	c.recordCommit(channel, newer, "239.0.1.42")

	older := proposalIdentity{ProposalID: 100, InstanceID: 1}
	c.recordCommit(channel, older, "239.0.1.99")

	reply := c.handlePreparation(Preparation{InstanceID: 2, ProposalID: 300, TypeName: channel})
	promise, ok := reply.(Promise)
	if !ok {
		t.Fatalf("expected a Promise, got %T", reply)
	}
	if promise.MulticastIP == nil || *promise.MulticastIP != "239.0.1.42" {
		t.Fatalf("expected the newer recorded value to survive, got %v", promise.MulticastIP)
	}
}

func TestRouteApprovalCommitsOnceQuorumCrossed(t *testing.T) {
	c := newConsensusState()
	const channel = "Widget"
	const peerCount = 3 // quorum is 2

	a1 := Approval{InstanceID: 1, ProposalID: 1, TypeName: channel, MulticastIP: "239.0.1.1"}

	_, committed := c.routeApproval(channel, 99, 1, a1, peerCount)
	if committed {
		t.Fatal("expected no commit on the first observed approval")
	}

	ip, committed := c.routeApproval(channel, 99, 1, a1, peerCount)
	if !committed {
		t.Fatal("expected commit once approvals cross quorum")
	}
	if ip != "239.0.1.1" {
		t.Fatalf("unexpected committed ip: %s", ip)
	}

	// A third observation of the same round must not re-commit.
	_, committedAgain := c.routeApproval(channel, 99, 1, a1, peerCount)
	if committedAgain {
		t.Fatal("expected no re-commit for an already-committed round")
	}
}
