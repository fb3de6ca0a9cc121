package multicast

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"plexus/core"
)

const (
	offsetHeartbeat = iota
	offsetPreparation
	offsetPromise
	offsetRejection
	offsetProposal
	offsetApproval
)

var (
	heartbeatNeuron   = core.NewNeuron[Heartbeat](core.DefaultNamespace, "plexus.multicast.Heartbeat", newMsgpackCodec[Heartbeat]("msgpack"))
	preparationNeuron = core.NewNeuron[Preparation](core.DefaultNamespace, "plexus.multicast.Preparation", newMsgpackCodec[Preparation]("msgpack"))
	promiseNeuron     = core.NewNeuron[Promise](core.DefaultNamespace, "plexus.multicast.Promise", newMsgpackCodec[Promise]("msgpack"))
	rejectionNeuron   = core.NewNeuron[Rejection](core.DefaultNamespace, "plexus.multicast.Rejection", newMsgpackCodec[Rejection]("msgpack"))
	proposalNeuron    = core.NewNeuron[Proposal](core.DefaultNamespace, "plexus.multicast.Proposal", newMsgpackCodec[Proposal]("msgpack"))
	approvalNeuron    = core.NewNeuron[Approval](core.DefaultNamespace, "plexus.multicast.Approval", newMsgpackCodec[Approval]("msgpack"))
)

// Ganglion is the peer-to-peer multicast transport: it discovers peers via
// heartbeats and runs a Paxos-style consensus protocol to allocate a unique
// multicast group address to each type name. It composes
// core.ExternalGanglionBase for the adapt/transmit skeleton shared by every
// wire-backed ganglion, supplying createDataSynapse as the one seam that
// differs: address assignment via AcquireAddress instead of a fixed bind.
type Ganglion struct {
	*core.ExternalGanglionBase

	cfg        Config
	lease      *IPLeaseManager
	iface      *net.Interface
	instanceID uint64
	consensus  *consensusState

	ctx    context.Context
	cancel context.CancelFunc

	control map[int]*UDPMulticastSynapse

	heartbeatMu    sync.Mutex
	peerHeartbeats map[uint64]time.Time
	peerCountMu    sync.RWMutex
	peerCount      int

	startupOnce sync.Once
	startupDone chan struct{}

	addrMu           sync.Mutex
	synapsesByAddr   map[string]string // address -> channel-name, collision detection
	dataSynapsesByCh map[string]*UDPMulticastSynapse
}

// New creates a multicast ganglion from cfg but does not start its
// background loops; call Start for that.
func New(cfg Config) (*Ganglion, error) {
	cfg = cfg.withDefaults()
	cidr, err := cfg.parseCIDR()
	if err != nil {
		return nil, fmt.Errorf("multicast: parse cidr: %w", err)
	}
	lease, err := NewIPLeaseManager(cidr, cfg.ReservedAddresses)
	if err != nil {
		return nil, err
	}
	iface, err := cfg.interfaceOrNil()
	if err != nil {
		return nil, fmt.Errorf("multicast: bind interface: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Ganglion{
		cfg:              cfg,
		lease:            lease,
		iface:            iface,
		instanceID:       NewInstanceID(),
		consensus:        newConsensusState(),
		ctx:              ctx,
		cancel:           cancel,
		control:          make(map[int]*UDPMulticastSynapse),
		peerHeartbeats:   make(map[uint64]time.Time),
		startupDone:      make(chan struct{}),
		synapsesByAddr:   make(map[string]string),
		dataSynapsesByCh: make(map[string]*UDPMulticastSynapse),
	}
	g.ExternalGanglionBase = core.NewExternalGanglionBase("MulticastGanglion", cfg.Filter, g.createDataSynapse)
	return g, nil
}

// InstanceID returns this peer's 64-bit instance identifier.
func (g *Ganglion) InstanceID() uint64 { return g.instanceID }

// PeerCount returns the number of distinct peers heard from within the
// current heartbeat interval.
func (g *Ganglion) PeerCount() int {
	g.peerCountMu.RLock()
	defer g.peerCountMu.RUnlock()
	return g.peerCount
}

func (g *Ganglion) bindControl(offset int, neuron core.Neuron, raw core.RawReactant) (*UDPMulticastSynapse, error) {
	addr := g.lease.ReservedAddress(offset)
	syn := NewUDPMulticastSynapse(neuron, addr, g.cfg.Port, g.iface)
	syn.BytesDendrite().AddRawReactants(raw)
	if err := syn.StartReceiving(); err != nil {
		return nil, err
	}
	return syn, nil
}

// Start binds the six control channels to their reserved addresses (set
// aside by the lease manager in New), installs the control reactions, and launches the heartbeat and peer-count loops. It returns
// once the control synapses are bound; it does not block for a full
// heartbeat interval (see WaitStartup for that).
func (g *Ganglion) Start() error {
	bindings := []struct {
		offset int
		neuron core.Neuron
		raw    core.RawReactant
	}{
		{offsetHeartbeat, heartbeatNeuron, g.onHeartbeatRaw},
		{offsetPreparation, preparationNeuron, g.onPreparationRaw},
		{offsetPromise, promiseNeuron, g.onPromiseRaw},
		{offsetRejection, rejectionNeuron, g.onRejectionRaw},
		{offsetProposal, proposalNeuron, g.onProposalRaw},
		{offsetApproval, approvalNeuron, g.onApprovalRaw},
	}
	for _, b := range bindings {
		syn, err := g.bindControl(b.offset, b.neuron, b.raw)
		if err != nil {
			return fmt.Errorf("multicast: bind control channel %d: %w", b.offset, err)
		}
		g.control[b.offset] = syn
	}

	go g.heartbeatLoop()
	go g.peerCountLoop()
	go func() {
		time.Sleep(g.cfg.HeartbeatInterval)
		g.startupOnce.Do(func() { close(g.startupDone) })
	}()
	return nil
}

// WaitStartup blocks until one heartbeat interval has elapsed since Start,
// or ctx is done. User-visible operations (Adapt of an application neuron)
// wait for this; internal control messages bypass it.
func (g *Ganglion) WaitStartup(ctx context.Context) error {
	select {
	case <-g.startupDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels background loops and closes every synapse, control and
// data alike.
func (g *Ganglion) Close() error {
	g.cancel()
	for _, s := range g.control {
		_ = s.Close()
	}
	return g.ExternalGanglionBase.Close()
}

func (g *Ganglion) heartbeatLoop() {
	for {
		interval := g.cfg.HeartbeatInterval
		wait := interval/2 + time.Duration(rand.Int63n(int64(interval/2)+1))
		select {
		case <-g.ctx.Done():
			return
		case <-time.After(wait):
		}
		hb := Heartbeat{InstanceID: g.instanceID}
		data, err := heartbeatNeuron.Encode(hb)
		if err != nil {
			continue
		}
		if err := g.control[offsetHeartbeat].Transmit(data, ""); err != nil {
			log.Warnf("multicast: heartbeat send failed: %v", err)
		}
	}
}

func (g *Ganglion) peerCountLoop() {
	ticker := time.NewTicker(g.cfg.HeartbeatInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.recomputePeerCount()
		}
	}
}

func (g *Ganglion) recomputePeerCount() {
	cutoff := time.Now().Add(-g.cfg.HeartbeatInterval)
	g.heartbeatMu.Lock()
	count := 0
	for id, last := range g.peerHeartbeats {
		if last.Before(cutoff) {
			delete(g.peerHeartbeats, id)
			continue
		}
		if id != g.instanceID {
			count++
		}
	}
	g.heartbeatMu.Unlock()

	g.peerCountMu.Lock()
	g.peerCount = count
	g.peerCountMu.Unlock()
}

// --- control message handlers, raw-reactant shaped (bytes, neuron, reactionID) ---

func (g *Ganglion) onHeartbeatRaw(data []byte, _ core.Neuron, _ string) {
	hb, err := heartbeatNeuron.Decode(data)
	if err != nil {
		return
	}
	g.heartbeatMu.Lock()
	g.peerHeartbeats[hb.InstanceID] = time.Now()
	g.heartbeatMu.Unlock()
}

func (g *Ganglion) onPreparationRaw(data []byte, _ core.Neuron, _ string) {
	msg, err := preparationNeuron.Decode(data)
	if err != nil {
		return
	}
	if msg.InstanceID == g.instanceID {
		return
	}
	reply := g.consensus.handlePreparation(msg)
	switch r := reply.(type) {
	case Promise:
		g.sendPromise(r)
	case Rejection:
		g.sendRejection(r)
	}
}

func (g *Ganglion) onPromiseRaw(data []byte, _ core.Neuron, _ string) {
	msg, err := promiseNeuron.Decode(data)
	if err != nil {
		return
	}
	g.consensus.routeResponse(msg.TypeName, g.instanceID, msg.ProposalID, &msg, nil, g.PeerCount())
}

func (g *Ganglion) onRejectionRaw(data []byte, _ core.Neuron, _ string) {
	msg, err := rejectionNeuron.Decode(data)
	if err != nil {
		return
	}
	g.consensus.routeResponse(msg.TypeName, g.instanceID, msg.ProposalID, nil, &msg, g.PeerCount())
}

func (g *Ganglion) onProposalRaw(data []byte, _ core.Neuron, _ string) {
	msg, err := proposalNeuron.Decode(data)
	if err != nil {
		return
	}
	if msg.InstanceID == g.instanceID {
		return
	}
	approval, err := g.consensus.handleProposal(msg)
	if err != nil {
		log.Debugf("multicast: proposal for %s rejected: %v", msg.TypeName, err)
		return
	}
	g.sendApproval(approval)
}

func (g *Ganglion) onApprovalRaw(data []byte, _ core.Neuron, _ string) {
	msg, err := approvalNeuron.Decode(data)
	if err != nil {
		return
	}
	ip, committed := g.consensus.routeApproval(msg.TypeName, g.instanceID, msg.ProposalID, msg, g.PeerCount())
	if committed && msg.InstanceID != g.instanceID {
		g.adoptCommittedAddress(msg.TypeName, ip)
	}
}

func (g *Ganglion) sendPromise(p Promise) {
	data, err := promiseNeuron.Encode(p)
	if err != nil {
		return
	}
	_ = g.control[offsetPromise].Transmit(data, "")
}

func (g *Ganglion) sendRejection(r Rejection) {
	data, err := rejectionNeuron.Encode(r)
	if err != nil {
		return
	}
	_ = g.control[offsetRejection].Transmit(data, "")
}

func (g *Ganglion) sendApproval(a Approval) {
	data, err := approvalNeuron.Encode(a)
	if err != nil {
		return
	}
	_ = g.control[offsetApproval].Transmit(data, "")
}

// adoptCommittedAddress runs when a peer sees an approval for a round it did
// not itself propose cross majority. It records the approved address for
// the channel in synapsesByAddr; it does not create a synapse, and it does
// not rebind an existing synapse bound to a different address.
func (g *Ganglion) adoptCommittedAddress(channel, ip string) {
	g.addrMu.Lock()
	existing, ok := g.dataSynapsesByCh[channel]
	g.addrMu.Unlock()
	if ok && existing.Address().String() == ip {
		return
	}
	log.Infof("multicast: adopting committed address %s for %s (observed, not proposer)", ip, channel)
	// Rebinding a passively-observed channel to a concrete core.Neuron
	// requires the application to have adapted it locally first (only then
	// does this ganglion know the neuron/codec for `channel`); until it
	// does, the address is simply remembered via synapsesByAddr for
	// collision detection.
	g.addrMu.Lock()
	g.synapsesByAddr[ip] = channel
	g.addrMu.Unlock()
}

// createDataSynapse is the SynapseFactory supplied to ExternalGanglionBase.
// It waits for startup, then runs AcquireAddress to negotiate a multicast
// group for neuron's channel before binding a synapse to it.
func (g *Ganglion) createDataSynapse(neuron core.Neuron) (core.ExternalSynapse, error) {
	waitCtx, cancel := context.WithTimeout(g.ctx, g.cfg.HeartbeatInterval+g.cfg.ProposalTimeout)
	defer cancel()
	if err := g.WaitStartup(waitCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStartup, err)
	}

	ip, err := g.AcquireAddress(g.ctx, neuron.NameWithoutCodec())
	if err != nil {
		return nil, err
	}

	syn := NewUDPMulticastSynapse(neuron, ip, g.cfg.Port, g.iface)

	g.addrMu.Lock()
	g.synapsesByAddr[ip.String()] = neuron.NameWithoutCodec()
	g.dataSynapsesByCh[neuron.NameWithoutCodec()] = syn
	g.addrMu.Unlock()

	return syn, nil
}

// AcquireAddress runs the Paxos-style acquire loop of spec.md §4.9 for
// typeName, retrying on Preparation-Rejection and Consensus-Not-Reached
// until an address is committed.
func (g *Ganglion) AcquireAddress(ctx context.Context, typeName string) (net.IP, error) {
	for {
		ip, err := g.acquireOnce(ctx, typeName)
		if err == nil {
			return ip, nil
		}
		if err == ErrPreparationRejection || err == ErrConsensusNotReached {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		return nil, err
	}
}

func (g *Ganglion) acquireOnce(ctx context.Context, typeName string) (net.IP, error) {
	peerCount := g.PeerCount()

	proposalID := newProposalID(func() int64 { return time.Now().UnixNano() })

	if peerCount == 0 {
		// No peers to reach quorum with: any value this peer picks is
		// trivially the whole fabric's decision. Still record it as this
		// peer's own committed value so a later Preparation from a peer that
		// joins afterward sees the correct prior value instead of "none".
		ip, err := g.lease.Get()
		if err != nil {
			return nil, err
		}
		g.consensus.recordCommit(typeName, proposalIdentity{ProposalID: proposalID, InstanceID: g.instanceID}, ip.String())
		return ip, nil
	}

	round := g.consensus.beginRound(typeName)
	defer g.consensus.endRound(typeName)

	// Step 1: Prepare.
	prep := Preparation{InstanceID: g.instanceID, ProposalID: proposalID, TypeName: typeName}
	data, err := preparationNeuron.Encode(prep)
	if err != nil {
		return nil, err
	}
	if err := g.control[offsetPreparation].Transmit(data, ""); err != nil {
		return nil, err
	}

	if err := g.waitQuorumOrTimeout(ctx, round, acquireTimeout(g.cfg.ProposalTimeout)); err != nil {
		return nil, err
	}

	round.mu.Lock()
	promises := append([]Promise(nil), round.promises...)
	rejections := len(round.rejections)
	round.mu.Unlock()

	if len(promises) < quorum(peerCount)-1 && len(promises) < peerCount/2 {
		logRoundOutcome(typeName, ErrPreparationRejection)
		return nil, ErrPreparationRejection
	}
	if rejections > peerCount/2 {
		logRoundOutcome(typeName, ErrPreparationRejection)
		return nil, ErrPreparationRejection
	}

	value := g.chooseValue(promises)
	if value == nil {
		ip, err := g.lease.Get()
		if err != nil {
			return nil, err
		}
		s := ip.String()
		value = &s
	}

	// Step 4: Propose.
	proposal := Proposal{InstanceID: g.instanceID, ProposalID: proposalID, TypeName: typeName, MulticastIP: value}
	data, err = proposalNeuron.Encode(proposal)
	if err != nil {
		return nil, err
	}
	round2 := g.consensus.beginRound(typeName)
	if err := g.control[offsetProposal].Transmit(data, ""); err != nil {
		return nil, err
	}
	if err := g.waitQuorumOrTimeout(ctx, round2, acquireTimeout(g.cfg.ProposalTimeout)); err != nil {
		return nil, err
	}

	round2.mu.Lock()
	approvals := len(round2.approvals)
	round2.mu.Unlock()

	if approvals <= peerCount/2 {
		logRoundOutcome(typeName, ErrConsensusNotReached)
		return nil, ErrConsensusNotReached
	}
	g.consensus.recordCommit(typeName, proposalIdentity{ProposalID: proposalID, InstanceID: g.instanceID}, *value)
	logRoundOutcome(typeName, nil)
	return net.ParseIP(*value), nil
}

// chooseValue picks the multicast-ip from the promise with the highest
// (accepted_proposal_id, accepted_instance_id), or nil if none carried one.
func (g *Ganglion) chooseValue(promises []Promise) *string {
	var best *Promise
	var bestID proposalIdentity
	for i := range promises {
		p := &promises[i]
		if p.MulticastIP == nil {
			continue
		}
		id := proposalIdentity{ProposalID: p.AcceptedProposalID, InstanceID: p.AcceptedInstanceID}
		if best == nil || id.newerThan(bestID) {
			best = p
			bestID = id
		}
	}
	if best == nil {
		return nil
	}
	return best.MulticastIP
}

// waitQuorumOrTimeout blocks until either round.signalQuorum fires (a full
// complement of promises/approvals, or a majority of rejections, already
// arrived) or the timeout elapses, matching "the preparation timer fires
// early if a full set of promises ... or a majority of rejections arrives".
func (g *Ganglion) waitQuorumOrTimeout(ctx context.Context, round *activeRound, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline.C:
		return nil
	case <-round.quorumCh:
		return nil
	}
}
