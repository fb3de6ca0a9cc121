package multicast

import (
	"net"
	"time"

	"plexus/core"
)

// defaultReservedAddresses is the count of leading CIDR addresses set aside
// for the six control channels (one each for Heartbeat, Preparation,
// Promise, Rejection, Proposal, Approval) plus headroom, per spec.md §3.
const defaultReservedAddresses = 32

// Config enumerates the options the multicast ganglion recognizes.
type Config struct {
	// BindInterface names the local interface to bind to; empty selects
	// the outbound-primary interface.
	BindInterface string
	// MulticastCIDR is the network addresses are leased from. Defaults to
	// 239.0.0.0/16.
	MulticastCIDR string
	// Port is the UDP port shared by all control and data channels.
	Port int
	// HeartbeatInterval is the nominal heartbeat period; actual intervals
	// are randomized within [interval/2, interval]. Defaults to 30s.
	HeartbeatInterval time.Duration
	// ProposalTimeout bounds a single prepare-or-propose step. Defaults to
	// 5s.
	ProposalTimeout time.Duration
	// ReservedAddresses is the count of leading CIDR addresses permanently
	// set aside for control channels. Defaults to 32.
	ReservedAddresses int

	// Filter applies relevant/ignored/allowed-codec restrictions at adapt
	// time.
	Filter core.CapabilityFilter
}

// withDefaults returns a copy of c with zero-valued fields replaced by
// spec.md §6's defaults.
func (c Config) withDefaults() Config {
	if c.MulticastCIDR == "" {
		c.MulticastCIDR = "239.0.0.0/16"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ProposalTimeout <= 0 {
		c.ProposalTimeout = 5 * time.Second
	}
	if c.ReservedAddresses <= 0 {
		c.ReservedAddresses = defaultReservedAddresses
	}
	return c
}

func (c Config) parseCIDR() (*net.IPNet, error) {
	_, ipnet, err := net.ParseCIDR(c.MulticastCIDR)
	if err != nil {
		return nil, err
	}
	return ipnet, nil
}

func (c Config) interfaceOrNil() (*net.Interface, error) {
	if c.BindInterface == "" {
		return nil, nil
	}
	return net.InterfaceByName(c.BindInterface)
}
