package multicast

import (
	"encoding/binary"
	"net"
	"sync"
)

// IPLeaseManager is a reservation map over a multicast CIDR. The first
// reserved addresses are permanently leased to internal control channels at
// construction and are never returned by Get, matching the fixed bindings
// for Heartbeat/Preparation/Promise/Rejection/Proposal/Approval.
type IPLeaseManager struct {
	mu       sync.Mutex
	base     uint32 // network address as a uint32, host order
	total    uint32 // number of addresses in the CIDR
	reserved uint32 // count of leading addresses permanently reserved
	leased   map[uint32]bool
	cursor   uint32
}

// NewIPLeaseManager creates a manager over cidr, permanently reserving the
// first `reserved` addresses for control channels.
func NewIPLeaseManager(cidr *net.IPNet, reserved int) (*IPLeaseManager, error) {
	ip4 := cidr.IP.To4()
	if ip4 == nil {
		return nil, ErrIPAddressNotMulticast
	}
	if !ip4.IsMulticast() {
		return nil, ErrIPAddressNotMulticast
	}
	ones, bits := cidr.Mask.Size()
	total := uint32(1) << uint(bits-ones)
	base := binary.BigEndian.Uint32(ip4)

	m := &IPLeaseManager{
		base:     base,
		total:    total,
		reserved: uint32(reserved),
		leased:   make(map[uint32]bool, reserved),
		cursor:   uint32(reserved),
	}
	for i := uint32(0); i < m.reserved && i < total; i++ {
		m.leased[i] = true
	}
	return m, nil
}

func (m *IPLeaseManager) offsetOf(ip net.IP) (uint32, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, false
	}
	v := binary.BigEndian.Uint32(ip4)
	if v < m.base || v >= m.base+m.total {
		return 0, false
	}
	return v - m.base, true
}

func (m *IPLeaseManager) ipAt(offset uint32) net.IP {
	v := m.base + offset
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}

// ReservedAddress returns the control-channel address at the given offset
// (0-indexed) within the permanently reserved range.
func (m *IPLeaseManager) ReservedAddress(offset int) net.IP {
	return m.ipAt(uint32(offset))
}

// Lease marks ip as leased. It fails with ErrIPLeaseExists if already
// leased and ErrIPNotFound if ip falls outside the managed CIDR.
func (m *IPLeaseManager) Lease(ip net.IP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	offset, ok := m.offsetOf(ip)
	if !ok {
		return ErrIPNotFound
	}
	if m.leased[offset] {
		return ErrIPLeaseExists
	}
	m.leased[offset] = true
	return nil
}

// Release returns ip to the available pool. It fails with ErrIPNotLeased if
// ip is not currently leased, outside the CIDR, or within the permanently
// reserved range.
func (m *IPLeaseManager) Release(ip net.IP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	offset, ok := m.offsetOf(ip)
	if !ok || offset < m.reserved {
		return ErrIPNotLeased
	}
	if !m.leased[offset] {
		return ErrIPNotLeased
	}
	delete(m.leased, offset)
	return nil
}

// Get pops any available address (deterministic choice is not required) and
// leases it atomically. It fails with ErrIPsExhausted if none remain.
func (m *IPLeaseManager) Get() (net.IP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	span := m.total - m.reserved
	for i := uint32(0); i < span; i++ {
		offset := m.reserved + (m.cursor-m.reserved+i)%span
		if !m.leased[offset] {
			m.leased[offset] = true
			m.cursor = offset + 1
			return m.ipAt(offset), nil
		}
	}
	return nil, ErrIPsExhausted
}
