package multicast

import (
	"encoding/binary"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"plexus/core"
)

// maxDatagram bounds a single UDP multicast read. Control and data payloads
// in this fabric are small (Paxos messages, application events); a message
// larger than this is a caller error, not a transport concern.
const maxDatagram = 65507

// UDPMulticastSynapse binds a publisher and a subscriber on the same
// multicast group address, realizing spec.md's "pub-sub over multicast"
// synapse shape over plain UDP. Because a UDP datagram has no built-in
// frame boundary the way a ZeroMQ PUB/SUB socket's two-frame message does,
// outbound messages are wrapped in a single length-prefixed envelope
// ([2-byte name length][name bytes][payload]); inbound reads parse that
// envelope back apart before handing the payload to the bytes-dendrite.
type UDPMulticastSynapse struct {
	neuron  core.Neuron
	address net.IP
	port    int
	iface   *net.Interface

	dendrite *core.BytesDendrite

	mu         sync.Mutex
	conn       *net.UDPConn
	started    bool
	closeOnce  sync.Once
	closed     chan struct{}
}

// NewUDPMulticastSynapse creates a synapse for neuron bound to address:port
// on the given interface (nil selects the default).
func NewUDPMulticastSynapse(neuron core.Neuron, address net.IP, port int, iface *net.Interface) *UDPMulticastSynapse {
	return &UDPMulticastSynapse{
		neuron:   neuron,
		address:  address,
		port:     port,
		iface:    iface,
		dendrite: core.NewBytesDendrite(neuron),
		closed:   make(chan struct{}),
	}
}

// Neuron returns the synapse's neuron.
func (s *UDPMulticastSynapse) Neuron() core.Neuron { return s.neuron }

// BytesDendrite exposes the underlying bytes-dendrite.
func (s *UDPMulticastSynapse) BytesDendrite() *core.BytesDendrite { return s.dendrite }

// Address returns the leased multicast group address this synapse is bound
// to.
func (s *UDPMulticastSynapse) Address() net.IP { return s.address }

func (s *UDPMulticastSynapse) groupAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: s.address, Port: s.port}
}

func (s *UDPMulticastSynapse) ensureConn() (*net.UDPConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := net.ListenMulticastUDP("udp4", s.iface, s.groupAddr())
	if err != nil {
		return nil, err
	}
	conn.SetReadBuffer(1 << 20)
	s.conn = conn
	return conn, nil
}

// StartReceiving launches the inbound read loop the first time it is
// called; subsequent calls are no-ops. This realizes "subscriber loop
// starts lazily on first reactant".
func (s *UDPMulticastSynapse) StartReceiving() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	conn, err := s.ensureConn()
	if err != nil {
		return err
	}
	go s.receiveLoop(conn)
	return nil
}

func (s *UDPMulticastSynapse) receiveLoop(conn *net.UDPConn) {
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-s.closed:
			return
		default:
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				log.Warnf("multicast: read error on %s: %v", s.neuron.Name(), err)
				continue
			}
		}
		name, payload, ok := decodeEnvelope(buf[:n])
		if !ok {
			log.Warnf("multicast: malformed envelope on %s", s.neuron.Name())
			continue
		}
		if name != s.neuron.Name() {
			continue
		}
		if err := s.dendrite.TransduceBytes(payload, ""); err != nil {
			log.Warnf("multicast: transduce failed on %s: %v", s.neuron.Name(), err)
		}
	}
}

// Transmit sends payload (already-encoded bytes) as the outbound frame for
// this synapse's channel. It never blocks on handler completion: the write
// is a single non-blocking UDP send.
func (s *UDPMulticastSynapse) Transmit(payload any, reactionID string) error {
	select {
	case <-s.closed:
		return core.ErrSynapseClosed
	default:
	}
	data, ok := payload.([]byte)
	if !ok {
		return core.ErrUnencodableNeuron
	}
	conn, err := s.ensureConn()
	if err != nil {
		return err
	}
	envelope := encodeEnvelope(s.neuron.Name(), data)
	_, err = conn.WriteToUDP(envelope, s.groupAddr())
	return err
}

// Transduce is invoked directly by the receive loop's decode path in
// practice; it is exposed so the synapse satisfies core.Synapse and so
// tests can drive delivery without a live socket.
func (s *UDPMulticastSynapse) Transduce(payload any, reactionID string) error {
	data, ok := payload.([]byte)
	if !ok {
		return core.ErrUnencodableNeuron
	}
	return s.dendrite.TransduceBytes(data, reactionID)
}

// Close cancels the receive loop and releases the socket. Idempotent.
func (s *UDPMulticastSynapse) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		if s.conn != nil {
			err = s.conn.Close()
		}
		s.mu.Unlock()
	})
	return err
}

func encodeEnvelope(name string, payload []byte) []byte {
	nameBytes := []byte(name)
	out := make([]byte, 2+len(nameBytes)+len(payload))
	binary.BigEndian.PutUint16(out[:2], uint16(len(nameBytes)))
	copy(out[2:], nameBytes)
	copy(out[2+len(nameBytes):], payload)
	return out
}

func decodeEnvelope(data []byte) (name string, payload []byte, ok bool) {
	if len(data) < 2 {
		return "", nil, false
	}
	nameLen := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+nameLen {
		return "", nil, false
	}
	return string(data[2 : 2+nameLen]), data[2+nameLen:], true
}
