package transport

import (
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/opd-ai/framestream/scheduler"
	"github.com/sirupsen/logrus"
)

// firstEphemeralPort is where the simulated network starts assigning ports
// for endpoints bound with port 0.
const firstEphemeralPort = 49152

// SimConfig describes the impairments of a simulated network.
type SimConfig struct {
	// LossRate is the probability in [0,1] that a datagram is dropped.
	LossRate float64
	// DuplicateRate is the probability in [0,1] that a delivered datagram
	// arrives twice.
	DuplicateRate float64
	// MinDelay and MaxDelay bound the one-way delay. Each copy draws its own
	// delay uniformly from the range, so a wide range reorders datagrams.
	MinDelay time.Duration
	MaxDelay time.Duration
	// Seed makes loss, duplication and delay draws reproducible.
	Seed int64
	// Options controls datagram decoding at the receivers.
	Options ParseOptions
}

// Validate checks that rates and delays are in range.
func (c SimConfig) Validate() error {
	if c.LossRate < 0 || c.LossRate > 1 {
		return fmt.Errorf("loss rate %v out of range [0,1]", c.LossRate)
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return fmt.Errorf("duplicate rate %v out of range [0,1]", c.DuplicateRate)
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("invalid delay range [%v, %v]", c.MinDelay, c.MaxDelay)
	}
	return nil
}

// SimStats counts what the simulated network did with each datagram.
type SimStats struct {
	Sent       uint64
	Dropped    uint64
	Duplicated uint64
	Delivered  uint64
	Unroutable uint64
}

// SimNetwork is an in-memory datagram network driven by a virtual event loop.
// Deliveries are scheduled on the loop, so they interleave with periodic tasks
// exactly as socket arrivals would, but reproducibly.
type SimNetwork struct {
	loop *scheduler.Loop
	cfg  SimConfig
	rng  *rand.Rand

	mu       sync.Mutex
	nodes    map[netip.AddrPort]*SimTransport
	nextPort uint16
	stats    SimStats
}

// NewSimNetwork creates a simulated network on the given loop.
func NewSimNetwork(loop *scheduler.Loop, cfg SimConfig) (*SimNetwork, error) {
	if loop == nil {
		return nil, fmt.Errorf("loop cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewSimNetwork",
		"loss_rate":      cfg.LossRate,
		"duplicate_rate": cfg.DuplicateRate,
		"min_delay":      cfg.MinDelay,
		"max_delay":      cfg.MaxDelay,
		"seed":           cfg.Seed,
	}).Info("Creating simulated network")

	return &SimNetwork{
		loop:     loop,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		nodes:    make(map[netip.AddrPort]*SimTransport),
		nextPort: firstEphemeralPort,
	}, nil
}

// Bind attaches a transport to the network at ep. Port 0 picks a free port.
// Binding an endpoint twice fails with ErrAddressInUse.
func (n *SimNetwork) Bind(ep Endpoint) (*SimTransport, error) {
	if !ep.IsValid() {
		return nil, &NetError{Op: "bind", Addr: ep.String(), Err: ErrInvalidEndpoint}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if ep.Port() == 0 {
		for {
			candidate := netip.AddrPortFrom(ep.AddrPort.Addr(), n.nextPort)
			n.nextPort++
			if _, taken := n.nodes[candidate]; !taken {
				ep = Endpoint{Family: ep.Family, AddrPort: candidate}
				break
			}
		}
	}

	if _, taken := n.nodes[ep.AddrPort]; taken {
		return nil, &NetError{Op: "bind", Addr: ep.String(), Err: ErrAddressInUse}
	}

	t := &SimTransport{
		network:  n,
		local:    ep,
		registry: newHandlerRegistry(),
	}
	n.nodes[ep.AddrPort] = t

	logrus.WithFields(logrus.Fields{
		"function": "SimNetwork.Bind",
		"local":    ep.String(),
	}).Debug("Simulated transport bound")

	return t, nil
}

// Stats returns a snapshot of the network counters.
func (n *SimNetwork) Stats() SimStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// lookup finds the transport bound at ep, falling back to a wildcard bind on
// the same port and family.
func (n *SimNetwork) lookup(ep Endpoint) *SimTransport {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t, ok := n.nodes[ep.AddrPort]; ok {
		return t
	}
	wildcard := netip.IPv4Unspecified()
	if ep.Family == FamilyV6 {
		wildcard = netip.IPv6Unspecified()
	}
	return n.nodes[netip.AddrPortFrom(wildcard, ep.Port())]
}

func (n *SimNetwork) unbind(ep Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.nodes[ep.AddrPort] != nil {
		delete(n.nodes, ep.AddrPort)
	}
}

// transmit applies loss, duplication and delay, then schedules delivery.
func (n *SimNetwork) transmit(from, to Endpoint, data []byte) {
	n.mu.Lock()
	n.stats.Sent++
	if n.rng.Float64() < n.cfg.LossRate {
		n.stats.Dropped++
		n.mu.Unlock()
		return
	}
	copies := 1
	if n.rng.Float64() < n.cfg.DuplicateRate {
		copies = 2
		n.stats.Duplicated++
	}
	delays := make([]time.Duration, copies)
	for i := range delays {
		delays[i] = n.cfg.MinDelay
		if spread := n.cfg.MaxDelay - n.cfg.MinDelay; spread > 0 {
			delays[i] += time.Duration(n.rng.Int63n(int64(spread) + 1))
		}
	}
	n.mu.Unlock()

	for _, delay := range delays {
		n.loop.Schedule(delay, func() { n.deliver(from, to, data) })
	}
}

// deliver hands a datagram to the receiving transport. It runs on the loop.
func (n *SimNetwork) deliver(from, to Endpoint, data []byte) {
	dst := n.lookup(to)
	if dst == nil || dst.isClosed() {
		n.mu.Lock()
		n.stats.Unroutable++
		n.mu.Unlock()
		return
	}

	n.mu.Lock()
	n.stats.Delivered++
	opts := n.cfg.Options
	n.mu.Unlock()

	addr := from.UDPAddr()
	packet, err := ParsePacketWithOptions(data, opts)
	if err != nil {
		dst.registry.reportMalformed(data, addr, err)
		return
	}
	dst.registry.dispatch(packet, addr)
}

// SimTransport is a Transport attached to a SimNetwork.
type SimTransport struct {
	network  *SimNetwork
	local    Endpoint
	registry *handlerRegistry

	mu     sync.RWMutex
	closed bool
}

// Send serializes the packet and hands it to the simulated network.
func (t *SimTransport) Send(packet *Packet, to Endpoint) error {
	data, err := packet.Serialize()
	if err != nil {
		return err
	}
	return t.SendRaw(data, to)
}

// SendRaw injects an arbitrary datagram, bypassing serialization.
// Tests use it to deliver truncated or corrupt datagrams.
func (t *SimTransport) SendRaw(data []byte, to Endpoint) error {
	if t.isClosed() {
		return &NetError{Op: "send", Addr: to.String(), Err: ErrTransportClosed}
	}
	if to.Family != t.local.Family {
		return &NetError{Op: "send", Addr: to.String(), Err: ErrFamilyMismatch}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	t.network.transmit(t.local, to, buf)
	return nil
}

// Close detaches the transport from the network. Datagrams in flight to it
// are counted as unroutable.
func (t *SimTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.network.unbind(t.local)
	return nil
}

// LocalAddr returns the simulated local address.
func (t *SimTransport) LocalAddr() net.Addr {
	return t.local.UDPAddr()
}

// LocalEndpoint returns the bound endpoint.
func (t *SimTransport) LocalEndpoint() Endpoint {
	return t.local
}

// RegisterHandler registers a handler for a specific packet kind.
func (t *SimTransport) RegisterHandler(kind Kind, handler PacketHandler) {
	t.registry.register(kind, handler)
}

// SetMalformedHandler registers the callback for undecodable datagrams.
func (t *SimTransport) SetMalformedHandler(handler MalformedHandler) {
	t.registry.setMalformed(handler)
}

func (t *SimTransport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
