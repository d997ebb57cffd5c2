package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/framestream/limits"
	"github.com/sirupsen/logrus"
)

// packetReadTimeout bounds each blocking read so the read loop notices
// cancellation promptly.
const packetReadTimeout = 100 * time.Millisecond

// UDPTransport implements Transport over a UDP socket.
//
// A reader goroutine decodes datagrams and posts the handler call onto the
// owning event loop through the Executor, so handlers never run concurrently
// with the loop's periodic tasks.
type UDPTransport struct {
	conn     *net.UDPConn
	local    Endpoint
	exec     Executor
	registry *handlerRegistry
	options  ParseOptions

	mu     sync.RWMutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewUDPTransport binds a UDP socket on listen and starts reading from it.
// A bind failure is returned as a *NetError with Op "bind".
func NewUDPTransport(listen Endpoint, exec Executor) (*UDPTransport, error) {
	return NewUDPTransportWithOptions(listen, exec, ParseOptions{})
}

// NewUDPTransportWithOptions is NewUDPTransport with explicit decoding options.
func NewUDPTransportWithOptions(listen Endpoint, exec Executor, opts ParseOptions) (*UDPTransport, error) {
	if !listen.IsValid() {
		return nil, &NetError{Op: "bind", Addr: listen.String(), Err: ErrInvalidEndpoint}
	}
	if exec == nil {
		return nil, &NetError{Op: "bind", Addr: listen.String(), Err: errors.New("executor cannot be nil")}
	}

	conn, err := net.ListenUDP(listen.Network(), listen.UDPAddr())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewUDPTransport",
			"listen":   listen.String(),
			"error":    err.Error(),
		}).Error("Failed to bind UDP socket")
		return nil, &NetError{Op: "bind", Addr: listen.String(), Err: err}
	}

	local := listen
	if ep, ok := EndpointFromAddr(conn.LocalAddr()); ok {
		local = Endpoint{Family: listen.Family, AddrPort: ep.AddrPort}
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &UDPTransport{
		conn:     conn,
		local:    local,
		exec:     exec,
		registry: newHandlerRegistry(),
		options:  opts,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go t.processPackets()

	logrus.WithFields(logrus.Fields{
		"function": "NewUDPTransport",
		"local":    conn.LocalAddr().String(),
		"family":   listen.Family.String(),
	}).Info("UDP transport bound")

	return t, nil
}

// RegisterHandler registers a handler for a specific packet kind.
func (t *UDPTransport) RegisterHandler(kind Kind, handler PacketHandler) {
	t.registry.register(kind, handler)
}

// SetMalformedHandler registers the callback for undecodable datagrams.
func (t *UDPTransport) SetMalformedHandler(handler MalformedHandler) {
	t.registry.setMalformed(handler)
}

// Send sends a packet to the specified endpoint.
func (t *UDPTransport) Send(packet *Packet, to Endpoint) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return &NetError{Op: "send", Addr: to.String(), Err: ErrTransportClosed}
	}
	if to.Family != t.local.Family {
		return &NetError{Op: "send", Addr: to.String(), Err: ErrFamilyMismatch}
	}

	data, err := packet.Serialize()
	if err != nil {
		return err
	}

	if _, err := t.conn.WriteToUDPAddrPort(data, to.AddrPort); err != nil {
		return &NetError{Op: "send", Addr: to.String(), Err: err}
	}
	return nil
}

// Close shuts down the transport and waits for the reader to exit.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	err := t.conn.Close()
	<-t.done

	logrus.WithFields(logrus.Fields{
		"function": "UDPTransport.Close",
		"local":    t.local.String(),
	}).Info("UDP transport closed")

	return err
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// LocalEndpoint returns the bound endpoint, including an assigned port.
func (t *UDPTransport) LocalEndpoint() Endpoint {
	return t.local
}

// processPackets handles incoming datagrams until the transport is closed.
func (t *UDPTransport) processPackets() {
	defer close(t.done)
	buffer := make([]byte, limits.MaxDatagram+1)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			if !t.processIncomingPacket(buffer) {
				return
			}
		}
	}
}

// processIncomingPacket reads and hands off a single datagram.
// Returns false if the reader should terminate.
func (t *UDPTransport) processIncomingPacket(buffer []byte) bool {
	_ = t.conn.SetReadDeadline(time.Now().Add(packetReadTimeout))

	n, addr, err := t.conn.ReadFromUDP(buffer)
	if err != nil {
		return t.handleReadError(err)
	}

	data := make([]byte, n)
	copy(data, buffer[:n])

	packet, err := ParsePacketWithOptions(data, t.options)
	if err != nil {
		t.exec.Post(func() { t.registry.reportMalformed(data, addr, err) })
		return true
	}

	t.exec.Post(func() { t.registry.dispatch(packet, addr) })
	return true
}

// handleReadError processes read errors and determines if reading should continue.
func (t *UDPTransport) handleReadError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed || errors.Is(err, net.ErrClosed) {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"function": "UDPTransport.handleReadError",
		"error":    err.Error(),
	}).Debug("Error reading datagram")
	return true
}
