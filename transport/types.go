package transport

import (
	"net"
)

// PacketHandler is a function that processes incoming packets.
type PacketHandler func(packet *Packet, addr net.Addr) error

// MalformedHandler is called for datagrams that fail to decode.
type MalformedHandler func(data []byte, addr net.Addr, err error)

// Executor runs callbacks on the owning event loop.
// *scheduler.Loop satisfies it.
type Executor interface {
	Post(fn func())
}

// Transport defines the interface for datagram transports used by the streamer
// and the client. Handlers always run on the owning event loop, never
// concurrently with each other or with periodic tasks.
type Transport interface {
	// Send sends a packet to the specified endpoint.
	Send(packet *Packet, to Endpoint) error

	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the local address the transport is listening on.
	LocalAddr() net.Addr

	// RegisterHandler registers a handler for a specific packet kind.
	RegisterHandler(kind Kind, handler PacketHandler)

	// SetMalformedHandler registers the callback for undecodable datagrams.
	SetMalformedHandler(handler MalformedHandler)
}
