// Package transport provides the datagram layer for the streaming transport:
// the packet wire format, resolved endpoints, a UDP transport and a simulated
// lossy network.
//
// # Wire Format
//
// Every datagram starts with a fixed 13 byte big-endian header followed by
// opaque payload bytes:
//
//	[kind (1 byte)][sequence (4 bytes)][timestamp ns (8 bytes)][payload]
//
// The kind byte distinguishes data from the PAUSE and RESUME feedback
// signals, so the whole 32-bit sequence space remains available to data.
// Data packets whose sequence is one of the reserved values 0xFFFFFFFF and
// 0xFFFFFFFE can be read as PAUSE and RESUME with ParseOptions.LegacyControl.
// The header layout is unchanged in that mode; a sender without the kind byte
// is not understood.
//
// Decoding fails closed. Short datagrams, unknown kinds and oversized
// datagrams produce errors and are routed to the malformed handler instead of
// the packet handlers.
//
// # Endpoints
//
// Endpoint is resolved once into an IPv4 or IPv6 variant:
//
//	ep, err := transport.ResolveEndpoint("::1", 9000)
//	// ep.Family == transport.FamilyV6, ep.Network() == "udp6"
//
// # Transports
//
// All implementations satisfy the Transport interface and invoke handlers on
// the owning event loop:
//
//	loop := scheduler.NewLoop(nil)
//	udp, err := transport.NewUDPTransport(listen, loop)
//
//	vloop := scheduler.NewVirtualLoop()
//	network, _ := transport.NewSimNetwork(vloop, transport.SimConfig{LossRate: 0.01})
//	sim, err := network.Bind(listen)
//
// The simulated network can drop, duplicate, delay and reorder datagrams,
// seeded for reproducibility.
package transport
