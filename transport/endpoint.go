package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// Family is the address family of an endpoint, fixed when it is resolved.
type Family uint8

const (
	// FamilyV4 is IPv4.
	FamilyV4 Family = 4
	// FamilyV6 is IPv6.
	FamilyV6 Family = 6
)

// String returns "ipv4" or "ipv6".
func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "ipv4"
	case FamilyV6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Endpoint is an address/port pair whose family has been resolved once.
// Code that holds an Endpoint switches on Family instead of probing the
// address type again.
type Endpoint struct {
	Family   Family
	AddrPort netip.AddrPort
}

// NewEndpoint builds an endpoint from an address/port pair.
// IPv4-mapped IPv6 addresses are treated as IPv4.
func NewEndpoint(ap netip.AddrPort) Endpoint {
	addr := ap.Addr().Unmap()
	family := FamilyV6
	if addr.Is4() {
		family = FamilyV4
	}
	return Endpoint{
		Family:   family,
		AddrPort: netip.AddrPortFrom(addr, ap.Port()),
	}
}

// ResolveEndpoint resolves host and port into an Endpoint.
// An empty host means the unspecified IPv4 address, suitable for listening.
// Host names are looked up once; the first returned address wins.
func ResolveEndpoint(host string, port uint16) (Endpoint, error) {
	if host == "" {
		return NewEndpoint(netip.AddrPortFrom(netip.IPv4Unspecified(), port)), nil
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return NewEndpoint(netip.AddrPortFrom(addr, port)), nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(context.Background(), "ip", host)
	if err != nil {
		return Endpoint{}, &NetError{Op: "resolve", Addr: host, Err: err}
	}
	if len(addrs) == 0 {
		return Endpoint{}, &NetError{Op: "resolve", Addr: host, Err: fmt.Errorf("no addresses")}
	}
	return NewEndpoint(netip.AddrPortFrom(addrs[0], port)), nil
}

// ParseEndpoint resolves a "host:port" string. The host may be empty, a
// literal address or a name.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, &NetError{Op: "parse", Addr: s, Err: ErrInvalidEndpoint}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, &NetError{Op: "parse", Addr: s, Err: ErrInvalidEndpoint}
	}
	return ResolveEndpoint(host, uint16(port))
}

// MustEndpoint parses a literal "ip:port" string and panics on failure.
// It is intended for tests and static tables.
func MustEndpoint(s string) Endpoint {
	return NewEndpoint(netip.MustParseAddrPort(s))
}

// EndpointFromAddr converts a net.Addr produced by a UDP socket.
func EndpointFromAddr(addr net.Addr) (Endpoint, bool) {
	switch a := addr.(type) {
	case *net.UDPAddr:
		ap := a.AddrPort()
		if !ap.IsValid() {
			return Endpoint{}, false
		}
		return NewEndpoint(ap), true
	default:
		host, portStr, err := net.SplitHostPort(addr.String())
		if err != nil {
			return Endpoint{}, false
		}
		ip, err := netip.ParseAddr(host)
		if err != nil {
			return Endpoint{}, false
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return Endpoint{}, false
		}
		return NewEndpoint(netip.AddrPortFrom(ip, uint16(port))), true
	}
}

// IsValid reports whether the endpoint holds a usable address.
func (e Endpoint) IsValid() bool {
	return e.AddrPort.IsValid() && (e.Family == FamilyV4 || e.Family == FamilyV6)
}

// Network returns the socket network name for the endpoint's family.
func (e Endpoint) Network() string {
	if e.Family == FamilyV6 {
		return "udp6"
	}
	return "udp4"
}

// UDPAddr converts the endpoint to a *net.UDPAddr.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(e.AddrPort)
}

// Port returns the endpoint's port.
func (e Endpoint) Port() uint16 {
	return e.AddrPort.Port()
}

// String returns the endpoint in host:port form.
func (e Endpoint) String() string {
	return e.AddrPort.String()
}
