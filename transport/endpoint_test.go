package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    uint16
		family  Family
		network string
		str     string
	}{
		{"ipv4 literal", "127.0.0.1", 9000, FamilyV4, "udp4", "127.0.0.1:9000"},
		{"ipv6 literal", "::1", 9001, FamilyV6, "udp6", "[::1]:9001"},
		{"ipv4 mapped", "::ffff:10.0.0.1", 9002, FamilyV4, "udp4", "10.0.0.1:9002"},
		{"empty host", "", 9003, FamilyV4, "udp4", "0.0.0.0:9003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ResolveEndpoint(tt.host, tt.port)
			require.NoError(t, err)
			assert.True(t, ep.IsValid())
			assert.Equal(t, tt.family, ep.Family)
			assert.Equal(t, tt.network, ep.Network())
			assert.Equal(t, tt.str, ep.String())
			assert.Equal(t, tt.port, ep.Port())
		})
	}
}

func TestEndpointFromAddr(t *testing.T) {
	udp := &net.UDPAddr{IP: net.ParseIP("192.168.1.2"), Port: 5000}
	ep, ok := EndpointFromAddr(udp)
	require.True(t, ok)
	assert.Equal(t, FamilyV4, ep.Family)
	assert.Equal(t, "192.168.1.2:5000", ep.String())

	back := ep.UDPAddr()
	assert.Equal(t, 5000, back.Port)
	assert.True(t, back.IP.Equal(udp.IP))

	_, ok = EndpointFromAddr(&net.UnixAddr{Name: "/tmp/sock", Net: "unix"})
	assert.False(t, ok)
}

func TestZeroEndpointInvalid(t *testing.T) {
	var ep Endpoint
	assert.False(t, ep.IsValid())
	assert.Equal(t, "unknown", Family(0).String())
	assert.Equal(t, "ipv4", FamilyV4.String())
	assert.Equal(t, "ipv6", FamilyV6.String())
}

func TestMustEndpointPanicsOnGarbage(t *testing.T) {
	assert.Panics(t, func() { MustEndpoint("not-an-endpoint") })
	assert.NotPanics(t, func() { MustEndpoint("10.0.0.1:1") })
}

func TestParseEndpoint(t *testing.T) {
	ep, err := ParseEndpoint("127.0.0.1:9000")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", ep.String())

	ep, err = ParseEndpoint("[::1]:9001")
	require.NoError(t, err)
	assert.Equal(t, FamilyV6, ep.Family)

	ep, err = ParseEndpoint(":9002")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9002", ep.String())

	for _, bad := range []string{"", "127.0.0.1", "127.0.0.1:port", "127.0.0.1:70000"} {
		_, err := ParseEndpoint(bad)
		assert.ErrorIs(t, err, ErrInvalidEndpoint, bad)
	}
}
