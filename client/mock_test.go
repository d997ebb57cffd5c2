package client

import (
	"net"
	"testing"

	"github.com/opd-ai/framestream/transport"
	"github.com/stretchr/testify/require"
)

type mockTransport struct {
	local     transport.Endpoint
	sent      []*transport.Packet
	handlers  map[transport.Kind]transport.PacketHandler
	malformed transport.MalformedHandler
	sendErr   error
	closed    bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		local:    transport.MustEndpoint("10.1.2.4:9"),
		handlers: make(map[transport.Kind]transport.PacketHandler),
	}
}

func (m *mockTransport) Send(p *transport.Packet, to transport.Endpoint) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, p)
	return nil
}

func (m *mockTransport) Close() error {
	m.closed = true
	return nil
}

func (m *mockTransport) LocalAddr() net.Addr { return m.local.UDPAddr() }

func (m *mockTransport) RegisterHandler(kind transport.Kind, h transport.PacketHandler) {
	m.handlers[kind] = h
}

func (m *mockTransport) SetMalformedHandler(h transport.MalformedHandler) {
	m.malformed = h
}

func (m *mockTransport) deliver(t *testing.T, p *transport.Packet) {
	t.Helper()
	h, ok := m.handlers[p.Kind]
	require.True(t, ok, "no handler for %s", p.Kind)
	require.NoError(t, h(p, transport.MustEndpoint("10.1.2.3:5000").UDPAddr()))
}

// controls returns the kinds of the control packets sent so far.
func (m *mockTransport) controls() []transport.Kind {
	var kinds []transport.Kind
	for _, p := range m.sent {
		if p.Kind.IsControl() {
			kinds = append(kinds, p.Kind)
		}
	}
	return kinds
}

// fillFrame inserts the first n sub-sequences of a frame.
func fillFrame(r *Reassembler, index uint32, n int) {
	for sub := 0; sub < n; sub++ {
		seq := index*transport.FrameSize + uint32(sub)
		r.Insert(transport.NewDataPacket(seq, 0, []byte{byte(sub)}), 0)
	}
}
