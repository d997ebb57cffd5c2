package transport

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// handlerRegistry holds the per-kind handlers shared by all transport
// implementations.
type handlerRegistry struct {
	mu        sync.RWMutex
	handlers  map[Kind]PacketHandler
	malformed MalformedHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		handlers: make(map[Kind]PacketHandler),
	}
}

func (r *handlerRegistry) register(kind Kind, handler PacketHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[kind] = handler
}

func (r *handlerRegistry) setMalformed(handler MalformedHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.malformed = handler
}

// dispatch finds and executes the handler for the packet's kind.
// It must be called on the owning event loop.
func (r *handlerRegistry) dispatch(packet *Packet, addr net.Addr) {
	r.mu.RLock()
	handler, exists := r.handlers[packet.Kind]
	r.mu.RUnlock()

	if !exists {
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"kind":     packet.Kind.String(),
			"from":     addrString(addr),
		}).Debug("No handler registered for packet kind")
		return
	}

	if err := handler(packet, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"kind":     packet.Kind.String(),
			"sequence": packet.Sequence,
			"error":    err.Error(),
		}).Warn("Packet handler failed")
	}
}

// reportMalformed passes an undecodable datagram to the malformed handler.
func (r *handlerRegistry) reportMalformed(data []byte, addr net.Addr, err error) {
	r.mu.RLock()
	handler := r.malformed
	r.mu.RUnlock()

	logrus.WithFields(logrus.Fields{
		"function": "reportMalformed",
		"size":     len(data),
		"from":     addrString(addr),
		"error":    err.Error(),
	}).Debug("Dropping malformed datagram")

	if handler != nil {
		handler(data, addr, err)
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
