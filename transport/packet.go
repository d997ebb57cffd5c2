// Package transport implements the datagram layer of the streaming transport.
//
// This package handles the stream packet format, endpoint resolution, UDP
// communication and a lossy in-memory network for simulation.
//
// Example:
//
//	remote, err := transport.ResolveEndpoint("127.0.0.1", 9000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	packet := &transport.Packet{
//	    Kind:     transport.KindData,
//	    Sequence: 42,
//	    Payload:  []byte{...},
//	}
//
//	err = tr.Send(packet, remote)
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/framestream/limits"
)

// Kind identifies the type of a stream packet.
type Kind byte

const (
	// KindData carries one slice of a frame.
	KindData Kind = iota + 1
	// KindPause asks the streamer to stop sending bursts.
	KindPause
	// KindResume asks the streamer to resume sending bursts.
	KindResume
)

// String returns a lowercase name for the kind, used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindPause:
		return "pause"
	case KindResume:
		return "resume"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// IsControl reports whether the kind is a feedback signal.
func (k Kind) IsControl() bool {
	return k == KindPause || k == KindResume
}

const (
	// FrameSize is the number of consecutive sequence numbers in one frame.
	FrameSize = 100

	// MaxDataSequence is the last sequence number of the last whole frame that
	// fits in 32 bits. Streamers never assign a data sequence above it.
	MaxDataSequence = (1<<32)/FrameSize*FrameSize - 1

	// LegacyPauseSequence and LegacyResumeSequence are the reserved sequence
	// values that once stood for PAUSE and RESUME. They are only honoured
	// when ParseOptions.LegacyControl is set.
	LegacyPauseSequence  uint32 = 0xFFFFFFFF
	LegacyResumeSequence uint32 = 0xFFFFFFFE
)

// FrameIndex returns the frame a sequence number belongs to.
func FrameIndex(seq uint32) uint32 {
	return seq / FrameSize
}

// SubSequence returns the position of a sequence number inside its frame.
func SubSequence(seq uint32) uint32 {
	return seq % FrameSize
}

var (
	// ErrPacketTooShort indicates a datagram shorter than the fixed header.
	ErrPacketTooShort = errors.New("packet too short")

	// ErrUnknownKind indicates a header kind byte this version does not know.
	ErrUnknownKind = errors.New("unknown packet kind")
)

// Packet represents a stream packet.
//
// Wire format (big-endian):
//
//	[kind (1 byte)][sequence (4 bytes)][timestamp ns (8 bytes)][payload]
type Packet struct {
	Kind      Kind
	Sequence  uint32
	Timestamp uint64
	Payload   []byte
}

// FrameIndex returns the frame the packet belongs to.
func (p *Packet) FrameIndex() uint32 {
	return FrameIndex(p.Sequence)
}

// SubSequence returns the packet's position inside its frame.
func (p *Packet) SubSequence() uint32 {
	return SubSequence(p.Sequence)
}

// Serialize converts a packet to a byte slice for transmission.
func (p *Packet) Serialize() ([]byte, error) {
	if p.Kind < KindData || p.Kind > KindResume {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, byte(p.Kind))
	}
	if err := limits.ValidatePayloadSize(len(p.Payload)); err != nil {
		return nil, err
	}

	result := make([]byte, limits.HeaderSize+len(p.Payload))
	result[0] = byte(p.Kind)
	binary.BigEndian.PutUint32(result[1:5], p.Sequence)
	binary.BigEndian.PutUint64(result[5:13], p.Timestamp)
	copy(result[limits.HeaderSize:], p.Payload)

	return result, nil
}

// ParseOptions adjusts how incoming datagrams are interpreted.
type ParseOptions struct {
	// LegacyControl maps data packets carrying LegacyPauseSequence or
	// LegacyResumeSequence to pause and resume signals.
	//
	// Only the sequence values are legacy. The datagram must still use the
	// kind-prefixed header above, so this does not decode a 12 byte
	// sequence+timestamp header without a kind byte. Nothing in this module
	// sends the legacy form.
	LegacyControl bool
}

// ParsePacket converts a byte slice to a Packet structure.
// It never panics on malformed input; every failure is reported as an error.
func ParsePacket(data []byte) (*Packet, error) {
	return ParsePacketWithOptions(data, ParseOptions{})
}

// ParsePacketWithOptions is ParsePacket with explicit decoding options.
func ParsePacketWithOptions(data []byte, opts ParseOptions) (*Packet, error) {
	if len(data) < limits.HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, header is %d", ErrPacketTooShort, len(data), limits.HeaderSize)
	}
	if err := limits.ValidateDatagram(data); err != nil {
		return nil, err
	}

	kind := Kind(data[0])
	if kind < KindData || kind > KindResume {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, data[0])
	}

	packet := &Packet{
		Kind:      kind,
		Sequence:  binary.BigEndian.Uint32(data[1:5]),
		Timestamp: binary.BigEndian.Uint64(data[5:13]),
	}
	if n := len(data) - limits.HeaderSize; n > 0 {
		packet.Payload = make([]byte, n)
		copy(packet.Payload, data[limits.HeaderSize:])
	}

	if opts.LegacyControl && packet.Kind == KindData {
		switch packet.Sequence {
		case LegacyPauseSequence:
			packet.Kind = KindPause
		case LegacyResumeSequence:
			packet.Kind = KindResume
		}
	}

	return packet, nil
}

// NewDataPacket creates a data packet.
func NewDataPacket(seq uint32, timestamp uint64, payload []byte) *Packet {
	return &Packet{
		Kind:      KindData,
		Sequence:  seq,
		Timestamp: timestamp,
		Payload:   payload,
	}
}

// NewControlPacket creates a header-only pause or resume packet.
func NewControlPacket(kind Kind, timestamp uint64) *Packet {
	return &Packet{
		Kind:      kind,
		Timestamp: timestamp,
	}
}
