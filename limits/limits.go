// Package limits provides centralized datagram and payload size limits for the
// streaming transport. This ensures consistent validation across the wire codec,
// the configuration layer and the streamer.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxDatagram is the largest UDP payload that fits in a single IPv4 datagram
	// (65535 - 20 byte IP header - 8 byte UDP header).
	MaxDatagram = 65507

	// HeaderSize is the fixed size of the stream packet header:
	// kind (1 byte) + sequence number (4 bytes) + timestamp (8 bytes).
	HeaderSize = 13

	// MaxPayload is the largest payload that fits behind the header in one datagram.
	MaxPayload = MaxDatagram - HeaderSize

	// SafePayload is the payload size that keeps a data packet under a typical
	// 1500 byte Ethernet MTU once IP, UDP and stream headers are added.
	SafePayload = 1500 - 20 - 8 - HeaderSize
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateDatagram validates a received or outgoing datagram against MaxDatagram.
// Returns an error with context if the datagram is empty or exceeds the limit.
func ValidateDatagram(datagram []byte) error {
	return ValidateMessageSize(datagram, MaxDatagram)
}

// FitsMTU reports whether a data packet with the given payload size fits in
// one 1500 byte Ethernet frame without IP fragmentation.
func FitsMTU(payloadSize int) bool {
	return payloadSize <= SafePayload
}

// ValidatePayloadSize validates a configured payload size.
// Zero is allowed: control packets and header-only data packets carry no payload.
func ValidatePayloadSize(size int) error {
	if size < 0 {
		return fmt.Errorf("payload size %d is negative", size)
	}
	if size > MaxPayload {
		return fmt.Errorf("%w: payload size %d exceeds limit %d", ErrMessageTooLarge, size, MaxPayload)
	}
	return nil
}
