// Package limits provides centralized size constants and validation functions
// for the stream wire protocol.
//
// # Size Hierarchy
//
//   - HeaderSize (13 bytes): kind, sequence number and timestamp.
//   - SafePayload: payload that keeps a data packet inside a 1500 byte MTU.
//   - MaxPayload: the largest payload that still fits in one UDP datagram.
//   - MaxDatagram (65507 bytes): the largest IPv4 UDP payload.
//
// # Validation Functions
//
//	if err := limits.ValidatePayloadSize(cfg.PacketSize); err != nil {
//	    // reject configuration
//	}
//
//	if err := limits.ValidateDatagram(buf); err != nil {
//	    // drop and count
//	}
//
//	if !limits.FitsMTU(cfg.PacketSize) {
//	    // datagrams will be fragmented
//	}
//
// Errors wrap ErrMessageTooLarge or are ErrMessageEmpty, so callers can use
// errors.Is to classify them.
package limits
