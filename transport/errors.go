package transport

import (
	"errors"
	"fmt"
)

// Common transport errors
var (
	// ErrTransportClosed indicates the transport has been closed
	ErrTransportClosed = errors.New("transport closed")

	// ErrAddressInUse indicates another transport is already bound to the endpoint
	ErrAddressInUse = errors.New("address already in use")

	// ErrFamilyMismatch indicates a send to an endpoint of the other address family
	ErrFamilyMismatch = errors.New("address family mismatch")

	// ErrInvalidEndpoint indicates an endpoint without a usable address
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// NetError represents a transport error with additional context
type NetError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *NetError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("stream %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *NetError) Unwrap() error {
	return e.Err
}
