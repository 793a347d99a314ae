package channel

import "errors"

var (
	// ErrNotConnected is returned by Send when no connection is open.
	ErrNotConnected = errors.New("channel not connected")
	// ErrSendBufferFull is returned by Send when the write pump is saturated.
	ErrSendBufferFull = errors.New("channel send buffer full")
)
