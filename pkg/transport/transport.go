// Package transport holds what the card backends share: the failure classes a
// backend reports so that callers can tell a dead device from a slow one
// without knowing which backend is in use.
package transport

import "errors"

var (
	// ErrTimeout is returned when the device did not answer within the retry budget.
	ErrTimeout = errors.New("transport: timeout")

	// ErrUnavailable is returned when the device or the card is absent or cannot be opened.
	ErrUnavailable = errors.New("transport: device unavailable")

	// ErrMalformedReply is returned when the device answered with bytes that cannot be framed.
	ErrMalformedReply = errors.New("transport: malformed reply")

	// ErrDeviceError is returned when the device explicitly rejected the command.
	ErrDeviceError = errors.New("transport: device reported an error")

	// ErrClosed is returned by operations on a transport that has been closed.
	ErrClosed = errors.New("transport: closed")
)
