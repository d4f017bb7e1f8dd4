package relay

import "errors"

var (
	// ErrBadKind rejects an inbound event kind the relay does not recognize.
	ErrBadKind = errors.New("relay: unrecognized event kind")

	// ErrNotJoined rejects an event from a connection that has not joined a
	// room yet (or already left it).
	ErrNotJoined = errors.New("relay: connection has not joined a room")

	// ErrConnClosed rejects operations on a connection that already reached
	// its terminal state.
	ErrConnClosed = errors.New("relay: connection closed")
)
