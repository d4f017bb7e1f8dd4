package relay

import (
	"sync"
	"time"
)

// State of a connection inside the relay.
type State int

const (
	// StateConnecting: transport handshake done, no room joined yet.
	StateConnecting State = iota
	// StateJoined: member of exactly one room.
	StateJoined
	// StateClosed: terminal.
	StateClosed
)

// Sink delivers one event to a peer. Implementations must not block on
// network I/O: queue the event and report failure if the queue is full or
// the transport is gone. A returned error marks a failed delivery to that
// peer only.
type Sink interface {
	Deliver(Event) error
}

// Conn is the relay's view of one live client socket. The registry is the
// only mutator of its room/state; transports just hand it to Join, Submit
// and Close.
type Conn struct {
	ID        string
	User      string // display label for presence notes, may be empty
	CreatedAt time.Time

	sink Sink

	mu    sync.Mutex
	state State
	room  string // set only while state == StateJoined
}

// NewConn wraps a transport sink into a relay connection in the
// Connecting state.
func NewConn(id, user string, sink Sink) *Conn {
	return &Conn{
		ID:        id,
		User:      user,
		CreatedAt: time.Now(),
		sink:      sink,
		state:     StateConnecting,
	}
}

// Room returns the room the connection currently belongs to. ok is false
// unless the connection is in the Joined state.
func (c *Conn) Room() (key string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.state == StateJoined
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
