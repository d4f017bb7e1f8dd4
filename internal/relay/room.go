package relay

import "sync"

// room serializes membership changes and fan-out for one key. Everything
// that touches members happens under mu, which is never held across
// network I/O: delivery goes through non-blocking sinks.
type room struct {
	key string

	mu      sync.Mutex
	members map[string]*Conn // conn ID -> conn
	closed  bool             // already removed from the registry map
}

func newRoom(key string) *room {
	return &room{key: key, members: make(map[string]*Conn)}
}
