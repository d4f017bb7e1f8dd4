package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ksurdhar/draft-editor-sub002/pkg/metrics"
)

// Registry maps room keys (document IDs) to live rooms and fans events out
// between their members. Rooms appear on first join and disappear as soon
// as the last member leaves. Join, leave and dispatch for one room are
// serialized by that room's lock, so events keep their order per room while
// unrelated rooms proceed in parallel. The registry-level lock is held only
// for map lookups and insert/delete of room entries.
type Registry struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{log: log, rooms: make(map[string]*room)}
}

// Join puts c into the room for key, creating the room if needed, and
// notifies the other members. Joining the room c already belongs to is a
// no-op. Joining a different room leaves the old one first: a connection is
// a member of at most one room at a time. The returned event is the
// synthesized joined notification (zero Kind when nothing was emitted), so
// transports can republish it across instances.
func (reg *Registry) Join(c *Conn, key string) (Event, error) {
	c.mu.Lock()
	switch {
	case c.state == StateClosed:
		c.mu.Unlock()
		return Event{}, ErrConnClosed
	case c.state == StateJoined && c.room == key:
		c.mu.Unlock()
		return Event{}, nil
	case c.state == StateJoined:
		c.mu.Unlock()
		reg.Leave(c)
	default:
		c.mu.Unlock()
	}

	for {
		r := reg.resolve(key)
		r.mu.Lock()
		if r.closed {
			// Lost a race with the last member leaving; the entry is gone
			// from the map, get a fresh one.
			r.mu.Unlock()
			continue
		}
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			r.mu.Unlock()
			reg.dropIfEmpty(r)
			return Event{}, ErrConnClosed
		}
		c.state = StateJoined
		c.room = key
		c.mu.Unlock()
		r.members[c.ID] = c
		ev := Event{
			Room:    key,
			Kind:    KindJoined,
			Payload: presenceNote(c, "joined"),
			Origin:  c.ID,
		}
		reg.fanout(r, ev)
		n := len(r.members)
		r.mu.Unlock()
		reg.log.Debug("relay.join", "room", key, "conn", c.ID, "members", n)
		return ev, nil
	}
}

// Leave removes c from its room, notifies the remaining members, and drops
// the room entry when it empties. No-op if c is not in a room. Reports the
// synthesized left notification and whether a removal happened.
func (reg *Registry) Leave(c *Conn) (Event, bool) {
	c.mu.Lock()
	if c.state != StateJoined {
		c.mu.Unlock()
		return Event{}, false
	}
	key := c.room
	c.mu.Unlock()

	reg.mu.RLock()
	r := reg.rooms[key]
	reg.mu.RUnlock()
	if r == nil {
		return Event{}, false
	}

	r.mu.Lock()
	if _, ok := r.members[c.ID]; !ok {
		r.mu.Unlock()
		return Event{}, false
	}
	delete(r.members, c.ID)
	c.mu.Lock()
	c.state = StateConnecting
	c.room = ""
	c.mu.Unlock()
	ev := Event{
		Room:    key,
		Kind:    KindLeft,
		Payload: presenceNote(c, "left"),
		Origin:  c.ID,
	}
	reg.fanout(r, ev)
	empty := len(r.members) == 0
	if empty {
		r.closed = true
	}
	n := len(r.members)
	r.mu.Unlock()

	if empty {
		reg.remove(r)
	}
	reg.log.Debug("relay.leave", "room", key, "conn", c.ID, "members", n)
	return ev, true
}

// Close runs Leave unconditionally and marks c terminal, so no dangling
// membership survives a crashed or ungracefully closed transport. Safe to
// call more than once. Like Leave it reports the left notification, if one
// was emitted.
func (reg *Registry) Close(c *Conn) (Event, bool) {
	ev, ok := reg.Leave(c)
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	return ev, ok
}

// Submit validates an inbound client event and fans it out to the other
// members of c's room. The dispatched event is returned so transports can
// republish it across instances.
func (reg *Registry) Submit(c *Conn, kind string, payload []byte) (Event, error) {
	if !clientKind(kind) {
		return Event{}, ErrBadKind
	}
	key, ok := c.Room()
	if !ok {
		return Event{}, ErrNotJoined
	}
	ev := Event{Room: key, Kind: kind, Payload: payload, Origin: c.ID}
	reg.Dispatch(ev)
	return ev, nil
}

// Dispatch delivers ev to every current member of its room except the
// origin. A room nobody joined means nobody is listening; the event is
// dropped.
func (reg *Registry) Dispatch(ev Event) {
	reg.mu.RLock()
	r := reg.rooms[ev.Room]
	reg.mu.RUnlock()
	if r == nil {
		return
	}
	r.mu.Lock()
	reg.fanout(r, ev)
	r.mu.Unlock()
}

// MembersOf returns a snapshot of the room's current member connections,
// empty if the room does not exist.
func (reg *Registry) MembersOf(key string) []*Conn {
	reg.mu.RLock()
	r := reg.rooms[key]
	reg.mu.RUnlock()
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Stats returns the number of live rooms and joined connections.
func (reg *Registry) Stats() (rooms, conns int) {
	// Snapshot the room list first; taking a room lock while holding the
	// registry lock would invert Leave's lock order.
	reg.mu.RLock()
	snapshot := make([]*room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		snapshot = append(snapshot, r)
	}
	reg.mu.RUnlock()

	rooms = len(snapshot)
	for _, r := range snapshot {
		r.mu.Lock()
		conns += len(r.members)
		r.mu.Unlock()
	}
	return rooms, conns
}

// fanout delivers ev to every member but the origin. Callers hold r.mu.
// A failed delivery to one peer is logged and counted, never propagated:
// the rest of the room still gets the event.
func (reg *Registry) fanout(r *room, ev Event) {
	metrics.RelayEvents.WithLabelValues(ev.Kind).Inc()
	for id, m := range r.members {
		if id == ev.Origin {
			continue
		}
		if err := m.sink.Deliver(ev); err != nil {
			metrics.RelayDeliveryFailures.Inc()
			reg.log.Warn("relay.deliver", "room", r.key, "conn", id, "kind", ev.Kind, "err", err)
		}
	}
}

// resolve returns the room for key, creating the entry if absent.
func (reg *Registry) resolve(key string) *room {
	reg.mu.RLock()
	r := reg.rooms[key]
	reg.mu.RUnlock()
	if r != nil {
		return r
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r = reg.rooms[key]; r == nil {
		r = newRoom(key)
		reg.rooms[key] = r
		metrics.RelayRooms.Inc()
	}
	return r
}

// remove deletes a room already marked closed from the registry map.
func (reg *Registry) remove(r *room) {
	reg.mu.Lock()
	if reg.rooms[r.key] == r {
		delete(reg.rooms, r.key)
		metrics.RelayRooms.Dec()
	}
	reg.mu.Unlock()
}

// dropIfEmpty reclaims a room that was created for a join that then bailed
// out, so empty rooms never linger in the map.
func (reg *Registry) dropIfEmpty(r *room) {
	r.mu.Lock()
	if len(r.members) > 0 || r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	reg.remove(r)
}

// presenceNote builds the payload for synthesized joined/left events: a
// JSON string, opaque to the relay like any other payload.
func presenceNote(c *Conn, verb string) []byte {
	who := c.User
	if who == "" {
		who = c.ID
	}
	b, _ := json.Marshal(who + " " + verb)
	return b
}
