package relay

// Event kinds. Clients submit message and document-updated; joined and left
// are synthesized by the registry on membership changes.
const (
	KindMessage    = "message"
	KindDocUpdated = "document-updated"
	KindJoined     = "joined"
	KindLeft       = "left"
)

// Event is one unit of fan-out. The payload is opaque to the relay: no
// parsing, no diffing, no validation of document content.
type Event struct {
	Room    string
	Kind    string
	Payload []byte
	Origin  string // connection ID of the sender, excluded from delivery
}

// clientKind reports whether kind may be submitted by a client.
func clientKind(kind string) bool {
	return kind == KindMessage || kind == KindDocUpdated
}
