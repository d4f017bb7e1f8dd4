package ws

import "encoding/json"

// KindError is outbound only: how the relay reports a rejected frame back
// to the client that sent it.
const KindError = "error"

// Envelope is the wire shape of every frame in both directions:
// {kind, payload}. Payload stays raw; the relay never interprets it.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// errorFrame wraps err for the offending client only.
func errorFrame(err error) Envelope {
	b, _ := json.Marshal(ErrorPayload{Error: err.Error()})
	return Envelope{Kind: KindError, Payload: b}
}
