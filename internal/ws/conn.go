package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/ksurdhar/draft-editor-sub002/internal/relay"
)

const (
	outBuffer  = 256
	pingEvery  = 20 * time.Second
	writeWait  = 5 * time.Second
	maxMsgSize = 1 << 20
)

var errSlowConsumer = errors.New("ws: outbound buffer full")

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// wsConn owns one client socket. It is the relay.Sink for its connection:
// Deliver queues frames into a bounded buffer that writeLoop drains, so a
// slow peer never stalls the room it shares with others.
type wsConn struct {
	ws  *websocket.Conn
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(c *websocket.Conn) *wsConn {
	c.SetReadLimit(maxMsgSize)
	return &wsConn{
		ws:     c,
		out:    make(chan []byte, outBuffer),
		closed: make(chan struct{}),
	}
}

// Deliver queues an event frame without blocking. A peer whose buffer is
// full loses the frame rather than holding everyone else up.
func (c *wsConn) Deliver(ev relay.Event) error {
	return c.enqueue(Envelope{Kind: ev.Kind, Payload: json.RawMessage(ev.Payload)})
}

func (c *wsConn) enqueue(env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	default:
		return errSlowConsumer
	}
}

// read blocks until the next text/binary frame. Returns false once the
// connection is gone.
func (c *wsConn) read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, true
		}
	}
}

// writeLoop drains the outbound buffer in order and pings periodically.
// Exits when ctx is cancelled or the connection closes.
func (c *wsConn) writeLoop(ctx context.Context) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.ws.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// close shuts the socket down once; later Deliver calls fail fast.
func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
	})
}
