package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ksurdhar/draft-editor-sub002/internal/relay"
	"github.com/ksurdhar/draft-editor-sub002/pkg/auth"
	"github.com/ksurdhar/draft-editor-sub002/pkg/metrics"
)

// flushTimeout bounds the work done after a socket is already gone: the
// final snapshot write and the departure publish.
const flushTimeout = 2 * time.Second

// DraftSaver persists the latest snapshot of a draft. *store.Postgres
// implements it.
type DraftSaver interface {
	SaveDraft(ctx context.Context, id string, body []byte) error
}

// Server is the websocket boundary in front of the relay. It upgrades
// connections, checks the token, joins the connection to its document room,
// and shuttles frames between the socket and the registry. Cross-instance
// traffic rides the redis bus; bus and db may be nil for a single-instance,
// in-memory run.
type Server struct {
	log      *slog.Logger
	relay    *relay.Registry
	bus      *RedisBus
	db       DraftSaver
	jwt      *auth.JWT
	instance string
}

func NewServer(log *slog.Logger, reg *relay.Registry, bus *RedisBus, db DraftSaver, jwt *auth.JWT) *Server {
	return &Server{
		log:      log,
		relay:    reg,
		bus:      bus,
		db:       db,
		jwt:      jwt,
		instance: uuid.NewString(),
	}
}

// Run forwards bus traffic from other instances into local rooms.
func (s *Server) Run(ctx context.Context) {
	if s.bus == nil {
		<-ctx.Done()
		return
	}
	go s.bus.Subscribe(ctx, func(m BusMessage) {
		if m.Instance == s.instance {
			return // our own publish, already delivered locally
		}
		s.relay.Dispatch(relay.Event{
			Room:    m.Doc,
			Kind:    m.Kind,
			Payload: m.Payload,
			Origin:  m.Origin,
		})
	})
	<-ctx.Done()
}

// HandleWS serves GET /ws?doc=<id>&access_token=<jwt>. The document ID and
// token come as query parameters because browser websocket clients cannot
// set headers.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID := r.URL.Query().Get("doc")
	if docID == "" {
		http.Error(w, "doc required", http.StatusBadRequest)
		return
	}
	uid, err := s.jwt.Verify(r.URL.Query().Get("access_token"))
	if err != nil {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return
	}

	conn, err := Accept(w, r)
	if err != nil {
		s.log.Error("ws.accept", "err", err)
		return
	}

	wc := newWSConn(conn)
	rc := relay.NewConn(uuid.NewString(), uid, wc)

	metrics.ConnectionsOpen.Inc()
	defer metrics.ConnectionsOpen.Dec()

	joinEv, err := s.relay.Join(rc, docID)
	if err != nil {
		s.log.Warn("ws.join", "doc", docID, "user", uid, "err", err)
		wc.close()
		return
	}
	s.publish(ctx, joinEv)

	// Outbound writer + debounced snapshot saver; both stop when the
	// handler returns and ctx is cancelled.
	go wc.writeLoop(ctx)
	saves := make(chan []byte, 64)
	go s.saveLoop(ctx, docID, saves)

	s.readLoop(ctx, rc, wc, saves)

	// The request context dies with the socket, so the departure rides a
	// short background context to the other instances.
	if ev, ok := s.relay.Close(rc); ok {
		pubCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		s.publish(pubCtx, ev)
		cancel()
	}
	wc.close()
}

// publish puts a dispatched event on the bus for other instances; no-op
// without a bus or for an empty event.
func (s *Server) publish(ctx context.Context, ev relay.Event) {
	if s.bus == nil || ev.Kind == "" {
		return
	}
	msg := BusMessage{
		Instance: s.instance,
		Doc:      ev.Room,
		Origin:   ev.Origin,
		Kind:     ev.Kind,
		Payload:  ev.Payload,
	}
	if err := s.bus.Publish(ctx, msg); err != nil {
		s.log.Warn("ws.bus.publish", "doc", ev.Room, "kind", ev.Kind, "err", err)
	}
}

// readLoop decodes inbound envelopes and submits them to the relay. A
// rejected frame (unknown kind, not joined) goes back to the sender only;
// the connection stays up.
func (s *Server) readLoop(ctx context.Context, rc *relay.Conn, wc *wsConn, saves chan<- []byte) {
	for {
		data, ok := wc.read(ctx)
		if !ok {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			_ = wc.enqueue(errorFrame(relay.ErrBadKind))
			continue
		}

		ev, err := s.relay.Submit(rc, env.Kind, env.Payload)
		if err != nil {
			_ = wc.enqueue(errorFrame(err))
			continue
		}

		s.publish(ctx, ev)

		// Document updates double as snapshot candidates for the store.
		if ev.Kind == relay.KindDocUpdated {
			select {
			case saves <- ev.Payload:
			default: // drop when the saver is backed up, a newer one follows
			}
		}
	}
}

// saveLoop batches snapshots: at most one write per debounce window,
// always the latest payload seen.
func (s *Server) saveLoop(ctx context.Context, docID string, saves <-chan []byte) {
	if s.db == nil {
		return
	}

	const debounceDur = 250 * time.Millisecond
	timer := time.NewTimer(debounceDur)
	if !timer.Stop() {
		<-timer.C
	}
	var latest []byte

	for {
		select {
		case b := <-saves:
			latest = b
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounceDur)

		case <-timer.C:
			if latest != nil {
				if err := s.db.SaveDraft(ctx, docID, latest); err != nil {
					s.log.Warn("ws.save", "doc", docID, "err", err)
				}
				latest = nil
			}

		case <-ctx.Done():
			// Flush a snapshot still waiting out its debounce window, or
			// the final burst of edits before a disconnect is lost.
			if latest != nil {
				flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
				if err := s.db.SaveDraft(flushCtx, docID, latest); err != nil {
					s.log.Warn("ws.save", "doc", docID, "err", err)
				}
				cancel()
			}
			return
		}
	}
}
