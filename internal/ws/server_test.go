package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/ksurdhar/draft-editor-sub002/internal/relay"
	"github.com/ksurdhar/draft-editor-sub002/pkg/auth"
)

// Single-instance setup: no redis bus, no postgres.
func newTestServer(t *testing.T) (*httptest.Server, *auth.JWT) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	j := auth.New("test-secret")
	s := NewServer(log, relay.NewRegistry(log), nil, nil, j)
	ts := httptest.NewServer(http.HandlerFunc(s.HandleWS))
	t.Cleanup(ts.Close)
	return ts, j
}

func dial(ctx context.Context, t *testing.T, ts *httptest.Server, j *auth.JWT, user, doc string) *websocket.Conn {
	t.Helper()
	tok, err := j.Sign(user, time.Minute)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?doc=" + doc + "&access_token=" + tok
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return c
}

func readEnvelope(ctx context.Context, t *testing.T, c *websocket.Conn) Envelope {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func send(ctx context.Context, t *testing.T, c *websocket.Conn, env Envelope) {
	t.Helper()
	b, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, b))
}

func TestRelayBetweenPeers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ts, j := newTestServer(t)

	alice := dial(ctx, t, ts, j, "alice", "doc-42")
	defer alice.Close(websocket.StatusNormalClosure, "")
	bob := dial(ctx, t, ts, j, "bob", "doc-42")

	// Alice hears bob arrive.
	env := readEnvelope(ctx, t, alice)
	assert.Equal(t, relay.KindJoined, env.Kind)
	assert.JSONEq(t, `"bob joined"`, string(env.Payload))

	// Bob's delta reaches alice verbatim.
	send(ctx, t, bob, Envelope{Kind: relay.KindDocUpdated, Payload: json.RawMessage(`{"delta":1}`)})
	env = readEnvelope(ctx, t, alice)
	assert.Equal(t, relay.KindDocUpdated, env.Kind)
	assert.JSONEq(t, `{"delta":1}`, string(env.Payload))

	// No echo back to bob: the next thing bob could read is nothing.
	shortCtx, shortCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	_, _, err := bob.Read(shortCtx)
	shortCancel()
	assert.Error(t, err, "bob must not receive his own event")

	// Bob leaving tells alice.
	require.NoError(t, bob.Close(websocket.StatusNormalClosure, "done"))
	env = readEnvelope(ctx, t, alice)
	assert.Equal(t, relay.KindLeft, env.Kind)
	assert.JSONEq(t, `"bob left"`, string(env.Payload))
}

func TestUnknownKindReportedToSenderOnly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ts, j := newTestServer(t)

	alice := dial(ctx, t, ts, j, "alice", "doc-7")
	defer alice.Close(websocket.StatusNormalClosure, "")
	bob := dial(ctx, t, ts, j, "bob", "doc-7")
	defer bob.Close(websocket.StatusNormalClosure, "")

	// Drain bob's arrival.
	env := readEnvelope(ctx, t, alice)
	require.Equal(t, relay.KindJoined, env.Kind)

	send(ctx, t, bob, Envelope{Kind: "compact", Payload: json.RawMessage(`{}`)})
	env = readEnvelope(ctx, t, bob)
	assert.Equal(t, KindError, env.Kind)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Contains(t, p.Error, "unrecognized")

	// The connection survives a rejected frame.
	send(ctx, t, bob, Envelope{Kind: relay.KindMessage, Payload: json.RawMessage(`"still on"`)})
	env = readEnvelope(ctx, t, alice)
	assert.Equal(t, relay.KindMessage, env.Kind)
}

func TestJoinHappensAtConnectTime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ts, j := newTestServer(t)

	alice := dial(ctx, t, ts, j, "alice", "doc-9")
	defer alice.Close(websocket.StatusNormalClosure, "")
	bob := dial(ctx, t, ts, j, "bob", "doc-9")
	defer bob.Close(websocket.StatusNormalClosure, "")

	// Bob is in the room the moment the handshake completes; no frame was
	// sent yet and alice already hears the arrival.
	env := readEnvelope(ctx, t, alice)
	assert.Equal(t, relay.KindJoined, env.Kind)
	assert.JSONEq(t, `"bob joined"`, string(env.Payload))

	// There is no join wire kind; a client sending one gets the same
	// rejection as any other unknown kind.
	send(ctx, t, bob, Envelope{Kind: "join", Payload: json.RawMessage(`{"doc":"doc-9"}`)})
	env = readEnvelope(ctx, t, bob)
	assert.Equal(t, KindError, env.Kind)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Contains(t, p.Error, "unrecognized")

	// And the rejection cost bob nothing: he is still a room member.
	send(ctx, t, bob, Envelope{Kind: relay.KindMessage, Payload: json.RawMessage(`"hello"`)})
	env = readEnvelope(ctx, t, alice)
	assert.Equal(t, relay.KindMessage, env.Kind)
}

func TestHandshakeRejections(t *testing.T) {
	ts, j := newTestServer(t)

	// Missing doc parameter.
	tok, err := j.Sign("alice", time.Minute)
	require.NoError(t, err)
	resp, err := http.Get(ts.URL + "/?access_token=" + tok)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Bad token.
	resp, err = http.Get(ts.URL + "/?doc=doc-1&access_token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

type memSaver struct {
	mu    sync.Mutex
	saves [][]byte
}

func (m *memSaver) SaveDraft(_ context.Context, _ string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, append([]byte(nil), body...))
	return nil
}

func (m *memSaver) all() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.saves))
	copy(out, m.saves)
	return out
}

func newSaverServer(saver DraftSaver) *Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(log, relay.NewRegistry(log), nil, saver, auth.New("test-secret"))
}

func TestSaveLoopFlushesPendingSnapshotOnDisconnect(t *testing.T) {
	saver := &memSaver{}
	s := newSaverServer(saver)

	ctx, cancel := context.WithCancel(context.Background())
	saves := make(chan []byte, 1)
	done := make(chan struct{})
	go func() {
		s.saveLoop(ctx, "doc-1", saves)
		close(done)
	}()

	saves <- []byte(`{"rev":3}`)
	// Cancel inside the debounce window: the snapshot has not been written
	// yet and must not be lost.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("saveLoop did not exit")
	}

	got := saver.all()
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"rev":3}`, string(got[0]))
}

func TestSaveLoopCoalescesBursts(t *testing.T) {
	saver := &memSaver{}
	s := newSaverServer(saver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	saves := make(chan []byte, 4)
	go s.saveLoop(ctx, "doc-1", saves)

	saves <- []byte(`{"rev":1}`)
	saves <- []byte(`{"rev":2}`)

	require.Eventually(t, func() bool {
		return len(saver.all()) > 0
	}, 3*time.Second, 10*time.Millisecond)

	got := saver.all()
	require.Len(t, got, 1, "one write per debounce window")
	assert.JSONEq(t, `{"rev":2}`, string(got[0]))
}
