package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/snapbooth/server/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := &testServer{conns: make(chan *websocket.Conn, 4)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func TestConnectAndSend(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.wsURL(), slog.Default())
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())

	// second connect is a no-op
	require.NoError(t, c.Connect(context.Background()))

	serverConn := ts.accept(t)
	require.NoError(t, c.Send(protocol.StartCapture{}))

	_, data, err := serverConn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeStartCapture, msg.MessageType())
}

func TestSendWhileDisconnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", slog.Default())
	err := c.Send(protocol.StartCapture{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestHandlerRegisteredBeforeConnect(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.wsURL(), slog.Default())
	defer c.Close()

	got := make(chan protocol.Message, 1)
	c.On(protocol.TypeCaptureNow, func(msg protocol.Message) {
		got <- msg
	})

	require.NoError(t, c.Connect(context.Background()))
	serverConn := ts.accept(t)

	data, err := protocol.Encode(protocol.CaptureNow{SessionId: "s-1"})
	require.NoError(t, err)
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, data))

	select {
	case msg := <-got:
		assert.Equal(t, protocol.CaptureNow{SessionId: "s-1"}, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestLastRegistrationWins(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.wsURL(), slog.Default())
	defer c.Close()

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	c.On(protocol.TypeCaptureNow, func(protocol.Message) { first <- struct{}{} })
	c.On(protocol.TypeCaptureNow, func(protocol.Message) { second <- struct{}{} })

	require.NoError(t, c.Connect(context.Background()))
	serverConn := ts.accept(t)

	data, _ := protocol.Encode(protocol.CaptureNow{SessionId: "s-1"})
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, data))

	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("replacement handler not invoked")
	}
	select {
	case <-first:
		t.Fatal("replaced handler must not fire")
	default:
	}
}

func TestPongNeverReachesHandlers(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.wsURL(), slog.Default())
	defer c.Close()

	got := make(chan protocol.Message, 2)
	c.On(protocol.TypePong, func(msg protocol.Message) { got <- msg })
	c.On(protocol.TypeGuestLeft, func(msg protocol.Message) { got <- msg })

	require.NoError(t, c.Connect(context.Background()))
	serverConn := ts.accept(t)

	pong, _ := protocol.Encode(protocol.Pong{})
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, pong))
	// a follow-up message proves the pong was already processed and skipped
	marker, _ := protocol.Encode(protocol.GuestLeft{UserId: "g-1"})
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, marker))

	select {
	case msg := <-got:
		assert.Equal(t, protocol.TypeGuestLeft, msg.MessageType())
	case <-time.After(5 * time.Second):
		t.Fatal("marker message not dispatched")
	}
}

func TestMalformedFrameIsDiscarded(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.wsURL(), slog.Default())
	defer c.Close()

	got := make(chan protocol.Message, 1)
	c.On(protocol.TypeGuestLeft, func(msg protocol.Message) { got <- msg })

	require.NoError(t, c.Connect(context.Background()))
	serverConn := ts.accept(t)

	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	marker, _ := protocol.Encode(protocol.GuestLeft{UserId: "g-1"})
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, marker))

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch loop died on malformed frame")
	}
}

func TestReconnectKeepsHandlers(t *testing.T) {
	if testing.Short() {
		t.Skip("reconnect delay")
	}

	ts := newTestServer(t)
	c := NewClient(ts.wsURL(), slog.Default())
	defer c.Close()

	got := make(chan protocol.Message, 1)
	c.On(protocol.TypeCaptureNow, func(msg protocol.Message) { got <- msg })

	require.NoError(t, c.Connect(context.Background()))
	first := ts.accept(t)

	// drop the connection server-side; the client must dial again
	first.Close()
	second := ts.accept(t)

	require.Eventually(t, c.IsConnected, 10*time.Second, 100*time.Millisecond)

	data, _ := protocol.Encode(protocol.CaptureNow{SessionId: "s-2"})
	require.NoError(t, second.WriteMessage(websocket.TextMessage, data))

	select {
	case msg := <-got:
		assert.Equal(t, protocol.CaptureNow{SessionId: "s-2"}, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("handler lost across reconnect")
	}
}

func TestReconnectDoesNotStackHeartbeats(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.wsURL(), slog.Default())
	c.heartbeatEvery = 100 * time.Millisecond
	c.retryDelay = 10 * time.Millisecond
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	first := ts.accept(t)

	first.Close()
	second := ts.accept(t)
	require.Eventually(t, c.IsConnected, 5*time.Second, 10*time.Millisecond)

	// one live heartbeat loop yields ~10 pings in this window; a leaked
	// loop from the dropped connection would double that
	pings := 0
	second.SetReadDeadline(time.Now().Add(1050 * time.Millisecond))
	for {
		_, data, err := second.ReadMessage()
		if err != nil {
			break
		}
		if msg, err := protocol.Decode(data); err == nil && msg.MessageType() == protocol.TypePing {
			pings++
		}
	}

	assert.GreaterOrEqual(t, pings, 1)
	assert.LessOrEqual(t, pings, 14)
}

func TestReconnectGivesUpAfterBoundedAttempts(t *testing.T) {
	var rejecting atomic.Bool
	var attempts atomic.Int32
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rejecting.Load() {
			attempts.Add(1)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer srv.Close()

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), slog.Default())
	c.retryDelay = 10 * time.Millisecond
	defer c.Close()

	dropped := make(chan struct{})
	c.SetDropHandler(func() { close(dropped) })

	require.NoError(t, c.Connect(context.Background()))
	serverConn := <-conns

	rejecting.Store(true)
	serverConn.Close()

	select {
	case <-dropped:
	case <-time.After(5 * time.Second):
		t.Fatal("drop callback never fired")
	}

	assert.Equal(t, int32(reconnectAttempts), attempts.Load())
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Send(protocol.StartCapture{}), ErrNotConnected)
}

func TestCloseIsIdempotentAndClearsHandlers(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.wsURL(), slog.Default())

	c.On(protocol.TypeCaptureNow, func(protocol.Message) {})
	require.NoError(t, c.Connect(context.Background()))

	c.Close()
	c.Close()

	assert.False(t, c.IsConnected())
	c.hmu.Lock()
	assert.Empty(t, c.handlers)
	c.hmu.Unlock()

	assert.ErrorIs(t, c.Send(protocol.StartCapture{}), ErrNotConnected)
}
