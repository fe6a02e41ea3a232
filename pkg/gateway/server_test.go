package gateway

import (
	"net"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"golang.org/x/time/rate"
)

func TestWebsocketRoundTrip(t *testing.T) {
	s := newStack(t)
	srv := NewServer(s.hub, s.disp, Options{SendBuffer: 8, EventRPS: 1000, EventBurst: 1000})
	t.Cleanup(srv.Close)

	ln := fasthttputil.NewInmemoryListener()
	httpSrv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		srv.Serve(ctx, string(ctx.QueryArgs().Peek("user")))
	}}
	go func() { _ = httpSrv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	dialer := websocket.Dialer{
		NetDial:          func(network, addr string) (net.Conn, error) { return ln.Dial() },
		HandshakeTimeout: 2 * time.Second,
	}
	dial := func(user string) *websocket.Conn {
		ws, _, err := dialer.Dial("ws://chat.test/v1/ws?user="+user, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = ws.Close() })
		return ws
	}
	alice := dial("alice")
	bob := dial("bob")

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Connections() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("connections never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	read := func(ws *websocket.Conn) Envelope {
		t.Helper()
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var env Envelope
		require.NoError(t, ws.ReadJSON(&env))
		return env
	}

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"event":"send","id":"1","data":{"receiver":"bob","body":"hi"}}`)))
	ack := read(alice)
	assert.Equal(t, EventAck, ack.Event)
	assert.Equal(t, "1", ack.ID)
	assert.Nil(t, ack.Error)

	msg := read(bob)
	assert.Equal(t, "message", msg.Event)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	bad := read(alice)
	require.NotNil(t, bad.Error)
	assert.Equal(t, "invalid_argument", bad.Error.Kind)

	require.NoError(t, bob.Close())
	deadline = time.Now().Add(2 * time.Second)
	for s.hub.Online("bob") {
		if time.Now().After(deadline) {
			t.Fatalf("closed connection still registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRateLimitedFramesAreRejected(t *testing.T) {
	s := newStack(t)
	srv := NewServer(s.hub, s.disp, Options{EventRPS: 0.001, EventBurst: 1})
	c := newConn("alice", 4, rate.NewLimiter(rate.Limit(srv.opts.EventRPS), srv.opts.EventBurst))

	first := srv.handleFrame(c, []byte(`{"event":"joinGroup","id":"a","data":{"groupId":"bad"}}`))
	require.NotNil(t, first)
	assert.NotContains(t, string(first), "rate_limited")

	second := srv.handleFrame(c, []byte(`{"event":"joinGroup","id":"b","data":{"groupId":"bad"}}`))
	assert.Contains(t, string(second), "rate_limited")
}
