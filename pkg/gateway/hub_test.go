package gateway

import (
	"encoding/json"
	"testing"
	"time"
)

func recv(t *testing.T, c *Conn) Envelope {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatalf("connection %s was closed", c.id)
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("bad frame %s: %v", msg, err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("no frame for %s", c.user)
	}
	return Envelope{}
}

func quiet(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected frame for %s: %s", c.user, msg)
	default:
	}
}

func register(h *Hub, user string, buffer int) *Conn {
	c := newConn(user, buffer, nil)
	h.Register(c)
	return c
}

func TestDeliverReachesEveryDevice(t *testing.T) {
	h := NewHub()
	phone := register(h, "alice", 4)
	laptop := register(h, "alice", 4)
	other := register(h, "bob", 4)

	if n := h.Deliver("alice", "message", map[string]string{"body": "hi"}); n != 2 {
		t.Fatalf("delivered to %d connections, want 2", n)
	}
	for _, c := range []*Conn{phone, laptop} {
		env := recv(t, c)
		if env.Event != "message" || string(env.Data) != `{"body":"hi"}` {
			t.Fatalf("unexpected frame %+v", env)
		}
	}
	quiet(t, other)

	if n := h.Deliver("nobody", "message", nil); n != 0 {
		t.Fatalf("offline delivery reported %d", n)
	}
	if !h.Online("alice") || h.Online("nobody") {
		t.Fatalf("presence is wrong")
	}
}

func TestFullBufferDropsConnection(t *testing.T) {
	h := NewHub()
	left := 0
	h.OnLeave(func(*Conn) { left++ })

	slow := register(h, "alice", 1)
	if n := h.Deliver("alice", "message", 1); n != 1 {
		t.Fatalf("first delivery: %d", n)
	}
	if n := h.Deliver("alice", "message", 2); n != 0 {
		t.Fatalf("overflowing delivery reported %d", n)
	}
	if h.Connections() != 0 || h.Online("alice") {
		t.Fatalf("slow connection was not dropped")
	}
	if left != 1 {
		t.Fatalf("leave hooks ran %d times", left)
	}

	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Fatalf("send queue should be closed")
	}
	h.Unregister(slow)
	if left != 1 {
		t.Fatalf("second unregister ran hooks again")
	}
	if h.SendTo(slow.id, "message", 3) {
		t.Fatalf("send to a dropped connection succeeded")
	}
}

func TestDeliverGroupOnlyReachesJoinedConnections(t *testing.T) {
	h := NewHub()
	joined := register(h, "xavier", 4)
	idle := register(h, "xavier", 4)
	yara := register(h, "yara", 4)
	h.Join(joined, "g1")
	h.Join(yara, "g2")

	if n := h.DeliverGroup("g1", []string{"xavier", "yara"}, "messageGroup", "x"); n != 1 {
		t.Fatalf("delivered %d, want 1", n)
	}
	recv(t, joined)
	quiet(t, idle)
	quiet(t, yara)

	h.Unregister(joined)
	if n := h.DeliverGroup("g1", []string{"xavier"}, "messageGroup", "x"); n != 0 {
		t.Fatalf("delivered %d after leaving", n)
	}
}

func TestSendTo(t *testing.T) {
	h := NewHub()
	a := register(h, "alice", 4)
	b := register(h, "alice", 4)
	if !h.SendTo(b.id, "user:joined", nil) {
		t.Fatalf("SendTo failed")
	}
	if env := recv(t, b); env.Event != "user:joined" {
		t.Fatalf("got %s", env.Event)
	}
	quiet(t, a)
	if h.SendTo("missing", "x", nil) {
		t.Fatalf("SendTo to an unknown connection succeeded")
	}

	h.CloseAll()
	if h.Connections() != 0 {
		t.Fatalf("CloseAll left %d connections", h.Connections())
	}
}
