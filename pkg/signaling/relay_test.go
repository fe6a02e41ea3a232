package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"chatrelay/pkg/tracker"
)

type sent struct {
	to      string // connection or user id
	byUser  bool
	event   string
	payload any
}

type fakeTransport struct {
	mu  sync.Mutex
	out []sent
}

func (f *fakeTransport) SendTo(connID, event string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{to: connID, event: event, payload: payload})
	return true
}

func (f *fakeTransport) Deliver(userID, event string, payload any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{to: userID, byUser: true, event: event, payload: payload})
	return 1
}

func (f *fakeTransport) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		t.Fatalf("nothing was sent")
	}
	return f.out[len(f.out)-1]
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out)
}

// paired opens room "r1" from alice's conn c-alice and binds bob's c-bob.
func paired(t *testing.T) (*Relay, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	r := New(ft)
	if err := r.Join("c-alice", "alice", JoinRequest{Room: "r1", RecUserID: "bob"}); err != nil {
		t.Fatalf("caller join: %v", err)
	}
	if got := ft.last(t); !got.byUser || got.to != "bob" || got.event != EventIncomingCall {
		t.Fatalf("unexpected invite: %+v", got)
	}
	if got := ft.last(t).payload.(IncomingCall); got != (IncomingCall{From: "alice", Room: "r1"}) {
		t.Fatalf("unexpected invite payload: %+v", got)
	}
	if err := r.Join("c-bob", "bob", JoinRequest{Room: "r1"}); err != nil {
		t.Fatalf("callee join: %v", err)
	}
	got := ft.last(t)
	if got.byUser || got.to != "c-alice" || got.event != EventUserJoined {
		t.Fatalf("unexpected user:joined: %+v", got)
	}
	if got.payload.(UserJoined) != (UserJoined{UserID: "bob", ID: "c-bob"}) {
		t.Fatalf("unexpected user:joined payload: %+v", got.payload)
	}
	return r, ft
}

func TestForwardOnlyToRoomPeer(t *testing.T) {
	r, ft := paired(t)

	cases := []struct {
		from, event, data string
		to, out, field    string
	}{
		{"c-alice", "user:call", `{"to":"c-bob","offer":{"sdp":"o1","type":"offer"}}`, "c-bob", "incomming:calls", "offer"},
		{"c-bob", "call:accepted", `{"to":"c-alice","ans":{"sdp":"a1"}}`, "c-alice", "call:accepted", "ans"},
		{"c-alice", "peer:nego:needed", `{"to":"c-bob","offer":"o2"}`, "c-bob", "peer:nego:needed", "offer"},
		{"c-bob", "peer:nego:done", `{"to":"c-alice","ans":"a2"}`, "c-alice", "peer:nego:final", "ans"},
		{"c-alice", "ice:candidate", `{"to":"c-bob","candidate":{"candidate":"x"}}`, "c-bob", "ice:candidate", "candidate"},
	}
	for _, tc := range cases {
		if err := r.Forward(tc.from, tc.event, json.RawMessage(tc.data)); err != nil {
			t.Fatalf("%s: %v", tc.event, err)
		}
		got := ft.last(t)
		if got.to != tc.to || got.event != tc.out {
			t.Fatalf("%s: sent %+v", tc.event, got)
		}
		payload := got.payload.(map[string]any)
		if payload["from"] != tc.from {
			t.Fatalf("%s: from = %v", tc.event, payload["from"])
		}
		// the payload field is relayed byte for byte
		var in map[string]json.RawMessage
		_ = json.Unmarshal([]byte(tc.data), &in)
		if string(payload[tc.field].(json.RawMessage)) != string(in[tc.field]) {
			t.Fatalf("%s: payload changed: %s", tc.event, payload[tc.field])
		}
	}

	before := ft.count()
	err := r.Forward("c-alice", "user:call", json.RawMessage(`{"to":"c-mallory","offer":"x"}`))
	if !errors.Is(err, tracker.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	err = r.Forward("c-stranger", "ice:candidate", json.RawMessage(`{"to":"c-bob","candidate":"x"}`))
	if !errors.Is(err, tracker.ErrForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
	if ft.count() != before {
		t.Fatalf("rejected relays must not send anything")
	}

	for _, data := range []string{`{"offer":"x"}`, `{"to":"c-bob"}`, `not json`, `{"to":7,"offer":"x"}`} {
		if err := r.Forward("c-alice", "user:call", json.RawMessage(data)); !errors.Is(err, tracker.ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", data, err)
		}
	}
}

func TestConcurrentCallsStaySeparate(t *testing.T) {
	r, ft := paired(t)
	if err := r.Join("c-carol", "carol", JoinRequest{Room: "r2", RecUserID: "dave"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Join("c-dave", "dave", JoinRequest{Room: "r2"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Forward("c-carol", "user:call", json.RawMessage(`{"to":"c-bob","offer":"x"}`)); !errors.Is(err, tracker.ErrForbidden) {
		t.Fatalf("cross-room relay must be forbidden, got %v", err)
	}
	if err := r.Forward("c-carol", "user:call", json.RawMessage(`{"to":"c-dave","offer":"x"}`)); err != nil {
		t.Fatal(err)
	}
	if got := ft.last(t); got.to != "c-dave" {
		t.Fatalf("delivered to %s", got.to)
	}
	if r.Rooms() != 2 {
		t.Fatalf("rooms = %d", r.Rooms())
	}
}

func TestJoinRules(t *testing.T) {
	r, _ := paired(t)

	cases := []struct {
		name   string
		conn   string
		user   string
		req    JoinRequest
		expect error
	}{
		{"no room", "c-x", "x", JoinRequest{}, tracker.ErrInvalidArgument},
		{"open without callee", "c-x", "x", JoinRequest{Room: "r9"}, tracker.ErrInvalidArgument},
		{"call self", "c-x", "x", JoinRequest{Room: "r9", RecUserID: "x"}, tracker.ErrInvalidArgument},
		{"uninvited", "c-mallory", "mallory", JoinRequest{Room: "r1"}, tracker.ErrForbidden},
		{"second device", "c-bob2", "bob", JoinRequest{Room: "r1"}, tracker.ErrForbidden},
		{"rejoin is a no-op", "c-bob", "bob", JoinRequest{Room: "r1"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Join(tc.conn, tc.user, tc.req)
			if tc.expect == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.expect) {
				t.Fatalf("expected %v, got %v", tc.expect, err)
			}
		})
	}
}

func TestTeardown(t *testing.T) {
	t.Run("leave notifies peer", func(t *testing.T) {
		r, ft := paired(t)
		if err := r.Leave("c-bob", "r1"); err != nil {
			t.Fatal(err)
		}
		got := ft.last(t)
		if got.to != "c-alice" || got.event != EventCallEnded || got.payload.(CallEnded).Reason != ReasonLeft {
			t.Fatalf("unexpected: %+v", got)
		}
		if r.Rooms() != 0 {
			t.Fatalf("room still open")
		}
		if err := r.Forward("c-alice", "user:call", json.RawMessage(`{"to":"c-bob","offer":"x"}`)); !errors.Is(err, tracker.ErrForbidden) {
			t.Fatalf("relay after teardown: %v", err)
		}
		if err := r.Leave("c-bob", "r1"); !errors.Is(err, tracker.ErrNotFound) {
			t.Fatalf("second leave: %v", err)
		}
	})

	t.Run("reject before pairing", func(t *testing.T) {
		ft := &fakeTransport{}
		r := New(ft)
		if err := r.Join("c-alice", "alice", JoinRequest{Room: "r1", RecUserID: "bob"}); err != nil {
			t.Fatal(err)
		}
		if err := r.Reject("c-mallory", "mallory", "r1"); !errors.Is(err, tracker.ErrForbidden) {
			t.Fatalf("stranger reject: %v", err)
		}
		if err := r.Reject("c-bob", "bob", "r1"); err != nil {
			t.Fatal(err)
		}
		got := ft.last(t)
		if got.to != "c-alice" || got.payload.(CallEnded) != (CallEnded{Room: "r1", Reason: ReasonRejected}) {
			t.Fatalf("unexpected: %+v", got)
		}
	})

	t.Run("reject by caller id", func(t *testing.T) {
		ft := &fakeTransport{}
		r := New(ft)
		if err := r.Join("c-alice", "alice", JoinRequest{Room: "r1", RecUserID: "bob"}); err != nil {
			t.Fatal(err)
		}
		if err := r.RejectFrom("c-bob", "bob", "alice"); err != nil {
			t.Fatal(err)
		}
		if r.Rooms() != 0 {
			t.Fatalf("room still open")
		}
		if err := r.RejectFrom("c-bob", "bob", "alice"); !errors.Is(err, tracker.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("caller disconnect reaches ringing callee", func(t *testing.T) {
		ft := &fakeTransport{}
		r := New(ft)
		if err := r.Join("c-alice", "alice", JoinRequest{Room: "r1", RecUserID: "bob"}); err != nil {
			t.Fatal(err)
		}
		r.Disconnect("c-alice")
		got := ft.last(t)
		if !got.byUser || got.to != "bob" || got.payload.(CallEnded).Reason != ReasonDisconnected {
			t.Fatalf("unexpected: %+v", got)
		}
		if r.Rooms() != 0 {
			t.Fatalf("room still open")
		}
	})

	t.Run("disconnect closes every room of the connection", func(t *testing.T) {
		r, _ := paired(t)
		if err := r.Join("c-bob", "bob", JoinRequest{Room: "r2", RecUserID: "carol"}); err != nil {
			t.Fatal(err)
		}
		r.Disconnect("c-bob")
		if r.Rooms() != 0 {
			t.Fatalf("rooms = %d", r.Rooms())
		}
	})
}

func TestHandles(t *testing.T) {
	for _, ev := range []string{"room:join", "user:call", "ice:candidate", "call:reject", "room:leave", "peer:nego:done"} {
		if !Handles(ev) {
			t.Fatalf("%s should be a call event", ev)
		}
	}
	for _, ev := range []string{"send", "markAsRead", "incoming-call", ""} {
		if Handles(ev) {
			t.Fatalf("%s is not an inbound call event", ev)
		}
	}
}
